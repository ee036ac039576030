// Package memstream is an in-memory byte stream for scopewire: a growable
// main buffer with a cursor plus a table of no-copy segments.
package memstream

import (
	"fmt"
	"io"
	"math"

	"github.com/rawbytedev/scopewire/zc"
)

type Stream struct {
	buf       []byte
	pos       int
	segs      *zc.Segments
	callbacks []func() error
	next      int
}

// New returns an empty writable stream.
func New() *Stream {
	return NewWithOptions(zc.Options{})
}

func NewWithOptions(opts zc.Options) *Stream {
	return &Stream{buf: make([]byte, 0, 256), segs: zc.NewSegments(opts)}
}

// FromBytes returns a stream positioned at the start of data whose no-copy
// indexes resolve to ext in order. data is not copied.
func FromBytes(data []byte, ext ...[]byte) *Stream {
	s := &Stream{buf: data, segs: zc.NewSegments(zc.Options{})}
	for _, b := range ext {
		s.segs.Append(b)
	}
	return s
}

func (s *Stream) ReadBytes(p []byte) error {
	if len(p) > len(s.buf)-s.pos {
		return io.ErrUnexpectedEOF
	}
	copy(p, s.buf[s.pos:])
	s.pos += len(p)
	return nil
}

// WriteBytes overwrites at the cursor and extends the buffer as needed.
func (s *Stream) WriteBytes(p []byte) error {
	end := s.pos + len(p)
	if end > math.MaxUint32 {
		return fmt.Errorf("memstream: write past 4GiB limit")
	}
	if end > len(s.buf) {
		if end > cap(s.buf) {
			grown := make([]byte, len(s.buf), max(2*cap(s.buf), end))
			copy(grown, s.buf)
			s.buf = grown
		}
		s.buf = s.buf[:end]
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return nil
}

func (s *Stream) Seek(pos uint32) error {
	if int(pos) > len(s.buf) {
		return fmt.Errorf("memstream: seek to %d beyond end %d", pos, len(s.buf))
	}
	s.pos = int(pos)
	return nil
}

func (s *Stream) Position() uint32 { return uint32(s.pos) }

func (s *Stream) SeekToEnd() error {
	s.pos = len(s.buf)
	return nil
}

func (s *Stream) Size() uint32 { return uint32(len(s.buf)) }

func (s *Stream) WriteBytesNoCopy(b []byte) error {
	s.segs.Append(b)
	return nil
}

func (s *Stream) ReadBytesNoCopy(index uint32) ([]byte, error) {
	return s.segs.Get(index)
}

// NextBuffer yields the main buffer, then each no-copy segment, then io.EOF.
func (s *Stream) NextBuffer() ([]byte, bool, error) {
	i := s.next
	switch {
	case i == 0:
		s.next++
		return s.buf, false, nil
	case i-1 < s.segs.Len():
		s.next++
		b, err := s.segs.Get(uint32(i - 1))
		return b, true, err
	}
	return nil, false, io.EOF
}

// Rewind restarts the NextBuffer iteration.
func (s *Stream) Rewind() { s.next = 0 }

func (s *Stream) AddCompletionCallback(fn func() error) {
	s.callbacks = append(s.callbacks, fn)
}

// InvokeCompletionCallbacks runs and clears the callbacks, stopping at the
// first error.
func (s *Stream) InvokeCompletionCallbacks() error {
	cbs := s.callbacks
	s.callbacks = nil
	for _, fn := range cbs {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// Bytes returns the main buffer. It aliases the stream's storage.
func (s *Stream) Bytes() []byte { return s.buf }

// Segments returns the number of no-copy segments.
func (s *Stream) Segments() int { return s.segs.Len() }

func (s *Stream) Reset() {
	s.buf = s.buf[:0]
	s.pos = 0
	s.next = 0
	s.segs.Reset()
	s.callbacks = nil
}
