// Package zc (zero-copy) holds the no-copy buffer segments referenced from
// an encoded stream. Segments alias caller memory unless Options asks for
// private copies, so callers must not mutate a buffer until the stream
// that references it has been flushed.
package zc

import "fmt"

// Options contains runtime flags controlling zero-copy behaviour.
type Options struct {
	// CopySegments makes Append take a private copy of each buffer.
	CopySegments bool
}

// Segments is an append-only table of buffers addressed by insertion index.
type Segments struct {
	opts Options
	bufs [][]byte
	size int
}

func NewSegments(opts Options) *Segments {
	return &Segments{opts: opts}
}

// Append stores b and returns its index.
func (s *Segments) Append(b []byte) uint32 {
	if s.opts.CopySegments {
		b = append([]byte(nil), b...)
	}
	s.bufs = append(s.bufs, b)
	s.size += len(b)
	return uint32(len(s.bufs) - 1)
}

func (s *Segments) Get(index uint32) ([]byte, error) {
	if int(index) >= len(s.bufs) {
		return nil, fmt.Errorf("zc: segment %d out of range (%d segments)", index, len(s.bufs))
	}
	return s.bufs[index], nil
}

// Len returns the number of segments.
func (s *Segments) Len() int { return len(s.bufs) }

// Bytes returns the total payload size of all segments.
func (s *Segments) Bytes() int { return s.size }

func (s *Segments) Reset() {
	for i := range s.bufs {
		s.bufs[i] = nil
	}
	s.bufs = s.bufs[:0]
	s.size = 0
}
