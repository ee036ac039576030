package scopewire

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rawbytedev/scopewire/internal/common"
)

// ByteStream is the byte-level storage a Stream encodes into and decodes from.
// Size returns 0 when the length is unknown.
type ByteStream interface {
	ReadBytes(p []byte) error
	WriteBytes(p []byte) error
	Seek(pos uint32) error
	Position() uint32
	SeekToEnd() error
	Size() uint32
	WriteBytesNoCopy(b []byte) error
	ReadBytesNoCopy(index uint32) ([]byte, error)
	// NextBuffer walks the written stream in transport order and returns
	// io.EOF once every buffer has been produced.
	NextBuffer() (data []byte, extension bool, err error)
	AddCompletionCallback(fn func() error)
	InvokeCompletionCallbacks() error
}

// Buffer is one transport segment of a flattened stream.
type Buffer struct {
	Data      []byte
	Extension bool
}

// CompletionFunc runs once the written stream has been consumed.
type CompletionFunc func() error

const (
	DefaultMaxTypeInfoLength = 1024
	DefaultMaxDepth          = 256
)

// Options configures a Stream. Zero fields take the defaults.
type Options struct {
	MaxTypeInfoLength uint32
	MaxDepth          int
	Logger            *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxTypeInfoLength == 0 {
		o.MaxTypeInfoLength = DefaultMaxTypeInfoLength
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Stream drives the tagged wire protocol over a ByteStream.
// It is not safe for concurrent use.
type Stream struct {
	bs    ByteStream
	opts  Options
	log   *slog.Logger
	stack []objectContext

	lastMetadataPosition uint32
	noCopyIndex          uint32

	one     [1]byte
	fixed   [16]byte
	scratch [common.MaxGroups]byte
	wbuf    []byte
}

func NewStream(bs ByteStream, opts Options) *Stream {
	opts = opts.withDefaults()
	return &Stream{
		bs:    bs,
		opts:  opts,
		log:   opts.Logger,
		stack: make([]objectContext, 0, 8),
	}
}

// Reset drops all per-pass state so the stream can be reused on bs.
func (s *Stream) Reset(bs ByteStream) {
	s.bs = bs
	s.stack = s.stack[:0]
	s.lastMetadataPosition = 0
	s.noCopyIndex = 0
}

func (s *Stream) Position() uint32      { return s.bs.Position() }
func (s *Stream) Seek(pos uint32) error { return s.bs.Seek(pos) }
func (s *Stream) SeekToBegin() error    { return s.bs.Seek(0) }
func (s *Stream) SeekToEnd() error      { return s.bs.SeekToEnd() }
func (s *Stream) Size() uint32          { return s.bs.Size() }

// ReadByte lets the varint codec pull from the underlying stream.
func (s *Stream) ReadByte() (byte, error) {
	if err := s.bs.ReadBytes(s.one[:]); err != nil {
		return 0, err
	}
	return s.one[0], nil
}

func (s *Stream) WriteRawBytes(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	return s.bs.WriteBytes(p)
}

func (s *Stream) ReadRawBytes(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	return s.bs.ReadBytes(p)
}

// WriteUInt32WithNoMetadata writes v as a bare unsigned varint.
func (s *Stream) WriteUInt32WithNoMetadata(v uint32) error {
	b, _ := common.Compress(v, false, &s.scratch)
	return s.bs.WriteBytes(b)
}

func (s *Stream) ReadUInt32WithNoMetadata() (uint32, error) {
	return readCompressed[uint32](s, false)
}

// NextBuffer returns the next transport segment, or io.EOF.
func (s *Stream) NextBuffer() (Buffer, error) {
	data, ext, err := s.bs.NextBuffer()
	if err != nil {
		return Buffer{}, err
	}
	return Buffer{Data: data, Extension: ext}, nil
}

// Buffers drains NextBuffer.
func (s *Stream) Buffers() ([]Buffer, error) {
	var out []Buffer
	for {
		b, err := s.NextBuffer()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
}

// InvokeCallbacks runs the completion callbacks registered through
// WriteEndTypeWithCallback in registration order.
func (s *Stream) InvokeCallbacks() error {
	return s.bs.InvokeCompletionCallbacks()
}

func (s *Stream) writeMetadata(t TypeTag) error {
	s.one[0] = byte(t)
	return s.bs.WriteBytes(s.one[:])
}

// readMetadata reads one tag and remembers where it started. end is set
// for ScopeEnd and ObjectEnd.
func (s *Stream) readMetadata() (t TypeTag, end bool, err error) {
	pos := s.bs.Position()
	if err := s.bs.ReadBytes(s.one[:]); err != nil {
		return 0, false, err
	}
	s.lastMetadataPosition = pos
	t = TypeTag(s.one[0])
	return t, t == TagScopeEnd || t == TagObjectEnd, nil
}

func (s *Stream) seekToLastMetadata() error {
	return s.bs.Seek(s.lastMetadataPosition)
}

// beginRead reads the tag of an expected field. On scope end the stream is
// rewound and StatusScopeEnd returned.
func (s *Stream) beginRead(want TypeTag) (TypeTag, Status, error) {
	t, end, err := s.readMetadata()
	if err != nil {
		return 0, StatusOK, err
	}
	if end {
		if err := s.seekToLastMetadata(); err != nil {
			return 0, StatusOK, err
		}
		return 0, StatusScopeEnd, nil
	}
	if !t.Valid() {
		return 0, StatusOK, formatError("invalid tag 0x%02x at offset %d", uint8(t), s.lastMetadataPosition)
	}
	if !t.IsOfBaseKind(want) || t.IsArray() != want.IsArray() {
		return 0, StatusOK, metadataError(t, want)
	}
	return t, StatusOK, nil
}

func readCompressed[T common.Integer](s *Stream, signed bool) (T, error) {
	v, err := common.Decompress[T](s, signed)
	if errors.Is(err, common.ErrVarintOverflow) {
		return 0, formatError("%v at offset %d", err, s.bs.Position())
	}
	return v, err
}

func (s *Stream) skipCompressed(capacity int) error {
	err := common.Skip(s, capacity)
	if errors.Is(err, common.ErrVarintOverflow) {
		return fmt.Errorf("%w: %v", ErrInvalidStreamFormat, err)
	}
	return err
}

func (s *Stream) readCount() (uint32, error) {
	return readCompressed[uint32](s, false)
}
