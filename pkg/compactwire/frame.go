// Package compactwire frames a flattened scopewire stream for transport.
//
// A data frame carries every buffer a Stream produced (the main buffer and
// its no-copy segments) behind a small segment table, optionally compressed
// as one payload, and sealed with a CRC32.
//
//	magic "SW" | type | total len u32 | codec | seg count u16 |
//	(seg len u32, seg flags u8)... | raw len u32 | payload | crc32
//
// All integers are little-endian. The CRC covers every byte after the
// magic and before the CRC itself.
package compactwire

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/rawbytedev/scopewire"
	"github.com/rawbytedev/scopewire/pkg/memstream"
)

const (
	magic0 = 0x53 // 'S'
	magic1 = 0x57 // 'W'

	TypeData byte = 0x01

	// FlagExtension marks a no-copy segment in the segment table.
	FlagExtension byte = 0x01

	MaxSegments = 1<<16 - 1

	segmentEntrySize = 5
	// magic + type + length + codec + count + raw length + crc
	minFrameSize = 2 + 1 + 4 + 1 + 2 + 4 + 4
)

var (
	ErrNotDataFrame   = errors.New("compactwire: not a data frame")
	ErrLengthMismatch = errors.New("compactwire: length mismatch")
	ErrCRCMismatch    = errors.New("compactwire: crc mismatch")
	ErrTruncated      = errors.New("compactwire: truncated frame")
	ErrTooManyBuffers = errors.New("compactwire: too many segments")
)

// DataFrame is a decoded frame.
type DataFrame struct {
	Codec    Codec
	Segments []scopewire.Buffer
}

// Main concatenates the non-extension segments.
func (d *DataFrame) Main() []byte {
	var main []byte
	n := 0
	for _, seg := range d.Segments {
		if !seg.Extension {
			n++
			main = seg.Data
		}
	}
	if n <= 1 {
		return main
	}
	var buf bytes.Buffer
	for _, seg := range d.Segments {
		if !seg.Extension {
			buf.Write(seg.Data)
		}
	}
	return buf.Bytes()
}

// Extensions returns the no-copy segments in index order.
func (d *DataFrame) Extensions() [][]byte {
	var ext [][]byte
	for _, seg := range d.Segments {
		if seg.Extension {
			ext = append(ext, seg.Data)
		}
	}
	return ext
}

// Reader returns a Stream positioned at the start of the frame's main
// buffer with its no-copy indexes bound to the extension segments.
func (d *DataFrame) Reader(opts scopewire.Options) *scopewire.Stream {
	return scopewire.NewStream(memstream.FromBytes(d.Main(), d.Extensions()...), opts)
}

// Flatten drains s and encodes its buffers into one frame.
func Flatten(s *scopewire.Stream, codec Codec) ([]byte, error) {
	bufs, err := s.Buffers()
	if err != nil {
		return nil, fmt.Errorf("compactwire: flatten: %w", err)
	}
	return EncodeDataFrame(bufs, codec)
}

func writePreamble(buf *bytes.Buffer, t byte) {
	buf.WriteByte(magic0)
	buf.WriteByte(magic1)
	buf.WriteByte(t)
}

func readPreamble(data []byte) (byte, error) {
	if len(data) < 3 {
		return 0, ErrTruncated
	}
	if data[0] != magic0 || data[1] != magic1 {
		return 0, ErrNotDataFrame
	}
	return data[2], nil
}
