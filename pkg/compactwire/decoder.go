package compactwire

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/rawbytedev/scopewire"
)

// DecodeDataFrame parses a data frame. The returned segments alias data
// when the frame is uncompressed.
func DecodeDataFrame(data []byte) (*DataFrame, error) {
	t, err := readPreamble(data)
	if err != nil {
		return nil, err
	}
	if t != TypeData {
		return nil, fmt.Errorf("%w: frame type 0x%02x", ErrNotDataFrame, t)
	}
	if len(data) < minFrameSize {
		return nil, ErrTruncated
	}

	length := binary.LittleEndian.Uint32(data[3:])
	if int(length) != len(data) {
		return nil, fmt.Errorf("%w: header says %d bytes, got %d", ErrLengthMismatch, length, len(data))
	}
	end := len(data) - 4
	want := binary.LittleEndian.Uint32(data[end:])
	if crc32.ChecksumIEEE(data[2:end]) != want {
		return nil, ErrCRCMismatch
	}

	codec := Codec(data[7])
	count := int(binary.LittleEndian.Uint16(data[8:]))
	pos := 10
	if pos+count*segmentEntrySize+4 > end {
		return nil, fmt.Errorf("%w: segment table of %d entries", ErrTruncated, count)
	}
	lens := make([]int, count)
	flags := make([]byte, count)
	sum := 0
	for i := range count {
		lens[i] = int(binary.LittleEndian.Uint32(data[pos:]))
		flags[i] = data[pos+4]
		sum += lens[i]
		pos += segmentEntrySize
	}
	raw := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	if sum != raw {
		return nil, fmt.Errorf("%w: segments hold %d bytes, raw length %d", ErrLengthMismatch, sum, raw)
	}

	payload, err := decompress(data[pos:end], codec, raw)
	if err != nil {
		return nil, err
	}

	frame := &DataFrame{Codec: codec, Segments: make([]scopewire.Buffer, count)}
	off := 0
	for i := range count {
		frame.Segments[i] = scopewire.Buffer{
			Data:      payload[off : off+lens[i] : off+lens[i]],
			Extension: flags[i]&FlagExtension != 0,
		}
		off += lens[i]
	}
	return frame, nil
}
