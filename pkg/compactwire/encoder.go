package compactwire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/rawbytedev/scopewire"
)

// EncodeDataFrame serializes segments into a data frame. When codec cannot
// shrink the payload the frame falls back to CodecNone.
func EncodeDataFrame(segments []scopewire.Buffer, codec Codec) ([]byte, error) {
	if len(segments) > MaxSegments {
		return nil, fmt.Errorf("%w: %d", ErrTooManyBuffers, len(segments))
	}
	raw := 0
	for _, seg := range segments {
		raw += len(seg.Data)
	}
	if raw > math.MaxUint32 {
		return nil, fmt.Errorf("compactwire: payload of %d bytes exceeds frame limit", raw)
	}

	payload := make([]byte, 0, raw)
	for _, seg := range segments {
		payload = append(payload, seg.Data...)
	}
	packed, err := compress(payload, codec)
	if errors.Is(err, errIncompressible) {
		packed, codec = payload, CodecNone
	} else if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	buf.Grow(minFrameSize + len(segments)*segmentEntrySize + len(packed))
	writePreamble(buf, TypeData)

	// length placeholder
	binary.Write(buf, binary.LittleEndian, uint32(0))
	buf.WriteByte(byte(codec))
	binary.Write(buf, binary.LittleEndian, uint16(len(segments)))
	for _, seg := range segments {
		binary.Write(buf, binary.LittleEndian, uint32(len(seg.Data)))
		var flags byte
		if seg.Extension {
			flags |= FlagExtension
		}
		buf.WriteByte(flags)
	}
	binary.Write(buf, binary.LittleEndian, uint32(raw))
	buf.Write(packed)

	out := buf.Bytes()
	total := uint64(len(out)) + 4
	if total > math.MaxUint32 {
		return nil, fmt.Errorf("compactwire: frame of %d bytes exceeds frame limit", total)
	}
	binary.LittleEndian.PutUint32(out[3:], uint32(total))

	crc := crc32.ChecksumIEEE(out[2:])
	out = binary.LittleEndian.AppendUint32(out, crc)
	return out, nil
}
