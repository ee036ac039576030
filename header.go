package scopewire

import (
	"encoding/binary"
	"fmt"
)

// HeaderFlags describe what follows an object header.
type HeaderFlags uint8

const (
	// ContainsTypeInformation: a length-prefixed type descriptor follows the header.
	ContainsTypeInformation HeaderFlags = 0x01
	// ContainsExtensionData: the object or one of its children references
	// no-copy buffers, so it cannot be skipped as opaque bytes.
	ContainsExtensionData HeaderFlags = 0x02
)

// HeaderSize is the encoded size of an ObjectHeader.
const HeaderSize = 5

// ObjectHeader precedes every encoded object. Size counts from the first
// header byte through the ObjectEnd tag.
type ObjectHeader struct {
	Size  uint32
	Flags HeaderFlags
}

func (h ObjectHeader) Has(f HeaderFlags) bool { return h.Flags&f != 0 }

// Encode writes h into buf, which must hold HeaderSize bytes.
func (h ObjectHeader) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], h.Size)
	buf[4] = byte(h.Flags)
}

// ParseHeader decodes a header from the start of buf.
func ParseHeader(buf []byte) (ObjectHeader, error) {
	if len(buf) < HeaderSize {
		return ObjectHeader{}, fmt.Errorf("%w: short object header", ErrInvalidStreamFormat)
	}
	return ObjectHeader{
		Size:  binary.LittleEndian.Uint32(buf[0:]),
		Flags: HeaderFlags(buf[4]),
	}, nil
}
