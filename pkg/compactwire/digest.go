package compactwire

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/rawbytedev/scopewire"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// segmentDomainKey separates frame digests from other BLAKE3 uses. The
// value is fixed; changing it changes every digest.
var segmentDomainKey = [32]byte{
	's', 'c', 'o', 'p', 'e', 'w', 'i', 'r', 'e', '.', 'f', 'r', 'a', 'm', 'e', '.',
	's', 'e', 'g', 'm', 'e', 'n', 't', 's', 0, 0, 0, 0, 0, 0, 0, 0,
}

// Digest hashes the decompressed segments of a frame. It is independent of
// the codec, so re-framing with another codec keeps the digest.
func Digest(segments []scopewire.Buffer) Hash {
	hasher, err := blake3.NewKeyed(segmentDomainKey[:])
	if err != nil {
		panic("compactwire: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var prefix [5]byte
	for _, seg := range segments {
		binary.LittleEndian.PutUint32(prefix[:4], uint32(len(seg.Data)))
		prefix[4] = 0
		if seg.Extension {
			prefix[4] = FlagExtension
		}
		hasher.Write(prefix[:])
		hasher.Write(seg.Data)
	}
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}
