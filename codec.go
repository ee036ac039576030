package scopewire

import (
	"fmt"

	"github.com/rawbytedev/scopewire/pkg/memstream"
)

// Marshal encodes obj into a single buffer and runs its completion
// callbacks. Objects that reference no-copy buffers need a stream that can
// carry segments and are rejected.
func Marshal(obj Serializable, opts Options) ([]byte, error) {
	ms := memstream.New()
	s := NewStream(ms, opts)
	if err := s.WriteSerializable(obj); err != nil {
		return nil, err
	}
	if n := ms.Segments(); n > 0 {
		return nil, fmt.Errorf("%w: object references %d no-copy buffers", ErrInvalidParameter, n)
	}
	if err := s.InvokeCallbacks(); err != nil {
		return nil, err
	}
	return ms.Bytes(), nil
}

// Unmarshal decodes one object from the start of data into obj.
func Unmarshal(data []byte, obj Serializable, opts Options) error {
	s := NewStream(memstream.FromBytes(data), opts)
	st, err := s.ReadSerializable(obj)
	if err != nil {
		return err
	}
	if st == StatusScopeEnd {
		return fmt.Errorf("%w: no object at start of buffer", ErrInvalidStreamFormat)
	}
	return nil
}
