package scopewire

import (
	"fmt"
	"math"
)

// WriteByteArrayNoCopy hands each buffer to the byte stream by reference.
// The stream records a running index per buffer, and the enclosing object
// (and every ancestor) is flagged ContainsExtensionData.
func (s *Stream) WriteByteArrayNoCopy(buffers [][]byte) error {
	ctx, err := s.current()
	if err != nil {
		return err
	}
	ctx.header.Flags |= ContainsExtensionData
	if len(buffers) == 0 {
		return s.writeMetadata(MakeEmpty(TagByteArrayNoCopy))
	}
	if uint64(len(buffers)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d buffers", ErrInvalidParameter, len(buffers))
	}
	if err := s.writeMetadata(TagByteArrayNoCopy); err != nil {
		return err
	}
	if err := s.WriteUInt32WithNoMetadata(uint32(len(buffers))); err != nil {
		return err
	}
	for _, b := range buffers {
		if err := s.WriteUInt32WithNoMetadata(s.noCopyIndex); err != nil {
			return err
		}
		if err := s.bs.WriteBytesNoCopy(b); err != nil {
			return err
		}
		s.noCopyIndex++
	}
	return nil
}

// ReadByteArrayNoCopy resolves each stored index back to its buffer.
func (s *Stream) ReadByteArrayNoCopy(dst [][]byte) (int, Status, error) {
	t, st, err := s.beginRead(TagByteArrayNoCopy)
	if err != nil || st == StatusScopeEnd {
		return 0, st, err
	}
	if t.IsEmpty() {
		return 0, StatusOK, nil
	}
	count, err := s.readCount()
	if err != nil {
		return 0, StatusOK, err
	}
	if size := s.bs.Size(); size > 0 && size < count {
		return 0, StatusOK, formatError("no-copy array of %d buffers exceeds stream size %d", count, size)
	}
	if int(count) > len(dst) {
		if err := s.seekToLastMetadata(); err != nil {
			return 0, StatusOK, err
		}
		return int(count), StatusOK, &BufferTooSmallError{Required: int(count)}
	}
	for i := range int(count) {
		index, err := s.readCount()
		if err != nil {
			return 0, StatusOK, err
		}
		if dst[i], err = s.bs.ReadBytesNoCopy(index); err != nil {
			return 0, StatusOK, err
		}
	}
	return int(count), StatusOK, nil
}
