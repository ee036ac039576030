package scopewire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gofrs/uuid/v5"
	"github.com/rawbytedev/scopewire/internal/common"
)

// fixedCodec blits a fixed-width kind.
type fixedCodec[T any] struct {
	size int
	put  func([]byte, T)
	get  func([]byte) T
	zero func(T) bool
}

var (
	boolCodec = fixedCodec[bool]{
		size: 1,
		put: func(b []byte, v bool) {
			b[0] = 0
			if v {
				b[0] = 1
			}
		},
		get:  func(b []byte) bool { return b[0] != 0 },
		zero: func(v bool) bool { return !v },
	}
	charCodec = fixedCodec[int8]{
		size: 1,
		put:  func(b []byte, v int8) { b[0] = byte(v) },
		get:  func(b []byte) int8 { return int8(b[0]) },
		zero: func(v int8) bool { return v == 0 },
	}
	ucharCodec = fixedCodec[uint8]{
		size: 1,
		put:  func(b []byte, v uint8) { b[0] = v },
		get:  func(b []byte) uint8 { return b[0] },
		zero: func(v uint8) bool { return v == 0 },
	}
	guidCodec = fixedCodec[uuid.UUID]{
		size: uuid.Size,
		put:  func(b []byte, v uuid.UUID) { copy(b, v[:]) },
		get: func(b []byte) uuid.UUID {
			var u uuid.UUID
			copy(u[:], b)
			return u
		},
		zero: func(v uuid.UUID) bool { return v == uuid.Nil },
	}
	// -0.0 is not empty so its sign survives.
	doubleCodec = fixedCodec[float64]{
		size: 8,
		put:  func(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) },
		get:  func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) },
		zero: func(v float64) bool { return math.Float64bits(v) == 0 },
	}
	wcharCodec = fixedCodec[uint16]{
		size: 2,
		put:  func(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) },
		get:  func(b []byte) uint16 { return binary.LittleEndian.Uint16(b) },
		zero: func(v uint16) bool { return v == 0 },
	}
)

func writeFixedValue[T any](s *Stream, tag TypeTag, v T, c fixedCodec[T]) error {
	if c.zero(v) {
		return s.writeMetadata(MakeEmpty(tag))
	}
	if err := s.writeMetadata(tag); err != nil {
		return err
	}
	c.put(s.fixed[:c.size], v)
	return s.bs.WriteBytes(s.fixed[:c.size])
}

func readFixedValue[T any](s *Stream, tag TypeTag, v *T, c fixedCodec[T]) (Status, error) {
	t, st, err := s.beginRead(tag)
	if err != nil || st == StatusScopeEnd {
		return st, err
	}
	if t.IsEmpty() {
		var z T
		*v = z
		return StatusOK, nil
	}
	if err := s.bs.ReadBytes(s.fixed[:c.size]); err != nil {
		return StatusOK, err
	}
	*v = c.get(s.fixed[:c.size])
	return StatusOK, nil
}

func writeArrayHeader(s *Stream, tag TypeTag, n int) (bool, error) {
	at := MakeArray(tag)
	if n == 0 {
		return false, s.writeMetadata(MakeEmpty(at))
	}
	if uint64(n) > math.MaxUint32 {
		return false, fmt.Errorf("%w: %d elements", ErrInvalidParameter, n)
	}
	if err := s.writeMetadata(at); err != nil {
		return false, err
	}
	return true, s.WriteUInt32WithNoMetadata(uint32(n))
}

// beginArrayRead reads the tag and count of an array. A capacity below the
// count rewinds to the tag and returns BufferTooSmallError.
func (s *Stream) beginArrayRead(tag TypeTag, capacity int, elemSize uint64, discard bool) (uint32, Status, error) {
	t, st, err := s.beginRead(MakeArray(tag))
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
	if size := s.bs.Size(); size > 0 && uint64(size) < uint64(count)*elemSize {
		return 0, StatusOK, formatError("%s array of %d elements exceeds stream size %d", tag, count, size)
	}
	if !discard && int(count) > capacity {
		if err := s.seekToLastMetadata(); err != nil {
			return 0, StatusOK, err
		}
		return count, StatusOK, &BufferTooSmallError{Required: int(count)}
	}
	return count, StatusOK, nil
}

func writeFixedArray[T any](s *Stream, tag TypeTag, v []T, c fixedCodec[T]) error {
	if ok, err := writeArrayHeader(s, tag, len(v)); !ok || err != nil {
		return err
	}
	buf := s.grow(len(v) * c.size)
	for i, x := range v {
		c.put(buf[i*c.size:], x)
	}
	return s.bs.WriteBytes(buf)
}

func readFixedArray[T any](s *Stream, tag TypeTag, dst []T, c fixedCodec[T], discard bool) (int, Status, error) {
	count, st, err := s.beginArrayRead(tag, len(dst), uint64(c.size), discard)
	if err != nil || st == StatusScopeEnd || count == 0 {
		return int(count), st, err
	}
	n := uint64(count) * uint64(c.size)
	if discard {
		end := uint64(s.bs.Position()) + n
		if end > math.MaxUint32 {
			return 0, StatusOK, formatError("%s array runs past the addressable stream", tag)
		}
		return int(count), StatusOK, s.bs.Seek(uint32(end))
	}
	buf := s.grow(int(n))
	if err := s.bs.ReadBytes(buf); err != nil {
		return 0, StatusOK, err
	}
	for i := range int(count) {
		dst[i] = c.get(buf[i*c.size:])
	}
	return int(count), StatusOK, nil
}

func writeCompressedValue[T common.Integer](s *Stream, tag TypeTag, v T, signed bool) error {
	b, n := common.Compress(v, signed, &s.scratch)
	if n == 0 {
		return s.writeMetadata(MakeEmpty(tag))
	}
	if err := s.writeMetadata(tag); err != nil {
		return err
	}
	return s.bs.WriteBytes(b)
}

func readCompressedValue[T common.Integer](s *Stream, tag TypeTag, v *T, signed bool) (Status, error) {
	t, st, err := s.beginRead(tag)
	if err != nil || st == StatusScopeEnd {
		return st, err
	}
	if t.IsEmpty() {
		*v = 0
		return StatusOK, nil
	}
	x, err := readCompressed[T](s, signed)
	if err != nil {
		return StatusOK, err
	}
	*v = x
	return StatusOK, nil
}

// writeCompressedArray writes every element, zero included, as packed groups.
func writeCompressedArray[T common.Integer](s *Stream, tag TypeTag, v []T, signed bool) error {
	if ok, err := writeArrayHeader(s, tag, len(v)); !ok || err != nil {
		return err
	}
	buf := s.grow(0)
	for _, x := range v {
		buf = common.AppendCompressed(buf, x, signed)
	}
	s.wbuf = buf
	return s.bs.WriteBytes(buf)
}

func readCompressedArray[T common.Integer](s *Stream, tag TypeTag, dst []T, signed, discard bool) (int, Status, error) {
	count, st, err := s.beginArrayRead(tag, len(dst), 1, discard)
	if err != nil || st == StatusScopeEnd {
		return int(count), st, err
	}
	capacity := common.GroupCapacity[T]()
	for i := range int(count) {
		if discard {
			if err := s.skipCompressed(capacity); err != nil {
				return 0, StatusOK, err
			}
			continue
		}
		if dst[i], err = readCompressed[T](s, signed); err != nil {
			return 0, StatusOK, err
		}
	}
	return int(count), StatusOK, nil
}

// grow returns the scratch buffer resized to n bytes.
func (s *Stream) grow(n int) []byte {
	if cap(s.wbuf) < n {
		s.wbuf = make([]byte, n)
	}
	return s.wbuf[:n]
}

func (s *Stream) WriteBool(v bool) error {
	if v {
		return s.writeMetadata(MakeEmpty(TagBoolTrue))
	}
	return s.writeMetadata(MakeEmpty(TagBool))
}

func (s *Stream) ReadBool(v *bool) (Status, error) {
	t, st, err := s.beginRead(TagBool)
	if err != nil || st == StatusScopeEnd {
		return st, err
	}
	if t.IsEmpty() {
		*v = t&valueBit != 0
		return StatusOK, nil
	}
	if err := s.bs.ReadBytes(s.one[:]); err != nil {
		return StatusOK, err
	}
	*v = s.one[0] != 0
	return StatusOK, nil
}

func (s *Stream) WriteChar(v int8) error   { return writeFixedValue(s, TagChar, v, charCodec) }
func (s *Stream) WriteUChar(v uint8) error { return writeFixedValue(s, TagUChar, v, ucharCodec) }
func (s *Stream) WriteGuid(v uuid.UUID) error {
	return writeFixedValue(s, TagGuid, v, guidCodec)
}
func (s *Stream) WriteDouble(v float64) error { return writeFixedValue(s, TagDouble, v, doubleCodec) }

func (s *Stream) WriteShort(v int16) error   { return writeCompressedValue(s, TagShort, v, true) }
func (s *Stream) WriteUShort(v uint16) error { return writeCompressedValue(s, TagUShort, v, false) }
func (s *Stream) WriteInt32(v int32) error   { return writeCompressedValue(s, TagInt32, v, true) }
func (s *Stream) WriteUInt32(v uint32) error { return writeCompressedValue(s, TagUInt32, v, false) }
func (s *Stream) WriteInt64(v int64) error   { return writeCompressedValue(s, TagInt64, v, true) }
func (s *Stream) WriteUInt64(v uint64) error { return writeCompressedValue(s, TagUInt64, v, false) }

func (s *Stream) ReadChar(v *int8) (Status, error)   { return readFixedValue(s, TagChar, v, charCodec) }
func (s *Stream) ReadUChar(v *uint8) (Status, error) { return readFixedValue(s, TagUChar, v, ucharCodec) }
func (s *Stream) ReadGuid(v *uuid.UUID) (Status, error) {
	return readFixedValue(s, TagGuid, v, guidCodec)
}
func (s *Stream) ReadDouble(v *float64) (Status, error) {
	return readFixedValue(s, TagDouble, v, doubleCodec)
}

func (s *Stream) ReadShort(v *int16) (Status, error) {
	return readCompressedValue(s, TagShort, v, true)
}
func (s *Stream) ReadUShort(v *uint16) (Status, error) {
	return readCompressedValue(s, TagUShort, v, false)
}
func (s *Stream) ReadInt32(v *int32) (Status, error) {
	return readCompressedValue(s, TagInt32, v, true)
}
func (s *Stream) ReadUInt32(v *uint32) (Status, error) {
	return readCompressedValue(s, TagUInt32, v, false)
}
func (s *Stream) ReadInt64(v *int64) (Status, error) {
	return readCompressedValue(s, TagInt64, v, true)
}
func (s *Stream) ReadUInt64(v *uint64) (Status, error) {
	return readCompressedValue(s, TagUInt64, v, false)
}

// Arrays. Reads return the element count; when dst is too short the count
// comes back with a *BufferTooSmallError and nothing is consumed.

func (s *Stream) WriteBoolArray(v []bool) error   { return writeFixedArray(s, TagBool, v, boolCodec) }
func (s *Stream) WriteCharArray(v []int8) error   { return writeFixedArray(s, TagChar, v, charCodec) }
func (s *Stream) WriteUCharArray(v []uint8) error { return writeFixedArray(s, TagUChar, v, ucharCodec) }
func (s *Stream) WriteGuidArray(v []uuid.UUID) error {
	return writeFixedArray(s, TagGuid, v, guidCodec)
}
func (s *Stream) WriteDoubleArray(v []float64) error {
	return writeFixedArray(s, TagDouble, v, doubleCodec)
}

// WriteWString writes UTF-16 code units.
func (s *Stream) WriteWString(v []uint16) error { return writeFixedArray(s, TagWString, v, wcharCodec) }

func (s *Stream) WriteShortArray(v []int16) error {
	return writeCompressedArray(s, TagShort, v, true)
}
func (s *Stream) WriteUShortArray(v []uint16) error {
	return writeCompressedArray(s, TagUShort, v, false)
}
func (s *Stream) WriteInt32Array(v []int32) error {
	return writeCompressedArray(s, TagInt32, v, true)
}
func (s *Stream) WriteUInt32Array(v []uint32) error {
	return writeCompressedArray(s, TagUInt32, v, false)
}
func (s *Stream) WriteInt64Array(v []int64) error {
	return writeCompressedArray(s, TagInt64, v, true)
}
func (s *Stream) WriteUInt64Array(v []uint64) error {
	return writeCompressedArray(s, TagUInt64, v, false)
}

func (s *Stream) ReadBoolArray(dst []bool) (int, Status, error) {
	return readFixedArray(s, TagBool, dst, boolCodec, false)
}
func (s *Stream) ReadCharArray(dst []int8) (int, Status, error) {
	return readFixedArray(s, TagChar, dst, charCodec, false)
}
func (s *Stream) ReadUCharArray(dst []uint8) (int, Status, error) {
	return readFixedArray(s, TagUChar, dst, ucharCodec, false)
}
func (s *Stream) ReadGuidArray(dst []uuid.UUID) (int, Status, error) {
	return readFixedArray(s, TagGuid, dst, guidCodec, false)
}
func (s *Stream) ReadDoubleArray(dst []float64) (int, Status, error) {
	return readFixedArray(s, TagDouble, dst, doubleCodec, false)
}
func (s *Stream) ReadWString(dst []uint16) (int, Status, error) {
	return readFixedArray(s, TagWString, dst, wcharCodec, false)
}
func (s *Stream) ReadShortArray(dst []int16) (int, Status, error) {
	return readCompressedArray(s, TagShort, dst, true, false)
}
func (s *Stream) ReadUShortArray(dst []uint16) (int, Status, error) {
	return readCompressedArray(s, TagUShort, dst, false, false)
}
func (s *Stream) ReadInt32Array(dst []int32) (int, Status, error) {
	return readCompressedArray(s, TagInt32, dst, true, false)
}
func (s *Stream) ReadUInt32Array(dst []uint32) (int, Status, error) {
	return readCompressedArray(s, TagUInt32, dst, false, false)
}
func (s *Stream) ReadInt64Array(dst []int64) (int, Status, error) {
	return readCompressedArray(s, TagInt64, dst, true, false)
}
func (s *Stream) ReadUInt64Array(dst []uint64) (int, Status, error) {
	return readCompressedArray(s, TagUInt64, dst, false, false)
}
