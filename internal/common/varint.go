package common

import (
	"errors"
	"io"
	"unsafe"
)

// MaxGroups is the group capacity of a 64-bit integer.
const MaxGroups = 10

// ErrVarintOverflow is returned when a sequence carries more continuation
// groups than the target type can ever need.
var ErrVarintOverflow = errors.New("varint: too many groups for type")

// Integer is the set of fixed-width integers the codec packs.
type Integer interface {
	~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64
}

// BitWidth returns the width of T in bits.
func BitWidth[T Integer]() int {
	var z T
	return int(unsafe.Sizeof(z)) * 8
}

// GroupCapacity returns ceil(bits/7) for T.
func GroupCapacity[T Integer]() int {
	return (BitWidth[T]() + 6) / 7
}

// Compress packs v into the tail of scratch and returns the encoded groups,
// most significant first, plus the number of payload bytes used.
// Zero returns a single 0x00 byte and n == 0.
func Compress[T Integer](v T, signed bool, scratch *[MaxGroups]byte) (b []byte, n int) {
	capacity := GroupCapacity[T]()
	if v == 0 {
		scratch[capacity-1] = 0
		return scratch[capacity-1 : capacity], 0
	}
	shift := uint(64 - BitWidth[T]())
	i := capacity
	more := byte(0)
	if signed {
		rem := int64(uint64(v)<<shift) >> shift
		var target int64
		if rem < 0 {
			target = -1
		}
		sign := byte(target) & 0x40
		for {
			i--
			c := byte(rem)&0x7F | more
			scratch[i] = c
			more = 0x80
			rem >>= 7
			if rem == target && c&0x40 == sign {
				break
			}
		}
	} else {
		rem := uint64(v) << shift >> shift
		for {
			i--
			scratch[i] = byte(rem)&0x7F | more
			more = 0x80
			rem >>= 7
			if rem == 0 {
				break
			}
		}
	}
	return scratch[i:capacity], capacity - i
}

// AppendCompressed appends the encoding of v to dst.
func AppendCompressed[T Integer](dst []byte, v T, signed bool) []byte {
	var scratch [MaxGroups]byte
	b, _ := Compress(v, signed, &scratch)
	return append(dst, b...)
}

// Decompress reads one packed value from r. Read errors are returned as-is.
func Decompress[T Integer](r io.ByteReader, signed bool) (T, error) {
	capacity := GroupCapacity[T]()
	c, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	var acc uint64
	if signed && c&0x40 != 0 {
		acc = ^uint64(0)
	}
	for i := 1; ; i++ {
		acc = acc<<7 | uint64(c&0x7F)
		if c&0x80 == 0 {
			return T(acc), nil
		}
		if i >= capacity {
			return 0, ErrVarintOverflow
		}
		if c, err = r.ReadByte(); err != nil {
			return 0, err
		}
	}
}

// Skip advances r past one packed value of at most capacity groups.
func Skip(r io.ByteReader, capacity int) error {
	for i := 0; i < capacity; i++ {
		c, err := r.ReadByte()
		if err != nil {
			return err
		}
		if c&0x80 == 0 {
			return nil
		}
	}
	return ErrVarintOverflow
}
