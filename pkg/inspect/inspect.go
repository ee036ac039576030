// Package inspect decodes scopewire bytes without knowing the types that
// wrote them. Walk flattens the tag stream into Nodes for display and
// Validate checks the framing rules a reader depends on.
package inspect

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf16"

	"github.com/gofrs/uuid/v5"

	"github.com/rawbytedev/scopewire"
	"github.com/rawbytedev/scopewire/internal/common"
)

// Node is one tag in the stream, in encounter order. Children of objects
// and arrays follow their parent with Depth one higher.
type Node struct {
	Offset int
	Depth  int
	Tag    scopewire.TypeTag

	// Object nodes.
	Header   scopewire.ObjectHeader
	TypeInfo []byte

	// Scope index for ScopeBegin and ScopeEnd nodes.
	Scope int

	// Element count for arrays and no-copy references.
	Count int

	// Decoded payload: the Go value for scalars, a slice for fixed and
	// packed arrays, a string for WString and the segment indexes for
	// no-copy references.
	Value any
}

func (n Node) String() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", n.Depth))
	b.WriteString(n.Tag.String())
	switch {
	case n.Tag == scopewire.TagScopeBegin || n.Tag == scopewire.TagScopeEnd:
		fmt.Fprintf(&b, " #%d", n.Scope)
	case n.Tag == scopewire.TagObject:
		fmt.Fprintf(&b, " size=%d", n.Header.Size)
		if n.Header.Has(scopewire.ContainsExtensionData) {
			b.WriteString(" ext")
		}
		if n.TypeInfo != nil {
			fmt.Fprintf(&b, " type=%q", n.TypeInfo)
		}
	case n.Tag.IsArray() && n.Tag.Kind() == scopewire.TagWString:
		fmt.Fprintf(&b, " %q", n.Value)
	case n.Tag.IsArray() || n.Tag.IsOfBaseKind(scopewire.TagByteArrayNoCopy):
		fmt.Fprintf(&b, " [%d]", n.Count)
		if n.Value != nil {
			fmt.Fprintf(&b, " %v", n.Value)
		}
	case n.Value != nil:
		fmt.Fprintf(&b, " %v", n.Value)
	}
	return b.String()
}

// Walker holds the limits applied while walking.
type Walker struct {
	// MaxDepth bounds object nesting. Zero means scopewire.DefaultMaxDepth.
	MaxDepth int
	// MaxTypeInfoLength bounds type descriptors. Zero means the default.
	MaxTypeInfoLength uint32
	// Segments is the number of no-copy buffers that travel with the data.
	// References at or past it are rejected. Negative disables the check.
	Segments int
}

// Walk decodes every top-level value in data with default limits and no
// segment check.
func Walk(data []byte) ([]Node, error) {
	return Walker{Segments: -1}.Walk(data)
}

// Validate reports the first framing error in data.
func Validate(data []byte) error {
	_, err := Walk(data)
	return err
}

// Walk decodes data. On error the nodes decoded so far are returned with it.
func (w Walker) Walk(data []byte) ([]Node, error) {
	if w.MaxDepth <= 0 {
		w.MaxDepth = scopewire.DefaultMaxDepth
	}
	if w.MaxTypeInfoLength == 0 {
		w.MaxTypeInfoLength = scopewire.DefaultMaxTypeInfoLength
	}
	st := &state{w: w, c: cursor{data: data}}
	for st.c.pos < len(data) {
		if _, err := st.value(0); err != nil {
			return st.nodes, err
		}
	}
	return st.nodes, nil
}

type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) ReadByte() (byte, error) {
	if c.pos >= len(c.data) {
		return 0, io.ErrUnexpectedEOF
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) take(n uint64) ([]byte, error) {
	if n > uint64(len(c.data)-c.pos) {
		return nil, io.ErrUnexpectedEOF
	}
	b := c.data[c.pos : c.pos+int(n)]
	c.pos += int(n)
	return b, nil
}

func (c *cursor) remaining() int { return len(c.data) - c.pos }

type state struct {
	w       Walker
	c       cursor
	nodes   []Node
	objects int
}

func formatError(offset int, format string, args ...any) error {
	return fmt.Errorf("%w: offset %d: %s", scopewire.ErrInvalidStreamFormat, offset, fmt.Sprintf(format, args...))
}

func (st *state) emit(n Node) {
	st.nodes = append(st.nodes, n)
}

func (st *state) count() (uint32, error) {
	off := st.c.pos
	v, err := common.Decompress[uint32](&st.c, false)
	if errors.Is(err, common.ErrVarintOverflow) {
		return 0, formatError(off, "%v", err)
	}
	return v, err
}

func packed[T common.Integer](c *cursor, signed bool) (T, error) {
	off := c.pos
	v, err := common.Decompress[T](c, signed)
	if errors.Is(err, common.ErrVarintOverflow) {
		return 0, formatError(off, "%v", err)
	}
	return v, err
}

// value decodes one field at the cursor and reports whether it references
// no-copy buffers.
func (st *state) value(depth int) (bool, error) {
	off := st.c.pos
	b, err := st.c.ReadByte()
	if err != nil {
		return false, err
	}
	t := scopewire.TypeTag(b)
	if !t.Valid() {
		return false, formatError(off, "invalid tag 0x%02x", b)
	}
	if t.IsSentinel() {
		return false, formatError(off, "unexpected %s", t)
	}
	n := Node{Offset: off, Depth: depth, Tag: t}
	if t.IsArray() {
		return st.array(n)
	}

	switch t.Kind() {
	case scopewire.TagObject:
		if t.IsEmpty() {
			return false, formatError(off, "empty object tag")
		}
		return st.object(depth)
	case scopewire.TagPointer:
		st.emit(n)
		if t.IsEmpty() {
			return false, nil
		}
		off := st.c.pos
		if b, err := st.c.ReadByte(); err != nil {
			return false, err
		} else if scopewire.TypeTag(b) != scopewire.TagObject {
			return false, formatError(off, "pointer target is %s", scopewire.TypeTag(b))
		}
		return st.object(depth + 1)
	case scopewire.TagByteArrayNoCopy:
		if t.IsEmpty() {
			st.emit(n)
			return true, nil
		}
		return true, st.noCopy(n)
	case scopewire.TagWString:
		return false, formatError(off, "WString without array bit")
	}

	if t.IsEmpty() {
		n.Value = zero(t)
		st.emit(n)
		return false, nil
	}
	if n.Value, err = st.scalar(t.Kind()); err != nil {
		return false, err
	}
	st.emit(n)
	return false, nil
}

func zero(t scopewire.TypeTag) any {
	switch t.Kind() {
	case scopewire.TagBool:
		return t == scopewire.MakeEmpty(scopewire.TagBoolTrue)
	case scopewire.TagChar:
		return int8(0)
	case scopewire.TagUChar:
		return uint8(0)
	case scopewire.TagShort:
		return int16(0)
	case scopewire.TagUShort:
		return uint16(0)
	case scopewire.TagInt32:
		return int32(0)
	case scopewire.TagUInt32:
		return uint32(0)
	case scopewire.TagInt64:
		return int64(0)
	case scopewire.TagUInt64:
		return uint64(0)
	case scopewire.TagGuid:
		return uuid.Nil
	case scopewire.TagDouble:
		return float64(0)
	}
	return nil
}

func (st *state) scalar(k scopewire.TypeTag) (any, error) {
	c := &st.c
	switch k {
	case scopewire.TagBool:
		b, err := c.ReadByte()
		return b != 0, err
	case scopewire.TagChar:
		b, err := c.ReadByte()
		return int8(b), err
	case scopewire.TagUChar:
		return c.ReadByte()
	case scopewire.TagShort:
		return packed[int16](c, true)
	case scopewire.TagUShort:
		return packed[uint16](c, false)
	case scopewire.TagInt32:
		return packed[int32](c, true)
	case scopewire.TagUInt32:
		return packed[uint32](c, false)
	case scopewire.TagInt64:
		return packed[int64](c, true)
	case scopewire.TagUInt64:
		return packed[uint64](c, false)
	case scopewire.TagGuid:
		b, err := c.take(uuid.Size)
		if err != nil {
			return nil, err
		}
		return uuid.FromBytesOrNil(b), nil
	case scopewire.TagDouble:
		b, err := c.take(8)
		if err != nil {
			return nil, err
		}
		return decodeDouble(b), nil
	}
	return nil, formatError(c.pos, "no scalar form for %s", k)
}

var fixedSize = map[scopewire.TypeTag]uint64{
	scopewire.TagBool:    1,
	scopewire.TagChar:    1,
	scopewire.TagUChar:   1,
	scopewire.TagGuid:    uuid.Size,
	scopewire.TagDouble:  8,
	scopewire.TagWString: 2,
}

func (st *state) array(n Node) (bool, error) {
	k := n.Tag.Kind()
	if k == scopewire.TagByteArrayNoCopy {
		return false, formatError(n.Offset, "no-copy references have no array form")
	}
	if n.Tag.IsEmpty() {
		if k == scopewire.TagWString {
			n.Value = ""
		}
		st.emit(n)
		return false, nil
	}
	cnt, err := st.count()
	if err != nil {
		return false, err
	}
	n.Count = int(cnt)
	elem := uint64(1)
	if size, ok := fixedSize[k]; ok {
		elem = size
	} else if k == scopewire.TagObject {
		elem = scopewire.HeaderSize + 2
	}
	if uint64(cnt)*elem > uint64(st.c.remaining()) {
		return false, formatError(n.Offset, "%s of %d elements exceeds remaining %d bytes", n.Tag, cnt, st.c.remaining())
	}

	switch k {
	case scopewire.TagObject, scopewire.TagPointer:
		st.emit(n)
		ext := false
		for range cnt {
			var sub bool
			if k == scopewire.TagObject {
				sub, err = st.arrayObject(n.Depth + 1)
			} else {
				sub, err = st.arrayPointer(n.Depth + 1)
			}
			if err != nil {
				return false, err
			}
			ext = ext || sub
		}
		return ext, nil
	}

	if n.Value, err = st.elements(k, int(cnt)); err != nil {
		return false, err
	}
	st.emit(n)
	return false, nil
}

func (st *state) arrayObject(depth int) (bool, error) {
	off := st.c.pos
	b, err := st.c.ReadByte()
	if err != nil {
		return false, err
	}
	if scopewire.TypeTag(b) != scopewire.TagObject {
		return false, formatError(off, "object array element is %s", scopewire.TypeTag(b))
	}
	return st.object(depth)
}

func (st *state) arrayPointer(depth int) (bool, error) {
	if st.c.remaining() == 0 {
		return false, io.ErrUnexpectedEOF
	}
	if t := scopewire.TypeTag(st.c.data[st.c.pos]); t.Kind() != scopewire.TagPointer || t.IsArray() || t.IsSentinel() {
		return false, formatError(st.c.pos, "pointer array element is %s", t)
	}
	return st.value(depth)
}

func (st *state) elements(k scopewire.TypeTag, cnt int) (any, error) {
	c := &st.c
	if size, ok := fixedSize[k]; ok {
		raw, err := c.take(uint64(cnt) * size)
		if err != nil {
			return nil, err
		}
		switch k {
		case scopewire.TagBool:
			out := make([]bool, cnt)
			for i := range out {
				out[i] = raw[i] != 0
			}
			return out, nil
		case scopewire.TagChar:
			out := make([]int8, cnt)
			for i := range out {
				out[i] = int8(raw[i])
			}
			return out, nil
		case scopewire.TagUChar:
			return append([]byte(nil), raw...), nil
		case scopewire.TagGuid:
			out := make([]uuid.UUID, cnt)
			for i := range out {
				copy(out[i][:], raw[i*uuid.Size:])
			}
			return out, nil
		case scopewire.TagDouble:
			out := make([]float64, cnt)
			for i := range out {
				out[i] = decodeDouble(raw[i*8:])
			}
			return out, nil
		case scopewire.TagWString:
			units := make([]uint16, cnt)
			for i := range units {
				units[i] = binary.LittleEndian.Uint16(raw[2*i:])
			}
			return string(utf16.Decode(units)), nil
		}
	}
	switch k {
	case scopewire.TagShort:
		return packedSlice[int16](c, cnt, true)
	case scopewire.TagUShort:
		return packedSlice[uint16](c, cnt, false)
	case scopewire.TagInt32:
		return packedSlice[int32](c, cnt, true)
	case scopewire.TagUInt32:
		return packedSlice[uint32](c, cnt, false)
	case scopewire.TagInt64:
		return packedSlice[int64](c, cnt, true)
	case scopewire.TagUInt64:
		return packedSlice[uint64](c, cnt, false)
	}
	return nil, formatError(c.pos, "no array form for %s", k)
}

func decodeDouble(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func packedSlice[T common.Integer](c *cursor, cnt int, signed bool) ([]T, error) {
	out := make([]T, cnt)
	for i := range out {
		v, err := packed[T](c, signed)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (st *state) noCopy(n Node) error {
	cnt, err := st.count()
	if err != nil {
		return err
	}
	if uint64(cnt) > uint64(st.c.remaining()) {
		return formatError(n.Offset, "no-copy array of %d buffers exceeds remaining %d bytes", cnt, st.c.remaining())
	}
	idx := make([]uint32, cnt)
	for i := range idx {
		off := st.c.pos
		if idx[i], err = st.count(); err != nil {
			return err
		}
		if st.w.Segments >= 0 && int64(idx[i]) >= int64(st.w.Segments) {
			return formatError(off, "no-copy index %d with %d segments attached", idx[i], st.w.Segments)
		}
	}
	n.Count = int(cnt)
	n.Value = idx
	st.emit(n)
	return nil
}

// object decodes an object whose Object tag has been consumed. The header
// size and extension flag must agree with the contents.
func (st *state) object(depth int) (bool, error) {
	st.objects++
	defer func() { st.objects-- }()
	if st.objects > st.w.MaxDepth {
		return false, fmt.Errorf("%w: nesting deeper than %d", scopewire.ErrInsufficientResources, st.w.MaxDepth)
	}
	tagOff := st.c.pos - 1
	start := st.c.pos
	raw, err := st.c.take(scopewire.HeaderSize)
	if err != nil {
		return false, err
	}
	header, err := scopewire.ParseHeader(raw)
	if err != nil {
		return false, err
	}
	if uint64(header.Size) < scopewire.HeaderSize+1 || uint64(start)+uint64(header.Size) > uint64(len(st.c.data)) {
		return false, formatError(start, "object declares %d bytes", header.Size)
	}
	n := Node{Offset: tagOff, Depth: depth, Tag: scopewire.TagObject, Header: header}
	if header.Has(scopewire.ContainsTypeInformation) {
		l, err := st.count()
		if err != nil {
			return false, err
		}
		if l == 0 || l > st.w.MaxTypeInfoLength {
			return false, formatError(start, "type information length %d", l)
		}
		if n.TypeInfo, err = st.c.take(uint64(l)); err != nil {
			return false, err
		}
	}
	st.emit(n)

	ext := false
	for scope := 0; ; scope++ {
		off := st.c.pos
		b, err := st.c.ReadByte()
		if err != nil {
			return false, err
		}
		switch scopewire.TypeTag(b) {
		case scopewire.TagObjectEnd:
			st.emit(Node{Offset: off, Depth: depth, Tag: scopewire.TagObjectEnd})
			if got := uint32(st.c.pos - start); got != header.Size {
				return false, formatError(start, "object header says %d bytes, contents span %d", header.Size, got)
			}
			if ext && !header.Has(scopewire.ContainsExtensionData) {
				return false, formatError(start, "object holds no-copy buffers but is not flagged")
			}
			return ext || header.Has(scopewire.ContainsExtensionData), nil
		case scopewire.TagScopeBegin:
			st.emit(Node{Offset: off, Depth: depth + 1, Tag: scopewire.TagScopeBegin, Scope: scope})
			sub, err := st.scope(depth+1, scope)
			if err != nil {
				return false, err
			}
			ext = ext || sub
		default:
			return false, formatError(off, "expected ScopeBegin or ObjectEnd, got %s", scopewire.TypeTag(b))
		}
	}
}

func (st *state) scope(depth, index int) (bool, error) {
	ext := false
	for {
		if st.c.remaining() == 0 {
			return false, io.ErrUnexpectedEOF
		}
		off := st.c.pos
		if scopewire.TypeTag(st.c.data[off]) == scopewire.TagScopeEnd {
			st.c.pos++
			st.emit(Node{Offset: off, Depth: depth, Tag: scopewire.TagScopeEnd, Scope: index})
			return ext, nil
		}
		sub, err := st.value(depth + 1)
		if err != nil {
			return false, err
		}
		ext = ext || sub
	}
}
