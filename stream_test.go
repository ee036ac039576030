package scopewire_test

import (
	"errors"
	"io"
	"math"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/scopewire"
	"github.com/rawbytedev/scopewire/pkg/memstream"
)

type kindValues struct {
	B   bool
	C   int8
	UC  uint8
	S   int16
	US  uint16
	I   int32
	UI  uint32
	L   int64
	UL  uint64
	G   uuid.UUID
	D   float64
	Str string
	Bs  []bool
	Cs  []int8
	UCs []uint8
	Ss  []int16
	USs []uint16
	Is  []int32
	UIs []uint32
	Ls  []int64
	ULs []uint64
	Gs  []uuid.UUID
	Ds  []float64
}

// normalized maps empty slices to nil; the wire does not distinguish them.
func (v kindValues) normalized() kindValues {
	rv := reflect.ValueOf(&v).Elem()
	for i := range rv.NumField() {
		f := rv.Field(i)
		if f.Kind() == reflect.Slice && f.Len() == 0 {
			f.Set(reflect.Zero(f.Type()))
		}
	}
	return v
}

func writeKinds(s *scopewire.Stream, v *kindValues) error {
	return errors.Join(
		s.WriteBool(v.B), s.WriteChar(v.C), s.WriteUChar(v.UC),
		s.WriteShort(v.S), s.WriteUShort(v.US), s.WriteInt32(v.I), s.WriteUInt32(v.UI),
		s.WriteInt64(v.L), s.WriteUInt64(v.UL), s.WriteGuid(v.G), s.WriteDouble(v.D),
		s.WriteString(v.Str),
		s.WriteBoolArray(v.Bs), s.WriteCharArray(v.Cs), s.WriteUCharArray(v.UCs),
		s.WriteShortArray(v.Ss), s.WriteUShortArray(v.USs), s.WriteInt32Array(v.Is),
		s.WriteUInt32Array(v.UIs), s.WriteInt64Array(v.Ls), s.WriteUInt64Array(v.ULs),
		s.WriteGuidArray(v.Gs), s.WriteDoubleArray(v.Ds),
	)
}

func readInto[T any](err *error, dst *[]T, read func([]T) (int, scopewire.Status, error)) {
	if *err != nil {
		return
	}
	*dst, _, *err = scopewire.ReadSlice(read)
}

func readKinds(s *scopewire.Stream, v *kindValues) error {
	var err error
	scalar := func(_ scopewire.Status, e error) {
		if err == nil {
			err = e
		}
	}
	scalar(s.ReadBool(&v.B))
	scalar(s.ReadChar(&v.C))
	scalar(s.ReadUChar(&v.UC))
	scalar(s.ReadShort(&v.S))
	scalar(s.ReadUShort(&v.US))
	scalar(s.ReadInt32(&v.I))
	scalar(s.ReadUInt32(&v.UI))
	scalar(s.ReadInt64(&v.L))
	scalar(s.ReadUInt64(&v.UL))
	scalar(s.ReadGuid(&v.G))
	scalar(s.ReadDouble(&v.D))
	scalar(s.ReadStringTo(&v.Str))
	readInto(&err, &v.Bs, s.ReadBoolArray)
	readInto(&err, &v.Cs, s.ReadCharArray)
	readInto(&err, &v.UCs, s.ReadUCharArray)
	readInto(&err, &v.Ss, s.ReadShortArray)
	readInto(&err, &v.USs, s.ReadUShortArray)
	readInto(&err, &v.Is, s.ReadInt32Array)
	readInto(&err, &v.UIs, s.ReadUInt32Array)
	readInto(&err, &v.Ls, s.ReadInt64Array)
	readInto(&err, &v.ULs, s.ReadUInt64Array)
	readInto(&err, &v.Gs, s.ReadGuidArray)
	readInto(&err, &v.Ds, s.ReadDoubleArray)
	return err
}

func newWriter() (*scopewire.Stream, *memstream.Stream) {
	ms := memstream.New()
	return scopewire.NewStream(ms, scopewire.Options{}), ms
}

func newReader(data []byte, ext ...[]byte) *scopewire.Stream {
	return scopewire.NewStream(memstream.FromBytes(data, ext...), scopewire.Options{})
}

func TestScalarAndArrayRoundTrip(t *testing.T) {
	f := func(v kindValues) bool {
		s, ms := newWriter()
		if err := writeKinds(s, &v); err != nil {
			t.Log(err)
			return false
		}
		r := newReader(ms.Bytes())
		var got kindValues
		if err := readKinds(r, &got); err != nil {
			t.Log(err)
			return false
		}
		return r.Position() == r.Size() && reflect.DeepEqual(v.normalized(), got.normalized())
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestDefaultsUseEmptyTags(t *testing.T) {
	s, ms := newWriter()
	require.NoError(t, writeKinds(s, &kindValues{}))
	for i, b := range ms.Bytes() {
		tag := scopewire.TypeTag(b)
		assert.Truef(t, tag.IsEmpty(), "byte %d: %s is not empty", i, tag)
	}
	assert.Len(t, ms.Bytes(), 23)
}

func TestKnownEncodings(t *testing.T) {
	tests := []struct {
		name  string
		write func(s *scopewire.Stream) error
		want  []byte
	}{
		{"int32 zero", func(s *scopewire.Stream) error { return s.WriteInt32(0) }, []byte{0x86}},
		{"int32 300", func(s *scopewire.Stream) error { return s.WriteInt32(300) }, []byte{0x06, 0x82, 0x2C}},
		{"int32 -1", func(s *scopewire.Stream) error { return s.WriteInt32(-1) }, []byte{0x06, 0x7F}},
		{"uint32 64", func(s *scopewire.Stream) error { return s.WriteUInt32(64) }, []byte{0x07, 0x40}},
		{"bool true", func(s *scopewire.Stream) error { return s.WriteBool(true) }, []byte{0xA1}},
		{"bool false", func(s *scopewire.Stream) error { return s.WriteBool(false) }, []byte{0x81}},
		{"nil guid", func(s *scopewire.Stream) error { return s.WriteGuid(uuid.Nil) }, []byte{0x8A}},
		{"zero double", func(s *scopewire.Stream) error { return s.WriteDouble(0) }, []byte{0x8B}},
		{"empty string", func(s *scopewire.Stream) error { return s.WriteString("") }, []byte{0xCC}},
		{"char", func(s *scopewire.Stream) error { return s.WriteChar(-2) }, []byte{0x02, 0xFE}},
		{"string", func(s *scopewire.Stream) error { return s.WriteString("hi") }, []byte{0x4C, 0x02, 'h', 0, 'i', 0}},
		{
			"int32 array keeps zeros",
			func(s *scopewire.Stream) error { return s.WriteInt32Array([]int32{0, 300}) },
			[]byte{0x46, 0x02, 0x00, 0x82, 0x2C},
		},
		{"nil pointer", func(s *scopewire.Stream) error { return s.WritePointer(nil) }, []byte{0x8E}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ms := newWriter()
			require.NoError(t, tt.write(s))
			assert.Equal(t, tt.want, ms.Bytes())
		})
	}
}

func TestNegativeZeroDouble(t *testing.T) {
	s, ms := newWriter()
	neg := math.Copysign(0, -1)
	require.NoError(t, s.WriteDouble(neg))
	require.Len(t, ms.Bytes(), 9)
	assert.Equal(t, byte(scopewire.TagDouble), ms.Bytes()[0])

	var got float64
	_, err := newReader(ms.Bytes()).ReadDouble(&got)
	require.NoError(t, err)
	assert.True(t, math.Signbit(got))
}

func TestArrayBufferTooSmall(t *testing.T) {
	s, ms := newWriter()
	require.NoError(t, s.WriteInt64Array([]int64{1, -2, 3}))

	r := newReader(ms.Bytes())
	dst := make([]int64, 2)
	n, _, err := r.ReadInt64Array(dst)
	require.ErrorIs(t, err, scopewire.ErrBufferTooSmall)
	var small *scopewire.BufferTooSmallError
	require.ErrorAs(t, err, &small)
	assert.Equal(t, 3, small.Required)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint32(0), r.Position())

	dst = make([]int64, n)
	n, st, err := r.ReadInt64Array(dst)
	require.NoError(t, err)
	assert.Equal(t, scopewire.StatusOK, st)
	assert.Equal(t, []int64{1, -2, 3}, dst[:n])
}

func TestMetadataMismatch(t *testing.T) {
	s, ms := newWriter()
	require.NoError(t, s.WriteInt32(5))

	var l int64
	_, err := newReader(ms.Bytes()).ReadInt64(&l)
	require.ErrorIs(t, err, scopewire.ErrUnexpectedMetadataRead)

	_, _, err = newReader(ms.Bytes()).ReadInt32Array(make([]int32, 4))
	require.ErrorIs(t, err, scopewire.ErrUnexpectedMetadataRead)
}

func TestReadAtScopeEndLeavesValue(t *testing.T) {
	r := newReader([]byte{byte(scopewire.TagScopeEnd)})
	v := int32(42)
	st, err := r.ReadInt32(&v)
	require.NoError(t, err)
	assert.Equal(t, scopewire.StatusScopeEnd, st)
	assert.Equal(t, int32(42), v)
	assert.Equal(t, uint32(0), r.Position())

	n, st, err := r.ReadGuidArray(nil)
	require.NoError(t, err)
	assert.Equal(t, scopewire.StatusScopeEnd, st)
	assert.Zero(t, n)
}

func TestMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"overlong varint", []byte{0x06, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80}, scopewire.ErrInvalidStreamFormat},
		{"invalid tag", []byte{0x10}, scopewire.ErrInvalidStreamFormat},
		{"truncated varint", []byte{0x06, 0x82}, io.ErrUnexpectedEOF},
		{"truncated tag", nil, io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v int32
			_, err := newReader(tt.data).ReadInt32(&v)
			require.ErrorIs(t, err, tt.want)
		})
	}

	// a count larger than the stream cannot be satisfied
	var v []int32
	_, _, err := newReader([]byte{0x46, 0x82, 0x2C, 0x01}).ReadInt32Array(v)
	require.ErrorIs(t, err, scopewire.ErrInvalidStreamFormat)
}

func TestRawHelpers(t *testing.T) {
	s, ms := newWriter()
	require.NoError(t, s.WriteUInt32WithNoMetadata(300))
	require.NoError(t, s.WriteRawBytes([]byte{0xAA}))

	r := newReader(ms.Bytes())
	n, err := r.ReadUInt32WithNoMetadata()
	require.NoError(t, err)
	assert.Equal(t, uint32(300), n)
	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0xAA), b)
	_, err = r.ReadByte()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	require.NoError(t, r.SeekToBegin())
	assert.Equal(t, uint32(0), r.Position())
	require.NoError(t, r.SeekToEnd())
	assert.Equal(t, r.Size(), r.Position())
}

func TestStringsAndSlices(t *testing.T) {
	s, ms := newWriter()
	require.NoError(t, s.WriteString("héllo, 世界 🌍"))
	require.NoError(t, s.WriteUInt64Array([]uint64{math.MaxUint64, 0, 1}))
	require.NoError(t, s.WriteDoubleArray(nil))

	r := newReader(ms.Bytes())
	str, st, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, scopewire.StatusOK, st)
	assert.Equal(t, "héllo, 世界 🌍", str)

	u, _, err := scopewire.ReadSlice(r.ReadUInt64Array)
	require.NoError(t, err)
	assert.Equal(t, []uint64{math.MaxUint64, 0, 1}, u)

	d, _, err := scopewire.ReadSlice(r.ReadDoubleArray)
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.Equal(t, r.Size(), r.Position())
}

func TestScopeCallsNeedAnObject(t *testing.T) {
	s, _ := newWriter()
	require.NoError(t, s.WriteStartType())
	require.ErrorIs(t, s.WriteEndType(), scopewire.ErrInsufficientResources)
	require.ErrorIs(t, s.WriteByteArrayNoCopy([][]byte{{1}}), scopewire.ErrInsufficientResources)
	_, err := s.CurrentScope()
	require.ErrorIs(t, err, scopewire.ErrInsufficientResources)
	assert.Zero(t, s.Depth())
}
