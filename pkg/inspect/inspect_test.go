package inspect_test

import (
	"io"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/scopewire"
	"github.com/rawbytedev/scopewire/pkg/inspect"
	"github.com/rawbytedev/scopewire/pkg/memstream"
)

type point struct {
	scopewire.Object
	X int32
}

func (p *point) Write(s *scopewire.Stream) error {
	return s.WriteScope(func() error { return s.WriteInt32(p.X) })
}

func (p *point) Read(s *scopewire.Stream) error {
	_, err := s.ReadScope(func() error {
		_, err := s.ReadInt32(&p.X)
		return err
	})
	return err
}

// record exercises every field shape the walker knows.
type record struct {
	scopewire.Object
	Name   string
	Flag   bool
	ID     uuid.UUID
	Ratio  float64
	Counts []uint16
	Origin *point
	Extra  []scopewire.Serializable
	Parts  [][]byte
}

func (r *record) TypeInformation() []byte { return []byte("test.record") }

func (r *record) Write(s *scopewire.Stream) error {
	if err := s.WriteScope(func() error {
		return writeAll(
			func() error { return s.WriteString(r.Name) },
			func() error { return s.WriteBool(r.Flag) },
			func() error { return s.WriteGuid(r.ID) },
			func() error { return s.WriteDouble(r.Ratio) },
			func() error { return s.WriteUShortArray(r.Counts) },
			func() error { return s.WritePointer(r.Origin) },
			func() error { return s.WritePointerArray(r.Extra) },
		)
	}); err != nil {
		return err
	}
	return s.WriteScope(func() error { return s.WriteByteArrayNoCopy(r.Parts) })
}

func (r *record) Read(*scopewire.Stream) error { return nil }

func writeAll(fns ...func() error) error {
	for _, fn := range fns {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func encode(t *testing.T, obj scopewire.Serializable) ([]byte, int) {
	t.Helper()
	ms := memstream.New()
	s := scopewire.NewStream(ms, scopewire.Options{})
	require.NoError(t, s.WriteSerializable(obj))
	return ms.Bytes(), ms.Segments()
}

func tags(nodes []inspect.Node) []scopewire.TypeTag {
	out := make([]scopewire.TypeTag, len(nodes))
	for i, n := range nodes {
		out[i] = n.Tag
	}
	return out
}

func TestWalkPoint(t *testing.T) {
	data, _ := encode(t, &point{X: 5})
	nodes, err := inspect.Walk(data)
	require.NoError(t, err)
	require.Len(t, nodes, 5)

	assert.Equal(t, inspect.Node{Offset: 0, Tag: scopewire.TagObject, Header: scopewire.ObjectHeader{Size: 10}}, nodes[0])
	assert.Equal(t, inspect.Node{Offset: 6, Depth: 1, Tag: scopewire.TagScopeBegin}, nodes[1])
	assert.Equal(t, inspect.Node{Offset: 7, Depth: 2, Tag: scopewire.TagInt32, Value: int32(5)}, nodes[2])
	assert.Equal(t, inspect.Node{Offset: 9, Depth: 1, Tag: scopewire.TagScopeEnd}, nodes[3])
	assert.Equal(t, inspect.Node{Offset: 10, Tag: scopewire.TagObjectEnd}, nodes[4])

	assert.Equal(t, "    Int32 5", nodes[2].String())
	assert.Equal(t, "Object size=10", nodes[0].String())
}

func TestWalkRecord(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	r := &record{
		Name:   "héllo",
		Flag:   true,
		ID:     id,
		Ratio:  -2.5,
		Counts: []uint16{1, 300},
		Origin: &point{X: -1},
		Extra:  []scopewire.Serializable{&point{X: 2}, nil},
		Parts:  [][]byte{[]byte("a"), []byte("b")},
	}
	data, segs := encode(t, r)
	require.Equal(t, 2, segs)

	nodes, err := inspect.Walker{Segments: segs}.Walk(data)
	require.NoError(t, err)

	root := nodes[0]
	assert.Equal(t, []byte("test.record"), root.TypeInfo)
	assert.True(t, root.Header.Has(scopewire.ContainsTypeInformation))
	assert.True(t, root.Header.Has(scopewire.ContainsExtensionData))
	assert.Equal(t, uint32(len(data)-1), root.Header.Size)

	values := map[scopewire.TypeTag]any{}
	for _, n := range nodes {
		if _, seen := values[n.Tag]; !seen {
			values[n.Tag] = n.Value
		}
	}
	assert.Equal(t, "héllo", values[scopewire.MakeArray(scopewire.TagWString)])
	assert.Equal(t, true, values[scopewire.MakeEmpty(scopewire.TagBoolTrue)])
	assert.Equal(t, id, values[scopewire.TagGuid])
	assert.Equal(t, -2.5, values[scopewire.TagDouble])
	assert.Equal(t, []uint16{1, 300}, values[scopewire.MakeArray(scopewire.TagUShort)])
	assert.Equal(t, int32(-1), values[scopewire.TagInt32])
	assert.Equal(t, []uint32{0, 1}, values[scopewire.TagByteArrayNoCopy])

	assert.Contains(t, tags(nodes), scopewire.MakeEmpty(scopewire.TagPointer))
	assert.Contains(t, tags(nodes), scopewire.MakeArray(scopewire.TagPointer))

	scopes := 0
	for _, n := range nodes {
		if n.Tag == scopewire.TagScopeBegin && n.Depth == 1 {
			scopes++
		}
	}
	assert.Equal(t, 2, scopes)
}

func TestWalkScalarsAtTopLevel(t *testing.T) {
	nodes, err := inspect.Walk([]byte{0x06, 0x82, 0x2C, 0x86, 0xCC, 0x4C, 0x02, 'h', 0, 'i', 0})
	require.NoError(t, err)
	require.Len(t, nodes, 4)
	assert.Equal(t, int32(300), nodes[0].Value)
	assert.Equal(t, int32(0), nodes[1].Value)
	assert.Equal(t, "", nodes[2].Value)
	assert.Equal(t, "hi", nodes[3].Value)
	assert.Equal(t, 2, nodes[3].Count)
}

func TestValidate(t *testing.T) {
	good, _ := encode(t, &point{X: 5})
	require.NoError(t, inspect.Validate(good))

	mutate := func(f func([]byte)) []byte {
		b := append([]byte(nil), good...)
		f(b)
		return b
	}
	cases := []struct {
		name string
		data []byte
		err  error
	}{
		{"truncated", good[:len(good)-1], scopewire.ErrInvalidStreamFormat},
		{"cut in header", good[:3], io.ErrUnexpectedEOF},
		{"size too small", mutate(func(b []byte) { b[1] = 9 }), scopewire.ErrInvalidStreamFormat},
		{"size too large", mutate(func(b []byte) { b[1] = 11 }), scopewire.ErrInvalidStreamFormat},
		{"invalid tag", mutate(func(b []byte) { b[7] = 0x10 }), scopewire.ErrInvalidStreamFormat},
		{"missing scope begin", mutate(func(b []byte) { b[6] = 0x06 }), scopewire.ErrInvalidStreamFormat},
		{"sentinel at top level", []byte{0x1E}, scopewire.ErrInvalidStreamFormat},
		{"scalar wstring", []byte{0x0C}, scopewire.ErrInvalidStreamFormat},
		{"overlong varint", []byte{0x06, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}, scopewire.ErrInvalidStreamFormat},
		{"array larger than input", []byte{0x4A, 0x05, 0x00}, scopewire.ErrInvalidStreamFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, inspect.Validate(tc.data), tc.err)
		})
	}
}

func TestUnflaggedExtensionData(t *testing.T) {
	data, _ := encode(t, &record{Parts: [][]byte{[]byte("x")}})
	require.NoError(t, inspect.Validate(data))
	data[5] &^= byte(scopewire.ContainsExtensionData)
	require.ErrorIs(t, inspect.Validate(data), scopewire.ErrInvalidStreamFormat)
}

func TestSegmentBound(t *testing.T) {
	data, segs := encode(t, &record{Parts: [][]byte{[]byte("x"), []byte("y")}})
	_, err := inspect.Walker{Segments: segs - 1}.Walk(data)
	require.ErrorIs(t, err, scopewire.ErrInvalidStreamFormat)
	_, err = inspect.Walker{Segments: segs}.Walk(data)
	require.NoError(t, err)
}

type chain struct {
	scopewire.Object
	Next *chain
}

func (c *chain) Write(s *scopewire.Stream) error {
	return s.WriteScope(func() error {
		if c.Next == nil {
			return s.WritePointer(nil)
		}
		return s.WritePointer(c.Next)
	})
}

func (c *chain) Read(*scopewire.Stream) error { return nil }

func TestMaxDepth(t *testing.T) {
	c := &chain{}
	for range 4 {
		c = &chain{Next: c}
	}
	data, _ := encode(t, c)
	_, err := inspect.Walker{MaxDepth: 3, Segments: -1}.Walk(data)
	require.ErrorIs(t, err, scopewire.ErrInsufficientResources)
	_, err = inspect.Walker{MaxDepth: 5, Segments: -1}.Walk(data)
	require.NoError(t, err)
}

func TestPartialNodesOnError(t *testing.T) {
	good, _ := encode(t, &point{X: 5})
	nodes, err := inspect.Walk(append(good, byte(scopewire.TagInt32)))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Len(t, nodes, 5)
	assert.Equal(t, scopewire.TagObjectEnd, nodes[4].Tag)
}
