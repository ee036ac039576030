package scopewire_test

import (
	"errors"
	"io"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/scopewire"
	"github.com/rawbytedev/scopewire/pkg/memstream"
)

// encode writes obj into a fresh memory stream and returns the main buffer
// and any no-copy segments.
func encode(t testing.TB, obj scopewire.Serializable) ([]byte, [][]byte) {
	t.Helper()
	ms := memstream.New()
	s := scopewire.NewStream(ms, scopewire.Options{})
	require.NoError(t, s.WriteSerializable(obj))
	var data []byte
	var ext [][]byte
	for {
		b, err := s.NextBuffer()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if b.Extension {
			ext = append(ext, b.Data)
		} else {
			data = append(data, b.Data...)
		}
	}
	return data, ext
}

func decode(data []byte, obj scopewire.Serializable, ext ...[]byte) (scopewire.Status, error) {
	s := scopewire.NewStream(memstream.FromBytes(data, ext...), scopewire.Options{})
	return s.ReadSerializable(obj)
}

// point has one scope with a single field.
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

// pointReader expects a second scope that older writers never produced.
type pointReader struct {
	scopewire.Object
	X      int32
	Second scopewire.Status
}

func (p *pointReader) Write(s *scopewire.Stream) error { return nil }

func (p *pointReader) Read(s *scopewire.Stream) error {
	if _, err := s.ReadScope(func() error {
		_, err := s.ReadInt32(&p.X)
		return err
	}); err != nil {
		return err
	}
	st, err := s.ReadStartType()
	if err != nil {
		return err
	}
	p.Second = st
	if st == scopewire.StatusOK {
		_, err = s.ReadEndType()
	}
	return err
}

type personV1 struct {
	scopewire.Object
	Name string
	Age  int32
}

func (p *personV1) Write(s *scopewire.Stream) error {
	return s.WriteScope(func() error {
		if err := s.WriteString(p.Name); err != nil {
			return err
		}
		return s.WriteInt32(p.Age)
	})
}

func (p *personV1) Read(s *scopewire.Stream) error {
	_, err := s.ReadScope(func() error {
		if _, err := s.ReadStringTo(&p.Name); err != nil {
			return err
		}
		_, err := s.ReadInt32(&p.Age)
		return err
	})
	return err
}

// personV2 adds a second version layer on top of personV1.
type personV2 struct {
	personV1
	Email  string
	Scores []int32
}

func (p *personV2) Write(s *scopewire.Stream) error {
	if err := p.personV1.Write(s); err != nil {
		return err
	}
	return s.WriteScope(func() error {
		if err := s.WriteString(p.Email); err != nil {
			return err
		}
		return s.WriteInt32Array(p.Scores)
	})
}

func (p *personV2) Read(s *scopewire.Stream) error {
	if err := p.personV1.Read(s); err != nil {
		return err
	}
	_, err := s.ReadScope(func() error {
		if _, err := s.ReadStringTo(&p.Email); err != nil {
			return err
		}
		v, st, err := scopewire.ReadSlice(s.ReadInt32Array)
		if err == nil && st == scopewire.StatusOK {
			p.Scores = v
		}
		return err
	})
	return err
}

// personWide appends fields to scope 0 that personV1 does not know.
type personWide struct {
	personV1
	Nickname string
	Flags    []uint16
	Home     *point
	Spare    *point
	ID       uuid.UUID
}

func (p *personWide) Write(s *scopewire.Stream) error {
	return s.WriteScope(func() error {
		if err := s.WriteString(p.Name); err != nil {
			return err
		}
		if err := s.WriteInt32(p.Age); err != nil {
			return err
		}
		if err := s.WriteString(p.Nickname); err != nil {
			return err
		}
		if err := s.WriteUShortArray(p.Flags); err != nil {
			return err
		}
		if err := s.WritePointer(p.Home); err != nil {
			return err
		}
		if err := s.WritePointer(p.Spare); err != nil {
			return err
		}
		if err := s.WriteSerializable(&point{X: -7}); err != nil {
			return err
		}
		return s.WriteGuid(p.ID)
	})
}

// layered writes one scope per entry of Scopes. On read it understands
// only the first Known scopes and reads values until the scope ends.
type layered struct {
	scopewire.Object
	Known  int
	Scopes [][]int32
}

func (l *layered) Write(s *scopewire.Stream) error {
	for _, vals := range l.Scopes {
		err := s.WriteScope(func() error {
			for _, v := range vals {
				if err := s.WriteInt32(v); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *layered) Read(s *scopewire.Stream) error {
	l.Scopes = nil
	for range l.Known {
		var vals []int32
		st, err := s.ReadScope(func() error {
			for {
				var v int32
				st, err := s.ReadInt32(&v)
				if err != nil || st == scopewire.StatusScopeEnd {
					return err
				}
				vals = append(vals, v)
			}
		})
		if err != nil {
			return err
		}
		if st == scopewire.StatusScopeEnd {
			return nil
		}
		l.Scopes = append(l.Scopes, vals)
	}
	return nil
}

type circle struct {
	scopewire.Object
	R float64
}

func (c *circle) TypeInformation() []byte { return []byte("shape.circle") }

func (c *circle) Write(s *scopewire.Stream) error {
	return s.WriteScope(func() error { return s.WriteDouble(c.R) })
}

func (c *circle) Read(s *scopewire.Stream) error {
	_, err := s.ReadScope(func() error {
		_, err := s.ReadDouble(&c.R)
		return err
	})
	return err
}

type square struct {
	scopewire.Object
	Side uint32
}

func (q *square) TypeInformation() []byte { return []byte("shape.square") }

func (q *square) Write(s *scopewire.Stream) error {
	return s.WriteScope(func() error { return s.WriteUInt32(q.Side) })
}

func (q *square) Read(s *scopewire.Stream) error {
	_, err := s.ReadScope(func() error {
		_, err := s.ReadUInt32(&q.Side)
		return err
	})
	return err
}

func shapes() *scopewire.Registry {
	r := scopewire.NewRegistry(nil)
	r.Register([]byte("shape.circle"), func() scopewire.Serializable { return &circle{} })
	r.Register([]byte("shape.square"), func() scopewire.Serializable { return &square{} })
	return r
}

// canvas holds polymorphic pointers.
type canvas struct {
	scopewire.Object
	Main      scopewire.Serializable
	Shapes    []scopewire.Serializable
	activator scopewire.TypeActivator
}

func (c *canvas) Write(s *scopewire.Stream) error {
	return s.WriteScope(func() error {
		if err := s.WritePointer(c.Main); err != nil {
			return err
		}
		return s.WritePointerArray(c.Shapes)
	})
}

func (c *canvas) Read(s *scopewire.Stream) error {
	_, err := s.ReadScope(func() error {
		obj, _, err := s.ReadPointer(c.activator)
		if err != nil {
			return err
		}
		c.Main = obj
		c.Shapes, _, err = scopewire.ReadSlice(func(dst []scopewire.Serializable) (int, scopewire.Status, error) {
			return s.ReadPointerArray(dst, c.activator)
		})
		return err
	})
	return err
}

// team holds an object array.
type team struct {
	scopewire.Object
	Members []*personV1
}

func (tm *team) Write(s *scopewire.Stream) error {
	objs := make([]scopewire.Serializable, len(tm.Members))
	for i, m := range tm.Members {
		objs[i] = m
	}
	return s.WriteScope(func() error { return s.WriteSerializableArray(objs) })
}

func (tm *team) Read(s *scopewire.Stream) error {
	_, err := s.ReadScope(func() error {
		n, _, err := s.ReadSerializableArray(nil)
		if !errors.Is(err, scopewire.ErrBufferTooSmall) {
			return err
		}
		objs := make([]scopewire.Serializable, n)
		tm.Members = make([]*personV1, n)
		for i := range objs {
			tm.Members[i] = &personV1{}
			objs[i] = tm.Members[i]
		}
		_, _, err = s.ReadSerializableArray(objs)
		return err
	})
	return err
}

// blob references its parts without copying them.
type blob struct {
	scopewire.Object
	Parts [][]byte
}

func (b *blob) Write(s *scopewire.Stream) error {
	return s.WriteScope(func() error { return s.WriteByteArrayNoCopy(b.Parts) })
}

func (b *blob) Read(s *scopewire.Stream) error {
	_, err := s.ReadScope(func() error {
		parts, _, err := scopewire.ReadSlice(s.ReadByteArrayNoCopy)
		b.Parts = parts
		return err
	})
	return err
}

type docV1 struct {
	scopewire.Object
	Title string
}

func (d *docV1) Write(s *scopewire.Stream) error {
	return s.WriteScope(func() error { return s.WriteString(d.Title) })
}

func (d *docV1) Read(s *scopewire.Stream) error {
	_, err := s.ReadScope(func() error {
		_, err := s.ReadStringTo(&d.Title)
		return err
	})
	return err
}

// docV2 adds an attachment carrying extension data.
type docV2 struct {
	docV1
	Attachment *blob
}

func (d *docV2) Write(s *scopewire.Stream) error {
	if err := d.docV1.Write(s); err != nil {
		return err
	}
	return s.WriteScope(func() error { return s.WritePointer(d.Attachment) })
}

func (d *docV2) Read(s *scopewire.Stream) error {
	if err := d.docV1.Read(s); err != nil {
		return err
	}
	_, err := s.ReadScope(func() error {
		obj, _, err := s.ReadPointer(scopewire.New[blob]())
		if obj != nil {
			d.Attachment = obj.(*blob)
		}
		return err
	})
	return err
}

// chain nests through pointers.
type chain struct {
	scopewire.Object
	Next *chain
}

func (c *chain) Write(s *scopewire.Stream) error {
	return s.WriteScope(func() error { return s.WritePointer(c.Next) })
}

func (c *chain) Read(s *scopewire.Stream) error {
	_, err := s.ReadScope(func() error {
		obj, _, err := s.ReadPointer(scopewire.New[chain]())
		if obj != nil {
			c.Next = obj.(*chain)
		}
		return err
	})
	return err
}

func newChain(n int) *chain {
	head := &chain{}
	for range n - 1 {
		head = &chain{Next: head}
	}
	return head
}
