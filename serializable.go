package scopewire

import (
	"fmt"
	"reflect"
)

// Serializable is implemented by domain types that can be written to and
// read from a Stream. Write and Read wrap each version generation of fields
// in WriteStartType/WriteEndType (ReadStartType/ReadEndType) pairs.
type Serializable interface {
	Write(s *Stream) error
	Read(s *Stream) error
	// TypeInformation returns a descriptor stored in front of the object so
	// a reader can activate the right concrete type. nil for none.
	TypeInformation() []byte
	// UnknownData returns bytes preserved for scope, or ErrNoMoreUnknownBuffers.
	UnknownData(scope uint32) ([]byte, error)
	SetUnknownData(scope uint32, data []byte) error
	ClearUnknownData()
}

// UnknownScopes stores the unknown data of one object, indexed by scope.
type UnknownScopes struct {
	scopes [][]byte
	set    []bool
}

func (u *UnknownScopes) UnknownData(scope uint32) ([]byte, error) {
	if int(scope) >= len(u.set) || !u.set[scope] {
		return nil, ErrNoMoreUnknownBuffers
	}
	return u.scopes[scope], nil
}

func (u *UnknownScopes) SetUnknownData(scope uint32, data []byte) error {
	for int(scope) >= len(u.set) {
		u.scopes = append(u.scopes, nil)
		u.set = append(u.set, false)
	}
	u.scopes[scope] = data
	u.set[scope] = true
	return nil
}

func (u *UnknownScopes) ClearUnknownData() {
	u.scopes = u.scopes[:0]
	u.set = u.set[:0]
}

// HasUnknownData reports whether any scope holds preserved bytes.
func (u *UnknownScopes) HasUnknownData() bool {
	for _, ok := range u.set {
		if ok {
			return true
		}
	}
	return false
}

// Object is embedded by domain types that carry no type descriptor.
type Object struct {
	UnknownScopes
}

func (Object) TypeInformation() []byte { return nil }

// TypeActivator creates the concrete object for a pointer read.
// typeInfo is nil when the writer stored no descriptor.
type TypeActivator interface {
	Activate(typeInfo []byte) (Serializable, error)
}

// ActivatorFunc adapts a constructor to TypeActivator.
type ActivatorFunc func(typeInfo []byte) Serializable

func (f ActivatorFunc) Activate(typeInfo []byte) (Serializable, error) {
	return f(typeInfo), nil
}

// New returns an activator that always builds T. Use it for pointers whose
// concrete type is known statically.
func New[T any, P interface {
	*T
	Serializable
}]() TypeActivator {
	return ActivatorFunc(func([]byte) Serializable { return P(new(T)) })
}

// Registry resolves type descriptors to constructors.
type Registry struct {
	ctors    map[string]func() Serializable
	fallback func() Serializable
}

// NewRegistry returns a Registry. fallback builds objects written without a
// descriptor and may be nil.
func NewRegistry(fallback func() Serializable) *Registry {
	return &Registry{ctors: make(map[string]func() Serializable), fallback: fallback}
}

func (r *Registry) Register(typeInfo []byte, ctor func() Serializable) {
	r.ctors[string(typeInfo)] = ctor
}

func (r *Registry) Activate(typeInfo []byte) (Serializable, error) {
	if len(typeInfo) == 0 {
		if r.fallback == nil {
			return nil, fmt.Errorf("%w: no default type", ErrObjectActivationFailed)
		}
		return r.fallback(), nil
	}
	ctor, ok := r.ctors[string(typeInfo)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrObjectActivationFailed, typeInfo)
	}
	return ctor(), nil
}

func isNil(obj Serializable) bool {
	if obj == nil {
		return true
	}
	v := reflect.ValueOf(obj)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return v.IsNil()
	}
	return false
}
