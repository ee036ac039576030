package scopewire

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"github.com/gofrs/uuid/v5"
)

var (
	ErrNotStructPtr = errors.New("scopewire: expected pointer to struct")
	ErrUnsupported  = errors.New("scopewire: unsupported type")
)

// maxReflectScopes bounds the scope struct tag.
const maxReflectScopes = 64

var guidType = reflect.TypeOf(uuid.UUID{})

// Reflected adapts a struct to Serializable. Exported fields are written in
// declaration order inside the scope named by their `scope:"N"` tag
// (default 0). `scope:"-"` and embedded fields are ignored.
//
//	type User struct {
//		Name  string
//		Email string `scope:"1"`
//	}
type Reflected struct {
	Object

	v    reflect.Value
	plan *structPlan
	info []byte

	// wrappers of nested structs, kept so their unknown data survives
	children map[int]*Reflected
}

type structPlan struct {
	scopes [][]fieldInfo
}

type fieldInfo struct {
	index int
	name  string
	tag   TypeTag
	array bool
	elem  reflect.Type // struct type for Object and Pointer fields
}

var plans = struct {
	mu sync.RWMutex
	m  map[reflect.Type]*structPlan
}{m: make(map[reflect.Type]*structPlan)}

// Reflect wraps ptr, which must be a non-nil pointer to a struct.
func Reflect(ptr any) (*Reflected, error) {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, ErrNotStructPtr
	}
	return reflectValue(v.Elem())
}

func reflectValue(v reflect.Value) (*Reflected, error) {
	plan, err := planFor(v.Type())
	if err != nil {
		return nil, err
	}
	return &Reflected{v: v, plan: plan}, nil
}

// WithTypeInformation sets the descriptor written in front of the object.
func (r *Reflected) WithTypeInformation(info []byte) *Reflected {
	r.info = info
	return r
}

func (r *Reflected) TypeInformation() []byte { return r.info }

// Interface returns the pointer to the wrapped struct.
func (r *Reflected) Interface() any { return r.v.Addr().Interface() }

func planFor(t reflect.Type) (*structPlan, error) {
	plans.mu.RLock()
	if plan, ok := plans.m[t]; ok {
		plans.mu.RUnlock()
		return plan, nil
	}
	plans.mu.RUnlock()

	plans.mu.Lock()
	defer plans.mu.Unlock()
	if plan, ok := plans.m[t]; ok {
		return plan, nil
	}
	plan, err := buildPlan(t)
	if err != nil {
		return nil, err
	}
	plans.m[t] = plan
	return plan, nil
}

func buildPlan(t reflect.Type) (*structPlan, error) {
	plan := &structPlan{}
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		scope := 0
		if tag, ok := sf.Tag.Lookup("scope"); ok {
			if tag == "-" {
				continue
			}
			n, err := strconv.Atoi(tag)
			if err != nil || n < 0 || n >= maxReflectScopes {
				return nil, fmt.Errorf("%w: %s.%s has scope tag %q", ErrUnsupported, t.Name(), sf.Name, tag)
			}
			scope = n
		}
		fi, err := classify(sf.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s (%s): %w", t.Name(), sf.Name, sf.Type, err)
		}
		fi.index = i
		fi.name = sf.Name
		for len(plan.scopes) <= scope {
			plan.scopes = append(plan.scopes, nil)
		}
		plan.scopes[scope] = append(plan.scopes[scope], fi)
	}
	return plan, nil
}

// classify maps a Go type to its wire kind. Nested plans are resolved on
// first use so self-referencing types work.
func classify(t reflect.Type) (fieldInfo, error) {
	if t == guidType {
		return fieldInfo{tag: TagGuid}, nil
	}
	switch t.Kind() {
	case reflect.Struct:
		return fieldInfo{tag: TagObject, elem: t}, nil
	case reflect.Pointer:
		if e := t.Elem(); e.Kind() == reflect.Struct && e != guidType {
			return fieldInfo{tag: TagPointer, elem: e}, nil
		}
		return fieldInfo{}, ErrUnsupported
	case reflect.Slice:
		e := t.Elem()
		if e == guidType {
			return fieldInfo{tag: TagGuid, array: true}, nil
		}
		if tag, ok := scalarTag(e.Kind()); ok && tag != TagWString {
			return fieldInfo{tag: tag, array: true}, nil
		}
		return fieldInfo{}, ErrUnsupported
	}
	if tag, ok := scalarTag(t.Kind()); ok {
		return fieldInfo{tag: tag}, nil
	}
	return fieldInfo{}, ErrUnsupported
}

func scalarTag(k reflect.Kind) (TypeTag, bool) {
	switch k {
	case reflect.Bool:
		return TagBool, true
	case reflect.Int8:
		return TagChar, true
	case reflect.Uint8:
		return TagUChar, true
	case reflect.Int16:
		return TagShort, true
	case reflect.Uint16:
		return TagUShort, true
	case reflect.Int32:
		return TagInt32, true
	case reflect.Uint32:
		return TagUInt32, true
	case reflect.Int, reflect.Int64:
		return TagInt64, true
	case reflect.Uint, reflect.Uint64:
		return TagUInt64, true
	case reflect.Float32, reflect.Float64:
		return TagDouble, true
	case reflect.String:
		return TagWString, true
	}
	return 0, false
}

func (r *Reflected) Write(s *Stream) error {
	for _, fields := range r.plan.scopes {
		if err := s.WriteStartType(); err != nil {
			return err
		}
		for i := range fields {
			if err := r.writeField(s, &fields[i]); err != nil {
				return fmt.Errorf("field %s: %w", fields[i].name, err)
			}
		}
		if err := s.WriteEndType(); err != nil {
			return err
		}
	}
	return nil
}

// Read fills the struct. Fields of scopes the writer did not produce, and
// fields past the end of a shorter scope, keep their current values.
func (r *Reflected) Read(s *Stream) error {
	for _, fields := range r.plan.scopes {
		st, err := s.ReadStartType()
		if err != nil {
			return err
		}
		if st == StatusScopeEnd {
			return nil
		}
		for i := range fields {
			st, err := r.readField(s, &fields[i])
			if err != nil {
				return fmt.Errorf("field %s: %w", fields[i].name, err)
			}
			if st == StatusScopeEnd {
				break
			}
		}
		if _, err := s.ReadEndType(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reflected) writeField(s *Stream, f *fieldInfo) error {
	v := r.v.Field(f.index)
	if f.array {
		return writeReflectArray(s, f.tag, v)
	}
	switch f.tag {
	case TagBool:
		return s.WriteBool(v.Bool())
	case TagChar:
		return s.WriteChar(int8(v.Int()))
	case TagUChar:
		return s.WriteUChar(uint8(v.Uint()))
	case TagShort:
		return s.WriteShort(int16(v.Int()))
	case TagUShort:
		return s.WriteUShort(uint16(v.Uint()))
	case TagInt32:
		return s.WriteInt32(int32(v.Int()))
	case TagUInt32:
		return s.WriteUInt32(uint32(v.Uint()))
	case TagInt64:
		return s.WriteInt64(v.Int())
	case TagUInt64:
		return s.WriteUInt64(v.Uint())
	case TagDouble:
		return s.WriteDouble(v.Float())
	case TagGuid:
		return s.WriteGuid(v.Interface().(uuid.UUID))
	case TagWString:
		return s.WriteString(v.String())
	case TagObject:
		c, err := r.child(f, v)
		if err != nil {
			return err
		}
		return s.WriteSerializable(c)
	case TagPointer:
		if v.IsNil() {
			return s.WritePointer(nil)
		}
		c, err := r.child(f, v.Elem())
		if err != nil {
			return err
		}
		return s.WritePointer(c)
	}
	return ErrUnsupported
}

func (r *Reflected) readField(s *Stream, f *fieldInfo) (Status, error) {
	v := r.v.Field(f.index)
	if f.array {
		return readReflectArray(s, f.tag, v)
	}
	switch f.tag {
	case TagBool:
		return readScalar(v, s.ReadBool, reflect.Value.SetBool)
	case TagChar:
		return readScalar(v, s.ReadChar, func(v reflect.Value, x int8) { v.SetInt(int64(x)) })
	case TagUChar:
		return readScalar(v, s.ReadUChar, func(v reflect.Value, x uint8) { v.SetUint(uint64(x)) })
	case TagShort:
		return readScalar(v, s.ReadShort, func(v reflect.Value, x int16) { v.SetInt(int64(x)) })
	case TagUShort:
		return readScalar(v, s.ReadUShort, func(v reflect.Value, x uint16) { v.SetUint(uint64(x)) })
	case TagInt32:
		return readScalar(v, s.ReadInt32, func(v reflect.Value, x int32) { v.SetInt(int64(x)) })
	case TagUInt32:
		return readScalar(v, s.ReadUInt32, func(v reflect.Value, x uint32) { v.SetUint(uint64(x)) })
	case TagInt64:
		return readScalar(v, s.ReadInt64, reflect.Value.SetInt)
	case TagUInt64:
		return readScalar(v, s.ReadUInt64, reflect.Value.SetUint)
	case TagDouble:
		return readScalar(v, s.ReadDouble, reflect.Value.SetFloat)
	case TagGuid:
		return readScalar(v, s.ReadGuid, setGuid)
	case TagWString:
		return readScalar(v, s.ReadStringTo, reflect.Value.SetString)
	case TagObject:
		c, err := r.child(f, v)
		if err != nil {
			return StatusOK, err
		}
		return s.ReadSerializable(c)
	case TagPointer:
		obj, st, err := s.ReadPointer(reflectActivator{elem: f.elem})
		if err != nil || st == StatusScopeEnd {
			return st, err
		}
		if obj == nil {
			v.Set(reflect.Zero(v.Type()))
			delete(r.children, f.index)
			return StatusOK, nil
		}
		c := obj.(*Reflected)
		v.Set(c.v.Addr())
		r.keep(f.index, c)
		return StatusOK, nil
	}
	return StatusOK, ErrUnsupported
}

// child returns the wrapper for the struct held in v, reusing the one from
// the previous pass while it still wraps the same memory.
func (r *Reflected) child(f *fieldInfo, v reflect.Value) (*Reflected, error) {
	if c, ok := r.children[f.index]; ok && c.v.Addr().Pointer() == v.Addr().Pointer() {
		return c, nil
	}
	c, err := reflectValue(v)
	if err != nil {
		return nil, err
	}
	r.keep(f.index, c)
	return c, nil
}

func (r *Reflected) keep(index int, c *Reflected) {
	if r.children == nil {
		r.children = make(map[int]*Reflected)
	}
	r.children[index] = c
}

// reflectActivator builds pointer targets of a fixed struct type.
type reflectActivator struct {
	elem reflect.Type
}

func (a reflectActivator) Activate([]byte) (Serializable, error) {
	c, err := reflectValue(reflect.New(a.elem).Elem())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrObjectActivationFailed, err)
	}
	return c, nil
}

func setGuid(v reflect.Value, x uuid.UUID) { v.Set(reflect.ValueOf(x)) }

// readScalar leaves v untouched unless the read produced a value.
func readScalar[T any](v reflect.Value, read func(*T) (Status, error), set func(reflect.Value, T)) (Status, error) {
	var x T
	st, err := read(&x)
	if err == nil && st == StatusOK {
		set(v, x)
	}
	return st, err
}

func writeReflectArray(s *Stream, tag TypeTag, v reflect.Value) error {
	switch tag {
	case TagBool:
		return s.WriteBoolArray(sliceOf(v, reflect.Value.Bool))
	case TagChar:
		return s.WriteCharArray(sliceOf(v, func(e reflect.Value) int8 { return int8(e.Int()) }))
	case TagUChar:
		return s.WriteUCharArray(sliceOf(v, func(e reflect.Value) uint8 { return uint8(e.Uint()) }))
	case TagShort:
		return s.WriteShortArray(sliceOf(v, func(e reflect.Value) int16 { return int16(e.Int()) }))
	case TagUShort:
		return s.WriteUShortArray(sliceOf(v, func(e reflect.Value) uint16 { return uint16(e.Uint()) }))
	case TagInt32:
		return s.WriteInt32Array(sliceOf(v, func(e reflect.Value) int32 { return int32(e.Int()) }))
	case TagUInt32:
		return s.WriteUInt32Array(sliceOf(v, func(e reflect.Value) uint32 { return uint32(e.Uint()) }))
	case TagInt64:
		return s.WriteInt64Array(sliceOf(v, reflect.Value.Int))
	case TagUInt64:
		return s.WriteUInt64Array(sliceOf(v, reflect.Value.Uint))
	case TagDouble:
		return s.WriteDoubleArray(sliceOf(v, reflect.Value.Float))
	case TagGuid:
		return s.WriteGuidArray(sliceOf(v, func(e reflect.Value) uuid.UUID { return e.Interface().(uuid.UUID) }))
	}
	return ErrUnsupported
}

func readReflectArray(s *Stream, tag TypeTag, v reflect.Value) (Status, error) {
	switch tag {
	case TagBool:
		return readArray(v, s.ReadBoolArray, reflect.Value.SetBool)
	case TagChar:
		return readArray(v, s.ReadCharArray, func(e reflect.Value, x int8) { e.SetInt(int64(x)) })
	case TagUChar:
		return readArray(v, s.ReadUCharArray, func(e reflect.Value, x uint8) { e.SetUint(uint64(x)) })
	case TagShort:
		return readArray(v, s.ReadShortArray, func(e reflect.Value, x int16) { e.SetInt(int64(x)) })
	case TagUShort:
		return readArray(v, s.ReadUShortArray, func(e reflect.Value, x uint16) { e.SetUint(uint64(x)) })
	case TagInt32:
		return readArray(v, s.ReadInt32Array, func(e reflect.Value, x int32) { e.SetInt(int64(x)) })
	case TagUInt32:
		return readArray(v, s.ReadUInt32Array, func(e reflect.Value, x uint32) { e.SetUint(uint64(x)) })
	case TagInt64:
		return readArray(v, s.ReadInt64Array, reflect.Value.SetInt)
	case TagUInt64:
		return readArray(v, s.ReadUInt64Array, reflect.Value.SetUint)
	case TagDouble:
		return readArray(v, s.ReadDoubleArray, reflect.Value.SetFloat)
	case TagGuid:
		return readArray(v, s.ReadGuidArray, setGuid)
	}
	return StatusOK, ErrUnsupported
}

// sliceOf returns v as a []T, converting element by element when v has a
// named or wider element type.
func sliceOf[T any](v reflect.Value, conv func(reflect.Value) T) []T {
	if out, ok := v.Interface().([]T); ok {
		return out
	}
	out := make([]T, v.Len())
	for i := range out {
		out[i] = conv(v.Index(i))
	}
	return out
}

func readArray[T any](v reflect.Value, read func([]T) (int, Status, error), set func(reflect.Value, T)) (Status, error) {
	vals, st, err := ReadSlice(read)
	if err != nil || st == StatusScopeEnd {
		return st, err
	}
	switch {
	case vals == nil:
		v.Set(reflect.Zero(v.Type()))
	case v.Type() == reflect.TypeOf(vals):
		v.Set(reflect.ValueOf(vals))
	default:
		out := reflect.MakeSlice(v.Type(), len(vals), len(vals))
		for i, x := range vals {
			set(out.Index(i), x)
		}
		v.Set(out)
	}
	return StatusOK, nil
}
