package scopewire

import "fmt"

// TypeTag is the one-byte discriminator written before every value.
//
// Layout: bits 0-4 hold the base kind, bit 5 is the bool value bit,
// bit 6 marks an array and bit 7 marks an empty (default) value.
// These values are a wire contract and must never change.
type TypeTag uint8

const (
	TagBool            TypeTag = 0x01
	TagChar            TypeTag = 0x02
	TagUChar           TypeTag = 0x03
	TagShort           TypeTag = 0x04
	TagUShort          TypeTag = 0x05
	TagInt32           TypeTag = 0x06
	TagUInt32          TypeTag = 0x07
	TagInt64           TypeTag = 0x08
	TagUInt64          TypeTag = 0x09
	TagGuid            TypeTag = 0x0A
	TagDouble          TypeTag = 0x0B
	TagWString         TypeTag = 0x0C
	TagObject          TypeTag = 0x0D
	TagPointer         TypeTag = 0x0E
	TagByteArrayNoCopy TypeTag = 0x0F

	// 0x10-0x1C reserved

	TagScopeBegin TypeTag = 0x1D
	TagScopeEnd   TypeTag = 0x1E
	TagObjectEnd  TypeTag = 0x1F

	// TagBoolTrue is Bool with the value bit set.
	TagBoolTrue TypeTag = TagBool | valueBit
)

const (
	kindMask  TypeTag = 0x1F
	valueBit  TypeTag = 0x20
	arrayBit  TypeTag = 0x40
	emptyBit  TypeTag = 0x80
	firstKind         = TagBool
	lastKind          = TagByteArrayNoCopy
)

// MakeArray returns t with the array bit set.
func MakeArray(t TypeTag) TypeTag { return t | arrayBit }

// MakeEmpty returns t with the empty bit set.
func MakeEmpty(t TypeTag) TypeTag { return t | emptyBit }

func (t TypeTag) IsArray() bool { return t&arrayBit != 0 }
func (t TypeTag) IsEmpty() bool { return t&emptyBit != 0 }

// Kind strips the array, empty and value bits.
func (t TypeTag) Kind() TypeTag { return t & kindMask }

// IsOfBaseKind reports whether t carries base kind k, ignoring modifiers.
// Sentinels never match a base kind.
func (t TypeTag) IsOfBaseKind(k TypeTag) bool {
	return !t.IsSentinel() && t.Kind() == k.Kind()
}

// IsSentinel reports whether t is one of the scope or object boundaries.
func (t TypeTag) IsSentinel() bool {
	return t == TagScopeBegin || t == TagScopeEnd || t == TagObjectEnd
}

// Valid reports whether t can appear on the wire.
func (t TypeTag) Valid() bool {
	if t.IsSentinel() {
		return true
	}
	k := t.Kind()
	if k < firstKind || k > lastKind {
		return false
	}
	if t&valueBit != 0 && (k != TagBool || t.IsArray()) {
		return false
	}
	return true
}

var kindNames = [...]string{
	TagBool:            "Bool",
	TagChar:            "Char",
	TagUChar:           "UChar",
	TagShort:           "Short",
	TagUShort:          "UShort",
	TagInt32:           "Int32",
	TagUInt32:          "UInt32",
	TagInt64:           "Int64",
	TagUInt64:          "UInt64",
	TagGuid:            "Guid",
	TagDouble:          "Double",
	TagWString:         "WString",
	TagObject:          "Object",
	TagPointer:         "Pointer",
	TagByteArrayNoCopy: "ByteArrayNoCopy",
	TagScopeBegin:      "ScopeBegin",
	TagScopeEnd:        "ScopeEnd",
	TagObjectEnd:       "ObjectEnd",
}

func (t TypeTag) String() string {
	if !t.Valid() {
		return fmt.Sprintf("TypeTag(0x%02x)", uint8(t))
	}
	if t.IsSentinel() {
		return kindNames[t]
	}
	s := kindNames[t.Kind()]
	if t == TagBoolTrue || t == MakeEmpty(TagBoolTrue) {
		s = "BoolTrue"
	}
	if t.IsArray() {
		s = "Array(" + s + ")"
	}
	if t.IsEmpty() {
		s = "Empty(" + s + ")"
	}
	return s
}
