package scopewire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagModifiers(t *testing.T) {
	tag := MakeEmpty(MakeArray(TagInt32))
	assert.Equal(t, TypeTag(0xC6), tag)
	assert.True(t, tag.IsArray())
	assert.True(t, tag.IsEmpty())
	assert.Equal(t, TagInt32, tag.Kind())
	assert.True(t, tag.IsOfBaseKind(TagInt32))
	assert.False(t, tag.IsOfBaseKind(TagInt64))
	assert.True(t, MakeEmpty(TagBoolTrue).IsOfBaseKind(TagBool))
}

func TestSentinelsNeverMatchBaseKind(t *testing.T) {
	for _, s := range []TypeTag{TagScopeBegin, TagScopeEnd, TagObjectEnd} {
		assert.True(t, s.IsSentinel())
		assert.True(t, s.Valid())
		for k := firstKind; k <= lastKind; k++ {
			assert.Falsef(t, s.IsOfBaseKind(k), "%s matched %s", s, k)
		}
	}
}

func TestTagValidity(t *testing.T) {
	valid := 0
	for b := range 256 {
		if TypeTag(b).Valid() {
			valid++
		}
	}
	// 15 kinds x {plain, array, empty, empty array} + BoolTrue x {plain, empty} + 3 sentinels
	assert.Equal(t, 15*4+2+3, valid)

	assert.False(t, TypeTag(0x00).Valid())
	assert.False(t, TypeTag(0x10).Valid())
	assert.False(t, MakeArray(TagBoolTrue).Valid())
	assert.False(t, (TagInt32 | valueBit).Valid())
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "Int32", TagInt32.String())
	assert.Equal(t, "Empty(Array(WString))", MakeEmpty(MakeArray(TagWString)).String())
	assert.Equal(t, "Empty(BoolTrue)", MakeEmpty(TagBoolTrue).String())
	assert.Equal(t, "ScopeEnd", TagScopeEnd.String())
	assert.Equal(t, "TypeTag(0x10)", TypeTag(0x10).String())
}

func TestHeaderEncoding(t *testing.T) {
	h := ObjectHeader{Size: 0x01020304, Flags: ContainsTypeInformation | ContainsExtensionData}
	buf := make([]byte, HeaderSize)
	h.Encode(buf)
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01, 0x03}, buf)

	got, err := ParseHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.True(t, got.Has(ContainsExtensionData))

	_, err = ParseHeader(buf[:4])
	require.ErrorIs(t, err, ErrInvalidStreamFormat)
}

func TestBufferTooSmallMatchesSentinel(t *testing.T) {
	var err error = &BufferTooSmallError{Required: 7}
	assert.ErrorIs(t, err, ErrBufferTooSmall)
	assert.Contains(t, err.Error(), "7")
	assert.Equal(t, "scope-end", StatusScopeEnd.String())
}
