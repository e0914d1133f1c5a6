package sb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypePacking(t *testing.T) {
	tests := []struct {
		typ  Type
		name string
		size uint32
	}{
		{TypeF32, "F32", 4},
		{TypeF32x3, "F32x3", 12},
		{TypeU16, "U16", 2},
		{MakeType(StrideX32, PrimitiveFloat, VecN4, MatN4), "F32x4x4", 64},
		{TypeF64, "F64", 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.typ.String())
		assert.Equal(t, tt.size, tt.typ.Size())
		assert.True(t, tt.typ.Valid())
	}
	assert.False(t, Type(0).Valid())
}

func buildLayout(t *testing.T, flags Flags) *File {
	t.Helper()
	f, err := New(flags, 256)
	require.NoError(t, err)

	structID, err := f.AddStruct("Light", Struct{Stride: 32})
	require.NoError(t, err)

	require.NoError(t, f.AddVariableAsType("intensity", 0, RootParent, TypeF32, VarUsedSPIRV, nil))
	require.NoError(t, f.AddVariableAsStruct("lights", 16, RootParent, structID, VarUsedSPIRV|VarUsedDXIL, []uint32{4}))
	require.NoError(t, f.AddVariableAsType("color", 0, 1, TypeF32x3, VarUsedDXIL, nil))
	return f
}

func TestBuilderValidation(t *testing.T) {
	_, err := New(0, 0)
	assert.Error(t, err, "zero buffer size")

	f, err := New(FlagIsTightlyPacked, 64)
	require.NoError(t, err)

	assert.Error(t, f.AddVariableAsType("", 0, RootParent, TypeF32, 0, nil), "empty name")
	assert.Error(t, f.AddVariableAsType("x", 0, 3, TypeF32, 0, nil), "bad parent")
	assert.Error(t, f.AddVariableAsStruct("x", 0, RootParent, 0, 0, nil), "bad struct id")
	assert.Error(t, f.AddVariableAsType("x", 0, RootParent, Type(0), 0, nil), "invalid type")

	require.NoError(t, f.AddVariableAsType("x", 0, RootParent, TypeF32, 0, nil))
	assert.Error(t, f.AddVariableAsType("x", 4, RootParent, TypeF32, 0, nil), "duplicate name in scope")

	// Nesting under a primitive variable is not allowed.
	assert.Error(t, f.AddVariableAsType("y", 0, 0, TypeF32, 0, nil))
}

func TestHashStability(t *testing.T) {
	a := buildLayout(t, 0)
	b := buildLayout(t, 0)
	assert.Equal(t, a.ContentHash, b.ContentHash)

	// Hiding the magic number never changes identity.
	c := buildLayout(t, FlagHideMagicNumber)
	assert.Equal(t, a.ContentHash, c.ContentHash)

	// Packing does.
	d := buildLayout(t, FlagIsTightlyPacked)
	assert.NotEqual(t, a.ContentHash, d.ContentHash)
}

func TestRoundTrip(t *testing.T) {
	for _, hidden := range []bool{false, true} {
		flags := Flags(0)
		if hidden {
			flags = FlagHideMagicNumber
		}
		f := buildLayout(t, flags)

		blob, err := f.Write()
		require.NoError(t, err)

		got, err := Read(blob, hidden)
		require.NoError(t, err)
		assert.Equal(t, f.Structs, got.Structs)
		assert.Equal(t, f.Vars, got.Vars)
		assert.Equal(t, f.StructNames, got.StructNames)
		assert.Equal(t, f.VarNames, got.VarNames)
		assert.Equal(t, f.Arrays, got.Arrays)
		assert.Equal(t, f.BufferSize, got.BufferSize)
		assert.Equal(t, f.ContentHash, got.ContentHash)
	}
}

func TestReadRejectsCorruption(t *testing.T) {
	f := buildLayout(t, 0)
	blob, err := f.Write()
	require.NoError(t, err)

	// Flip a byte inside the trailing array dimension; the content hash must
	// catch it.
	corrupt := append([]byte(nil), blob...)
	corrupt[len(corrupt)-2] ^= 0x55
	_, err = Read(corrupt, false)
	assert.Error(t, err)

	_, err = Read(blob[:8], false)
	assert.Error(t, err, "truncated")
}

func TestCombineMergesUsage(t *testing.T) {
	a := buildLayout(t, 0)
	b := buildLayout(t, 0)

	// Same layout, different usage flags.
	b.Vars[0].Flags = VarUsedDXIL
	b.rehash()

	c, err := Combine(a, b)
	require.NoError(t, err)
	assert.Equal(t, VarUsedSPIRV|VarUsedDXIL, c.Vars[0].Flags)
	assert.Len(t, c.Vars, len(a.Vars))
}

func TestCombineAddsNewVars(t *testing.T) {
	a := buildLayout(t, 0)
	b := buildLayout(t, 0)
	require.NoError(t, b.AddVariableAsType("extra", 144, RootParent, TypeF32x4, VarUsedDXIL, nil))

	c, err := Combine(a, b)
	require.NoError(t, err)
	assert.Len(t, c.Vars, len(a.Vars)+1)
	assert.Equal(t, "extra", c.VarNames[len(c.Vars)-1])
}

func TestCombineRejectsMismatch(t *testing.T) {
	a := buildLayout(t, 0)

	sized, err := New(0, 512)
	require.NoError(t, err)
	_, err = Combine(a, sized)
	assert.Error(t, err, "different buffer size")

	b := buildLayout(t, 0)
	b.Vars[0].Offset = 8
	b.rehash()
	_, err = Combine(a, b)
	assert.Error(t, err, "different offsets")
}
