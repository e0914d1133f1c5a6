package sh

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/oish/sb"
)

// computeBinary returns a minimal valid SPIR-V-only binary for "main".
func computeBinary() BinaryInfo {
	info := BinaryInfo{
		Identifier: BinaryIdentifier{
			Entrypoint:  "main",
			ShaderModel: MakeShaderModel(6, 5),
			Stage:       StageCompute,
		},
		VendorMask: VendorMaskAll,
	}
	info.Binaries[BinarySPIRV] = []byte{1, 2, 3, 4}
	return info
}

func spirvOnly(space, binding uint32) Bindings {
	b := NoBindings()
	b[BinarySPIRV] = Binding{Space: space, Binding: binding}
	return b
}

func dxilOnly(space, binding uint32) Bindings {
	b := NoBindings()
	b[BinaryDXIL] = Binding{Space: space, Binding: binding}
	return b
}

func bothAPIs(space, binding uint32) Bindings {
	return Bindings{
		{Space: space, Binding: binding},
		{Space: space, Binding: binding},
	}
}

func TestAddBinaryValidation(t *testing.T) {
	newFile := func() *File {
		f, err := New(0, 1, 2)
		require.NoError(t, err)
		return f
	}

	tests := []struct {
		name   string
		mutate func(*BinaryInfo)
	}{
		{"no blob", func(b *BinaryInfo) { b.Binaries[BinarySPIRV] = nil }},
		{"zero vendor mask", func(b *BinaryInfo) { b.VendorMask = 0 }},
		{"vendor mask out of range", func(b *BinaryInfo) { b.VendorMask = 1 << 9 }},
		{"extensions out of range", func(b *BinaryInfo) { b.Identifier.Extensions = ExtAll + 1 }},
		{"invalid stage", func(b *BinaryInfo) { b.Identifier.Stage = StageCount }},
		{"shader model too old", func(b *BinaryInfo) { b.Identifier.ShaderModel = MakeShaderModel(6, 4) }},
		{"shader model too new", func(b *BinaryInfo) { b.Identifier.ShaderModel = MakeShaderModel(6, 9) }},
		{"unaligned SPIRV", func(b *BinaryInfo) { b.Binaries[BinarySPIRV] = []byte{1, 2, 3} }},
		{"annotation with entrypoint", func(b *BinaryInfo) { b.HasShaderAnnotation = true }},
		{"no annotation without entrypoint", func(b *BinaryInfo) { b.Identifier.Entrypoint = "" }},
		{"duplicate uniform name", func(b *BinaryInfo) {
			b.Identifier.Uniforms = []Uniform{{Name: "A", Value: "1"}, {Name: "A", Value: "2"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := computeBinary()
			tt.mutate(&info)
			assert.Error(t, newFile().AddBinary(&info))
		})
	}

	f := newFile()
	info := computeBinary()
	require.NoError(t, f.AddBinary(&info))
	assert.Len(t, f.Binaries, 1)
	assert.Zero(t, info.VendorMask, "info must be consumed")
}

func TestAddBinaryRejectsDuplicateIdentifier(t *testing.T) {
	f, err := New(0, 1, 2)
	require.NoError(t, err)

	a := computeBinary()
	require.NoError(t, f.AddBinary(&a))

	b := computeBinary()
	err = f.AddBinary(&b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestAddBinaryAllVendorShorthand(t *testing.T) {
	f, err := New(0, 1, 2)
	require.NoError(t, err)

	info := computeBinary()
	info.VendorMask = 0xFFFF
	require.NoError(t, f.AddBinary(&info))
	assert.Equal(t, VendorMaskAll, f.Binaries[0].VendorMask)
}

func TestBindlessDetection(t *testing.T) {
	f, err := New(0, 1, 2)
	require.NoError(t, err)

	info := computeBinary()
	for i := 0; i < 17; i++ {
		require.NoError(t, info.Registers.AddTexture(
			fmt.Sprintf("tex%d", i), Texture2D, false, false, 1, TexPrimNone, nil, spirvOnly(0, uint32(i))))
	}
	require.NoError(t, f.AddBinary(&info))

	id := &f.Binaries[0].Identifier
	assert.NotZero(t, id.Extensions&ExtBindless, "17 sampled textures exceed the legacy budget")
	assert.Zero(t, id.Extensions&ExtUnboundArraySize)
}

func TestUnboundArrayDetection(t *testing.T) {
	f, err := New(0, 1, 2)
	require.NoError(t, err)

	info := computeBinary()
	require.NoError(t, info.Registers.AddTexture(
		"bindless", Texture2D, false, false, 1, TexPrimNone, []uint32{0}, spirvOnly(0, 0)))
	require.NoError(t, f.AddBinary(&info))

	id := &f.Binaries[0].Identifier
	assert.NotZero(t, id.Extensions&ExtBindless)
	assert.NotZero(t, id.Extensions&ExtUnboundArraySize)
}

func TestBindlessChangesIdentifier(t *testing.T) {
	plain := computeBinary().Identifier

	f, err := New(0, 1, 2)
	require.NoError(t, err)
	info := computeBinary()
	for i := 0; i < 17; i++ {
		require.NoError(t, info.Registers.AddTexture(
			fmt.Sprintf("tex%d", i), Texture2D, false, false, 1, TexPrimNone, nil, spirvOnly(0, uint32(i))))
	}
	require.NoError(t, f.AddBinary(&info))

	assert.False(t, f.Binaries[0].Identifier.Equal(&plain))
}

func TestDescriptorSetLimit(t *testing.T) {
	f, err := New(0, 1, 2)
	require.NoError(t, err)

	info := computeBinary()
	for i := 0; i < 5; i++ {
		require.NoError(t, info.Registers.AddTexture(
			fmt.Sprintf("tex%d", i), Texture2D, false, false, 1, TexPrimNone, nil, spirvOnly(uint32(i), 0)))
	}
	err = f.AddBinary(&info)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacity))
}

func TestSubpassInputCeiling(t *testing.T) {
	f, err := New(0, 1, 2)
	require.NoError(t, err)

	info := computeBinary()
	for i := 0; i < 9; i++ {
		require.NoError(t, info.Registers.AddSubpassInput(
			fmt.Sprintf("in%d", i), 1, spirvOnly(0, uint32(i)), uint16(i%7)))
	}
	err = f.AddBinary(&info)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacity))

	// Attachment ids are hard-capped below 7 at construction time.
	var regs RegisterList
	assert.Error(t, regs.AddSubpassInput("in", 1, spirvOnly(0, 0), 7))
}

func TestRegisterNameCollision(t *testing.T) {
	var regs RegisterList
	require.NoError(t, regs.AddSampler("smp", false, 1, nil, bothAPIs(0, 0)))

	err := regs.AddTexture("smp", Texture2D, false, false, 1, TexPrimNone, nil, spirvOnly(0, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestDXILBindingClassDisambiguation(t *testing.T) {
	var regs RegisterList

	buf, err := sb.New(0, 256)
	require.NoError(t, err)
	require.NoError(t, buf.AddVariableAsType("x", 0, sb.RootParent, sb.TypeF32, sb.VarUsedDXIL, nil))

	// CBV at DXIL (0, 0): register class b.
	require.NoError(t, regs.AddBuffer("cb", BufferConstant, false, 2, nil, buf, dxilOnly(0, 0)))

	// SRV texture at DXIL (0, 0): class t, no collision.
	require.NoError(t, regs.AddTexture("tex", Texture2D, false, false, 2, TexPrimNone, nil, dxilOnly(0, 0)))

	// A second CBV at the same binding collides on class b.
	buf2, err := sb.New(0, 128)
	require.NoError(t, err)
	require.NoError(t, buf2.AddVariableAsType("y", 0, sb.RootParent, sb.TypeF32, sb.VarUsedDXIL, nil))
	err = regs.AddBuffer("cb2", BufferConstant, false, 2, nil, buf2, dxilOnly(0, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestSPIRVBindingCollision(t *testing.T) {
	var regs RegisterList
	require.NoError(t, regs.AddSampler("a", false, 1, nil, spirvOnly(1, 3)))

	err := regs.AddTexture("b", Texture2D, false, false, 1, TexPrimNone, nil, spirvOnly(1, 3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestBufferRegisterRules(t *testing.T) {
	var regs RegisterList

	padded, err := sb.New(0, 256)
	require.NoError(t, err)
	tight, err := sb.New(sb.FlagIsTightlyPacked, 256)
	require.NoError(t, err)

	// Constant buffers must be padded.
	assert.Error(t, regs.AddBuffer("cb", BufferConstant, false, 1, nil, tight, bothAPIs(0, 0)))
	require.NoError(t, regs.AddBuffer("cb", BufferConstant, false, 1, nil, padded, bothAPIs(0, 0)))

	// Structured buffers must be tightly packed.
	padded2, err := sb.New(0, 64)
	require.NoError(t, err)
	assert.Error(t, regs.AddBuffer("sb", BufferStructured, false, 1, nil, padded2, bothAPIs(0, 1)))

	// Byte-address buffers carry no layout.
	assert.Error(t, regs.AddBuffer("bab", BufferByteAddress, false, 1, nil, tight, bothAPIs(0, 2)))
	require.NoError(t, regs.AddBuffer("bab", BufferByteAddress, false, 1, nil, nil, bothAPIs(0, 2)))

	// Atomic buffers are always written; CBV and RTAS never.
	tight2, err := sb.New(sb.FlagIsTightlyPacked, 64)
	require.NoError(t, err)
	assert.Error(t, regs.AddBuffer("at", BufferStructuredAtomic, false, 1, nil, tight2, bothAPIs(0, 3)))
	assert.Error(t, regs.AddBuffer("as", BufferAccelerationStructure, true, 1, nil, nil, bothAPIs(0, 4)))
}

func TestCBVSizeLimit(t *testing.T) {
	var regs RegisterList
	big, err := sb.New(0, 64*1024)
	require.NoError(t, err)
	assert.Error(t, regs.AddBuffer("cb", BufferConstant, false, 1, nil, big, bothAPIs(0, 0)))
}

func TestIdenticalRegisterIsSkipped(t *testing.T) {
	var regs RegisterList
	require.NoError(t, regs.AddSampler("smp", false, 1, nil, bothAPIs(0, 0)))
	require.NoError(t, regs.AddSampler("smp", false, 1, nil, bothAPIs(0, 0)))
	assert.Len(t, regs, 1)
}

func TestRegisterHashUniqueness(t *testing.T) {
	var regs RegisterList
	require.NoError(t, regs.AddSampler("a", false, 1, nil, bothAPIs(0, 0)))
	require.NoError(t, regs.AddSampler("b", true, 1, nil, bothAPIs(0, 1)))
	require.NoError(t, regs.AddTexture("c", TextureCube, true, false, 2, TexPrimFloat.WithComponents(4), []uint32{6}, spirvOnly(1, 0)))

	seen := map[uint64]bool{}
	for i := range regs {
		assert.False(t, seen[regs[i].Hash], "hash collision at %d", i)
		seen[regs[i].Hash] = true
	}
}
