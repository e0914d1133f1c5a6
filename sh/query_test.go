package sh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryFile(t *testing.T) *File {
	t.Helper()
	f, err := New(0, 1, 2)
	require.NoError(t, err)

	add := func(model ShaderModel, ext Extension, uniforms []Uniform) {
		info := BinaryInfo{
			Identifier: BinaryIdentifier{
				Entrypoint:  "main",
				Uniforms:    uniforms,
				Extensions:  ext,
				ShaderModel: model,
				Stage:       StageCompute,
			},
			VendorMask: VendorMaskAll,
		}
		info.Binaries[BinarySPIRV] = []byte{1, 0, 0, 0}
		require.NoError(t, f.AddBinary(&info))
	}
	add(MakeShaderModel(6, 5), 0, nil)
	add(MakeShaderModel(6, 6), ExtF64, nil)
	add(MakeShaderModel(6, 5), 0, []Uniform{{Name: "FAST", Value: "1"}})

	entry := Entry{Name: "main", Stage: StageCompute, GroupX: 8, GroupY: 8, GroupZ: 1,
		BinaryIDs: []uint16{0, 1, 2}}
	require.NoError(t, f.AddEntrypoint(&entry))
	return f
}

func TestFindFirstCompatible(t *testing.T) {
	f := queryFile(t)
	caps := DeviceCaps{ShaderModel: MakeShaderModel(6, 8), Extensions: ExtAll}

	entry, slot := f.FindFirstCompatible("main", nil, 0, 0, caps)
	assert.Equal(t, uint16(0), entry)
	assert.Equal(t, uint16(0), slot)

	// Require F64: only the second binary matches.
	entry, slot = f.FindFirstCompatible("main", nil, 0, ExtF64, caps)
	assert.Equal(t, uint16(0), entry)
	assert.Equal(t, uint16(1), slot)

	// Uniform set must match element-wise.
	entry, slot = f.FindFirstCompatible("main", []Uniform{{Name: "FAST", Value: "1"}}, 0, 0, caps)
	assert.Equal(t, uint16(0), entry)
	assert.Equal(t, uint16(2), slot)

	// Disallowed extension skips the F64 build.
	_, slot = f.FindFirstCompatible("main", nil, ExtF64, ExtF64, caps)
	assert.Equal(t, NotFoundID, slot)

	// Device without F64 support cannot take binary 1.
	weak := DeviceCaps{ShaderModel: MakeShaderModel(6, 8)}
	_, slot = f.FindFirstCompatible("main", nil, 0, ExtF64, weak)
	assert.Equal(t, NotFoundID, slot)

	// Device capped below the shader model rejects it.
	old := DeviceCaps{ShaderModel: MakeShaderModel(6, 5), Extensions: ExtAll}
	_, slot = f.FindFirstCompatible("main", nil, 0, ExtF64, old)
	assert.Equal(t, NotFoundID, slot)

	// Names are case-sensitive.
	entry, _ = f.FindFirstCompatible("Main", nil, 0, 0, caps)
	assert.Equal(t, NotFoundID, entry)
}
