package oish

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/oish/sh"
)

func TestOpenSaveRoundTrip(t *testing.T) {
	file, err := sh.New(0, 3, 7)
	require.NoError(t, err)

	info := sh.BinaryInfo{
		Identifier: sh.BinaryIdentifier{
			Entrypoint:  "main",
			ShaderModel: sh.MakeShaderModel(6, 5),
			Stage:       sh.StageCompute,
		},
		VendorMask: sh.VendorMaskAll,
	}
	info.Binaries[sh.BinarySPIRV] = []byte{1, 0, 0, 0}
	require.NoError(t, file.AddBinary(&info))

	entry := sh.Entry{Name: "main", Stage: sh.StageCompute, GroupX: 8, GroupY: 8, GroupZ: 1, BinaryIDs: []uint16{0}}
	require.NoError(t, file.AddEntrypoint(&entry))

	path := filepath.Join(t.TempDir(), "shader.oiSH")
	require.NoError(t, Save(file, path))

	got, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, got.Binaries, 1)
	assert.Len(t, got.Entries, 1)
	assert.Equal(t, uint32(3), got.CompilerVersion)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.oiSH"))
	assert.Error(t, err)
}
