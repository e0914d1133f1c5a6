package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/oish/sb"
	"github.com/gogpu/oish/sh"
)

func warningsFile(t *testing.T) *sh.File {
	t.Helper()
	f, err := sh.New(0, 1, 2)
	require.NoError(t, err)

	layout, err := sb.New(0, 512)
	require.NoError(t, err)
	require.NoError(t, layout.AddVariableAsType("used", 0, sb.RootParent, sb.TypeF32x4, sb.VarUsedSPIRV, nil))
	require.NoError(t, layout.AddVariableAsType("deadWeight", 16, sb.RootParent, sb.TypeF32x4, 0, nil))

	info := sh.BinaryInfo{
		Identifier: sh.BinaryIdentifier{
			Entrypoint:  "main",
			ShaderModel: sh.MakeShaderModel(6, 5),
			Stage:       sh.StageCompute,
		},
		VendorMask: sh.VendorMaskAll,
	}
	info.Binaries[sh.BinarySPIRV] = []byte{1, 0, 0, 0}

	bindings := sh.NoBindings()
	bindings[sh.BinarySPIRV] = sh.Binding{Space: 0, Binding: 0}
	require.NoError(t, info.Registers.AddBuffer("Constants", sh.BufferConstant, false, 1, nil, layout, bindings))

	unusedBindings := sh.NoBindings()
	unusedBindings[sh.BinarySPIRV] = sh.Binding{Space: 0, Binding: 1}
	require.NoError(t, info.Registers.AddSampler("ghostSampler", false, 0, nil, unusedBindings))

	require.NoError(t, f.AddBinary(&info))

	entry := sh.Entry{Name: "main", Stage: sh.StageCompute, GroupX: 8, GroupY: 8, GroupZ: 1, BinaryIDs: []uint16{0}}
	require.NoError(t, f.AddEntrypoint(&entry))
	return f
}

func TestScanWarnings(t *testing.T) {
	f := warningsFile(t)

	all := ScanWarnings(f, WarnUnusedRegisters|WarnUnusedConstants|WarnBufferPadding)
	joined := ""
	for _, m := range all {
		assert.Equal(t, SeverityWarn, m.Severity)
		joined += m.Text + "\n"
	}
	assert.Contains(t, joined, "ghostSampler")
	assert.Contains(t, joined, "deadWeight")
	assert.Contains(t, joined, "padded bytes")
	assert.NotContains(t, joined, "\"used\"")

	none := ScanWarnings(f, 0)
	assert.Empty(t, none)

	only := ScanWarnings(f, WarnUnusedRegisters)
	for _, m := range only {
		assert.False(t, strings.Contains(m.Text, "deadWeight"))
	}
}
