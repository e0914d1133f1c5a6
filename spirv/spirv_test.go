package spirv

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/oish/sh"
)

// assemble builds a module from raw instructions.
func assemble(instructions ...[]uint32) []byte {
	words := []uint32{MagicNumber, 0x00010300, 0, 100, 0}
	for _, ins := range instructions {
		words = append(words, ins...)
	}
	blob := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(blob[i*4:], w)
	}
	return blob
}

func op(code OpCode, operands ...uint32) []uint32 {
	return append([]uint32{uint32(len(operands)+1)<<16 | uint32(code)}, operands...)
}

// opString packs a nul-terminated literal into operand words.
func opString(code OpCode, pre []uint32, s string) []uint32 {
	operands := append([]uint32(nil), pre...)
	data := append([]byte(s), 0)
	for len(data)%4 != 0 {
		data = append(data, 0)
	}
	for i := 0; i < len(data); i += 4 {
		operands = append(operands, binary.LittleEndian.Uint32(data[i:]))
	}
	return op(code, operands...)
}

func TestParseValidatesHeader(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3})
	assert.Error(t, err, "not a word multiple")

	_, err = Parse(make([]byte, 8))
	assert.Error(t, err, "too short")

	bad := assemble()
	bad[0] ^= 0xFF
	_, err = Parse(bad)
	assert.Error(t, err, "bad magic")

	m, err := Parse(assemble())
	require.NoError(t, err)
	assert.Equal(t, uint32(100), m.Header.Bound)
	assert.Empty(t, m.Instructions)
}

func TestParseRejectsTruncatedInstruction(t *testing.T) {
	blob := assemble(op(OpCapability, 1))
	// Claim the instruction is longer than the module.
	binary.LittleEndian.PutUint32(blob[20:], 9<<16|uint32(OpCapability))
	_, err := Parse(blob)
	assert.Error(t, err)
}

func TestProcessReflection(t *testing.T) {
	blob := assemble(
		op(OpCapability, uint32(CapabilityFloat64)),
		op(OpCapability, uint32(CapabilityRayQueryKHR)),
		opString(OpEntryPoint, []uint32{uint32(ExecutionModelGLCompute), 4}, "main"),
		opString(OpName, []uint32{8}, "constants"),
		op(OpDecorate, 8, uint32(DecorationDescriptorSet), 1),
		op(OpDecorate, 8, uint32(DecorationBinding), 3),
		opString(OpName, []uint32{9}, "depthInput"),
		op(OpDecorate, 9, uint32(DecorationDescriptorSet), 0),
		op(OpDecorate, 9, uint32(DecorationBinding), 0),
		op(OpDecorate, 9, uint32(DecorationInputAttachmentIndex), 2),
	)

	refl, err := Process(blob)
	require.NoError(t, err)

	assert.Equal(t, ExecutionModelGLCompute, refl.EntryPoints["main"])
	require.Len(t, refl.Bindings, 2)

	byName := map[string]Binding{}
	for _, b := range refl.Bindings {
		byName[b.Name] = b
	}
	assert.Equal(t, uint32(1), byName["constants"].Set)
	assert.Equal(t, uint32(3), byName["constants"].Binding)
	assert.Equal(t, -1, byName["constants"].AttachmentIndex)
	assert.Equal(t, 2, byName["depthInput"].AttachmentIndex)
}

func TestDemotions(t *testing.T) {
	blob := assemble(op(OpCapability, uint32(CapabilityFloat64)))
	refl, err := Process(blob)
	require.NoError(t, err)

	declared := sh.ExtF64 | sh.ExtI64 | sh.ExtRayQuery | sh.ExtPAQ
	demoted := refl.Demotions(declared)

	assert.Zero(t, demoted&sh.ExtF64, "F64 capability is present")
	assert.NotZero(t, demoted&sh.ExtI64, "Int64 capability is absent")
	assert.NotZero(t, demoted&sh.ExtRayQuery)
	assert.Zero(t, demoted&sh.ExtPAQ, "PAQ is not SPIR-V-native, never demoted here")
}

func TestDecodeString(t *testing.T) {
	ins := opString(OpName, []uint32{7}, "linearSampler")
	// Skip the opcode word and the id operand.
	s, next := DecodeString(ins[1:], 1)
	assert.Equal(t, "linearSampler", s)
	assert.Equal(t, len(ins)-1, next)
}

func TestDisassemble(t *testing.T) {
	blob := assemble(
		op(OpCapability, 1),
		opString(OpEntryPoint, []uint32{uint32(ExecutionModelGLCompute), 4}, "main"),
	)
	text, err := Disassemble(blob)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "; SPIR-V"))
	assert.Contains(t, text, "OpCapability 1")
	assert.Contains(t, text, "OpEntryPoint")
	assert.Contains(t, text, "Bound: 100")
}
