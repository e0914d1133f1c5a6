// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package spirv provides word-stream utilities over compiled SPIR-V
// modules: header validation, instruction iteration, resource reflection
// and disassembly. It operates on finished binaries only; code generation
// is the backend compiler's job.
package spirv

import (
	"encoding/binary"
	"fmt"
)

// MagicNumber identifies a SPIR-V module.
const MagicNumber = 0x07230203

// OpCode represents a SPIR-V opcode.
type OpCode uint16

// Opcodes the reflection and disassembly passes care about.
const (
	OpNop               OpCode = 0
	OpSource            OpCode = 3
	OpName              OpCode = 5
	OpMemberName        OpCode = 6
	OpString            OpCode = 7
	OpExtension         OpCode = 10
	OpExtInstImport     OpCode = 11
	OpMemoryModel       OpCode = 14
	OpEntryPoint        OpCode = 15
	OpExecutionMode     OpCode = 16
	OpCapability        OpCode = 17
	OpTypeVoid          OpCode = 19
	OpTypeBool          OpCode = 20
	OpTypeInt           OpCode = 21
	OpTypeFloat         OpCode = 22
	OpTypeVector        OpCode = 23
	OpTypeMatrix        OpCode = 24
	OpTypeImage         OpCode = 25
	OpTypeSampler       OpCode = 26
	OpTypeSampledImage  OpCode = 27
	OpTypeArray         OpCode = 28
	OpTypeRuntimeArray  OpCode = 29
	OpTypeStruct        OpCode = 30
	OpTypePointer       OpCode = 32
	OpTypeFunction      OpCode = 33
	OpConstant          OpCode = 43
	OpFunction          OpCode = 54
	OpFunctionEnd       OpCode = 56
	OpVariable          OpCode = 59
	OpDecorate          OpCode = 71
	OpMemberDecorate    OpCode = 72
	OpTypeAccelerationStructureKHR OpCode = 5341
)

// Decoration represents a SPIR-V decoration.
type Decoration uint32

const (
	DecorationBlock         Decoration = 2
	DecorationBufferBlock   Decoration = 3
	DecorationArrayStride   Decoration = 6
	DecorationBuiltIn       Decoration = 11
	DecorationNonWritable   Decoration = 24
	DecorationLocation      Decoration = 30
	DecorationBinding       Decoration = 33
	DecorationDescriptorSet Decoration = 34
	DecorationOffset        Decoration = 35
	DecorationInputAttachmentIndex Decoration = 43
)

// ExecutionModel represents a SPIR-V execution model.
type ExecutionModel uint32

const (
	ExecutionModelVertex        ExecutionModel = 0
	ExecutionModelFragment      ExecutionModel = 4
	ExecutionModelGLCompute     ExecutionModel = 5
	ExecutionModelTaskNV        ExecutionModel = 5267
	ExecutionModelMeshNV        ExecutionModel = 5268
	ExecutionModelRayGeneration ExecutionModel = 5313
	ExecutionModelIntersection  ExecutionModel = 5314
	ExecutionModelAnyHit        ExecutionModel = 5315
	ExecutionModelClosestHit    ExecutionModel = 5316
	ExecutionModelMiss          ExecutionModel = 5317
	ExecutionModelCallable      ExecutionModel = 5318
)

// Header is the five-word SPIR-V module header.
type Header struct {
	Version   uint32
	Generator uint32
	Bound     uint32
	Schema    uint32
}

// Instruction is one decoded instruction: the opcode plus its operand
// words (result ids included, the opcode word excluded).
type Instruction struct {
	Op       OpCode
	Operands []uint32
}

// Module is a decoded word stream.
type Module struct {
	Header       Header
	Instructions []Instruction
}

// Parse validates the header and decodes the instruction stream. The blob
// length must be a multiple of four.
func Parse(blob []byte) (*Module, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("spirv: module length %d is not a multiple of 4", len(blob))
	}
	words := make([]uint32, len(blob)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(blob[i*4:])
	}
	if len(words) < 5 {
		return nil, fmt.Errorf("spirv: module of %d words is too short", len(words))
	}
	if words[0] != MagicNumber {
		return nil, fmt.Errorf("spirv: bad magic 0x%08X", words[0])
	}

	m := &Module{Header: Header{
		Version:   words[1],
		Generator: words[2],
		Bound:     words[3],
		Schema:    words[4],
	}}

	for i := 5; i < len(words); {
		word := words[i]
		wordCount := int(word >> 16)
		if wordCount == 0 || i+wordCount > len(words) {
			return nil, fmt.Errorf("spirv: instruction at word %d runs past the module", i)
		}
		m.Instructions = append(m.Instructions, Instruction{
			Op:       OpCode(word & 0xFFFF),
			Operands: words[i+1 : i+wordCount],
		})
		i += wordCount
	}
	return m, nil
}

// DecodeString reads a nul-terminated UTF-8 literal starting at operand
// index i and returns it with the index of the first operand after it.
func DecodeString(operands []uint32, i int) (string, int) {
	var buf []byte
	for ; i < len(operands); i++ {
		w := operands[i]
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(buf), i + 1
			}
			buf = append(buf, c)
		}
	}
	return string(buf), i
}
