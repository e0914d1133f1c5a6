// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package spirv

import (
	"fmt"
	"strings"
)

var opcodeNames = map[OpCode]string{
	OpNop: "OpNop", OpSource: "OpSource", OpName: "OpName",
	OpMemberName: "OpMemberName", OpString: "OpString",
	OpExtension: "OpExtension", OpExtInstImport: "OpExtInstImport",
	OpMemoryModel: "OpMemoryModel", OpEntryPoint: "OpEntryPoint",
	OpExecutionMode: "OpExecutionMode", OpCapability: "OpCapability",
	OpTypeVoid: "OpTypeVoid", OpTypeBool: "OpTypeBool",
	OpTypeInt: "OpTypeInt", OpTypeFloat: "OpTypeFloat",
	OpTypeVector: "OpTypeVector", OpTypeMatrix: "OpTypeMatrix",
	OpTypeImage: "OpTypeImage", OpTypeSampler: "OpTypeSampler",
	OpTypeSampledImage: "OpTypeSampledImage", OpTypeArray: "OpTypeArray",
	OpTypeRuntimeArray: "OpTypeRuntimeArray", OpTypeStruct: "OpTypeStruct",
	OpTypePointer: "OpTypePointer", OpTypeFunction: "OpTypeFunction",
	OpConstant: "OpConstant", OpFunction: "OpFunction",
	OpFunctionEnd: "OpFunctionEnd", OpVariable: "OpVariable",
	OpDecorate: "OpDecorate", OpMemberDecorate: "OpMemberDecorate",
	OpTypeAccelerationStructureKHR: "OpTypeAccelerationStructureKHR",
}

// Disassemble renders a module as one instruction per line, with a header
// comment block carrying the version and id bound.
func Disassemble(blob []byte) (string, error) {
	m, err := Parse(blob)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "; SPIR-V\n; Version: %d.%d\n; Generator: 0x%08X\n; Bound: %d\n; Schema: %d\n",
		m.Header.Version>>16&0xFF, m.Header.Version>>8&0xFF,
		m.Header.Generator, m.Header.Bound, m.Header.Schema)

	for _, ins := range m.Instructions {
		name, ok := opcodeNames[ins.Op]
		if !ok {
			name = fmt.Sprintf("Op#%d", ins.Op)
		}
		out.WriteString(name)
		for _, w := range ins.Operands {
			fmt.Fprintf(&out, " %d", w)
		}
		out.WriteByte('\n')
	}
	return out.String(), nil
}
