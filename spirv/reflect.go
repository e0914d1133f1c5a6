// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package spirv

import "github.com/gogpu/oish/sh"

// Capability represents a SPIR-V capability.
type Capability uint32

// Capabilities that map to container extensions.
const (
	CapabilityFloat64                 Capability = 10
	CapabilityInt64                   Capability = 11
	CapabilityInt64Atomics            Capability = 12
	CapabilityInt16                   Capability = 22
	CapabilityStorageImageMultisample Capability = 27
	CapabilityMultiView               Capability = 4439
	CapabilityGroupNonUniformArithmetic Capability = 63
	CapabilityGroupNonUniformShuffle  Capability = 65
	CapabilityGroupNonUniform         Capability = 61
	CapabilityAtomicFloat32AddEXT     Capability = 6033
	CapabilityAtomicFloat64AddEXT     Capability = 6034
	CapabilityRayQueryKHR             Capability = 4472
	CapabilityRayTracingMotionBlurNV  Capability = 5341
	CapabilityRayTracingOpacityMicromapEXT Capability = 5381
	CapabilityShaderInvocationReorderNV    Capability = 5383
	CapabilityComputeDerivativeGroupLinearNV Capability = 5350
)

// capabilityExtensions maps capabilities to the extension bits they prove
// the module actually uses.
var capabilityExtensions = map[Capability]sh.Extension{
	CapabilityFloat64:                        sh.ExtF64,
	CapabilityInt64:                          sh.ExtI64,
	CapabilityInt64Atomics:                   sh.ExtAtomicI64,
	CapabilityInt16:                          sh.Ext16BitTypes,
	CapabilityStorageImageMultisample:        sh.ExtWriteMSTexture,
	CapabilityMultiView:                      sh.ExtMultiview,
	CapabilityGroupNonUniformArithmetic:      sh.ExtSubgroupArithmetic,
	CapabilityGroupNonUniformShuffle:         sh.ExtSubgroupShuffle,
	CapabilityGroupNonUniform:                sh.ExtSubgroupOperations,
	CapabilityAtomicFloat32AddEXT:            sh.ExtAtomicF32,
	CapabilityAtomicFloat64AddEXT:            sh.ExtAtomicF64,
	CapabilityRayQueryKHR:                    sh.ExtRayQuery,
	CapabilityRayTracingMotionBlurNV:         sh.ExtRayMotionBlur,
	CapabilityRayTracingOpacityMicromapEXT:   sh.ExtRayMicromapOpacity,
	CapabilityShaderInvocationReorderNV:      sh.ExtRayReorder,
	CapabilityComputeDerivativeGroupLinearNV: sh.ExtComputeDeriv,
}

// Binding is one descriptor binding found in a module.
type Binding struct {
	Name    string
	Set     uint32
	Binding uint32

	// AttachmentIndex is set for subpass inputs, else -1.
	AttachmentIndex int
}

// Reflection is what Process extracts from one module.
type Reflection struct {
	// EntryPoints maps entrypoint names to their execution model.
	EntryPoints map[string]ExecutionModel

	// Bindings are the descriptor bindings, in declaration order.
	Bindings []Binding

	// Capabilities are the declared capability ids.
	Capabilities []Capability
}

// Process walks a compiled module and extracts reflection: entrypoints,
// descriptor bindings and declared capabilities. The demotion bitset for
// an identifier follows from the capabilities: every declared extension
// with a SPIR-V-native capability mapping that the module does not declare
// was demoted by the backend.
func Process(blob []byte) (*Reflection, error) {
	m, err := Parse(blob)
	if err != nil {
		return nil, err
	}

	refl := &Reflection{EntryPoints: make(map[string]ExecutionModel)}

	names := make(map[uint32]string)
	sets := make(map[uint32]uint32)
	bindings := make(map[uint32]uint32)
	attachments := make(map[uint32]uint32)
	var bindingOrder []uint32

	for _, ins := range m.Instructions {
		switch ins.Op {
		case OpCapability:
			if len(ins.Operands) == 1 {
				refl.Capabilities = append(refl.Capabilities, Capability(ins.Operands[0]))
			}

		case OpEntryPoint:
			if len(ins.Operands) >= 3 {
				name, _ := DecodeString(ins.Operands, 2)
				refl.EntryPoints[name] = ExecutionModel(ins.Operands[0])
			}

		case OpName:
			if len(ins.Operands) >= 2 {
				name, _ := DecodeString(ins.Operands, 1)
				names[ins.Operands[0]] = name
			}

		case OpDecorate:
			if len(ins.Operands) < 3 {
				continue
			}
			target := ins.Operands[0]
			switch Decoration(ins.Operands[1]) {
			case DecorationDescriptorSet:
				sets[target] = ins.Operands[2]
			case DecorationBinding:
				if _, seen := bindings[target]; !seen {
					bindingOrder = append(bindingOrder, target)
				}
				bindings[target] = ins.Operands[2]
			case DecorationInputAttachmentIndex:
				attachments[target] = ins.Operands[2]
			}
		}
	}

	for _, id := range bindingOrder {
		b := Binding{
			Name:            names[id],
			Set:             sets[id],
			Binding:         bindings[id],
			AttachmentIndex: -1,
		}
		if idx, ok := attachments[id]; ok {
			b.AttachmentIndex = int(idx)
		}
		refl.Bindings = append(refl.Bindings, b)
	}
	return refl, nil
}

// Demotions returns the declared extensions the module provably does not
// use: the SPIR-V-native ones whose capability never shows up.
func (r *Reflection) Demotions(declared sh.Extension) sh.Extension {
	used := sh.Extension(0)
	for _, c := range r.Capabilities {
		used |= capabilityExtensions[c]
	}
	return declared & sh.ExtSPIRVNative &^ used
}
