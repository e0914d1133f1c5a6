// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sh

// EntryRuntime is an entrypoint as discovered in the source, before it is
// resolved to binaries: the entry plus the permutation matrix of shader
// models, extension sets and uniform sets it must be compiled under.
type EntryRuntime struct {
	Entry Entry

	VendorMask uint16

	// IsShaderAnnotation distinguishes [shader("...")] library entries
	// from [[oxc::stage("...")]] ones.
	IsShaderAnnotation bool

	// Extensions lists one extension bitset per extension permutation.
	Extensions []Extension

	// ShaderModels lists one model per shader-model permutation.
	ShaderModels []ShaderModel

	// UniformValues is the flat pair list all uniform permutations slice
	// into; UniformsPerPermutation[i] pairs belong to permutation i.
	UniformValues         []Uniform
	UniformsPerPermutation []uint8
}

// Combinations returns the size of the permutation matrix; each axis
// contributes at least one combination.
func (r *EntryRuntime) Combinations() uint32 {
	return uint32(maxLen(len(r.ShaderModels)) * maxLen(len(r.Extensions)) * maxLen(len(r.UniformsPerPermutation)))
}

func maxLen(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// IdentifierAt builds the binary identifier of combination c. The index
// decomposes column-major: shader model varies fastest, then extensions,
// then uniforms. Raytracing stages collapse to raygen so every RT stage of
// one source lands in a single library binary per permutation.
func (r *EntryRuntime) IdentifierAt(c uint32) (BinaryIdentifier, error) {
	nsv := uint32(maxLen(len(r.ShaderModels)))
	next := uint32(maxLen(len(r.Extensions)))
	nuni := uint32(maxLen(len(r.UniformsPerPermutation)))

	sv := c % nsv
	c /= nsv
	ext := c % next
	c /= next
	if c >= nuni {
		return BinaryIdentifier{}, errf(ErrInvariantViolation, "combination index out of bounds")
	}
	uni := c

	id := BinaryIdentifier{
		Stage:       r.Entry.Stage,
		ShaderModel: ShaderModelMin,
	}
	if !r.IsShaderAnnotation {
		id.Entrypoint = r.Entry.Name
	}
	if len(r.ShaderModels) > 0 {
		id.ShaderModel = r.ShaderModels[sv]
	}
	if len(r.Extensions) > 0 {
		id.Extensions = r.Extensions[ext]
	}
	if id.Stage.IsRaytracing() {
		id.Stage = rtStart
	}

	if len(r.UniformsPerPermutation) > 0 {
		off := 0
		for i := uint32(0); i < uni; i++ {
			off += int(r.UniformsPerPermutation[i])
		}
		n := int(r.UniformsPerPermutation[uni])
		if n > 0 {
			id.Uniforms = r.UniformValues[off : off+n]
		}
	}
	return id, nil
}

// BinaryInfoAt wraps IdentifierAt into a BinaryInfo carrying one backend
// blob, ready for File.AddBinary.
func (r *EntryRuntime) BinaryInfoAt(c uint32, binaryType BinaryType, blob []byte, dormant Extension) (BinaryInfo, error) {
	if binaryType >= BinaryTypeCount {
		return BinaryInfo{}, errf(ErrInvariantViolation, "binary type %d out of bounds", binaryType)
	}
	id, err := r.IdentifierAt(c)
	if err != nil {
		return BinaryInfo{}, err
	}
	info := BinaryInfo{
		Identifier:          id,
		DormantExtensions:   dormant,
		VendorMask:          r.VendorMask,
		HasShaderAnnotation: r.IsShaderAnnotation,
	}
	info.Binaries[binaryType] = blob
	return info, nil
}
