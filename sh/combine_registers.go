// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sh

import (
	"strings"

	"github.com/gogpu/oish/sb"
)

func equalFold(a, b string) bool { return strings.EqualFold(a, b) }

func combineShaderBuffers(a, b *sb.File) (*sb.File, error) { return sb.Combine(a, b) }

// combineRegisters unifies the register sets of two binaries with equal
// identifiers. Registers pair up by name; unmatched ones are kept as-is.
func combineRegisters(a, b RegisterList) (RegisterList, error) {
	out := make(RegisterList, 0, len(a)+len(b))

	for i := range a {
		ra := &a[i]

		j := -1
		for k := range b {
			if b[k].Name == ra.Name {
				j = k
				break
			}
		}

		if j < 0 || b[j].Hash == ra.Hash {
			out = append(out, ra.clone())
			continue
		}

		merged, err := mergeRegister(ra, &b[j])
		if err != nil {
			return nil, err
		}
		out = append(out, merged)
	}

	for k := range b {
		rb := &b[k]
		found := false
		for i := range a {
			if a[i].Name == rb.Name {
				found = true
				break
			}
		}
		if !found {
			out = append(out, rb.clone())
		}
	}
	return out, nil
}

func mergeRegister(ra, rb *RegisterRuntime) (RegisterRuntime, error) {
	var merged RegisterRuntime
	merged.Name = ra.Name

	// Shader buffers must both be present or both absent.
	if (ra.ShaderBuffer != nil) != (rb.ShaderBuffer != nil) {
		return merged, errf(ErrIncompatible, "register %q has mismatching shader buffers", ra.Name)
	}
	if ra.ShaderBuffer != nil {
		combined, err := combineShaderBuffers(ra.ShaderBuffer, rb.ShaderBuffer)
		if err != nil {
			return merged, errf(ErrIncompatible, "register %q: %v", ra.Name, err)
		}
		merged.ShaderBuffer = combined
	}

	// Array dimensions: equal, or one side flattened with a matching
	// product; the multi-dimensional form wins ("unflattening").
	dims, err := mergeArrayDims(ra.Name, ra.Arrays, rb.Arrays)
	if err != nil {
		return merged, err
	}
	merged.Arrays = dims

	merged.Register = ra.Register
	merged.UsedFlags = ra.UsedFlags | rb.UsedFlags

	// Register kinds are identical up to two cross-API equivalences: a
	// DXIL SamplerComparisonState pairs with a plain SPIR-V Sampler, and
	// the SPIR-V combined-sampler bit has no DXIL counterpart.
	aSampler := ra.Kind.IsSampler()
	bSampler := rb.Kind.IsSampler()
	sameModuloCombined := ra.Kind == rb.Kind &&
		ra.IsArray == rb.IsArray && ra.IsWrite == rb.IsWrite
	if aSampler != bSampler || (!aSampler && !sameModuloCombined) {
		return merged, errf(ErrIncompatible, "register %q has mismatching register types", ra.Name)
	}
	if aSampler {
		merged.Kind = KindSampler
		if ra.Kind == KindSamplerComparison || rb.Kind == KindSamplerComparison {
			merged.Kind = KindSamplerComparison
		}
	}
	merged.IsCombinedSampler = ra.IsCombinedSampler || rb.IsCombinedSampler

	for t := BinaryType(0); t < BinaryTypeCount; t++ {
		ba, bb := ra.Bindings[t], rb.Bindings[t]
		switch {
		case ba.IsSet() && bb.IsSet():
			if ba != bb {
				return merged, errf(ErrIncompatible, "register %q has mismatching %s bindings", ra.Name, t)
			}
		case bb.IsSet():
			merged.Bindings[t] = bb
		}
	}

	if ra.Kind == KindSubpassInput && ra.AttachmentID != rb.AttachmentID {
		return merged, errf(ErrIncompatible, "register %q has mismatching attachment ids", ra.Name)
	}

	if ra.Kind.IsTexture() {
		tex, err := mergeTextureFormat(ra.Name, ra.Texture, rb.Texture)
		if err != nil {
			return merged, err
		}
		merged.Texture = tex
	}

	merged.rehash()
	return merged, nil
}

func mergeArrayDims(name string, a, b []uint32) ([]uint32, error) {
	product := func(dims []uint32) uint64 {
		if len(dims) == 0 {
			return 0
		}
		p := uint64(1)
		for _, d := range dims {
			p *= uint64(d)
		}
		return p
	}

	if len(a) == 1 || len(b) == 1 {
		if product(a) != product(b) {
			return nil, errf(ErrIncompatible, "register %q has mismatching flattened array size", name)
		}
		if len(b) != 1 {
			return append([]uint32(nil), b...), nil
		}
		return append([]uint32(nil), a...), nil
	}

	if len(a) != len(b) {
		return nil, errf(ErrIncompatible, "register %q has mismatching array dimensions", name)
	}
	for i := range a {
		if a[i] != b[i] {
			return nil, errf(ErrIncompatible, "register %q has mismatching array counts", name)
		}
	}
	return append([]uint32(nil), a...), nil
}

// mergeTextureFormat reconciles the per-backend texture format info: DXIL
// reflection yields a primitive, SPIR-V write images a concrete format id.
func mergeTextureFormat(name string, a, b TextureFormat) (TextureFormat, error) {
	aPrim := a.Primitive.Declared()
	bPrim := b.Primitive.Declared()

	switch {
	case aPrim && bPrim:
		if a.Primitive != b.Primitive {
			return TextureFormat{}, errf(ErrIncompatible, "register %q has incompatible texture primitives", name)
		}
		if a.FormatID != FormatUndefined && b.FormatID != FormatUndefined && a.FormatID != b.FormatID {
			return TextureFormat{}, errf(ErrIncompatible, "register %q has incompatible texture format ids", name)
		}
		out := a
		if out.FormatID == FormatUndefined {
			out.FormatID = b.FormatID
		}
		return out, nil

	case !aPrim && !bPrim:
		if a.Primitive != b.Primitive || a.FormatID != b.FormatID {
			return TextureFormat{}, errf(ErrIncompatible, "register %q has incompatible texture formats", name)
		}
		return a, nil

	default:
		// One side declares the primitive, the other a format id; the
		// derived primitive must agree when both are known.
		prim := a.Primitive
		format := b.FormatID
		if bPrim {
			prim = b.Primitive
			format = a.FormatID
		}
		if format != FormatUndefined && format.Primitive() != prim {
			return TextureFormat{}, errf(ErrIncompatible, "register %q format id contradicts the declared primitive", name)
		}
		return TextureFormat{Primitive: prim, FormatID: format}, nil
	}
}
