// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sh

import "github.com/gogpu/oish/sb"

// RegisterList accumulates the registers of one binary, enforcing name,
// binding and hash uniqueness as registers are added.
type RegisterList []RegisterRuntime

// BufferKind narrows RegisterKind to buffer-style registers for AddBuffer.
type BufferKind uint8

const (
	BufferConstant BufferKind = iota
	BufferByteAddress
	BufferStructured
	BufferStructuredAtomic
	BufferStorage
	BufferStorageAtomic
	BufferAccelerationStructure
	BufferKindCount
)

func (b BufferKind) registerKind() RegisterKind {
	return bufferKindStart + RegisterKind(b)
}

// TextureKind narrows RegisterKind to texture registers.
type TextureKind uint8

const (
	Texture1D TextureKind = iota
	Texture2D
	Texture3D
	TextureCube
	Texture2DMS
	TextureKindCount
)

func (t TextureKind) registerKind() RegisterKind {
	return textureKindStart + RegisterKind(t)
}

// detectDuplicate rejects a register whose name or binding tuple collides
// with one already in the list. On DXIL a binding tuple only collides
// within the same register-letter class (u, t, b, s).
func (l RegisterList) detectDuplicate(name string, bindings Bindings, kind RegisterKind, isWrite bool) error {
	if !bindings.AnySet() {
		return errf(ErrInvariantViolation, "register %q has no backend bindings", name)
	}
	if name == "" {
		return errf(ErrInvariantViolation, "register name is required")
	}

	class := dxilRegisterClass(kind, isWrite)

	for i := range l {
		reg := &l[i]
		if reg.Name == name {
			return errf(ErrAlreadyDefined, "register name %q already present", name)
		}
		if b := bindings[BinarySPIRV]; b.IsSet() && reg.Bindings[BinarySPIRV] == b {
			return errf(ErrIncompatible,
				"register %q reuses SPIRV binding (space=%d, binding=%d) of %q", name, b.Space, b.Binding, reg.Name)
		}
		if b := bindings[BinaryDXIL]; b.IsSet() && reg.Bindings[BinaryDXIL] == b &&
			class == dxilRegisterClass(reg.Kind, reg.IsWrite) {
			return errf(ErrIncompatible,
				"register %q reuses DXIL binding (space=%d, binding=%d) of %q", name, b.Space, b.Binding, reg.Name)
		}
	}
	return nil
}

// add validates and appends a fully specified register. A register whose
// hash equals an existing one is silently skipped (same register observed
// again); anything else that collides is an error.
func (l *RegisterList) add(name string, arrays []uint32, reg Register, buf *sb.File) error {
	if len(arrays) > 32 {
		return errf(ErrInvariantViolation, "register %q has %d array dimensions, max 32", name, len(arrays))
	}
	if len(*l) >= 0xFFFF {
		return errf(ErrCapacityExceeded, "register list is limited to 16 bits")
	}

	rt := RegisterRuntime{
		Register:     reg,
		Name:         name,
		Arrays:       append([]uint32(nil), arrays...),
		ShaderBuffer: buf,
	}
	rt.rehash()

	for i := range *l {
		if (*l)[i].Hash == rt.Hash {
			return nil
		}
	}

	if err := l.detectDuplicate(name, reg.Bindings, reg.Kind, reg.IsWrite); err != nil {
		return err
	}

	*l = append(*l, rt)
	return nil
}

// AddSampler appends a sampler or sampler-comparison register.
func (l *RegisterList) AddSampler(name string, isComparison bool, usedFlags uint8, arrays []uint32, bindings Bindings) error {
	kind := KindSampler
	if isComparison {
		kind = KindSamplerComparison
	}
	return l.add(name, arrays, Register{
		Bindings:  bindings,
		Kind:      kind,
		UsedFlags: usedFlags,
	}, nil)
}

// AddBuffer appends a buffer-style register. Buffer kinds with an element
// layout require an oiSB file: tightly packed except for constant buffers,
// which must be padded and smaller than 64 KiB.
func (l *RegisterList) AddBuffer(name string, kind BufferKind, isWrite bool, usedFlags uint8, arrays []uint32, buf *sb.File, bindings Bindings) error {
	if kind >= BufferKindCount {
		return errf(ErrInvariantViolation, "invalid buffer kind %d", kind)
	}
	regKind := kind.registerKind()

	if !regKind.HasShaderBuffer() {
		if buf != nil {
			return errf(ErrInvariantViolation,
				"register %q: %s carries no shader buffer layout", name, regKind)
		}
	} else {
		if buf == nil || buf.BufferSize == 0 {
			return errf(ErrInvariantViolation, "register %q requires a shader buffer layout", name)
		}
		isCBV := kind == BufferConstant
		if buf.Flags&sb.FlagIsTightlyPacked == 0 != isCBV {
			return errf(ErrInvariantViolation,
				"register %q: constant buffers must be padded, other buffers tightly packed", name)
		}
		if isCBV && buf.BufferSize >= 64*1024 {
			return errf(ErrInvariantViolation, "register %q: constant buffer exceeds 64KiB", name)
		}
	}

	switch kind {
	case BufferStructuredAtomic, BufferStorageAtomic:
		if !isWrite {
			return errf(ErrInvariantViolation, "register %q: atomic-counter buffers are always written", name)
		}
	case BufferConstant, BufferAccelerationStructure:
		if isWrite {
			return errf(ErrInvariantViolation, "register %q: %s cannot be written", name, regKind)
		}
	}

	return l.add(name, arrays, Register{
		Bindings:  bindings,
		Kind:      regKind,
		IsWrite:   isWrite,
		UsedFlags: usedFlags,
	}, buf)
}

// AddTexture appends a read-only texture register. The primitive may be
// TexPrimNone when the shader does not constrain the element type.
func (l *RegisterList) AddTexture(name string, kind TextureKind, isLayered, isCombinedSampler bool, usedFlags uint8, primitive TexturePrimitive, arrays []uint32, bindings Bindings) error {
	return l.addTexture(name, kind, isLayered, isCombinedSampler, false, usedFlags, primitive, FormatUndefined, arrays, bindings)
}

// AddRWTexture appends a writable texture register. At least one of the
// primitive or the format id must be given; when both are present they must
// agree.
func (l *RegisterList) AddRWTexture(name string, kind TextureKind, isLayered bool, usedFlags uint8, primitive TexturePrimitive, format TextureFormatID, arrays []uint32, bindings Bindings) error {
	return l.addTexture(name, kind, isLayered, false, true, usedFlags, primitive, format, arrays, bindings)
}

func (l *RegisterList) addTexture(name string, kind TextureKind, isLayered, isCombinedSampler, isWrite bool, usedFlags uint8, primitive TexturePrimitive, format TextureFormatID, arrays []uint32, bindings Bindings) error {
	if kind >= TextureKindCount {
		return errf(ErrInvariantViolation, "invalid texture kind %d", kind)
	}
	if !format.Valid() {
		return errf(ErrInvariantViolation, "register %q: invalid texture format id %d", name, format)
	}
	if primitive.Scalar() > TexPrimNone {
		return errf(ErrInvariantViolation, "register %q: invalid texture primitive 0x%02X", name, uint8(primitive))
	}
	if isWrite && !primitive.Declared() && format == FormatUndefined {
		return errf(ErrInvariantViolation,
			"register %q: a writable texture needs a primitive or a format id", name)
	}
	if format != FormatUndefined && primitive.Declared() && format.Primitive() != primitive {
		return errf(ErrInvariantViolation,
			"register %q: format %s implies primitive incompatible with the declared one", name, format)
	}

	return l.add(name, arrays, Register{
		Bindings:          bindings,
		Kind:              kind.registerKind(),
		IsArray:           isLayered,
		IsCombinedSampler: isCombinedSampler,
		IsWrite:           isWrite,
		UsedFlags:         usedFlags,
		Texture:           TextureFormat{Primitive: primitive, FormatID: format},
	}, nil)
}

// AddSubpassInput appends a subpass-input register. Subpass inputs exist
// only on SPIR-V and reference an attachment id below 7.
func (l *RegisterList) AddSubpassInput(name string, usedFlags uint8, bindings Bindings, attachmentID uint16) error {
	if attachmentID >= 7 {
		return errf(ErrInvariantViolation, "register %q: attachment id %d out of bounds", name, attachmentID)
	}
	for t := BinaryType(0); t < BinaryTypeCount; t++ {
		if t != BinarySPIRV && bindings[t].IsSet() {
			return errf(ErrInvariantViolation, "register %q: subpass inputs only bind on SPIRV", name)
		}
	}
	return l.add(name, nil, Register{
		Bindings:     bindings,
		Kind:         KindSubpassInput,
		UsedFlags:    usedFlags,
		AttachmentID: attachmentID,
	}, nil)
}

// AddRegister appends a register given the generic representation, routing
// through the typed constructors so every per-kind rule applies.
func (l *RegisterList) AddRegister(name string, arrays []uint32, reg Register, buf *sb.File) error {
	switch {
	case reg.Kind.IsBuffer():
		if reg.IsArray || reg.IsCombinedSampler {
			return errf(ErrInvariantViolation,
				"register %q: buffers cannot be layered or combined samplers", name)
		}
		return l.AddBuffer(name, BufferKind(reg.Kind-bufferKindStart), reg.IsWrite, reg.UsedFlags, arrays, buf, reg.Bindings)

	case reg.Kind.IsSampler():
		if reg.IsArray || reg.IsCombinedSampler || reg.IsWrite {
			return errf(ErrInvariantViolation, "register %q: invalid sampler flags", name)
		}
		if buf != nil {
			return errf(ErrInvariantViolation, "register %q: samplers carry no shader buffer", name)
		}
		return l.AddSampler(name, reg.Kind == KindSamplerComparison, reg.UsedFlags, arrays, reg.Bindings)

	case reg.Kind == KindSubpassInput:
		if reg.IsArray || reg.IsCombinedSampler || reg.IsWrite || buf != nil || len(arrays) > 0 {
			return errf(ErrInvariantViolation, "register %q: invalid subpass input", name)
		}
		return l.AddSubpassInput(name, reg.UsedFlags, reg.Bindings, reg.AttachmentID)

	case reg.Kind.IsTexture():
		if buf != nil {
			return errf(ErrInvariantViolation, "register %q: textures carry no shader buffer", name)
		}
		kind := TextureKind(reg.Kind - textureKindStart)
		if reg.IsWrite {
			return l.AddRWTexture(name, kind, reg.IsArray, reg.UsedFlags, reg.Texture.Primitive, reg.Texture.FormatID, arrays, reg.Bindings)
		}
		return l.addTexture(name, kind, reg.IsArray, reg.IsCombinedSampler, false, reg.UsedFlags, reg.Texture.Primitive, reg.Texture.FormatID, arrays, reg.Bindings)

	default:
		return errf(ErrInvariantViolation, "register %q: invalid kind %d", name, reg.Kind)
	}
}

// clone deep-copies the list.
func (l RegisterList) clone() RegisterList {
	out := make(RegisterList, len(l))
	for i := range l {
		out[i] = l[i].clone()
	}
	return out
}
