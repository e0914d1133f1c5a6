// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sh

import (
	"github.com/gogpu/oish/sb"
	"github.com/gogpu/oish/wire"
)

// BinaryType selects one of the backend binary formats carried by a binary.
type BinaryType uint8

const (
	BinarySPIRV BinaryType = iota
	BinaryDXIL
	BinaryTypeCount
)

var binaryTypeNames = [BinaryTypeCount]string{"SPV", "DXIL"}

func (t BinaryType) String() string {
	if t >= BinaryTypeCount {
		return "invalid"
	}
	return binaryTypeNames[t]
}

// Binding is a backend binding tuple. Space is the descriptor set on SPIR-V
// and the register space on DXIL.
type Binding struct {
	Space   uint32
	Binding uint32
}

// NoBinding marks a register absent from a backend.
var NoBinding = Binding{Space: 0xFFFFFFFF, Binding: 0xFFFFFFFF}

// IsSet reports whether the binding is present.
func (b Binding) IsSet() bool { return b != NoBinding }

// Bindings holds one binding tuple per backend.
type Bindings [BinaryTypeCount]Binding

// NoBindings returns a tuple set with every backend absent.
func NoBindings() Bindings {
	return Bindings{NoBinding, NoBinding}
}

// AnySet reports whether at least one backend binding is present.
func (b Bindings) AnySet() bool {
	for _, bind := range b {
		if bind.IsSet() {
			return true
		}
	}
	return false
}

// RegisterKind is the resource class of a register.
type RegisterKind uint8

const (
	KindSampler RegisterKind = iota
	KindSamplerComparison

	KindConstantBuffer
	KindByteAddressBuffer
	KindStructuredBuffer
	KindStructuredBufferAtomic
	KindStorageBuffer
	KindStorageBufferAtomic
	KindAccelerationStructure

	KindTexture1D
	KindTexture2D
	KindTexture3D
	KindTextureCube
	KindTexture2DMS
	KindSubpassInput

	RegisterKindCount

	bufferKindStart = KindConstantBuffer
	bufferKindEnd   = KindAccelerationStructure
	textureKindStart = KindTexture1D
	textureKindEnd   = KindTexture2DMS
)

var registerKindNames = [RegisterKindCount]string{
	"Sampler",
	"SamplerComparisonState",
	"ConstantBuffer",
	"ByteAddressBuffer",
	"StructuredBuffer",
	"StructuredBufferAtomic",
	"StorageBuffer",
	"StorageBufferAtomic",
	"AccelerationStructure",
	"Texture1D",
	"Texture2D",
	"Texture3D",
	"TextureCube",
	"Texture2DMS",
	"SubpassInput",
}

func (k RegisterKind) String() string {
	if k >= RegisterKindCount {
		return "invalid"
	}
	return registerKindNames[k]
}

// IsSampler reports sampler or sampler-comparison kind.
func (k RegisterKind) IsSampler() bool { return k == KindSampler || k == KindSamplerComparison }

// IsBuffer reports any buffer-style kind, acceleration structures included.
func (k RegisterKind) IsBuffer() bool { return k >= bufferKindStart && k <= bufferKindEnd }

// IsTexture reports a real texture kind (subpass inputs excluded).
func (k RegisterKind) IsTexture() bool { return k >= textureKindStart && k <= textureKindEnd }

// HasShaderBuffer reports whether registers of this kind embed an oiSB
// layout. Byte-address buffers and acceleration structures are opaque.
func (k RegisterKind) HasShaderBuffer() bool {
	return k.IsBuffer() && k != KindByteAddressBuffer && k != KindAccelerationStructure
}

// DXIL register-letter classes; two DXIL resources may share a binding
// tuple as long as their class differs.
const (
	dxilClassT = iota // SRV
	dxilClassU        // UAV
	dxilClassS        // sampler
	dxilClassB        // CBV
)

func dxilRegisterClass(k RegisterKind, isWrite bool) int {
	switch {
	case k.IsSampler():
		return dxilClassS
	case k == KindConstantBuffer:
		return dxilClassB
	case isWrite:
		return dxilClassU
	default:
		return dxilClassT
	}
}

// On-disk register type flag bits, shared with the codec.
const (
	regTypeMask          = 0x0F
	regFlagIsArray       = 1 << 4
	regFlagCombinedSmp   = 1 << 5
	regFlagIsWrite       = 1 << 6
)

// TexturePrimitive classifies a texture element, low nibble the scalar
// class, high bits the component count minus one.
type TexturePrimitive uint8

const (
	TexPrimUInt TexturePrimitive = iota
	TexPrimSInt
	TexPrimUNorm
	TexPrimSNorm
	TexPrimFloat
	TexPrimDouble

	// TexPrimNone marks "no primitive declared".
	TexPrimNone TexturePrimitive = 6

	texPrimTypeMask  TexturePrimitive = 0x0F
	texPrimCompShift                  = 4
)

// WithComponents attaches a component count (1..4) to the scalar class.
func (p TexturePrimitive) WithComponents(n int) TexturePrimitive {
	return p | TexturePrimitive(n-1)<<texPrimCompShift
}

// Scalar strips the component bits.
func (p TexturePrimitive) Scalar() TexturePrimitive { return p & texPrimTypeMask }

// Components returns the component count (1..4).
func (p TexturePrimitive) Components() int { return int(p>>texPrimCompShift&3) + 1 }

// Declared reports whether a primitive is declared at all.
func (p TexturePrimitive) Declared() bool { return p.Scalar() < TexPrimNone }

// TextureFormat describes a read/write texture register: the element
// primitive (always known on DXIL) and the concrete format id (SPIR-V
// write registers only). Either may be absent.
type TextureFormat struct {
	Primitive TexturePrimitive
	FormatID  TextureFormatID
}

// Register is one resource binding of a compiled binary.
type Register struct {
	Bindings Bindings

	Kind RegisterKind

	// Flag bits on the kind.
	IsArray           bool
	IsCombinedSampler bool
	IsWrite           bool

	// UsedFlags has bit i set when backend i references the register.
	UsedFlags uint8

	// AttachmentID is the subpass-input attachment (SubpassInput only, <7).
	AttachmentID uint16

	// Texture is the format info for texture kinds.
	Texture TextureFormat
}

// diskType packs the kind and flag bits into the on-disk type byte.
func (r *Register) diskType() uint8 {
	t := uint8(r.Kind)
	if r.IsArray {
		t |= regFlagIsArray
	}
	if r.IsCombinedSampler {
		t |= regFlagCombinedSmp
	}
	if r.IsWrite {
		t |= regFlagIsWrite
	}
	return t
}

// payloadWord returns the discriminated u16 payload for hashing and
// serialization: attachment id for subpass inputs, packed texture format
// for textures, zero otherwise (the shader-buffer id is assigned at
// serialization time only).
func (r *Register) payloadWord() uint16 {
	switch {
	case r.Kind == KindSubpassInput:
		return r.AttachmentID
	case r.Kind.IsTexture():
		return uint16(r.Texture.Primitive) | uint16(r.Texture.FormatID)<<8
	default:
		return 0
	}
}

// RegisterRuntime is a register together with its owned name, array
// dimensions and optional shader buffer layout, plus a content hash used
// for identity checks.
type RegisterRuntime struct {
	Register

	Name         string
	Arrays       []uint32
	ShaderBuffer *sb.File

	// Hash identifies identical registers; compatible-but-different
	// registers hash differently.
	Hash uint64
}

// SlotCount returns how many descriptor slots the register occupies: the
// product of its array dimensions, where an unbounded dimension (0)
// contributes one slot.
func (r *RegisterRuntime) SlotCount() uint64 {
	n := uint64(1)
	for _, d := range r.Arrays {
		if d != 0 {
			n *= uint64(d)
		}
	}
	return n
}

// IsUnbounded reports a single zero-sized array dimension.
func (r *RegisterRuntime) IsUnbounded() bool {
	return len(r.Arrays) == 1 && r.Arrays[0] == 0
}

// rehash recomputes the content hash: the register fields, name, array
// dimensions and the shader buffer hash all contribute.
func (r *RegisterRuntime) rehash() {
	h := wire.FNV1a64Offset
	if r.ShaderBuffer != nil {
		h = r.ShaderBuffer.ContentHash
	}
	for _, b := range r.Bindings {
		h = wire.FNV1a64U64(h, uint64(b.Space)|uint64(b.Binding)<<32)
	}
	h = wire.FNV1a64U64(h, uint64(r.diskType())|uint64(r.UsedFlags)<<8|uint64(r.payloadWord())<<16)
	h = wire.FNV1a64U64(h, uint64(len(r.Name))|uint64(len(r.Arrays))<<32)
	h = wire.FNV1a64(h, []byte(r.Name))
	for _, d := range r.Arrays {
		h = wire.FNV1a64U64(h, uint64(d))
	}
	r.Hash = h
}

// clone deep-copies the runtime register.
func (r *RegisterRuntime) clone() RegisterRuntime {
	c := *r
	c.Arrays = append([]uint32(nil), r.Arrays...)
	c.ShaderBuffer = r.ShaderBuffer.Clone()
	return c
}
