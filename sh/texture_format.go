// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sh

// TextureFormatID is a compact id of an uncompressed texture format, used
// by write-capable texture registers on SPIR-V where the image format is
// part of the type.
type TextureFormatID uint8

const (
	FormatUndefined TextureFormatID = iota

	FormatR8
	FormatRG8
	FormatRGBA8
	FormatR8s
	FormatRG8s
	FormatRGBA8s
	FormatR8u
	FormatRG8u
	FormatRGBA8u
	FormatR8i
	FormatRG8i
	FormatRGBA8i

	FormatR16
	FormatRG16
	FormatRGBA16
	FormatR16s
	FormatRG16s
	FormatRGBA16s
	FormatR16u
	FormatRG16u
	FormatRGBA16u
	FormatR16i
	FormatRG16i
	FormatRGBA16i
	FormatR16f
	FormatRG16f
	FormatRGBA16f

	FormatR32u
	FormatRG32u
	FormatRGBA32u
	FormatR32i
	FormatRG32i
	FormatRGBA32i
	FormatR32f
	FormatRG32f
	FormatRGBA32f

	TextureFormatCount
)

type textureFormatInfo struct {
	name      string
	primitive TexturePrimitive
	channels  int
}

var textureFormats = [TextureFormatCount]textureFormatInfo{
	FormatUndefined: {"Undefined", TexPrimNone, 0},

	FormatR8:     {"R8", TexPrimUNorm, 1},
	FormatRG8:    {"RG8", TexPrimUNorm, 2},
	FormatRGBA8:  {"RGBA8", TexPrimUNorm, 4},
	FormatR8s:    {"R8s", TexPrimSNorm, 1},
	FormatRG8s:   {"RG8s", TexPrimSNorm, 2},
	FormatRGBA8s: {"RGBA8s", TexPrimSNorm, 4},
	FormatR8u:    {"R8u", TexPrimUInt, 1},
	FormatRG8u:   {"RG8u", TexPrimUInt, 2},
	FormatRGBA8u: {"RGBA8u", TexPrimUInt, 4},
	FormatR8i:    {"R8i", TexPrimSInt, 1},
	FormatRG8i:   {"RG8i", TexPrimSInt, 2},
	FormatRGBA8i: {"RGBA8i", TexPrimSInt, 4},

	FormatR16:     {"R16", TexPrimUNorm, 1},
	FormatRG16:    {"RG16", TexPrimUNorm, 2},
	FormatRGBA16:  {"RGBA16", TexPrimUNorm, 4},
	FormatR16s:    {"R16s", TexPrimSNorm, 1},
	FormatRG16s:   {"RG16s", TexPrimSNorm, 2},
	FormatRGBA16s: {"RGBA16s", TexPrimSNorm, 4},
	FormatR16u:    {"R16u", TexPrimUInt, 1},
	FormatRG16u:   {"RG16u", TexPrimUInt, 2},
	FormatRGBA16u: {"RGBA16u", TexPrimUInt, 4},
	FormatR16i:    {"R16i", TexPrimSInt, 1},
	FormatRG16i:   {"RG16i", TexPrimSInt, 2},
	FormatRGBA16i: {"RGBA16i", TexPrimSInt, 4},
	FormatR16f:    {"R16f", TexPrimFloat, 1},
	FormatRG16f:   {"RG16f", TexPrimFloat, 2},
	FormatRGBA16f: {"RGBA16f", TexPrimFloat, 4},

	FormatR32u:    {"R32u", TexPrimUInt, 1},
	FormatRG32u:   {"RG32u", TexPrimUInt, 2},
	FormatRGBA32u: {"RGBA32u", TexPrimUInt, 4},
	FormatR32i:    {"R32i", TexPrimSInt, 1},
	FormatRG32i:   {"RG32i", TexPrimSInt, 2},
	FormatRGBA32i: {"RGBA32i", TexPrimSInt, 4},
	FormatR32f:    {"R32f", TexPrimFloat, 1},
	FormatRG32f:   {"RG32f", TexPrimFloat, 2},
	FormatRGBA32f: {"RGBA32f", TexPrimFloat, 4},
}

// Valid reports whether the id is defined.
func (f TextureFormatID) Valid() bool { return f < TextureFormatCount }

func (f TextureFormatID) String() string {
	if !f.Valid() {
		return "invalid"
	}
	return textureFormats[f].name
}

// Primitive derives the element primitive (scalar class plus component
// count) the format implies.
func (f TextureFormatID) Primitive() TexturePrimitive {
	if !f.Valid() || f == FormatUndefined {
		return TexPrimNone
	}
	info := textureFormats[f]
	return info.primitive.WithComponents(info.channels)
}
