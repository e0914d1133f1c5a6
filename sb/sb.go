// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package sb implements the oiSB container describing the memory layout of a
// constant or structured buffer: a tree of variables, a struct-type table,
// array dimensions, and per-backend usage flags. oiSH embeds oiSB files for
// every buffer-backed register.
package sb

import (
	"fmt"
	"strings"

	"github.com/gogpu/oish/wire"
)

// Magic identifies a standalone oiSB file ("oiSB", little endian).
const Magic uint32 = 0x4253696F

// Version is the current container version.
const Version uint8 = 0x12

// Flags on the file root.
type Flags uint32

const (
	// FlagHideMagicNumber omits the magic number when the file is embedded.
	FlagHideMagicNumber Flags = 1 << 0

	// FlagIsTightlyPacked marks scalar-aligned (structured/storage buffer)
	// layout; unset means cbuffer padding rules were applied.
	FlagIsTightlyPacked Flags = 1 << 1

	flagsValid = FlagHideMagicNumber | FlagIsTightlyPacked
)

// VarFlag records per-backend usage of a variable.
type VarFlag uint8

const (
	VarUsedSPIRV VarFlag = 1 << 0
	VarUsedDXIL  VarFlag = 1 << 1

	varFlagsValid = VarUsedSPIRV | VarUsedDXIL
)

// RootParent marks a variable that sits directly in the buffer root.
const RootParent = uint16(0xFFFF)

// NoStruct marks a variable whose type is a primitive rather than a struct.
const NoStruct = uint16(0xFFFF)

// NoArray marks a variable without array dimensions.
const NoArray = uint16(0xFFFF)

// Struct is one entry of the struct-type table.
type Struct struct {
	// Stride is the byte size of one element, including trailing padding
	// when the buffer is not tightly packed.
	Stride uint32
}

// Var is one variable in the layout tree.
type Var struct {
	// ParentID indexes the variable this one is nested in, or RootParent.
	ParentID uint16

	// StructID indexes the struct table, or NoStruct for primitives.
	StructID uint16

	// Type is the primitive element type; meaningless when StructID is set.
	Type Type

	// Flags carries per-backend usage bits.
	Flags VarFlag

	// Offset is the byte offset within the parent.
	Offset uint32

	// ArrayID indexes the array-dimension table, or NoArray.
	ArrayID uint16
}

// File is a parsed or under-construction oiSB container.
type File struct {
	Structs     []Struct
	Vars        []Var
	StructNames []string
	VarNames    []string
	Arrays      [][]uint32

	Flags      Flags
	BufferSize uint32

	// ContentHash identifies the layout; equal hashes mean identical files.
	ContentHash uint64
}

// New creates an empty shader buffer layout. BufferSize is the declared byte
// size of the whole buffer and must be non-zero.
func New(flags Flags, bufferSize uint32) (*File, error) {
	if flags&^flagsValid != 0 {
		return nil, fmt.Errorf("sb: unsupported flags 0x%X", uint32(flags))
	}
	if bufferSize == 0 {
		return nil, fmt.Errorf("sb: buffer size is required")
	}
	f := &File{Flags: flags, BufferSize: bufferSize}
	f.rehash()
	return f, nil
}

// IsZero reports whether f holds no layout at all (absent shader buffer).
func (f *File) IsZero() bool {
	return f == nil || (len(f.Vars) == 0 && f.BufferSize == 0)
}

// Clone returns a deep copy.
func (f *File) Clone() *File {
	if f == nil {
		return nil
	}
	c := &File{
		Structs:     append([]Struct(nil), f.Structs...),
		Vars:        append([]Var(nil), f.Vars...),
		StructNames: append([]string(nil), f.StructNames...),
		VarNames:    append([]string(nil), f.VarNames...),
		Flags:       f.Flags,
		BufferSize:  f.BufferSize,
		ContentHash: f.ContentHash,
	}
	c.Arrays = make([][]uint32, len(f.Arrays))
	for i, a := range f.Arrays {
		c.Arrays[i] = append([]uint32(nil), a...)
	}
	return c
}

// AddStruct appends a struct type and returns its id.
func (f *File) AddStruct(name string, s Struct) (uint16, error) {
	if name == "" {
		return 0, fmt.Errorf("sb: struct name is required")
	}
	if s.Stride == 0 {
		return 0, fmt.Errorf("sb: struct stride is required")
	}
	if len(f.Structs)+1 >= 0xFFFF {
		return 0, fmt.Errorf("sb: struct table is limited to 16 bits")
	}
	f.Structs = append(f.Structs, s)
	f.StructNames = append(f.StructNames, name)
	f.rehash()
	return uint16(len(f.Structs) - 1), nil
}

// AddVariableAsType appends a primitive-typed variable under parent.
func (f *File) AddVariableAsType(name string, offset uint32, parent uint16, t Type, flags VarFlag, arrayDims []uint32) error {
	if !t.Valid() {
		return fmt.Errorf("sb: variable %q has an invalid type", name)
	}
	return f.addVar(name, Var{
		ParentID: parent,
		StructID: NoStruct,
		Type:     t,
		Flags:    flags,
		Offset:   offset,
	}, arrayDims)
}

// AddVariableAsStruct appends a struct-typed variable under parent.
func (f *File) AddVariableAsStruct(name string, offset uint32, parent, structID uint16, flags VarFlag, arrayDims []uint32) error {
	if int(structID) >= len(f.Structs) {
		return fmt.Errorf("sb: variable %q references struct %d of %d", name, structID, len(f.Structs))
	}
	return f.addVar(name, Var{
		ParentID: parent,
		StructID: structID,
		Flags:    flags,
		Offset:   offset,
	}, arrayDims)
}

func (f *File) addVar(name string, v Var, arrayDims []uint32) error {
	if name == "" {
		return fmt.Errorf("sb: variable name is required")
	}
	if v.Flags&^varFlagsValid != 0 {
		return fmt.Errorf("sb: variable %q has invalid flags", name)
	}
	if v.ParentID != RootParent {
		if int(v.ParentID) >= len(f.Vars) {
			return fmt.Errorf("sb: variable %q has out-of-range parent %d", name, v.ParentID)
		}
		if f.Vars[v.ParentID].StructID == NoStruct {
			return fmt.Errorf("sb: variable %q nested under non-struct variable", name)
		}
	}
	if len(arrayDims) > 32 {
		return fmt.Errorf("sb: variable %q has %d array dimensions, max 32", name, len(arrayDims))
	}
	if len(f.Vars)+1 >= 0xFFFF {
		return fmt.Errorf("sb: variable table is limited to 16 bits")
	}

	// Duplicate names within one parent scope would be unaddressable.
	for i, other := range f.Vars {
		if other.ParentID == v.ParentID && f.VarNames[i] == name {
			return fmt.Errorf("sb: variable %q already defined in this scope", name)
		}
	}

	v.ArrayID = NoArray
	if len(arrayDims) > 0 {
		id, err := f.internArray(arrayDims)
		if err != nil {
			return err
		}
		v.ArrayID = id
	}

	f.Vars = append(f.Vars, v)
	f.VarNames = append(f.VarNames, name)
	f.rehash()
	return nil
}

func (f *File) internArray(dims []uint32) (uint16, error) {
	for i, a := range f.Arrays {
		if equalDims(a, dims) {
			return uint16(i), nil
		}
	}
	if len(f.Arrays)+1 >= 0xFFFF {
		return 0, fmt.Errorf("sb: array table is limited to 16 bits")
	}
	f.Arrays = append(f.Arrays, append([]uint32(nil), dims...))
	return uint16(len(f.Arrays) - 1), nil
}

func equalDims(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// rehash recomputes the content hash from the full current state. The
// HideMagicNumber flag is excluded so embedding does not change identity.
func (f *File) rehash() {
	h := wire.FNV1a64Offset
	h = wire.FNV1a64U64(h, uint64(f.Flags&^FlagHideMagicNumber)|uint64(f.BufferSize)<<32)
	for i, s := range f.Structs {
		h = wire.FNV1a64U64(h, uint64(s.Stride))
		h = wire.FNV1a64(h, []byte(f.StructNames[i]))
	}
	for i, v := range f.Vars {
		h = wire.FNV1a64U64(h,
			uint64(v.ParentID)|uint64(v.StructID)<<16|uint64(v.Type)<<32|uint64(v.Flags)<<40)
		h = wire.FNV1a64U64(h, uint64(v.Offset)|uint64(v.ArrayID)<<32)
		h = wire.FNV1a64(h, []byte(f.VarNames[i]))
	}
	for _, a := range f.Arrays {
		h = wire.FNV1a64U64(h, uint64(len(a)))
		for _, d := range a {
			h = wire.FNV1a64U64(h, uint64(d))
		}
	}
	f.ContentHash = h
}

// Dump renders the layout tree for diagnostics, one variable per line.
func (f *File) Dump() string {
	var sb strings.Builder
	f.dump(&sb, 0, RootParent)
	return sb.String()
}

func (f *File) dump(out *strings.Builder, depth int, parent uint16) {
	for i, v := range f.Vars {
		if v.ParentID != parent {
			continue
		}
		typeName := v.Type.String()
		if v.StructID != NoStruct {
			typeName = f.StructNames[v.StructID]
		}
		used := "unused"
		switch v.Flags & (VarUsedSPIRV | VarUsedDXIL) {
		case VarUsedSPIRV | VarUsedDXIL:
			used = "spirv+dxil"
		case VarUsedSPIRV:
			used = "spirv"
		case VarUsedDXIL:
			used = "dxil"
		}
		fmt.Fprintf(out, "%s0x%08X: %s: %s (%s)", strings.Repeat("\t", depth), v.Offset, f.VarNames[i], typeName, used)
		if v.ArrayID != NoArray {
			for _, d := range f.Arrays[v.ArrayID] {
				fmt.Fprintf(out, "[%d]", d)
			}
		}
		out.WriteByte('\n')
		if v.StructID != NoStruct {
			f.dump(out, depth+1, uint16(i))
		}
	}
}
