// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sb

import (
	"fmt"

	"github.com/gogpu/oish/dl"
	"github.com/gogpu/oish/wire"
)

// Write serializes the layout. The HideMagicNumber flag on the file decides
// whether the magic number is emitted.
//
// Layout (little endian):
//
//	u32 magic            (unless hidden)
//	u8  version          (0x12)
//	u8  flags            (low byte of Flags)
//	u16 structCount
//	u16 varCount
//	u16 arrayCount
//	u32 bufferSize
//	u64 contentHash
//	DL  names            struct names then var names, magic hidden
//	u32 stride           per struct
//	var records          {u16 parent, u16 structId, u8 type, u8 flags, u32 offset, u16 arrayId}
//	u8  dims             per array, then all dims flattened as u32
func (f *File) Write() ([]byte, error) {
	if len(f.Structs) >= 0xFFFF || len(f.Vars) >= 0xFFFF || len(f.Arrays) >= 0xFFFF {
		return nil, fmt.Errorf("sb: table sizes exceed 16 bits")
	}

	names := dl.New(nameDataType(f))
	for _, n := range f.StructNames {
		if _, err := names.AppendString(n); err != nil {
			return nil, err
		}
	}
	for _, n := range f.VarNames {
		if _, err := names.AppendString(n); err != nil {
			return nil, err
		}
	}
	namesBlob := names.Write(dl.WriteOptions{HideMagic: true})

	w := wire.NewWriter(24 + len(namesBlob) + len(f.Vars)*12)
	if f.Flags&FlagHideMagicNumber == 0 {
		w.U32(Magic)
	}
	w.U8(Version)
	w.U8(uint8(f.Flags))
	w.U16(uint16(len(f.Structs)))
	w.U16(uint16(len(f.Vars)))
	w.U16(uint16(len(f.Arrays)))
	w.U32(f.BufferSize)
	w.U64(f.ContentHash)
	w.Raw(namesBlob)

	for _, s := range f.Structs {
		w.U32(s.Stride)
	}
	for _, v := range f.Vars {
		w.U16(v.ParentID)
		w.U16(v.StructID)
		w.U8(uint8(v.Type))
		w.U8(uint8(v.Flags))
		w.U32(v.Offset)
		w.U16(v.ArrayID)
	}
	for _, a := range f.Arrays {
		w.U8(uint8(len(a)))
	}
	for _, a := range f.Arrays {
		for _, d := range a {
			w.U32(d)
		}
	}
	return w.Bytes(), nil
}

func nameDataType(f *File) dl.DataType {
	for _, n := range f.StructNames {
		if !wire.IsASCII(n) {
			return dl.DataUTF8
		}
	}
	for _, n := range f.VarNames {
		if !wire.IsASCII(n) {
			return dl.DataUTF8
		}
	}
	return dl.DataASCII
}

// Read parses an oiSB file. isSubFile selects whether a magic number is
// expected. The declared content hash is verified against a recompute.
func Read(data []byte, isSubFile bool) (*File, error) {
	return ReadFrom(wire.NewReader(data), isSubFile)
}

// ReadFrom parses an oiSB file from r, leaving r after the file.
func ReadFrom(r *wire.Reader, isSubFile bool) (*File, error) {
	if !isSubFile {
		magic, err := r.U32()
		if err != nil {
			return nil, fmt.Errorf("sb: reading magic: %w", err)
		}
		if magic != Magic {
			return nil, fmt.Errorf("sb: bad magic 0x%08X", magic)
		}
	}

	version, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("sb: reading header: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("sb: unsupported version 0x%02X", version)
	}
	rawFlags, err := r.U8()
	if err != nil {
		return nil, err
	}
	flags := Flags(rawFlags)
	if flags&^flagsValid != 0 {
		return nil, fmt.Errorf("sb: unsupported flags 0x%X", rawFlags)
	}
	if flags&FlagHideMagicNumber != 0 != isSubFile {
		return nil, fmt.Errorf("sb: magic visibility flag mismatches container")
	}

	structCount, err := r.U16()
	if err != nil {
		return nil, err
	}
	varCount, err := r.U16()
	if err != nil {
		return nil, err
	}
	arrayCount, err := r.U16()
	if err != nil {
		return nil, err
	}
	bufferSize, err := r.U32()
	if err != nil {
		return nil, err
	}
	if bufferSize == 0 {
		return nil, fmt.Errorf("sb: zero buffer size")
	}
	declaredHash, err := r.U64()
	if err != nil {
		return nil, err
	}

	names, err := dl.Read(r, true)
	if err != nil {
		return nil, fmt.Errorf("sb: reading name pool: %w", err)
	}
	if names.Len() != int(structCount)+int(varCount) {
		return nil, fmt.Errorf("sb: name pool holds %d names, want %d", names.Len(), int(structCount)+int(varCount))
	}

	f := &File{Flags: flags, BufferSize: bufferSize}
	for i := 0; i < int(structCount); i++ {
		stride, err := r.U32()
		if err != nil {
			return nil, fmt.Errorf("sb: reading struct %d: %w", i, err)
		}
		if stride == 0 {
			return nil, fmt.Errorf("sb: struct %d has zero stride", i)
		}
		f.Structs = append(f.Structs, Struct{Stride: stride})
		f.StructNames = append(f.StructNames, names.String(i))
	}

	for i := 0; i < int(varCount); i++ {
		var v Var
		if v.ParentID, err = r.U16(); err != nil {
			return nil, fmt.Errorf("sb: reading var %d: %w", i, err)
		}
		if v.StructID, err = r.U16(); err != nil {
			return nil, err
		}
		t, err := r.U8()
		if err != nil {
			return nil, err
		}
		v.Type = Type(t)
		fl, err := r.U8()
		if err != nil {
			return nil, err
		}
		v.Flags = VarFlag(fl)
		if v.Offset, err = r.U32(); err != nil {
			return nil, err
		}
		if v.ArrayID, err = r.U16(); err != nil {
			return nil, err
		}

		if v.ParentID != RootParent && int(v.ParentID) >= i {
			return nil, fmt.Errorf("sb: var %d has forward or self parent %d", i, v.ParentID)
		}
		if v.StructID != NoStruct && int(v.StructID) >= int(structCount) {
			return nil, fmt.Errorf("sb: var %d references struct %d of %d", i, v.StructID, structCount)
		}
		if v.StructID == NoStruct && !v.Type.Valid() {
			return nil, fmt.Errorf("sb: var %d has invalid type 0x%02X", i, t)
		}
		if v.ArrayID != NoArray && int(v.ArrayID) >= int(arrayCount) {
			return nil, fmt.Errorf("sb: var %d references array %d of %d", i, v.ArrayID, arrayCount)
		}
		if v.Flags&^varFlagsValid != 0 {
			return nil, fmt.Errorf("sb: var %d has invalid flags 0x%02X", i, fl)
		}
		f.Vars = append(f.Vars, v)
		f.VarNames = append(f.VarNames, names.String(int(structCount)+i))
	}

	dims := make([]uint8, arrayCount)
	for i := range dims {
		if dims[i], err = r.U8(); err != nil {
			return nil, fmt.Errorf("sb: reading array dims: %w", err)
		}
		if dims[i] == 0 || dims[i] > 32 {
			return nil, fmt.Errorf("sb: array %d has %d dimensions", i, dims[i])
		}
	}
	for i, n := range dims {
		a := make([]uint32, n)
		for j := range a {
			if a[j], err = r.U32(); err != nil {
				return nil, fmt.Errorf("sb: reading array %d: %w", i, err)
			}
		}
		f.Arrays = append(f.Arrays, a)
	}

	f.rehash()
	if f.ContentHash != declaredHash {
		return nil, fmt.Errorf("sb: content hash mismatch: stored %016X, computed %016X", declaredHash, f.ContentHash)
	}
	return f, nil
}
