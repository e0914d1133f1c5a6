// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sb

import "fmt"

// Combine merges two layouts of the same buffer observed from different
// compilations. Layouts must agree on packing, size, and on the placement of
// every variable both sides declare; usage flags are OR-ed. Variables only
// one side declares are kept. Neither input is modified.
func Combine(a, b *File) (*File, error) {
	if a.ContentHash == b.ContentHash {
		c := a.Clone()
		for i := range c.Vars {
			c.Vars[i].Flags |= b.Vars[i].Flags
		}
		c.rehash()
		return c, nil
	}

	if a.Flags&^FlagHideMagicNumber != b.Flags&^FlagHideMagicNumber {
		return nil, fmt.Errorf("sb: combine with mismatching flags")
	}
	if a.BufferSize != b.BufferSize {
		return nil, fmt.Errorf("sb: combine with mismatching buffer size %d vs %d", a.BufferSize, b.BufferSize)
	}

	c := a.Clone()

	// Struct ids and parent ids in b need remapping onto the combined file.
	structRemap := make([]uint16, len(b.Structs))
	for i, s := range b.Structs {
		id := c.findStruct(b.StructNames[i], s.Stride)
		if id == NoStruct {
			var err error
			if id, err = c.AddStruct(b.StructNames[i], s); err != nil {
				return nil, err
			}
		}
		structRemap[i] = id
	}

	varRemap := make([]uint16, len(b.Vars))
	for i, bv := range b.Vars {
		parent := RootParent
		if bv.ParentID != RootParent {
			parent = varRemap[bv.ParentID]
		}

		structID := NoStruct
		if bv.StructID != NoStruct {
			structID = structRemap[bv.StructID]
		}

		j := c.findVar(parent, b.VarNames[i])
		if j == NoStruct {
			// New on the b side.
			var dims []uint32
			if bv.ArrayID != NoArray {
				dims = b.Arrays[bv.ArrayID]
			}
			var err error
			if structID != NoStruct {
				err = c.AddVariableAsStruct(b.VarNames[i], bv.Offset, parent, structID, bv.Flags, dims)
			} else {
				err = c.AddVariableAsType(b.VarNames[i], bv.Offset, parent, bv.Type, bv.Flags, dims)
			}
			if err != nil {
				return nil, err
			}
			varRemap[i] = uint16(len(c.Vars) - 1)
			continue
		}

		cv := &c.Vars[j]
		if cv.Offset != bv.Offset || cv.StructID != structID || (structID == NoStruct && cv.Type != bv.Type) {
			return nil, fmt.Errorf("sb: combine variable %q has mismatching layout", b.VarNames[i])
		}
		var aDims, bDims []uint32
		if cv.ArrayID != NoArray {
			aDims = c.Arrays[cv.ArrayID]
		}
		if bv.ArrayID != NoArray {
			bDims = b.Arrays[bv.ArrayID]
		}
		if !equalDims(aDims, bDims) {
			return nil, fmt.Errorf("sb: combine variable %q has mismatching array dimensions", b.VarNames[i])
		}
		cv.Flags |= bv.Flags
		varRemap[i] = j
	}

	c.rehash()
	return c, nil
}

func (f *File) findStruct(name string, stride uint32) uint16 {
	for i := range f.Structs {
		if f.StructNames[i] == name && f.Structs[i].Stride == stride {
			return uint16(i)
		}
	}
	return NoStruct
}

func (f *File) findVar(parent uint16, name string) uint16 {
	for i := range f.Vars {
		if f.Vars[i].ParentID == parent && f.VarNames[i] == name {
			return uint16(i)
		}
	}
	return NoStruct
}
