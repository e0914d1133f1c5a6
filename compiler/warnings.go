// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package compiler

import (
	"fmt"

	"github.com/gogpu/oish/sb"
	"github.com/gogpu/oish/sh"
)

// ScanWarnings inspects a finished container for the opt-in diagnostics:
// registers never referenced by a backend, shader buffer constants never
// read, and padded buffer layouts wasting memory.
func ScanWarnings(file *sh.File, warnings Warning) []Message {
	var out []Message

	warn := func(format string, args ...any) {
		out = append(out, Message{Severity: SeverityWarn, Text: fmt.Sprintf(format, args...)})
	}

	for bi := range file.Binaries {
		bin := &file.Binaries[bi]

		presentMask := uint8(0)
		for t := 0; t < int(sh.BinaryTypeCount); t++ {
			if len(bin.Binaries[t]) > 0 {
				presentMask |= 1 << t
			}
		}

		for ri := range bin.Registers {
			reg := &bin.Registers[ri]

			if warnings&WarnUnusedRegisters != 0 && reg.UsedFlags&presentMask == 0 {
				warn("binary %d: register %q is never used", bi, reg.Name)
			}

			if reg.ShaderBuffer == nil {
				continue
			}
			buf := reg.ShaderBuffer

			if warnings&WarnUnusedConstants != 0 {
				for vi := range buf.Vars {
					if buf.Vars[vi].Flags&(sb.VarUsedSPIRV|sb.VarUsedDXIL) == 0 {
						warn("binary %d: register %q constant %q is never used", bi, reg.Name, buf.VarNames[vi])
					}
				}
			}

			if warnings&WarnBufferPadding != 0 && buf.Flags&sb.FlagIsTightlyPacked == 0 {
				if wasted := paddedBytes(buf); wasted > 0 {
					warn("binary %d: register %q wastes %d padded bytes", bi, reg.Name, wasted)
				}
			}
		}
	}
	return out
}

// paddedBytes estimates the padding in a cbuffer layout: the declared size
// minus the bytes root-level variables actually cover.
func paddedBytes(buf *sb.File) uint32 {
	used := uint32(0)
	for i := range buf.Vars {
		v := &buf.Vars[i]
		if v.ParentID != sb.RootParent {
			continue
		}
		size := uint32(0)
		if v.StructID != sb.NoStruct {
			size = buf.Structs[v.StructID].Stride
		} else {
			size = v.Type.Size()
		}
		if v.ArrayID != sb.NoArray {
			for _, d := range buf.Arrays[v.ArrayID] {
				if d != 0 {
					size *= d
				}
			}
		}
		used += size
	}
	if used >= buf.BufferSize {
		return 0
	}
	return buf.BufferSize - used
}
