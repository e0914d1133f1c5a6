// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sh

import (
	"fmt"
	"strings"
)

// Dump renders the container in the annotation style of the source
// language, for inspection tooling.
func (f *File) Dump() string {
	var out strings.Builder
	fmt.Fprintf(&out, "oiSH compiler=%08X source=%08X flags=0x%X\n", f.CompilerVersion, f.SourceHash, uint32(f.Flags))
	for i := range f.Entries {
		out.WriteString(f.Entries[i].Dump())
	}
	for i := range f.Binaries {
		out.WriteString(f.Binaries[i].Dump())
	}
	for _, inc := range f.Includes {
		fmt.Fprintf(&out, "include %s (crc32c %08X)\n", inc.RelativePath, inc.CRC32C)
	}
	return out.String()
}

// Dump renders one binary the way the source annotations would declare it.
func (b *BinaryInfo) Dump() string {
	var out strings.Builder
	if b.HasShaderAnnotation {
		out.WriteString("binary (lib)\n")
	} else {
		fmt.Fprintf(&out, "binary (%s): %s\n", b.Identifier.Stage, b.Identifier.Entrypoint)
	}
	fmt.Fprintf(&out, "\t[[oxc::model(%d.%d)]]\n", b.Identifier.ShaderModel.Major(), b.Identifier.ShaderModel.Minor())
	fmt.Fprintf(&out, "\t[[oxc::extension(%s)]]\n", b.Identifier.Extensions)
	if active := b.Identifier.Extensions &^ b.DormantExtensions; active != b.Identifier.Extensions {
		fmt.Fprintf(&out, "\t//active: %s\n", active)
	}
	if len(b.Identifier.Uniforms) > 0 {
		parts := make([]string, len(b.Identifier.Uniforms))
		for i, u := range b.Identifier.Uniforms {
			if u.Value != "" {
				parts[i] = fmt.Sprintf("%q = %q", u.Name, u.Value)
			} else {
				parts[i] = fmt.Sprintf("%q", u.Name)
			}
		}
		fmt.Fprintf(&out, "\t[[oxc::uniforms(%s)]]\n", strings.Join(parts, ", "))
	}
	if b.VendorMask == VendorMaskAll {
		out.WriteString("\t[[oxc::vendor()]]\n")
	} else {
		for v := Vendor(0); v < VendorCount; v++ {
			if b.VendorMask>>v&1 != 0 {
				fmt.Fprintf(&out, "\t[[oxc::vendor(%q)]]\n", v.String())
			}
		}
	}
	for t := BinaryType(0); t < BinaryTypeCount; t++ {
		if n := len(b.Binaries[t]); n > 0 {
			fmt.Fprintf(&out, "\t%s: %d bytes\n", t, n)
		}
	}
	for i := range b.Registers {
		out.WriteString(b.Registers[i].Dump())
	}
	return out.String()
}

// Dump renders one register with its bindings.
func (r *RegisterRuntime) Dump() string {
	var out strings.Builder
	fmt.Fprintf(&out, "\t%s %s", r.Kind, r.Name)
	for _, d := range r.Arrays {
		if d == 0 {
			out.WriteString("[]")
		} else {
			fmt.Fprintf(&out, "[%d]", d)
		}
	}
	flags := ""
	if r.IsWrite {
		flags += " rw"
	}
	if r.IsCombinedSampler {
		flags += " combined"
	}
	if r.IsArray {
		flags += " layered"
	}
	out.WriteString(flags)
	for t := BinaryType(0); t < BinaryTypeCount; t++ {
		if b := r.Bindings[t]; b.IsSet() {
			fmt.Fprintf(&out, " %s(space=%d, binding=%d)", t, b.Space, b.Binding)
		}
	}
	if r.Kind == KindSubpassInput {
		fmt.Fprintf(&out, " attachment=%d", r.AttachmentID)
	}
	if r.Kind.IsTexture() && r.Texture.Primitive.Declared() {
		fmt.Fprintf(&out, " <%s>", r.Texture.FormatID)
	}
	out.WriteByte('\n')
	if r.ShaderBuffer != nil {
		for _, line := range strings.Split(strings.TrimRight(r.ShaderBuffer.Dump(), "\n"), "\n") {
			fmt.Fprintf(&out, "\t\t%s\n", line)
		}
	}
	return out.String()
}

// Dump renders one entry with its stage data.
func (e *Entry) Dump() string {
	var out strings.Builder
	fmt.Fprintf(&out, "entry (%s): %s\n", e.Stage, e.Name)

	if e.Stage.IsGraphics() {
		e.dumpIO(&out, false)
		e.dumpIO(&out, true)
	}
	if e.Stage.HasGroupSize() {
		fmt.Fprintf(&out, "\tgroup: %d, %d, %d\n", e.GroupX, e.GroupY, e.GroupZ)
		names := [4]string{"required", "min", "max", "recommended"}
		for i := 0; i < 4; i++ {
			if n := e.WaveSize.Nibble(i); n != 0 {
				fmt.Fprintf(&out, "\twaveSize.%s: %d\n", names[i], uint32(1)<<(n-1))
			}
		}
	}
	if e.Stage.NeedsIntersection() {
		fmt.Fprintf(&out, "\tintersection size: %d\n", e.IntersectionSize)
	}
	if e.Stage.NeedsPayload() {
		fmt.Fprintf(&out, "\tpayload size: %d\n", e.PayloadSize)
	}
	if len(e.BinaryIDs) > 0 {
		fmt.Fprintf(&out, "\tbinaries: %v\n", e.BinaryIDs)
	}
	return out.String()
}

func (e *Entry) dumpIO(out *strings.Builder, isOutput bool) {
	slots, semantics, what := e.Inputs, e.InputSemantics, "inputs"
	semanticOff := 0
	if isOutput {
		slots, semantics, what = e.Outputs, e.OutputSemantics, "outputs"
		semanticOff = int(e.UniqueInputSemantics)
	}

	header := false
	for i := 0; i < IOSlots; i++ {
		if slots[i] == 0 {
			break
		}
		if !header {
			fmt.Fprintf(out, "\t%s:\n", what)
			header = true
		}

		name := "TEXCOORD"
		if isOutput && e.Stage == StagePixel {
			name = "SV_TARGET"
		}
		index := i
		if v := semantics[i]; v != 0 {
			if id := int(v >> 4); id != 0 {
				name = e.SemanticNames[id-1+semanticOff]
			}
			index = int(v & 0xF)
		}
		fmt.Fprintf(out, "\t\t%d %s : %s%d\n", i, slots[i], name, index)
	}
}
