// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sh

import (
	"github.com/gogpu/oish/dl"
	"github.com/gogpu/oish/sb"
	"github.com/gogpu/oish/wire"
)

// Header byte offsets relative to the header start (after the optional
// magic). The content CRC covers everything from the uniqueUniforms field
// to the end of the file.
const (
	headerSize    = 28
	hashFieldOff  = 4
	hashCoverOff  = 12
	registerSize  = 24
	noEntrypoint  = uint16(0xFFFF)
	noTableEntry  = uint16(0xFFFF)
)

// stringPool carries the name-pool region boundaries shared by the writer
// and the reader.
type stringPool struct {
	strings *dl.List

	uniformValueStart uint64
	registerNameStart uint64
	includeStart      uint64
	entryStart        uint64
	semanticStart     uint64
}

// Write serializes the container to its bit-exact byte form.
func (f *File) Write() ([]byte, error) {
	pool, err := f.buildStringPool()
	if err != nil {
		return nil, err
	}

	// Dedupe array-dimension lists and shader buffers across binaries.
	var arrays [][]uint32
	var buffers []*sb.File
	for i := range f.Binaries {
		for j := range f.Binaries[i].Registers {
			reg := &f.Binaries[i].Registers[j]
			if len(reg.Arrays) > 0 {
				if _, err := internArrays(&arrays, reg.Arrays); err != nil {
					return nil, err
				}
			}
			if reg.ShaderBuffer != nil {
				if _, err := internBuffer(&buffers, reg.ShaderBuffer); err != nil {
					return nil, err
				}
			}
		}
	}

	// Per-backend blob length size types.
	var sizeTypes uint8
	var requiredTypes [BinaryTypeCount]wire.SizeType
	for t := 0; t < int(BinaryTypeCount); t++ {
		for i := range f.Binaries {
			if n := len(f.Binaries[i].Binaries[t]); n > 0 {
				if st := wire.RequiredSizeType(uint64(n)); st > requiredTypes[t] {
					requiredTypes[t] = st
				}
			}
		}
		sizeTypes |= uint8(requiredTypes[t]) << (t * 2)
	}

	stringsBlob := pool.strings.Write(dl.WriteOptions{HideMagic: true})

	bufferList := dl.New(dl.DataBinary)
	for _, buf := range buffers {
		embedded := buf.Clone()
		embedded.Flags |= sb.FlagHideMagicNumber
		blob, err := embedded.Write()
		if err != nil {
			return nil, err
		}
		if _, err := bufferList.Append(blob); err != nil {
			return nil, err
		}
	}
	buffersBlob := bufferList.Write(dl.WriteOptions{HideMagic: true})

	semanticCount := 0
	for i := range f.Entries {
		semanticCount += len(f.Entries[i].SemanticNames)
	}

	w := wire.NewWriter(headerSize + len(stringsBlob) + len(buffersBlob) + 256)
	if f.Flags&FlagHideMagicNumber == 0 {
		w.U32(Magic)
	}
	headerStart := w.Len()

	w.U32(f.CompilerVersion)
	w.U32(0) // content hash, patched below
	w.U32(f.SourceHash)
	w.U16(uint16(pool.uniformValueStart))
	w.U8(Version)
	w.U8(sizeTypes)
	w.U16(uint16(len(f.Binaries)))
	w.U16(uint16(len(f.Entries)))
	w.U16(uint16(len(f.Includes)))
	w.U16(uint16(semanticCount))
	w.U16(uint16(len(arrays)))
	w.U16(uint16(pool.includeStart - pool.registerNameStart))

	w.Raw(stringsBlob)
	w.Raw(buffersBlob)

	for i := range f.Binaries {
		if err := f.writeBinaryFixed(w, &f.Binaries[i], pool); err != nil {
			return nil, err
		}
	}
	for i := range f.Entries {
		w.U8(uint8(f.Entries[i].Stage))
		w.U8(uint8(len(f.Entries[i].BinaryIDs)))
	}
	for i := range f.Includes {
		w.U32(f.Includes[i].CRC32C)
	}
	for _, a := range arrays {
		w.U8(uint8(len(a)))
	}
	for _, a := range arrays {
		for _, d := range a {
			w.U32(d)
		}
	}

	for i := range f.Binaries {
		if err := f.writeBinaryVariable(w, &f.Binaries[i], pool, arrays, buffers, requiredTypes); err != nil {
			return nil, err
		}
	}
	for i := range f.Entries {
		writeEntryVariable(w, &f.Entries[i])
	}

	out := w.Bytes()
	w.PatchU32(headerStart+hashFieldOff, wire.CRC32C(out[headerStart+hashCoverOff:]))
	return out, nil
}

// buildStringPool assembles the deduplicated name pool in its canonical
// region order: uniform names, uniform values, register names, include
// paths, entry names, semantic names.
func (f *File) buildStringPool() (*stringPool, error) {
	dataType := dl.DataASCII
	if f.Flags&FlagIsUTF8 != 0 {
		dataType = dl.DataUTF8
	}
	pool := &stringPool{strings: dl.New(dataType)}
	s := pool.strings

	for i := range f.Binaries {
		for _, u := range f.Binaries[i].Identifier.Uniforms {
			if _, err := s.FindOrAppend(0, []byte(u.Name)); err != nil {
				return nil, errf(ErrInvalidInput, "uniform name %q: %v", u.Name, err)
			}
		}
	}
	pool.uniformValueStart = uint64(s.Len())
	if pool.uniformValueStart >= 0xFFFF {
		return nil, errf(ErrCapacityExceeded, "uniform name pool is limited to 16 bits")
	}

	for i := range f.Binaries {
		for _, u := range f.Binaries[i].Identifier.Uniforms {
			if _, err := s.FindOrAppend(pool.uniformValueStart, []byte(u.Value)); err != nil {
				return nil, errf(ErrInvalidInput, "uniform value %q: %v", u.Value, err)
			}
		}
	}
	pool.registerNameStart = uint64(s.Len())
	if pool.registerNameStart-pool.uniformValueStart >= 0xFFFF {
		return nil, errf(ErrCapacityExceeded, "uniform value pool is limited to 16 bits")
	}

	for i := range f.Binaries {
		for j := range f.Binaries[i].Registers {
			name := f.Binaries[i].Registers[j].Name
			if _, err := s.FindOrAppend(pool.registerNameStart, []byte(name)); err != nil {
				return nil, errf(ErrInvalidInput, "register name %q: %v", name, err)
			}
		}
	}
	pool.includeStart = uint64(s.Len())
	if pool.includeStart-pool.registerNameStart >= 0xFFFF {
		return nil, errf(ErrCapacityExceeded, "register name pool is limited to 16 bits")
	}

	for i := range f.Includes {
		if _, err := s.AppendString(f.Includes[i].RelativePath); err != nil {
			return nil, errf(ErrInvalidInput, "include path %q: %v", f.Includes[i].RelativePath, err)
		}
	}
	pool.entryStart = uint64(s.Len())

	for i := range f.Entries {
		if _, err := s.AppendString(f.Entries[i].Name); err != nil {
			return nil, errf(ErrInvalidInput, "entry name %q: %v", f.Entries[i].Name, err)
		}
	}
	pool.semanticStart = uint64(s.Len())

	semantics := 0
	for i := range f.Entries {
		for _, sem := range f.Entries[i].SemanticNames {
			if _, err := s.AppendString(sem); err != nil {
				return nil, errf(ErrInvalidInput, "semantic name %q: %v", sem, err)
			}
		}
		semantics += len(f.Entries[i].SemanticNames)
		if semantics >= 0xFFFF {
			return nil, errf(ErrCapacityExceeded, "semantic name pool is limited to 16 bits")
		}
	}
	return pool, nil
}

func internArrays(arrays *[][]uint32, dims []uint32) (uint16, error) {
	for i, a := range *arrays {
		if equalU32(a, dims) {
			return uint16(i), nil
		}
	}
	if len(*arrays) >= 0xFFFF-1 {
		return 0, errf(ErrCapacityExceeded, "array table is limited to 16 bits")
	}
	*arrays = append(*arrays, dims)
	return uint16(len(*arrays) - 1), nil
}

func internBuffer(buffers *[]*sb.File, buf *sb.File) (uint16, error) {
	for i, b := range *buffers {
		if b.ContentHash == buf.ContentHash {
			return uint16(i), nil
		}
	}
	if len(*buffers) >= 0xFFFF-1 {
		return 0, errf(ErrCapacityExceeded, "shader buffer table is limited to 16 bits")
	}
	*buffers = append(*buffers, buf)
	return uint16(len(*buffers) - 1), nil
}

func equalU32(a, b []uint32) bool {
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

func (f *File) writeBinaryFixed(w *wire.Writer, bin *BinaryInfo, pool *stringPool) error {
	var binaryFlags uint8
	if bin.HasShaderAnnotation {
		binaryFlags |= binFlagShaderAnnotation
	}
	for t := 0; t < int(BinaryTypeCount); t++ {
		if len(bin.Binaries[t]) > 0 {
			binaryFlags |= 1 << t
		}
	}

	entrypoint := noEntrypoint
	if !bin.HasShaderAnnotation {
		idx := pool.strings.FindString(pool.entryStart, uint64(pool.strings.Len()), bin.Identifier.Entrypoint)
		if idx == dl.NotFound {
			return errf(ErrInvariantViolation,
				"binary entrypoint %q does not match any entry", bin.Identifier.Entrypoint)
		}
		entrypoint = uint16(idx - pool.entryStart)
	}

	w.U8(bin.Identifier.ShaderModel.diskByte())
	w.U8(uint8(bin.Identifier.Stage))
	w.U16(entrypoint)
	w.U16(bin.VendorMask)
	w.U8(uint8(len(bin.Identifier.Uniforms)))
	w.U8(binaryFlags)
	w.U32(uint32(bin.Identifier.Extensions))
	w.U32(uint32(bin.DormantExtensions))
	w.U16(uint16(len(bin.Registers)))
	w.U16(0)
	return nil
}

// binaryFlags bits in BinaryInfoFixedSize.
const (
	binFlagHasSPIRV         = 1 << 0
	binFlagHasDXIL          = 1 << 1
	binFlagShaderAnnotation = 1 << 4
	binFlagsValid           = binFlagHasSPIRV | binFlagHasDXIL | binFlagShaderAnnotation
)

func (f *File) writeBinaryVariable(w *wire.Writer, bin *BinaryInfo, pool *stringPool, arrays [][]uint32, buffers []*sb.File, requiredTypes [BinaryTypeCount]wire.SizeType) error {
	for _, u := range bin.Identifier.Uniforms {
		id := pool.strings.FindString(0, pool.uniformValueStart, u.Name)
		w.U16(uint16(id))
	}
	for _, u := range bin.Identifier.Uniforms {
		id := pool.strings.FindString(pool.uniformValueStart, pool.registerNameStart, u.Value)
		w.U16(uint16(id - pool.uniformValueStart))
	}

	for i := range bin.Registers {
		reg := &bin.Registers[i]

		nameID := pool.strings.FindString(pool.registerNameStart, pool.includeStart, reg.Name)

		arrayID := noTableEntry
		if len(reg.Arrays) > 0 {
			id, _ := internArrays(&arrays, reg.Arrays)
			arrayID = id
		}

		payload := reg.payloadWord()
		if reg.Kind.IsBuffer() {
			payload = noTableEntry
			if reg.ShaderBuffer != nil {
				id, _ := internBuffer(&buffers, reg.ShaderBuffer)
				payload = id
			}
		}

		for _, b := range reg.Bindings {
			w.U32(b.Space)
			w.U32(b.Binding)
		}
		w.U8(reg.diskType())
		w.U8(reg.UsedFlags)
		w.U16(payload)
		w.U16(arrayID)
		w.U16(uint16(nameID - pool.registerNameStart))
	}

	for t := 0; t < int(BinaryTypeCount); t++ {
		if n := len(bin.Binaries[t]); n > 0 {
			w.Sized(requiredTypes[t], uint64(n))
		}
	}
	for t := 0; t < int(BinaryTypeCount); t++ {
		if len(bin.Binaries[t]) > 0 {
			w.Raw(bin.Binaries[t])
		}
	}
	return nil
}

func writeEntryVariable(w *wire.Writer, e *Entry) {
	if e.Stage.IsGraphics() {
		inputs := e.inputCount()
		outputs := e.outputCount()
		hasSemantics := e.hasSemantics()

		first := uint8(inputs)
		if hasSemantics {
			first |= 0x80
		}
		w.U8(first)
		w.U8(uint8(outputs))
		for i := 0; i < inputs; i++ {
			w.U8(uint8(e.Inputs[i]))
		}
		for i := 0; i < outputs; i++ {
			w.U8(uint8(e.Outputs[i]))
		}
		if hasSemantics {
			uniqueOut := len(e.SemanticNames) - int(e.UniqueInputSemantics)
			w.U8(e.UniqueInputSemantics | uint8(uniqueOut)<<4)
			for i := 0; i < inputs; i++ {
				w.U8(e.InputSemantics[i])
			}
			for i := 0; i < outputs; i++ {
				w.U8(e.OutputSemantics[i])
			}
		}
	}

	switch {
	case e.Stage.HasGroupSize():
		// Mesh and task shaders carry the compute block after their
		// graphics I/O.
		w.U16(e.GroupX)
		w.U16(e.GroupY)
		w.U16(e.GroupZ)
		w.U16(uint16(e.WaveSize))

	case e.Stage.NeedsIntersection():
		w.U8(e.IntersectionSize)
		w.U8(e.PayloadSize)

	case e.Stage == StageMiss:
		w.U8(e.PayloadSize)
	}

	for _, id := range e.BinaryIDs {
		w.U16(id)
	}
}
