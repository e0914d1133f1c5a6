// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sh

import (
	"github.com/gogpu/oish/dl"
	"github.com/gogpu/oish/sb"
	"github.com/gogpu/oish/wire"
)

// Read parses an oiSH container. isSubFile selects whether the magic number
// is expected to be absent. The content CRC is validated before any offset
// is trusted; the returned tree is freshly owned.
func Read(data []byte, isSubFile bool) (*File, error) {
	r := wire.NewReader(data)

	flags := Flags(0)
	if isSubFile {
		flags |= FlagHideMagicNumber
	} else {
		magic, err := r.U32()
		if err != nil {
			return nil, errf(ErrInvalidInput, "reading magic: %v", err)
		}
		if magic != Magic {
			return nil, errf(ErrInvalidInput, "bad magic 0x%08X", magic)
		}
	}

	headerStart := r.Offset()
	if r.Remaining() < headerSize {
		return nil, errf(ErrInvalidInput, "truncated header")
	}

	compilerVersion, _ := r.U32()
	contentHash, _ := r.U32()
	sourceHash, _ := r.U32()
	uniqueUniforms, _ := r.U16()
	version, _ := r.U8()
	sizeTypes, _ := r.U8()
	binaryCount, _ := r.U16()
	stageCount, _ := r.U16()
	includeCount, _ := r.U16()
	semanticCount, _ := r.U16()
	arrayDimCount, _ := r.U16()
	registerNameCount, _ := r.U16()

	if version != Version {
		return nil, errf(ErrInvalidInput, "unsupported version 0x%02X, want 0x%02X", version, Version)
	}
	if got := wire.CRC32C(data[headerStart+hashCoverOff:]); got != contentHash {
		return nil, errf(ErrInvalidInput, "content hash mismatch: stored %08X, computed %08X", contentHash, got)
	}

	strings, err := dl.Read(r, true)
	if err != nil {
		return nil, errf(ErrInvalidInput, "reading name pool: %v", err)
	}
	bufferList, err := dl.Read(r, true)
	if err != nil {
		return nil, errf(ErrInvalidInput, "reading shader buffer pool: %v", err)
	}
	if strings.DataType() == dl.DataUTF8 {
		flags |= FlagIsUTF8
	}

	// Partition the name pool. Every region boundary is derived from the
	// header counts and validated against the pool length.
	poolLen := uint64(strings.Len())
	tail := uint64(semanticCount) + uint64(stageCount) + uint64(includeCount) + uint64(registerNameCount)
	if uint64(uniqueUniforms) > poolLen || tail > poolLen || uint64(uniqueUniforms) > poolLen-tail {
		return nil, errf(ErrInvalidInput, "name pool regions exceed pool of %d names", poolLen)
	}
	pool := stringPool{
		strings:           strings,
		uniformValueStart: uint64(uniqueUniforms),
		registerNameStart: poolLen - tail,
	}
	pool.includeStart = pool.registerNameStart + uint64(registerNameCount)
	pool.entryStart = pool.includeStart + uint64(includeCount)
	pool.semanticStart = pool.entryStart + uint64(stageCount)
	if pool.uniformValueStart > pool.registerNameStart {
		return nil, errf(ErrInvalidInput, "uniform name region overlaps register names")
	}

	buffers := make([]*sb.File, bufferList.Len())
	for i := range buffers {
		if buffers[i], err = sb.Read(bufferList.Entry(i), true); err != nil {
			return nil, errf(ErrInvalidInput, "shader buffer %d: %v", i, err)
		}
	}

	type binaryFixed struct {
		shaderModel uint8
		stage       uint8
		entrypoint  uint16
		vendorMask  uint16
		uniforms    uint8
		flags       uint8
		extensions  uint32
		dormant     uint32
		registers   uint16
	}
	binFixed := make([]binaryFixed, binaryCount)
	for i := range binFixed {
		bf := &binFixed[i]
		if r.Remaining() < 20 {
			return nil, errf(ErrInvalidInput, "truncated binary table")
		}
		bf.shaderModel, _ = r.U8()
		bf.stage, _ = r.U8()
		bf.entrypoint, _ = r.U16()
		bf.vendorMask, _ = r.U16()
		bf.uniforms, _ = r.U8()
		bf.flags, _ = r.U8()
		bf.extensions, _ = r.U32()
		bf.dormant, _ = r.U32()
		bf.registers, _ = r.U16()
		if _, err = r.U16(); err != nil {
			return nil, err
		}
		if bf.flags&^uint8(binFlagsValid) != 0 {
			return nil, errf(ErrInvalidInput, "binary %d has invalid flags 0x%02X", i, bf.flags)
		}
	}

	type entryFixed struct {
		stage    uint8
		binaries uint8
	}
	entFixed := make([]entryFixed, stageCount)
	for i := range entFixed {
		if entFixed[i].stage, err = r.U8(); err != nil {
			return nil, errf(ErrInvalidInput, "truncated entry table")
		}
		if entFixed[i].binaries, err = r.U8(); err != nil {
			return nil, err
		}
	}

	includeCRCs := make([]uint32, includeCount)
	for i := range includeCRCs {
		if includeCRCs[i], err = r.U32(); err != nil {
			return nil, errf(ErrInvalidInput, "truncated include table")
		}
	}

	arrayDims := make([]uint8, arrayDimCount)
	for i := range arrayDims {
		if arrayDims[i], err = r.U8(); err != nil {
			return nil, errf(ErrInvalidInput, "truncated array table")
		}
	}
	arrays := make([][]uint32, arrayDimCount)
	for i, n := range arrayDims {
		if n == 0 || n > 32 {
			return nil, errf(ErrInvalidInput, "array %d has %d dimensions", i, n)
		}
		arrays[i] = make([]uint32, n)
		for j := range arrays[i] {
			if arrays[i][j], err = r.U32(); err != nil {
				return nil, errf(ErrInvalidInput, "truncated array table")
			}
		}
	}

	file, err := New(flags, compilerVersion, sourceHash)
	if err != nil {
		return nil, err
	}

	for i := range binFixed {
		bf := &binFixed[i]

		info := BinaryInfo{
			Identifier: BinaryIdentifier{
				Extensions:  Extension(bf.extensions),
				ShaderModel: shaderModelFromDisk(bf.shaderModel),
				Stage:       Stage(bf.stage),
			},
			DormantExtensions:   Extension(bf.dormant),
			VendorMask:          bf.vendorMask,
			HasShaderAnnotation: bf.flags&binFlagShaderAnnotation != 0,
		}

		if !info.HasShaderAnnotation {
			idx := pool.entryStart + uint64(bf.entrypoint)
			if bf.entrypoint == noEntrypoint || idx >= pool.semanticStart {
				return nil, errf(ErrInvalidInput, "binary %d has entrypoint index %d out of bounds", i, bf.entrypoint)
			}
			info.Identifier.Entrypoint = strings.String(int(idx))
		} else if bf.entrypoint != noEntrypoint {
			return nil, errf(ErrInvalidInput, "binary %d is a library but names an entrypoint", i)
		}

		nameIDs := make([]uint16, bf.uniforms)
		for j := range nameIDs {
			if nameIDs[j], err = r.U16(); err != nil {
				return nil, errf(ErrInvalidInput, "truncated uniform ids")
			}
			if uint64(nameIDs[j]) >= pool.uniformValueStart {
				return nil, errf(ErrInvalidInput, "uniform name id %d out of bounds", nameIDs[j])
			}
		}
		for j := uint8(0); j < bf.uniforms; j++ {
			valueID, err := r.U16()
			if err != nil {
				return nil, errf(ErrInvalidInput, "truncated uniform ids")
			}
			idx := pool.uniformValueStart + uint64(valueID)
			if idx >= pool.registerNameStart {
				return nil, errf(ErrInvalidInput, "uniform value id %d out of bounds", valueID)
			}
			info.Identifier.Uniforms = append(info.Identifier.Uniforms, Uniform{
				Name:  strings.String(int(nameIDs[j])),
				Value: strings.String(int(idx)),
			})
		}

		for j := uint16(0); j < bf.registers; j++ {
			if err := readRegister(r, &info.Registers, &pool, arrays, buffers); err != nil {
				return nil, errf(ErrInvalidInput, "binary %d register %d: %v", i, j, err)
			}
		}

		for t := 0; t < int(BinaryTypeCount); t++ {
			if bf.flags&(1<<t) == 0 {
				continue
			}
			st := wire.SizeType(sizeTypes >> (t * 2) & 3)
			n, err := r.Sized(st)
			if err != nil {
				return nil, errf(ErrInvalidInput, "truncated blob length")
			}
			if n == 0 || n > uint64(r.Remaining()) {
				return nil, errf(ErrInvalidInput, "binary %d has %s blob of %d bytes, %d remain", i, BinaryType(t), n, r.Remaining())
			}
			info.Binaries[t] = make([]byte, n)
		}
		for t := 0; t < int(BinaryTypeCount); t++ {
			if len(info.Binaries[t]) == 0 {
				continue
			}
			blob, err := r.Raw(len(info.Binaries[t]))
			if err != nil {
				return nil, errf(ErrInvalidInput, "truncated %s blob", BinaryType(t))
			}
			copy(info.Binaries[t], blob)
		}

		if err := file.AddBinary(&info); err != nil {
			return nil, err
		}
	}

	semanticCursor := pool.semanticStart
	for i := range entFixed {
		entry, consumed, err := readEntryVariable(r, strings, entFixed[i].stage, entFixed[i].binaries, semanticCursor)
		if err != nil {
			return nil, errf(ErrInvalidInput, "entry %d: %v", i, err)
		}
		entry.Name = strings.String(int(pool.entryStart + uint64(i)))
		semanticCursor += consumed
		if err := file.AddEntrypoint(entry); err != nil {
			return nil, err
		}
	}
	if semanticCursor != pool.semanticStart+uint64(semanticCount) {
		return nil, errf(ErrInvalidInput, "entries consumed %d semantic names, header declares %d",
			semanticCursor-pool.semanticStart, semanticCount)
	}

	for i := range includeCRCs {
		idx := pool.includeStart + uint64(i)
		if err := file.AddInclude(Include{
			RelativePath: strings.String(int(idx)),
			CRC32C:       includeCRCs[i],
		}); err != nil {
			return nil, err
		}
	}

	if r.Remaining() != 0 {
		return nil, errf(ErrInvalidInput, "%d trailing bytes after container", r.Remaining())
	}
	return file, nil
}

func readRegister(r *wire.Reader, list *RegisterList, pool *stringPool, arrays [][]uint32, buffers []*sb.File) error {
	if r.Remaining() < registerSize {
		return errf(ErrInvalidInput, "truncated register table")
	}

	var reg Register
	for t := range reg.Bindings {
		reg.Bindings[t].Space, _ = r.U32()
		reg.Bindings[t].Binding, _ = r.U32()
	}
	diskType, _ := r.U8()
	usedFlags, _ := r.U8()
	payload, _ := r.U16()
	arrayID, _ := r.U16()
	nameID, err := r.U16()
	if err != nil {
		return err
	}

	kind := RegisterKind(diskType & regTypeMask)
	if kind >= RegisterKindCount {
		return errf(ErrInvalidInput, "invalid register kind %d", kind)
	}
	reg.Kind = kind
	reg.IsArray = diskType&regFlagIsArray != 0
	reg.IsCombinedSampler = diskType&regFlagCombinedSmp != 0
	reg.IsWrite = diskType&regFlagIsWrite != 0
	reg.UsedFlags = usedFlags

	nameIdx := pool.registerNameStart + uint64(nameID)
	if nameIdx >= pool.includeStart {
		return errf(ErrInvalidInput, "register name id %d out of bounds", nameID)
	}
	name := pool.strings.String(int(nameIdx))

	var dims []uint32
	if arrayID != noTableEntry {
		if int(arrayID) >= len(arrays) {
			return errf(ErrInvalidInput, "register array id %d out of bounds", arrayID)
		}
		dims = arrays[arrayID]
	}

	var buf *sb.File
	switch {
	case kind == KindSubpassInput:
		// Attachment ids are clamped harder than the field width allows.
		if payload >= 7 {
			return errf(ErrInvalidInput, "subpass attachment id %d out of bounds", payload)
		}
		reg.AttachmentID = payload

	case kind.IsTexture():
		reg.Texture.Primitive = TexturePrimitive(payload)
		reg.Texture.FormatID = TextureFormatID(payload >> 8)
		if !reg.Texture.FormatID.Valid() {
			return errf(ErrInvalidInput, "texture format id %d out of bounds", payload>>8)
		}

	case kind.IsBuffer():
		if payload != noTableEntry {
			if int(payload) >= len(buffers) {
				return errf(ErrInvalidInput, "shader buffer id %d out of bounds", payload)
			}
			buf = buffers[payload].Clone()
			buf.Flags &^= sb.FlagHideMagicNumber
		}

	default:
		if payload != 0 {
			return errf(ErrInvalidInput, "register payload must be zero for %s", kind)
		}
	}

	return list.AddRegister(name, dims, reg, buf)
}

// readEntryVariable parses the stage-dependent entry data; it returns the
// entry and how many semantic names it consumed from the pool.
func readEntryVariable(r *wire.Reader, strings *dl.List, stage, binaries uint8, semanticCursor uint64) (*Entry, uint64, error) {
	if Stage(stage) >= StageCount {
		return nil, 0, errf(ErrInvalidInput, "invalid stage %d", stage)
	}
	entry := &Entry{Stage: Stage(stage)}

	consumed := uint64(0)

	if entry.Stage.IsGraphics() {
		first, err := r.U8()
		if err != nil {
			return nil, 0, errf(ErrInvalidInput, "truncated I/O header")
		}
		outputs, err := r.U8()
		if err != nil {
			return nil, 0, err
		}
		inputs := first & 0x7F
		hasSemantics := first&0x80 != 0
		if int(inputs) > IOSlots || int(outputs) > IOSlots {
			return nil, 0, errf(ErrInvalidInput, "I/O slot counts out of bounds")
		}
		for i := uint8(0); i < inputs; i++ {
			v, err := r.U8()
			if err != nil {
				return nil, 0, err
			}
			entry.Inputs[i] = sb.Type(v)
		}
		for i := uint8(0); i < outputs; i++ {
			v, err := r.U8()
			if err != nil {
				return nil, 0, err
			}
			entry.Outputs[i] = sb.Type(v)
		}
		if hasSemantics {
			counts, err := r.U8()
			if err != nil {
				return nil, 0, err
			}
			uniqueIn := counts & 0xF
			uniqueOut := counts >> 4
			entry.UniqueInputSemantics = uniqueIn
			total := uint64(uniqueIn) + uint64(uniqueOut)
			if semanticCursor+total > uint64(strings.Len()) {
				return nil, 0, errf(ErrInvalidInput, "semantic names exceed the pool")
			}
			for i := uint64(0); i < total; i++ {
				entry.SemanticNames = append(entry.SemanticNames, strings.String(int(semanticCursor+i)))
			}
			consumed = total
			for i := uint8(0); i < inputs; i++ {
				if entry.InputSemantics[i], err = r.U8(); err != nil {
					return nil, 0, err
				}
			}
			for i := uint8(0); i < outputs; i++ {
				if entry.OutputSemantics[i], err = r.U8(); err != nil {
					return nil, 0, err
				}
			}
		}
	}

	var err error
	switch {
	case entry.Stage.HasGroupSize():
		if entry.GroupX, err = r.U16(); err != nil {
			return nil, 0, errf(ErrInvalidInput, "truncated group size")
		}
		if entry.GroupY, err = r.U16(); err != nil {
			return nil, 0, err
		}
		if entry.GroupZ, err = r.U16(); err != nil {
			return nil, 0, err
		}
		wave, err := r.U16()
		if err != nil {
			return nil, 0, err
		}
		entry.WaveSize = WaveSize(wave)

	case entry.Stage.NeedsIntersection():
		if entry.IntersectionSize, err = r.U8(); err != nil {
			return nil, 0, errf(ErrInvalidInput, "truncated intersection size")
		}
		if entry.PayloadSize, err = r.U8(); err != nil {
			return nil, 0, err
		}

	case entry.Stage == StageMiss:
		if entry.PayloadSize, err = r.U8(); err != nil {
			return nil, 0, errf(ErrInvalidInput, "truncated payload size")
		}
	}

	for i := uint8(0); i < binaries; i++ {
		id, err := r.U16()
		if err != nil {
			return nil, 0, errf(ErrInvalidInput, "truncated binary ids")
		}
		entry.BinaryIDs = append(entry.BinaryIDs, id)
	}
	return entry, consumed, nil
}
