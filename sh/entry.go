// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sh

import (
	"strings"

	"github.com/gogpu/oish/sb"
)

// IOSlots is the number of inter-stage I/O slots an entry can reflect.
const IOSlots = 16

// WaveSize packs four size hints as nibbles: required, min, max,
// recommended. Each nibble is log2(threads)+1 in [0, 9], 0 meaning unset.
type WaveSize uint16

// MakeWaveSize packs the four nibbles.
func MakeWaveSize(required, min, max, recommended uint8) WaveSize {
	return WaveSize(required) | WaveSize(min)<<4 | WaveSize(max)<<8 | WaveSize(recommended)<<12
}

// Nibble returns slot i (0 required, 1 min, 2 max, 3 recommended).
func (w WaveSize) Nibble(i int) uint8 { return uint8(w >> (i * 4) & 0xF) }

// Valid reports whether every nibble is within [0, 9].
func (w WaveSize) Valid() bool {
	for i := 0; i < 4; i++ {
		if w.Nibble(i) > 9 {
			return false
		}
	}
	return true
}

// Merge combines two wave sizes slot-wise: unset slots adopt the other
// side, set slots must agree.
func (w WaveSize) Merge(other WaveSize) (WaveSize, bool) {
	var out WaveSize
	for i := 0; i < 4; i++ {
		a, b := w.Nibble(i), other.Nibble(i)
		if a != 0 && b != 0 && a != b {
			return 0, false
		}
		n := a
		if b > n {
			n = b
		}
		out |= WaveSize(n) << (i * 4)
	}
	return out, true
}

// Entry is one logical entrypoint of the container, with stage-specific
// reflection and the list of binaries it resolves to.
type Entry struct {
	Name string

	Stage Stage

	// GroupX/Y/Z is the thread-group size; required for compute-style
	// stages (compute, workgraph, mesh, task), zero elsewhere.
	GroupX, GroupY, GroupZ uint16

	WaveSize WaveSize

	// IntersectionSize is the ray intersection attribute size in bytes.
	IntersectionSize uint8

	// PayloadSize is the ray payload size in bytes.
	PayloadSize uint8

	// Inputs and Outputs carry element types per I/O slot; a zero type
	// ends the slot list (slots form a dense prefix).
	Inputs  [IOSlots]sb.Type
	Outputs [IOSlots]sb.Type

	// InputSemantics/OutputSemantics pack per-slot semantics: the high
	// nibble is a 1-based index into the unique semantic names (0 = the
	// default TEXCOORD / SV_TARGET), the low nibble the semantic index.
	InputSemantics  [IOSlots]uint8
	OutputSemantics [IOSlots]uint8

	// UniqueInputSemantics splits SemanticNames: inputs use
	// SemanticNames[:UniqueInputSemantics], outputs the rest.
	UniqueInputSemantics uint8

	SemanticNames []string

	// BinaryIDs index File.Binaries.
	BinaryIDs []uint16
}

func (e *Entry) inputCount() int {
	n := 0
	for n < IOSlots && e.Inputs[n] != 0 {
		n++
	}
	return n
}

func (e *Entry) outputCount() int {
	n := 0
	for n < IOSlots && e.Outputs[n] != 0 {
		n++
	}
	return n
}

func (e *Entry) hasSemantics() bool {
	for i := 0; i < IOSlots; i++ {
		if e.InputSemantics[i] != 0 || e.OutputSemantics[i] != 0 {
			return true
		}
	}
	return false
}

// maxGroupProduct bounds GroupX*GroupY*GroupZ.
const (
	maxGroupProduct = 512
	maxGroupXY      = 512
	maxGroupZ       = 64
	maxPayloadSize  = 128
	maxIntersection = 32
)

// AddEntrypoint validates and appends an entry. The entry is consumed on
// success; on failure it is left untouched so the caller keeps ownership.
func (f *File) AddEntrypoint(entry *Entry) error {
	if err := f.validateEntry(entry); err != nil {
		return err
	}

	f.noteUTF8(entry.Name)
	for _, s := range entry.SemanticNames {
		f.noteUTF8(s)
	}

	f.Entries = append(f.Entries, *entry)
	*entry = Entry{}
	return nil
}

func (f *File) validateEntry(entry *Entry) error {
	if len(f.Entries)+1 >= 0xFFFF {
		return errf(ErrCapacityExceeded, "entry list is limited to 16 bits")
	}
	if entry.Name == "" {
		return errf(ErrInvariantViolation, "entry name is required")
	}
	if !entry.Stage.Valid() {
		return errf(ErrInvariantViolation, "entry %q: stage %d out of bounds", entry.Name, entry.Stage)
	}

	for i, id := range entry.BinaryIDs {
		if int(id) >= len(f.Binaries) {
			return errf(ErrInvariantViolation,
				"entry %q: binaryIds[%d] = %d references %d binaries", entry.Name, i, id, len(f.Binaries))
		}
	}
	if len(entry.BinaryIDs) >= 0xFF {
		return errf(ErrCapacityExceeded, "entry %q: binary list is limited to 8 bits", entry.Name)
	}

	if !entry.WaveSize.Valid() {
		return errf(ErrInvariantViolation, "entry %q: wave size nibbles must be <= 9", entry.Name)
	}
	if entry.WaveSize != 0 && !entry.Stage.AllowsWaveSize() {
		return errf(ErrInvariantViolation, "entry %q: wave size is only for compute and workgraph", entry.Name)
	}

	groupAny := entry.GroupX | entry.GroupY | entry.GroupZ
	groupTotal := uint64(entry.GroupX) * uint64(entry.GroupY) * uint64(entry.GroupZ)
	if !entry.Stage.HasGroupSize() && groupAny != 0 {
		return errf(ErrInvariantViolation, "entry %q: group size is only for compute-style stages", entry.Name)
	}
	if entry.Stage.HasGroupSize() && groupTotal == 0 {
		return errf(ErrInvariantViolation, "entry %q: group size is required", entry.Name)
	}
	if groupTotal > maxGroupProduct {
		return errf(ErrInvariantViolation, "entry %q: group size product %d exceeds %d", entry.Name, groupTotal, maxGroupProduct)
	}
	if entry.GroupX > maxGroupXY || entry.GroupY > maxGroupXY {
		return errf(ErrInvariantViolation, "entry %q: group x or y exceeds %d", entry.Name, maxGroupXY)
	}
	if entry.GroupZ > maxGroupZ {
		return errf(ErrInvariantViolation, "entry %q: group z exceeds %d", entry.Name, maxGroupZ)
	}

	if entry.Stage.NeedsPayload() {
		if entry.PayloadSize == 0 {
			return errf(ErrInvariantViolation, "entry %q: payload size is required for hit/intersection/miss", entry.Name)
		}
		if entry.PayloadSize > maxPayloadSize {
			return errf(ErrInvariantViolation, "entry %q: payload size %d exceeds %d", entry.Name, entry.PayloadSize, maxPayloadSize)
		}
	} else if entry.PayloadSize != 0 {
		return errf(ErrInvariantViolation, "entry %q: payload size is only for hit/intersection/miss", entry.Name)
	}

	if entry.Stage.NeedsIntersection() {
		if entry.IntersectionSize == 0 {
			return errf(ErrInvariantViolation, "entry %q: intersection size is required for intersection/hit", entry.Name)
		}
		if entry.IntersectionSize > maxIntersection {
			return errf(ErrInvariantViolation, "entry %q: intersection size %d exceeds %d", entry.Name, entry.IntersectionSize, maxIntersection)
		}
	} else if entry.IntersectionSize != 0 {
		return errf(ErrInvariantViolation, "entry %q: intersection size is only for intersection/hit", entry.Name)
	}
	if entry.PayloadSize%2 != 0 || entry.IntersectionSize%2 != 0 {
		return errf(ErrInvariantViolation, "entry %q: payload and intersection sizes must be 2-byte aligned", entry.Name)
	}

	return f.validateEntryIO(entry)
}

func (f *File) validateEntryIO(entry *Entry) error {
	hasIO := false
	for i := 0; i < IOSlots; i++ {
		if entry.Inputs[i] != 0 || entry.Outputs[i] != 0 {
			hasIO = true
			break
		}
	}
	if hasIO && !entry.Stage.IsGraphics() {
		return errf(ErrInvariantViolation, "entry %q: I/O slots are only for graphics stages", entry.Name)
	}

	// Slot arrays must be dense prefixes with valid element types.
	checkSlots := func(slots *[IOSlots]sb.Type, what string) (int, error) {
		n := 0
		for ; n < IOSlots && slots[n] != 0; n++ {
			t := slots[n]
			if !t.Valid() || t.Stride() == sb.StrideX8 || t.Matrix() != sb.MatN1 {
				return 0, errf(ErrInvariantViolation, "entry %q: invalid %s type in slot %d", entry.Name, what, n)
			}
		}
		for i := n; i < IOSlots; i++ {
			if slots[i] != 0 {
				return 0, errf(ErrInvariantViolation, "entry %q: %s slots must form a dense prefix", entry.Name, what)
			}
		}
		return n, nil
	}
	inputs, err := checkSlots(&entry.Inputs, "input")
	if err != nil {
		return err
	}
	outputs, err := checkSlots(&entry.Outputs, "output")
	if err != nil {
		return err
	}

	if int(entry.UniqueInputSemantics) >= IOSlots {
		return errf(ErrInvariantViolation, "entry %q: unique input semantics out of bounds", entry.Name)
	}
	if len(entry.SemanticNames) < int(entry.UniqueInputSemantics) {
		return errf(ErrInvariantViolation, "entry %q: semantic name list shorter than unique input count", entry.Name)
	}
	uniqueOutputs := len(entry.SemanticNames) - int(entry.UniqueInputSemantics)
	if uniqueOutputs >= IOSlots {
		return errf(ErrInvariantViolation, "entry %q: unique output semantics out of bounds", entry.Name)
	}

	// Unique semantic names must not repeat (case-insensitively) within
	// their partition.
	for i := 0; i < int(entry.UniqueInputSemantics); i++ {
		for j := 0; j < i; j++ {
			if strings.EqualFold(entry.SemanticNames[i], entry.SemanticNames[j]) {
				return errf(ErrInvariantViolation, "entry %q: duplicate input semantic %q", entry.Name, entry.SemanticNames[i])
			}
		}
	}
	for i := int(entry.UniqueInputSemantics); i < len(entry.SemanticNames); i++ {
		for j := int(entry.UniqueInputSemantics); j < i; j++ {
			if strings.EqualFold(entry.SemanticNames[i], entry.SemanticNames[j]) {
				return errf(ErrInvariantViolation, "entry %q: duplicate output semantic %q", entry.Name, entry.SemanticNames[i])
			}
		}
	}

	checkSemantics := func(sem *[IOSlots]uint8, slots *[IOSlots]sb.Type, count, unique int, what string) error {
		var present [IOSlots]uint32
		any := false
		for i := 0; i < count; i++ {
			if sem[i] != 0 {
				any = true
			}
		}
		for i := 0; i < count; i++ {
			v := sem[i]
			if v != 0 && slots[i] == 0 {
				return errf(ErrInvariantViolation, "entry %q: %s semantic set on an empty slot %d", entry.Name, what, i)
			}
			if int(v>>4) > unique {
				return errf(ErrInvariantViolation, "entry %q: %s semantic name id out of bounds in slot %d", entry.Name, what, i)
			}
			if any && present[v>>4]>>(v&0xF)&1 != 0 {
				return errf(ErrInvariantViolation, "entry %q: duplicate %s semantic in slot %d", entry.Name, what, i)
			}
			present[v>>4] |= 1 << (v & 0xF)
		}
		for i := count; i < IOSlots; i++ {
			if sem[i] != 0 {
				return errf(ErrInvariantViolation, "entry %q: %s semantic past the populated slots", entry.Name, what)
			}
		}
		return nil
	}
	if err := checkSemantics(&entry.InputSemantics, &entry.Inputs, inputs, int(entry.UniqueInputSemantics), "input"); err != nil {
		return err
	}
	return checkSemantics(&entry.OutputSemantics, &entry.Outputs, outputs, uniqueOutputs, "output")
}
