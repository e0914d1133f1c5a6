// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package compiler

import (
	"strings"
	"sync"

	"github.com/gogpu/oish/sb"
	"github.com/gogpu/oish/sh"
)

// EntryStore holds the entry-runtime descriptors of one source file.
// Compile tasks for different permutations run concurrently and write
// reflection back into the same entries, so every read-modify-write goes
// through the store's lock.
type EntryStore struct {
	mu      sync.Mutex
	entries []*sh.EntryRuntime
}

// NewEntryStore wraps the parsed entries of one file.
func NewEntryStore(entries []*sh.EntryRuntime) *EntryStore {
	return &EntryStore{entries: entries}
}

// Entries returns the underlying slice. Callers may only touch entry
// fields through Finalize once compile tasks are running.
func (s *EntryStore) Entries() []*sh.EntryRuntime { return s.entries }

// Reflection is what a backend discovered about one entrypoint while
// compiling a permutation.
type Reflection struct {
	GroupSize        [3]uint32
	PayloadSize      uint8
	IntersectionSize uint8
	WaveSize         sh.WaveSize

	Inputs  [sh.IOSlots]sb.Type
	Outputs [sh.IOSlots]sb.Type

	UniqueInputSemantics uint8
	SemanticNames        []string
	InputSemantics       [sh.IOSlots]uint8
	OutputSemantics      [sh.IOSlots]uint8
}

// Finalize merges reflection into the entry with the given name. Fields
// already populated by an earlier permutation must match; the wave size
// merges slot-wise. Conflicting updates are rejected so incompatible
// permutations surface instead of silently clobbering each other.
func (s *EntryStore) Finalize(entryName string, refl *Reflection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target *sh.EntryRuntime
	for _, e := range s.entries {
		if e.Entry.Name == entryName {
			target = e
			break
		}
	}
	if target == nil {
		return &Error{Kind: ErrBackend, Message: "reflection names unknown entrypoint " + entryName}
	}
	entry := &target.Entry

	if err := mergeU16(&entry.GroupX, uint16(refl.GroupSize[0]), entryName, "group x"); err != nil {
		return err
	}
	if err := mergeU16(&entry.GroupY, uint16(refl.GroupSize[1]), entryName, "group y"); err != nil {
		return err
	}
	if err := mergeU16(&entry.GroupZ, uint16(refl.GroupSize[2]), entryName, "group z"); err != nil {
		return err
	}
	if err := mergeU8(&entry.PayloadSize, refl.PayloadSize, entryName, "payload size"); err != nil {
		return err
	}
	if err := mergeU8(&entry.IntersectionSize, refl.IntersectionSize, entryName, "intersection size"); err != nil {
		return err
	}

	merged, ok := entry.WaveSize.Merge(refl.WaveSize)
	if !ok {
		return conflictErr(entryName, "wave size")
	}
	entry.WaveSize = merged

	hasIO := false
	for i := 0; i < sh.IOSlots; i++ {
		if refl.Inputs[i] != 0 || refl.Outputs[i] != 0 {
			hasIO = true
			break
		}
	}
	if hasIO {
		for i := 0; i < sh.IOSlots; i++ {
			if err := mergeIOSlot(&entry.Inputs[i], refl.Inputs[i], entryName, "input"); err != nil {
				return err
			}
			if err := mergeIOSlot(&entry.Outputs[i], refl.Outputs[i], entryName, "output"); err != nil {
				return err
			}
			if err := mergeU8(&entry.InputSemantics[i], refl.InputSemantics[i], entryName, "input semantic"); err != nil {
				return err
			}
			if err := mergeU8(&entry.OutputSemantics[i], refl.OutputSemantics[i], entryName, "output semantic"); err != nil {
				return err
			}
		}
	}

	if len(refl.SemanticNames) > 0 {
		if len(entry.SemanticNames) == 0 {
			entry.SemanticNames = append([]string(nil), refl.SemanticNames...)
			entry.UniqueInputSemantics = refl.UniqueInputSemantics
		} else {
			if len(entry.SemanticNames) != len(refl.SemanticNames) ||
				entry.UniqueInputSemantics != refl.UniqueInputSemantics {
				return conflictErr(entryName, "semantic names")
			}
			for i := range refl.SemanticNames {
				if !strings.EqualFold(entry.SemanticNames[i], refl.SemanticNames[i]) {
					return conflictErr(entryName, "semantic names")
				}
			}
		}
	}
	return nil
}

func conflictErr(entry, field string) error {
	return &Error{Kind: ErrBackend, Message: "entry " + entry + ": permutations reflect conflicting " + field}
}

func mergeU16(dst *uint16, v uint16, entry, field string) error {
	if v == 0 {
		return nil
	}
	if *dst != 0 && *dst != v {
		return conflictErr(entry, field)
	}
	*dst = v
	return nil
}

func mergeU8(dst *uint8, v uint8, entry, field string) error {
	if v == 0 {
		return nil
	}
	if *dst != 0 && *dst != v {
		return conflictErr(entry, field)
	}
	*dst = v
	return nil
}

func mergeIOSlot(dst *sb.Type, v sb.Type, entry, field string) error {
	if v == 0 {
		return nil
	}
	if *dst != 0 && *dst != v {
		return conflictErr(entry, field)
	}
	*dst = v
	return nil
}
