// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package compiler

import "github.com/gogpu/oish/sh"

// build is one distinct compilation of a source file: an identifier plus
// the slot its result lands in.
type build struct {
	id sh.BinaryIdentifier

	// entries are the indices of the entry runtimes that resolve to this
	// build, in discovery order.
	entries []int
}

// buildSet deduplicates binary identifiers across the entries of one file.
// Raytracing stages already collapse inside IdentifierAt, so all RT
// entries of one file share builds per (model, extensions, uniforms).
type buildSet struct {
	builds []build

	// perEntry maps entry index -> ordered distinct build indices, one
	// per combination in traversal order (duplicates removed). This
	// becomes Entry.BinaryIDs once builds map 1:1 to container binaries.
	perEntry [][]uint16
}

// collectBuilds expands every entry's permutation matrix and shrinks the
// Cartesian products to the set of distinct identifiers.
func collectBuilds(entries []*sh.EntryRuntime) (*buildSet, error) {
	set := &buildSet{perEntry: make([][]uint16, len(entries))}

	for ei, entry := range entries {
		combos := entry.Combinations()
		for c := uint32(0); c < combos; c++ {
			id, err := entry.IdentifierAt(c)
			if err != nil {
				return nil, err
			}

			bi := -1
			for i := range set.builds {
				if set.builds[i].id.Equal(&id) {
					bi = i
					break
				}
			}
			if bi < 0 {
				bi = len(set.builds)
				set.builds = append(set.builds, build{id: id})
			}
			set.builds[bi].entries = append(set.builds[bi].entries, ei)

			known := false
			for _, have := range set.perEntry[ei] {
				if int(have) == bi {
					known = true
					break
				}
			}
			if !known {
				set.perEntry[ei] = append(set.perEntry[ei], uint16(bi))
			}
		}
	}
	return set, nil
}
