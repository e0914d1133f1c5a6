// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sh

import "bytes"

// Combine merges two containers compiled from the same source into a new
// one. Neither input is modified. Binaries with equal identifiers are
// merged (blobs must agree per backend, registers are unified), everything
// else is concatenated with binary ids remapped.
func Combine(a, b *File) (*File, error) {
	if a.Flags&FlagHideMagicNumber != b.Flags&FlagHideMagicNumber {
		return nil, errf(ErrIncompatible, "combine inputs disagree on HideMagicNumber")
	}
	if a.CompilerVersion != b.CompilerVersion || a.SourceHash != b.SourceHash {
		return nil, errf(ErrIncompatible, "combine inputs have mismatching compiler version or source hash")
	}

	combined, err := New(a.Flags|b.Flags&FlagIsUTF8, a.CompilerVersion, a.SourceHash)
	if err != nil {
		return nil, err
	}

	for _, inc := range a.Includes {
		if err := combined.AddInclude(inc); err != nil {
			return nil, err
		}
	}
	for _, inc := range b.Includes {
		if err := combined.AddInclude(inc); err != nil {
			return nil, err
		}
	}

	// remap[j] is the combined index of b.Binaries[j].
	remap := make([]uint16, len(b.Binaries))

	for i := range a.Binaries {
		ai := &a.Binaries[i]

		j := -1
		for k := range b.Binaries {
			if b.Binaries[k].Identifier.Equal(&ai.Identifier) {
				j = k
				break
			}
		}

		info := BinaryInfo{
			Identifier: BinaryIdentifier{
				Entrypoint:  ai.Identifier.Entrypoint,
				Uniforms:    append([]Uniform(nil), ai.Identifier.Uniforms...),
				Extensions:  ai.Identifier.Extensions,
				ShaderModel: ai.Identifier.ShaderModel,
				Stage:       ai.Identifier.Stage,
			},
			DormantExtensions:   ai.DormantExtensions,
			VendorMask:          ai.VendorMask,
			HasShaderAnnotation: ai.HasShaderAnnotation,
		}

		if j < 0 {
			info.Registers = ai.Registers.clone()
			for k := range ai.Binaries {
				info.Binaries[k] = ai.Binaries[k]
			}
		} else {
			bi := &b.Binaries[j]
			if ai.VendorMask != bi.VendorMask || ai.HasShaderAnnotation != bi.HasShaderAnnotation {
				return nil, errf(ErrIncompatible,
					"binary %s has mismatching vendor mask or annotation kind", &ai.Identifier)
			}
			for k := range ai.Binaries {
				switch {
				case len(ai.Binaries[k]) > 0 && len(bi.Binaries[k]) > 0:
					if !bytes.Equal(ai.Binaries[k], bi.Binaries[k]) {
						return nil, errf(ErrIncompatible,
							"binary %s has differing %s contents", &ai.Identifier, BinaryType(k))
					}
					info.Binaries[k] = ai.Binaries[k]
				case len(ai.Binaries[k]) > 0:
					info.Binaries[k] = ai.Binaries[k]
				case len(bi.Binaries[k]) > 0:
					info.Binaries[k] = bi.Binaries[k]
				}
			}
			info.DormantExtensions &= bi.DormantExtensions

			info.Registers, err = combineRegisters(ai.Registers, bi.Registers)
			if err != nil {
				return nil, err
			}
			remap[j] = uint16(len(combined.Binaries))
		}

		if err := combined.AddBinary(&info); err != nil {
			return nil, err
		}
	}

	for j := range b.Binaries {
		bj := &b.Binaries[j]
		found := false
		for i := range a.Binaries {
			if a.Binaries[i].Identifier.Equal(&bj.Identifier) {
				found = true
				break
			}
		}
		if found {
			continue
		}
		info := BinaryInfo{
			Identifier: BinaryIdentifier{
				Entrypoint:  bj.Identifier.Entrypoint,
				Uniforms:    append([]Uniform(nil), bj.Identifier.Uniforms...),
				Extensions:  bj.Identifier.Extensions,
				ShaderModel: bj.Identifier.ShaderModel,
				Stage:       bj.Identifier.Stage,
			},
			Registers:           bj.Registers.clone(),
			DormantExtensions:   bj.DormantExtensions,
			VendorMask:          bj.VendorMask,
			HasShaderAnnotation: bj.HasShaderAnnotation,
		}
		for k := range bj.Binaries {
			info.Binaries[k] = bj.Binaries[k]
		}
		remap[j] = uint16(len(combined.Binaries))
		if err := combined.AddBinary(&info); err != nil {
			return nil, err
		}
	}

	if err := combineEntries(combined, a, b, remap); err != nil {
		return nil, err
	}
	return combined, nil
}

func combineEntries(combined, a, b *File, remap []uint16) error {
	for i := range a.Entries {
		ea := &a.Entries[i]

		j := -1
		for k := range b.Entries {
			if b.Entries[k].Name == ea.Name {
				j = k
				break
			}
		}

		entry := *ea
		entry.SemanticNames = append([]string(nil), ea.SemanticNames...)
		entry.BinaryIDs = append([]uint16(nil), ea.BinaryIDs...)

		if j >= 0 {
			eb := &b.Entries[j]
			if err := mergeEntry(&entry, ea, eb, remap); err != nil {
				return err
			}
		}
		if err := combined.AddEntrypoint(&entry); err != nil {
			return err
		}
	}

	for j := range b.Entries {
		eb := &b.Entries[j]
		found := false
		for i := range a.Entries {
			if a.Entries[i].Name == eb.Name {
				found = true
				break
			}
		}
		if found {
			continue
		}
		entry := *eb
		entry.SemanticNames = append([]string(nil), eb.SemanticNames...)
		entry.BinaryIDs = make([]uint16, len(eb.BinaryIDs))
		for k, id := range eb.BinaryIDs {
			entry.BinaryIDs[k] = remap[id]
		}
		if err := combined.AddEntrypoint(&entry); err != nil {
			return err
		}
	}
	return nil
}

// mergeEntry folds eb into entry (a clone of ea). Everything except the
// wave size and the binary list must match exactly.
func mergeEntry(entry, ea, eb *Entry, remap []uint16) error {
	same := ea.Stage == eb.Stage &&
		ea.GroupX == eb.GroupX && ea.GroupY == eb.GroupY && ea.GroupZ == eb.GroupZ &&
		ea.IntersectionSize == eb.IntersectionSize && ea.PayloadSize == eb.PayloadSize &&
		ea.Inputs == eb.Inputs && ea.Outputs == eb.Outputs &&
		ea.InputSemantics == eb.InputSemantics && ea.OutputSemantics == eb.OutputSemantics &&
		ea.UniqueInputSemantics == eb.UniqueInputSemantics
	if !same {
		return errf(ErrIncompatible, "entry %q has mismatching reflection across containers", ea.Name)
	}

	merged, ok := ea.WaveSize.Merge(eb.WaveSize)
	if !ok {
		return errf(ErrIncompatible, "entry %q has conflicting wave sizes", ea.Name)
	}
	entry.WaveSize = merged

	if len(ea.SemanticNames) != len(eb.SemanticNames) {
		return errf(ErrIncompatible, "entry %q has mismatching semantic names", ea.Name)
	}
	for k := range ea.SemanticNames {
		if !equalFold(ea.SemanticNames[k], eb.SemanticNames[k]) {
			return errf(ErrIncompatible, "entry %q has mismatching semantic name %q", ea.Name, eb.SemanticNames[k])
		}
	}

	for _, id := range eb.BinaryIDs {
		mapped := remap[id]
		exists := false
		for _, have := range entry.BinaryIDs {
			if have == mapped {
				exists = true
				break
			}
		}
		if !exists {
			entry.BinaryIDs = append(entry.BinaryIDs, mapped)
		}
	}
	return nil
}
