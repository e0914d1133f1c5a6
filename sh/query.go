// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sh

// DeviceCaps describes what the current device supports, for binary
// selection at pipeline creation time.
type DeviceCaps struct {
	// ShaderModel is the highest supported shader model.
	ShaderModel ShaderModel

	// Extensions are the supported extension bits.
	Extensions Extension
}

// Supports reports whether the device can run a binary with the given
// identifier.
func (c DeviceCaps) Supports(id *BinaryIdentifier) bool {
	return id.ShaderModel <= c.ShaderModel && id.Extensions&^c.Extensions == 0
}

// NotFoundID is returned by FindFirstCompatible when nothing matches.
const NotFoundID = uint16(0xFFFF)

// FindFirstCompatible returns the first (entry, binary-slot) pair whose
// entry name matches exactly, whose identifier uniform set equals uniforms
// element-wise, which avoids every disallowed extension, carries every
// required one, and which the device caps support. The second return value
// indexes the entry's BinaryIDs list, not File.Binaries.
func (f *File) FindFirstCompatible(entrypoint string, uniforms []Uniform, disallow, require Extension, caps DeviceCaps) (entryID, binarySlot uint16) {
	for i := range f.Entries {
		entry := &f.Entries[i]
		if entry.Name != entrypoint {
			continue
		}
		for j, binID := range entry.BinaryIDs {
			id := &f.Binaries[binID].Identifier

			if len(id.Uniforms) != len(uniforms) {
				continue
			}
			match := true
			for k := range uniforms {
				if id.Uniforms[k] != uniforms[k] {
					match = false
					break
				}
			}
			if !match {
				continue
			}

			if id.Extensions&disallow != 0 || id.Extensions&require != require {
				continue
			}
			if !caps.Supports(id) {
				continue
			}
			return uint16(i), uint16(j)
		}
	}
	return NotFoundID, NotFoundID
}
