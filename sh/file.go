// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package sh implements the oiSH shader container: the linkable unit a
// graphics runtime consumes to pick a binary compatible with the current
// device. A container bundles per-stage entrypoints, deduplicated backend
// binaries (SPIR-V, DXIL) with their resource registers, include
// provenance, and the permutation identifiers everything was compiled
// under.
package sh

// Magic identifies a standalone oiSH file ("oiSH", little endian).
const Magic uint32 = 0x4853696F

// Version is the current container version byte (1.2).
const Version uint8 = 0x12

// Flags on the file root.
type Flags uint32

const (
	// FlagHideMagicNumber omits the magic number; only valid when the
	// surrounding container identifies the file unambiguously.
	FlagHideMagicNumber Flags = 1 << 0

	// FlagIsUTF8 records that at least one short string in the file is
	// not plain ASCII.
	FlagIsUTF8 Flags = 1 << 1

	flagsValid = FlagHideMagicNumber | FlagIsUTF8
)

// Include records one file the source transitively included, with a CRC
// over its contents ('\r' stripped) for dirty checking.
type Include struct {
	// RelativePath is relative to the source file's directory.
	RelativePath string

	// CRC32C of the include contents with '\r' bytes removed.
	CRC32C uint32
}

// File is an oiSH container under construction or parsed from bytes.
// Mutate it through New / AddBinary / AddEntrypoint / AddInclude so the
// container invariants hold at all times.
type File struct {
	Binaries []BinaryInfo
	Entries  []Entry

	// Includes stays sorted by case-sensitive relative path.
	Includes []Include

	Flags Flags

	// CompilerVersion is the version of the compiler that produced the
	// container.
	CompilerVersion uint32

	// SourceHash is the CRC32C of the preprocessed source text.
	SourceHash uint32
}

// New creates an empty container.
func New(flags Flags, compilerVersion, sourceHash uint32) (*File, error) {
	if flags&^flagsValid != 0 {
		return nil, errf(ErrInvariantViolation, "unsupported flags 0x%X", uint32(flags))
	}
	return &File{
		Flags:           flags,
		CompilerVersion: compilerVersion,
		SourceHash:      sourceHash,
	}, nil
}

// AddInclude records an include dependency. Re-adding a path is a no-op
// when the CRC matches and an error when it conflicts. The include list is
// kept sorted regardless of insertion order.
func (f *File) AddInclude(inc Include) error {
	if inc.RelativePath == "" || inc.CRC32C == 0 {
		return errf(ErrInvariantViolation, "include path and crc32c are required")
	}

	for i := range f.Includes {
		if f.Includes[i].RelativePath == inc.RelativePath {
			if f.Includes[i].CRC32C != inc.CRC32C {
				return errf(ErrAlreadyDefined,
					"include %q already defined with a different CRC32C", inc.RelativePath)
			}
			return nil
		}
	}

	if len(f.Includes)+1 > 0xFFFF {
		return errf(ErrCapacityExceeded, "include list is limited to 16 bits")
	}

	f.noteUTF8(inc.RelativePath)

	at := len(f.Includes)
	for i := range f.Includes {
		if f.Includes[i].RelativePath > inc.RelativePath {
			at = i
			break
		}
	}
	f.Includes = append(f.Includes, Include{})
	copy(f.Includes[at+1:], f.Includes[at:])
	f.Includes[at] = inc
	return nil
}

// noteUTF8 flips the IsUTF8 flag when s is not plain ASCII.
func (f *File) noteUTF8(s string) {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			f.Flags |= FlagIsUTF8
			return
		}
	}
}
