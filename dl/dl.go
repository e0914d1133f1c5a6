// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package dl implements the oiDL container: an ordered, deduplicated list of
// short strings or raw data blobs. oiSH and oiSB embed it as their name pool
// and shader-buffer pool, always with the magic number hidden.
package dl

import (
	"bytes"
	"fmt"

	"github.com/gogpu/oish/wire"
)

// Magic identifies a standalone oiDL file ("oiDL", little endian).
const Magic uint32 = 0x4C44696F

// Version is the current container version (1.2: major in the high nibble,
// minor in the low nibble).
const Version uint8 = 0x12

// DataType describes what the list entries hold.
type DataType uint8

const (
	// DataASCII entries are 7-bit strings.
	DataASCII DataType = iota

	// DataUTF8 entries are UTF-8 strings.
	DataUTF8

	// DataBinary entries are opaque byte blobs (e.g. embedded oiSB files).
	DataBinary
)

// NotFound is returned by Find when no entry matches.
const NotFound = ^uint64(0)

// MaxEntryLen bounds a single short-string entry.
const MaxEntryLen = 65534

// List is an append-only ordered sequence of entries. Positions are stable:
// once an entry is appended its index never changes, which is what lets the
// other containers reference entries by offset.
type List struct {
	dataType DataType
	entries  [][]byte
}

// New returns an empty list of the given data type.
func New(dataType DataType) *List {
	return &List{dataType: dataType}
}

// DataType returns the entry data type.
func (l *List) DataType() DataType { return l.dataType }

// Len returns the number of entries.
func (l *List) Len() int { return len(l.entries) }

// Entry returns the raw bytes of entry i.
func (l *List) Entry(i int) []byte { return l.entries[i] }

// String returns entry i as a string.
func (l *List) String(i int) string { return string(l.entries[i]) }

// Append adds an entry at the end of the list. Strings longer than
// MaxEntryLen or non-ASCII data in an ASCII list are rejected.
func (l *List) Append(data []byte) (int, error) {
	if len(data) > MaxEntryLen {
		return 0, fmt.Errorf("dl: entry of %d bytes exceeds %d", len(data), MaxEntryLen)
	}
	if l.dataType == DataASCII && !wire.IsASCII(string(data)) {
		return 0, fmt.Errorf("dl: non-ASCII entry in ASCII list")
	}
	l.entries = append(l.entries, data)
	return len(l.entries) - 1, nil
}

// AppendString adds a string entry.
func (l *List) AppendString(s string) (int, error) {
	return l.Append([]byte(s))
}

// Find returns the index of the first entry equal to data within
// [start, end), or NotFound. Equality is case-sensitive byte equality.
// end may exceed the list length; it is clamped.
func (l *List) Find(start, end uint64, data []byte) uint64 {
	if end > uint64(len(l.entries)) {
		end = uint64(len(l.entries))
	}
	for i := start; i < end; i++ {
		if bytes.Equal(l.entries[i], data) {
			return i
		}
	}
	return NotFound
}

// FindString is Find for string entries.
func (l *List) FindString(start, end uint64, s string) uint64 {
	return l.Find(start, end, []byte(s))
}

// FindOrAppend returns the index of data within [start, len), appending it
// when absent.
func (l *List) FindOrAppend(start uint64, data []byte) (int, error) {
	if i := l.Find(start, uint64(len(l.entries)), data); i != NotFound {
		return int(i), nil
	}
	return l.Append(data)
}
