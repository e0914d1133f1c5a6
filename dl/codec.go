// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package dl

import (
	"fmt"

	"github.com/gogpu/oish/wire"
)

// Header flag bits.
const (
	flagHideMagic uint8 = 1 << 0
)

// WriteOptions controls serialization.
type WriteOptions struct {
	// HideMagic omits the magic number; required when the list is embedded
	// in a parent container that can identify it by position.
	HideMagic bool
}

// Write serializes the list.
//
// Layout (little endian):
//
//	u32 magic            (unless hidden)
//	u8  version          (0x12)
//	u8  dataType
//	u8  flags
//	u8  sizeTypes        bits 0..1: entry-count width, bits 2..3: entry-length width
//	<count>              entry count, width per sizeTypes
//	<len>[count]         per-entry lengths, width per sizeTypes
//	data                 entries back to back
func (l *List) Write(opts WriteOptions) []byte {
	maxLen := uint64(0)
	total := 0
	for _, e := range l.entries {
		if uint64(len(e)) > maxLen {
			maxLen = uint64(len(e))
		}
		total += len(e)
	}

	countType := wire.RequiredSizeType(uint64(len(l.entries)))
	lenType := wire.RequiredSizeType(maxLen)

	w := wire.NewWriter(8 + total + len(l.entries)*lenType.Bytes())
	if !opts.HideMagic {
		w.U32(Magic)
	}
	w.U8(Version)
	w.U8(uint8(l.dataType))
	flags := uint8(0)
	if opts.HideMagic {
		flags |= flagHideMagic
	}
	w.U8(flags)
	w.U8(uint8(countType) | uint8(lenType)<<2)
	w.Sized(countType, uint64(len(l.entries)))
	for _, e := range l.entries {
		w.Sized(lenType, uint64(len(e)))
	}
	for _, e := range l.entries {
		w.Raw(e)
	}
	return w.Bytes()
}

// Read parses a list from r, leaving r positioned after the list. isSubFile
// must match how the list was written: embedded lists carry no magic number.
func Read(r *wire.Reader, isSubFile bool) (*List, error) {
	if !isSubFile {
		magic, err := r.U32()
		if err != nil {
			return nil, fmt.Errorf("dl: reading magic: %w", err)
		}
		if magic != Magic {
			return nil, fmt.Errorf("dl: bad magic 0x%08X", magic)
		}
	}

	version, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("dl: reading header: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("dl: unsupported version 0x%02X", version)
	}
	dataType, err := r.U8()
	if err != nil {
		return nil, err
	}
	if DataType(dataType) > DataBinary {
		return nil, fmt.Errorf("dl: invalid data type %d", dataType)
	}
	flags, err := r.U8()
	if err != nil {
		return nil, err
	}
	if flags&flagHideMagic != 0 != isSubFile {
		return nil, fmt.Errorf("dl: magic visibility flag mismatches container")
	}
	sizeTypes, err := r.U8()
	if err != nil {
		return nil, err
	}
	countType := wire.SizeType(sizeTypes & 3)
	lenType := wire.SizeType(sizeTypes >> 2 & 3)

	count, err := r.Sized(countType)
	if err != nil {
		return nil, fmt.Errorf("dl: reading entry count: %w", err)
	}
	if count > uint64(r.Remaining()) {
		return nil, fmt.Errorf("dl: entry count %d exceeds buffer", count)
	}

	lengths := make([]uint64, count)
	for i := range lengths {
		lengths[i], err = r.Sized(lenType)
		if err != nil {
			return nil, fmt.Errorf("dl: reading entry lengths: %w", err)
		}
	}

	l := New(DataType(dataType))
	for i, n := range lengths {
		data, err := r.Raw(int(n))
		if err != nil {
			return nil, fmt.Errorf("dl: reading entry %d: %w", i, err)
		}
		// Copy out of the input buffer so the list owns its entries.
		if _, err := l.Append(append([]byte(nil), data...)); err != nil {
			return nil, err
		}
	}
	return l, nil
}
