// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hlsl

import (
	"fmt"

	"github.com/gogpu/oish/compiler"
	"github.com/gogpu/oish/sh"
	"github.com/gogpu/oish/spirv"
)

// Backend generates code for one permutation. The reference backends wrap
// external toolchains (DXC for DXIL, the SPIR-V toolchain for Vulkan);
// tests inject synthetic ones.
type Backend interface {
	Compile(settings compiler.Settings, id sh.BinaryIdentifier, entries *compiler.EntryStore) (*compiler.Result, error)
}

// Driver is the HLSL front end: include expansion and annotation parsing
// run natively, code generation is delegated to the configured backend.
type Driver struct {
	backend Backend
}

// NewDriver returns a driver. backend may be nil, in which case only the
// preprocess, parse and disassemble operations are available.
func NewDriver(backend Backend) *Driver {
	return &Driver{backend: backend}
}

// Preprocess implements compiler.Driver.
func (d *Driver) Preprocess(settings compiler.Settings) (*compiler.Result, error) {
	return Preprocess(settings), nil
}

// Parse implements compiler.Driver.
func (d *Driver) Parse(settings compiler.Settings, symbolsOnly bool) (*compiler.Result, error) {
	return Parse(settings, symbolsOnly), nil
}

// Compile implements compiler.Driver.
func (d *Driver) Compile(settings compiler.Settings, id sh.BinaryIdentifier, entries *compiler.EntryStore) (*compiler.Result, error) {
	if d.backend == nil {
		return nil, fmt.Errorf("hlsl: no code generation backend configured")
	}
	return d.backend.Compile(settings, id, entries)
}

// Disassemble implements compiler.Driver. SPIR-V modules disassemble
// natively; DXIL needs the external toolchain, so only a header summary
// is produced.
func (d *Driver) Disassemble(binaryType sh.BinaryType, blob []byte) (string, error) {
	switch binaryType {
	case sh.BinarySPIRV:
		return spirv.Disassemble(blob)
	case sh.BinaryDXIL:
		if len(blob) < 4 {
			return "", fmt.Errorf("hlsl: DXIL blob of %d bytes is too short", len(blob))
		}
		return fmt.Sprintf("; DXIL container, %d bytes, fourcc %q\n", len(blob), blob[:4]), nil
	default:
		return "", fmt.Errorf("hlsl: unknown binary type %d", binaryType)
	}
}

// Close implements compiler.Driver.
func (d *Driver) Close() error { return nil }
