// Package oish implements the oiSH shader container toolchain in pure Go.
//
// An oiSH file is the linkable unit a graphics runtime consumes: it
// bundles backend binaries (SPIR-V for Vulkan, DXIL for Direct3D12) with
// per-entrypoint pipeline metadata, resource registers with cross-API
// bindings, constant buffer layouts, include provenance, and the
// permutation matrix of extensions, shader models and uniform defines a
// source file was compiled under.
//
// The sub-packages split by concern:
//
//   - sh: the container model, builder API, combine operation and codec
//   - sb: the embedded shader-buffer layout container
//   - dl: the embedded deduplicated string/data list
//   - compiler: the compile orchestrator driving a backend compiler
//   - spirv: SPIR-V module reflection and disassembly
//
// Reading a container and picking a binary for the current device:
//
//	file, err := oish.Open("shader.oiSH")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	entry, slot := file.FindFirstCompatible("main", nil, 0, 0, caps)
//
// Compiling a batch of sources is the compiler package's job; see
// compiler.CompileShaders.
package oish

import (
	"fmt"
	"os"

	"github.com/gogpu/oish/sh"
)

// Open reads and validates an oiSH container from disk.
func Open(path string) (*sh.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("oish: %w", err)
	}
	file, err := sh.Read(data, false)
	if err != nil {
		return nil, fmt.Errorf("oish: reading %s: %w", path, err)
	}
	return file, nil
}

// Save serializes a container to disk.
func Save(file *sh.File, path string) error {
	data, err := file.Write()
	if err != nil {
		return fmt.Errorf("oish: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("oish: %w", err)
	}
	return nil
}
