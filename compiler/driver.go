// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package compiler implements the compile orchestrator: it turns source
// files plus options into finished oiSH containers by fanning out over the
// permutation matrix of every entrypoint, driving a backend compiler, and
// assembling the deduplicated results.
package compiler

import (
	"fmt"
	"time"

	"github.com/gogpu/oish/sh"
)

// Format is the source language handed to the backend.
type Format uint8

const (
	FormatHLSL Format = iota
	FormatCount
)

// Settings configures one backend invocation.
type Settings struct {
	// Source is the shader text; Path its name for diagnostics.
	Source string
	Path   string

	Format     Format
	OutputType sh.BinaryType

	// IncludeDir is an extra directory searched for includes.
	IncludeDir string

	Debug bool

	// IncludeInfo asks the backend to record include provenance.
	IncludeInfo bool
}

// Severity of a backend message.
type Severity uint8

const (
	SeverityWarn Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Message is one diagnostic from the backend. CompileIndex follows the
// convention index % BinaryTypeCount = backend, index / BinaryTypeCount =
// source index.
type Message struct {
	CompileIndex uint32
	File         string
	Line         uint32
	Column       uint32
	Severity     Severity
	Text         string
}

func (m Message) String() string {
	if m.File == "" {
		return fmt.Sprintf("%s: %s", m.Severity, m.Text)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", m.File, m.Line, m.Column, m.Severity, m.Text)
}

// IncludeInfo records one include file the backend touched.
type IncludeInfo struct {
	FileSize  uint32
	CRC32C    uint32
	Timestamp time.Time

	// Counter tallies how often the include was reached.
	Counter uint64

	File string
}

// Result is the outcome of one driver call. Success false with Errors
// populated is a normal compile failure; a Go error from the driver means
// the driver itself broke.
type Result struct {
	Errors      []Message
	IncludeInfo []IncludeInfo
	Success     bool

	// Text is set by Preprocess and by Parse in symbols-only mode.
	Text string

	// Entries is set by Parse: the entrypoints with their permutation
	// matrices.
	Entries []*sh.EntryRuntime

	// Binary, Registers and Demotions are set by Compile.
	Binary    []byte
	Registers sh.RegisterList
	Demotions sh.Extension
}

// HasErrors reports whether any message is error-severity.
func (r *Result) HasErrors() bool {
	for _, m := range r.Errors {
		if m.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Driver is the backend compiler contract. A driver is not safe for
// concurrent use; the orchestrator creates one per worker.
type Driver interface {
	// Preprocess expands includes and defines to plain text.
	Preprocess(settings Settings) (*Result, error)

	// Parse extracts entry-runtime descriptors from preprocessed text,
	// or a symbol dump when symbolsOnly is set.
	Parse(settings Settings, symbolsOnly bool) (*Result, error)

	// Compile builds one permutation. The driver may write reflection
	// back into the store's entries; it must do so through the store so
	// concurrent compiles of sibling permutations stay consistent.
	Compile(settings Settings, id sh.BinaryIdentifier, entries *EntryStore) (*Result, error)

	// Disassemble renders a binary as text.
	Disassemble(binaryType sh.BinaryType, blob []byte) (string, error)

	// Close releases backend state.
	Close() error
}

// NewDriverFunc creates one driver per worker thread.
type NewDriverFunc func() (Driver, error)
