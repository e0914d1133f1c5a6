// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/oish/compiler"
	"github.com/gogpu/oish/hlsl"
	"github.com/gogpu/oish/sh"
)

var compileFlags struct {
	outputDir  string
	includeDir string
	mode       string
	threads    int
	debug      bool
	ignoreEmpty bool
	warnings   []string
}

func addBatchFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&compileFlags.outputDir, "output-dir", "o", "", "Output directory")
	cmd.Flags().StringVarP(&compileFlags.includeDir, "include-dir", "I", "", "Extra include directory")
	cmd.Flags().StringVar(&compileFlags.mode, "mode", "spirv", "Backend binary type (spirv|dxil)")
	cmd.Flags().IntVarP(&compileFlags.threads, "threads", "j", runtime.NumCPU(), "Worker threads")
	cmd.Flags().BoolVar(&compileFlags.debug, "debug", false, "Compile with debug info")
	cmd.Flags().BoolVar(&compileFlags.ignoreEmpty, "ignore-empty", false, "Skip empty source files")
	cmd.Flags().StringSliceVar(&compileFlags.warnings, "warn", nil,
		"Extra warnings (unused-registers|unused-constants|buffer-padding)")
}

func batchMode() (sh.BinaryType, error) {
	switch strings.ToLower(compileFlags.mode) {
	case "spirv", "spv":
		return sh.BinarySPIRV, nil
	case "dxil":
		return sh.BinaryDXIL, nil
	}
	return 0, fmt.Errorf("unknown mode %q", compileFlags.mode)
}

func batchWarnings() (compiler.Warning, error) {
	var w compiler.Warning
	for _, name := range compileFlags.warnings {
		switch name {
		case "unused-registers":
			w |= compiler.WarnUnusedRegisters
		case "unused-constants":
			w |= compiler.WarnUnusedConstants
		case "buffer-padding":
			w |= compiler.WarnBufferPadding
		default:
			return 0, fmt.Errorf("unknown warning %q", name)
		}
	}
	return w, nil
}

// runBatch wires the shared batch flags into the orchestrator.
func runBatch(cmd *cobra.Command, files []string, compileType compiler.CompileType) error {
	mode, err := batchMode()
	if err != nil {
		return err
	}
	warnings, err := batchWarnings()
	if err != nil {
		return err
	}

	batch := compiler.Batch{
		Files:            files,
		Outputs:          make([]string, len(files)),
		Modes:            make([]sh.BinaryType, len(files)),
		ThreadCount:      compileFlags.threads,
		Debug:            compileFlags.debug,
		ExtraWarnings:    warnings,
		IgnoreEmptyFiles: compileFlags.ignoreEmpty,
		Type:             compileType,
		IncludeDir:       compileFlags.includeDir,
		OutputDir:        compileFlags.outputDir,
		Logging:          true,
	}
	for i, file := range files {
		batch.Modes[i] = mode
		batch.Outputs[i] = outputName(file, compileType)
	}

	result, err := compiler.CompileShaders(func() (compiler.Driver, error) {
		var backend hlsl.Backend
		if b := hlsl.NewDXCBackend(""); b != nil {
			backend = b
		} else if compileType == compiler.TypeCompile {
			return nil, fmt.Errorf("dxc not found in PATH; required for compilation")
		}
		return hlsl.NewDriver(backend), nil
	}, batch)
	if err != nil {
		return err
	}
	for _, msg := range result.Messages {
		cmd.PrintErrln(msg)
	}
	if !result.Success {
		return fmt.Errorf("%d of %d files failed", countErrors(result.Errors), len(files))
	}
	return nil
}

func countErrors(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}

func outputName(file string, compileType compiler.CompileType) string {
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	switch compileType {
	case compiler.TypeCompile:
		return base + ".oiSH"
	case compiler.TypeIncludes:
		return base + ".includes.txt"
	case compiler.TypeSymbols:
		return base + ".symbols.txt"
	default:
		return base + ".i.hlsl"
	}
}

var compileCmd = &cobra.Command{
	Use:   "compile <file>...",
	Short: "Compile shaders into oiSH containers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args, compiler.TypeCompile)
	},
}

var preprocessCmd = &cobra.Command{
	Use:   "preprocess <file>...",
	Short: "Write the include-expanded source text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args, compiler.TypePreprocess)
	},
}

var includesCmd = &cobra.Command{
	Use:   "includes <file>...",
	Short: "Write an include manifest with per-file CRC32C",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args, compiler.TypeIncludes)
	},
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols <file>...",
	Short: "Write a dump of the parsed entrypoint symbols",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args, compiler.TypeSymbols)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{compileCmd, preprocessCmd, includesCmd, symbolsCmd} {
		addBatchFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
}
