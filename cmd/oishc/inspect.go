// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/oish"
	"github.com/gogpu/oish/hlsl"
	"github.com/gogpu/oish/sh"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.oiSH>",
	Short: "Dump the entries, binaries and registers of a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := oish.Open(args[0])
		if err != nil {
			return err
		}
		cmd.Print(file.Dump())
		return nil
	},
}

var disasmFlags struct {
	binary int
	kind   string
}

var disassembleCmd = &cobra.Command{
	Use:   "disassemble <file.oiSH>",
	Short: "Disassemble one binary of a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := oish.Open(args[0])
		if err != nil {
			return err
		}
		if disasmFlags.binary < 0 || disasmFlags.binary >= len(file.Binaries) {
			return fmt.Errorf("binary %d out of range, container has %d", disasmFlags.binary, len(file.Binaries))
		}
		bin := &file.Binaries[disasmFlags.binary]

		binaryType := sh.BinarySPIRV
		if disasmFlags.kind == "dxil" {
			binaryType = sh.BinaryDXIL
		}
		blob := bin.Binaries[binaryType]
		if len(blob) == 0 {
			return fmt.Errorf("binary %d carries no %s blob", disasmFlags.binary, binaryType)
		}

		driver := hlsl.NewDriver(nil)
		text, err := driver.Disassemble(binaryType, blob)
		if err != nil {
			return err
		}
		cmd.Printf("; %s\n%s", bin.Identifier.String(), text)
		return nil
	},
}

func init() {
	disassembleCmd.Flags().IntVar(&disasmFlags.binary, "binary", 0, "Binary index within the container")
	disassembleCmd.Flags().StringVar(&disasmFlags.kind, "type", "spirv", "Which blob to disassemble (spirv|dxil)")
	rootCmd.AddCommand(inspectCmd, disassembleCmd)
}
