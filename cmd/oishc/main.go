// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Command oishc is the oiSH shader compiler CLI: it batches HLSL sources
// into oiSH containers and inspects existing ones.
package main

import (
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/gogpu/oish/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "oishc",
	Short: "oiSH shader compiler and container tool",
	Long: `oishc compiles annotated HLSL shaders into oiSH containers, the
self-describing bundle of SPIR-V/DXIL binaries and reflection data a
graphics runtime consumes.

Use "oishc [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "INFO"
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = "DEBUG"
		}
		format, _ := cmd.Flags().GetString("log-format")
		logger.Init(logger.Config{Level: level, Format: format})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the oishc version",
	Run: func(cmd *cobra.Command, args []string) {
		version := "dev"
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.Main.Version != "" && info.Main.Version != "(devel)" {
				version = info.Main.Version
			}
		}
		cmd.Printf("oishc version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text|json)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
