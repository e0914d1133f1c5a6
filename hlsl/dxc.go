// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hlsl

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gogpu/oish/compiler"
	"github.com/gogpu/oish/sh"
)

// DXCBackend generates code by shelling out to the DirectX shader
// compiler. One process launch per permutation keeps the backend stateless
// across concurrent workers.
type DXCBackend struct {
	// Path of the dxc executable; resolved from PATH when empty.
	Path string
}

// NewDXCBackend locates dxc. It returns nil when the executable is not
// available, letting callers fall back to a front-end-only driver.
func NewDXCBackend(path string) *DXCBackend {
	if path == "" {
		found, err := exec.LookPath("dxc")
		if err != nil {
			return nil
		}
		path = found
	}
	return &DXCBackend{Path: path}
}

// Compile implements Backend.
func (b *DXCBackend) Compile(settings compiler.Settings, id sh.BinaryIdentifier, entries *compiler.EntryStore) (*compiler.Result, error) {
	profile := profileFor(id)

	tmp, err := os.CreateTemp("", "oish-*.hlsl")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(settings.Source); err != nil {
		tmp.Close()
		return nil, err
	}
	tmp.Close()
	out := tmp.Name() + ".bin"
	defer os.Remove(out)

	args := []string{"-T", profile, "-Fo", out}
	if id.Entrypoint != "" {
		args = append(args, "-E", id.Entrypoint)
	}
	if settings.OutputType == sh.BinarySPIRV {
		args = append(args, "-spirv")
	}
	if settings.Debug {
		args = append(args, "-Zi")
	}
	if settings.IncludeDir != "" {
		args = append(args, "-I", settings.IncludeDir)
	}
	for i := 0; i < sh.ExtensionCount; i++ {
		if id.Extensions&(1<<i) != 0 {
			args = append(args, "-D", "_"+sh.ExtensionDefine(i))
		}
	}
	for _, u := range id.Uniforms {
		if u.Value != "" {
			args = append(args, "-D", "$"+u.Name+"="+u.Value)
		} else {
			args = append(args, "-D", "$"+u.Name)
		}
	}
	args = append(args, tmp.Name())

	var stderr bytes.Buffer
	cmd := exec.Command(b.Path, args...)
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	res := &compiler.Result{
		Errors:  parseDXCErrors(stderr.String(), settings.OutputType),
		Success: runErr == nil,
	}
	if runErr != nil {
		if res.HasErrors() {
			return res, nil
		}
		return nil, fmt.Errorf("hlsl: running dxc: %w", runErr)
	}

	if res.Binary, err = os.ReadFile(out); err != nil {
		return nil, fmt.Errorf("hlsl: reading dxc output: %w", err)
	}
	return res, nil
}

// profileFor builds the dxc -T argument, e.g. "cs_6_5" or "lib_6_5".
func profileFor(id sh.BinaryIdentifier) string {
	prefix := id.Stage.TargetPrefix()
	if prefix == "" {
		prefix = "lib"
	}
	return fmt.Sprintf("%s_%d_%d", prefix, id.ShaderModel.Major(), id.ShaderModel.Minor())
}

// parseDXCErrors recognizes dxc's `file:line:col: severity: text` lines.
func parseDXCErrors(output string, binaryType sh.BinaryType) []compiler.Message {
	var msgs []compiler.Message
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		msg := compiler.Message{
			CompileIndex: uint32(binaryType),
			Severity:     compiler.SeverityError,
			Text:         line,
		}
		parts := strings.SplitN(line, ":", 5)
		if len(parts) == 5 && !strings.ContainsAny(parts[1], " \t") {
			if lineNo, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32); err == nil {
				if col, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 32); err == nil {
					msg.File = filepath.Base(parts[0])
					msg.Line = uint32(lineNo)
					msg.Column = uint32(col)
					if strings.TrimSpace(parts[3]) == "warning" {
						msg.Severity = compiler.SeverityWarn
					}
					msg.Text = strings.TrimSpace(parts[4])
				}
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
