// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hlsl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/oish/compiler"
	"github.com/gogpu/oish/sh"
)

// pendingAnnotations accumulates the annotations preceding one entrypoint
// function.
type pendingAnnotations struct {
	stage              sh.Stage
	hasStage           bool
	isShaderAnnotation bool

	models     []sh.ShaderModel
	extensions []sh.Extension

	uniformValues []sh.Uniform
	uniformCounts []uint8

	vendorMask uint16

	groupX, groupY, groupZ uint16
}

func (p *pendingAnnotations) reset() { *p = pendingAnnotations{} }

// Parse scans preprocessed text for annotated entrypoints. With
// symbolsOnly set it returns a text dump instead of entry descriptors.
func Parse(settings compiler.Settings, symbolsOnly bool) *compiler.Result {
	res := &compiler.Result{Success: true}

	fail := func(line int, format string, args ...any) {
		res.Errors = append(res.Errors, compiler.Message{
			File:     settings.Path,
			Line:     uint32(line),
			Severity: compiler.SeverityError,
			Text:     fmt.Sprintf(format, args...),
		})
		res.Success = false
	}

	var pending pendingAnnotations
	lines := strings.Split(settings.Source, "\n")

	for li, raw := range lines {
		line := strings.TrimSpace(raw)
		lineNo := li + 1

		switch {
		case strings.HasPrefix(line, "[[oxc::"):
			if err := pending.parseOxc(line); err != nil {
				fail(lineNo, "%v", err)
			}

		case strings.HasPrefix(line, "[shader("):
			name, ok := singleQuoted(line[len("[shader("):])
			if !ok {
				fail(lineNo, "malformed [shader(...)] annotation")
				continue
			}
			stage, ok := sh.StageByName(name)
			if !ok {
				fail(lineNo, "unknown stage %q", name)
				continue
			}
			pending.stage = stage
			pending.hasStage = true
			pending.isShaderAnnotation = true

		case strings.HasPrefix(line, "[numthreads("):
			dims, err := parseNumbers(line[len("[numthreads("):], 3)
			if err != nil {
				fail(lineNo, "malformed [numthreads(...)]: %v", err)
				continue
			}
			pending.groupX = uint16(dims[0])
			pending.groupY = uint16(dims[1])
			pending.groupZ = uint16(dims[2])

		default:
			if !pending.hasStage {
				continue
			}
			name, ok := functionName(line)
			if !ok {
				continue
			}
			entry, err := pending.build(name)
			if err != nil {
				fail(lineNo, "entrypoint %q: %v", name, err)
			} else {
				res.Entries = append(res.Entries, entry)
			}
			pending.reset()
		}
	}

	if symbolsOnly {
		var out strings.Builder
		for _, e := range res.Entries {
			fmt.Fprintf(&out, "%s %s (permutations: %d)\n", e.Entry.Stage, e.Entry.Name, e.Combinations())
		}
		res.Text = out.String()
		res.Entries = nil
	}
	return res
}

// build turns the accumulated annotations into an entry descriptor.
func (p *pendingAnnotations) build(name string) (*sh.EntryRuntime, error) {
	entry := &sh.EntryRuntime{
		Entry: sh.Entry{
			Name:   name,
			Stage:  p.stage,
			GroupX: p.groupX,
			GroupY: p.groupY,
			GroupZ: p.groupZ,
		},
		VendorMask:             p.vendorMask,
		IsShaderAnnotation:     p.isShaderAnnotation,
		ShaderModels:           p.models,
		Extensions:             p.extensions,
		UniformValues:          p.uniformValues,
		UniformsPerPermutation: p.uniformCounts,
	}
	if entry.VendorMask == 0 {
		entry.VendorMask = sh.VendorMaskAll
	}
	if p.stage.HasGroupSize() && entry.Entry.GroupX == 0 {
		return nil, fmt.Errorf("%s stage needs [numthreads(...)]", p.stage)
	}
	if !p.stage.HasGroupSize() {
		entry.Entry.GroupX, entry.Entry.GroupY, entry.Entry.GroupZ = 0, 0, 0
	}
	if p.stage.NeedsPayload() {
		// The payload size comes from backend reflection later; seed the
		// minimum so validation passes when no reflection runs.
		entry.Entry.PayloadSize = 2
	}
	if p.stage.NeedsIntersection() {
		entry.Entry.IntersectionSize = 2
	}
	return entry, nil
}

// parseOxc handles one [[oxc::...]] annotation.
func (p *pendingAnnotations) parseOxc(line string) error {
	body, ok := strings.CutPrefix(line, "[[oxc::")
	if !ok {
		return fmt.Errorf("malformed annotation %q", line)
	}
	open := strings.IndexByte(body, '(')
	end := strings.LastIndex(body, ")]]")
	if open < 0 || end < open {
		return fmt.Errorf("malformed annotation %q", line)
	}
	kind := body[:open]
	args := body[open+1 : end]

	switch kind {
	case "stage":
		name, ok := singleQuoted(args + ")")
		if !ok {
			return fmt.Errorf("stage annotation needs one quoted name")
		}
		stage, ok := sh.StageByName(name)
		if !ok {
			return fmt.Errorf("unknown stage %q", name)
		}
		p.stage = stage
		p.hasStage = true

	case "model":
		parts := strings.SplitN(strings.TrimSpace(args), ".", 2)
		if len(parts) != 2 {
			return fmt.Errorf("model annotation needs major.minor")
		}
		major, err1 := strconv.ParseUint(parts[0], 10, 8)
		minor, err2 := strconv.ParseUint(parts[1], 10, 8)
		if err1 != nil || err2 != nil {
			return fmt.Errorf("model annotation needs major.minor")
		}
		p.models = append(p.models, sh.MakeShaderModel(uint8(major), uint8(minor)))

	case "extension":
		var set sh.Extension
		for _, name := range quotedList(args) {
			bit, ok := sh.ExtensionByName(name)
			if !ok {
				return fmt.Errorf("unknown extension %q", name)
			}
			set |= bit
		}
		p.extensions = append(p.extensions, set)

	case "uniforms":
		pairs := splitTopLevel(args)
		if len(pairs) > sh.MaxUniforms {
			return fmt.Errorf("more than %d uniforms in one set", sh.MaxUniforms)
		}
		for _, pair := range pairs {
			name, value, err := parseUniform(pair)
			if err != nil {
				return err
			}
			p.uniformValues = append(p.uniformValues, sh.Uniform{Name: name, Value: value})
		}
		p.uniformCounts = append(p.uniformCounts, uint8(len(pairs)))

	case "vendor":
		names := quotedList(args)
		if len(names) == 0 {
			p.vendorMask = sh.VendorMaskAll
			break
		}
		for _, name := range names {
			found := false
			for v := sh.Vendor(0); v < sh.VendorCount; v++ {
				if v.String() == name {
					p.vendorMask |= 1 << v
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("unknown vendor %q", name)
			}
		}

	default:
		return fmt.Errorf("unknown annotation oxc::%s", kind)
	}
	return nil
}

// singleQuoted extracts the first "..." literal from s.
func singleQuoted(s string) (string, bool) {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(s[start+1:], '"')
	if end < 0 {
		return "", false
	}
	return s[start+1 : start+1+end], true
}

// quotedList extracts every "..." literal from s.
func quotedList(s string) []string {
	var out []string
	for {
		name, ok := singleQuoted(s)
		if !ok {
			return out
		}
		out = append(out, name)
		s = s[strings.IndexByte(s, '"')+len(name)+2:]
	}
}

// splitTopLevel splits a comma-separated argument list, ignoring commas
// inside string literals.
func splitTopLevel(s string) []string {
	var out []string
	depth := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			depth = !depth
		case ',':
			if !depth {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	if part := strings.TrimSpace(s[start:]); part != "" {
		out = append(out, part)
	}
	return out
}

// parseUniform handles `"NAME"` and `"NAME" = "VALUE"` forms.
func parseUniform(s string) (string, string, error) {
	name, ok := singleQuoted(s)
	if !ok {
		return "", "", fmt.Errorf("malformed uniform %q", strings.TrimSpace(s))
	}
	rest := s[strings.IndexByte(s, '"')+len(name)+2:]
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return name, "", nil
	}
	if !strings.HasPrefix(rest, "=") {
		return "", "", fmt.Errorf("malformed uniform %q", strings.TrimSpace(s))
	}
	value, ok := singleQuoted(rest)
	if !ok {
		return "", "", fmt.Errorf("malformed uniform value in %q", strings.TrimSpace(s))
	}
	return name, value, nil
}

// parseNumbers reads exactly n comma-separated integers before a ')'.
func parseNumbers(s string, n int) ([]uint64, error) {
	end := strings.IndexByte(s, ')')
	if end < 0 {
		return nil, fmt.Errorf("missing )")
	}
	parts := strings.Split(s[:end], ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d values, have %d", n, len(parts))
	}
	out := make([]uint64, n)
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 16)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// functionName recognizes a function definition line and returns its name.
func functionName(line string) (string, bool) {
	if strings.HasPrefix(line, "//") {
		return "", false
	}
	open := strings.IndexByte(line, '(')
	if open <= 0 {
		return "", false
	}
	head := strings.Fields(line[:open])
	if len(head) < 2 {
		return "", false
	}
	name := head[len(head)-1]
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || i > 0 && c >= '0' && c <= '9') {
			return "", false
		}
	}
	return name, true
}
