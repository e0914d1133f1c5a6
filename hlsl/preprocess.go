// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package hlsl is the native HLSL front end of the compile pipeline: it
// expands includes with provenance tracking and extracts the [[oxc::...]]
// entrypoint annotations that drive permutation expansion. Code generation
// stays with the external backend compiler.
package hlsl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/oish/compiler"
	"github.com/gogpu/oish/wire"
)

// maxIncludeDepth bounds include recursion so cycles surface as errors.
const maxIncludeDepth = 64

// preprocessor expands #include directives, recording one IncludeInfo per
// distinct file with a reach counter.
type preprocessor struct {
	includeDir string
	baseDir    string

	seen   map[string]*compiler.IncludeInfo
	order  []string
	errors []compiler.Message
}

// Preprocess expands source and returns the text plus include provenance.
// Macro handling is left to the backend; only include resolution happens
// here.
func Preprocess(settings compiler.Settings) *compiler.Result {
	p := &preprocessor{
		includeDir: settings.IncludeDir,
		baseDir:    filepath.Dir(settings.Path),
		seen:       make(map[string]*compiler.IncludeInfo),
	}

	text, ok := p.expand(settings.Source, settings.Path, 0)

	res := &compiler.Result{
		Errors:  p.errors,
		Success: ok && !hasErrors(p.errors),
		Text:    text,
	}
	for _, path := range p.order {
		res.IncludeInfo = append(res.IncludeInfo, *p.seen[path])
	}
	return res
}

func hasErrors(msgs []compiler.Message) bool {
	for _, m := range msgs {
		if m.Severity == compiler.SeverityError {
			return true
		}
	}
	return false
}

func (p *preprocessor) errorf(file string, line uint32, format string, args ...any) {
	p.errors = append(p.errors, compiler.Message{
		File:     file,
		Line:     line,
		Severity: compiler.SeverityError,
		Text:     fmt.Sprintf(format, args...),
	})
}

func (p *preprocessor) expand(source, path string, depth int) (string, bool) {
	if depth > maxIncludeDepth {
		p.errorf(path, 0, "include depth exceeds %d, cycle likely", maxIncludeDepth)
		return "", false
	}

	var out strings.Builder
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		target, ok := parseInclude(trimmed)
		if !ok {
			out.WriteString(line)
			if i+1 < len(lines) {
				out.WriteByte('\n')
			}
			continue
		}

		resolved, data, err := p.resolve(target)
		if err != nil {
			p.errorf(path, uint32(i+1), "including %q: %v", target, err)
			return "", false
		}

		info, known := p.seen[resolved]
		if known {
			info.Counter++
			// An include reached twice still expands once per site; the
			// backend's own guards handle multiple-definition issues.
		} else {
			stat, _ := os.Stat(resolved)
			info = &compiler.IncludeInfo{
				FileSize: uint32(len(data)),
				CRC32C:   wire.CRC32CStripCR(data),
				Counter:  1,
				File:     target,
			}
			if stat != nil {
				info.Timestamp = stat.ModTime()
			}
			p.seen[resolved] = info
			p.order = append(p.order, resolved)
		}

		expanded, ok := p.expand(string(data), resolved, depth+1)
		if !ok {
			return "", false
		}
		out.WriteString(expanded)
		if i+1 < len(lines) {
			out.WriteByte('\n')
		}
	}
	return out.String(), true
}

// parseInclude recognizes #include "..." and #include <...> directives.
func parseInclude(line string) (string, bool) {
	if !strings.HasPrefix(line, "#") {
		return "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, "#"))
	if !strings.HasPrefix(rest, "include") {
		return "", false
	}
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "include"))
	if len(rest) < 2 {
		return "", false
	}
	switch rest[0] {
	case '"':
		if end := strings.IndexByte(rest[1:], '"'); end >= 0 {
			return rest[1 : 1+end], true
		}
	case '<':
		if end := strings.IndexByte(rest[1:], '>'); end >= 0 {
			return rest[1 : 1+end], true
		}
	}
	return "", false
}

func (p *preprocessor) resolve(target string) (string, []byte, error) {
	candidates := []string{filepath.Join(p.baseDir, target)}
	if p.includeDir != "" {
		candidates = append(candidates, filepath.Join(p.includeDir, target))
	}
	for _, c := range candidates {
		data, err := os.ReadFile(c)
		if err == nil {
			return c, data, nil
		}
	}
	return "", nil, fmt.Errorf("not found in %v", candidates)
}
