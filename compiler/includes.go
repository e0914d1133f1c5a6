// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// mergeIncludeInfo folds new include records into infos, summing reach
// counters for paths seen before.
func mergeIncludeInfo(infos []IncludeInfo, add []IncludeInfo) []IncludeInfo {
	for _, inc := range add {
		found := false
		for i := range infos {
			if infos[i].File == inc.File {
				infos[i].Counter += maxCounter(inc.Counter)
				found = true
				break
			}
		}
		if !found {
			inc.Counter = maxCounter(inc.Counter)
			infos = append(infos, inc)
		}
	}
	return infos
}

func maxCounter(c uint64) uint64 {
	if c == 0 {
		return 1
	}
	return c
}

// StringifyIncludes renders a human-readable include manifest, most
// frequently reached includes first, ties broken by path.
func StringifyIncludes(infos []IncludeInfo) string {
	sorted := append([]IncludeInfo(nil), infos...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Counter != sorted[j].Counter {
			return sorted[i].Counter > sorted[j].Counter
		}
		return sorted[i].File < sorted[j].File
	})

	var out strings.Builder
	out.WriteString("includes:\n")
	for _, inc := range sorted {
		fmt.Fprintf(&out, "\t%08X %8d bytes", inc.CRC32C, inc.FileSize)
		if inc.Counter > 1 {
			fmt.Fprintf(&out, " (x%d)", inc.Counter)
		}
		if !inc.Timestamp.IsZero() {
			fmt.Fprintf(&out, " %s", inc.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
		}
		fmt.Fprintf(&out, " %s\n", inc.File)
	}
	return out.String()
}
