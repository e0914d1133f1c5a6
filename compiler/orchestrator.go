// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package compiler

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/oish/internal/logger"
	"github.com/gogpu/oish/sh"
	"github.com/gogpu/oish/wire"
)

// CompilerVersion identifies this compiler in produced containers:
// major.minor.patch packed as 10.10.12 bits.
const CompilerVersion uint32 = 0<<22 | 2<<12 | 0

// CompileType selects what the batch produces per source file.
type CompileType uint8

const (
	// TypePreprocess writes the expanded source text.
	TypePreprocess CompileType = iota

	// TypeIncludes writes a manifest of every include with its CRC32C.
	TypeIncludes

	// TypeCompile writes a finished oiSH container.
	TypeCompile

	// TypeSymbols writes a text dump of the parsed symbols.
	TypeSymbols
)

// Warning selects extra post-compile diagnostics.
type Warning uint32

const (
	WarnUnusedRegisters Warning = 1 << 0
	WarnUnusedConstants Warning = 1 << 1
	WarnBufferPadding   Warning = 1 << 2
)

// Batch describes one compile batch. Files, ShaderText, Outputs and Modes
// run in parallel; ShaderText entries may be empty to read from disk.
// Several files may target the same output, in which case their containers
// are combined in batch order.
type Batch struct {
	Files      []string
	ShaderText []string
	Outputs    []string
	Modes      []sh.BinaryType

	ThreadCount int
	Debug       bool

	ExtraWarnings    Warning
	IgnoreEmptyFiles bool

	Type CompileType

	IncludeDir string
	OutputDir  string

	Logging bool

	// CaptureBuffers returns outputs in BatchResult.Buffers instead of
	// writing them to disk.
	CaptureBuffers bool
}

// BatchResult is the aggregate outcome.
type BatchResult struct {
	// Success is true when every file and output succeeded.
	Success bool

	// Buffers holds per-output bytes when CaptureBuffers was set, keyed
	// by output path.
	Buffers map[string][]byte

	// Errors holds the per-file failures, indexed like Batch.Files; nil
	// entries succeeded.
	Errors []error

	// Messages are all backend diagnostics, in file order.
	Messages []Message
}

// fileState tracks one source file through the pipeline.
type fileState struct {
	index  int
	output string
	mode   sh.BinaryType

	text         string
	preprocessed string
	sourceHash   uint32
	includeInfo  []IncludeInfo

	store  *EntryStore
	builds *buildSet

	// results holds the per-build compile outcomes.
	results []*Result

	// pending counts outstanding compile jobs; the worker that brings it
	// to zero assembles the container.
	pending atomic.Int32

	mu       sync.Mutex
	err      error
	messages []Message

	container *sh.File
	outText   string
	skipped   bool
}

func (f *fileState) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *fileState) failed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err != nil
}

func (f *fileState) report(msgs []Message) {
	f.mu.Lock()
	f.messages = append(f.messages, msgs...)
	f.mu.Unlock()
}

type compileJob struct {
	file  *fileState
	build int
}

// CompileShaders runs the batch: every worker owns a driver, a global
// counter hands out source files for preprocessing and parsing, and a
// second queue carries per-permutation compile jobs that are enqueued as
// files finish parsing. The worker that completes a file's last
// permutation assembles its container.
func CompileShaders(newDriver NewDriverFunc, batch Batch) (*BatchResult, error) {
	n := len(batch.Files)
	if len(batch.Outputs) != n || len(batch.Modes) != n || (len(batch.ShaderText) != 0 && len(batch.ShaderText) != n) {
		return nil, &Error{Kind: ErrBadBatch, Message: "files, outputs, modes and shader text lengths disagree"}
	}

	workers := batch.ThreadCount
	if workers <= 0 {
		workers = 1
	}
	if workers > n && n > 0 {
		workers = n
	}

	files := make([]*fileState, n)
	for i := range files {
		files[i] = &fileState{index: i, output: batch.Outputs[i], mode: batch.Modes[i]}
		if len(batch.ShaderText) == n {
			files[i].text = batch.ShaderText[i]
		}
	}

	var nextFile atomic.Int64
	jobs := make(chan compileJob)
	var enqueueWG sync.WaitGroup // parse tasks that may still enqueue jobs
	enqueueWG.Add(n)
	go func() {
		enqueueWG.Wait()
		close(jobs)
	}()

	var workerWG sync.WaitGroup
	for w := 0; w < workers; w++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()

			driver, err := newDriver()
			if err != nil {
				// Drain our share of the work so the batch terminates.
				for {
					i := int(nextFile.Add(1)) - 1
					if i >= n {
						break
					}
					files[i].fail(&Error{Kind: ErrBackend, Message: "creating driver", Err: err})
					enqueueWG.Done()
				}
				for job := range jobs {
					job.file.fail(&Error{Kind: ErrBackend, Message: "creating driver", Err: err})
					job.file.pending.Add(-1)
				}
				return
			}
			defer driver.Close()

			// Phase one: preprocess and parse files.
			for {
				i := int(nextFile.Add(1)) - 1
				if i >= n {
					break
				}
				parseFile(driver, batch, files[i])
				scheduleFile(batch, files[i], jobs, &enqueueWG)
			}

			// Phase two: compile permutations as they become available.
			// The channel blocks until jobs arrive or all parsing is
			// done, taking the place of a timed backoff.
			for job := range jobs {
				compileBuild(driver, batch, job)
				if job.file.pending.Add(-1) == 0 {
					assembleFile(batch, job.file)
				}
			}
		}()
	}
	workerWG.Wait()

	return finishBatch(batch, files)
}

// parseFile runs preprocess and, for compile/symbol batches, the parse
// stage. Failures are per-file fatal but never abort the batch.
func parseFile(driver Driver, batch Batch, f *fileState) {
	if f.text == "" {
		data, err := os.ReadFile(batch.Files[f.index])
		if err != nil {
			f.fail(&Error{Kind: ErrIO, Message: "reading " + batch.Files[f.index], Err: err})
			return
		}
		f.text = string(data)
	}
	if strings.TrimSpace(f.text) == "" {
		if batch.IgnoreEmptyFiles {
			f.skipped = true
			return
		}
		f.fail(&Error{Kind: ErrBadBatch, Message: batch.Files[f.index] + " is empty"})
		return
	}

	settings := Settings{
		Source:      f.text,
		Path:        batch.Files[f.index],
		Format:      FormatHLSL,
		OutputType:  f.mode,
		IncludeDir:  batch.IncludeDir,
		Debug:       batch.Debug,
		IncludeInfo: batch.Type == TypeIncludes || batch.Type == TypeCompile,
	}

	pre, err := driver.Preprocess(settings)
	if err != nil {
		f.fail(&Error{Kind: ErrBackend, Message: "preprocessing " + settings.Path, Err: err})
		return
	}
	f.report(pre.Errors)
	if !pre.Success {
		f.fail(&Error{Kind: ErrBackend, Message: "preprocessing " + settings.Path + " failed"})
		return
	}
	f.preprocessed = pre.Text
	f.sourceHash = wire.CRC32C([]byte(pre.Text))
	f.includeInfo = mergeIncludeInfo(f.includeInfo, pre.IncludeInfo)

	switch batch.Type {
	case TypePreprocess:
		f.outText = pre.Text
		return
	case TypeIncludes:
		f.outText = StringifyIncludes(f.includeInfo)
		return
	}

	settings.Source = pre.Text
	parsed, err := driver.Parse(settings, batch.Type == TypeSymbols)
	if err != nil {
		f.fail(&Error{Kind: ErrBackend, Message: "parsing " + settings.Path, Err: err})
		return
	}
	f.report(parsed.Errors)
	if !parsed.Success {
		f.fail(&Error{Kind: ErrBackend, Message: "parsing " + settings.Path + " failed"})
		return
	}

	if batch.Type == TypeSymbols {
		f.outText = parsed.Text
		return
	}

	f.store = NewEntryStore(parsed.Entries)
	builds, err := collectBuilds(parsed.Entries)
	if err != nil {
		f.fail(err)
		return
	}
	f.builds = builds
	f.results = make([]*Result, len(builds.builds))

	if batch.Logging {
		logger.Debug("parsed shader",
			"file", settings.Path,
			"entries", len(parsed.Entries),
			"builds", len(builds.builds))
	}
}

// scheduleFile queues the file's distinct builds. Enqueueing runs on its
// own goroutine so a worker never blocks on the job channel it also
// consumes; the wait group is released only after the last job is queued
// so the channel cannot close early. A parsed file without builds
// assembles immediately.
func scheduleFile(batch Batch, f *fileState, jobs chan<- compileJob, wg *sync.WaitGroup) {
	if f.err != nil || f.builds == nil || len(f.builds.builds) == 0 {
		if f.err == nil && f.builds != nil {
			assembleFile(batch, f)
		}
		wg.Done()
		return
	}
	f.pending.Store(int32(len(f.builds.builds)))
	go func() {
		for i := range f.builds.builds {
			jobs <- compileJob{file: f, build: i}
		}
		wg.Done()
	}()
}

// compileBuild runs one permutation through the driver, then the SPIR-V
// post-process that refines the demotion bitset.
func compileBuild(driver Driver, batch Batch, job compileJob) {
	f := job.file
	if f.failed() {
		return
	}

	settings := Settings{
		Source:      f.preprocessed,
		Path:        batch.Files[f.index],
		Format:      FormatHLSL,
		OutputType:  f.mode,
		IncludeDir:  batch.IncludeDir,
		Debug:       batch.Debug,
		IncludeInfo: true,
	}
	id := f.builds.builds[job.build].id

	start := time.Now()
	res, err := driver.Compile(settings, id, f.store)
	if err != nil {
		f.fail(&Error{Kind: ErrBackend, Message: "compiling " + id.String(), Err: err})
		return
	}
	f.report(res.Errors)
	if !res.Success {
		f.fail(&Error{Kind: ErrBackend, Message: "compiling " + id.String() + " failed"})
		return
	}

	if f.mode == sh.BinarySPIRV {
		if err := processSPIRV(res, id); err != nil {
			f.fail(err)
			return
		}
	}

	f.mu.Lock()
	f.includeInfo = mergeIncludeInfo(f.includeInfo, res.IncludeInfo)
	f.results[job.build] = res
	f.mu.Unlock()

	if batch.Logging {
		logger.Debug("compiled permutation",
			"file", settings.Path,
			"identifier", id.String(),
			"bytes", len(res.Binary),
			"elapsed", time.Since(start))
	}
}

// assembleFile builds the container from the finished permutations.
func assembleFile(batch Batch, f *fileState) {
	if f.err != nil {
		return
	}

	container, err := sh.New(0, CompilerVersion, f.sourceHash)
	if err != nil {
		f.fail(err)
		return
	}

	for i := range f.builds.builds {
		res := f.results[i]
		if res == nil {
			f.fail(&Error{Kind: ErrBackend, Message: "permutation produced no result"})
			return
		}
		b := &f.builds.builds[i]

		vendorMask := uint16(0)
		annotation := false
		for _, ei := range b.entries {
			vendorMask |= f.store.Entries()[ei].VendorMask
			annotation = annotation || f.store.Entries()[ei].IsShaderAnnotation
		}
		if vendorMask == 0 {
			vendorMask = sh.VendorMaskAll
		}

		info := sh.BinaryInfo{
			Identifier: sh.BinaryIdentifier{
				Entrypoint:  b.id.Entrypoint,
				Uniforms:    append([]sh.Uniform(nil), b.id.Uniforms...),
				Extensions:  b.id.Extensions,
				ShaderModel: b.id.ShaderModel,
				Stage:       b.id.Stage,
			},
			Registers:           res.Registers,
			DormantExtensions:   res.Demotions,
			VendorMask:          vendorMask,
			HasShaderAnnotation: annotation,
		}
		info.Binaries[f.mode] = res.Binary

		if err := container.AddBinary(&info); err != nil {
			f.fail(err)
			return
		}
	}

	for ei, entry := range f.store.Entries() {
		final := entry.Entry
		final.SemanticNames = append([]string(nil), entry.Entry.SemanticNames...)
		final.BinaryIDs = append([]uint16(nil), f.builds.perEntry[ei]...)
		if err := container.AddEntrypoint(&final); err != nil {
			f.fail(err)
			return
		}
	}

	for _, inc := range f.includeInfo {
		if err := container.AddInclude(sh.Include{RelativePath: inc.File, CRC32C: inc.CRC32C}); err != nil {
			f.fail(err)
			return
		}
	}

	if batch.ExtraWarnings != 0 {
		for _, msg := range ScanWarnings(container, batch.ExtraWarnings) {
			f.report([]Message{msg})
		}
	}
	f.container = container
}

// finishBatch combines containers that share an output and emits
// everything.
func finishBatch(batch Batch, files []*fileState) (*BatchResult, error) {
	result := &BatchResult{
		Success: true,
		Errors:  make([]error, len(files)),
	}
	if batch.CaptureBuffers {
		result.Buffers = make(map[string][]byte)
	}

	type outputGroup struct {
		path   string
		files  []*fileState
		failed bool
	}
	var groups []*outputGroup
	byPath := make(map[string]*outputGroup)
	for _, f := range files {
		result.Errors[f.index] = f.err
		result.Messages = append(result.Messages, f.messages...)
		if f.err != nil {
			result.Success = false
			if batch.Logging {
				logger.Error("shader failed", "file", batch.Files[f.index], "error", f.err)
			}
		}
		if f.skipped {
			continue
		}
		g, ok := byPath[f.output]
		if !ok {
			g = &outputGroup{path: f.output}
			byPath[f.output] = g
			groups = append(groups, g)
		}
		g.files = append(g.files, f)
		if f.err != nil {
			g.failed = true
		}
	}

	// Output groups are independent once assembled; emit them in
	// parallel, serializing only result bookkeeping.
	limit := batch.ThreadCount
	if limit <= 0 {
		limit = 1
	}
	var emitMu sync.Mutex
	var eg errgroup.Group
	eg.SetLimit(limit)
	for _, g := range groups {
		if g.failed {
			result.Success = false
			continue
		}
		g := g
		eg.Go(func() error {
			data, err := emitOutput(batch, g.files)
			if err == nil && !batch.CaptureBuffers {
				path := g.path
				if batch.OutputDir != "" && !filepath.IsAbs(path) {
					path = filepath.Join(batch.OutputDir, path)
				}
				if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
					err = &Error{Kind: ErrIO, Message: "creating " + filepath.Dir(path), Err: mkErr}
				} else if wrErr := os.WriteFile(path, data, 0o644); wrErr != nil {
					err = &Error{Kind: ErrIO, Message: "writing " + path, Err: wrErr}
				}
			}

			emitMu.Lock()
			defer emitMu.Unlock()
			if err != nil {
				result.Success = false
				result.Errors[g.files[0].index] = err
			} else if batch.CaptureBuffers {
				result.Buffers[g.path] = data
			}
			return nil
		})
	}
	_ = eg.Wait()
	return result, nil
}

// emitOutput serializes one output group, combining containers when
// several files target the same path.
func emitOutput(batch Batch, group []*fileState) ([]byte, error) {
	if batch.Type != TypeCompile {
		var out strings.Builder
		for _, f := range group {
			out.WriteString(f.outText)
		}
		return []byte(out.String()), nil
	}

	// Containers can only combine when they agree on the source hash, so
	// an output fed by several files hashes their preprocessed texts
	// together, in batch order.
	if len(group) > 1 {
		var joined []byte
		for _, f := range group {
			joined = append(joined, f.preprocessed...)
		}
		groupHash := wire.CRC32C(joined)
		for _, f := range group {
			f.container.SourceHash = groupHash
		}
	}

	combined := group[0].container
	for _, f := range group[1:] {
		next, err := sh.Combine(combined, f.container)
		if err != nil {
			return nil, err
		}
		combined = next
	}
	return combined.Write()
}
