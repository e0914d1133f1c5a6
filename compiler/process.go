// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package compiler

import (
	"github.com/gogpu/oish/sh"
	"github.com/gogpu/oish/spirv"
)

// processSPIRV is the post-compile pass over a SPIR-V permutation: it
// validates the module header and refines the demotion bitset from the
// capabilities the module actually declares. Extensions the driver
// already demoted stay demoted.
func processSPIRV(res *Result, id sh.BinaryIdentifier) error {
	refl, err := spirv.Process(res.Binary)
	if err != nil {
		return &Error{Kind: ErrBackend, Message: "post-processing " + id.String(), Err: err}
	}

	res.Demotions |= refl.Demotions(id.Extensions)

	// A non-library build must expose its entrypoint.
	if id.Entrypoint != "" && len(refl.EntryPoints) > 0 {
		if _, ok := refl.EntryPoints[id.Entrypoint]; !ok {
			return &Error{Kind: ErrBackend, Message: "module lacks entrypoint " + id.Entrypoint}
		}
	}
	return nil
}

// MinShaderModelForStage returns the minimum shader model a stage (with an
// optional wave size requirement) needs.
func MinShaderModelForStage(stage sh.Stage, waveSize sh.WaveSize) sh.ShaderModel {
	model := sh.MakeShaderModel(6, 5)
	switch stage {
	case sh.StageWorkgraph:
		model = sh.MakeShaderModel(6, 8)
	case sh.StageMesh, sh.StageTask:
		model = sh.MakeShaderModel(6, 5)
	}
	// Per-slot wave sizes (min/max/recommended) need SM 6.8; a plain
	// required size only 6.6.
	if waveSize != 0 {
		required := sh.MakeShaderModel(6, 6)
		if waveSize>>4 != 0 {
			required = sh.MakeShaderModel(6, 8)
		}
		if required > model {
			model = required
		}
	}
	return model
}

// MinShaderModelForExtension returns the minimum shader model that can
// host the given extension bits.
func MinShaderModelForExtension(ext sh.Extension) sh.ShaderModel {
	model := sh.MakeShaderModel(6, 5)
	if ext&(sh.ExtComputeDeriv|sh.ExtMeshTaskTexDeriv) != 0 {
		model = sh.MakeShaderModel(6, 6)
	}
	if ext&sh.ExtPAQ != 0 && model < sh.MakeShaderModel(6, 7) {
		model = sh.MakeShaderModel(6, 7)
	}
	if ext&sh.ExtWriteMSTexture != 0 && model < sh.MakeShaderModel(6, 7) {
		model = sh.MakeShaderModel(6, 7)
	}
	return model
}

// ValidateGroupSize applies the thread-group limits shared by every
// compute-style stage.
func ValidateGroupSize(threads [3]uint32) error {
	total := uint64(threads[0]) * uint64(threads[1]) * uint64(threads[2])
	if total == 0 {
		return &Error{Kind: ErrBackend, Message: "thread group size is zero"}
	}
	if total > 512 || threads[0] > 512 || threads[1] > 512 || threads[2] > 64 {
		return &Error{Kind: ErrBackend, Message: "thread group size out of bounds"}
	}
	return nil
}
