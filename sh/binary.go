// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sh

import (
	"fmt"
	"strings"
)

// Uniform is one compile-time define of a permutation, e.g. QUALITY = "2".
type Uniform struct {
	Name  string
	Value string
}

// MaxUniforms bounds the uniform pairs of one binary.
const MaxUniforms = 255

// BinaryIdentifier is the uniqueness key of a compiled binary: the
// entrypoint it was compiled for (empty for library builds), the uniform
// set, the extension set, the shader model, and the pipeline stage.
type BinaryIdentifier struct {
	// Entrypoint is empty when the binary was built from [shader("...")]
	// annotations as a library.
	Entrypoint string

	Uniforms []Uniform

	Extensions   Extension
	ShaderModel  ShaderModel
	Stage        Stage
}

// Equal reports exact identifier equality; uniforms compare element-wise
// and case-sensitively.
func (id *BinaryIdentifier) Equal(other *BinaryIdentifier) bool {
	if id.Extensions != other.Extensions ||
		id.ShaderModel != other.ShaderModel ||
		id.Stage != other.Stage ||
		id.Entrypoint != other.Entrypoint ||
		len(id.Uniforms) != len(other.Uniforms) {
		return false
	}
	for i := range id.Uniforms {
		if id.Uniforms[i] != other.Uniforms[i] {
			return false
		}
	}
	return true
}

// String renders the identifier for diagnostics.
func (id *BinaryIdentifier) String() string {
	var sb strings.Builder
	if id.Entrypoint != "" {
		fmt.Fprintf(&sb, "%s %q", id.Stage, id.Entrypoint)
	} else {
		sb.WriteString("lib")
	}
	fmt.Fprintf(&sb, " sm%d.%d", id.ShaderModel.Major(), id.ShaderModel.Minor())
	if id.Extensions != 0 {
		fmt.Fprintf(&sb, " ext[%s]", id.Extensions)
	}
	for _, u := range id.Uniforms {
		if u.Value != "" {
			fmt.Fprintf(&sb, " %s=%q", u.Name, u.Value)
		} else {
			fmt.Fprintf(&sb, " %s", u.Name)
		}
	}
	return sb.String()
}

// BinaryInfo is one deduplicated compiled artifact with its identifier,
// resource registers and backend byte blobs.
type BinaryInfo struct {
	Identifier BinaryIdentifier

	Registers RegisterList

	// DormantExtensions are declared in the identifier but discovered to
	// be unused by the backend.
	DormantExtensions Extension

	// VendorMask restricts the binary to a subset of GPU vendors.
	VendorMask uint16

	// HasShaderAnnotation is set for [shader("...")] library builds and
	// mirrors an empty Identifier.Entrypoint.
	HasShaderAnnotation bool

	// Binaries holds the raw blobs, indexed by BinaryType.
	Binaries [BinaryTypeCount][]byte
}

// descriptor-set and slot-count ceilings of §4.2.
const (
	maxDescriptorSets = 4
	maxRTAS           = 16
	maxSubpassInputs  = 8
)

// registerCounters tallies descriptor slots per API bucket.
type registerCounters struct {
	samplerSPIRV, samplerDXIL       uint64
	cbv, ubo                        uint64
	uav, srv                        uint64
	rtasSPIRV, rtasDXIL             uint64
	image, texture                  uint64
	ssbo, subpassInput              uint64
	unbounded                       bool
}

func (c *registerCounters) totalSPIRV() uint64 {
	return c.samplerSPIRV + c.ubo + c.rtasSPIRV + c.image + c.texture + c.ssbo + c.subpassInput
}

func countRegisters(registers RegisterList) (registerCounters, error) {
	var c registerCounters
	var sets []uint32

	for i := range registers {
		reg := &registers[i]

		if reg.IsUnbounded() {
			c.unbounded = true
		}
		slots := reg.SlotCount()

		hasSPIRV := reg.Bindings[BinarySPIRV].IsSet()
		hasDXIL := reg.Bindings[BinaryDXIL].IsSet()

		if hasSPIRV {
			space := reg.Bindings[BinarySPIRV].Space
			known := false
			for _, s := range sets {
				if s == space {
					known = true
					break
				}
			}
			if !known {
				if len(sets) == maxDescriptorSets {
					return c, errf(ErrCapacityExceeded,
						"registers use more than %d descriptor sets", maxDescriptorSets)
				}
				sets = append(sets, space)
			}
		}

		switch {
		case reg.Kind.IsSampler():
			if hasSPIRV {
				c.samplerSPIRV += slots
			}
			if hasDXIL {
				c.samplerDXIL += slots
			}

		case reg.Kind == KindSubpassInput:
			c.subpassInput += slots

		case reg.Kind == KindAccelerationStructure:
			if hasSPIRV {
				c.rtasSPIRV += slots
			}
			if hasDXIL {
				c.rtasDXIL += slots
				c.srv += slots
			}

		case reg.Kind == KindConstantBuffer:
			if hasSPIRV {
				c.ubo += slots
			}
			if hasDXIL {
				c.cbv += slots
			}

		case reg.Kind.IsBuffer():
			if hasSPIRV {
				c.ssbo += slots
			}
			if hasDXIL {
				if reg.IsWrite {
					c.uav += slots
				} else {
					c.srv += slots
				}
			}

		case reg.Kind.IsTexture():
			if hasSPIRV {
				if reg.IsWrite {
					c.image += slots
				} else {
					c.texture += slots
				}
			}
			if hasDXIL {
				if reg.IsWrite {
					c.uav += slots
				} else {
					c.srv += slots
				}
			}
		}
	}

	if max64(c.rtasSPIRV, c.rtasDXIL) > maxRTAS || c.subpassInput > maxSubpassInputs {
		return c, errf(ErrCapacityExceeded,
			"registers exceed %d acceleration structures or %d subpass inputs", maxRTAS, maxSubpassInputs)
	}
	return c, nil
}

// needsBindless applies the legacy binding budget.
func (c *registerCounters) needsBindless() bool {
	return max64(c.samplerSPIRV, c.samplerDXIL) > 16 ||
		max64(c.cbv, c.ubo) > 12 ||
		c.ssbo > 8 ||
		c.texture > 16 ||
		c.image > 4 ||
		c.srv > 128 ||
		c.uav > 64 ||
		c.totalSPIRV() > 44
}

// checkBindlessCeilings applies the hard ceilings of bindless mode.
func (c *registerCounters) checkBindlessCeilings() error {
	if max64(c.samplerSPIRV, c.samplerDXIL) > 2048 ||
		max64(c.cbv, c.ubo) > 12 ||
		c.ssbo > 500_000 ||
		c.texture > 250_000 ||
		c.image > 250_000 ||
		c.srv+c.uav+c.cbv > 1_000_000 ||
		c.totalSPIRV() > 1_000_000 {
		return errf(ErrCapacityExceeded, "registers exceed the bindless resource ceilings")
	}
	return nil
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// AddBinary validates and appends a binary. The info is consumed: on
// success the container owns every sub-field and info must not be reused.
// The Bindless and UnboundArraySize extension bits are derived from the
// register set before the identifier is compared against existing
// binaries.
func (f *File) AddBinary(info *BinaryInfo) error {
	hasBlob := false
	for _, b := range info.Binaries {
		if len(b) > 0 {
			hasBlob = true
			break
		}
	}
	if !hasBlob {
		return errf(ErrInvariantViolation, "binary carries no backend blob")
	}

	if info.VendorMask == 0 {
		return errf(ErrInvariantViolation, "binary vendor mask is required")
	}
	if info.VendorMask == 0xFFFF {
		info.VendorMask = VendorMaskAll
	}
	if info.VendorMask&^VendorMaskAll != 0 {
		return errf(ErrInvariantViolation, "binary vendor mask 0x%04X out of bounds", info.VendorMask)
	}
	if !info.Identifier.Extensions.Valid() {
		return errf(ErrInvariantViolation, "binary extensions 0x%08X out of bounds", uint32(info.Identifier.Extensions))
	}
	if !info.Identifier.Stage.Valid() {
		return errf(ErrInvariantViolation, "binary stage %d out of bounds", info.Identifier.Stage)
	}
	if len(info.Identifier.Uniforms) > MaxUniforms {
		return errf(ErrInvariantViolation, "binary has %d uniform pairs, max %d", len(info.Identifier.Uniforms), MaxUniforms)
	}
	if info.HasShaderAnnotation != (info.Identifier.Entrypoint == "") {
		return errf(ErrInvariantViolation,
			"binary entrypoint must be empty exactly for [shader] annotated library builds")
	}
	if !info.Identifier.ShaderModel.Supported() {
		return errf(ErrInvariantViolation, "binary shader model %d.%d unsupported, must be 6.5 to 6.8",
			info.Identifier.ShaderModel.Major(), info.Identifier.ShaderModel.Minor())
	}
	if len(info.Binaries[BinarySPIRV])%4 != 0 {
		return errf(ErrInvariantViolation, "SPIRV blob length must be a multiple of 4")
	}

	counters, err := countRegisters(info.Registers)
	if err != nil {
		return err
	}
	if counters.needsBindless() || counters.unbounded {
		info.Identifier.Extensions |= ExtBindless
		if counters.unbounded {
			info.Identifier.Extensions |= ExtUnboundArraySize
		}
		if err := counters.checkBindlessCeilings(); err != nil {
			return err
		}
	}

	for i := range f.Binaries {
		if f.Binaries[i].Identifier.Equal(&info.Identifier) {
			return errf(ErrAlreadyDefined, "binary identifier already present: %s", &info.Identifier)
		}
	}
	if len(f.Binaries)+1 >= 0xFFFF {
		return errf(ErrCapacityExceeded, "binary list is limited to 16 bits")
	}

	seen := make(map[string]struct{}, len(info.Identifier.Uniforms))
	for _, u := range info.Identifier.Uniforms {
		if _, dup := seen[u.Name]; dup {
			return errf(ErrAlreadyDefined, "uniform %q defined twice in one binary", u.Name)
		}
		seen[u.Name] = struct{}{}
		f.noteUTF8(u.Name)
		f.noteUTF8(u.Value)
	}
	f.noteUTF8(info.Identifier.Entrypoint)
	for i := range info.Registers {
		f.noteUTF8(info.Registers[i].Name)
	}

	f.Binaries = append(f.Binaries, *info)
	*info = BinaryInfo{}
	return nil
}
