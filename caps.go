package statesync

import "github.com/gogpu/gputypes"

// Hard slot maxima. Caps values are clamped to these so the fixed-size
// applied-state mirrors can never be outgrown.
const (
	maxRenderTargets        = 8
	maxShaderResourceSlots  = 32
	maxUnorderedAccessSlots = 8
	maxSamplerSlots         = 16
	maxUniformBufferSlots   = 16
	maxVertexBufferSlots    = 16
	maxVertexAttribs        = 16
	maxViewports            = 16
)

// Reserved uniform buffer slots. Application bindings start after these.
const (
	slotDefaultUniforms = 0
	slotDriverConstants = 1

	// ReservedUniformSlots is the number of uniform buffer slots the sync
	// layer claims for itself. SetUniformBuffer slot 0 maps to device slot
	// ReservedUniformSlots.
	ReservedUniformSlots = 2
)

// FeatureTier selects the device capability class. The reduced tier models
// low feature levels: no partial uniform buffer ranges, viewport clamped to
// the render target, first vertex attribute must step per vertex.
type FeatureTier int

const (
	// TierFull is a fully capable device.
	TierFull FeatureTier = iota

	// TierReduced is a restricted device (feature-level 9 class hardware).
	TierReduced
)

// Caps describes the device capability envelope the sync layer works
// within. The zero value is not useful; start from DefaultCaps.
type Caps struct {
	// Tier is the device capability class.
	Tier FeatureTier

	// MaxColorAttachments is the number of simultaneous render targets.
	MaxColorAttachments int

	// MaxShaderResourceSlots is the per-stage shader resource view count.
	MaxShaderResourceSlots int

	// MaxUnorderedAccessSlots is the storage view slot count.
	MaxUnorderedAccessSlots int

	// MaxSamplerSlots is the per-stage sampler count.
	MaxSamplerSlots int

	// MaxUniformBufferSlots is the per-stage uniform buffer count,
	// including the reserved slots.
	MaxUniformBufferSlots int

	// MaxVertexBufferSlots is the vertex buffer slot count.
	MaxVertexBufferSlots int

	// MaxViewportDimension is the largest viewport width or height.
	MaxViewportDimension uint32

	// MaxViewports is the number of simultaneous viewport rectangles for
	// multiview rendering. Forced to one on TierReduced.
	MaxViewports int

	// PartialUniformRanges reports whether uniform buffers can be bound at
	// a nonzero offset. Forced off on TierReduced.
	PartialUniformRanges bool
}

// DefaultCaps returns the capability envelope of a fully featured device,
// seeded from the standard WebGPU limits.
func DefaultCaps() Caps {
	limits := gputypes.DefaultLimits()
	return Caps{
		Tier:                    TierFull,
		MaxColorAttachments:     maxRenderTargets,
		MaxShaderResourceSlots:  maxShaderResourceSlots,
		MaxUnorderedAccessSlots: maxUnorderedAccessSlots,
		MaxSamplerSlots:         maxSamplerSlots,
		MaxUniformBufferSlots:   maxUniformBufferSlots,
		MaxVertexBufferSlots:    maxVertexBufferSlots,
		MaxViewportDimension:    limits.MaxTextureDimension2D,
		MaxViewports:            maxViewports,
		PartialUniformRanges:    true,
	}
}

// clamp bounds every slot count to the fixed mirror sizes and applies tier
// restrictions.
func (c *Caps) clamp() {
	c.MaxColorAttachments = clampSlots(c.MaxColorAttachments, maxRenderTargets)
	c.MaxShaderResourceSlots = clampSlots(c.MaxShaderResourceSlots, maxShaderResourceSlots)
	c.MaxUnorderedAccessSlots = clampSlots(c.MaxUnorderedAccessSlots, maxUnorderedAccessSlots)
	c.MaxSamplerSlots = clampSlots(c.MaxSamplerSlots, maxSamplerSlots)
	c.MaxUniformBufferSlots = clampSlots(c.MaxUniformBufferSlots, maxUniformBufferSlots)
	c.MaxVertexBufferSlots = clampSlots(c.MaxVertexBufferSlots, maxVertexBufferSlots)
	c.MaxViewports = clampSlots(c.MaxViewports, maxViewports)
	if c.Tier == TierReduced {
		c.PartialUniformRanges = false
		c.MaxViewports = 1
	}
}

func clampSlots(n, max int) int {
	if n <= 0 || n > max {
		return max
	}
	return n
}

// Workarounds is the host-supplied policy for behavior quirks. The sync
// layer never probes the device; the host decides which workarounds apply
// and passes them at construction.
type Workarounds struct {
	// FlipRenderTargetY mirrors viewport and scissor rectangles vertically
	// and inverts the front-face winding. Used when rendering directly to
	// a surface whose Y axis points down.
	FlipRenderTargetY bool

	// EmulatePointSprites expands point primitives into instanced quads.
	// Vertex buffer slot 0 is reserved for the quad geometry while active.
	EmulatePointSprites bool

	// FirstAttribMustStepPerVertex swaps a per-vertex attribute into input
	// slot 0 when the first attribute steps per instance. Implied by
	// TierReduced hardware.
	FirstAttribMustStepPerVertex bool

	// ClampViewportToTarget shrinks the viewport to the render target
	// bounds. Implied by TierReduced hardware.
	ClampViewportToTarget bool
}

// tierWorkarounds fills in the workarounds a tier implies.
func tierWorkarounds(tier FeatureTier, wk Workarounds) Workarounds {
	if tier == TierReduced {
		wk.FirstAttribMustStepPerVertex = true
		wk.ClampViewportToTarget = true
	}
	return wk
}
