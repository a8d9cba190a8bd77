package statesync

import "math/bits"

// dirtyBit identifies one coarse state group. The declaration order is the
// drain order: every handler may depend on the groups before it and none
// after, so a single in-order pass settles everything.
type dirtyBit uint

const (
	dirtyRenderTarget dirtyBit = iota
	dirtyViewport
	dirtyScissor
	dirtyRasterizer
	dirtyBlend
	dirtyDepthStencil
	dirtyTextures
	dirtyProgramUniforms
	dirtyDriverUniforms
	dirtyUniformBuffers
	dirtyShaders
	dirtyCurrentValues
	dirtyTransformFeedback
	dirtyVertexBuffers
	dirtyTopology

	dirtyBitCount
)

// dirtySet is a bit set over dirtyBit.
type dirtySet uint32

const allDirty = dirtySet(1<<dirtyBitCount) - 1

// computeDirty is the subset of groups a dispatch depends on.
const computeDirty = dirtySet(1<<dirtyTextures) |
	dirtySet(1<<dirtyProgramUniforms) |
	dirtySet(1<<dirtyDriverUniforms) |
	dirtySet(1<<dirtyUniformBuffers) |
	dirtySet(1<<dirtyShaders)

func (s *dirtySet) set(b dirtyBit)     { *s |= 1 << b }
func (s *dirtySet) clear(b dirtyBit)   { *s &^= 1 << b }
func (s dirtySet) has(b dirtyBit) bool { return s&(1<<b) != 0 }
func (s dirtySet) any() bool           { return s != 0 }
func (s dirtySet) count() int          { return bits.OnesCount32(uint32(s)) }

func (b dirtyBit) String() string {
	switch b {
	case dirtyRenderTarget:
		return "render-target"
	case dirtyViewport:
		return "viewport"
	case dirtyScissor:
		return "scissor"
	case dirtyRasterizer:
		return "rasterizer"
	case dirtyBlend:
		return "blend"
	case dirtyDepthStencil:
		return "depth-stencil"
	case dirtyTextures:
		return "textures"
	case dirtyProgramUniforms:
		return "program-uniforms"
	case dirtyDriverUniforms:
		return "driver-uniforms"
	case dirtyUniformBuffers:
		return "uniform-buffers"
	case dirtyShaders:
		return "shaders"
	case dirtyCurrentValues:
		return "current-values"
	case dirtyTransformFeedback:
		return "transform-feedback"
	case dirtyVertexBuffers:
		return "vertex-buffers"
	case dirtyTopology:
		return "topology"
	}
	return "unknown"
}
