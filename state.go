package statesync

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// BlendStateDesc is the logical blend configuration. All render targets
// share one configuration; per-target blending is out of scope.
type BlendStateDesc struct {
	// Enabled turns blending on.
	Enabled bool

	// SrcColor, DstColor and ColorOp configure the color channel blend.
	SrcColor gputypes.BlendFactor
	DstColor gputypes.BlendFactor
	ColorOp  gputypes.BlendOperation

	// SrcAlpha, DstAlpha and AlphaOp configure the alpha channel blend.
	SrcAlpha gputypes.BlendFactor
	DstAlpha gputypes.BlendFactor
	AlphaOp  gputypes.BlendOperation

	// WriteMask selects the channels written to the render target.
	WriteMask gputypes.ColorWriteMask

	// AlphaToCoverage enables alpha-to-coverage multisampling.
	AlphaToCoverage bool
}

// DefaultBlendStateDesc returns blending disabled with all channels
// written.
func DefaultBlendStateDesc() BlendStateDesc {
	return BlendStateDesc{
		SrcColor:  gputypes.BlendFactorOne,
		DstColor:  gputypes.BlendFactorZero,
		ColorOp:   gputypes.BlendOperationAdd,
		SrcAlpha:  gputypes.BlendFactorOne,
		DstAlpha:  gputypes.BlendFactorZero,
		AlphaOp:   gputypes.BlendOperationAdd,
		WriteMask: gputypes.ColorWriteMaskAll,
	}
}

// usesConstant reports whether the factor reads the blend constant.
func usesConstant(f gputypes.BlendFactor) bool {
	return f == gputypes.BlendFactorConstant || f == gputypes.BlendFactorOneMinusConstant
}

// resolveBlendColor converts the logical blend constant to the device
// blend color. When the constant participates only in the alpha channel
// blend, its alpha is broadcast across all four device channels; the
// device applies one RGBA constant to both channel blends and the alpha
// value is the one that must survive.
func resolveBlendColor(desc *BlendStateDesc, c gputypes.Color) [4]float32 {
	colorUses := usesConstant(desc.SrcColor) || usesConstant(desc.DstColor)
	alphaUses := usesConstant(desc.SrcAlpha) || usesConstant(desc.DstAlpha)
	if alphaUses && !colorUses {
		a := float32(c.A)
		return [4]float32{a, a, a, a}
	}
	return [4]float32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}
}

// DepthStencilDesc is the logical depth and stencil configuration. The
// translation to the device descriptor accounts for the attachment format:
// tests against missing aspects are disabled rather than undefined.
type DepthStencilDesc struct {
	// DepthTest enables the depth test.
	DepthTest bool

	// DepthWrite enables depth buffer writes. Ignored while the depth
	// test is off.
	DepthWrite bool

	// DepthFunc is the depth comparison.
	DepthFunc gputypes.CompareFunction

	// StencilTest enables the stencil test.
	StencilTest bool

	// StencilReadMask and StencilWriteMask apply to both faces.
	StencilReadMask  uint32
	StencilWriteMask uint32

	// Front and Back are the per-face stencil operations.
	Front hal.StencilFaceState
	Back  hal.StencilFaceState
}

// DefaultDepthStencilDesc returns both tests disabled with pass-through
// stencil faces.
func DefaultDepthStencilDesc() DepthStencilDesc {
	face := hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
	return DepthStencilDesc{
		DepthFunc:        gputypes.CompareFunctionLess,
		StencilReadMask:  0xFF,
		StencilWriteMask: 0xFF,
		Front:            face,
		Back:             face,
	}
}

// translateDepthStencil builds the device depth-stencil descriptor for the
// given attachment format. A test against an aspect the attachment lacks
// is disabled; the stencil write mask is forced to zero while the stencil
// test is off so disabled stencil can never write.
func translateDepthStencil(desc *DepthStencilDesc, format gputypes.TextureFormat) hal.DepthStencilState {
	hasDepth := formatHasDepth(format)
	hasStencil := formatHasStencil(format)

	out := hal.DepthStencilState{
		Format:            format,
		DepthWriteEnabled: false,
		DepthCompare:      gputypes.CompareFunctionAlways,
		StencilReadMask:   desc.StencilReadMask,
		StencilWriteMask:  0,
	}

	if desc.DepthTest && hasDepth {
		out.DepthCompare = desc.DepthFunc
		out.DepthWriteEnabled = desc.DepthWrite
	}

	passFace := hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
	out.StencilFront = passFace
	out.StencilBack = passFace

	if desc.StencilTest && hasStencil {
		out.StencilFront = desc.Front
		out.StencilBack = desc.Back
		out.StencilWriteMask = desc.StencilWriteMask
	}

	return out
}

// formatHasDepth reports whether the texture format carries a depth aspect.
func formatHasDepth(format gputypes.TextureFormat) bool {
	switch format {
	case gputypes.TextureFormatDepth16Unorm,
		gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth32Float,
		gputypes.TextureFormatDepth32FloatStencil8:
		return true
	}
	return false
}

// formatHasStencil reports whether the texture format carries a stencil
// aspect.
func formatHasStencil(format gputypes.TextureFormat) bool {
	switch format {
	case gputypes.TextureFormatStencil8,
		gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth32FloatStencil8:
		return true
	}
	return false
}

// RasterDesc is the logical rasterizer configuration.
type RasterDesc struct {
	// CullMode selects face culling.
	CullMode gputypes.CullMode

	// FrontFace selects the front-facing winding.
	FrontFace gputypes.FrontFace

	// ScissorTest enables scissor clipping.
	ScissorTest bool

	// DepthBias and SlopeScaledDepthBias configure polygon offset.
	DepthBias            int32
	SlopeScaledDepthBias float32

	// Multisample enables multisample rasterization.
	Multisample bool

	// RasterizerDiscard drops primitives before rasterization. The device
	// descriptor does not carry this; the shader synchronizer unbinds the
	// pixel shader instead.
	RasterizerDiscard bool
}

// DefaultRasterDesc returns back-face culling off with counter-clockwise
// front faces.
func DefaultRasterDesc() RasterDesc {
	return RasterDesc{
		CullMode:  gputypes.CullModeNone,
		FrontFace: gputypes.FrontFaceCCW,
	}
}

// RasterizerStateDesc is the device rasterizer descriptor derived from
// RasterDesc plus the active workarounds.
type RasterizerStateDesc struct {
	CullMode             gputypes.CullMode
	FrontFace            gputypes.FrontFace
	ScissorEnabled       bool
	DepthBias            int32
	SlopeScaledDepthBias float32
	Multisample          bool
}

// translateRasterizer derives the device rasterizer descriptor. With
// FlipRenderTargetY the winding is inverted to compensate for the mirrored
// viewport.
func translateRasterizer(desc *RasterDesc, wk *Workarounds) RasterizerStateDesc {
	out := RasterizerStateDesc{
		CullMode:             desc.CullMode,
		FrontFace:            desc.FrontFace,
		ScissorEnabled:       desc.ScissorTest,
		DepthBias:            desc.DepthBias,
		SlopeScaledDepthBias: desc.SlopeScaledDepthBias,
		Multisample:          desc.Multisample,
	}
	if wk.FlipRenderTargetY {
		if out.FrontFace == gputypes.FrontFaceCCW {
			out.FrontFace = gputypes.FrontFaceCW
		} else {
			out.FrontFace = gputypes.FrontFaceCCW
		}
	}
	return out
}

// SamplerDesc is the logical sampler configuration. The struct is
// comparable; the sampler synchronizer relies on == for change detection.
type SamplerDesc struct {
	MinFilter gputypes.FilterMode
	MagFilter gputypes.FilterMode
	MipFilter gputypes.FilterMode

	AddressU gputypes.AddressMode
	AddressV gputypes.AddressMode
	AddressW gputypes.AddressMode

	// CompareEnabled turns the sampler into a comparison sampler using
	// Compare.
	CompareEnabled bool
	Compare        gputypes.CompareFunction

	MaxAnisotropy uint16
	MinLOD        float32
	MaxLOD        float32
}

// DefaultSamplerDesc returns a linear clamping sampler.
func DefaultSamplerDesc() SamplerDesc {
	return SamplerDesc{
		MinFilter:     gputypes.FilterModeLinear,
		MagFilter:     gputypes.FilterModeLinear,
		MipFilter:     gputypes.FilterModeLinear,
		AddressU:      gputypes.AddressModeClampToEdge,
		AddressV:      gputypes.AddressModeClampToEdge,
		AddressW:      gputypes.AddressModeClampToEdge,
		Compare:       gputypes.CompareFunctionAlways,
		MaxAnisotropy: 1,
		MaxLOD:        1000,
	}
}

// adjustViewport applies the Y mirror and bounds clamping workarounds.
// rtWidth/rtHeight are the render target dimensions (zero when unknown).
func adjustViewport(vp Viewport, rtWidth, rtHeight uint32, wk *Workarounds, caps *Caps) Viewport {
	if wk.FlipRenderTargetY && rtHeight > 0 {
		vp.Y = float32(rtHeight) - vp.Y - vp.Height
	}
	if wk.ClampViewportToTarget && rtWidth > 0 && rtHeight > 0 {
		vp = clampViewport(vp, float32(rtWidth), float32(rtHeight))
	}
	maxDim := float32(caps.MaxViewportDimension)
	if maxDim > 0 {
		if vp.Width > maxDim {
			vp.Width = maxDim
		}
		if vp.Height > maxDim {
			vp.Height = maxDim
		}
	}
	return vp
}

// clampViewport shrinks the viewport rectangle to [0, w) x [0, h).
func clampViewport(vp Viewport, w, h float32) Viewport {
	x0 := max32(vp.X, 0)
	y0 := max32(vp.Y, 0)
	x1 := min32(vp.X+vp.Width, w)
	y1 := min32(vp.Y+vp.Height, h)
	vp.X = x0
	vp.Y = y0
	vp.Width = max32(x1-x0, 0)
	vp.Height = max32(y1-y0, 0)
	return vp
}

// adjustScissor mirrors the scissor rectangle when rendering upside down.
func adjustScissor(rect ScissorRect, rtHeight uint32, wk *Workarounds) ScissorRect {
	if wk.FlipRenderTargetY && rtHeight > 0 {
		rect.Y = int32(rtHeight) - rect.Y - rect.Height
	}
	return rect
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
