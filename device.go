package statesync

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Stage identifies a shader stage for binding calls. Stages are dense
// indices (unlike the gputypes bitmask) so they can address per-stage
// binding tables directly.
type Stage int

// Shader stages.
const (
	StageVertex Stage = iota
	StageFragment
	StageCompute

	stageCount
)

// ShaderStage converts the stage index to the gputypes bitmask form.
func (s Stage) ShaderStage() gputypes.ShaderStage {
	switch s {
	case StageVertex:
		return gputypes.ShaderStageVertex
	case StageFragment:
		return gputypes.ShaderStageFragment
	case StageCompute:
		return gputypes.ShaderStageCompute
	}
	return 0
}

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	}
	return "unknown"
}

// Viewport describes a viewport rectangle with a depth range.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// ScissorRect describes a scissor rectangle in framebuffer pixels.
type ScissorRect struct {
	X, Y          int32
	Width, Height int32
}

// ViewDescription captures the subresource range a view selects. The sync
// layer uses it to decide whether a view conflicts with a render target or
// storage binding over the same resource.
type ViewDescription struct {
	// Dimension is the view dimension (2D, 2D array, cube, 3D).
	Dimension gputypes.TextureViewDimension

	// BaseMipLevel is the first mip level the view selects.
	BaseMipLevel uint32

	// MipLevelCount is the number of selected mip levels.
	MipLevelCount uint32

	// BaseArrayLayer is the first array layer the view selects.
	BaseArrayLayer uint32

	// ArrayLayerCount is the number of selected array layers.
	ArrayLayerCount uint32
}

// ImageIndex identifies a single image within a texture resource: one mip
// level and optionally one array layer. A negative Layer means all layers.
type ImageIndex struct {
	MipLevel uint32
	Layer    int32
}

// AllLayers is the ImageIndex layer value selecting every array layer.
const AllLayers int32 = -1

// Intersects reports whether the view's subresource range overlaps the
// given image. 3D views always overlap on the layer axis since depth
// slices are not tracked per-view.
func (d ViewDescription) Intersects(idx ImageIndex) bool {
	if idx.MipLevel < d.BaseMipLevel || idx.MipLevel >= d.BaseMipLevel+d.MipLevelCount {
		return false
	}
	if idx.Layer == AllLayers || d.Dimension == gputypes.TextureViewDimension3D {
		return true
	}
	layer := uint32(idx.Layer)
	return layer >= d.BaseArrayLayer && layer < d.BaseArrayLayer+d.ArrayLayerCount
}

// View is a non-owning reference to a texture view. The sync layer never
// creates or destroys views; it tracks them by resource serial to skip
// redundant binds and to unbind conflicting slots.
type View interface {
	// ViewResource returns the serial of the underlying texture resource.
	// Two views over the same resource return the same serial.
	ViewResource() uint64

	// ViewDescription returns the subresource range the view selects.
	ViewDescription() ViewDescription
}

// RenderTargetView is a view usable as a framebuffer attachment.
type RenderTargetView interface {
	View

	// Format returns the attachment pixel format.
	Format() gputypes.TextureFormat

	// Extent returns the attachment size.
	Extent() gputypes.Extent3D
}

// Buffer is a non-owning reference to a device buffer.
type Buffer interface {
	// BufferSerial returns the buffer identity. Serials change when the
	// underlying storage is reallocated.
	BufferSerial() uint64

	// Len returns the buffer size in bytes.
	Len() uint64
}

// Opaque immutable state objects created by the device and cached by the
// sync layer. Release frees the device object; the caches call it from
// DestroyAll.
type (
	BlendStateObject        interface{ Release() }
	DepthStencilStateObject interface{ Release() }
	RasterizerStateObject   interface{ Release() }
	SamplerStateObject      interface{ Release() }
	InputLayoutObject       interface{ Release() }
)

// ShaderObject is a non-owning reference to a compiled shader owned by the
// host program.
type ShaderObject interface{ Release() }

// InputElement describes one vertex attribute in an input layout.
type InputElement struct {
	// ShaderLocation is the attribute location in the vertex shader.
	ShaderLocation uint32

	// Format is the attribute data format.
	Format gputypes.VertexFormat

	// BufferSlot is the vertex buffer slot the attribute reads from.
	BufferSlot uint32

	// Offset is the byte offset within the vertex.
	Offset uint32

	// StepMode is the input rate (per vertex or per instance).
	StepMode gputypes.VertexStepMode

	// InstanceStep is the instance divisor for per-instance attributes.
	InstanceStep uint32
}

// Device is the backend contract the sync layer drives. Implementations
// map these calls onto an immediate-mode API (D3D11-style contexts, GL, a
// software device, or a recording fake in tests).
//
// Set* calls are unconditional; the sync layer is responsible for calling
// them only when state actually changed. Create* calls return immutable
// objects that remain valid until Release.
type Device interface {
	CreateBlendState(desc *BlendStateDesc) (BlendStateObject, error)
	CreateDepthStencilState(desc *hal.DepthStencilState) (DepthStencilStateObject, error)
	CreateRasterizerState(desc *RasterizerStateDesc) (RasterizerStateObject, error)
	CreateSamplerState(desc *SamplerDesc) (SamplerStateObject, error)
	CreateInputLayout(elems []InputElement) (InputLayoutObject, error)

	// CreateBuffer creates an internal buffer (driver constants, default
	// uniforms, point sprite geometry). data may be nil for a zeroed buffer.
	CreateBuffer(label string, size uint64, data []byte) (Buffer, error)

	// UpdateBuffer replaces the buffer contents from offset zero.
	UpdateBuffer(buf Buffer, data []byte) error

	SetRenderTargets(colors []RenderTargetView, depthStencil RenderTargetView)

	// SetViewports replaces all viewport rectangles. Multiview rendering
	// binds one rectangle per view; single-view rendering passes one.
	SetViewports(vps []Viewport)

	SetScissor(rect ScissorRect)
	SetBlendState(state BlendStateObject, blendColor [4]float32, sampleMask uint32)
	SetDepthStencilState(state DepthStencilStateObject, stencilRef uint32)
	SetRasterizerState(state RasterizerStateObject)

	// SetShaderResources binds views to consecutive slots starting at
	// start. Nil entries unbind.
	SetShaderResources(stage Stage, start int, views []View)

	// SetUnorderedAccessViews binds storage views for the compute stage.
	// Nil entries unbind.
	SetUnorderedAccessViews(start int, views []View)

	SetSamplers(stage Stage, start int, states []SamplerStateObject)
	SetConstantBuffer(stage Stage, slot int, buf Buffer)
	SetConstantBufferRange(stage Stage, slot int, buf Buffer, firstConstant, numConstants uint32)
	SetVertexBuffers(start int, buffers []Buffer, strides, offsets []uint32)
	SetIndexBuffer(buf Buffer, format gputypes.IndexFormat, offset uint32)
	SetInputLayout(layout InputLayoutObject)
	SetPrimitiveTopology(topology gputypes.PrimitiveTopology)
	SetVertexShader(s ShaderObject)
	SetGeometryShader(s ShaderObject)
	SetPixelShader(s ShaderObject)
	SetComputeShader(s ShaderObject)
	SetStreamOutTargets(buffers []Buffer, offsets []uint32)
}

// DeviceHandle provides GPU device access from the host application.
//
// Hosts that already own a shared gogpu device implement
// gpucontext.DeviceProvider and can pass it alongside the Device so the
// sync layer participates in the same device-sharing ecosystem. statesync
// RECEIVES devices from the host, it does not create one.
//
// DeviceHandle is an alias for gpucontext.DeviceProvider, providing a
// statesync-specific name while maintaining full compatibility with the
// gpucontext ecosystem.
type DeviceHandle = gpucontext.DeviceProvider

// NullDeviceHandle is a DeviceHandle that provides no device. Useful for
// tests and for hosts that drive a standalone Device.
type NullDeviceHandle struct{}

// Device returns nil (no device available).
func (NullDeviceHandle) Device() gpucontext.Device { return nil }

// Queue returns nil (no queue available).
func (NullDeviceHandle) Queue() gpucontext.Queue { return nil }

// Adapter returns nil (no adapter available).
func (NullDeviceHandle) Adapter() gpucontext.Adapter { return nil }

// SurfaceFormat returns the undefined format (no surface available).
func (NullDeviceHandle) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

// AdapterInfo returns zero adapter metadata (no adapter available).
func (NullDeviceHandle) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{}
}

// Verify interface compliance at compile time.
var _ DeviceHandle = NullDeviceHandle{}
