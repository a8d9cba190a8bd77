package statesync

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// =============================================================================
// Test Helpers
// =============================================================================

// fakeStateObject satisfies every opaque state object interface.
type fakeStateObject struct {
	kind     string
	released bool
}

func (o *fakeStateObject) Release() { o.released = true }

// fakeBuffer implements Buffer for testing.
type fakeBuffer struct {
	serial uint64
	size   uint64
	data   []byte
}

func (b *fakeBuffer) BufferSerial() uint64 { return b.serial }
func (b *fakeBuffer) Len() uint64          { return b.size }

// fakeView implements View for testing.
type fakeView struct {
	resource uint64
	desc     ViewDescription
}

func (v *fakeView) ViewResource() uint64             { return v.resource }
func (v *fakeView) ViewDescription() ViewDescription { return v.desc }

// mockView creates a 2D test view covering one mip of one layer.
func mockView(resource uint64, mip, layer uint32) *fakeView {
	return &fakeView{
		resource: resource,
		desc: ViewDescription{
			Dimension:       gputypes.TextureViewDimension2D,
			BaseMipLevel:    mip,
			MipLevelCount:   1,
			BaseArrayLayer:  layer,
			ArrayLayerCount: 1,
		},
	}
}

// fakeTarget implements RenderTargetView for testing.
type fakeTarget struct {
	fakeView
	format gputypes.TextureFormat
	w, h   uint32
}

func (t *fakeTarget) Format() gputypes.TextureFormat { return t.format }
func (t *fakeTarget) Extent() gputypes.Extent3D {
	return gputypes.Extent3D{Width: t.w, Height: t.h, DepthOrArrayLayers: 1}
}

// mockTarget creates a test color target.
func mockTarget(resource uint64, w, h uint32) *fakeTarget {
	return &fakeTarget{
		fakeView: *mockView(resource, 0, 0),
		format:   gputypes.TextureFormatRGBA8Unorm,
		w:        w,
		h:        h,
	}
}

// mockDepthTarget creates a test depth-stencil target.
func mockDepthTarget(resource uint64, w, h uint32, format gputypes.TextureFormat) *fakeTarget {
	t := mockTarget(resource, w, h)
	t.format = format
	return t
}

// recordingDevice implements Device and records every call it receives so
// tests can assert exactly which device traffic a drain produced.
type recordingDevice struct {
	calls      []string
	nextSerial uint64
	createErr  error
}

func newRecordingDevice() *recordingDevice { return &recordingDevice{} }

func (d *recordingDevice) record(format string, args ...any) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

// reset forgets recorded calls.
func (d *recordingDevice) reset() { d.calls = nil }

// count returns how many recorded calls start with prefix.
func (d *recordingDevice) count(prefix string) int {
	n := 0
	for _, c := range d.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// indexOf returns the position of the first call starting with prefix, or
// -1 when absent.
func (d *recordingDevice) indexOf(prefix string) int {
	for i, c := range d.calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func (d *recordingDevice) CreateBlendState(desc *BlendStateDesc) (BlendStateObject, error) {
	if d.createErr != nil {
		return nil, d.createErr
	}
	d.record("CreateBlendState")
	return &fakeStateObject{kind: "blend"}, nil
}

func (d *recordingDevice) CreateDepthStencilState(desc *hal.DepthStencilState) (DepthStencilStateObject, error) {
	if d.createErr != nil {
		return nil, d.createErr
	}
	d.record("CreateDepthStencilState")
	return &fakeStateObject{kind: "depth-stencil"}, nil
}

func (d *recordingDevice) CreateRasterizerState(desc *RasterizerStateDesc) (RasterizerStateObject, error) {
	if d.createErr != nil {
		return nil, d.createErr
	}
	d.record("CreateRasterizerState")
	return &fakeStateObject{kind: "rasterizer"}, nil
}

func (d *recordingDevice) CreateSamplerState(desc *SamplerDesc) (SamplerStateObject, error) {
	if d.createErr != nil {
		return nil, d.createErr
	}
	d.record("CreateSamplerState")
	return &fakeStateObject{kind: "sampler"}, nil
}

func (d *recordingDevice) CreateInputLayout(elems []InputElement) (InputLayoutObject, error) {
	if d.createErr != nil {
		return nil, d.createErr
	}
	d.record("CreateInputLayout(%d)", len(elems))
	return &fakeStateObject{kind: "layout"}, nil
}

func (d *recordingDevice) CreateBuffer(label string, size uint64, data []byte) (Buffer, error) {
	if d.createErr != nil {
		return nil, d.createErr
	}
	d.nextSerial++
	d.record("CreateBuffer(%s)", label)
	buf := &fakeBuffer{serial: d.nextSerial, size: size}
	if uint64(len(data)) > buf.size {
		buf.size = uint64(len(data))
	}
	buf.data = append([]byte(nil), data...)
	return buf, nil
}

func (d *recordingDevice) UpdateBuffer(buf Buffer, data []byte) error {
	d.record("UpdateBuffer(%d,%d)", buf.BufferSerial(), len(data))
	if fb, ok := buf.(*fakeBuffer); ok {
		fb.data = append([]byte(nil), data...)
	}
	return nil
}

func (d *recordingDevice) SetRenderTargets(colors []RenderTargetView, depthStencil RenderTargetView) {
	d.record("SetRenderTargets(%d,%v)", len(colors), depthStencil != nil)
}

func (d *recordingDevice) SetViewports(vps []Viewport) {
	d.record("SetViewports(%d)", len(vps))
}

func (d *recordingDevice) SetScissor(rect ScissorRect) {
	d.record("SetScissor(%d,%d,%d,%d)", rect.X, rect.Y, rect.Width, rect.Height)
}

func (d *recordingDevice) SetBlendState(state BlendStateObject, blendColor [4]float32, sampleMask uint32) {
	d.record("SetBlendState(%g,%g,%g,%g)", blendColor[0], blendColor[1], blendColor[2], blendColor[3])
}

func (d *recordingDevice) SetDepthStencilState(state DepthStencilStateObject, stencilRef uint32) {
	d.record("SetDepthStencilState(ref=%d)", stencilRef)
}

func (d *recordingDevice) SetRasterizerState(state RasterizerStateObject) {
	d.record("SetRasterizerState")
}

func (d *recordingDevice) SetShaderResources(stage Stage, start int, views []View) {
	d.record("SetShaderResources(%s,%d,%d)", stage, start, len(views))
}

func (d *recordingDevice) SetUnorderedAccessViews(start int, views []View) {
	d.record("SetUnorderedAccessViews(%d,%d)", start, len(views))
}

func (d *recordingDevice) SetSamplers(stage Stage, start int, states []SamplerStateObject) {
	d.record("SetSamplers(%s,%d,%d)", stage, start, len(states))
}

func (d *recordingDevice) SetConstantBuffer(stage Stage, slot int, buf Buffer) {
	d.record("SetConstantBuffer(%s,%d)", stage, slot)
}

func (d *recordingDevice) SetConstantBufferRange(stage Stage, slot int, buf Buffer, firstConstant, numConstants uint32) {
	d.record("SetConstantBufferRange(%s,%d,%d,%d)", stage, slot, firstConstant, numConstants)
}

func (d *recordingDevice) SetVertexBuffers(start int, buffers []Buffer, strides, offsets []uint32) {
	d.record("SetVertexBuffers(%d,%d)", start, len(buffers))
}

func (d *recordingDevice) SetIndexBuffer(buf Buffer, format gputypes.IndexFormat, offset uint32) {
	d.record("SetIndexBuffer(%d)", offset)
}

func (d *recordingDevice) SetInputLayout(layout InputLayoutObject) {
	d.record("SetInputLayout")
}

func (d *recordingDevice) SetPrimitiveTopology(topology gputypes.PrimitiveTopology) {
	d.record("SetPrimitiveTopology(%d)", topology)
}

func (d *recordingDevice) SetVertexShader(s ShaderObject)   { d.record("SetVertexShader(%v)", s != nil) }
func (d *recordingDevice) SetGeometryShader(s ShaderObject) { d.record("SetGeometryShader(%v)", s != nil) }
func (d *recordingDevice) SetPixelShader(s ShaderObject)    { d.record("SetPixelShader(%v)", s != nil) }
func (d *recordingDevice) SetComputeShader(s ShaderObject)  { d.record("SetComputeShader(%v)", s != nil) }

func (d *recordingDevice) SetStreamOutTargets(buffers []Buffer, offsets []uint32) {
	d.record("SetStreamOutTargets(%d)", len(buffers))
}

// Verify interface compliance at compile time.
var _ Device = (*recordingDevice)(nil)

// mockProgram creates a test program with one fragment sampler.
func mockProgram(serial uint64) *ProgramInfo {
	p := &ProgramInfo{
		Serial:        serial,
		VertexShader:  &fakeStateObject{kind: "vs"},
		PixelShader:   &fakeStateObject{kind: "ps"},
		ComputeShader: &fakeStateObject{kind: "cs"},
	}
	p.ActiveSamplers[StageFragment] = 1
	return p
}

// mockVertexArray creates a test vertex array with a single enabled
// position attribute.
func mockVertexArray(serial uint64, buf Buffer) *VertexArrayInfo {
	return &VertexArrayInfo{
		Serial: serial,
		Attributes: []AttributeBinding{
			{
				Enabled:        true,
				Buffer:         buf,
				Format:         gputypes.VertexFormatFloat32x4,
				Stride:         16,
				StepMode:       gputypes.VertexStepModeVertex,
				ShaderLocation: 0,
			},
		},
		IndexBuffer: &fakeBuffer{serial: 9000, size: 1 << 16},
		IndexFormat: gputypes.IndexFormatUint16,
	}
}

// newTestManager builds a manager with a full logical state bound: one
// 64x64 color target, a program and a vertex array.
func newTestManager(opts *Options) (*Manager, *recordingDevice, error) {
	dev := newRecordingDevice()
	m, err := New(dev, opts)
	if err != nil {
		return nil, nil, err
	}

	m.SetFramebuffer([]RenderTargetView{mockTarget(1, 64, 64)}, nil)
	m.SetViewport(Viewport{Width: 64, Height: 64, MaxDepth: 1})
	m.SetProgram(mockProgram(1))
	m.SetVertexArray(mockVertexArray(1, &fakeBuffer{serial: 100, size: 1 << 20}))
	return m, dev, nil
}

// triangles returns a plain triangle list draw.
func triangles(count uint32) *DrawCall {
	return &DrawCall{Mode: gputypes.PrimitiveTopologyTriangleList, Count: count}
}
