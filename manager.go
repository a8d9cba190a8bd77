package statesync

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
)

// ProgramInfo describes the bound program. The sync layer reads it; the
// host owns the shader objects.
type ProgramInfo struct {
	// Serial is the program identity. A relink changes the serial.
	Serial uint64

	// Shader objects per stage. Nil stages are unbound.
	VertexShader   ShaderObject
	GeometryShader ShaderObject
	PixelShader    ShaderObject
	ComputeShader  ShaderObject

	// UsesPointSize reports whether the vertex stage writes a point size.
	// Point draws from programs that do not are skipped.
	UsesPointSize bool

	// ActiveSamplers is the used sampler count per stage. Texture and
	// sampler sync covers [0, ActiveSamplers[stage]).
	ActiveSamplers [stageCount]int
}

// TextureMetadata is the per-binding texture information the driver
// constant block carries to shaders.
type TextureMetadata struct {
	// BaseLevel is the first mip level sampling reads from.
	BaseLevel uint32

	// Integer marks integer-format textures. Only integer textures get
	// format bits and wrap modes in the constant block; filtering hardware
	// handles the rest for float formats.
	Integer bool

	// ComponentBits is the per-component bit width for integer formats
	// (8, 10, 16; 0 means full 32-bit).
	ComponentBits int32

	// WrapS, WrapT, WrapR are the sampler wrap modes, needed in the shader
	// when integer fetches emulate wrapping.
	WrapS, WrapT, WrapR gputypes.AddressMode
}

// DrawCall describes an upcoming draw for SetupDraw.
type DrawCall struct {
	// Mode is the primitive topology.
	Mode gputypes.PrimitiveTopology

	// First and Count select the vertex or index range.
	First uint32
	Count uint32

	// Indexed selects indexed drawing using the vertex array's index
	// buffer.
	Indexed bool

	// InstanceCount is the instance count; zero means non-instanced.
	InstanceCount uint32

	// BaseVertex offsets vertex fetches for indexed draws.
	BaseVertex int32
}

// Options configures a Manager.
type Options struct {
	// Caps is the device capability envelope. Nil means DefaultCaps.
	Caps *Caps

	// Workarounds is the behavior quirk policy. Tier-implied workarounds
	// are added automatically.
	Workarounds Workarounds

	// Handle optionally carries the host's shared gogpu device provider.
	// The sync layer does not use it itself; it is exposed through
	// Manager.Handle for collaborators that need the shared device.
	Handle DeviceHandle
}

// textureBinding is one texture unit of the logical state.
type textureBinding struct {
	view    View
	md      TextureMetadata
	hasView bool
}

// uniformBinding is one application uniform buffer slot.
type uniformBinding struct {
	buf    Buffer
	offset uint32
	size   uint32
	bound  bool
}

// appliedUniform mirrors the last uniform buffer bind per device slot.
type appliedUniform struct {
	serial uint64
	offset uint32
	size   uint32
	valid  bool
}

// StreamOutBinding is one transform feedback target.
type StreamOutBinding struct {
	Buffer Buffer
	Offset uint32
}

// vertexBinding mirrors one vertex buffer slot.
type vertexBinding struct {
	buf    Buffer
	serial uint64
	stride uint32
	offset uint32
	bound  bool
}

// Manager mirrors a logical pipeline state onto a Device with minimal
// redundant calls. All state lives on the Manager; nothing is global.
//
// Manager is not safe for concurrent use. One manager drives one device
// context.
type Manager struct {
	device Device
	handle DeviceHandle
	caps   Caps
	wk     Workarounds
	cache  *StateCache

	// Draw and dispatch drain from separate sets so a dispatch never
	// consumes a notification the next draw still depends on. Groups the
	// two paths share (textures, uniforms, shaders) are marked in both.
	dirty        dirtySet
	dirtyCompute dirtySet

	// Logical state.
	fbColors     []RenderTargetView
	fbDepth      RenderTargetView
	fbWidth      uint32
	fbHeight     uint32
	fbDefaultW   uint32
	fbDefaultH   uint32
	fbDepthFmt   gputypes.TextureFormat
	blend        BlendStateDesc
	blendColor   gputypes.Color
	sampleMask   uint32
	depthStencil DepthStencilDesc
	stencilRef   uint32
	raster       RasterDesc
	viewports    []Viewport
	scissor      ScissorRect
	program      *ProgramInfo
	vertexArray  *VertexArrayInfo

	textures       [stageCount][]textureBinding
	samplers       [stageCount][]samplerSlot
	images         []textureBinding
	uniforms       [stageCount][]uniformBinding
	uniformData    [stageCount][]byte
	uniformDataDir [stageCount]bool
	currentValues  [maxVertexAttribs][4]float32
	currentDirty   [maxVertexAttribs]bool
	streamOut      []StreamOutBinding

	// Applied mirrors.
	srvCaches [stageCount]*ViewCache[View]
	uavCache  *ViewCache[View]

	appliedBlendKey   uint64
	appliedBlendColor [4]float32
	appliedSampleMask uint32
	appliedBlendValid bool

	appliedDepthKey    uint64
	appliedStencilRef  uint32
	appliedDepthValid  bool

	appliedRasterKey   uint64
	appliedRasterValid bool

	appliedViewports      []Viewport
	appliedViewportsValid bool
	appliedScissor        ScissorRect
	appliedScissorValid   bool

	appliedVS ShaderObject
	appliedGS ShaderObject
	appliedPS ShaderObject
	appliedCS ShaderObject

	appliedVertex      [maxVertexBufferSlots]vertexBinding
	appliedLayoutKey   uint64
	appliedLayoutValid bool

	appliedIndexSerial uint64
	appliedIndexFmt    gputypes.IndexFormat
	appliedIndexOff    uint32
	appliedIndexValid  bool

	appliedUniforms [stageCount][maxUniformBufferSlots]appliedUniform

	appliedTopology      gputypes.PrimitiveTopology
	appliedTopologyValid bool

	appliedStreamOut []uint64

	uniformBuffers [stageCount]Buffer
	driver         driverConstants
	currentBuffers [maxVertexAttribs]Buffer

	pointSprite       pointSpriteGeometry
	pointSpriteActive bool

	lastMode      gputypes.PrimitiveTopology
	lastModeValid bool
}

// New creates a Manager driving the given device.
func New(device Device, opts *Options) (*Manager, error) {
	if device == nil {
		return nil, ErrNilDevice
	}

	caps := DefaultCaps()
	var wk Workarounds
	var handle DeviceHandle = NullDeviceHandle{}
	if opts != nil {
		if opts.Caps != nil {
			caps = *opts.Caps
		}
		wk = opts.Workarounds
		if opts.Handle != nil {
			handle = opts.Handle
		}
	}
	caps.clamp()
	wk = tierWorkarounds(caps.Tier, wk)

	m := &Manager{
		device:       device,
		handle:       handle,
		caps:         caps,
		wk:           wk,
		cache:        NewStateCache(),
		blend:        DefaultBlendStateDesc(),
		blendColor:   gputypes.Color{},
		sampleMask:   0xFFFFFFFF,
		depthStencil: DefaultDepthStencilDesc(),
		raster:       DefaultRasterDesc(),
		viewports:    []Viewport{{}},
		dirty:        allDirty,
		dirtyCompute: computeDirty,
	}

	for s := Stage(0); s < stageCount; s++ {
		m.textures[s] = make([]textureBinding, caps.MaxShaderResourceSlots)
		m.samplers[s] = make([]samplerSlot, caps.MaxSamplerSlots)
		m.uniforms[s] = make([]uniformBinding, caps.MaxUniformBufferSlots-ReservedUniformSlots)
		m.srvCaches[s] = NewViewCache[View](caps.MaxShaderResourceSlots)
	}
	m.images = make([]textureBinding, caps.MaxUnorderedAccessSlots)
	m.uavCache = NewViewCache[View](caps.MaxUnorderedAccessSlots)
	m.driver.init()
	m.seedSamplerForceFlags()

	return m, nil
}

// Caps returns the capability envelope the manager was built with.
func (m *Manager) Caps() Caps { return m.caps }

// Handle returns the host's shared device provider (NullDeviceHandle when
// none was given).
func (m *Manager) Handle() DeviceHandle { return m.handle }

// Cache returns the state object cache for stats inspection.
func (m *Manager) Cache() *StateCache { return m.cache }

func (m *Manager) mark(b dirtyBit) {
	m.dirty.set(b)
	m.dirtyCompute |= dirtySet(1<<b) & computeDirty
}

// =============================================================================
// State notifications
// =============================================================================

// SetFramebuffer binds the draw framebuffer. A nil depthStencil leaves the
// depth-stencil attachment unbound.
//
// Attachments compare by view identity, not by resource: two views over
// the same texture selecting different mips or layers are different
// framebuffers.
func (m *Manager) SetFramebuffer(colors []RenderTargetView, depthStencil RenderTargetView) {
	if len(colors) == len(m.fbColors) && depthStencil == m.fbDepth {
		same := true
		for i := range colors {
			if colors[i] != m.fbColors[i] {
				same = false
				break
			}
		}
		if same {
			return
		}
	}

	m.fbColors = append(m.fbColors[:0], colors...)
	m.fbDepth = depthStencil

	oldW, oldH := m.fbWidth, m.fbHeight
	m.fbWidth, m.fbHeight = framebufferSize(colors, depthStencil)
	if m.fbWidth == 0 && m.fbHeight == 0 {
		m.fbWidth, m.fbHeight = m.fbDefaultW, m.fbDefaultH
	}
	m.fbDepthFmt = gputypes.TextureFormatUndefined
	if depthStencil != nil {
		m.fbDepthFmt = depthStencil.Format()
	}

	m.mark(dirtyRenderTarget)
	m.mark(dirtyDepthStencil)
	// Attachment formats feed the blend translation (alpha presence).
	m.mark(dirtyBlend)
	if m.fbWidth != oldW || m.fbHeight != oldH {
		m.mark(dirtyViewport)
		m.mark(dirtyScissor)
		m.mark(dirtyDriverUniforms)
	}
}

// SetDefaultFramebufferSize sets the rasterization size used while no
// attachments are bound (attachment-less rendering). Zero disables
// attachment-less draws again.
func (m *Manager) SetDefaultFramebufferSize(w, h uint32) {
	if w == m.fbDefaultW && h == m.fbDefaultH {
		return
	}
	m.fbDefaultW, m.fbDefaultH = w, h

	if aw, ah := framebufferSize(m.fbColors, m.fbDepth); aw != 0 || ah != 0 {
		return
	}
	if m.fbWidth != w || m.fbHeight != h {
		m.fbWidth, m.fbHeight = w, h
		m.mark(dirtyViewport)
		m.mark(dirtyScissor)
		m.mark(dirtyDriverUniforms)
	}
}

// framebufferSize returns the size of the first non-nil attachment.
func framebufferSize(colors []RenderTargetView, depth RenderTargetView) (uint32, uint32) {
	for _, c := range colors {
		if c != nil {
			e := c.Extent()
			return e.Width, e.Height
		}
	}
	if depth != nil {
		e := depth.Extent()
		return e.Width, e.Height
	}
	return 0, 0
}

// SetBlend replaces the blend configuration.
func (m *Manager) SetBlend(desc BlendStateDesc) {
	if desc == m.blend {
		return
	}
	m.blend = desc
	m.mark(dirtyBlend)
}

// SetBlendColor sets the blend constant.
func (m *Manager) SetBlendColor(c gputypes.Color) {
	if c == m.blendColor {
		return
	}
	m.blendColor = c
	m.mark(dirtyBlend)
}

// SetSampleMask sets the multisample coverage mask.
func (m *Manager) SetSampleMask(mask uint32) {
	if mask == m.sampleMask {
		return
	}
	m.sampleMask = mask
	m.mark(dirtyBlend)
}

// SetDepthStencil replaces the depth-stencil configuration.
func (m *Manager) SetDepthStencil(desc DepthStencilDesc) {
	if desc == m.depthStencil {
		return
	}
	m.depthStencil = desc
	m.mark(dirtyDepthStencil)
}

// SetStencilRef sets the stencil reference value for both faces.
func (m *Manager) SetStencilRef(ref uint32) {
	if ref == m.stencilRef {
		return
	}
	m.stencilRef = ref
	m.mark(dirtyDepthStencil)
}

// SetRasterizer replaces the rasterizer configuration. Toggling
// RasterizerDiscard also invalidates the shader stage bindings since the
// pixel shader is dropped while discard is active.
func (m *Manager) SetRasterizer(desc RasterDesc) {
	if desc == m.raster {
		return
	}
	if desc.RasterizerDiscard != m.raster.RasterizerDiscard {
		m.mark(dirtyShaders)
	}
	m.raster = desc
	m.mark(dirtyRasterizer)
}

// SetViewport sets a single viewport rectangle and depth range.
func (m *Manager) SetViewport(vp Viewport) {
	if len(m.viewports) == 1 && m.viewports[0] == vp {
		return
	}
	m.viewports = append(m.viewports[:0], vp)
	m.mark(dirtyViewport)
	m.mark(dirtyDriverUniforms)
}

// SetViewports sets one viewport rectangle per view for multiview
// rendering. At least one viewport is required; the first one drives the
// driver constant header.
func (m *Manager) SetViewports(vps []Viewport) error {
	if len(vps) == 0 || len(vps) > m.caps.MaxViewports {
		return fmt.Errorf("%w: %d viewports", ErrSlotOutOfRange, len(vps))
	}
	if slices.Equal(vps, m.viewports) {
		return nil
	}
	m.viewports = append(m.viewports[:0], vps...)
	m.mark(dirtyViewport)
	m.mark(dirtyDriverUniforms)
	return nil
}

// SetScissor sets the scissor rectangle.
func (m *Manager) SetScissor(rect ScissorRect) {
	if rect == m.scissor {
		return
	}
	m.scissor = rect
	m.mark(dirtyScissor)
}

// SetProgram binds a program. A program change invalidates nearly every
// program-coupled group: bindings, uniforms, shaders and input assembly.
func (m *Manager) SetProgram(p *ProgramInfo) {
	if p == m.program {
		return
	}
	// Serials carry identity; a rebuilt info struct for the same program
	// does not cascade.
	if p != nil && m.program != nil && p.Serial == m.program.Serial {
		m.program = p
		return
	}
	m.program = p
	// Fragment outputs and storage writes couple the program to the bound
	// render targets.
	m.mark(dirtyRenderTarget)
	m.mark(dirtyTextures)
	m.mark(dirtyProgramUniforms)
	m.mark(dirtyDriverUniforms)
	m.mark(dirtyUniformBuffers)
	m.mark(dirtyShaders)
	m.mark(dirtyCurrentValues)
	m.mark(dirtyVertexBuffers)
	m.mark(dirtyTopology)
	for s := range m.uniformDataDir {
		m.uniformDataDir[s] = true
	}
}

// SetVertexArray binds a vertex array. The change invalidates every input
// assembly group: vertex buffers, the index buffer and all current-value
// attributes.
func (m *Manager) SetVertexArray(va *VertexArrayInfo) {
	if va == m.vertexArray {
		return
	}
	if va != nil && m.vertexArray != nil && va.Serial == m.vertexArray.Serial {
		m.vertexArray = va
		return
	}
	m.vertexArray = va
	m.mark(dirtyVertexBuffers)
	m.mark(dirtyCurrentValues)
	for i := range m.currentDirty {
		m.currentDirty[i] = true
	}
	m.appliedIndexValid = false
}

// SetTexture binds a texture view to a sampler unit of a stage. A nil view
// unbinds the unit.
func (m *Manager) SetTexture(stage Stage, unit int, view View, md TextureMetadata) error {
	if stage < 0 || stage >= stageCount || unit < 0 || unit >= m.caps.MaxShaderResourceSlots {
		return fmt.Errorf("%w: texture unit %d on %s stage", ErrSlotOutOfRange, unit, stage)
	}
	b := &m.textures[stage][unit]
	if b.hasView == (view != nil) && b.view == view && b.md == md {
		return nil
	}
	b.view = view
	b.md = md
	b.hasView = view != nil
	m.mark(dirtyTextures)
	return nil
}

// SetSampler configures the sampler of a texture unit.
func (m *Manager) SetSampler(stage Stage, unit int, desc SamplerDesc) error {
	if stage < 0 || stage >= stageCount || unit < 0 || unit >= m.caps.MaxSamplerSlots {
		return fmt.Errorf("%w: sampler unit %d on %s stage", ErrSlotOutOfRange, unit, stage)
	}
	s := &m.samplers[stage][unit]
	if !s.forceSet && s.desc == desc {
		return nil
	}
	s.desc = desc
	m.mark(dirtyTextures)
	return nil
}

// SetImage binds a storage view for compute. A nil view unbinds the unit.
func (m *Manager) SetImage(unit int, view View) error {
	if unit < 0 || unit >= m.caps.MaxUnorderedAccessSlots {
		return fmt.Errorf("%w: image unit %d", ErrSlotOutOfRange, unit)
	}
	b := &m.images[unit]
	if b.hasView == (view != nil) && b.view == view {
		return nil
	}
	b.view = view
	b.hasView = view != nil
	m.mark(dirtyTextures)
	return nil
}

// SetUniformBuffer binds an application uniform buffer range. Slot 0 here
// maps to device slot ReservedUniformSlots.
func (m *Manager) SetUniformBuffer(stage Stage, slot int, buf Buffer, offset, size uint32) error {
	if stage < 0 || stage >= stageCount || slot < 0 || slot >= len(m.uniforms[stage]) {
		return fmt.Errorf("%w: uniform buffer slot %d on %s stage", ErrSlotOutOfRange, slot, stage)
	}
	if offset != 0 && !m.caps.PartialUniformRanges {
		return ErrPartialRangeUnsupported
	}
	u := &m.uniforms[stage][slot]
	next := uniformBinding{buf: buf, offset: offset, size: size, bound: buf != nil}
	if *u == next {
		return nil
	}
	*u = next
	m.mark(dirtyUniformBuffers)
	return nil
}

// SetUniformData replaces the default uniform block contents for a stage.
func (m *Manager) SetUniformData(stage Stage, data []byte) {
	if stage < 0 || stage >= stageCount {
		return
	}
	m.uniformData[stage] = append(m.uniformData[stage][:0], data...)
	m.uniformDataDir[stage] = true
	m.mark(dirtyProgramUniforms)
}

// SetCurrentValue sets the constant value of a disabled vertex attribute.
func (m *Manager) SetCurrentValue(attrib int, value [4]float32) error {
	if attrib < 0 || attrib >= maxVertexAttribs {
		return fmt.Errorf("%w: attribute %d", ErrSlotOutOfRange, attrib)
	}
	if m.currentValues[attrib] == value {
		return nil
	}
	m.currentValues[attrib] = value
	m.currentDirty[attrib] = true
	m.mark(dirtyCurrentValues)
	return nil
}

// SetTransformFeedback replaces the stream-out targets. An empty slice
// deactivates transform feedback.
func (m *Manager) SetTransformFeedback(bindings []StreamOutBinding) {
	m.streamOut = append(m.streamOut[:0], bindings...)
	m.mark(dirtyTransformFeedback)
}

// =============================================================================
// Invalidation
// =============================================================================

// InvalidateRenderTarget forces the render targets to rebind on the next
// draw.
func (m *Manager) InvalidateRenderTarget() { m.mark(dirtyRenderTarget) }

// InvalidateViewport forces the viewport and its driver constants to
// re-apply.
func (m *Manager) InvalidateViewport() {
	m.mark(dirtyViewport)
	m.mark(dirtyDriverUniforms)
}

// InvalidateTextures forces texture and sampler bindings to re-sync.
func (m *Manager) InvalidateTextures() { m.mark(dirtyTextures) }

// InvalidateProgramUniforms forces the default uniform blocks to re-upload.
func (m *Manager) InvalidateProgramUniforms() {
	for s := range m.uniformDataDir {
		m.uniformDataDir[s] = true
	}
	m.mark(dirtyProgramUniforms)
}

// InvalidateDriverUniforms forces the driver constant blocks to re-upload.
func (m *Manager) InvalidateDriverUniforms() {
	m.driver.invalidate()
	m.mark(dirtyDriverUniforms)
}

// InvalidateEverything drops all applied-state knowledge. Call after an
// external party used the device context directly.
func (m *Manager) InvalidateEverything() {
	m.dirty = allDirty
	m.dirtyCompute = computeDirty

	for s := Stage(0); s < stageCount; s++ {
		m.srvCaches[s].Reset()
	}
	m.uavCache.Reset()
	m.seedSamplerForceFlags()

	m.appliedBlendValid = false
	m.appliedDepthValid = false
	m.appliedRasterValid = false
	m.appliedViewportsValid = false
	m.appliedScissorValid = false
	m.appliedLayoutValid = false
	m.appliedIndexValid = false
	m.appliedTopologyValid = false
	m.appliedVS, m.appliedGS, m.appliedPS, m.appliedCS = nil, nil, nil, nil
	m.appliedVertex = [maxVertexBufferSlots]vertexBinding{}
	m.appliedStreamOut = nil
	for s := range m.appliedUniforms {
		m.appliedUniforms[s] = [maxUniformBufferSlots]appliedUniform{}
	}
	for s := range m.uniformDataDir {
		m.uniformDataDir[s] = true
	}
	for i := range m.currentDirty {
		m.currentDirty[i] = true
	}
	m.driver.invalidate()
}

// SignalTextureRedefined unbinds any shader resource or storage slot whose
// view overlaps the given image of the resource. Call when a texture level
// is about to be rendered to or written by a storage operation. Pass a nil
// index to match every subresource.
func (m *Manager) SignalTextureRedefined(resource uint64, idx *ImageIndex) {
	for s := Stage(0); s < stageCount; s++ {
		m.unbindConflictingSRVs(s, resource, idx)
	}
	m.unbindConflictingUAVs(resource, idx)
}

// =============================================================================
// Drain
// =============================================================================

// syncHandler pairs a dirty bit with its apply function. Handlers may add
// later bits to pending; the table order matches the bit order so anything
// added is still drained in this pass.
type syncHandler struct {
	bit dirtyBit
	fn  func(m *Manager, call *DrawCall, pending *dirtySet) error
}

var drawHandlers = []syncHandler{
	{dirtyRenderTarget, (*Manager).syncRenderTarget},
	{dirtyViewport, (*Manager).syncViewport},
	{dirtyScissor, (*Manager).syncScissor},
	{dirtyRasterizer, (*Manager).syncRasterizer},
	{dirtyBlend, (*Manager).syncBlend},
	{dirtyDepthStencil, (*Manager).syncDepthStencil},
	{dirtyTextures, (*Manager).syncDrawTextures},
	{dirtyProgramUniforms, (*Manager).syncDrawProgramUniforms},
	{dirtyDriverUniforms, (*Manager).syncDrawDriverUniforms},
	{dirtyUniformBuffers, (*Manager).syncDrawUniformBuffers},
	{dirtyShaders, (*Manager).syncShaders},
	{dirtyCurrentValues, (*Manager).syncCurrentValues},
	{dirtyTransformFeedback, (*Manager).syncTransformFeedback},
	{dirtyVertexBuffers, (*Manager).syncVertexBuffers},
	{dirtyTopology, (*Manager).syncTopology},
}

var computeHandlers = []syncHandler{
	{dirtyTextures, (*Manager).syncComputeTextures},
	{dirtyProgramUniforms, (*Manager).syncComputeProgramUniforms},
	{dirtyDriverUniforms, (*Manager).syncComputeDriverUniforms},
	{dirtyUniformBuffers, (*Manager).syncComputeUniformBuffers},
	{dirtyShaders, (*Manager).syncComputeShader},
}

// SetupDraw brings the device state in line with the logical state for the
// given draw. It returns skip=true when the draw provably renders nothing
// and should not be issued. On success the caller issues the draw.
func (m *Manager) SetupDraw(call *DrawCall) (skip bool, err error) {
	if m.program == nil {
		return false, ErrNoProgram
	}
	if m.vertexArray == nil {
		return false, ErrNoVertexArray
	}

	// Degenerate draws render nothing; leave the device untouched.
	if m.fbWidth == 0 || m.fbHeight == 0 {
		Logger().Debug("draw skipped", "reason", "zero-area framebuffer")
		return true, nil
	}
	if call.Mode == gputypes.PrimitiveTopologyPointList &&
		!m.program.UsesPointSize && !m.wk.EmulatePointSprites {
		Logger().Debug("draw skipped", "reason", "points without point size")
		return true, nil
	}
	if m.raster.RasterizerDiscard && len(m.streamOut) == 0 {
		Logger().Debug("draw skipped", "reason", "rasterizer discard without stream out")
		return true, nil
	}

	active := m.wk.EmulatePointSprites && call.Mode == gputypes.PrimitiveTopologyPointList
	if active != m.pointSpriteActive {
		m.pointSpriteActive = active
		m.mark(dirtyVertexBuffers)
		m.mark(dirtyTopology)
		m.mark(dirtyShaders)
	}

	// The topology and index buffer follow the draw call, not the logical
	// state; a mode switch between otherwise clean draws still re-syncs.
	if !m.lastModeValid || call.Mode != m.lastMode {
		m.lastMode = call.Mode
		m.lastModeValid = true
		m.mark(dirtyTopology)
	}
	if call.Indexed && m.indexBufferStale() {
		m.mark(dirtyVertexBuffers)
	}

	if err := m.drain(&m.dirty, drawHandlers, allDirty, call); err != nil {
		return false, err
	}
	return false, nil
}

// SetupCompute brings the compute-relevant device state in line with the
// logical state for an upcoming dispatch. Only the compute-side dirty set
// is consumed; notifications the next draw depends on stay pending.
func (m *Manager) SetupCompute() error {
	if m.program == nil || m.program.ComputeShader == nil {
		return ErrNoProgram
	}
	return m.drain(&m.dirtyCompute, computeHandlers, computeDirty, nil)
}

// PointSpriteActive reports whether the last SetupDraw armed point sprite
// emulation. An active draw must be issued indexed and instanced: six
// indices from the already-bound sprite index buffer, one instance per
// point.
func (m *Manager) PointSpriteActive() bool { return m.pointSpriteActive }

// drain snapshots the dirty bits covered by mask, clears them from the
// persistent set and runs the handlers in table order. Handlers must not
// touch the persistent sets; doing so is reported as ErrDirtyDuringSync.
func (m *Manager) drain(set *dirtySet, handlers []syncHandler, mask dirtySet, call *DrawCall) error {
	pending := *set & mask
	if !pending.any() {
		return nil
	}
	*set &^= mask

	Logger().Debug("draining state", "bits", pending.count())

	for i := range handlers {
		h := &handlers[i]
		if !pending.has(h.bit) {
			continue
		}
		pending.clear(h.bit)
		if err := h.fn(m, call, &pending); err != nil {
			return fmt.Errorf("sync %s: %w", h.bit, err)
		}
	}

	if (*set & mask).any() {
		return ErrDirtyDuringSync
	}
	return nil
}

// =============================================================================
// Fixed-function handlers
// =============================================================================

func (m *Manager) syncRenderTarget(_ *DrawCall, _ *dirtySet) error {
	// A texture cannot feed a shader while it is the render target; drop
	// overlapping reads before binding.
	for _, c := range m.fbColors {
		if c != nil {
			m.unbindAttachmentReads(c)
		}
	}
	if m.fbDepth != nil {
		m.unbindAttachmentReads(m.fbDepth)
	}
	m.device.SetRenderTargets(m.fbColors, m.fbDepth)
	return nil
}

func (m *Manager) syncViewport(_ *DrawCall, _ *dirtySet) error {
	adjusted := make([]Viewport, len(m.viewports))
	for i, vp := range m.viewports {
		adjusted[i] = adjustViewport(vp, m.fbWidth, m.fbHeight, &m.wk, &m.caps)
	}
	if m.appliedViewportsValid && slices.Equal(adjusted, m.appliedViewports) {
		return nil
	}
	m.device.SetViewports(adjusted)
	m.appliedViewports = adjusted
	m.appliedViewportsValid = true
	return nil
}

func (m *Manager) syncScissor(_ *DrawCall, _ *dirtySet) error {
	rect := adjustScissor(m.scissor, m.fbHeight, &m.wk)
	if m.appliedScissorValid && rect == m.appliedScissor {
		return nil
	}
	m.device.SetScissor(rect)
	m.appliedScissor = rect
	m.appliedScissorValid = true
	return nil
}

func (m *Manager) syncRasterizer(_ *DrawCall, _ *dirtySet) error {
	desc := translateRasterizer(&m.raster, &m.wk)
	obj, key, err := m.cache.GetOrCreateRasterizerState(m.device, &desc)
	if err != nil {
		return err
	}
	if m.appliedRasterValid && key == m.appliedRasterKey {
		return nil
	}
	m.device.SetRasterizerState(obj)
	m.appliedRasterKey = key
	m.appliedRasterValid = true
	return nil
}

func (m *Manager) syncBlend(_ *DrawCall, _ *dirtySet) error {
	obj, key, err := m.cache.GetOrCreateBlendState(m.device, &m.blend)
	if err != nil {
		return err
	}
	color := resolveBlendColor(&m.blend, m.blendColor)
	if m.appliedBlendValid && key == m.appliedBlendKey &&
		color == m.appliedBlendColor && m.sampleMask == m.appliedSampleMask {
		return nil
	}
	m.device.SetBlendState(obj, color, m.sampleMask)
	m.appliedBlendKey = key
	m.appliedBlendColor = color
	m.appliedSampleMask = m.sampleMask
	m.appliedBlendValid = true
	return nil
}

func (m *Manager) syncDepthStencil(_ *DrawCall, _ *dirtySet) error {
	desc := translateDepthStencil(&m.depthStencil, m.fbDepthFmt)
	obj, key, err := m.cache.GetOrCreateDepthStencilState(m.device, &desc)
	if err != nil {
		return err
	}
	if m.appliedDepthValid && key == m.appliedDepthKey && m.stencilRef == m.appliedStencilRef {
		return nil
	}
	m.device.SetDepthStencilState(obj, m.stencilRef)
	m.appliedDepthKey = key
	m.appliedStencilRef = m.stencilRef
	m.appliedDepthValid = true
	return nil
}

func (m *Manager) syncShaders(_ *DrawCall, _ *dirtySet) error {
	vs := m.program.VertexShader
	ps := m.program.PixelShader
	var gs ShaderObject
	if m.pointSpriteActive {
		gs = m.program.GeometryShader
	}
	// Rasterizer discard has no direct device form; dropping the pixel
	// shader stops all color and depth output.
	if m.raster.RasterizerDiscard {
		ps = nil
	}

	if vs != m.appliedVS {
		m.device.SetVertexShader(vs)
		m.appliedVS = vs
	}
	if gs != m.appliedGS {
		m.device.SetGeometryShader(gs)
		m.appliedGS = gs
	}
	if ps != m.appliedPS {
		m.device.SetPixelShader(ps)
		m.appliedPS = ps
	}
	return nil
}

func (m *Manager) syncComputeShader(_ *DrawCall, _ *dirtySet) error {
	cs := m.program.ComputeShader
	if cs != m.appliedCS {
		m.device.SetComputeShader(cs)
		m.appliedCS = cs
	}
	return nil
}

func (m *Manager) syncTopology(call *DrawCall, _ *dirtySet) error {
	topology := call.Mode
	if m.pointSpriteActive {
		// Expanded point quads rasterize as triangles.
		topology = gputypes.PrimitiveTopologyTriangleList
	}
	if m.appliedTopologyValid && topology == m.appliedTopology {
		return nil
	}
	m.device.SetPrimitiveTopology(topology)
	m.appliedTopology = topology
	m.appliedTopologyValid = true
	return nil
}
