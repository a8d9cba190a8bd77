package statesync

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
)

// Driver constant block layout: a fixed header of four vec4s followed by
// one 16-byte metadata record per active sampler. Shaders index metadata
// by sampler unit.
const (
	driverHeaderSize    = 4 * 16
	samplerMetadataSize = 16
)

// stageConstants is the per-stage header.
type stageConstants struct {
	// ViewAdjust maps pixel coordinates into clip space: xy offset, zw
	// half-size reciprocals.
	ViewAdjust [4]float32

	// ViewCoords carries the viewport origin and size for gl_FragCoord
	// reconstruction.
	ViewCoords [4]float32

	// DepthRange is near, far, far-near diff, reserved.
	DepthRange [4]float32

	// ViewScale holds the Y flip factor in y (1 or -1).
	ViewScale [4]float32
}

// samplerMetadata is the per-sampler record.
type samplerMetadata struct {
	// BaseLevel is the first mip level sampled.
	BaseLevel int32

	// InternalFormatBits is the component width for integer formats
	// (0, 8, 10 or 16).
	InternalFormatBits int32

	// WrapModes packs the S, T and R wrap modes (S | T<<2 | R<<4).
	WrapModes int32

	// Padding keeps records 16 bytes.
	Padding int32
}

// Wrap mode bit codes inside samplerMetadata.WrapModes.
const (
	wrapBitsClamp  = 0x1
	wrapBitsRepeat = 0x2
	wrapBitsMirror = 0x3
)

func wrapBits(mode gputypes.AddressMode) int32 {
	switch mode {
	case gputypes.AddressModeRepeat:
		return wrapBitsRepeat
	case gputypes.AddressModeMirrorRepeat:
		return wrapBitsMirror
	default:
		return wrapBitsClamp
	}
}

// metadataFor builds the record for a texture binding. Format bits and
// wrap modes matter only for integer textures, where the shader emulates
// wrapping and range conversion.
func metadataFor(md TextureMetadata) samplerMetadata {
	out := samplerMetadata{BaseLevel: int32(md.BaseLevel)}
	if md.Integer {
		out.InternalFormatBits = md.ComponentBits
		out.WrapModes = wrapBits(md.WrapS) | wrapBits(md.WrapT)<<2 | wrapBits(md.WrapR)<<4
	}
	return out
}

// driverConstants owns the per-stage driver constant state: header,
// metadata array, the active sampler high-water mark and the device
// buffers.
//
// Uploads are widening-only: the buffer is rewritten when the header or a
// metadata record changed, or when the draw uses more samplers than the
// buffer currently covers. Shrinking leaves stale tail records in place;
// shaders never read past their active range.
type driverConstants struct {
	stages    [stageCount]stageConstants
	metadata  [stageCount][]samplerMetadata
	numActive [stageCount]int
	dirty     [stageCount]bool
	buffers   [stageCount]Buffer
}

func (d *driverConstants) init() {
	for s := range d.metadata {
		d.metadata[s] = make([]samplerMetadata, maxShaderResourceSlots)
		d.dirty[s] = true
	}
}

// invalidate forces full re-upload on the next apply.
func (d *driverConstants) invalidate() {
	for s := range d.dirty {
		d.dirty[s] = true
		d.numActive[s] = 0
	}
}

// anyDirty reports whether any of the stages needs an upload.
func (d *driverConstants) anyDirty(stages ...Stage) bool {
	for _, s := range stages {
		if d.dirty[s] {
			return true
		}
	}
	return false
}

// setSamplerMetadata records the metadata of one sampler unit. A change
// resets the stage's active count so the next apply rewrites the metadata
// tail.
func (d *driverConstants) setSamplerMetadata(stage Stage, unit int, md TextureMetadata) {
	if unit < 0 || unit >= len(d.metadata[stage]) {
		return
	}
	rec := metadataFor(md)
	if d.metadata[stage][unit] == rec {
		return
	}
	d.metadata[stage][unit] = rec
	d.dirty[stage] = true
	d.numActive[stage] = 0
}

// setHeader replaces the stage header.
func (d *driverConstants) setHeader(stage Stage, sc stageConstants) {
	if d.stages[stage] == sc {
		return
	}
	d.stages[stage] = sc
	d.dirty[stage] = true
}

// encode serializes the header and the first used metadata records.
func (d *driverConstants) encode(stage Stage, used int) []byte {
	out := make([]byte, 0, driverHeaderSize+used*samplerMetadataSize)

	sc := &d.stages[stage]
	for _, vec := range [][4]float32{sc.ViewAdjust, sc.ViewCoords, sc.DepthRange, sc.ViewScale} {
		for _, f := range vec {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	for i := 0; i < used; i++ {
		rec := &d.metadata[stage][i]
		out = binary.LittleEndian.AppendUint32(out, uint32(rec.BaseLevel))
		out = binary.LittleEndian.AppendUint32(out, uint32(rec.InternalFormatBits))
		out = binary.LittleEndian.AppendUint32(out, uint32(rec.WrapModes))
		out = binary.LittleEndian.AppendUint32(out, uint32(rec.Padding))
	}
	return out
}

// apply uploads the stage block when dirty or when the used sampler count
// widened past the covered range, then binds the buffer at the reserved
// slot if it was just created.
func (d *driverConstants) apply(m *Manager, stage Stage, used int) error {
	if used > len(d.metadata[stage]) {
		used = len(d.metadata[stage])
	}
	if !d.dirty[stage] && used <= d.numActive[stage] {
		return nil
	}

	data := d.encode(stage, used)

	created := false
	buf := d.buffers[stage]
	if buf == nil || buf.Len() < uint64(len(data)) {
		var err error
		buf, err = m.device.CreateBuffer("driver constants", uint64(len(data)), nil)
		if err != nil {
			return fmt.Errorf("driver constant buffer: %w", err)
		}
		d.buffers[stage] = buf
		created = true
	}
	if err := m.device.UpdateBuffer(buf, data); err != nil {
		return fmt.Errorf("driver constant upload: %w", err)
	}
	if created {
		m.device.SetConstantBuffer(stage, slotDriverConstants, buf)
	}

	d.dirty[stage] = false
	d.numActive[stage] = used
	return nil
}

// computeStageConstants derives the header from the primary viewport, the
// framebuffer size and the Y-flip workaround.
func (m *Manager) computeStageConstants() stageConstants {
	var vp Viewport
	if len(m.viewports) > 0 {
		vp = m.viewports[0]
	}
	var sc stageConstants

	halfW := vp.Width * 0.5
	halfH := vp.Height * 0.5
	sc.ViewAdjust = [4]float32{
		vp.X + halfW,
		vp.Y + halfH,
		safeInv(halfW),
		safeInv(halfH),
	}
	sc.ViewCoords = [4]float32{vp.X, vp.Y, vp.Width, vp.Height}
	sc.DepthRange = [4]float32{vp.MinDepth, vp.MaxDepth, vp.MaxDepth - vp.MinDepth, 0}
	sc.ViewScale = [4]float32{1, 1, 1, 1}
	if m.wk.FlipRenderTargetY {
		sc.ViewScale[1] = -1
	}
	return sc
}

func safeInv(f float32) float32 {
	if f == 0 {
		return 0
	}
	return 1 / f
}

// activeSamplers returns the program's used sampler count for a stage.
func (m *Manager) activeSamplers(stage Stage) int {
	if m.program == nil {
		return 0
	}
	return m.program.ActiveSamplers[stage]
}

func (m *Manager) syncDrawDriverUniforms(_ *DrawCall, _ *dirtySet) error {
	sc := m.computeStageConstants()
	m.driver.setHeader(StageVertex, sc)
	m.driver.setHeader(StageFragment, sc)

	if err := m.driver.apply(m, StageVertex, m.activeSamplers(StageVertex)); err != nil {
		return err
	}
	return m.driver.apply(m, StageFragment, m.activeSamplers(StageFragment))
}

func (m *Manager) syncComputeDriverUniforms(_ *DrawCall, _ *dirtySet) error {
	return m.driver.apply(m, StageCompute, m.activeSamplers(StageCompute))
}
