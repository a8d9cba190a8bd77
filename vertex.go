package statesync

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
)

// AttributeBinding describes one vertex attribute of a vertex array.
type AttributeBinding struct {
	// Enabled selects buffer-fed data. Disabled attributes read the
	// manager's current value for their shader location instead.
	Enabled bool

	// Buffer is the source vertex buffer (enabled attributes only).
	Buffer Buffer

	// Format is the attribute data format.
	Format gputypes.VertexFormat

	// Stride is the byte stride between consecutive elements.
	Stride uint32

	// Offset is the byte offset of the first element in the buffer.
	Offset uint32

	// StepMode is the input rate.
	StepMode gputypes.VertexStepMode

	// Divisor is the instance divisor for per-instance attributes.
	Divisor uint32

	// ShaderLocation is the attribute location in the vertex shader.
	ShaderLocation uint32
}

// VertexArrayInfo describes the bound vertex array.
type VertexArrayInfo struct {
	// Serial is the vertex array identity.
	Serial uint64

	// Attributes lists the attribute bindings in input order.
	Attributes []AttributeBinding

	// IndexBuffer, IndexFormat and IndexOffset configure indexed draws.
	IndexBuffer Buffer
	IndexFormat gputypes.IndexFormat
	IndexOffset uint32
}

// Point sprite quad geometry: 6 vertices of 3 position + 2 texcoord
// floats, drawn as two triangles per point instance.
const (
	pointSpriteVertexStride = 20
	pointSpriteVertexCount  = 6

	// Shader locations reserved for the expanded quad corner data.
	pointSpriteCornerLocation   = maxVertexAttribs - 2
	pointSpriteTexCoordLocation = maxVertexAttribs - 1
)

// pointSpriteGeometry lazily holds the shared quad used to expand point
// primitives.
type pointSpriteGeometry struct {
	vertices Buffer
	indices  Buffer
}

// ensure creates the quad buffers on first use.
func (g *pointSpriteGeometry) ensure(device Device) error {
	if g.vertices != nil {
		return nil
	}

	corners := [pointSpriteVertexCount][5]float32{
		{-1, -1, 0, 0, 1},
		{-1, 1, 0, 0, 0},
		{1, -1, 0, 1, 1},
		{1, -1, 0, 1, 1},
		{-1, 1, 0, 0, 0},
		{1, 1, 0, 1, 0},
	}
	vdata := make([]byte, 0, pointSpriteVertexCount*pointSpriteVertexStride)
	for _, v := range corners {
		for _, f := range v {
			vdata = binary.LittleEndian.AppendUint32(vdata, math.Float32bits(f))
		}
	}

	idata := make([]byte, 0, pointSpriteVertexCount*2)
	for i := uint16(0); i < pointSpriteVertexCount; i++ {
		idata = binary.LittleEndian.AppendUint16(idata, i)
	}

	vb, err := device.CreateBuffer("point sprite vertices", uint64(len(vdata)), vdata)
	if err != nil {
		return fmt.Errorf("point sprite vertex buffer: %w", err)
	}
	ib, err := device.CreateBuffer("point sprite indices", uint64(len(idata)), idata)
	if err != nil {
		return fmt.Errorf("point sprite index buffer: %w", err)
	}
	g.vertices = vb
	g.indices = ib
	return nil
}

// orderAttributes returns the enabled-order attribute list, swapping a
// per-vertex attribute into position 0 when the device requires the first
// input slot to step per vertex.
func orderAttributes(attrs []AttributeBinding, firstMustStepPerVertex bool) []AttributeBinding {
	if !firstMustStepPerVertex || len(attrs) == 0 {
		return attrs
	}
	if attrs[0].StepMode != gputypes.VertexStepModeInstance {
		return attrs
	}
	for i := 1; i < len(attrs); i++ {
		if attrs[i].StepMode != gputypes.VertexStepModeInstance {
			out := make([]AttributeBinding, len(attrs))
			copy(out, attrs)
			out[0], out[i] = out[i], out[0]
			return out
		}
	}
	return attrs
}

// syncCurrentValues uploads the constant-value buffers of disabled
// attributes. The buffers are bound by the vertex buffer handler with a
// zero stride, so a value change alone needs no rebind, only the upload
// here.
func (m *Manager) syncCurrentValues(_ *DrawCall, _ *dirtySet) error {
	if m.vertexArray == nil {
		return nil
	}
	for i := range m.vertexArray.Attributes {
		a := &m.vertexArray.Attributes[i]
		if a.Enabled || a.ShaderLocation >= maxVertexAttribs {
			continue
		}
		loc := a.ShaderLocation
		if !m.currentDirty[loc] {
			continue
		}
		m.currentDirty[loc] = false

		data := make([]byte, 0, 16)
		for _, f := range m.currentValues[loc] {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
		}

		if m.currentBuffers[loc] == nil {
			buf, err := m.device.CreateBuffer("current value attrib", 16, data)
			if err != nil {
				return fmt.Errorf("current value buffer: %w", err)
			}
			m.currentBuffers[loc] = buf
			continue
		}
		if err := m.device.UpdateBuffer(m.currentBuffers[loc], data); err != nil {
			return fmt.Errorf("current value upload: %w", err)
		}
	}
	return nil
}

// syncVertexBuffers rebuilds the vertex buffer bindings, the input layout
// and the index buffer. Slot changes are queued against the applied mirror
// and flushed as one minimal contiguous range.
func (m *Manager) syncVertexBuffers(call *DrawCall, _ *dirtySet) error {
	// Queued change range; lo > hi means nothing queued.
	lo, hi := maxVertexBufferSlots, -1
	queue := func(slot int, buf Buffer, stride, offset uint32) {
		var serial uint64
		if buf != nil {
			serial = buf.BufferSerial()
		}
		a := &m.appliedVertex[slot]
		if a.bound && a.serial == serial && a.stride == stride && a.offset == offset {
			return
		}
		*a = vertexBinding{buf: buf, serial: serial, stride: stride, offset: offset, bound: true}
		if slot < lo {
			lo = slot
		}
		if slot > hi {
			hi = slot
		}
	}

	base := 0
	elems := make([]InputElement, 0, len(m.vertexArray.Attributes)+2)

	if m.wk.EmulatePointSprites {
		base = 1
		if m.pointSpriteActive {
			if err := m.pointSprite.ensure(m.device); err != nil {
				return err
			}
			queue(0, m.pointSprite.vertices, pointSpriteVertexStride, 0)
			elems = append(elems,
				InputElement{
					ShaderLocation: pointSpriteCornerLocation,
					Format:         gputypes.VertexFormatFloat32x3,
					BufferSlot:     0,
					Offset:         0,
					StepMode:       gputypes.VertexStepModeVertex,
				},
				InputElement{
					ShaderLocation: pointSpriteTexCoordLocation,
					Format:         gputypes.VertexFormatFloat32x2,
					BufferSlot:     0,
					Offset:         12,
					StepMode:       gputypes.VertexStepModeVertex,
				},
			)
		} else if m.pointSprite.vertices != nil {
			// Reserved slot goes quiet outside point mode.
			queue(0, m.pointSprite.vertices, 0, 0)
		}
	}

	ordered := orderAttributes(m.vertexArray.Attributes, m.wk.FirstAttribMustStepPerVertex)
	for i := range ordered {
		a := &ordered[i]
		slot := base + i
		if slot >= m.caps.MaxVertexBufferSlots {
			return fmt.Errorf("%w: vertex buffer slot %d", ErrSlotOutOfRange, slot)
		}

		stepMode := a.StepMode
		divisor := a.Divisor
		if m.pointSpriteActive {
			// Point data advances per expanded quad, not per vertex.
			stepMode = gputypes.VertexStepModeInstance
			if divisor == 0 {
				divisor = 1
			}
		}

		if a.Enabled {
			queue(slot, a.Buffer, a.Stride, a.Offset)
			elems = append(elems, InputElement{
				ShaderLocation: a.ShaderLocation,
				Format:         a.Format,
				BufferSlot:     uint32(slot),
				Offset:         0,
				StepMode:       stepMode,
				InstanceStep:   divisor,
			})
			continue
		}

		// Disabled attribute: constant value buffer, stride zero.
		if a.ShaderLocation >= maxVertexAttribs {
			return fmt.Errorf("%w: attribute location %d", ErrSlotOutOfRange, a.ShaderLocation)
		}
		buf := m.currentBuffers[a.ShaderLocation]
		if buf == nil {
			data := make([]byte, 0, 16)
			for _, f := range m.currentValues[a.ShaderLocation] {
				data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
			}
			created, err := m.device.CreateBuffer("current value attrib", 16, data)
			if err != nil {
				return fmt.Errorf("current value buffer: %w", err)
			}
			m.currentBuffers[a.ShaderLocation] = created
			buf = created
		}
		queue(slot, buf, 0, 0)
		elems = append(elems, InputElement{
			ShaderLocation: a.ShaderLocation,
			Format:         gputypes.VertexFormatFloat32x4,
			BufferSlot:     uint32(slot),
			Offset:         0,
			StepMode:       gputypes.VertexStepModeVertex,
		})
	}

	if hi >= lo {
		n := hi - lo + 1
		bufs := make([]Buffer, n)
		strides := make([]uint32, n)
		offsets := make([]uint32, n)
		for i := 0; i < n; i++ {
			a := &m.appliedVertex[lo+i]
			bufs[i] = a.buf
			strides[i] = a.stride
			offsets[i] = a.offset
		}
		m.device.SetVertexBuffers(lo, bufs, strides, offsets)
	}

	layout, key, err := m.cache.GetOrCreateInputLayout(m.device, elems)
	if err != nil {
		return err
	}
	if !m.appliedLayoutValid || key != m.appliedLayoutKey {
		m.device.SetInputLayout(layout)
		m.appliedLayoutKey = key
		m.appliedLayoutValid = true
	}

	if m.pointSpriteActive {
		// The expanded quads always draw indexed from the shared sprite
		// indices, replacing any application index buffer.
		m.bindIndexBuffer(m.pointSprite.indices, gputypes.IndexFormatUint16, 0)
	} else if call != nil && call.Indexed {
		if err := m.applyIndexBuffer(); err != nil {
			return err
		}
	}
	return nil
}

// indexBufferStale reports whether an indexed draw needs the index buffer
// re-synced.
func (m *Manager) indexBufferStale() bool {
	va := m.vertexArray
	if va == nil || va.IndexBuffer == nil {
		return true
	}
	return !m.appliedIndexValid ||
		va.IndexBuffer.BufferSerial() != m.appliedIndexSerial ||
		va.IndexFormat != m.appliedIndexFmt ||
		va.IndexOffset != m.appliedIndexOff
}

// applyIndexBuffer binds the vertex array's index buffer when its
// buffer/format/offset triple changed.
func (m *Manager) applyIndexBuffer() error {
	va := m.vertexArray
	if va.IndexBuffer == nil {
		return fmt.Errorf("statesync: indexed draw without index buffer")
	}
	m.bindIndexBuffer(va.IndexBuffer, va.IndexFormat, va.IndexOffset)
	return nil
}

func (m *Manager) bindIndexBuffer(buf Buffer, format gputypes.IndexFormat, offset uint32) {
	serial := buf.BufferSerial()
	if m.appliedIndexValid && serial == m.appliedIndexSerial &&
		format == m.appliedIndexFmt && offset == m.appliedIndexOff {
		return
	}
	m.device.SetIndexBuffer(buf, format, offset)
	m.appliedIndexSerial = serial
	m.appliedIndexFmt = format
	m.appliedIndexOff = offset
	m.appliedIndexValid = true
}
