package statesync

import "fmt"

// ensureUniformBuffer returns the per-stage default uniform block buffer,
// reallocating when the data outgrew it.
func (m *Manager) ensureUniformBuffer(stage Stage, size uint64) (Buffer, bool, error) {
	buf := m.uniformBuffers[stage]
	if buf != nil && buf.Len() >= size {
		return buf, false, nil
	}
	created, err := m.device.CreateBuffer("default uniforms", size, nil)
	if err != nil {
		return nil, false, fmt.Errorf("default uniform buffer: %w", err)
	}
	m.uniformBuffers[stage] = created
	return created, true, nil
}

// syncStageProgramUniforms uploads the default uniform block of one stage
// and binds it at the reserved slot when the buffer object changed.
func (m *Manager) syncStageProgramUniforms(stage Stage) error {
	if !m.uniformDataDir[stage] {
		return nil
	}
	m.uniformDataDir[stage] = false

	data := m.uniformData[stage]
	if len(data) == 0 {
		return nil
	}

	buf, created, err := m.ensureUniformBuffer(stage, uint64(len(data)))
	if err != nil {
		return err
	}
	if err := m.device.UpdateBuffer(buf, data); err != nil {
		return fmt.Errorf("default uniform upload: %w", err)
	}
	if created {
		m.device.SetConstantBuffer(stage, slotDefaultUniforms, buf)
	}
	return nil
}

func (m *Manager) syncDrawProgramUniforms(_ *DrawCall, _ *dirtySet) error {
	if err := m.syncStageProgramUniforms(StageVertex); err != nil {
		return err
	}
	return m.syncStageProgramUniforms(StageFragment)
}

func (m *Manager) syncComputeProgramUniforms(_ *DrawCall, _ *dirtySet) error {
	return m.syncStageProgramUniforms(StageCompute)
}

// syncStageUniformBuffers binds the application uniform buffer ranges of
// one stage. Each slot is compared as a (serial, offset, size) triple; a
// nonzero offset uses the ranged bind, available only with partial range
// support.
func (m *Manager) syncStageUniformBuffers(stage Stage) error {
	for slot := range m.uniforms[stage] {
		u := &m.uniforms[stage][slot]
		applied := &m.appliedUniforms[stage][slot]

		if !u.bound {
			if applied.valid && applied.serial != 0 {
				m.device.SetConstantBuffer(stage, ReservedUniformSlots+slot, nil)
				*applied = appliedUniform{valid: true}
			}
			continue
		}

		serial := u.buf.BufferSerial()
		if applied.valid && applied.serial == serial &&
			applied.offset == u.offset && applied.size == u.size {
			continue
		}

		if u.offset == 0 {
			m.device.SetConstantBuffer(stage, ReservedUniformSlots+slot, u.buf)
		} else {
			if !m.caps.PartialUniformRanges {
				return ErrPartialRangeUnsupported
			}
			// Ranges are addressed in 16-byte constants.
			m.device.SetConstantBufferRange(stage, ReservedUniformSlots+slot,
				u.buf, u.offset/16, (u.size+15)/16)
		}
		*applied = appliedUniform{serial: serial, offset: u.offset, size: u.size, valid: true}
	}
	return nil
}

func (m *Manager) syncDrawUniformBuffers(_ *DrawCall, _ *dirtySet) error {
	if err := m.syncStageUniformBuffers(StageVertex); err != nil {
		return err
	}
	return m.syncStageUniformBuffers(StageFragment)
}

func (m *Manager) syncComputeUniformBuffers(_ *DrawCall, _ *dirtySet) error {
	return m.syncStageUniformBuffers(StageCompute)
}

// syncTransformFeedback binds the stream-out targets when the target list
// changed.
func (m *Manager) syncTransformFeedback(_ *DrawCall, _ *dirtySet) error {
	key := make([]uint64, 0, len(m.streamOut)*2)
	bufs := make([]Buffer, len(m.streamOut))
	offsets := make([]uint32, len(m.streamOut))
	for i, b := range m.streamOut {
		bufs[i] = b.Buffer
		offsets[i] = b.Offset
		var serial uint64
		if b.Buffer != nil {
			serial = b.Buffer.BufferSerial()
		}
		key = append(key, serial, uint64(b.Offset))
	}

	if uint64SlicesEqual(key, m.appliedStreamOut) {
		return nil
	}
	m.device.SetStreamOutTargets(bufs, offsets)
	m.appliedStreamOut = key
	return nil
}

func uint64SlicesEqual(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
