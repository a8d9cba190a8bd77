package statesync

// nilViews is a reusable unbind slice.
var nilViews = make([]View, maxShaderResourceSlots)

// unbindAttachmentReads drops every shader resource slot reading the
// subresource a framebuffer attachment is about to cover.
func (m *Manager) unbindAttachmentReads(att RenderTargetView) {
	desc := att.ViewDescription()
	idx := ImageIndex{MipLevel: desc.BaseMipLevel, Layer: AllLayers}
	if desc.ArrayLayerCount == 1 {
		idx.Layer = int32(desc.BaseArrayLayer)
	}
	resource := att.ViewResource()
	for s := Stage(0); s < stageCount; s++ {
		m.unbindConflictingSRVs(s, resource, &idx)
	}
}

// unbindConflictingSRVs unbinds shader resource slots of one stage whose
// view overlaps the resource (optionally narrowed to one image).
func (m *Manager) unbindConflictingSRVs(stage Stage, resource uint64, idx *ImageIndex) {
	cache := m.srvCaches[stage]
	for _, slot := range cache.ConflictingSlots(resource, idx) {
		m.device.SetShaderResources(stage, slot, nilViews[:1])
		cache.Unbind(slot)
	}
}

// unbindConflictingUAVs unbinds storage slots whose view overlaps the
// resource.
func (m *Manager) unbindConflictingUAVs(resource uint64, idx *ImageIndex) {
	for _, slot := range m.uavCache.ConflictingSlots(resource, idx) {
		m.device.SetUnorderedAccessViews(slot, nilViews[:1])
		m.uavCache.Unbind(slot)
	}
}

// setShaderResource binds one view with identity-based redundancy
// elimination.
func (m *Manager) setShaderResource(stage Stage, slot int, view View) {
	cache := m.srvCaches[stage]
	if bound, ok := cache.Bound(slot); ok && bound == view {
		return
	}
	if view == nil {
		if _, ok := cache.Bound(slot); !ok {
			return
		}
		m.device.SetShaderResources(stage, slot, nilViews[:1])
		cache.Unbind(slot)
		return
	}
	m.device.SetShaderResources(stage, slot, []View{view})
	cache.Bind(slot, view)
}

// clearShaderResources unbinds [from, to), clamped to the highest slot
// that can hold anything. An empty cache emits no device call.
func (m *Manager) clearShaderResources(stage Stage, from, to int) {
	cache := m.srvCaches[stage]
	clamped := cache.HighestUsed()
	if to > clamped {
		to = clamped
	}
	if to <= from {
		return
	}
	m.device.SetShaderResources(stage, from, nilViews[:to-from])
	cache.ClearRange(from, to)
}

// syncStageTextures applies texture views, samplers and sampler metadata
// for the active sampler range of one stage, then clears any stale slots
// above the range.
func (m *Manager) syncStageTextures(stage Stage) error {
	count := m.program.ActiveSamplers[stage]
	if count > m.caps.MaxShaderResourceSlots {
		count = m.caps.MaxShaderResourceSlots
	}

	for unit := 0; unit < count; unit++ {
		b := &m.textures[stage][unit]
		if b.hasView {
			m.setShaderResource(stage, unit, b.view)
			m.driver.setSamplerMetadata(stage, unit, b.md)
		} else {
			m.setShaderResource(stage, unit, nil)
		}
		if unit < m.caps.MaxSamplerSlots {
			if err := m.applySampler(stage, unit); err != nil {
				return err
			}
		}
	}

	m.clearShaderResources(stage, count, m.caps.MaxShaderResourceSlots)
	return nil
}

// syncDrawTextures handles the texture group for draws. Sampler metadata
// written here is picked up by the driver uniform handler later in the
// same drain.
func (m *Manager) syncDrawTextures(_ *DrawCall, pending *dirtySet) error {
	if err := m.syncStageTextures(StageVertex); err != nil {
		return err
	}
	if err := m.syncStageTextures(StageFragment); err != nil {
		return err
	}
	if m.driver.anyDirty(StageVertex, StageFragment) {
		pending.set(dirtyDriverUniforms)
	}
	return nil
}

// syncComputeTextures handles the texture group for dispatches: compute
// shader resources plus storage views, with write/read conflicts resolved
// in favor of the storage binding.
func (m *Manager) syncComputeTextures(_ *DrawCall, pending *dirtySet) error {
	if err := m.syncStageTextures(StageCompute); err != nil {
		return err
	}

	highest := 0
	for unit := range m.images {
		b := &m.images[unit]
		if !b.hasView {
			continue
		}
		highest = unit + 1
		// A storage write wins over any read of the same resource.
		m.unbindConflictingSRVs(StageCompute, b.view.ViewResource(), nil)
		if bound, ok := m.uavCache.Bound(unit); ok && bound == b.view {
			continue
		}
		m.device.SetUnorderedAccessViews(unit, []View{b.view})
		m.uavCache.Bind(unit, b.view)
	}

	// Stale storage slots above the populated range.
	clamped := m.uavCache.HighestUsed()
	if clamped > highest {
		m.device.SetUnorderedAccessViews(highest, nilViews[:clamped-highest])
		m.uavCache.ClearRange(highest, clamped)
	}

	if m.driver.anyDirty(StageCompute) {
		pending.set(dirtyDriverUniforms)
	}
	return nil
}
