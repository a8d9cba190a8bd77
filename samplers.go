package statesync

// samplerSlot is the logical sampler of one texture unit plus its applied
// mirror. forceSet is seeded true so the first apply after construction or
// a context takeover always binds, regardless of what the device thinks it
// has.
type samplerSlot struct {
	desc     SamplerDesc
	applied  SamplerDesc
	forceSet bool
}

// seedSamplerForceFlags marks every sampler slot for unconditional rebind.
func (m *Manager) seedSamplerForceFlags() {
	for s := Stage(0); s < stageCount; s++ {
		for i := range m.samplers[s] {
			slot := &m.samplers[s][i]
			slot.desc = DefaultSamplerDesc()
			slot.forceSet = true
		}
	}
}

// applySampler binds the sampler of one unit when its descriptor differs
// from the applied one (value comparison; the descriptor is a plain
// comparable struct).
func (m *Manager) applySampler(stage Stage, unit int) error {
	slot := &m.samplers[stage][unit]
	if !slot.forceSet && slot.desc == slot.applied {
		return nil
	}

	obj, _, err := m.cache.GetOrCreateSamplerState(m.device, &slot.desc)
	if err != nil {
		return err
	}
	m.device.SetSamplers(stage, unit, []SamplerStateObject{obj})
	slot.applied = slot.desc
	slot.forceSet = false
	return nil
}
