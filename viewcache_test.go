package statesync

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestViewCache_BindTracksHighestUsed(t *testing.T) {
	c := NewViewCache[View](8)

	if c.HighestUsed() != 0 {
		t.Errorf("empty cache HighestUsed() = %d, want 0", c.HighestUsed())
	}

	c.Bind(2, mockView(10, 0, 0))
	if c.HighestUsed() != 3 {
		t.Errorf("HighestUsed() = %d, want 3", c.HighestUsed())
	}

	c.Bind(5, mockView(11, 0, 0))
	if c.HighestUsed() != 6 {
		t.Errorf("HighestUsed() = %d, want 6", c.HighestUsed())
	}

	// Binding below the top does not lower the mark.
	c.Bind(0, mockView(12, 0, 0))
	if c.HighestUsed() != 6 {
		t.Errorf("HighestUsed() = %d, want 6", c.HighestUsed())
	}

	if v, ok := c.Bound(2); !ok || v.ViewResource() != 10 {
		t.Errorf("Bound(2) = %v, %v", v, ok)
	}
	if _, ok := c.Bound(3); ok {
		t.Error("Bound(3) reported a view in an empty slot")
	}
}

func TestViewCache_UnbindScansDownward(t *testing.T) {
	c := NewViewCache[View](8)
	c.Bind(1, mockView(10, 0, 0))
	c.Bind(4, mockView(11, 0, 0))

	// Unbinding a middle slot leaves the mark alone.
	c.Unbind(1)
	if c.HighestUsed() != 5 {
		t.Errorf("HighestUsed() = %d, want 5", c.HighestUsed())
	}

	// Unbinding the top scans down past the hole to zero.
	c.Unbind(4)
	if c.HighestUsed() != 0 {
		t.Errorf("HighestUsed() = %d, want 0", c.HighestUsed())
	}
}

func TestViewCache_UnbindOutOfRange(t *testing.T) {
	c := NewViewCache[View](4)
	c.Bind(3, mockView(10, 0, 0))
	c.Unbind(-1)
	c.Unbind(4)
	if c.HighestUsed() != 4 {
		t.Errorf("HighestUsed() = %d, want 4", c.HighestUsed())
	}
}

func TestViewCache_ClearRangeClamps(t *testing.T) {
	c := NewViewCache[View](16)
	c.Bind(0, mockView(10, 0, 0))
	c.Bind(3, mockView(11, 0, 0))

	// The clear stops at the highest used slot, not the requested end.
	end := c.ClearRange(1, 16)
	if end != 4 {
		t.Errorf("ClearRange(1, 16) = %d, want 4", end)
	}
	if c.HighestUsed() != 1 {
		t.Errorf("HighestUsed() = %d, want 1", c.HighestUsed())
	}
	if _, ok := c.Bound(0); !ok {
		t.Error("slot 0 should survive a clear starting at 1")
	}
	if _, ok := c.Bound(3); ok {
		t.Error("slot 3 should be cleared")
	}
}

func TestViewCache_ClearRangeEmpty(t *testing.T) {
	c := NewViewCache[View](16)

	// Nothing bound: the clamped end equals the start and no work happens.
	if end := c.ClearRange(0, 16); end != 0 {
		t.Errorf("ClearRange on empty cache = %d, want 0", end)
	}

	c.Bind(2, mockView(10, 0, 0))
	if end := c.ClearRange(5, 16); end != 5 {
		t.Errorf("ClearRange above highest used = %d, want 5", end)
	}
	if _, ok := c.Bound(2); !ok {
		t.Error("slot 2 should survive a clear above it")
	}
}

func TestViewCache_ConflictingSlots(t *testing.T) {
	c := NewViewCache[View](8)
	c.Bind(0, mockView(10, 0, 0))
	c.Bind(1, mockView(20, 0, 0))
	c.Bind(2, mockView(10, 0, 0))

	slots := c.ConflictingSlots(10, nil)
	if len(slots) != 2 || slots[0] != 0 || slots[1] != 2 {
		t.Errorf("ConflictingSlots(10) = %v, want [0 2]", slots)
	}
	if slots := c.ConflictingSlots(99, nil); len(slots) != 0 {
		t.Errorf("ConflictingSlots(99) = %v, want none", slots)
	}
}

func TestViewCache_ConflictingSlotsSubresource(t *testing.T) {
	c := NewViewCache[View](8)
	c.Bind(0, mockView(10, 0, 0)) // mip 0, layer 0
	c.Bind(1, mockView(10, 2, 0)) // mip 2, layer 0
	c.Bind(2, mockView(10, 0, 3)) // mip 0, layer 3

	// Only views covering mip 0 / layer 0 conflict.
	idx := &ImageIndex{MipLevel: 0, Layer: 0}
	slots := c.ConflictingSlots(10, idx)
	if len(slots) != 1 || slots[0] != 0 {
		t.Errorf("ConflictingSlots(mip 0, layer 0) = %v, want [0]", slots)
	}

	// AllLayers matches any layer of the mip.
	idx = &ImageIndex{MipLevel: 0, Layer: AllLayers}
	slots = c.ConflictingSlots(10, idx)
	if len(slots) != 2 || slots[0] != 0 || slots[1] != 2 {
		t.Errorf("ConflictingSlots(mip 0, all layers) = %v, want [0 2]", slots)
	}

	// A mip outside every view's range matches nothing.
	idx = &ImageIndex{MipLevel: 7, Layer: AllLayers}
	if slots := c.ConflictingSlots(10, idx); len(slots) != 0 {
		t.Errorf("ConflictingSlots(mip 7) = %v, want none", slots)
	}
}

func TestViewCache_Conflicting3DView(t *testing.T) {
	c := NewViewCache[View](4)
	v := &fakeView{
		resource: 10,
		desc: ViewDescription{
			Dimension:       gputypes.TextureViewDimension3D,
			MipLevelCount:   1,
			ArrayLayerCount: 1,
		},
	}
	c.Bind(0, v)

	// 3D views conflict regardless of the requested layer.
	idx := &ImageIndex{MipLevel: 0, Layer: 5}
	if slots := c.ConflictingSlots(10, idx); len(slots) != 1 {
		t.Errorf("ConflictingSlots on 3D view = %v, want [0]", slots)
	}
}

func TestViewCache_Reset(t *testing.T) {
	c := NewViewCache[View](8)
	c.Bind(0, mockView(10, 0, 0))
	c.Bind(6, mockView(11, 0, 0))

	c.Reset()

	if c.HighestUsed() != 0 {
		t.Errorf("HighestUsed() after Reset = %d, want 0", c.HighestUsed())
	}
	if _, ok := c.Bound(0); ok {
		t.Error("slot 0 still bound after Reset")
	}
	if slots := c.ConflictingSlots(10, nil); len(slots) != 0 {
		t.Errorf("ConflictingSlots after Reset = %v, want none", slots)
	}
}
