package statesync

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestWrapBits(t *testing.T) {
	if wrapBits(gputypes.AddressModeClampToEdge) != wrapBitsClamp {
		t.Error("clamp mode should map to the clamp code")
	}
	if wrapBits(gputypes.AddressModeRepeat) != wrapBitsRepeat {
		t.Error("repeat mode should map to the repeat code")
	}
	if wrapBits(gputypes.AddressModeMirrorRepeat) != wrapBitsMirror {
		t.Error("mirror mode should map to the mirror code")
	}
}

func TestMetadataFor(t *testing.T) {
	md := TextureMetadata{
		BaseLevel:     3,
		Integer:       true,
		ComponentBits: 8,
		WrapS:         gputypes.AddressModeRepeat,
		WrapT:         gputypes.AddressModeClampToEdge,
		WrapR:         gputypes.AddressModeMirrorRepeat,
	}
	rec := metadataFor(md)
	if rec.BaseLevel != 3 {
		t.Errorf("BaseLevel = %d, want 3", rec.BaseLevel)
	}
	if rec.InternalFormatBits != 8 {
		t.Errorf("InternalFormatBits = %d, want 8", rec.InternalFormatBits)
	}
	want := int32(wrapBitsRepeat) | int32(wrapBitsClamp)<<2 | int32(wrapBitsMirror)<<4
	if rec.WrapModes != want {
		t.Errorf("WrapModes = %#x, want %#x", rec.WrapModes, want)
	}

	// Float formats carry only the base level.
	md.Integer = false
	rec = metadataFor(md)
	if rec.InternalFormatBits != 0 || rec.WrapModes != 0 {
		t.Errorf("non-integer metadata should be bare, got %+v", rec)
	}
}

func TestDriverConstants_EncodeLayout(t *testing.T) {
	var d driverConstants
	d.init()

	if got := len(d.encode(StageVertex, 0)); got != driverHeaderSize {
		t.Errorf("header-only block = %d bytes, want %d", got, driverHeaderSize)
	}
	if got := len(d.encode(StageVertex, 3)); got != driverHeaderSize+3*samplerMetadataSize {
		t.Errorf("3-sampler block = %d bytes, want %d", got, driverHeaderSize+3*samplerMetadataSize)
	}
}

func TestDriverConstants_WideningOnly(t *testing.T) {
	m, dev, err := newTestManager(nil)
	if err != nil {
		t.Fatalf("newTestManager failed: %v", err)
	}
	if _, err := m.SetupDraw(triangles(3)); err != nil {
		t.Fatalf("SetupDraw failed: %v", err)
	}
	if n := dev.count("SetConstantBuffer(fragment,1)"); n != 1 {
		t.Fatalf("expected the driver constant bind, got %v", dev.calls)
	}

	// Fewer active samplers: the stale tail stays, no upload.
	dev.reset()
	shrunk := mockProgram(2)
	shrunk.ActiveSamplers[StageFragment] = 0
	m.SetProgram(shrunk)
	if _, err := m.SetupDraw(triangles(3)); err != nil {
		t.Fatalf("SetupDraw failed: %v", err)
	}
	if n := dev.count("CreateBuffer(driver constants)"); n != 0 {
		t.Errorf("shrink must not grow the buffer: %v", dev.calls)
	}
	if n := dev.count("UpdateBuffer"); n != 0 {
		t.Errorf("shrink must not re-upload: %v", dev.calls)
	}

	// More active samplers than ever before: the block widens.
	dev.reset()
	widened := mockProgram(3)
	widened.ActiveSamplers[StageFragment] = 2
	m.SetProgram(widened)
	if _, err := m.SetupDraw(triangles(3)); err != nil {
		t.Fatalf("SetupDraw failed: %v", err)
	}
	if n := dev.count("CreateBuffer(driver constants)"); n != 1 {
		t.Errorf("expected the fragment block to be reallocated, got %v", dev.calls)
	}
	if n := dev.count("SetConstantBuffer(fragment,1)"); n != 1 {
		t.Errorf("a recreated block must rebind at the reserved slot: %v", dev.calls)
	}
}

func TestDriverConstants_MetadataChangeReuploads(t *testing.T) {
	m, dev, err := newTestManager(nil)
	if err != nil {
		t.Fatalf("newTestManager failed: %v", err)
	}
	view := mockView(42, 0, 0)
	if err := m.SetTexture(StageFragment, 0, view, TextureMetadata{}); err != nil {
		t.Fatalf("SetTexture failed: %v", err)
	}
	if _, err := m.SetupDraw(triangles(3)); err != nil {
		t.Fatalf("SetupDraw failed: %v", err)
	}

	// Same view, new base level: the metadata record changes and the
	// fragment block re-uploads even though nothing widened.
	dev.reset()
	if err := m.SetTexture(StageFragment, 0, view, TextureMetadata{BaseLevel: 2}); err != nil {
		t.Fatalf("SetTexture failed: %v", err)
	}
	if _, err := m.SetupDraw(triangles(3)); err != nil {
		t.Fatalf("SetupDraw failed: %v", err)
	}
	if n := dev.count("UpdateBuffer"); n != 1 {
		t.Errorf("expected one driver constant upload, got %d: %v", n, dev.calls)
	}
	// The view itself did not change, so no rebind.
	if n := dev.count("SetShaderResources"); n != 0 {
		t.Errorf("unchanged view rebound: %v", dev.calls)
	}
}

func TestComputeStageConstants(t *testing.T) {
	m, _, err := newTestManager(nil)
	if err != nil {
		t.Fatalf("newTestManager failed: %v", err)
	}
	m.SetViewport(Viewport{X: 10, Y: 20, Width: 100, Height: 50, MinDepth: 0.1, MaxDepth: 0.9})

	sc := m.computeStageConstants()
	if sc.ViewAdjust != [4]float32{60, 45, 1.0 / 50, 1.0 / 25} {
		t.Errorf("ViewAdjust = %v", sc.ViewAdjust)
	}
	if sc.ViewCoords != [4]float32{10, 20, 100, 50} {
		t.Errorf("ViewCoords = %v", sc.ViewCoords)
	}
	if sc.DepthRange[0] != 0.1 || sc.DepthRange[1] != 0.9 {
		t.Errorf("DepthRange = %v", sc.DepthRange)
	}
	if sc.ViewScale[1] != 1 {
		t.Errorf("ViewScale.y = %g, want 1", sc.ViewScale[1])
	}

	// The Y flip shows up in the view scale so shaders can compensate.
	m.wk.FlipRenderTargetY = true
	sc = m.computeStageConstants()
	if sc.ViewScale[1] != -1 {
		t.Errorf("ViewScale.y with flip = %g, want -1", sc.ViewScale[1])
	}
}

func TestComputeStageConstants_ZeroViewport(t *testing.T) {
	m, _, err := newTestManager(nil)
	if err != nil {
		t.Fatalf("newTestManager failed: %v", err)
	}
	m.SetViewport(Viewport{})

	sc := m.computeStageConstants()
	if sc.ViewAdjust[2] != 0 || sc.ViewAdjust[3] != 0 {
		t.Errorf("zero-size viewport must not divide by zero: %v", sc.ViewAdjust)
	}
}
