package statesync

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

// StateCache caches immutable device state objects.
//
// State object creation costs a device round trip and drivers dedup poorly,
// so the cache stores objects indexed by descriptor hash and hands the same
// object back for identical descriptors.
//
// Thread Safety:
// StateCache is safe for concurrent use. It uses RWMutex with double-check
// locking for efficient reads and safe writes.
//
// The cache tracks hit/miss statistics for performance monitoring.
type StateCache struct {
	// mu protects mutable state.
	mu sync.RWMutex

	// blendCache stores blend state objects indexed by descriptor hash.
	blendCache map[uint64]BlendStateObject

	// depthStencilCache stores depth-stencil objects indexed by descriptor hash.
	depthStencilCache map[uint64]DepthStencilStateObject

	// rasterizerCache stores rasterizer objects indexed by descriptor hash.
	rasterizerCache map[uint64]RasterizerStateObject

	// samplerCache stores sampler objects indexed by descriptor hash.
	samplerCache map[uint64]SamplerStateObject

	// layoutCache stores input layout objects indexed by element list hash.
	layoutCache map[uint64]InputLayoutObject

	// hits counts cache hits (atomic for lock-free reads).
	hits uint64

	// misses counts cache misses (atomic for lock-free reads).
	misses uint64
}

// NewStateCache creates an empty state object cache.
func NewStateCache() *StateCache {
	return &StateCache{
		blendCache:        make(map[uint64]BlendStateObject),
		depthStencilCache: make(map[uint64]DepthStencilStateObject),
		rasterizerCache:   make(map[uint64]RasterizerStateObject),
		samplerCache:      make(map[uint64]SamplerStateObject),
		layoutCache:       make(map[uint64]InputLayoutObject),
	}
}

// GetOrCreateBlendState returns a cached blend state or creates a new one.
//
// This method implements the "get or create" pattern with double-check locking:
//  1. Fast path: RLock, check cache, return if found
//  2. Slow path: Lock, double-check, create if needed
func (c *StateCache) GetOrCreateBlendState(device Device, desc *BlendStateDesc) (BlendStateObject, uint64, error) {
	if desc == nil {
		return nil, 0, ErrNilDescriptor
	}

	key := HashBlendStateDesc(desc)

	c.mu.RLock()
	if obj, ok := c.blendCache[key]; ok {
		c.mu.RUnlock()
		atomic.AddUint64(&c.hits, 1)
		return obj, key, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if obj, ok := c.blendCache[key]; ok {
		atomic.AddUint64(&c.hits, 1)
		return obj, key, nil
	}

	obj, err := device.CreateBlendState(desc)
	if err != nil {
		return nil, 0, err
	}

	c.blendCache[key] = obj
	atomic.AddUint64(&c.misses, 1)

	return obj, key, nil
}

// GetOrCreateDepthStencilState returns a cached depth-stencil state or
// creates a new one.
func (c *StateCache) GetOrCreateDepthStencilState(device Device, desc *hal.DepthStencilState) (DepthStencilStateObject, uint64, error) {
	if desc == nil {
		return nil, 0, ErrNilDescriptor
	}

	key := HashDepthStencilState(desc)

	c.mu.RLock()
	if obj, ok := c.depthStencilCache[key]; ok {
		c.mu.RUnlock()
		atomic.AddUint64(&c.hits, 1)
		return obj, key, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if obj, ok := c.depthStencilCache[key]; ok {
		atomic.AddUint64(&c.hits, 1)
		return obj, key, nil
	}

	obj, err := device.CreateDepthStencilState(desc)
	if err != nil {
		return nil, 0, err
	}

	c.depthStencilCache[key] = obj
	atomic.AddUint64(&c.misses, 1)

	return obj, key, nil
}

// GetOrCreateRasterizerState returns a cached rasterizer state or creates
// a new one.
func (c *StateCache) GetOrCreateRasterizerState(device Device, desc *RasterizerStateDesc) (RasterizerStateObject, uint64, error) {
	if desc == nil {
		return nil, 0, ErrNilDescriptor
	}

	key := HashRasterizerStateDesc(desc)

	c.mu.RLock()
	if obj, ok := c.rasterizerCache[key]; ok {
		c.mu.RUnlock()
		atomic.AddUint64(&c.hits, 1)
		return obj, key, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if obj, ok := c.rasterizerCache[key]; ok {
		atomic.AddUint64(&c.hits, 1)
		return obj, key, nil
	}

	obj, err := device.CreateRasterizerState(desc)
	if err != nil {
		return nil, 0, err
	}

	c.rasterizerCache[key] = obj
	atomic.AddUint64(&c.misses, 1)

	return obj, key, nil
}

// GetOrCreateSamplerState returns a cached sampler or creates a new one.
func (c *StateCache) GetOrCreateSamplerState(device Device, desc *SamplerDesc) (SamplerStateObject, uint64, error) {
	if desc == nil {
		return nil, 0, ErrNilDescriptor
	}

	key := HashSamplerDesc(desc)

	c.mu.RLock()
	if obj, ok := c.samplerCache[key]; ok {
		c.mu.RUnlock()
		atomic.AddUint64(&c.hits, 1)
		return obj, key, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if obj, ok := c.samplerCache[key]; ok {
		atomic.AddUint64(&c.hits, 1)
		return obj, key, nil
	}

	obj, err := device.CreateSamplerState(desc)
	if err != nil {
		return nil, 0, err
	}

	c.samplerCache[key] = obj
	atomic.AddUint64(&c.misses, 1)

	return obj, key, nil
}

// GetOrCreateInputLayout returns a cached input layout or creates a new
// one from the element list.
func (c *StateCache) GetOrCreateInputLayout(device Device, elems []InputElement) (InputLayoutObject, uint64, error) {
	key := HashInputElements(elems)

	c.mu.RLock()
	if obj, ok := c.layoutCache[key]; ok {
		c.mu.RUnlock()
		atomic.AddUint64(&c.hits, 1)
		return obj, key, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if obj, ok := c.layoutCache[key]; ok {
		atomic.AddUint64(&c.hits, 1)
		return obj, key, nil
	}

	obj, err := device.CreateInputLayout(elems)
	if err != nil {
		return nil, 0, err
	}

	c.layoutCache[key] = obj
	atomic.AddUint64(&c.misses, 1)

	return obj, key, nil
}

// Stats returns cache statistics.
//
// Returns the number of cache hits and misses. These values are read
// atomically and may not be perfectly synchronized.
func (c *StateCache) Stats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}

// HitRate returns the cache hit rate as a fraction (0.0 to 1.0).
//
// Returns 0.0 if no requests have been made.
func (c *StateCache) HitRate() float64 {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// Size returns the total number of cached state objects.
func (c *StateCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blendCache) + len(c.depthStencilCache) +
		len(c.rasterizerCache) + len(c.samplerCache) + len(c.layoutCache)
}

// Clear removes all cached objects and resets statistics.
//
// This does NOT release the underlying device objects. Use DestroyAll when
// resource cleanup is needed.
func (c *StateCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.blendCache = make(map[uint64]BlendStateObject)
	c.depthStencilCache = make(map[uint64]DepthStencilStateObject)
	c.rasterizerCache = make(map[uint64]RasterizerStateObject)
	c.samplerCache = make(map[uint64]SamplerStateObject)
	c.layoutCache = make(map[uint64]InputLayoutObject)
	atomic.StoreUint64(&c.hits, 0)
	atomic.StoreUint64(&c.misses, 0)
}

// DestroyAll releases all cached device objects and clears the cache.
// After calling DestroyAll the cache is empty and ready for reuse.
func (c *StateCache) DestroyAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, obj := range c.blendCache {
		if obj != nil {
			obj.Release()
		}
	}
	for _, obj := range c.depthStencilCache {
		if obj != nil {
			obj.Release()
		}
	}
	for _, obj := range c.rasterizerCache {
		if obj != nil {
			obj.Release()
		}
	}
	for _, obj := range c.samplerCache {
		if obj != nil {
			obj.Release()
		}
	}
	for _, obj := range c.layoutCache {
		if obj != nil {
			obj.Release()
		}
	}

	c.blendCache = make(map[uint64]BlendStateObject)
	c.depthStencilCache = make(map[uint64]DepthStencilStateObject)
	c.rasterizerCache = make(map[uint64]RasterizerStateObject)
	c.samplerCache = make(map[uint64]SamplerStateObject)
	c.layoutCache = make(map[uint64]InputLayoutObject)
	atomic.StoreUint64(&c.hits, 0)
	atomic.StoreUint64(&c.misses, 0)
}

// =============================================================================
// Hash Functions
// =============================================================================

// HashBlendStateDesc computes an FNV-1a hash covering every field that
// affects the device blend object.
func HashBlendStateDesc(desc *BlendStateDesc) uint64 {
	h := fnv.New64a()

	hashWriteBool(h, desc.Enabled)
	hashWriteUint32(h, uint32(desc.SrcColor))
	hashWriteUint32(h, uint32(desc.DstColor))
	hashWriteUint32(h, uint32(desc.ColorOp))
	hashWriteUint32(h, uint32(desc.SrcAlpha))
	hashWriteUint32(h, uint32(desc.DstAlpha))
	hashWriteUint32(h, uint32(desc.AlphaOp))
	hashWriteUint32(h, uint32(desc.WriteMask))
	hashWriteBool(h, desc.AlphaToCoverage)

	return h.Sum64()
}

// HashDepthStencilState computes an FNV-1a hash of a device depth-stencil
// descriptor.
func HashDepthStencilState(desc *hal.DepthStencilState) uint64 {
	h := fnv.New64a()

	hashWriteUint32(h, uint32(desc.Format))
	hashWriteBool(h, desc.DepthWriteEnabled)
	hashWriteUint32(h, uint32(desc.DepthCompare))
	hashWriteStencilFace(h, &desc.StencilFront)
	hashWriteStencilFace(h, &desc.StencilBack)
	hashWriteUint32(h, desc.StencilReadMask)
	hashWriteUint32(h, desc.StencilWriteMask)

	return h.Sum64()
}

// HashRasterizerStateDesc computes an FNV-1a hash of a rasterizer
// descriptor.
func HashRasterizerStateDesc(desc *RasterizerStateDesc) uint64 {
	h := fnv.New64a()

	hashWriteUint32(h, uint32(desc.CullMode))
	hashWriteUint32(h, uint32(desc.FrontFace))
	hashWriteBool(h, desc.ScissorEnabled)
	hashWriteUint32(h, uint32(desc.DepthBias))
	hashWriteFloat32(h, desc.SlopeScaledDepthBias)
	hashWriteBool(h, desc.Multisample)

	return h.Sum64()
}

// HashSamplerDesc computes an FNV-1a hash of a sampler descriptor.
func HashSamplerDesc(desc *SamplerDesc) uint64 {
	h := fnv.New64a()

	hashWriteUint32(h, uint32(desc.MinFilter))
	hashWriteUint32(h, uint32(desc.MagFilter))
	hashWriteUint32(h, uint32(desc.MipFilter))
	hashWriteUint32(h, uint32(desc.AddressU))
	hashWriteUint32(h, uint32(desc.AddressV))
	hashWriteUint32(h, uint32(desc.AddressW))
	hashWriteBool(h, desc.CompareEnabled)
	hashWriteUint32(h, uint32(desc.Compare))
	hashWriteUint32(h, uint32(desc.MaxAnisotropy))
	hashWriteFloat32(h, desc.MinLOD)
	hashWriteFloat32(h, desc.MaxLOD)

	return h.Sum64()
}

// HashInputElements computes an FNV-1a hash of an input layout element
// list.
func HashInputElements(elems []InputElement) uint64 {
	h := fnv.New64a()

	//nolint:gosec // G115: element count is bounded by maxVertexAttribs
	hashWriteUint32(h, uint32(len(elems)))
	for i := range elems {
		e := &elems[i]
		hashWriteUint32(h, e.ShaderLocation)
		hashWriteUint32(h, uint32(e.Format))
		hashWriteUint32(h, e.BufferSlot)
		hashWriteUint32(h, e.Offset)
		hashWriteUint32(h, uint32(e.StepMode))
		hashWriteUint32(h, e.InstanceStep)
	}

	return h.Sum64()
}

func hashWriteStencilFace(h hash.Hash64, face *hal.StencilFaceState) {
	hashWriteUint32(h, uint32(face.Compare))
	hashWriteUint32(h, uint32(face.FailOp))
	hashWriteUint32(h, uint32(face.DepthFailOp))
	hashWriteUint32(h, uint32(face.PassOp))
}

// =============================================================================
// Helper Functions for Hashing
// =============================================================================

// hashWriteUint32 writes a uint32 to the hash.
func hashWriteUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}

// hashWriteFloat32 writes a float32 to the hash.
func hashWriteFloat32(h hash.Hash64, v float32) {
	hashWriteUint32(h, math.Float32bits(v))
}

// hashWriteBool writes a bool to the hash.
func hashWriteBool(h hash.Hash64, v bool) {
	if v {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
}
