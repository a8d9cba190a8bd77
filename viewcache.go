package statesync

// viewRecord is one slot of a ViewCache.
type viewRecord[T View] struct {
	view     T
	resource uint64
	desc     ViewDescription
	bound    bool
}

// ViewCache mirrors the views bound to a contiguous slot range on the
// device. It exists so the sync layer can skip redundant binds, clear only
// the slots that can hold anything, and find slots that conflict with a
// resource about to be written.
//
// The cache is generic over the view interface so shader resource and
// storage view caches share one implementation. It is bookkeeping only:
// the caller issues the device calls.
//
// ViewCache is not safe for concurrent use; it is owned by a single
// Manager.
type ViewCache[T View] struct {
	records []viewRecord[T]

	// highestUsed is one past the topmost bound slot. Slots at or above
	// highestUsed are known to be empty, so range clears stop there.
	highestUsed int
}

// NewViewCache creates a cache with the given slot capacity.
func NewViewCache[T View](capacity int) *ViewCache[T] {
	return &ViewCache[T]{
		records: make([]viewRecord[T], capacity),
	}
}

// Capacity returns the slot count.
func (c *ViewCache[T]) Capacity() int { return len(c.records) }

// HighestUsed returns one past the topmost bound slot (0 when empty).
func (c *ViewCache[T]) HighestUsed() int { return c.highestUsed }

// Bound returns the view in the slot and whether one is bound.
func (c *ViewCache[T]) Bound(slot int) (T, bool) {
	if slot < 0 || slot >= len(c.records) {
		var zero T
		return zero, false
	}
	r := &c.records[slot]
	return r.view, r.bound
}

// Bind records a view in the slot.
func (c *ViewCache[T]) Bind(slot int, view T) {
	if slot < 0 || slot >= len(c.records) {
		return
	}
	c.records[slot] = viewRecord[T]{
		view:     view,
		resource: view.ViewResource(),
		desc:     view.ViewDescription(),
		bound:    true,
	}
	if slot+1 > c.highestUsed {
		c.highestUsed = slot + 1
	}
}

// Unbind clears the slot. Unbinding the topmost slot scans downward to the
// next bound slot so highestUsed stays tight.
func (c *ViewCache[T]) Unbind(slot int) {
	if slot < 0 || slot >= len(c.records) {
		return
	}
	c.records[slot] = viewRecord[T]{}
	if slot+1 == c.highestUsed {
		i := slot
		for i > 0 && !c.records[i-1].bound {
			i--
		}
		c.highestUsed = i
	}
}

// ClearRange unbinds [from, to) clamped to the highest used slot and
// returns the clamped upper bound. When nothing is bound in the range the
// return equals from and the caller emits no device call.
func (c *ViewCache[T]) ClearRange(from, to int) int {
	if from < 0 {
		from = 0
	}
	if to > c.highestUsed {
		to = c.highestUsed
	}
	if to <= from {
		return from
	}
	for i := from; i < to; i++ {
		c.records[i] = viewRecord[T]{}
	}
	if to == c.highestUsed {
		i := from
		for i > 0 && !c.records[i-1].bound {
			i--
		}
		c.highestUsed = i
	}
	return to
}

// ConflictingSlots returns the bound slots whose view references the
// resource. With a non-nil image index only slots whose subresource range
// intersects the index are reported. The scan stops at highestUsed.
func (c *ViewCache[T]) ConflictingSlots(resource uint64, idx *ImageIndex) []int {
	var slots []int
	for i := 0; i < c.highestUsed; i++ {
		r := &c.records[i]
		if !r.bound || r.resource != resource {
			continue
		}
		if idx != nil && !r.desc.Intersects(*idx) {
			continue
		}
		slots = append(slots, i)
	}
	return slots
}

// Reset unbinds every slot.
func (c *ViewCache[T]) Reset() {
	for i := range c.records {
		c.records[i] = viewRecord[T]{}
	}
	c.highestUsed = 0
}
