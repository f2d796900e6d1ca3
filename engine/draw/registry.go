package draw

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-cull/engine/scene"
)

var (
	ErrDrawSlotsExhausted = errors.New("draw: static draw slots exhausted")
	ErrUnknownRange       = errors.New("draw: unknown render range")
)

// IndexedTemplate holds the static fields of an indexed draw command.
type IndexedTemplate struct {
	IndexCount uint32
	FirstIndex uint32
	BaseVertex int32
}

// NonIndexedTemplate holds the static fields of a non-indexed draw command.
type NonIndexedTemplate struct {
	VertexCount uint32
	FirstVertex uint32
}

// DrawMetadata identifies what a draw renders.
type DrawMetadata struct {
	MeshID        uint32
	MaterialID    uint32
	JointBufferID uint32
}

// IndexedDraw is an indexed sub-draw as supplied at registration.
type IndexedDraw struct {
	Template IndexedTemplate
	Metadata DrawMetadata
}

// NonIndexedDraw is a non-indexed sub-draw as supplied at registration.
type NonIndexedDraw struct {
	Template NonIndexedTemplate
	Metadata DrawMetadata
}

// RegisteredIndexed is an indexed sub-draw with its static per-view draw index.
type RegisteredIndexed struct {
	IndexedDraw
	DrawIndex uint32
}

// RegisteredNonIndexed is a non-indexed sub-draw with its static per-view draw index.
type RegisteredNonIndexed struct {
	NonIndexedDraw
	DrawIndex uint32
}

// RenderRange is the immutable set of sub-draws one object emits.
type RenderRange struct {
	Indexed    []RegisteredIndexed
	NonIndexed []RegisteredNonIndexed
}

// Registry assigns static draw indices to render ranges. Every draw index belongs
// to at most one range, so each command cell of a view is owned by one object.
// Thread-safe for concurrent access.
type Registry struct {
	mu *sync.RWMutex

	ranges []*RenderRange
	owners []uint32 // owning object slot per range, unbound when unowned
	free   []uint32

	indexedFree    []uint32
	nonIndexedFree []uint32
}

// unbound is the owner of a range no object has bound.
const unbound = scene.NoParent

var _ scene.RangeBinder = &Registry{}

// NewRegistry creates a registry with the given number of static draw slots per view.
//
// Parameters:
//   - indexedPerView: indexed draw slots per view
//   - nonIndexedPerView: non-indexed draw slots per view
//
// Returns:
//   - *Registry: the registry
func NewRegistry(indexedPerView, nonIndexedPerView int) *Registry {
	r := &Registry{
		mu:             &sync.RWMutex{},
		indexedFree:    make([]uint32, 0, indexedPerView),
		nonIndexedFree: make([]uint32, 0, nonIndexedPerView),
	}
	// Stacks pop from the end, so push in reverse to hand out low indices first.
	for i := indexedPerView - 1; i >= 0; i-- {
		r.indexedFree = append(r.indexedFree, uint32(i))
	}
	for i := nonIndexedPerView - 1; i >= 0; i-- {
		r.nonIndexedFree = append(r.nonIndexedFree, uint32(i))
	}
	return r
}

// RegisterRange assigns draw indices to the given sub-draws and stores them as a
// new render range.
//
// Parameters:
//   - indexed: the indexed sub-draws
//   - nonIndexed: the non-indexed sub-draws
//
// Returns:
//   - uint32: the render range id to set on a scene object
//   - error: ErrDrawSlotsExhausted if not enough free draw indices remain
func (r *Registry) RegisterRange(indexed []IndexedDraw, nonIndexed []NonIndexedDraw) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(indexed) > len(r.indexedFree) {
		return 0, fmt.Errorf("%d indexed draws, %d free: %w", len(indexed), len(r.indexedFree), ErrDrawSlotsExhausted)
	}
	if len(nonIndexed) > len(r.nonIndexedFree) {
		return 0, fmt.Errorf("%d non-indexed draws, %d free: %w", len(nonIndexed), len(r.nonIndexedFree), ErrDrawSlotsExhausted)
	}

	rng := &RenderRange{
		Indexed:    make([]RegisteredIndexed, len(indexed)),
		NonIndexed: make([]RegisteredNonIndexed, len(nonIndexed)),
	}
	for i, d := range indexed {
		n := len(r.indexedFree) - 1
		rng.Indexed[i] = RegisteredIndexed{IndexedDraw: d, DrawIndex: r.indexedFree[n]}
		r.indexedFree = r.indexedFree[:n]
	}
	for i, d := range nonIndexed {
		n := len(r.nonIndexedFree) - 1
		rng.NonIndexed[i] = RegisteredNonIndexed{NonIndexedDraw: d, DrawIndex: r.nonIndexedFree[n]}
		r.nonIndexedFree = r.nonIndexedFree[:n]
	}

	if n := len(r.free); n > 0 {
		id := r.free[n-1]
		r.free = r.free[:n-1]
		r.ranges[id] = rng
		r.owners[id] = unbound
		return id, nil
	}
	r.ranges = append(r.ranges, rng)
	r.owners = append(r.owners, unbound)
	return uint32(len(r.ranges) - 1), nil
}

// ReleaseRange returns a range's draw indices to the pool. A range still bound to
// an object cannot be released, so no object is left pointing at a recycled id.
//
// Parameters:
//   - id: the render range id
//
// Returns:
//   - error: ErrUnknownRange if id is not registered, scene.ErrRangeInUse if an object owns it
func (r *Registry) ReleaseRange(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(id) >= len(r.ranges) || r.ranges[id] == nil {
		return fmt.Errorf("release range %d: %w", id, ErrUnknownRange)
	}
	if owner := r.owners[id]; owner != unbound {
		return fmt.Errorf("release range %d owned by object %d: %w", id, owner, scene.ErrRangeInUse)
	}
	rng := r.ranges[id]
	for _, d := range rng.Indexed {
		r.indexedFree = append(r.indexedFree, d.DrawIndex)
	}
	for _, d := range rng.NonIndexed {
		r.nonIndexedFree = append(r.nonIndexedFree, d.DrawIndex)
	}
	r.ranges[id] = nil
	r.free = append(r.free, id)
	return nil
}

// BindRange makes slot the owner of a registered range.
//
// Parameters:
//   - id: the render range id
//   - slot: the object slot
//
// Returns:
//   - error: ErrUnknownRange, or scene.ErrRangeInUse if another object owns it
func (r *Registry) BindRange(id, slot uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(id) >= len(r.ranges) || r.ranges[id] == nil {
		return fmt.Errorf("bind range %d: %w", id, ErrUnknownRange)
	}
	if owner := r.owners[id]; owner != unbound && owner != slot {
		return fmt.Errorf("bind range %d owned by object %d: %w", id, owner, scene.ErrRangeInUse)
	}
	r.owners[id] = slot
	return nil
}

// UnbindRange clears the owner of a range if it is slot.
func (r *Registry) UnbindRange(id, slot uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) < len(r.owners) && r.owners[id] == slot {
		r.owners[id] = unbound
	}
}

// Owner returns the object slot bound to a range.
//
// Returns:
//   - uint32: the owning slot
//   - bool: false if the range is unregistered or unbound
func (r *Registry) Owner(id uint32) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.ranges) || r.ranges[id] == nil || r.owners[id] == unbound {
		return 0, false
	}
	return r.owners[id], true
}

// Range returns the registered range. The returned value must not be modified.
//
// Returns:
//   - *RenderRange: the range
//   - bool: false if id is not registered
func (r *Registry) Range(id uint32) (*RenderRange, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.ranges) || r.ranges[id] == nil {
		return nil, false
	}
	return r.ranges[id], true
}

// FreeSlots returns the number of unassigned indexed and non-indexed draw indices.
func (r *Registry) FreeSlots() (indexed, nonIndexed int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.indexedFree), len(r.nonIndexedFree)
}
