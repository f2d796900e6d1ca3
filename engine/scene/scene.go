package scene

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-cull/common"
)

const (
	// NoParent is the ParentSlot value of a root object.
	NoParent = math.MaxUint32
	// NoRenderRange marks an object that emits no draws.
	NoRenderRange = math.MaxUint32
	// NoSkeleton is the SkeletonID of an object without skeletal animation.
	NoSkeleton = math.MaxUint32
	// NoAnimation is the AnimationStateID of an object without animation state.
	NoAnimation = math.MaxUint32

	// DefaultCapacity is the number of object slots a Scene reserves when no
	// capacity option is given.
	DefaultCapacity = 4096
)

var (
	ErrCapacityExceeded        = errors.New("scene: object capacity exceeded")
	ErrTransformSlotsExhausted = errors.New("scene: transformation slots exhausted")
	ErrInvalidSlot             = errors.New("scene: invalid object slot")
	ErrCycle                   = errors.New("scene: parent edge would create a cycle")
	ErrRangeInUse              = errors.New("scene: render range is bound to another object")
)

// RangeBinder records which object owns each render range. A range emits into
// fixed command cells, so it is bound to at most one object at a time.
type RangeBinder interface {
	// BindRange makes slot the owner of rangeID.
	//
	// Returns:
	//   - error: ErrRangeInUse if another slot owns it, or a binder-specific error
	BindRange(rangeID, slot uint32) error

	// UnbindRange clears the binding if slot owns rangeID.
	UnbindRange(rangeID, slot uint32)
}

// rangeOwners is the binder a Scene uses when none is supplied.
type rangeOwners map[uint32]uint32

func (r rangeOwners) BindRange(rangeID, slot uint32) error {
	if owner, ok := r[rangeID]; ok && owner != slot {
		return fmt.Errorf("range %d owned by object %d: %w", rangeID, owner, ErrRangeInUse)
	}
	r[rangeID] = slot
	return nil
}

func (r rangeOwners) UnbindRange(rangeID, slot uint32) {
	if owner, ok := r[rangeID]; ok && owner == slot {
		delete(r, rangeID)
	}
}

// Object is one spawned entity. The Scene owns every Object; stages receive the
// backing slice through Frame.
type Object struct {
	// LocalTransform is owned by application logic.
	LocalTransform [16]float32
	// WorldTransform is written only by the transform resolver.
	WorldTransform [16]float32

	ParentSlot         uint32
	SceneMask          uint32
	TransformationSlot uint32
	RenderRange        uint32
	SkeletonID         uint32
	AnimationStateID   uint32

	Active bool
	// Dirty is set by every mutation and cleared when the object is resolved.
	Dirty bool

	live bool
}

// Live reports whether the slot holds a spawned (not released) object.
func (o *Object) Live() bool {
	return o.live
}

// FrameData exposes the Scene's backing arrays to the per-frame stages. It is only
// valid inside the callback passed to Scene.Frame.
type FrameData struct {
	// Objects is indexed by object slot. Its length is the index space of a frame.
	Objects []Object
	// Transformations is indexed by transformation slot.
	Transformations [][16]float32
}

// Scene is an arena of Objects linked by parent slots. Every mutation that adds a
// parent edge is checked for cycles, so the parent chain of every object always
// terminates at a root.
// Thread-safe for concurrent access.
type Scene interface {
	// Spawn creates an object in a free slot.
	//
	// Parameters:
	//   - options: functional options describing the object
	//
	// Returns:
	//   - uint32: the object slot
	//   - error: ErrCapacityExceeded, ErrTransformSlotsExhausted, ErrRangeInUse, or a parent error
	Spawn(options ...ObjectOption) (uint32, error)

	// Release deactivates the object, frees its slots, detaches it from its parent
	// and re-roots all of its children.
	//
	// Parameters:
	//   - slot: the object slot
	//
	// Returns:
	//   - error: ErrInvalidSlot if the slot is not live
	Release(slot uint32) error

	// SetLocalTransform replaces the object's local transform.
	SetLocalTransform(slot uint32, m [16]float32) error

	// ApplyTransform post-multiplies the object's local transform: local = local * m.
	ApplyTransform(slot uint32, m [16]float32) error

	// SetParent links child under parent.
	//
	// Parameters:
	//   - child: the object slot to re-parent
	//   - parent: the new parent slot, or NoParent to make child a root
	//
	// Returns:
	//   - error: ErrInvalidSlot for unknown slots, ErrCycle if child is parent or one of its ancestors
	SetParent(child, parent uint32) error

	// ClearParent makes child a root object.
	ClearParent(child uint32) error

	// Children returns the slots whose parent is the given slot.
	Children(slot uint32) []uint32

	// SetActive toggles whether later stages consider the object.
	SetActive(slot uint32, active bool) error

	// SetSceneMask sets the bin routing mask.
	SetSceneMask(slot uint32, mask uint32) error

	// SetRenderRange binds the registered render range the object emits and unbinds
	// its previous one. NoRenderRange clears the binding.
	//
	// Returns:
	//   - error: ErrInvalidSlot, or ErrRangeInUse if another object owns rangeID
	SetRenderRange(slot uint32, rangeID uint32) error

	// SetAnimation sets the opaque skeleton and animation-state identifiers.
	SetAnimation(slot uint32, skeletonID, animationStateID uint32) error

	// Object returns a copy of the object in slot.
	//
	// Returns:
	//   - Object: the object copy
	//   - bool: false if the slot is not live
	Object(slot uint32) (Object, bool)

	// Transformation returns the resolved world matrix stored at a transformation slot.
	Transformation(transformationSlot uint32) [16]float32

	// Len returns the size of the slot index space (highest used slot + 1).
	Len() int

	// Count returns the number of live objects.
	Count() int

	// Capacity returns the maximum number of object slots.
	Capacity() int

	// Frame runs fn with exclusive access to the backing arrays. No mutation can
	// interleave with fn.
	Frame(fn func(FrameData))
}

type scene struct {
	mu *sync.RWMutex

	capacity          int
	transformCapacity int

	objects         []Object
	children        map[uint32][]uint32
	freeSlots       []uint32
	transformations [][16]float32
	freeTransforms  []uint32
	nextTransform   uint32
	count           int

	ranges RangeBinder
}

var _ Scene = &scene{}

// NewScene creates an empty Scene.
//
// Parameters:
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:       &sync.RWMutex{},
		capacity: DefaultCapacity,
		children: make(map[uint32][]uint32),
		ranges:   rangeOwners{},
	}
	for _, option := range options {
		option(s)
	}
	if s.transformCapacity <= 0 {
		s.transformCapacity = s.capacity
	}
	s.objects = make([]Object, 0, s.capacity)
	s.transformations = make([][16]float32, s.transformCapacity)
	return s
}

func (s *scene) Spawn(options ...ObjectOption) (uint32, error) {
	info := objectInfo{
		local:     common.IdentityMatrix,
		parent:    NoParent,
		rangeID:   NoRenderRange,
		skeleton:  NoSkeleton,
		animation: NoAnimation,
		active:    true,
		scale:     [3]float32{1, 1, 1},
	}
	for _, option := range options {
		option(&info)
	}
	if info.hasTRS {
		common.BuildModelMatrix(info.local[:],
			info.position[0], info.position[1], info.position[2],
			info.rotation[0], info.rotation[1], info.rotation[2],
			info.scale[0], info.scale[1], info.scale[2],
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if info.parent != NoParent && !s.isLive(info.parent) {
		return 0, fmt.Errorf("spawn with parent %d: %w", info.parent, ErrInvalidSlot)
	}

	var slot uint32
	if n := len(s.freeSlots); n > 0 {
		slot = s.freeSlots[n-1]
	} else if len(s.objects) < s.capacity {
		slot = uint32(len(s.objects))
	} else {
		return 0, ErrCapacityExceeded
	}

	var tslot uint32
	if n := len(s.freeTransforms); n > 0 {
		tslot = s.freeTransforms[n-1]
		s.freeTransforms = s.freeTransforms[:n-1]
	} else if int(s.nextTransform) < s.transformCapacity {
		tslot = s.nextTransform
		s.nextTransform++
	} else {
		return 0, ErrTransformSlotsExhausted
	}

	if info.rangeID != NoRenderRange {
		if err := s.ranges.BindRange(info.rangeID, slot); err != nil {
			s.freeTransforms = append(s.freeTransforms, tslot)
			return 0, fmt.Errorf("spawn: %w", err)
		}
	}

	if n := len(s.freeSlots); n > 0 && s.freeSlots[n-1] == slot {
		s.freeSlots = s.freeSlots[:n-1]
	} else {
		s.objects = append(s.objects, Object{})
	}

	s.objects[slot] = Object{
		LocalTransform:     info.local,
		WorldTransform:     info.local,
		ParentSlot:         NoParent,
		SceneMask:          info.mask,
		TransformationSlot: tslot,
		RenderRange:        info.rangeID,
		SkeletonID:         info.skeleton,
		AnimationStateID:   info.animation,
		Active:             info.active,
		Dirty:              true,
		live:               true,
	}
	s.transformations[tslot] = info.local
	s.count++

	// A fresh slot has no children, so linking it can never close a cycle.
	if info.parent != NoParent {
		s.link(slot, info.parent)
	}

	return slot, nil
}

func (s *scene) Release(slot uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isLive(slot) {
		return fmt.Errorf("release %d: %w", slot, ErrInvalidSlot)
	}

	obj := &s.objects[slot]
	if obj.ParentSlot != NoParent {
		s.unlink(slot)
	}
	for _, child := range s.children[slot] {
		c := &s.objects[child]
		c.ParentSlot = NoParent
		c.Dirty = true
	}
	if n := len(s.children[slot]); n > 0 {
		common.Logger().Debug("scene: released object re-rooted children", "slot", slot, "children", n)
	}
	delete(s.children, slot)

	if obj.RenderRange != NoRenderRange {
		s.ranges.UnbindRange(obj.RenderRange, slot)
	}
	s.freeTransforms = append(s.freeTransforms, obj.TransformationSlot)
	*obj = Object{
		ParentSlot:       NoParent,
		RenderRange:      NoRenderRange,
		SkeletonID:       NoSkeleton,
		AnimationStateID: NoAnimation,
	}
	s.freeSlots = append(s.freeSlots, slot)
	s.count--
	return nil
}

func (s *scene) SetLocalTransform(slot uint32, m [16]float32) error {
	return s.mutate(slot, func(o *Object) {
		o.LocalTransform = m
	})
}

func (s *scene) ApplyTransform(slot uint32, m [16]float32) error {
	return s.mutate(slot, func(o *Object) {
		common.Mul4(o.LocalTransform[:], o.LocalTransform[:], m[:])
	})
}

func (s *scene) SetParent(child, parent uint32) error {
	if parent == NoParent {
		return s.ClearParent(child)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isLive(child) || !s.isLive(parent) {
		return fmt.Errorf("set parent of %d to %d: %w", child, parent, ErrInvalidSlot)
	}
	for p := parent; p != NoParent; p = s.objects[p].ParentSlot {
		if p == child {
			common.Logger().Debug("scene: rejected cyclic parent edge", "child", child, "parent", parent)
			return fmt.Errorf("set parent of %d to %d: %w", child, parent, ErrCycle)
		}
	}

	if s.objects[child].ParentSlot != NoParent {
		s.unlink(child)
	}
	s.link(child, parent)
	return nil
}

func (s *scene) ClearParent(child uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isLive(child) {
		return fmt.Errorf("clear parent of %d: %w", child, ErrInvalidSlot)
	}
	if s.objects[child].ParentSlot != NoParent {
		s.unlink(child)
	}
	return nil
}

func (s *scene) Children(slot uint32) []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint32, len(s.children[slot]))
	copy(out, s.children[slot])
	return out
}

func (s *scene) SetActive(slot uint32, active bool) error {
	return s.mutate(slot, func(o *Object) {
		o.Active = active
	})
}

func (s *scene) SetSceneMask(slot uint32, mask uint32) error {
	return s.mutate(slot, func(o *Object) {
		o.SceneMask = mask
	})
}

func (s *scene) SetRenderRange(slot uint32, rangeID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isLive(slot) {
		return fmt.Errorf("object %d: %w", slot, ErrInvalidSlot)
	}
	o := &s.objects[slot]
	if o.RenderRange == rangeID {
		return nil
	}
	if rangeID != NoRenderRange {
		if err := s.ranges.BindRange(rangeID, slot); err != nil {
			return fmt.Errorf("object %d: %w", slot, err)
		}
	}
	if o.RenderRange != NoRenderRange {
		s.ranges.UnbindRange(o.RenderRange, slot)
	}
	o.RenderRange = rangeID
	o.Dirty = true
	return nil
}

func (s *scene) SetAnimation(slot uint32, skeletonID, animationStateID uint32) error {
	return s.mutate(slot, func(o *Object) {
		o.SkeletonID = skeletonID
		o.AnimationStateID = animationStateID
	})
}

func (s *scene) Object(slot uint32) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isLive(slot) {
		return Object{}, false
	}
	return s.objects[slot], true
}

func (s *scene) Transformation(transformationSlot uint32) [16]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(transformationSlot) >= len(s.transformations) {
		return common.IdentityMatrix
	}
	return s.transformations[transformationSlot]
}

func (s *scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *scene) Capacity() int {
	return s.capacity
}

func (s *scene) Frame(fn func(FrameData)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(FrameData{
		Objects:         s.objects,
		Transformations: s.transformations,
	})
}

// mutate applies fn to a live object under the write lock and marks it dirty.
func (s *scene) mutate(slot uint32, fn func(o *Object)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isLive(slot) {
		return fmt.Errorf("object %d: %w", slot, ErrInvalidSlot)
	}
	o := &s.objects[slot]
	fn(o)
	o.Dirty = true
	return nil
}

// isLive reports whether slot is a spawned object. Caller must hold s.mu.
func (s *scene) isLive(slot uint32) bool {
	return int(slot) < len(s.objects) && s.objects[slot].live
}

// link records the child -> parent edge. Caller must hold the write lock and have
// already checked for cycles.
func (s *scene) link(child, parent uint32) {
	s.objects[child].ParentSlot = parent
	s.objects[child].Dirty = true
	s.children[parent] = append(s.children[parent], child)
}

// unlink removes child from its current parent's child list. Caller must hold the write lock.
func (s *scene) unlink(child uint32) {
	parent := s.objects[child].ParentSlot
	siblings := s.children[parent]
	for i, c := range siblings {
		if c == child {
			siblings = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(siblings) == 0 {
		delete(s.children, parent)
	} else {
		s.children[parent] = siblings
	}
	s.objects[child].ParentSlot = NoParent
	s.objects[child].Dirty = true
}
