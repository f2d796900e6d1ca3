package scene

import (
	"github.com/Carmen-Shannon/oxy-cull/common"
)

// ResolveWorld composes the local transforms along the parent chain of slot:
// world = local(root) * ... * local(parent) * local(slot).
//
// Only LocalTransform and ParentSlot are read, so concurrent calls over disjoint
// slots never race with each other's writes.
//
// Parameters:
//   - objects: the scene's object array
//   - slot: the object to resolve
//
// Returns:
//   - [16]float32: the world transform
func ResolveWorld(objects []Object, slot uint32) [16]float32 {
	m := objects[slot].LocalTransform
	for p := objects[slot].ParentSlot; p != NoParent; p = objects[p].ParentSlot {
		common.Mul4(m[:], objects[p].LocalTransform[:], m[:])
	}
	return m
}

// ResolveRange resolves the world transform of every live, active object in
// [lo, hi), mirrors it into the transformation array and clears the object's Dirty
// flag. Inactive objects keep their last world transform and stay Dirty until they
// are reactivated. Their active children still resolve through them.
//
// Parameters:
//   - objects: the scene's object array
//   - transformations: the scene's transformation array
//   - lo: first slot (inclusive)
//   - hi: last slot (exclusive)
func ResolveRange(objects []Object, transformations [][16]float32, lo, hi int) {
	for i := lo; i < hi; i++ {
		obj := &objects[i]
		if !obj.live || !obj.Active {
			continue
		}
		world := ResolveWorld(objects, uint32(i))
		obj.WorldTransform = world
		transformations[obj.TransformationSlot] = world
		obj.Dirty = false
	}
}
