package scene

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithCapacity sets the maximum number of object slots.
//
// Parameters:
//   - n: the slot capacity (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCapacity(n int) SceneBuilderOption {
	return func(s *scene) {
		if n < 1 {
			n = 1
		}
		s.capacity = n
	}
}

// WithTransformCapacity sets the number of transformation slots. Defaults to the
// object capacity.
//
// Parameters:
//   - n: the transformation slot capacity
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithTransformCapacity(n int) SceneBuilderOption {
	return func(s *scene) {
		s.transformCapacity = n
	}
}

// WithRangeBinder sets the binder that tracks render range ownership, typically
// the draw registry the ranges were registered with. Without it the Scene keeps
// its own ownership table.
//
// Parameters:
//   - b: the binder
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithRangeBinder(b RangeBinder) SceneBuilderOption {
	return func(s *scene) {
		if b != nil {
			s.ranges = b
		}
	}
}

// objectInfo collects ObjectOption values before a slot is allocated.
type objectInfo struct {
	local     [16]float32
	hasTRS    bool
	position  [3]float32
	rotation  [3]float32
	scale     [3]float32
	mask      uint32
	parent    uint32
	rangeID   uint32
	skeleton  uint32
	animation uint32
	active    bool
}

// ObjectOption is a functional option describing an object passed to Scene.Spawn.
type ObjectOption func(o *objectInfo)

// WithLocalTransform sets the initial local transform. It is overridden by
// WithPosition, WithRotation and WithScale.
//
// Parameters:
//   - m: column-major local-to-parent matrix
//
// Returns:
//   - ObjectOption: option function to apply
func WithLocalTransform(m [16]float32) ObjectOption {
	return func(o *objectInfo) {
		o.local = m
	}
}

// WithPosition sets the initial translation relative to the parent.
//
// Parameters:
//   - x: the x position
//   - y: the y position
//   - z: the z position
//
// Returns:
//   - ObjectOption: option function to apply
func WithPosition(x, y, z float32) ObjectOption {
	return func(o *objectInfo) {
		o.hasTRS = true
		o.position = [3]float32{x, y, z}
	}
}

// WithRotation sets the initial Euler rotation in radians.
//
// Returns:
//   - ObjectOption: option function to apply
func WithRotation(x, y, z float32) ObjectOption {
	return func(o *objectInfo) {
		o.hasTRS = true
		o.rotation = [3]float32{x, y, z}
	}
}

// WithScale sets the initial scale.
//
// Returns:
//   - ObjectOption: option function to apply
func WithScale(x, y, z float32) ObjectOption {
	return func(o *objectInfo) {
		o.hasTRS = true
		o.scale = [3]float32{x, y, z}
	}
}

// WithSceneMask sets the bin routing mask. An object with a zero mask lands in no bin.
//
// Parameters:
//   - mask: bitmask matched against each bin's mask
//
// Returns:
//   - ObjectOption: option function to apply
func WithSceneMask(mask uint32) ObjectOption {
	return func(o *objectInfo) {
		o.mask = mask
	}
}

// WithRenderRange sets the render range the object emits draws through.
//
// Returns:
//   - ObjectOption: option function to apply
func WithRenderRange(rangeID uint32) ObjectOption {
	return func(o *objectInfo) {
		o.rangeID = rangeID
	}
}

// WithParent links the new object under an existing one.
//
// Returns:
//   - ObjectOption: option function to apply
func WithParent(parent uint32) ObjectOption {
	return func(o *objectInfo) {
		o.parent = parent
	}
}

// WithActive sets whether the object takes part in visibility. Objects are active by default.
//
// Returns:
//   - ObjectOption: option function to apply
func WithActive(active bool) ObjectOption {
	return func(o *objectInfo) {
		o.active = active
	}
}

// WithAnimation sets the opaque skeleton and animation-state identifiers copied
// into per-instance data.
//
// Returns:
//   - ObjectOption: option function to apply
func WithAnimation(skeletonID, animationStateID uint32) ObjectOption {
	return func(o *objectInfo) {
		o.skeleton = skeletonID
		o.animation = animationStateID
	}
}
