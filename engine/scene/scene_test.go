package scene

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnDefaults(t *testing.T) {
	s := NewScene(WithCapacity(4))
	slot, err := s.Spawn()
	require.NoError(t, err)

	obj, ok := s.Object(slot)
	require.True(t, ok)
	assert.Equal(t, common.IdentityMatrix, obj.LocalTransform)
	assert.Equal(t, uint32(NoParent), obj.ParentSlot)
	assert.Equal(t, uint32(NoRenderRange), obj.RenderRange)
	assert.Equal(t, uint32(NoSkeleton), obj.SkeletonID)
	assert.Equal(t, uint32(NoAnimation), obj.AnimationStateID)
	assert.True(t, obj.Active)
	assert.True(t, obj.Dirty)
	assert.Equal(t, 1, s.Count())
}

func TestSpawnCapacity(t *testing.T) {
	s := NewScene(WithCapacity(2))
	_, err := s.Spawn()
	require.NoError(t, err)
	_, err = s.Spawn()
	require.NoError(t, err)
	_, err = s.Spawn()
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestSpawnTransformSlotsExhausted(t *testing.T) {
	s := NewScene(WithCapacity(4), WithTransformCapacity(1))
	_, err := s.Spawn()
	require.NoError(t, err)
	_, err = s.Spawn()
	assert.ErrorIs(t, err, ErrTransformSlotsExhausted)
	// A failed spawn must not leak an object slot.
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Count())
}

func TestReleaseRecyclesSlots(t *testing.T) {
	s := NewScene(WithCapacity(2))
	a, _ := s.Spawn()
	_, _ = s.Spawn()
	objA, _ := s.Object(a)

	require.NoError(t, s.Release(a))
	_, ok := s.Object(a)
	assert.False(t, ok)
	assert.ErrorIs(t, s.Release(a), ErrInvalidSlot)

	c, err := s.Spawn()
	require.NoError(t, err)
	assert.Equal(t, a, c)
	objC, _ := s.Object(c)
	assert.Equal(t, objA.TransformationSlot, objC.TransformationSlot)
	assert.Equal(t, 2, s.Len())
}

func TestReleaseReRootsChildren(t *testing.T) {
	s := NewScene()
	parent, _ := s.Spawn()
	child, err := s.Spawn(WithParent(parent))
	require.NoError(t, err)
	assert.Equal(t, []uint32{child}, s.Children(parent))

	require.NoError(t, s.Release(parent))
	obj, _ := s.Object(child)
	assert.Equal(t, uint32(NoParent), obj.ParentSlot)

	// The recycled slot is a fresh root and cannot be reached from the old child.
	recycled, _ := s.Spawn()
	assert.Equal(t, parent, recycled)
	assert.Empty(t, s.Children(recycled))
	require.NoError(t, s.SetParent(recycled, child))
}

func TestSetParentRejectsCycles(t *testing.T) {
	s := NewScene()
	a, _ := s.Spawn()
	b, _ := s.Spawn(WithParent(a))
	c, _ := s.Spawn(WithParent(b))

	assert.ErrorIs(t, s.SetParent(a, a), ErrCycle)
	assert.ErrorIs(t, s.SetParent(a, c), ErrCycle)
	assert.ErrorIs(t, s.SetParent(a, 99), ErrInvalidSlot)

	// Re-parenting moves the edge instead of duplicating it.
	require.NoError(t, s.SetParent(c, a))
	assert.ElementsMatch(t, []uint32{b, c}, s.Children(a))
	assert.Empty(t, s.Children(b))

	require.NoError(t, s.ClearParent(c))
	assert.Equal(t, []uint32{b}, s.Children(a))
}

func TestSpawnInvalidParent(t *testing.T) {
	s := NewScene()
	_, err := s.Spawn(WithParent(7))
	assert.ErrorIs(t, err, ErrInvalidSlot)
	assert.Equal(t, 0, s.Count())
}

func TestMutationsMarkDirty(t *testing.T) {
	s := NewScene()
	slot, _ := s.Spawn(WithSceneMask(1))
	s.Frame(func(fd FrameData) {
		ResolveRange(fd.Objects, fd.Transformations, 0, len(fd.Objects))
	})
	obj, _ := s.Object(slot)
	require.False(t, obj.Dirty)

	require.NoError(t, s.SetSceneMask(slot, 3))
	obj, _ = s.Object(slot)
	assert.True(t, obj.Dirty)
	assert.Equal(t, uint32(3), obj.SceneMask)

	assert.ErrorIs(t, s.SetActive(42, false), ErrInvalidSlot)
}

func TestApplyTransformPostMultiplies(t *testing.T) {
	s := NewScene()
	slot, _ := s.Spawn(WithPosition(1, 0, 0))
	require.NoError(t, s.ApplyTransform(slot, common.Translation(0, 2, 0)))
	obj, _ := s.Object(slot)
	assert.Equal(t, [3]float32{1, 2, 0}, common.MatrixOrigin(obj.LocalTransform))
}

func TestSetRangeAndAnimation(t *testing.T) {
	s := NewScene()
	slot, _ := s.Spawn(WithPosition(0, 3, 0))
	require.NoError(t, s.SetRenderRange(slot, 7))
	require.NoError(t, s.SetAnimation(slot, 2, 5))

	obj, _ := s.Object(slot)
	assert.Equal(t, uint32(7), obj.RenderRange)
	assert.Equal(t, uint32(2), obj.SkeletonID)
	assert.Equal(t, uint32(5), obj.AnimationStateID)

	s.Frame(func(fd FrameData) {
		ResolveRange(fd.Objects, fd.Transformations, 0, len(fd.Objects))
	})
	assert.Equal(t, [3]float32{0, 3, 0}, common.MatrixOrigin(s.Transformation(obj.TransformationSlot)))
	assert.Equal(t, common.IdentityMatrix, s.Transformation(1<<20))
}
