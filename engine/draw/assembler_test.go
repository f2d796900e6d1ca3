package draw

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull"
	"github.com/Carmen-Shannon/oxy-cull/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	scene scene.Scene
	cull  cull.Culler
	asm   Assembler
	views *camera.ActiveViews
}

func newFixture(t *testing.T, layout Layout) *fixture {
	t.Helper()
	table, err := cull.NewBinTable(cull.DefaultBins()...)
	require.NoError(t, err)

	views := &camera.ActiveViews{}
	for v := 0; v < layout.NumViews; v++ {
		require.NoError(t, views.Add(camera.View{CameraID: uint32(10 + v), Forward: [3]float32{0, 0, -1}}))
	}
	asm := NewAssembler(WithLayout(layout))
	return &fixture{
		scene: scene.NewScene(scene.WithRangeBinder(asm.Registry())),
		cull:  cull.NewCuller(table, layout.NumViews, 64),
		asm:   asm,
		views: views,
	}
}

// spawn registers a render range and spawns a visible object using it.
func (f *fixture) spawn(t *testing.T, mask uint32, indexed, nonIndexed int) uint32 {
	t.Helper()
	ind := make([]IndexedDraw, indexed)
	for i := range ind {
		ind[i] = IndexedDraw{
			Template: IndexedTemplate{IndexCount: 36, FirstIndex: uint32(i * 36), BaseVertex: -2},
			Metadata: DrawMetadata{MeshID: 7, MaterialID: uint32(i), JointBufferID: NoJointBuffer},
		}
	}
	non := make([]NonIndexedDraw, nonIndexed)
	for i := range non {
		non[i] = NonIndexedDraw{
			Template: NonIndexedTemplate{VertexCount: 3, FirstVertex: uint32(i * 3)},
			Metadata: DrawMetadata{MeshID: 8, MaterialID: 100 + uint32(i), JointBufferID: NoJointBuffer},
		}
	}
	rangeID, err := f.asm.Registry().RegisterRange(ind, non)
	require.NoError(t, err)
	slot, err := f.scene.Spawn(
		scene.WithPosition(0, 0, -5),
		scene.WithSceneMask(mask),
		scene.WithRenderRange(rangeID),
		scene.WithAnimation(4, 5),
	)
	require.NoError(t, err)
	return slot
}

// frame runs resolve, cull, clear and build serially.
func (f *fixture) frame(t *testing.T) {
	t.Helper()
	f.scene.Frame(func(fd scene.FrameData) {
		scene.ResolveRange(fd.Objects, fd.Transformations, 0, len(fd.Objects))
		f.cull.Reset()
		f.cull.CullRange(f.views, fd.Objects, 0, len(fd.Objects))
		require.NoError(t, f.asm.Run(ModeClear, f.cull, fd.Objects, f.views))
		require.NoError(t, f.asm.Run(ModeBuild, f.cull, fd.Objects, f.views))
	})
}

func liveInstances(a Assembler, view int) int {
	n := 0
	for _, c := range a.IndexedCommands(view) {
		n += int(c.InstanceCount)
	}
	for _, c := range a.NonIndexedCommands(view) {
		n += int(c.InstanceCount)
	}
	return n
}

func TestBuildWithoutClear(t *testing.T) {
	f := newFixture(t, Layout{NumViews: 1, IndexedPerView: 4, NonIndexedPerView: 4, DrawListCapacity: 8})
	assert.ErrorIs(t, f.asm.Begin(ModeBuild), ErrBuildWithoutClear)

	require.NoError(t, f.asm.Begin(ModeClear))
	assert.ErrorIs(t, f.asm.Begin(ModeClear), ErrPhaseInProgress)
	assert.ErrorIs(t, f.asm.End(ModeBuild), ErrPhaseMismatch)
	require.NoError(t, f.asm.End(ModeClear))

	require.NoError(t, f.asm.Begin(ModeBuild))
	require.NoError(t, f.asm.End(ModeBuild))
	// A completed build needs a fresh clear before the next one.
	assert.ErrorIs(t, f.asm.Begin(ModeBuild), ErrBuildWithoutClear)

	assert.ErrorIs(t, f.asm.Begin(Mode(7)), ErrInvalidMode)
}

func TestClearIdempotent(t *testing.T) {
	f := newFixture(t, Layout{NumViews: 2, IndexedPerView: 8, NonIndexedPerView: 4, DrawListCapacity: 16})
	for i := 0; i < 3; i++ {
		f.spawn(t, cull.MaskOpaque, 2, 1)
	}
	f.frame(t)
	require.Equal(t, 9, liveInstances(f.asm, 0))

	require.NoError(t, f.asm.Run(ModeClear, nil, nil, nil))
	once := append([]DrawIndexedIndirect(nil), f.asm.IndexedCommands(0)...)
	onceNon := append([]DrawIndirect(nil), f.asm.NonIndexedCommands(1)...)

	require.NoError(t, f.asm.Run(ModeClear, nil, nil, nil))
	assert.Equal(t, once, f.asm.IndexedCommands(0))
	assert.Equal(t, onceNon, f.asm.NonIndexedCommands(1))
	for v := 0; v < 2; v++ {
		assert.Equal(t, 0, liveInstances(f.asm, v))
		assert.Equal(t, uint32(0), f.asm.DrawListCount(v))
		assert.Empty(t, f.asm.DrawList(v))
	}
}

func TestConservation(t *testing.T) {
	f := newFixture(t, Layout{NumViews: 2, IndexedPerView: 32, NonIndexedPerView: 16, DrawListCapacity: 128})
	f.spawn(t, cull.MaskOpaque, 2, 1)
	f.spawn(t, cull.MaskTransparent, 1, 0)
	f.spawn(t, cull.MaskShadow, 0, 2)
	f.spawn(t, cull.MaskOpaque, 0, 0)
	f.frame(t)

	for v := 0; v < 2; v++ {
		// 3 + 1 + 2 sub-draws, each object in exactly one bin.
		assert.Equal(t, 6, liveInstances(f.asm, v))
		assert.Equal(t, uint32(6), f.asm.Emitted(v))
		assert.Len(t, f.asm.DrawList(v), 6)
	}
}

func TestFirstInstanceLayout(t *testing.T) {
	layout := Layout{NumViews: 2, IndexedPerView: 4, NonIndexedPerView: 2, DrawListCapacity: 8}
	f := newFixture(t, layout)
	obj := f.spawn(t, cull.MaskOpaque, 1, 1)
	f.frame(t)

	stride := uint32(layout.Stride())
	for v := 0; v < 2; v++ {
		cmd := f.asm.IndexedCommands(v)[0]
		assert.Equal(t, uint32(1), cmd.InstanceCount)
		assert.Equal(t, uint32(36), cmd.IndexCount)
		assert.Equal(t, int32(-2), cmd.BaseVertex)
		assert.Equal(t, uint32(v)*stride, cmd.FirstInstance)

		non := f.asm.NonIndexedCommands(v)[0]
		assert.Equal(t, uint32(1), non.InstanceCount)
		assert.Equal(t, uint32(3), non.VertexCount)
		assert.Equal(t, uint32(v)*stride+4, non.FirstInstance)

		inst := f.asm.Instances()[cmd.FirstInstance]
		assert.Equal(t, uint32(10+v), inst.CameraID)
		assert.Equal(t, uint32(4), inst.SkeletonID)
		assert.Equal(t, uint32(5), inst.AnimationStateID)
		assert.Equal(t, uint32(NoJointBuffer), inst.JointBufferID)
		assert.Equal(t, float32(-5), inst.Transform[14])

		o, _ := f.scene.Object(obj)
		assert.Equal(t, o.TransformationSlot, inst.TransformationSlot)
		assert.Equal(t, uint32(100), f.asm.Instances()[non.FirstInstance].MaterialID)
	}
}

func TestMultiBinObjectWritesOnce(t *testing.T) {
	f := newFixture(t, Layout{NumViews: 1, IndexedPerView: 4, NonIndexedPerView: 0, DrawListCapacity: 8})
	f.spawn(t, cull.MaskOpaque|cull.MaskShadow, 1, 0)
	f.frame(t)

	assert.Equal(t, 1, liveInstances(f.asm, 0))
	assert.Equal(t, uint32(2), f.asm.Emitted(0), "one emission per bin occurrence")
	assert.Len(t, f.asm.DrawList(0), 2)
}

func TestStaleCommandsCleared(t *testing.T) {
	f := newFixture(t, Layout{NumViews: 1, IndexedPerView: 8, NonIndexedPerView: 0, DrawListCapacity: 8})
	a := f.spawn(t, cull.MaskOpaque, 1, 0)
	f.spawn(t, cull.MaskOpaque, 1, 0)
	f.frame(t)
	require.Equal(t, 2, liveInstances(f.asm, 0))

	require.NoError(t, f.scene.SetActive(a, false))
	f.frame(t)
	assert.Equal(t, 1, liveInstances(f.asm, 0))
}

func TestDrawListOverflow(t *testing.T) {
	f := newFixture(t, Layout{NumViews: 1, IndexedPerView: 8, NonIndexedPerView: 0, DrawListCapacity: 2})
	for i := 0; i < 5; i++ {
		f.spawn(t, cull.MaskOpaque, 1, 0)
	}
	f.frame(t)

	assert.Equal(t, 5, liveInstances(f.asm, 0))
	assert.Equal(t, uint32(5), f.asm.DrawListCount(0))
	assert.Len(t, f.asm.DrawList(0), 2)
	assert.Equal(t, uint32(3), f.asm.DrawListDropped(0))
}

func TestObjectWithoutRangeEmitsNothing(t *testing.T) {
	f := newFixture(t, Layout{NumViews: 1, IndexedPerView: 4, NonIndexedPerView: 4, DrawListCapacity: 8})
	_, err := f.scene.Spawn(scene.WithPosition(0, 0, -5), scene.WithSceneMask(cull.MaskOpaque))
	require.NoError(t, err)
	f.frame(t)

	assert.Equal(t, 1, f.cull.Recorded(0, 0))
	assert.Equal(t, uint32(0), f.asm.Emitted(0))
}

func TestRangeBoundToOneObject(t *testing.T) {
	f := newFixture(t, Layout{NumViews: 1, IndexedPerView: 8, NonIndexedPerView: 0, DrawListCapacity: 16})
	reg := f.asm.Registry()
	shared, err := reg.RegisterRange([]IndexedDraw{{Template: IndexedTemplate{IndexCount: 3}}}, nil)
	require.NoError(t, err)

	first, err := f.scene.Spawn(scene.WithPosition(0, 0, -5), scene.WithSceneMask(cull.MaskOpaque), scene.WithRenderRange(shared))
	require.NoError(t, err)
	owner, ok := reg.Owner(shared)
	require.True(t, ok)
	assert.Equal(t, first, owner)

	_, err = f.scene.Spawn(scene.WithPosition(1, 0, -5), scene.WithSceneMask(cull.MaskOpaque), scene.WithRenderRange(shared))
	assert.ErrorIs(t, err, scene.ErrRangeInUse)
	assert.Equal(t, 1, f.scene.Count(), "a rejected spawn leaves no object behind")

	other := f.spawn(t, cull.MaskOpaque, 1, 0)
	assert.ErrorIs(t, f.scene.SetRenderRange(other, shared), scene.ErrRangeInUse)
	assert.ErrorIs(t, reg.ReleaseRange(shared), scene.ErrRangeInUse)

	require.NoError(t, f.scene.Release(first))
	_, ok = reg.Owner(shared)
	assert.False(t, ok)
	require.NoError(t, f.scene.SetRenderRange(other, shared))
	require.NoError(t, f.scene.SetRenderRange(other, scene.NoRenderRange))
	require.NoError(t, reg.ReleaseRange(shared))
	assert.ErrorIs(t, reg.BindRange(shared, other), ErrUnknownRange)
}

func TestEveryVisibleObjectGetsAnInstance(t *testing.T) {
	f := newFixture(t, Layout{NumViews: 1, IndexedPerView: 8, NonIndexedPerView: 0, DrawListCapacity: 16})
	for i := 0; i < 5; i++ {
		f.spawn(t, cull.MaskOpaque, 1, 0)
	}
	f.frame(t)

	assert.Equal(t, 5, f.cull.Recorded(0, 0))
	assert.Equal(t, uint32(5), f.asm.Emitted(0))
	assert.Equal(t, 5, liveInstances(f.asm, 0))
}
