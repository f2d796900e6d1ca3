package cull

import (
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forwardView looks down -Z from the origin.
func forwardView(t *testing.T) *camera.ActiveViews {
	t.Helper()
	views, err := camera.NewActiveViews(camera.View{Forward: [3]float32{0, 0, -1}})
	require.NoError(t, err)
	return views
}

// cullScene resolves the scene and runs one full visibility pass.
func cullScene(s scene.Scene, c Culler, views *camera.ActiveViews) {
	s.Frame(func(fd scene.FrameData) {
		scene.ResolveRange(fd.Objects, fd.Transformations, 0, len(fd.Objects))
		c.Reset()
		c.CullRange(views, fd.Objects, 0, len(fd.Objects))
	})
}

func TestBinTableValidation(t *testing.T) {
	_, err := NewBinTable()
	assert.ErrorIs(t, err, ErrNoBins)

	_, err = NewBinTable(Bin{ID: 1}, Bin{ID: 1})
	assert.ErrorIs(t, err, ErrDuplicateBin)

	table, err := NewBinTable(DefaultBins()...)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())
	i, ok := table.Index(2)
	assert.True(t, ok)
	assert.Equal(t, "shadow", table.At(i).Name)
}

func TestMaskRouting(t *testing.T) {
	table, err := NewBinTable(Bin{ID: 0, Mask: 0b001}, Bin{ID: 1, Mask: 0b100})
	require.NoError(t, err)
	c := NewCuller(table, 1, 4)

	s := scene.NewScene()
	_, _ = s.Spawn(scene.WithPosition(0, 0, -5), scene.WithSceneMask(0b011))
	cullScene(s, c, forwardView(t))

	assert.Equal(t, 1, c.Recorded(0, 0))
	assert.Equal(t, 0, c.Recorded(0, 1))
	assert.Equal(t, uint32(0), c.Record(0, 0, 0).BinID)
}

func TestOverflowDrop(t *testing.T) {
	table, err := NewBinTable(Bin{ID: 0, Mask: 1})
	require.NoError(t, err)
	c := NewCuller(table, 1, 2)

	s := scene.NewScene()
	for i := 0; i < 5; i++ {
		_, err := s.Spawn(scene.WithPosition(0, 0, -float32(i+1)), scene.WithSceneMask(1))
		require.NoError(t, err)
	}
	cullScene(s, c, forwardView(t))

	assert.Equal(t, uint32(5), c.Count(0, 0))
	assert.Equal(t, 2, c.Recorded(0, 0))
	assert.Equal(t, uint32(3), c.Dropped(0, 0))
	assert.Equal(t, uint64(3), c.TotalDropped())

	c.Reset()
	assert.Equal(t, uint32(0), c.Count(0, 0))
}

func TestHalfSpaceIsStrict(t *testing.T) {
	table, _ := NewBinTable(DefaultBins()...)
	c := NewCuller(table, 1, 8)
	views := forwardView(t)

	assert.True(t, c.Visible(views.At(0), [3]float32{100, 0, -1}), "coarse test ignores side planes")
	assert.False(t, c.Visible(views.At(0), [3]float32{5, 0, 0}), "on the camera plane")
	assert.False(t, c.Visible(views.At(0), [3]float32{0, 0, 1}), "behind")
}

func TestFrustumCullingOption(t *testing.T) {
	table, _ := NewBinTable(DefaultBins()...)
	ctrl := camera.NewOrbitController(camera.WithRadius(10), camera.WithElevation(0))
	cam := camera.NewCamera(camera.WithController(ctrl), camera.WithClipPlanes(0.1, 100))
	v := cam.View(0)

	coarse := NewCuller(table, 1, 8)
	fine := NewCuller(table, 1, 8, WithFrustumCulling(true))

	far := [3]float32{500, 0, 0}
	assert.True(t, coarse.Visible(&v, far))
	assert.False(t, fine.Visible(&v, far))
	assert.True(t, fine.Visible(&v, [3]float32{0, 0, 0}))

	// Views without a frustum fall back to the half-space test.
	bare := camera.View{Forward: [3]float32{0, 0, -1}}
	assert.True(t, fine.Visible(&bare, [3]float32{500, 0, -1}))
}

func TestInactiveAndMaskless(t *testing.T) {
	table, _ := NewBinTable(DefaultBins()...)
	c := NewCuller(table, 1, 8)

	s := scene.NewScene()
	_, _ = s.Spawn(scene.WithPosition(0, 0, -5), scene.WithSceneMask(MaskOpaque), scene.WithActive(false))
	_, _ = s.Spawn(scene.WithPosition(0, 0, -5))
	dead, _ := s.Spawn(scene.WithPosition(0, 0, -5), scene.WithSceneMask(MaskOpaque))
	require.NoError(t, s.Release(dead))
	cullScene(s, c, forwardView(t))

	for b := 0; b < table.Len(); b++ {
		assert.Equal(t, uint32(0), c.Count(0, b))
	}
}

func TestConcurrentAppendDisjoint(t *testing.T) {
	table, _ := NewBinTable(DefaultBins()...)
	const n = 2000
	c := NewCuller(table, 2, n)

	s := scene.NewScene(scene.WithCapacity(n))
	for i := 0; i < n; i++ {
		_, err := s.Spawn(scene.WithPosition(float32(i), 0, -10), scene.WithSceneMask(MaskOpaque|MaskShadow))
		require.NoError(t, err)
	}
	views, err := camera.NewActiveViews(
		camera.View{CameraID: 0, Forward: [3]float32{0, 0, -1}},
		camera.View{CameraID: 1, Forward: [3]float32{0, 0, -1}},
	)
	require.NoError(t, err)

	s.Frame(func(fd scene.FrameData) {
		scene.ResolveRange(fd.Objects, fd.Transformations, 0, len(fd.Objects))
		c.Reset()
		var wg sync.WaitGroup
		for lo := 0; lo < n; lo += 128 {
			wg.Add(1)
			go func(lo, hi int) {
				defer wg.Done()
				c.CullRange(views, fd.Objects, lo, hi)
			}(lo, min(lo+128, n))
		}
		wg.Wait()
	})

	for v := 0; v < 2; v++ {
		for _, b := range []int{0, 2} {
			require.Equal(t, n, c.Recorded(v, b))
			seen := make(map[uint32]bool, n)
			for slot := 0; slot < n; slot++ {
				rec := c.Record(v, b, slot)
				assert.False(t, seen[rec.ObjectID], "object %d recorded twice", rec.ObjectID)
				seen[rec.ObjectID] = true
				assert.Equal(t, float32(rec.ObjectID), rec.TotalTransform[12])
			}
		}
		assert.Equal(t, 0, c.Recorded(v, 1))
	}
}

func TestViewsBeyondStorageIgnored(t *testing.T) {
	table, _ := NewBinTable(DefaultBins()...)
	c := NewCuller(table, 1, 4)
	views, _ := camera.NewActiveViews(
		camera.View{Forward: [3]float32{0, 0, -1}},
		camera.View{Forward: [3]float32{0, 0, -1}},
	)
	s := scene.NewScene()
	_, _ = s.Spawn(scene.WithPosition(0, 0, -5), scene.WithSceneMask(MaskOpaque))
	cullScene(s, c, views)
	assert.Equal(t, 1, c.Recorded(0, 0))
}
