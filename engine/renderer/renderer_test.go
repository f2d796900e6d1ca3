package renderer

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull"
	"github.com/Carmen-Shannon/oxy-cull/engine/draw"
	"github.com/Carmen-Shannon/oxy-cull/engine/scene"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	descriptors []wgpu.BufferDescriptor
	failAt      int
}

func (d *fakeDevice) CreateBuffer(desc *wgpu.BufferDescriptor) (*wgpu.Buffer, error) {
	if d.failAt > 0 && len(d.descriptors)+1 == d.failAt {
		return nil, errors.New("out of memory")
	}
	d.descriptors = append(d.descriptors, *desc)
	return &wgpu.Buffer{}, nil
}

func TestNewTargetsSizes(t *testing.T) {
	layout := draw.Layout{NumViews: 2, IndexedPerView: 8, NonIndexedPerView: 4, DrawListCapacity: 16}
	dev := &fakeDevice{}
	targets, err := NewTargets(dev, "Scene", layout)
	require.NoError(t, err)
	require.Len(t, dev.descriptors, 5)

	assert.Equal(t, uint64(2*8*20), dev.descriptors[0].Size)
	assert.Equal(t, uint64(2*4*16), dev.descriptors[1].Size)
	assert.Equal(t, uint64(2*12*96), dev.descriptors[2].Size)
	assert.Equal(t, uint64(2*16*20), dev.descriptors[3].Size)
	assert.Equal(t, uint64(2*80), dev.descriptors[4].Size)
	assert.Equal(t, "Scene Indexed Indirect Buffer", dev.descriptors[0].Label)
	assert.NotZero(t, dev.descriptors[0].Usage&wgpu.BufferUsageIndirect)
	assert.NotNil(t, targets.Cameras)

	_, err = NewTargets(&fakeDevice{failAt: 3}, "Scene", layout)
	assert.Error(t, err)
}

func TestStageAndSubmit(t *testing.T) {
	layout := draw.Layout{NumViews: 1, IndexedPerView: 2, NonIndexedPerView: 0, DrawListCapacity: 4}
	asm := draw.NewAssembler(draw.WithLayout(layout))
	rangeID, err := asm.Registry().RegisterRange([]draw.IndexedDraw{{Template: draw.IndexedTemplate{IndexCount: 3}}}, nil)
	require.NoError(t, err)

	table, _ := cull.NewBinTable(cull.DefaultBins()...)
	c := cull.NewCuller(table, 1, 4)
	views, _ := camera.NewActiveViews(camera.View{Forward: [3]float32{0, 0, -1}})
	s := scene.NewScene()
	_, err = s.Spawn(scene.WithPosition(0, 0, -1), scene.WithSceneMask(cull.MaskOpaque), scene.WithRenderRange(rangeID))
	require.NoError(t, err)

	s.Frame(func(fd scene.FrameData) {
		scene.ResolveRange(fd.Objects, fd.Transformations, 0, len(fd.Objects))
		c.CullRange(views, fd.Objects, 0, len(fd.Objects))
		require.NoError(t, asm.Run(draw.ModeClear, c, fd.Objects, views))
		require.NoError(t, asm.Run(draw.ModeBuild, c, fd.Objects, views))
	})

	targets, err := NewTargets(&fakeDevice{}, "Scene", layout)
	require.NoError(t, err)
	sub := NewSubmitter(targets)
	writes := sub.Stage(asm, []camera.GPUCameraUniform{{}})

	// Indexed commands, draw list, instances and one camera; no non-indexed region.
	require.Len(t, writes, 4)
	assert.Same(t, targets.IndexedCommands, writes[0].Buffer)
	assert.Len(t, writes[0].Data, 40)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(writes[0].Data[4:]), "instance count of draw 0")
	assert.Same(t, targets.DrawList, writes[1].Buffer)
	assert.Len(t, writes[1].Data, 20)
	assert.Same(t, targets.Instances, writes[2].Buffer)
	assert.Len(t, writes[2].Data, 2*96)
	assert.Same(t, targets.Cameras, writes[3].Buffer)

	var total int
	bytes := sub.Submit(func(buffer *wgpu.Buffer, offset uint64, data []byte) {
		total += len(data)
	})
	assert.Equal(t, 40+20+192+80, bytes)
	assert.Equal(t, bytes, total)
}

func TestProcessShaderPrelude(t *testing.T) {
	src, bindings, err := ProcessShader(VertexPrelude + "@vertex fn main() {}")
	require.NoError(t, err)

	assert.Contains(t, src, "struct CameraUniform {")
	assert.Contains(t, src, "struct PerInstanceData {")
	assert.Contains(t, src, "@group(0) @binding(0) var<storage, read> cameras: array<CameraUniform>;")
	assert.Contains(t, src, "@group(0) @binding(1) var<storage, read> instances: array<PerInstanceData>;")
	assert.Contains(t, src, "@vertex fn main() {}")
	assert.NotContains(t, src, "@oxy:")

	require.Len(t, bindings, 2)
	assert.Equal(t, Binding{Group: 0, Binding: 1, Name: "instances", Target: TypeInstance}, bindings[1])

	targets, err := NewTargets(&fakeDevice{}, "Scene", draw.DefaultLayout())
	require.NoError(t, err)
	assert.Same(t, targets.Instances, targets.Buffer(bindings[1].Target))
	assert.Nil(t, targets.Buffer("unknown"))
}

func TestProcessShaderRejects(t *testing.T) {
	for name, src := range map[string]string{
		"unknown directive": "//@oxy:provider 2 0 material",
		"unknown type":      "//@oxy:include light",
		"bad binding":       "//@oxy:group 0 x read cameras camera",
		"bad space":         "//@oxy:group 0 0 uniform cameras camera",
		"short group":       "//@oxy:group 0 0 read cameras",
		"empty":             "//@oxy:",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := ProcessShader(src)
			assert.ErrorIs(t, err, ErrBadAnnotation)
		})
	}
}
