package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/draw"
	"github.com/cogentcore/webgpu/wgpu"
)

// Device creates GPU buffers. Satisfied by *wgpu.Device.
type Device interface {
	CreateBuffer(descriptor *wgpu.BufferDescriptor) (*wgpu.Buffer, error)
}

// Targets are the GPU buffers the assembled frame is uploaded into. Command
// buffers are laid out view after view, matching the assembler's arrays.
type Targets struct {
	Layout draw.Layout

	IndexedCommands    *wgpu.Buffer
	NonIndexedCommands *wgpu.Buffer
	Instances          *wgpu.Buffer
	DrawList           *wgpu.Buffer
	// Cameras holds one GPUCameraUniform per view, indexed by view index.
	Cameras *wgpu.Buffer
}

// Buffer sizes in bytes for a layout. Zero-sized buffers are rounded up to one
// element so every binding stays valid.
func indexedSize(l draw.Layout) uint64 {
	return uint64(max(l.NumViews*l.IndexedPerView, 1)) * 20
}

func nonIndexedSize(l draw.Layout) uint64 {
	return uint64(max(l.NumViews*l.NonIndexedPerView, 1)) * 16
}

func instancesSize(l draw.Layout) uint64 {
	return uint64(max(l.CommandSlots(), 1)) * 96
}

func drawListSize(l draw.Layout) uint64 {
	return uint64(max(l.NumViews*l.DrawListCapacity, 1)) * 20
}

func camerasSize(l draw.Layout) uint64 {
	return uint64(max(l.NumViews, 1)) * 80
}

// NewTargets creates the command, instance, draw-list and camera buffers for a layout.
//
// Parameters:
//   - device: the device to allocate on
//   - label: prefix for buffer labels
//   - layout: the assembler layout
//
// Returns:
//   - *Targets: the buffers
//   - error: the first buffer creation error
func NewTargets(device Device, label string, layout draw.Layout) (*Targets, error) {
	t := &Targets{Layout: layout}
	buffers := []struct {
		dst   **wgpu.Buffer
		name  string
		size  uint64
		usage wgpu.BufferUsage
	}{
		{&t.IndexedCommands, "Indexed Indirect", indexedSize(layout), wgpu.BufferUsageIndirect | wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst},
		{&t.NonIndexedCommands, "Non-Indexed Indirect", nonIndexedSize(layout), wgpu.BufferUsageIndirect | wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst},
		{&t.Instances, "Per-Instance Data", instancesSize(layout), wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst},
		{&t.DrawList, "Scene Draw List", drawListSize(layout), wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst},
		{&t.Cameras, "Cameras", camerasSize(layout), wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst},
	}
	for _, s := range buffers {
		buf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
			Label:            label + " " + s.name + " Buffer",
			Size:             s.size,
			Usage:            s.usage,
			MappedAtCreation: false,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s buffer: %w", s.name, err)
		}
		*s.dst = buf
	}
	return t, nil
}

// Release frees every buffer.
func (t *Targets) Release() {
	for _, buf := range []*wgpu.Buffer{t.IndexedCommands, t.NonIndexedCommands, t.Instances, t.DrawList, t.Cameras} {
		if buf != nil {
			buf.Release()
		}
	}
	*t = Targets{Layout: t.Layout}
}

// cameraStride is the byte size of one camera entry.
var cameraStride = uint64((&camera.GPUCameraUniform{}).Size())
