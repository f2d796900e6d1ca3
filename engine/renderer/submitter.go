package renderer

import (
	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/draw"
	"github.com/cogentcore/webgpu/wgpu"
)

// BufferWrite describes a single GPU buffer write at a byte offset.
type BufferWrite struct {
	Buffer *wgpu.Buffer
	Offset uint64
	Data   []byte
}

// WriteFunc performs one queue write.
type WriteFunc func(buffer *wgpu.Buffer, offset uint64, data []byte)

// QueueWriter adapts a queue to a WriteFunc.
//
// Parameters:
//   - q: the device queue
//
// Returns:
//   - WriteFunc: a function writing through q
func QueueWriter(q *wgpu.Queue) WriteFunc {
	return func(buffer *wgpu.Buffer, offset uint64, data []byte) {
		q.WriteBuffer(buffer, offset, data)
	}
}

// Submitter stages an assembled frame as buffer writes. It must only read the
// assembler after the Build phase has ended.
type Submitter struct {
	targets *Targets
	writes  []BufferWrite
}

// NewSubmitter creates a Submitter uploading into targets.
func NewSubmitter(targets *Targets) *Submitter {
	return &Submitter{targets: targets}
}

// Stage serializes the assembler's command arrays, per-instance data, recorded
// draw-list entries and camera uniforms. The returned slice is reused by the next
// call.
//
// Parameters:
//   - a: the assembler, after Build
//   - cameras: one uniform per view in view order, may be nil
//
// Returns:
//   - []BufferWrite: the staged writes
func (s *Submitter) Stage(a draw.Assembler, cameras []camera.GPUCameraUniform) []BufferWrite {
	t := s.targets
	l := a.Layout()
	s.writes = s.writes[:0]

	for v := 0; v < l.NumViews; v++ {
		if l.IndexedPerView > 0 {
			s.writes = append(s.writes, BufferWrite{
				Buffer: t.IndexedCommands,
				Offset: uint64(v*l.IndexedPerView) * 20,
				Data:   draw.MarshalIndexed(a.IndexedCommands(v)),
			})
		}
		if l.NonIndexedPerView > 0 {
			s.writes = append(s.writes, BufferWrite{
				Buffer: t.NonIndexedCommands,
				Offset: uint64(v*l.NonIndexedPerView) * 16,
				Data:   draw.MarshalNonIndexed(a.NonIndexedCommands(v)),
			})
		}
		if entries := a.DrawList(v); len(entries) > 0 {
			s.writes = append(s.writes, BufferWrite{
				Buffer: t.DrawList,
				Offset: uint64(v*l.DrawListCapacity) * 20,
				Data:   draw.MarshalDrawList(entries),
			})
		}
	}
	if len(a.Instances()) > 0 {
		s.writes = append(s.writes, BufferWrite{
			Buffer: t.Instances,
			Offset: 0,
			Data:   draw.MarshalInstances(a.Instances()),
		})
	}
	for i := range cameras {
		if i >= l.NumViews {
			break
		}
		s.writes = append(s.writes, BufferWrite{
			Buffer: t.Cameras,
			Offset: uint64(i) * cameraStride,
			Data:   cameras[i].Marshal(),
		})
	}
	return s.writes
}

// Submit performs the staged writes.
//
// Parameters:
//   - write: the queue write function
//
// Returns:
//   - int: the number of bytes written
func (s *Submitter) Submit(write WriteFunc) int {
	n := 0
	for _, w := range s.writes {
		if w.Buffer == nil {
			continue
		}
		write(w.Buffer, w.Offset, w.Data)
		n += len(w.Data)
	}
	common.Logger().Debug("renderer: submitted frame", "writes", len(s.writes), "bytes", n)
	return n
}
