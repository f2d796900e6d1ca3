package draw

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull"
	"github.com/Carmen-Shannon/oxy-cull/engine/scene"
)

// Mode selects the phase an Assembler runs.
type Mode uint32

const (
	// ModeClear zeroes every command's instance count and the draw-list counters.
	ModeClear Mode = 0
	// ModeBuild patches commands and writes per-instance data for culled objects.
	ModeBuild Mode = 1

	modeNone = ^Mode(0)
)

func (m Mode) String() string {
	switch m {
	case ModeClear:
		return "clear"
	case ModeBuild:
		return "build"
	default:
		return fmt.Sprintf("mode(%d)", uint32(m))
	}
}

var (
	ErrBuildWithoutClear = errors.New("draw: build requires a completed clear")
	ErrPhaseInProgress   = errors.New("draw: a phase is already running")
	ErrPhaseMismatch     = errors.New("draw: end does not match the running phase")
	ErrInvalidMode       = errors.New("draw: invalid mode")
)

// Layout sizes the per-view command, instance and draw-list storage.
type Layout struct {
	NumViews          int
	IndexedPerView    int
	NonIndexedPerView int
	DrawListCapacity  int
}

// Stride returns the number of command slots per view.
func (l Layout) Stride() int {
	return l.IndexedPerView + l.NonIndexedPerView
}

// CommandSlots returns the size of the Clear index space across all views.
func (l Layout) CommandSlots() int {
	return l.NumViews * l.Stride()
}

// Assembler owns the persistent indirect command arrays, per-instance data and
// diagnostic draw list, and rewrites them each frame in two phases.
//
// A frame calls Begin(ModeClear), ClearRange over the whole command slot space,
// End(ModeClear), then Begin(ModeBuild), BuildRange over every culled (view, bin)
// record and End(ModeBuild). ClearRange and BuildRange may run concurrently over
// disjoint ranges within a phase. Begin and End are the fences.
type Assembler interface {
	// Layout returns the storage layout.
	Layout() Layout

	// Registry returns the render range registry.
	Registry() *Registry

	// Begin starts a phase.
	//
	// Parameters:
	//   - mode: the phase to start
	//
	// Returns:
	//   - error: ErrBuildWithoutClear if Build does not directly follow a completed Clear,
	//     ErrPhaseInProgress if a phase has not ended, ErrInvalidMode for unknown modes
	Begin(mode Mode) error

	// End completes the running phase.
	//
	// Returns:
	//   - error: ErrPhaseMismatch if mode is not the running phase
	End(mode Mode) error

	// ClearRange zeroes instance counts and draw claims of command slots [lo, hi).
	ClearRange(lo, hi int)

	// BuildRange emits the draws of culled records [lo, hi) of one (view, bin) pair.
	// Slots at or beyond the pair's recorded count are ignored.
	//
	// Parameters:
	//   - c: the culler holding this frame's records
	//   - objects: the scene's object array
	//   - views: the active views
	//   - view: view index
	//   - bin: bin index
	//   - lo: first record slot (inclusive)
	//   - hi: last record slot (exclusive)
	BuildRange(c cull.Culler, objects []scene.Object, views *camera.ActiveViews, view, bin, lo, hi int)

	// Run executes a whole phase serially, including Begin and End.
	Run(mode Mode, c cull.Culler, objects []scene.Object, views *camera.ActiveViews) error

	// IndexedCommands returns the indexed command array of a view.
	IndexedCommands(view int) []DrawIndexedIndirect

	// NonIndexedCommands returns the non-indexed command array of a view.
	NonIndexedCommands(view int) []DrawIndirect

	// Instances returns the per-instance array, NumViews * Stride entries.
	Instances() []PerInstanceData

	// DrawList returns the recorded draw-list entries of a view.
	DrawList(view int) []SceneDrawListEntry

	// DrawListCount returns the draw-list counter of a view, including dropped entries.
	DrawListCount(view int) uint32

	// DrawListDropped returns how many draw-list entries of a view exceeded capacity.
	DrawListDropped(view int) uint32

	// Emitted returns the number of sub-draw emissions for a view in the last Build,
	// one per (bin occurrence, sub-draw).
	Emitted(view int) uint32
}

type assembler struct {
	mu *sync.Mutex

	layout   Layout
	registry *Registry

	running bool
	current Mode
	last    Mode

	indexed        []DrawIndexedIndirect
	nonIndexed     []DrawIndirect
	instances      []PerInstanceData
	claims         []atomic.Uint32
	drawList       []SceneDrawListEntry
	drawListCounts []atomic.Uint32
	emitted        []atomic.Uint32
}

var _ Assembler = &assembler{}

// NewAssembler allocates command, instance and draw-list storage for a layout.
//
// Parameters:
//   - options: functional options to configure the assembler
//
// Returns:
//   - Assembler: the newly created assembler
func NewAssembler(options ...AssemblerBuilderOption) Assembler {
	a := &assembler{
		mu:      &sync.Mutex{},
		layout:  DefaultLayout(),
		current: modeNone,
		last:    modeNone,
	}
	for _, option := range options {
		option(a)
	}
	if a.registry == nil {
		a.registry = NewRegistry(a.layout.IndexedPerView, a.layout.NonIndexedPerView)
	}

	l := a.layout
	a.indexed = make([]DrawIndexedIndirect, l.NumViews*l.IndexedPerView)
	a.nonIndexed = make([]DrawIndirect, l.NumViews*l.NonIndexedPerView)
	a.instances = make([]PerInstanceData, l.CommandSlots())
	a.claims = make([]atomic.Uint32, l.CommandSlots())
	a.drawList = make([]SceneDrawListEntry, l.NumViews*l.DrawListCapacity)
	a.drawListCounts = make([]atomic.Uint32, l.NumViews)
	a.emitted = make([]atomic.Uint32, l.NumViews)
	return a
}

func (a *assembler) Layout() Layout {
	return a.layout
}

func (a *assembler) Registry() *Registry {
	return a.registry
}

func (a *assembler) Begin(mode Mode) error {
	if mode != ModeClear && mode != ModeBuild {
		return fmt.Errorf("begin %s: %w", mode, ErrInvalidMode)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("begin %s while %s runs: %w", mode, a.current, ErrPhaseInProgress)
	}
	if mode == ModeBuild && a.last != ModeClear {
		return ErrBuildWithoutClear
	}
	if mode == ModeClear {
		for v := range a.drawListCounts {
			a.drawListCounts[v].Store(0)
			a.emitted[v].Store(0)
		}
	}
	a.running = true
	a.current = mode
	return nil
}

func (a *assembler) End(mode Mode) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running || a.current != mode {
		return fmt.Errorf("end %s: %w", mode, ErrPhaseMismatch)
	}
	a.running = false
	a.last = mode
	a.current = modeNone
	return nil
}

func (a *assembler) ClearRange(lo, hi int) {
	stride := a.layout.Stride()
	ipv := a.layout.IndexedPerView
	npv := a.layout.NonIndexedPerView
	for s := lo; s < hi; s++ {
		view, d := s/stride, s%stride
		if d < ipv {
			a.indexed[view*ipv+d].InstanceCount = 0
		} else {
			a.nonIndexed[view*npv+d-ipv].InstanceCount = 0
		}
		a.claims[s].Store(0)
	}
}

func (a *assembler) BuildRange(c cull.Culler, objects []scene.Object, views *camera.ActiveViews, view, bin, lo, hi int) {
	hi = min(hi, c.Recorded(view, bin))
	stride := a.layout.Stride()
	ipv := a.layout.IndexedPerView
	npv := a.layout.NonIndexedPerView
	cameraID := views.At(view).CameraID

	for slot := lo; slot < hi; slot++ {
		rec := c.Record(view, bin, slot)
		obj := &objects[rec.ObjectID]
		rng, ok := a.registry.Range(obj.RenderRange)
		if !ok {
			continue
		}

		for i := range rng.Indexed {
			d := &rng.Indexed[i]
			cell := view*stride + int(d.DrawIndex)
			a.emitted[view].Add(1)
			if a.claims[cell].CompareAndSwap(0, 1) {
				a.indexed[view*ipv+int(d.DrawIndex)] = DrawIndexedIndirect{
					IndexCount:    d.Template.IndexCount,
					InstanceCount: 1,
					FirstIndex:    d.Template.FirstIndex,
					BaseVertex:    d.Template.BaseVertex,
					FirstInstance: uint32(cell),
				}
				a.instances[cell] = instanceData(rec, obj, d.Metadata, cameraID)
			}
			a.appendDrawList(view, SceneDrawListEntry{
				DrawIndex:  d.DrawIndex,
				MeshID:     d.Metadata.MeshID,
				MaterialID: d.Metadata.MaterialID,
				ObjectID:   rec.ObjectID,
				DrawType:   DrawTypeIndexed,
			})
		}

		for i := range rng.NonIndexed {
			d := &rng.NonIndexed[i]
			cell := view*stride + ipv + int(d.DrawIndex)
			a.emitted[view].Add(1)
			if a.claims[cell].CompareAndSwap(0, 1) {
				a.nonIndexed[view*npv+int(d.DrawIndex)] = DrawIndirect{
					VertexCount:   d.Template.VertexCount,
					InstanceCount: 1,
					FirstVertex:   d.Template.FirstVertex,
					FirstInstance: uint32(cell),
				}
				a.instances[cell] = instanceData(rec, obj, d.Metadata, cameraID)
			}
			a.appendDrawList(view, SceneDrawListEntry{
				DrawIndex:  d.DrawIndex,
				MeshID:     d.Metadata.MeshID,
				MaterialID: d.Metadata.MaterialID,
				ObjectID:   rec.ObjectID,
				DrawType:   DrawTypeNonIndexed,
			})
		}
	}
}

func instanceData(rec *cull.CulledObject, obj *scene.Object, md DrawMetadata, cameraID uint32) PerInstanceData {
	return PerInstanceData{
		Transform:          rec.TotalTransform,
		TransformationSlot: rec.TransformationSlot,
		MaterialID:         md.MaterialID,
		CameraID:           cameraID,
		SkeletonID:         obj.SkeletonID,
		AnimationStateID:   obj.AnimationStateID,
		JointBufferID:      md.JointBufferID,
	}
}

func (a *assembler) appendDrawList(view int, e SceneDrawListEntry) {
	slot := a.drawListCounts[view].Add(1) - 1
	if int(slot) >= a.layout.DrawListCapacity {
		return
	}
	a.drawList[view*a.layout.DrawListCapacity+int(slot)] = e
}

func (a *assembler) Run(mode Mode, c cull.Culler, objects []scene.Object, views *camera.ActiveViews) error {
	if err := a.Begin(mode); err != nil {
		return err
	}
	switch mode {
	case ModeClear:
		a.ClearRange(0, a.layout.CommandSlots())
	case ModeBuild:
		nv := min(views.Len(), a.layout.NumViews, c.NumViews())
		for v := 0; v < nv; v++ {
			for b := 0; b < c.Bins().Len(); b++ {
				a.BuildRange(c, objects, views, v, b, 0, c.Recorded(v, b))
			}
		}
	}
	return a.End(mode)
}

func (a *assembler) IndexedCommands(view int) []DrawIndexedIndirect {
	ipv := a.layout.IndexedPerView
	return a.indexed[view*ipv : (view+1)*ipv]
}

func (a *assembler) NonIndexedCommands(view int) []DrawIndirect {
	npv := a.layout.NonIndexedPerView
	return a.nonIndexed[view*npv : (view+1)*npv]
}

func (a *assembler) Instances() []PerInstanceData {
	return a.instances
}

func (a *assembler) DrawList(view int) []SceneDrawListEntry {
	n := min(int(a.drawListCounts[view].Load()), a.layout.DrawListCapacity)
	base := view * a.layout.DrawListCapacity
	return a.drawList[base : base+n]
}

func (a *assembler) DrawListCount(view int) uint32 {
	return a.drawListCounts[view].Load()
}

func (a *assembler) DrawListDropped(view int) uint32 {
	n := a.drawListCounts[view].Load()
	if int(n) <= a.layout.DrawListCapacity {
		return 0
	}
	return n - uint32(a.layout.DrawListCapacity)
}

func (a *assembler) Emitted(view int) uint32 {
	return a.emitted[view].Load()
}
