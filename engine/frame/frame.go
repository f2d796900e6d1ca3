package frame

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/config"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull"
	"github.com/Carmen-Shannon/oxy-cull/engine/draw"
	"github.com/Carmen-Shannon/oxy-cull/engine/scene"
)

var (
	ErrTooManyViews = errors.New("frame: more active views than configured")
	ErrStagePanic   = errors.New("frame: stage task panicked")
	ErrClosed       = errors.New("frame: pipeline closed")
)

// Pipeline runs the per-frame stages over a persistent worker pool:
// transform resolution, visibility and binning, Clear, then Build. Every stage
// splits its index space into chunks and ends with a full fence, so no stage
// observes a partially written output of the one before it.
type Pipeline interface {
	// Config returns the configuration the pipeline was sized from.
	Config() config.Config

	// Registry returns the render range registry used by the Build phase.
	Registry() *draw.Registry

	// Culler returns the visibility stage and its per-(view, bin) records.
	Culler() cull.Culler

	// Assembler returns the draw assembly stage and its output arrays.
	Assembler() draw.Assembler

	// Execute runs one frame. The store is locked for the whole frame. With no views
	// the Clear phase still runs so stale commands are never submitted.
	//
	// Parameters:
	//   - store: the scene
	//   - views: the active views, may be nil
	//
	// Returns:
	//   - Stats: timings and counters of the frame
	//   - error: ErrTooManyViews, ErrStagePanic or a phase error
	Execute(store scene.Scene, views *camera.ActiveViews) (Stats, error)

	// Close stops the worker pool.
	Close()
}

type buildChunk struct {
	view, bin, lo, hi int
}

type pipeline struct {
	mu *sync.Mutex

	cfg       config.Config
	workers   int
	chunkSize int

	registry  *draw.Registry
	culler    cull.Culler
	assembler draw.Assembler

	pool   worker.DynamicWorkerPool
	taskID int
	chunks []buildChunk
	closed bool
}

var _ Pipeline = &pipeline{}

// NewPipeline allocates every per-frame array from cfg and starts the worker pool.
//
// Parameters:
//   - cfg: the pipeline configuration, completed with defaults before validation
//   - options: functional options to configure the pipeline
//
// Returns:
//   - Pipeline: the newly created pipeline
//   - error: a configuration error
func NewPipeline(cfg config.Config, options ...PipelineBuilderOption) (Pipeline, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bins, err := cull.NewBinTable(cfg.Bins...)
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		mu:        &sync.Mutex{},
		cfg:       cfg,
		workers:   cfg.Workers,
		chunkSize: cfg.ChunkSize,
	}
	for _, option := range options {
		option(p)
	}
	if p.registry == nil {
		p.registry = draw.NewRegistry(cfg.IndexedDrawsPerView, cfg.NonIndexedDrawsPerView)
	}

	p.culler = cull.NewCuller(bins, cfg.NumViews, cfg.MaxObjects, cull.WithFrustumCulling(cfg.FrustumCulling))
	p.assembler = draw.NewAssembler(
		draw.WithLayout(draw.Layout{
			NumViews:          cfg.NumViews,
			IndexedPerView:    cfg.IndexedDrawsPerView,
			NonIndexedPerView: cfg.NonIndexedDrawsPerView,
			DrawListCapacity:  cfg.DrawListCapacity,
		}),
		draw.WithRegistry(p.registry),
	)
	p.pool = worker.NewDynamicWorkerPool(p.workers, 256, 1*time.Second)

	common.Logger().Debug("frame: pipeline ready",
		"workers", p.workers, "chunk", p.chunkSize,
		"views", cfg.NumViews, "bins", bins.Len(), "capacity", cfg.MaxObjects)
	return p, nil
}

func (p *pipeline) Config() config.Config {
	return p.cfg
}

func (p *pipeline) Registry() *draw.Registry {
	return p.registry
}

func (p *pipeline) Culler() cull.Culler {
	return p.culler
}

func (p *pipeline) Assembler() draw.Assembler {
	return p.assembler
}

func (p *pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.pool.Stop()
}

func (p *pipeline) Execute(store scene.Scene, views *camera.ActiveViews) (Stats, error) {
	if store == nil {
		panic("frame: nil scene store")
	}
	if views.Len() > p.cfg.NumViews {
		return Stats{}, fmt.Errorf("%d views, %d configured: %w", views.Len(), p.cfg.NumViews, ErrTooManyViews)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Stats{}, ErrClosed
	}

	var stats Stats
	var err error
	store.Frame(func(fd scene.FrameData) {
		stats, err = p.execute(fd, views)
	})
	if err != nil {
		return stats, err
	}

	if stats.DroppedRecords > 0 || stats.DroppedDrawList > 0 {
		common.Logger().Warn("frame: capacity overflow",
			"dropped_records", stats.DroppedRecords,
			"dropped_draw_list", stats.DroppedDrawList)
	}
	common.Logger().Debug("frame: executed",
		"objects", stats.Objects, "views", stats.Views,
		"resolve", stats.Resolve, "cull", stats.Cull,
		"clear", stats.Clear, "build", stats.Build,
		"visible", stats.TotalVisible(), "emitted", stats.TotalEmitted())
	return stats, nil
}

// execute runs the four stages. Caller must hold p.mu and the store's frame lock.
func (p *pipeline) execute(fd scene.FrameData, views *camera.ActiveViews) (Stats, error) {
	n := len(fd.Objects)
	nv := views.Len()
	stats := Stats{Objects: n, Views: nv}

	start := time.Now()
	if err := p.parallel("resolve", n, func(lo, hi int) {
		scene.ResolveRange(fd.Objects, fd.Transformations, lo, hi)
	}); err != nil {
		return stats, err
	}
	stats.Resolve = time.Since(start)

	start = time.Now()
	p.culler.Reset()
	if nv > 0 {
		if err := p.parallel("cull", n, func(lo, hi int) {
			p.culler.CullRange(views, fd.Objects, lo, hi)
		}); err != nil {
			return stats, err
		}
	}
	stats.Cull = time.Since(start)

	start = time.Now()
	if err := p.assembler.Begin(draw.ModeClear); err != nil {
		return stats, err
	}
	if err := p.parallel("clear", p.assembler.Layout().CommandSlots(), p.assembler.ClearRange); err != nil {
		_ = p.assembler.End(draw.ModeClear)
		return stats, err
	}
	if err := p.assembler.End(draw.ModeClear); err != nil {
		return stats, err
	}
	stats.Clear = time.Since(start)

	start = time.Now()
	if err := p.assembler.Begin(draw.ModeBuild); err != nil {
		return stats, err
	}
	p.chunks = p.chunks[:0]
	for v := 0; v < nv; v++ {
		for b := 0; b < p.culler.Bins().Len(); b++ {
			recorded := p.culler.Recorded(v, b)
			for lo := 0; lo < recorded; lo += p.chunkSize {
				p.chunks = append(p.chunks, buildChunk{view: v, bin: b, lo: lo, hi: min(lo+p.chunkSize, recorded)})
			}
		}
	}
	if err := p.dispatch("build", len(p.chunks), func(i int) {
		c := p.chunks[i]
		p.assembler.BuildRange(p.culler, fd.Objects, views, c.view, c.bin, c.lo, c.hi)
	}); err != nil {
		_ = p.assembler.End(draw.ModeBuild)
		return stats, err
	}
	if err := p.assembler.End(draw.ModeBuild); err != nil {
		return stats, err
	}
	stats.Build = time.Since(start)

	stats.Visible = make([]int, nv)
	stats.Emitted = make([]uint32, nv)
	for v := 0; v < nv; v++ {
		for b := 0; b < p.culler.Bins().Len(); b++ {
			stats.Visible[v] += p.culler.Recorded(v, b)
		}
		stats.Emitted[v] = p.assembler.Emitted(v)
		stats.DroppedDrawList += uint64(p.assembler.DrawListDropped(v))
	}
	stats.DroppedRecords = p.culler.TotalDropped()
	return stats, nil
}

// parallel splits [0, n) into chunks of chunkSize and runs fn on each chunk in the
// worker pool, returning once every chunk has finished.
func (p *pipeline) parallel(stage string, n int, fn func(lo, hi int)) error {
	tasks := (n + p.chunkSize - 1) / p.chunkSize
	return p.dispatch(stage, tasks, func(i int) {
		lo := i * p.chunkSize
		fn(lo, min(lo+p.chunkSize, n))
	})
}

// dispatch submits tasks [0, n) to the worker pool and blocks until all of them
// complete. The WaitGroup is the stage fence: pool.Wait also waits on the workers
// themselves and does not suit a per-frame barrier.
func (p *pipeline) dispatch(stage string, n int, fn func(i int)) error {
	var wg sync.WaitGroup
	var failure atomic.Pointer[error]

	for i := 0; i < n; i++ {
		wg.Add(1)
		id := p.taskID
		p.taskID++
		p.pool.SubmitTask(worker.Task{
			ID:      id,
			Payload: stage,
			Do: func() (any, error) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						err := fmt.Errorf("%s task %d: %v: %w", stage, i, r, ErrStagePanic)
						failure.CompareAndSwap(nil, &err)
					}
				}()
				fn(i)
				return nil, nil
			},
		})
	}
	wg.Wait()

	if err := failure.Load(); err != nil {
		common.Logger().Error("frame: stage failed", "stage", stage, "err", *err)
		return *err
	}
	return nil
}
