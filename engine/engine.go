package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/config"
	"github.com/Carmen-Shannon/oxy-cull/engine/frame"
	"github.com/Carmen-Shannon/oxy-cull/engine/profiler"
	"github.com/Carmen-Shannon/oxy-cull/engine/scene"
)

var (
	ErrUnknownCamera  = errors.New("engine: unknown camera")
	ErrTooManyCameras = errors.New("engine: too many active cameras")
)

// engine implements the Engine interface.
// Coordinates the tick and frame threads.
type engine struct {
	mu *sync.Mutex
	// frameMu serializes Frame so the view list is never rebuilt while stages read it.
	frameMu *sync.Mutex

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	frameCallback  func(deltaTime float32, stats frame.Stats)

	store         scene.Scene
	pipeline      frame.Pipeline
	ownsPipeline  bool
	pipelineError error

	cameras  map[int]camera.Camera
	active   []int
	views    *camera.ActiveViews
	uniforms []camera.GPUCameraUniform

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point for the engine.
// It owns the scene store, the frame pipeline and the cameras, and drives the tick
// loop and the frame loop.
type Engine interface {
	// Scene returns the scene store.
	Scene() scene.Scene

	// Pipeline returns the frame pipeline.
	Pipeline() frame.Pipeline

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for game logic and scene mutation. Ticks run concurrently with frames;
	// the scene store serializes access.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetFrameCallback registers the function called after each frame's pipeline has run.
	// Use this to upload the assembled commands, for example through a renderer.Submitter.
	//
	// Parameters:
	//   - callback: function to call each frame, receiving the delta time in seconds and the frame statistics
	SetFrameCallback(callback func(deltaTime float32, stats frame.Stats))

	// SetRenderFrameLimit sets an optional frame rate cap in frames per second.
	// Pass 0 to uncap the frame loop (default).
	//
	// Parameters:
	//   - fps: maximum frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// AddCamera registers a camera under the given id.
	//
	// Parameters:
	//   - id: the camera id
	//   - c: the Camera to register
	AddCamera(id int, c camera.Camera)

	// RemoveCamera removes a camera and drops it from the active set.
	//
	// Parameters:
	//   - id: the camera id
	RemoveCamera(id int)

	// Camera retrieves the camera registered under id, or nil.
	Camera(id int) camera.Camera

	// SetActiveCameras selects the cameras rendered each frame, in view order.
	// The position of an id in the list is its view index.
	//
	// Parameters:
	//   - ids: registered camera ids
	//
	// Returns:
	//   - error: ErrUnknownCamera or ErrTooManyCameras
	SetActiveCameras(ids ...int) error

	// ActiveCameras returns a copy of the active camera ids in view order.
	ActiveCameras() []int

	// CameraUniforms returns the camera uniforms of the last frame in view order.
	CameraUniforms() []camera.GPUCameraUniform

	// Frame runs one frame synchronously: cameras are updated, their views captured
	// and the pipeline executed. Concurrent calls run one after another.
	//
	// Returns:
	//   - frame.Stats: the frame statistics
	//   - error: the pipeline error, if any
	Frame() (frame.Stats, error)

	// Run starts the tick and frame loops and blocks until Quit is called.
	Run()

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// Without WithScene a scene sized from the pipeline config is created, bound to the
// pipeline's registry so each render range has one owner; without
// WithPipeline a pipeline is built from config.Default().
//
// Parameters:
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: error if the default pipeline cannot be built
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		mu:               &sync.Mutex{},
		frameMu:          &sync.Mutex{},
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		cameras:          make(map[int]camera.Camera),
		views:            &camera.ActiveViews{},
		running:          false,
		wg:               sync.WaitGroup{},
		profiler:         profiler.NewProfiler(),
		profilingEnabled: false,
		engineTickRate:   time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.pipelineError != nil {
		return nil, e.pipelineError
	}
	if e.pipeline == nil {
		p, err := frame.NewPipeline(config.Default())
		if err != nil {
			return nil, fmt.Errorf("engine: default pipeline: %w", err)
		}
		e.pipeline = p
		e.ownsPipeline = true
	}
	if e.store == nil {
		e.store = scene.NewScene(
			scene.WithCapacity(e.pipeline.Config().SceneCapacity),
			scene.WithRangeBinder(e.pipeline.Registry()),
		)
	}

	return e, nil
}

func (e *engine) Scene() scene.Scene {
	return e.store
}

func (e *engine) Pipeline() frame.Pipeline {
	return e.pipeline
}

func (e *engine) Run() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.handle()
	e.wg.Wait()

	if e.ownsPipeline {
		e.pipeline.Close()
	}
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(e.quitChannel)
	})
}

// handle launches the engine, frame, and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleFrames()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("engine: tick goroutine recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleFrames runs the uncapped (or frame-limited) frame loop in its own goroutine.
// Each iteration runs the pipeline, then the frame callback and the profiler.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleFrames() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("engine: frame goroutine recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	lastFrame := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastFrame).Seconds())
			lastFrame = now

			stats, err := e.Frame()
			if err != nil {
				// A failed frame leaves cleared command arrays behind; keep going.
				common.Logger().Error("engine: frame failed", "error", err)
			}

			if e.frameCallback != nil {
				e.frameCallback(dt, stats)
			}

			if e.profilingEnabled && e.profiler != nil {
				e.profiler.Tick(stats)
			}

			// Frame rate limiting
			if e.renderFrameLimit > 0 {
				elapsed := time.Since(lastFrame)
				if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

func (e *engine) Frame() (frame.Stats, error) {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()

	e.mu.Lock()
	e.views.Reset()
	e.uniforms = e.uniforms[:0]
	for i, id := range e.active {
		cam := e.cameras[id]
		cam.Update()
		if err := e.views.Add(cam.View(uint32(i))); err != nil {
			e.mu.Unlock()
			return frame.Stats{}, err
		}
		e.uniforms = append(e.uniforms, cam.Uniform())
	}
	e.mu.Unlock()

	return e.pipeline.Execute(e.store, e.views)
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	e.mu.Lock()
	running := e.running
	e.mu.Unlock()

	if running {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetFrameCallback registers the function called each frame.
func (e *engine) SetFrameCallback(callback func(deltaTime float32, stats frame.Stats)) {
	e.frameCallback = callback
}

// SetRenderFrameLimit sets an optional frame rate cap.
// Pass 0 to uncap the frame loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) AddCamera(id int, c camera.Camera) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cameras[id] = c
}

func (e *engine) RemoveCamera(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cameras, id)
	active := e.active[:0]
	for _, a := range e.active {
		if a != id {
			active = append(active, a)
		}
	}
	e.active = active
}

func (e *engine) Camera(id int) camera.Camera {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cameras[id]
}

func (e *engine) SetActiveCameras(ids ...int) error {
	limit := min(camera.MaxActiveViews, e.pipeline.Config().NumViews)
	if len(ids) > limit {
		return fmt.Errorf("%w: %d > %d", ErrTooManyCameras, len(ids), limit)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		if _, ok := e.cameras[id]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownCamera, id)
		}
	}
	e.active = append(e.active[:0], ids...)
	return nil
}

func (e *engine) ActiveCameras() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.active...)
}

func (e *engine) CameraUniforms() []camera.GPUCameraUniform {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]camera.GPUCameraUniform(nil), e.uniforms...)
}
