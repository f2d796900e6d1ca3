package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/config"
	"github.com/Carmen-Shannon/oxy-cull/engine/frame"
	"github.com/Carmen-Shannon/oxy-cull/engine/scene"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithScene sets the scene store the engine runs frames over. Build it with
// scene.WithRangeBinder(pipeline.Registry()) so released ranges cannot strand an object.
//
// Parameters:
//   - s: the Scene
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.store = s
	}
}

// WithPipeline sets a pre-built frame pipeline. The caller keeps ownership and
// must close it.
//
// Parameters:
//   - p: the Pipeline
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithPipeline(p frame.Pipeline) EngineBuilderOption {
	return func(e *engine) {
		e.pipeline = p
		e.ownsPipeline = false
	}
}

// WithConfig builds the engine's pipeline from cfg. The engine closes it when Run returns.
//
// Parameters:
//   - cfg: the pipeline configuration
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfig(cfg config.Config) EngineBuilderOption {
	return func(e *engine) {
		p, err := frame.NewPipeline(cfg)
		if err != nil {
			e.pipelineError = err
			return
		}
		e.pipeline = p
		e.ownsPipeline = true
	}
}

// WithCamera registers a camera under id.
//
// Parameters:
//   - id: the camera id
//   - c: the Camera
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithCamera(id int, c camera.Camera) EngineBuilderOption {
	return func(e *engine) {
		e.cameras[id] = c
	}
}

// WithRenderFrameLimit sets an optional frame rate cap in frames per second.
// Pass 0 to uncap the frame loop (default).
//
// Parameters:
//   - fps: maximum frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}
