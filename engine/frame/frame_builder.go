package frame

import "github.com/Carmen-Shannon/oxy-cull/engine/draw"

// PipelineBuilderOption is a functional option for configuring a Pipeline.
// Use the With* functions to create options.
type PipelineBuilderOption func(p *pipeline)

// WithWorkers overrides the configured worker count.
//
// Parameters:
//   - n: the number of pool workers (minimum 1)
//
// Returns:
//   - PipelineBuilderOption: option function to apply
func WithWorkers(n int) PipelineBuilderOption {
	return func(p *pipeline) {
		p.workers = max(n, 1)
	}
}

// WithChunkSize overrides the configured number of items per pool task. Smaller
// chunks balance uneven work better; larger chunks reduce scheduling overhead.
//
// Parameters:
//   - n: items per task (minimum 1)
//
// Returns:
//   - PipelineBuilderOption: option function to apply
func WithChunkSize(n int) PipelineBuilderOption {
	return func(p *pipeline) {
		p.chunkSize = max(n, 1)
	}
}

// WithRegistry shares an existing render range registry with the pipeline. The
// registry must have been created with the configured draws per view.
//
// Parameters:
//   - r: the registry
//
// Returns:
//   - PipelineBuilderOption: option function to apply
func WithRegistry(r *draw.Registry) PipelineBuilderOption {
	return func(p *pipeline) {
		p.registry = r
	}
}
