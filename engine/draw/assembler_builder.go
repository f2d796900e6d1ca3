package draw

// DefaultLayout returns a single-view layout with 256 indexed and 64 non-indexed
// draw slots and a 1024-entry draw list.
func DefaultLayout() Layout {
	return Layout{
		NumViews:          1,
		IndexedPerView:    256,
		NonIndexedPerView: 64,
		DrawListCapacity:  1024,
	}
}

// AssemblerBuilderOption is a functional option for configuring an Assembler.
type AssemblerBuilderOption func(a *assembler)

// WithLayout sets the storage layout. Negative sizes are treated as zero.
//
// Parameters:
//   - l: the layout
//
// Returns:
//   - AssemblerBuilderOption: option function to apply
func WithLayout(l Layout) AssemblerBuilderOption {
	return func(a *assembler) {
		a.layout = Layout{
			NumViews:          max(l.NumViews, 0),
			IndexedPerView:    max(l.IndexedPerView, 0),
			NonIndexedPerView: max(l.NonIndexedPerView, 0),
			DrawListCapacity:  max(l.DrawListCapacity, 0),
		}
	}
}

// WithRegistry shares an existing render range registry. It must have been created
// with the same per-view draw counts as the layout.
//
// Parameters:
//   - r: the registry
//
// Returns:
//   - AssemblerBuilderOption: option function to apply
func WithRegistry(r *Registry) AssemblerBuilderOption {
	return func(a *assembler) {
		a.registry = r
	}
}
