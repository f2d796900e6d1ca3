package cull

// CullerBuilderOption is a functional option for configuring a Culler.
type CullerBuilderOption func(c *culler)

// WithFrustumCulling replaces the front half-space test with a six-plane frustum
// test for views that carry a frustum. Views without one keep the half-space test.
//
// Parameters:
//   - enabled: true to test against the view frustum
//
// Returns:
//   - CullerBuilderOption: option function to apply
func WithFrustumCulling(enabled bool) CullerBuilderOption {
	return func(c *culler) {
		c.frustum = enabled
	}
}
