package common

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func testViewProjection() [16]float32 {
	var view, proj, vp [16]float32
	LookAt(view[:], 0, 0, 0, 0, 0, -1, 0, 1, 0)
	Perspective(proj[:], math32.Pi/2, 1, 0.1, 100)
	Mul4(vp[:], proj[:], view[:])
	return vp
}

func TestFrustumContainsPoint(t *testing.T) {
	vp := testViewProjection()
	f := ExtractFrustumFromMatrix(vp[:])

	assert.True(t, f.ContainsPoint([3]float32{0, 0, -10}))
	assert.False(t, f.ContainsPoint([3]float32{0, 0, 10}), "behind the camera")
	assert.False(t, f.ContainsPoint([3]float32{500, 0, -10}), "far right of the view")
	assert.False(t, f.ContainsPoint([3]float32{0, 0, -500}), "beyond the far plane")
}

func TestFrustumContainsSphere(t *testing.T) {
	vp := testViewProjection()
	f := ExtractFrustumFromMatrix(vp[:])

	// Center just outside the right plane, but the radius reaches back in.
	assert.False(t, f.ContainsSphere([3]float32{12, 0, -10}, 0))
	assert.True(t, f.ContainsSphere([3]float32{12, 0, -10}, 5))
}

func TestFrustumPlanesNormalized(t *testing.T) {
	vp := testViewProjection()
	f := ExtractFrustumFromMatrix(vp[:])
	for i, p := range f.Planes {
		assert.InDelta(t, 1, math32.Sqrt(Dot3(p.Normal, p.Normal)), 1e-5, "plane %d", i)
	}
}
