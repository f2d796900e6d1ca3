package camera

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-cull/common"
)

// MaxActiveViews is the maximum number of views processed in one frame.
const MaxActiveViews = 8

var ErrTooManyViews = errors.New("camera: too many active views")

// View is a per-frame snapshot of one active camera.
type View struct {
	// CameraID is copied into every per-instance record emitted for this view.
	CameraID uint32
	Position [3]float32
	// Forward is the unit viewing direction.
	Forward [3]float32

	Frustum    common.Frustum
	HasFrustum bool
}

// InFront reports whether p lies strictly in front of the view's position along
// its forward direction. Points on the plane through the camera are not visible.
//
// Parameters:
//   - p: world-space point
//
// Returns:
//   - bool: true if dot(forward, p - position) > 0
func (v *View) InFront(p [3]float32) bool {
	return common.Dot3(v.Forward, common.Sub3(p, v.Position)) > 0
}

// ActiveViews is the ordered list of views for one frame. A view's index in the
// list is the view index used for every per-view buffer.
type ActiveViews struct {
	views []View
}

// NewActiveViews creates a view list from the given views.
//
// Returns:
//   - *ActiveViews: the list
//   - error: ErrTooManyViews if more than MaxActiveViews are given
func NewActiveViews(views ...View) (*ActiveViews, error) {
	av := &ActiveViews{}
	for _, v := range views {
		if err := av.Add(v); err != nil {
			return nil, err
		}
	}
	return av, nil
}

// Add appends a view.
//
// Returns:
//   - error: ErrTooManyViews once MaxActiveViews views are present
func (a *ActiveViews) Add(v View) error {
	if len(a.views) >= MaxActiveViews {
		return ErrTooManyViews
	}
	a.views = append(a.views, v)
	return nil
}

// Reset empties the list, keeping its storage.
func (a *ActiveViews) Reset() {
	a.views = a.views[:0]
}

// Len returns the number of views. A nil list has none.
func (a *ActiveViews) Len() int {
	if a == nil {
		return 0
	}
	return len(a.views)
}

// At returns a pointer to the view at index i.
func (a *ActiveViews) At(i int) *View {
	return &a.views[i]
}
