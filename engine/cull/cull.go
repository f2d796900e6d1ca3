package cull

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/scene"
)

// CulledObject is one visible object recorded in a (view, bin) list.
type CulledObject struct {
	TotalTransform     [16]float32
	ObjectID           uint32
	BinID              uint32
	TransformationSlot uint32
}

// Culler runs the visibility and binning stage. Every (view, bin) pair has a
// fixed-capacity record list filled by atomic append: a fetch-and-add on the pair's
// counter hands each writer a distinct slot, so record writes never overlap.
// Appends beyond capacity are dropped, while the counter keeps the true demand.
//
// CullRange may be called concurrently for disjoint object ranges. Reset and the
// readers must be separated from CullRange by a fence.
type Culler interface {
	// Bins returns the bin table.
	Bins() *BinTable

	// NumViews returns the number of views storage is sized for.
	NumViews() int

	// Capacity returns the per-(view, bin) record capacity.
	Capacity() int

	// Reset zeroes every (view, bin) counter.
	Reset()

	// CullRange tests every active object in [lo, hi) against every view and appends
	// it to each bin its scene mask routes to.
	//
	// Parameters:
	//   - views: the active views; views beyond NumViews are ignored
	//   - objects: the scene's object array with resolved world transforms
	//   - lo: first object slot (inclusive)
	//   - hi: last object slot (exclusive)
	CullRange(views *camera.ActiveViews, objects []scene.Object, lo, hi int)

	// Visible reports whether a world-space position passes the view's visibility test.
	Visible(view *camera.View, pos [3]float32) bool

	// Count returns the counter of a (view, bin) pair: the number of append attempts,
	// including dropped ones.
	Count(view, bin int) uint32

	// Recorded returns the number of valid records of a (view, bin) pair.
	Recorded(view, bin int) int

	// Record returns the record at slot of a (view, bin) pair. slot must be below Recorded.
	Record(view, bin, slot int) *CulledObject

	// Dropped returns how many appends to a (view, bin) pair exceeded capacity.
	Dropped(view, bin int) uint32

	// TotalDropped sums Dropped over every (view, bin) pair.
	TotalDropped() uint64
}

type culler struct {
	bins     *BinTable
	numViews int
	capacity int
	frustum  bool

	counts  []atomic.Uint32
	records []CulledObject
}

var _ Culler = &culler{}

// NewCuller allocates counters and record storage for numViews views, every bin of
// the table and capacity records per (view, bin).
//
// Parameters:
//   - bins: the bin table
//   - numViews: the number of views
//   - capacity: records per (view, bin), usually the maximum object count
//   - options: functional options to configure the culler
//
// Returns:
//   - Culler: the newly created culler
func NewCuller(bins *BinTable, numViews, capacity int, options ...CullerBuilderOption) Culler {
	if bins == nil {
		panic("cull: nil bin table")
	}
	c := &culler{
		bins:     bins,
		numViews: max(numViews, 0),
		capacity: max(capacity, 0),
	}
	for _, option := range options {
		option(c)
	}
	pairs := c.numViews * bins.Len()
	c.counts = make([]atomic.Uint32, pairs)
	c.records = make([]CulledObject, pairs*c.capacity)
	return c
}

func (c *culler) Bins() *BinTable {
	return c.bins
}

func (c *culler) NumViews() int {
	return c.numViews
}

func (c *culler) Capacity() int {
	return c.capacity
}

func (c *culler) Reset() {
	for i := range c.counts {
		c.counts[i].Store(0)
	}
}

func (c *culler) CullRange(views *camera.ActiveViews, objects []scene.Object, lo, hi int) {
	nv := min(views.Len(), c.numViews)
	nb := c.bins.Len()
	for i := lo; i < hi; i++ {
		obj := &objects[i]
		if !obj.Live() || !obj.Active || obj.SceneMask == 0 {
			continue
		}
		pos := common.MatrixOrigin(obj.WorldTransform)
		for v := 0; v < nv; v++ {
			if !c.Visible(views.At(v), pos) {
				continue
			}
			for b := 0; b < nb; b++ {
				if !c.bins.Routes(b, obj.SceneMask) {
					continue
				}
				pair := v*nb + b
				slot := c.counts[pair].Add(1) - 1
				if int(slot) >= c.capacity {
					continue
				}
				c.records[pair*c.capacity+int(slot)] = CulledObject{
					TotalTransform:     obj.WorldTransform,
					ObjectID:           uint32(i),
					BinID:              c.bins.At(b).ID,
					TransformationSlot: obj.TransformationSlot,
				}
			}
		}
	}
}

func (c *culler) Visible(view *camera.View, pos [3]float32) bool {
	if c.frustum && view.HasFrustum {
		return view.Frustum.ContainsPoint(pos)
	}
	return view.InFront(pos)
}

func (c *culler) Count(view, bin int) uint32 {
	return c.counts[view*c.bins.Len()+bin].Load()
}

func (c *culler) Recorded(view, bin int) int {
	return min(int(c.Count(view, bin)), c.capacity)
}

func (c *culler) Record(view, bin, slot int) *CulledObject {
	return &c.records[(view*c.bins.Len()+bin)*c.capacity+slot]
}

func (c *culler) Dropped(view, bin int) uint32 {
	n := c.Count(view, bin)
	if int(n) <= c.capacity {
		return 0
	}
	return n - uint32(c.capacity)
}

func (c *culler) TotalDropped() uint64 {
	var total uint64
	for v := 0; v < c.numViews; v++ {
		for b := 0; b < c.bins.Len(); b++ {
			total += uint64(c.Dropped(v, b))
		}
	}
	return total
}
