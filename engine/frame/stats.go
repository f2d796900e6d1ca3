package frame

import "time"

// Stats describes one executed frame.
type Stats struct {
	// Objects is the size of the slot index space processed.
	Objects int
	// Views is the number of active views.
	Views int

	Resolve time.Duration
	Cull    time.Duration
	Clear   time.Duration
	Build   time.Duration

	// Visible holds, per view, the records written across all bins.
	Visible []int
	// Emitted holds, per view, the sub-draw emissions of the Build phase.
	Emitted []uint32

	// DroppedRecords counts culled objects that did not fit their (view, bin) list.
	DroppedRecords uint64
	// DroppedDrawList counts draw-list entries beyond capacity.
	DroppedDrawList uint64
}

// Total returns the summed duration of every stage.
func (s Stats) Total() time.Duration {
	return s.Resolve + s.Cull + s.Clear + s.Build
}

// TotalVisible sums Visible over every view.
func (s Stats) TotalVisible() int {
	n := 0
	for _, v := range s.Visible {
		n += v
	}
	return n
}

// TotalEmitted sums Emitted over every view.
func (s Stats) TotalEmitted() int {
	n := 0
	for _, e := range s.Emitted {
		n += int(e)
	}
	return n
}
