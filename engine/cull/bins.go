package cull

import (
	"errors"
	"fmt"
)

var (
	ErrNoBins       = errors.New("cull: bin table is empty")
	ErrDuplicateBin = errors.New("cull: duplicate bin id")
)

// Bin is a routing bucket for renderables sharing a category. An object lands in
// a bin when its scene mask shares at least one bit with the bin's mask.
type Bin struct {
	ID   uint32 `toml:"id" yaml:"id"`
	Mask uint32 `toml:"mask" yaml:"mask"`
	Name string `toml:"name" yaml:"name"`
}

// Common bin masks.
const (
	MaskOpaque      uint32 = 1 << 0
	MaskTransparent uint32 = 1 << 1
	MaskShadow      uint32 = 1 << 2
)

// DefaultBins returns the opaque, transparent and shadow-caster bins.
//
// Returns:
//   - []Bin: the default bin configuration
func DefaultBins() []Bin {
	return []Bin{
		{ID: 0, Mask: MaskOpaque, Name: "opaque"},
		{ID: 1, Mask: MaskTransparent, Name: "transparent"},
		{ID: 2, Mask: MaskShadow, Name: "shadow"},
	}
}

// BinTable is the immutable, ordered set of bins configured for a pipeline.
// Per-frame storage is addressed by a bin's index in the table, records carry its ID.
type BinTable struct {
	bins  []Bin
	index map[uint32]int
}

// NewBinTable validates and stores the given bins in order.
//
// Parameters:
//   - bins: the bins to configure
//
// Returns:
//   - *BinTable: the table
//   - error: ErrNoBins or ErrDuplicateBin
func NewBinTable(bins ...Bin) (*BinTable, error) {
	if len(bins) == 0 {
		return nil, ErrNoBins
	}
	t := &BinTable{
		bins:  make([]Bin, len(bins)),
		index: make(map[uint32]int, len(bins)),
	}
	for i, b := range bins {
		if _, ok := t.index[b.ID]; ok {
			return nil, fmt.Errorf("bin %d (%q): %w", b.ID, b.Name, ErrDuplicateBin)
		}
		t.index[b.ID] = i
		t.bins[i] = b
	}
	return t, nil
}

// Len returns the number of bins.
func (t *BinTable) Len() int {
	return len(t.bins)
}

// At returns the bin at index i.
func (t *BinTable) At(i int) Bin {
	return t.bins[i]
}

// Index returns the table index of the bin with the given ID.
func (t *BinTable) Index(id uint32) (int, bool) {
	i, ok := t.index[id]
	return i, ok
}

// Routes reports whether an object with sceneMask belongs in the bin at index i.
//
// Parameters:
//   - i: bin index
//   - sceneMask: the object's routing mask
//
// Returns:
//   - bool: true if the masks intersect
func (t *BinTable) Routes(i int, sceneMask uint32) bool {
	return t.bins[i].Mask&sceneMask != 0
}
