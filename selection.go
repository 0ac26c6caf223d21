package nnfind

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
)

// Selection restricts which particles become neighbor candidates.
// Unselected particles can still be used as query points.
type Selection interface {
	Contains(i int) bool
}

// lengthed is implemented by selections that know how many particles they describe.
type lengthed interface {
	Len() int
}

// MaskSelection is a dense selection backed by a bitset, one bit per particle.
type MaskSelection struct {
	bits *bitset.BitSet
	n    int
}

// NewMaskSelection creates an empty mask for n particles.
func NewMaskSelection(n int) *MaskSelection {
	return &MaskSelection{bits: bitset.New(uint(n)), n: n} //nolint:gosec // n >= 0
}

// SelectionFromBools creates a mask from a boolean slice.
func SelectionFromBools(mask []bool) *MaskSelection {
	s := NewMaskSelection(len(mask))
	for i, ok := range mask {
		if ok {
			s.bits.Set(uint(i)) //nolint:gosec // i >= 0
		}
	}
	return s
}

// Set marks particle i as selected.
func (s *MaskSelection) Set(i int) *MaskSelection {
	s.bits.Set(uint(i)) //nolint:gosec // i >= 0
	return s
}

// Clear removes particle i from the selection.
func (s *MaskSelection) Clear(i int) *MaskSelection {
	s.bits.Clear(uint(i)) //nolint:gosec // i >= 0
	return s
}

// Contains implements Selection.
func (s *MaskSelection) Contains(i int) bool {
	return i >= 0 && i < s.n && s.bits.Test(uint(i))
}

// Len returns the number of particles the mask describes.
func (s *MaskSelection) Len() int { return s.n }

// Count returns the number of selected particles.
func (s *MaskSelection) Count() int { return int(s.bits.Count()) } //nolint:gosec // bounded by n

// IndexSelection is a sparse selection backed by a roaring bitmap.
// It suits selections of a few particles out of a large system.
type IndexSelection struct {
	rb *roaring.Bitmap
}

// NewIndexSelection creates a selection holding the given particle indices.
func NewIndexSelection(indices ...uint32) *IndexSelection {
	return &IndexSelection{rb: roaring.BitmapOf(indices...)}
}

// Add selects particle i.
func (s *IndexSelection) Add(i uint32) *IndexSelection {
	s.rb.Add(i)
	return s
}

// Remove deselects particle i.
func (s *IndexSelection) Remove(i uint32) *IndexSelection {
	s.rb.Remove(i)
	return s
}

// Contains implements Selection.
func (s *IndexSelection) Contains(i int) bool {
	return i >= 0 && uint64(i) <= uint64(^uint32(0)) && s.rb.Contains(uint32(i)) //nolint:gosec // range checked
}

// Count returns the number of selected particles.
func (s *IndexSelection) Count() int { return int(s.rb.GetCardinality()) } //nolint:gosec // fits

// Bitmap exposes the underlying roaring bitmap.
func (s *IndexSelection) Bitmap() *roaring.Bitmap { return s.rb }
