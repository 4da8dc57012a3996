// Package indexset provides sets of globally numbered DoF indices, used
// to describe which DoFs a process owns on a mesh level. Sets produced by
// a sequential numbering pass are contiguous, which is exactly the shape
// the level store's unit-stride compression exploits.
package indexset

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Set is a set of 64-bit global DoF indices. It wraps a roaring bitmap,
// which stores contiguous ranges in run-length form.
//
// A Set is not safe for concurrent mutation.
type Set struct {
	rb *roaring64.Bitmap
}

// New creates an empty set.
func New() *Set {
	return &Set{rb: roaring64.New()}
}

// Add inserts a single index.
func (s *Set) Add(dof uint64) {
	s.rb.Add(dof)
}

// AddRange inserts the half-open range [begin, end).
func (s *Set) AddRange(begin, end uint64) {
	if begin >= end {
		return
	}
	s.rb.AddRange(begin, end)
}

// Contains reports whether the index is in the set.
func (s *Set) Contains(dof uint64) bool {
	return s.rb.Contains(dof)
}

// NElements returns the number of indices in the set.
func (s *Set) NElements() uint64 {
	return s.rb.GetCardinality()
}

// IsEmpty reports whether the set holds no indices.
func (s *Set) IsEmpty() bool {
	return s.rb.IsEmpty()
}

// NthIndexInSet returns the n-th smallest index (0-based). ok is false
// when n is out of range.
func (s *Set) NthIndexInSet(n uint64) (dof uint64, ok bool) {
	v, err := s.rb.Select(n)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IndexWithinSet returns the 0-based position of dof within the set, or
// ok=false if dof is not a member.
func (s *Set) IndexWithinSet(dof uint64) (pos uint64, ok bool) {
	if !s.rb.Contains(dof) {
		return 0, false
	}
	return s.rb.Rank(dof) - 1, true
}

// IsContiguous reports whether the set is a single gap-free range. The
// empty set counts as contiguous.
func (s *Set) IsContiguous() bool {
	if s.rb.IsEmpty() {
		return true
	}
	return s.rb.Maximum()-s.rb.Minimum()+1 == s.rb.GetCardinality()
}

// Union adds all indices of other to s.
func (s *Set) Union(other *Set) {
	s.rb.Or(other.rb)
}

// Intersect removes all indices of s not present in other.
func (s *Set) Intersect(other *Set) {
	s.rb.And(other.rb)
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	return &Set{rb: s.rb.Clone()}
}

// All iterates the indices in ascending order.
func (s *Set) All() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}

// SizeInBytes returns the approximate in-memory size of the set.
func (s *Set) SizeInBytes() uint64 {
	return s.rb.GetSizeInBytes()
}
