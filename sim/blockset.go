package sim

import (
	"maps"
	"slices"
)

// BlockSet is an unordered set of block handles. The zero value is ready to use.
// Iteration goes through Sorted so that every consumer sees the same order
// regardless of map layout.
type BlockSet struct {
	m map[BlockIndex]struct{}
}

// NewBlockSet creates a set holding blocks.
func NewBlockSet(blocks ...BlockIndex) BlockSet {
	s := BlockSet{m: make(map[BlockIndex]struct{}, len(blocks))}
	for _, b := range blocks {
		s.m[b] = struct{}{}
	}
	return s
}

// Add inserts b. Adding a member twice is a no-op.
func (s *BlockSet) Add(b BlockIndex) {
	if s.m == nil {
		s.m = make(map[BlockIndex]struct{})
	}
	s.m[b] = struct{}{}
}

// AddAll inserts every member of other.
func (s *BlockSet) AddAll(other BlockSet) {
	for b := range other.m {
		s.Add(b)
	}
}

// Remove deletes b if present.
func (s *BlockSet) Remove(b BlockIndex) {
	delete(s.m, b)
}

// Contains reports membership.
func (s BlockSet) Contains(b BlockIndex) bool {
	_, ok := s.m[b]
	return ok
}

// Len returns the number of members.
func (s BlockSet) Len() int {
	return len(s.m)
}

// Empty reports whether the set has no members.
func (s BlockSet) Empty() bool {
	return len(s.m) == 0
}

// Clear removes every member, keeping the allocation.
func (s *BlockSet) Clear() {
	clear(s.m)
}

// Clone returns an independent copy.
func (s BlockSet) Clone() BlockSet {
	return BlockSet{m: maps.Clone(s.m)}
}

// Sorted returns the members in ascending handle order.
func (s BlockSet) Sorted() []BlockIndex {
	return slices.Sorted(maps.Keys(s.m))
}

// RemoveIf deletes every member for which fn returns true.
func (s *BlockSet) RemoveIf(fn func(BlockIndex) bool) {
	for b := range s.m {
		if fn(b) {
			delete(s.m, b)
		}
	}
}
