package alloc

import (
	"github.com/TomTonic/multimap"
)

// freeEntry is one reclaimable node: its file offset and its payload
// capacity in bytes.
type freeEntry struct {
	offset   uint64
	capacity uint64
}

// FreeList indexes free nodes by capacity so a best-fit search for "a
// free block of at least N bytes" is a range query rather than a linear
// scan. Built on TomTonic/multimap's ordered-key multimap (the sibling
// example repo retrieved alongside the teacher): the capacity is the
// map key, offsets sharing a capacity class are the key's value set.
type FreeList struct {
	byCapacity *multimap.MultiMap[uint64]
	capacityOf map[uint64]uint64 // offset -> capacity, for best-fit bookkeeping
}

// NewFreeList returns an empty free list.
func NewFreeList() *FreeList {
	return &FreeList{
		byCapacity: multimap.New[uint64](),
		capacityOf: make(map[uint64]uint64),
	}
}

// Put records offset as free, holding capacity bytes of payload.
func (f *FreeList) Put(offset, capacity uint64) {
	f.byCapacity.PutValue(multimap.FromUint64(capacity), offset)
	f.capacityOf[offset] = capacity
}

// TakeFit removes and returns the free entry with the smallest capacity
// that is still >= minCapacity (best fit), or ok=false if none exists.
func (f *FreeList) TakeFit(minCapacity uint64) (offset, capacity uint64, ok bool) {
	candidates := f.byCapacity.GetValuesFromInclusive(multimap.FromUint64(minCapacity))
	if candidates.Size() == 0 {
		return 0, 0, false
	}

	best := uint64(0)
	bestCap := uint64(0)
	haveBest := false
	for _, o := range candidates.ToSlice() {
		c, known := f.capacityOf[o]
		if !known {
			continue
		}
		if !haveBest || c < bestCap || (c == bestCap && o < best) {
			best, bestCap, haveBest = o, c, true
		}
	}
	if !haveBest {
		return 0, 0, false
	}

	f.byCapacity.RemoveValue(multimap.FromUint64(bestCap), best)
	delete(f.capacityOf, best)
	return best, bestCap, true
}

// Merge absorbs other's entries into f, leaving other empty.
func (f *FreeList) Merge(other *FreeList) {
	for offset, capacity := range other.capacityOf {
		f.Put(offset, capacity)
	}
	other.capacityOf = make(map[uint64]uint64)
	other.byCapacity = multimap.New[uint64]()
}

// Len reports how many free entries remain.
func (f *FreeList) Len() int {
	return len(f.capacityOf)
}

// Entries returns a snapshot of all free entries, for diagnostics and
// free-list-invariant checks (spec.md §8 property 3's tiling
// invariant).
func (f *FreeList) Entries() []freeEntry {
	out := make([]freeEntry, 0, len(f.capacityOf))
	for o, c := range f.capacityOf {
		out = append(out, freeEntry{offset: o, capacity: c})
	}
	return out
}
