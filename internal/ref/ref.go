// Package ref defines the Ref type: a non-negative integer that either
// names a node's byte offset in the backing file, or carries a tagged
// inline integer. It has no dependencies so every layer of the
// substrate (array, tree, alloc, commit) can share the one definition
// without import cycles.
package ref

// Ref is an offset into the backing file/mapping (lsb 0) or a tagged
// inline integer (lsb 1). Ref(0) is the null reference.
type Ref uint64

// Null is the reference that names no node.
const Null Ref = 0

// IsNull reports whether r is the null reference.
func (r Ref) IsNull() bool {
	return r == Null
}

// IsInline reports whether r carries a tagged integer rather than
// naming a node.
func (r Ref) IsInline() bool {
	return r&1 == 1
}

// TaggedInt packs a signed integer into an inline Ref. The caller is
// responsible for ensuring v fits in 63 bits; values from the packed
// array's own width-promotion scheme always do.
func TaggedInt(v int64) Ref {
	return Ref(uint64(v)<<1 | 1)
}

// InlineValue unpacks the signed integer carried by an inline Ref. The
// caller must have checked IsInline first; dereferencing a non-inline
// Ref as an integer is a programming error the caller must guard
// against.
func (r Ref) InlineValue() int64 {
	return int64(r) >> 1
}

// FileOffset returns the byte offset a non-inline Ref names. The caller
// must have checked !IsInline first.
func (r Ref) FileOffset() uint64 {
	return uint64(r)
}

// FromOffset builds a Ref naming a node at the given 8-byte-aligned
// file offset.
func FromOffset(off uint64) Ref {
	return Ref(off)
}
