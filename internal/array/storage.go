package array

import "github.com/nodalfs/nodedb/internal/ref"

// Storage is the narrow slice of the slab allocator (internal/alloc)
// that a packed array needs: translate a ref to its backing bytes, and
// grow/shrink/free nodes. internal/tree depends on the same interface
// so both layers are agnostic to whether the bytes ultimately come from
// a memory-mapped file or, in tests, a plain heap buffer.
type Storage interface {
	// Bytes returns a mutable view of the full node (header + payload)
	// named by r. The returned slice is only valid until the next call
	// that reallocates r.
	Bytes(r ref.Ref) ([]byte, error)

	// Alloc reserves a fresh node with at least capacity payload bytes
	// (rounded up to 8-byte alignment) and returns its ref. The header
	// is stamped with the node's capacity; the caller then writes its
	// own header over it.
	Alloc(capacity uint64) (ref.Ref, error)

	// Realloc makes the node named by old hold at least newCapacity
	// payload bytes, copying existing contents, and returns the
	// (possibly new) ref. A node that is already large enough is
	// returned unchanged; it is never shrunk. old is freed if a new node
	// was allocated.
	Realloc(old ref.Ref, newCapacity uint64) (ref.Ref, error)

	// Free releases the node named by r to the current transaction's
	// free list.
	Free(r ref.Ref) error
}
