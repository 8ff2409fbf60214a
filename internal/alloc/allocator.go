// Package alloc implements the slab allocator (spec component C2):
// translation from Ref to backing-memory bytes, allocation of free
// space, and the two-tier free list (current-transaction and
// past-version) described in spec.md §4.3.
package alloc

import (
	"fmt"

	"github.com/nodalfs/nodedb/internal/dberr"
	"github.com/nodalfs/nodedb/internal/nodeformat"
	"github.com/nodalfs/nodedb/internal/ref"
	"github.com/nodalfs/nodedb/internal/wire"
)

// Allocator owns the backing mapping and every ref that currently
// names live storage within it. It is not safe for concurrent
// mutation; spec.md §5 requires at most one writer transaction at a
// time, enforced above this package by internal/procsync.
type Allocator struct {
	backing    Backing
	headerSize uint64 // reserved region at the front of the file (top-ref block)
	eof        uint64 // next append offset

	generalFree *FreeList            // reusable by the next commit
	pastFree    map[uint64]*FreeList // version -> freed during that version, pending release
	currentFree []freeEntry          // freed by the in-progress transaction
	txnAlloc    []ref.Ref            // allocated by the in-progress transaction, for Abort
}

// New creates an allocator over backing, reserving the first
// headerSize bytes for the caller's own use (the top-ref block).
func New(backing Backing, headerSize uint64) (*Allocator, error) {
	eof := headerSize
	if backing.Len() > eof {
		eof = backing.Len()
	}
	if backing.Len() < headerSize {
		if err := backing.Grow(headerSize); err != nil {
			return nil, wire.Wrap("alloc.New", err)
		}
	}
	return &Allocator{
		backing:     backing,
		headerSize:  headerSize,
		eof:         eof,
		generalFree: NewFreeList(),
		pastFree:    make(map[uint64]*FreeList),
	}, nil
}

// Backing exposes the raw mapping, for the top-ref block and the
// encrypted page layer.
func (a *Allocator) Backing() Backing { return a.backing }

// EndOfFile returns the current logical end-of-file offset.
func (a *Allocator) EndOfFile() uint64 { return a.eof }

// Alloc reserves a fresh node of at least capacity payload bytes
// (rounded up to 8-byte alignment), preferring the general free list
// before growing the file, per spec.md §4.3. The returned node's header
// is stamped with capacity immediately, so Translate sees a consistent
// region before the caller has written anything else into it.
func (a *Allocator) Alloc(capacity uint64) (ref.Ref, error) {
	capacity = wire.RoundUp8(capacity)
	needed := nodeformat.Size + int(capacity)

	if offset, cap8, ok := a.generalFree.TakeFit(capacity); ok {
		// cap8 is the free entry's payload capacity; the entry's total
		// byte span at offset is Size+cap8. Carving out Size+capacity
		// bytes for the new node leaves a remainder of cap8-capacity
		// bytes, which can host its own node (header+payload) only if
		// it's at least Size bytes.
		remainder := cap8 - capacity
		if remainder >= nodeformat.Size {
			tailOffset := offset + uint64(needed)
			tailCap := remainder - nodeformat.Size
			if err := a.stampHeader(tailOffset, tailCap); err != nil {
				return ref.Null, err
			}
			a.generalFree.Put(tailOffset, tailCap)
		}
		if err := a.stampHeader(offset, capacity); err != nil {
			return ref.Null, err
		}
		r := ref.FromOffset(offset)
		a.txnAlloc = append(a.txnAlloc, r)
		return r, nil
	}

	offset := a.eof
	newEOF := offset + uint64(needed)
	if newEOF > a.backing.Len() {
		growTo := wire.RoundUp8(newEOF * 2)
		if growTo < newEOF {
			growTo = newEOF
		}
		if err := a.backing.Grow(growTo); err != nil {
			return ref.Null, fmt.Errorf("%w: %v", dberr.ErrSpaceExhausted, err)
		}
	}
	a.eof = newEOF
	if err := a.stampHeader(offset, capacity); err != nil {
		return ref.Null, err
	}
	r := ref.FromOffset(offset)
	a.txnAlloc = append(a.txnAlloc, r)
	return r, nil
}

// stampHeader writes a minimal, valid legacy-bits header declaring
// capacity at offset, bypassing Translate (which would otherwise try to
// decode the still-uninitialized bytes it's meant to establish).
func (a *Allocator) stampHeader(offset, capacity uint64) error {
	raw := a.backing.Bytes()
	if offset+uint64(nodeformat.Size) > uint64(len(raw)) {
		return fmt.Errorf("%w: stamp at offset %d exceeds mapping of %d bytes", dberr.ErrCorruptedFile, offset, len(raw))
	}
	hdr := nodeformat.Header{Capacity: capacity, WidthType: nodeformat.WidthBits}
	return hdr.Encode(raw[offset : offset+nodeformat.Size])
}

// Translate returns the full node bytes (header + payload) named by r,
// validating that r lies past the reserved header region and is 8-byte
// aligned, and that the header's claimed size fits inside the mapping
// (spec.md §8 property 3, §4.3 "corruption").
func (a *Allocator) Translate(r ref.Ref) ([]byte, error) {
	if r.IsInline() {
		return nil, fmt.Errorf("%w: cannot translate inline ref %d", dberr.ErrInvalidArgument, uint64(r))
	}
	offset := r.FileOffset()
	if offset < a.headerSize {
		return nil, fmt.Errorf("%w: ref %d lies inside the reserved %d-byte header region", dberr.ErrCorruptedFile, offset, a.headerSize)
	}
	if offset%8 != 0 {
		return nil, fmt.Errorf("%w: ref %d is not 8-byte aligned", dberr.ErrCorruptedFile, offset)
	}
	if offset+nodeformat.Size > a.backing.Len() {
		return nil, fmt.Errorf("%w: ref %d header extends past mapping of %d bytes", dberr.ErrCorruptedFile, offset, a.backing.Len())
	}
	raw := a.backing.Bytes()
	hdr, err := nodeformat.Decode(raw[offset : offset+nodeformat.Size])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dberr.ErrCorruptedFile, err)
	}
	total := nodeformat.Size + hdr.Capacity
	if offset+total > a.backing.Len() {
		return nil, fmt.Errorf("%w: ref %d claims %d bytes past mapping of %d bytes", dberr.ErrCorruptedFile, offset, total, a.backing.Len())
	}
	return raw[offset : offset+total], nil
}

// Bytes implements array.Storage.
func (a *Allocator) Bytes(r ref.Ref) ([]byte, error) { return a.Translate(r) }

// Realloc makes the node named by old hold at least newCapacity payload
// bytes. If the node's current capacity already suffices it is reused
// in place (it is never shrunk); otherwise a new node is allocated, the
// header and payload are copied, and old is freed.
func (a *Allocator) Realloc(old ref.Ref, newCapacity uint64) (ref.Ref, error) {
	raw, err := a.Translate(old)
	if err != nil {
		return ref.Null, err
	}
	hdr, err := nodeformat.Decode(raw[:nodeformat.Size])
	if err != nil {
		return ref.Null, fmt.Errorf("%w: %v", dberr.ErrCorruptedFile, err)
	}
	newCapacity = wire.RoundUp8(newCapacity)
	if newCapacity <= hdr.Capacity {
		return old, nil
	}

	newRef, err := a.Alloc(newCapacity)
	if err != nil {
		return ref.Null, err
	}
	// Re-translate: Alloc may have grown/remapped the backing store,
	// invalidating raw.
	oldRaw, err := a.Translate(old)
	if err != nil {
		return ref.Null, err
	}
	newRaw, err := a.Translate(newRef)
	if err != nil {
		return ref.Null, err
	}
	copy(newRaw[nodeformat.Size:], oldRaw[nodeformat.Size:])

	// Preserve the old header's Width/Count/flags but keep the new
	// node's own Capacity: Alloc already stamped newRaw's header to
	// match the larger region it actually reserved, and that's the
	// value that must remain on disk for Translate to see the right
	// span next time.
	oldHdr, err := nodeformat.Decode(oldRaw[:nodeformat.Size])
	if err != nil {
		return ref.Null, fmt.Errorf("%w: %v", dberr.ErrCorruptedFile, err)
	}
	newHdr := *oldHdr
	newHdr.Capacity = newCapacity
	if err := newHdr.Encode(newRaw[:nodeformat.Size]); err != nil {
		return ref.Null, err
	}

	if err := a.Free(old); err != nil {
		return ref.Null, err
	}
	return newRef, nil
}

// Free releases r to the current transaction's free list, from which
// it becomes eligible for reuse once the transaction commits and the
// freeing version is no longer pinned by any reader.
func (a *Allocator) Free(r ref.Ref) error {
	raw, err := a.Translate(r)
	if err != nil {
		return err
	}
	hdr, err := nodeformat.Decode(raw[:nodeformat.Size])
	if err != nil {
		return fmt.Errorf("%w: %v", dberr.ErrCorruptedFile, err)
	}
	a.currentFree = append(a.currentFree, freeEntry{offset: r.FileOffset(), capacity: hdr.Capacity})
	return nil
}

// CommitFreeList moves the current transaction's free list into the
// past-free pool tagged with version, and clears the transaction's
// allocation log (those nodes are now reachable and permanent).
func (a *Allocator) CommitFreeList(version uint64) {
	fl := NewFreeList()
	for _, e := range a.currentFree {
		fl.Put(e.offset, e.capacity)
	}
	a.pastFree[version] = fl
	a.currentFree = nil
	a.txnAlloc = nil
}

// AbortTransaction releases every node allocated since the transaction
// began directly into the general free pool, where it is immediately
// reusable, and discards anything the transaction had queued to free.
func (a *Allocator) AbortTransaction() {
	for _, r := range a.txnAlloc {
		if raw, err := a.Translate(r); err == nil {
			if hdr, err := nodeformat.Decode(raw[:nodeformat.Size]); err == nil {
				a.generalFree.Put(r.FileOffset(), hdr.Capacity)
			}
		}
	}
	a.txnAlloc = nil
	a.currentFree = nil
}

// ReleaseVersion merges the free list retired by version into the
// general pool. The caller (internal/commit) must not call this while
// any reader handle still pins version.
func (a *Allocator) ReleaseVersion(version uint64) {
	fl, ok := a.pastFree[version]
	if !ok {
		return
	}
	a.generalFree.Merge(fl)
	delete(a.pastFree, version)
}

// GeneralFreeLen reports how many entries are currently reusable, for
// diagnostics and tests.
func (a *Allocator) GeneralFreeLen() int { return a.generalFree.Len() }
