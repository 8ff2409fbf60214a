// Package array implements the packed array leaf (spec component C4):
// a fixed-layout sequence of signed integers, each stored in the
// minimum power-of-two bit width that fits every value currently in
// the array. Width only ever grows; the array is rewritten (via the
// backing Storage, at a new ref when the node must grow) whenever a new
// value needs more bits than the array currently allocates per element.
package array

import (
	"fmt"

	"github.com/nodalfs/nodedb/internal/nodeformat"
	"github.com/nodalfs/nodedb/internal/ref"
	"github.com/nodalfs/nodedb/internal/wire"
)

// legalWidths lists the only element widths a packed array may claim,
// in ascending order, matching spec.md's WTypBits restriction to
// powers of two.
var legalWidths = [8]uint8{0, 1, 2, 4, 8, 16, 32, 64}

// NotFound is returned by Find's index result when v is absent, per
// spec.md §9: an explicit sentinel, never a signed -1 smuggled into an
// unsigned type.
const NotFound = -1

// Array is a handle onto one packed-array node.
type Array struct {
	store Storage
	ref   ref.Ref
	hdr   nodeformat.Header
}

// Create allocates a new, empty packed array (width 0, count 0).
// hasRefs marks the array's payload slots as refs/tagged integers
// rather than plain signed integers, per spec.md's has_refs flag.
func Create(store Storage, hasRefs bool) (*Array, error) {
	r, err := store.Alloc(0)
	if err != nil {
		return nil, wire.Wrap("array.Create", err)
	}
	a := &Array{
		store: store,
		ref:   r,
		hdr: nodeformat.Header{
			WidthType: nodeformat.WidthBits,
			HasRefs:   hasRefs,
		},
	}
	if err := a.writeHeader(); err != nil {
		return nil, err
	}
	return a, nil
}

// Open attaches to an existing packed array node.
func Open(store Storage, r ref.Ref) (*Array, error) {
	raw, err := store.Bytes(r)
	if err != nil {
		return nil, wire.Wrap("array.Open", err)
	}
	if len(raw) < nodeformat.Size {
		return nil, wire.Wrap("array.Open", fmt.Errorf("node too small: %d bytes", len(raw)))
	}
	hdr, err := nodeformat.Decode(raw[:nodeformat.Size])
	if err != nil {
		return nil, wire.Wrap("array.Open", err)
	}
	if hdr.WidthType != nodeformat.WidthBits {
		return nil, wire.Wrap("array.Open", fmt.Errorf("node is not a packed array (width type %d)", hdr.WidthType))
	}
	return &Array{store: store, ref: r, hdr: *hdr}, nil
}

// Ref returns the array's current node reference. It changes across
// calls to Set/Insert that trigger growth of the node; Erase never
// changes it.
func (a *Array) Ref() ref.Ref { return a.ref }

// Len returns the number of elements currently stored.
func (a *Array) Len() int { return int(a.hdr.Count) }

// Width returns the current per-element bit width.
func (a *Array) Width() uint8 { return a.hdr.Width }

// HasRefs reports whether payload slots are refs/tagged integers.
func (a *Array) HasRefs() bool { return a.hdr.HasRefs }

func (a *Array) writeHeader() error {
	raw, err := a.store.Bytes(a.ref)
	if err != nil {
		return wire.Wrap("array.writeHeader", err)
	}
	return wire.Wrap("array.writeHeader", a.hdr.Encode(raw))
}

// bitsNeededSigned returns the minimum legal width able to represent v
// as a two's-complement signed integer. v == 0 needs width 0: the
// all-zeros array carries no payload storage at all.
func bitsNeededSigned(v int64) uint8 {
	if v == 0 {
		return 0
	}
	for _, w := range legalWidths[1:] {
		if w == 64 {
			return 64
		}
		lo := -(int64(1) << (w - 1))
		hi := (int64(1) << (w - 1)) - 1
		if v >= lo && v <= hi {
			return w
		}
	}
	return 64
}

func payloadBytes(width uint8, count uint64) uint64 {
	return wire.RoundUp8((uint64(width)*count + 7) / 8)
}

// Get reads the element at index i, sign-extended to 64 bits.
func (a *Array) Get(i int) (int64, error) {
	if i < 0 || i >= a.Len() {
		return 0, wire.Wrap("array.Get", fmt.Errorf("index %d out of range [0,%d)", i, a.Len()))
	}
	if a.hdr.Width == 0 {
		return 0, nil
	}
	raw, err := a.store.Bytes(a.ref)
	if err != nil {
		return 0, wire.Wrap("array.Get", err)
	}
	return getRaw(raw[nodeformat.Size:], a.hdr.Width, i), nil
}

func getRaw(payload []byte, width uint8, i int) int64 {
	if width >= 8 {
		stride := int(width / 8)
		off := i * stride
		var v uint64
		for b := 0; b < stride; b++ {
			v |= uint64(payload[off+b]) << (8 * b)
		}
		return signExtend(v, width)
	}
	elemsPerByte := 8 / int(width)
	byteIdx := i / elemsPerByte
	shift := uint(i%elemsPerByte) * uint(width)
	mask := uint64(1)<<width - 1
	v := (uint64(payload[byteIdx]) >> shift) & mask
	return signExtend(v, width)
}

func setRaw(payload []byte, width uint8, i int, v int64) {
	if width == 0 {
		return
	}
	uv := uint64(v) & (uint64(1)<<width - 1)
	if width >= 8 {
		stride := int(width / 8)
		off := i * stride
		for b := 0; b < stride; b++ {
			payload[off+b] = byte(uv >> (8 * b))
		}
		return
	}
	elemsPerByte := 8 / int(width)
	byteIdx := i / elemsPerByte
	shift := uint(i%elemsPerByte) * uint(width)
	mask := uint64(1)<<width - 1
	payload[byteIdx] = payload[byteIdx]&^(byte(mask<<shift)) | byte(uv<<shift)
}

func signExtend(v uint64, width uint8) int64 {
	if width == 0 || width == 64 {
		return int64(v)
	}
	shift := 64 - width
	return int64(v<<shift) >> shift
}

// ensureWidth rewrites the array's storage at width newWidth if it
// exceeds the current width, transcoding every existing element. The
// array never contracts its width.
func (a *Array) ensureWidth(newWidth uint8) error {
	if newWidth <= a.hdr.Width {
		return nil
	}
	return a.resize(newWidth, a.Len())
}

// resize rewrites the array at newWidth/newCount, growing storage via
// Storage.Realloc when the new payload no longer fits in the current
// node capacity.
func (a *Array) resize(newWidth uint8, newCount int) error {
	needed := payloadBytes(newWidth, uint64(newCount))
	raw, err := a.store.Bytes(a.ref)
	if err != nil {
		return wire.Wrap("array.resize", err)
	}
	oldCapacity := a.hdr.Capacity
	oldWidth := a.hdr.Width
	oldCount := a.hdr.Count

	if needed <= oldCapacity && newWidth == oldWidth {
		// No transcoding or growth required; count-only change.
		a.hdr.Count = uint64(newCount)
		return a.writeHeader()
	}

	// Snapshot old elements before any reallocation invalidates raw.
	old := make([]int64, oldCount)
	if oldWidth > 0 {
		payload := raw[nodeformat.Size:]
		for i := range old {
			old[i] = getRaw(payload, oldWidth, i)
		}
	}

	if needed > oldCapacity {
		newRef, err := a.store.Realloc(a.ref, needed)
		if err != nil {
			return wire.Wrap("array.resize", err)
		}
		a.ref = newRef
	}

	raw, err = a.store.Bytes(a.ref)
	if err != nil {
		return wire.Wrap("array.resize", err)
	}
	a.hdr.Width = newWidth
	a.hdr.Count = uint64(newCount)
	if needed > oldCapacity {
		a.hdr.Capacity = wire.RoundUp8(needed)
	}
	payload := raw[nodeformat.Size:]
	for i, v := range old {
		if i < newCount {
			setRaw(payload, newWidth, i, v)
		}
	}
	return a.writeHeader()
}

// Set stores v at index i, expanding the array's width first if v
// needs more bits than the array currently allocates per element.
func (a *Array) Set(i int, v int64) error {
	if i < 0 || i >= a.Len() {
		return wire.Wrap("array.Set", fmt.Errorf("index %d out of range [0,%d)", i, a.Len()))
	}
	if need := bitsNeededSigned(v); need > a.hdr.Width {
		if err := a.ensureWidth(need); err != nil {
			return err
		}
	}
	raw, err := a.store.Bytes(a.ref)
	if err != nil {
		return wire.Wrap("array.Set", err)
	}
	setRaw(raw[nodeformat.Size:], a.hdr.Width, i, v)
	return nil
}

// Insert shifts elements [i, Len) up by one slot and stores v at i.
func (a *Array) Insert(i int, v int64) error {
	n := a.Len()
	if i < 0 || i > n {
		return wire.Wrap("array.Insert", fmt.Errorf("index %d out of range [0,%d]", i, n))
	}
	need := bitsNeededSigned(v)
	width := a.hdr.Width
	if need > width {
		width = need
	}
	if err := a.resize(width, n+1); err != nil {
		return err
	}
	raw, err := a.store.Bytes(a.ref)
	if err != nil {
		return wire.Wrap("array.Insert", err)
	}
	payload := raw[nodeformat.Size:]
	shiftUp(payload, a.hdr.Width, i, n)
	setRaw(payload, a.hdr.Width, i, v)
	return nil
}

// shiftUp moves elements [i, n) to [i+1, n+1), highest index first so
// overlapping slots are preserved. Byte-granular widths use copy
// (handles overlap like memmove); sub-byte widths iterate element-wise
// from the top down, as spec.md's §4.1 "Mutators" prescribes.
func shiftUp(payload []byte, width uint8, i, n int) {
	if width == 0 {
		return
	}
	if width >= 8 {
		stride := int(width / 8)
		copy(payload[(i+1)*stride:(n+1)*stride], payload[i*stride:n*stride])
		return
	}
	for k := n; k > i; k-- {
		setRaw(payload, width, k, getRaw(payload, width, k-1))
	}
}

// shiftDown moves elements (i, n) to [i, n-1), lowest index first.
func shiftDown(payload []byte, width uint8, i, n int) {
	if width == 0 {
		return
	}
	if width >= 8 {
		stride := int(width / 8)
		copy(payload[i*stride:(n-1)*stride], payload[(i+1)*stride:n*stride])
		return
	}
	for k := i; k < n-1; k++ {
		setRaw(payload, width, k, getRaw(payload, width, k+1))
	}
}

// Add appends v to the end of the array.
func (a *Array) Add(v int64) error {
	return a.Insert(a.Len(), v)
}

// Erase removes the element at index i, shifting subsequent elements
// down by one slot. Width is never contracted.
func (a *Array) Erase(i int) error {
	n := a.Len()
	if i < 0 || i >= n {
		return wire.Wrap("array.Erase", fmt.Errorf("index %d out of range [0,%d)", i, n))
	}
	raw, err := a.store.Bytes(a.ref)
	if err != nil {
		return wire.Wrap("array.Erase", err)
	}
	shiftDown(raw[nodeformat.Size:], a.hdr.Width, i, n)
	a.hdr.Count = uint64(n - 1)
	return a.writeHeader()
}

// Find returns the lowest index in [start, end) holding v, or
// NotFound. It rejects immediately (without scanning) if v cannot be
// represented at the array's current width.
func (a *Array) Find(v int64, start, end int) (int, error) {
	n := a.Len()
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start >= end {
		return NotFound, nil
	}
	if bitsNeededSigned(v) > a.hdr.Width {
		return NotFound, nil
	}
	if a.hdr.Width == 0 {
		// Every element of a width-0 array is 0, and v == 0 here.
		return start, nil
	}
	raw, err := a.store.Bytes(a.ref)
	if err != nil {
		return NotFound, wire.Wrap("array.Find", err)
	}
	payload := raw[nodeformat.Size:]
	for i := start; i < end; i++ {
		if getRaw(payload, a.hdr.Width, i) == v {
			return i, nil
		}
	}
	return NotFound, nil
}
