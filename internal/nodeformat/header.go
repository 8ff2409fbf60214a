// Package nodeformat parses and writes the 8-byte header that tags every
// node allocation with its width, element count and encoding. It is the
// lowest layer of the substrate: packed arrays (internal/array) and the
// B+-tree inner nodes (internal/tree) are both just payloads behind one
// of these headers.
package nodeformat

import (
	"encoding/binary"
	"fmt"

	"github.com/nodalfs/nodedb/internal/wire"
)

// Size is the fixed byte length of every node header.
const Size = 8

// WidthType is the 2-bit selector in byte 4 that says how to interpret
// the element width and where the element count lives.
type WidthType uint8

const (
	WidthBits     WidthType = 0 // legacy: count elements of width bits
	WidthBytes    WidthType = 1 // legacy: count elements of width bytes
	WidthIgnore   WidthType = 2 // legacy: count raw bytes, no element width
	WidthExtended WidthType = 3 // byte 5 names the extended encoding
)

// Encoding identifies an extended-layout variant (byte 5, when
// WidthType == WidthExtended).
type Encoding uint8

const (
	EncodingPacked Encoding = 0 // single sub-array, width up to 64 bits, 16-bit count
	EncodingFlex   Encoding = 2 // two independently-widthed sub-arrays
)

// legacyWidths are the only element widths the legacy WidthBits/WidthBytes
// encodings may claim; Packed allows any width in 1..64 and Flex any
// width that fits in 6 bits (0..63).
var legacyWidths = [8]uint8{0, 1, 2, 4, 8, 16, 32, 64}

// Header is the decoded form of a node's 8-byte on-disk header.
//
// For WidthBits/WidthBytes/WidthIgnore and for Packed, Width and Count
// describe the single payload array. For Flex, Width/Count describe
// sub-array A and WidthB/CountB describe sub-array B.
type Header struct {
	Capacity uint64 // total payload capacity in bytes, always a multiple of 8
	Width    uint8  // bits (Bits/Packed/Flex-A) or bytes (Bytes) per element
	Count    uint64

	WidthB uint8 // Flex sub-array B width, in bits
	CountB uint64

	WidthType WidthType
	Encoding  Encoding // only meaningful when WidthType == WidthExtended

	HasRefs           bool // payload slots are refs/tagged integers
	ContextFlag       bool // opaque pass-through bit for the object layer
	IsInnerBPTreeNode bool // node participates in a B+-tree inner level
}

// Legacy width/count limits: 21 bits of capacity (shifted left 3 for
// 8-byte alignment) and 24 bits of element count (byte 5 high byte +
// bytes 6-7 low word).
const (
	maxLegacyCapacity = (uint64(1) << 24) - 8
	maxLegacyCount    = (uint64(1) << 24) - 1

	// Extended layouts trade capacity/count range for a wider per-element
	// width: 16 bits of capacity, 16 bits of count (Packed), or two
	// 10-bit counts packed alongside 6-bit widths (Flex).
	maxExtendedCapacity = (uint64(1) << 16) - 8
	maxPackedCount      = (uint64(1) << 16) - 1
	maxFlexCount        = (uint64(1) << 10) - 1
	maxFlexWidth        = (uint64(1) << 6) - 1
)

// IsLegalLegacyWidth reports whether w is one of the power-of-two widths
// the legacy WidthBits encoding may use.
func IsLegalLegacyWidth(w uint8) bool {
	for _, lw := range legacyWidths {
		if lw == w {
			return true
		}
	}
	return false
}

func log2Width(w uint8) (uint8, error) {
	switch w {
	case 0:
		return 0, nil
	case 1:
		return 1, nil
	case 2:
		return 2, nil
	case 4:
		return 3, nil
	case 8:
		return 4, nil
	case 16:
		return 5, nil
	case 32:
		return 6, nil
	case 64:
		return 7, nil
	default:
		return 0, fmt.Errorf("width %d is not a legal legacy power-of-two width", w)
	}
}

func widthFromLog2(l uint8) uint8 {
	return legacyWidths[l&0x7]
}

// Encode writes h's on-disk representation into dst[:Size].
func (h *Header) Encode(dst []byte) error {
	if len(dst) < Size {
		return fmt.Errorf("nodeformat: header destination too small: %d < %d", len(dst), Size)
	}
	for i := range dst[:Size] {
		dst[i] = 0
	}

	var flags byte
	if h.IsInnerBPTreeNode {
		flags |= 1 << 7
	}
	if h.HasRefs {
		flags |= 1 << 6
	}
	if h.ContextFlag {
		flags |= 1 << 5
	}
	flags |= byte(h.WidthType&0x3) << 3

	switch h.WidthType {
	case WidthBits, WidthBytes, WidthIgnore:
		if h.Capacity > maxLegacyCapacity {
			return fmt.Errorf("nodeformat: legacy capacity %d exceeds %d", h.Capacity, maxLegacyCapacity)
		}
		if h.Capacity%8 != 0 {
			return fmt.Errorf("nodeformat: capacity %d is not 8-byte aligned", h.Capacity)
		}
		if h.Count > maxLegacyCount {
			return fmt.Errorf("nodeformat: legacy count %d exceeds %d", h.Count, maxLegacyCount)
		}
		putUint24(dst[0:3], h.Capacity)

		if h.WidthType != WidthIgnore {
			l, err := log2Width(h.Width)
			if err != nil {
				return err
			}
			flags |= l & 0x7
		}
		dst[4] = flags
		dst[5] = byte(h.Count >> 16)
		binary.LittleEndian.PutUint16(dst[6:8], uint16(h.Count))
		return nil

	case WidthExtended:
		if h.Capacity > maxExtendedCapacity {
			return fmt.Errorf("nodeformat: extended capacity %d exceeds %d", h.Capacity, maxExtendedCapacity)
		}
		if h.Capacity%8 != 0 {
			return fmt.Errorf("nodeformat: capacity %d is not 8-byte aligned", h.Capacity)
		}
		binary.LittleEndian.PutUint16(dst[0:2], uint16(h.Capacity))
		dst[4] = flags
		dst[5] = byte(h.Encoding)

		switch h.Encoding {
		case EncodingPacked:
			if h.Width == 0 || h.Width > 64 {
				return fmt.Errorf("nodeformat: packed width %d out of range 1..64", h.Width)
			}
			if h.Count > maxPackedCount {
				return fmt.Errorf("nodeformat: packed count %d exceeds %d", h.Count, maxPackedCount)
			}
			dst[3] = h.Width
			binary.LittleEndian.PutUint16(dst[6:8], uint16(h.Count))
			return nil

		case EncodingFlex:
			if uint64(h.Width) > maxFlexWidth || uint64(h.WidthB) > maxFlexWidth {
				return fmt.Errorf("nodeformat: flex widths must fit in 6 bits")
			}
			if h.Count > maxFlexCount || h.CountB > maxFlexCount {
				return fmt.Errorf("nodeformat: flex counts must fit in 10 bits")
			}
			binary.LittleEndian.PutUint16(dst[2:4], packFlex(h.Width, h.Count))
			binary.LittleEndian.PutUint16(dst[6:8], packFlex(h.WidthB, h.CountB))
			return nil

		default:
			return fmt.Errorf("nodeformat: unknown extended encoding %d", h.Encoding)
		}

	default:
		return fmt.Errorf("nodeformat: unknown width type %d", h.WidthType)
	}
}

// Decode parses an on-disk header from src[:Size].
func Decode(src []byte) (*Header, error) {
	if len(src) < Size {
		return nil, wire.Wrap("nodeformat.Decode", fmt.Errorf("short header: %d bytes", len(src)))
	}

	flags := src[4]
	h := &Header{
		IsInnerBPTreeNode: flags&(1<<7) != 0,
		HasRefs:           flags&(1<<6) != 0,
		ContextFlag:       flags&(1<<5) != 0,
		WidthType:         WidthType((flags >> 3) & 0x3),
	}

	switch h.WidthType {
	case WidthBits, WidthBytes, WidthIgnore:
		h.Capacity = getUint24(src[0:3])
		if h.WidthType != WidthIgnore {
			h.Width = widthFromLog2(flags & 0x7)
		}
		h.Count = uint64(src[5])<<16 | uint64(binary.LittleEndian.Uint16(src[6:8]))
		return h, nil

	case WidthExtended:
		h.Capacity = uint64(binary.LittleEndian.Uint16(src[0:2]))
		h.Encoding = Encoding(src[5])

		switch h.Encoding {
		case EncodingPacked:
			h.Width = src[3]
			h.Count = uint64(binary.LittleEndian.Uint16(src[6:8]))
			return h, nil

		case EncodingFlex:
			h.Width, h.Count = unpackFlex(binary.LittleEndian.Uint16(src[2:4]))
			h.WidthB, h.CountB = unpackFlex(binary.LittleEndian.Uint16(src[6:8]))
			return h, nil

		default:
			return nil, wire.Wrap("nodeformat.Decode", fmt.Errorf("unknown extended encoding tag %d", h.Encoding))
		}

	default:
		return nil, wire.Wrap("nodeformat.Decode", fmt.Errorf("unreachable width type %d", h.WidthType))
	}
}

// TotalSize returns the full 8-byte-aligned byte size of a node (header
// plus payload) given its claimed payload bit length.
func TotalSize(payloadBits uint64) uint64 {
	return Size + wire.RoundUp8((payloadBits+7)/8)
}

func putUint24(dst []byte, v uint64) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
}

func getUint24(src []byte) uint64 {
	return uint64(src[0]) | uint64(src[1])<<8 | uint64(src[2])<<16
}

func packFlex(width uint8, count uint64) uint16 {
	return uint16(width&0x3f) | uint16(count&0x3ff)<<6
}

func unpackFlex(v uint16) (width uint8, count uint64) {
	return uint8(v & 0x3f), uint64(v>>6) & 0x3ff
}
