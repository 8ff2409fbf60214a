package nodeformat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTripLegacyBits(t *testing.T) {
	for _, w := range legacyWidths {
		h := &Header{
			Capacity:  64,
			Width:     w,
			Count:     5,
			WidthType: WidthBits,
			HasRefs:   w == 64,
		}
		buf := make([]byte, Size)
		require.NoError(t, h.Encode(buf))

		got, err := Decode(buf)
		require.NoError(t, err)
		require.Equal(t, h.Capacity, got.Capacity)
		require.Equal(t, h.Width, got.Width)
		require.Equal(t, h.Count, got.Count)
		require.Equal(t, h.HasRefs, got.HasRefs)
		require.Equal(t, WidthBits, got.WidthType)
	}
}

func TestHeaderRoundTripPacked(t *testing.T) {
	h := &Header{
		Capacity:  128,
		Width:     37,
		Count:     300,
		WidthType: WidthExtended,
		Encoding:  EncodingPacked,
	}
	buf := make([]byte, Size)
	require.NoError(t, h.Encode(buf))

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, h.Capacity, got.Capacity)
	require.Equal(t, h.Width, got.Width)
	require.Equal(t, h.Count, got.Count)
	require.Equal(t, WidthExtended, got.WidthType)
	require.Equal(t, EncodingPacked, got.Encoding)
}

func TestHeaderRoundTripFlex(t *testing.T) {
	h := &Header{
		Capacity:  48,
		Width:     9,
		Count:     100,
		WidthB:    13,
		CountB:    42,
		WidthType: WidthExtended,
		Encoding:  EncodingFlex,
		HasRefs:   true,
	}
	buf := make([]byte, Size)
	require.NoError(t, h.Encode(buf))

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, h.Width, got.Width)
	require.Equal(t, h.Count, got.Count)
	require.Equal(t, h.WidthB, got.WidthB)
	require.Equal(t, h.CountB, got.CountB)
	require.True(t, got.HasRefs)
}

func TestHeaderInvalidLegacyWidth(t *testing.T) {
	h := &Header{Capacity: 8, Width: 3, Count: 1, WidthType: WidthBits}
	buf := make([]byte, Size)
	require.Error(t, h.Encode(buf))
}

func TestHeaderRejectsUnalignedCapacity(t *testing.T) {
	h := &Header{Capacity: 9, Width: 8, Count: 1, WidthType: WidthBits}
	buf := make([]byte, Size)
	require.Error(t, h.Encode(buf))
}

func TestTotalSizeIsEightByteAligned(t *testing.T) {
	for _, bits := range []uint64{0, 1, 7, 8, 9, 63, 64, 65} {
		sz := TotalSize(bits)
		require.Zero(t, sz%8, "size %d for %d payload bits is not 8-aligned", sz, bits)
		require.GreaterOrEqual(t, sz, uint64(Size))
	}
}

func TestHeaderFlagsIndependentOfEncoding(t *testing.T) {
	h := &Header{
		Capacity:          8,
		Width:             8,
		Count:             1,
		WidthType:         WidthBits,
		HasRefs:           true,
		ContextFlag:       true,
		IsInnerBPTreeNode: true,
	}
	buf := make([]byte, Size)
	require.NoError(t, h.Encode(buf))
	got, err := Decode(buf)
	require.NoError(t, err)
	require.True(t, got.HasRefs)
	require.True(t, got.ContextFlag)
	require.True(t, got.IsInnerBPTreeNode)
}
