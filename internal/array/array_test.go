package array

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nodalfs/nodedb/internal/alloc"
)

func newTestStore(t *testing.T) Storage {
	t.Helper()
	a, err := alloc.New(alloc.NewHeapBacking(16), 16)
	require.NoError(t, err)
	return a
}

// TestScenarioS1WidthPromotion exercises spec scenario S1: inserting
// 0,0,1,1,255 in sequence must promote the array's width through
// 0 -> 2 -> 16, never skipping straight to the final width early and
// never shrinking back down. Widths are signed two's-complement, so 1
// needs 2 bits and 255 needs 16.
func TestScenarioS1WidthPromotion(t *testing.T) {
	a, err := Create(newTestStore(t), false)
	require.NoError(t, err)

	require.NoError(t, a.Add(0))
	require.Equal(t, uint8(0), a.Width())

	require.NoError(t, a.Add(0))
	require.Equal(t, uint8(0), a.Width())

	require.NoError(t, a.Add(1))
	require.Equal(t, uint8(2), a.Width(), "1 needs the sign bit clear, so it doesn't fit a 1-bit two's-complement slot")

	require.NoError(t, a.Add(1))
	require.Equal(t, uint8(2), a.Width())

	require.NoError(t, a.Add(255))
	require.Equal(t, uint8(16), a.Width(), "255 needs the sign bit clear to round-trip, so it doesn't fit an 8-bit two's-complement slot")

	require.Equal(t, 5, a.Len())

	idx, err := a.Find(255, 0, a.Len())
	require.NoError(t, err)
	require.Equal(t, 4, idx)

	idx, err = a.Find(2, 0, a.Len())
	require.NoError(t, err)
	require.Equal(t, NotFound, idx)

	v, err := a.Get(3)
	require.NoError(t, err)
	require.Equal(t, int64(1), v)
}

// TestScenarioS5InsertAtZero exercises spec scenario S5: inserting at
// index 0 must shift every existing element up by one slot.
func TestScenarioS5InsertAtZero(t *testing.T) {
	a, err := Create(newTestStore(t), false)
	require.NoError(t, err)

	require.NoError(t, a.Add(5))
	require.NoError(t, a.Add(10))
	require.NoError(t, a.Add(15))
	require.NoError(t, a.Insert(0, 42))

	want := []int64{42, 5, 10, 15}
	require.Equal(t, len(want), a.Len())
	for i, w := range want {
		got, err := a.Get(i)
		require.NoError(t, err)
		require.Equal(t, w, got)
	}
}

// TestScenarioS6EraseThenFind exercises spec scenario S6: erasing an
// element shifts later elements down, and a subsequent Find must locate
// a repeated value at its new, post-erase position rather than its
// stale one.
func TestScenarioS6EraseThenFind(t *testing.T) {
	a, err := Create(newTestStore(t), false)
	require.NoError(t, err)

	for _, v := range []int64{10, 20, 30, 20, 40} {
		require.NoError(t, a.Add(v))
	}

	idx, err := a.Find(20, 0, a.Len())
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	require.NoError(t, a.Erase(1))

	want := []int64{10, 30, 20, 40}
	require.Equal(t, len(want), a.Len())
	for i, w := range want {
		got, err := a.Get(i)
		require.NoError(t, err)
		require.Equal(t, w, got)
	}

	idx, err = a.Find(20, 0, a.Len())
	require.NoError(t, err)
	require.Equal(t, 2, idx)
}

// TestSignExtensionRoundTrip checks that negative values needing widths
// 1, 2, 8, 16, 32 and 64 survive an Add/Get round trip with their sign
// intact.
func TestSignExtensionRoundTrip(t *testing.T) {
	cases := []int64{-1, -2, -128, -129, -32768, -32769, -2147483648, -2147483649}
	a, err := Create(newTestStore(t), false)
	require.NoError(t, err)

	for _, v := range cases {
		require.NoError(t, a.Add(v))
	}
	for i, v := range cases {
		got, err := a.Get(i)
		require.NoError(t, err)
		require.Equal(t, v, got, "index %d", i)
	}
}

// TestWidthNeverContracts verifies that once an array widens to hold a
// large value, removing that value and inserting small ones again does
// not shrink its element width back down.
func TestWidthNeverContracts(t *testing.T) {
	a, err := Create(newTestStore(t), false)
	require.NoError(t, err)

	require.NoError(t, a.Add(1000))
	require.Equal(t, uint8(16), a.Width())

	require.NoError(t, a.Erase(0))
	require.Equal(t, 0, a.Len())
	require.Equal(t, uint8(16), a.Width(), "width must not contract after erase")

	require.NoError(t, a.Add(0))
	require.Equal(t, uint8(16), a.Width(), "width must not contract just because a small value was added")

	v, err := a.Get(0)
	require.NoError(t, err)
	require.Equal(t, int64(0), v)
}

// TestInsertAtLenAppends checks that Insert at the current length
// behaves identically to Add.
func TestInsertAtLenAppends(t *testing.T) {
	a, err := Create(newTestStore(t), false)
	require.NoError(t, err)

	require.NoError(t, a.Insert(a.Len(), 7))
	require.NoError(t, a.Insert(a.Len(), 8))
	require.NoError(t, a.Insert(a.Len(), 9))

	for i, want := range []int64{7, 8, 9} {
		got, err := a.Get(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

// TestFindRejectsOutOfWidthValueWithoutScanning checks that Find
// returns NotFound immediately for a value too large to be represented
// at the array's current width, rather than scanning and mismatching.
func TestFindRejectsOutOfWidthValueWithoutScanning(t *testing.T) {
	a, err := Create(newTestStore(t), false)
	require.NoError(t, err)

	require.NoError(t, a.Add(1))
	require.NoError(t, a.Add(1))

	idx, err := a.Find(1000, 0, a.Len())
	require.NoError(t, err)
	require.Equal(t, NotFound, idx)
}

// TestGetSetOutOfRangeErrors checks bounds are enforced on Get/Set.
func TestGetSetOutOfRangeErrors(t *testing.T) {
	a, err := Create(newTestStore(t), false)
	require.NoError(t, err)
	require.NoError(t, a.Add(1))

	_, err = a.Get(1)
	require.Error(t, err)
	_, err = a.Get(-1)
	require.Error(t, err)
	require.Error(t, a.Set(1, 2))
}

// TestOpenReattachesToExistingArray checks that Open reconstructs an
// equivalent handle from just a ref, as required when a tree node reads
// back a child it didn't just create.
func TestOpenReattachesToExistingArray(t *testing.T) {
	store := newTestStore(t)
	a, err := Create(store, true)
	require.NoError(t, err)
	require.NoError(t, a.Add(1))
	require.NoError(t, a.Add(2))
	require.NoError(t, a.Add(300))

	reopened, err := Open(store, a.Ref())
	require.NoError(t, err)
	require.Equal(t, a.Len(), reopened.Len())
	require.Equal(t, a.Width(), reopened.Width())
	require.True(t, reopened.HasRefs())

	for i := 0; i < a.Len(); i++ {
		want, err := a.Get(i)
		require.NoError(t, err)
		got, err := reopened.Get(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}
