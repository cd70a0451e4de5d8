package hoardcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableLinkUnlink(t *testing.T) {
	tbl := newTable[int, string](1.0)
	e := newEntry[int, string](7, 7)
	tbl.link(e, nil)
	require.Equal(t, 1, tbl.size)
	require.True(t, e.linked)

	found := false
	tbl.forEachInBucket(7, func(c *entry[int, string]) bool {
		if c == e {
			found = true
		}
		return true
	})
	require.True(t, found)

	require.True(t, tbl.unlink(e))
	require.Equal(t, 0, tbl.size)
	require.False(t, e.linked)
	require.False(t, tbl.unlink(e), "unlinking twice is a no-op")
}

func TestTableRehashPreservesBucketOrder(t *testing.T) {
	tbl := newTable[int, int](0.5)
	var entries []*entry[int, int]
	for i := 0; i < 32; i++ {
		// Every hash is a multiple of 128, so all entries share bucket 0 at
		// every bucket count this test reaches (4 growing to 64).
		e := newEntry[int, int](uint64(i)*128, i)
		entries = append(entries, e)
		tbl.link(e, nil)
	}
	require.LessOrEqual(t, tbl.loadFactor(), tbl.maxLoadFactor)

	seen := map[int]bool{}
	tbl.forEach(func(e *entry[int, int]) bool {
		seen[e.key] = true
		return true
	})
	require.Len(t, seen, 32)

	// Keys that collide in the same (grown) bucket keep their relative
	// insertion order across every rehash: newest first, as link places
	// each entry at the head of its chain.
	var order []int
	tbl.forEachInBucket(entries[0].hash, func(e *entry[int, int]) bool {
		order = append(order, e.key)
		return true
	})
	want := make([]int, 0, 32)
	for i := 31; i >= 0; i-- {
		want = append(want, i)
	}
	require.Equal(t, want, order)
}

func TestTableClearAndDispose(t *testing.T) {
	tbl := newTable[int, string](1.0)
	for i := 0; i < 5; i++ {
		tbl.link(newEntry[int, string](uint64(i), i), nil)
	}

	var disposed []int
	tbl.clearAndDispose(func(e *entry[int, string]) {
		disposed = append(disposed, e.key)
	})

	require.Len(t, disposed, 5)
	require.Equal(t, 0, tbl.size)
	count := 0
	tbl.forEach(func(*entry[int, string]) bool { count++; return true })
	require.Equal(t, 0, count)
}

func TestTableBeforeRehashCallbackRunsOnEachOverloadedLink(t *testing.T) {
	tbl := newTable[int, string](0.1)
	calls := 0
	for i := 0; i < 4; i++ {
		tbl.link(newEntry[int, string](uint64(i), i), func() { calls++ })
	}
	// Links 1, 2 and 4 push the load factor past 0.1 (buckets grow
	// 4 -> 16 -> 32 -> 64); link 3 leaves it at 3/32.
	require.Equal(t, 3, calls)
}
