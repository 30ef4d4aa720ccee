package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharedcode/hybridstore/region"
)

func TestInsertLookup(t *testing.T) {
	c := New(2)
	c.Insert([]byte("k"), Item{Sequence: 1, Inflight: Inflight{Key: []byte("k"), Value: []byte("v")}})

	item, ok := c.Lookup([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, uint64(1), item.Sequence)
	assert.Equal(t, []byte("v"), item.Inflight.Value)
}

func TestInsertDropsLesserSequence(t *testing.T) {
	c := New(2)
	c.Insert([]byte("k"), Item{Sequence: 5, Inflight: Inflight{Value: []byte("new")}})
	c.Insert([]byte("k"), Item{Sequence: 3, Inflight: Inflight{Value: []byte("stale")}})

	item, ok := c.Lookup([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, uint64(5), item.Sequence)
	assert.Equal(t, []byte("new"), item.Inflight.Value)
}

func TestInsertReplacesOnEqualSequence(t *testing.T) {
	c := New(2)
	c.Insert([]byte("k"), Item{Sequence: 7, InRegion: false, Inflight: Inflight{Value: []byte("inflight")}})
	// The flusher's on-disk migration reuses the entry's own sequence; an
	// equal sequence must replace, not drop, or an entry would never leave
	// Inflight for a Region view.
	c.Insert([]byte("k"), Item{Sequence: 7, InRegion: true, Region: region.View{RegionID: 2}})

	item, ok := c.Lookup([]byte("k"))
	require.True(t, ok)
	assert.True(t, item.InRegion)
	assert.Equal(t, region.ID(2), item.Region.RegionID)
}

func TestRemove(t *testing.T) {
	c := New(2)
	c.Insert([]byte("k"), Item{Sequence: 1})

	removed, ok := c.Remove([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, uint64(1), removed.Sequence)

	_, ok = c.Lookup([]byte("k"))
	assert.False(t, ok)

	_, ok = c.Remove([]byte("k"))
	assert.False(t, ok)
}

func TestTakeRegionRemovesOnlyMatchingEntries(t *testing.T) {
	c := New(2)
	c.Insert([]byte("a"), Item{Sequence: 1, InRegion: true, Region: region.View{RegionID: 1}})
	c.Insert([]byte("b"), Item{Sequence: 2, InRegion: true, Region: region.View{RegionID: 2}})
	c.Insert([]byte("c"), Item{Sequence: 3, InRegion: false})

	taken := c.TakeRegion(1)
	require.Len(t, taken, 1)
	assert.Equal(t, []byte("a"), taken[0].Key)

	_, ok := c.Lookup([]byte("a"))
	assert.False(t, ok)
	_, ok = c.Lookup([]byte("b"))
	assert.True(t, ok)
	_, ok = c.Lookup([]byte("c"))
	assert.True(t, ok)
}

func TestCount(t *testing.T) {
	c := New(2)
	assert.Equal(t, 0, c.Count())
	c.Insert([]byte("a"), Item{Sequence: 1})
	c.Insert([]byte("b"), Item{Sequence: 1})
	assert.Equal(t, 2, c.Count())
}
