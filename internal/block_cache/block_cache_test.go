package block_cache

import (
	"bytes"
	"testing"

	"citrine/internal/block"
	"citrine/internal/common"
	"github.com/stretchr/testify/require"
)

func makeBlock(t *testing.T, key string) *block.Block {
	t.Helper()
	var buf bytes.Buffer
	_, err := common.WriteEntry(&buf, &common.Entry{
		Type: common.EntryTypePut, Seq: 1, Key: []byte(key), Value: []byte("v"),
	})
	require.NoError(t, err)
	b, err := block.Parse(buf.Bytes())
	require.NoError(t, err)
	return b
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := New(4)
	_, ok := c.Get(1, 0)
	require.False(t, ok)
}

func TestPutThenGet(t *testing.T) {
	c := New(4)
	b := makeBlock(t, "k")
	c.Put(1, 0, b)

	got, ok := c.Get(1, 0)
	require.True(t, ok)
	require.Same(t, b, got)

	// Different block number misses.
	_, ok = c.Get(1, 1)
	require.False(t, ok)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)
	c.Put(1, 0, makeBlock(t, "a"))
	c.Put(1, 1, makeBlock(t, "b"))

	// Touch (1,0) so (1,1) is the eviction candidate.
	_, ok := c.Get(1, 0)
	require.True(t, ok)

	c.Put(1, 2, makeBlock(t, "c"))
	require.Equal(t, 2, c.Len())

	_, ok = c.Get(1, 1)
	require.False(t, ok, "least recently used block should be evicted")
	_, ok = c.Get(1, 0)
	require.True(t, ok)
	_, ok = c.Get(1, 2)
	require.True(t, ok)
}

func TestDropFile(t *testing.T) {
	c := New(8)
	c.Put(1, 0, makeBlock(t, "a"))
	c.Put(1, 1, makeBlock(t, "b"))
	c.Put(2, 0, makeBlock(t, "c"))

	c.DropFile(1)
	require.Equal(t, 1, c.Len())

	_, ok := c.Get(1, 0)
	require.False(t, ok)
	_, ok = c.Get(2, 0)
	require.True(t, ok)
}

func TestZeroCapacityDisablesCache(t *testing.T) {
	c := New(0)
	c.Put(1, 0, makeBlock(t, "a"))
	_, ok := c.Get(1, 0)
	require.False(t, ok)
	require.Zero(t, c.Len())
}
