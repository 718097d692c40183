package memtable_test

import (
	"bytes"
	"fmt"
	"strconv"
	"testing"

	"citrine/internal/common"
	"citrine/internal/comparator"
	"citrine/internal/memtable"
	"github.com/stretchr/testify/require"
)

func put(seq uint64, key, value string) common.Entry {
	return common.Entry{Type: common.EntryTypePut, Seq: seq, Key: []byte(key), Value: []byte(value)}
}

func del(seq uint64, key string) common.Entry {
	return common.Entry{Type: common.EntryTypeDelete, Seq: seq, Key: []byte(key)}
}

func TestGetLatestVersion(t *testing.T) {
	mt := memtable.New(comparator.Bytewise())
	mt.Apply(put(1, "k", "v1"))
	mt.Apply(put(2, "k", "v2"))

	e, ok := mt.Get([]byte("k"), ^uint64(0))
	require.True(t, ok)
	require.Equal(t, []byte("v2"), e.Value)
	require.Equal(t, uint64(2), e.Seq)
}

func TestGetRespectsSeqBound(t *testing.T) {
	mt := memtable.New(comparator.Bytewise())
	mt.Apply(put(1, "k", "v1"))
	mt.Apply(put(5, "k", "v5"))
	mt.Apply(del(9, "k"))

	// Bound below first version: nothing visible.
	_, ok := mt.Get([]byte("k"), 0)
	require.False(t, ok)

	// Bound between versions resolves to the older one.
	e, ok := mt.Get([]byte("k"), 4)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), e.Value)

	e, ok = mt.Get([]byte("k"), 5)
	require.True(t, ok)
	require.Equal(t, []byte("v5"), e.Value)

	// Bound at or above the tombstone sees the tombstone.
	e, ok = mt.Get([]byte("k"), 9)
	require.True(t, ok)
	require.Equal(t, common.EntryTypeDelete, e.Type)
}

func TestGetMissingKey(t *testing.T) {
	mt := memtable.New(comparator.Bytewise())
	mt.Apply(put(1, "present", "v"))

	_, ok := mt.Get([]byte("absent"), ^uint64(0))
	require.False(t, ok)
}

func TestEntriesOrderedByComparator(t *testing.T) {
	mt := memtable.New(comparator.Bytewise())
	mt.Apply(put(1, "banana", "2"))
	mt.Apply(put(2, "apple", "1"))
	mt.Apply(put(3, "cherry", "3"))

	entries := mt.Entries(^uint64(0))
	require.Len(t, entries, 3)
	require.Equal(t, []byte("apple"), entries[0].Key)
	require.Equal(t, []byte("banana"), entries[1].Key)
	require.Equal(t, []byte("cherry"), entries[2].Key)
}

func TestEntriesVersionsNewestFirst(t *testing.T) {
	mt := memtable.New(comparator.Bytewise())
	mt.Apply(put(1, "k", "v1"))
	mt.Apply(put(2, "k", "v2"))
	mt.Apply(del(3, "k"))

	entries := mt.Entries(^uint64(0))
	require.Len(t, entries, 3)
	require.Equal(t, uint64(3), entries[0].Seq)
	require.Equal(t, uint64(2), entries[1].Seq)
	require.Equal(t, uint64(1), entries[2].Seq)

	// A bounded view drops newer versions only.
	bounded := mt.Entries(2)
	require.Len(t, bounded, 2)
	require.Equal(t, uint64(2), bounded[0].Seq)
}

// twoPartComparator orders "x:y" keys numerically by each component.
type twoPartComparator struct{}

func (twoPartComparator) Compare(a, b []byte) int {
	a1, a2 := parseTwoPart(a)
	b1, b2 := parseTwoPart(b)
	if a1 != b1 {
		if a1 < b1 {
			return -1
		}
		return 1
	}
	if a2 != b2 {
		if a2 < b2 {
			return -1
		}
		return 1
	}
	return 0
}

func (twoPartComparator) Name() string { return "test.TwoPartComparator" }

func (twoPartComparator) FindShortestSeparator(start, limit []byte) []byte { return start }

func (twoPartComparator) FindShortSuccessor(key []byte) []byte { return key }

func parseTwoPart(k []byte) (int64, int64) {
	idx := bytes.IndexByte(k, ':')
	first, _ := strconv.ParseInt(string(k[:idx]), 10, 64)
	second, _ := strconv.ParseInt(string(k[idx+1:]), 10, 64)
	return first, second
}

func TestCustomComparatorOrdering(t *testing.T) {
	mt := memtable.New(twoPartComparator{})
	for i, key := range []string{"1:3", "2:3", "2:1", "2:100"} {
		mt.Apply(put(uint64(i+1), key, fmt.Sprintf("v%d", i)))
	}

	entries := mt.Entries(^uint64(0))
	var keys []string
	for _, e := range entries {
		keys = append(keys, string(e.Key))
	}
	require.Equal(t, []string{"1:3", "2:1", "2:3", "2:100"}, keys)
}

func TestAllIteratorDrains(t *testing.T) {
	mt := memtable.New(comparator.Bytewise())
	mt.Apply(put(1, "a", "1"))
	mt.Apply(put(2, "b", "2"))
	mt.Apply(put(3, "a", "3"))

	iter := mt.All()
	var seen []string
	for {
		e, err := iter.Next()
		require.NoError(t, err)
		if e == nil {
			break
		}
		seen = append(seen, fmt.Sprintf("%s@%d", e.Key, e.Seq))
	}
	require.Equal(t, []string{"a@3", "a@1", "b@2"}, seen)
}

func TestEntriesSnapshotIsFrozen(t *testing.T) {
	mt := memtable.New(comparator.Bytewise())
	mt.Apply(put(1, "k", "v1"))

	frozen := mt.Entries(^uint64(0))
	mt.Apply(put(2, "k", "v2"))
	mt.Apply(put(3, "new", "x"))

	require.Len(t, frozen, 1)
	require.Equal(t, []byte("v1"), frozen[0].Value)
}

func TestLenCountsVersions(t *testing.T) {
	mt := memtable.New(comparator.Bytewise())
	require.Zero(t, mt.Len())

	mt.Apply(put(1, "k", "v1"))
	mt.Apply(put(2, "k", "v2"))
	mt.Apply(del(3, "other"))
	require.Equal(t, 3, mt.Len())
	require.Positive(t, mt.ApproximateBytes())
}
