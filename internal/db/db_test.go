package db_test

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"

	"citrine/internal/batch"
	"citrine/internal/comparator"
	"citrine/internal/db"
	"citrine/internal/filter"
	"citrine/internal/status"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func openTestDB(t *testing.T, dir string, opts ...db.Option) *db.DB {
	t.Helper()
	d, err := db.Open(dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestGetMissing(t *testing.T) {
	d := openTestDB(t, t.TempDir())

	_, err := d.Get(db.ReadOptions{}, []byte("never-written"))
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestPutGet(t *testing.T) {
	d := openTestDB(t, t.TempDir())

	require.NoError(t, d.Put(db.WriteOptions{}, []byte("k"), []byte("v")))

	value, err := d.Get(db.ReadOptions{}, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)
}

func TestOverwrite(t *testing.T) {
	d := openTestDB(t, t.TempDir())

	require.NoError(t, d.Put(db.WriteOptions{}, []byte("k"), []byte("v1")))
	require.NoError(t, d.Put(db.WriteOptions{}, []byte("k"), []byte("v2")))

	value, err := d.Get(db.ReadOptions{}, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), value)
}

func TestPutDeleteGet(t *testing.T) {
	d := openTestDB(t, t.TempDir())

	require.NoError(t, d.Put(db.WriteOptions{}, []byte("k"), []byte("v")))
	require.NoError(t, d.Delete(db.WriteOptions{}, []byte("k")))

	_, err := d.Get(db.ReadOptions{}, []byte("k"))
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestDeleteAbsentKey(t *testing.T) {
	d := openTestDB(t, t.TempDir())
	require.NoError(t, d.Delete(db.WriteOptions{}, []byte("ghost")))
}

func TestSyncWrite(t *testing.T) {
	d := openTestDB(t, t.TempDir())

	require.NoError(t, d.Put(db.WriteOptions{Sync: true}, []byte("durable"), []byte("yes")))

	value, err := d.Get(db.ReadOptions{}, []byte("durable"))
	require.NoError(t, err)
	require.Equal(t, []byte("yes"), value)
}

func TestEmptyKeyRejected(t *testing.T) {
	d := openTestDB(t, t.TempDir())

	err := d.Put(db.WriteOptions{}, nil, []byte("v"))
	require.True(t, status.IsInvalidArgument(err))
}

func TestEmptyBatchIsNoOp(t *testing.T) {
	d := openTestDB(t, t.TempDir())
	require.NoError(t, d.Write(db.WriteOptions{}, batch.New()))
}

func TestBatchAtomicity(t *testing.T) {
	d := openTestDB(t, t.TempDir())

	require.NoError(t, d.Put(db.WriteOptions{}, []byte("k1"), []byte("v1")))

	// Delete and insert in one batch; both take effect together.
	b := batch.New()
	b.Delete([]byte("k1"))
	b.Put([]byte("k2"), []byte("v2"))
	require.NoError(t, d.Write(db.WriteOptions{Sync: true}, b))

	_, err := d.Get(db.ReadOptions{}, []byte("k1"))
	require.ErrorIs(t, err, db.ErrNotFound)

	value, err := d.Get(db.ReadOptions{}, []byte("k2"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), value)
}

func TestBatchLastWriteWins(t *testing.T) {
	d := openTestDB(t, t.TempDir())

	b := batch.New()
	b.Put([]byte("k"), []byte("first"))
	b.Put([]byte("k"), []byte("second"))
	b.Delete([]byte("gone"))
	b.Put([]byte("gone"), []byte("back"))
	require.NoError(t, d.Write(db.WriteOptions{}, b))

	value, err := d.Get(db.ReadOptions{}, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("second"), value)

	value, err = d.Get(db.ReadOptions{}, []byte("gone"))
	require.NoError(t, err)
	require.Equal(t, []byte("back"), value)
}

func TestSnapshotIsolation(t *testing.T) {
	d := openTestDB(t, t.TempDir())

	require.NoError(t, d.Put(db.WriteOptions{}, []byte("k"), []byte("old")))

	snap := d.GetSnapshot()
	defer d.ReleaseSnapshot(snap)

	require.NoError(t, d.Put(db.WriteOptions{}, []byte("k"), []byte("new")))
	require.NoError(t, d.Put(db.WriteOptions{}, []byte("added-later"), []byte("x")))

	value, err := d.Get(db.ReadOptions{Snapshot: snap}, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), value)

	_, err = d.Get(db.ReadOptions{Snapshot: snap}, []byte("added-later"))
	require.ErrorIs(t, err, db.ErrNotFound)

	// The default view sees the new state.
	value, err = d.Get(db.ReadOptions{}, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("new"), value)
}

func TestSnapshotSeesThroughDelete(t *testing.T) {
	d := openTestDB(t, t.TempDir())

	require.NoError(t, d.Put(db.WriteOptions{}, []byte("k"), []byte("v")))
	snap := d.GetSnapshot()
	defer d.ReleaseSnapshot(snap)

	require.NoError(t, d.Delete(db.WriteOptions{}, []byte("k")))

	value, err := d.Get(db.ReadOptions{Snapshot: snap}, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)

	_, err = d.Get(db.ReadOptions{}, []byte("k"))
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestSnapshotSurvivesFlush(t *testing.T) {
	d := openTestDB(t, t.TempDir(), db.WithMemtableFlushThreshold(8))

	require.NoError(t, d.Put(db.WriteOptions{}, []byte("pinned"), []byte("old")))
	snap := d.GetSnapshot()
	defer d.ReleaseSnapshot(snap)

	require.NoError(t, d.Put(db.WriteOptions{}, []byte("pinned"), []byte("new")))

	// Push enough writes to flush the memtable to an SSTable.
	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("fill-%02d", i))
		require.NoError(t, d.Put(db.WriteOptions{}, key, []byte("x")))
	}

	value, err := d.Get(db.ReadOptions{Snapshot: snap}, []byte("pinned"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), value)
}

func TestSnapshotDoubleRelease(t *testing.T) {
	d := openTestDB(t, t.TempDir())

	snap := d.GetSnapshot()
	require.NoError(t, d.ReleaseSnapshot(snap))

	err := d.ReleaseSnapshot(snap)
	require.True(t, status.IsInvalidArgument(err))
}

func TestReadThroughReleasedSnapshot(t *testing.T) {
	d := openTestDB(t, t.TempDir())

	snap := d.GetSnapshot()
	require.NoError(t, d.ReleaseSnapshot(snap))

	_, err := d.Get(db.ReadOptions{Snapshot: snap}, []byte("k"))
	require.True(t, status.IsInvalidArgument(err))
}

func TestMinPinnedSeq(t *testing.T) {
	d := openTestDB(t, t.TempDir())

	require.NoError(t, d.Put(db.WriteOptions{}, []byte("a"), []byte("1")))
	snap := d.GetSnapshot()
	pinned := d.MinPinnedSeq()

	require.NoError(t, d.Put(db.WriteOptions{}, []byte("b"), []byte("2")))
	require.Equal(t, pinned, d.MinPinnedSeq())

	require.NoError(t, d.ReleaseSnapshot(snap))
	require.Greater(t, d.MinPinnedSeq(), pinned)
}

func TestReopenRecoversWAL(t *testing.T) {
	dir := t.TempDir()

	d, err := db.Open(dir)
	require.NoError(t, err)
	require.NoError(t, d.Put(db.WriteOptions{}, []byte("k1"), []byte("v1")))
	require.NoError(t, d.Put(db.WriteOptions{}, []byte("k2"), []byte("v2")))
	require.NoError(t, d.Delete(db.WriteOptions{}, []byte("k1")))
	require.NoError(t, d.Close())

	d = openTestDB(t, dir)

	_, err = d.Get(db.ReadOptions{}, []byte("k1"))
	require.ErrorIs(t, err, db.ErrNotFound)

	value, err := d.Get(db.ReadOptions{}, []byte("k2"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), value)

	// Writes after reopen get fresh, larger sequence numbers.
	require.NoError(t, d.Put(db.WriteOptions{}, []byte("k3"), []byte("v3")))
	value, err = d.Get(db.ReadOptions{}, []byte("k3"))
	require.NoError(t, err)
	require.Equal(t, []byte("v3"), value)
}

func TestReopenAfterFlush(t *testing.T) {
	dir := t.TempDir()

	d, err := db.Open(dir, db.WithMemtableFlushThreshold(4))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("key-%02d", i))
		require.NoError(t, d.Put(db.WriteOptions{}, key, []byte(fmt.Sprintf("v%d", i))))
	}
	require.NoError(t, d.Close())

	d = openTestDB(t, dir, db.WithMemtableFlushThreshold(4))
	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("key-%02d", i))
		value, err := d.Get(db.ReadOptions{}, key)
		require.NoError(t, err, "key %s", key)
		require.Equal(t, []byte(fmt.Sprintf("v%d", i)), value)
	}
}

func TestReopenWithTruncatedWALTail(t *testing.T) {
	dir := t.TempDir()

	d, err := db.Open(dir)
	require.NoError(t, err)
	require.NoError(t, d.Put(db.WriteOptions{Sync: true}, []byte("intact"), []byte("v1")))
	require.NoError(t, d.Put(db.WriteOptions{Sync: true}, []byte("torn"), []byte("v2")))
	require.NoError(t, d.Close())

	// Chop a few bytes off the last WAL record, as a crash mid-append would.
	walPath := dir + "/wal/0.log"
	info, err := os.Stat(walPath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(walPath, info.Size()-3))

	d = openTestDB(t, dir)

	value, err := d.Get(db.ReadOptions{}, []byte("intact"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)

	// The torn record is discarded.
	_, err = d.Get(db.ReadOptions{}, []byte("torn"))
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestFlushRotatesWAL(t *testing.T) {
	dir := t.TempDir()
	d := openTestDB(t, dir, db.WithMemtableFlushThreshold(3))

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Put(db.WriteOptions{}, []byte(fmt.Sprintf("k%d", i)), []byte("v")))
	}

	_, err := os.Stat(dir + "/sstable/0/0.sst")
	require.NoError(t, err)
	_, err = os.Stat(dir + "/wal/1.log")
	require.NoError(t, err)
	// The replaced WAL is deleted once its contents are in the SSTable.
	_, err = os.Stat(dir + "/wal/0.log")
	require.True(t, os.IsNotExist(err))
}

func TestCreateIfMissingDisabled(t *testing.T) {
	_, err := db.Open(t.TempDir()+"/nope", db.WithCreateIfMissing(false))
	require.True(t, status.IsInvalidArgument(err))
}

func TestErrorIfExists(t *testing.T) {
	dir := t.TempDir()
	d, err := db.Open(dir)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = db.Open(dir, db.WithErrorIfExists())
	require.True(t, status.IsInvalidArgument(err))
}

// twoPartComparator orders keys of the form "<a>:<b>" numerically by a then
// b. Malformed keys sort before well-formed ones.
type twoPartComparator struct{}

func (twoPartComparator) Name() string { return "test.TwoPartComparator" }

func (twoPartComparator) Compare(a, b []byte) int {
	a1, a2, aok := splitTwoPart(a)
	b1, b2, bok := splitTwoPart(b)
	if !aok || !bok {
		if aok != bok {
			if !aok {
				return -1
			}
			return 1
		}
		return strings.Compare(string(a), string(b))
	}
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

func (twoPartComparator) FindShortestSeparator(start, limit []byte) []byte { return start }

func (twoPartComparator) FindShortSuccessor(key []byte) []byte { return key }

func splitTwoPart(key []byte) (int, int, bool) {
	parts := strings.SplitN(string(key), ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err1 := strconv.Atoi(parts[0])
	b, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return a, b, true
}

var _ comparator.Comparator = twoPartComparator{}

func TestCustomComparatorOrdering(t *testing.T) {
	d := openTestDB(t, t.TempDir(), db.WithComparator(twoPartComparator{}))

	for _, key := range []string{"10:3", "2:100", "2:3", "1:3", "2:1"} {
		require.NoError(t, d.Put(db.WriteOptions{}, []byte(key), []byte("x")))
	}

	iter := d.NewIterator(db.ReadOptions{})
	defer iter.Close()

	var got []string
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		got = append(got, string(iter.Key()))
	}
	require.NoError(t, iter.Status())
	require.Equal(t, []string{"1:3", "2:1", "2:3", "2:100", "10:3"}, got)
}

func TestComparatorMismatchOnReopen(t *testing.T) {
	dir := t.TempDir()

	d, err := db.Open(dir, db.WithComparator(twoPartComparator{}))
	require.NoError(t, err)
	require.NoError(t, d.Put(db.WriteOptions{}, []byte("1:1"), []byte("v")))
	require.NoError(t, d.Close())

	// Default bytewise comparator does not match the persisted name.
	_, err = db.Open(dir)
	require.True(t, status.IsInvalidArgument(err))

	// The failed open leaves the store intact.
	d = openTestDB(t, dir, db.WithComparator(twoPartComparator{}))
	value, err := d.Get(db.ReadOptions{}, []byte("1:1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)
}

// trimmedBloom wraps the built-in bloom policy under a caller-chosen name,
// normalizing trailing spaces so "apple" and "apple  " probe the same bits.
type trimmedBloom struct {
	inner filter.Policy
	name  string
}

func (p trimmedBloom) Name() string { return p.name }

func (p trimmedBloom) CreateFilter(keys [][]byte) []byte {
	trimmed := make([][]byte, len(keys))
	for i, key := range keys {
		trimmed[i] = bytes.TrimRight(key, " ")
	}
	return p.inner.CreateFilter(trimmed)
}

func (p trimmedBloom) KeyMayMatch(key, summary []byte) bool {
	return p.inner.KeyMayMatch(bytes.TrimRight(key, " "), summary)
}

func TestCustomFilterPolicy(t *testing.T) {
	policy := trimmedBloom{inner: filter.NewBloomPolicy(8), name: "test.TrimmedBloom"}
	dir := t.TempDir()

	d, err := db.Open(dir, db.WithFilter(policy), db.WithMemtableFlushThreshold(4))
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		key := []byte(fmt.Sprintf("fk-%02d", i))
		require.NoError(t, d.Put(db.WriteOptions{}, key, []byte("v")))
	}
	// Keys with trailing spaces survive the normalizing filter: the filter
	// may only say "maybe", never "definitely absent" for a stored key.
	require.NoError(t, d.Put(db.WriteOptions{}, []byte("padded  "), []byte("pv")))
	require.NoError(t, d.Close())

	// Reopening with the default policy name is rejected.
	_, err = db.Open(dir)
	require.True(t, status.IsInvalidArgument(err))

	d = openTestDB(t, dir, db.WithFilter(policy), db.WithMemtableFlushThreshold(4))
	for i := 0; i < 12; i++ {
		key := []byte(fmt.Sprintf("fk-%02d", i))
		value, err := d.Get(db.ReadOptions{}, key)
		require.NoError(t, err, "key %s", key)
		require.Equal(t, []byte("v"), value)
	}
	value, err := d.Get(db.ReadOptions{}, []byte("padded  "))
	require.NoError(t, err)
	require.Equal(t, []byte("pv"), value)
	_, err = d.Get(db.ReadOptions{}, []byte("fk-99"))
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestConcurrentWriters(t *testing.T) {
	d := openTestDB(t, t.TempDir(), db.WithMemtableFlushThreshold(64))

	const writers = 8
	const perWriter = 50

	var g errgroup.Group
	for w := 0; w < writers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				key := []byte(fmt.Sprintf("w%d-k%03d", w, i))
				value := []byte(fmt.Sprintf("w%d-v%03d", w, i))
				if err := d.Put(db.WriteOptions{}, key, value); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			key := []byte(fmt.Sprintf("w%d-k%03d", w, i))
			value, err := d.Get(db.ReadOptions{}, key)
			require.NoError(t, err, "key %s", key)
			require.Equal(t, []byte(fmt.Sprintf("w%d-v%03d", w, i)), value)
		}
	}
}

func TestGetApproximateSizes(t *testing.T) {
	d := openTestDB(t, t.TempDir(), db.WithMemtableFlushThreshold(50))

	value := make([]byte, 100)
	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("size-%03d", i))
		require.NoError(t, d.Put(db.WriteOptions{}, key, value))
	}

	sizes, err := d.GetApproximateSizes([]db.Range{
		{Start: []byte("size-000"), Limit: []byte("size-100")},
		{Start: []byte("size-000"), Limit: []byte("size-200")},
		{Start: []byte("zz-none"), Limit: []byte("zz-none2")},
		{Start: []byte("backwards"), Limit: []byte("backward")},
	})
	require.NoError(t, err)
	require.Len(t, sizes, 4)

	// The full range covers at least as much as the half range, and the
	// half range covers real data.
	require.Positive(t, sizes[1])
	require.GreaterOrEqual(t, sizes[1], sizes[0])
	require.Zero(t, sizes[2])
	require.Zero(t, sizes[3])
}

func TestCloseIdempotent(t *testing.T) {
	d, err := db.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
}

func TestWriteAfterClose(t *testing.T) {
	d, err := db.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, d.Close())

	err = d.Put(db.WriteOptions{}, []byte("k"), []byte("v"))
	require.True(t, status.IsInvalidArgument(err))
}
