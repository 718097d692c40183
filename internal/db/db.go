// Package db assembles the storage layers into an embedded, ordered,
// persistent key-value store: a comparator-ordered memtable in front of
// leveled SSTables, a write-ahead log for durability, and a MANIFEST tracking
// the file tree. All writes funnel through a single group-commit loop;
// readers never block writers.
package db

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"citrine/internal/batch"
	"citrine/internal/common"
	"citrine/internal/comparator"
	"citrine/internal/manifest"
	"citrine/internal/memtable"
	"citrine/internal/status"
	"citrine/internal/wal"
)

// ErrNotFound is returned by Get when a key is absent or tombstoned. Use
// errors.Is; the concrete error carries context about the key.
var ErrNotFound = status.ErrNotFound

// DB is an open database handle. It is safe for concurrent use.
type DB struct {
	opts  Options
	paths *common.PathManager
	cmp   comparator.Comparator

	// mu guards the mem/wal pair, which the commit loop swaps on flush.
	// Readers take the read lock only long enough to grab the pointers.
	mu       sync.RWMutex
	mem      *memtable.Memtable
	wal      *wal.WAL
	manifest *manifest.Manifest

	// visibleSeq is the newest sequence number readers may observe. The
	// commit loop publishes it once per group commit, after the whole batch
	// is in the WAL and memtable, so readers see a batch entirely or not at
	// all.
	visibleSeq atomic.Uint64

	// nextSeq is the last sequence number handed out. Owned by the commit
	// loop; sequences are never reused, even after a failed write.
	nextSeq uint64

	snapshots *snapshotSet

	writeCh chan *writeRequest
	quit    chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Open opens the database at path, creating it when allowed by the options.
// Reopening an existing database with a comparator or filter policy other
// than the one it was created with fails with an invalid-argument error and
// leaves the store untouched.
func Open(path string, optFns ...Option) (*DB, error) {
	start := time.Now()

	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Comparator == nil {
		opts.Comparator = comparator.Bytewise()
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 1
	}

	paths := common.NewPathManager(path)
	d := &DB{
		opts:      opts,
		paths:     paths,
		cmp:       opts.Comparator,
		snapshots: newSnapshotSet(),
		writeCh:   make(chan *writeRequest),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	_, err := os.Stat(paths.ManifestPath())
	switch {
	case err == nil:
		if opts.ErrorIfExists {
			return nil, status.InvalidArgumentf("database %s already exists", path)
		}
		if err := d.recover(); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		if !opts.CreateIfMissing {
			return nil, status.InvalidArgumentf("database %s does not exist", path)
		}
		if err := d.create(); err != nil {
			return nil, err
		}
	default:
		return nil, status.IOErrorf(err, "stat %s", paths.ManifestPath())
	}

	go d.commitLoop()

	common.LogDuration(start, "opened %s (seq=%d)", path, d.visibleSeq.Load())
	return d, nil
}

func (d *DB) makeDirs() error {
	dirs := []string{d.paths.Root(), d.paths.WALDir()}
	for level := 0; level <= d.opts.MaxSSTableLevel; level++ {
		dirs = append(dirs, d.paths.SSTableLevelDir(level))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return status.IOErrorf(err, "create %s", dir)
		}
	}
	return nil
}

func (d *DB) create() error {
	if err := d.makeDirs(); err != nil {
		return err
	}

	d.manifest = manifest.New(d.paths, d.opts.MaxSSTableLevel+1, d.cmp, d.opts.Filter, d.opts.BlockCacheCapacity)
	d.manifest.SetWAL(0)

	w, err := wal.Open(d.paths.WALPath(0))
	if err != nil {
		return err
	}

	if err := d.manifest.Flush(); err != nil {
		w.Close()
		return err
	}

	d.wal = w
	d.mem = memtable.New(d.cmp)
	return nil
}

// recover rebuilds in-memory state from the MANIFEST and the current WAL.
func (d *DB) recover() error {
	f, err := os.Open(d.paths.ManifestPath())
	if err != nil {
		return status.IOErrorf(err, "open manifest")
	}
	version, err := manifest.ReadVersion(f)
	f.Close()
	if err != nil {
		return err
	}

	if version.ComparatorName != d.cmp.Name() {
		return status.InvalidArgumentf(
			"comparator mismatch: database created with %q, opened with %q",
			version.ComparatorName, d.cmp.Name())
	}
	filterName := ""
	if d.opts.Filter != nil {
		filterName = d.opts.Filter.Name()
	}
	if version.FilterName != filterName {
		return status.InvalidArgumentf(
			"filter policy mismatch: database created with %q, opened with %q",
			version.FilterName, filterName)
	}

	// An older database may have fewer levels than the options ask for.
	for len(version.Levels) <= d.opts.MaxSSTableLevel {
		version.Levels = append(version.Levels, nil)
	}
	if err := d.makeDirs(); err != nil {
		return err
	}

	d.manifest = manifest.New(d.paths, len(version.Levels), d.cmp, d.opts.Filter, d.opts.BlockCacheCapacity)
	d.manifest.LoadVersion(version)

	oldWALPath := d.paths.WALPath(version.CurrentWAL)
	w, err := wal.Open(oldWALPath)
	if err != nil {
		return err
	}
	mem := memtable.New(d.cmp)
	maxSeq, err := replayWAL(w, mem)
	w.Close()
	if err != nil {
		return err
	}
	if version.LastSeq > maxSeq {
		maxSeq = version.LastSeq
	}
	common.Logf("replayed wal %d: %d entries, seq=%d\n", version.CurrentWAL, mem.Len(), maxSeq)

	// Replayed entries go straight to an L0 table. The old WAL may carry a
	// torn tail, so it is never appended to again; a fresh log takes over.
	if mem.Len() > 0 {
		d.mem = mem
		fm, err := d.writeSSTable(d.manifest.Current().NextSSTableNumber)
		if err != nil {
			return err
		}
		d.manifest.Apply(&manifest.Edit{
			AddTables: []manifest.FileMetadata{fm},
			LastSeq:   maxSeq,
		})
	}

	newWALNo := d.manifest.Current().NextWALNumber
	newWAL, err := wal.Open(d.paths.WALPath(newWALNo))
	if err != nil {
		return err
	}
	d.manifest.SetWAL(newWALNo)
	if err := d.manifest.Flush(); err != nil {
		newWAL.Close()
		return err
	}
	os.Remove(oldWALPath)

	d.wal = newWAL
	d.mem = memtable.New(d.cmp)
	d.nextSeq = maxSeq
	d.visibleSeq.Store(maxSeq)
	return nil
}

// replayWAL applies every intact log entry to mem and returns the highest
// sequence seen. A truncated final record means the process died mid-append;
// the intact prefix is kept and the tail discarded.
func replayWAL(w *wal.WAL, mem *memtable.Memtable) (uint64, error) {
	iter, err := w.Iterator()
	if err != nil {
		return 0, err
	}

	var maxSeq uint64
	for {
		entry, err := iter.Next()
		if err != nil {
			// A record torn at any point surfaces as an unexpected EOF
			// (or a bare EOF when cut inside a varint).
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				common.Logf("dropping truncated wal tail: %v\n", err)
				return maxSeq, nil
			}
			return 0, err
		}
		if entry == nil {
			return maxSeq, nil
		}
		mem.Apply(*entry)
		if entry.Seq > maxSeq {
			maxSeq = entry.Seq
		}
	}
}

// Get returns the value for key as of the read options' visibility point.
// A missing key, or one whose newest visible version is a tombstone, yields
// a NotFound error.
func (d *DB) Get(ro ReadOptions, key []byte) ([]byte, error) {
	bound, err := d.visibilityBound(ro)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	mem := d.mem
	d.mu.RUnlock()

	if entry, ok := mem.Get(key, bound); ok {
		if entry.Type == common.EntryTypeDelete {
			return nil, status.NotFoundf("key %q", key)
		}
		return common.CloneBytes(entry.Value), nil
	}

	version := d.manifest.Current()

	// L0 tables overlap; newest (flushed last) wins.
	level0 := version.Levels[0]
	for i := len(level0) - 1; i >= 0; i-- {
		entry, ok, err := d.tableGet(level0[i], key, bound)
		if err != nil {
			return nil, err
		}
		if ok {
			if entry.Type == common.EntryTypeDelete {
				return nil, status.NotFoundf("key %q", key)
			}
			return common.CloneBytes(entry.Value), nil
		}
	}

	// Deeper levels hold non-overlapping, older data.
	for _, level := range version.Levels[1:] {
		for _, fm := range level {
			entry, ok, err := d.tableGet(fm, key, bound)
			if err != nil {
				return nil, err
			}
			if ok {
				if entry.Type == common.EntryTypeDelete {
					return nil, status.NotFoundf("key %q", key)
				}
				return common.CloneBytes(entry.Value), nil
			}
		}
	}

	return nil, status.NotFoundf("key %q", key)
}

// tableGet consults one SSTable, skipping it when its key range cannot
// contain key.
func (d *DB) tableGet(fm manifest.FileMetadata, key []byte, bound uint64) (*common.Entry, bool, error) {
	if d.cmp.Compare(key, fm.SmallestKey) < 0 || d.cmp.Compare(key, fm.LargestKey) > 0 {
		return nil, false, nil
	}
	table, err := d.manifest.GetTable(fm)
	if err != nil {
		return nil, false, err
	}
	return table.Get(key, bound)
}

// visibilityBound resolves the sequence bound for a read: the snapshot's
// pinned sequence, or the latest committed one.
func (d *DB) visibilityBound(ro ReadOptions) (uint64, error) {
	if ro.Snapshot == nil {
		return d.visibleSeq.Load(), nil
	}
	if !d.snapshots.contains(ro.Snapshot) {
		return 0, status.InvalidArgumentf("read through a released snapshot")
	}
	return ro.Snapshot.seq, nil
}

// Put inserts or overwrites a single key.
func (d *DB) Put(wo WriteOptions, key, value []byte) error {
	b := batch.New()
	b.Put(key, value)
	return d.Write(wo, b)
}

// Delete removes key. Deleting an absent key succeeds.
func (d *DB) Delete(wo WriteOptions, key []byte) error {
	b := batch.New()
	b.Delete(key)
	return d.Write(wo, b)
}

// GetSnapshot pins the current committed state. The caller must release it
// with ReleaseSnapshot.
func (d *DB) GetSnapshot() *Snapshot {
	return d.snapshots.acquire(d.visibleSeq.Load())
}

// ReleaseSnapshot unpins a snapshot. Releasing one twice is an
// invalid-argument error.
func (d *DB) ReleaseSnapshot(snap *Snapshot) error {
	return d.snapshots.release(snap)
}

// MinPinnedSeq returns the oldest sequence any live snapshot pins, or the
// latest committed sequence when none is live. Versions at or above it must
// survive compaction.
func (d *DB) MinPinnedSeq() uint64 {
	return d.snapshots.minPinned(d.visibleSeq.Load())
}

// GetApproximateSizes estimates the on-disk bytes consumed by each half-open
// key range [Start, Limit). Estimates count SSTable data only; memtable
// contents and WAL overhead are ignored. One result is returned per range.
func (d *DB) GetApproximateSizes(ranges []Range) ([]uint64, error) {
	version := d.manifest.Current()
	sizes := make([]uint64, len(ranges))

	for i, r := range ranges {
		if d.cmp.Compare(r.Start, r.Limit) >= 0 {
			continue
		}
		for _, level := range version.Levels {
			for _, fm := range level {
				// Skip tables entirely outside the range.
				if d.cmp.Compare(fm.LargestKey, r.Start) < 0 || d.cmp.Compare(fm.SmallestKey, r.Limit) >= 0 {
					continue
				}
				table, err := d.manifest.GetTable(fm)
				if err != nil {
					return nil, err
				}
				startOff := table.ApproximateOffsetOf(r.Start)
				limitOff := table.ApproximateOffsetOf(r.Limit)
				if limitOff > startOff {
					sizes[i] += limitOff - startOff
				}
			}
		}
	}
	return sizes, nil
}

// Close stops the commit loop and releases all file handles. Buffered
// non-sync writes remain in the OS and are recovered from the WAL on the
// next open. Close is idempotent.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		close(d.quit)
		<-d.done

		d.mu.Lock()
		defer d.mu.Unlock()

		if err := d.wal.Close(); err != nil {
			d.closeErr = err
		}
		if err := d.manifest.Close(); err != nil && d.closeErr == nil {
			d.closeErr = err
		}
	})
	return d.closeErr
}
