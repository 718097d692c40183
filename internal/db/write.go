package db

import (
	"os"
	"time"

	"citrine/internal/batch"
	"citrine/internal/common"
	"citrine/internal/manifest"
	"citrine/internal/memtable"
	"citrine/internal/sstable"
	"citrine/internal/status"
	"citrine/internal/wal"
)

// writeRequest is one committed-or-rejected unit waiting in the group commit
// queue. The whole batch gets one contiguous run of sequence numbers and
// becomes visible atomically.
type writeRequest struct {
	entries  []common.Entry
	sync     bool
	resultCh chan error
}

// Write applies every mutation in b atomically: after it returns nil, readers
// see all of b's entries; after an error, none. An empty batch is a no-op.
func (d *DB) Write(wo WriteOptions, b *batch.Batch) error {
	if b.Count() == 0 {
		return nil
	}
	for _, e := range b.Entries() {
		if len(e.Key) == 0 {
			return status.InvalidArgumentf("empty key")
		}
	}

	req := &writeRequest{
		entries:  b.Entries(),
		sync:     wo.Sync,
		resultCh: make(chan error, 1),
	}

	select {
	case d.writeCh <- req:
	case <-d.quit:
		return status.InvalidArgumentf("database is closed")
	}

	select {
	case err := <-req.resultCh:
		return err
	case <-d.done:
		return status.InvalidArgumentf("database is closed")
	}
}

// commitLoop is the single writer. It drains the request queue in groups so
// concurrent writers share one WAL write (and one fsync when any of them
// asked for durability).
func (d *DB) commitLoop() {
	defer close(d.done)
	for {
		var first *writeRequest
		select {
		case first = <-d.writeCh:
		case <-d.quit:
			return
		}

		group := d.collectGroup(first)
		err := d.commit(group)
		for _, req := range group {
			req.resultCh <- err
		}
	}
}

// collectGroup greedily drains requests that are already queued, up to the
// configured group size.
func (d *DB) collectGroup(first *writeRequest) []*writeRequest {
	group := make([]*writeRequest, 0, d.opts.MaxBatchSize)
	group = append(group, first)
	for len(group) < d.opts.MaxBatchSize {
		select {
		case req := <-d.writeCh:
			group = append(group, req)
		default:
			return group
		}
	}
	return group
}

// commit stamps sequence numbers, persists the group to the WAL, applies it
// to the memtable, and finally publishes the new visible sequence. On any
// error nothing becomes visible and the consumed sequence numbers are
// abandoned, never reused.
func (d *DB) commit(group []*writeRequest) error {
	if d.mem.Len() >= d.opts.MemtableFlushThreshold {
		if err := d.flushMemtable(); err != nil {
			return err
		}
	}

	total := 0
	sync := false
	for _, req := range group {
		total += len(req.entries)
		sync = sync || req.sync
	}

	entries := make([]common.Entry, 0, total)
	seq := d.nextSeq
	for _, req := range group {
		for _, e := range req.entries {
			seq++
			e.Seq = seq
			entries = append(entries, e)
		}
	}
	d.nextSeq = seq

	if err := d.wal.Append(entries, sync); err != nil {
		return err
	}

	for i := range entries {
		d.mem.Apply(entries[i])
	}

	// One atomic store makes the whole group visible at once.
	d.visibleSeq.Store(seq)
	return nil
}

// flushMemtable writes the memtable to a fresh L0 SSTable, records it in the
// MANIFEST, rotates the WAL, and installs an empty memtable. Readers keep
// working throughout: the table is published before the memtable is swapped,
// so every committed entry stays reachable from either structure.
func (d *DB) flushMemtable() error {
	start := time.Now()

	version := d.manifest.Current()
	fileNo := version.NextSSTableNumber
	newWALNo := version.NextWALNumber

	fm, err := d.writeSSTable(fileNo)
	if err != nil {
		return err
	}

	newWAL, err := wal.Open(d.paths.WALPath(newWALNo))
	if err != nil {
		os.Remove(d.paths.SSTablePath(0, fileNo))
		return err
	}

	d.manifest.Apply(&manifest.Edit{
		AddTables: []manifest.FileMetadata{fm},
		LastSeq:   d.visibleSeq.Load(),
	})
	d.manifest.SetWAL(newWALNo)
	if err := d.manifest.Flush(); err != nil {
		newWAL.Close()
		return err
	}

	oldWAL := d.wal
	d.mu.Lock()
	d.wal = newWAL
	d.mem = memtable.New(d.cmp)
	d.mu.Unlock()

	oldWAL.Close()
	os.Remove(oldWAL.Path())

	common.LogDuration(start, "flushed memtable to sstable %d (%d bytes)", fileNo, fm.Size)
	return nil
}

// writeSSTable persists every retained memtable version to an L0 table.
func (d *DB) writeSSTable(fileNo common.FileNo) (manifest.FileMetadata, error) {
	path := d.paths.SSTablePath(0, fileNo)
	f, err := os.Create(path)
	if err != nil {
		return manifest.FileMetadata{}, status.IOErrorf(err, "create sstable %s", path)
	}

	result, err := sstable.WriteTable(f, d.mem.All(), d.opts.Filter)
	if err != nil {
		f.Close()
		os.Remove(path)
		return manifest.FileMetadata{}, err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return manifest.FileMetadata{}, status.IOErrorf(err, "sync sstable %s", path)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return manifest.FileMetadata{}, status.IOErrorf(err, "close sstable %s", path)
	}

	return manifest.FileMetadata{
		FileNo:      fileNo,
		Level:       0,
		SmallestKey: result.SmallestKey,
		LargestKey:  result.LargestKey,
		Size:        result.BytesWritten,
	}, nil
}
