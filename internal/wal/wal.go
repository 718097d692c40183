// Package wal persists committed batches before they reach the memtable.
// One WAL file covers the lifetime of one memtable; flushing the memtable
// rotates to a fresh log.
package wal

import (
	"bufio"
	"io"
	"os"

	"citrine/internal/common"
	"citrine/internal/status"
)

// WAL appends entries to a single file on disk.
type WAL struct {
	file *os.File
	path string
}

// Open creates (or reopens for append) a WAL file at path.
func Open(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, status.IOErrorf(err, "open wal %s", path)
	}
	return &WAL{file: f, path: path}, nil
}

// Append persists the provided batch in order. When sync is set the write
// does not return success until the data is durably on disk; otherwise the
// data may sit in OS buffers. Entry-level writes are never interleaved with
// other batches because only the commit loop calls Append.
func (l *WAL) Append(entries []common.Entry, sync bool) error {
	if len(entries) == 0 {
		return nil
	}
	if l.file == nil {
		return status.IOErrorf(nil, "wal %s is closed", l.path)
	}

	for i := range entries {
		if _, err := common.WriteEntry(l.file, &entries[i]); err != nil {
			return status.IOErrorf(err, "append to wal %s", l.path)
		}
	}

	if sync {
		if err := l.file.Sync(); err != nil {
			return status.IOErrorf(err, "sync wal %s", l.path)
		}
	}
	return nil
}

// Iterator returns a streaming iterator over all log entries, reading from
// a separate file handle. The iterator closes itself when exhausted.
func (l *WAL) Iterator() (common.EntryIterator, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, status.IOErrorf(err, "open wal %s for replay", l.path)
	}
	return &walIterator{
		file:   f,
		reader: bufio.NewReader(f),
	}, nil
}

// Path returns the file path of the log.
func (l *WAL) Path() string {
	return l.path
}

// Sync forces buffered writes to disk.
func (l *WAL) Sync() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return status.IOErrorf(err, "sync wal %s", l.path)
	}
	return nil
}

// Close releases the underlying file handle.
func (l *WAL) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return status.IOErrorf(err, "close wal %s", l.path)
	}
	return nil
}

type walIterator struct {
	file   *os.File
	reader *bufio.Reader
}

func (it *walIterator) Next() (*common.Entry, error) {
	if it.file == nil {
		return nil, nil // Already closed
	}

	entry, err := common.ReadEntry(it.reader)
	if err != nil {
		// A truncated record means the process died mid-append; entries
		// before it are intact, the tail is garbage.
		path := it.file.Name()
		it.Close()
		if err == io.ErrUnexpectedEOF {
			return nil, status.Corruptionf(err, "truncated record in wal %s", path)
		}
		return nil, status.Corruptionf(err, "malformed record in wal %s", path)
	}

	if entry == nil {
		it.Close()
		return nil, nil
	}

	return entry, nil
}

// Close releases the underlying file handle. Safe to call multiple times.
func (it *walIterator) Close() error {
	if it.file == nil {
		return nil
	}
	err := it.file.Close()
	it.file = nil
	it.reader = nil
	return err
}
