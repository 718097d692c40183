package sstable

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"citrine/internal/block"
	"citrine/internal/block_cache"
	"citrine/internal/common"
	"citrine/internal/comparator"
	"citrine/internal/filter"
	"citrine/internal/status"
)

// Table provides random access to entries in an immutable SSTable file.
type Table struct {
	file   *os.File
	fileNo common.FileNo
	cmp    comparator.Comparator
	policy filter.Policy

	footer     *Footer
	filterData []byte
	index      *Index
	cache      *block_cache.Cache
	size       int64
}

// Open opens an SSTable file and loads its footer, filter, and index into
// memory. The policy must be the one the table was written with (enforced
// by the MANIFEST at database open).
func Open(
	path string,
	fileNo common.FileNo,
	cmp comparator.Comparator,
	policy filter.Policy,
	cache *block_cache.Cache,
) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, status.IOErrorf(err, "open sstable %s", path)
	}

	t := &Table{
		file:   f,
		fileNo: fileNo,
		cmp:    cmp,
		policy: policy,
		cache:  cache,
	}
	if err := t.loadMetadata(); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

func (t *Table) loadMetadata() error {
	stat, err := t.file.Stat()
	if err != nil {
		return status.IOErrorf(err, "stat %s", t.file.Name())
	}
	t.size = stat.Size()

	if t.size < FooterSize {
		return status.Corruptionf(nil, "sstable %s smaller than footer", t.file.Name())
	}

	footerData := make([]byte, FooterSize)
	if _, err := t.file.ReadAt(footerData, t.size-FooterSize); err != nil {
		return status.IOErrorf(err, "read footer of %s", t.file.Name())
	}
	footer, err := ReadFooter(bytes.NewReader(footerData))
	if err != nil {
		return err
	}
	t.footer = footer

	if footer.IndexOffset < footer.FilterOffset || int64(footer.IndexOffset) > t.size-FooterSize {
		return status.Corruptionf(nil, "inconsistent offsets in footer of %s", t.file.Name())
	}

	// Filter block spans [FilterOffset, IndexOffset).
	if filterSize := footer.IndexOffset - footer.FilterOffset; filterSize > 0 {
		t.filterData = make([]byte, filterSize)
		if _, err := t.file.ReadAt(t.filterData, int64(footer.FilterOffset)); err != nil {
			return status.IOErrorf(err, "read filter block of %s", t.file.Name())
		}
	}

	indexSize := t.size - FooterSize - int64(footer.IndexOffset)
	indexData := make([]byte, indexSize)
	if _, err := t.file.ReadAt(indexData, int64(footer.IndexOffset)); err != nil {
		return status.IOErrorf(err, "read index block of %s", t.file.Name())
	}
	index, err := ReadIndex(bytes.NewReader(indexData))
	if err != nil {
		return err
	}
	t.index = index
	return nil
}

// Get looks up the newest entry for key with Seq <= maxSeq, which may be a
// tombstone. The boolean reports whether any such version exists in this
// table. The filter is consulted first: a definite miss skips the block
// search entirely.
func (t *Table) Get(key []byte, maxSeq uint64) (*common.Entry, bool, error) {
	if t.policy != nil && t.filterData != nil && !t.policy.KeyMayMatch(key, t.filterData) {
		return nil, false, nil
	}

	if len(t.index.Entries) == 0 {
		return nil, false, nil
	}

	// Versions of one key can spill over a block boundary, so scan forward
	// from the seek block while blocks still start at or before key.
	start := t.index.SeekBlock(t.cmp, key)
	for i := start; i < len(t.index.Entries); i++ {
		if i > start && t.cmp.Compare(t.index.Entries[i].Key, key) > 0 {
			break
		}
		blk, err := t.BlockAt(i)
		if err != nil {
			return nil, false, err
		}
		if entry, ok := blk.Get(t.cmp, key, maxSeq); ok {
			return entry, true, nil
		}
	}
	return nil, false, nil
}

// NumBlocks returns the number of data blocks.
func (t *Table) NumBlocks() int {
	return len(t.index.Entries)
}

// BlockAt reads and parses data block i, consulting the shared cache first.
func (t *Table) BlockAt(i int) (*block.Block, error) {
	blockNo := common.BlockNo(i)
	if t.cache != nil {
		if cached, ok := t.cache.Get(t.fileNo, blockNo); ok {
			return cached, nil
		}
	}

	start := t.index.Entries[i].BlockOffset
	end := t.index.BlockEnd(i, t.footer.FilterOffset)
	data := make([]byte, end-start)
	if _, err := t.file.ReadAt(data, int64(start)); err != nil {
		return nil, status.IOErrorf(err, "read block %d of %s", i, t.file.Name())
	}

	blk, err := block.Parse(data)
	if err != nil {
		return nil, status.Corruptionf(err, "parse block %d of %s", i, t.file.Name())
	}

	if t.cache != nil {
		t.cache.Put(t.fileNo, blockNo, blk)
	}
	return blk, nil
}

// ApproximateOffsetOf returns an estimate of the file offset where entries
// for key begin. Used for approximate range sizes; never exact.
func (t *Table) ApproximateOffsetOf(key []byte) uint64 {
	n := len(t.index.Entries)
	if n == 0 {
		return 0
	}
	if t.cmp.Compare(key, t.index.Entries[0].Key) < 0 {
		return 0
	}
	// Offset of the first block whose first key is > key; key's data lives
	// before that point.
	left, right := 0, n
	for left < right {
		mid := (left + right) / 2
		if t.cmp.Compare(t.index.Entries[mid].Key, key) <= 0 {
			left = mid + 1
		} else {
			right = mid
		}
	}
	if left >= n {
		return t.footer.FilterOffset
	}
	return t.index.Entries[left].BlockOffset
}

// Size returns the total file size in bytes.
func (t *Table) Size() int64 {
	return t.size
}

// EntryCount returns the total number of entries, cached in the footer.
func (t *Table) EntryCount() uint64 {
	return t.footer.EntryCount
}

// FileNo returns the table's file number.
func (t *Table) FileNo() common.FileNo {
	return t.fileNo
}

// Close releases the underlying file handle.
func (t *Table) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	if err != nil {
		return status.IOErrorf(err, "close sstable")
	}
	return nil
}

// Iterator returns an iterator that sequentially scans all entries, using a
// separate file handle so it does not disturb point reads.
func (t *Table) Iterator() common.EntryIterator {
	f, err := os.Open(t.file.Name())
	if err != nil {
		return &tableIterator{err: status.IOErrorf(err, "open %s for scan", t.file.Name())}
	}

	return &tableIterator{
		file:   f,
		reader: bufio.NewReader(io.LimitReader(f, int64(t.footer.FilterOffset))),
	}
}

// tableIterator provides sequential access to all entries in an SSTable.
type tableIterator struct {
	file   *os.File
	reader *bufio.Reader
	err    error
}

var _ common.EntryIterator = (*tableIterator)(nil)

func (it *tableIterator) Next() (*common.Entry, error) {
	if it.err != nil {
		return nil, it.err
	}
	if it.file == nil {
		return nil, nil // Already closed
	}

	entry, err := common.ReadEntry(it.reader)
	if err != nil {
		it.Close()
		return nil, status.Corruptionf(err, "scan sstable")
	}
	if entry == nil {
		it.Close()
		return nil, nil
	}
	return entry, nil
}

// Close releases the underlying file handle.
func (it *tableIterator) Close() error {
	if it.file == nil {
		return nil
	}
	err := it.file.Close()
	it.file = nil
	it.reader = nil
	return err
}
