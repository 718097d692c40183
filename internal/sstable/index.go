package sstable

import (
	"encoding/binary"
	"io"

	"citrine/internal/comparator"
	"citrine/internal/status"
)

// Index Block Layout:
//
// ┌──────────────────┐
// │    numEntries    │  uint32 - number of data blocks
// ├──────────────────┤
// │   IndexEntry 0   │
// ├──────────────────┤
// │       ...        │
// ├──────────────────┤
// │  IndexEntry N-1  │
// └──────────────────┘
//
// IndexEntry Layout:
//
// ┌──────────────────┐
// │   blockOffset    │  uint64
// ├──────────────────┤
// │      keyLen      │  uint32
// ├──────────────────┤
// │       key        │  []byte  (first user key in the data block)
// └──────────────────┘

// IndexEntry locates one data block by its file offset and first user key.
type IndexEntry struct {
	BlockOffset uint64
	Key         []byte
}

// Index is the in-memory form of the index block.
type Index struct {
	Entries []IndexEntry
}

// LowerBound returns the index of the first block whose first key is >= key,
// or len(Entries) if every block starts before key.
func (idx *Index) LowerBound(cmp comparator.Comparator, key []byte) int {
	left, right := 0, len(idx.Entries)
	for left < right {
		mid := (left + right) / 2
		if cmp.Compare(idx.Entries[mid].Key, key) < 0 {
			left = mid + 1
		} else {
			right = mid
		}
	}
	return left
}

// SeekBlock returns the index of the first block that could contain a
// version of key. Versions of one key may spill past a block boundary, so
// the search starts one block before the lower bound: the preceding block
// can hold the newest versions even when a later block starts with the same
// user key.
func (idx *Index) SeekBlock(cmp comparator.Comparator, key []byte) int {
	i := idx.LowerBound(cmp, key)
	if i > 0 {
		i--
	}
	return i
}

// BlockEnd returns the end offset of block i given where the data region
// ends (the filter offset).
func (idx *Index) BlockEnd(i int, dataEnd uint64) uint64 {
	if i+1 < len(idx.Entries) {
		return idx.Entries[i+1].BlockOffset
	}
	return dataEnd
}

// WriteIndex writes the index block. Returns the number of bytes written.
func WriteIndex(w io.Writer, idx *Index) (int, error) {
	var buf [8 + 4]byte
	total := 0

	binary.LittleEndian.PutUint32(buf[:4], uint32(len(idx.Entries)))
	n, err := w.Write(buf[:4])
	total += n
	if err != nil {
		return total, err
	}

	for _, e := range idx.Entries {
		binary.LittleEndian.PutUint64(buf[0:], e.BlockOffset)
		binary.LittleEndian.PutUint32(buf[8:], uint32(len(e.Key)))
		n, err = w.Write(buf[:])
		total += n
		if err != nil {
			return total, err
		}
		if len(e.Key) > 0 {
			n, err = w.Write(e.Key)
			total += n
			if err != nil {
				return total, err
			}
		}
	}

	return total, nil
}

// ReadIndex parses an index block.
func ReadIndex(r io.Reader) (*Index, error) {
	var hdr [8 + 4]byte
	if _, err := io.ReadFull(r, hdr[:4]); err != nil {
		return nil, status.Corruptionf(err, "short index block")
	}
	count := binary.LittleEndian.Uint32(hdr[:4])

	entries := make([]IndexEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, status.Corruptionf(err, "short index entry %d", i)
		}
		e := IndexEntry{
			BlockOffset: binary.LittleEndian.Uint64(hdr[0:8]),
		}
		keyLen := binary.LittleEndian.Uint32(hdr[8:12])
		if keyLen > 0 {
			e.Key = make([]byte, keyLen)
			if _, err := io.ReadFull(r, e.Key); err != nil {
				return nil, status.Corruptionf(err, "short index key %d", i)
			}
		}
		entries = append(entries, e)
	}

	return &Index{Entries: entries}, nil
}
