package sstable

import (
	"io"

	"citrine/internal/block"
	"citrine/internal/common"
	"citrine/internal/filter"
)

// SSTable File Layout:
//
//                 ┌────────────────┐
//                 │  Data Block 0  │  block.EntriesPerBlock entries, sorted by
//                 ├────────────────┤  (user key asc, seq desc)
//                 │  Data Block 1  │
//                 ├────────────────┤
//                 │       ...      │
//                 ├────────────────┤
//                 │  Data Block N  │  up to block.EntriesPerBlock entries
// filterOffset -> ├────────────────┤
//                 │  Filter Block  │  filter.Policy summary over all user keys
//  indexOffset -> ├────────────────┤
//                 │  Index Block   │  array of {firstKey, blockOffset}
// footerOffset -> ├────────────────┤
//                 │     Footer     │  {filterOffset, indexOffset, entryCount, magic}
//                 └────────────────┘

// WriteResult contains metadata from writing an SSTable.
type WriteResult struct {
	BytesWritten uint64
	SmallestKey  []byte
	LargestKey   []byte
	EntryCount   uint64
}

// WriteTable writes a complete SSTable from a stream of entries sorted by
// (user key ascending, seq descending). A nil policy writes an empty filter
// block; lookups then always consult the index.
func WriteTable(w io.Writer, entries common.EntryIterator, policy filter.Policy) (*WriteResult, error) {
	var offset uint64
	var indexEntries []IndexEntry
	var blockEntryCount int
	var totalEntryCount uint64
	var blockStartOffset uint64
	var firstBlockKey []byte
	var smallestKey []byte
	var largestKey []byte
	var filterKeys [][]byte

	// Stream data blocks
	for {
		entry, err := entries.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}

		if totalEntryCount == 0 {
			smallestKey = common.CloneBytes(entry.Key)
		}
		largestKey = common.CloneBytes(entry.Key)

		if policy != nil {
			filterKeys = append(filterKeys, common.CloneBytes(entry.Key))
		}

		// Start new block: record offset and first key
		if blockEntryCount == 0 {
			blockStartOffset = offset
			firstBlockKey = common.CloneBytes(entry.Key)
		}

		n, err := common.WriteEntry(w, entry)
		if err != nil {
			return nil, err
		}
		offset += uint64(n)
		blockEntryCount++
		totalEntryCount++

		if blockEntryCount >= block.EntriesPerBlock {
			indexEntries = append(indexEntries, IndexEntry{
				BlockOffset: blockStartOffset,
				Key:         firstBlockKey,
			})
			blockEntryCount = 0
			firstBlockKey = nil
		}
	}

	// Handle last partial block
	if blockEntryCount > 0 {
		indexEntries = append(indexEntries, IndexEntry{
			BlockOffset: blockStartOffset,
			Key:         firstBlockKey,
		})
	}

	// Write filter block
	filterOffset := offset
	if policy != nil && len(filterKeys) > 0 {
		summary := policy.CreateFilter(filterKeys)
		n, err := common.WriteBytes(w, summary)
		if err != nil {
			return nil, err
		}
		offset += uint64(n)
	}

	// Write index block
	indexOffset := offset
	n, err := WriteIndex(w, &Index{Entries: indexEntries})
	if err != nil {
		return nil, err
	}
	offset += uint64(n)

	// Write footer
	footer := &Footer{
		FilterOffset: filterOffset,
		IndexOffset:  indexOffset,
		EntryCount:   totalEntryCount,
	}
	n, err = WriteFooter(w, footer)
	if err != nil {
		return nil, err
	}
	offset += uint64(n)

	return &WriteResult{
		BytesWritten: offset,
		SmallestKey:  smallestKey,
		LargestKey:   largestKey,
		EntryCount:   totalEntryCount,
	}, nil
}
