// Package block parses SSTable data blocks and answers point lookups inside
// them. Entries within a block are sorted by (user key ascending, sequence
// descending); one user key may carry several versions, possibly spanning a
// block boundary.
package block

import (
	"bytes"

	"citrine/internal/common"
	"citrine/internal/comparator"
	"citrine/internal/status"
)

// EntriesPerBlock is the number of entries the SSTable writer packs into one
// data block before cutting a new one.
const EntriesPerBlock = 16

// Block holds all entries of one data block in memory.
type Block struct {
	entries []*common.Entry
}

// Parse decodes a raw data block.
func Parse(data []byte) (*Block, error) {
	var entries []*common.Entry
	reader := bytes.NewReader(data)

	for {
		entry, err := common.ReadEntry(reader)
		if err != nil {
			return nil, status.Corruptionf(err, "malformed data block")
		}
		if entry == nil {
			break
		}
		entries = append(entries, entry)
	}

	return &Block{entries: entries}, nil
}

// SeekIndex returns the index of the first entry at or after the logical
// position (key, seq), or Len() if every entry sorts before it.
func (b *Block) SeekIndex(cmp comparator.Comparator, key []byte, seq uint64) int {
	left, right := 0, len(b.entries)
	for left < right {
		mid := (left + right) / 2
		if comparator.ComparePosition(cmp, b.entries[mid], key, seq) < 0 {
			left = mid + 1
		} else {
			right = mid
		}
	}
	return left
}

// Get returns the newest entry for key with Seq <= maxSeq, which may be a
// tombstone. The boolean reports whether any such version is in this block.
func (b *Block) Get(cmp comparator.Comparator, key []byte, maxSeq uint64) (*common.Entry, bool) {
	idx := b.SeekIndex(cmp, key, maxSeq)
	if idx >= len(b.entries) {
		return nil, false
	}
	if cmp.Compare(b.entries[idx].Key, key) != 0 {
		return nil, false
	}
	return b.entries[idx], true
}

// At returns the entry at index i.
func (b *Block) At(i int) *common.Entry {
	return b.entries[i]
}

// Len returns the number of entries in this block.
func (b *Block) Len() int {
	return len(b.entries)
}

// FirstKey returns the user key of the first entry, or nil for an empty block.
func (b *Block) FirstKey() []byte {
	if len(b.entries) == 0 {
		return nil
	}
	return b.entries[0].Key
}

// LastKey returns the user key of the last entry, or nil for an empty block.
func (b *Block) LastKey() []byte {
	if len(b.entries) == 0 {
		return nil
	}
	return b.entries[len(b.entries)-1].Key
}
