package sstable

import (
	"citrine/internal/block"
	"citrine/internal/common"
	"citrine/internal/comparator"
)

// Cursor is a bidirectional cursor over every entry of one table, in
// (user key ascending, seq descending) order. It reads blocks through the
// table's shared cache and keeps at most one block pinned at a time.
//
// A cursor starts unpositioned; callers must seek before reading. Any block
// read fault parks the cursor in an invalid state with Err set.
type Cursor struct {
	table    *Table
	cmp      comparator.Comparator
	blk      *block.Block
	blockIdx int
	entryIdx int
	err      error
}

// NewCursor returns an unpositioned cursor over t.
func (t *Table) NewCursor() *Cursor {
	return &Cursor{table: t, cmp: t.cmp, blockIdx: -1, entryIdx: -1}
}

// Valid reports whether the cursor is positioned on an entry.
func (c *Cursor) Valid() bool {
	return c.err == nil && c.blk != nil && c.entryIdx >= 0 && c.entryIdx < c.blk.Len()
}

// Entry returns the current entry. Only legal while Valid.
func (c *Cursor) Entry() *common.Entry {
	return c.blk.At(c.entryIdx)
}

// Err returns the first fault encountered, if any.
func (c *Cursor) Err() error {
	return c.err
}

func (c *Cursor) invalidate() {
	c.blk = nil
	c.blockIdx = -1
	c.entryIdx = -1
}

// loadBlock pins block i, reusing the current block when it already is i.
func (c *Cursor) loadBlock(i int) bool {
	if c.blk != nil && c.blockIdx == i {
		return true
	}
	blk, err := c.table.BlockAt(i)
	if err != nil {
		c.err = err
		c.invalidate()
		return false
	}
	c.blk = blk
	c.blockIdx = i
	return true
}

// SeekToFirst positions the cursor at the table's first entry.
func (c *Cursor) SeekToFirst() {
	if c.err != nil {
		return
	}
	if c.table.NumBlocks() == 0 {
		c.invalidate()
		return
	}
	if c.loadBlock(0) {
		c.entryIdx = 0
	}
}

// SeekToLast positions the cursor at the table's last entry.
func (c *Cursor) SeekToLast() {
	if c.err != nil {
		return
	}
	n := c.table.NumBlocks()
	if n == 0 {
		c.invalidate()
		return
	}
	if c.loadBlock(n - 1) {
		c.entryIdx = c.blk.Len() - 1
	}
}

// Seek positions the cursor at the first entry at or after the logical
// position (key, seq).
func (c *Cursor) Seek(key []byte, seq uint64) {
	if c.err != nil {
		return
	}
	numBlocks := c.table.NumBlocks()
	if numBlocks == 0 {
		c.invalidate()
		return
	}

	for i := c.table.index.SeekBlock(c.cmp, key); i < numBlocks; i++ {
		if !c.loadBlock(i) {
			return
		}
		idx := c.blk.SeekIndex(c.cmp, key, seq)
		if idx < c.blk.Len() {
			c.entryIdx = idx
			return
		}
	}
	c.invalidate()
}

// Next advances to the following entry; past the last entry the cursor
// becomes invalid.
func (c *Cursor) Next() {
	if !c.Valid() {
		return
	}
	c.entryIdx++
	if c.entryIdx < c.blk.Len() {
		return
	}
	if c.blockIdx+1 >= c.table.NumBlocks() {
		c.invalidate()
		return
	}
	if c.loadBlock(c.blockIdx + 1) {
		c.entryIdx = 0
	}
}

// Prev steps to the preceding entry; before the first entry the cursor
// becomes invalid.
func (c *Cursor) Prev() {
	if !c.Valid() {
		return
	}
	c.entryIdx--
	if c.entryIdx >= 0 {
		return
	}
	if c.blockIdx == 0 {
		c.invalidate()
		return
	}
	if c.loadBlock(c.blockIdx - 1) {
		c.entryIdx = c.blk.Len() - 1
	}
}
