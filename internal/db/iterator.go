package db

import (
	"sort"

	"citrine/internal/common"
	"citrine/internal/comparator"
)

// cursor is a bidirectional position over internal entries in
// (user key ascending, seq descending) order. sstable.Cursor satisfies it;
// sliceCursor covers the memtable's frozen view.
type cursor interface {
	SeekToFirst()
	SeekToLast()
	Seek(key []byte, seq uint64)
	Next()
	Prev()
	Valid() bool
	Entry() *common.Entry
	Err() error
}

// sliceCursor walks a sorted, frozen entry slice.
type sliceCursor struct {
	cmp     comparator.Comparator
	entries []common.Entry
	idx     int
}

func newSliceCursor(cmp comparator.Comparator, entries []common.Entry) *sliceCursor {
	return &sliceCursor{cmp: cmp, entries: entries, idx: len(entries)}
}

func (c *sliceCursor) Valid() bool { return c.idx >= 0 && c.idx < len(c.entries) }

func (c *sliceCursor) Entry() *common.Entry { return &c.entries[c.idx] }

func (c *sliceCursor) Err() error { return nil }

func (c *sliceCursor) SeekToFirst() { c.idx = 0 }

func (c *sliceCursor) SeekToLast() { c.idx = len(c.entries) - 1 }

func (c *sliceCursor) Seek(key []byte, seq uint64) {
	c.idx = sort.Search(len(c.entries), func(i int) bool {
		return comparator.ComparePosition(c.cmp, &c.entries[i], key, seq) >= 0
	})
}

func (c *sliceCursor) Next() {
	if c.Valid() {
		c.idx++
	}
}

func (c *sliceCursor) Prev() {
	if c.Valid() {
		c.idx--
	}
}

// Directions of iteration. In forward state the merge cursor sits on the
// current entry; in reverse state each child sits before its next candidate.
const (
	dirForward = iota
	dirReverse
)

// mergeCursor merges child cursors into one ordered view. Internal keys are
// unique across children (one sequence number per entry), so ties never
// occur.
type mergeCursor struct {
	cmp       comparator.Comparator
	children  []cursor
	current   cursor
	direction int
}

func newMergeCursor(cmp comparator.Comparator, children []cursor) *mergeCursor {
	return &mergeCursor{cmp: cmp, children: children}
}

func (m *mergeCursor) Valid() bool { return m.current != nil }

func (m *mergeCursor) Entry() *common.Entry { return m.current.Entry() }

func (m *mergeCursor) Err() error {
	for _, child := range m.children {
		if err := child.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (m *mergeCursor) SeekToFirst() {
	for _, child := range m.children {
		child.SeekToFirst()
	}
	m.direction = dirForward
	m.findSmallest()
}

func (m *mergeCursor) SeekToLast() {
	for _, child := range m.children {
		child.SeekToLast()
	}
	m.direction = dirReverse
	m.findLargest()
}

func (m *mergeCursor) Seek(key []byte, seq uint64) {
	for _, child := range m.children {
		child.Seek(key, seq)
	}
	m.direction = dirForward
	m.findSmallest()
}

func (m *mergeCursor) Next() {
	if m.current == nil {
		return
	}

	// After reverse iteration the non-current children sit before the
	// current entry; reposition them at the first entry after it.
	if m.direction == dirReverse {
		key := common.CloneBytes(m.current.Entry().Key)
		seq := m.current.Entry().Seq
		for _, child := range m.children {
			if child == m.current {
				continue
			}
			child.Seek(key, seq)
			if child.Valid() && comparator.ComparePosition(m.cmp, child.Entry(), key, seq) == 0 {
				child.Next()
			}
		}
		m.direction = dirForward
	}

	m.current.Next()
	m.findSmallest()
}

func (m *mergeCursor) Prev() {
	if m.current == nil {
		return
	}

	// After forward iteration the non-current children sit at or after the
	// current entry; reposition them at the last entry before it.
	if m.direction == dirForward {
		key := common.CloneBytes(m.current.Entry().Key)
		seq := m.current.Entry().Seq
		for _, child := range m.children {
			if child == m.current {
				continue
			}
			child.Seek(key, seq)
			if child.Valid() {
				child.Prev()
			} else {
				child.SeekToLast()
			}
		}
		m.direction = dirReverse
	}

	m.current.Prev()
	m.findLargest()
}

func (m *mergeCursor) findSmallest() {
	m.current = nil
	for _, child := range m.children {
		if !child.Valid() {
			continue
		}
		if m.current == nil || comparator.CompareEntries(m.cmp, child.Entry(), m.current.Entry()) < 0 {
			m.current = child
		}
	}
}

func (m *mergeCursor) findLargest() {
	m.current = nil
	for _, child := range m.children {
		if !child.Valid() {
			continue
		}
		if m.current == nil || comparator.CompareEntries(m.cmp, child.Entry(), m.current.Entry()) > 0 {
			m.current = child
		}
	}
}

// Iterator walks the user-visible keys of the store in comparator order,
// resolving versions and tombstones against a fixed visibility bound. The
// view is captured when the iterator is created: later writes, flushes, and
// snapshot releases never change what it yields.
//
// An iterator starts unpositioned. Key and Value return slices owned by the
// iterator, valid until the next positioning call.
type Iterator struct {
	cmp   comparator.Comparator
	merge *mergeCursor
	bound uint64

	direction int
	valid     bool
	key       []byte
	value     []byte
	err       error
}

// NewIterator returns an iterator over the state visible through ro.
func (d *DB) NewIterator(ro ReadOptions) *Iterator {
	bound, err := d.visibilityBound(ro)
	if err != nil {
		return &Iterator{err: err}
	}

	d.mu.RLock()
	mem := d.mem
	d.mu.RUnlock()
	version := d.manifest.Current()

	children := []cursor{newSliceCursor(d.cmp, mem.Entries(bound))}
	for _, level := range version.Levels {
		for _, fm := range level {
			table, err := d.manifest.GetTable(fm)
			if err != nil {
				return &Iterator{err: err}
			}
			children = append(children, table.NewCursor())
		}
	}

	return &Iterator{
		cmp:   d.cmp,
		merge: newMergeCursor(d.cmp, children),
		bound: bound,
	}
}

// Valid reports whether the iterator is positioned on a key.
func (it *Iterator) Valid() bool {
	return it.valid
}

// Key returns the current key. Only legal while Valid.
func (it *Iterator) Key() []byte {
	return it.key
}

// Value returns the current value. Only legal while Valid.
func (it *Iterator) Value() []byte {
	return it.value
}

// Status returns the first fault the iterator encountered. Exhaustion is not
// a fault.
func (it *Iterator) Status() error {
	if it.err != nil {
		return it.err
	}
	if it.merge != nil {
		return it.merge.Err()
	}
	return nil
}

// SeekToFirst positions the iterator at the smallest visible key.
func (it *Iterator) SeekToFirst() {
	if it.err != nil {
		return
	}
	it.direction = dirForward
	it.merge.SeekToFirst()
	it.findNextUserEntry(false, nil)
}

// SeekToLast positions the iterator at the largest visible key.
func (it *Iterator) SeekToLast() {
	if it.err != nil {
		return
	}
	it.direction = dirReverse
	it.merge.SeekToLast()
	it.findPrevUserEntry()
}

// Seek positions the iterator at the first visible key at or after target.
func (it *Iterator) Seek(target []byte) {
	if it.err != nil {
		return
	}
	it.direction = dirForward
	// Seeking at the visibility bound skips newer-than-visible versions
	// without a separate pass.
	it.merge.Seek(target, it.bound)
	it.findNextUserEntry(false, nil)
}

// Next advances to the next visible key. Calling Next on an exhausted
// iterator is a no-op.
func (it *Iterator) Next() {
	if !it.valid {
		return
	}

	if it.direction == dirReverse {
		// The merge cursor sits before the current key's versions; step
		// into them so the skip below clears the whole run.
		it.direction = dirForward
		if !it.merge.Valid() {
			it.merge.SeekToFirst()
		} else {
			it.merge.Next()
		}
		if !it.merge.Valid() {
			it.valid = false
			return
		}
	} else {
		it.merge.Next()
		if !it.merge.Valid() {
			it.valid = false
			return
		}
	}

	it.findNextUserEntry(true, it.key)
}

// Prev steps back to the previous visible key. Calling Prev on an exhausted
// iterator is a no-op.
func (it *Iterator) Prev() {
	if !it.valid {
		return
	}

	if it.direction == dirForward {
		// The merge cursor sits on the current entry; back off until the
		// user key changes, then resolve the previous key's newest visible
		// version.
		for {
			it.merge.Prev()
			if !it.merge.Valid() {
				it.valid = false
				return
			}
			if it.cmp.Compare(it.merge.Entry().Key, it.key) < 0 {
				break
			}
		}
		it.direction = dirReverse
	}
	// In reverse state the merge cursor already sits on the first
	// unprocessed entry before the current key.
	it.findPrevUserEntry()
}

// findNextUserEntry scans forward to the newest visible, undeleted version
// of the next emittable user key. When skipping is set, keys at or below
// skipKey are suppressed (they are older versions or tombstoned).
func (it *Iterator) findNextUserEntry(skipping bool, skipKey []byte) {
	for it.merge.Valid() {
		e := it.merge.Entry()
		if e.Seq <= it.bound {
			switch e.Type {
			case common.EntryTypeDelete:
				// Hides every older version of this key.
				skipKey = common.CloneBytes(e.Key)
				skipping = true
			case common.EntryTypePut:
				if !skipping || it.cmp.Compare(e.Key, skipKey) > 0 {
					it.valid = true
					it.key = common.CloneBytes(e.Key)
					it.value = common.CloneBytes(e.Value)
					return
				}
			}
		}
		it.merge.Next()
	}
	it.valid = false
	it.key = nil
	it.value = nil
}

// findPrevUserEntry scans backward accumulating versions of one user key;
// reverse order visits them oldest first, so the last visible one kept is
// the newest. It stops once an earlier user key appears with a live value
// in hand.
func (it *Iterator) findPrevUserEntry() {
	found := false
	deleted := false
	var key, value []byte

	for it.merge.Valid() {
		e := it.merge.Entry()
		if e.Seq <= it.bound {
			if found && !deleted && it.cmp.Compare(e.Key, key) < 0 {
				break
			}
			found = true
			if e.Type == common.EntryTypeDelete {
				deleted = true
				key = common.CloneBytes(e.Key)
				value = nil
			} else {
				deleted = false
				key = common.CloneBytes(e.Key)
				value = common.CloneBytes(e.Value)
			}
		}
		it.merge.Prev()
	}

	if !found || deleted {
		it.valid = false
		it.key = nil
		it.value = nil
		it.direction = dirForward
		return
	}
	it.valid = true
	it.key = key
	it.value = value
}

// Close releases the iterator and reports its terminal status. Further
// positioning calls are invalid.
func (it *Iterator) Close() error {
	err := it.Status()
	it.valid = false
	it.merge = nil
	it.key = nil
	it.value = nil
	return err
}
