// Package memtable holds recently committed mutations in a comparator-ordered
// concurrent skip list. Every version of a key is retained until flush, so
// snapshot readers can resolve any sequence bound still pinned.
package memtable

import (
	"sync/atomic"

	"citrine/internal/common"
	"citrine/internal/comparator"

	"github.com/zhangyunhao116/skipmap"
)

// versionList holds every retained version of one user key, newest first
// (descending Seq). Lists are immutable once stored: the writer replaces the
// whole list on update, so concurrent readers always see a consistent slice.
type versionList struct {
	entries []common.Entry
}

// Memtable is safe for one writer and many concurrent readers. The single
// writer guarantee comes from the DB commit loop; Apply must never be called
// from two goroutines at once.
type Memtable struct {
	cmp   comparator.Comparator
	table *skipmap.FuncMap[[]byte, *versionList]
	count atomic.Int64
	bytes atomic.Int64
}

// New returns an empty memtable ordered by cmp.
func New(cmp comparator.Comparator) *Memtable {
	return &Memtable{
		cmp: cmp,
		table: skipmap.NewFunc[[]byte, *versionList](func(a, b []byte) bool {
			return cmp.Compare(a, b) < 0
		}),
	}
}

// Apply records one committed mutation. Entries must arrive in increasing
// sequence order. The entry's key and value are assumed already owned by the
// memtable (the commit path clones batch contents before applying).
func (m *Memtable) Apply(e common.Entry) {
	var entries []common.Entry
	if existing, ok := m.table.Load(e.Key); ok {
		entries = make([]common.Entry, 0, len(existing.entries)+1)
		entries = append(entries, e)
		entries = append(entries, existing.entries...)
	} else {
		entries = []common.Entry{e}
	}
	m.table.Store(e.Key, &versionList{entries: entries})

	m.count.Add(1)
	m.bytes.Add(int64(len(e.Key) + len(e.Value) + 16))
}

// Get returns the newest entry for key with Seq <= maxSeq. The boolean
// reports whether such a version exists; the entry may be a tombstone.
func (m *Memtable) Get(key []byte, maxSeq uint64) (common.Entry, bool) {
	list, ok := m.table.Load(key)
	if !ok {
		return common.Entry{}, false
	}
	for _, e := range list.entries {
		if e.Seq <= maxSeq {
			return e, true
		}
	}
	return common.Entry{}, false
}

// Len returns the total number of retained entries across all keys.
func (m *Memtable) Len() int {
	return int(m.count.Load())
}

// ApproximateBytes returns an estimate of the memory held by entries.
func (m *Memtable) ApproximateBytes() int64 {
	return m.bytes.Load()
}

// Entries materializes a point-in-time view of every version with
// Seq <= maxSeq, ordered by (key ascending, Seq descending). Iterators are
// built on this frozen slice so later writes never leak into them.
func (m *Memtable) Entries(maxSeq uint64) []common.Entry {
	out := make([]common.Entry, 0, m.Len())
	m.table.Range(func(key []byte, list *versionList) bool {
		for _, e := range list.entries {
			if e.Seq <= maxSeq {
				out = append(out, e)
			}
		}
		return true
	})
	return out
}

// All returns a flush iterator over every retained version, ordered by
// (key ascending, Seq descending).
func (m *Memtable) All() common.EntryIterator {
	entries := m.Entries(^uint64(0))
	return &memtableIterator{entries: entries}
}

type memtableIterator struct {
	entries []common.Entry
	index   int
}

func (it *memtableIterator) Next() (*common.Entry, error) {
	if it.index >= len(it.entries) {
		return nil, nil
	}
	entry := &it.entries[it.index]
	it.index++
	return entry, nil
}
