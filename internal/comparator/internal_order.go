package comparator

import "citrine/internal/common"

// CompareEntries orders entries the way every on-disk and in-memory
// structure stores them: user key ascending under cmp, then sequence number
// descending, so the newest version of a key sorts first.
func CompareEntries(cmp Comparator, a, b *common.Entry) int {
	if c := cmp.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	switch {
	case a.Seq > b.Seq:
		return -1
	case a.Seq < b.Seq:
		return 1
	default:
		return 0
	}
}

// ComparePosition orders an entry against a logical position (key, seq).
// Seeking to (key, MaxUint64) lands on the newest version of key.
func ComparePosition(cmp Comparator, e *common.Entry, key []byte, seq uint64) int {
	if c := cmp.Compare(e.Key, key); c != 0 {
		return c
	}
	switch {
	case e.Seq > seq:
		return -1
	case e.Seq < seq:
		return 1
	default:
		return 0
	}
}
