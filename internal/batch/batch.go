// Package batch groups mutations for atomic application. A batch records
// Put and Delete operations in call order; the commit path assigns sequence
// numbers and makes every entry visible at once, or none on failure.
package batch

import (
	"citrine/internal/common"
)

// Batch is an ordered list of pending mutations. The zero value is an empty
// batch ready for use. A Batch is not safe for concurrent mutation.
type Batch struct {
	entries []common.Entry
}

// New returns an empty batch.
func New() *Batch {
	return &Batch{}
}

// Put appends a key/value insertion. Key and value are copied.
func (b *Batch) Put(key, value []byte) {
	b.entries = append(b.entries, common.Entry{
		Type:  common.EntryTypePut,
		Key:   common.CloneBytes(key),
		Value: common.CloneBytes(value),
	})
}

// Delete appends a key removal. Key is copied.
func (b *Batch) Delete(key []byte) {
	b.entries = append(b.entries, common.Entry{
		Type: common.EntryTypeDelete,
		Key:  common.CloneBytes(key),
	})
}

// Append concatenates other's entries after b's, preserving relative order.
// Entries are shared, not re-copied; other should not be mutated afterwards.
func (b *Batch) Append(other *Batch) {
	b.entries = append(b.entries, other.entries...)
}

// Count returns the number of entries in the batch.
func (b *Batch) Count() int {
	return len(b.entries)
}

// Reset clears the batch for reuse.
func (b *Batch) Reset() {
	b.entries = b.entries[:0]
}

// Entries exposes the recorded mutations in application order. The commit
// path stamps sequence numbers onto copies; callers must not retain the
// returned slice across a Reset.
func (b *Batch) Entries() []common.Entry {
	return b.entries
}
