package db

import (
	"citrine/internal/comparator"
	"citrine/internal/filter"
)

// Options configures a database at open time. Comparator and Filter choices
// are recorded in the MANIFEST on creation; reopening with different ones is
// rejected.
type Options struct {
	// CreateIfMissing creates the database directory and MANIFEST when no
	// database exists at the path.
	CreateIfMissing bool

	// ErrorIfExists fails Open when a database already exists at the path.
	ErrorIfExists bool

	// Comparator defines the total order over user keys. Nil means the
	// built-in bytewise comparator.
	Comparator comparator.Comparator

	// Filter is consulted on point reads to skip SSTables that definitely
	// do not contain the key. Nil disables filtering.
	Filter filter.Policy

	// MemtableFlushThreshold is the entry count at which the memtable is
	// flushed to an L0 SSTable.
	MemtableFlushThreshold int

	// MaxSSTableLevel is the deepest SSTable level (levels are 0-based).
	MaxSSTableLevel int

	// MaxBatchSize caps how many pending write requests the commit loop
	// groups into one WAL sync.
	MaxBatchSize int

	// BlockCacheCapacity is the number of parsed data blocks kept in the
	// shared block cache. Zero or negative disables the cache.
	BlockCacheCapacity int
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		CreateIfMissing:        true,
		Comparator:             comparator.Bytewise(),
		Filter:                 filter.NewBloomPolicy(10),
		MemtableFlushThreshold: 4096,
		MaxSSTableLevel:        3,
		MaxBatchSize:           64,
		BlockCacheCapacity:     256,
	}
}

// Option mutates Options during Open.
type Option func(*Options)

// WithCreateIfMissing controls whether Open creates a missing database.
func WithCreateIfMissing(create bool) Option {
	return func(o *Options) { o.CreateIfMissing = create }
}

// WithErrorIfExists makes Open fail when the database already exists.
func WithErrorIfExists() Option {
	return func(o *Options) { o.ErrorIfExists = true }
}

// WithComparator sets the user key comparator.
func WithComparator(cmp comparator.Comparator) Option {
	return func(o *Options) { o.Comparator = cmp }
}

// WithFilter sets the filter policy. Pass nil to disable filtering.
func WithFilter(policy filter.Policy) Option {
	return func(o *Options) { o.Filter = policy }
}

// WithMemtableFlushThreshold sets the flush trigger in entries.
func WithMemtableFlushThreshold(entries int) Option {
	return func(o *Options) { o.MemtableFlushThreshold = entries }
}

// WithMaxBatchSize caps the group commit batch size in requests.
func WithMaxBatchSize(n int) Option {
	return func(o *Options) { o.MaxBatchSize = n }
}

// WithBlockCacheCapacity sets the block cache capacity in blocks.
func WithBlockCacheCapacity(blocks int) Option {
	return func(o *Options) { o.BlockCacheCapacity = blocks }
}

// WriteOptions controls durability of a single write.
type WriteOptions struct {
	// Sync forces the WAL to disk before the write returns. Non-sync writes
	// may be lost on machine crash but never corrupt the store.
	Sync bool
}

// ReadOptions controls visibility of a single read.
type ReadOptions struct {
	// Snapshot pins the read to an earlier point in time. Nil reads the
	// latest committed state.
	Snapshot *Snapshot
}

// Range is a half-open key interval [Start, Limit).
type Range struct {
	Start []byte
	Limit []byte
}
