// Package filter provides pluggable approximate-membership filtering.
// Filters are purely an optimization: a nil or disabled policy changes the
// average cost of a lookup, never its result.
package filter

// Policy builds and queries compact existence summaries for sets of keys.
type Policy interface {
	// Name identifies the filtering scheme. It is persisted alongside the
	// comparator name so a database is never queried with an incompatible
	// policy.
	Name() string

	// CreateFilter builds a summary of keys. The summary must answer
	// "maybe present" for every key in the build set when queried later.
	CreateFilter(keys [][]byte) []byte

	// KeyMayMatch reports whether key may be in the set the summary was
	// built from. False positives are allowed; false negatives are not.
	KeyMayMatch(key, summary []byte) bool
}
