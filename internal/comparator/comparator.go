// Package comparator defines the pluggable key ordering used by every
// ordered structure in the store. A database persists the name of the
// comparator it was created with and refuses to reopen under a different
// one.
package comparator

import "bytes"

// Comparator is a total order over byte-string keys.
type Comparator interface {
	// Compare returns a negative number if a sorts before b, zero if they
	// are equal, and a positive number if a sorts after b. The order must
	// be transitive and antisymmetric.
	Compare(a, b []byte) int

	// Name identifies the ordering scheme. The name is persisted in the
	// MANIFEST; opening a database with a differently-named comparator
	// fails with an invalid-argument error.
	Name() string

	// FindShortestSeparator returns a key k with start <= k < limit that
	// may be shorter than start. Purely an optimization for index keys;
	// returning start unchanged is always correct.
	FindShortestSeparator(start, limit []byte) []byte

	// FindShortSuccessor returns a key >= key, possibly shorter.
	// Returning key unchanged is always correct.
	FindShortSuccessor(key []byte) []byte
}

// bytewise orders keys by raw byte comparison.
type bytewise struct{}

// Bytewise returns the default lexicographic comparator.
func Bytewise() Comparator {
	return bytewise{}
}

func (bytewise) Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

func (bytewise) Name() string {
	return "citrine.BytewiseComparator"
}

func (bytewise) FindShortestSeparator(start, limit []byte) []byte {
	// Find length of common prefix.
	n := len(start)
	if len(limit) < n {
		n = len(limit)
	}
	i := 0
	for i < n && start[i] == limit[i] {
		i++
	}
	if i >= n {
		// One key is a prefix of the other; no shortening possible.
		return start
	}
	if start[i] < 0xff && start[i]+1 < limit[i] {
		sep := make([]byte, i+1)
		copy(sep, start[:i+1])
		sep[i]++
		return sep
	}
	return start
}

func (bytewise) FindShortSuccessor(key []byte) []byte {
	// Bump the first byte that can be incremented and drop the rest.
	for i, b := range key {
		if b != 0xff {
			succ := make([]byte, i+1)
			copy(succ, key[:i+1])
			succ[i]++
			return succ
		}
	}
	// All 0xff: key is its own successor bound.
	return key
}
