package db

import (
	"sync"

	"citrine/internal/status"
)

// Snapshot pins a point-in-time view of the store. Reads through a snapshot
// see exactly the writes committed before it was taken, regardless of later
// writes or deletes. A snapshot is cheap: it holds a sequence number, not
// copied data.
type Snapshot struct {
	seq uint64
}

// Seq returns the highest sequence number visible through the snapshot.
func (s *Snapshot) Seq() uint64 {
	return s.seq
}

// snapshotSet tracks live snapshots so reclamation knows the oldest pinned
// sequence and released snapshots are rejected on reuse.
type snapshotSet struct {
	mu   sync.Mutex
	live map[*Snapshot]struct{}
}

func newSnapshotSet() *snapshotSet {
	return &snapshotSet{live: make(map[*Snapshot]struct{})}
}

func (s *snapshotSet) acquire(seq uint64) *Snapshot {
	snap := &Snapshot{seq: seq}
	s.mu.Lock()
	s.live[snap] = struct{}{}
	s.mu.Unlock()
	return snap
}

func (s *snapshotSet) release(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[snap]; !ok {
		return status.InvalidArgumentf("snapshot already released")
	}
	delete(s.live, snap)
	return nil
}

func (s *snapshotSet) contains(snap *Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live[snap]
	return ok
}

// minPinned returns the smallest live snapshot sequence, or latest when no
// snapshot is live. Versions at or above the result must be retained.
func (s *snapshotSet) minPinned(latest uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	min := latest
	for snap := range s.live {
		if snap.seq < min {
			min = snap.seq
		}
	}
	return min
}
