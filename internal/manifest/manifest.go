// Package manifest tracks the durable, structural state of the store: which
// WAL is current, which SSTables exist per level, the last committed
// sequence number, and the names of the comparator and filter policy the
// database was created with. Versions are immutable; every change installs
// a fresh copy, so a reader holding a Version sees a frozen file tree.
package manifest

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"citrine/internal/block_cache"
	"citrine/internal/common"
	"citrine/internal/comparator"
	"citrine/internal/filter"
	"citrine/internal/sstable"
	"citrine/internal/status"
)

// FileMetadata tracks metadata for a single SSTable file.
type FileMetadata struct {
	FileNo      common.FileNo
	Level       int
	SmallestKey []byte
	LargestKey  []byte
	Size        uint64
}

// Version is an immutable snapshot of the file tree plus the creation-time
// configuration that must survive reopen.
type Version struct {
	// Names persisted at creation; reopening under different ones is an
	// invalid-argument error.
	ComparatorName string
	FilterName     string

	// Current WAL being written.
	CurrentWAL common.FileNo

	// Levels[0] = L0 tables in flush order (newest last), deeper levels
	// non-overlapping.
	Levels [][]FileMetadata

	// Next file numbers to allocate.
	NextWALNumber     common.FileNo
	NextSSTableNumber common.FileNo

	// Highest sequence number already durable in SSTables. Recovery seeds
	// the write counter with max(LastSeq, highest seq replayed from WAL).
	LastSeq uint64
}

// Edit describes an atomic change to the file tree.
type Edit struct {
	AddTables    []FileMetadata
	DeleteTables map[common.FileNo]struct{}
	LastSeq      uint64 // applied when > current
}

// Manifest owns the current Version and the shared caches over open tables.
type Manifest struct {
	mu sync.RWMutex

	paths   *common.PathManager
	current *Version

	cmp    comparator.Comparator
	policy filter.Policy

	// Shared pool of open table handles and parsed blocks.
	tableCache map[common.FileNo]*sstable.Table
	blockCache *block_cache.Cache
}

// New creates a manifest for a fresh database with the given number of
// levels.
func New(paths *common.PathManager, numLevels int, cmp comparator.Comparator, policy filter.Policy, cacheCapacity int) *Manifest {
	filterName := ""
	if policy != nil {
		filterName = policy.Name()
	}
	return &Manifest{
		paths: paths,
		current: &Version{
			ComparatorName: cmp.Name(),
			FilterName:     filterName,
			Levels:         make([][]FileMetadata, numLevels),
		},
		cmp:        cmp,
		policy:     policy,
		tableCache: make(map[common.FileNo]*sstable.Table),
		blockCache: block_cache.New(cacheCapacity),
	}
}

// Current returns the current version for reading. The returned Version
// must not be mutated.
func (m *Manifest) Current() *Version {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// LoadVersion replaces the current version during recovery.
func (m *Manifest) LoadVersion(v *Version) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = v
}

// SetWAL installs num as the current WAL and bumps NextWALNumber.
func (m *Manifest) SetWAL(num common.FileNo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.deepCopy(m.current)
	next.CurrentWAL = num
	if num >= next.NextWALNumber {
		next.NextWALNumber = num + 1
	}
	m.current = next
}

// Apply atomically applies an edit, creating a new version.
func (m *Manifest) Apply(edit *Edit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.deepCopy(m.current)

	if len(edit.DeleteTables) > 0 {
		for level := range next.Levels {
			filtered := next.Levels[level][:0:0]
			for _, fm := range next.Levels[level] {
				if _, deleted := edit.DeleteTables[fm.FileNo]; !deleted {
					filtered = append(filtered, fm)
				}
			}
			next.Levels[level] = filtered
		}
		for fileNo := range edit.DeleteTables {
			if table, ok := m.tableCache[fileNo]; ok {
				table.Close()
				delete(m.tableCache, fileNo)
			}
			m.blockCache.DropFile(fileNo)
		}
	}

	for _, fm := range edit.AddTables {
		next.Levels[fm.Level] = append(next.Levels[fm.Level], fm)
		if fm.FileNo >= next.NextSSTableNumber {
			next.NextSSTableNumber = fm.FileNo + 1
		}
	}

	if edit.LastSeq > next.LastSeq {
		next.LastSeq = edit.LastSeq
	}

	m.current = next
}

func (m *Manifest) deepCopy(v *Version) *Version {
	next := &Version{
		ComparatorName:    v.ComparatorName,
		FilterName:        v.FilterName,
		CurrentWAL:        v.CurrentWAL,
		Levels:            make([][]FileMetadata, len(v.Levels)),
		NextWALNumber:     v.NextWALNumber,
		NextSSTableNumber: v.NextSSTableNumber,
		LastSeq:           v.LastSeq,
	}
	for i := range v.Levels {
		next.Levels[i] = make([]FileMetadata, len(v.Levels[i]))
		copy(next.Levels[i], v.Levels[i])
	}
	return next
}

// GetTable returns the open table handle for fm, opening and caching it on
// first use.
func (m *Manifest) GetTable(fm FileMetadata) (*sstable.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if table, ok := m.tableCache[fm.FileNo]; ok {
		return table, nil
	}

	path := m.paths.SSTablePath(fm.Level, fm.FileNo)
	table, err := sstable.Open(path, fm.FileNo, m.cmp, m.policy, m.blockCache)
	if err != nil {
		return nil, err
	}

	m.tableCache[fm.FileNo] = table
	return table, nil
}

// Flush atomically writes the current version to the MANIFEST file via a
// temp file and rename.
func (m *Manifest) Flush() error {
	m.mu.RLock()
	v := m.current
	m.mu.RUnlock()

	tmpPath := m.paths.TempManifestPath()
	f, err := os.Create(tmpPath)
	if err != nil {
		return status.IOErrorf(err, "create %s", tmpPath)
	}

	if err := WriteVersion(f, v); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return status.IOErrorf(err, "write manifest")
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return status.IOErrorf(err, "sync manifest")
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return status.IOErrorf(err, "close manifest")
	}

	if err := os.Rename(tmpPath, m.paths.ManifestPath()); err != nil {
		return status.IOErrorf(err, "install manifest")
	}
	return nil
}

// Close releases every cached table handle.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for fileNo, table := range m.tableCache {
		if err := table.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.tableCache, fileNo)
	}
	return firstErr
}

// WriteVersion serializes a Version as JSON.
func WriteVersion(w io.Writer, v *Version) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// ReadVersion deserializes a Version.
func ReadVersion(r io.Reader) (*Version, error) {
	var v Version
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return nil, status.Corruptionf(err, "malformed manifest")
	}
	return &v, nil
}
