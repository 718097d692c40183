package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"citrine/internal/common"
	"citrine/internal/comparator"
	"citrine/internal/manifest"
	"citrine/internal/sstable"
	"citrine/internal/wal"
)

func dumpFile(path string) {
	if filepath.Base(path) == "MANIFEST" {
		dumpManifest(path)
		return
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".log":
		dumpWAL(path)
	case ".sst":
		dumpSSTable(path)
	default:
		fmt.Printf("unknown file type: %s (expected .log, .sst, or MANIFEST)\n", path)
	}
}

func dumpIterator(iter common.EntryIterator) {
	fmt.Printf("%-6s %-20s %10s  %s\n", "OP", "KEY", "SEQ", "VALUE")
	fmt.Println()

	count := 0
	for {
		entry, err := iter.Next()
		if err != nil {
			fmt.Printf("error reading entry: %v\n", err)
			return
		}
		if entry == nil {
			break
		}
		count++

		key := string(entry.Key)
		if len(key) > 20 {
			key = key[:20]
		}
		if entry.Type == common.EntryTypePut {
			fmt.Printf("%-6s %-20s %10d  %s\n", "PUT", key, entry.Seq, entry.Value)
		} else {
			fmt.Printf("%-6s %-20s %10d\n", "DEL", key, entry.Seq)
		}
	}

	fmt.Println()
	fmt.Printf("Total entries: %d\n", count)
}

func dumpWAL(path string) {
	fmt.Printf("Dumping WAL: %s\n", path)
	fmt.Println()

	w, err := wal.Open(path)
	if err != nil {
		fmt.Printf("failed to open WAL: %v\n", err)
		return
	}
	defer w.Close()

	iter, err := w.Iterator()
	if err != nil {
		fmt.Printf("failed to create iterator: %v\n", err)
		return
	}
	dumpIterator(iter)
}

func dumpSSTable(path string) {
	fmt.Printf("Dumping SSTable: %s\n", path)
	fmt.Println()

	fileNo, err := fileNoFromPath(path)
	if err != nil {
		fmt.Printf("%v\n", err)
		return
	}

	// Bytewise is fine here: a sequential dump never compares keys.
	table, err := sstable.Open(path, fileNo, comparator.Bytewise(), nil, nil)
	if err != nil {
		fmt.Printf("failed to open SSTable: %v\n", err)
		return
	}
	defer table.Close()

	dumpIterator(table.Iterator())
}

func dumpManifest(path string) {
	fmt.Printf("Dumping MANIFEST: %s\n", path)
	fmt.Println()

	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("failed to open MANIFEST: %v\n", err)
		return
	}
	defer f.Close()

	v, err := manifest.ReadVersion(f)
	if err != nil {
		fmt.Printf("failed to read MANIFEST: %v\n", err)
		return
	}

	fmt.Printf("comparator: %s\n", v.ComparatorName)
	fmt.Printf("filter:     %s\n", v.FilterName)
	fmt.Printf("wal:        %d (next %d)\n", v.CurrentWAL, v.NextWALNumber)
	fmt.Printf("last seq:   %d\n", v.LastSeq)
	for level, files := range v.Levels {
		for _, fm := range files {
			fmt.Printf("L%d: file %d  [%q, %q]  %d bytes\n",
				level, fm.FileNo, fm.SmallestKey, fm.LargestKey, fm.Size)
		}
	}
}

// fileNoFromPath extracts the file number from an SSTable path like
// sstable/0/123.sst.
func fileNoFromPath(path string) (common.FileNo, error) {
	name := strings.TrimSuffix(filepath.Base(path), ".sst")
	var fileNo common.FileNo
	if _, err := fmt.Sscanf(name, "%d", &fileNo); err != nil {
		return 0, fmt.Errorf("failed to parse file number from %s: %v", name, err)
	}
	return fileNo, nil
}
