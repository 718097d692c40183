// inspect prints summary statistics for one on-disk file of a citrine
// database: a WAL segment, an SSTable, or the MANIFEST.
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

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file.log|file.sst|MANIFEST>\n", os.Args[0])
		os.Exit(1)
	}

	path := os.Args[1]
	if filepath.Base(path) == "MANIFEST" {
		inspectManifest(path)
		return
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".log":
		inspectWAL(path)
	case ".sst":
		inspectSSTable(path)
	default:
		fmt.Fprintf(os.Stderr, "unknown file type: %s (expected .log, .sst, or MANIFEST)\n", path)
		os.Exit(1)
	}
}

func inspectWAL(path string) {
	fmt.Printf("WAL: %s\n", path)
	fmt.Println()

	w, err := wal.Open(path)
	if err != nil {
		fatal(err)
	}
	defer w.Close()

	iter, err := w.Iterator()
	if err != nil {
		fatal(err)
	}

	var puts, deletes int
	var minSeq, maxSeq uint64
	for {
		entry, err := iter.Next()
		if err != nil {
			fatal(err)
		}
		if entry == nil {
			break
		}
		if entry.Type == common.EntryTypeDelete {
			deletes++
		} else {
			puts++
		}
		if minSeq == 0 || entry.Seq < minSeq {
			minSeq = entry.Seq
		}
		if entry.Seq > maxSeq {
			maxSeq = entry.Seq
		}
	}

	fmt.Printf("entries: %d puts, %d deletes\n", puts, deletes)
	if maxSeq > 0 {
		fmt.Printf("seq:     %d..%d\n", minSeq, maxSeq)
	}
}

func inspectSSTable(path string) {
	fmt.Printf("SSTable: %s\n", path)
	fmt.Println()

	name := strings.TrimSuffix(filepath.Base(path), ".sst")
	var fileNo common.FileNo
	if _, err := fmt.Sscanf(name, "%d", &fileNo); err != nil {
		fatal(fmt.Errorf("failed to parse file number from %s: %v", name, err))
	}

	table, err := sstable.Open(path, fileNo, comparator.Bytewise(), nil, nil)
	if err != nil {
		fatal(err)
	}
	defer table.Close()

	fmt.Printf("size:    %d bytes\n", table.Size())
	fmt.Printf("entries: %d\n", table.EntryCount())
	fmt.Printf("blocks:  %d\n", table.NumBlocks())
	fmt.Println()

	cur := table.NewCursor()
	cur.SeekToFirst()
	if cur.Valid() {
		first := string(cur.Entry().Key)
		cur.SeekToLast()
		fmt.Printf("range:   [%q, %q]\n", first, string(cur.Entry().Key))
	}
	if err := cur.Err(); err != nil {
		fatal(err)
	}
}

func inspectManifest(path string) {
	fmt.Printf("MANIFEST: %s\n", path)
	fmt.Println()

	f, err := os.Open(path)
	if err != nil {
		fatal(err)
	}
	defer f.Close()

	v, err := manifest.ReadVersion(f)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("comparator: %s\n", v.ComparatorName)
	fmt.Printf("filter:     %s\n", v.FilterName)
	fmt.Printf("wal:        %d (next %d)\n", v.CurrentWAL, v.NextWALNumber)
	fmt.Printf("next sst:   %d\n", v.NextSSTableNumber)
	fmt.Printf("last seq:   %d\n", v.LastSeq)

	total := 0
	for level, files := range v.Levels {
		total += len(files)
		var bytes uint64
		for _, fm := range files {
			bytes += fm.Size
		}
		fmt.Printf("L%d: %d tables, %d bytes\n", level, len(files), bytes)
	}
	fmt.Printf("total: %d tables\n", total)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "%v\n", err)
	os.Exit(1)
}
