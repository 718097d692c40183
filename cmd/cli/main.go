package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"citrine/internal/common"
	"citrine/internal/db"
	"citrine/internal/filter"
	"github.com/peterh/liner"
)

func main() {
	configPath := flag.String("config", "citrine.yaml", "path to YAML config")
	dbPath := flag.String("db", "", "database directory (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Path = *dbPath
	}
	common.LoggingEnabled = cfg.Verbose

	engine, err := db.Open(cfg.Path,
		db.WithMemtableFlushThreshold(cfg.MemtableFlushThreshold),
		db.WithBlockCacheCapacity(cfg.BlockCacheCapacity),
		db.WithMaxBatchSize(cfg.MaxBatchSize),
		db.WithFilter(filter.NewBloomPolicy(cfg.BloomBitsPerKey)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Println("cdb - citrine database shell")
	fmt.Printf("db: %s  flush_threshold=%d cache=%d\n", cfg.Path, cfg.MemtableFlushThreshold, cfg.BlockCacheCapacity)
	fmt.Println("commands: put | get | del | scan | rscan | snap | snaprel | sizes | seed | dump | help | exit")

	shell := newShell(engine)
	defer shell.close()
	shell.run()
}

// shell wraps the REPL state: the open database, the line editor, and the
// numbered snapshots held by the session.
type shell struct {
	engine *db.DB
	line   *liner.State

	histFile  string
	snaps     map[int]*db.Snapshot
	nextSnap  int
	seedIndex int
}

func newShell(engine *db.DB) *shell {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	s := &shell{
		engine:   engine,
		line:     line,
		snaps:    make(map[int]*db.Snapshot),
		nextSnap: 1,
	}

	if home, err := os.UserHomeDir(); err == nil {
		s.histFile = filepath.Join(home, ".cdb_history")
		if f, err := os.Open(s.histFile); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	s.seedIndex = loadSeedIndex(engine)
	return s
}

func (s *shell) close() {
	if s.histFile != "" {
		if f, err := os.Create(s.histFile); err == nil {
			s.line.WriteHistory(f)
			f.Close()
		}
	}
	s.line.Close()
}

func (s *shell) run() {
	for {
		input, err := s.line.Prompt("> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			fmt.Println()
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "input error: %v\n", err)
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		s.line.AppendHistory(input)

		if !s.dispatch(strings.Fields(input)) {
			return
		}
	}
}

// dispatch runs one command; returns false to exit the shell.
func (s *shell) dispatch(parts []string) bool {
	switch strings.ToLower(parts[0]) {
	case "put":
		s.cmdPut(parts[1:])
	case "get":
		s.cmdGet(parts[1:])
	case "del", "delete":
		s.cmdDelete(parts[1:])
	case "scan":
		s.cmdScan(parts[1:], false)
	case "rscan":
		s.cmdScan(parts[1:], true)
	case "snap":
		s.cmdSnap(parts[1:])
	case "snaprel":
		s.cmdSnapRelease(parts[1:])
	case "sizes":
		s.cmdSizes(parts[1:])
	case "seed":
		s.cmdSeed(parts[1:])
	case "dump":
		if len(parts) != 2 {
			fmt.Println("usage: dump <file.log|file.sst|MANIFEST>")
			break
		}
		dumpFile(parts[1])
	case "help":
		s.cmdHelp()
	case "exit", "quit":
		return false
	default:
		fmt.Println("unknown command (try: help)")
	}
	return true
}

func (s *shell) cmdPut(args []string) {
	sync := false
	if len(args) == 3 && args[2] == "sync" {
		sync = true
		args = args[:2]
	}
	if len(args) != 2 {
		fmt.Println("usage: put <key> <value> [sync]")
		return
	}
	if err := s.engine.Put(db.WriteOptions{Sync: sync}, []byte(args[0]), []byte(args[1])); err != nil {
		fmt.Printf("put error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func (s *shell) cmdGet(args []string) {
	ro, args, ok := s.readOptions(args)
	if !ok || len(args) != 1 {
		fmt.Println("usage: get [@<snap>] <key>")
		return
	}
	value, err := s.engine.Get(ro, []byte(args[0]))
	if err != nil {
		fmt.Printf("get error: %v\n", err)
		return
	}
	fmt.Printf("%s\n", value)
}

func (s *shell) cmdDelete(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: del <key>")
		return
	}
	if err := s.engine.Delete(db.WriteOptions{}, []byte(args[0])); err != nil {
		fmt.Printf("del error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

// cmdScan walks [start, limit) forward, or everything backward for rscan.
func (s *shell) cmdScan(args []string, reverse bool) {
	ro, args, ok := s.readOptions(args)
	if !ok || len(args) > 2 {
		fmt.Println("usage: scan [@<snap>] [start [limit]]")
		return
	}

	iter := s.engine.NewIterator(ro)
	defer iter.Close()

	var limit []byte
	if len(args) >= 1 {
		iter.Seek([]byte(args[0]))
	} else if reverse {
		iter.SeekToLast()
	} else {
		iter.SeekToFirst()
	}
	if len(args) == 2 {
		limit = []byte(args[1])
	}

	count := 0
	for ; iter.Valid(); step(iter, reverse) {
		if limit != nil && !reverse && string(iter.Key()) >= string(limit) {
			break
		}
		fmt.Printf("%s = %s\n", iter.Key(), iter.Value())
		count++
	}
	if err := iter.Status(); err != nil {
		fmt.Printf("scan error: %v\n", err)
		return
	}
	fmt.Printf("(%d keys)\n", count)
}

func step(iter *db.Iterator, reverse bool) {
	if reverse {
		iter.Prev()
	} else {
		iter.Next()
	}
}

func (s *shell) cmdSnap(args []string) {
	if len(args) != 0 {
		fmt.Println("usage: snap")
		return
	}
	id := s.nextSnap
	s.nextSnap++
	s.snaps[id] = s.engine.GetSnapshot()
	fmt.Printf("snapshot @%d (seq %d)\n", id, s.snaps[id].Seq())
}

func (s *shell) cmdSnapRelease(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: snaprel <id>")
		return
	}
	id, err := strconv.Atoi(strings.TrimPrefix(args[0], "@"))
	if err != nil {
		fmt.Println("snaprel: bad snapshot id")
		return
	}
	snap, ok := s.snaps[id]
	if !ok {
		fmt.Printf("no snapshot @%d\n", id)
		return
	}
	if err := s.engine.ReleaseSnapshot(snap); err != nil {
		fmt.Printf("snaprel error: %v\n", err)
		return
	}
	delete(s.snaps, id)
	fmt.Println("ok")
}

func (s *shell) cmdSizes(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: sizes <start> <limit>")
		return
	}
	sizes, err := s.engine.GetApproximateSizes([]db.Range{
		{Start: []byte(args[0]), Limit: []byte(args[1])},
	})
	if err != nil {
		fmt.Printf("sizes error: %v\n", err)
		return
	}
	fmt.Printf("~%d bytes\n", sizes[0])
}

func (s *shell) cmdSeed(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: seed <rounds>")
		return
	}
	rounds, err := strconv.Atoi(args[0])
	if err != nil || rounds < 1 {
		fmt.Println("seed: rounds must be a positive integer")
		return
	}
	runSeed(s.engine, rounds, &s.seedIndex)
}

func (s *shell) cmdHelp() {
	fmt.Println("put <key> <value> [sync]   write one key")
	fmt.Println("get [@<snap>] <key>        read one key")
	fmt.Println("del <key>                  delete one key")
	fmt.Println("scan [@<snap>] [s [l]]     forward scan, optionally [s, l)")
	fmt.Println("rscan [@<snap>] [start]    backward scan")
	fmt.Println("snap                       take a snapshot")
	fmt.Println("snaprel <id>               release a snapshot")
	fmt.Println("sizes <start> <limit>      approximate on-disk bytes of a range")
	fmt.Println("seed <rounds>              bulk-load sample data")
	fmt.Println("dump <file>                dump a WAL, SSTable, or MANIFEST file")
	fmt.Println("exit                       quit")
}

// readOptions strips a leading @<snap> argument, resolving it to a pinned
// snapshot.
func (s *shell) readOptions(args []string) (db.ReadOptions, []string, bool) {
	if len(args) == 0 || !strings.HasPrefix(args[0], "@") {
		return db.ReadOptions{}, args, true
	}
	id, err := strconv.Atoi(args[0][1:])
	if err != nil {
		return db.ReadOptions{}, nil, false
	}
	snap, ok := s.snaps[id]
	if !ok {
		fmt.Printf("no snapshot @%d\n", id)
		return db.ReadOptions{}, nil, false
	}
	return db.ReadOptions{Snapshot: snap}, args[1:], true
}
