// Package lsm orchestrates the write-ahead log, the MemTable, and the
// leveled SSTables that together form the LSM tree: it implements flush,
// read, and compaction while preserving the correctness of concurrent
// reads.
package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nyasuto/strata/internal/memtable"
	"github.com/nyasuto/strata/internal/sstable"
	"github.com/nyasuto/strata/internal/wal"
)

// CompactionStrategy selects how a level is compacted once it has
// accumulated compaction_threshold SSTables.
type CompactionStrategy int

const (
	// LevelBased merges every SSTable in a level into a single SSTable at
	// the next level. This is the required strategy.
	LevelBased CompactionStrategy = iota
	// SizeTiered would merge SSTables of similar size within the same
	// level instead of cascading to the next one. It is declared by the
	// original design but not required; Open rejects it.
	SizeTiered
)

func (s CompactionStrategy) String() string {
	switch s {
	case LevelBased:
		return "level-based"
	case SizeTiered:
		return "size-tiered"
	default:
		return "unknown"
	}
}

// Config holds the construction-time options for a Tree.
type Config struct {
	WALPath             string
	SSTableDir          string
	MemTableMaxSize     int
	CompactionThreshold int
	CompactionStrategy  CompactionStrategy
}

// sstableHandle pairs a loaded table with the slot it occupies within its
// level, so compaction can name its input files and allocate the next free
// slot.
type sstableHandle struct {
	slot  int
	table *sstable.Table
}

// Tree is the LSM tree: WAL, MemTable, and levels are its leaves. All
// exported methods are safe to call from multiple goroutines — every
// operation is performed while holding mu, matching the single
// engine-wide-lock concurrency model the request server relies on.
type Tree struct {
	mu sync.Mutex

	cfg Config
	w   *wal.WAL
	mem *memtable.MemTable

	// levels[0] is newest. levels[L] holds compaction_threshold-bounded
	// SSTables: for L==0 in arrival order from flushes, and for L>=1 one
	// SSTable per compaction cascade into that level. Tables within any
	// level may have overlapping key ranges; higher slots are newer.
	levels [][]*sstableHandle

	compactionCount uint64

	log *logrus.Entry
}

// Open creates the SSTable directory if absent, opens (or creates) the WAL,
// replays it into a fresh MemTable, and reconstructs levels from whatever
// SSTables already exist on disk.
func Open(cfg Config) (*Tree, error) {
	if cfg.CompactionStrategy == SizeTiered {
		return nil, fmt.Errorf("lsm: size-tiered compaction is not implemented; use LevelBased")
	}
	if cfg.MemTableMaxSize <= 0 {
		return nil, fmt.Errorf("lsm: MemTableMaxSize must be positive")
	}
	if cfg.CompactionThreshold <= 0 {
		return nil, fmt.Errorf("lsm: CompactionThreshold must be positive")
	}

	log := logrus.WithField("component", "lsm")

	if err := os.MkdirAll(cfg.SSTableDir, 0o750); err != nil {
		return nil, fmt.Errorf("lsm: create sstable dir: %w", err)
	}

	w, err := wal.Open(cfg.WALPath)
	if err != nil {
		return nil, fmt.Errorf("lsm: open wal: %w", err)
	}

	mem := memtable.New(cfg.MemTableMaxSize)
	if err := mem.Replay(cfg.WALPath); err != nil {
		return nil, fmt.Errorf("lsm: replay wal: %w", err)
	}

	t := &Tree{
		cfg: cfg,
		w:   w,
		mem: mem,
		log: log,
	}

	if err := t.loadLevels(); err != nil {
		return nil, fmt.Errorf("lsm: load levels: %w", err)
	}

	log.WithFields(logrus.Fields{
		"wal_path":    cfg.WALPath,
		"sstable_dir": cfg.SSTableDir,
		"strategy":    cfg.CompactionStrategy,
	}).Info("lsm tree opened")

	return t, nil
}

// loadLevels scans the SSTable directory level by level. For each level L,
// it loads slots 0, 1, … until a slot is missing. It scans every level up to
// the deepest one that has a data file on disk, so a level left empty by
// compaction (e.g. level 0) does not hide the deeper levels. Each level is
// scanned independently — a shared slot counter across levels would misname
// files (see the original design's ambiguity here, resolved this way per
// the written specification).
func (t *Tree) loadLevels() error {
	matches, err := filepath.Glob(filepath.Join(t.cfg.SSTableDir, "sstable_*_*.txt"))
	if err != nil {
		return fmt.Errorf("list sstables: %w", err)
	}
	maxLevel := -1
	for _, m := range matches {
		var level, slot int
		if _, err := fmt.Sscanf(filepath.Base(m), "sstable_%d_%d.txt", &level, &slot); err == nil && level > maxLevel {
			maxLevel = level
		}
	}

	for level := 0; level <= maxLevel; level++ {
		var handles []*sstableHandle
		for slot := 0; ; slot++ {
			path := t.sstablePath(level, slot)
			if _, err := os.Stat(path); err != nil {
				break
			}
			table, err := sstable.Load(path)
			if err != nil {
				return fmt.Errorf("load sstable %s: %w", path, err)
			}
			handles = append(handles, &sstableHandle{slot: slot, table: table})
		}
		t.ensureLevel(level)
		t.levels[level] = handles
	}
	return nil
}

func (t *Tree) sstablePath(level, slot int) string {
	return filepath.Join(t.cfg.SSTableDir, fmt.Sprintf("sstable_%d_%d.txt", level, slot))
}

func (t *Tree) ensureLevel(level int) {
	for len(t.levels) <= level {
		t.levels = append(t.levels, nil)
	}
}

// Write appends (key, value) to the WAL, inserts it into the MemTable, and
// — if the MemTable is now full — flushes it to a new level-0 SSTable,
// resets the WAL, and cascades compaction if level 0 has reached the
// configured threshold. A zero-length value is a tombstone.
func (t *Tree) Write(key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.w.Append(key, value); err != nil {
		return err
	}
	t.mem.Insert(key, value)

	if t.mem.IsFull() {
		if err := t.flush(); err != nil {
			return err
		}
	}
	return nil
}

// Delete is Write(key, "") — a tombstone write.
func (t *Tree) Delete(key string) error {
	return t.Write(key, "")
}

// flush drains the MemTable to a new level-0 SSTable, replaces the
// MemTable, and resets the WAL. Flush must complete (data + index durable)
// before the WAL is reset — a hard correctness requirement, since the WAL
// is the only durable record of the flushed data until that point.
func (t *Tree) flush() error {
	t.ensureLevel(0)
	slot := len(t.levels[0])
	path := t.sstablePath(0, slot)

	entries := t.mem.DrainSorted()
	sstEntries := make([]sstable.Entry, len(entries))
	for i, e := range entries {
		sstEntries[i] = sstable.Entry{Key: e.Key, Value: e.Value}
	}

	if err := sstable.WriteData(path, sstEntries); err != nil {
		return fmt.Errorf("lsm: flush: write data: %w", err)
	}
	table, err := sstable.New(path)
	if err != nil {
		return fmt.Errorf("lsm: flush: build sstable: %w", err)
	}

	t.levels[0] = append(t.levels[0], &sstableHandle{slot: slot, table: table})
	t.mem = memtable.New(t.mem.MaxSize())

	if err := t.w.Reset(); err != nil {
		// The new SSTable is already durable; the WAL now holds records
		// already safely flushed, which is harmless to replay again
		// except that it would re-insert already-flushed data into the
		// fresh MemTable. We surface the error rather than pretend the
		// reset succeeded — the caller should treat the engine as
		// degraded until an operator intervenes.
		return fmt.Errorf("lsm: flush: wal reset failed, engine needs attention: %w", err)
	}

	t.log.WithFields(logrus.Fields{"path": path, "entries": len(sstEntries)}).Warn("memtable flushed")

	if len(t.levels[0]) >= t.cfg.CompactionThreshold {
		t.log.Warn("compaction triggered")
		if err := t.compactFrom(0); err != nil {
			return fmt.Errorf("lsm: flush: compaction: %w", err)
		}
	}
	return nil
}

// Read consults the MemTable first, then probes levels from newest (level
// 0) to oldest. Within every level, higher slots are newer — a sub-threshold
// level can hold several overlapping SSTables (e.g. after a cascade leaves
// level 1 below compaction_threshold), so slot order within a level always
// matters, not just at level 0 — and probes newest-slot-first. might_contain
// is checked before a slower table Read.
func (t *Tree) Read(key string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v, ok := t.mem.Get(key); ok {
		if v == "" {
			return "", false, nil
		}
		return v, true, nil
	}

	for level := 0; level < len(t.levels); level++ {
		handles := t.levels[level]
		order := make([]*sstableHandle, len(handles))
		copy(order, handles)
		// Newest data in a level is the highest slot; probe newest-first.
		sort.Slice(order, func(i, j int) bool { return order[i].slot > order[j].slot })

		for _, h := range order {
			if !h.table.MightContain(key) {
				continue
			}
			v, found, err := h.table.Read(key)
			if err != nil {
				return "", false, fmt.Errorf("lsm: read %s: %w", h.table.DataPath(), err)
			}
			if found {
				if v == "" {
					return "", false, nil
				}
				return v, true, nil
			}
		}
	}

	return "", false, nil
}

// CompactionCount returns how many times a compaction merge has run.
func (t *Tree) CompactionCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.compactionCount
}

// Close releases the WAL file handle.
func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.w.Close()
}
