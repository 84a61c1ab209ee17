package lsm

import (
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/nyasuto/strata/internal/sstable"
)

// compactFrom implements the leveled compaction cascade starting at level.
// If levels[level] has reached the configured threshold, every SSTable in
// the level is merged (oldest-first, so the newest version of each key
// wins) into a single new SSTable at level+1; the level is cleared and the
// cascade recurses into level+1. The new SSTable is written and fsynced,
// and the in-memory level state is updated, before the old input files are
// deleted — so a crash mid-compaction leaves the engine able to recover
// from the (still-present or still-absent, never half-written) files on
// disk.
func (t *Tree) compactFrom(level int) error {
	return t.compactLevel(level, false)
}

// compactLevel merges the SSTables in level into the next level. When force
// is false (the automatic post-flush path) it only acts once the level has
// reached the configured threshold. When force is true (the manual admin
// path) it merges regardless of the threshold, as long as there is at least
// one SSTable to act on; the cascade into subsequent levels remains
// threshold-gated.
func (t *Tree) compactLevel(level int, force bool) error {
	t.ensureLevel(level)
	if len(t.levels[level]) == 0 {
		return nil
	}
	if !force && len(t.levels[level]) < t.cfg.CompactionThreshold {
		return nil
	}

	inputs := make([]*sstableHandle, len(t.levels[level]))
	copy(inputs, t.levels[level])
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].slot < inputs[j].slot })

	inputPaths := make([]string, len(inputs))
	for i, h := range inputs {
		inputPaths[i] = h.table.DataPath()
	}

	nextLevel := level + 1
	t.ensureLevel(nextLevel)
	outSlot := len(t.levels[nextLevel])
	outPath := t.sstablePath(nextLevel, outSlot)

	if _, err := os.Stat(outPath); err == nil {
		panic(fmt.Sprintf("lsm: compaction invariant violated: %s already exists", outPath))
	}

	if err := sstable.Merge(inputPaths, outPath); err != nil {
		return fmt.Errorf("compact level %d: merge: %w", level, err)
	}
	newTable, err := sstable.New(outPath)
	if err != nil {
		return fmt.Errorf("compact level %d: load merged table: %w", level, err)
	}

	// Update in-memory state before touching the filesystem further: from
	// this point a crash leaves a valid, loadable level+1 SSTable and
	// stale-but-harmless level inputs that the next startup's loadLevels
	// will simply re-load (and the next compaction will re-merge).
	t.levels[level] = nil
	t.levels[nextLevel] = append(t.levels[nextLevel], &sstableHandle{slot: outSlot, table: newTable})
	t.compactionCount++

	for _, path := range inputPaths {
		_ = os.Remove(path)
		_ = os.Remove(path + ".index")
	}

	t.log.WithFields(logrus.Fields{
		"from_level": level,
		"to_level":   nextLevel,
		"inputs":     len(inputPaths),
	}).Info("compaction cascade step complete")

	return t.compactFrom(nextLevel)
}

// Compact manually forces a merge of level 0, for out-of-band operational
// use (e.g. the admin HTTP API). Unlike the automatic flush-triggered
// cascade, it acts regardless of compaction_threshold as long as level 0 has
// at least one SSTable to merge; any further cascade into deeper levels
// remains threshold-gated.
func (t *Tree) Compact() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.compactLevel(0, true)
}

// LevelStats summarizes one level for observability. BloomItems is the sum,
// across every SSTable in the level, of the number of keys each table's
// Bloom filter was built over (the same key count as the table's sparse
// index, since both are populated from the same scan).
type LevelStats struct {
	Level      int `json:"level"`
	SSTables   int `json:"sstables"`
	BloomItems int `json:"bloom_items"`
}

// Stats is a point-in-time snapshot of engine statistics used by the admin
// HTTP API and by tests.
type Stats struct {
	MemTableEntries int          `json:"memtable_entries"`
	MemTableMaxSize int          `json:"memtable_max_size"`
	CompactionCount uint64       `json:"compaction_count"`
	WALSizeBytes    int64        `json:"wal_size_bytes"`
	Levels          []LevelStats `json:"levels"`
}

// Stats returns a point-in-time snapshot under the engine lock.
func (t *Tree) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	levels := make([]LevelStats, len(t.levels))
	for i, handles := range t.levels {
		bloomItems := 0
		for _, h := range handles {
			bloomItems += h.table.Len()
		}
		levels[i] = LevelStats{Level: i, SSTables: len(handles), BloomItems: bloomItems}
	}

	walSize, err := t.w.Size()
	if err != nil {
		t.log.WithError(err).Warn("stats: wal size unavailable")
	}

	return Stats{
		MemTableEntries: t.mem.Len(),
		MemTableMaxSize: t.mem.MaxSize(),
		CompactionCount: t.compactionCount,
		WALSizeBytes:    walSize,
		Levels:          levels,
	}
}
