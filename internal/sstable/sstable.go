// Package sstable implements the immutable, sorted on-disk Sorted String
// Table: a data file of "<key>:<value>\n" lines in ascending key order, a
// sibling ".index" file mapping each key to its byte offset in the data
// file, and an in-memory Bloom filter rebuilt from the data file every time
// a table is created or loaded.
package sstable

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nyasuto/strata/internal/bloom"
)

// Entry is a single key-value pair, used when writing a new data file.
type Entry struct {
	Key   string
	Value string
}

// Table is the immutable in-memory handle to an on-disk SSTable: a sparse
// index from key to byte offset, plus a Bloom filter over the same keys.
// The underlying files are never held open between calls — Read opens the
// data file, seeks, reads one line, and closes it.
type Table struct {
	dataPath  string
	indexPath string

	index map[string]int64
	bloom *bloom.Filter
}

// DataPath returns the path of the table's data file.
func (t *Table) DataPath() string { return t.dataPath }

// IndexPath returns the path of the table's sibling index file.
func (t *Table) IndexPath() string { return t.indexPath }

// Len returns the number of keys indexed by this table.
func (t *Table) Len() int { return len(t.index) }

// WriteData writes entries (already in ascending key order, with no
// duplicate keys) to dataPath as "<key>:<value>\n" lines and fsyncs before
// returning. It is the first half of a flush; callers then call New on the
// same path to build the in-memory index, Bloom filter, and sibling index
// file.
func WriteData(dataPath string, entries []Entry) error {
	f, err := os.Create(dataPath)
	if err != nil {
		return fmt.Errorf("sstable: create data file: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s:%s\n", e.Key, e.Value); err != nil {
			return fmt.Errorf("sstable: write entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("sstable: flush data file: %w", err)
	}
	return f.Sync()
}

// New builds a Table over an existing data file at dataPath: it scans the
// file to construct the in-memory index and Bloom filter, and simultaneously
// writes the sibling ".index" file. Used right after WriteData (flush) or
// after Merge writes a compacted data file.
func New(dataPath string) (*Table, error) {
	t, entries, err := scan(dataPath)
	if err != nil {
		return nil, err
	}
	if err := writeIndexFile(t.indexPath, entries); err != nil {
		return nil, err
	}
	return t, nil
}

// Load rebuilds a Table's in-memory state by re-scanning an existing data
// file, without rewriting the sibling index file. Used at startup to
// rematerialize SSTables that already have both files on disk.
func Load(dataPath string) (*Table, error) {
	t, _, err := scan(dataPath)
	return t, err
}

// scan reads dataPath line by line, building the in-memory index and Bloom
// filter. Lines without the ':' separator are skipped — defensive against a
// truncated tail.
func scan(dataPath string) (*Table, []indexLine, error) {
	f, err := os.Open(dataPath)
	if err != nil {
		return nil, nil, fmt.Errorf("sstable: open data file: %w", err)
	}
	defer func() { _ = f.Close() }()

	t := &Table{
		dataPath:  dataPath,
		indexPath: dataPath + ".index",
		index:     make(map[string]int64),
		bloom:     bloom.New(bloom.DefaultSize),
	}

	var entries []indexLine
	var offset int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		key, _, ok := strings.Cut(line, ":")
		if ok {
			t.index[key] = offset
			t.bloom.Insert(key)
			entries = append(entries, indexLine{Key: key, Offset: offset})
		}
		offset += int64(len(line)) + 1 // +1 for the newline stripped by the scanner
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("sstable: scan data file: %w", err)
	}

	return t, entries, nil
}

type indexLine struct {
	Key    string
	Offset int64
}

func writeIndexFile(path string, entries []indexLine) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sstable: create index file: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s:%d\n", e.Key, e.Offset); err != nil {
			return fmt.Errorf("sstable: write index entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("sstable: flush index file: %w", err)
	}
	return f.Sync()
}

// MightContain consults the Bloom filter only; it never opens a file.
func (t *Table) MightContain(key string) bool {
	return t.bloom.MightContain(key)
}

// Read looks up key: an index miss returns found=false without touching
// disk. An index hit opens the data file, seeks to the recorded offset,
// reads one line, and splits it on the first ':'. An empty value part is
// returned as found=true with an empty string — the LSM layer treats that
// as a tombstone ("not found" to the client), not as a read failure.
func (t *Table) Read(key string) (value string, found bool, err error) {
	offset, ok := t.index[key]
	if !ok {
		return "", false, nil
	}

	f, err := os.Open(t.dataPath)
	if err != nil {
		return "", false, fmt.Errorf("sstable: open data file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(offset, 0); err != nil {
		return "", false, fmt.Errorf("sstable: seek: %w", err)
	}

	reader := bufio.NewReader(f)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", false, fmt.Errorf("sstable: read line at offset %d: %w", offset, err)
	}
	line = strings.TrimSuffix(line, "\n")

	k, v, ok := strings.Cut(line, ":")
	if !ok || k != key {
		// The index pointed at a line that no longer matches — treat as a
		// corrupted/truncated line rather than fail the whole read.
		return "", false, nil
	}
	return v, true, nil
}

// Merge reads every path in inputs (required oldest-first so later inputs
// win on key conflicts), accumulates the newest version of each key, and
// writes the merged result in ascending key order to outputPath and
// outputPath+".index" in lockstep, fsyncing both before returning. The
// resulting file's in-memory state (index, Bloom filter) is built by a
// subsequent call to New(outputPath).
func Merge(inputs []string, outputPath string) error {
	merged := make(map[string]string)
	var order []string

	for _, path := range inputs {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("sstable: merge: open %s: %w", path, err)
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			key, value, ok := strings.Cut(scanner.Text(), ":")
			if !ok {
				continue
			}
			if _, seen := merged[key]; !seen {
				order = append(order, key)
			}
			merged[key] = value
		}
		err = scanner.Err()
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("sstable: merge: scan %s: %w", path, err)
		}
	}

	sort.Strings(order)

	dataFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("sstable: merge: create output data file: %w", err)
	}
	defer func() { _ = dataFile.Close() }()

	indexFile, err := os.Create(outputPath + ".index")
	if err != nil {
		return fmt.Errorf("sstable: merge: create output index file: %w", err)
	}
	defer func() { _ = indexFile.Close() }()

	dataWriter := bufio.NewWriter(dataFile)
	indexWriter := bufio.NewWriter(indexFile)

	var offset int64
	for _, key := range order {
		value := merged[key]
		line := fmt.Sprintf("%s:%s\n", key, value)
		if _, err := dataWriter.WriteString(line); err != nil {
			return fmt.Errorf("sstable: merge: write data line: %w", err)
		}
		if _, err := fmt.Fprintf(indexWriter, "%s:%d\n", key, offset); err != nil {
			return fmt.Errorf("sstable: merge: write index line: %w", err)
		}
		offset += int64(len(line))
	}

	if err := dataWriter.Flush(); err != nil {
		return fmt.Errorf("sstable: merge: flush data file: %w", err)
	}
	if err := indexWriter.Flush(); err != nil {
		return fmt.Errorf("sstable: merge: flush index file: %w", err)
	}
	if err := dataFile.Sync(); err != nil {
		return fmt.Errorf("sstable: merge: sync data file: %w", err)
	}
	if err := indexFile.Sync(); err != nil {
		return fmt.Errorf("sstable: merge: sync index file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"inputs": len(inputs),
		"keys":   len(order),
		"output": outputPath,
	}).Info("sstable merge complete")

	return nil
}
