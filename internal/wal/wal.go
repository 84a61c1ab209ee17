// Package wal implements the write-ahead log: an append-only durability
// record of writes accepted by the engine but not yet flushed to an
// SSTable.
package wal

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Record is a single decoded WAL line.
type Record struct {
	Key   string
	Value string
}

// WAL is an append-only byte stream of line records "<key>:<value>\n", in
// the order the engine accepted them. Concurrent callers are serialized
// through mu so line records are never interleaved.
type WAL struct {
	mu   sync.Mutex
	path string
	file *os.File

	log *logrus.Entry

	entries uint64
}

// Open opens (or creates) the WAL file in append mode.
func Open(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &WAL{
		path: path,
		file: f,
		log:  logrus.WithField("component", "wal"),
	}, nil
}

// Append writes the line "<key>:<value>\n" and forces it to durable storage
// before returning. Any I/O error must be treated by the caller as "the
// write did not take effect" — the MemTable must not be mutated.
func (w *WAL) Append(key, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	line := key + ":" + value + "\n"
	if _, err := w.file.WriteString(line); err != nil {
		w.log.WithError(err).Error("wal append failed")
		return fmt.Errorf("wal: append: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.log.WithError(err).Error("wal fsync failed")
		return fmt.Errorf("wal: fsync: %w", err)
	}
	w.entries++
	return nil
}

// Reset truncates the WAL to zero length and flushes. Failure here is a
// corruption hazard: the caller must not proceed as if the WAL had been
// cleared, since a crash afterward would replay writes already durable in a
// newly-flushed SSTable, which is harmless, or could leave an engine
// believing it reset when it did not. Callers that see an error from Reset
// should mark the engine read-only rather than silently continue.
func (w *WAL) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		w.log.WithError(err).Error("wal truncate failed")
		return fmt.Errorf("wal: truncate: %w", err)
	}
	if _, err := w.file.Seek(0, 0); err != nil {
		return fmt.Errorf("wal: seek: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync after reset: %w", err)
	}
	w.entries = 0
	return nil
}

// Close releases the underlying file handle.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Path returns the WAL's filesystem path.
func (w *WAL) Path() string {
	return w.path
}

// Size returns the current on-disk size of the WAL file in bytes, for
// reporting by the admin HTTP API.
func (w *WAL) Size() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	info, err := w.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("wal: stat: %w", err)
	}
	return info.Size(), nil
}

// Replay reads the WAL at path line-by-line and invokes apply(key, value)
// for each well-formed record, in file order, reconstructing the pre-crash
// MemTable state exactly. It is used only at startup. A line without the
// ':' separator is skipped — defensive against a truncated tail.
func Replay(path string, apply func(key, value string)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("wal: replay open: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		apply(key, value)
	}
	return scanner.Err()
}
