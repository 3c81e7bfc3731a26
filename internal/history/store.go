// Package history persists run records as a bounded JSON array on disk.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethpandaops/apiwatch/internal/report"
	"github.com/sirupsen/logrus"
)

// DefaultMaxEntries is the default retention cap.
const DefaultMaxEntries = 100

// StoreCorruptError means the history file exists but is not a JSON array of
// records. Recovery is left to the caller.
type StoreCorruptError struct {
	Path string
	Err  error
}

func (e *StoreCorruptError) Error() string {
	return fmt.Sprintf("history store %s is corrupt: %v", e.Path, e.Err)
}

func (e *StoreCorruptError) Unwrap() error {
	return e.Err
}

// Store is a file-backed history. It assumes a single writer per file: the
// read-modify-write in Append is not safe across processes.
type Store struct {
	path       string
	maxEntries int
	log        logrus.FieldLogger
}

// NewStore creates a store at path with the given retention cap.
func NewStore(log logrus.FieldLogger, path string, maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &Store{
		path:       path,
		maxEntries: maxEntries,
		log:        log.WithField("component", "history_store"),
	}
}

// Path returns the history file location.
func (s *Store) Path() string {
	return s.path
}

// MaxEntries returns the retention cap.
func (s *Store) MaxEntries() int {
	return s.maxEntries
}

// Init creates the parent directory and an empty history file if absent.
func (s *Store) Init() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking history file: %w", err)
	}

	if err := s.write([]report.Record{}); err != nil {
		return err
	}

	s.log.WithField("path", s.path).Info("initialized history file")

	return nil
}

// Load reads the persisted history, oldest first. A missing file yields an
// empty history.
func (s *Store) Load() ([]report.Record, error) {
	data, err := os.ReadFile(s.path) //nolint:gosec // G304: history path is controlled by config
	if err != nil {
		if os.IsNotExist(err) {
			return []report.Record{}, nil
		}

		return nil, fmt.Errorf("reading history: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &StoreCorruptError{Path: s.path, Err: errors.New("empty file")}
	}

	var records []report.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &StoreCorruptError{Path: s.path, Err: err}
	}

	if records == nil {
		return nil, &StoreCorruptError{Path: s.path, Err: errors.New("not a JSON array")}
	}

	for i := range records {
		if err := validateEntry(&records[i]); err != nil {
			return nil, &StoreCorruptError{Path: s.path, Err: fmt.Errorf("entry %d: %w", i, err)}
		}
	}

	return records, nil
}

// validateEntry rejects entries that decoded without error but cannot be a
// real run, such as null or empty objects.
func validateEntry(rec *report.Record) error {
	if rec.Timestamp.IsZero() {
		return errors.New("missing timestamp")
	}

	if rec.Duration < 0 {
		return fmt.Errorf("negative duration %d", rec.Duration)
	}

	counters := []struct {
		name string
		c    report.Counter
	}{
		{"requests", rec.Stats.Requests},
		{"assertions", rec.Stats.Assertions},
		{"testScripts", rec.Stats.TestScripts},
	}

	for _, counter := range counters {
		if counter.c.Total < 0 || counter.c.Failed < 0 || counter.c.Failed > counter.c.Total {
			return fmt.Errorf("invalid %s counter %d/%d", counter.name, counter.c.Failed, counter.c.Total)
		}
	}

	return nil
}

// Append adds record as the newest entry, evicts the oldest entries beyond the
// cap and rewrites the file. It returns the updated history.
func (s *Store) Append(record *report.Record) ([]report.Record, error) {
	records, err := s.Load()
	if err != nil {
		return nil, err
	}

	records = append(records, *record)
	records = keepNewest(records, s.maxEntries)

	if err := s.write(records); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"entries": len(records),
		"cap":     s.maxEntries,
	}).Debug("appended run to history")

	return records, nil
}

// Trim enforces maxEntries independently of Append. It reports whether any
// entries were dropped; running it again is a no-op.
func (s *Store) Trim(maxEntries int) (bool, error) {
	if maxEntries <= 0 {
		maxEntries = s.maxEntries
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return false, nil
	}

	records, err := s.Load()
	if err != nil {
		return false, err
	}

	if len(records) <= maxEntries {
		return false, nil
	}

	trimmed := keepNewest(records, maxEntries)
	if err := s.write(trimmed); err != nil {
		return false, err
	}

	s.log.WithFields(logrus.Fields{
		"before": len(records),
		"after":  len(trimmed),
	}).Info("trimmed historical data")

	return true, nil
}

// Reset replaces the history with an empty array.
func (s *Store) Reset() error {
	s.log.WithField("path", s.path).Warn("resetting history to empty")

	return s.write([]report.Record{})
}

// keepNewest drops the oldest entries so at most n remain, preserving order.
func keepNewest(records []report.Record, n int) []report.Record {
	if len(records) <= n {
		return records
	}

	out := make([]report.Record, n)
	copy(out, records[len(records)-n:])

	return out
}

// write replaces the file atomically via a temp file and rename so readers
// never observe a partial store.
func (s *Store) write(records []report.Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil { //nolint:gosec // G301: data directory with standard permissions
		return fmt.Errorf("creating history directory: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp history file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing history: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp history file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("moving history into place: %w", err)
	}

	return nil
}
