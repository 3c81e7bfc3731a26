package history

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/apiwatch/internal/report"
)

// ExportPrefix names every export snapshot so retention can find them.
const ExportPrefix = "test-export-"

// ExportFormat selects the snapshot encoding.
type ExportFormat string

// Supported export formats.
const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

var (
	// ErrNoHistory is returned when there is nothing to export.
	ErrNoHistory = errors.New("no historical data available")

	errUnknownFormat = errors.New("unknown export format")
)

var csvHeader = []string{
	"timestamp",
	"duration",
	"successRate",
	"totalAssertions",
	"failedAssertions",
	"totalRequests",
	"failedRequests",
}

// ParseExportFormat validates a user-supplied format name.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q (want json or csv)", errUnknownFormat, s)
	}
}

// ExportFileName builds the snapshot file name for the given instant.
func ExportFileName(format ExportFormat, at time.Time) string {
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(at.UTC().Format("2006-01-02T15:04:05.000Z"))

	return ExportPrefix + stamp + "." + string(format)
}

// Export writes a snapshot of the store into dir and returns its path.
func (s *Store) Export(dir string, format ExportFormat, at time.Time) (string, error) {
	records, err := s.Load()
	if err != nil {
		return "", err
	}

	if len(records) == 0 {
		return "", ErrNoHistory
	}

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: export directory with standard permissions
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	path := filepath.Join(dir, ExportFileName(format, at))

	f, err := os.Create(path) //nolint:gosec // G304: path built from configured data dir
	if err != nil {
		return "", fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	if err := WriteExport(f, records, format); err != nil {
		return "", err
	}

	s.log.WithField("path", path).Info("exported history")

	return path, nil
}

// WriteExport encodes records in the given format.
func WriteExport(w io.Writer, records []report.Record, format ExportFormat) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encoding json export: %w", err)
		}

		return nil
	case FormatCSV:
		return writeCSV(w, records)
	default:
		return fmt.Errorf("%w: %q", errUnknownFormat, format)
	}
}

func writeCSV(w io.Writer, records []report.Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for i := range records {
		r := &records[i]
		row := []string{
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			strconv.FormatInt(r.Duration, 10),
			r.SuccessRate.String(),
			strconv.Itoa(r.Stats.Assertions.Total),
			strconv.Itoa(r.Stats.Assertions.Failed),
			strconv.Itoa(r.Stats.Requests.Total),
			strconv.Itoa(r.Stats.Requests.Failed),
		}

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	return nil
}
