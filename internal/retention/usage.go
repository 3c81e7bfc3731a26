package retention

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the on-disk footprint of the data and reports directories.
type Usage struct {
	Data    int64 `json:"data"`
	Reports int64 `json:"reports"`
}

// Total returns the combined size in bytes.
func (u Usage) Total() int64 {
	return u.Data + u.Reports
}

// MeasureUsage sums both directories.
func MeasureUsage(dataDir, reportsDir string) (Usage, error) {
	data, err := DirSize(dataDir)
	if err != nil {
		return Usage{}, err
	}

	reports, err := DirSize(reportsDir)
	if err != nil {
		return Usage{}, err
	}

	return Usage{Data: data, Reports: reports}, nil
}

// DirSize returns the total size of regular files below dir, recursively.
// A missing directory has size zero.
func DirSize(dir string) (int64, error) {
	var total int64

	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		total += info.Size()

		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("measuring %s: %w", dir, err)
	}

	return total, nil
}

// CleanupSummary aggregates one cleanup pass across all artifact kinds.
type CleanupSummary struct {
	DryRun         bool
	Reports        *Result
	HistoryTrimmed bool
	HistoryError   error
	Exports        *Result
	Before         Usage
	After          Usage
	Errors         []error
}

// ErrorCount counts every failure recorded during the pass.
func (s *CleanupSummary) ErrorCount() int {
	n := len(s.Errors)

	if s.Reports != nil {
		n += len(s.Reports.Errors)
	}

	if s.Exports != nil {
		n += len(s.Exports.Errors)
	}

	if s.HistoryError != nil {
		n++
	}

	return n
}

// Freed returns the bytes saved between the two measurements, never negative.
func (s *CleanupSummary) Freed() int64 {
	return max(0, s.Before.Total()-s.After.Total())
}
