// Package retention prunes on-disk artifacts by age and by count.
package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Policy describes what to prune from a directory. Zero MaxAge or MaxCount
// disables that rule. Pattern is a filepath.Match glob over file names; empty
// matches every regular file.
type Policy struct {
	MaxAge   time.Duration
	MaxCount int
	Pattern  string
	DryRun   bool
}

// FileError is a deletion failure for a single file.
type FileError struct {
	Name string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("removing %s: %v", e.Name, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Result reports what Prune removed, or would remove on a dry run.
type Result struct {
	Removed    []string
	Retained   int
	FreedBytes int64
	Errors     []error
}

// Manager applies retention policies.
type Manager struct {
	log    logrus.FieldLogger
	now    func() time.Time
	remove func(name string) error
}

// NewManager creates a retention manager.
func NewManager(log logrus.FieldLogger) *Manager {
	return &Manager{
		log:    log.WithField("component", "retention_manager"),
		now:    time.Now,
		remove: os.Remove,
	}
}

type fileInfo struct {
	name    string
	path    string
	size    int64
	modTime time.Time
}

// byModTime sorts files most recently modified first.
type byModTime []*fileInfo

// Len implements sort.Interface
func (b byModTime) Len() int {
	return len(b)
}

// Less implements sort.Interface (newest first)
func (b byModTime) Less(i, j int) bool {
	return b[i].modTime.After(b[j].modTime)
}

// Swap implements sort.Interface
func (b byModTime) Swap(i, j int) {
	b[i], b[j] = b[j], b[i]
}

// Prune applies policy to the regular files directly inside dir. A missing
// directory is treated as empty. Individual deletion failures are collected in
// Result.Errors and do not stop processing.
func (m *Manager) Prune(dir string, policy Policy) (*Result, error) {
	files, err := m.list(dir, policy.Pattern)
	if err != nil {
		return nil, err
	}

	result := &Result{Removed: make([]string, 0)}

	sort.Sort(byModTime(files))

	var (
		cutoff time.Time
		kept   int
	)

	if policy.MaxAge > 0 {
		cutoff = m.now().Add(-policy.MaxAge)
	}

	for _, f := range files {
		expired := policy.MaxAge > 0 && f.modTime.Before(cutoff)
		overCount := policy.MaxCount > 0 && kept >= policy.MaxCount

		if !expired && !overCount {
			kept++
			continue
		}

		if policy.DryRun {
			result.Removed = append(result.Removed, f.name)
			result.FreedBytes += f.size
			continue
		}

		if err := m.remove(f.path); err != nil && !os.IsNotExist(err) {
			m.log.WithError(err).WithField("file", f.path).Warn("failed to remove file")
			result.Errors = append(result.Errors, &FileError{Name: f.name, Err: err})
			kept++
			continue
		}

		m.log.WithFields(logrus.Fields{
			"file":     f.name,
			"modified": f.modTime,
			"expired":  expired,
		}).Debug("removed file")

		result.Removed = append(result.Removed, f.name)
		result.FreedBytes += f.size
	}

	result.Retained = kept

	m.log.WithFields(logrus.Fields{
		"dir":      dir,
		"removed":  len(result.Removed),
		"retained": result.Retained,
		"errors":   len(result.Errors),
		"dry_run":  policy.DryRun,
	}).Info("retention pass complete")

	return result, nil
}

func (m *Manager) list(dir, pattern string) ([]*fileInfo, error) {
	if pattern != "" {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	files := make([]*fileInfo, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		if pattern != "" {
			if ok, _ := filepath.Match(pattern, entry.Name()); !ok {
				continue
			}
		}

		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}

		files = append(files, &fileInfo{
			name:    entry.Name(),
			path:    filepath.Join(dir, entry.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}

	return files, nil
}
