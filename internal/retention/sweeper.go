// Package retention deletes stale scratch and output files from the workspace.
package retention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-worker/internal/observability"
)

const (
	// DefaultInterval is used when Run is given no interval.
	DefaultInterval = 10 * time.Minute

	errFmtRemove = "%s: %v"
)

// Report describes one sweep.
type Report struct {
	RemovedFiles []string
	KeptFiles    []string
	Errors       []string
}

// Summary is a one-line description of the sweep.
func (r *Report) Summary() string {
	return fmt.Sprintf("removed %d, kept %d, errors %d", len(r.RemovedFiles), len(r.KeptFiles), len(r.Errors))
}

// Sweeper removes regular files older than MaxAge from Dirs. Subdirectories are not
// descended into.
type Sweeper struct {
	dirs     []string
	maxAge   time.Duration
	interval time.Duration
	metrics  *observability.Metrics
	log      *logger.Logger
}

// NewSweeper creates a Sweeper. A zero maxAge disables it; a zero interval uses
// DefaultInterval. metrics may be nil.
func NewSweeper(
	dirs []string,
	maxAge, interval time.Duration,
	metrics *observability.Metrics,
	log *logger.Logger,
) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Sweeper{
		dirs:     dirs,
		maxAge:   maxAge,
		interval: interval,
		metrics:  metrics,
		log:      log,
	}
}

// Enabled reports whether the sweeper deletes anything.
func (s *Sweeper) Enabled() bool {
	return s.maxAge > 0
}

// Sweep removes every file whose modification time is more than MaxAge before now.
// Missing directories are skipped. Per-file failures are collected in the report rather than
// stopping the sweep.
func (s *Sweeper) Sweep(now time.Time) (*Report, error) {
	report := &Report{}

	if !s.Enabled() {
		return report, nil
	}

	cutoff := now.Add(-s.maxAge)

	for _, dir := range s.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			return report, fmt.Errorf("failed to read directory %s: %w", dir, err)
		}

		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}

			s.sweepFile(filepath.Join(dir, entry.Name()), entry, cutoff, report)
		}
	}

	s.metrics.AddRetentionRemoved(len(report.RemovedFiles))

	return report, nil
}

func (s *Sweeper) sweepFile(path string, entry os.DirEntry, cutoff time.Time, report *Report) {
	info, err := entry.Info()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			report.Errors = append(report.Errors, fmt.Sprintf(errFmtRemove, path, err))
		}

		return
	}

	if !info.ModTime().Before(cutoff) {
		report.KeptFiles = append(report.KeptFiles, path)

		return
	}

	err = os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		report.Errors = append(report.Errors, fmt.Sprintf(errFmtRemove, path, err))

		return
	}

	report.RemovedFiles = append(report.RemovedFiles, path)
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		s.log.Info("Retention sweeper disabled")

		return
	}

	s.log.Info("Retention sweeper removing files older than %s every %s", s.maxAge, s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweepOnce()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweepOnce() {
	report, err := s.Sweep(time.Now())
	if err != nil {
		s.log.Warn("Retention sweep failed: %v", err)
	}

	for _, sweepErr := range report.Errors {
		s.log.Warn("Retention sweep could not remove %s", sweepErr)
	}

	if len(report.RemovedFiles) > 0 {
		s.log.Info("Retention sweep: %s", report.Summary())
	}
}
