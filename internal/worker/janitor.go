package worker

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
)

// Janitor deletes converted files once they are older than the retention window.
type Janitor struct {
	dir       string
	retention time.Duration
	interval  time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

// JanitorConfig configures a Janitor.
type JanitorConfig struct {
	Dir       string
	Retention time.Duration
	Interval  time.Duration
}

// NewJanitor creates a janitor. clk may be nil.
func NewJanitor(cfg JanitorConfig, clk clock.Clock, logger *slog.Logger) *Janitor {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	return &Janitor{
		dir:       cfg.Dir,
		retention: cfg.Retention,
		interval:  cfg.Interval,
		clock:     clk,
		logger:    logger.With("component", "janitor"),
	}
}

// Run sweeps every interval until ctx is cancelled. A zero retention
// disables the janitor.
func (j *Janitor) Run(ctx context.Context) {
	if j.retention <= 0 {
		j.logger.Info("output retention disabled")
		return
	}

	ticker := j.clock.Ticker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := j.Sweep(); err != nil {
				j.logger.Warn("sweep failed", "error", err, "removed", n)
			} else if n > 0 {
				j.logger.Info("removed expired outputs", "count", n)
			}
		}
	}
}

// Sweep removes regular files in the output dir older than the retention
// window and returns how many were removed.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := j.clock.Now().Add(-j.retention)
	removed := 0
	var errs error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierr.Append(errs, err)
			continue
		}
		removed++
	}
	return removed, errs
}
