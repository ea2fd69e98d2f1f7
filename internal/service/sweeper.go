package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Sweeper deletes run directories that were never downloaded.
type Sweeper struct {
	root      string
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewSweeper removes directories under root older than retention, checking
// every retention/4 (at least once a minute, at most every 10 seconds).
// A retention <= 0 disables sweeping.
func NewSweeper(root string, retention time.Duration, logger *slog.Logger) *Sweeper {
	interval := retention / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	return &Sweeper{
		root:      root,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Run sweeps until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.retention <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				s.logger.Info("swept expired run directories", slog.Int("count", n))
			}
		}
	}
}

// Sweep removes every run directory last modified before now-retention and
// returns how many it removed.
func (s *Sweeper) Sweep(now time.Time) int {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Warn("failed to read output directory", slog.String("error", err.Error()))
		return 0
	}

	cutoff := now.Add(-s.retention)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		dir := filepath.Join(s.root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("failed to remove run directory", slog.String("dir", dir), slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	return removed
}
