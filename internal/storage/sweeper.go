package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically removes stale files from the temp directory. It
// is scoped to that directory alone and must never be pointed at the
// durable output directory. Deletion failures are logged and skipped;
// the sweep never aborts the pipeline.
type Sweeper struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	log      zerolog.Logger
}

func NewSweeper(dir string, maxAge, interval time.Duration, log zerolog.Logger) *Sweeper {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{dir: dir, maxAge: maxAge, interval: interval, log: log}
}

// Run sweeps on a ticker until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.Sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep removes regular files older than maxAge and returns how many
// were deleted.
func (s *Sweeper) Sweep() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("dir", s.dir).Msg("temp sweep: read dir")
		}
		return 0
	}
	cutoff := time.Now().Add(-s.maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			// Concurrent deletion is fine; log and move on.
			s.log.Warn().Err(err).Str("file", path).Msg("temp sweep: remove")
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("temp sweep completed")
	}
	return removed
}
