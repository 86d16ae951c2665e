package edit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/odhiambocuttice/instagram-audio-downloader/config"
	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
)

// Sweeper periodically deletes temp clips and concat lists left behind by a
// crashed process.
type Sweeper struct {
	cron     *cron.Cron
	dir      string
	schedule string
	maxAge   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	running  bool
}

// NewSweeper creates a Sweeper for cfg's edits dir.
func NewSweeper(cfg *config.Config) *Sweeper {
	return &Sweeper{
		cron:     cron.New(),
		dir:      cfg.Media.EditsDir(),
		schedule: cfg.Edit.SweepSchedule,
		maxAge:   cfg.Edit.TempMaxAge,
		now:      time.Now,
	}
}

// Start schedules the sweep and runs it once immediately.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper already running")
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.Sweep()
	s.cron.Start()
	s.running = true
	logger.Info("temp sweeper started", logger.String("schedule", s.schedule), logger.Duration("maxAge", s.maxAge))
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
	}
}

// Sweep removes stale temp files and returns how many were deleted.
func (s *Sweeper) Sweep() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("read edits dir", logger.String("dir", s.dir), logger.ErrorField(err))
		}
		return 0
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !isTempName(name) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			logger.Debug("remove stale temp file", logger.String("file", name), logger.ErrorField(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("swept stale temp files", logger.Int("count", removed))
	}
	return removed
}

func isTempName(name string) bool {
	return strings.HasPrefix(name, clipPrefix) || strings.HasPrefix(name, concatPrefix)
}
