// Package scheduler keeps active disasters fresh: every interval it
// downloads and reprocesses each disaster still in progress.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/perimeter"
)

const defaultDebounce = 2 * time.Second

// Lister returns the configured disasters.
type Lister interface {
	List(ctx context.Context) ([]domain.Disaster, error)
}

// Refresher downloads and reprocesses one disaster.
type Refresher interface {
	Refresh(ctx context.Context, d domain.Disaster) (perimeter.RunReport, error)
}

// Scheduler runs a refresh tick on a fixed interval and, when a disasters
// file is watched, shortly after that file changes.
type Scheduler struct {
	scheduler *gocron.Scheduler
	lister    Lister
	refresher Refresher
	interval  time.Duration
	logger    *slog.Logger

	watchPath string
	debounce  time.Duration
	watcher   *fsnotify.Watcher

	tick   sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler.
func New(lister Lister, refresher Refresher, interval time.Duration, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		lister:    lister,
		refresher: refresher,
		interval:  interval,
		logger:    logger,
		debounce:  defaultDebounce,
	}
}

// WatchFile makes edits to path trigger an extra tick. Call before Start.
func (s *Scheduler) WatchFile(path string) {
	s.watchPath = filepath.Clean(path)
}

// Start schedules the refresh job, runs the first tick right away and
// returns.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.watchPath != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			s.cancel()
			return fmt.Errorf("create file watcher: %w", err)
		}
		// Editors replace files, so watch the parent folder.
		if err := w.Add(filepath.Dir(s.watchPath)); err != nil {
			w.Close()
			s.cancel()
			return fmt.Errorf("watch %s: %w", s.watchPath, err)
		}
		s.watcher = w
		s.wg.Add(1)
		go s.watch(ctx)
	}

	if _, err := s.scheduler.Every(s.interval).Do(func() { s.runTick(ctx, "schedule") }); err != nil {
		s.Stop()
		return fmt.Errorf("schedule refresh: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "interval", s.interval, "watch", s.watchPath)
	return nil
}

// Stop cancels the running tick and waits for background work to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
	s.wg.Wait()
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.logger.Warn("closing file watcher", "error", err)
		}
		s.watcher = nil
	}
	// Wait for a tick that was already past its cancellation checks.
	s.tick.Lock()
	defer s.tick.Unlock()
	s.logger.Info("scheduler stopped")
}

// Tick refreshes every active disaster once. Failures of one disaster do not
// stop the others; they are joined into the returned error.
func (s *Scheduler) Tick(ctx context.Context) error {
	disasters, err := s.lister.List(ctx)
	if err != nil {
		return fmt.Errorf("list disasters: %w", err)
	}

	today := domain.Today()
	var errs []error
	refreshed := 0
	for _, d := range disasters {
		if !d.Active(today) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := s.refresher.Refresh(ctx, d)
		refreshed++
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.ID, err))
			continue
		}
		s.logger.Info("disaster refreshed", "disaster", d.ID, "status", report.Status)
	}
	s.logger.Info("refresh tick finished", "disasters", len(disasters), "refreshed", refreshed, "failed", len(errs))
	return errors.Join(errs...)
}

func (s *Scheduler) runTick(ctx context.Context, trigger string) {
	if !s.tick.TryLock() {
		s.logger.Debug("refresh tick already running", "trigger", trigger)
		return
	}
	defer s.tick.Unlock()
	if ctx.Err() != nil {
		return
	}
	s.logger.Info("refresh tick started", "trigger", trigger)
	if err := s.Tick(ctx); err != nil {
		s.logger.Error("refresh tick failed", "trigger", trigger, "error", err)
	}
}

func (s *Scheduler) watch(ctx context.Context) {
	defer s.wg.Done()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.watchPath || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			s.logger.Debug("disasters file changed", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("file watcher error", "error", err)
		case <-fire:
			fire = nil
			s.runTick(ctx, "file")
		}
	}
}
