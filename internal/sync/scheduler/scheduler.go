// Package scheduler provides the trigger sources for the sync engine: a
// periodic timer, explicit caller triggers (app foreground, post-write), and
// the connectivity-regained edge. The engine never schedules itself.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/setforge/backend/internal/errors"
	"github.com/kimhsiao/setforge/backend/internal/logging"
	syncpkg "github.com/kimhsiao/setforge/backend/internal/sync"
)

// Engine is the slice of the sync engine the scheduler drives.
type Engine interface {
	Process(ctx context.Context) (syncpkg.Result, error)
}

// Config holds scheduler configuration.
type Config struct {
	Interval   time.Duration // periodic trigger cadence (default: 15 minutes)
	RunTimeout time.Duration // per-run deadline (default: 5 minutes)
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:   15 * time.Minute,
		RunTimeout: 5 * time.Minute,
	}
}

// Scheduler invokes the engine on a cadence and on demand. Overlapping
// triggers are harmless: the engine's cooperative lock collapses them into
// one run, and the scheduler additionally skips triggers while a run started
// by it is still in flight.
type Scheduler struct {
	engine     Engine
	interval   time.Duration
	runTimeout time.Duration
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	isRunning  bool
	isOnline   bool
	inFlight   bool
	lastRun    time.Time
	lastResult syncpkg.Result
}

// NewScheduler creates a Scheduler.
func NewScheduler(engine Engine, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	runTimeout := config.RunTimeout
	if runTimeout <= 0 {
		runTimeout = DefaultConfig().RunTimeout
	}
	return &Scheduler{
		engine:     engine,
		interval:   interval,
		runTimeout: runTimeout,
		stopCh:     make(chan struct{}),
		isOnline:   true, // Assume online initially
	}
}

// Start starts the periodic trigger loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	logging.Info("Sync scheduler started", map[string]interface{}{
		"interval_minutes": s.interval.Minutes(),
	})
}

// Stop stops the scheduler gracefully.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// SetOnlineStatus records the connectivity state reported by the platform.
// The offline-to-online edge triggers an immediate run so queued mutations
// drain as soon as the network returns.
func (s *Scheduler) SetOnlineStatus(ctx context.Context, isOnline bool) {
	s.mu.Lock()
	wasOnline := s.isOnline
	s.isOnline = isOnline
	s.mu.Unlock()

	if wasOnline == isOnline {
		return
	}
	logging.Info("Online status changed", map[string]interface{}{
		"was_online": wasOnline,
		"is_online":  isOnline,
	})
	if isOnline {
		s.TriggerSync(ctx)
	}
}

// TriggerSync starts a run now (explicit caller or app-foreground hook).
// Returns false when a scheduler-started run is already in flight.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return false
	}
	s.inFlight = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	return true
}

// SyncNow runs the engine and waits for completion.
func (s *Scheduler) SyncNow(ctx context.Context) (syncpkg.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	result, err := s.engine.Process(runCtx)
	if err != nil {
		return result, err
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastResult = result
	s.mu.Unlock()
	return result, nil
}

// loop fires the periodic trigger.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.IsOnline() {
				continue
			}
			s.TriggerSync(ctx)
		}
	}
}

// run executes one engine pass and records its outcome.
func (s *Scheduler) run(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	result, err := s.engine.Process(runCtx)
	if err != nil {
		logging.ErrorWithCode("Sync run failed", string(errors.ErrSyncFailed), err, nil)
		return
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastResult = result
	s.mu.Unlock()
}

// Status is a snapshot of the scheduler state for the app layer.
type Status struct {
	IsRunning  bool
	IsOnline   bool
	InFlight   bool
	LastRun    *time.Time
	LastResult syncpkg.Result
}

// GetStatus returns the current scheduler status.
func (s *Scheduler) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		IsRunning:  s.isRunning,
		IsOnline:   s.isOnline,
		InFlight:   s.inFlight,
		LastResult: s.lastResult,
	}
	if !s.lastRun.IsZero() {
		t := s.lastRun
		status.LastRun = &t
	}
	return status
}

// IsOnline returns whether the scheduler is in online mode.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOnline
}

// IsRunning returns whether the scheduler loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
