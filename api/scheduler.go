/*
scheduler.go - Automated invoice matching scheduler

PURPOSE:
  Periodically retries stored invoices that could not be matched on
  arrival because their purchase order or goods receipt was missing.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Delegates to matching.Service.AutoMatchPending
  - Skips invoices whose documents are still missing
  - Does nothing while auto_match is disabled in the configuration

CONFIGURATION:
  - CheckInterval: How often to check (default: 5 minutes)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAutoMatchScheduler(service, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - matching/intake.go: AutoMatchPending
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warp/threeway-match/matching"
)

// AutoMatchScheduler handles background matching of waiting invoices.
type AutoMatchScheduler struct {
	Service       *matching.Service
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun atomic.Int64 // UnixNano of the last sweep, 0 before the first
}

// NewAutoMatchScheduler creates a new scheduler.
func NewAutoMatchScheduler(svc *matching.Service, logger *slog.Logger) *AutoMatchScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoMatchScheduler{
		Service:       svc,
		Logger:        logger,
		CheckInterval: 5 * time.Minute,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *AutoMatchScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled || s.CheckInterval <= 0 {
		s.Logger.Info("scheduler disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run()

	s.Logger.Info("scheduler started", "interval", s.CheckInterval)
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *AutoMatchScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("scheduler stopped")
	}
}

func (s *AutoMatchScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow()

	for {
		select {
		case <-s.ticker.C:
			s.RunNow()
		case <-s.stop:
			return
		}
	}
}

// RunNow performs one sweep synchronously and returns the number of
// matchings created.
func (s *AutoMatchScheduler) RunNow() int {
	ctx, cancel := context.WithTimeout(context.Background(), s.sweepTimeout())
	defer cancel()

	created, err := s.Service.AutoMatchPending(ctx)
	s.lastRun.Store(time.Now().UnixNano())
	if err != nil {
		s.Logger.Error("auto-match sweep failed", "error", err, "created", created)
		return created
	}
	if created > 0 {
		s.Logger.Info("auto-match sweep completed", "created", created)
	} else {
		s.Logger.Debug("auto-match sweep completed, nothing to match")
	}
	return created
}

// GetNextRunTime returns when the next sweep is due.
func (s *AutoMatchScheduler) GetNextRunTime() time.Time {
	last := s.lastRun.Load()
	if last == 0 {
		return time.Now()
	}
	return time.Unix(0, last).Add(s.CheckInterval)
}

func (s *AutoMatchScheduler) sweepTimeout() time.Duration {
	if s.CheckInterval > 0 && s.CheckInterval < time.Minute {
		return s.CheckInterval
	}
	return time.Minute
}
