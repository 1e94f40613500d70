// Package sweeper periodically removes expired revocation entries and
// planning sessions.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/txn2/trip-planner/pkg/metrics"
)

const (
	defaultInterval = time.Hour
	defaultTimeout  = 30 * time.Second
)

// Sweepable deletes every entry that expired strictly before now and
// reports how many were removed.
type Sweepable interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// Target is a named Sweepable.
type Target struct {
	Name  string
	Store Sweepable
}

// Config configures a Sweeper.
type Config struct {
	// Interval between passes.
	Interval time.Duration

	// Timeout bounds a whole pass.
	Timeout time.Duration

	// Now overrides the time source.
	Now func() time.Time
}

// Sweeper runs sweep passes over its targets.
type Sweeper struct {
	targets []Target
	cfg     Config
	metrics *metrics.Metrics

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a sweeper. m may be nil.
func New(cfg Config, m *metrics.Metrics, targets ...Target) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{targets: targets, cfg: cfg, metrics: m}
}

// Report is the outcome of sweeping one target.
type Report struct {
	Target  string
	Removed int64
	Err     error
}

// RunOnce sweeps every target once. A failing target does not stop the
// others; all failures are joined into the returned error.
func (s *Sweeper) RunOnce(ctx context.Context) ([]Report, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	now := s.cfg.Now()
	reports := make([]Report, 0, len(s.targets))
	var errs []error

	for _, target := range s.targets {
		start := time.Now()
		removed, err := target.Store.Sweep(ctx, now)
		s.metrics.ObserveSweep(target.Name, removed, time.Since(start), err)

		if err != nil {
			slog.Warn("sweep failed", "target", target.Name, "error", err)
			err = fmt.Errorf("sweeping %s: %w", target.Name, err)
			errs = append(errs, err)
		} else if removed > 0 {
			slog.Info("swept expired entries", "target", target.Name, "removed", removed)
		}
		reports = append(reports, Report{Target: target.Name, Removed: removed, Err: err})
	}

	return reports, errors.Join(errs...)
}

// Start begins periodic sweeping in a background goroutine. It is stopped
// by Close. Calling Start on a running sweeper does nothing.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.RunOnce(ctx)
			}
		}
	}()
}

// Close stops the sweep goroutine and waits for it to exit.
// It is safe to call Close even if Start was never called.
func (s *Sweeper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.cancel()
	<-s.done
	s.started = false
	return nil
}
