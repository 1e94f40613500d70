package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/trip-planner/pkg/metrics"
	"github.com/txn2/trip-planner/pkg/revocation"
	"github.com/txn2/trip-planner/pkg/session"
)

type fakeTarget struct {
	removed int64
	err     error
	calls   atomic.Int32
	lastNow atomic.Value
}

func (f *fakeTarget) Sweep(_ context.Context, now time.Time) (int64, error) {
	f.calls.Add(1)
	f.lastNow.Store(now)
	return f.removed, f.err
}

type blockingTarget struct{}

func (blockingTarget) Sweep(ctx context.Context, _ time.Time) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

var sweepTestNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestRunOnce_AllTargets(t *testing.T) {
	revocations := &fakeTarget{removed: 2}
	sessions := &fakeTarget{removed: 5}
	m := metrics.New(prometheus.NewRegistry())

	s := New(Config{Now: func() time.Time { return sweepTestNow }}, m,
		Target{Name: "revocations", Store: revocations},
		Target{Name: "sessions", Store: sessions},
	)

	reports, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, Report{Target: "revocations", Removed: 2}, reports[0])
	assert.Equal(t, Report{Target: "sessions", Removed: 5}, reports[1])
	assert.Equal(t, sweepTestNow, revocations.lastNow.Load())
	assert.InDelta(t, 5, testutil.ToFloat64(m.SweepRemoved.WithLabelValues("sessions")), 0)
}

func TestRunOnce_FailureDoesNotStopOthers(t *testing.T) {
	broken := &fakeTarget{err: errors.New("connection reset")}
	sessions := &fakeTarget{removed: 1}
	m := metrics.New(prometheus.NewRegistry())

	s := New(Config{}, m,
		Target{Name: "revocations", Store: broken},
		Target{Name: "sessions", Store: sessions},
	)

	reports, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweeping revocations")
	assert.Equal(t, int32(1), sessions.calls.Load())
	require.Len(t, reports, 2)
	assert.Error(t, reports[0].Err)
	assert.NoError(t, reports[1].Err)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SweepFailures.WithLabelValues("revocations")), 0)
}

func TestRunOnce_Timeout(t *testing.T) {
	s := New(Config{Timeout: 10 * time.Millisecond}, nil, Target{Name: "slow", Store: blockingTarget{}})

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunOnce_RealStores(t *testing.T) {
	clock := sweepTestNow
	sessions := session.NewMemoryStore(session.Config{Window: time.Hour, Now: func() time.Time { return clock }})
	revoked := revocation.NewMemoryStore()
	ctx := context.Background()

	_, err := sessions.Create(ctx, "owner", session.Memory{})
	require.NoError(t, err)
	require.NoError(t, revoked.Insert(ctx, "jti-1", sweepTestNow.Add(time.Minute)))

	clock = sweepTestNow.Add(2 * time.Hour)
	s := New(Config{Now: func() time.Time { return clock }}, nil,
		Target{Name: "revocations", Store: revoked},
		Target{Name: "sessions", Store: sessions},
	)

	reports, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reports[0].Removed)
	assert.Equal(t, int64(1), reports[1].Removed)
	assert.Equal(t, 0, revoked.Len())
}

func TestStartClose(t *testing.T) {
	target := &fakeTarget{}
	s := New(Config{Interval: 10 * time.Millisecond}, nil, Target{Name: "sessions", Store: target})

	s.Start()
	assert.Eventually(t, func() bool { return target.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())

	calls := target.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, target.calls.Load(), "no passes after Close")
}

func TestStartTwiceRunsOneLoop(t *testing.T) {
	target := &fakeTarget{}
	s := New(Config{Interval: 10 * time.Millisecond}, nil, Target{Name: "sessions", Store: target})

	s.Start()
	s.Start()
	assert.Eventually(t, func() bool { return target.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	calls := target.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, target.calls.Load(), "second Start must not leave a loop running")
}

func TestCloseWithoutStart(t *testing.T) {
	s := New(Config{}, nil)
	assert.NoError(t, s.Close(), "Close without Start should not block")
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{}, nil)
	assert.Equal(t, time.Hour, s.cfg.Interval)
	assert.Equal(t, 30*time.Second, s.cfg.Timeout)
	assert.NotNil(t, s.cfg.Now)
}
