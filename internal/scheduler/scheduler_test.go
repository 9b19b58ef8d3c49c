package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"shop-rank-tracker/internal/settings"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memState struct {
	mu    sync.Mutex
	sched settings.Schedule
	err   error
}

func (m *memState) Schedule(context.Context) (settings.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sched, m.err
}

func (m *memState) SaveSchedule(_ context.Context, s settings.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sched = s
	return nil
}

func (m *memState) set(s settings.Schedule) {
	m.mu.Lock()
	m.sched = s
	m.mu.Unlock()
}

type jobRecorder struct {
	mu    sync.Mutex
	fired []time.Time
	ch    chan struct{}
}

func newJobRecorder() *jobRecorder { return &jobRecorder{ch: make(chan struct{}, 16)} }

func (r *jobRecorder) run(_ context.Context, firedAt time.Time) error {
	r.mu.Lock()
	r.fired = append(r.fired, firedAt)
	r.mu.Unlock()
	select {
	case r.ch <- struct{}{}:
	default:
	}
	return errors.New("job errors are only logged")
}

var seoul = time.FixedZone("KST", 9*3600)

func TestNextRun(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"later today", time.Date(2026, 3, 1, 8, 0, 0, 0, seoul), time.Date(2026, 3, 1, 9, 0, 0, 0, seoul)},
		{"exactly now rolls over", time.Date(2026, 3, 1, 9, 0, 0, 0, seoul), time.Date(2026, 3, 2, 9, 0, 0, 0, seoul)},
		{"already passed", time.Date(2026, 3, 1, 22, 15, 0, 0, seoul), time.Date(2026, 3, 2, 9, 0, 0, 0, seoul)},
		{"month end", time.Date(2026, 3, 31, 10, 0, 0, 0, seoul), time.Date(2026, 4, 1, 9, 0, 0, 0, seoul)},
		{"utc input converted", time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC), time.Date(2026, 3, 2, 9, 0, 0, 0, seoul)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextRun(tc.now, 9, 0, seoul)
			assert.True(t, tc.want.Equal(got), "got %s want %s", got, tc.want)
		})
	}
}

func TestStartFiresAndPersists(t *testing.T) {
	state := &memState{}
	jobs := newJobRecorder()
	h := New(context.Background(), jobs.run, state, seoul, zerolog.Nop())

	trigger := time.Date(2026, 3, 1, 9, 0, 0, 0, seoul)
	h.now = func() time.Time { return trigger.Add(-20 * time.Millisecond) }

	require.NoError(t, h.Start(context.Background(), 9, 0))
	assert.True(t, h.IsRunning())
	assert.Equal(t, settings.Schedule{Enabled: true, Hour: 9, Minute: 0}, state.sched)

	next, ok := h.Next()
	require.True(t, ok)
	assert.True(t, trigger.Equal(next))

	select {
	case <-jobs.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not fire")
	}

	require.NoError(t, h.Stop(context.Background()))
	assert.False(t, h.IsRunning())
	assert.Equal(t, settings.Schedule{Enabled: false, Hour: 9, Minute: 0}, state.sched)

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	require.NotEmpty(t, jobs.fired)
	assert.True(t, trigger.Equal(jobs.fired[0]))
}

func TestStartRejectsInvalidTime(t *testing.T) {
	state := &memState{}
	h := New(context.Background(), newJobRecorder().run, state, seoul, zerolog.Nop())

	assert.Error(t, h.Start(context.Background(), 25, 0))
	assert.False(t, h.IsRunning())
	assert.Equal(t, settings.Schedule{}, state.sched)
}

func TestRestore(t *testing.T) {
	state := &memState{sched: settings.Schedule{Enabled: false, Hour: 7, Minute: 30}}
	h := New(context.Background(), newJobRecorder().run, state, seoul, zerolog.Nop())
	defer h.Shutdown()

	require.NoError(t, h.Restore(context.Background()))
	assert.False(t, h.IsRunning())

	state.set(settings.Schedule{Enabled: true, Hour: 7, Minute: 30})
	require.NoError(t, h.Restore(context.Background()))
	assert.True(t, h.IsRunning())

	state.err = errors.New("db down")
	assert.Error(t, h.Restore(context.Background()))
}

func TestSyncFollowsPersistedState(t *testing.T) {
	state := &memState{}
	h := New(context.Background(), newJobRecorder().run, state, seoul, zerolog.Nop())
	defer h.Shutdown()
	ctx := context.Background()

	require.NoError(t, h.Sync(ctx))
	assert.False(t, h.IsRunning())

	state.set(settings.Schedule{Enabled: true, Hour: 6, Minute: 0})
	require.NoError(t, h.Sync(ctx))
	assert.True(t, h.IsRunning())

	state.set(settings.Schedule{Enabled: true, Hour: 18, Minute: 45})
	require.NoError(t, h.Sync(ctx))
	next, ok := h.Next()
	require.True(t, ok)
	assert.Equal(t, 18, next.Hour())
	assert.Equal(t, 45, next.Minute())

	state.set(settings.Schedule{Enabled: false, Hour: 18, Minute: 45})
	require.NoError(t, h.Sync(ctx))
	assert.False(t, h.IsRunning())
}

func TestWatchStopsWithContext(t *testing.T) {
	state := &memState{sched: settings.Schedule{Enabled: true, Hour: 3}}
	h := New(context.Background(), newJobRecorder().run, state, seoul, zerolog.Nop())
	defer h.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.Watch(ctx, 5*time.Millisecond) }()

	require.Eventually(t, h.IsRunning, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}
