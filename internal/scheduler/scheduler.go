package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"shop-rank-tracker/internal/settings"
)

// JobFunc is invoked at every daily trigger with the scheduled wall-clock time.
type JobFunc func(ctx context.Context, firedAt time.Time) error

// StateStore persists the trigger so a restart can re-arm it.
type StateStore interface {
	Schedule(ctx context.Context) (settings.Schedule, error)
	SaveSchedule(ctx context.Context, sched settings.Schedule) error
}

// Handle owns the single trigger goroutine. Jobs run inside that goroutine, so
// two triggers of one Handle never overlap.
type Handle struct {
	base   context.Context
	job    JobFunc
	state  StateStore
	loc    *time.Location
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	armedAt settings.Schedule
}

// New constructs an idle Handle. Jobs receive base as their context, so
// rearming the trigger never interrupts a batch already in progress.
func New(base context.Context, job JobFunc, state StateStore, loc *time.Location, logger zerolog.Logger) *Handle {
	if job == nil {
		panic("scheduler job must not be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handle{
		base:   base,
		job:    job,
		state:  state,
		loc:    loc,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
}

// Start persists an enabled schedule and arms the trigger, replacing any previous one.
func (h *Handle) Start(ctx context.Context, hour, minute int) error {
	sched := settings.Schedule{Enabled: true, Hour: hour, Minute: minute}
	if err := sched.Validate(); err != nil {
		return err
	}
	if err := h.state.SaveSchedule(ctx, sched); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	h.arm(sched)
	return nil
}

// Stop disarms the trigger and persists the disabled state, keeping the time of day.
func (h *Handle) Stop(ctx context.Context) error {
	h.disarm()

	sched, err := h.state.Schedule(ctx)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	sched.Enabled = false
	if err := h.state.SaveSchedule(ctx, sched); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

// IsRunning reports whether a trigger is armed.
func (h *Handle) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

// Next returns the next fire time of the armed trigger.
func (h *Handle) Next() (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel == nil {
		return time.Time{}, false
	}
	return NextRun(h.now(), h.armedAt.Hour, h.armedAt.Minute, h.loc), true
}

// Restore re-arms the trigger from persisted state after a restart.
func (h *Handle) Restore(ctx context.Context) error {
	sched, err := h.state.Schedule(ctx)
	if err != nil {
		return fmt.Errorf("restore schedule: %w", err)
	}
	if !sched.Enabled {
		h.logger.Info().Msg("scheduler disabled in settings")
		return nil
	}
	h.arm(sched)
	return nil
}

// Sync applies persisted changes made by another process, such as the CLI.
func (h *Handle) Sync(ctx context.Context) error {
	sched, err := h.state.Schedule(ctx)
	if err != nil {
		return fmt.Errorf("sync schedule: %w", err)
	}

	h.mu.Lock()
	running := h.cancel != nil
	current := h.armedAt
	h.mu.Unlock()

	switch {
	case sched.Enabled && (!running || current != sched):
		h.arm(sched)
	case !sched.Enabled && running:
		h.logger.Info().Msg("scheduler disabled by settings change")
		h.disarm()
	}
	return nil
}

// Watch calls Sync every interval until ctx is cancelled.
func (h *Handle) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := h.Sync(ctx); err != nil {
				h.logger.Error().Err(err).Msg("schedule sync failed")
			}
		}
	}
}

// Shutdown disarms the trigger without touching persisted state and waits for
// a running job to return.
func (h *Handle) Shutdown() {
	h.disarm()
}

func (h *Handle) arm(sched settings.Schedule) {
	h.disarm()

	ctx, cancel := context.WithCancel(h.base)
	done := make(chan struct{})

	h.mu.Lock()
	h.cancel = cancel
	h.done = done
	h.armedAt = sched
	h.mu.Unlock()

	h.logger.Info().
		Int("hour", sched.Hour).
		Int("minute", sched.Minute).
		Str("timezone", h.loc.String()).
		Msg("daily trigger armed")

	go h.loop(ctx, sched.Hour, sched.Minute, done)
}

func (h *Handle) disarm() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (h *Handle) loop(ctx context.Context, hour, minute int, done chan struct{}) {
	defer close(done)

	for {
		next := NextRun(h.now(), hour, minute, h.loc)
		delay := next.Sub(h.now())
		if delay < 0 {
			delay = 0
		}

		timer := time.NewTimer(delay)
		h.logger.Debug().Time("next_run", next).Msg("waiting for next trigger")

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		h.logger.Info().Time("fired_at", next).Msg("executing scheduled batch")
		if err := h.job(h.base, next); err != nil {
			h.logger.Error().Err(err).Time("fired_at", next).Msg("scheduled batch failed")
		}
	}
}

// NextRun returns the first hour:minute in loc strictly after now.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !candidate.After(local) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return candidate
}
