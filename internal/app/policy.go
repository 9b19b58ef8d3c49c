package app

import (
	"context"
	"fmt"
	"time"

	"shop-rank-tracker/internal/scheduler"
	"shop-rank-tracker/internal/settings"
)

// PolicyUpdate holds the flags an operator actually set.
type PolicyUpdate struct {
	Enabled       *bool
	StepThreshold *int
	TopTier       *bool
	TopTierCutoff *int
	Lost          *bool
	NewEntry      *bool
}

// ShowPolicy prints the effective alert policy.
func (a *App) ShowPolicy(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	p, err := a.newSettings(store).Policy(ctx)
	if err != nil {
		return err
	}

	writer := newTable(a.Out)
	fmt.Fprintf(writer, "enabled\t%t\n", p.Enabled)
	fmt.Fprintf(writer, "step threshold\t%d\n", p.StepThreshold)
	fmt.Fprintf(writer, "top tier\t%t (cutoff %d)\n", p.TopTier, p.TopTierCutoff)
	fmt.Fprintf(writer, "lost\t%t\n", p.Lost)
	fmt.Fprintf(writer, "new entry\t%t\n", p.NewEntry)
	writer.Flush()
	return nil
}

// SetPolicy merges the update into the stored policy.
func (a *App) SetPolicy(ctx context.Context, update PolicyUpdate) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	st := a.newSettings(store)
	p, err := st.Policy(ctx)
	if err != nil {
		return err
	}
	if update.Enabled != nil {
		p.Enabled = *update.Enabled
	}
	if update.StepThreshold != nil {
		p.StepThreshold = *update.StepThreshold
	}
	if update.TopTier != nil {
		p.TopTier = *update.TopTier
	}
	if update.TopTierCutoff != nil {
		p.TopTierCutoff = *update.TopTierCutoff
	}
	if update.Lost != nil {
		p.Lost = *update.Lost
	}
	if update.NewEntry != nil {
		p.NewEntry = *update.NewEntry
	}
	if err := st.SavePolicy(ctx, p); err != nil {
		return err
	}
	fmt.Fprintln(a.Out, "alert policy saved")
	return nil
}

// StartSchedule persists an enabled daily trigger. A running daemon picks it up on
// its next settings sync.
func (a *App) StartSchedule(ctx context.Context, clock string) error {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return err
	}
	return a.saveSchedule(ctx, func(s *settings.Schedule) {
		s.Enabled = true
		s.Hour = hour
		s.Minute = minute
	})
}

// StopSchedule persists a disabled trigger, keeping the time of day.
func (a *App) StopSchedule(ctx context.Context) error {
	return a.saveSchedule(ctx, func(s *settings.Schedule) { s.Enabled = false })
}

func (a *App) saveSchedule(ctx context.Context, mutate func(*settings.Schedule)) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	st := a.newSettings(store)
	sched, err := st.Schedule(ctx)
	if err != nil {
		return err
	}
	mutate(&sched)
	if err := st.SaveSchedule(ctx, sched); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "schedule %s %s\n", sched, a.Config.Scheduler.Timezone)
	return nil
}

// ScheduleStatus prints the persisted trigger, the next fire time, and the last check.
func (a *App) ScheduleStatus(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	st := a.newSettings(store)
	sched, err := st.Schedule(ctx)
	if err != nil {
		return err
	}
	loc := a.Config.Location()

	fmt.Fprintf(a.Out, "schedule:   %s %s\n", sched, loc)
	if sched.Enabled {
		fmt.Fprintf(a.Out, "next run:   %s\n", scheduler.NextRun(time.Now(), sched.Hour, sched.Minute, loc).Format(timeLayout))
	}
	last := "never"
	if at, ok, err := st.LastCheck(ctx); err != nil {
		return err
	} else if ok {
		last = at.In(loc).Format(timeLayout)
	}
	fmt.Fprintf(a.Out, "last check: %s\n", last)
	return nil
}
