// Package settings is the typed layer over the flat key-value settings table.
// Values are validated when read so callers never parse raw strings.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"shop-rank-tracker/internal/alerting"
	"shop-rank-tracker/internal/storage"
)

// Persisted keys.
const (
	KeyAlertsEnabled    = "alerts_enabled"
	KeyAlertThreshold   = "alert_threshold"
	KeyAlertTopTier     = "alert_top10"
	KeyAlertTopCutoff   = "alert_top_cutoff"
	KeyAlertLost        = "alert_lost"
	KeyAlertNewEntry    = "alert_new"
	KeySchedulerEnabled = "scheduler_enabled"
	KeySchedulerHour    = "scheduler_hour"
	KeySchedulerMinute  = "scheduler_minute"
	KeyLastCheck        = "last_check_time"
)

// Schedule is the persisted daily trigger.
type Schedule struct {
	Enabled bool
	Hour    int
	Minute  int
}

// DefaultSchedule fires at 09:00 and starts disabled.
func DefaultSchedule() Schedule {
	return Schedule{Hour: 9}
}

// Validate checks the wall-clock fields.
func (s Schedule) Validate() error {
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("schedule hour %d outside 0..23", s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("schedule minute %d outside 0..59", s.Minute)
	}
	return nil
}

func (s Schedule) String() string {
	state := "disabled"
	if s.Enabled {
		state = "enabled"
	}
	return fmt.Sprintf("%02d:%02d (%s)", s.Hour, s.Minute, state)
}

// Settings reads and writes typed values. Policy falls back to the configured
// defaults for keys that were never stored.
type Settings struct {
	store    storage.SettingsStore
	defaults alerting.Policy
}

// New wraps a settings store.
func New(store storage.SettingsStore, defaults alerting.Policy) *Settings {
	return &Settings{store: store, defaults: defaults}
}

// Policy loads the alert policy.
func (s *Settings) Policy(ctx context.Context) (alerting.Policy, error) {
	values, err := s.store.AllSettings(ctx)
	if err != nil {
		return alerting.Policy{}, fmt.Errorf("load alert policy: %w", err)
	}

	p := s.defaults
	if p.Enabled, err = boolValue(values, KeyAlertsEnabled, p.Enabled); err != nil {
		return alerting.Policy{}, err
	}
	if p.StepThreshold, err = intValue(values, KeyAlertThreshold, p.StepThreshold); err != nil {
		return alerting.Policy{}, err
	}
	if p.TopTierCutoff, err = intValue(values, KeyAlertTopCutoff, p.TopTierCutoff); err != nil {
		return alerting.Policy{}, err
	}
	if p.TopTier, err = boolValue(values, KeyAlertTopTier, p.TopTier); err != nil {
		return alerting.Policy{}, err
	}
	if p.Lost, err = boolValue(values, KeyAlertLost, p.Lost); err != nil {
		return alerting.Policy{}, err
	}
	if p.NewEntry, err = boolValue(values, KeyAlertNewEntry, p.NewEntry); err != nil {
		return alerting.Policy{}, err
	}
	if err := p.Validate(); err != nil {
		return alerting.Policy{}, fmt.Errorf("stored alert policy: %w", err)
	}
	return p, nil
}

// SavePolicy validates and persists every policy field.
func (s *Settings) SavePolicy(ctx context.Context, p alerting.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	pairs := [][2]string{
		{KeyAlertsEnabled, formatBool(p.Enabled)},
		{KeyAlertThreshold, strconv.Itoa(p.StepThreshold)},
		{KeyAlertTopCutoff, strconv.Itoa(p.TopTierCutoff)},
		{KeyAlertTopTier, formatBool(p.TopTier)},
		{KeyAlertLost, formatBool(p.Lost)},
		{KeyAlertNewEntry, formatBool(p.NewEntry)},
	}
	return s.setAll(ctx, pairs)
}

// Schedule loads the persisted scheduler state.
func (s *Settings) Schedule(ctx context.Context) (Schedule, error) {
	values, err := s.store.AllSettings(ctx)
	if err != nil {
		return Schedule{}, fmt.Errorf("load schedule: %w", err)
	}

	sched := DefaultSchedule()
	if sched.Enabled, err = boolValue(values, KeySchedulerEnabled, sched.Enabled); err != nil {
		return Schedule{}, err
	}
	if sched.Hour, err = intValue(values, KeySchedulerHour, sched.Hour); err != nil {
		return Schedule{}, err
	}
	if sched.Minute, err = intValue(values, KeySchedulerMinute, sched.Minute); err != nil {
		return Schedule{}, err
	}
	if err := sched.Validate(); err != nil {
		return Schedule{}, fmt.Errorf("stored schedule: %w", err)
	}
	return sched, nil
}

// SaveSchedule validates and persists the scheduler state.
func (s *Settings) SaveSchedule(ctx context.Context, sched Schedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}
	return s.setAll(ctx, [][2]string{
		{KeySchedulerEnabled, formatBool(sched.Enabled)},
		{KeySchedulerHour, strconv.Itoa(sched.Hour)},
		{KeySchedulerMinute, strconv.Itoa(sched.Minute)},
	})
}

// LastCheck returns the completion time of the last batch; ok is false if none ran.
func (s *Settings) LastCheck(ctx context.Context) (time.Time, bool, error) {
	raw, ok, err := s.store.GetSetting(ctx, KeyLastCheck)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("load %s: %w", KeyLastCheck, err)
	}
	if !ok || raw == "" {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("setting %s: invalid time %q", KeyLastCheck, raw)
	}
	return ts, true, nil
}

// SetLastCheck records a batch completion time.
func (s *Settings) SetLastCheck(ctx context.Context, at time.Time) error {
	return s.store.SetSetting(ctx, KeyLastCheck, at.Format(time.RFC3339))
}

func (s *Settings) setAll(ctx context.Context, pairs [][2]string) error {
	for _, kv := range pairs {
		if err := s.store.SetSetting(ctx, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func boolValue(values map[string]string, key string, def bool) (bool, error) {
	raw, ok := values[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("setting %s: invalid boolean %q", key, raw)
	}
	return v, nil
}

func intValue(values map[string]string, key string, def int) (int, error) {
	raw, ok := values[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("setting %s: invalid integer %q", key, raw)
	}
	return v, nil
}

// formatBool keeps the "1"/"0" encoding of existing databases.
func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
