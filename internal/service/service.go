package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shop-rank-tracker/internal/alerting"
	"shop-rank-tracker/internal/metrics"
	"shop-rank-tracker/internal/ranking"
	"shop-rank-tracker/internal/search"
	"shop-rank-tracker/internal/settings"
	"shop-rank-tracker/internal/storage"
)

// ErrBatchInProgress is returned when another batch holds the in-process guard or
// the cross-process advisory lock.
var ErrBatchInProgress = errors.New("batch already in progress")

// BatchRunner is the part of ranking.Runner the service depends on.
type BatchRunner interface {
	RunAll(ctx context.Context, jobs []ranking.Job, onProgress ranking.ProgressFunc) ([]ranking.Outcome, error)
}

var _ BatchRunner = (*ranking.Runner)(nil)

// Options tune the batch service.
type Options struct {
	MaxPages        int
	TestPages       int
	AdvisoryLockKey int64
}

// BatchOptions select per-run behaviour.
type BatchOptions struct {
	Alerts   bool
	Progress ranking.ProgressFunc
}

// BatchReport summarises one batch.
type BatchReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []ranking.Outcome
	Proposals  []alerting.Proposal
	Dispatched bool
	// DispatchErr is informational; delivery failures never fail the batch.
	DispatchErr error
}

// Found counts the outcomes that resolved to a rank.
func (r BatchReport) Found() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Result.Rank.Found() {
			n++
		}
	}
	return n
}

// Service orchestrates resolution, persistence, and alerting.
type Service struct {
	opts     Options
	store    storage.Store
	settings *settings.Settings
	resolver ranking.RankResolver
	runner   BatchRunner
	notifier alerting.Notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time

	running sync.Mutex
}

// New constructs the batch service. notifier may be nil when no channel is configured.
func New(opts Options, store storage.Store, st *settings.Settings, resolver ranking.RankResolver, runner BatchRunner, notifier alerting.Notifier, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		opts:     opts,
		store:    store,
		settings: st,
		resolver: resolver,
		runner:   runner,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With().Str("component", "service").Logger(),
		now:      time.Now,
	}
}

// Scheduled is the scheduler's job: a batch with alerting. A batch already in
// progress is not an error for a trigger.
func (s *Service) Scheduled(ctx context.Context, firedAt time.Time) error {
	report, err := s.RunBatch(ctx, BatchOptions{Alerts: true})
	if errors.Is(err, ErrBatchInProgress) {
		s.logger.Warn().Time("fired_at", firedAt).Msg("skip trigger because a batch is already running")
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("run_id", report.RunID).
		Time("fired_at", firedAt).
		Int("targets", len(report.Outcomes)).
		Int("found", report.Found()).
		Int("alerts", len(report.Proposals)).
		Msg("scheduled batch finished")
	return nil
}

// RunBatch resolves every active target, persists one observation each, and when
// requested dispatches the detected changes in a single notification.
func (s *Service) RunBatch(ctx context.Context, opts BatchOptions) (BatchReport, error) {
	if !s.running.TryLock() {
		return BatchReport{}, ErrBatchInProgress
	}
	defer s.running.Unlock()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return BatchReport{}, err
	}
	if !proceed {
		return BatchReport{}, fmt.Errorf("advisory lock held elsewhere: %w", ErrBatchInProgress)
	}
	if unlock != nil {
		defer unlock()
	}

	report := BatchReport{RunID: uuid.NewString(), StartedAt: s.now()}
	log := s.logger.With().Str("run_id", report.RunID).Logger()

	err = s.executeBatch(ctx, opts, &report, log)
	report.FinishedAt = s.now()
	if err == nil {
		s.metrics.ObserveBatch(report.StartedAt, report.FinishedAt)
	}
	return report, err
}

func (s *Service) executeBatch(ctx context.Context, opts BatchOptions, report *BatchReport, log zerolog.Logger) error {
	latest, err := s.store.LatestObservations(ctx)
	if err != nil {
		return fmt.Errorf("load previous ranks: %w", err)
	}
	previous := make(map[int64]ranking.Rank, len(latest))
	for _, l := range latest {
		previous[l.Target.ID] = l.CurrentRank()
	}

	targets, err := s.store.ListTargets(ctx, true)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	if len(targets) == 0 {
		log.Info().Msg("no active targets")
		return nil
	}

	jobs := make([]ranking.Job, 0, len(targets))
	for _, t := range targets {
		jobs = append(jobs, t.Job(s.opts.MaxPages))
	}

	log.Info().Int("targets", len(jobs)).Bool("alerts", opts.Alerts).Msg("batch started")
	outcomes, runErr := s.runner.RunAll(ctx, jobs, opts.Progress)
	if errors.Is(runErr, search.ErrNotConfigured) {
		return fmt.Errorf("run batch: %w", runErr)
	}
	report.Outcomes = outcomes

	observedAt := s.now()
	for _, o := range outcomes {
		if _, err := s.store.AppendObservation(ctx, storage.ObservationFromOutcome(o, observedAt)); err != nil {
			return fmt.Errorf("append observation for target %d: %w", o.TargetID, err)
		}
		log.Debug().
			Int64("target_id", o.TargetID).
			Str("keyword", o.Keyword).
			Stringer("rank", o.Result.Rank).
			Int("scanned", o.Result.TotalScanned).
			Msg("observation recorded")
	}
	if runErr != nil {
		log.Warn().Err(runErr).Int("completed", len(outcomes)).Int("targets", len(jobs)).Msg("batch interrupted")
		return runErr
	}

	if opts.Alerts {
		if err := s.alert(ctx, outcomes, previous, observedAt, report, log); err != nil {
			return err
		}
	}

	if err := s.settings.SetLastCheck(ctx, s.now()); err != nil {
		return fmt.Errorf("record last check: %w", err)
	}

	log.Info().
		Int("targets", len(outcomes)).
		Int("found", report.Found()).
		Int("alerts", len(report.Proposals)).
		Msg("batch finished")
	return nil
}

func (s *Service) alert(ctx context.Context, outcomes []ranking.Outcome, previous map[int64]ranking.Rank, checkedAt time.Time, report *BatchReport, log zerolog.Logger) error {
	policy, err := s.settings.Policy(ctx)
	if err != nil {
		return fmt.Errorf("load alert policy: %w", err)
	}

	proposals := alerting.Detect(outcomes, previous, policy)
	report.Proposals = proposals
	if len(proposals) == 0 {
		return nil
	}
	for _, p := range proposals {
		s.metrics.ObserveAlert(string(p.Kind))
	}

	if s.notifier == nil {
		log.Warn().Int("alerts", len(proposals)).Msg("no notification channel configured; alerts not delivered")
		return nil
	}

	if err := s.notifier.Notify(ctx, alerting.Dispatch{CheckedAt: checkedAt, Proposals: proposals}); err != nil {
		s.metrics.ObserveDispatch(false)
		report.DispatchErr = err
		log.Error().Err(err).Int("alerts", len(proposals)).Msg("failed to dispatch alerts")
		return nil
	}
	s.metrics.ObserveDispatch(true)
	report.Dispatched = true

	sentAt := s.now()
	for _, p := range proposals {
		event := storage.AlertEvent{
			TargetID: p.TargetID,
			Kind:     string(p.Kind),
			Message:  p.Message(),
			SentAt:   sentAt,
		}
		if _, err := s.store.AppendAlertEvent(ctx, event); err != nil {
			log.Error().Err(err).Int64("target_id", p.TargetID).Str("kind", string(p.Kind)).Msg("failed to persist alert event")
		}
	}
	return nil
}

// TestTarget resolves a single target with the shallow test page budget and
// persists nothing.
func (s *Service) TestTarget(ctx context.Context, id int64) (storage.Target, ranking.Result, error) {
	target, err := s.store.GetTarget(ctx, id)
	if err != nil {
		return storage.Target{}, ranking.Result{}, err
	}
	job := target.Job(s.opts.TestPages)
	res, err := s.resolver.Resolve(ctx, job.Request)
	if err != nil {
		return target, res, fmt.Errorf("resolve target %d: %w", id, err)
	}
	return target, res, nil
}

// SampleDispatch is the fixed payload of a test notification.
func SampleDispatch(at time.Time) alerting.Dispatch {
	return alerting.Dispatch{
		CheckedAt: at,
		Note:      "This is a test notification.",
		Proposals: []alerting.Proposal{{
			Keyword:   "sample keyword",
			Kind:      alerting.KindImproved,
			Previous:  ranking.At(12),
			Current:   ranking.At(5),
			Delta:     -7,
			Title:     "Sample product",
			StoreName: "Sample store",
			Price:     29900,
			Link:      "https://shopping.naver.com",
		}},
	}
}

// SendTestNotification delivers SampleDispatch through every configured channel.
// Nothing is written to the alert log.
func (s *Service) SendTestNotification(ctx context.Context) error {
	if s.notifier == nil {
		return errors.New("no notification channel configured")
	}
	if err := s.notifier.Notify(ctx, SampleDispatch(s.now())); err != nil {
		s.metrics.ObserveDispatch(false)
		return fmt.Errorf("send test notification: %w", err)
	}
	s.metrics.ObserveDispatch(true)
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.AdvisoryLockKey == 0 || s.store == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.store.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
