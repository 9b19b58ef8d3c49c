package ranking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"shop-rank-tracker/internal/search"
)

// RankResolver is the part of Resolver the Runner depends on.
type RankResolver interface {
	Resolve(ctx context.Context, req Request) (Result, error)
}

var _ RankResolver = (*Resolver)(nil)

// Job is one target to resolve.
type Job struct {
	TargetID int64
	Request  Request
}

// Outcome pairs a target with its resolution.
type Outcome struct {
	TargetID int64
	Keyword  string
	Result   Result
}

// Progress is reported before each job and once more with Done set.
type Progress struct {
	Index   int
	Total   int
	Keyword string
	Done    bool
}

// ProgressFunc receives batch progress. It runs on the batch goroutine.
type ProgressFunc func(Progress)

// RunnerOptions configures the batch loop.
type RunnerOptions struct {
	TargetDelay time.Duration
}

// Runner resolves a list of jobs one at a time.
type Runner struct {
	opts     RunnerOptions
	resolver RankResolver
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions, resolver RankResolver, logger zerolog.Logger) *Runner {
	return &Runner{
		opts:     opts,
		resolver: resolver,
		logger:   logger.With().Str("component", "runner").Logger(),
		sleep:    sleepContext,
	}
}

// RunAll resolves jobs sequentially. A failed job degrades to NotFound and the loop
// continues, so len(outcomes) == len(jobs) unless ctx is cancelled, in which case the
// outcomes completed so far are returned with ctx.Err(). An unconfigured searcher
// aborts the batch with no outcomes.
func (r *Runner) RunAll(ctx context.Context, jobs []Job, onProgress ProgressFunc) ([]Outcome, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	outcomes := make([]Outcome, 0, len(jobs))
	for i, job := range jobs {
		if i > 0 {
			if err := r.sleep(ctx, r.opts.TargetDelay); err != nil {
				return outcomes, err
			}
		}
		onProgress(Progress{Index: i, Total: len(jobs), Keyword: job.Request.Keyword})

		res, err := r.resolveSafe(ctx, job.Request)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return outcomes, ctxErr
			}
			if errors.Is(err, search.ErrNotConfigured) {
				return nil, fmt.Errorf("resolve %q: %w", job.Request.Keyword, err)
			}
			r.logger.Error().
				Err(err).
				Int64("target_id", job.TargetID).
				Str("keyword", job.Request.Keyword).
				Msg("resolution failed, recording as unranked")
			res = Result{Rank: NotFound}
		}

		outcomes = append(outcomes, Outcome{
			TargetID: job.TargetID,
			Keyword:  job.Request.Keyword,
			Result:   res,
		})
	}

	onProgress(Progress{Index: len(jobs), Total: len(jobs), Done: true})
	return outcomes, nil
}

func (r *Runner) resolveSafe(ctx context.Context, req Request) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("resolver panic: %v", p)
		}
	}()
	return r.resolver.Resolve(ctx, req)
}
