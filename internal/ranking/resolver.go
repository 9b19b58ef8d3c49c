package ranking

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"shop-rank-tracker/internal/metrics"
	"shop-rank-tracker/internal/search"
)

// Options tune the page walk.
type Options struct {
	PageSize         int
	MaxPages         int
	EarlyStopPages   int
	MaxAttempts      int
	PageDelay        time.Duration
	RateLimitBackoff time.Duration
	ErrorBackoff     time.Duration
}

// DefaultOptions mirrors the provider's documented limits.
func DefaultOptions() Options {
	return Options{
		PageSize:         100,
		MaxPages:         10,
		EarlyStopPages:   2,
		MaxAttempts:      3,
		PageDelay:        120 * time.Millisecond,
		RateLimitBackoff: 2 * time.Second,
		ErrorBackoff:     time.Second,
	}
}

// Request describes one resolution. MaxPages > 0 overrides the configured cap.
type Request struct {
	Keyword    string
	MatchMode  MatchMode
	MatchValue string
	Sort       search.SortMode
	MaxPages   int
}

// Result is the outcome of a resolution. Item fields are empty when Rank is NotFound.
type Result struct {
	Rank         Rank
	Title        string
	StoreName    string
	Price        int64
	Link         string
	ProductID    string
	TotalScanned int
	PagesScanned int
}

// Resolver locates a target within a paginated result stream.
type Resolver struct {
	opts     Options
	searcher search.Searcher
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewResolver builds a Resolver; zero option fields fall back to DefaultOptions.
func NewResolver(opts Options, searcher search.Searcher, m *metrics.Metrics, logger zerolog.Logger) *Resolver {
	def := DefaultOptions()
	if opts.PageSize <= 0 {
		opts.PageSize = def.PageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = def.MaxPages
	}
	if opts.EarlyStopPages < 0 {
		opts.EarlyStopPages = 0
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	return &Resolver{
		opts:     opts,
		searcher: searcher,
		metrics:  m,
		logger:   logger.With().Str("component", "resolver").Logger(),
		sleep:    sleepContext,
	}
}

// Resolve walks result pages until the target is found and the early-stop window has
// elapsed, a page comes back empty or unavailable, or the page cap is reached.
// The only errors returned are ctx's, together with the partial result, and
// search.ErrNotConfigured.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	maxPages := r.opts.MaxPages
	if req.MaxPages > 0 {
		maxPages = req.MaxPages
	}

	log := r.logger.With().Str("keyword", req.Keyword).Logger()

	var res Result
	matchPage := -1

	for page := 0; page < maxPages; page++ {
		start := page*r.opts.PageSize + 1
		if start > search.MaxStart {
			break
		}
		if page > 0 {
			if err := r.sleep(ctx, r.opts.PageDelay); err != nil {
				return res, err
			}
		}

		items, err := r.fetchPage(ctx, req, start, log)
		if err != nil {
			return res, err
		}
		if len(items) == 0 {
			break
		}
		res.PagesScanned++

		for i, item := range items {
			abs := start + i
			if abs > res.TotalScanned {
				res.TotalScanned = abs
			}
			if res.Rank.Found() || !Matches(item, req.MatchMode, req.MatchValue) {
				continue
			}
			res.Rank = At(abs)
			res.Title = PlainTitle(item.Title)
			res.StoreName = item.StoreName
			res.Price = item.Price
			res.Link = item.Link
			res.ProductID = item.ProductID
			matchPage = page
		}

		if matchPage >= 0 && page-matchPage >= r.opts.EarlyStopPages {
			break
		}
	}

	r.metrics.ObserveResolution(res.Rank.Found(), res.PagesScanned)
	log.Debug().
		Stringer("rank", res.Rank).
		Int("total_scanned", res.TotalScanned).
		Int("pages", res.PagesScanned).
		Msg("resolution finished")
	return res, nil
}

// fetchPage returns nil items when the page could not be obtained within the attempt
// budget; only context errors and search.ErrNotConfigured are propagated.
func (r *Resolver) fetchPage(ctx context.Context, req Request, start int, log zerolog.Logger) ([]search.Item, error) {
	q := search.Query{
		Keyword: req.Keyword,
		Start:   start,
		Display: r.opts.PageSize,
		Sort:    req.Sort,
	}

	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		page, err := r.searcher.Search(ctx, q)
		if err == nil {
			return page.Items, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, search.ErrNotConfigured) {
			return nil, err
		}

		backoff := r.opts.ErrorBackoff
		if errors.Is(err, search.ErrRateLimited) {
			backoff = r.opts.RateLimitBackoff
		}
		log.Warn().
			Err(err).
			Int("start", start).
			Int("attempt", attempt).
			Int("max_attempts", r.opts.MaxAttempts).
			Msg("search page failed")

		if attempt == r.opts.MaxAttempts {
			break
		}
		if err := r.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}

	log.Warn().Int("start", start).Msg("search page unavailable, ending walk")
	return nil, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
