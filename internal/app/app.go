package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"shop-rank-tracker/internal/alerting"
	"shop-rank-tracker/internal/config"
	"shop-rank-tracker/internal/metrics"
	"shop-rank-tracker/internal/ranking"
	"shop-rank-tracker/internal/scheduler"
	"shop-rank-tracker/internal/search"
	"shop-rank-tracker/internal/service"
	"shop-rank-tracker/internal/settings"
	"shop-rank-tracker/internal/storage"
	"shop-rank-tracker/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer

	// searcher replaces the Naver client when set.
	searcher search.Searcher
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
	}
}

func (a *App) openStore(ctx context.Context) (storage.Store, func(), error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) newSettings(store storage.SettingsStore) *settings.Settings {
	c := a.Config.Alerting
	return settings.New(store, alerting.Policy{
		Enabled:       c.Enabled,
		StepThreshold: c.StepThreshold,
		TopTier:       c.TopTier,
		Lost:          c.Lost,
		NewEntry:      c.NewEntry,
		TopTierCutoff: c.TopTierCutoff,
	})
}

func (a *App) newSearcher(m *metrics.Metrics) search.Searcher {
	if a.searcher != nil {
		return a.searcher
	}
	cfg := a.Config.Search
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	return search.NewNaver(search.NaverOptions{
		BaseURL:       cfg.BaseURL,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		Timeout:       cfg.RequestTimeout,
		UserAgent:     userAgent,
		RatePerSecond: cfg.RatePerSecond,
	}, m, a.Logger)
}

func (a *App) newResolver(m *metrics.Metrics) *ranking.Resolver {
	cfg := a.Config.Resolver
	return ranking.NewResolver(ranking.Options{
		PageSize:         a.Config.Search.ItemsPerPage,
		MaxPages:         cfg.MaxPages,
		EarlyStopPages:   cfg.EarlyStopPages,
		MaxAttempts:      cfg.MaxAttempts,
		PageDelay:        cfg.PageDelay,
		RateLimitBackoff: cfg.RateLimitBackoff,
		ErrorBackoff:     cfg.ErrorBackoff,
	}, a.newSearcher(m), m, a.Logger)
}

// newNotifier fans out to every enabled channel. It returns nil when none is enabled.
func (a *App) newNotifier() (alerting.Notifier, error) {
	cfg := a.Config.Notify
	multi := alerting.NewMultiNotifier(a.Logger)

	if cfg.Email.Enabled {
		multi.Add("email", alerting.NewEmailNotifier(alerting.EmailOptions{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}, nil, a.Logger))
	}
	if cfg.Telegram.Enabled {
		multi.Add("telegram", alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.Timeout, a.Logger))
	}
	if cfg.Shoutrrr.Enabled {
		n, err := alerting.NewShoutrrrNotifier(cfg.Shoutrrr.URLs, a.Logger)
		if err != nil {
			return nil, err
		}
		multi.Add("shoutrrr", n)
	}

	if multi.Len() == 0 {
		return nil, nil
	}
	return multi, nil
}

func (a *App) newService(store storage.Store, m *metrics.Metrics) (*service.Service, error) {
	notifier, err := a.newNotifier()
	if err != nil {
		return nil, err
	}
	resolver := a.newResolver(m)
	runner := ranking.NewRunner(ranking.RunnerOptions{TargetDelay: a.Config.Batch.TargetDelay}, resolver, a.Logger)

	return service.New(service.Options{
		MaxPages:        a.Config.Resolver.MaxPages,
		TestPages:       a.Config.Resolver.TestPages,
		AdvisoryLockKey: a.Config.Database.AdvisoryLockKey,
	}, store, a.newSettings(store), resolver, runner, notifier, m, a.Logger), nil
}

// RunOptions configure the daemon.
type RunOptions struct {
	// At arms the trigger at HH:MM before restoring persisted state.
	At string
}

// Run executes the long-running daemon: metrics listener, daily trigger, and the
// settings sync loop.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()
	svc, err := a.newService(store, m)
	if err != nil {
		return err
	}

	metricsErr := make(chan error, 1)
	if a.Config.Metrics.Enabled {
		go func() { metricsErr <- metrics.Serve(ctx, a.Config.Metrics.Addr, m, a.Logger) }()
	}

	handle := scheduler.New(ctx, svc.Scheduled, a.newSettings(store), a.Config.Location(), a.Logger)
	defer handle.Shutdown()

	if opts.At != "" {
		hour, minute, err := ParseClock(opts.At)
		if err != nil {
			return err
		}
		if err := handle.Start(ctx, hour, minute); err != nil {
			return err
		}
	} else if err := handle.Restore(ctx); err != nil {
		return err
	}
	if next, ok := handle.Next(); ok {
		a.Logger.Info().Time("next_run", next).Msg("next scheduled batch")
	}

	a.Logger.Info().Str("version", version.Version).Msg("starting rank tracker")
	watchErr := make(chan error, 1)
	go func() { watchErr <- handle.Watch(ctx, a.Config.Scheduler.SyncInterval) }()

	select {
	case err = <-metricsErr:
		cancel()
		<-watchErr
		if err != nil {
			a.Logger.Error().Err(err).Msg("metrics listener terminated with error")
			return err
		}
	case err = <-watchErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Msg("scheduler terminated with error")
			return err
		}
	}

	a.Logger.Info().Msg("rank tracker stopped")
	return nil
}

// CheckOptions configure a manual batch.
type CheckOptions struct {
	Alerts bool
}

// Check runs one batch now and prints the outcomes.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store, nil)
	if err != nil {
		return err
	}

	progress := func(p ranking.Progress) {
		if p.Done {
			fmt.Fprintf(os.Stderr, "checked %d target(s)\n", p.Total)
			return
		}
		fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", p.Index+1, p.Total, p.Keyword)
	}

	report, err := svc.RunBatch(ctx, service.BatchOptions{Alerts: opts.Alerts, Progress: progress})
	if err != nil {
		return err
	}
	if len(report.Outcomes) == 0 {
		fmt.Fprintln(a.Out, "no active targets")
		return nil
	}

	writer := newTable(a.Out)
	fmt.Fprintln(writer, "ID\tKeyword\tRank\tScanned\tStore\tPrice")
	for _, o := range report.Outcomes {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%d\t%s\t%s\n",
			o.TargetID,
			o.Keyword,
			o.Result.Rank,
			o.Result.TotalScanned,
			sanitizeInline(o.Result.StoreName),
			formatPrice(o.Result.Price),
		)
	}
	writer.Flush()

	fmt.Fprintf(a.Out, "\n%d of %d ranked (run %s)\n", report.Found(), len(report.Outcomes), report.RunID)
	if opts.Alerts {
		switch {
		case len(report.Proposals) == 0:
			fmt.Fprintln(a.Out, "no alerts")
		case report.Dispatched:
			fmt.Fprintf(a.Out, "%d alert(s) sent\n", len(report.Proposals))
		case report.DispatchErr != nil:
			fmt.Fprintf(a.Out, "%d alert(s) not delivered: %v\n", len(report.Proposals), report.DispatchErr)
		default:
			fmt.Fprintf(a.Out, "%d alert(s) detected, no channel configured\n", len(report.Proposals))
		}
	}
	return nil
}

// TestTarget resolves one target with the shallow page budget and prints the result.
func (a *App) TestTarget(ctx context.Context, id int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store, nil)
	if err != nil {
		return err
	}

	started := time.Now()
	target, res, err := svc.TestTarget(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "keyword:  %s\n", target.Keyword)
	fmt.Fprintf(a.Out, "match:    %s %q\n", target.MatchMode, target.MatchValue)
	fmt.Fprintf(a.Out, "rank:     %s\n", res.Rank)
	fmt.Fprintf(a.Out, "scanned:  %d items in %d page(s), %s\n", res.TotalScanned, res.PagesScanned, time.Since(started).Round(time.Millisecond))
	if res.Rank.Found() {
		fmt.Fprintf(a.Out, "title:    %s\n", res.Title)
		fmt.Fprintf(a.Out, "store:    %s\n", res.StoreName)
		fmt.Fprintf(a.Out, "price:    %s\n", formatPrice(res.Price))
		fmt.Fprintf(a.Out, "link:     %s\n", res.Link)
	}
	return nil
}

// ParseClock parses "HH:MM".
func ParseClock(v string) (int, int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", v)
	}
	return t.Hour(), t.Minute(), nil
}
