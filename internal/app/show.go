package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"shop-rank-tracker/internal/report"
)

const timeLayout = "2006-01-02 15:04"

// Show prints the dashboard: summary numbers and the latest rank of every active target.
func (a *App) Show(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	latest, err := store.LatestObservations(ctx)
	if err != nil {
		return err
	}

	st := a.newSettings(store)
	policy, err := st.Policy(ctx)
	if err != nil {
		return err
	}
	summary := report.Summarize(latest, policy.TopTierCutoff)
	loc := a.Config.Location()

	lastCheck := "never"
	if at, ok, err := st.LastCheck(ctx); err != nil {
		return err
	} else if ok {
		lastCheck = at.In(loc).Format(timeLayout)
	}

	fmt.Fprintf(a.Out, "Tracked: %d   Avg rank: %s   Top %d: %d   Improved: %d   Last check: %s\n\n",
		summary.Tracked, summary.AverageString(), policy.TopTierCutoff, summary.TopTier, summary.Improved, lastCheck)

	if len(latest) == 0 {
		fmt.Fprintln(a.Out, "no active targets")
		return nil
	}

	writer := newTable(a.Out)
	fmt.Fprintln(writer, "ID\tKeyword\tRank\tPrev\tChange\tStore\tPrice\tChecked")
	for _, l := range latest {
		storeName, price, checked := "", "-", "-"
		if l.Current != nil {
			storeName = sanitizeInline(l.Current.StoreName)
			price = formatPrice(l.Current.Price)
			checked = l.Current.ObservedAt.In(loc).Format(timeLayout)
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.Target.ID,
			l.Target.Keyword,
			l.CurrentRank(),
			l.PreviousRank(),
			report.Movement(l.PreviousRank(), l.CurrentRank()),
			storeName,
			price,
			checked,
		)
	}
	writer.Flush()
	return nil
}

// History prints a target's observations over the last days together with statistics.
func (a *App) History(ctx context.Context, id int64, days int) error {
	if days <= 0 {
		return fmt.Errorf("days must be greater than zero")
	}
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	target, err := store.GetTarget(ctx, id)
	if err != nil {
		return err
	}
	since := time.Now().AddDate(0, 0, -days)
	obs, err := store.TargetHistory(ctx, id, since)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "%s (last %d days): %s\n\n", target.Keyword, days, report.ComputeHistory(obs))
	if len(obs) == 0 {
		return nil
	}

	loc := a.Config.Location()
	writer := newTable(a.Out)
	fmt.Fprintln(writer, "Checked\tRank\tStore\tPrice\tTitle")
	for _, o := range obs {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			o.ObservedAt.In(loc).Format(timeLayout),
			o.Rank,
			sanitizeInline(o.StoreName),
			formatPrice(o.Price),
			sanitizeInline(o.Title),
		)
	}
	writer.Flush()
	return nil
}

// Alerts prints the most recent alert log rows.
func (a *App) Alerts(ctx context.Context, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be greater than zero")
	}
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	events, err := store.ListAlertEvents(ctx, limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(a.Out, "no alerts sent yet")
		return nil
	}

	loc := a.Config.Location()
	writer := newTable(a.Out)
	fmt.Fprintln(writer, "Sent\tKeyword\tKind\tMessage")
	for _, e := range events {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			e.SentAt.In(loc).Format(timeLayout),
			e.Keyword,
			e.Kind,
			sanitizeInline(e.Message),
		)
	}
	writer.Flush()
	return nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func formatPrice(price int64) string {
	return report.FormatPrice(price)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
