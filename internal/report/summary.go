// Package report computes the numbers the CLI prints: dashboard summary, per-target
// history statistics, and CSV/PNG exports of observations.
package report

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"shop-rank-tracker/internal/ranking"
	"shop-rank-tracker/internal/storage"
)

// Summary is the dashboard header.
type Summary struct {
	Tracked int
	Ranked  int
	// AverageRank is over ranked targets only; zero when none are ranked.
	AverageRank decimal.Decimal
	TopTier     int
	Improved    int
}

// AverageString renders the average with one decimal, or "-".
func (s Summary) AverageString() string {
	if s.Ranked == 0 {
		return "-"
	}
	return s.AverageRank.StringFixed(1)
}

// Summarize aggregates the latest observation of every active target.
func Summarize(latest []storage.LatestObservation, topTierCutoff int) Summary {
	s := Summary{Tracked: len(latest)}
	sum := decimal.Zero
	for _, l := range latest {
		curr, ok := l.CurrentRank().Position()
		if !ok {
			continue
		}
		s.Ranked++
		sum = sum.Add(decimal.NewFromInt(int64(curr)))
		if curr <= topTierCutoff {
			s.TopTier++
		}
		if prev, ok := l.PreviousRank().Position(); ok && curr < prev {
			s.Improved++
		}
	}
	if s.Ranked > 0 {
		s.AverageRank = sum.Div(decimal.NewFromInt(int64(s.Ranked))).Round(1)
	}
	return s
}

// Movement renders previous minus current: ▲n moved up, ▼n moved down. A target
// that was unranked and now has a rank is NEW; anything else without two ranks is "-".
func Movement(prev, curr ranking.Rank) string {
	c, hasCurr := curr.Position()
	p, hasPrev := prev.Position()
	switch {
	case hasCurr && hasPrev:
		switch d := p - c; {
		case d > 0:
			return fmt.Sprintf("▲%d", d)
		case d < 0:
			return fmt.Sprintf("▼%d", -d)
		default:
			return "-"
		}
	case hasCurr:
		return "NEW"
	default:
		return "-"
	}
}

var printer = message.NewPrinter(language.Korean)

// FormatPrice renders a price with thousands separators, or "-" for zero.
func FormatPrice(price int64) string {
	if price <= 0 {
		return "-"
	}
	return printer.Sprintf("%d KRW", price)
}
