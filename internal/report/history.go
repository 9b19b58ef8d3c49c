package report

import (
	"fmt"

	"github.com/shopspring/decimal"

	"shop-rank-tracker/internal/storage"
)

// HistoryStats describes one target over a time window.
type HistoryStats struct {
	Checks int
	Ranked int
	Mean   decimal.Decimal
	Best   int
	Worst  int
}

// ComputeHistory aggregates observations; unranked checks count toward Checks only.
func ComputeHistory(obs []storage.Observation) HistoryStats {
	stats := HistoryStats{Checks: len(obs)}
	sum := decimal.Zero
	for _, o := range obs {
		pos, ok := o.Rank.Position()
		if !ok {
			continue
		}
		if stats.Ranked == 0 || pos < stats.Best {
			stats.Best = pos
		}
		if pos > stats.Worst {
			stats.Worst = pos
		}
		stats.Ranked++
		sum = sum.Add(decimal.NewFromInt(int64(pos)))
	}
	if stats.Ranked > 0 {
		stats.Mean = sum.Div(decimal.NewFromInt(int64(stats.Ranked))).Round(1)
	}
	return stats
}

func (h HistoryStats) String() string {
	if h.Checks == 0 {
		return "no checks"
	}
	if h.Ranked == 0 {
		return fmt.Sprintf("%d checks, all unranked", h.Checks)
	}
	return fmt.Sprintf("%d checks, mean %s, best %d, worst %d", h.Checks, h.Mean.StringFixed(1), h.Best, h.Worst)
}
