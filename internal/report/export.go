package report

import (
	"encoding/csv"
	"errors"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"shop-rank-tracker/internal/storage"
)

// ErrNotEnoughData is returned when a chart would have no visible extent.
var ErrNotEnoughData = errors.New("not enough ranked observations to chart")

// Downsample keeps at most max evenly spaced elements, always including the first
// and last.
func Downsample[T any](items []T, max int) []T {
	if max <= 0 || len(items) <= max {
		return items
	}
	if max == 1 {
		return items[len(items)-1:]
	}

	result := make([]T, 0, max)
	step := float64(len(items)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(items) {
			idx = len(items) - 1
		}
		result = append(result, items[idx])
	}
	return result
}

// WriteCSV writes one row per observation. Unranked observations have an empty
// rank column. Times are rendered in loc.
func WriteCSV(w io.Writer, entries []storage.HistoryEntry, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	writer := csv.NewWriter(w)

	header := []string{"observed_at", "target_id", "keyword", "match_value", "rank", "title", "store_name", "price", "link", "product_id"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, e := range entries {
		rank := ""
		if pos, ok := e.Rank.Position(); ok {
			rank = strconv.Itoa(pos)
		}
		record := []string{
			e.ObservedAt.In(loc).Format(time.RFC3339),
			strconv.FormatInt(e.TargetID, 10),
			e.Keyword,
			e.MatchValue,
			rank,
			e.Title,
			e.StoreName,
			strconv.FormatInt(e.Price, 10),
			e.Link,
			e.ProductID,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// RenderPNG draws one rank line per keyword with rank 1 at the top. Unranked
// observations leave gaps. maxPoints caps the points of each series.
func RenderPNG(w io.Writer, entries []storage.HistoryEntry, maxPoints int) error {
	type series struct {
		x []time.Time
		y []float64
	}
	byKeyword := map[string]*series{}
	var (
		worst        = 1
		first        time.Time
		distinctTime bool
	)
	for _, e := range entries {
		pos, ok := e.Rank.Position()
		if !ok {
			continue
		}
		s := byKeyword[e.Keyword]
		if s == nil {
			s = &series{}
			byKeyword[e.Keyword] = s
		}
		s.x = append(s.x, e.ObservedAt)
		s.y = append(s.y, float64(pos))
		if pos > worst {
			worst = pos
		}
		switch {
		case first.IsZero():
			first = e.ObservedAt
		case !e.ObservedAt.Equal(first):
			distinctTime = true
		}
	}
	if len(byKeyword) == 0 || !distinctTime {
		return ErrNotEnoughData
	}

	keywords := make([]string, 0, len(byKeyword))
	for k := range byKeyword {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)

	all := make([]chart.Series, 0, len(keywords))
	for _, k := range keywords {
		s := byKeyword[k]
		all = append(all, chart.TimeSeries{
			Name:    k,
			XValues: Downsample(s.x, maxPoints),
			YValues: Downsample(s.y, maxPoints),
		})
	}

	rankFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Rank",
			ValueFormatter: rankFormatter,
			Range: &chart.ContinuousRange{
				Min:        1,
				Max:        float64(worst + 1),
				Descending: true,
			},
		},
		Series: all,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}
