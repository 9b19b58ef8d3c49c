package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"shop-rank-tracker/internal/ranking"
	"shop-rank-tracker/internal/search"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("storage: not found")

// Target is a tracked keyword plus its matching rule.
type Target struct {
	ID         int64
	Keyword    string
	MatchMode  ranking.MatchMode
	MatchValue string
	Sort       search.SortMode
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks the user-supplied fields.
func (t Target) Validate() error {
	if strings.TrimSpace(t.Keyword) == "" {
		return errors.New("keyword is required")
	}
	if strings.TrimSpace(t.MatchValue) == "" {
		return errors.New("match value is required")
	}
	if _, err := ranking.ParseMatchMode(string(t.MatchMode)); err != nil {
		return err
	}
	if _, err := search.ParseSortMode(string(t.Sort)); err != nil {
		return err
	}
	return nil
}

// Job converts the target into a resolver job.
func (t Target) Job(maxPages int) ranking.Job {
	return ranking.Job{
		TargetID: t.ID,
		Request: ranking.Request{
			Keyword:    t.Keyword,
			MatchMode:  t.MatchMode,
			MatchValue: t.MatchValue,
			Sort:       t.Sort,
			MaxPages:   maxPages,
		},
	}
}

// TargetPatch carries the fields of an explicit edit; nil fields are left unchanged.
type TargetPatch struct {
	Keyword    *string
	MatchMode  *ranking.MatchMode
	MatchValue *string
	Sort       *search.SortMode
	Active     *bool
}

// Empty reports whether the patch changes nothing.
func (p TargetPatch) Empty() bool {
	return p.Keyword == nil && p.MatchMode == nil && p.MatchValue == nil && p.Sort == nil && p.Active == nil
}

// Apply returns t with the patch applied.
func (p TargetPatch) Apply(t Target) Target {
	if p.Keyword != nil {
		t.Keyword = *p.Keyword
	}
	if p.MatchMode != nil {
		t.MatchMode = *p.MatchMode
	}
	if p.MatchValue != nil {
		t.MatchValue = *p.MatchValue
	}
	if p.Sort != nil {
		t.Sort = *p.Sort
	}
	if p.Active != nil {
		t.Active = *p.Active
	}
	return t
}

// Observation is one append-only resolution outcome.
type Observation struct {
	ID         int64
	TargetID   int64
	Rank       ranking.Rank
	Title      string
	StoreName  string
	Price      int64
	Link       string
	ProductID  string
	ObservedAt time.Time
}

// ObservationFromOutcome maps a runner outcome to a row.
func ObservationFromOutcome(o ranking.Outcome, at time.Time) Observation {
	return Observation{
		TargetID:   o.TargetID,
		Rank:       o.Result.Rank,
		Title:      o.Result.Title,
		StoreName:  o.Result.StoreName,
		Price:      o.Result.Price,
		Link:       o.Result.Link,
		ProductID:  o.Result.ProductID,
		ObservedAt: at,
	}
}

func (o Observation) validate() error {
	if o.TargetID <= 0 {
		return fmt.Errorf("observation target id %d is invalid", o.TargetID)
	}
	if o.Price < 0 {
		return fmt.Errorf("observation price %d is negative", o.Price)
	}
	if o.ObservedAt.IsZero() {
		return errors.New("observation time is required")
	}
	return nil
}

// LatestObservation pairs an active target with its two most recent observations.
// Current and Previous are nil when fewer observations exist.
type LatestObservation struct {
	Target   Target
	Current  *Observation
	Previous *Observation
}

// CurrentRank is NotFound when the target has never been checked.
func (l LatestObservation) CurrentRank() ranking.Rank {
	if l.Current == nil {
		return ranking.NotFound
	}
	return l.Current.Rank
}

// PreviousRank is NotFound when fewer than two observations exist.
func (l LatestObservation) PreviousRank() ranking.Rank {
	if l.Previous == nil {
		return ranking.NotFound
	}
	return l.Previous.Rank
}

// HistoryEntry is an observation joined with its target's keyword.
type HistoryEntry struct {
	Observation
	Keyword    string
	MatchValue string
}

// AlertEvent is an append-only record of a delivered alert.
type AlertEvent struct {
	ID       int64
	TargetID int64
	Kind     string
	Message  string
	SentAt   time.Time
	// Keyword is filled by list queries.
	Keyword string
}
