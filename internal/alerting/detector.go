package alerting

import (
	"errors"
	"fmt"
	"strconv"

	"shop-rank-tracker/internal/ranking"
)

// Kind classifies a rank change.
type Kind string

const (
	KindImproved       Kind = "rank-improved"
	KindWorsened       Kind = "rank-worsened"
	KindEnteredTopTier Kind = "entered-top-tier"
	KindLeftTopTier    Kind = "left-top-tier"
	KindLost           Kind = "lost"
	KindNewEntry       Kind = "new-entry"
)

// Label is the human-readable form used in notifications.
func (k Kind) Label() string {
	switch k {
	case KindImproved:
		return "Rank up"
	case KindWorsened:
		return "Rank down"
	case KindEnteredTopTier:
		return "Entered top tier"
	case KindLeftTopTier:
		return "Left top tier"
	case KindLost:
		return "Dropped out"
	case KindNewEntry:
		return "New entry"
	default:
		return string(k)
	}
}

// Policy decides which changes become proposals.
type Policy struct {
	Enabled       bool
	StepThreshold int
	TopTier       bool
	Lost          bool
	NewEntry      bool
	TopTierCutoff int
}

// DefaultPolicy has alerting off with every category armed.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:       false,
		StepThreshold: 5,
		TopTier:       true,
		Lost:          true,
		NewEntry:      true,
		TopTierCutoff: 10,
	}
}

// Validate checks the numeric fields.
func (p Policy) Validate() error {
	if p.StepThreshold < 1 {
		return errors.New("alert step threshold must be >= 1")
	}
	if p.TopTierCutoff < 1 {
		return errors.New("top tier cutoff must be >= 1")
	}
	return nil
}

// Proposal is a change worth notifying about. Delta is current minus previous, so a
// positive value means the target moved down the list.
type Proposal struct {
	TargetID  int64
	Keyword   string
	Kind      Kind
	Previous  ranking.Rank
	Current   ranking.Rank
	Delta     int
	Title     string
	StoreName string
	Price     int64
	Link      string
}

// Change is the short description stored in the alert log.
func (p Proposal) Change() string {
	switch p.Kind {
	case KindLost:
		return "dropped out of ranking"
	case KindNewEntry:
		return "new entry at " + p.Current.String()
	default:
		if p.Delta > 0 {
			return "+" + strconv.Itoa(p.Delta)
		}
		return strconv.Itoa(p.Delta)
	}
}

// Message is the alert log line for this proposal.
func (p Proposal) Message() string {
	return fmt.Sprintf("%s: %s", p.Keyword, p.Change())
}

// Detect compares each outcome with the target's previous rank. Targets absent from
// previous are treated as previously unranked.
func Detect(outcomes []ranking.Outcome, previous map[int64]ranking.Rank, policy Policy) []Proposal {
	if !policy.Enabled {
		return nil
	}
	cutoff := policy.TopTierCutoff
	if cutoff <= 0 {
		cutoff = DefaultPolicy().TopTierCutoff
	}

	var out []Proposal
	for _, o := range outcomes {
		prevRank := previous[o.TargetID]
		currRank := o.Result.Rank
		prev, hadPrev := prevRank.Position()
		curr, hasCurr := currRank.Position()

		base := Proposal{
			TargetID:  o.TargetID,
			Keyword:   o.Keyword,
			Previous:  prevRank,
			Current:   currRank,
			Title:     o.Result.Title,
			StoreName: o.Result.StoreName,
			Price:     o.Result.Price,
			Link:      o.Result.Link,
		}

		switch {
		case hadPrev && !hasCurr:
			if policy.Lost {
				out = append(out, withKind(base, KindLost))
			}
		case !hadPrev && hasCurr:
			if policy.NewEntry {
				out = append(out, withKind(base, KindNewEntry))
			}
		case hadPrev && hasCurr:
			base.Delta = curr - prev
			if abs(base.Delta) >= policy.StepThreshold {
				kind := KindImproved
				if base.Delta > 0 {
					kind = KindWorsened
				}
				out = append(out, withKind(base, kind))
			}
			if policy.TopTier {
				switch {
				case prev > cutoff && curr <= cutoff:
					out = append(out, withKind(base, KindEnteredTopTier))
				case prev <= cutoff && curr > cutoff:
					out = append(out, withKind(base, KindLeftTopTier))
				}
			}
		}
	}
	return out
}

func withKind(p Proposal, k Kind) Proposal {
	p.Kind = k
	return p
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
