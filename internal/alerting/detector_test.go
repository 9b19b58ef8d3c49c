package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-rank-tracker/internal/ranking"
)

func enabledPolicy() Policy {
	p := DefaultPolicy()
	p.Enabled = true
	return p
}

func outcome(id int64, kw string, r ranking.Rank) ranking.Outcome {
	return ranking.Outcome{TargetID: id, Keyword: kw, Result: ranking.Result{Rank: r}}
}

func kinds(props []Proposal) []Kind {
	out := make([]Kind, 0, len(props))
	for _, p := range props {
		out = append(out, p.Kind)
	}
	return out
}

func TestDetectImprovedAndEnteredTopTier(t *testing.T) {
	props := Detect(
		[]ranking.Outcome{outcome(1, "tumbler", ranking.At(5))},
		map[int64]ranking.Rank{1: ranking.At(12)},
		enabledPolicy(),
	)
	require.Equal(t, []Kind{KindImproved, KindEnteredTopTier}, kinds(props))
	assert.Equal(t, -7, props[0].Delta)
	assert.Equal(t, ranking.At(12), props[0].Previous)
	assert.Equal(t, ranking.At(5), props[0].Current)
	assert.Equal(t, "tumbler: -7", props[0].Message())
}

func TestDetectNewEntryOnly(t *testing.T) {
	props := Detect(
		[]ranking.Outcome{outcome(1, "mug", ranking.At(3))},
		map[int64]ranking.Rank{},
		enabledPolicy(),
	)
	require.Equal(t, []Kind{KindNewEntry}, kinds(props))
	assert.Zero(t, props[0].Delta)
}

func TestDetectNewEntryFromExplicitNotFound(t *testing.T) {
	props := Detect(
		[]ranking.Outcome{outcome(1, "mug", ranking.At(30))},
		map[int64]ranking.Rank{1: ranking.NotFound},
		enabledPolicy(),
	)
	assert.Equal(t, []Kind{KindNewEntry}, kinds(props))
}

func TestDetectDisabledPolicy(t *testing.T) {
	p := enabledPolicy()
	p.Enabled = false
	props := Detect(
		[]ranking.Outcome{
			outcome(1, "a", ranking.At(50)),
			outcome(2, "b", ranking.NotFound),
			outcome(3, "c", ranking.At(1)),
		},
		map[int64]ranking.Rank{1: ranking.At(1), 2: ranking.At(4)},
		p,
	)
	assert.Empty(t, props)
}

func TestDetectLost(t *testing.T) {
	props := Detect(
		[]ranking.Outcome{outcome(1, "a", ranking.NotFound)},
		map[int64]ranking.Rank{1: ranking.At(8)},
		enabledPolicy(),
	)
	require.Equal(t, []Kind{KindLost}, kinds(props))
	assert.Equal(t, "a: dropped out of ranking", props[0].Message())

	p := enabledPolicy()
	p.Lost = false
	assert.Empty(t, Detect(
		[]ranking.Outcome{outcome(1, "a", ranking.NotFound)},
		map[int64]ranking.Rank{1: ranking.At(8)},
		p,
	))
}

func TestDetectWorsenedAndLeftTopTier(t *testing.T) {
	props := Detect(
		[]ranking.Outcome{outcome(1, "a", ranking.At(16))},
		map[int64]ranking.Rank{1: ranking.At(9)},
		enabledPolicy(),
	)
	require.Equal(t, []Kind{KindWorsened, KindLeftTopTier}, kinds(props))
	assert.Equal(t, 7, props[0].Delta)
	assert.Equal(t, "a: +7", props[0].Message())
}

func TestDetectBelowThreshold(t *testing.T) {
	tests := []struct {
		name string
		prev int
		curr int
		want []Kind
	}{
		{"small move deep in list", 40, 44, []Kind{}},
		{"exact threshold", 40, 35, []Kind{KindImproved}},
		{"top tier crossing only", 11, 10, []Kind{KindEnteredTopTier}},
		{"top tier boundary kept", 10, 10, []Kind{}},
		{"leaving by one", 10, 11, []Kind{KindLeftTopTier}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props := Detect(
				[]ranking.Outcome{outcome(1, "k", ranking.At(tt.curr))},
				map[int64]ranking.Rank{1: ranking.At(tt.prev)},
				enabledPolicy(),
			)
			assert.Equal(t, tt.want, kinds(props))
		})
	}
}

func TestDetectTopTierToggleAndCutoff(t *testing.T) {
	p := enabledPolicy()
	p.TopTier = false
	props := Detect(
		[]ranking.Outcome{outcome(1, "k", ranking.At(9))},
		map[int64]ranking.Rank{1: ranking.At(11)},
		p,
	)
	assert.Empty(t, props)

	p = enabledPolicy()
	p.TopTierCutoff = 20
	props = Detect(
		[]ranking.Outcome{outcome(1, "k", ranking.At(19))},
		map[int64]ranking.Rank{1: ranking.At(21)},
		p,
	)
	assert.Equal(t, []Kind{KindEnteredTopTier}, kinds(props))
}

func TestDetectBothUnrankedIsQuiet(t *testing.T) {
	props := Detect(
		[]ranking.Outcome{outcome(1, "k", ranking.NotFound)},
		nil,
		enabledPolicy(),
	)
	assert.Empty(t, props)
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.StepThreshold = 0
	assert.Error(t, p.Validate())
}

func TestMovement(t *testing.T) {
	assert.Equal(t, "▲7", Movement(Proposal{Kind: KindImproved, Delta: -7}))
	assert.Equal(t, "▼3", Movement(Proposal{Kind: KindWorsened, Delta: 3}))
	assert.Equal(t, "NEW", Movement(Proposal{Kind: KindNewEntry}))
	assert.Equal(t, "out", Movement(Proposal{Kind: KindLost}))
}
