package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-rank-tracker/internal/search"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name  string
		item  search.Item
		mode  MatchMode
		value string
		want  bool
	}{
		{"title markup stripped", search.Item{Title: "<b>Tumbler</b> Pro"}, MatchTitle, "tumbler", true},
		{"title across tag boundary", search.Item{Title: "Steel <b>Tumbler</b> Pro"}, MatchTitle, "tumbler pro", true},
		{"title entity decoded", search.Item{Title: "Tom &amp; Jerry mug"}, MatchTitle, "tom & jerry", true},
		{"store case insensitive", search.Item{StoreName: "MyShop Official"}, MatchStore, "myshop", true},
		{"store ignores title", search.Item{Title: "myshop special", StoreName: "Other"}, MatchStore, "myshop", false},
		{"title ignores store", search.Item{Title: "Mug", StoreName: "MyShop"}, MatchTitle, "myshop", false},
		{"both via store", search.Item{Title: "Mug", StoreName: "MyShop"}, MatchBoth, "myshop", true},
		{"both via title", search.Item{Title: "MyShop mug", StoreName: "Other"}, MatchBoth, "MYSHOP", true},
		{"double space in title and value", search.Item{Title: "Tumbler  Pro"}, MatchTitle, "tumbler  pro", true},
		{"double space in value only", search.Item{Title: "Tumbler Pro"}, MatchTitle, "tumbler  pro", true},
		{"stray angle bracket kept", search.Item{Title: "A<B 500ml"}, MatchTitle, "a<b 500ml", true},
		{"absent fields", search.Item{}, MatchBoth, "x", false},
		{"unknown mode", search.Item{StoreName: "x"}, MatchMode("seller"), "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.item, tt.mode, tt.value))
		})
	}
}

func TestPlainTitle(t *testing.T) {
	assert.Equal(t, "Steel Tumbler Pro", PlainTitle("Steel <b>Tumbler</b> Pro"))
	assert.Equal(t, "A<B 500ml", PlainTitle("A<B 500ml"))
	assert.Equal(t, "Tom & Jerry", PlainTitle("Tom &amp; Jerry"))
	assert.Equal(t, "", PlainTitle(""))
}

func TestParseMatchMode(t *testing.T) {
	m, err := ParseMatchMode("Mall")
	require.NoError(t, err)
	assert.Equal(t, MatchStore, m)

	m, err = ParseMatchMode("both")
	require.NoError(t, err)
	assert.Equal(t, MatchBoth, m)

	_, err = ParseMatchMode("seller")
	assert.Error(t, err)
}

func TestRank(t *testing.T) {
	assert.False(t, NotFound.Found())
	assert.Equal(t, NotFound, At(0))
	assert.Equal(t, NotFound, Rank{})
	assert.Nil(t, NotFound.Nullable())
	assert.Equal(t, "unranked", NotFound.String())

	r := At(42)
	pos, ok := r.Position()
	assert.True(t, ok)
	assert.Equal(t, 42, pos)
	require.NotNil(t, r.Nullable())
	assert.Equal(t, 42, *r.Nullable())
	assert.Equal(t, r, FromNullable(r.Nullable()))
	assert.Equal(t, NotFound, FromNullable(nil))
	assert.Equal(t, "42", r.String())
}
