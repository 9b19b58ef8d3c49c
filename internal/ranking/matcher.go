package ranking

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/k3a/html2text"

	"shop-rank-tracker/internal/search"
)

// MatchMode selects which item field identifies the target.
type MatchMode string

const (
	MatchStore MatchMode = "store"
	MatchTitle MatchMode = "title"
	MatchBoth  MatchMode = "both"
)

// ParseMatchMode accepts the canonical names; "mall" is kept as an alias of store.
func ParseMatchMode(v string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "store", "mall":
		return MatchStore, nil
	case "title":
		return MatchTitle, nil
	case "both":
		return MatchBoth, nil
	default:
		return "", fmt.Errorf("unknown match mode %q", v)
	}
}

// Matches reports whether item identifies the target described by mode and value.
// Comparison is a case-insensitive substring test over whitespace-normalized text;
// titles are stripped of markup first.
func Matches(item search.Item, mode MatchMode, value string) bool {
	needle := normalize(value)

	storeHit := func() bool {
		return strings.Contains(normalize(item.StoreName), needle)
	}
	titleHit := func() bool {
		return strings.Contains(normalize(PlainTitle(item.Title)), needle)
	}

	switch mode {
	case MatchStore:
		return storeHit()
	case MatchTitle:
		return titleHit()
	case MatchBoth:
		return storeHit() || titleHit()
	default:
		return false
	}
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// PlainTitle removes well-formed tags and decodes entities. A stray '<' without a
// closing '>' is kept as text.
func PlainTitle(title string) string {
	if title == "" {
		return ""
	}
	return html2text.HTMLEntitiesToText(tagPattern.ReplaceAllString(title, ""))
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
