package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrRateLimited marks a definitive rate-limit response from the provider.
var ErrRateLimited = errors.New("search: rate limited")

// ErrNotConfigured marks a client that cannot issue requests at all.
var ErrNotConfigured = errors.New("search: client credentials not configured")

// SortMode orders the provider's result stream.
type SortMode string

const (
	SortRelevance SortMode = "relevance"
	SortDate      SortMode = "date"
	SortPriceAsc  SortMode = "price-asc"
	SortPriceDesc SortMode = "price-desc"
)

// ParseSortMode accepts the canonical names and the provider's short codes.
func ParseSortMode(v string) (SortMode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "relevance", "sim":
		return SortRelevance, nil
	case "date":
		return SortDate, nil
	case "price-asc", "asc":
		return SortPriceAsc, nil
	case "price-desc", "dsc":
		return SortPriceDesc, nil
	default:
		return "", fmt.Errorf("unknown sort mode %q", v)
	}
}

func (m SortMode) apiValue() string {
	switch m {
	case SortDate:
		return "date"
	case SortPriceAsc:
		return "asc"
	case SortPriceDesc:
		return "dsc"
	default:
		return "sim"
	}
}

// Query addresses one page of results. Start is 1-based.
type Query struct {
	Keyword string
	Start   int
	Display int
	Sort    SortMode
}

// Item is a single entry of a result page.
type Item struct {
	Title     string
	StoreName string
	Price     int64
	Link      string
	ProductID string
}

// Page is one block of the ranked result stream.
type Page struct {
	Total int
	Start int
	Items []Item
}

// Searcher fetches a page of ranked shopping results.
type Searcher interface {
	Search(ctx context.Context, q Query) (Page, error)
}

// StatusError reports a non-200 provider response.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("search api error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("search api error (%d): %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("search api error (%d)", e.StatusCode)
	}
}

// Is lets errors.Is(err, ErrRateLimited) see through a 429 response.
func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}
