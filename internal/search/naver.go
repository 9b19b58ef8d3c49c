package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"shop-rank-tracker/internal/metrics"
)

const (
	defaultNaverBaseURL = "https://openapi.naver.com"
	shopSearchPath      = "/v1/search/shop.json"
	maxResponseBytes    = 4 << 20

	// MaxStart and MaxDisplay are the provider's paging limits.
	MaxStart   = 1000
	MaxDisplay = 100
)

// NaverOptions parameterise the Naver Shopping client.
type NaverOptions struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	Timeout       time.Duration
	UserAgent     string
	RatePerSecond float64
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Naver queries the Naver Shopping search API.
type Naver struct {
	opts    NaverOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// NewNaver constructs a Naver Shopping client.
func NewNaver(opts NaverOptions, m *metrics.Metrics, logger zerolog.Logger) *Naver {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultNaverBaseURL
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}

	return &Naver{
		opts:    opts,
		logger:  logger.With().Str("component", "naver_search").Logger(),
		client:  client,
		baseURL: baseURL,
		limiter: limiter,
		metrics: m,
	}
}

// Search fetches one page of shopping results.
func (n *Naver) Search(ctx context.Context, q Query) (Page, error) {
	if n.opts.ClientID == "" || n.opts.ClientSecret == "" {
		return Page{}, ErrNotConfigured
	}
	if strings.TrimSpace(q.Keyword) == "" {
		return Page{}, errors.New("search keyword is empty")
	}
	if q.Start < 1 || q.Start > MaxStart {
		return Page{}, fmt.Errorf("start %d outside 1..%d", q.Start, MaxStart)
	}
	display := q.Display
	if display <= 0 || display > MaxDisplay {
		display = MaxDisplay
	}

	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return Page{}, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	params := url.Values{}
	params.Set("query", q.Keyword)
	params.Set("display", strconv.Itoa(display))
	params.Set("start", strconv.Itoa(q.Start))
	params.Set("sort", q.Sort.apiValue())

	endpoint := n.baseURL + shopSearchPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Page{}, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Naver-Client-Id", n.opts.ClientID)
	req.Header.Set("X-Naver-Client-Secret", n.opts.ClientSecret)
	if ua := strings.TrimSpace(n.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.metrics.ObserveSearchRequest("network_error")
		return Page{}, fmt.Errorf("send search request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		n.metrics.ObserveSearchRequest("network_error")
		return Page{}, fmt.Errorf("read search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			n.metrics.ObserveSearchRequest("rate_limited")
		} else {
			n.metrics.ObserveSearchRequest("http_error")
		}
		return Page{}, parseHTTPError(resp.StatusCode, payload)
	}

	var body shopResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		n.metrics.ObserveSearchRequest("decode_error")
		return Page{}, fmt.Errorf("decode search response: %w", err)
	}
	n.metrics.ObserveSearchRequest("ok")

	page := Page{
		Total: body.Total,
		Start: body.Start,
		Items: make([]Item, 0, len(body.Items)),
	}
	if page.Start == 0 {
		page.Start = q.Start
	}
	for _, it := range body.Items {
		page.Items = append(page.Items, Item{
			Title:     it.Title,
			StoreName: it.MallName,
			Price:     parsePrice(it.LPrice),
			Link:      it.Link,
			ProductID: it.ProductID,
		})
	}

	n.logger.Debug().
		Str("keyword", q.Keyword).
		Int("start", q.Start).
		Int("items", len(page.Items)).
		Msg("search page fetched")
	return page, nil
}

type shopResponse struct {
	LastBuildDate string     `json:"lastBuildDate"`
	Total         int        `json:"total"`
	Start         int        `json:"start"`
	Display       int        `json:"display"`
	Items         []shopItem `json:"items"`
}

type shopItem struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	LPrice    string `json:"lprice"`
	MallName  string `json:"mallName"`
	ProductID string `json:"productId"`
}

type errorResponse struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    string `json:"errorCode"`
}

const maxErrorMessageRunes = 200

func parseHTTPError(status int, payload []byte) error {
	statusErr := &StatusError{StatusCode: status}
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && (apiErr.ErrorMessage != "" || apiErr.ErrorCode != "") {
		statusErr.Code = apiErr.ErrorCode
		statusErr.Message = apiErr.ErrorMessage
		return statusErr
	}
	if msg := strings.TrimSpace(string(payload)); msg != "" {
		if runes := []rune(msg); len(runes) > maxErrorMessageRunes {
			msg = string(runes[:maxErrorMessageRunes])
		}
		statusErr.Message = msg
	}
	return statusErr
}

func parsePrice(v string) int64 {
	price, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || price < 0 {
		return 0
	}
	return price
}

var _ Searcher = (*Naver)(nil)
