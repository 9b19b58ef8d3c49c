package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Dispatch is everything a single notification carries.
type Dispatch struct {
	CheckedAt time.Time
	Proposals []Proposal
	// Note is appended verbatim, e.g. to mark a test notification.
	Note string
}

// Notifier delivers a dispatch. One call per batch.
type Notifier interface {
	Notify(ctx context.Context, d Dispatch) error
}

// TelegramNotifier pushes the dispatch through the Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the plain-text rendering.
func (n *TelegramNotifier) Notify(ctx context.Context, d Dispatch) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderText(d),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return errors.New("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Int("alerts", len(d.Proposals)).
		Msg("alert sent (telegram)")
	return nil
}

// Subject is the one-line summary used by mail and titled transports.
func Subject(d Dispatch) string {
	return fmt.Sprintf("[Rank alert] %d rank change(s) detected", len(d.Proposals))
}

// RenderText is the plain-text body shared by chat transports.
func RenderText(d Dispatch) string {
	p := message.NewPrinter(language.Korean)

	var b strings.Builder
	b.WriteString(Subject(d))
	b.WriteString("\n")
	if !d.CheckedAt.IsZero() {
		fmt.Fprintf(&b, "Checked: %s\n", d.CheckedAt.Format("2006-01-02 15:04 MST"))
	}
	for _, prop := range d.Proposals {
		fmt.Fprintf(&b, "\n- %s [%s]\n", prop.Keyword, prop.Kind.Label())
		fmt.Fprintf(&b, "  %s -> %s (%s)\n", prop.Previous, prop.Current, Movement(prop))
		if prop.Current.Found() {
			if prop.StoreName != "" {
				fmt.Fprintf(&b, "  %s\n", prop.StoreName)
			}
			if prop.Price > 0 {
				b.WriteString(p.Sprintf("  %d KRW\n", prop.Price))
			}
		}
	}
	if d.Note != "" {
		b.WriteString("\n")
		b.WriteString(d.Note)
	}
	return b.String()
}

// Movement renders a proposal's change with up/down arrows.
func Movement(p Proposal) string {
	switch p.Kind {
	case KindLost:
		return "out"
	case KindNewEntry:
		return "NEW"
	}
	switch {
	case p.Delta < 0:
		return fmt.Sprintf("▲%d", -p.Delta)
	case p.Delta > 0:
		return fmt.Sprintf("▼%d", p.Delta)
	default:
		return "-"
	}
}

var _ Notifier = (*TelegramNotifier)(nil)
