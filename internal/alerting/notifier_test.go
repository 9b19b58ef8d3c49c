package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-rank-tracker/internal/ranking"
)

func sampleDispatch() Dispatch {
	return Dispatch{
		CheckedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Proposals: []Proposal{
			{TargetID: 1, Keyword: "tumbler", Kind: KindImproved, Previous: ranking.At(12), Current: ranking.At(5), Delta: -7, StoreName: "MyShop", Price: 12900},
			{TargetID: 1, Keyword: "tumbler", Kind: KindEnteredTopTier, Previous: ranking.At(12), Current: ranking.At(5), Delta: -7},
		},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleDispatch()); err != nil {
		t.Fatalf("telegram Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "tumbler") {
		t.Fatalf("text should mention the keyword: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleDispatch()); err == nil {
		t.Fatal("ok=false should fail")
	}
}

func TestRenderText(t *testing.T) {
	text := RenderText(sampleDispatch())
	assert.Contains(t, text, "[Rank alert] 2 rank change(s) detected")
	assert.Contains(t, text, "12 -> 5 (▲7)")
	assert.Contains(t, text, "12,900 KRW")
	assert.Contains(t, text, "Entered top tier")
}

func TestEmailNotifier(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	send := func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		return nil
	}
	n := NewEmailNotifier(EmailOptions{
		Host:     "smtp.example.com",
		Username: "bot@example.com",
		Password: "app-password",
		To:       []string{"ops@example.com"},
	}, send, testLogger())

	require.NoError(t, n.Notify(context.Background(), sampleDispatch()))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "From: bot@example.com\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html")
	assert.Contains(t, gotMsg, "<td style=\"padding:10px;border-bottom:1px solid #e0e0e0\">tumbler</td>")
	assert.Contains(t, gotMsg, "▲7")
}

func TestEmailNotifierValidation(t *testing.T) {
	called := false
	send := func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}

	n := NewEmailNotifier(EmailOptions{Host: "smtp.example.com"}, send, testLogger())
	assert.Error(t, n.Notify(context.Background(), sampleDispatch()))

	n = NewEmailNotifier(EmailOptions{
		Host: "smtp.example.com", Username: "u", Password: "p", To: []string{"not-an-address"},
	}, send, testLogger())
	assert.Error(t, n.Notify(context.Background(), sampleDispatch()))
	assert.False(t, called)
}

func TestEmailNotifierSendError(t *testing.T) {
	n := NewEmailNotifier(EmailOptions{
		Host: "smtp.example.com", Username: "u@example.com", Password: "p", To: []string{"ops@example.com"},
	}, func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("535 auth failed")
	}, testLogger())

	err := n.Notify(context.Background(), sampleDispatch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "535")
}

func TestShoutrrrNotifierRejectsUnknownScheme(t *testing.T) {
	_, err := NewShoutrrrNotifier([]string{"nosuchservice://token@host"}, testLogger())
	assert.Error(t, err)

	_, err = NewShoutrrrNotifier(nil, testLogger())
	assert.Error(t, err)
}

type stubNotifier struct {
	err   error
	calls int
}

func (s *stubNotifier) Notify(context.Context, Dispatch) error {
	s.calls++
	return s.err
}

func TestMultiNotifier(t *testing.T) {
	ok := &stubNotifier{}
	bad := &stubNotifier{err: errors.New("down")}

	m := NewMultiNotifier(testLogger())
	m.Add("bad", bad)
	m.Add("ok", ok)
	require.NoError(t, m.Notify(context.Background(), sampleDispatch()))
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, []string{"bad", "ok"}, m.Channels())

	allBad := NewMultiNotifier(testLogger())
	allBad.Add("a", &stubNotifier{err: errors.New("a down")})
	allBad.Add("b", &stubNotifier{err: errors.New("b down")})
	err := allBad.Notify(context.Background(), sampleDispatch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a down")
	assert.Contains(t, err.Error(), "b down")

	assert.Error(t, NewMultiNotifier(testLogger()).Notify(context.Background(), sampleDispatch()))
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
