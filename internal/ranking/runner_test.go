package ranking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-rank-tracker/internal/search"
)

type scriptedResolver struct {
	byKeyword map[string]func() (Result, error)
	seen      []string
}

func (s *scriptedResolver) Resolve(_ context.Context, req Request) (Result, error) {
	s.seen = append(s.seen, req.Keyword)
	if fn, ok := s.byKeyword[req.Keyword]; ok {
		return fn()
	}
	return Result{Rank: At(1)}, nil
}

func jobs(keywords ...string) []Job {
	out := make([]Job, 0, len(keywords))
	for i, kw := range keywords {
		out = append(out, Job{TargetID: int64(i + 1), Request: Request{Keyword: kw}})
	}
	return out
}

func TestRunAllFailureDoesNotAbortBatch(t *testing.T) {
	resolver := &scriptedResolver{byKeyword: map[string]func() (Result, error){
		"broken": func() (Result, error) { return Result{Rank: At(4)}, errors.New("upstream gone") },
		"panics": func() (Result, error) { panic("nil map") },
		"ranked": func() (Result, error) { return Result{Rank: At(7), StoreName: "s"}, nil },
	}}
	runner := NewRunner(RunnerOptions{}, resolver, zerolog.Nop())
	runner.sleep = func(context.Context, time.Duration) error { return nil }

	out, err := runner.RunAll(context.Background(), jobs("broken", "panics", "ranked"), nil)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, []string{"broken", "panics", "ranked"}, resolver.seen)
	assert.False(t, out[0].Result.Rank.Found())
	assert.False(t, out[1].Result.Rank.Found())
	assert.Equal(t, At(7), out[2].Result.Rank)
	assert.Equal(t, int64(3), out[2].TargetID)
	assert.Equal(t, "ranked", out[2].Keyword)
}

func TestRunAllNotConfiguredAbortsBatch(t *testing.T) {
	resolver := &scriptedResolver{byKeyword: map[string]func() (Result, error){
		"first": func() (Result, error) { return Result{}, search.ErrNotConfigured },
	}}
	runner := NewRunner(RunnerOptions{}, resolver, zerolog.Nop())
	runner.sleep = func(context.Context, time.Duration) error { return nil }

	out, err := runner.RunAll(context.Background(), jobs("first", "second"), nil)
	require.ErrorIs(t, err, search.ErrNotConfigured)
	assert.Empty(t, out)
	assert.Equal(t, []string{"first"}, resolver.seen)
}

func TestRunAllProgressAndPacing(t *testing.T) {
	resolver := &scriptedResolver{}
	runner := NewRunner(RunnerOptions{TargetDelay: 300 * time.Millisecond}, resolver, zerolog.Nop())
	rec := &sleepRecorder{}
	runner.sleep = rec.sleep

	var events []Progress
	out, err := runner.RunAll(context.Background(), jobs("a", "b", "c"), func(p Progress) {
		events = append(events, p)
	})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, []Progress{
		{Index: 0, Total: 3, Keyword: "a"},
		{Index: 1, Total: 3, Keyword: "b"},
		{Index: 2, Total: 3, Keyword: "c"},
		{Index: 3, Total: 3, Done: true},
	}, events)
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 300 * time.Millisecond}, rec.sleeps)
}

func TestRunAllEmpty(t *testing.T) {
	runner := NewRunner(RunnerOptions{}, &scriptedResolver{}, zerolog.Nop())

	var done bool
	out, err := runner.RunAll(context.Background(), nil, func(p Progress) { done = p.Done })
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.True(t, done)
}

func TestRunAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	resolver := &scriptedResolver{byKeyword: map[string]func() (Result, error){
		"b": func() (Result, error) {
			cancel()
			return Result{}, ctx.Err()
		},
	}}
	runner := NewRunner(RunnerOptions{}, resolver, zerolog.Nop())
	runner.sleep = func(c context.Context, _ time.Duration) error { return c.Err() }

	out, err := runner.RunAll(ctx, jobs("a", "b", "c"), nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Keyword)
}
