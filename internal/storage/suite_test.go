package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-rank-tracker/internal/ranking"
	"shop-rank-tracker/internal/search"
)

// runStoreSuite exercises the Store contract against any driver.
func runStoreSuite(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	var tumbler, mug, paused Target

	t.Run("create and get targets", func(t *testing.T) {
		var err error
		tumbler, err = store.CreateTarget(ctx, Target{Keyword: "tumbler", MatchMode: ranking.MatchStore, MatchValue: "MyShop", Sort: search.SortRelevance, Active: true})
		require.NoError(t, err)
		require.NotZero(t, tumbler.ID)
		assert.False(t, tumbler.CreatedAt.IsZero())

		mug, err = store.CreateTarget(ctx, Target{Keyword: "mug", MatchMode: ranking.MatchTitle, MatchValue: "ceramic", Sort: search.SortPriceAsc, Active: true})
		require.NoError(t, err)
		paused, err = store.CreateTarget(ctx, Target{Keyword: "paused", MatchMode: ranking.MatchBoth, MatchValue: "x", Sort: search.SortDate, Active: false})
		require.NoError(t, err)

		got, err := store.GetTarget(ctx, mug.ID)
		require.NoError(t, err)
		assert.Equal(t, "mug", got.Keyword)
		assert.Equal(t, ranking.MatchTitle, got.MatchMode)
		assert.Equal(t, search.SortPriceAsc, got.Sort)

		_, err = store.GetTarget(ctx, 999999)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = store.CreateTarget(ctx, Target{Keyword: "", MatchMode: ranking.MatchStore, MatchValue: "x", Sort: search.SortRelevance})
		assert.Error(t, err)
	})

	t.Run("list targets", func(t *testing.T) {
		all, err := store.ListTargets(ctx, false)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		active, err := store.ListTargets(ctx, true)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, tumbler.ID, active[0].ID)
		assert.Equal(t, mug.ID, active[1].ID)
	})

	t.Run("update target", func(t *testing.T) {
		value := "MyShop Official"
		updated, err := store.UpdateTarget(ctx, tumbler.ID, TargetPatch{MatchValue: &value})
		require.NoError(t, err)
		assert.Equal(t, "MyShop Official", updated.MatchValue)
		assert.Equal(t, "tumbler", updated.Keyword)
		assert.False(t, updated.UpdatedAt.Before(tumbler.UpdatedAt))

		bad := ranking.MatchMode("seller")
		_, err = store.UpdateTarget(ctx, tumbler.ID, TargetPatch{MatchMode: &bad})
		assert.Error(t, err)

		_, err = store.UpdateTarget(ctx, 999999, TargetPatch{MatchValue: &value})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("latest observations", func(t *testing.T) {
		latest, err := store.LatestObservations(ctx)
		require.NoError(t, err)
		require.Len(t, latest, 2)
		assert.Nil(t, latest[0].Current)
		assert.Equal(t, ranking.NotFound, latest[0].CurrentRank())

		_, err = store.AppendObservation(ctx, Observation{TargetID: tumbler.ID, Rank: ranking.At(12), Title: "t", StoreName: "MyShop", Price: 9900, ObservedAt: base})
		require.NoError(t, err)
		_, err = store.AppendObservation(ctx, Observation{TargetID: tumbler.ID, Rank: ranking.At(5), Title: "t", StoreName: "MyShop", Price: 9800, ObservedAt: base.Add(10 * time.Minute)})
		require.NoError(t, err)
		_, err = store.AppendObservation(ctx, Observation{TargetID: mug.ID, Rank: ranking.NotFound, ObservedAt: base.Add(5 * time.Minute)})
		require.NoError(t, err)
		_, err = store.AppendObservation(ctx, Observation{TargetID: paused.ID, Rank: ranking.At(1), ObservedAt: base})
		require.NoError(t, err)

		latest, err = store.LatestObservations(ctx)
		require.NoError(t, err)
		require.Len(t, latest, 2)

		require.NotNil(t, latest[0].Current)
		require.NotNil(t, latest[0].Previous)
		assert.Equal(t, ranking.At(5), latest[0].CurrentRank())
		assert.Equal(t, ranking.At(12), latest[0].PreviousRank())
		assert.Equal(t, int64(9800), latest[0].Current.Price)
		assert.True(t, latest[0].Current.ObservedAt.Equal(base.Add(10*time.Minute)))

		require.NotNil(t, latest[1].Current)
		assert.Nil(t, latest[1].Previous)
		assert.False(t, latest[1].CurrentRank().Found())
	})

	t.Run("observation validation", func(t *testing.T) {
		_, err := store.AppendObservation(ctx, Observation{TargetID: tumbler.ID, Price: -1, ObservedAt: base})
		assert.Error(t, err)
		_, err = store.AppendObservation(ctx, Observation{TargetID: tumbler.ID})
		assert.Error(t, err)
	})

	t.Run("history", func(t *testing.T) {
		hist, err := store.TargetHistory(ctx, tumbler.ID, base.Add(-time.Minute))
		require.NoError(t, err)
		require.Len(t, hist, 2)
		assert.Equal(t, ranking.At(12), hist[0].Rank)
		assert.Equal(t, ranking.At(5), hist[1].Rank)

		hist, err = store.TargetHistory(ctx, tumbler.ID, base.Add(time.Minute))
		require.NoError(t, err)
		assert.Len(t, hist, 1)

		all, err := store.History(ctx, base.Add(-time.Minute))
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, "mug", all[2].Keyword)
		assert.Equal(t, ranking.NotFound, all[2].Rank)
	})

	t.Run("alert events", func(t *testing.T) {
		_, err := store.AppendAlertEvent(ctx, AlertEvent{TargetID: tumbler.ID, Kind: "rank-improved", Message: "tumbler: -7", SentAt: base})
		require.NoError(t, err)
		_, err = store.AppendAlertEvent(ctx, AlertEvent{TargetID: tumbler.ID, Kind: "entered-top-tier", Message: "tumbler: -7", SentAt: base.Add(time.Second)})
		require.NoError(t, err)

		events, err := store.ListAlertEvents(ctx, 1)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "entered-top-tier", events[0].Kind)
		assert.Equal(t, "tumbler", events[0].Keyword)
	})

	t.Run("settings", func(t *testing.T) {
		_, ok, err := store.GetSetting(ctx, "alerts_enabled")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.SetSetting(ctx, "alerts_enabled", "0"))
		require.NoError(t, store.SetSetting(ctx, "alerts_enabled", "1"))
		v, ok, err := store.GetSetting(ctx, "alerts_enabled")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "1", v)

		all, err := store.AllSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"alerts_enabled": "1"}, all)
	})

	t.Run("advisory lock", func(t *testing.T) {
		unlock, ok, err := store.TryAdvisoryLock(ctx, 42)
		require.NoError(t, err)
		require.True(t, ok)
		unlock()

		unlock, ok, err = store.TryAdvisoryLock(ctx, 42)
		require.NoError(t, err)
		require.True(t, ok)
		unlock()
	})

	t.Run("delete cascades", func(t *testing.T) {
		require.NoError(t, store.DeleteTarget(ctx, tumbler.ID))
		assert.ErrorIs(t, store.DeleteTarget(ctx, tumbler.ID), ErrNotFound)

		hist, err := store.TargetHistory(ctx, tumbler.ID, time.Time{})
		require.NoError(t, err)
		assert.Empty(t, hist)

		events, err := store.ListAlertEvents(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
