package favorites

import (
	"context"
	"testing"
	"time"

	"github.com/abarbosa/fintalk/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "a@x.com"

func newTestStore(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tick := 0
	m.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})
	return m
}

func newSynchronizer(t *testing.T, m *store.Memory, cache Cache) *Synchronizer {
	t.Helper()
	syn := NewSynchronizer(m, cache, Stocks(), owner)
	t.Cleanup(syn.Close)
	return syn
}

func TestToggleRequiresLoad(t *testing.T) {
	m := newTestStore(t)
	syn := newSynchronizer(t, m, NewMemCache())

	_, err := syn.Toggle(context.Background(), "PETR3")
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestToggleAddAndRemove(t *testing.T) {
	ctx := context.Background()
	m := newTestStore(t)
	syn := newSynchronizer(t, m, NewMemCache())

	_, err := syn.Load(ctx)
	require.NoError(t, err)

	set, err := syn.Toggle(ctx, "PETR3")
	require.NoError(t, err)
	assert.Equal(t, []string{"PETR3"}, set)

	set, err = syn.Toggle(ctx, "PETR3")
	require.NoError(t, err)
	assert.Empty(t, set, "second toggle removes")
}

func TestToggleEnforcesLimit(t *testing.T) {
	ctx := context.Background()
	m := newTestStore(t)
	syn := newSynchronizer(t, m, NewMemCache())

	_, err := syn.Load(ctx)
	require.NoError(t, err)

	for _, id := range []string{"PETR3", "VALE3", "BBAS3"} {
		_, err := syn.Toggle(ctx, id)
		require.NoError(t, err)
	}

	set, err := syn.Toggle(ctx, "ITUB4")
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, []string{"PETR3", "VALE3", "BBAS3"}, set, "failed add must not change the set")

	// removing an existing favorite still works at the cap
	set, err = syn.Toggle(ctx, "VALE3")
	require.NoError(t, err)
	assert.Equal(t, []string{"PETR3", "BBAS3"}, set)
}

func TestLoadPrefersCache(t *testing.T) {
	ctx := context.Background()
	m := newTestStore(t)
	cache := NewMemCache()
	require.NoError(t, cache.Set(Stocks().CacheKey, `["WEGE3"]`))

	syn := newSynchronizer(t, m, cache)
	set, err := syn.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"WEGE3"}, set, "cached copy wins over remote")
}

func TestLoadFallsBackToRemote(t *testing.T) {
	ctx := context.Background()
	m := newTestStore(t)
	cache := NewMemCache()

	// four remote rows: the newest three survive the cap
	for _, id := range []string{"ITUB4", "PETR3", "VALE3", "BBAS3"} {
		_, err := m.Add(ctx, Stocks().Collection, map[string]any{
			"user":      map[string]any{"id": owner},
			"stockId":   id,
			"createdAt": store.ServerTimestamp(),
		})
		require.NoError(t, err)
	}
	// another account's rows must not leak in
	_, err := m.Add(ctx, Stocks().Collection, map[string]any{
		"user":      map[string]any{"id": "b@x.com"},
		"stockId":   "MGLU3",
		"createdAt": store.ServerTimestamp(),
	})
	require.NoError(t, err)

	syn := newSynchronizer(t, m, cache)
	set, err := syn.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BBAS3", "VALE3", "PETR3"}, set,
		"newest first, truncated to the cap")

	// the load must have seeded the cache
	raw, ok, err := cache.Get(Stocks().CacheKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["BBAS3","VALE3","PETR3"]`, raw)
}

func TestCloseIsIdempotent(t *testing.T) {
	m := newTestStore(t)
	syn := NewSynchronizer(m, NewMemCache(), Stocks(), owner)

	syn.Close()
	assert.NotPanics(t, syn.Close)
}

func TestRemoteRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestStore(t)
	cache := NewMemCache()

	syn := NewSynchronizer(m, cache, Stocks(), owner)
	_, err := syn.Load(ctx)
	require.NoError(t, err)
	for _, id := range []string{"PETR3", "VALE3", "BBAS3"} {
		_, err := syn.Toggle(ctx, id)
		require.NoError(t, err)
	}
	_, err = syn.Toggle(ctx, "VALE3") // remove again
	require.NoError(t, err)
	syn.Close() // drain the background writes

	// a fresh device with an empty cache reconstructs the set remotely
	cache.Clear()
	syn2 := newSynchronizer(t, m, cache)
	set, err := syn2.Load(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"PETR3", "BBAS3"}, set)
}
