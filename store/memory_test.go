package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAddAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Add(ctx, "users", map[string]any{"name": "Ana", "email": "ana@x.com"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := m.Get(ctx, "users", id)
	require.NoError(t, err)
	assert.Equal(t, "Ana", doc.Data["name"])

	_, err = m.Get(ctx, "users", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryServerTimestamp(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	fixed := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return fixed })

	id, err := m.Add(ctx, "messages", map[string]any{
		"text":      "oi",
		"createdAt": ServerTimestamp(),
		"user":      map[string]any{"joinedAt": ServerTimestamp()},
	})
	require.NoError(t, err)

	doc, err := m.Get(ctx, "messages", id)
	require.NoError(t, err)
	assert.Equal(t, fixed, doc.Data["createdAt"])
	user := doc.Data["user"].(map[string]any)
	assert.Equal(t, fixed, user["joinedAt"])
}

func TestMemoryQueryFiltersOrderLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tick := 0
	m.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	for i, owner := range []string{"a@x.com", "a@x.com", "a@x.com", "b@x.com"} {
		_, err := m.Add(ctx, "stockFavorites", map[string]any{
			"user":      map[string]any{"id": owner},
			"stockId":   []string{"PETR3", "VALE3", "BBAS3", "ITUB4"}[i],
			"createdAt": ServerTimestamp(),
		})
		require.NoError(t, err)
	}

	docs, err := m.GetAll(ctx, Query{
		Path:    "stockFavorites",
		Filters: []Filter{{Path: "user.id", Op: OpEqual, Value: "a@x.com"}},
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   2,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	first := docs[0].Data["createdAt"].(time.Time)
	second := docs[1].Data["createdAt"].(time.Time)
	assert.True(t, first.After(second), "expected newest first")
}

func TestMemoryArrayContains(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Add(ctx, "privateChats", map[string]any{
		"participants": []any{"a@x.com", "b@x.com"},
	})
	require.NoError(t, err)
	_, err = m.Add(ctx, "privateChats", map[string]any{
		"participants": []any{"b@x.com", "c@x.com"},
	})
	require.NoError(t, err)

	docs, err := m.GetAll(ctx, Query{
		Path:    "privateChats",
		Filters: []Filter{{Path: "participants", Op: OpArrayContains, Value: "a@x.com"}},
	})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestMemoryArrayUnionAndRemove(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Add(ctx, "users", map[string]any{"friendlist": []any{"u1"}})
	require.NoError(t, err)

	require.NoError(t, m.Update(ctx, "users", id, []Update{
		{Path: "friendlist", Kind: UpdateArrayUnion, Value: "u2"},
		{Path: "friendlist", Kind: UpdateArrayUnion, Value: "u2"}, // no duplicate
	}))
	doc, err := m.Get(ctx, "users", id)
	require.NoError(t, err)
	assert.Equal(t, []any{"u1", "u2"}, doc.Data["friendlist"])

	require.NoError(t, m.Update(ctx, "users", id, []Update{
		{Path: "friendlist", Kind: UpdateArrayRemove, Value: "u1"},
	}))
	doc, err = m.Get(ctx, "users", id)
	require.NoError(t, err)
	assert.Equal(t, []any{"u2"}, doc.Data["friendlist"])
}

func TestMemoryApplyAllMissingDoc(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Add(ctx, "users", map[string]any{"friendlist": []any{}})
	require.NoError(t, err)

	err = m.ApplyAll(ctx, []Write{
		{Collection: "users", DocID: id, Updates: []Update{
			{Path: "friendlist", Kind: UpdateArrayUnion, Value: "u2"},
		}},
		{Collection: "users", DocID: "missing", Updates: []Update{
			{Path: "friendlist", Kind: UpdateArrayUnion, Value: "u1"},
		}},
	})
	require.ErrorIs(t, err, ErrNotFound)

	// the valid half must not have been applied
	doc, err := m.Get(ctx, "users", id)
	require.NoError(t, err)
	assert.Empty(t, doc.Data["friendlist"])
}

func TestMemoryApplyAllAtomicUnderConcurrentDelete(t *testing.T) {
	ctx := context.Background()

	// Race a Delete of the second target against the commit. Whichever
	// wins, the first target must never end up mutated by a failed
	// commit.
	for i := 0; i < 200; i++ {
		m := NewMemory()
		id1, err := m.Add(ctx, "users", map[string]any{"friendlist": []any{}})
		require.NoError(t, err)
		id2, err := m.Add(ctx, "users", map[string]any{"friendlist": []any{}})
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = m.Delete(ctx, "users", id2)
		}()

		err = m.ApplyAll(ctx, []Write{
			{Collection: "users", DocID: id1, Updates: []Update{
				{Path: "friendlist", Kind: UpdateArrayUnion, Value: "u9"},
			}},
			{Collection: "users", DocID: id2, Updates: []Update{
				{Path: "friendlist", Kind: UpdateArrayUnion, Value: "u9"},
			}},
		})
		<-done

		doc, getErr := m.Get(ctx, "users", id1)
		require.NoError(t, getErr)
		applied := len(doc.Data["friendlist"].([]any)) == 1
		if err != nil {
			require.ErrorIs(t, err, ErrNotFound)
			assert.False(t, applied, "failed commit must not touch the surviving document")
		} else {
			assert.True(t, applied)
		}
	}
}

func TestMemorySubscribeDeliversInitialAndChanges(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var emissions [][]Document
	cancel, err := m.Subscribe(ctx, Query{Path: "chats"}, func(_ context.Context, docs []Document) {
		emissions = append(emissions, docs)
	})
	require.NoError(t, err)
	require.Len(t, emissions, 1, "initial snapshot expected")
	assert.Empty(t, emissions[0])

	_, err = m.Add(ctx, "chats", map[string]any{"text": "hello"})
	require.NoError(t, err)
	require.Len(t, emissions, 2)
	assert.Len(t, emissions[1], 1)

	cancel()
	_, err = m.Add(ctx, "chats", map[string]any{"text": "after cancel"})
	require.NoError(t, err)
	assert.Len(t, emissions, 2, "no emissions after cancel")
	assert.Zero(t, m.SubscriberCount(""))
}

func TestMemorySubscriberCountByPath(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	c1, err := m.Subscribe(ctx, Query{Path: "a"}, func(context.Context, []Document) {})
	require.NoError(t, err)
	c2, err := m.Subscribe(ctx, Query{Path: "b"}, func(context.Context, []Document) {})
	require.NoError(t, err)

	assert.Equal(t, 2, m.SubscriberCount(""))
	assert.Equal(t, 1, m.SubscriberCount("a"))

	c1()
	c2()
	assert.Zero(t, m.SubscriberCount(""))
}
