package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/abarbosa/fintalk/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func addIndicator(t *testing.T, m *store.Memory, tendency, impact string) {
	t.Helper()
	_, err := m.Add(context.Background(), Collection, map[string]any{
		"analysis": map[string]any{
			"tendencia":     tendency,
			"impacto":       impact,
			"interpretacao": "mercado reagindo a juros",
		},
		"createdAt": store.ServerTimestamp(),
	})
	require.NoError(t, err)
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	m := newTestStore(t)

	_, err := Latest(ctx, m)
	assert.ErrorContains(t, err, "no performance analysis")

	addIndicator(t, m, "POSITIVO", "alta moderada")
	addIndicator(t, m, "NEGATIVO", "queda forte")

	p, err := Latest(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "queda forte", p.Impact, "newest indicator wins")
	assert.Equal(t, "mercado reagindo a juros", p.Interpretation)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestWatch(t *testing.T) {
	ctx := context.Background()
	m := newTestStore(t)

	var got []Performance
	cancel, err := Watch(ctx, m, func(p Performance) {
		got = append(got, p)
	})
	require.NoError(t, err)
	assert.Empty(t, got, "empty collection emits nothing")

	addIndicator(t, m, "POSITIVO", "alta moderada")
	require.Len(t, got, 1)
	assert.Equal(t, "alta moderada", got[0].Impact)

	addIndicator(t, m, "NEGATIVO", "queda forte")
	require.Len(t, got, 2)
	assert.Equal(t, "queda forte", got[1].Impact)

	cancel()
	addIndicator(t, m, "NEUTRO", "estável")
	assert.Len(t, got, 2, "no emissions after cancel")
}

func TestDirection(t *testing.T) {
	tests := []struct {
		tendency string
		expected Trend
	}{
		{"POSITIVO", TrendUp},
		{"cenário positivo", TrendUp},
		{"NEGATIVO", TrendDown},
		{"levemente negativo", TrendDown},
		{"NEUTRO", TrendFlat},
		{"", TrendFlat},
	}

	for _, tt := range tests {
		t.Run(tt.tendency, func(t *testing.T) {
			p := Performance{Tendency: tt.tendency}
			assert.Equal(t, tt.expected, p.Direction())
		})
	}
}
