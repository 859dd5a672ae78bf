package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abarbosa/fintalk/store"
)

// Collection holds the market performance indicators written by the
// prediction job. The home screen renders the newest one as the
// "Indicador de Mercado" card.
const Collection = "predictAnalysis"

// Trend is the coarse direction bucket the card is colored by.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// Performance is one market indicator document.
type Performance struct {
	ID             string
	Tendency       string
	Impact         string
	Interpretation string
	CreatedAt      time.Time
}

// Direction buckets the free-form tendency text into a Trend.
func (p Performance) Direction() Trend {
	t := strings.ToUpper(p.Tendency)
	switch {
	case strings.Contains(t, "POSITIVO"):
		return TrendUp
	case strings.Contains(t, "NEGATIVO"):
		return TrendDown
	default:
		return TrendFlat
	}
}

func latestQuery() store.Query {
	return store.Query{
		Path:    Collection,
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   1,
	}
}

// Latest returns the newest market indicator.
func Latest(ctx context.Context, s store.Store) (*Performance, error) {
	docs, err := s.GetAll(ctx, latestQuery())
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no performance analysis available")
	}
	p := decode(docs[0])
	return &p, nil
}

// Watch runs fn with the newest indicator now and after every refresh,
// until the returned CancelFunc is called. Empty emissions are skipped,
// so the card keeps showing the previous indicator while a new one is
// being written.
func Watch(ctx context.Context, s store.Store, fn func(Performance)) (store.CancelFunc, error) {
	return s.Subscribe(ctx, latestQuery(), func(_ context.Context, docs []store.Document) {
		if len(docs) == 0 {
			return
		}
		fn(decode(docs[0]))
	})
}

func decode(doc store.Document) Performance {
	p := Performance{ID: doc.ID}
	if createdAt, ok := doc.Data["createdAt"].(time.Time); ok {
		p.CreatedAt = createdAt
	}
	if a, ok := doc.Data["analysis"].(map[string]any); ok {
		p.Tendency, _ = a["tendencia"].(string)
		p.Impact, _ = a["impacto"].(string)
		p.Interpretation, _ = a["interpretacao"].(string)
	}
	return p
}
