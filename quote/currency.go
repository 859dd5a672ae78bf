package quote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abarbosa/fintalk/store"
)

// CoinCollection caches currency quotes in the document store, written
// by the sync job and read by the home screen.
const CoinCollection = "coins"

// DefaultCurrencies is shown when a user has no coin favorites yet.
var DefaultCurrencies = []string{"USD-BRL", "EUR-BRL", "BTC-BRL"}

var currencyBaseURL = envOr("CURRENCY_API_URL", "https://economia.awesomeapi.com.br")

// Currency is one currency-pair quote from the exchange-rate feed.
type Currency struct {
	Code      string `json:"code"`
	CodeIn    string `json:"codein"`
	Name      string `json:"name"`
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
	PctChange string `json:"pctChange"`
	High      string `json:"high"`
	Low       string `json:"low"`
}

// Pair is the "USD-BRL" style identifier used across the app.
func (c Currency) Pair() string {
	return c.Code + "-" + c.CodeIn
}

// FetchCurrency reads the live quote for a pair like "USD-BRL".
func FetchCurrency(ctx context.Context, pair string) (*Currency, error) {
	var resp map[string]Currency
	url := fmt.Sprintf("%s/json/last/%s", currencyBaseURL, pair)
	if err := getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	key := strings.ReplaceAll(pair, "-", "")
	currency, ok := resp[key]
	if !ok {
		return nil, fmt.Errorf("pair %s missing from response", pair)
	}
	return &currency, nil
}

// LatestCoin returns the newest cached quote for a pair from the coins
// collection, the read path the app uses instead of hitting the feed.
func LatestCoin(ctx context.Context, s store.Store, pair string) (*Currency, error) {
	docs, err := s.GetAll(ctx, store.Query{
		Path:    CoinCollection,
		Filters: []store.Filter{{Path: "code_codein", Op: store.OpEqual, Value: pair}},
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no cached quote for %s", pair)
	}
	return decodeCoin(docs[0]), nil
}

// SaveCoin writes a fresh quote into the coins collection.
func SaveCoin(ctx context.Context, s store.Store, c Currency) error {
	_, err := s.Add(ctx, CoinCollection, map[string]any{
		"code_codein": c.Pair(),
		"code":        c.Code,
		"codein":      c.CodeIn,
		"name":        c.Name,
		"bid":         c.Bid,
		"ask":         c.Ask,
		"pctChange":   c.PctChange,
		"high":        c.High,
		"low":         c.Low,
		"createdAt":   store.ServerTimestamp(),
	})
	return err
}

func decodeCoin(doc store.Document) *Currency {
	c := &Currency{}
	c.Code, _ = doc.Data["code"].(string)
	c.CodeIn, _ = doc.Data["codein"].(string)
	c.Name, _ = doc.Data["name"].(string)
	c.Bid, _ = doc.Data["bid"].(string)
	c.Ask, _ = doc.Data["ask"].(string)
	c.PctChange, _ = doc.Data["pctChange"].(string)
	c.High, _ = doc.Data["high"].(string)
	c.Low, _ = doc.Data["low"].(string)
	return c
}

// Stale reports whether a cached quote document is older than maxAge.
func Stale(doc store.Document, maxAge time.Duration, now time.Time) bool {
	createdAt, ok := doc.Data["createdAt"].(time.Time)
	if !ok {
		return true
	}
	return now.Sub(createdAt) > maxAge
}
