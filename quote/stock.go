package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Stock is one equity quote from the exchange feed.
type Stock struct {
	Symbol string  `json:"stock"`
	Name   string  `json:"name"`
	Close  float64 `json:"close"`
	Change float64 `json:"change"`
}

type stockAPIResponse struct {
	Data struct {
		Stocks []Stock `json:"stocks"`
	} `json:"data"`
}

var (
	stocksBaseURL     = envOr("STOCKS_API_URL", "https://b3api.me")
	contentTypeHeader = "Content-Type"
)

// DefaultStocks is shown when a user has no stock favorites yet.
var DefaultStocks = []string{"BBAS3", "PETR3", "VALE3"}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// FetchStock returns the quote for one symbol.
func FetchStock(ctx context.Context, symbol string) (*Stock, error) {
	var stock Stock
	if err := getJSON(ctx, fmt.Sprintf("%s/api/quote/%s", stocksBaseURL, symbol), &stock); err != nil {
		return nil, err
	}
	return &stock, nil
}

// FetchStocks resolves quotes for a favorite set, skipping none: a
// single failing symbol fails the whole read so the caller can fall
// back to defaults.
func FetchStocks(ctx context.Context, symbols []string) ([]Stock, error) {
	stocks := make([]Stock, 0, len(symbols))
	for _, symbol := range symbols {
		stock, err := FetchStock(ctx, symbol)
		if err != nil {
			return nil, err
		}
		stocks = append(stocks, *stock)
	}
	return stocks, nil
}

// ListStocks returns the full exchange listing.
func ListStocks(ctx context.Context) ([]Stock, error) {
	var resp stockAPIResponse
	if err := getJSON(ctx, stocksBaseURL+"/api/quote/result", &resp); err != nil {
		return nil, err
	}
	return resp.Data.Stocks, nil
}

func getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add(contentTypeHeader, "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
