package quote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubStocksAPI(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	prev := stocksBaseURL
	stocksBaseURL = srv.URL
	t.Cleanup(func() { stocksBaseURL = prev })
}

func TestFetchStock(t *testing.T) {
	stubStocksAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/quote/PETR3", r.URL.Path)
		w.Write([]byte(`{"stock":"PETR3","name":"PETROBRAS","close":38.52,"change":1.27}`))
	})

	stock, err := FetchStock(context.Background(), "PETR3")
	require.NoError(t, err)
	assert.Equal(t, "PETR3", stock.Symbol)
	assert.Equal(t, "PETROBRAS", stock.Name)
	assert.InDelta(t, 38.52, stock.Close, 0.001)
	assert.InDelta(t, 1.27, stock.Change, 0.001)
}

func TestFetchStockBadStatus(t *testing.T) {
	stubStocksAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := FetchStock(context.Background(), "PETR3")
	assert.ErrorContains(t, err, "unexpected status code: 502")
}

func TestFetchStocksFailsWhole(t *testing.T) {
	stubStocksAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/quote/VALE3" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"stock":"PETR3","close":38.52}`))
	})

	_, err := FetchStocks(context.Background(), []string{"PETR3", "VALE3"})
	assert.Error(t, err, "one failing symbol fails the read")
}

func TestListStocks(t *testing.T) {
	stubStocksAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/quote/result", r.URL.Path)
		w.Write([]byte(`{"data":{"stocks":[{"stock":"BBAS3"},{"stock":"VALE3"}]}}`))
	})

	stocks, err := ListStocks(context.Background())
	require.NoError(t, err)
	require.Len(t, stocks, 2)
	assert.Equal(t, "BBAS3", stocks[0].Symbol)
}
