package markets

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-key", WithBaseURL(server.URL), WithRateLimit(100))
}

func TestGetRate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rates/USDTRY", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"pair":"USDTRY","price":41.25}`)
	})

	price, err := client.GetRate(context.Background(), "usdtry")
	require.NoError(t, err)
	assert.InDelta(t, 41.25, price, 1e-9)
}

func TestGetPrices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quotes", r.URL.Path)
		assert.Equal(t, "THYAO,BTC", r.URL.Query().Get("symbols"))
		fmt.Fprint(w, `[
			{"symbol":"THYAO","price":312.5,"currency":"TRY","daily_change_pct":1.8},
			{"symbol":"BTC","price":67000,"currency":"USD","daily_change_pct":-0.5},
			{"symbol":"BAD","price":0}
		]`)
	})

	quotes, err := client.GetPrices(context.Background(), []string{"THYAO", "BTC"})
	require.NoError(t, err)
	require.Len(t, quotes, 2, "zero-priced rows are dropped")
	assert.InDelta(t, 312.5, quotes["THYAO"].Price, 1e-9)
	assert.Equal(t, "USD", quotes["BTC"].Currency)
}

func TestGetPricesEmptyInput(t *testing.T) {
	client := NewClient("key")
	quotes, err := client.GetPrices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, quotes, "no instruments means no network call")
}

func TestGetHistoricalPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/historical/USDTRY", r.URL.Path)
		assert.Equal(t, "2025-03-15", r.URL.Query().Get("date"))
		fmt.Fprint(w, `{"symbol":"USDTRY","date":"2025-03-15","close":39.80}`)
	})

	ts := time.Date(2025, 3, 15, 14, 0, 0, 0, time.UTC)
	price, err := client.GetHistoricalPrice(context.Background(), "USDTRY", ts)
	require.NoError(t, err)
	assert.InDelta(t, 39.80, price, 1e-9)
}

func TestAPIErrorSurface(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	_, err := client.GetRate(context.Background(), "USDTRY")
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
