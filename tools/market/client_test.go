package market_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/scout/retry"
	market "github.com/c360studio/scout/tools/market"
)

const chartBody = `{
	"chart": {
		"result": [{
			"meta": {
				"symbol": "DDOG",
				"currency": "USD",
				"regularMarketPrice": 120.5,
				"chartPreviousClose": 118.2,
				"fiftyTwoWeekHigh": 138.8,
				"fiftyTwoWeekLow": 81.6
			}
		}]
	}
}`

const summaryBody = `{
	"quoteSummary": {
		"result": [{
			"financialData": {
				"financialCurrency": "USD",
				"totalRevenue": {"raw": 2128000000},
				"revenueGrowth": {"raw": 0.27},
				"grossMargins": {"raw": 0.806},
				"operatingMargins": {"raw": 0.021}
			},
			"summaryDetail": {
				"marketCap": {"raw": 39500000000}
			},
			"assetProfile": {
				"sector": "Technology",
				"industry": "Software - Application"
			}
		}]
	}
}`

// fastRetry keeps test backoff negligible.
func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func TestClient_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v8/finance/chart/DDOG")
		w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	client := market.NewClient(srv.URL, 5*time.Second, fastRetry(), nil)

	quote, err := client.Quote(context.Background(), "DDOG")
	require.NoError(t, err)

	assert.Equal(t, "DDOG", quote.Symbol)
	assert.Equal(t, "USD", quote.Currency)
	assert.InDelta(t, 120.5, quote.Price, 0.001)
	assert.InDelta(t, 138.8, quote.FiftyTwoWeekHigh, 0.001)
}

func TestClient_Financials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v10/finance/quoteSummary/CSCO")
		w.Write([]byte(summaryBody))
	}))
	defer srv.Close()

	client := market.NewClient(srv.URL, 5*time.Second, fastRetry(), nil)

	fin, err := client.Financials(context.Background(), "CSCO")
	require.NoError(t, err)

	assert.InDelta(t, 2.128e9, fin.TotalRevenue, 1)
	assert.InDelta(t, 0.27, fin.RevenueGrowth, 0.001)
	assert.InDelta(t, 3.95e10, fin.MarketCap, 1)
	assert.Equal(t, "Technology", fin.Sector)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	client := market.NewClient(srv.URL, 5*time.Second, fastRetry(), nil)

	quote, err := client.Quote(context.Background(), "DDOG")
	require.NoError(t, err)
	assert.InDelta(t, 120.5, quote.Price, 0.001)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_UnknownSymbolNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := market.NewClient(srv.URL, 5*time.Second, fastRetry(), nil)

	_, err := client.Quote(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown symbol")
	assert.Equal(t, int32(1), attempts.Load(), "fatal errors must not be retried")
}

func TestClient_ExhaustedRetriesReturnLastError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := market.NewClient(srv.URL, 5*time.Second, fastRetry(), nil)

	_, err := client.Quote(context.Background(), "DDOG")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_EmptyResultIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"chart": {"result": []}}`))
	}))
	defer srv.Close()

	client := market.NewClient(srv.URL, 5*time.Second, fastRetry(), nil)

	_, err := client.Quote(context.Background(), "DDOG")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data")
}

func TestQuoteTool_RendersQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	client := market.NewClient(srv.URL, 5*time.Second, fastRetry(), nil)
	tool := market.NewQuoteTool(client)

	assert.Equal(t, "market_quote", tool.Name())

	out, err := tool.Invoke(context.Background(), map[string]string{"symbol": "ddog"})
	require.NoError(t, err)
	assert.Contains(t, out, "DDOG")
	assert.Contains(t, out, "120.50 USD")
	assert.Contains(t, out, "52-week range")
}

func TestFinancialsTool_RendersFormattedFigures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(summaryBody))
	}))
	defer srv.Close()

	client := market.NewClient(srv.URL, 5*time.Second, fastRetry(), nil)
	tool := market.NewFinancialsTool(client)

	assert.Equal(t, "market_financials", tool.Name())

	out, err := tool.Invoke(context.Background(), map[string]string{"symbol": "DDOG"})
	require.NoError(t, err)
	assert.Contains(t, out, "$39.50B")
	assert.Contains(t, out, "$2.13B")
	assert.Contains(t, out, "27.0%")
	assert.Contains(t, out, "Technology")
}

func TestTools_MissingSymbolIsError(t *testing.T) {
	client := market.NewClient("http://unused.invalid", time.Second, fastRetry(), nil)

	_, err := market.NewQuoteTool(client).Invoke(context.Background(), nil)
	require.Error(t, err)

	_, err = market.NewFinancialsTool(client).Invoke(context.Background(), map[string]string{})
	require.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1.234e12, "$1.23T"},
		{3.95e10, "$39.50B"},
		{8.7e8, "$870.00M"},
		{12500, "$12.50K"},
		{42.5, "$42.50"},
		{-2.1e9, "-$2.10B"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, market.FormatMoney(tt.in))
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "12.3%", market.FormatPercent(0.123))
	assert.Equal(t, "-4.5%", market.FormatPercent(-0.045))
	assert.Equal(t, "80.6%", market.FormatPercent(0.806))
}
