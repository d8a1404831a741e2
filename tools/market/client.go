// Package market provides market data lookups (quotes and financial
// statements) over a Yahoo-compatible JSON API, plus the agent tools
// that expose them to the metrics sub-task.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/c360studio/scout/retry"
)

// maxBodySize caps market API response bodies.
const maxBodySize = 2 * 1024 * 1024

// Quote is a point-in-time market snapshot for one symbol.
type Quote struct {
	Symbol           string  `json:"symbol"`
	Currency         string  `json:"currency"`
	Price            float64 `json:"price"`
	PreviousClose    float64 `json:"previous_close"`
	FiftyTwoWeekHigh float64 `json:"fifty_two_week_high"`
	FiftyTwoWeekLow  float64 `json:"fifty_two_week_low"`
}

// Financials summarizes one symbol's financial statements.
type Financials struct {
	Symbol          string  `json:"symbol"`
	Currency        string  `json:"currency"`
	MarketCap       float64 `json:"market_cap"`
	TotalRevenue    float64 `json:"total_revenue"`
	RevenueGrowth   float64 `json:"revenue_growth"`
	GrossMargin     float64 `json:"gross_margin"`
	OperatingMargin float64 `json:"operating_margin"`
	Sector          string  `json:"sector,omitempty"`
	Industry        string  `json:"industry,omitempty"`
}

// Client calls the market data API. Each lookup is one external call
// with one retry budget.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryCfg   retry.Config
	logger     *slog.Logger
}

// NewClient creates a market data client against the given base URL.
func NewClient(baseURL string, timeout time.Duration, retryCfg retry.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		retryCfg:   retryCfg,
		logger:     logger,
	}
}

// chartResponse is the wire shape of the chart endpoint.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"chartPreviousClose"`
				FiftyTwoWeekHigh   float64 `json:"fiftyTwoWeekHigh"`
				FiftyTwoWeekLow    float64 `json:"fiftyTwoWeekLow"`
			} `json:"meta"`
		} `json:"result"`
	} `json:"chart"`
}

// rawValue is Yahoo's {raw, fmt} number wrapper; only raw is used.
type rawValue struct {
	Raw float64 `json:"raw"`
}

// summaryResponse is the wire shape of the quoteSummary endpoint.
type summaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			FinancialData struct {
				FinancialCurrency string   `json:"financialCurrency"`
				TotalRevenue      rawValue `json:"totalRevenue"`
				RevenueGrowth     rawValue `json:"revenueGrowth"`
				GrossMargins      rawValue `json:"grossMargins"`
				OperatingMargins  rawValue `json:"operatingMargins"`
			} `json:"financialData"`
			SummaryDetail struct {
				MarketCap rawValue `json:"marketCap"`
			} `json:"summaryDetail"`
			AssetProfile struct {
				Sector   string `json:"sector"`
				Industry string `json:"industry"`
			} `json:"assetProfile"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

// Quote fetches the current market quote for a symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=5d", c.baseURL, url.PathEscape(symbol))

	var parsed chartResponse
	err := retry.Do(ctx, c.retryCfg, c.logger, "market_quote", func(ctx context.Context) error {
		return c.getJSON(ctx, endpoint, &parsed)
	})
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}

	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("quote %s: no data returned", symbol)
	}

	meta := parsed.Chart.Result[0].Meta
	return &Quote{
		Symbol:           symbol,
		Currency:         meta.Currency,
		Price:            meta.RegularMarketPrice,
		PreviousClose:    meta.PreviousClose,
		FiftyTwoWeekHigh: meta.FiftyTwoWeekHigh,
		FiftyTwoWeekLow:  meta.FiftyTwoWeekLow,
	}, nil
}

// Financials fetches revenue, growth, margins, and market cap for a
// symbol.
func (c *Client) Financials(ctx context.Context, symbol string) (*Financials, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	endpoint := fmt.Sprintf(
		"%s/v10/finance/quoteSummary/%s?modules=financialData%%2CsummaryDetail%%2CassetProfile",
		c.baseURL, url.PathEscape(symbol))

	var parsed summaryResponse
	err := retry.Do(ctx, c.retryCfg, c.logger, "market_financials", func(ctx context.Context) error {
		return c.getJSON(ctx, endpoint, &parsed)
	})
	if err != nil {
		return nil, fmt.Errorf("financials %s: %w", symbol, err)
	}

	if len(parsed.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("financials %s: no data returned", symbol)
	}

	result := parsed.QuoteSummary.Result[0]
	return &Financials{
		Symbol:          symbol,
		Currency:        result.FinancialData.FinancialCurrency,
		MarketCap:       result.SummaryDetail.MarketCap.Raw,
		TotalRevenue:    result.FinancialData.TotalRevenue.Raw,
		RevenueGrowth:   result.FinancialData.RevenueGrowth.Raw,
		GrossMargin:     result.FinancialData.GrossMargins.Raw,
		OperatingMargin: result.FinancialData.OperatingMargins.Raw,
		Sector:          result.AssetProfile.Sector,
		Industry:        result.AssetProfile.Industry,
	}, nil
}

// getJSON performs one GET attempt, classifying failures transient or
// fatal for the retry policy.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return retry.NewFatalError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "scout-research/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures and timeouts are transient.
		return retry.NewTransientError(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return retry.NewTransientError(fmt.Errorf("read response: %w", err))
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return retry.NewFatalError(fmt.Errorf("decode response: %w", err))
	}

	return nil
}

// classifyStatus maps HTTP status codes onto the retry taxonomy:
// rate limits and server errors are transient, everything else fatal.
// 404 means the symbol does not exist; retrying cannot fix that.
func classifyStatus(status int, body []byte) error {
	if status == http.StatusOK {
		return nil
	}

	detail := string(body)
	if len(detail) > 200 {
		detail = detail[:200] + "..."
	}
	err := fmt.Errorf("market API error (status %d): %s", status, detail)

	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		return retry.NewTransientError(err)
	case status == http.StatusNotFound:
		return retry.NewFatalError(fmt.Errorf("unknown symbol: %w", err))
	default:
		return retry.NewFatalError(err)
	}
}
