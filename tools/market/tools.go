package market

import (
	"context"
	"fmt"
	"strings"
)

// QuoteTool exposes Client.Quote to the agent loop. It satisfies the
// agent package's Tool interface.
type QuoteTool struct {
	client *Client
}

// NewQuoteTool creates the quote tool.
func NewQuoteTool(client *Client) *QuoteTool {
	return &QuoteTool{client: client}
}

func (t *QuoteTool) Name() string { return "market_quote" }

func (t *QuoteTool) Description() string {
	return `get the current market quote for a stock; args: {"symbol": "ticker symbol, e.g. DDOG"}`
}

// Invoke looks up the quote and renders it for the model.
func (t *QuoteTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(args["symbol"]))
	if symbol == "" {
		return "", fmt.Errorf("market_quote requires a symbol argument")
	}

	quote, err := t.client.Quote(ctx, symbol)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Quote for %s:\n", quote.Symbol)
	fmt.Fprintf(&sb, "- price: %.2f %s\n", quote.Price, quote.Currency)
	if quote.PreviousClose > 0 {
		fmt.Fprintf(&sb, "- previous close: %.2f %s\n", quote.PreviousClose, quote.Currency)
	}
	if quote.FiftyTwoWeekHigh > 0 {
		fmt.Fprintf(&sb, "- 52-week range: %.2f - %.2f\n", quote.FiftyTwoWeekLow, quote.FiftyTwoWeekHigh)
	}

	return sb.String(), nil
}

// FinancialsTool exposes Client.Financials to the agent loop.
type FinancialsTool struct {
	client *Client
}

// NewFinancialsTool creates the financials tool.
func NewFinancialsTool(client *Client) *FinancialsTool {
	return &FinancialsTool{client: client}
}

func (t *FinancialsTool) Name() string { return "market_financials" }

func (t *FinancialsTool) Description() string {
	return `get revenue, growth, margins, and market cap for a stock; args: {"symbol": "ticker symbol, e.g. DDOG"}`
}

// Invoke looks up the financials and renders them for the model.
func (t *FinancialsTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(args["symbol"]))
	if symbol == "" {
		return "", fmt.Errorf("market_financials requires a symbol argument")
	}

	fin, err := t.client.Financials(ctx, symbol)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Financials for %s:\n", fin.Symbol)
	if fin.MarketCap > 0 {
		fmt.Fprintf(&sb, "- market cap: %s\n", FormatMoney(fin.MarketCap))
	}
	if fin.TotalRevenue > 0 {
		fmt.Fprintf(&sb, "- revenue (ttm): %s\n", FormatMoney(fin.TotalRevenue))
	}
	if fin.RevenueGrowth != 0 {
		fmt.Fprintf(&sb, "- revenue growth (yoy): %s\n", FormatPercent(fin.RevenueGrowth))
	}
	if fin.GrossMargin != 0 {
		fmt.Fprintf(&sb, "- gross margin: %s\n", FormatPercent(fin.GrossMargin))
	}
	if fin.OperatingMargin != 0 {
		fmt.Fprintf(&sb, "- operating margin: %s\n", FormatPercent(fin.OperatingMargin))
	}
	if fin.Sector != "" {
		fmt.Fprintf(&sb, "- sector: %s", fin.Sector)
		if fin.Industry != "" {
			fmt.Fprintf(&sb, " (%s)", fin.Industry)
		}
		sb.WriteString("\n")
	}

	return sb.String(), nil
}
