package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteRequest identifies a quote computation. Every field participates in
// the cache fingerprint.
type QuoteRequest struct {
	InputToken  string          `json:"input_token"`
	OutputToken string          `json:"output_token"`
	InputAmount decimal.Decimal `json:"input_amount"` // base units
	SlippageBps int             `json:"slippage_bps"`
	PrivacyMode bool            `json:"privacy_mode"`
}

// FeeBreakdown is the bps fee composition applied to a quote.
type FeeBreakdown struct {
	BaseBps    int             `json:"base_bps"`
	PrivacyBps int             `json:"privacy_bps"`
	TotalBps   int             `json:"total_bps"`
	Amount     decimal.Decimal `json:"amount"`
}

// RouteStep is a single pool hop within a route.
type RouteStep struct {
	Pool   string `json:"pool"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Route is one path the aggregator found for the swap.
type Route struct {
	Name   string          `json:"name"`
	Output decimal.Decimal `json:"output"`
	Steps  []RouteStep     `json:"steps"`
}

// RouteQuote is the raw answer from a route provider: gross output before fees.
type RouteQuote struct {
	GrossOutput decimal.Decimal `json:"gross_output"`
	PriceImpact float64         `json:"price_impact"`
	Routes      []Route         `json:"routes"`
}

// QuoteResponse is a computed, fee-adjusted quote. Immutable once produced;
// cached verbatim for ValidFor milliseconds.
type QuoteResponse struct {
	InputAmount  decimal.Decimal `json:"input_amount"`
	OutputAmount decimal.Decimal `json:"output_amount"` // net of fee
	PriceImpact  float64         `json:"price_impact"`
	Fee          FeeBreakdown    `json:"fee"`
	Routes       []Route         `json:"routes"`
	Timestamp    time.Time       `json:"timestamp"`
	ValidFor     int64           `json:"valid_for"` // ms
}

// TokenInfo describes one entry of the supported-token allow-list.
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Mint     string `json:"mint"`
	Decimals int    `json:"decimals"`
}
