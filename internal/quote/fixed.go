package quote

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/veildex/swap-engine/pkg/model"
)

// FixedRateProvider serves quotes from a static rate table. Used in dev and
// test environments where no live aggregator is reachable.
type FixedRateProvider struct {
	rates map[string]decimal.Decimal // "IN/OUT" -> output base units per input base unit
}

// defaultRates covers every ordered pair of the supported-token allow-list
// with rough, static base-unit ratios.
func defaultRates() map[string]decimal.Decimal {
	rates := map[string]decimal.Decimal{
		"SOL/USDC":  decimal.RequireFromString("0.15"),
		"SOL/USDT":  decimal.RequireFromString("0.15"),
		"SOL/JUP":   decimal.RequireFromString("0.18"),
		"SOL/BONK":  decimal.RequireFromString("0.6"),
		"USDC/USDT": decimal.RequireFromString("1"),
		"USDC/JUP":  decimal.RequireFromString("1.2"),
		"USDC/BONK": decimal.RequireFromString("4"),
		"USDT/JUP":  decimal.RequireFromString("1.2"),
		"USDT/BONK": decimal.RequireFromString("4"),
		"JUP/BONK":  decimal.RequireFromString("3.3"),
	}
	// Mirror the inverse direction.
	for pair, rate := range rates {
		parts := strings.SplitN(pair, "/", 2)
		inverse := parts[1] + "/" + parts[0]
		if _, ok := rates[inverse]; !ok && !rate.IsZero() {
			rates[inverse] = decimal.NewFromInt(1).DivRound(rate, 12)
		}
	}
	return rates
}

// NewFixedRateProvider creates a table-backed provider. A nil rates map uses
// the built-in defaults.
func NewFixedRateProvider(rates map[string]decimal.Decimal) *FixedRateProvider {
	if rates == nil {
		rates = defaultRates()
	}
	return &FixedRateProvider{rates: rates}
}

func (p *FixedRateProvider) Name() string { return "fixed" }

func (p *FixedRateProvider) Quote(_ context.Context, inputToken, outputToken string, amount decimal.Decimal, _ int) (*model.RouteQuote, error) {
	rate, ok := p.rates[inputToken+"/"+outputToken]
	if !ok {
		return nil, fmt.Errorf("%w: no fixed rate for %s/%s", model.ErrUpstreamQuote, inputToken, outputToken)
	}

	gross := amount.Mul(rate).Floor()
	return &model.RouteQuote{
		GrossOutput: gross,
		PriceImpact: 0.01,
		Routes: []model.Route{{
			Name:   "VeilPool",
			Output: gross,
			Steps: []model.RouteStep{{
				Pool:   "veilpool-" + inputToken + "-" + outputToken,
				Input:  inputToken,
				Output: outputToken,
			}},
		}},
	}, nil
}
