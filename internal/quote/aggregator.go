package quote

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/veildex/swap-engine/internal/httpclient"
	"github.com/veildex/swap-engine/internal/metrics"
	"github.com/veildex/swap-engine/pkg/model"
	"github.com/veildex/swap-engine/pkg/secrets"
)

// AggregatorProvider queries a live route aggregator over HTTP. The API key
// is resolved through the secrets provider and cached in-memory.
type AggregatorProvider struct {
	logger     *zap.Logger
	exec       *httpclient.Executor
	baseURL    string
	secretName string
	resolver   secrets.Provider
	keyCache   *secrets.Cache[string]
}

// aggregatorQuoteResponse mirrors the aggregator's quote payload.
type aggregatorQuoteResponse struct {
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	RoutePlan      []struct {
		SwapInfo struct {
			AmmKey     string `json:"ammKey"`
			Label      string `json:"label"`
			InputMint  string `json:"inputMint"`
			OutputMint string `json:"outputMint"`
			OutAmount  string `json:"outAmount"`
		} `json:"swapInfo"`
	} `json:"routePlan"`
}

// NewAggregatorProvider creates a live route provider. secretName may be
// empty, in which case requests are sent unauthenticated.
func NewAggregatorProvider(
	logger *zap.Logger,
	exec *httpclient.Executor,
	baseURL, secretName string,
	resolver secrets.Provider,
	keyCache *secrets.Cache[string],
) *AggregatorProvider {
	return &AggregatorProvider{
		logger:     logger,
		exec:       exec,
		baseURL:    baseURL,
		secretName: secretName,
		resolver:   resolver,
		keyCache:   keyCache,
	}
}

func (p *AggregatorProvider) Name() string { return "aggregator" }

func (p *AggregatorProvider) Quote(ctx context.Context, inputToken, outputToken string, amount decimal.Decimal, slippageBps int) (*model.RouteQuote, error) {
	q := url.Values{}
	q.Set("inputMint", inputToken)
	q.Set("outputMint", outputToken)
	q.Set("amount", amount.String())
	q.Set("slippageBps", strconv.Itoa(slippageBps))
	quoteURL := p.baseURL + "/quote?" + q.Encode()

	headers := map[string]string{}
	if p.secretName != "" {
		key, err := p.apiKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve api key: %v", model.ErrUpstreamQuote, err)
		}
		headers["Authorization"] = "Bearer " + key
	}

	start := time.Now()
	var resp aggregatorQuoteResponse
	err := p.exec.GetJSON(ctx, quoteURL, "aggregator", headers, &resp)
	metrics.ObserveDuration(metrics.RouteProviderDuration, start, p.Name())
	if err != nil {
		p.logger.Warn("quote.aggregator_failed",
			zap.String("input", inputToken),
			zap.String("output", outputToken),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", model.ErrUpstreamQuote, err)
	}

	gross, err := decimal.NewFromString(resp.OutAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: bad outAmount %q: %v", model.ErrUpstreamQuote, resp.OutAmount, err)
	}
	impact, _ := strconv.ParseFloat(resp.PriceImpactPct, 64)

	routes := make([]model.Route, 0, 1)
	steps := make([]model.RouteStep, 0, len(resp.RoutePlan))
	routeName := "direct"
	for _, hop := range resp.RoutePlan {
		if hop.SwapInfo.Label != "" {
			routeName = hop.SwapInfo.Label
		}
		steps = append(steps, model.RouteStep{
			Pool:   hop.SwapInfo.AmmKey,
			Input:  hop.SwapInfo.InputMint,
			Output: hop.SwapInfo.OutputMint,
		})
	}
	routes = append(routes, model.Route{Name: routeName, Output: gross, Steps: steps})

	return &model.RouteQuote{
		GrossOutput: gross,
		PriceImpact: impact,
		Routes:      routes,
	}, nil
}

func (p *AggregatorProvider) apiKey(ctx context.Context) (string, error) {
	if key, ok := p.keyCache.Get(p.secretName); ok {
		return key, nil
	}
	vals, err := p.resolver.GetSecret(ctx, p.secretName)
	if err != nil {
		return "", err
	}
	key, ok := vals["api_key"]
	if !ok {
		return "", fmt.Errorf("secret [%s] missing api_key field", p.secretName)
	}
	p.keyCache.Put(p.secretName, key)
	return key, nil
}
