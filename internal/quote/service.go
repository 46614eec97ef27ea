package quote

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veildex/swap-engine/internal/metrics"
	"github.com/veildex/swap-engine/internal/projection"
	"github.com/veildex/swap-engine/internal/store"
	"github.com/veildex/swap-engine/pkg/model"
)

// providerTimeout bounds a single route provider call.
const providerTimeout = 5 * time.Second

// Service computes fee-adjusted quotes and caches them briefly. The cache is
// a de-duplication layer in front of the route provider, not a pricing
// guarantee: entries expire after ttl and are returned verbatim until then.
type Service struct {
	provider RouteProvider
	cache    *projection.Store
	durable  store.Store // optional; quote snapshots for the expiry sweep
	logger   *zap.Logger
	ttl      time.Duration
}

// NewService constructs a quote service. durable may be nil, in which case
// no snapshots are recorded.
func NewService(provider RouteProvider, cache *projection.Store, durable store.Store, logger *zap.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Service{
		provider: provider,
		cache:    cache,
		durable:  durable,
		logger:   logger,
		ttl:      ttl,
	}
}

// cacheKey is the deterministic fingerprint of a quote request. Any field
// change produces a different key.
func cacheKey(req model.QuoteRequest) string {
	return fmt.Sprintf("quote:%s:%s:%s:%d:%t",
		req.InputToken, req.OutputToken, req.InputAmount.String(), req.SlippageBps, req.PrivacyMode)
}

// GetQuote returns a cached quote when fresh, otherwise computes one from
// the route provider, applies the fee model, and caches the result.
func (s *Service) GetQuote(ctx context.Context, req model.QuoteRequest) (*model.QuoteResponse, error) {
	if err := s.ValidateTokenPair(req.InputToken, req.OutputToken); err != nil {
		return nil, err
	}

	key := cacheKey(req)
	var cached model.QuoteResponse
	found, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("quote.cache_read_failed", zap.String("key", key), zap.Error(err))
	}
	if found {
		metrics.IncQuoteCache("hit")
		return &cached, nil
	}
	metrics.IncQuoteCache("miss")

	provCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	route, err := s.provider.Quote(provCtx, req.InputToken, req.OutputToken, req.InputAmount, req.SlippageBps)
	if err != nil {
		return nil, fmt.Errorf("quote %s/%s: %w", req.InputToken, req.OutputToken, err)
	}

	fee := ComputeFee(route.GrossOutput, req.PrivacyMode)
	resp := &model.QuoteResponse{
		InputAmount:  req.InputAmount,
		OutputAmount: NetOutput(route.GrossOutput, fee),
		PriceImpact:  route.PriceImpact,
		Fee:          fee,
		Routes:       route.Routes,
		Timestamp:    time.Now().UTC(),
		ValidFor:     s.ttl.Milliseconds(),
	}

	if err := s.cache.SetJSON(ctx, key, resp, s.ttl); err != nil {
		s.logger.Warn("quote.cache_write_failed", zap.String("key", key), zap.Error(err))
	}

	if s.durable != nil {
		if err := s.durable.RecordQuote(ctx, req, resp); err != nil {
			s.logger.Warn("quote.snapshot_failed", zap.Error(err))
		}
	}

	s.logger.Debug("quote.computed",
		zap.String("input", req.InputToken),
		zap.String("output", req.OutputToken),
		zap.String("gross", route.GrossOutput.String()),
		zap.String("net", resp.OutputAmount.String()),
		zap.Int("fee_bps", fee.TotalBps))

	return resp, nil
}

// InvalidateQuoteCache drops every cached quote for a token pair, regardless
// of amount, slippage, or privacy mode. External trigger, e.g. a liquidity
// change on a pool serving the pair.
func (s *Service) InvalidateQuoteCache(ctx context.Context, inputToken, outputToken string) (int, error) {
	pattern := fmt.Sprintf("quote:%s:%s:*", inputToken, outputToken)
	deleted, err := s.cache.DeletePattern(ctx, pattern)
	if err != nil {
		return deleted, fmt.Errorf("invalidate %s/%s: %w", inputToken, outputToken, err)
	}
	s.logger.Info("quote.cache_invalidated",
		zap.String("input", inputToken),
		zap.String("output", outputToken),
		zap.Int("deleted", deleted))
	return deleted, nil
}

// ValidateTokenPair checks both tokens against the allow-list and rejects
// identical pairs.
func (s *Service) ValidateTokenPair(a, b string) error {
	if a == b {
		return fmt.Errorf("%w: identical tokens %s", model.ErrUnsupportedTokenPair, a)
	}
	if !TokenSupported(a) {
		return fmt.Errorf("%w: %s", model.ErrUnsupportedTokenPair, a)
	}
	if !TokenSupported(b) {
		return fmt.Errorf("%w: %s", model.ErrUnsupportedTokenPair, b)
	}
	return nil
}

// SupportedTokens returns the allow-list.
func (s *Service) SupportedTokens() []model.TokenInfo {
	return SupportedTokens()
}
