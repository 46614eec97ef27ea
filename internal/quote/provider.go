package quote

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/veildex/swap-engine/pkg/model"
)

// RouteProvider answers quote requests with a gross output amount and a
// route breakdown. Implementations: AggregatorProvider (live HTTP) and
// FixedRateProvider (static table). The implementation is chosen once at
// construction, never per-call.
type RouteProvider interface {
	Name() string
	Quote(ctx context.Context, inputToken, outputToken string, amount decimal.Decimal, slippageBps int) (*model.RouteQuote, error)
}
