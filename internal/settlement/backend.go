package settlement

import (
	"context"

	"github.com/veildex/swap-engine/pkg/model"
)

// Backend performs the external work behind the driveable pipeline stages
// (token wrapping, encrypted computation, settlement) and produces the final
// settlement result. The contract of the real confidential-computation
// backend is still unsettled; SimulatedBackend stands in for it.
type Backend interface {
	// ExecuteStage performs the external side effect for one stage. It must
	// respect ctx deadlines; the sweeper bounds every call.
	ExecuteStage(ctx context.Context, intent model.SwapIntent, stage model.StageName) error

	// Settle produces the terminal settlement result for the intent.
	Settle(ctx context.Context, intent model.SwapIntent) (*model.SettlementResult, error)
}
