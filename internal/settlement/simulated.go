package settlement

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/veildex/swap-engine/pkg/model"
)

// SimulatedBackend fabricates stage work and settlement artifacts. Output is
// the input amount less the intent's fee; tx hashes and proofs are random.
type SimulatedBackend struct {
	logger *zap.Logger
	delay  time.Duration // simulated per-stage latency
}

// NewSimulatedBackend creates a backend with the given per-stage delay.
func NewSimulatedBackend(logger *zap.Logger, delay time.Duration) *SimulatedBackend {
	return &SimulatedBackend{logger: logger, delay: delay}
}

func (b *SimulatedBackend) ExecuteStage(ctx context.Context, intent model.SwapIntent, stage model.StageName) error {
	b.logger.Debug("settlement.stage_execute",
		zap.String("swap_id", intent.ID),
		zap.String("stage", string(stage)))

	if b.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(b.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *SimulatedBackend) Settle(ctx context.Context, intent model.SwapIntent) (*model.SettlementResult, error) {
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fee := intent.InputAmount.
		Mul(decimal.NewFromInt(int64(intent.FeeBps))).
		Div(decimal.NewFromInt(10000)).
		Floor()
	output := intent.InputAmount.Sub(fee)
	if output.IsNegative() {
		output = decimal.Zero
	}

	res := &model.SettlementResult{
		OutputAmount: output,
		TxHash:       randomHex(32),
	}
	if intent.PrivacyMode {
		res.Proof = randomHex(64)
		sum := sha256.Sum256([]byte(intent.ID))
		res.ComputationHash = hex.EncodeToString(sum[:])
	}
	return res, nil
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
