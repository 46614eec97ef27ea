package swap

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/veildex/swap-engine/internal/metrics"
	"github.com/veildex/swap-engine/internal/projection"
	"github.com/veildex/swap-engine/internal/quote"
	"github.com/veildex/swap-engine/internal/store"
	"github.com/veildex/swap-engine/pkg/model"
)

// Quoter is the slice of the quote service the engine needs at submit time.
type Quoter interface {
	GetQuote(ctx context.Context, req model.QuoteRequest) (*model.QuoteResponse, error)
}

// EventPublisher emits lifecycle events. Optional; a nil publisher disables
// event emission.
type EventPublisher interface {
	PublishSwapEvent(ctx context.Context, eventType string, evt model.SwapLifecycleEvent) error
}

// Config holds engine tunables.
type Config struct {
	MinSwapAmount decimal.Decimal // inclusive, base units
	MaxSwapAmount decimal.Decimal // inclusive, base units
	SessionTTL    time.Duration
	ProjectionTTL time.Duration
}

// Engine is the swap intent state machine. It owns intent creation,
// validation, stage transitions, and the completion/failure/cancellation
// rules. All collaborators are injected; the durable store is the single
// source of truth and every transition guard reads it, never the projection.
type Engine struct {
	store  store.Store
	proj   *projection.Store
	quotes Quoter
	events EventPublisher
	logger *zap.Logger
	cfg    Config
}

// NewEngine constructs a fully wired engine.
func NewEngine(st store.Store, proj *projection.Store, quotes Quoter, events EventPublisher, logger *zap.Logger, cfg Config) *Engine {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if cfg.ProjectionTTL <= 0 {
		cfg.ProjectionTTL = time.Hour
	}
	return &Engine{
		store:  st,
		proj:   proj,
		quotes: quotes,
		events: events,
		logger: logger,
		cfg:    cfg,
	}
}

// SubmitRequest is an inbound swap submission.
type SubmitRequest struct {
	UserAddress string          `json:"user_address"`
	InputToken  string          `json:"input_token"`
	OutputToken string          `json:"output_token"`
	InputAmount decimal.Decimal `json:"input_amount"` // base units
	SlippageBps int             `json:"slippage_bps"`
	PrivacyMode bool            `json:"privacy_mode"`
}

// SubmitReceipt is the confirmation payload returned to the caller.
type SubmitReceipt struct {
	SwapID          string             `json:"swap_id"`
	EstimatedOutput decimal.Decimal    `json:"estimated_output"`
	Fee             model.FeeBreakdown `json:"fee"`
	AuthToken       string             `json:"auth_token"`
	ValidUntil      time.Time          `json:"valid_until"`
}

// StatusResponse is the durable view of an intent and its pipeline.
type StatusResponse struct {
	Intent *model.SwapIntent `json:"intent"`
	Stages []model.SwapStage `json:"stages"`
}

// SubmitSwap validates a submission, obtains a quote estimate, and persists
// the intent, its six stages, and a confirmation session. Validation
// failures reject the request before any intent record is created.
func (e *Engine) SubmitSwap(ctx context.Context, req SubmitRequest) (*SubmitReceipt, error) {
	swapID := uuid.New().String()
	authToken := uuid.New().String()
	now := time.Now().UTC()
	validUntil := now.Add(e.cfg.SessionTTL)

	e.logger.Info("swap.submit.start",
		zap.String("swap_id", swapID),
		zap.String("user", req.UserAddress),
		zap.String("pair", req.InputToken+"/"+req.OutputToken),
		zap.String("amount", req.InputAmount.String()),
		zap.Bool("privacy", req.PrivacyMode))

	if err := e.store.EnsureUser(ctx, req.UserAddress); err != nil {
		metrics.IncSubmission("persistence_failure")
		return nil, err
	}

	if req.InputAmount.LessThan(e.cfg.MinSwapAmount) || req.InputAmount.GreaterThan(e.cfg.MaxSwapAmount) {
		metrics.IncSubmission("invalid_amount")
		return nil, fmt.Errorf("%w: %s not in [%s, %s]",
			model.ErrInvalidAmount, req.InputAmount.String(),
			e.cfg.MinSwapAmount.String(), e.cfg.MaxSwapAmount.String())
	}

	// Estimate only — settlement recomputes the final amount.
	estimate, err := e.quotes.GetQuote(ctx, model.QuoteRequest{
		InputToken:  req.InputToken,
		OutputToken: req.OutputToken,
		InputAmount: req.InputAmount,
		SlippageBps: req.SlippageBps,
		PrivacyMode: req.PrivacyMode,
	})
	if err != nil {
		metrics.IncSubmission("quote_failure")
		return nil, err
	}

	// Fee rate computed from the shared constants, independent of the quote
	// response.
	feeBps := quote.FeeBpsFor(req.PrivacyMode)

	intent := &model.SwapIntent{
		ID:          swapID,
		UserAddress: req.UserAddress,
		InputToken:  req.InputToken,
		OutputToken: req.OutputToken,
		InputAmount: req.InputAmount,
		FeeBps:      feeBps,
		PrivacyMode: req.PrivacyMode,
		SlippageBps: req.SlippageBps,
		Status:      model.StatusSubmitted,
		CreatedAt:   now,
	}

	if err := e.store.CreateIntent(ctx, intent, model.NewStages(swapID)); err != nil {
		metrics.IncSubmission("persistence_failure")
		return nil, err
	}

	if err := e.store.CreateSession(ctx, model.Session{
		SwapID:      swapID,
		UserAddress: req.UserAddress,
		AuthToken:   authToken,
		ValidUntil:  validUntil,
		CreatedAt:   now,
	}); err != nil {
		metrics.IncSubmission("persistence_failure")
		return nil, err
	}

	e.writeProjection(ctx, swapID, "submitted", nil)
	e.emit(ctx, "submitted", intent, "")
	metrics.IncSubmission("accepted")

	e.logger.Info("swap.submit.accepted",
		zap.String("swap_id", swapID),
		zap.String("estimated_output", estimate.OutputAmount.String()),
		zap.Int("fee_bps", feeBps))

	return &SubmitReceipt{
		SwapID:          swapID,
		EstimatedOutput: estimate.OutputAmount,
		Fee:             estimate.Fee,
		AuthToken:       authToken,
		ValidUntil:      validUntil,
	}, nil
}

// GetSwapStatus reads the durable intent and its stages. Returns (nil, nil)
// when the intent does not exist.
func (e *Engine) GetSwapStatus(ctx context.Context, swapID string) (*StatusResponse, error) {
	intent, err := e.store.GetIntent(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, nil
	}

	stages, err := e.store.GetStages(ctx, swapID)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{Intent: intent, Stages: stages}, nil
}

// GetProjectedStatus reads the best-effort status mirror. Returns false on a
// projection miss; callers fall back to GetSwapStatus.
func (e *Engine) GetProjectedStatus(ctx context.Context, swapID string) (*model.StatusProjection, bool, error) {
	var proj model.StatusProjection
	found, err := e.proj.GetJSON(ctx, "swap:status:"+swapID, &proj)
	if err != nil || !found {
		return nil, false, err
	}
	return &proj, true, nil
}

// UpdateSwapStage mutates one named stage of an intent. A missing intent or
// stage is logged and swallowed (soft no-op) so out-of-order events from the
// settlement pipeline cannot crash stage-driving. An event-style marker is
// appended to the projection event list.
func (e *Engine) UpdateSwapStage(ctx context.Context, swapID string, name model.StageName, status model.StageStatus, stageErr string) error {
	intent, err := e.store.GetIntent(ctx, swapID)
	if err != nil {
		return err
	}
	if intent == nil {
		e.logger.Warn("swap.stage_update.unknown_swap",
			zap.String("swap_id", swapID),
			zap.String("stage", string(name)))
		return nil
	}

	var completedAt *time.Time
	if status == model.StageCompleted {
		now := time.Now().UTC()
		completedAt = &now
	}

	ok, err := e.store.UpdateStage(ctx, swapID, name, status, stageErr, completedAt)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Warn("swap.stage_update.unknown_stage",
			zap.String("swap_id", swapID),
			zap.String("stage", string(name)))
		return nil
	}

	// Append-only event marker, not a current-state snapshot.
	marker := fmt.Sprintf("stage:%s:%s", name, status)
	eventsKey := "swap:events:" + swapID
	if err := e.proj.RPush(ctx, eventsKey, marker); err != nil {
		e.logger.Warn("swap.stage_update.marker_failed", zap.String("swap_id", swapID), zap.Error(err))
	} else if err := e.proj.Expire(ctx, eventsKey, e.cfg.ProjectionTTL); err != nil {
		e.logger.Warn("swap.stage_update.marker_expire_failed", zap.String("swap_id", swapID), zap.Error(err))
	}

	e.logger.Debug("swap.stage_updated",
		zap.String("swap_id", swapID),
		zap.String("stage", string(name)),
		zap.String("status", string(status)))
	return nil
}

// BatchCompletionPolicy force-transitions every stage that is not already
// COMPLETED or FAILED to COMPLETED when the intent itself settles: stages
// not explicitly failed are assumed successful. This is a deliberate
// business rule, not a bug to fix.
func BatchCompletionPolicy(ctx context.Context, st store.Store, swapID string, settledAt time.Time) (int, error) {
	return st.CompleteOpenStages(ctx, swapID, settledAt)
}

// CompleteSwap marks the intent ENCRYPTED_SETTLED, records the settlement
// fields, and applies BatchCompletionPolicy to its stages.
func (e *Engine) CompleteSwap(ctx context.Context, swapID string, res model.SettlementResult) error {
	intent, err := e.store.GetIntent(ctx, swapID)
	if err != nil {
		return err
	}
	if intent == nil {
		return fmt.Errorf("%w: swap %s", model.ErrNotFound, swapID)
	}
	if intent.Status.Terminal() {
		return fmt.Errorf("%w: swap %s is %s", model.ErrInvalidStateTransition, swapID, intent.Status)
	}

	now := time.Now().UTC()
	intent.Status = model.StatusEncryptedSettled
	intent.OutputAmount = res.OutputAmount
	intent.TxHash = res.TxHash
	intent.Proof = res.Proof
	intent.ComputationHash = res.ComputationHash
	intent.SettledAt = &now

	if err := e.store.UpdateIntent(ctx, intent); err != nil {
		return err
	}

	forced, err := BatchCompletionPolicy(ctx, e.store, swapID, now)
	if err != nil {
		return err
	}

	e.writeProjection(ctx, swapID, "encrypted_settled", map[string]any{
		"tx_hash":       res.TxHash,
		"output_amount": res.OutputAmount.String(),
	})
	e.emit(ctx, "settled", intent, "")
	metrics.IncTransition(string(model.StatusEncryptedSettled))

	e.logger.Info("swap.completed",
		zap.String("swap_id", swapID),
		zap.String("tx_hash", res.TxHash),
		zap.Int("stages_forced", forced))
	return nil
}

// FailSwap marks the intent FAILED and records the error. Stages are left
// untouched: they may remain PENDING or IN_PROGRESS even though the intent
// is terminally failed. The asymmetry with CompleteSwap is intentional.
func (e *Engine) FailSwap(ctx context.Context, swapID string, cause string) error {
	intent, err := e.store.GetIntent(ctx, swapID)
	if err != nil {
		return err
	}
	if intent == nil {
		return fmt.Errorf("%w: swap %s", model.ErrNotFound, swapID)
	}
	if intent.Status.Terminal() {
		return fmt.Errorf("%w: swap %s is %s", model.ErrInvalidStateTransition, swapID, intent.Status)
	}

	intent.Status = model.StatusFailed
	intent.Error = cause

	if err := e.store.UpdateIntent(ctx, intent); err != nil {
		return err
	}

	e.writeProjection(ctx, swapID, "failed", map[string]any{"error": cause})
	e.emit(ctx, "failed", intent, cause)
	metrics.IncTransition(string(model.StatusFailed))

	e.logger.Warn("swap.failed",
		zap.String("swap_id", swapID),
		zap.String("cause", cause))
	return nil
}

// CancelSwap cancels an intent that has not started settling. Only the
// SUBMITTED state is cancellable; every other status is rejected.
func (e *Engine) CancelSwap(ctx context.Context, swapID string) error {
	intent, err := e.store.GetIntent(ctx, swapID)
	if err != nil {
		return err
	}
	if intent == nil {
		return fmt.Errorf("%w: swap %s", model.ErrNotFound, swapID)
	}
	if intent.Status != model.StatusSubmitted {
		return fmt.Errorf("%w: cannot cancel swap %s in state %s",
			model.ErrInvalidStateTransition, swapID, intent.Status)
	}

	intent.Status = model.StatusCancelled

	if err := e.store.UpdateIntent(ctx, intent); err != nil {
		return err
	}

	e.writeProjection(ctx, swapID, "cancelled", nil)
	e.emit(ctx, "cancelled", intent, "")
	metrics.IncTransition(string(model.StatusCancelled))

	e.logger.Info("swap.cancelled", zap.String("swap_id", swapID))
	return nil
}

// writeProjection updates the best-effort status mirror. Failures are logged
// and swallowed; the durable record stays authoritative.
func (e *Engine) writeProjection(ctx context.Context, swapID, status string, data map[string]any) {
	proj := model.StatusProjection{
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		proj.Data = data
	}
	if err := e.proj.SetJSON(ctx, "swap:status:"+swapID, proj, e.cfg.ProjectionTTL); err != nil {
		e.logger.Warn("swap.projection_write_failed",
			zap.String("swap_id", swapID),
			zap.Error(err))
	}
}

func (e *Engine) emit(ctx context.Context, eventType string, intent *model.SwapIntent, cause string) {
	if e.events == nil {
		return
	}
	evt := model.SwapLifecycleEvent{
		SwapID:      intent.ID,
		UserAddress: intent.UserAddress,
		Status:      intent.Status,
		Error:       cause,
		Timestamp:   time.Now().UTC(),
	}
	if err := e.events.PublishSwapEvent(ctx, eventType, evt); err != nil {
		e.logger.Warn("swap.event_publish_failed",
			zap.String("swap_id", intent.ID),
			zap.String("event", eventType),
			zap.Error(err))
	}
}
