package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/veildex/swap-engine/internal/swap"
	"github.com/veildex/swap-engine/pkg/model"
)

// SwapService defines the interface for swap lifecycle operations needed by
// the handler.
type SwapService interface {
	SubmitSwap(ctx context.Context, req swap.SubmitRequest) (*swap.SubmitReceipt, error)
	GetSwapStatus(ctx context.Context, swapID string) (*swap.StatusResponse, error)
	GetProjectedStatus(ctx context.Context, swapID string) (*model.StatusProjection, bool, error)
	UpdateSwapStage(ctx context.Context, swapID string, name model.StageName, status model.StageStatus, stageErr string) error
	CompleteSwap(ctx context.Context, swapID string, res model.SettlementResult) error
	FailSwap(ctx context.Context, swapID string, cause string) error
	CancelSwap(ctx context.Context, swapID string) error
}

// QuoteService defines the interface for quote operations needed by the
// handler.
type QuoteService interface {
	GetQuote(ctx context.Context, req model.QuoteRequest) (*model.QuoteResponse, error)
	InvalidateQuoteCache(ctx context.Context, inputToken, outputToken string) (int, error)
	SupportedTokens() []model.TokenInfo
}

// SwapHandler handles HTTP API requests for swap and quote operations.
type SwapHandler struct {
	logger *zap.Logger
	swaps  SwapService
	quotes QuoteService
}

// NewSwapHandler creates a new SwapHandler.
func NewSwapHandler(logger *zap.Logger, swaps SwapService, quotes QuoteService) *SwapHandler {
	return &SwapHandler{
		logger: logger,
		swaps:  swaps,
		quotes: quotes,
	}
}

// errorStatus maps domain sentinels to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrUnsupportedTokenPair):
		return fiber.StatusBadRequest
	case errors.Is(err, model.ErrInvalidStateTransition),
		errors.Is(err, model.ErrVersionConflict):
		return fiber.StatusConflict
	case errors.Is(err, model.ErrUpstreamQuote):
		return fiber.StatusBadGateway
	case errors.Is(err, model.ErrPersistence):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// CreateQuoteHandler prices a prospective swap.
func (h *SwapHandler) CreateQuoteHandler(c *fiber.Ctx) error {
	var req QuoteCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	quote, err := h.quotes.GetQuote(c.Context(), model.QuoteRequest{
		InputToken:  req.InputToken,
		OutputToken: req.OutputToken,
		InputAmount: req.InputAmount,
		SlippageBps: req.SlippageBps,
		PrivacyMode: req.PrivacyMode,
	})
	if err != nil {
		h.logger.Error("api.create_quote.failed",
			zap.String("pair", req.InputToken+"/"+req.OutputToken),
			zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(quote)
}

// ListTokensHandler returns the supported token allow-list.
func (h *SwapHandler) ListTokensHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"tokens": h.quotes.SupportedTokens()})
}

// InvalidateQuotesHandler busts every cached quote for a token pair.
func (h *SwapHandler) InvalidateQuotesHandler(c *fiber.Ctx) error {
	input := c.Params("input")
	output := c.Params("output")
	if input == "" || output == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "input and output tokens are required"})
	}

	removed, err := h.quotes.InvalidateQuoteCache(c.Context(), input, output)
	if err != nil {
		h.logger.Error("api.invalidate_quotes.failed",
			zap.String("pair", input+"/"+output),
			zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"removed": removed})
}

// SubmitSwapHandler creates a swap intent.
func (h *SwapHandler) SubmitSwapHandler(c *fiber.Ctx) error {
	var req SwapSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	receipt, err := h.swaps.SubmitSwap(c.Context(), swap.SubmitRequest{
		UserAddress: req.UserAddress,
		InputToken:  req.InputToken,
		OutputToken: req.OutputToken,
		InputAmount: req.InputAmount,
		SlippageBps: req.SlippageBps,
		PrivacyMode: req.PrivacyMode,
	})
	if err != nil {
		h.logger.Error("api.submit_swap.failed",
			zap.String("user", req.UserAddress),
			zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(receipt)
}

// GetSwapHandler returns the durable intent and its stages. The projected
// status rides along when the mirror has one.
func (h *SwapHandler) GetSwapHandler(c *fiber.Ctx) error {
	swapID := c.Params("id")

	status, err := h.swaps.GetSwapStatus(c.Context(), swapID)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	if status == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "swap not found"})
	}

	resp := fiber.Map{
		"intent": status.Intent,
		"stages": status.Stages,
	}
	if proj, found, _ := h.swaps.GetProjectedStatus(c.Context(), swapID); found {
		resp["projection"] = proj
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// UpdateStageHandler mutates one pipeline stage of an intent.
func (h *SwapHandler) UpdateStageHandler(c *fiber.Ctx) error {
	var req StageUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	swapID := c.Params("id")
	if err := h.swaps.UpdateSwapStage(c.Context(), swapID,
		model.StageName(req.Stage), model.StageStatus(req.Status), req.Error); err != nil {
		h.logger.Error("api.update_stage.failed",
			zap.String("swap_id", swapID),
			zap.String("stage", req.Stage),
			zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

// CompleteSwapHandler records settlement artifacts and settles the intent.
func (h *SwapHandler) CompleteSwapHandler(c *fiber.Ctx) error {
	var req CompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	swapID := c.Params("id")
	err := h.swaps.CompleteSwap(c.Context(), swapID, model.SettlementResult{
		OutputAmount:    req.OutputAmount,
		TxHash:          req.TxHash,
		Proof:           req.Proof,
		ComputationHash: req.ComputationHash,
	})
	if err != nil {
		h.logger.Error("api.complete_swap.failed",
			zap.String("swap_id", swapID),
			zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "settled"})
}

// FailSwapHandler marks the intent terminally failed.
func (h *SwapHandler) FailSwapHandler(c *fiber.Ctx) error {
	var req FailRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	swapID := c.Params("id")
	if err := h.swaps.FailSwap(c.Context(), swapID, req.Error); err != nil {
		h.logger.Error("api.fail_swap.failed",
			zap.String("swap_id", swapID),
			zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "failed"})
}

// CancelSwapHandler cancels an intent that has not started settling.
func (h *SwapHandler) CancelSwapHandler(c *fiber.Ctx) error {
	swapID := c.Params("id")

	if err := h.swaps.CancelSwap(c.Context(), swapID); err != nil {
		h.logger.Warn("api.cancel_swap.rejected",
			zap.String("swap_id", swapID),
			zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "cancelled"})
}
