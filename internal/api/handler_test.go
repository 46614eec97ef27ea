package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veildex/swap-engine/internal/swap"
	"github.com/veildex/swap-engine/pkg/model"
)

// --- Mock services ---

type mockSwapService struct {
	submitFn    func(ctx context.Context, req swap.SubmitRequest) (*swap.SubmitReceipt, error)
	getStatusFn func(ctx context.Context, swapID string) (*swap.StatusResponse, error)
	cancelFn    func(ctx context.Context, swapID string) error
	completeFn  func(ctx context.Context, swapID string, res model.SettlementResult) error
	failFn      func(ctx context.Context, swapID string, cause string) error
	stageFn     func(ctx context.Context, swapID string, name model.StageName, status model.StageStatus, stageErr string) error
}

func (m *mockSwapService) SubmitSwap(ctx context.Context, req swap.SubmitRequest) (*swap.SubmitReceipt, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, req)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSwapService) GetSwapStatus(ctx context.Context, swapID string) (*swap.StatusResponse, error) {
	if m.getStatusFn != nil {
		return m.getStatusFn(ctx, swapID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSwapService) GetProjectedStatus(_ context.Context, _ string) (*model.StatusProjection, bool, error) {
	return nil, false, nil
}

func (m *mockSwapService) UpdateSwapStage(ctx context.Context, swapID string, name model.StageName, status model.StageStatus, stageErr string) error {
	if m.stageFn != nil {
		return m.stageFn(ctx, swapID, name, status, stageErr)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockSwapService) CompleteSwap(ctx context.Context, swapID string, res model.SettlementResult) error {
	if m.completeFn != nil {
		return m.completeFn(ctx, swapID, res)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockSwapService) FailSwap(ctx context.Context, swapID string, cause string) error {
	if m.failFn != nil {
		return m.failFn(ctx, swapID, cause)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockSwapService) CancelSwap(ctx context.Context, swapID string) error {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, swapID)
	}
	return fmt.Errorf("not implemented")
}

type mockQuoteService struct {
	getQuoteFn   func(ctx context.Context, req model.QuoteRequest) (*model.QuoteResponse, error)
	invalidateFn func(ctx context.Context, in, out string) (int, error)
}

func (m *mockQuoteService) GetQuote(ctx context.Context, req model.QuoteRequest) (*model.QuoteResponse, error) {
	if m.getQuoteFn != nil {
		return m.getQuoteFn(ctx, req)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockQuoteService) InvalidateQuoteCache(ctx context.Context, in, out string) (int, error) {
	if m.invalidateFn != nil {
		return m.invalidateFn(ctx, in, out)
	}
	return 0, fmt.Errorf("not implemented")
}

func (m *mockQuoteService) SupportedTokens() []model.TokenInfo {
	return []model.TokenInfo{{Symbol: "SOL"}, {Symbol: "USDC"}}
}

// --- Test helpers ---

func newTestApp(swaps SwapService, quotes QuoteService) *fiber.App {
	app := fiber.New()
	handler := NewSwapHandler(zap.NewNop(), swaps, quotes)
	v1 := app.Group("/api/v1")
	v1.Post("/quotes", handler.CreateQuoteHandler)
	v1.Delete("/quotes/:input/:output", handler.InvalidateQuotesHandler)
	v1.Get("/tokens", handler.ListTokensHandler)
	v1.Post("/swaps", handler.SubmitSwapHandler)
	v1.Get("/swaps/:id", handler.GetSwapHandler)
	v1.Post("/swaps/:id/stages", handler.UpdateStageHandler)
	v1.Post("/swaps/:id/complete", handler.CompleteSwapHandler)
	v1.Post("/swaps/:id/fail", handler.FailSwapHandler)
	v1.Post("/swaps/:id/cancel", handler.CancelSwapHandler)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// --- Quotes ---

func TestCreateQuoteHandler_Success(t *testing.T) {
	quotes := &mockQuoteService{
		getQuoteFn: func(_ context.Context, req model.QuoteRequest) (*model.QuoteResponse, error) {
			return &model.QuoteResponse{
				InputAmount:  req.InputAmount,
				OutputAmount: decimal.NewFromInt(149_625_000),
				Fee:          model.FeeBreakdown{BaseBps: 25, TotalBps: 25, Amount: decimal.NewFromInt(375_000)},
				Timestamp:    time.Now().UTC(),
				ValidFor:     10_000,
			}, nil
		},
	}
	app := newTestApp(&mockSwapService{}, quotes)

	body := `{"input_token":"SOL","output_token":"USDC","input_amount":"1000000000","slippage_bps":50}`
	resp := doJSON(t, app, http.MethodPost, "/api/v1/quotes", body)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result model.QuoteResponse
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &result))
	assert.Equal(t, 25, result.Fee.TotalBps)
}

func TestCreateQuoteHandler_UpstreamFailure(t *testing.T) {
	quotes := &mockQuoteService{
		getQuoteFn: func(_ context.Context, _ model.QuoteRequest) (*model.QuoteResponse, error) {
			return nil, fmt.Errorf("%w: aggregator timeout", model.ErrUpstreamQuote)
		},
	}
	app := newTestApp(&mockSwapService{}, quotes)

	body := `{"input_token":"SOL","output_token":"USDC","input_amount":"1000000000"}`
	resp := doJSON(t, app, http.MethodPost, "/api/v1/quotes", body)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}

func TestCreateQuoteHandler_UnsupportedPair(t *testing.T) {
	quotes := &mockQuoteService{
		getQuoteFn: func(_ context.Context, _ model.QuoteRequest) (*model.QuoteResponse, error) {
			return nil, fmt.Errorf("%w: DOGE", model.ErrUnsupportedTokenPair)
		},
	}
	app := newTestApp(&mockSwapService{}, quotes)

	body := `{"input_token":"SOL","output_token":"DOGE","input_amount":"1000000000"}`
	resp := doJSON(t, app, http.MethodPost, "/api/v1/quotes", body)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCreateQuoteHandler_InvalidBody(t *testing.T) {
	app := newTestApp(&mockSwapService{}, &mockQuoteService{})

	resp := doJSON(t, app, http.MethodPost, "/api/v1/quotes", `{"input_token":""}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestInvalidateQuotesHandler(t *testing.T) {
	var gotIn, gotOut string
	quotes := &mockQuoteService{
		invalidateFn: func(_ context.Context, in, out string) (int, error) {
			gotIn, gotOut = in, out
			return 3, nil
		},
	}
	app := newTestApp(&mockSwapService{}, quotes)

	resp := doJSON(t, app, http.MethodDelete, "/api/v1/quotes/SOL/USDC", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "SOL", gotIn)
	assert.Equal(t, "USDC", gotOut)

	var result map[string]int
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &result))
	assert.Equal(t, 3, result["removed"])
}

func TestListTokensHandler(t *testing.T) {
	app := newTestApp(&mockSwapService{}, &mockQuoteService{})

	resp := doJSON(t, app, http.MethodGet, "/api/v1/tokens", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result struct {
		Tokens []model.TokenInfo `json:"tokens"`
	}
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &result))
	assert.Len(t, result.Tokens, 2)
}

// --- Swaps ---

func TestSubmitSwapHandler_Success(t *testing.T) {
	swaps := &mockSwapService{
		submitFn: func(_ context.Context, req swap.SubmitRequest) (*swap.SubmitReceipt, error) {
			return &swap.SubmitReceipt{
				SwapID:          "swap-001",
				EstimatedOutput: decimal.NewFromInt(149_625_000),
				AuthToken:       "tok-001",
				ValidUntil:      time.Now().Add(15 * time.Minute),
			}, nil
		},
	}
	app := newTestApp(swaps, &mockQuoteService{})

	body := `{
		"user_address": "wallet-1",
		"input_token": "SOL",
		"output_token": "USDC",
		"input_amount": "1000000000",
		"slippage_bps": 50,
		"privacy_mode": true
	}`
	resp := doJSON(t, app, http.MethodPost, "/api/v1/swaps", body)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var receipt swap.SubmitReceipt
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &receipt))
	assert.Equal(t, "swap-001", receipt.SwapID)
	assert.Equal(t, "tok-001", receipt.AuthToken)
}

func TestSubmitSwapHandler_InvalidAmount(t *testing.T) {
	swaps := &mockSwapService{
		submitFn: func(_ context.Context, _ swap.SubmitRequest) (*swap.SubmitReceipt, error) {
			return nil, fmt.Errorf("%w: 500 not in [1000, 1000000000000]", model.ErrInvalidAmount)
		},
	}
	app := newTestApp(swaps, &mockQuoteService{})

	body := `{"user_address":"wallet-1","input_token":"SOL","output_token":"USDC","input_amount":"500"}`
	resp := doJSON(t, app, http.MethodPost, "/api/v1/swaps", body)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSubmitSwapHandler_MissingUser(t *testing.T) {
	app := newTestApp(&mockSwapService{}, &mockQuoteService{})

	body := `{"input_token":"SOL","output_token":"USDC","input_amount":"1000000000"}`
	resp := doJSON(t, app, http.MethodPost, "/api/v1/swaps", body)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetSwapHandler_NotFound(t *testing.T) {
	swaps := &mockSwapService{
		getStatusFn: func(_ context.Context, _ string) (*swap.StatusResponse, error) {
			return nil, nil
		},
	}
	app := newTestApp(swaps, &mockQuoteService{})

	resp := doJSON(t, app, http.MethodGet, "/api/v1/swaps/no-such-swap", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetSwapHandler_Success(t *testing.T) {
	swaps := &mockSwapService{
		getStatusFn: func(_ context.Context, swapID string) (*swap.StatusResponse, error) {
			return &swap.StatusResponse{
				Intent: &model.SwapIntent{ID: swapID, Status: model.StatusSubmitted},
				Stages: model.NewStages(swapID),
			}, nil
		},
	}
	app := newTestApp(swaps, &mockQuoteService{})

	resp := doJSON(t, app, http.MethodGet, "/api/v1/swaps/swap-001", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result struct {
		Intent model.SwapIntent  `json:"intent"`
		Stages []model.SwapStage `json:"stages"`
	}
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &result))
	assert.Equal(t, "swap-001", result.Intent.ID)
	assert.Len(t, result.Stages, 6)
}

func TestUpdateStageHandler_UnknownStage(t *testing.T) {
	app := newTestApp(&mockSwapService{}, &mockQuoteService{})

	body := `{"stage":"Nonsense Stage","status":"COMPLETED"}`
	resp := doJSON(t, app, http.MethodPost, "/api/v1/swaps/swap-001/stages", body)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUpdateStageHandler_Success(t *testing.T) {
	var gotStage model.StageName
	var gotStatus model.StageStatus
	swaps := &mockSwapService{
		stageFn: func(_ context.Context, _ string, name model.StageName, status model.StageStatus, _ string) error {
			gotStage, gotStatus = name, status
			return nil
		},
	}
	app := newTestApp(swaps, &mockQuoteService{})

	body := `{"stage":"Token Wrapping","status":"COMPLETED"}`
	resp := doJSON(t, app, http.MethodPost, "/api/v1/swaps/swap-001/stages", body)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StageTokenWrapping, gotStage)
	assert.Equal(t, model.StageCompleted, gotStatus)
}

func TestCompleteSwapHandler_Conflict(t *testing.T) {
	swaps := &mockSwapService{
		completeFn: func(_ context.Context, swapID string, _ model.SettlementResult) error {
			return fmt.Errorf("%w: swap %s is FAILED", model.ErrInvalidStateTransition, swapID)
		},
	}
	app := newTestApp(swaps, &mockQuoteService{})

	body := `{"output_amount":"100","tx_hash":"0xabc"}`
	resp := doJSON(t, app, http.MethodPost, "/api/v1/swaps/swap-001/complete", body)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestFailSwapHandler_RequiresCause(t *testing.T) {
	app := newTestApp(&mockSwapService{}, &mockQuoteService{})

	resp := doJSON(t, app, http.MethodPost, "/api/v1/swaps/swap-001/fail", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCancelSwapHandler_Rejected(t *testing.T) {
	swaps := &mockSwapService{
		cancelFn: func(_ context.Context, swapID string) error {
			return fmt.Errorf("%w: cannot cancel swap %s in state ENCRYPTED_SETTLED",
				model.ErrInvalidStateTransition, swapID)
		},
	}
	app := newTestApp(swaps, &mockQuoteService{})

	resp := doJSON(t, app, http.MethodPost, "/api/v1/swaps/swap-001/cancel", "")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestCancelSwapHandler_NotFound(t *testing.T) {
	swaps := &mockSwapService{
		cancelFn: func(_ context.Context, swapID string) error {
			return fmt.Errorf("%w: swap %s", model.ErrNotFound, swapID)
		},
	}
	app := newTestApp(swaps, &mockQuoteService{})

	resp := doJSON(t, app, http.MethodPost, "/api/v1/swaps/no-such-swap/cancel", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
