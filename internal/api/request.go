package api

import (
	"github.com/shopspring/decimal"
)

// QuoteCreateRequest is the payload to price a prospective swap.
type QuoteCreateRequest struct {
	InputToken  string          `json:"input_token" example:"SOL"`
	OutputToken string          `json:"output_token" example:"USDC"`
	InputAmount decimal.Decimal `json:"input_amount" example:"1000000000"`
	SlippageBps int             `json:"slippage_bps" example:"50"`
	PrivacyMode bool            `json:"privacy_mode"`
}

// SwapSubmitRequest is the payload to create a swap intent.
type SwapSubmitRequest struct {
	UserAddress string          `json:"user_address"`
	InputToken  string          `json:"input_token" example:"SOL"`
	OutputToken string          `json:"output_token" example:"USDC"`
	InputAmount decimal.Decimal `json:"input_amount" example:"1000000000"`
	SlippageBps int             `json:"slippage_bps" example:"50"`
	PrivacyMode bool            `json:"privacy_mode"`
}

// StageUpdateRequest mutates one pipeline stage of an intent.
type StageUpdateRequest struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// CompleteRequest carries the settlement artifacts for a finished swap.
type CompleteRequest struct {
	OutputAmount    decimal.Decimal `json:"output_amount"`
	TxHash          string          `json:"tx_hash"`
	Proof           string          `json:"proof,omitempty"`
	ComputationHash string          `json:"computation_hash,omitempty"`
}

// FailRequest records a terminal failure cause.
type FailRequest struct {
	Error string `json:"error"`
}
