package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SwapStatus is the lifecycle state of a swap intent.
type SwapStatus string

const (
	StatusSubmitted        SwapStatus = "SUBMITTED"
	StatusEncryptedSettled SwapStatus = "ENCRYPTED_SETTLED"
	StatusFailed           SwapStatus = "FAILED"
	StatusCancelled        SwapStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s SwapStatus) Valid() bool {
	switch s {
	case StatusSubmitted, StatusEncryptedSettled, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed from s.
func (s SwapStatus) Terminal() bool {
	switch s {
	case StatusEncryptedSettled, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// StageName identifies one step of the fixed settlement pipeline.
type StageName string

const (
	StageQuoteFetched         StageName = "Quote Fetched"
	StageUserConfirmation     StageName = "User Confirmation"
	StageTokenWrapping        StageName = "Token Wrapping"
	StageEncryptedComputation StageName = "Encrypted Computation"
	StageSettlement           StageName = "Settlement"
	StageTxConfirmation       StageName = "Transaction Confirmation"
)

// StageSequence is the fixed ordered pipeline every intent is created with.
var StageSequence = []StageName{
	StageQuoteFetched,
	StageUserConfirmation,
	StageTokenWrapping,
	StageEncryptedComputation,
	StageSettlement,
	StageTxConfirmation,
}

// Valid reports whether n is one of the pipeline stages.
func (n StageName) Valid() bool {
	for _, s := range StageSequence {
		if s == n {
			return true
		}
	}
	return false
}

// StageStatus is the state of a single pipeline stage.
type StageStatus string

const (
	StagePending    StageStatus = "PENDING"
	StageInProgress StageStatus = "IN_PROGRESS"
	StageCompleted  StageStatus = "COMPLETED"
	StageFailed     StageStatus = "FAILED"
)

// Valid reports whether s is a known stage status.
func (s StageStatus) Valid() bool {
	switch s {
	case StagePending, StageInProgress, StageCompleted, StageFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the stage can change no further.
func (s StageStatus) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// SwapIntent is a tracked, identified request to execute a swap. One record
// per submission; never deleted. Version is an optimistic-concurrency token
// bumped on every durable mutation.
type SwapIntent struct {
	ID              string          `json:"id"`
	UserAddress     string          `json:"user_address"`
	InputToken      string          `json:"input_token"`
	OutputToken     string          `json:"output_token"`
	InputAmount     decimal.Decimal `json:"input_amount"`
	FeeBps          int             `json:"fee_bps"`
	PrivacyMode     bool            `json:"privacy_mode"`
	SlippageBps     int             `json:"slippage_bps"`
	Status          SwapStatus      `json:"status"`
	OutputAmount    decimal.Decimal `json:"output_amount,omitempty"`
	TxHash          string          `json:"tx_hash,omitempty"`
	Proof           string          `json:"proof,omitempty"`
	ComputationHash string          `json:"computation_hash,omitempty"`
	Error           string          `json:"error,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	SettledAt       *time.Time      `json:"settled_at,omitempty"`
}

// SwapStage is one named step of an intent's pipeline.
type SwapStage struct {
	ID          int64       `json:"id"`
	SwapID      string      `json:"swap_id"`
	Name        StageName   `json:"name"`
	Status      StageStatus `json:"status"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// NewStages builds the fixed pipeline for a fresh intent, all PENDING.
func NewStages(swapID string) []SwapStage {
	stages := make([]SwapStage, 0, len(StageSequence))
	for _, name := range StageSequence {
		stages = append(stages, SwapStage{
			SwapID: swapID,
			Name:   name,
			Status: StagePending,
		})
	}
	return stages
}

// Session is the short-lived confirmation credential issued at submit time.
// Its lifecycle is independent of the intent; expired sessions are swept separately.
type Session struct {
	SwapID      string    `json:"swap_id"`
	UserAddress string    `json:"user_address"`
	AuthToken   string    `json:"auth_token"`
	ValidUntil  time.Time `json:"valid_until"`
	CreatedAt   time.Time `json:"created_at"`
}

// SettlementResult carries the fields recorded when an intent settles.
type SettlementResult struct {
	OutputAmount    decimal.Decimal `json:"output_amount"`
	TxHash          string          `json:"tx_hash"`
	Proof           string          `json:"proof,omitempty"`
	ComputationHash string          `json:"computation_hash,omitempty"`
}

// StatusProjection is the best-effort, eventually-consistent status mirror
// kept in Redis. Never authoritative.
type StatusProjection struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}
