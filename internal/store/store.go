package store

import (
	"context"
	"time"

	"github.com/veildex/swap-engine/pkg/model"
)

// Store is the durable record store for users, intents, stages, sessions and
// quote snapshots. Postgres is the single source of truth; the projection
// layer mirrors parts of it with TTLs.
type Store interface {
	// EnsureUser creates the user record if it does not exist (idempotent).
	EnsureUser(ctx context.Context, address string) error

	// CreateIntent persists the intent and its stages as one transaction.
	CreateIntent(ctx context.Context, intent *model.SwapIntent, stages []model.SwapStage) error

	// GetIntent returns the intent or (nil, nil) when absent.
	GetIntent(ctx context.Context, id string) (*model.SwapIntent, error)

	// GetStages returns the intent's stages in pipeline order.
	GetStages(ctx context.Context, swapID string) ([]model.SwapStage, error)

	// UpdateIntent writes the intent's mutable fields guarded by its Version
	// (compare-and-swap). On success the stored and in-memory Version are
	// bumped. Returns model.ErrVersionConflict on a lost race and
	// model.ErrNotFound if the intent vanished.
	UpdateIntent(ctx context.Context, intent *model.SwapIntent) error

	// UpdateStage mutates one named stage. Returns false when the stage does
	// not exist (the caller decides whether that is an error).
	UpdateStage(ctx context.Context, swapID string, name model.StageName, status model.StageStatus, stageErr string, completedAt *time.Time) (bool, error)

	// CompleteOpenStages force-completes every stage of the intent that is
	// not already COMPLETED or FAILED. Returns the number of rows touched.
	CompleteOpenStages(ctx context.Context, swapID string, completedAt time.Time) (int, error)

	// ListPendingIntents returns every intent in a non-terminal state,
	// oldest first.
	ListPendingIntents(ctx context.Context) ([]model.SwapIntent, error)

	// CreateSession persists a confirmation session.
	CreateSession(ctx context.Context, sess model.Session) error

	// DeleteExpiredSessions removes sessions past their validity window.
	DeleteExpiredSessions(ctx context.Context) (int, error)

	// RecordQuote stores a served quote snapshot for audit (best effort).
	RecordQuote(ctx context.Context, req model.QuoteRequest, resp *model.QuoteResponse) error

	// DeleteExpiredQuotes removes quote snapshots past their validity window.
	DeleteExpiredQuotes(ctx context.Context) (int, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
