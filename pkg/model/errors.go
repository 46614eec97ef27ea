package model

import "errors"

// Error taxonomy for the swap engine. Callers branch with errors.Is; layers
// wrap with fmt.Errorf("...: %w", err) to add context.
var (
	// ErrInvalidAmount: swap amount outside configured bounds.
	ErrInvalidAmount = errors.New("swap amount out of bounds")
	// ErrUnsupportedTokenPair: token pair fails the allow-list check.
	ErrUnsupportedTokenPair = errors.New("unsupported token pair")
	// ErrNotFound: unknown intent, stage, or session.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStateTransition: operation not permitted from the current status.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrUpstreamQuote: route provider failure (retryable).
	ErrUpstreamQuote = errors.New("route provider failure")
	// ErrPersistence: durable store unavailable.
	ErrPersistence = errors.New("durable store unavailable")
	// ErrVersionConflict: optimistic-concurrency check failed on an intent write.
	ErrVersionConflict = errors.New("intent version conflict")
)
