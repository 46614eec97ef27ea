package quote

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Invalidator is the slice of the quote service the feed needs.
type Invalidator interface {
	InvalidateQuoteCache(ctx context.Context, inputToken, outputToken string) (int, error)
}

// LiquidityFeed subscribes to pool-update notifications over websocket and
// invalidates cached quotes for the affected pair. Connection drops are
// retried with a fixed backoff until the context is done.
type LiquidityFeed struct {
	url    string
	svc    Invalidator
	logger *zap.Logger
	done   chan struct{}
}

type poolUpdate struct {
	Type        string `json:"type"`
	InputToken  string `json:"input_token"`
	OutputToken string `json:"output_token"`
}

// NewLiquidityFeed creates a feed client for the given websocket URL.
func NewLiquidityFeed(url string, svc Invalidator, logger *zap.Logger) *LiquidityFeed {
	return &LiquidityFeed{
		url:    url,
		svc:    svc,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start runs the subscribe loop until context cancellation or Stop.
func (f *LiquidityFeed) Start(ctx context.Context) {
	f.logger.Info("liquidity_feed.start", zap.String("url", f.url))

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		default:
		}

		if err := f.run(ctx); err != nil {
			f.logger.Warn("liquidity_feed.disconnected", zap.Error(err))
		}

		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return
		case <-f.done:
			return
		}
	}
}

func (f *LiquidityFeed) run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the connection when the loop should exit so ReadMessage unblocks.
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		}
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var update poolUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			f.logger.Warn("liquidity_feed.bad_message", zap.Error(err))
			continue
		}

		if update.Type != "pool_update" || update.InputToken == "" || update.OutputToken == "" {
			continue
		}

		if _, err := f.svc.InvalidateQuoteCache(ctx, update.InputToken, update.OutputToken); err != nil {
			f.logger.Warn("liquidity_feed.invalidate_failed",
				zap.String("input", update.InputToken),
				zap.String("output", update.OutputToken),
				zap.Error(err))
		}
	}
}

// Stop terminates the subscribe loop.
func (f *LiquidityFeed) Stop() {
	close(f.done)
}
