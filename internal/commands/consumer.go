package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/veildex/swap-engine/internal/swap"
	"github.com/veildex/swap-engine/pkg/model"
)

const (
	submitQueue = "swap.commands.submit"
	cancelQueue = "swap.commands.cancel"
)

// SubmitSwapCommand is the queued form of a swap submission.
type SubmitSwapCommand struct {
	UserAddress string          `json:"user_address"`
	InputToken  string          `json:"input_token"`
	OutputToken string          `json:"output_token"`
	InputAmount decimal.Decimal `json:"input_amount"`
	SlippageBps int             `json:"slippage_bps"`
	PrivacyMode bool            `json:"privacy_mode"`
}

// CancelSwapCommand requests cancellation of a submitted swap.
type CancelSwapCommand struct {
	SwapID string `json:"swap_id"`
}

// SwapService defines the swap operations the consumer dispatches to.
type SwapService interface {
	SubmitSwap(ctx context.Context, req swap.SubmitRequest) (*swap.SubmitReceipt, error)
	CancelSwap(ctx context.Context, swapID string) error
}

// Consumer consumes swap commands from RabbitMQ.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	swaps   SwapService
	logger  *zap.Logger
	done    chan struct{}
}

// NewConsumer creates a new RabbitMQ command consumer.
func NewConsumer(url string, swaps SwapService, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: channel,
		swaps:   swaps,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start declares the command queues and begins consuming.
func (c *Consumer) Start(ctx context.Context) error {
	if _, err := c.channel.QueueDeclare(submitQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", submitQueue, err)
	}
	if _, err := c.channel.QueueDeclare(cancelQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", cancelQueue, err)
	}

	submitMsgs, err := c.channel.Consume(submitQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", submitQueue, err)
	}
	cancelMsgs, err := c.channel.Consume(cancelQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", cancelQueue, err)
	}

	c.logger.Info("commands.consumer_started",
		zap.String("submit_queue", submitQueue),
		zap.String("cancel_queue", cancelQueue))

	go c.consumeSubmits(ctx, submitMsgs)
	go c.consumeCancels(ctx, cancelMsgs)

	return nil
}

func (c *Consumer) consumeSubmits(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("commands.submit_channel_closed")
				return
			}

			var cmd SubmitSwapCommand
			if err := json.Unmarshal(msg.Body, &cmd); err != nil {
				c.logger.Error("commands.submit_unmarshal_failed", zap.Error(err))
				msg.Nack(false, false)
				continue
			}

			receipt, err := c.swaps.SubmitSwap(ctx, swap.SubmitRequest{
				UserAddress: cmd.UserAddress,
				InputToken:  cmd.InputToken,
				OutputToken: cmd.OutputToken,
				InputAmount: cmd.InputAmount,
				SlippageBps: cmd.SlippageBps,
				PrivacyMode: cmd.PrivacyMode,
			})
			if err != nil {
				// Validation failures are permanent; requeuing them would loop.
				if errors.Is(err, model.ErrInvalidAmount) || errors.Is(err, model.ErrUnsupportedTokenPair) {
					c.logger.Warn("commands.submit_rejected",
						zap.String("user", cmd.UserAddress),
						zap.Error(err))
					msg.Nack(false, false)
					continue
				}
				c.logger.Error("commands.submit_failed",
					zap.String("user", cmd.UserAddress),
					zap.Error(err))
				msg.Nack(false, true) // Requeue on failure
				continue
			}

			c.logger.Info("commands.submit_accepted",
				zap.String("swap_id", receipt.SwapID),
				zap.String("user", cmd.UserAddress))
			msg.Ack(false)
		}
	}
}

func (c *Consumer) consumeCancels(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("commands.cancel_channel_closed")
				return
			}

			var cmd CancelSwapCommand
			if err := json.Unmarshal(msg.Body, &cmd); err != nil {
				c.logger.Error("commands.cancel_unmarshal_failed", zap.Error(err))
				msg.Nack(false, false)
				continue
			}

			if err := c.swaps.CancelSwap(ctx, cmd.SwapID); err != nil {
				// A swap past SUBMITTED or already gone can never be cancelled.
				if errors.Is(err, model.ErrInvalidStateTransition) || errors.Is(err, model.ErrNotFound) {
					c.logger.Warn("commands.cancel_rejected",
						zap.String("swap_id", cmd.SwapID),
						zap.Error(err))
					msg.Nack(false, false)
					continue
				}
				c.logger.Error("commands.cancel_failed",
					zap.String("swap_id", cmd.SwapID),
					zap.Error(err))
				msg.Nack(false, true) // Requeue on failure
				continue
			}

			msg.Ack(false)
		}
	}
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	close(c.done)

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
