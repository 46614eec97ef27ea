package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veildex/swap-engine/internal/projection"
	"github.com/veildex/swap-engine/internal/store"
)

func RegisterRoutes(app *fiber.App, nc *nats.Conn, st store.Store, proj *projection.Store,
	handler *SwapHandler,
) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"nats":       "ok",
			"store":      "ok",
			"projection": "ok",
		}
		status := "ok"
		code := fiber.StatusOK

		if nc == nil {
			checks["nats"] = "not configured"
		} else if !nc.IsConnected() {
			checks["nats"] = "disconnected"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		} else if err := nc.FlushTimeout(1 * time.Second); err != nil {
			checks["nats"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := st.HealthCheck(healthCtx); err != nil {
			checks["store"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
		if err := proj.Ping(healthCtx); err != nil {
			checks["projection"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	// API routes
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
}
