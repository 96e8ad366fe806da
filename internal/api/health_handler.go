package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/wordlens/wordlens/internal/engine"
	"github.com/wordlens/wordlens/internal/storage"
)

// HealthHandler reports service liveness and primary-engine readiness.
type HealthHandler struct {
	registry *engine.Registry
	spool    *storage.Spool
	primary  string
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(registry *engine.Registry, spool *storage.Spool, primary string) *HealthHandler {
	return &HealthHandler{registry: registry, spool: spool, primary: primary}
}

// Handle reports health. The service stays "ok" even when the primary
// engine is not yet warm - readiness is advisory, a cold engine initializes
// lazily on the first submission.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	spoolHealthy := true
	if h.spool != nil {
		if err := h.spool.Health(ctx); err != nil {
			spoolHealthy = false
			log.Error().Err(err).Msg("Spool health check failed")
		}
	}

	status := "ok"
	httpStatus := fiber.StatusOK
	if !spoolHealthy {
		status = "degraded"
		httpStatus = fiber.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":       status,
		"engine_ready": h.registry.Ready(h.primary),
		"device":       h.registry.Device(h.primary),
		"engines":      h.registry.Names(),
		"services": fiber.Map{
			"spool": spoolHealthy,
		},
		"timestamp": time.Now().UTC(),
	})
}
