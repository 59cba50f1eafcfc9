package handler

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	store   string
	started time.Time
}

// NewHealthHandler takes a nil db when running on the in-memory store.
func NewHealthHandler(db Pinger, store string) *HealthHandler {
	return &HealthHandler{db: db, store: store, started: time.Now()}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	database := "memory"
	if h.db != nil {
		database = "connected"
		if err := h.ping(c); err != nil {
			database = "disconnected"
		}
	}

	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.started).Seconds(),
		"started":   humanize.Time(h.started),
		"store":     h.store,
		"database":  database,
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.db != nil {
		if err := h.ping(c); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "error": "database unreachable"})
		}
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

func (h *HealthHandler) Status(c *fiber.Ctx) error {
	return ok(c, fiber.StatusOK, fiber.Map{"message": "Server is running and connected!"})
}

func (h *HealthHandler) ConnectionCheck(c *fiber.Ctx) error {
	return ok(c, fiber.StatusOK, fiber.Map{
		"message":    "Connection successful",
		"serverTime": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) ping(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()
	return h.db.Ping(ctx)
}
