package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/evidenceledger/psd2attr/internal/database"
	"github.com/evidenceledger/psd2attr/internal/html"
)

// AdminHandlers serves the audit records to administrators
type AdminHandlers struct {
	db   *database.Database
	html *html.RendererFiber
}

// NewAdminHandlers creates new admin handlers
func NewAdminHandlers(db *database.Database, renderer *html.RendererFiber) *AdminHandlers {
	return &AdminHandlers{db: db, html: renderer}
}

// ListLookups returns the most recent attribute lookups
func (h *AdminHandlers) ListLookups(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)

	lookups, err := h.db.ListLookups(limit)
	if err != nil {
		slog.Error("Failed to list attribute lookups", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}

	return c.JSON(fiber.Map{
		"lookups": lookups,
		"count":   len(lookups),
	})
}

// Dashboard renders the most recent attribute lookups as an HTML page
func (h *AdminHandlers) Dashboard(c *fiber.Ctx) error {
	lookups, err := h.db.ListLookups(c.QueryInt("limit", 100))
	if err != nil {
		slog.Error("Failed to list attribute lookups", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "listing lookups")
	}

	return h.html.Render(c, "lookups", map[string]any{
		"Lookups": lookups,
		"Count":   len(lookups),
	})
}
