package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/unraidmate/console/pkg/models"
	"github.com/unraidmate/console/pkg/settings"
)

// SettingsHandler handles persistent settings API endpoints
type SettingsHandler struct {
	manager *settings.SettingsManager
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(manager *settings.SettingsManager) *SettingsHandler {
	return &SettingsHandler{manager: manager}
}

// GetSettings returns the app settings
// GET /api/settings
func (h *SettingsHandler) GetSettings(c *fiber.Ctx) error {
	return c.JSON(h.manager.Get(c.UserContext()))
}

// SaveSettings replaces the app settings. Out-of-range values are clamped.
// PUT /api/settings
func (h *SettingsHandler) SaveSettings(c *fiber.Ctx) error {
	var s models.AppSettings
	if err := c.BodyParser(&s); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.manager.Save(c.UserContext(), s); err != nil {
		log.Printf("[settings] Save error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save settings",
		})
	}
	return c.JSON(h.manager.Get(c.UserContext()))
}

// ExportSettings returns the settings as a backup file
// POST /api/settings/export
func (h *SettingsHandler) ExportSettings(c *fiber.Ctx) error {
	data, err := h.manager.Export(c.UserContext())
	if err != nil {
		log.Printf("[settings] Export error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export settings",
		})
	}

	c.Set("Content-Type", "application/json")
	c.Set("Content-Disposition", "attachment; filename=unraid-console-settings.json")
	return c.Send(data)
}

// ImportSettings imports a settings backup file
// POST /api/settings/import
func (h *SettingsHandler) ImportSettings(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return badRequest(c, "Empty request body")
	}

	if err := h.manager.Import(c.UserContext(), body); err != nil {
		log.Printf("[settings] Import error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Failed to import settings",
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Settings imported",
	})
}
