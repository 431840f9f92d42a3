package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/unraidmate/console/pkg/api/middleware"
	"github.com/unraidmate/console/pkg/auth"
	"github.com/unraidmate/console/pkg/models"
)

// AuthConfig holds local token settings
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// AuthHandler exposes login, logout and session checks
type AuthHandler struct {
	manager   *auth.Manager
	jwtSecret string
	tokenTTL  time.Duration
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(manager *auth.Manager, cfg AuthConfig) *AuthHandler {
	return &AuthHandler{
		manager:   manager,
		jwtSecret: cfg.JWTSecret,
		tokenTTL:  cfg.TokenTTL,
	}
}

type loginRequest struct {
	ServerAddress string `json:"serverAddress"`
	APIKey        string `json:"apiKey"`
}

type sessionResponse struct {
	Token   string         `json:"token,omitempty"`
	Session models.Session `json:"session"`
}

// Login validates the credentials, makes them active and issues a local token
// POST /api/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	creds := models.Credentials{ServerAddress: req.ServerAddress, APIKey: req.APIKey}.Trimmed()
	if err := h.manager.Login(c.UserContext(), creds); err != nil {
		return writeError(c, err)
	}

	token, err := middleware.GenerateToken(h.jwtSecret, creds.ServerAddress, h.tokenTTL)
	if err != nil {
		log.Printf("[api] token generation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}
	return c.JSON(sessionResponse{Token: token, Session: redactSession(models.LoggedIn(creds))})
}

// Logout clears the active server
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.manager.Logout(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// Check reports the stored session; ?verify=true also validates it remotely
// GET /api/auth/check
func (h *AuthHandler) Check(c *fiber.Ctx) error {
	status := h.manager.CheckAuth(c.UserContext(), c.QueryBool("verify"))
	status.Session = redactSession(status.Session)
	return c.JSON(status)
}

// RefreshToken issues a new token for a still-valid one
// POST /api/auth/refresh
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	if !h.manager.IsLoggedIn(c.UserContext()) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not logged in",
		})
	}
	token, err := middleware.GenerateToken(h.jwtSecret, middleware.GetServer(c), h.tokenTTL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to refresh token",
		})
	}
	return c.JSON(fiber.Map{"token": token})
}

func redactSession(s models.Session) models.Session {
	if !s.Active() {
		return s
	}
	c := *s.Credentials
	c.APIKey = models.MaskKey(c.APIKey)
	return models.LoggedIn(c)
}
