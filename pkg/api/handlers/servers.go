package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/unraidmate/console/pkg/auth"
	"github.com/unraidmate/console/pkg/models"
	"github.com/unraidmate/console/pkg/servers"
)

// ServersHandler exposes the saved server list
type ServersHandler struct {
	ctrl      *servers.Controller
	validator auth.Validator
}

// NewServersHandler creates a new servers handler. validator is used by the
// probe stream only.
func NewServersHandler(ctrl *servers.Controller, validator auth.Validator) *ServersHandler {
	return &ServersHandler{ctrl: ctrl, validator: validator}
}

type serverRequest struct {
	Name          string `json:"name"`
	ServerAddress string `json:"serverAddress"`
	APIKey        string `json:"apiKey"`
}

type serverListResponse struct {
	Servers  []models.StoredServer `json:"servers"`
	ActiveID string                `json:"activeId,omitempty"`
	Busy     bool                  `json:"busy"`
}

// List returns the saved servers with keys masked
// GET /api/servers
func (h *ServersHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	list := h.ctrl.Servers(ctx)
	out := make([]models.StoredServer, 0, len(list))
	for _, s := range list {
		out = append(out, s.Redacted())
	}
	return c.JSON(serverListResponse{
		Servers:  out,
		ActiveID: h.ctrl.ActiveID(ctx),
		Busy:     h.ctrl.Busy(),
	})
}

// Add saves a new server without activating it
// POST /api/servers
func (h *ServersHandler) Add(c *fiber.Ctx) error {
	var req serverRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	s, err := h.ctrl.AddServer(c.UserContext(), req.Name, req.ServerAddress, req.APIKey)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(s.Redacted())
}

// Update replaces a saved server. An empty apiKey keeps the stored key as
// long as the address is unchanged.
// PUT /api/servers/:id
func (h *ServersHandler) Update(c *fiber.Ctx) error {
	var req serverRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	id := c.Params("id")
	apiKey := req.APIKey
	if strings.TrimSpace(apiKey) == "" {
		for _, s := range h.ctrl.Servers(c.UserContext()) {
			if s.ID != id {
				continue
			}
			// A saved key is only ever sent to the address it was saved for.
			if strings.TrimSpace(req.ServerAddress) != s.ServerAddress {
				return writeError(c, &auth.Error{
					Kind:   auth.KindValidation,
					Detail: "API key is required when changing the server address",
				})
			}
			apiKey = s.APIKey
			break
		}
	}

	s, err := h.ctrl.UpdateServer(c.UserContext(), models.StoredServer{
		ID:            id,
		Name:          req.Name,
		ServerAddress: req.ServerAddress,
		APIKey:        apiKey,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(s.Redacted())
}

// Remove deletes a saved server
// DELETE /api/servers/:id
func (h *ServersHandler) Remove(c *fiber.Ctx) error {
	if err := h.ctrl.RemoveServer(c.UserContext(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Activate validates a saved server and makes it active
// POST /api/servers/:id/activate
func (h *ServersHandler) Activate(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.ctrl.MakeActive(c.UserContext(), id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "activeId": id})
}
