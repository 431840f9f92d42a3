package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/unraidmate/console/pkg/graphql"
)

// ClientSource hands out the shared API client
type ClientSource interface {
	Current() *graphql.Client
}

// GraphQLHandler forwards UI operations through the shared client so the
// API key never reaches the browser.
type GraphQLHandler struct {
	clients ClientSource
}

// NewGraphQLHandler creates a new GraphQL proxy handler
func NewGraphQLHandler(clients ClientSource) *GraphQLHandler {
	return &GraphQLHandler{clients: clients}
}

type graphqlRequest struct {
	graphql.Request
	FetchPolicy string `json:"fetchPolicy,omitempty"`
}

type graphqlResponse struct {
	Data      json.RawMessage `json:"data"`
	FromCache bool            `json:"fromCache,omitempty"`
	CachedAt  string          `json:"cachedAt,omitempty"`
}

// Proxy runs one query or mutation
// POST /api/graphql
func (h *GraphQLHandler) Proxy(c *fiber.Ctx) error {
	var req graphqlRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return badRequest(c, "query is required")
	}

	client := h.clients.Current()
	resp, err := client.Exec(c.UserContext(), req.Request, graphql.WithFetchPolicy(graphql.ParseFetchPolicy(req.FetchPolicy)))
	if err != nil {
		return writeError(c, err)
	}

	out := graphqlResponse{Data: json.RawMessage(resp.Data.Raw), FromCache: resp.FromCache}
	if resp.Data.Raw == "" {
		out.Data = json.RawMessage("null")
	}
	if resp.FromCache {
		out.CachedAt = resp.CachedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return c.JSON(out)
}
