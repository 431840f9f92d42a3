package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/unraidmate/console/pkg/models"
)

const maxProbeDeadline = 15 * time.Second

// writeSSEEvent writes one SSE event to the buffered writer and flushes.
func writeSSEEvent(w *bufio.Writer, eventName string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[sse] marshal error: %v", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, jsonData)
	w.Flush()
}

type probeResult struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// ProbeStream validates every saved server concurrently and streams one
// "server_probe" event per server as it finishes, then "done". Nothing is
// persisted and the active server is untouched.
// GET /api/servers/probe
func (h *ServersHandler) ProbeStream(c *fiber.Ctx) error {
	list := h.ctrl.Servers(c.UserContext())

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), maxProbeDeadline)
		defer cancel()

		var wg sync.WaitGroup
		var mu sync.Mutex
		completed := 0

		for _, s := range list {
			wg.Add(1)
			go func(s models.StoredServer) {
				defer wg.Done()
				result := h.validator.Validate(ctx, s.Credentials())

				event := probeResult{ID: s.ID, Name: s.Name, Reachable: result.Success}
				if !result.Success {
					event.Error = result.ErrorMessage
					if result.Err != nil {
						event.Kind = string(result.Err.Kind)
					}
				}

				mu.Lock()
				completed++
				writeSSEEvent(w, "server_probe", event)
				mu.Unlock()
			}(s)
		}
		wg.Wait()

		writeSSEEvent(w, "done", fiber.Map{
			"totalServers":     len(list),
			"completedServers": completed,
		})
	})

	return nil
}
