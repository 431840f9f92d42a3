// Package servers manages the saved server list and switching the active
// server.
//
// Every mutation reads the whole list, changes it and writes it back. The
// controller runs these read-modify-write cycles one at a time; callers that
// arrive while one is running wait their turn or give up when their context
// ends.
package servers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/unraidmate/console/pkg/auth"
	"github.com/unraidmate/console/pkg/models"
)

// ErrNotFound is returned when no saved server has the requested id
var ErrNotFound = errors.New("server not found")

// SavedList persists the saved servers
type SavedList interface {
	ListSaved(ctx context.Context) []models.StoredServer
	SaveAll(ctx context.Context, servers []models.StoredServer) error
}

// Session activates and deactivates servers
type Session interface {
	Login(ctx context.Context, c models.Credentials) error
	Logout(ctx context.Context) error
	Active(ctx context.Context) *models.Credentials
}

// Controller is the server switch controller
type Controller struct {
	list    SavedList
	session Session
	sem     *semaphore.Weighted
	busy    atomic.Bool
	newID   func() string
}

// NewController creates a controller
func NewController(list SavedList, session Session) *Controller {
	return &Controller{
		list:    list,
		session: session,
		sem:     semaphore.NewWeighted(1),
		newID:   func() string { return uuid.New().String() },
	}
}

// Busy reports whether a mutation is in progress
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Servers returns the saved servers in insertion order
func (c *Controller) Servers(ctx context.Context) []models.StoredServer {
	return c.list.ListSaved(ctx)
}

// ActiveID returns the id of the first saved server whose credentials are
// active, or "" if none match.
func (c *Controller) ActiveID(ctx context.Context) string {
	active := c.session.Active(ctx)
	if active == nil {
		return ""
	}
	for _, s := range c.list.ListSaved(ctx) {
		if s.Credentials() == *active {
			return s.ID
		}
	}
	return ""
}

// AddServer validates the fields and appends a new server with a fresh id
func (c *Controller) AddServer(ctx context.Context, name, address, apiKey string) (models.StoredServer, error) {
	s, err := newStoredServer("", name, address, apiKey)
	if err != nil {
		return models.StoredServer{}, err
	}

	unlock, err := c.lock(ctx)
	if err != nil {
		return models.StoredServer{}, err
	}
	defer unlock()

	list := c.list.ListSaved(ctx)
	ids := make(map[string]bool, len(list))
	for _, existing := range list {
		ids[existing.ID] = true
	}
	s.ID = c.newID()
	for ids[s.ID] {
		s.ID = c.newID()
	}

	if err := c.list.SaveAll(ctx, append(list, s)); err != nil {
		return models.StoredServer{}, &auth.Error{Kind: auth.KindStorage, Err: err}
	}
	log.Printf("[servers] added %q (%s)", s.Name, s.ServerAddress)
	return s, nil
}

// UpdateServer replaces the saved server with the same id. If it was the
// active server, the new credentials are logged in.
func (c *Controller) UpdateServer(ctx context.Context, updated models.StoredServer) (models.StoredServer, error) {
	s, err := newStoredServer(updated.ID, updated.Name, updated.ServerAddress, updated.APIKey)
	if err != nil {
		return models.StoredServer{}, err
	}

	unlock, err := c.lock(ctx)
	if err != nil {
		return models.StoredServer{}, err
	}
	defer unlock()

	list := c.list.ListSaved(ctx)
	idx := indexOf(list, s.ID)
	if idx < 0 {
		return models.StoredServer{}, ErrNotFound
	}
	wasActive := c.isActive(ctx, list[idx])

	list[idx] = s
	if err := c.list.SaveAll(ctx, list); err != nil {
		return models.StoredServer{}, &auth.Error{Kind: auth.KindStorage, Err: err}
	}

	if wasActive {
		if err := c.session.Login(ctx, s.Credentials()); err != nil {
			return s, fmt.Errorf("server updated but re-activation failed: %w", err)
		}
	}
	return s, nil
}

// RemoveServer removes the server with id. Removing the server whose
// credentials are active logs out, unless another saved entry carries the
// same credentials.
func (c *Controller) RemoveServer(ctx context.Context, id string) error {
	unlock, err := c.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	list := c.list.ListSaved(ctx)
	idx := indexOf(list, id)
	if idx < 0 {
		return ErrNotFound
	}
	removed := list[idx]
	remaining := append(list[:idx:idx], list[idx+1:]...)

	if err := c.list.SaveAll(ctx, remaining); err != nil {
		return &auth.Error{Kind: auth.KindStorage, Err: err}
	}
	log.Printf("[servers] removed %q", removed.Name)

	if c.isActive(ctx, removed) && !containsCredentials(remaining, removed.Credentials()) {
		log.Printf("[servers] removed server was active, logging out")
		if err := c.session.Logout(ctx); err != nil {
			return fmt.Errorf("server removed but logout failed: %w", err)
		}
	}
	return nil
}

// MakeActive logs in to the saved server with id. If validation fails the
// previous active server stays active.
func (c *Controller) MakeActive(ctx context.Context, id string) error {
	unlock, err := c.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	list := c.list.ListSaved(ctx)
	idx := indexOf(list, id)
	if idx < 0 {
		return ErrNotFound
	}
	if err := c.session.Login(ctx, list[idx].Credentials()); err != nil {
		log.Printf("[servers] activation of %q failed: %v", list[idx].Name, err)
		return err
	}
	log.Printf("[servers] %q is now active", list[idx].Name)
	return nil
}

func (c *Controller) lock(ctx context.Context) (func(), error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	c.busy.Store(true)
	return func() {
		c.busy.Store(false)
		c.sem.Release(1)
	}, nil
}

func (c *Controller) isActive(ctx context.Context, s models.StoredServer) bool {
	active := c.session.Active(ctx)
	return active != nil && *active == s.Credentials()
}

func newStoredServer(id, name, address, apiKey string) (models.StoredServer, error) {
	s := models.StoredServer{
		ID:            id,
		Name:          strings.TrimSpace(name),
		ServerAddress: strings.TrimSpace(address),
		APIKey:        strings.TrimSpace(apiKey),
	}
	var missing []string
	if s.Name == "" {
		missing = append(missing, "name")
	}
	if s.ServerAddress == "" {
		missing = append(missing, "server address")
	}
	if s.APIKey == "" {
		missing = append(missing, "API key")
	}
	if len(missing) > 0 {
		return models.StoredServer{}, &auth.Error{
			Kind:   auth.KindValidation,
			Detail: "missing " + strings.Join(missing, ", "),
		}
	}
	return s, nil
}

func indexOf(list []models.StoredServer, id string) int {
	for i, s := range list {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func containsCredentials(list []models.StoredServer, c models.Credentials) bool {
	for _, s := range list {
		if s.Credentials() == c {
			return true
		}
	}
	return false
}
