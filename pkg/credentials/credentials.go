// Package credentials persists the active server credentials and the list of
// saved servers on top of a flat key-value store.
//
// Reads never fail: a storage or parse error degrades to "logged out" or
// "no saved servers" and is logged. Writes return their errors so callers can
// tell the user an operation did not complete.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/unraidmate/console/pkg/models"
	"github.com/unraidmate/console/pkg/store"
)

// Store is the credential store
type Store struct {
	kv store.Store
}

// New creates a credential store backed by kv
func New(kv store.Store) *Store {
	return &Store{kv: kv}
}

// GetActive returns the active credentials, or nil when logged out or on any
// storage failure.
func (s *Store) GetActive(ctx context.Context) *models.Credentials {
	values, err := s.kv.MultiGet(ctx, store.KeyServerAddress, store.KeyAPIKey)
	if err != nil {
		log.Printf("[credentials] failed to read active credentials: %v", err)
		return nil
	}
	addr, key := values[store.KeyServerAddress], values[store.KeyAPIKey]
	if addr == "" || key == "" {
		return nil
	}
	return &models.Credentials{ServerAddress: addr, APIKey: key}
}

// Session returns the active credentials as a Session
func (s *Store) Session(ctx context.Context) models.Session {
	if c := s.GetActive(ctx); c != nil {
		return models.LoggedIn(*c)
	}
	return models.LoggedOut()
}

// SetActive overwrites the active credentials and marks the store authenticated.
// All three keys are written in one batch.
func (s *Store) SetActive(ctx context.Context, c models.Credentials) error {
	err := s.kv.MultiSet(ctx, map[string]string{
		store.KeyServerAddress:   c.ServerAddress,
		store.KeyAPIKey:          c.APIKey,
		store.KeyIsAuthenticated: strconv.FormatBool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to save active credentials: %w", err)
	}
	return nil
}

// ClearActive removes the active credentials and the authenticated flag
func (s *Store) ClearActive(ctx context.Context) error {
	err := s.kv.MultiRemove(ctx, store.KeyServerAddress, store.KeyAPIKey, store.KeyIsAuthenticated)
	if err != nil {
		return fmt.Errorf("failed to clear active credentials: %w", err)
	}
	return nil
}

// IsAuthenticated reads the authenticated flag. It does not touch the network.
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	v, ok, err := s.kv.Get(ctx, store.KeyIsAuthenticated)
	if err != nil {
		log.Printf("[credentials] failed to read auth flag: %v", err)
		return false
	}
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// ListSaved returns the saved servers in insertion order. Any read or parse
// failure yields an empty list.
func (s *Store) ListSaved(ctx context.Context) []models.StoredServer {
	raw, ok, err := s.kv.Get(ctx, store.KeySavedServers)
	if err != nil {
		log.Printf("[credentials] failed to read saved servers: %v", err)
		return []models.StoredServer{}
	}
	if !ok || raw == "" {
		return []models.StoredServer{}
	}
	var servers []models.StoredServer
	if err := json.Unmarshal([]byte(raw), &servers); err != nil {
		log.Printf("[credentials] failed to parse saved servers: %v", err)
		return []models.StoredServer{}
	}
	if servers == nil {
		servers = []models.StoredServer{}
	}
	return servers
}

// SaveAll replaces the entire saved server list
func (s *Store) SaveAll(ctx context.Context, servers []models.StoredServer) error {
	if servers == nil {
		servers = []models.StoredServer{}
	}
	data, err := json.Marshal(servers)
	if err != nil {
		return fmt.Errorf("failed to marshal saved servers: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeySavedServers, string(data)); err != nil {
		return fmt.Errorf("failed to save servers: %w", err)
	}
	return nil
}
