package auth

import (
	"context"
	"log"
	"sync"

	"github.com/unraidmate/console/pkg/graphql"
	"github.com/unraidmate/console/pkg/models"
)

// CredentialStore is the persistence the manager needs
type CredentialStore interface {
	GetActive(ctx context.Context) *models.Credentials
	Session(ctx context.Context) models.Session
	SetActive(ctx context.Context, c models.Credentials) error
	ClearActive(ctx context.Context) error
	IsAuthenticated(ctx context.Context) bool
}

// ClientProvider owns the shared API client
type ClientProvider interface {
	Rebuild(ctx context.Context) *graphql.Client
	ClearStore(ctx context.Context) error
}

// Status is the result of CheckAuth
type Status struct {
	LoggedIn  bool           `json:"loggedIn"`
	Session   models.Session `json:"session"`
	Verified  bool           `json:"verified,omitempty"`
	Reachable bool           `json:"reachable,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind ErrorKind      `json:"errorKind,omitempty"`
}

// Manager validates, persists and clears the active session
type Manager struct {
	creds     CredentialStore
	validator Validator
	clients   ClientProvider

	mu        sync.RWMutex
	listeners []func(models.Session)
}

// NewManager creates an auth manager
func NewManager(creds CredentialStore, validator Validator, clients ClientProvider) *Manager {
	return &Manager{creds: creds, validator: validator, clients: clients}
}

// Validate checks c without persisting anything
func (m *Manager) Validate(ctx context.Context, c models.Credentials) Result {
	return m.validator.Validate(ctx, c)
}

// Login validates c and, only on success, stores it as the active server and
// rebuilds the shared client. On failure nothing is persisted.
func (m *Manager) Login(ctx context.Context, c models.Credentials) error {
	c = c.Trimmed()
	if !c.Complete() {
		return newValidationError("server address and API key are required")
	}
	result := m.validator.Validate(ctx, c)
	if !result.Success {
		if result.Err == nil {
			return &Error{Kind: KindUnknown, Detail: result.ErrorMessage}
		}
		return result.Err
	}

	if err := m.creds.SetActive(ctx, c); err != nil {
		log.Printf("[auth] failed to persist credentials: %v", err)
		return &Error{Kind: KindStorage, Err: err}
	}

	// credentials are already persisted, so the client must follow them even
	// if the caller goes away
	m.clients.Rebuild(context.WithoutCancel(ctx))
	log.Printf("[auth] logged in to %s (key %s)", c.ServerAddress, models.MaskKey(c.APIKey))
	m.notify(models.LoggedIn(c))
	return nil
}

// Logout clears the active credentials. Clearing the client cache is best
// effort; clearing local credentials is not.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.clients.ClearStore(ctx); err != nil {
		log.Printf("[auth] cache clear failed during logout: %v", err)
	}

	err := m.creds.ClearActive(ctx)
	if err != nil {
		log.Printf("[auth] clear credentials failed, retrying: %v", err)
		err = m.creds.ClearActive(context.WithoutCancel(ctx))
	}

	m.clients.Rebuild(context.WithoutCancel(ctx))
	m.notify(models.LoggedOut())

	if err != nil {
		return &Error{Kind: KindStorage, Err: err}
	}
	log.Printf("[auth] logged out")
	return nil
}

// IsLoggedIn reads the stored authenticated flag without re-validating
func (m *Manager) IsLoggedIn(ctx context.Context) bool {
	return m.creds.IsAuthenticated(ctx)
}

// CheckAuth reports the stored session. With verify set, the stored
// credentials are also validated against the server.
func (m *Manager) CheckAuth(ctx context.Context, verify bool) Status {
	status := Status{
		LoggedIn: m.creds.IsAuthenticated(ctx),
		Session:  m.creds.Session(ctx),
	}
	if !status.LoggedIn {
		status.Session = models.LoggedOut()
		return status
	}
	if !verify || !status.Session.Active() {
		return status
	}

	status.Verified = true
	result := m.validator.Validate(ctx, *status.Session.Credentials)
	status.Reachable = result.Success
	if !result.Success {
		status.Error = result.ErrorMessage
		if result.Err != nil {
			status.ErrorKind = result.Err.Kind
		}
	}
	return status
}

// Active returns the active credentials, nil when logged out
func (m *Manager) Active(ctx context.Context) *models.Credentials {
	return m.creds.GetActive(ctx)
}

// OnSessionChange registers fn to run after every login or logout
func (m *Manager) OnSessionChange(fn func(models.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) notify(s models.Session) {
	m.mu.RLock()
	listeners := append([]func(models.Session){}, m.listeners...)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(s)
	}
}
