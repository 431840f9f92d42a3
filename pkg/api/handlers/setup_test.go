package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/unraidmate/console/pkg/auth"
	"github.com/unraidmate/console/pkg/credentials"
	"github.com/unraidmate/console/pkg/graphql"
	"github.com/unraidmate/console/pkg/servers"
	"github.com/unraidmate/console/pkg/settings"
	"github.com/unraidmate/console/pkg/store"
	"github.com/unraidmate/console/pkg/test"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	App       *fiber.App
	Store     *store.MemoryStore
	Creds     *credentials.Store
	Settings  *settings.SettingsManager
	Validator *test.MockValidator
	Provider  *graphql.Provider
	Auth      *auth.Manager
	Servers   *servers.Controller
	Hub       *Hub
}

// setupTestEnv wires the real stores, provider and controllers over an
// in-memory store. Only validation is mocked.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	kv := store.NewMemoryStore()
	creds := credentials.New(kv)
	provider := graphql.NewProvider(graphql.NewFactory(creds, graphql.FactoryConfig{}))
	validator := new(test.MockValidator)
	manager := auth.NewManager(creds, validator, provider)

	hub := NewHub(testJWTSecret)
	go hub.Run()
	t.Cleanup(hub.Close)

	return &testEnv{
		App:       fiber.New(),
		Store:     kv,
		Creds:     creds,
		Settings:  settings.NewSettingsManager(kv),
		Validator: validator,
		Provider:  provider,
		Auth:      manager,
		Servers:   servers.NewController(creds, manager),
		Hub:       hub,
	}
}

// fakeUnraid is a stand-in GraphQL endpoint that records the API key of
// each request.
type fakeUnraid struct {
	*httptest.Server
	mu     sync.Mutex
	keys   []string
	status int
	body   string
}

func newFakeUnraid(t *testing.T) *fakeUnraid {
	t.Helper()
	f := &fakeUnraid{status: http.StatusOK}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphql.Request
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.keys = append(f.keys, r.Header.Get(graphql.APIKeyHeader))
		status, body := f.status, f.body
		f.mu.Unlock()

		w.WriteHeader(status)
		switch {
		case body != "":
			_, _ = w.Write([]byte(body))
		case strings.HasPrefix(strings.TrimSpace(req.Query), "mutation"):
			_, _ = w.Write([]byte(`{"data":{"array":{"start":true}}}`))
		default:
			_, _ = w.Write([]byte(`{"data":{"online":true,"info":{"os":{"hostname":"tower"}}}}`))
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeUnraid) respond(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.body = status, body
}

func (f *fakeUnraid) lastKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.keys) == 0 {
		return ""
	}
	return f.keys[len(f.keys)-1]
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, v), string(body))
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
