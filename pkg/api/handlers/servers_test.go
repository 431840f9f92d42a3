package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unraidmate/console/pkg/auth"
	"github.com/unraidmate/console/pkg/models"
	"github.com/unraidmate/console/pkg/test"
)

func setupServerRoutes(env *testEnv) {
	h := NewServersHandler(env.Servers, env.Auth)
	env.App.Get("/api/servers", h.List)
	env.App.Get("/api/servers/probe", h.ProbeStream)
	env.App.Post("/api/servers", h.Add)
	env.App.Put("/api/servers/:id", h.Update)
	env.App.Delete("/api/servers/:id", h.Remove)
	env.App.Post("/api/servers/:id/activate", h.Activate)
}

func addServer(t *testing.T, env *testEnv, name, address, key string) models.StoredServer {
	t.Helper()
	s, err := env.Servers.AddServer(t.Context(), name, address, key)
	require.NoError(t, err)
	return s
}

func TestAddServer(t *testing.T) {
	env := setupTestEnv(t)
	setupServerRoutes(env)

	resp, err := env.App.Test(jsonRequest("POST", "/api/servers",
		`{"name":"NAS","serverAddress":"http://10.0.0.5:3001/graphql","apiKey":"abcdefgh"}`), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.StoredServer
	decodeBody(t, resp, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "****efgh", created.APIKey)

	saved := env.Servers.Servers(t.Context())
	require.Len(t, saved, 1)
	assert.Equal(t, "abcdefgh", saved[0].APIKey, "the stored key is not masked")
	assert.Nil(t, env.Creds.GetActive(t.Context()), "adding does not activate")
}

func TestAddServer_Blank(t *testing.T) {
	env := setupTestEnv(t)
	setupServerRoutes(env)

	resp, err := env.App.Test(jsonRequest("POST", "/api/servers", `{"name":"NAS","serverAddress":"","apiKey":"k"}`), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, string(auth.KindValidation), body["kind"])
}

func TestListServers(t *testing.T) {
	env := setupTestEnv(t)
	setupServerRoutes(env)
	env.Validator.On("Validate", mock.Anything).Return(test.Accept())

	a := addServer(t, env, "a", "http://a", "key-a-1234")
	addServer(t, env, "b", "http://b", "key-b-5678")
	require.NoError(t, env.Servers.MakeActive(t.Context(), a.ID))

	resp, err := env.App.Test(httptest.NewRequest("GET", "/api/servers", nil), 5000)
	require.NoError(t, err)

	var body serverListResponse
	decodeBody(t, resp, &body)
	require.Len(t, body.Servers, 2)
	assert.Equal(t, "a", body.Servers[0].Name)
	assert.Equal(t, "b", body.Servers[1].Name)
	assert.Equal(t, a.ID, body.ActiveID)
	assert.False(t, body.Busy)
	for _, s := range body.Servers {
		assert.NotContains(t, s.APIKey, "key-")
	}
}

func TestActivateServer(t *testing.T) {
	env := setupTestEnv(t)
	setupServerRoutes(env)

	good := addServer(t, env, "good", "http://good", "k1")
	bad := addServer(t, env, "bad", "http://bad", "k2")
	env.Validator.On("Validate", good.Credentials()).Return(test.Accept())
	env.Validator.On("Validate", bad.Credentials()).Return(test.Reject(auth.KindAuthRejected))

	resp, err := env.App.Test(httptest.NewRequest("POST", "/api/servers/"+bad.ID+"/activate", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, env.Creds.GetActive(t.Context()))

	resp, err = env.App.Test(httptest.NewRequest("POST", "/api/servers/"+good.ID+"/activate", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://good", env.Provider.Current().Endpoint())

	resp, err = env.App.Test(httptest.NewRequest("POST", "/api/servers/nope/activate", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateServer_KeepsKeyWhenBlank(t *testing.T) {
	env := setupTestEnv(t)
	setupServerRoutes(env)
	s := addServer(t, env, "old", "http://tower", "original")

	resp, err := env.App.Test(jsonRequest("PUT", "/api/servers/"+s.ID, `{"name":"renamed","serverAddress":"http://tower"}`), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	saved := env.Servers.Servers(t.Context())
	require.Len(t, saved, 1)
	assert.Equal(t, "renamed", saved[0].Name)
	assert.Equal(t, "original", saved[0].APIKey)
}

func TestUpdateServer_NewAddressNeedsKey(t *testing.T) {
	env := setupTestEnv(t)
	setupServerRoutes(env)
	s := addServer(t, env, "tower", "http://tower", "original")

	resp, err := env.App.Test(jsonRequest("PUT", "/api/servers/"+s.ID, `{"name":"tower","serverAddress":"http://elsewhere"}`), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	saved := env.Servers.Servers(t.Context())
	require.Len(t, saved, 1)
	assert.Equal(t, "http://tower", saved[0].ServerAddress)
	assert.Equal(t, "original", saved[0].APIKey)

	resp, err = env.App.Test(jsonRequest("PUT", "/api/servers/"+s.ID, `{"name":"tower","serverAddress":"http://elsewhere","apiKey":"fresh"}`), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	saved = env.Servers.Servers(t.Context())
	require.Len(t, saved, 1)
	assert.Equal(t, "http://elsewhere", saved[0].ServerAddress)
	assert.Equal(t, "fresh", saved[0].APIKey)
	env.Validator.AssertNotCalled(t, "Validate", mock.Anything)
}

func TestRemoveServer(t *testing.T) {
	env := setupTestEnv(t)
	setupServerRoutes(env)
	env.Validator.On("Validate", mock.Anything).Return(test.Accept())
	s := addServer(t, env, "only", "http://tower", "k")
	require.NoError(t, env.Servers.MakeActive(t.Context(), s.ID))

	resp, err := env.App.Test(httptest.NewRequest("DELETE", "/api/servers/"+s.ID, nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, env.Servers.Servers(t.Context()))
	assert.False(t, env.Auth.IsLoggedIn(t.Context()), "removing the active server logs out")

	resp, err = env.App.Test(httptest.NewRequest("DELETE", "/api/servers/"+s.ID, nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProbeStream(t *testing.T) {
	env := setupTestEnv(t)
	setupServerRoutes(env)

	up := addServer(t, env, "up", "http://up", "k1")
	down := addServer(t, env, "down", "http://down", "k2")
	env.Validator.On("Validate", up.Credentials()).Return(test.Accept())
	env.Validator.On("Validate", down.Credentials()).Return(test.Reject(auth.KindConnectionRefused))

	resp, err := env.App.Test(httptest.NewRequest("GET", "/api/servers/probe", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.Equal(t, 2, strings.Count(body, "event: server_probe"))
	assert.Contains(t, body, `"id":"`+up.ID+`","name":"up","reachable":true`)
	assert.Contains(t, body, `"kind":"connection_refused"`)
	assert.Contains(t, body, "event: done")
	assert.NotContains(t, body, "k1")
	assert.Nil(t, env.Creds.GetActive(t.Context()), "probing activates nothing")
}
