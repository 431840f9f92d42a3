package servers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unraidmate/console/pkg/auth"
	"github.com/unraidmate/console/pkg/credentials"
	"github.com/unraidmate/console/pkg/graphql"
	"github.com/unraidmate/console/pkg/models"
	"github.com/unraidmate/console/pkg/store"
	"github.com/unraidmate/console/pkg/test"
)

type testEnv struct {
	ctrl      *Controller
	creds     *credentials.Store
	validator *test.MockValidator
	provider  *graphql.Provider
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	creds := credentials.New(store.NewMemoryStore())
	provider := graphql.NewProvider(graphql.NewFactory(creds, graphql.FactoryConfig{}))
	validator := new(test.MockValidator)
	manager := auth.NewManager(creds, validator, provider)
	return &testEnv{
		ctrl:      NewController(creds, manager),
		creds:     creds,
		validator: validator,
		provider:  provider,
	}
}

func TestAddThenActivate(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	env.validator.On("Validate", mock.Anything).Return(test.Accept())

	s, err := env.ctrl.AddServer(ctx, " NAS ", "http://10.0.0.5:3001/graphql ", " k1")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "NAS", s.Name)

	assert.Nil(t, env.creds.GetActive(ctx), "adding does not activate")
	require.NoError(t, env.ctrl.MakeActive(ctx, s.ID))

	active := env.creds.GetActive(ctx)
	require.NotNil(t, active)
	assert.Equal(t, s.Credentials(), *active)
	assert.Equal(t, s.ID, env.ctrl.ActiveID(ctx))
	assert.Equal(t, "http://10.0.0.5:3001/graphql", env.provider.Current().Endpoint())
	env.validator.AssertCalled(t, "Validate", s.Credentials())
}

func TestAddServer_RejectsBlankFields(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.ctrl.AddServer(context.Background(), "NAS", "   ", "k1")
	require.Error(t, err)
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	assert.Empty(t, env.ctrl.Servers(context.Background()))
}

func TestAddServer_UniqueIDs(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	ids := []string{"a", "a", "b"}
	env.ctrl.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := env.ctrl.AddServer(ctx, "one", "http://one", "k")
	require.NoError(t, err)
	second, err := env.ctrl.AddServer(ctx, "two", "http://two", "k")
	require.NoError(t, err)
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "b", second.ID)
}

func TestMakeActive_FailureKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	good, err := env.ctrl.AddServer(ctx, "good", "http://good/graphql", "k1")
	require.NoError(t, err)
	bad, err := env.ctrl.AddServer(ctx, "bad", "http://bad/graphql", "k2")
	require.NoError(t, err)

	env.validator.On("Validate", bad.Credentials()).Return(test.Reject(auth.KindAuthRejected))
	err = env.ctrl.MakeActive(ctx, bad.ID)
	require.Error(t, err)
	assert.Equal(t, auth.KindAuthRejected, auth.KindOf(err))
	assert.Nil(t, env.creds.GetActive(ctx))

	env.validator.On("Validate", good.Credentials()).Return(test.Accept())
	require.NoError(t, env.ctrl.MakeActive(ctx, good.ID))
	require.Error(t, env.ctrl.MakeActive(ctx, bad.ID))

	active := env.creds.GetActive(ctx)
	require.NotNil(t, active)
	assert.Equal(t, good.Credentials(), *active)
}

func TestMakeActive_NotFound(t *testing.T) {
	env := setupTestEnv(t)
	assert.ErrorIs(t, env.ctrl.MakeActive(context.Background(), "missing"), ErrNotFound)
	assert.ErrorIs(t, env.ctrl.RemoveServer(context.Background(), "missing"), ErrNotFound)
}

func TestRemoveServer_Inactive(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	env.validator.On("Validate", mock.Anything).Return(test.Accept())

	a, _ := env.ctrl.AddServer(ctx, "a", "http://a", "ka")
	b, _ := env.ctrl.AddServer(ctx, "b", "http://b", "kb")
	require.NoError(t, env.ctrl.MakeActive(ctx, a.ID))

	require.NoError(t, env.ctrl.RemoveServer(ctx, b.ID))
	assert.Equal(t, []models.StoredServer{a}, env.ctrl.Servers(ctx))
	assert.Equal(t, a.ID, env.ctrl.ActiveID(ctx))
}

func TestRemoveServer_ActiveLogsOut(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	env.validator.On("Validate", mock.Anything).Return(test.Accept())

	a, _ := env.ctrl.AddServer(ctx, "a", "http://a", "ka")
	require.NoError(t, env.ctrl.MakeActive(ctx, a.ID))

	require.NoError(t, env.ctrl.RemoveServer(ctx, a.ID))
	assert.Empty(t, env.ctrl.Servers(ctx))
	assert.Nil(t, env.creds.GetActive(ctx))
	assert.False(t, env.creds.IsAuthenticated(ctx))
	assert.False(t, env.provider.Current().Configured())
}

func TestRemoveServer_DuplicateKeepsSession(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	env.validator.On("Validate", mock.Anything).Return(test.Accept())

	a, _ := env.ctrl.AddServer(ctx, "tower", "http://tower", "k")
	b, _ := env.ctrl.AddServer(ctx, "tower (copy)", "http://tower", "k")
	require.NoError(t, env.ctrl.MakeActive(ctx, a.ID))

	require.NoError(t, env.ctrl.RemoveServer(ctx, a.ID))
	assert.NotNil(t, env.creds.GetActive(ctx))
	assert.Equal(t, b.ID, env.ctrl.ActiveID(ctx))
}

func TestUpdateServer_ActiveReLogsIn(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	env.validator.On("Validate", mock.Anything).Return(test.Accept())

	a, _ := env.ctrl.AddServer(ctx, "a", "http://a", "old")
	require.NoError(t, env.ctrl.MakeActive(ctx, a.ID))

	a.APIKey = "new"
	updated, err := env.ctrl.UpdateServer(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "new", updated.APIKey)

	active := env.creds.GetActive(ctx)
	require.NotNil(t, active)
	assert.Equal(t, "new", active.APIKey)
}

func TestUpdateServer_InactiveDoesNotValidate(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	a, _ := env.ctrl.AddServer(ctx, "a", "http://a", "k")
	a.Name = "renamed"
	_, err := env.ctrl.UpdateServer(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "renamed", env.ctrl.Servers(ctx)[0].Name)
	env.validator.AssertNotCalled(t, "Validate", mock.Anything)

	_, err = env.ctrl.UpdateServer(ctx, models.StoredServer{ID: "nope", Name: "x", ServerAddress: "y", APIKey: "z"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentRemoves(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		s, err := env.ctrl.AddServer(ctx, name, "http://"+name, "k"+name)
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids[:2] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, env.ctrl.RemoveServer(ctx, id))
		}(id)
	}
	wg.Wait()

	remaining := env.ctrl.Servers(ctx)
	require.Len(t, remaining, 1)
	assert.Equal(t, ids[2], remaining[0].ID)
}

func TestConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ctrl.AddServer(ctx, "nas", "http://nas", "k")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, env.ctrl.Servers(ctx), 10)
}

func TestBusyWhileSwitching(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	s, err := env.ctrl.AddServer(ctx, "slow", "http://slow", "k")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	env.validator.On("Validate", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(test.Accept())

	done := make(chan error, 1)
	go func() { done <- env.ctrl.MakeActive(ctx, s.ID) }()

	<-entered
	assert.True(t, env.ctrl.Busy())

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = env.ctrl.RemoveServer(waitCtx, s.ID)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "queued caller gives up when its context ends")

	close(release)
	require.NoError(t, <-done)
	assert.False(t, env.ctrl.Busy())
	assert.Len(t, env.ctrl.Servers(ctx), 1)
}
