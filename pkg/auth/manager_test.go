package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unraidmate/console/pkg/credentials"
	"github.com/unraidmate/console/pkg/graphql"
	"github.com/unraidmate/console/pkg/models"
	"github.com/unraidmate/console/pkg/store"
)

// stubValidator returns a fixed result and records candidates
type stubValidator struct {
	mu      sync.Mutex
	result  Result
	checked []models.Credentials
}

func (s *stubValidator) Validate(ctx context.Context, c models.Credentials) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked = append(s.checked, c)
	return s.result
}

// fakeProvider counts rebuilds and can fail cache clears
type fakeProvider struct {
	rebuilds         int
	cancelledRebuild bool
	clearErr         error
	clearHits        int
}

func (p *fakeProvider) Rebuild(ctx context.Context) *graphql.Client {
	p.rebuilds++
	if ctx.Err() != nil {
		p.cancelledRebuild = true
	}
	return graphql.Disconnected()
}

func (p *fakeProvider) ClearStore(ctx context.Context) error {
	p.clearHits++
	return p.clearErr
}

// flakyStore fails the first n MultiRemove calls
type flakyStore struct {
	*store.MemoryStore
	mu          sync.Mutex
	removeFails int
	setFails    bool
	afterSet    func()
}

func (f *flakyStore) MultiRemove(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	if f.removeFails > 0 {
		f.removeFails--
		f.mu.Unlock()
		return errors.New("write failed")
	}
	f.mu.Unlock()
	return f.MemoryStore.MultiRemove(ctx, keys...)
}

func (f *flakyStore) MultiSet(ctx context.Context, values map[string]string) error {
	if f.setFails {
		return errors.New("disk full")
	}
	err := f.MemoryStore.MultiSet(ctx, values)
	if f.afterSet != nil {
		f.afterSet()
	}
	return err
}

var nas = models.Credentials{ServerAddress: "http://10.0.0.5:3001/graphql", APIKey: "k1"}

func newTestManager(result Result) (*Manager, *credentials.Store, *stubValidator, *fakeProvider, *flakyStore) {
	kv := &flakyStore{MemoryStore: store.NewMemoryStore()}
	creds := credentials.New(kv)
	v := &stubValidator{result: result}
	p := &fakeProvider{}
	return NewManager(creds, v, p), creds, v, p, kv
}

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()
	m, creds, v, p, _ := newTestManager(Result{Success: true})

	var sessions []models.Session
	m.OnSessionChange(func(s models.Session) { sessions = append(sessions, s) })

	require.NoError(t, m.Login(ctx, models.Credentials{ServerAddress: " " + nas.ServerAddress, APIKey: nas.APIKey + "\n"}))

	assert.Equal(t, &nas, creds.GetActive(ctx))
	assert.True(t, m.IsLoggedIn(ctx))
	assert.Equal(t, []models.Credentials{nas}, v.checked)
	assert.Equal(t, 1, p.rebuilds)
	assert.Equal(t, []models.Session{models.LoggedIn(nas)}, sessions)
}

func TestLogin_FailureDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	timeout := &Error{Kind: KindTimeout}
	m, creds, _, p, _ := newTestManager(Result{Success: false, ErrorMessage: "timeout", Err: timeout})

	err := m.Login(ctx, nas)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Nil(t, creds.GetActive(ctx))
	assert.False(t, m.IsLoggedIn(ctx))
	assert.Equal(t, 0, p.rebuilds)
}

func TestLogin_FailureWithoutTypedError(t *testing.T) {
	m, _, _, _, _ := newTestManager(Result{Success: false, ErrorMessage: "nope"})
	err := m.Login(context.Background(), nas)
	require.Error(t, err)
	assert.Equal(t, KindUnknown, KindOf(err))
}

func TestLogin_StorageFailure(t *testing.T) {
	ctx := context.Background()
	m, creds, _, p, kv := newTestManager(Result{Success: true})
	kv.setFails = true

	err := m.Login(ctx, nas)
	assert.Equal(t, KindStorage, KindOf(err))
	assert.Nil(t, creds.GetActive(ctx))
	assert.Equal(t, 0, p.rebuilds)
}

func TestLogin_BlankCredentialsRejected(t *testing.T) {
	ctx := context.Background()
	m, creds, v, p, _ := newTestManager(Result{Success: true})

	err := m.Login(ctx, models.Credentials{ServerAddress: "  ", APIKey: "k1"})
	assert.Equal(t, KindValidation, KindOf(err))
	err = m.Login(ctx, models.Credentials{ServerAddress: nas.ServerAddress})
	assert.Equal(t, KindValidation, KindOf(err))

	assert.Empty(t, v.checked, "blank credentials never reach the validator")
	assert.Nil(t, creds.GetActive(ctx))
	assert.False(t, m.IsLoggedIn(ctx))
	assert.Equal(t, 0, p.rebuilds)
}

func TestLogin_CallerCancelledAfterPersist(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m, creds, _, p, kv := newTestManager(Result{Success: true})
	kv.afterSet = cancel

	require.NoError(t, m.Login(ctx, nas))
	assert.Equal(t, &nas, creds.GetActive(context.Background()))
	assert.Equal(t, 1, p.rebuilds)
	assert.False(t, p.cancelledRebuild, "rebuild must not inherit the caller's cancellation")
}

func TestLogout_AlwaysLogsOut(t *testing.T) {
	ctx := context.Background()
	m, creds, _, p, kv := newTestManager(Result{Success: true})
	require.NoError(t, m.Login(ctx, nas))

	p.clearErr = errors.New("network unreachable")
	kv.removeFails = 1

	require.NoError(t, m.Logout(ctx))
	assert.False(t, m.IsLoggedIn(ctx))
	assert.Nil(t, creds.GetActive(ctx))
	assert.Equal(t, 1, p.clearHits)
	assert.Equal(t, 2, p.rebuilds)
}

func TestLogout_PersistentStorageFailure(t *testing.T) {
	ctx := context.Background()
	m, _, _, p, kv := newTestManager(Result{Success: true})
	require.NoError(t, m.Login(ctx, nas))

	kv.removeFails = 2
	err := m.Logout(ctx)
	assert.Equal(t, KindStorage, KindOf(err))
	assert.Equal(t, 2, p.rebuilds, "client is rebuilt even when logout fails")
}

func TestCheckAuth(t *testing.T) {
	ctx := context.Background()
	m, _, v, _, _ := newTestManager(Result{Success: true})

	status := m.CheckAuth(ctx, true)
	assert.False(t, status.LoggedIn)
	assert.Equal(t, models.LoggedOut(), status.Session)
	assert.Empty(t, v.checked, "logged-out check does not hit the network")

	require.NoError(t, m.Login(ctx, nas))

	status = m.CheckAuth(ctx, false)
	assert.True(t, status.LoggedIn)
	assert.False(t, status.Verified)
	assert.Equal(t, models.LoggedIn(nas), status.Session)

	v.result = Result{Success: false, ErrorMessage: "refused", Err: &Error{Kind: KindConnectionRefused}}
	status = m.CheckAuth(ctx, true)
	assert.True(t, status.LoggedIn, "a failed verify does not log out")
	assert.True(t, status.Verified)
	assert.False(t, status.Reachable)
	assert.Equal(t, KindConnectionRefused, status.ErrorKind)
}
