package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hjemla/easeewatch/internal/api/easee"
	"github.com/hjemla/easeewatch/internal/credentials"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeAuthAPI struct {
	mu           sync.Mutex
	loginCalls   int
	refreshCalls int
	loginResp    *easee.TokenResponse
	loginErr     error
	refreshResp  *easee.TokenResponse
	refreshErr   error
	delay        time.Duration
}

func (f *fakeAuthAPI) Login(ctx context.Context, username, password string) (*easee.TokenResponse, error) {
	f.mu.Lock()
	f.loginCalls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginResp, nil
}

func (f *fakeAuthAPI) Refresh(ctx context.Context, accessToken, refreshToken string) (*easee.TokenResponse, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshResp, nil
}

func (f *fakeAuthAPI) calls() (login, refresh int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.refreshCalls
}

func tokenResp(access, refresh string, expiresIn int64) *easee.TokenResponse {
	return &easee.TokenResponse{AccessToken: access, RefreshToken: refresh, ExpiresIn: expiresIn}
}

func newTestManager(api *fakeAuthAPI, clock *fakeClock) *Manager {
	m := NewManager(zap.NewNop(), api, credentials.NewStaticProvider("user", "pass"))
	m.now = clock.now
	return m
}

func TestFirstCallLogsIn(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAuthAPI{loginResp: tokenResp("A", "R", 3600)}
	m := newTestManager(api, clock)

	require.NoError(t, m.EnsureValid(context.Background()))
	require.Equal(t, "A", m.AccessToken())
	require.Equal(t, StateActive, m.State())

	login, refresh := api.calls()
	require.Equal(t, 1, login)
	require.Equal(t, 0, refresh)
}

func TestValidTokenMakesNoCalls(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAuthAPI{loginResp: tokenResp("A", "R", 3600)}
	m := newTestManager(api, clock)

	require.NoError(t, m.EnsureValid(context.Background()))

	// Well within the hour: no network traffic at all.
	clock.advance(30 * time.Minute)
	require.NoError(t, m.EnsureValid(context.Background()))

	login, refresh := api.calls()
	require.Equal(t, 1, login)
	require.Equal(t, 0, refresh)
}

func TestExpiredTokenRefreshes(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAuthAPI{
		loginResp:   tokenResp("A", "R", 3600),
		refreshResp: tokenResp("A2", "R2", 3600),
	}
	m := newTestManager(api, clock)

	require.NoError(t, m.EnsureValid(context.Background()))
	clock.advance(2 * time.Hour)

	require.NoError(t, m.EnsureValid(context.Background()))
	require.Equal(t, "A2", m.AccessToken())

	login, refresh := api.calls()
	require.Equal(t, 1, login)
	require.Equal(t, 1, refresh)
}

func TestExpiredWithoutRefreshTokenLogsIn(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAuthAPI{loginResp: tokenResp("A2", "R2", 3600)}
	m := newTestManager(api, clock)

	m.mu.Lock()
	m.accessToken = "A"
	m.refreshToken = ""
	m.expiresAt = clock.now().Add(-time.Minute)
	m.mu.Unlock()

	require.NoError(t, m.EnsureValid(context.Background()))
	require.Equal(t, "A2", m.AccessToken())

	login, refresh := api.calls()
	require.Equal(t, 1, login)
	require.Equal(t, 0, refresh)
}

func TestRejectedRefreshFallsBackToLogin(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAuthAPI{
		loginResp:  tokenResp("A2", "R2", 3600),
		refreshErr: fmt.Errorf("%w: refresh status=401", easee.ErrLoginFailed),
	}
	m := newTestManager(api, clock)

	require.NoError(t, m.EnsureValid(context.Background()))
	clock.advance(2 * time.Hour)

	require.NoError(t, m.EnsureValid(context.Background()))
	require.Equal(t, "A2", m.AccessToken())

	login, refresh := api.calls()
	require.Equal(t, 2, login)
	require.Equal(t, 1, refresh)
}

func TestRefreshNetworkFailurePropagates(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAuthAPI{
		loginResp:  tokenResp("A", "R", 3600),
		refreshErr: fmt.Errorf("%w: POST /accounts/refresh_token: timeout", easee.ErrNetworkFailure),
	}
	m := newTestManager(api, clock)

	require.NoError(t, m.EnsureValid(context.Background()))
	clock.advance(2 * time.Hour)

	err := m.EnsureValid(context.Background())
	require.ErrorIs(t, err, easee.ErrNetworkFailure)

	// No login fallback, session untouched.
	login, _ := api.calls()
	require.Equal(t, 1, login)
	require.Equal(t, "A", m.AccessToken())
}

func TestFailedLoginLeavesSessionEmpty(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAuthAPI{loginErr: fmt.Errorf("%w: login status=403", easee.ErrLoginFailed)}
	m := newTestManager(api, clock)

	err := m.EnsureValid(context.Background())
	require.ErrorIs(t, err, easee.ErrLoginFailed)
	require.Equal(t, "", m.AccessToken())
	require.Equal(t, StateAnonymous, m.State())

	// Safe to retry on the next call.
	api.mu.Lock()
	api.loginErr = nil
	api.loginResp = tokenResp("A", "R", 3600)
	api.mu.Unlock()

	require.NoError(t, m.EnsureValid(context.Background()))
	require.Equal(t, "A", m.AccessToken())
}

func TestCredentialProviderFailureIsLoginFailed(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAuthAPI{loginResp: tokenResp("A", "R", 3600)}
	m := NewManager(zap.NewNop(), api, credentials.NewStaticProvider("", ""))
	m.now = clock.now

	err := m.EnsureValid(context.Background())
	require.ErrorIs(t, err, easee.ErrLoginFailed)

	login, _ := api.calls()
	require.Equal(t, 0, login)
}

func TestConcurrentEnsureValidLogsInOnce(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAuthAPI{loginResp: tokenResp("A", "R", 3600), delay: 20 * time.Millisecond}
	m := newTestManager(api, clock)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.EnsureValid(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	login, refresh := api.calls()
	require.Equal(t, 1, login)
	require.Equal(t, 0, refresh)
}

func TestReadersAlwaysSeeMatchingExpiry(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAuthAPI{
		loginResp:   tokenResp("A", "R", 60),
		refreshResp: tokenResp("A2", "R2", 60),
	}
	m := newTestManager(api, clock)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = m.EnsureValid(context.Background())
			clock.advance(2 * time.Minute)
		}
	}()

	// A token is never observable without its expiry, and vice versa.
	for {
		m.mu.RLock()
		token, expiresAt := m.accessToken, m.expiresAt
		m.mu.RUnlock()
		require.Equal(t, token == "", expiresAt.IsZero())

		select {
		case <-done:
			return
		default:
		}
	}
}
