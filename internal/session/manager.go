package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hjemla/easeewatch/internal/api/easee"
	"github.com/hjemla/easeewatch/internal/credentials"
)

// AuthAPI is the slice of the Easee client the session manager needs.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (*easee.TokenResponse, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*easee.TokenResponse, error)
}

// Manager owns the process's single authenticated session. The token triple
// (access token, refresh token, expiry) is guarded by one mutex and only ever
// written as a unit, so readers can never observe a token without its matching
// expiry. Concurrent EnsureValid calls collapse into one login or refresh.
type Manager struct {
	logger *zap.Logger
	api    AuthAPI
	creds  credentials.Provider

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time

	sf        singleflight.Group
	lifecycle *lifecycle

	now func() time.Time
}

// NewManager creates a session manager. The session starts empty; the first
// EnsureValid call performs the initial login.
func NewManager(logger *zap.Logger, api AuthAPI, creds credentials.Provider) *Manager {
	m := &Manager{
		logger: logger,
		api:    api,
		creds:  creds,
		now:    time.Now,
	}
	m.lifecycle = newLifecycle(func(from, to string) {
		logger.Info("Session state changed", zap.String("from", from), zap.String("to", to))
	})
	return m
}

// EnsureValid makes sure a non-expired access token is held, logging in or
// refreshing as needed. Callers racing an expired session wait for the one
// in-flight auth operation and observe its result.
func (m *Manager) EnsureValid(ctx context.Context) error {
	if m.valid() {
		return nil
	}

	_, err, _ := m.sf.Do("auth", func() (interface{}, error) {
		// Another flight may have completed between the check and the Do.
		if m.valid() {
			return nil, nil
		}
		return nil, m.authenticate(ctx)
	})
	return err
}

// AccessToken returns the current access token, or "" before the first login.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessToken
}

// State returns the lifecycle state for health reporting.
func (m *Manager) State() string {
	return m.lifecycle.Current()
}

func (m *Manager) valid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessToken != "" && m.now().Before(m.expiresAt)
}

// authenticate decides between login and refresh. It runs inside the
// single-flight group, so at most one instance is active at a time.
func (m *Manager) authenticate(ctx context.Context) error {
	m.mu.RLock()
	accessToken := m.accessToken
	refreshToken := m.refreshToken
	m.mu.RUnlock()

	if accessToken == "" {
		m.logger.Debug("No session token, performing first login")
		return m.login(ctx)
	}

	m.lifecycle.trigger(EventExpired)

	if refreshToken == "" {
		m.logger.Debug("Token expired with no refresh token, logging in")
		return m.login(ctx)
	}

	m.logger.Debug("Token expired, refreshing")
	tr, err := m.api.Refresh(ctx, accessToken, refreshToken)
	if err != nil {
		// A rejected refresh means the pair is no longer honored; fall back
		// to a full login. Network or parse failures propagate untouched.
		if errors.Is(err, easee.ErrLoginFailed) || errors.Is(err, easee.ErrUnauthorized) {
			m.logger.Warn("Token refresh rejected, falling back to login", zap.Error(err))
			return m.login(ctx)
		}
		return err
	}

	m.store(tr)
	return nil
}

func (m *Manager) login(ctx context.Context) error {
	creds, err := m.creds.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("%w: credential provider: %v", easee.ErrLoginFailed, err)
	}

	tr, err := m.api.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return err
	}

	m.store(tr)
	return nil
}

// store writes the full token triple as one atomic unit. A failed login or
// refresh never reaches this point, leaving the previous session untouched.
func (m *Manager) store(tr *easee.TokenResponse) {
	expiresAt := m.now().Add(time.Duration(tr.ExpiresIn) * time.Second)

	m.mu.Lock()
	m.accessToken = tr.AccessToken
	m.refreshToken = tr.RefreshToken
	m.expiresAt = expiresAt
	m.mu.Unlock()

	m.lifecycle.trigger(EventAuthenticated)
	m.logger.Debug("Session token stored", zap.Time("expires_at", expiresAt))
}
