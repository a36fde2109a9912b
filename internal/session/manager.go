// Package session owns provider credentials: it loads a persisted token at
// startup, falls back to an AuthProvider when none is usable, and hands the
// resulting session to adapters read-only.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/domain"
)

type State int32

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// AuthProvider obtains a fresh session, possibly with a human at a browser.
type AuthProvider interface {
	Authenticate(ctx context.Context) (domain.Session, error)
}

// Refresher renews a stale access token without user interaction.
type Refresher interface {
	Refresh(ctx context.Context, s domain.Session) (domain.Session, error)
}

// Source is the read-only view adapters hold.
type Source interface {
	Current(ctx context.Context) (domain.Session, error)
}

// Manager is the only writer of its session.
type Manager struct {
	name   string
	store  Store
	auth   AuthProvider
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	state   State
	session domain.Session
}

func NewManager(name string, store Store, auth AuthProvider, logger *zap.Logger) *Manager {
	return &Manager{
		name:   name,
		store:  store,
		auth:   auth,
		logger: logger.Named("session").With(zap.String("provider", name)),
		now:    time.Now,
	}
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Start performs the single Unauthenticated -> Authenticated transition.
// A persisted unexpired session is reused; otherwise the AuthProvider runs and
// its result is persisted before the transition.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Authenticated {
		return nil
	}

	s, err := m.store.Load()
	switch {
	case err == nil && !s.Expired(m.now()):
		m.logger.Info("Loaded persisted session", zap.Time("expires_at", s.ExpiresAt))
		m.session, m.state = s, Authenticated
		return nil
	case err == nil:
		m.logger.Info("Persisted session expired, starting login flow", zap.Time("expires_at", s.ExpiresAt))
	case errors.Is(err, fs.ErrNotExist):
		m.logger.Info("No persisted session, starting login flow")
	default:
		m.logger.Warn("Persisted session unreadable, starting login flow", zap.Error(err))
	}

	started := m.now()
	s, err = m.auth.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", m.name, domain.ErrAuthenticationFailed, err)
	}
	if s.Empty() {
		return fmt.Errorf("%s: %w: login returned no access token", m.name, domain.ErrAuthenticationFailed)
	}

	if err := m.store.Save(s); err != nil {
		return fmt.Errorf("%s: persist session: %w", m.name, err)
	}

	m.logger.Info("Authenticated",
		zap.Duration("execution_time", m.now().Sub(started)),
		zap.Time("expires_at", s.ExpiresAt))
	m.session, m.state = s, Authenticated
	return nil
}

// Current returns the session for one request. It never starts a login flow:
// an unauthenticated or expired manager fails with ErrSessionExpired. A stale
// access token is renewed when the AuthProvider is also a Refresher.
func (m *Manager) Current(ctx context.Context) (domain.Session, error) {
	m.mu.RLock()
	state, s := m.state, m.session
	m.mu.RUnlock()

	now := m.now()
	if state != Authenticated {
		return domain.Session{}, fmt.Errorf("%s: %w: not authenticated", m.name, domain.ErrSessionExpired)
	}
	if s.Expired(now) {
		return domain.Session{}, fmt.Errorf("%s: %w at %s", m.name, domain.ErrSessionExpired, s.ExpiresAt.Format(time.RFC3339))
	}
	if !s.AccessStale(now) {
		return s, nil
	}

	refresher, ok := m.auth.(Refresher)
	if !ok {
		if now.Before(s.AccessExpiresAt) {
			return s, nil
		}
		return domain.Session{}, fmt.Errorf("%s: %w: access token expired", m.name, domain.ErrSessionExpired)
	}

	return m.refresh(ctx, refresher)
}

func (m *Manager) refresh(ctx context.Context, refresher Refresher) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Another request may have refreshed while we waited for the lock.
	if !m.session.AccessStale(m.now()) {
		return m.session, nil
	}

	s, err := refresher.Refresh(ctx, m.session)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%s: %w: refresh: %w", m.name, domain.ErrSessionExpired, err)
	}
	if s.AccountID == "" {
		s.AccountID = m.session.AccountID
	}

	if err := m.store.Save(s); err != nil {
		m.logger.Error("Failed to persist refreshed session", zap.Error(err))
	}

	m.logger.Debug("Refreshed access token", zap.Time("access_expires_at", s.AccessExpiresAt))
	m.session = s
	return s, nil
}
