package session

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/igefined/generic-trader/internal/domain"
)

var testNow = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

type memoryStore struct {
	session domain.Session
	loadErr error
	saved   []domain.Session
}

func (m *memoryStore) Load() (domain.Session, error) {
	return m.session, m.loadErr
}

func (m *memoryStore) Save(s domain.Session) error {
	m.saved = append(m.saved, s)
	m.session, m.loadErr = s, nil
	return nil
}

type fakeAuth struct {
	session    domain.Session
	err        error
	calls      int
	refreshed  domain.Session
	refreshErr error
	refreshes  int
}

func (f *fakeAuth) Authenticate(context.Context) (domain.Session, error) {
	f.calls++
	return f.session, f.err
}

type fakeRefreshingAuth struct{ *fakeAuth }

func (f fakeRefreshingAuth) Refresh(_ context.Context, s domain.Session) (domain.Session, error) {
	f.refreshes++
	return f.refreshed, f.refreshErr
}

func valid(token string) domain.Session {
	return domain.Session{
		AccessToken:     token,
		RefreshToken:    "refresh-" + token,
		AccessExpiresAt: testNow.Add(30 * time.Minute),
		ExpiresAt:       testNow.Add(90 * 24 * time.Hour),
		AccountID:       "123456789",
	}
}

func newTestManager(t *testing.T, store Store, auth AuthProvider) *Manager {
	m := NewManager("td", store, auth, zaptest.NewLogger(t))
	m.now = func() time.Time { return testNow }
	return m
}

func TestStartReusesPersistedSession(t *testing.T) {
	store := &memoryStore{session: valid("persisted")}
	auth := &fakeAuth{session: valid("fresh")}
	m := newTestManager(t, store, auth)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	if auth.calls != 0 {
		t.Errorf("login flow ran %d times, expected fast path", auth.calls)
	}
	if len(store.saved) != 0 {
		t.Errorf("persisted session was rewritten")
	}

	s, err := m.Current(context.Background())
	if err != nil {
		t.Fatalf("Current() unexpected error: %v", err)
	}
	if s.AccessToken != "persisted" {
		t.Errorf("AccessToken = %q, expected persisted", s.AccessToken)
	}
}

func TestStartFallsBackToLogin(t *testing.T) {
	expired := valid("old")
	expired.ExpiresAt = testNow.Add(-time.Hour)

	tests := []struct {
		name  string
		store *memoryStore
	}{
		{name: "no token file", store: &memoryStore{loadErr: fs.ErrNotExist}},
		{name: "expired token", store: &memoryStore{session: expired}},
		{name: "unreadable token", store: &memoryStore{loadErr: errors.New("bad json")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &fakeAuth{session: valid("fresh")}
			m := newTestManager(t, tt.store, auth)

			if err := m.Start(context.Background()); err != nil {
				t.Fatalf("Start() unexpected error: %v", err)
			}
			if auth.calls != 1 {
				t.Errorf("login flow ran %d times, expected 1", auth.calls)
			}
			if len(tt.store.saved) != 1 || tt.store.saved[0].AccessToken != "fresh" {
				t.Errorf("saved = %+v, expected the fresh session", tt.store.saved)
			}
			if m.State() != Authenticated {
				t.Errorf("State() = %s", m.State())
			}
		})
	}
}

func TestStartAuthenticationFailed(t *testing.T) {
	store := &memoryStore{loadErr: fs.ErrNotExist}
	auth := &fakeAuth{err: errors.New("chrome not found")}
	m := newTestManager(t, store, auth)

	err := m.Start(context.Background())
	if !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("Start() error = %v, expected ErrAuthenticationFailed", err)
	}
	if len(store.saved) != 0 {
		t.Error("no session must be persisted after a failed login")
	}
	if m.State() != Unauthenticated {
		t.Errorf("State() = %s, expected unauthenticated", m.State())
	}
	if _, err := m.Current(context.Background()); !errors.Is(err, domain.ErrSessionExpired) {
		t.Errorf("Current() error = %v, expected ErrSessionExpired", err)
	}
}

func TestCurrentExpiredDoesNotLogin(t *testing.T) {
	store := &memoryStore{session: valid("persisted")}
	auth := &fakeAuth{session: valid("fresh")}
	m := newTestManager(t, store, auth)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	m.now = func() time.Time { return testNow.Add(91 * 24 * time.Hour) }
	if _, err := m.Current(context.Background()); !errors.Is(err, domain.ErrSessionExpired) {
		t.Errorf("Current() error = %v, expected ErrSessionExpired", err)
	}
	if auth.calls != 0 {
		t.Errorf("Current() must not start a login flow")
	}
}

func TestCurrentRefreshesStaleAccessToken(t *testing.T) {
	store := &memoryStore{session: valid("persisted")}
	auth := fakeRefreshingAuth{&fakeAuth{refreshed: valid("renewed")}}
	m := newTestManager(t, store, auth)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	m.now = func() time.Time { return testNow.Add(29 * time.Minute) }
	s, err := m.Current(context.Background())
	if err != nil {
		t.Fatalf("Current() unexpected error: %v", err)
	}
	if s.AccessToken != "renewed" {
		t.Errorf("AccessToken = %q, expected renewed", s.AccessToken)
	}
	if auth.refreshes != 1 || auth.calls != 0 {
		t.Errorf("refreshes = %d, logins = %d", auth.refreshes, auth.calls)
	}
	if len(store.saved) != 1 {
		t.Errorf("refreshed session should be persisted")
	}
}

func TestCurrentRefreshFailure(t *testing.T) {
	store := &memoryStore{session: valid("persisted")}
	auth := fakeRefreshingAuth{&fakeAuth{refreshErr: errors.New("invalid_grant")}}
	m := newTestManager(t, store, auth)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	m.now = func() time.Time { return testNow.Add(time.Hour) }
	if _, err := m.Current(context.Background()); !errors.Is(err, domain.ErrSessionExpired) {
		t.Errorf("Current() error = %v, expected ErrSessionExpired", err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens", "td.json")
	store := NewFileStore(path)

	if _, err := store.Load(); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Load() on missing file error = %v, expected fs.ErrNotExist", err)
	}

	want := valid("abc")
	if err := store.Save(want); err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file permissions = %o, expected 600", perm)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if got.AccessToken != want.AccessToken || !got.ExpiresAt.Equal(want.ExpiresAt) || got.AccountID != want.AccountID {
		t.Errorf("Load() = %+v, expected %+v", got, want)
	}
}
