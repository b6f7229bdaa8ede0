// Package session owns the client-side session: acquiring a bearer token,
// validating it, refreshing it on a fixed interval and revoking it.
//
// The session is either Unauthenticated or Authenticated. Login moves it to
// Authenticated, a failed validation moves it back, and Logout forces
// Unauthenticated regardless of what the backend answers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/capture/internal/logging"
	"github.com/mesh-intelligence/capture/pkg/types"
)

// State is the authentication state of a Manager.
type State int

// Session states.
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

// TokenAPI is the part of the backend the session needs.
type TokenAPI interface {
	FetchToken(ctx context.Context, creds types.Credentials) (types.Token, error)
	RefreshToken(ctx context.Context, token string) (types.Token, error)
	RemoveToken(ctx context.Context, token string) error
	UserByToken(ctx context.Context, token string) (types.User, error)
	SetToken(token string)
}

// Record is the persisted part of a session: the token and when it was last
// refreshed.
type Record struct {
	Token       types.Token
	LastRefresh time.Time
}

// Store persists the session between runs.
type Store interface {
	// LoadSession returns the stored record. ok is false when nothing is
	// stored.
	LoadSession() (rec Record, ok bool, err error)
	SaveSession(rec Record) error
	ClearSession() error
}

// DefaultInterval is the refresh period used when none is configured.
const DefaultInterval = 10 * time.Minute

// Manager drives the session state machine. It is safe for concurrent use;
// the refresh loop and user-initiated calls may overlap.
type Manager struct {
	api      TokenAPI
	store    Store
	log      *zap.SugaredLogger
	interval time.Duration
	now      func() time.Time

	mu          sync.RWMutex
	state       State
	token       types.Token
	user        types.User
	lastRefresh time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger that receives refresh and revocation failures.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(m *Manager) { m.log = log }
}

// WithInterval sets the refresh period.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New returns an Unauthenticated Manager.
func New(api TokenAPI, store Store, opts ...Option) *Manager {
	m := &Manager{
		api:      api,
		store:    store,
		log:      logging.Nop(),
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// User returns the authenticated user.
func (m *Manager) User() (types.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user, m.state == Authenticated
}

// Token returns the token in use.
func (m *Manager) Token() (types.Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.state == Authenticated
}

// LastRefresh returns when the token was last obtained or refreshed. It is
// the zero time when logged out.
func (m *Manager) LastRefresh() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRefresh
}

// Interval returns the refresh period.
func (m *Manager) Interval() time.Duration {
	return m.interval
}

// Login exchanges credentials for a token, validates it and persists it.
// On failure the session stays Unauthenticated and the error matches
// types.ErrEmailNotFound, types.ErrWrongPassword or a transport error.
func (m *Manager) Login(ctx context.Context, creds types.Credentials) (types.User, error) {
	tok, err := m.api.FetchToken(ctx, creds)
	if err != nil {
		return types.User{}, err
	}
	user, err := m.api.UserByToken(ctx, tok.Token)
	if err != nil {
		return types.User{}, fmt.Errorf("validate new token: %w", err)
	}

	now := m.now()
	if err := m.store.SaveSession(Record{Token: tok, LastRefresh: now}); err != nil {
		return types.User{}, fmt.Errorf("save session: %w", err)
	}
	m.authenticate(tok, user, now)
	return user, nil
}

// Restore loads the stored token and validates it against the backend. Any
// failure (nothing stored, unreadable, rejected, unreachable) clears the
// local session and returns an error matching types.ErrNotAuthenticated.
func (m *Manager) Restore(ctx context.Context) (types.User, error) {
	rec, ok, err := m.store.LoadSession()
	if err != nil {
		m.reset()
		return types.User{}, fmt.Errorf("%w: load session: %v", types.ErrNotAuthenticated, err)
	}
	if !ok || !rec.Token.Valid() {
		m.reset()
		return types.User{}, types.ErrNotAuthenticated
	}

	user, err := m.api.UserByToken(ctx, rec.Token.Token)
	if err != nil {
		m.log.Debugw("stored token rejected", "error", err)
		m.reset()
		if cerr := m.store.ClearSession(); cerr != nil {
			m.log.Warnw("clear session", "error", cerr)
		}
		return types.User{}, fmt.Errorf("%w: %w", types.ErrNotAuthenticated, err)
	}

	m.authenticate(rec.Token, user, rec.LastRefresh)
	return user, nil
}

// Refresh replaces the token with a fresh one. A failure is logged and
// returned; the stale token stays in use and the session stays
// Authenticated.
func (m *Manager) Refresh(ctx context.Context) error {
	old, ok := m.Token()
	if !ok {
		return types.ErrNotAuthenticated
	}

	tok, err := m.api.RefreshToken(ctx, old.Token)
	if err != nil {
		m.log.Warnw("token refresh failed; keeping current token", "error", err)
		return fmt.Errorf("refresh token: %w", err)
	}

	now := m.now()
	m.mu.Lock()
	if m.state != Authenticated || m.token.Token != old.Token {
		// Logged out or replaced while the call was in flight.
		m.mu.Unlock()
		return nil
	}
	m.token = tok
	m.lastRefresh = now
	m.mu.Unlock()
	m.api.SetToken(tok.Token)

	if err := m.store.SaveSession(Record{Token: tok, LastRefresh: now}); err != nil {
		m.log.Warnw("save refreshed token", "error", err)
		return fmt.Errorf("save session: %w", err)
	}
	m.log.Debugw("token refreshed", "user", tok.User)
	return nil
}

// Due reports whether the interval has elapsed since the last refresh.
func (m *Manager) Due() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == Authenticated && m.now().Sub(m.lastRefresh) >= m.interval
}

// RefreshIfDue refreshes when the interval has elapsed since the last
// refresh. Like Refresh, a failure leaves the stale token in use.
func (m *Manager) RefreshIfDue(ctx context.Context) error {
	if !m.Due() {
		return nil
	}
	return m.Refresh(ctx)
}

// Run refreshes the token every interval until ctx is cancelled. Refresh
// failures are logged and do not stop the loop.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if m.State() != Authenticated {
				continue
			}
			_ = m.Refresh(ctx)
		}
	}
}

// Logout revokes the token on the backend and clears the local session.
// Revocation is best effort: its failure is logged, and the local session
// and last-refresh marker are cleared regardless.
func (m *Manager) Logout(ctx context.Context) {
	tok, ok := m.Token()
	if !ok {
		if rec, found, err := m.store.LoadSession(); err == nil && found {
			tok, ok = rec.Token, rec.Token.Valid()
		}
	}
	if ok {
		if err := m.api.RemoveToken(ctx, tok.Token); err != nil {
			m.log.Errorw("revoke token failed; clearing local session anyway", "error", err)
		}
	}

	m.reset()
	if err := m.store.ClearSession(); err != nil {
		m.log.Errorw("clear session", "error", err)
	}
}

func (m *Manager) authenticate(tok types.Token, user types.User, refreshed time.Time) {
	m.mu.Lock()
	m.state = Authenticated
	m.token = tok
	m.user = user
	m.lastRefresh = refreshed
	m.mu.Unlock()
	m.api.SetToken(tok.Token)
}

func (m *Manager) reset() {
	m.mu.Lock()
	m.state = Unauthenticated
	m.token = types.Token{}
	m.user = types.User{}
	m.lastRefresh = time.Time{}
	m.mu.Unlock()
	m.api.SetToken("")
}

// IsAuthFailure reports whether err means the caller must log in again.
func IsAuthFailure(err error) bool {
	return errors.Is(err, types.ErrNotAuthenticated) || errors.Is(err, types.ErrUnauthorized)
}
