// Package session owns the stored token pair and the authentication state
// derived from it. Having both tokens stored is what "logged in" means; the
// server is only asked when Check is called.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"docchat/internal/api"
)

type State int

const (
	StatePending State = iota
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "pending"
	}
}

// TokenStore persists the token pair.
type TokenStore interface {
	LoadTokens(ctx context.Context) (api.Tokens, error)
	SaveTokens(ctx context.Context, tokens api.Tokens) error
	ClearTokens(ctx context.Context) error
}

// Manager is created once per program run and handed to everything that
// needs to read or change the session. It implements api.TokenSource.
type Manager struct {
	mu        sync.RWMutex
	store     TokenStore
	tokens    api.Tokens
	user      *api.User
	state     State
	listeners []func(State)
	logger    *slog.Logger
	disposed  bool
}

func NewManager(store TokenStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, state: StatePending, logger: logger}
}

// Restore loads persisted tokens and settles the state. A read failure is
// logged and treated as signed out.
func (m *Manager) Restore(ctx context.Context) State {
	tokens, err := m.store.LoadTokens(ctx)
	if err != nil {
		m.logger.Warn("could not read stored session", "error", err)
		tokens = api.Tokens{}
	}
	m.mu.Lock()
	m.tokens = tokens
	next := StateAnonymous
	if tokens.Valid() {
		next = StateAuthenticated
	}
	listeners := m.setStateLocked(next)
	m.mu.Unlock()
	notify(listeners, next)
	return next
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Has reports whether both tokens are present.
func (m *Manager) Has() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens.Valid()
}

func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens.AccessToken
}

func (m *Manager) User() *api.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// SignIn stores a freshly issued pair.
func (m *Manager) SignIn(ctx context.Context, tokens api.Tokens) error {
	if !tokens.Valid() {
		return errors.New("session: login response is missing a token")
	}
	if err := m.store.SaveTokens(ctx, tokens); err != nil {
		return err
	}
	m.mu.Lock()
	m.tokens = tokens
	m.user = nil
	listeners := m.setStateLocked(StateAuthenticated)
	m.mu.Unlock()
	notify(listeners, StateAuthenticated)
	return nil
}

// SignOut clears both tokens, in memory and on disk.
func (m *Manager) SignOut(ctx context.Context) error {
	err := m.store.ClearTokens(ctx)
	m.mu.Lock()
	m.tokens = api.Tokens{}
	m.user = nil
	listeners := m.setStateLocked(StateAnonymous)
	m.mu.Unlock()
	notify(listeners, StateAnonymous)
	return err
}

// Invalidate is called by the API client after a 401.
func (m *Manager) Invalidate() {
	if err := m.SignOut(context.Background()); err != nil {
		m.logger.Error("clear stored session", "error", err)
	}
}

// Check asks the server who the token belongs to and caches the answer. A
// 401 has already signed the manager out by the time it returns.
func (m *Manager) Check(ctx context.Context, me func(context.Context) (api.User, error)) (api.User, error) {
	user, err := me(ctx)
	if err != nil {
		return api.User{}, err
	}
	m.mu.Lock()
	m.user = &user
	m.mu.Unlock()
	return user, nil
}

// Subscribe registers fn for state changes. Callbacks run outside the lock.
func (m *Manager) Subscribe(fn func(State)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Dispose drops listeners; the manager stops notifying after this.
func (m *Manager) Dispose() {
	m.mu.Lock()
	m.listeners = nil
	m.disposed = true
	m.mu.Unlock()
}

func (m *Manager) setStateLocked(next State) []func(State) {
	if m.state == next || m.disposed {
		m.state = next
		return nil
	}
	m.state = next
	return append([]func(State){}, m.listeners...)
}

func notify(listeners []func(State), state State) {
	for _, fn := range listeners {
		fn(state)
	}
}
