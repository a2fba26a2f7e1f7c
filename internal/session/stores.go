package session

import (
	"context"
	"sync"

	"docchat/internal/api"
	"docchat/internal/storage"
)

// SQLStore keeps tokens in the local SQLite file, keyed by backend URL.
type SQLStore struct {
	store   *storage.Store
	profile string
}

func NewSQLStore(store *storage.Store, profile string) *SQLStore {
	return &SQLStore{store: store, profile: profile}
}

func (s *SQLStore) LoadTokens(ctx context.Context) (api.Tokens, error) {
	stored, err := s.store.LoadClientTokens(ctx, s.profile)
	if err != nil || stored == nil {
		return api.Tokens{}, err
	}
	return api.Tokens{AccessToken: stored.Access, RefreshToken: stored.Refresh}, nil
}

func (s *SQLStore) SaveTokens(ctx context.Context, tokens api.Tokens) error {
	return s.store.SaveClientTokens(ctx, s.profile, storage.ClientTokens{Access: tokens.AccessToken, Refresh: tokens.RefreshToken})
}

func (s *SQLStore) ClearTokens(ctx context.Context) error {
	return s.store.ClearClientTokens(ctx, s.profile)
}

// MemoryStore is a process-local TokenStore.
type MemoryStore struct {
	mu     sync.Mutex
	tokens api.Tokens
}

func NewMemoryStore(initial api.Tokens) *MemoryStore {
	return &MemoryStore{tokens: initial}
}

func (s *MemoryStore) LoadTokens(context.Context) (api.Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens, nil
}

func (s *MemoryStore) SaveTokens(_ context.Context, tokens api.Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
	return nil
}

func (s *MemoryStore) ClearTokens(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = api.Tokens{}
	return nil
}
