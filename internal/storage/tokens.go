package storage

import (
	"context"
	"database/sql"
	"errors"
)

// ClientTokens is the persisted access/refresh pair for one backend.
type ClientTokens struct {
	Access  string
	Refresh string
}

// SaveClientTokens stores the pair for profile, replacing any previous one.
func (s *Store) SaveClientTokens(ctx context.Context, profile string, tokens ClientTokens) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_tokens(profile, access_token, refresh_token, updated_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at
	`, profile, tokens.Access, tokens.Refresh, utcNow())
	return err
}

// LoadClientTokens returns the stored pair, or nil if none is stored.
func (s *Store) LoadClientTokens(ctx context.Context, profile string) (*ClientTokens, error) {
	row := s.db.QueryRowContext(ctx, `SELECT access_token, refresh_token FROM client_tokens WHERE profile = ?`, profile)
	var tokens ClientTokens
	if err := row.Scan(&tokens.Access, &tokens.Refresh); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &tokens, nil
}

// ClearClientTokens removes both tokens for profile.
func (s *Store) ClearClientTokens(ctx context.Context, profile string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM client_tokens WHERE profile = ?`, profile)
	return err
}
