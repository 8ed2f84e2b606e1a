package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TokenStore keeps the OAuth tokens of one netatmo client between runs
type TokenStore struct {
	dm       *DatabaseManager
	clientID string
}

func NewTokenStore(dm *DatabaseManager, clientID string) *TokenStore {
	return &TokenStore{dm: dm, clientID: clientID}
}

// StoredTokens is the persisted OAuth state
type StoredTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	State        string
}

// Load returns the stored tokens; found is false when none were saved
func (s *TokenStore) Load(ctx context.Context) (StoredTokens, bool, error) {
	row, err := s.dm.QueryRowWithHealthCheck(ctx, `
        SELECT access_token, refresh_token, expires_at, oauth_state
        FROM netatmo_tokens
        WHERE client_id = $1
    `, s.clientID)
	if err != nil {
		return StoredTokens{}, false, err
	}

	var t StoredTokens
	var expiresAt sql.NullTime
	if err := row.Scan(&t.AccessToken, &t.RefreshToken, &expiresAt, &t.State); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredTokens{}, false, nil
		}
		return StoredTokens{}, false, fmt.Errorf("failed to load tokens: %w", err)
	}
	if expiresAt.Valid {
		t.ExpiresAt = expiresAt.Time
	}
	return t, true, nil
}

// SaveTokens matches the netatmo client refresh callback
func (s *TokenStore) SaveTokens(accessToken, refreshToken string, expiry time.Time) error {
	_, err := s.dm.ExecWithHealthCheck(context.Background(), `
        INSERT INTO netatmo_tokens (client_id, access_token, refresh_token, expires_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (client_id) DO UPDATE
        SET access_token = EXCLUDED.access_token,
            refresh_token = EXCLUDED.refresh_token,
            expires_at = EXCLUDED.expires_at,
            updated_at = CURRENT_TIMESTAMP
    `, s.clientID, accessToken, refreshToken, expiry.UTC())
	if err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

// Invalidate clears the tokens and stores the state of the next
// authorization attempt. It matches the netatmo client invalid callback.
func (s *TokenStore) Invalidate(state string) error {
	_, err := s.dm.ExecWithHealthCheck(context.Background(), `
        INSERT INTO netatmo_tokens (client_id, access_token, refresh_token, expires_at, oauth_state)
        VALUES ($1, '', '', NULL, $2)
        ON CONFLICT (client_id) DO UPDATE
        SET access_token = '',
            refresh_token = '',
            expires_at = NULL,
            oauth_state = EXCLUDED.oauth_state,
            updated_at = CURRENT_TIMESTAMP
    `, s.clientID, state)
	if err != nil {
		return fmt.Errorf("failed to invalidate tokens: %w", err)
	}
	return nil
}
