package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/crossplay/internal/shared"
	"golang.org/x/oauth2"
)

// ConnectionRepository stores OAuth tokens per user and streaming provider.
type ConnectionRepository struct {
	db *sql.DB
}

// NewConnectionRepository creates a new [ConnectionRepository] with the given database connection
func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Save upserts tok for (userID, providerID). A refreshed token without a refresh token keeps the stored one.
func (r *ConnectionRepository) Save(ctx context.Context, userID string, providerID int64, tok *oauth2.Token, scope string) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("%w: access token is required", shared.ErrInvalidInput)
	}

	var expiry sql.NullTime
	if !tok.Expiry.IsZero() {
		expiry = sql.NullTime{Time: tok.Expiry.UTC(), Valid: true}
	}

	query := `
		INSERT INTO streaming_connections (user_id, provider_id, access_token, refresh_token, token_type, scope, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = COALESCE(excluded.refresh_token, streaming_connections.refresh_token),
			token_type = excluded.token_type,
			scope = COALESCE(excluded.scope, streaming_connections.scope),
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		userID, providerID, tok.AccessToken, nullString(tok.RefreshToken), nullString(tok.TokenType),
		nullString(scope), expiry, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

// Get returns the stored token and its granted scope, wrapping [shared.ErrNotAuthenticated] when none exists.
func (r *ConnectionRepository) Get(ctx context.Context, userID string, providerID int64) (*oauth2.Token, string, error) {
	var (
		tok       oauth2.Token
		refresh   sql.NullString
		tokenType sql.NullString
		scope     sql.NullString
		expiry    sql.NullTime
	)
	query := `
		SELECT access_token, refresh_token, token_type, scope, expiry
		FROM streaming_connections
		WHERE user_id = ? AND provider_id = ?
	`
	err := r.db.QueryRowContext(ctx, query, userID, providerID).
		Scan(&tok.AccessToken, &refresh, &tokenType, &scope, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: no stored connection", shared.ErrNotAuthenticated)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to query connection: %w", err)
	}

	tok.RefreshToken = refresh.String
	tok.TokenType = tokenType.String
	if expiry.Valid {
		tok.Expiry = expiry.Time
	}
	return &tok, scope.String, nil
}

// Delete removes the stored connection, if any.
func (r *ConnectionRepository) Delete(ctx context.Context, userID string, providerID int64) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM streaming_connections WHERE user_id = ? AND provider_id = ?", userID, providerID); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}
