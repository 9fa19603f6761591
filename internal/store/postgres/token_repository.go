// Copyright 2026 The OauthHub Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/oauthhub/oauthhub/internal/token"
)

// TokenRepository persists token rows.
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a token repository.
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, t *token.Token) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO tokens
		 (id, access_token, refresh_token, client_id, user_id, username, scope, token_type,
		  issued_at, expires_in, refresh_token_expires_in, access_token_revoked_at,
		  refresh_token_revoked_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID, t.AccessToken, t.RefreshToken, t.ClientID, t.UserID, t.Username, t.Scope,
		t.TokenType, t.IssuedAt, t.ExpiresIn, t.RefreshTokenExpiresIn,
		t.AccessTokenRevokedAt, t.RefreshTokenRevokedAt, t.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

const tokenColumns = `id, access_token, refresh_token, client_id, user_id, username, scope, token_type,
	issued_at, expires_in, refresh_token_expires_in, access_token_revoked_at,
	refresh_token_revoked_at, metadata`

func scanToken(row pgx.Row) (*token.Token, error) {
	var t token.Token
	var refresh *string
	err := row.Scan(&t.ID, &t.AccessToken, &refresh, &t.ClientID, &t.UserID, &t.Username,
		&t.Scope, &t.TokenType, &t.IssuedAt, &t.ExpiresIn, &t.RefreshTokenExpiresIn,
		&t.AccessTokenRevokedAt, &t.RefreshTokenRevokedAt, &t.Metadata)
	if err != nil {
		return nil, err
	}
	if refresh != nil {
		t.RefreshToken = *refresh
	}
	return &t, nil
}

func (r *TokenRepository) GetByAccessToken(ctx context.Context, accessToken string) (*token.Token, error) {
	t, err := scanToken(r.db.Pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE access_token = $1`, accessToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, token.ErrTokenNotFound
		}
		return nil, fmt.Errorf("query token: %w", err)
	}
	return t, nil
}

func (r *TokenRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (*token.Token, error) {
	t, err := scanToken(r.db.Pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE refresh_token = $1`, refreshToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, token.ErrTokenNotFound
		}
		return nil, fmt.Errorf("query token by refresh: %w", err)
	}
	return t, nil
}

func (r *TokenRepository) Rotate(ctx context.Context, id, newAccessToken string, issuedAt int64, metadata string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE tokens SET access_token = $2, issued_at = $3, metadata = $4 WHERE id = $1`,
		id, newAccessToken, issuedAt, metadata)
	if err != nil {
		return fmt.Errorf("rotate token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return token.ErrTokenNotFound
	}
	return nil
}

func (r *TokenRepository) Revoke(ctx context.Context, id string, accessRevokedAt, refreshRevokedAt int64) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE tokens
		 SET access_token_revoked_at = CASE WHEN $2 > 0 THEN $2 ELSE access_token_revoked_at END,
		     refresh_token_revoked_at = CASE WHEN $3 > 0 THEN $3 ELSE refresh_token_revoked_at END
		 WHERE id = $1`,
		id, accessRevokedAt, refreshRevokedAt)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return token.ErrTokenNotFound
	}
	return nil
}

func (r *TokenRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM tokens WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// PurgeUser deletes a user's tokens and login records in one
// transaction; logout must not leave one without the other.
func (r *TokenRepository) PurgeUser(ctx context.Context, username string) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM tokens WHERE username = $1`, username); err != nil {
			return fmt.Errorf("delete tokens: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM login_records WHERE username = $1`, username); err != nil {
			return fmt.Errorf("delete login records: %w", err)
		}
		return nil
	})
}
