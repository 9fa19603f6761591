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

	"github.com/oauthhub/oauthhub/internal/oauth2"
)

// CodeRepository persists authorization codes.
type CodeRepository struct {
	db *DB
}

// NewCodeRepository creates an authorization-code repository.
func NewCodeRepository(db *DB) *CodeRepository {
	return &CodeRepository{db: db}
}

func (r *CodeRepository) Create(ctx context.Context, c *oauth2.AuthorizationCode) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO authorization_codes
		 (id, code, client_id, redirect_uri, scope, username, code_challenge, code_challenge_method, nonce, issued_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Code, c.ClientID, c.RedirectURI, c.Scope, c.Username,
		c.CodeChallenge, c.CodeChallengeMethod, c.Nonce, c.IssuedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oauth2.ErrCodeExists
		}
		return fmt.Errorf("insert authorization code: %w", err)
	}
	return nil
}

const codeColumns = `id, code, client_id, redirect_uri, scope, username, code_challenge, code_challenge_method, nonce, issued_at`

func scanCode(row pgx.Row) (*oauth2.AuthorizationCode, error) {
	var c oauth2.AuthorizationCode
	err := row.Scan(&c.ID, &c.Code, &c.ClientID, &c.RedirectURI, &c.Scope, &c.Username,
		&c.CodeChallenge, &c.CodeChallengeMethod, &c.Nonce, &c.IssuedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CodeRepository) Get(ctx context.Context, code, clientID string) (*oauth2.AuthorizationCode, error) {
	c, err := scanCode(r.db.Pool.QueryRow(ctx,
		`SELECT `+codeColumns+` FROM authorization_codes WHERE code = $1 AND client_id = $2`,
		code, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrCodeNotFound
		}
		return nil, fmt.Errorf("query authorization code: %w", err)
	}
	return c, nil
}

func (r *CodeRepository) GetByNonce(ctx context.Context, clientID, nonce string) (*oauth2.AuthorizationCode, error) {
	c, err := scanCode(r.db.Pool.QueryRow(ctx,
		`SELECT `+codeColumns+` FROM authorization_codes WHERE client_id = $1 AND nonce = $2`,
		clientID, nonce))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrCodeNotFound
		}
		return nil, fmt.Errorf("query authorization code by nonce: %w", err)
	}
	return c, nil
}

// Delete consumes a code. Deleting an already-consumed code reports
// ErrCodeNotFound so a concurrent second exchange fails.
func (r *CodeRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM authorization_codes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete authorization code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return oauth2.ErrCodeNotFound
	}
	return nil
}

func (r *CodeRepository) DeleteIssuedBefore(ctx context.Context, cutoff int64) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM authorization_codes WHERE issued_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired authorization codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
