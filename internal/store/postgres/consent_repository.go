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

// ConsentRepository reads and retires client scope grants.
type ConsentRepository struct {
	db *DB
}

// NewConsentRepository creates a consent repository.
func NewConsentRepository(db *DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

func (r *ConsentRepository) Get(ctx context.Context, username, clientID string) (*oauth2.ClientScopeGrant, error) {
	var g oauth2.ClientScopeGrant
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, username, client_id, scopes, granted_at, expires_in
		 FROM client_scope_grants WHERE username = $1 AND client_id = $2`,
		username, clientID,
	).Scan(&g.ID, &g.Username, &g.ClientID, &g.Scopes, &g.GrantedAt, &g.ExpiresIn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrConsentNotFound
		}
		return nil, fmt.Errorf("query scope grant: %w", err)
	}
	return &g, nil
}

func (r *ConsentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM client_scope_grants WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete scope grant: %w", err)
	}
	return nil
}
