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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/oauthhub/oauthhub/internal/client"
)

// ClientRepository persists registered applications. The metadata
// document is stored as JSONB and replaced wholesale on update.
type ClientRepository struct {
	db *DB
}

// NewClientRepository creates a client repository.
func NewClientRepository(db *DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Create(ctx context.Context, c *client.Client) error {
	md, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("encode client metadata: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO clients (id, client_id, client_secret, app_name, owner_username, issued_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.ClientID, c.ClientSecret, c.AppName, c.OwnerUsername, c.IssuedAt, md,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return client.ErrAppNameTaken
		}
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

const clientColumns = `id, client_id, client_secret, app_name, owner_username, issued_at, metadata`

func scanClient(row pgx.Row) (*client.Client, error) {
	var c client.Client
	var md []byte
	if err := row.Scan(&c.ID, &c.ClientID, &c.ClientSecret, &c.AppName, &c.OwnerUsername, &c.IssuedAt, &md); err != nil {
		return nil, err
	}
	if len(md) > 0 {
		if err := json.Unmarshal(md, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode client metadata: %w", err)
		}
	}
	return &c, nil
}

func (r *ClientRepository) GetByClientID(ctx context.Context, clientID string) (*client.Client, error) {
	c, err := scanClient(r.db.Pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE client_id = $1`, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, client.ErrClientNotFound
		}
		return nil, fmt.Errorf("query client: %w", err)
	}
	return c, nil
}

func (r *ClientRepository) GetForOwner(ctx context.Context, clientID, owner string) (*client.Client, error) {
	c, err := scanClient(r.db.Pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE client_id = $1 AND owner_username = $2`,
		clientID, owner))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, client.ErrClientNotFound
		}
		return nil, fmt.Errorf("query client: %w", err)
	}
	return c, nil
}

func (r *ClientRepository) ListByOwner(ctx context.Context, owner string) ([]*client.Client, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE owner_username = $1 ORDER BY issued_at`, owner)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()
	return collectClients(rows)
}

func (r *ClientRepository) List(ctx context.Context) ([]*client.Client, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+clientColumns+` FROM clients ORDER BY issued_at`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()
	return collectClients(rows)
}

func collectClients(rows pgx.Rows) ([]*client.Client, error) {
	var out []*client.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ClientRepository) UpdateMetadata(ctx context.Context, id string, md client.Metadata) error {
	blob, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("encode client metadata: %w", err)
	}
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE clients SET metadata = $2 WHERE id = $1`, id, blob)
	if err != nil {
		return fmt.Errorf("update client metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return client.ErrClientNotFound
	}
	return nil
}

// Delete removes the client row; tokens and authorization codes follow
// via foreign keys.
func (r *ClientRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return client.ErrClientNotFound
	}
	return nil
}
