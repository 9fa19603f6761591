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

// RecordRepository persists SSO login records.
type RecordRepository struct {
	db *DB
}

// NewRecordRepository creates a login-record repository.
func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Get(ctx context.Context, username, clientID string) (*token.LoginRecord, error) {
	var rec token.LoginRecord
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, username, client_id, logout_url, login_time
		 FROM login_records WHERE username = $1 AND client_id = $2`,
		username, clientID,
	).Scan(&rec.ID, &rec.Username, &rec.ClientID, &rec.LogoutURL, &rec.LoginTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, token.ErrRecordNotFound
		}
		return nil, fmt.Errorf("query login record: %w", err)
	}
	return &rec, nil
}

// Create inserts a record; a concurrent duplicate maps to
// ErrRecordExists for the caller to swallow.
func (r *RecordRepository) Create(ctx context.Context, rec *token.LoginRecord) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO login_records (id, username, client_id, logout_url, login_time)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.Username, rec.ClientID, rec.LogoutURL, rec.LoginTime,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return token.ErrRecordExists
		}
		return fmt.Errorf("insert login record: %w", err)
	}
	return nil
}

func (r *RecordRepository) ListByUsername(ctx context.Context, username string) ([]*token.LoginRecord, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, username, client_id, logout_url, login_time
		 FROM login_records WHERE username = $1 ORDER BY login_time`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("list login records: %w", err)
	}
	defer rows.Close()

	var out []*token.LoginRecord
	for rows.Next() {
		var rec token.LoginRecord
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.ClientID, &rec.LogoutURL, &rec.LoginTime); err != nil {
			return nil, fmt.Errorf("scan login record: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
