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

	"github.com/oauthhub/oauthhub/internal/account"
)

// UserRepository persists end users.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user; a duplicate username maps to ErrUserExists.
func (r *UserRepository) Create(ctx context.Context, u *account.User) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO users (id, username, password_hash, email, phone, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.PasswordHash, u.Email, u.Phone, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByUsername loads a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*account.User, error) {
	var u account.User
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, username, password_hash, email, phone, created_at
		 FROM users WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.Phone, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// UpdatePassword replaces a user's password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE username = $1`,
		username, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrUserNotFound
	}
	return nil
}

// AdminRepository persists admin users.
type AdminRepository struct {
	db *DB
}

// NewAdminRepository creates an admin repository.
func NewAdminRepository(db *DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// Create inserts an admin user.
func (r *AdminRepository) Create(ctx context.Context, a *account.AdminUser) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO admin_users (id, username, password_hash, created_at)
		 VALUES ($1, $2, $3, $4)`,
		a.ID, a.Username, a.PasswordHash, a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrUserExists
		}
		return fmt.Errorf("insert admin user: %w", err)
	}
	return nil
}

// GetByUsername loads an admin user by username.
func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*account.AdminUser, error) {
	var a account.AdminUser
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at
		 FROM admin_users WHERE username = $1`,
		username,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAdminNotFound
		}
		return nil, fmt.Errorf("query admin user: %w", err)
	}
	return &a, nil
}
