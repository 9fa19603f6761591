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

package token

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Store errors
var (
	ErrTokenNotFound  = errors.New("token not found")
	ErrRecordExists   = errors.New("login record already exists")
	ErrRecordNotFound = errors.New("login record not found")
)

// ErrInsufficientScope marks a valid token that lacks a required scope.
var ErrInsufficientScope = errors.New("insufficient scope")

// Token is a persisted token row. The access_token and refresh_token
// columns hold the signed JWTs themselves, so the row and the JWT must
// stay consistent: refresh rotates the access_token in place.
type Token struct {
	ID                    string
	AccessToken           string
	RefreshToken          string
	ClientID              string
	UserID                string
	Username              string
	Scope                 string
	TokenType             string
	IssuedAt              int64
	ExpiresIn             int64
	RefreshTokenExpiresIn int64
	AccessTokenRevokedAt  int64
	RefreshTokenRevokedAt int64
	Metadata              string
}

// IsExpired reports whether the access token is past its lifetime.
func (t *Token) IsExpired(now int64) bool {
	return t.IssuedAt+t.ExpiresIn <= now
}

// IsRefreshExpired reports whether the refresh token is past its
// lifetime. Tokens without a refresh half never expire on this axis.
func (t *Token) IsRefreshExpired(now int64) bool {
	if t.RefreshToken == "" {
		return false
	}
	return t.IssuedAt+t.RefreshTokenExpiresIn <= now
}

// IsAccessRevoked reports whether the access token was revoked.
func (t *Token) IsAccessRevoked() bool {
	return t.AccessTokenRevokedAt != 0
}

// IsRefreshRevoked reports whether the refresh token was revoked.
func (t *Token) IsRefreshRevoked() bool {
	return t.RefreshTokenRevokedAt != 0
}

// HasScope reports whether every required scope is in the token's set.
func (t *Token) HasScope(required []string) bool {
	granted := make(map[string]bool)
	for _, s := range splitScope(t.Scope) {
		granted[s] = true
	}
	for _, s := range required {
		if !granted[s] {
			return false
		}
	}
	return true
}

// Meta is the _metadata JSON persisted with every token row.
type Meta struct {
	ExpiresIn             int64 `json:"expires_in"`
	AccountTokenExp       int64 `json:"account_token_exp"`
	RefreshTokenExp       int64 `json:"refresh_token_exp,omitempty"`
	RefreshTokenExpiresIn int64 `json:"refresh_token_expires_in,omitempty"`
}

// Meta decodes the row's metadata blob.
func (t *Token) Meta() (Meta, error) {
	var m Meta
	if t.Metadata == "" {
		return m, nil
	}
	err := json.Unmarshal([]byte(t.Metadata), &m)
	return m, err
}

// LoginRecord is the SSO association created the first time a client
// introspects a user's token. Its logout_url snapshot drives the
// logout fan-out.
type LoginRecord struct {
	ID        string
	Username  string
	ClientID  string
	LogoutURL string
	LoginTime int64
}

// Repository persists token rows.
type Repository interface {
	Create(ctx context.Context, t *Token) error
	GetByAccessToken(ctx context.Context, accessToken string) (*Token, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (*Token, error)
	// Rotate swaps the access token in place and advances issued_at.
	Rotate(ctx context.Context, id, newAccessToken string, issuedAt int64, metadata string) error
	// Revoke stamps revocation times; a zero value leaves the column.
	Revoke(ctx context.Context, id string, accessRevokedAt, refreshRevokedAt int64) error
	Delete(ctx context.Context, id string) error
}

// LoginRecordRepository persists SSO associations.
type LoginRecordRepository interface {
	Get(ctx context.Context, username, clientID string) (*LoginRecord, error)
	Create(ctx context.Context, r *LoginRecord) error
	ListByUsername(ctx context.Context, username string) ([]*LoginRecord, error)
}

func splitScope(scope string) []string {
	return strings.Fields(scope)
}
