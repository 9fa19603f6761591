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

// Package oauth2 implements the grant state machines: authorization
// code with PKCE, implicit, hybrid, password, client_credentials and
// refresh_token, plus consent lookup and OIDC ID tokens.
package oauth2

import (
	"context"
	"errors"
	"time"
)

// Store errors
var (
	ErrCodeNotFound    = errors.New("authorization code not found")
	ErrCodeExists      = errors.New("authorization code already saved")
	ErrConsentNotFound = errors.New("scope grant not found")
)

// AuthorizationCode is a single-use code bound to one client and one
// redirect URI. PKCE and OIDC parameters ride along when present.
type AuthorizationCode struct {
	ID                  string
	Code                string
	ClientID            string
	RedirectURI         string
	Scope               string
	Username            string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
	IssuedAt            int64
}

// IsExpired reports whether the code is past its TTL at now.
func (c *AuthorizationCode) IsExpired(ttl time.Duration, now int64) bool {
	return c.IssuedAt+int64(ttl.Seconds()) <= now
}

// ClientScopeGrant records that a user consented to a scope set for a
// client. ExpiresIn of zero means the grant never expires.
type ClientScopeGrant struct {
	ID        string
	Username  string
	ClientID  string
	Scopes    string
	GrantedAt int64
	ExpiresIn int64
}

// IsExpired reports whether the grant lapsed at now.
func (g *ClientScopeGrant) IsExpired(now int64) bool {
	if g.ExpiresIn == 0 {
		return false
	}
	return g.GrantedAt+g.ExpiresIn <= now
}

// CodeRepository persists authorization codes.
type CodeRepository interface {
	Create(ctx context.Context, c *AuthorizationCode) error
	Get(ctx context.Context, code, clientID string) (*AuthorizationCode, error)
	GetByNonce(ctx context.Context, clientID, nonce string) (*AuthorizationCode, error)
	Delete(ctx context.Context, id string) error
	// DeleteIssuedBefore removes codes older than the cutoff and
	// reports how many went.
	DeleteIssuedBefore(ctx context.Context, cutoff int64) (int64, error)
}

// ConsentRepository persists scope grants. Grants are written by the
// consent UI backend; this server only reads and retires them.
type ConsentRepository interface {
	Get(ctx context.Context, username, clientID string) (*ClientScopeGrant, error)
	Delete(ctx context.Context, id string) error
}
