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

// Package client holds the registered-application model and the
// registry operating on it.
package client

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"sort"
	"strings"
)

// Domain errors
var (
	ErrAppNameTaken   = errors.New("application name already taken")
	ErrClientNotFound = errors.New("client not found")
)

// Credential lengths. client_id doubles as the JWT audience, so both
// values are plain alphanumeric salts.
const (
	ClientIDLength     = 24
	ClientSecretLength = 48
)

// BaselineScopes is the scope set every client is granted implicitly;
// the stored scope is always the union of this set and the request.
var BaselineScopes = []string{"username", "email", "openid", "phone", "offline_access"}

// Allowed metadata values.
var (
	allowedGrantTypes = map[string]bool{
		"authorization_code": true,
		"client_credentials": true,
		"refresh_token":      true,
		"password":           true,
		"implicit":           true,
		"hybrid":             true,
	}
	allowedResponseTypeParts = map[string]bool{
		"code":     true,
		"token":    true,
		"id_token": true,
	}
	allowedAuthMethods = map[string]bool{
		"client_secret_basic": true,
		"client_secret_post":  true,
		"none":                true,
	}
)

// Metadata is the JSON document stored alongside a client row. Updates
// replace the whole document.
type Metadata struct {
	ClientName              string   `json:"client_name,omitempty"`
	ClientURI               string   `json:"client_uri,omitempty"`
	SkipAuthorization       bool     `json:"skip_authorization"`
	RegisterCallbackURIs    []string `json:"register_callback_uris,omitempty"`
	LogoutCallbackURIs      []string `json:"logout_callback_uris,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	Scope                   string   `json:"scope"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

// Client is a registered application, owned by an admin user.
type Client struct {
	ID            string
	ClientID      string
	ClientSecret  string
	AppName       string
	OwnerUsername string
	IssuedAt      int64
	Metadata      Metadata
}

// Scopes returns the stored scope set as a slice.
func (c *Client) Scopes() []string {
	return strings.Fields(c.Metadata.Scope)
}

// HasScope reports whether every requested scope is in the stored set.
func (c *Client) HasScope(requested []string) bool {
	stored := make(map[string]bool, len(c.Metadata.Scope))
	for _, s := range c.Scopes() {
		stored[s] = true
	}
	for _, s := range requested {
		if !stored[s] {
			return false
		}
	}
	return true
}

// CheckRedirectURI reports whether uri is registered.
func (c *Client) CheckRedirectURI(uri string) bool {
	for _, registered := range c.Metadata.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// CheckGrantType reports whether the client may use grantType.
func (c *Client) CheckGrantType(grantType string) bool {
	for _, g := range c.Metadata.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// CheckResponseType reports whether every part of a space-delimited
// response_type is registered for the client.
func (c *Client) CheckResponseType(responseType string) bool {
	registered := make(map[string]bool, len(c.Metadata.ResponseTypes))
	for _, r := range c.Metadata.ResponseTypes {
		for _, part := range strings.Fields(r) {
			registered[part] = true
		}
	}
	for _, part := range strings.Fields(responseType) {
		if !registered[part] {
			return false
		}
	}
	return len(responseType) > 0
}

// CheckClientSecret compares a presented secret in constant time.
func (c *Client) CheckClientSecret(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(c.ClientSecret), []byte(secret)) == 1
}

// CheckEndpointAuthMethod reports whether the token endpoint may accept
// the given authentication method for this client.
func (c *Client) CheckEndpointAuthMethod(method string) bool {
	return c.Metadata.TokenEndpointAuthMethod == method
}

// Repository persists clients.
type Repository interface {
	Create(ctx context.Context, c *Client) error
	GetByClientID(ctx context.Context, clientID string) (*Client, error)
	GetForOwner(ctx context.Context, clientID, owner string) (*Client, error)
	ListByOwner(ctx context.Context, owner string) ([]*Client, error)
	List(ctx context.Context) ([]*Client, error)
	UpdateMetadata(ctx context.Context, id string, md Metadata) error
	Delete(ctx context.Context, id string) error
}

const saltAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateSalt returns an n-char random alphanumeric string.
func GenerateSalt(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(saltAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate salt: %w", err)
		}
		out[i] = saltAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// CanonicalizeScope unions the requested scopes with the baseline set
// and returns the space-delimited canonical form. Order is sorted so
// repeated canonicalization is stable.
func CanonicalizeScope(requested []string) string {
	set := make(map[string]bool, len(requested)+len(BaselineScopes))
	for _, s := range BaselineScopes {
		set[s] = true
	}
	for _, s := range requested {
		if s != "" {
			set[s] = true
		}
	}
	scopes := make([]string, 0, len(set))
	for s := range set {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return strings.Join(scopes, " ")
}

// ValidateMetadata enforces the metadata value catalogs. Violations are
// schema failures, not protocol errors.
func ValidateMetadata(md Metadata) error {
	baseline := make(map[string]bool, len(BaselineScopes))
	for _, s := range BaselineScopes {
		baseline[s] = true
	}
	for _, s := range strings.Fields(md.Scope) {
		if !baseline[s] {
			return fmt.Errorf("scope %q is not allowed", s)
		}
	}
	for _, g := range md.GrantTypes {
		if !allowedGrantTypes[g] {
			return fmt.Errorf("grant type %q is not allowed", g)
		}
	}
	for _, r := range md.ResponseTypes {
		parts := strings.Fields(r)
		if len(parts) == 0 {
			return fmt.Errorf("empty response type")
		}
		for _, part := range parts {
			if !allowedResponseTypeParts[part] {
				return fmt.Errorf("response type %q is not allowed", r)
			}
		}
	}
	if md.TokenEndpointAuthMethod != "" && !allowedAuthMethods[md.TokenEndpointAuthMethod] {
		return fmt.Errorf("token endpoint auth method %q is not allowed", md.TokenEndpointAuthMethod)
	}
	if len(md.RedirectURIs) == 0 {
		return fmt.Errorf("at least one redirect URI is required")
	}
	for _, uri := range md.RedirectURIs {
		parsed, err := url.Parse(uri)
		if err != nil || !parsed.IsAbs() {
			return fmt.Errorf("redirect URI %q is not an absolute URL", uri)
		}
	}
	return nil
}
