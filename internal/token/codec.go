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

// Package token implements the JWT codec and the bearer token service.
// A single codec signs session JWTs (process-wide secret) and OAuth2
// access/refresh/ID tokens (per-client secret); the two roles are
// distinguished only by where the token is stored.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Codec errors
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// DefaultAudience is the aud claim used for first-party session JWTs
// that are not bound to a registered client.
const DefaultAudience = "oauth"

// essential claims that every decoded token must carry
var essentialClaims = []string{"exp", "sub", "aud"}

// Codec encodes and decodes HS256-signed JWTs.
type Codec struct {
	loc *time.Location
}

// NewCodec creates a codec. Expiry timestamps are computed on the
// Asia/Shanghai wall clock regardless of the host timezone.
func NewCodec() (*Codec, error) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return nil, err
	}
	return &Codec{loc: loc}, nil
}

// ExpiryEpoch returns now+d as epoch seconds, truncated to a whole
// second on the Asia/Shanghai wall clock.
func (c *Codec) ExpiryEpoch(d time.Duration) int64 {
	t := time.Now().In(c.loc).Add(d)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, c.loc).Unix()
}

// Generate signs a JWT for subject, bound to audience, expiring after
// expiresIn. Only iss, scope and jti are honored from extras.
func (c *Codec) Generate(secret string, expiresIn time.Duration, subject, audience string, extras map[string]any) (string, error) {
	if subject == "" {
		return "", errors.New("a unique identifier is missing")
	}
	if audience == "" {
		audience = DefaultAudience
	}

	claims := jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": c.ExpiryEpoch(expiresIn),
		"sub": subject,
		"aud": audience,
	}
	for _, key := range []string{"iss", "scope", "jti"} {
		if v, ok := extras[key]; ok {
			claims[key] = v
		}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", ErrTokenInvalid
	}
	return signed, nil
}

// Decode verifies signature, audience and the essential claim set.
// An expired token is reported as ErrTokenExpired; any other failure
// collapses to ErrTokenInvalid.
func (c *Codec) Decode(tokenString, secret, audience string) (jwt.MapClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}
	if audience == "" {
		audience = DefaultAudience
	}

	parsed, err := jwt.Parse(tokenString,
		func(t *jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	for _, key := range essentialClaims {
		if _, ok := claims[key]; !ok {
			return nil, ErrTokenInvalid
		}
	}
	return claims, nil
}

// Subject extracts the sub claim from a decoded claim set.
func Subject(claims jwt.MapClaims) string {
	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}
