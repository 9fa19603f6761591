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

package oauth2

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oauthhub/oauthhub/internal/account"
	"github.com/oauthhub/oauthhub/internal/client"
	"github.com/oauthhub/oauthhub/internal/token"
)

// IDTokenBuilder signs OIDC ID tokens. The signing key is the client's
// own secret, so only that client can verify its ID tokens.
type IDTokenBuilder struct {
	codec  *token.Codec
	issuer string
	ttl    time.Duration
}

// NewIDTokenBuilder creates an ID-token builder for the given issuer.
func NewIDTokenBuilder(codec *token.Codec, issuer string, ttl time.Duration) *IDTokenBuilder {
	return &IDTokenBuilder{codec: codec, issuer: issuer, ttl: ttl}
}

// Generate signs an ID token for user under cl. User claims are
// projected through the granted scope; nonce binds the token to the
// authorization request.
func (b *IDTokenBuilder) Generate(cl *client.Client, user *account.User, scope, nonce string) (string, error) {
	claims := jwt.MapClaims{
		"iss":      b.issuer,
		"sub":      user.Username,
		"aud":      cl.ClientID,
		"iat":      time.Now().Unix(),
		"exp":      b.codec.ExpiryEpoch(b.ttl),
		"id":       user.ID,
		"username": user.Username,
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	for _, s := range strings.Fields(scope) {
		switch s {
		case "email":
			claims["email"] = user.Email
		case "phone":
			claims["phone"] = user.Phone
		}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cl.ClientSecret))
	if err != nil {
		return "", fmt.Errorf("sign id token: %w", err)
	}
	return signed, nil
}
