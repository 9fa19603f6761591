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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oauthhub/oauthhub/internal/audit"
	"github.com/oauthhub/oauthhub/internal/client"
)

// Hints for RFC 7009 revocation requests.
const (
	HintAccessToken  = "access_token"
	HintRefreshToken = "refresh_token"
)

// Service issues, introspects, refreshes and revokes bearer tokens.
type Service struct {
	codec   *Codec
	tokens  Repository
	records LoginRecordRepository
	clients client.Repository
	audit   audit.Logger

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewService wires the token service.
func NewService(
	codec *Codec,
	tokens Repository,
	records LoginRecordRepository,
	clients client.Repository,
	auditLogger audit.Logger,
	accessTTL, refreshTTL time.Duration,
) *Service {
	return &Service{
		codec:      codec,
		tokens:     tokens,
		records:    records,
		clients:    clients,
		audit:      auditLogger,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Issue signs a bearer token pair for username under cl and persists
// the row. The refresh half is omitted when includeRefresh is false.
func (s *Service) Issue(ctx context.Context, cl *client.Client, username, userID, scope string, includeRefresh bool) (*Token, error) {
	extras := map[string]any{}
	if scope != "" {
		extras["scope"] = scope
	}

	access, err := s.codec.Generate(cl.ClientSecret, s.accessTTL, username, cl.ClientID, extras)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	meta := Meta{
		ExpiresIn:       int64(s.accessTTL.Seconds()),
		AccountTokenExp: s.codec.ExpiryEpoch(s.accessTTL),
	}

	var refresh string
	if includeRefresh {
		refresh, err = s.codec.Generate(cl.ClientSecret, s.refreshTTL, username, cl.ClientID, extras)
		if err != nil {
			return nil, fmt.Errorf("sign refresh token: %w", err)
		}
		meta.RefreshTokenExp = s.codec.ExpiryEpoch(s.refreshTTL)
		meta.RefreshTokenExpiresIn = int64(s.refreshTTL.Seconds())
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode token metadata: %w", err)
	}

	t := &Token{
		ID:                    uuid.NewString(),
		AccessToken:           access,
		RefreshToken:          refresh,
		ClientID:              cl.ClientID,
		UserID:                userID,
		Username:              username,
		Scope:                 scope,
		TokenType:             "Bearer",
		IssuedAt:              time.Now().Unix(),
		ExpiresIn:             int64(s.accessTTL.Seconds()),
		RefreshTokenExpiresIn: int64(s.refreshTTL.Seconds()),
		Metadata:              string(metaJSON),
	}
	if err := s.tokens.Create(ctx, t); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		ActorID:  username,
		ClientID: cl.ClientID,
		Metadata: map[string]any{"scope": scope},
	})
	return t, nil
}

// Introspect verifies a token on behalf of clientID and records the SSO
// association on first use. The subject is authoritative only when the
// JWT decodes with the client's secret AND matches a live row bound to
// the same client.
func (s *Service) Introspect(ctx context.Context, tokenString, clientID string) (*Token, error) {
	cl, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, client.ErrClientNotFound
	}

	claims, err := s.codec.Decode(tokenString, cl.ClientSecret, cl.ClientID)
	if err != nil {
		return nil, err
	}

	row, err := s.tokens.GetByAccessToken(ctx, tokenString)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if row.Username != Subject(claims) || row.ClientID != cl.ClientID {
		return nil, ErrTokenInvalid
	}

	if err := s.recordLogin(ctx, row.Username, cl); err != nil {
		return nil, err
	}
	return row, nil
}

// recordLogin inserts a LoginRecord for (username, client) unless one
// exists. A concurrent duplicate insert is swallowed as success.
func (s *Service) recordLogin(ctx context.Context, username string, cl *client.Client) error {
	if _, err := s.records.Get(ctx, username, cl.ClientID); err == nil {
		return nil
	} else if !errors.Is(err, ErrRecordNotFound) {
		return err
	}

	record := &LoginRecord{
		ID:        uuid.NewString(),
		Username:  username,
		ClientID:  cl.ClientID,
		LogoutURL: strings.Join(cl.Metadata.LogoutCallbackURIs, ","),
		LoginTime: time.Now().Unix(),
	}
	if err := s.records.Create(ctx, record); err != nil && !errors.Is(err, ErrRecordExists) {
		return err
	}
	return nil
}

// Refresh rotates the access token of the row holding refreshToken.
// Revoked or expired refresh tokens delete the row and fail as expired.
func (s *Service) Refresh(ctx context.Context, refreshToken, clientID string) (*Token, error) {
	cl, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, client.ErrClientNotFound
	}

	row, err := s.tokens.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	now := time.Now().Unix()
	if row.IsRefreshRevoked() || row.IsRefreshExpired(now) {
		_ = s.tokens.Delete(ctx, row.ID)
		return nil, ErrTokenExpired
	}
	if row.ClientID != cl.ClientID {
		return nil, ErrTokenInvalid
	}

	claims, err := s.codec.Decode(refreshToken, cl.ClientSecret, cl.ClientID)
	if err != nil {
		return nil, err
	}
	if Subject(claims) != row.Username {
		return nil, ErrTokenInvalid
	}

	extras := map[string]any{}
	if row.Scope != "" {
		extras["scope"] = row.Scope
	}
	access, err := s.codec.Generate(cl.ClientSecret, s.accessTTL, row.Username, cl.ClientID, extras)
	if err != nil {
		return nil, fmt.Errorf("sign rotated access token: %w", err)
	}

	meta, err := row.Meta()
	if err != nil {
		meta = Meta{}
	}
	meta.ExpiresIn = int64(s.accessTTL.Seconds())
	meta.AccountTokenExp = s.codec.ExpiryEpoch(s.accessTTL)
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode token metadata: %w", err)
	}

	if err := s.tokens.Rotate(ctx, row.ID, access, now, string(metaJSON)); err != nil {
		return nil, err
	}
	row.AccessToken = access
	row.IssuedAt = now
	row.ExpiresIn = int64(s.accessTTL.Seconds())
	row.Metadata = string(metaJSON)

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRefreshed,
		ActorID:  row.Username,
		ClientID: cl.ClientID,
	})
	return row, nil
}

// Revoke implements RFC 7009: the matching token is revoked; a token
// the server does not recognize is ignored.
func (s *Service) Revoke(ctx context.Context, tokenString, hint, clientID string) error {
	if _, err := s.clients.GetByClientID(ctx, clientID); err != nil {
		return client.ErrClientNotFound
	}

	now := time.Now().Unix()

	if hint != HintRefreshToken {
		if row, err := s.tokens.GetByAccessToken(ctx, tokenString); err == nil {
			if err := s.tokens.Revoke(ctx, row.ID, now, 0); err != nil {
				return err
			}
			s.auditRevocation(ctx, row)
			return nil
		}
	}

	// Revoking a refresh token takes its access half with it.
	if row, err := s.tokens.GetByRefreshToken(ctx, tokenString); err == nil {
		if err := s.tokens.Revoke(ctx, row.ID, now, now); err != nil {
			return err
		}
		s.auditRevocation(ctx, row)
	}
	return nil
}

func (s *Service) auditRevocation(ctx context.Context, row *Token) {
	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRevoked,
		ActorID:  row.Username,
		ClientID: row.ClientID,
	})
}

// ValidateAccess authorizes a protected-resource request. A missing,
// revoked, expired or cross-client token is invalid; a live token
// lacking a required scope fails with ErrInsufficientScope.
func (s *Service) ValidateAccess(ctx context.Context, tokenString, clientID string, requiredScopes []string) (*Token, error) {
	row, err := s.tokens.GetByAccessToken(ctx, tokenString)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if row.IsAccessRevoked() || row.IsExpired(time.Now().Unix()) {
		return nil, ErrTokenInvalid
	}
	if row.ClientID != clientID {
		return nil, ErrTokenInvalid
	}
	if !row.HasScope(requiredScopes) {
		return nil, ErrInsufficientScope
	}
	return row, nil
}
