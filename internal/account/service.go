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

package account

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oauthhub/oauthhub/internal/audit"
	"github.com/oauthhub/oauthhub/internal/callback"
	"github.com/oauthhub/oauthhub/internal/client"
	"github.com/oauthhub/oauthhub/internal/observability/logger"
	"github.com/oauthhub/oauthhub/internal/token"
)

// Kind selects the credential table a login runs against.
type Kind string

const (
	KindUser  Kind = "user"
	KindAdmin Kind = "admin"
)

// LoginRecordSource lists the SSO associations a logout must fan out to.
type LoginRecordSource interface {
	ListByUsername(ctx context.Context, username string) ([]*token.LoginRecord, error)
}

// SessionPurger deletes all Tokens and LoginRecords of a user in one
// transaction.
type SessionPurger interface {
	PurgeUser(ctx context.Context, username string) error
}

// Service implements registration, login, password reset and
// cross-application logout.
type Service struct {
	users     UserRepository
	admins    AdminRepository
	clients   client.Repository
	records   LoginRecordSource
	purger    SessionPurger
	callbacks *callback.Client
	hasher    *PasswordHasher
	codec     *token.Codec
	audit     audit.Logger

	secret          string
	userTokenTTL    time.Duration
	adminTokenTTL   time.Duration
	defaultPassword string
}

// Config carries the account service settings.
type Config struct {
	Secret          string
	UserTokenTTL    time.Duration
	AdminTokenTTL   time.Duration
	DefaultPassword string
}

// NewService wires the account service.
func NewService(
	users UserRepository,
	admins AdminRepository,
	clients client.Repository,
	records LoginRecordSource,
	purger SessionPurger,
	callbacks *callback.Client,
	hasher *PasswordHasher,
	codec *token.Codec,
	auditLogger audit.Logger,
	cfg Config,
) *Service {
	return &Service{
		users:           users,
		admins:          admins,
		clients:         clients,
		records:         records,
		purger:          purger,
		callbacks:       callbacks,
		hasher:          hasher,
		codec:           codec,
		audit:           auditLogger,
		secret:          cfg.Secret,
		userTokenTTL:    cfg.UserTokenTTL,
		adminTokenTTL:   cfg.AdminTokenTTL,
		defaultPassword: cfg.DefaultPassword,
	}
}

// Register creates a user and notifies every client that registered a
// callback. The user insert is the primary action; callback failures
// only downgrade the result, reported through partial.
func (s *Service) Register(ctx context.Context, username, password, email, phone string) (partial bool, err error) {
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return false, ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return false, fmt.Errorf("query user %s: %w", username, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Email:        email,
		Phone:        phone,
		CreatedAt:    time.Now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return false, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:    audit.TypeUserRegistered,
		ActorID: username,
	})

	partial = s.fanOutRegistration(ctx, user)
	return partial, nil
}

// fanOutRegistration posts the new user's profile, projected through
// each client's scope allow-list, to every register callback URI.
func (s *Service) fanOutRegistration(ctx context.Context, user *User) (failed bool) {
	apps, err := s.clients.List(ctx)
	if err != nil {
		slog.WarnContext(ctx, "register fan-out skipped",
			logger.Operation("register"), logger.Error(err))
		return true
	}

	for _, app := range apps {
		uris := app.Metadata.RegisterCallbackURIs
		if len(uris) == 0 {
			continue
		}
		payload := projectUserInfo(user, app.Scopes())
		for _, uri := range uris {
			if err := s.callbacks.Post(ctx, uri, payload); err != nil {
				failed = true
				slog.WarnContext(ctx, "register callback failed",
					logger.ClientID(app.ClientID), logger.Error(err))
			}
		}
	}
	return failed
}

// projectUserInfo keeps only the profile fields the scope set allows.
func projectUserInfo(user *User, scopes []string) map[string]string {
	info := make(map[string]string)
	for _, scope := range scopes {
		switch scope {
		case "username":
			info["username"] = user.Username
		case "email":
			info["email"] = user.Email
		case "phone":
			info["phone"] = user.Phone
		}
	}
	return info
}

// Authenticate checks a user's credentials without minting a session.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		s.audit.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  username,
			Metadata: map[string]any{"reason": "unknown_user"},
		})
		return nil, ErrUserNotFound
	}
	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		s.audit.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  username,
			Metadata: map[string]any{"reason": "password_mismatch"},
		})
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser loads a user by username.
func (s *Service) GetUser(ctx context.Context, username string) (*User, error) {
	return s.users.GetByUsername(ctx, username)
}

// Login authenticates against the table selected by kind and mints a
// session JWT signed with the process-wide secret.
func (s *Service) Login(ctx context.Context, kind Kind, username, password string) (string, error) {
	var hash string
	ttl := s.userTokenTTL

	switch kind {
	case KindAdmin:
		admin, err := s.admins.GetByUsername(ctx, username)
		if err != nil {
			return "", ErrUserNotFound
		}
		hash = admin.PasswordHash
		ttl = s.adminTokenTTL
	default:
		user, err := s.users.GetByUsername(ctx, username)
		if err != nil {
			return "", ErrUserNotFound
		}
		hash = user.PasswordHash
	}

	ok, err := s.hasher.Verify(password, hash)
	if err != nil || !ok {
		s.audit.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  username,
			Metadata: map[string]any{"reason": "password_mismatch"},
		})
		return "", ErrInvalidCredentials
	}

	signed, err := s.codec.Generate(s.secret, ttl, username, "", nil)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		ActorID:  username,
		Metadata: map[string]any{"kind": string(kind)},
	})
	return signed, nil
}

// ResetPassword sets target's password back to the configured default.
// Only admin users may do this.
func (s *Service) ResetPassword(ctx context.Context, actingUsername, targetUsername string) error {
	if _, err := s.admins.GetByUsername(ctx, actingUsername); err != nil {
		return ErrNotAdmin
	}
	if _, err := s.users.GetByUsername(ctx, targetUsername); err != nil {
		return ErrUserNotFound
	}

	hash, err := s.hasher.Hash(s.defaultPassword)
	if err != nil {
		return fmt.Errorf("hash default password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, targetUsername, hash); err != nil {
		return err
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypePasswordReset,
		ActorID:  actingUsername,
		Resource: targetUsername,
	})
	return nil
}

// ApplicationLogout notifies every application the user is signed in to,
// then deletes the user's tokens and login records. Callback failures
// never abort the deletion; they are reported through partial.
func (s *Service) ApplicationLogout(ctx context.Context, username string) (partial bool, err error) {
	records, err := s.records.ListByUsername(ctx, username)
	if err != nil {
		return false, fmt.Errorf("list login records for %s: %w", username, err)
	}

	for _, record := range records {
		app, err := s.clients.GetByClientID(ctx, record.ClientID)
		if err != nil {
			partial = true
			slog.WarnContext(ctx, "logout fan-out: client missing",
				logger.ClientID(record.ClientID), logger.Error(err))
			continue
		}
		payload, err := logoutPayload(username, app)
		if err != nil {
			partial = true
			continue
		}
		for _, uri := range strings.Split(record.LogoutURL, ",") {
			uri = strings.TrimSpace(uri)
			if uri == "" {
				continue
			}
			if err := s.callbacks.Post(ctx, uri, payload); err != nil {
				partial = true
				slog.WarnContext(ctx, "logout callback failed",
					logger.ClientID(app.ClientID), logger.Error(err))
			}
		}
	}

	if err := s.purger.PurgeUser(ctx, username); err != nil {
		return partial, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeLogout,
		ActorID:  username,
		Metadata: map[string]any{"applications": len(records)},
	})
	return partial, nil
}

// logoutPayload builds the notification body: the client learns which of
// its credentials the call is about via an opaque encrypted_string.
func logoutPayload(username string, app *client.Client) (map[string]string, error) {
	blob, err := json.Marshal(map[string]string{app.ClientID: app.ClientSecret})
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"username":         username,
		"encrypted_string": base64.StdEncoding.EncodeToString(blob),
	}, nil
}
