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
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/oauthhub/oauthhub/internal/audit"
)

const (
	EnvBootstrapAdminUsername = "BOOTSTRAP_ADMIN_USERNAME"
	EnvBootstrapAdminPassword = "BOOTSTRAP_ADMIN_PASSWORD"
)

// Bootstrap creates the initial admin user when the bootstrap env vars
// are set and the username is not taken yet. Without an admin no client
// application can be registered.
func Bootstrap(ctx context.Context, admins AdminRepository, hasher *PasswordHasher, auditLogger audit.Logger) error {
	username := os.Getenv(EnvBootstrapAdminUsername)
	password := os.Getenv(EnvBootstrapAdminPassword)
	if username == "" || password == "" {
		return nil
	}

	if _, err := admins.GetByUsername(ctx, username); err == nil {
		// Already bootstrapped, skip silently.
		return nil
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	admin := &AdminUser{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := admins.Create(ctx, admin); err != nil {
		return fmt.Errorf("create bootstrap admin %s: %w", username, err)
	}

	auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeAdminBootstrap,
		ActorID: username,
	})
	return nil
}
