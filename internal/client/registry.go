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

package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oauthhub/oauthhub/internal/audit"
)

// Registry implements application CRUD for admin owners.
type Registry struct {
	repo  Repository
	audit audit.Logger
}

// NewRegistry creates the client registry.
func NewRegistry(repo Repository, auditLogger audit.Logger) *Registry {
	return &Registry{repo: repo, audit: auditLogger}
}

// Create registers an application for owner. The scope stored is the
// union of the requested scopes and the baseline set; credentials are
// freshly generated salts.
func (r *Registry) Create(ctx context.Context, owner, appName string, md Metadata) (*Client, error) {
	if err := ValidateMetadata(md); err != nil {
		return nil, err
	}
	md.Scope = CanonicalizeScope(strings.Fields(md.Scope))

	clientID, err := GenerateSalt(ClientIDLength)
	if err != nil {
		return nil, err
	}
	clientSecret, err := GenerateSalt(ClientSecretLength)
	if err != nil {
		return nil, err
	}

	c := &Client{
		ID:            uuid.NewString(),
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		AppName:       appName,
		OwnerUsername: owner,
		IssuedAt:      time.Now().Unix(),
		Metadata:      md,
	}
	if err := r.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	r.audit.Log(ctx, audit.Event{
		Type:     audit.TypeClientCreated,
		ActorID:  owner,
		Resource: c.ClientID,
		Metadata: map[string]any{"app_name": appName},
	})
	return c, nil
}

// Get returns one of the owner's applications.
func (r *Registry) Get(ctx context.Context, owner, clientID string) (*Client, error) {
	return r.repo.GetForOwner(ctx, clientID, owner)
}

// List returns every application the owner registered.
func (r *Registry) List(ctx context.Context, owner string) ([]*Client, error) {
	return r.repo.ListByOwner(ctx, owner)
}

// Update replaces the metadata document of one of the owner's
// applications and returns the refreshed record.
func (r *Registry) Update(ctx context.Context, owner, clientID string, md Metadata) (*Client, error) {
	c, err := r.repo.GetForOwner(ctx, clientID, owner)
	if err != nil {
		return nil, err
	}
	if err := ValidateMetadata(md); err != nil {
		return nil, err
	}
	md.Scope = CanonicalizeScope(strings.Fields(md.Scope))

	if err := r.repo.UpdateMetadata(ctx, c.ID, md); err != nil {
		return nil, fmt.Errorf("update client %s: %w", clientID, err)
	}
	c.Metadata = md

	r.audit.Log(ctx, audit.Event{
		Type:     audit.TypeClientUpdated,
		ActorID:  owner,
		Resource: clientID,
	})
	return c, nil
}

// Delete removes one of the owner's applications. Tokens and
// authorization codes issued to it go with it.
func (r *Registry) Delete(ctx context.Context, owner, clientID string) error {
	c, err := r.repo.GetForOwner(ctx, clientID, owner)
	if err != nil {
		return err
	}
	if err := r.repo.Delete(ctx, c.ID); err != nil {
		return fmt.Errorf("delete client %s: %w", clientID, err)
	}

	r.audit.Log(ctx, audit.Event{
		Type:     audit.TypeClientDeleted,
		ActorID:  owner,
		Resource: clientID,
	})
	return nil
}
