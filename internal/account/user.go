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

// Package account manages end users and admin users: registration with
// callback fan-out, credential checks, password reset and the
// cross-application logout flow.
package account

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("username already registered")
	ErrAdminNotFound      = errors.New("admin user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAdmin           = errors.New("acting subject is not an admin")
)

// User is an end-user account. Users are created by registration and
// never deleted by this system.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Email        string
	Phone        string
	CreatedAt    time.Time
}

// AdminUser lives in a namespace disjoint from User and owns registered
// client applications.
type AdminUser struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// UserRepository persists end users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) error
}

// AdminRepository persists admin users.
type AdminRepository interface {
	Create(ctx context.Context, a *AdminUser) error
	GetByUsername(ctx context.Context, username string) (*AdminUser, error)
}
