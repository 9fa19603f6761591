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

package http

import "context"

type contextKey string

const (
	usernameKey     contextKey = "username"
	isAdminKey      contextKey = "is_admin"
	sessionTokenKey contextKey = "session_token"
)

// GetUsername retrieves the authenticated username from context.
func GetUsername(ctx context.Context) string {
	if val, ok := ctx.Value(usernameKey).(string); ok {
		return val
	}
	return ""
}

// IsAdmin reports whether the session belongs to an admin user.
func IsAdmin(ctx context.Context) bool {
	val, _ := ctx.Value(isAdminKey).(bool)
	return val
}

// GetSessionToken retrieves the raw presented session token, admin
// prefix included.
func GetSessionToken(ctx context.Context) string {
	if val, ok := ctx.Value(sessionTokenKey).(string); ok {
		return val
	}
	return ""
}
