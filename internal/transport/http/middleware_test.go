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

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oauthhub/oauthhub/internal/cache"
	"github.com/oauthhub/oauthhub/internal/resp"
	"github.com/oauthhub/oauthhub/internal/token"
)

const sessionSecret = "session-test-secret"

func newSessionHandler(t *testing.T) (*Handler, cache.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	store := cache.NewRedisFromClient(rc)

	codec, err := token.NewCodec()
	require.NoError(t, err)

	h := NewHandler(nil, nil, nil, nil, store, codec,
		SessionConfig{CookieName: "Authorization"}, sessionSecret)
	return h, store
}

// probe answers with whatever subject the middleware resolved.
func sessionProbe(h *Handler) http.Handler {
	return h.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp.WriteData(w, resp.Succeed, map[string]any{
			"username": GetUsername(r.Context()),
			"is_admin": IsAdmin(r.Context()),
		})
	}))
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) resp.Body {
	t.Helper()
	var body resp.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func mintSession(t *testing.T, h *Handler, username string, ttl time.Duration) string {
	t.Helper()
	signed, err := h.codec.Generate(sessionSecret, ttl, username, "", nil)
	require.NoError(t, err)
	return signed
}

func TestRequireSessionUserHeader(t *testing.T) {
	h, store := newSessionHandler(t)
	signed := mintSession(t, h, "alice", time.Hour)
	require.NoError(t, store.Set(context.Background(), cache.SessionKey("alice"), signed, time.Hour))

	r := httptest.NewRequest("GET", "/probe", nil)
	r.Header.Set("Authorization", signed)
	rec := httptest.NewRecorder()
	sessionProbe(h).ServeHTTP(rec, r)

	body := decodeEnvelope(t, rec)
	assert.Equal(t, resp.Succeed, body.Code)
	data := body.Data.(map[string]any)
	assert.Equal(t, "alice", data["username"])
	assert.Equal(t, false, data["is_admin"])
}

func TestRequireSessionCookieFallback(t *testing.T) {
	h, store := newSessionHandler(t)
	signed := mintSession(t, h, "alice", time.Hour)
	require.NoError(t, store.Set(context.Background(), cache.SessionKey("alice"), signed, time.Hour))

	r := httptest.NewRequest("GET", "/probe", nil)
	r.AddCookie(&http.Cookie{Name: "Authorization", Value: signed})
	rec := httptest.NewRecorder()
	sessionProbe(h).ServeHTTP(rec, r)

	assert.Equal(t, resp.Succeed, decodeEnvelope(t, rec).Code)
}

func TestRequireSessionAdminPrefix(t *testing.T) {
	h, store := newSessionHandler(t)
	signed := mintSession(t, h, "root", time.Hour)
	prefixed := adminPrefix + signed
	require.NoError(t, store.Set(context.Background(), cache.AdminSessionKey("root"), prefixed, time.Hour))

	r := httptest.NewRequest("GET", "/probe", nil)
	r.Header.Set("Authorization", prefixed)
	rec := httptest.NewRecorder()
	sessionProbe(h).ServeHTTP(rec, r)

	body := decodeEnvelope(t, rec)
	assert.Equal(t, resp.Succeed, body.Code)
	data := body.Data.(map[string]any)
	assert.Equal(t, "root", data["username"])
	assert.Equal(t, true, data["is_admin"])
}

func TestRequireSessionMissingToken(t *testing.T) {
	h, _ := newSessionHandler(t)

	r := httptest.NewRequest("GET", "/probe", nil)
	rec := httptest.NewRecorder()
	sessionProbe(h).ServeHTTP(rec, r)

	assert.Equal(t, resp.TokenError, decodeEnvelope(t, rec).Code)
}

func TestRequireSessionExpiredToken(t *testing.T) {
	h, store := newSessionHandler(t)
	signed := mintSession(t, h, "alice", -2*time.Second)
	require.NoError(t, store.Set(context.Background(), cache.SessionKey("alice"), signed, time.Hour))

	r := httptest.NewRequest("GET", "/probe", nil)
	r.Header.Set("Authorization", signed)
	rec := httptest.NewRecorder()
	sessionProbe(h).ServeHTTP(rec, r)

	assert.Equal(t, resp.TokenExpire, decodeEnvelope(t, rec).Code)
}

func TestRequireSessionNotCached(t *testing.T) {
	h, _ := newSessionHandler(t)
	signed := mintSession(t, h, "alice", time.Hour)

	r := httptest.NewRequest("GET", "/probe", nil)
	r.Header.Set("Authorization", signed)
	rec := httptest.NewRecorder()
	sessionProbe(h).ServeHTTP(rec, r)

	assert.Equal(t, resp.TokenError, decodeEnvelope(t, rec).Code)
}

// A decodable token that differs from the cached bytes is a logged-out
// session and must not authenticate.
func TestRequireSessionCacheMismatch(t *testing.T) {
	h, store := newSessionHandler(t)
	signed := mintSession(t, h, "alice", time.Hour)
	require.NoError(t, store.Set(context.Background(), cache.SessionKey("alice"), "something-else", time.Hour))

	r := httptest.NewRequest("GET", "/probe", nil)
	r.Header.Set("Authorization", signed)
	rec := httptest.NewRecorder()
	sessionProbe(h).ServeHTTP(rec, r)

	assert.Equal(t, resp.TokenError, decodeEnvelope(t, rec).Code)
}
