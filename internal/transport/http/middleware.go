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
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/oauthhub/oauthhub/internal/cache"
	"github.com/oauthhub/oauthhub/internal/observability/logger"
	"github.com/oauthhub/oauthhub/internal/resp"
	"github.com/oauthhub/oauthhub/internal/token"
)

// adminPrefix marks an admin session token; the trailing space is part
// of the contract.
const adminPrefix = "bearer "

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// sessionToken pulls the presented token from the Authorization header
// or, failing that, the session cookie.
func (h *Handler) sessionToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return header
	}
	if cookie, err := r.Cookie(h.session.CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// authenticate resolves the acting subject: the JWT must decode with
// the process secret AND byte-match the cached session value.
func (h *Handler) authenticate(ctx context.Context, presented string) (username string, admin bool, err error) {
	if presented == "" {
		return "", false, token.ErrTokenInvalid
	}

	jwtString := presented
	if strings.HasPrefix(presented, adminPrefix) {
		admin = true
		jwtString = presented[len(adminPrefix):]
	}

	claims, err := h.codec.Decode(jwtString, h.secret, "")
	if err != nil {
		return "", admin, err
	}
	username = token.Subject(claims)

	key := cache.SessionKey(username)
	if admin {
		key = cache.AdminSessionKey(username)
	}
	cached, err := h.cache.Get(ctx, key)
	if err != nil || cached != presented {
		return "", admin, errAuthMismatch
	}
	return username, admin, nil
}

var errAuthMismatch = errors.New("session token does not match cache")

// RequireSession authenticates the request and stores the subject in
// the context. Failures answer with the envelope, never a bare status.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := h.sessionToken(r)
		username, admin, err := h.authenticate(r.Context(), presented)
		if err != nil {
			if errors.Is(err, token.ErrTokenExpired) {
				resp.Write(w, resp.TokenExpire)
			} else {
				resp.Write(w, resp.TokenError)
			}
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, username)
		ctx = context.WithValue(ctx, isAdminKey, admin)
		ctx = context.WithValue(ctx, sessionTokenKey, presented)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
