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

// Package http is the HTTP surface: request decoding, session binding
// and the endpoint handlers. Handlers answer the uniform envelope with
// HTTP 200; only redirects and the token endpoint deviate.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/oauthhub/oauthhub/internal/account"
	"github.com/oauthhub/oauthhub/internal/cache"
	"github.com/oauthhub/oauthhub/internal/client"
	"github.com/oauthhub/oauthhub/internal/oauth2"
	"github.com/oauthhub/oauthhub/internal/token"
)

// Consent-UI locations the authorize endpoint redirects to.
const (
	consentConfirmPath = "/authhub/oauth/authorize/confirm"
	consentLoginPath   = "/authhub/oauth/authorize/login"
	consentErrorPath   = "/authhub/oauth/authorize/error"
)

// SessionConfig holds the cookie and cache TTL settings.
type SessionConfig struct {
	CookieName     string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	UserCacheTTL   time.Duration
	AdminCacheTTL  time.Duration
}

// Handler holds HTTP handlers and dependencies.
type Handler struct {
	accounts *account.Service
	registry *client.Registry
	grants   *oauth2.Service
	tokens   *token.Service
	cache    cache.Store
	codec    *token.Codec
	session  SessionConfig
	secret   string
}

// NewHandler creates the HTTP handler set.
func NewHandler(
	accounts *account.Service,
	registry *client.Registry,
	grants *oauth2.Service,
	tokens *token.Service,
	sessionCache cache.Store,
	codec *token.Codec,
	session SessionConfig,
	secret string,
) *Handler {
	return &Handler{
		accounts: accounts,
		registry: registry,
		grants:   grants,
		tokens:   tokens,
		cache:    sessionCache,
		codec:    codec,
		session:  session,
		secret:   secret,
	}
}

// NewRouter creates the HTTP router.
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	r.Route("/oauth2", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/manager-login", h.ManagerLogin)

		r.With(h.RequireSession).Get("/logout", h.Logout)
		r.With(h.RequireSession).Get("/login-status", h.LoginStatus)
		r.With(h.RequireSession).Post("/password", h.ResetPassword)

		r.Route("/applications", func(r chi.Router) {
			r.Use(h.RequireSession)
			r.Get("/", h.ListApplications)
			r.Post("/register", h.CreateApplication)
			r.Get("/{client_id}", h.GetApplication)
			r.Put("/{client_id}", h.UpdateApplication)
			r.Delete("/{client_id}", h.DeleteApplication)
		})

		r.Get("/authorize", h.Authorize)
		r.Post("/token", h.Token)
		r.Post("/revoke-token", h.RevokeToken)
		r.Post("/introspect", h.Introspect)
		r.Post("/refresh-token", h.RefreshToken)
	})

	return r
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
