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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oauthhub/oauthhub/internal/account"
	"github.com/oauthhub/oauthhub/internal/audit"
	"github.com/oauthhub/oauthhub/internal/cache"
	"github.com/oauthhub/oauthhub/internal/callback"
	"github.com/oauthhub/oauthhub/internal/client"
	"github.com/oauthhub/oauthhub/internal/config"
	"github.com/oauthhub/oauthhub/internal/oauth2"
	"github.com/oauthhub/oauthhub/internal/observability/logger"
	"github.com/oauthhub/oauthhub/internal/observability/metrics"
	"github.com/oauthhub/oauthhub/internal/observability/tracing"
	"github.com/oauthhub/oauthhub/internal/store/postgres"
	"github.com/oauthhub/oauthhub/internal/token"
	transport "github.com/oauthhub/oauthhub/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	if _, err := metrics.New(ctx, metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName); err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	db, err := postgres.New(ctx, databaseURL(cfg))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	sessionCache, err := cache.NewRedis(ctx, cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer sessionCache.Close()

	codec, err := token.NewCodec()
	if err != nil {
		return fmt.Errorf("init token codec: %w", err)
	}

	auditLogger := audit.NewSlogLogger()
	hasher := account.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)

	users := postgres.NewUserRepository(db)
	admins := postgres.NewAdminRepository(db)
	clients := postgres.NewClientRepository(db)
	codes := postgres.NewCodeRepository(db)
	consents := postgres.NewConsentRepository(db)
	tokens := postgres.NewTokenRepository(db)
	records := postgres.NewRecordRepository(db)

	if err := account.Bootstrap(ctx, admins, hasher, auditLogger); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	callbacks := callback.New(cfg.Callback.Timeout)

	accounts := account.NewService(users, admins, clients, records, tokens, callbacks, hasher, codec, auditLogger, account.Config{
		Secret:          cfg.Security.Secret,
		UserTokenTTL:    cfg.Session.UserTokenTTL,
		AdminTokenTTL:   cfg.Session.AdminTokenTTL,
		DefaultPassword: cfg.Security.DefaultPassword,
	})
	registry := client.NewRegistry(clients, auditLogger)
	tokenService := token.NewService(codec, tokens, records, clients, auditLogger,
		cfg.Token.ExpiresIn, cfg.Token.RefreshExpiresIn)
	idTokens := oauth2.NewIDTokenBuilder(codec, cfg.Token.Issuer, cfg.Token.IDTokenExpiresIn)
	grants := oauth2.NewService(clients, codes, consents, accounts, tokenService, idTokens,
		auditLogger, cfg.Token.AuthCodeTTL)

	handler := transport.NewHandler(accounts, registry, grants, tokenService, sessionCache, codec,
		transport.SessionConfig{
			CookieName:     cfg.Session.CookieName,
			CookiePath:     cfg.Session.CookiePath,
			CookieSecure:   cfg.Session.CookieSecure,
			CookieHTTPOnly: cfg.Session.CookieHTTPOnly,
			UserCacheTTL:   cfg.Session.CookieTTL,
			AdminCacheTTL:  cfg.Session.AdminTokenTTL,
		},
		cfg.Security.Secret,
	)
	rateLimiter := transport.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	router := transport.NewRouter(handler, rateLimiter)

	// Expired authorization codes are garbage; sweep them hourly.
	go sweepExpiredCodes(ctx, grants)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", logger.String("addr", server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func sweepExpiredCodes(ctx context.Context, grants *oauth2.Service) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := grants.CleanupExpiredCodes(ctx)
			if err != nil {
				slog.WarnContext(ctx, "code sweep failed", logger.Error(err))
				continue
			}
			if deleted > 0 {
				slog.InfoContext(ctx, "expired codes deleted", slog.Int64("count", deleted))
			}
		}
	}
}

func databaseURL(cfg *config.Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
		cfg.Database.SSLMode,
	)
}
