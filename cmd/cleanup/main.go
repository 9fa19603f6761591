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

// Command cleanup deletes authorization codes past their TTL. Meant
// for cron; the server also sweeps hourly.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/oauthhub/oauthhub/internal/config"
	"github.com/oauthhub/oauthhub/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host,
		cfg.Database.Port, cfg.Database.Database, cfg.Database.SSLMode)

	db, err := postgres.New(ctx, dsn)
	if err != nil {
		slog.Error("connect database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	codes := postgres.NewCodeRepository(db)
	cutoff := time.Now().Add(-cfg.Token.AuthCodeTTL).Unix()
	deleted, err := codes.DeleteIssuedBefore(ctx, cutoff)
	if err != nil {
		slog.Error("delete expired codes", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("expired codes deleted", slog.Int64("count", deleted))
}
