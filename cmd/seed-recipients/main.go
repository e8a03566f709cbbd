package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/brojonat/agentpay/service/config"
	"github.com/brojonat/agentpay/service/db"
	"github.com/brojonat/agentpay/service/directory"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Upserts every recipient from a YAML directory file into Postgres.
//
//	seed-recipients [recipients.yaml]
//
// The file defaults to RECIPIENTS_FILE. Rows not in the file are left alone.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("starting recipient seeding")

	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	path := os.Getenv("RECIPIENTS_FILE")
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" {
		logger.Error("recipients file not given: pass a path or set RECIPIENTS_FILE")
		os.Exit(1)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	dir, err := directory.LoadFile(path)
	if err != nil {
		logger.Error("failed to load recipients file", "path", path, "error", err)
		os.Exit(1)
	}

	// Connect to database
	ctx := context.Background()
	dbPool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// Verify database connection
	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	store := db.NewStore(dbPool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	entries, err := dir.List(ctx)
	if err != nil {
		logger.Error("failed to list recipients", "error", err)
		os.Exit(1)
	}
	logger.Info("found recipients in file", "path", path, "count", len(entries))

	successCount := 0
	errorCount := 0

	for _, e := range entries {
		r, err := store.UpsertRecipient(ctx, db.UpsertRecipientParams{
			Name:        e.Name,
			AccountID:   e.AccountID,
			Location:    e.Location,
			Currency:    e.Currency,
			KYCVerified: e.KYCVerified,
		})
		if err != nil {
			logger.Error("failed to upsert recipient",
				"name", e.Name,
				"account_id", e.AccountID,
				"error", err,
			)
			errorCount++
			continue
		}

		logger.Info("seeded recipient",
			"name", r.Name,
			"account_id", r.AccountID,
			"location", r.Location,
			"kyc_verified", r.KYCVerified,
		)
		successCount++
	}

	logger.Info("seeding complete",
		"total", len(entries),
		"success", successCount,
		"errors", errorCount,
	)

	if errorCount > 0 {
		os.Exit(1)
	}
}
