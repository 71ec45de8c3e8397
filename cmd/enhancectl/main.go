package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"enhancer/internal/adapter/repo"
	"enhancer/internal/infra"
	"enhancer/internal/infra/credentials"
	"enhancer/internal/migrations"
)

func main() {
	_ = godotenv.Load()

	root := newRootCmd(openDatabase, runMigrations)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openDatabase connects with DATABASE_URL only; the CLI does not need the
// API's JWT or provider settings.
func openDatabase(ctx context.Context) (*backend, error) {
	dbURL, err := databaseURL()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	logger := infra.NewLogger("cli").With().Str("cmd", "enhancectl").Logger()
	runner := infra.NewSQLRunner(pool, logger)

	defaultLimit := 10
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv("DEFAULT_MONTHLY_LIMIT"))); err == nil && v > 0 {
		defaultLimit = v
	}
	return &backend{
		quota:        repo.NewQuotaRepository(runner),
		tokens:       credentials.NewStore(runner),
		defaultLimit: defaultLimit,
		close:        pool.Close,
	}, nil
}

func databaseURL() (string, error) {
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		return "", errors.New("DATABASE_URL is required")
	}
	return dbURL, nil
}

// runMigrations goes through lib/pq rather than the pgx pool so each script
// runs as a single multi-statement exec.
func runMigrations(ctx context.Context) ([]string, error) {
	dbURL, err := databaseURL()
	if err != nil {
		return nil, err
	}
	db, err := migrations.Open(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	defer db.Close()
	logger := infra.NewLogger("cli").With().Str("cmd", "enhancectl migrate").Logger()
	return migrations.Apply(ctx, db, logger)
}
