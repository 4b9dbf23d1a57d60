//go:build integration

// Package integration verifies the PostgreSQL-backed store against a real
// database using testcontainers-go.
package integration

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	pgContainer *postgres.PostgresContainer
	pgPool      *pgxpool.Pool

	testCtx    context.Context
	cancelFunc context.CancelFunc
)

// TestMain sets up and tears down the test container.
func TestMain(m *testing.M) {
	testCtx, cancelFunc = context.WithTimeout(context.Background(), 10*time.Minute)

	if err := setupPostgreSQL(testCtx); err != nil {
		log.Printf("Container setup failed: %v", err)
		cleanup()
		cancelFunc()
		os.Exit(1)
	}

	code := m.Run()

	cleanup()
	cancelFunc()
	os.Exit(code)
}

func setupPostgreSQL(ctx context.Context) error {
	var err error

	log.Println("Starting PostgreSQL container...")
	pgContainer, err = postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("multichat_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	url, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to get PostgreSQL connection string: %w", err)
	}

	pgPool, err = pgxpool.New(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}
	return pgPool.Ping(ctx)
}

func cleanup() {
	if pgPool != nil {
		pgPool.Close()
	}
	if pgContainer != nil {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			log.Printf("failed to terminate PostgreSQL container: %v", err)
		}
	}
}
