package settings

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"contractdesk/cloudsign"
)

// TestRepository_Integration verifies the single-row configuration storage
// against a live PostgreSQL.
func TestRepository_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'cloudsign_config')`).Scan(&exists); err != nil {
		t.Fatalf("check table: %v", err)
	}
	if !exists {
		t.Skip("database schema missing; run migrations first")
	}

	repo := NewRepository(pool)

	// Start from a clean slate; ignore a missing row.
	_ = repo.Delete(ctx)
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM cloudsign_config`)
	})

	if _, err := repo.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before save, got %v", err)
	}
	if _, err := repo.Credentials(ctx); !errors.Is(err, cloudsign.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured before save, got %v", err)
	}

	saved, err := repo.Upsert(ctx, "client-1", "https://api.cloudsign.jp/")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if saved.BaseURL != "https://api.cloudsign.jp" {
		t.Fatalf("expected trailing slash stripped, got %q", saved.BaseURL)
	}

	// A second save replaces the single row rather than adding one.
	if _, err := repo.Upsert(ctx, "client-2", "https://api.cloudsign.jp"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM cloudsign_config`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 config row, got %d", count)
	}

	creds, err := repo.Credentials(ctx)
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if creds.ClientID != "client-2" {
		t.Fatalf("expected latest client id, got %q", creds.ClientID)
	}

	if err := repo.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
