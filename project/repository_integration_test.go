package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestRepository_Integration connects to a real PostgreSQL via DATABASE_URL and
// exercises the repository end to end, including the document id guard.
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

	if !tableExists(ctx, t, pool, "projects") || !tableExists(ctx, t, pool, "participants") || !tableExists(ctx, t, pool, "project_events") {
		t.Skip("database schema missing; run migrations first")
	}

	repo := NewRepository(pool)

	title := fmt.Sprintf("Integration Contract %d", time.Now().UnixNano())
	amount := int64(1_500_000)
	due := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	created, err := repo.Create(ctx, uuid.NewString(), CreateParams{
		Title:       title,
		Description: "integration test project",
		Amount:      &amount,
		DueDate:     &due,
		Participants: []Participant{
			{ID: uuid.NewString(), Name: "Sato", Email: "sato@example.com", EmbeddedSigner: true},
			{ID: uuid.NewString(), Name: "Yamada", Tel: "09000000000", Callback: true},
		},
		Files: []ContractFile{
			{ID: uuid.NewString(), FileName: "contract.pdf", Content: []byte("%PDF-1.7 test")},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM projects WHERE id = $1`, created.ID)
	})

	// Creation writes a timeline event inside the same transaction.
	var evCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM project_events WHERE project_id = $1 AND type = 'PROJECT_CREATED'`, created.ID).Scan(&evCount); err != nil {
		t.Fatalf("verify event: %v", err)
	}
	if evCount != 1 {
		t.Fatalf("expected 1 PROJECT_CREATED event, got %d", evCount)
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != title || len(got.Participants) != 2 || len(got.Files) != 1 {
		t.Fatalf("unexpected project: %+v", got)
	}
	if got.Participants[0].Name != "Sato" || got.Participants[1].Name != "Yamada" {
		t.Fatalf("expected participants in sign order, got %+v", got.Participants)
	}
	if got.Amount == nil || *got.Amount != amount {
		t.Fatalf("expected amount %d, got %v", amount, got.Amount)
	}

	// Project reads never carry file bytes; FileContents does.
	files, err := repo.FileContents(ctx, created.ID)
	if err != nil {
		t.Fatalf("file contents: %v", err)
	}
	if len(files) != 1 || string(files[0].Content) != "%PDF-1.7 test" {
		t.Fatalf("unexpected files: %+v", files)
	}

	list, total, err := repo.List(ctx, Filters{Search: title})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("expected search to find the project, got total=%d list=%+v", total, list)
	}

	if err := repo.SetDocumentID(ctx, created.ID, "doc-integration-1"); err != nil {
		t.Fatalf("set document id: %v", err)
	}
	if err := repo.SetDocumentID(ctx, created.ID, "doc-integration-2"); !errors.Is(err, ErrDocumentExists) {
		t.Fatalf("expected ErrDocumentExists on second assignment, got %v", err)
	}

	if err := repo.SetParticipantRemoteID(ctx, got.Participants[0].ID, "part-integration-1"); err != nil {
		t.Fatalf("set participant remote id: %v", err)
	}

	got, err = repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("re-get: %v", err)
	}
	if got.CloudSignDocumentID == nil || *got.CloudSignDocumentID != "doc-integration-1" {
		t.Fatalf("expected first document id kept, got %v", got.CloudSignDocumentID)
	}
	if got.Participants[0].CloudSignParticipantID == nil || *got.Participants[0].CloudSignParticipantID != "part-integration-1" {
		t.Fatalf("expected participant remote id persisted, got %+v", got.Participants[0])
	}

	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
