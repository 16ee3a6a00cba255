package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/FarisLab/StudySync/internal/content"
	"github.com/FarisLab/StudySync/internal/ownership"
)

func openTestPostgres(t *testing.T) *PostgresGateway {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("STUDYSYNC_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("STUDYSYNC_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	db, err := OpenPostgres(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	g := NewPostgresGateway(db)
	if err := g.EnsureSchema(ctx); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	// A second pass must be a no-op.
	if err := g.EnsureSchema(ctx); err != nil {
		t.Fatalf("reapply migrations: %v", err)
	}
	t.Cleanup(func() { _ = g.Close(context.Background()) })
	return g
}

func TestPostgresGatewayRoundTrip(t *testing.T) {
	g := openTestPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	a := &Folder{Meta: ownership.Meta{OwnerID: "alice", CreatedAt: now, UpdatedAt: now}, Name: "Zoology", Theme: "kiwi", Icon: "Tray"}
	b := &Folder{Meta: ownership.Meta{OwnerID: "alice", CreatedAt: now, UpdatedAt: now}, Name: "Algebra", Theme: "plum", Icon: "Eraser"}
	for _, f := range []*Folder{a, b} {
		if err := g.Folders().Insert(ctx, f); err != nil {
			t.Fatalf("insert folder: %v", err)
		}
	}

	folders, err := ownership.Collect(g.Folders().Find(ctx, ownership.Query{OwnerID: "alice", Sort: ownership.SortByName}))
	if err != nil {
		t.Fatalf("list folders: %v", err)
	}
	if len(folders) != 2 || folders[0].Name != "Algebra" {
		t.Fatalf("expected folders sorted by name, got %+v", folders)
	}

	guide := &Space{
		Meta:     ownership.Meta{OwnerID: "alice", CreatedAt: now, UpdatedAt: now},
		Type:     content.StudyGuide,
		Title:    "Midterm",
		FolderID: &a.ID,
		Content:  &content.StudyGuideContent{Sections: []content.StudySection{{ID: "s1", Title: "Mammals"}}, Progress: 40},
	}
	if err := g.Spaces().Insert(ctx, guide); err != nil {
		t.Fatalf("insert space: %v", err)
	}
	loaded, err := g.Spaces().FindOwned(ctx, "alice", guide.ID)
	if err != nil {
		t.Fatalf("find space: %v", err)
	}
	body, ok := loaded.Content.(*content.StudyGuideContent)
	if !ok || body.Progress != 40 || body.Sections[0].Title != "Mammals" {
		t.Fatalf("expected study guide round trip, got %#v", loaded.Content)
	}
	if _, err := g.Spaces().FindOwned(ctx, "bob", guide.ID); !errors.Is(err, ownership.ErrNotFoundOrUnauthorized) {
		t.Fatalf("expected not found for bob, got %v", err)
	}

	n, err := g.Spaces().DeleteByFolder(ctx, "alice", a.ID)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 deleted, got %d err=%v", n, err)
	}
	if err := g.Folders().DeleteOwned(ctx, "alice", a.ID); err != nil {
		t.Fatalf("delete folder: %v", err)
	}
	if err := g.Folders().DeleteOwned(ctx, "alice", a.ID); !errors.Is(err, ownership.ErrNotFoundOrUnauthorized) {
		t.Fatalf("expected second delete to miss, got %v", err)
	}
}

func TestPostgresUsersUniqueEmail(t *testing.T) {
	g := openTestPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if _, err := g.Users().CreateUser(ctx, User{Email: "ada@example.com", PasswordHash: "x", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := g.Users().CreateUser(ctx, User{Email: "ADA@example.com", PasswordHash: "y", CreatedAt: now, UpdatedAt: now}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}
