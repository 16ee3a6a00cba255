package search

import (
	"context"
	"strings"
	"testing"

	"github.com/FarisLab/StudySync/internal/content"
	"github.com/FarisLab/StudySync/internal/ownership"
	"github.com/FarisLab/StudySync/internal/store"
)

func seedGateway(t *testing.T) (*store.MemoryGateway, *store.Folder) {
	t.Helper()
	ctx := context.Background()
	gw := store.NewMemoryGateway()

	folder, err := ownership.CreateOwned(ctx, gw.Folders(), "alice", &store.Folder{Name: "Biology"}, nil)
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	space := &store.Space{
		Type:     content.Notes,
		Title:    "Chapter 1",
		FolderID: &folder.ID,
		Content:  &content.NotesContent{Text: "Mitochondria are the powerhouse of the cell"},
	}
	if _, err := ownership.CreateOwned[*store.Space](ctx, gw.Spaces(), "alice", space, &ownership.ParentRef{Lookup: gw.Folders(), ID: folder.ID}); err != nil {
		t.Fatalf("create space: %v", err)
	}
	topic := &store.Space{Type: content.Flashcards, Title: "Cell vocabulary"}
	if _, err := ownership.CreateOwned[*store.Space](ctx, gw.Topics(), "alice", topic, nil); err != nil {
		t.Fatalf("create topic: %v", err)
	}
	other := &store.Space{Type: content.Notes, Title: "Cell notes of bob"}
	if _, err := ownership.CreateOwned[*store.Space](ctx, gw.Topics(), "bob", other, nil); err != nil {
		t.Fatalf("create bob topic: %v", err)
	}
	return gw, folder
}

func TestScanMatchesTitlesAndBodiesOfOwnerOnly(t *testing.T) {
	gw, folder := seedGateway(t)
	scan := NewScan(gw)

	results, total, err := scan.Search(context.Background(), Query{OwnerID: "alice", Text: "cell"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 2 || len(results) != 2 {
		t.Fatalf("expected 2 hits, got %d %+v", total, results)
	}
	// Title matches rank above body matches.
	if results[0].Kind != KindTopic || results[0].Title != "Cell vocabulary" {
		t.Fatalf("expected topic first, got %+v", results[0])
	}
	if results[1].Kind != KindSpace || results[1].FolderID == nil || *results[1].FolderID != folder.ID {
		t.Fatalf("expected space with folder id, got %+v", results[1])
	}
	if !strings.Contains(results[1].Snippet, "cell") {
		t.Fatalf("expected snippet around match, got %q", results[1].Snippet)
	}
	for _, r := range results {
		if strings.Contains(r.Title, "bob") {
			t.Fatalf("leaked other owner's record %+v", r)
		}
	}
}

func TestScanFiltersKindAndRequiresAllTerms(t *testing.T) {
	gw, _ := seedGateway(t)
	scan := NewScan(gw)
	ctx := context.Background()

	results, _, err := scan.Search(ctx, Query{OwnerID: "alice", Text: "biology", Kind: KindFolder})
	if err != nil || len(results) != 1 || results[0].Kind != KindFolder {
		t.Fatalf("expected folder hit, got %+v %v", results, err)
	}
	results, _, _ = scan.Search(ctx, Query{OwnerID: "alice", Text: "biology", Kind: KindSpace})
	if len(results) != 0 {
		t.Fatalf("expected no space hits, got %+v", results)
	}
	results, _, _ = scan.Search(ctx, Query{OwnerID: "alice", Text: "cell quantum"})
	if len(results) != 0 {
		t.Fatalf("expected all terms required, got %+v", results)
	}
}

func TestScanEmptyQuery(t *testing.T) {
	gw, _ := seedGateway(t)
	results, total, err := NewScan(gw).Search(context.Background(), Query{OwnerID: "alice", Text: "   "})
	if err != nil || total != 0 || results != nil {
		t.Fatalf("expected empty result, got %v %d %v", results, total, err)
	}
}

func TestSnippetWindow(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = "w"
	}
	words[60] = "target"
	out := snippet(strings.Join(words, " "), "target")
	if !strings.HasPrefix(out, "…") || !strings.HasSuffix(out, "…") || !strings.Contains(out, "target") {
		t.Fatalf("unexpected snippet %q", out)
	}
	if snippet("", "x") != "" {
		t.Fatalf("expected empty snippet")
	}
}

func TestFallbackForPicksBackendSearcher(t *testing.T) {
	if _, ok := FallbackFor(store.NewMemoryGateway()).(*Scan); !ok {
		t.Fatalf("expected scan fallback for memory gateway")
	}
	if _, ok := FallbackFor(store.NewPostgresGateway(nil)).(*PgFTS); !ok {
		t.Fatalf("expected full text fallback for postgres gateway")
	}
}
