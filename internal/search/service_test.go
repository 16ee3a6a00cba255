package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type fakeEngine struct {
	healthy  bool
	searchFn func(context.Context, Query) ([]Result, int, error)

	mu      sync.Mutex
	indexed []Record
	deleted []string
	ops     []string
	indexFn func([]Record)
}

func (f *fakeEngine) Healthy() bool { return f.healthy }

func (f *fakeEngine) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, q)
	}
	return nil, 0, nil
}

func (f *fakeEngine) Index(records []Record) error {
	if f.indexFn != nil {
		f.indexFn(records)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, records...)
	for _, r := range records {
		f.ops = append(f.ops, "index "+r.Key)
	}
	return nil
}

func (f *fakeEngine) Delete(kind Kind, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.deleted = append(f.deleted, recordKey(kind, id))
		f.ops = append(f.ops, "delete "+recordKey(kind, id))
	}
	return nil
}

type fakeSearcher struct {
	calls    int
	searchFn func(context.Context, Query) ([]Result, int, error)
}

func (f *fakeSearcher) Healthy() bool { return true }

func (f *fakeSearcher) Search(ctx context.Context, q Query) ([]Result, int, error) {
	f.calls++
	if f.searchFn != nil {
		return f.searchFn(ctx, q)
	}
	return nil, 0, nil
}

func TestSearchUsesHealthyEngine(t *testing.T) {
	engine := &fakeEngine{healthy: true, searchFn: func(_ context.Context, q Query) ([]Result, int, error) {
		return []Result{{Kind: KindSpace, ID: "s1", Title: q.Text}}, 1, nil
	}}
	fallback := &fakeSearcher{}
	svc := NewService(engine, fallback, zerolog.Nop())

	resp := svc.Search(context.Background(), Query{OwnerID: "u1", Text: "cells"})
	if resp.Total != 1 || len(resp.Results) != 1 || resp.Results[0].Title != "cells" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if fallback.calls != 0 {
		t.Fatalf("expected fallback unused, got %d calls", fallback.calls)
	}
}

func TestSearchFallsBackWhenEngineFails(t *testing.T) {
	engine := &fakeEngine{healthy: true, searchFn: func(context.Context, Query) ([]Result, int, error) {
		return nil, 0, errors.New("down")
	}}
	fallback := &fakeSearcher{searchFn: func(context.Context, Query) ([]Result, int, error) {
		return []Result{{Kind: KindFolder, ID: "f1"}}, 1, nil
	}}
	svc := NewService(engine, fallback, zerolog.Nop())

	resp := svc.Search(context.Background(), Query{OwnerID: "u1", Text: "bio"})
	if fallback.calls != 1 || len(resp.Results) != 1 {
		t.Fatalf("expected fallback result, got %+v (calls=%d)", resp, fallback.calls)
	}
}

func TestSearchSkipsUnhealthyEngine(t *testing.T) {
	engine := &fakeEngine{healthy: false, searchFn: func(context.Context, Query) ([]Result, int, error) {
		t.Fatalf("unhealthy engine must not be queried")
		return nil, 0, nil
	}}
	fallback := &fakeSearcher{}
	svc := NewService(engine, fallback, zerolog.Nop())

	resp := svc.Search(context.Background(), Query{OwnerID: "u1", Text: "x"})
	if resp.Results == nil {
		t.Fatalf("expected non-nil results")
	}
	if fallback.calls != 1 {
		t.Fatalf("expected one fallback call, got %d", fallback.calls)
	}
}

func TestSearchFallbackErrorYieldsEmptyResponse(t *testing.T) {
	fallback := &fakeSearcher{searchFn: func(context.Context, Query) ([]Result, int, error) {
		return nil, 0, errors.New("boom")
	}}
	svc := NewService(nil, fallback, zerolog.Nop())

	resp := svc.Search(context.Background(), Query{OwnerID: "u1", Text: "x"})
	if resp.Total != 0 || len(resp.Results) != 0 || resp.Query != "x" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestIndexAndDeleteRunInBackground(t *testing.T) {
	engine := &fakeEngine{healthy: true}
	svc := NewService(engine, nil, zerolog.Nop())

	svc.Index(Record{Key: recordKey(KindTopic, "t1"), Kind: KindTopic, ID: "t1"})
	svc.Delete(KindSpace, "s1", "s2")
	svc.Wait()

	if len(engine.indexed) != 1 || engine.indexed[0].ID != "t1" {
		t.Fatalf("expected indexed record, got %+v", engine.indexed)
	}
	if len(engine.deleted) != 2 || engine.deleted[0] != "space-s1" {
		t.Fatalf("expected deleted keys, got %v", engine.deleted)
	}
}

func TestIndexAndDeleteKeepCallOrder(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	engine := &fakeEngine{healthy: true}
	// The first write blocks so later calls pile up behind it.
	engine.indexFn = func([]Record) { once.Do(func() { <-release }) }
	svc := NewService(engine, nil, zerolog.Nop())

	topic := Record{Key: recordKey(KindTopic, "t1"), Kind: KindTopic, ID: "t1"}
	svc.Index(topic)
	svc.Index(topic)
	svc.Delete(KindTopic, "t1")
	svc.Index(Record{Key: recordKey(KindFolder, "f1"), Kind: KindFolder, ID: "f1"})
	svc.Delete(KindFolder, "f1")
	close(release)
	svc.Wait()

	want := []string{"index topic-t1", "index topic-t1", "delete topic-t1", "index folder-f1", "delete folder-f1"}
	if len(engine.ops) != len(want) {
		t.Fatalf("expected %v, got %v", want, engine.ops)
	}
	for i := range want {
		if engine.ops[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, engine.ops)
		}
	}

	svc.Delete(KindSpace, "s1")
	svc.Wait()
	if last := engine.ops[len(engine.ops)-1]; last != "delete space-s1" {
		t.Fatalf("expected queue to restart after draining, got %v", engine.ops)
	}
}

func TestIndexWithoutEngineIsNoop(t *testing.T) {
	svc := NewService(nil, &fakeSearcher{}, zerolog.Nop())
	svc.Index(Record{ID: "x"})
	svc.Delete(KindFolder, "x")
	svc.Wait()

	ok, err := svc.Reindex([]Record{{ID: "x"}})
	if ok || err != nil {
		t.Fatalf("expected reindex skipped, got %v %v", ok, err)
	}
}

func TestParseKind(t *testing.T) {
	for _, in := range []string{"", "folder", " Space ", "TOPIC"} {
		if _, ok := ParseKind(in); !ok {
			t.Fatalf("expected %q accepted", in)
		}
	}
	if _, ok := ParseKind("document"); ok {
		t.Fatalf("expected document rejected")
	}
}

func TestQueryLimitBounds(t *testing.T) {
	if got := (Query{}).limit(); got != defaultLimit {
		t.Fatalf("expected default limit, got %d", got)
	}
	if got := (Query{Limit: 1000}).limit(); got != maxLimit {
		t.Fatalf("expected capped limit, got %d", got)
	}
	if got := (Query{Limit: 5}).limit(); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}
