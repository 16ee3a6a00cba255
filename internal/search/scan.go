package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/FarisLab/StudySync/internal/ownership"
	"github.com/FarisLab/StudySync/internal/store"
)

// Scan implements Searcher by walking the caller's entities through the
// store gateway and matching query terms as substrings. It needs no index
// and works on every backend.
type Scan struct {
	gateway store.Gateway
}

func NewScan(gateway store.Gateway) *Scan {
	return &Scan{gateway: gateway}
}

func (s *Scan) Healthy() bool { return true }

func (s *Scan) Search(ctx context.Context, q Query) ([]Result, int, error) {
	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 || q.OwnerID == "" {
		return nil, 0, nil
	}
	records, err := LoadRecords(ctx, s.gateway, ownership.UserID(q.OwnerID), q.Kind)
	if err != nil {
		return nil, 0, err
	}

	type hit struct {
		record Record
		score  int
	}
	var hits []hit
	for _, rec := range records {
		title := strings.ToLower(rec.Title)
		body := strings.ToLower(rec.Body)
		score := 0
		for _, term := range terms {
			switch {
			case strings.Contains(title, term):
				score += 2
			case strings.Contains(body, term):
				score++
			default:
				score = -1
			}
			if score < 0 {
				break
			}
		}
		if score > 0 {
			hits = append(hits, hit{record: rec, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	total := len(hits)
	if limit := q.limit(); len(hits) > limit {
		hits = hits[:limit]
	}
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.record.result(snippet(h.record.Body, terms[0])))
	}
	return results, total, nil
}

// LoadRecords reads every searchable record of one owner. An empty kind
// loads all kinds.
func LoadRecords(ctx context.Context, gateway store.Gateway, owner ownership.UserID, kind Kind) ([]Record, error) {
	var records []Record
	if kind == "" || kind == KindFolder {
		for folder, err := range ownership.ListOwned(ctx, gateway.Folders(), owner, ownership.Query{}) {
			if err != nil {
				return nil, fmt.Errorf("load folders: %w", err)
			}
			records = append(records, FolderRecord(folder))
		}
	}
	modules := []struct {
		kind Kind
		coll store.SpaceCollection
	}{
		{KindSpace, gateway.Spaces()},
		{KindTopic, gateway.Topics()},
	}
	for _, m := range modules {
		if kind != "" && kind != m.kind {
			continue
		}
		for module, err := range ownership.ListOwned[*store.Space](ctx, m.coll, owner, ownership.Query{}) {
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", m.coll.Name(), err)
			}
			records = append(records, ModuleRecord(m.kind, module))
		}
	}
	return records, nil
}
