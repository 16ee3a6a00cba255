package search

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Service is the facade that tries the engine first and falls back to a
// local searcher (PG FTS or a gateway scan).
type Service struct {
	engine   Engine
	fallback Searcher
	log      zerolog.Logger
	pending  sync.WaitGroup

	mu       sync.Mutex
	queue    []update
	draining bool
}

// update is one queued engine write: records to index, or ids to delete.
type update struct {
	records []Record
	kind    Kind
	ids     []string
}

// NewService creates a search service. engine may be nil if Meilisearch is
// not configured.
func NewService(engine Engine, fallback Searcher, log zerolog.Logger) *Service {
	return &Service{engine: engine, fallback: fallback, log: log.With().Str("component", "search").Logger()}
}

func (s *Service) engineReady() bool {
	return s.engine != nil && s.engine.Healthy()
}

// Search tries the engine if healthy, otherwise falls back. Failures are
// logged and yield an empty response.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.engineReady() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn().Err(err).Msg("engine error, falling back")
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Error().Err(err).Msg("fallback search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Index pushes records to the engine in the background. Index and Delete
// calls reach the engine in the order they were made.
func (s *Service) Index(records ...Record) {
	if !s.engineReady() || len(records) == 0 {
		return
	}
	s.enqueue(update{records: records})
}

// Delete removes records from the engine in the background.
func (s *Service) Delete(kind Kind, ids ...string) {
	if !s.engineReady() || len(ids) == 0 {
		return
	}
	s.enqueue(update{kind: kind, ids: ids})
}

// enqueue appends u and starts the single drain goroutine if none is running.
func (s *Service) enqueue(u update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, u)
	if s.draining {
		return
	}
	s.draining = true
	s.pending.Add(1)
	go s.drain()
}

func (s *Service) drain() {
	defer s.pending.Done()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		u := s.queue[0]
		s.queue[0] = update{}
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.apply(u)
	}
}

func (s *Service) apply(u update) {
	if u.records != nil {
		if err := s.engine.Index(u.records); err != nil {
			s.log.Warn().Err(err).Int("records", len(u.records)).Msg("index records")
		}
		return
	}
	if err := s.engine.Delete(u.kind, u.ids); err != nil {
		s.log.Warn().Err(err).Str("kind", string(u.kind)).Msg("delete records")
	}
}

// Reindex synchronously pushes records to the engine. It reports whether the
// engine was available.
func (s *Service) Reindex(records []Record) (bool, error) {
	if !s.engineReady() {
		return false, nil
	}
	return true, s.engine.Index(records)
}

// Wait blocks until background index updates have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
