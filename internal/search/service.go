package search

import (
	"github.com/charmbracelet/log"

	"bridge/api/internal/store"
)

// Service tries Meilisearch first and falls back to Postgres.
type Service struct {
	meili    *Meili
	fallback Searcher
	logger   *log.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured; fallback may be nil if Postgres is not configured.
func NewService(meili *Meili, fallback Searcher, logger *log.Logger) *Service {
	return &Service{meili: meili, fallback: fallback, logger: logger}
}

func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to postgres", "err", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(q)
	if err != nil {
		s.logger.Error("postgres search error", "err", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexEvent indexes a match event (fire-and-forget to Meilisearch).
func (s *Service) IndexEvent(event store.MatchEvent) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFromEvent(event)
	go func() {
		if err := s.meili.IndexEvent(record); err != nil {
			s.logger.Warn("index match event", "id", record.ID, "err", err)
		}
	}()
}

// Reindex pushes events into Meilisearch, typically at startup.
func (s *Service) Reindex(events []store.MatchEvent) {
	if s.meili == nil || !s.meili.Healthy() || len(events) == 0 {
		return
	}
	records := make([]EventRecord, 0, len(events))
	for _, event := range events {
		records = append(records, RecordFromEvent(event))
	}
	if err := s.meili.IndexEvents(records); err != nil {
		s.logger.Warn("reindex match events", "count", len(records), "err", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
