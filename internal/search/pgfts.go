package search

import (
	"context"
	"strings"
	"time"

	"bridge/api/internal/store"
)

// EventSearcher is the Postgres side of match event search.
type EventSearcher interface {
	SearchMatchEvents(ctx context.Context, query string, limit int) ([]store.MatchEvent, error)
}

// PgFTS implements Searcher over the match_events tsvector column.
type PgFTS struct {
	events  EventSearcher
	timeout time.Duration
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(events EventSearcher) *PgFTS {
	return &PgFTS{events: events, timeout: 5 * time.Second}
}

// Healthy always returns true; Postgres being down already fails readiness.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	// Filters are applied after ranking, so over-fetch a little.
	events, err := p.events.SearchMatchEvents(ctx, q.Text, limit*2)
	if err != nil {
		return nil, 0, err
	}

	results := make([]Result, 0, len(events))
	for _, event := range events {
		if q.ReferenceDocID != "" && event.ReferenceDocID != q.ReferenceDocID {
			continue
		}
		if q.AcceptedOnly && !event.Accepted {
			continue
		}
		results = append(results, resultFromEvent(event))
		if len(results) == limit {
			break
		}
	}
	return results, len(results), nil
}
