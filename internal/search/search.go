// Package search indexes match events for free-text lookup, using
// Meilisearch when it is reachable and Postgres full-text search otherwise.
package search

import (
	"time"

	"bridge/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID             string `json:"id"`
	ReferenceDocID string `json:"referenceDocId"`
	ReferenceTitle string `json:"referenceTitle"`
	Kind           string `json:"kind"`
	Accepted       bool   `json:"accepted"`
	Candidate      string `json:"candidate"`
	Snippet        string `json:"snippet"`
	CreatedAt      int64  `json:"createdAt"`
}

// Query describes a search request.
type Query struct {
	Text           string
	ReferenceDocID string
	AcceptedOnly   bool
	Limit          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// EventRecord is the data we index for a match event.
type EventRecord struct {
	ID             string `json:"id"`
	ReferenceDocID string `json:"referenceDocId"`
	ReferenceTitle string `json:"referenceTitle"`
	Kind           string `json:"kind"`
	Accepted       bool   `json:"accepted"`
	Candidate      string `json:"candidate"`
	Clause         string `json:"clause"`
	Note           string `json:"note"`
	CreatedAt      int64  `json:"createdAt"`
}

// RecordFromEvent flattens a stored event for indexing.
func RecordFromEvent(event store.MatchEvent) EventRecord {
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return EventRecord{
		ID:             event.ID,
		ReferenceDocID: event.ReferenceDocID,
		ReferenceTitle: event.ReferenceTitle,
		Kind:           event.Kind,
		Accepted:       event.Accepted,
		Candidate:      event.Candidate,
		Clause:         deref(event.Clause),
		Note:           deref(event.Note),
		CreatedAt:      createdAt.Unix(),
	}
}

func resultFromEvent(event store.MatchEvent) Result {
	record := RecordFromEvent(event)
	return Result{
		ID:             record.ID,
		ReferenceDocID: record.ReferenceDocID,
		ReferenceTitle: record.ReferenceTitle,
		Kind:           record.Kind,
		Accepted:       record.Accepted,
		Candidate:      record.Candidate,
		Snippet:        firstNonBlank(record.Clause, record.Note),
		CreatedAt:      record.CreatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
