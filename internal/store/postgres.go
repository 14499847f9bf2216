package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const defaultListLimit = 50

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) InsertMatchEvent(ctx context.Context, event MatchEvent) error {
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO match_events (
			id, draft_document_id, reference_document_id, reference_title, trigger_source,
			candidate, match_kind, accepted, clause, note, span_start, span_end, locate_pass, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		event.ID, event.DraftDocID, event.ReferenceDocID, event.ReferenceTitle, event.Trigger,
		event.Candidate, event.Kind, event.Accepted, event.Clause, event.Note,
		event.SpanStart, event.SpanEnd, event.LocatePass, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert match event: %w", err)
	}
	return nil
}

// ListMatchEvents returns the most recent events, newest first. An empty
// referenceDocID lists events for every reference document.
func (s *PostgresStore) ListMatchEvents(ctx context.Context, referenceDocID string, limit int) ([]MatchEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, draft_document_id, reference_document_id, reference_title, trigger_source,
			candidate, match_kind, accepted, clause, note, span_start, span_end, locate_pass, created_at
		FROM match_events
		WHERE ($1='' OR reference_document_id=$1)
		ORDER BY created_at DESC
		LIMIT $2
	`, strings.TrimSpace(referenceDocID), limit)
	if err != nil {
		return nil, fmt.Errorf("list match events: %w", err)
	}
	defer rows.Close()
	return scanMatchEvents(rows)
}

// SearchMatchEvents runs a full-text query over candidate, clause and note.
func (s *PostgresStore) SearchMatchEvents(ctx context.Context, query string, limit int) ([]MatchEvent, error) {
	if strings.TrimSpace(query) == "" {
		return []MatchEvent{}, nil
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, draft_document_id, reference_document_id, reference_title, trigger_source,
			candidate, match_kind, accepted, clause, note, span_start, span_end, locate_pass, created_at
		FROM match_events
		WHERE fts @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(fts, plainto_tsquery('english', $1)) DESC, created_at DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search match events: %w", err)
	}
	defer rows.Close()
	return scanMatchEvents(rows)
}

func scanMatchEvents(rows *sql.Rows) ([]MatchEvent, error) {
	items := make([]MatchEvent, 0)
	for rows.Next() {
		var item MatchEvent
		var clause, note, pass sql.NullString
		var spanStart, spanEnd sql.NullInt64
		if err := rows.Scan(
			&item.ID,
			&item.DraftDocID,
			&item.ReferenceDocID,
			&item.ReferenceTitle,
			&item.Trigger,
			&item.Candidate,
			&item.Kind,
			&item.Accepted,
			&clause,
			&note,
			&spanStart,
			&spanEnd,
			&pass,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan match event: %w", err)
		}
		item.Clause = nullString(clause)
		item.Note = nullString(note)
		item.LocatePass = nullString(pass)
		item.SpanStart = nullInt(spanStart)
		item.SpanEnd = nullInt(spanEnd)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match events: %w", err)
	}
	return items, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
