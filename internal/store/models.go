package store

import "time"

// Trigger sources recorded on match events.
const (
	TriggerPoll      = "poll"
	TriggerSelection = "selection"
)

// MatchEvent is one resolution of a candidate paragraph against one
// reference document. Rejections are recorded too, with Accepted false.
type MatchEvent struct {
	ID             string
	DraftDocID     string
	ReferenceDocID string
	ReferenceTitle string
	Trigger        string
	Candidate      string
	Kind           string
	Accepted       bool
	Clause         *string
	Note           *string
	SpanStart      *int
	SpanEnd        *int
	LocatePass     *string
	CreatedAt      time.Time
}
