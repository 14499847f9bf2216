// Package annotate writes match results back into documents: highlight
// ranges on reference documents and entries in the audit log document.
package annotate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bridge/api/internal/docs"
	"bridge/api/internal/match"
)

// logInsertIndex is the first text position of a document. Inserting
// there pushes earlier entries down, so the log reads most-recent-first.
const logInsertIndex = 1

const entrySeparator = "===================="

// Applier issues style and insert edits through a docs.Store.
type Applier struct {
	docs     docs.Store
	color    docs.RGB
	location *time.Location
	now      func() time.Time
}

func NewApplier(store docs.Store, location *time.Location) *Applier {
	if location == nil {
		location = time.UTC
	}
	return &Applier{docs: store, color: docs.Yellow, location: location, now: time.Now}
}

// ClearHighlight removes the background color from the whole document.
func (a *Applier) ClearHighlight(ctx context.Context, docID string, fullTextLen int) error {
	return a.docs.ApplyStyleEdits(ctx, docID, []docs.StyleEdit{clearEdit(fullTextLen)})
}

// ApplyHighlight clears any previous highlight and highlights span in one
// batch. span is 0-indexed into the full text; the document model starts
// text at index 1, so both ends shift by one.
func (a *Applier) ApplyHighlight(ctx context.Context, docID string, fullTextLen int, span match.Span) error {
	color := a.color
	return a.docs.ApplyStyleEdits(ctx, docID, []docs.StyleEdit{
		clearEdit(fullTextLen),
		{Start: span.Start + 1, End: span.End + 1, Background: &color},
	})
}

func clearEdit(fullTextLen int) docs.StyleEdit {
	return docs.StyleEdit{Start: 1, End: fullTextLen + 1}
}

// Entry is one audit log record.
type Entry struct {
	At             time.Time
	ReferenceTitle string
	Candidate      string
	Kind           match.Kind
	Clause         string
	Note           string
}

// AppendLogEntry inserts a formatted entry at the top of the log document.
func (a *Applier) AppendLogEntry(ctx context.Context, logDocID string, entry Entry) error {
	if entry.At.IsZero() {
		entry.At = a.now()
	}
	if err := a.docs.InsertText(ctx, logDocID, logInsertIndex, a.FormatEntry(entry)); err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}
	return nil
}

// FormatEntry renders entry the way it appears in the log document.
func (a *Applier) FormatEntry(entry Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Timestamp: %s\n", entry.At.In(a.location).Format("1/2/2006, 3:04:05 PM"))
	fmt.Fprintf(&b, "Reference Document: %s\n\n", entry.ReferenceTitle)
	fmt.Fprintf(&b, "User Clause:\n%s\n\n", entry.Candidate)
	fmt.Fprintf(&b, "Match Status: %s\n", entry.Kind)
	fmt.Fprintf(&b, "Reference Clause:\n%s\n\n", orNone(entry.Clause))
	fmt.Fprintf(&b, "Note:\n%s\n\n", orNone(entry.Note))
	b.WriteString(entrySeparator + "\n\n")
	return b.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None"
	}
	return s
}
