// Package docs models the document-editing backend: document snapshots,
// the edits the bridge applies to them, and plain-text extraction.
package docs

import (
	"context"
	"errors"
)

// ErrNotFound indicates the document does not exist or is not shared with the caller.
var ErrNotFound = errors.New("document not found")

// Run is one styled text run inside a paragraph.
type Run struct {
	Text string
}

// Paragraph is an ordered sequence of runs.
type Paragraph struct {
	Runs []Run
}

// Block is one structural element of a document body. Blocks without a
// paragraph (tables, section breaks, tables of contents) carry no text.
type Block struct {
	Paragraph *Paragraph
}

// Body is the ordered block list of a document.
type Body []Block

// Document is a read-only snapshot returned per fetch.
type Document struct {
	ID    string
	Title string
	Body  Body
}

// RGB is a color with channels in [0,1].
type RGB struct {
	Red   float64
	Green float64
	Blue  float64
}

// Yellow is the highlight applied to located reference clauses.
var Yellow = RGB{Red: 1, Green: 1, Blue: 0}

// StyleEdit sets or clears the background color over [Start, End).
// A nil Background clears it. Offsets follow the document model where
// index 0 is the implicit start marker and text begins at index 1.
type StyleEdit struct {
	Start      int
	End        int
	Background *RGB
}

// Store is the document-editing backend.
type Store interface {
	Fetch(ctx context.Context, docID string) (Document, error)
	// ApplyStyleEdits applies edits in order within one batch.
	ApplyStyleEdits(ctx context.Context, docID string, edits []StyleEdit) error
	InsertText(ctx context.Context, docID string, index int, text string) error
}
