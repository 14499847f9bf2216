// Package oracle talks to the language-model matching service. The oracle
// returns free-form text that is expected to contain one JSON object with
// the keys "Type of match found", "Reference Clause" and "Note".
package oracle

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyResponse indicates the model produced no text.
var ErrEmptyResponse = errors.New("oracle returned an empty response")

// Request pairs a candidate draft paragraph with one reference text.
type Request struct {
	DraftText     string `json:"draftText"`
	ReferenceText string `json:"referenceText"`
}

// Oracle analyzes a request and returns the raw model text.
type Oracle interface {
	Analyze(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Analyze(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// trimLeadingFence removes a leading ```json fence and the trailing fence
// that closes it. Text without a leading fence is returned trimmed.
func trimLeadingFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```json") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
