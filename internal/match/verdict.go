// Package match interprets oracle responses and locates the reference
// clause a verdict points at.
package match

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse indicates the oracle text was not the expected JSON object.
var ErrMalformedResponse = errors.New("malformed oracle response")

// Kind is the match type reported by the oracle.
type Kind string

const (
	KindGoodEvidence Kind = "GOOD_EVIDENCE"
	KindIssueCured   Kind = "POTENTIAL_ISSUE_CURED"
	KindPartialMatch Kind = "PARTIAL_MATCH"
	KindNoMatch      Kind = "No Match"
)

// DefaultRejectNote is recorded when a rejected verdict carries no note.
const DefaultRejectNote = "No matching clause found."

const notApplicable = "N/A"

// Verdict is Accepted (Kind and Clause set) or Rejected.
type Verdict struct {
	Accepted bool
	Kind     Kind
	Clause   string
	Note     *string
	// Reason explains a rejection for logs.
	Reason string
}

// NoteOr returns the note or fallback when the note is absent or blank.
func (v Verdict) NoteOr(fallback string) string {
	if v.Note == nil || strings.TrimSpace(*v.Note) == "" {
		return fallback
	}
	return *v.Note
}

type rawVerdict struct {
	Type   *string `json:"Type of match found"`
	Clause *string `json:"Reference Clause"`
	Note   *string `json:"Note"`
}

// ParseVerdict decodes raw oracle text. Markdown code fences are stripped
// first. A decoding failure returns ErrMalformedResponse; every decodable
// object yields a Verdict. With strict set, match kinds other than the
// known positive kinds are rejected.
func ParseVerdict(raw string, strict bool) (Verdict, error) {
	cleaned := stripFences(raw)
	var parsed rawVerdict
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	kind := Kind(strings.TrimSpace(deref(parsed.Type)))
	clause := ""
	if parsed.Clause != nil {
		clause = NormalizeClause(*parsed.Clause)
	}
	verdict := Verdict{Kind: kind, Note: parsed.Note}

	switch {
	case kind == KindNoMatch:
		verdict.Reason = "oracle reported no match"
	case clause == "" || clause == notApplicable:
		verdict.Reason = "no reference clause"
	case strict && !isPositive(kind):
		verdict.Reason = fmt.Sprintf("unrecognised match type %q", kind)
	default:
		verdict.Accepted = true
		verdict.Clause = clause
	}
	return verdict, nil
}

func isPositive(kind Kind) bool {
	switch kind {
	case KindGoodEvidence, KindIssueCured, KindPartialMatch:
		return true
	}
	return false
}

func stripFences(raw string) string {
	raw = strings.ReplaceAll(raw, "```json", "")
	raw = strings.ReplaceAll(raw, "```", "")
	return strings.TrimSpace(raw)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
