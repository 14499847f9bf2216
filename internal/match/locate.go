package match

import (
	"strings"

	"bridge/api/internal/docs"
)

// probeLength is how many normalized clause characters the paragraph
// fallback searches for.
const probeLength = 20

// Span is a half-open [Start, End) range of UTF-16 code units into the
// reference full text, 0-indexed.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Pass names the strategy that located a clause.
type Pass string

const (
	PassExact     Pass = "exact"
	PassParagraph Pass = "paragraph"
)

// Location is a located clause.
type Location struct {
	Span Span `json:"span"`
	Pass Pass `json:"pass"`
}

// Locate finds clause in fullText. It first looks for the clause verbatim;
// failing that it takes the first probeLength characters of the normalized
// clause and returns the span of the whole first paragraph whose normalized
// text contains them. paragraphs must come from the same snapshot as
// fullText.
func Locate(clause, fullText string, paragraphs []string) (Location, bool) {
	if clause == "" {
		return Location{}, false
	}
	if idx := strings.Index(fullText, clause); idx >= 0 {
		return Location{Span: spanAt(fullText, idx, clause), Pass: PassExact}, true
	}

	probe := firstRunes(normalizeForProbe(clause), probeLength)
	if probe == "" {
		return Location{}, false
	}
	for _, paragraph := range paragraphs {
		if !strings.Contains(normalizeForProbe(paragraph), probe) {
			continue
		}
		idx := strings.Index(fullText, paragraph)
		if idx < 0 {
			return Location{}, false
		}
		return Location{Span: spanAt(fullText, idx, paragraph), Pass: PassParagraph}, true
	}
	return Location{}, false
}

func spanAt(fullText string, byteIdx int, found string) Span {
	start := docs.UTF16Len(fullText[:byteIdx])
	return Span{Start: start, End: start + docs.UTF16Len(found)}
}

func firstRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
