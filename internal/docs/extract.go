package docs

import (
	"strings"
	"unicode/utf16"
)

// Separator joins paragraphs in a fingerprint. It cannot occur inside a
// trimmed paragraph because paragraphs never contain a bare newline.
const Separator = "\n---\n"

// ParagraphText concatenates the run texts of p and trims the result.
func ParagraphText(p *Paragraph) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	for _, run := range p.Runs {
		b.WriteString(run.Text)
	}
	return strings.TrimSpace(b.String())
}

// Paragraphs returns the trimmed text of every paragraph block, skipping
// non-paragraph blocks.
func Paragraphs(body Body) []string {
	out := make([]string, 0, len(body))
	for _, block := range body {
		if block.Paragraph == nil {
			continue
		}
		out = append(out, ParagraphText(block.Paragraph))
	}
	return out
}

// Fingerprint joins Paragraphs(body) with Separator.
func Fingerprint(body Body) string {
	return strings.Join(Paragraphs(body), Separator)
}

// FullText joins the text of every block with a newline. Non-paragraph
// blocks contribute an empty line, so the result is not index-aligned with
// Paragraphs. Highlight spans are computed against this representation.
func FullText(body Body) string {
	lines := make([]string, len(body))
	for i, block := range body {
		lines[i] = ParagraphText(block.Paragraph)
	}
	return strings.Join(lines, "\n")
}

// UTF16Len reports the length of s in UTF-16 code units, the unit the
// document backend uses for offsets.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
