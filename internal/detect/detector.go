// Package detect decides which draft paragraph changed between polls.
package detect

import (
	"strings"
	"sync"

	"bridge/api/internal/docs"
)

// Detector remembers the last observed fingerprint of one document.
type Detector struct {
	mu          sync.Mutex
	fingerprint string
	paragraphs  []string
}

func New() *Detector {
	return &Detector{}
}

// Detect records body as the latest snapshot and returns the first
// paragraph that differs from the previous snapshot.
//
// The scan is positional: paragraphs are compared index by index over the
// new list and the first mismatch wins. An index past the end of the old
// list counts as a change, so a pure append reports the appended paragraph
// and a pure truncation reports nothing. Inserting or deleting a paragraph
// in the middle shifts every later index, and the paragraph at the shift
// point is reported instead of the edited one.
//
// A call made while no non-empty fingerprint is recorded only seeds the
// detector, so a draft that starts out empty seeds on its first content
// instead of reporting it. Blank paragraphs never trigger.
func (d *Detector) Detect(body docs.Body) (string, bool) {
	paragraphs := docs.Paragraphs(body)
	fingerprint := strings.Join(paragraphs, docs.Separator)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fingerprint == "" {
		d.store(fingerprint, paragraphs)
		return "", false
	}
	if fingerprint == d.fingerprint {
		return "", false
	}

	changed := firstDivergence(d.paragraphs, paragraphs)
	d.store(fingerprint, paragraphs)

	if strings.TrimSpace(changed) == "" {
		return "", false
	}
	return changed, true
}

// Fingerprint returns the last recorded fingerprint and whether the
// detector is seeded.
func (d *Detector) Fingerprint() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fingerprint, d.fingerprint != ""
}

func (d *Detector) store(fingerprint string, paragraphs []string) {
	d.fingerprint = fingerprint
	d.paragraphs = paragraphs
}

func firstDivergence(previous, current []string) string {
	for i, paragraph := range current {
		if i >= len(previous) || previous[i] != paragraph {
			return paragraph
		}
	}
	return ""
}
