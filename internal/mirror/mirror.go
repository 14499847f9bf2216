// Package mirror caches the rendered text of local reference files and
// matches the draft against them.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"bridge/api/internal/oracle"
)

// ErrNothingCached is returned by Match before any page has been captured.
var ErrNothingCached = errors.New("no mirrored pages cached")

const fileScheme = "file://"

// PageReader returns the visible text of the page at url.
type PageReader interface {
	ReadText(ctx context.Context, url string) (string, error)
}

// Mirror holds captured page text in capture order.
type Mirror struct {
	reader PageReader
	oracle oracle.Oracle

	mu    sync.RWMutex
	texts map[string]string
	order []string
}

func New(reader PageReader, o oracle.Oracle) *Mirror {
	return &Mirror{reader: reader, oracle: o, texts: map[string]string{}}
}

// Capture reads and caches a file:// page. Each URL is read at most once;
// other schemes are ignored. It reports whether url is cached afterwards.
func (m *Mirror) Capture(ctx context.Context, url string) (bool, error) {
	if !strings.HasPrefix(url, fileScheme) {
		return false, nil
	}
	m.mu.RLock()
	_, ok := m.texts[url]
	m.mu.RUnlock()
	if ok {
		return true, nil
	}

	text, err := m.reader.ReadText(ctx, url)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", url, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.texts[url]; !ok {
		m.texts[url] = text
		m.order = append(m.order, url)
	}
	return true, nil
}

// URLs lists captured pages in capture order.
func (m *Mirror) URLs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Joined returns every captured page's text separated by a blank line.
func (m *Mirror) Joined() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	parts := make([]string, 0, len(m.order))
	for _, url := range m.order {
		parts = append(parts, m.texts[url])
	}
	return strings.Join(parts, "\n\n")
}

// Match asks the oracle which mirrored passage corresponds to draftText and
// returns its raw answer.
func (m *Mirror) Match(ctx context.Context, draftText string) (string, error) {
	if len(m.URLs()) == 0 {
		return "", ErrNothingCached
	}
	return m.oracle.Analyze(ctx, oracle.Request{DraftText: draftText, ReferenceText: m.Joined()})
}
