// Package cache holds the last verdict resolved for each reference document.
package cache

import (
	"context"
	"sync"
)

// Entry is the last verdict for one reference document. Match is nil for
// rejections and for documents never resolved.
type Entry struct {
	Match *string `json:"matched"`
	Note  *string `json:"note"`
}

// Store records and reads entries. Lookup returns a zero Entry for an
// unknown document rather than an error.
type Store interface {
	Record(ctx context.Context, docID string, entry Entry) error
	Lookup(ctx context.Context, docID string) (Entry, error)
}

// Memory is a process-local Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]Entry{}}
}

func (m *Memory) Record(_ context.Context, docID string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[docID] = entry
	return nil
}

func (m *Memory) Lookup(_ context.Context, docID string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[docID], nil
}

// Rejected builds the entry stored for a rejected verdict.
func Rejected(note string) Entry {
	return Entry{Note: &note}
}

// Accepted builds the entry stored for an accepted verdict.
func Accepted(clause string, note *string) Entry {
	return Entry{Match: &clause, Note: note}
}
