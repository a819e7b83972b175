package memory

import (
	"context"
	"sync"

	"quiz-play-gateway/internal/domain"
)

// Journal keeps finished sessions in memory; the Postgres journal replaces
// it when a database is configured.
type Journal struct {
	mu      sync.RWMutex
	entries []domain.JournalEntry
}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) Record(_ context.Context, entry domain.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

// Entries returns a copy of everything recorded so far.
func (j *Journal) Entries() []domain.JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]domain.JournalEntry, len(j.entries))
	copy(out, j.entries)
	return out
}
