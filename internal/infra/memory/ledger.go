package memory

import (
	"fmt"
	"sync"
)

// Ledger is the in-memory implementation of app.Ledger, used in tests and
// when no Redis address is configured. Daily-play records expire naturally
// by key: a new date reads a fresh counter.
type Ledger struct {
	mu         sync.RWMutex
	plays      map[string]int
	pending    map[string]int
	registered map[string]map[int64]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{
		plays:      make(map[string]int),
		pending:    make(map[string]int),
		registered: make(map[string]map[int64]struct{}),
	}
}

func playKey(address string, tournamentID int64, day string) string {
	return fmt.Sprintf("%s:%d:%s", address, tournamentID, day)
}

func (l *Ledger) DailyPlays(address string, tournamentID int64, day string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.plays[playKey(address, tournamentID, day)], nil
}

func (l *Ledger) IncrDailyPlays(address string, tournamentID int64, day string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.plays[playKey(address, tournamentID, day)]++
	return nil
}

func (l *Ledger) PendingCredits(address string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pending[address], nil
}

func (l *Ledger) IncrPendingCredits(address string, delta int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := l.pending[address] + delta
	if v < 0 {
		v = 0
	}
	l.pending[address] = v
	return v, nil
}

func (l *Ledger) ClearPendingCredits(address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, address)
	return nil
}

func (l *Ledger) RegisteredTournaments(address string) ([]int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	set := l.registered[address]
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids, nil
}

func (l *Ledger) MarkRegistered(address string, tournamentID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.registered[address]
	if !ok {
		set = make(map[int64]struct{})
		l.registered[address] = set
	}
	set[tournamentID] = struct{}{}
	return nil
}
