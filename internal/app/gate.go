package app

import (
	"log"
	"strings"
	"time"

	"quiz-play-gateway/internal/domain"
)

// PlayGate enforces the advisory per-day play cap for tournaments. The
// backend is the authority and may still reject; the gate just avoids a
// pointless round trip and wallet prompt.
type PlayGate struct {
	ledger Ledger
	limit  int
	now    func() time.Time
}

func NewPlayGate(ledger Ledger, limit int) *PlayGate {
	return &PlayGate{ledger: ledger, limit: limit, now: time.Now}
}

// NewPlayGateWithClock allows deterministic date keys in tests.
func NewPlayGateWithClock(ledger Ledger, limit int, now func() time.Time) *PlayGate {
	return &PlayGate{ledger: ledger, limit: limit, now: now}
}

// Used reads today's play count. Storage errors read as zero: the gate
// fails open rather than blocking play on a broken ledger.
func (g *PlayGate) Used(address string, tournamentID int64) int {
	n, err := g.ledger.DailyPlays(strings.ToLower(address), tournamentID, DayKey(g.now()))
	if err != nil {
		log.Printf("play gate: read failed, failing open: %v", err)
		return 0
	}
	return n
}

// Allow admits one play for (address, tournament) today, incrementing the
// counter before the caller navigates into the session. The count is spent
// even if the subsequent start is aborted; the backend keeps its own
// authoritative tally.
func (g *PlayGate) Allow(address string, tournamentID int64) error {
	if address == "" {
		return domain.ErrNotConnected
	}
	if g.Used(address, tournamentID) >= g.limit {
		return domain.ErrLimitReached
	}
	if err := g.ledger.IncrDailyPlays(strings.ToLower(address), tournamentID, DayKey(g.now())); err != nil {
		log.Printf("play gate: increment failed: %v", err)
	}
	return nil
}

// Limit returns the configured daily cap.
func (g *PlayGate) Limit() int { return g.limit }
