package app

import (
	"context"
	"time"

	"quiz-play-gateway/internal/domain"
)

// Backend is the game backend as the play lifecycle needs it. A zero
// tournamentID selects the plain quiz variant of each call.
type Backend interface {
	StartSession(ctx context.Context, address string, tournamentID int64, count int) (domain.Session, error)
	SubmitAnswers(ctx context.Context, address string, sessionID, tournamentID int64, answers []domain.Answer) error
	FinishSession(ctx context.Context, address string, sessionID, tournamentID int64) (domain.Result, error)
	SessionStatus(ctx context.Context, address string, sessionID, tournamentID int64) (domain.SessionStatus, error)
	Credits(ctx context.Context, address string) (int, error)
	SettlementStatus(ctx context.Context, address string, sessionID int64) (domain.Settlement, error)
}

// Ledger abstracts the local durable bookkeeping: daily play counts,
// optimistically-spent credits, and the registered-tournament set.
// Implementations live in internal/infra (memory, Redis).
type Ledger interface {
	// DailyPlays returns the play count for (address, tournament) on the
	// given day key. Missing records read as zero.
	DailyPlays(address string, tournamentID int64, day string) (int, error)
	IncrDailyPlays(address string, tournamentID int64, day string) error

	PendingCredits(address string) (int, error)
	IncrPendingCredits(address string, delta int) (int, error)
	ClearPendingCredits(address string) error

	RegisteredTournaments(address string) ([]int64, error)
	MarkRegistered(address string, tournamentID int64) error
}

// Journal persists finished sessions. Writes are best-effort; a journal
// failure never fails the play.
type Journal interface {
	Record(ctx context.Context, entry domain.JournalEntry) error
}

// DayKey renders the calendar-date part of a daily-plays key.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
