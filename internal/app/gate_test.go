package app_test

import (
	"errors"
	"testing"
	"time"

	"quiz-play-gateway/internal/app"
	"quiz-play-gateway/internal/domain"
	"quiz-play-gateway/internal/infra/memory"
)

func TestPlayGateDailyLimit(t *testing.T) {
	clock := newFakeClock()
	gate := app.NewPlayGateWithClock(memory.NewLedger(), 2, clock.Now)

	if err := gate.Allow("0xABC", 7); err != nil {
		t.Fatalf("first play: %v", err)
	}
	if err := gate.Allow("0xabc", 7); err != nil {
		t.Fatalf("second play: %v", err)
	}
	if err := gate.Allow("0xabc", 7); !errors.Is(err, domain.ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached on third play, got %v", err)
	}
	if got := gate.Used("0xabc", 7); got != 2 {
		t.Fatalf("expected 2 plays used, got %d", got)
	}
}

func TestPlayGateResetsOnDateRollover(t *testing.T) {
	clock := newFakeClock()
	gate := app.NewPlayGateWithClock(memory.NewLedger(), 2, clock.Now)

	if err := gate.Allow("0xabc", 7); err != nil {
		t.Fatalf("play 1: %v", err)
	}
	if err := gate.Allow("0xabc", 7); err != nil {
		t.Fatalf("play 2: %v", err)
	}

	clock.Advance(24 * time.Hour)
	if got := gate.Used("0xabc", 7); got != 0 {
		t.Fatalf("expected fresh count after rollover, got %d", got)
	}
	if err := gate.Allow("0xabc", 7); err != nil {
		t.Fatalf("play after rollover: %v", err)
	}
}

func TestPlayGateTracksTournamentsSeparately(t *testing.T) {
	clock := newFakeClock()
	gate := app.NewPlayGateWithClock(memory.NewLedger(), 2, clock.Now)

	gate.Allow("0xabc", 7)
	gate.Allow("0xabc", 7)
	if err := gate.Allow("0xabc", 8); err != nil {
		t.Fatalf("a full ledger for one tournament must not block another: %v", err)
	}
}

func TestPlayGateRequiresAddress(t *testing.T) {
	gate := app.NewPlayGate(memory.NewLedger(), 2)
	if err := gate.Allow("", 7); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

type brokenLedger struct {
	app.Ledger
}

func (brokenLedger) DailyPlays(string, int64, string) (int, error) {
	return 0, errors.New("ledger offline")
}

func (brokenLedger) IncrDailyPlays(string, int64, string) error {
	return errors.New("ledger offline")
}

func TestPlayGateFailsOpen(t *testing.T) {
	gate := app.NewPlayGate(brokenLedger{}, 2)
	if got := gate.Used("0xabc", 7); got != 0 {
		t.Fatalf("broken ledger must read as zero plays, got %d", got)
	}
	if err := gate.Allow("0xabc", 7); err != nil {
		t.Fatalf("gate must fail open on ledger errors, got %v", err)
	}
}
