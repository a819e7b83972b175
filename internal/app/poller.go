package app

import (
	"context"
	"log"
	"time"
)

// SettlementPoller watches for the payout transaction of a winning
// session. It polls a status probe at a fixed interval (optionally growing
// by a factor per attempt, capped) until a transaction hash shows up or
// the attempt budget runs out, then stops silently; the UI offers a manual
// force-check as the fallback.
type SettlementPoller struct {
	Interval    time.Duration
	MaxAttempts int
	// Growth multiplies the delay after each attempt. Values <= 1 keep the
	// interval fixed.
	Growth   float64
	MaxDelay time.Duration
}

// Probe asks for settlement status once, returning the transaction hash or
// empty if not settled yet.
type Probe func(ctx context.Context) (txHash string, err error)

// Run polls until settled, exhausted, or ctx is canceled. onSettled is
// invoked at most once, with the discovered hash. Probe errors are logged
// and count as an attempt.
func (p SettlementPoller) Run(ctx context.Context, probe Probe, onSettled func(txHash string)) {
	delay := p.Interval
	if delay <= 0 {
		delay = 3 * time.Second
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 15
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		tx, err := probe(ctx)
		if err != nil {
			log.Printf("settlement: poll %d/%d failed: %v", attempt, attempts, err)
		} else if tx != "" {
			if onSettled != nil {
				onSettled(tx)
			}
			return
		}

		if p.Growth > 1 {
			delay = time.Duration(float64(delay) * p.Growth)
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
		timer.Reset(delay)
	}
}
