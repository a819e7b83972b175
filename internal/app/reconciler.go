package app

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-play-gateway/internal/retry"
)

// CreditReconciler keeps the displayed credit balance consistent while the
// backend catches up with recent session starts. Starts are deducted
// optimistically into the ledger's pending counter; any successful
// authoritative fetch clears it. Displayed balance is always
// max(0, serverCredits - pending).
type CreditReconciler struct {
	backend Backend
	ledger  Ledger
	address string
	env     retry.Envelope
	sf      singleflight.Group

	mu            sync.Mutex
	serverCredits int
	timers        []*time.Timer
	closed        bool
}

// refreshCascade re-checks the balance at fixed offsets after a spend to
// absorb backend replication lag.
var refreshCascade = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second, 20 * time.Second}

func NewCreditReconciler(backend Backend, ledger Ledger, address string, env retry.Envelope) *CreditReconciler {
	return &CreditReconciler{
		backend: backend,
		ledger:  ledger,
		address: strings.ToLower(address),
		env:     env,
	}
}

// RecordOptimisticSpend marks one credit as provisionally consumed.
func (r *CreditReconciler) RecordOptimisticSpend() {
	if _, err := r.ledger.IncrPendingCredits(r.address, 1); err != nil {
		log.Printf("credits: pending increment failed: %v", err)
	}
}

// RollbackOptimisticSpend undoes one provisional deduction. Only a failed
// session start rolls back; a failed finish does not, because the credit
// was consumed when the session started.
func (r *CreditReconciler) RollbackOptimisticSpend() {
	if _, err := r.ledger.IncrPendingCredits(r.address, -1); err != nil {
		log.Printf("credits: pending rollback failed: %v", err)
	}
}

// Reconcile accepts an authoritative server balance and clears pending.
// The fetch can race with an in-flight deduction; that inconsistency
// window is accepted and closes on the next refresh.
func (r *CreditReconciler) Reconcile(serverCredits int) {
	r.mu.Lock()
	r.serverCredits = serverCredits
	r.mu.Unlock()
	if err := r.ledger.ClearPendingCredits(r.address); err != nil {
		log.Printf("credits: clear pending failed: %v", err)
	}
}

// Display returns the balance to show: last known server value minus
// pending deductions, floored at zero. Ledger read errors count as no
// pending deductions.
func (r *CreditReconciler) Display() int {
	r.mu.Lock()
	server := r.serverCredits
	r.mu.Unlock()

	pending, err := r.ledger.PendingCredits(r.address)
	if err != nil {
		pending = 0
	}
	if v := server - pending; v > 0 {
		return v
	}
	return 0
}

// Refresh fetches the authoritative balance, retrying per the envelope.
// Concurrent refreshes for the same address collapse into one call.
func (r *CreditReconciler) Refresh(ctx context.Context) (int, error) {
	v, err, _ := r.sf.Do(r.address, func() (interface{}, error) {
		var credits int
		err := r.env.Do(ctx, func(ctx context.Context) error {
			var err error
			credits, err = r.backend.Credits(ctx, r.address)
			return err
		})
		if err != nil {
			return 0, err
		}
		r.Reconcile(credits)
		return credits, nil
	})
	if err != nil {
		return r.Display(), err
	}
	return v.(int), nil
}

// ScheduleRefreshCascade triggers an immediate refresh plus the delayed
// re-checks. Pending timers are replaced, not stacked.
func (r *CreditReconciler) ScheduleRefreshCascade(ctx context.Context) {
	go func() {
		if _, err := r.Refresh(ctx); err != nil {
			log.Printf("credits: refresh failed: %v", err)
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = r.timers[:0]
	for _, offset := range refreshCascade {
		r.timers = append(r.timers, time.AfterFunc(offset, func() {
			if _, err := r.Refresh(ctx); err != nil {
				log.Printf("credits: delayed refresh failed: %v", err)
			}
		}))
	}
}

// Close stops any scheduled refreshes.
func (r *CreditReconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = nil
}
