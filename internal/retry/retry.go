// Package retry wraps fallible operations with bounded, delayed retries.
// The game backend is reached from flaky mobile networks, so most calls
// go through an Envelope; fire-and-forget calls must not.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"quiz-play-gateway/internal/domain"
)

// Strategy selects how the delay between attempts grows.
type Strategy string

const (
	// StrategyFixed waits BaseDelay between every attempt.
	StrategyFixed Strategy = "fixed"
	// StrategyExponential doubles the delay after each attempt.
	StrategyExponential Strategy = "exponential"
)

// Envelope retries an operation up to MaxAttempts times, failing with the
// last-seen error. Errors with a permanent kind (backend rejection, missing
// wallet) stop the loop immediately.
type Envelope struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Strategy    Strategy
	MaxDelay    time.Duration
}

// Default is the envelope used where the configuration does not override
// it: 3 attempts with an exponential delay starting at 1s.
var Default = Envelope{MaxAttempts: 3, BaseDelay: time.Second, Strategy: StrategyExponential}

// Do runs op until it succeeds, attempts run out, or ctx is canceled.
func (e Envelope) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := e.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var policy backoff.BackOff
	switch e.Strategy {
	case StrategyFixed:
		policy = backoff.NewConstantBackOff(e.BaseDelay)
	default:
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = e.BaseDelay
		exp.RandomizationFactor = 0
		exp.Multiplier = 2
		exp.MaxElapsedTime = 0
		if e.MaxDelay > 0 {
			exp.MaxInterval = e.MaxDelay
		}
		policy = exp
	}
	policy = backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err != nil && domain.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
