package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies terminal failures so callers can branch on category
// (UI copy differs for a rejected wallet prompt vs. an empty balance)
// instead of matching message strings.
type Kind string

const (
	KindNotConnected      Kind = "not_connected"
	KindLimitReached      Kind = "limit_reached"
	KindNetwork           Kind = "network"
	KindTimeout           Kind = "timeout"
	KindBackendRejected   Kind = "backend_rejected"
	KindUnrecoverable     Kind = "unrecoverable"
	KindUserRejected      Kind = "user_rejected"
	KindInsufficientFunds Kind = "insufficient_funds"
)

// Error carries a Kind alongside the message and optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// E builds a bare kinded error.
func E(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

var (
	// ErrNotConnected is returned when an action requires a wallet address
	// and none is available.
	ErrNotConnected = E(KindNotConnected, "no wallet connected")
	// ErrLimitReached is returned by the play gate when the daily cap for a
	// tournament has been used up.
	ErrLimitReached = E(KindLimitReached, "daily play limit reached for this tournament")
)

// KindOf extracts the Kind from err, defaulting to KindNetwork for plain
// errors so transient failures stay retryable.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindNetwork
}

// Classify maps backend and wallet error text onto the taxonomy. The
// message patterns follow what the game backend and wallet providers
// actually emit.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user rejected"), strings.Contains(msg, "user denied"):
		return KindUserRejected
	case strings.Contains(msg, "insufficient funds"), strings.Contains(msg, "insufficient allowance"),
		strings.Contains(msg, "transfer amount exceeds"):
		return KindInsufficientFunds
	case strings.Contains(msg, "timed out"), strings.Contains(msg, "timeout"):
		return KindTimeout
	default:
		return KindNetwork
	}
}

// IsPermanent reports whether retrying err could ever succeed. The retry
// envelope stops early on permanent errors instead of burning attempts.
func IsPermanent(err error) bool {
	switch KindOf(err) {
	case KindBackendRejected, KindNotConnected, KindLimitReached, KindUserRejected, KindInsufficientFunds:
		return true
	}
	return false
}
