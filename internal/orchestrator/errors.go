// Copyright 2025 Atom Intents

package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrIntentCancelled is returned when an intent has a live cancellation
	// on record.
	ErrIntentCancelled = errors.New("intent is cancelled")
	// ErrNonceReplayed is returned when (user, nonce) was already consumed.
	ErrNonceReplayed = errors.New("nonce already used")
)

// RejectedError wraps whatever stage of the pipeline rejected an intent,
// so callers can distinguish "intent is simply invalid/unfillable right
// now" from a storage or collaborator failure.
type RejectedError struct {
	Stage string
	Err   error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("intent rejected at %s: %v", e.Stage, e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// InvariantAlarmError reports a counterparty imbalance the engine could
// not unwind on its own: one leg of a settlement moved funds and the
// other leg could not. It should never occur in normal operation and
// always requires operator intervention.
type InvariantAlarmError struct {
	SettlementID string
	Detail       string
}

func (e *InvariantAlarmError) Error() string {
	return fmt.Sprintf("invariant alarm: settlement %s: %s", e.SettlementID, e.Detail)
}
