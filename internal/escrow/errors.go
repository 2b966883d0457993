// Copyright 2025 Atom Intents

package escrow

import (
	"errors"
	"fmt"
)

// Sentinel errors for escrow operations.
var (
	ErrInsufficientFunds = errors.New("insufficient funds for escrow")
	ErrInvalidTransition = errors.New("escrow status does not allow this operation")
	ErrNotCrossChain     = errors.New("escrow is not a cross-chain escrow")
)

// NotFoundError is returned when an escrow ID has no record.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("escrow not found: %s", e.ID)
}

// AlreadyExistsError is returned when an intent already has an escrow, per
// the "at most one escrow per intent" invariant.
type AlreadyExistsError struct {
	IntentID string
	EscrowID string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("escrow already exists for intent %s: %s", e.IntentID, e.EscrowID)
}

// NotExpiredError is returned by Refund when called before an escrow's
// ExpiresAt; timeout refunds only unlock once the deadline has passed.
type NotExpiredError struct {
	ID string
}

func (e *NotExpiredError) Error() string {
	return fmt.Sprintf("escrow not yet expired: %s", e.ID)
}
