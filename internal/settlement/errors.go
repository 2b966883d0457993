// Copyright 2025 Atom Intents

package settlement

import (
	"errors"
	"fmt"
)

var (
	// ErrSolverInactive is returned when an operation requires an active
	// solver but the registered solver has been deactivated (e.g. after a
	// bond-depleting slash).
	ErrSolverInactive = errors.New("solver is not active")
)

// NotFoundError covers both missing settlements and missing solvers; Entity
// distinguishes which.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// AlreadyExistsError is returned by Open when the intent already has an
// active settlement with the same solver, and by RegisterSolver for a
// duplicate solver ID (SettlementID then holds the solver ID).
type AlreadyExistsError struct {
	IntentID     string
	SettlementID string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("settlement already exists for intent %s: %s", e.IntentID, e.SettlementID)
}

// InvalidStateTransitionError is returned whenever a requested transition
// is not an edge of the legal lifecycle graph.
type InvalidStateTransitionError struct {
	From Kind
	To   Kind
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// InsufficientBondError is returned when a solver's uncommitted bond
// cannot cover a required lock amount.
type InsufficientBondError struct {
	Required  uint64
	Available uint64
}

func (e *InsufficientBondError) Error() string {
	return fmt.Sprintf("insufficient bond: required %d, available %d", e.Required, e.Available)
}

// MigrationBlockedError is returned by the migration guard when inflight
// settlements exist.
type MigrationBlockedError struct {
	InflightCount int
}

func (e *MigrationBlockedError) Error() string {
	return fmt.Sprintf("migration blocked: %d settlement(s) inflight", e.InflightCount)
}
