// Copyright 2025 Atom Intents
//
// Package settlement implements the settlement state machine: the
// per-trade record that drives the two-phase escrow/bond lock, execution,
// and slashing. Every transition is validated against an explicit edge
// table and applied under a single lock, with listener callbacks fired
// after each successful change.
package settlement

import "fmt"

// Kind is the discriminant of a Settlement's lifecycle state.
type Kind int

const (
	Pending Kind = iota
	UserLocked
	SolverLocked
	Executing
	Completed
	Failed
	Slashed
)

func (k Kind) String() string {
	switch k {
	case Pending:
		return "pending"
	case UserLocked:
		return "user_locked"
	case SolverLocked:
		return "solver_locked"
	case Executing:
		return "executing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Slashed:
		return "slashed"
	default:
		return "unknown"
	}
}

// Status is a Settlement's full status value: the Kind plus whatever
// payload that Kind carries (Reason for Failed, Amount for Slashed).
type Status struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason,omitempty"`
	Amount uint64 `json:"amount,omitempty"`
}

// String renders the stable "kind:payload" format query responses use,
// e.g. "failed:ibc_timeout" or "slashed:15000000". External consumers
// parse this string, so the separator and ordering are load-bearing.
func (s Status) String() string {
	switch s.Kind {
	case Failed:
		return fmt.Sprintf("failed:%s", s.Reason)
	case Slashed:
		return fmt.Sprintf("slashed:%d", s.Amount)
	default:
		return s.Kind.String()
	}
}

// Terminal reports whether no further transitions are legal from this
// status. Failed is NOT terminal; Slashed is still reachable from it.
func (s Status) Terminal() bool {
	return s.Kind == Completed || s.Kind == Slashed
}

// transition is one edge of the legal transition graph.
type transition struct {
	From Kind
	To   Kind
}

// validTransitions enumerates every legal edge of the lifecycle graph.
var validTransitions = []transition{
	{Pending, UserLocked},
	{Pending, Failed},
	{Pending, Slashed},
	{UserLocked, SolverLocked},
	{UserLocked, Failed},
	{UserLocked, Slashed},
	{SolverLocked, Executing},
	{SolverLocked, Failed},
	{SolverLocked, Slashed},
	{Executing, Completed},
	{Executing, Failed},
	{Executing, Slashed},
	{Failed, Slashed},
}

func isValidTransition(from, to Kind) bool {
	for _, t := range validTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// nonTerminalKinds is the set of statuses the migration guard and the
// expiry sweeper treat as inflight.
var nonTerminalKinds = map[Kind]struct{}{
	Pending:      {},
	UserLocked:   {},
	SolverLocked: {},
	Executing:    {},
	Failed:       {},
}
