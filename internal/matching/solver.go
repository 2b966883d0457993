// Copyright 2025 Atom Intents
//
// Package matching implements internal intent crossing, the
// oracle-bounded limit check, and the greedy multi-solver fill selection.
// Solver quotes are fetched concurrently with a per-request timeout under
// the caller's overall deadline; an individual solver failure drops that
// solver's quote rather than failing the auction.
package matching

import (
	"context"

	"github.com/atomintents/liquidity-engine/internal/intent"
	"github.com/atomintents/liquidity-engine/internal/types"
)

// MaxQuotesPerAuction caps the number of solvers eligible for a single
// intent's auction.
const MaxQuotesPerAuction = 100

// Solver is the capability-agnostic interface every solver kind (DEX
// router, internal matcher, CEX hedger) implements.
type Solver interface {
	ID() string
	SupportedPairs() []types.TradingPair
	Capabilities() types.SolverCapabilities
	// Solve attempts to fill (part of) in given ctx. A returned error is
	// logged and the quote dropped; it is never fatal to the auction.
	Solve(ctx context.Context, in *intent.Intent, sctx types.SolveContext) (types.Solution, error)
	Capacity(ctx context.Context, pair types.TradingPair) (uint64, error)
	HealthCheck(ctx context.Context) bool
}

// ReputationSource resolves a solver's current reputation score, used
// only to break ties in the greedy selection sort.
type ReputationSource interface {
	Score(solverID string) uint64
}
