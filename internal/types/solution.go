// Copyright 2025 Atom Intents

package types

import "github.com/shopspring/decimal"

// SolverCapabilities is a solver's capability declaration. The aggregator
// does not read it; pair eligibility comes from Solver.SupportedPairs.
type SolverCapabilities struct {
	DexRouting     bool   `json:"dex_routing"`
	IntentMatching bool   `json:"intent_matching"`
	CexBackstop    bool   `json:"cex_backstop"`
	CrossEcosystem bool   `json:"cross_ecosystem"`
	MaxFillSizeUSD uint64 `json:"max_fill_size_usd"`
	SupportedPairs []TradingPair
}

// SolveContext is the read-only context handed to a solver's Solve call.
type SolveContext struct {
	MatchedAmount uint64          `json:"matched_amount"`
	Remaining     uint64          `json:"remaining"`
	OraclePrice   decimal.Decimal `json:"oracle_price"`
}

// Solution is a solver's proposed way of filling (part of) an intent.
type Solution struct {
	SolverID   string        `json:"solver_id"`
	IntentID   string        `json:"intent_id"`
	Fill       ProposedFill  `json:"fill"`
	Execution  ExecutionPlan `json:"execution"`
	ValidUntil int64         `json:"valid_until"`
	Bond       uint64        `json:"bond"`
}

// SolverQuote is a light-weight quote form: amounts and price without an
// ExecutionPlan. Solver.Solve returns a full Solution; nothing in the
// matching path accepts a SolverQuote.
type SolverQuote struct {
	SolverID     string          `json:"solver_id"`
	InputAmount  uint64          `json:"input_amount"`
	OutputAmount uint64          `json:"output_amount"`
	Price        decimal.Decimal `json:"price"`
	ValidForMs   uint64          `json:"valid_for_ms"`
}

// FillPlanEntry pairs a selected Solution with the amount taken from it.
type FillPlanEntry struct {
	Solution    Solution
	AmountTaken uint64
}

// OptimalFillPlan is the result of the aggregator's greedy selection.
type OptimalFillPlan struct {
	Selected   []FillPlanEntry `json:"selected"`
	TotalInput uint64          `json:"total_input"`
}

// FullyMatched builds a plan representing an intent that was entirely
// satisfied by internal crossing, with no solver involvement.
func FullyMatched(matchedAmount uint64) OptimalFillPlan {
	return OptimalFillPlan{Selected: nil, TotalInput: matchedAmount}
}

