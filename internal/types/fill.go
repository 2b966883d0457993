// Copyright 2025 Atom Intents

package types

import "github.com/shopspring/decimal"

// FillStrategy controls how an intent's remaining amount may be filled
// across one or more solutions.
type FillStrategy int

const (
	// FillEager accepts any fills that meet the limit price, greedily.
	FillEager FillStrategy = iota
	// FillAllOrNothing requires a single solution to cover the full
	// remaining amount, or no solution is selected at all.
	FillAllOrNothing
	// FillMinimumThenEager requires MinFillPct to be reached before
	// accepting additional fills greedily.
	FillMinimumThenEager
	// FillSolverDiscretion defers fill-shape decisions to the solver's
	// own proposed solution.
	FillSolverDiscretion
)

// FillConfig governs whether and how an intent may be partially filled.
type FillConfig struct {
	AllowPartial        bool            `json:"allow_partial"`
	MinFillAmount       uint64          `json:"min_fill_amount"`
	MinFillPct          decimal.Decimal `json:"min_fill_pct"`
	AggregationWindowMs uint64          `json:"aggregation_window_ms"`
	Strategy            FillStrategy    `json:"strategy"`
}

// FillSource identifies where a Fill's liquidity came from.
type FillSource int

const (
	FillSourceIntentMatch FillSource = iota
	FillSourceDexRoute
	FillSourceSolverInventory
	FillSourceCexHedge
)

// Fill is a completed or proposed exchange of input for output.
type Fill struct {
	InputAmount  uint64          `json:"input_amount"`
	OutputAmount uint64          `json:"output_amount"`
	Price        decimal.Decimal `json:"price"`
	Source       FillSource      `json:"source"`
	Counterparty string          `json:"counterparty,omitempty"`
}

// ProposedFill is what a solver offers before it is accepted.
type ProposedFill struct {
	InputAmount  uint64          `json:"input_amount"`
	OutputAmount uint64          `json:"output_amount"`
	Price        decimal.Decimal `json:"price"`
}
