// Copyright 2025 Atom Intents
//
// Package validate implements the stateless intent validator. It fails
// fast on the first violated rule, in a fixed order, so that two
// identically-malformed intents always produce the identical error.
package validate

import (
	"fmt"
	"time"

	"github.com/atomintents/liquidity-engine/internal/intent"
	"github.com/atomintents/liquidity-engine/internal/types"
	"github.com/shopspring/decimal"
)

// InvalidIntent is returned for any rule violation. Reason is a short,
// stable, machine-comparable string identifying which rule failed.
type InvalidIntent struct {
	Reason string
}

func (e *InvalidIntent) Error() string {
	return fmt.Sprintf("invalid intent: %s", e.Reason)
}

func invalid(reason string) error {
	return &InvalidIntent{Reason: reason}
}

// Config carries the parameters the validator checks against. None of it
// is loaded from a file or environment; callers construct it directly.
type Config struct {
	// AllowedPairs is the set of trading pairs the engine currently
	// accepts, when non-empty. An intent whose Pair() is not a member is
	// rejected. An empty/nil set means the pair check is not applied.
	AllowedPairs map[types.TradingPair]struct{}

	// DeadlineMargin is the minimum duration between now and an intent's
	// deadline for it to be accepted.
	DeadlineMargin time.Duration

	// MinIntentAmount is the smallest acceptable Input.Amount.
	MinIntentAmount uint64

	// MaxSolverFeeBps is the hard ceiling on ExecutionConstraints.MaxSolverFeeBps.
	MaxSolverFeeBps uint32

	// KnownVenues bounds ExecutionConstraints.ExcludedVenues, when non-empty.
	// An empty/nil set means venue exclusion is not checked.
	KnownVenues map[string]struct{}
}

// NewConfig builds a Config from an explicit allowed-pairs and known-venues
// list, applying engine defaults for the remaining fields.
func NewConfig(allowedPairs []types.TradingPair, knownVenues []string) *Config {
	pairs := make(map[types.TradingPair]struct{}, len(allowedPairs))
	for _, p := range allowedPairs {
		pairs[p] = struct{}{}
	}
	venues := make(map[string]struct{}, len(knownVenues))
	for _, v := range knownVenues {
		venues[v] = struct{}{}
	}
	return &Config{
		AllowedPairs:    pairs,
		DeadlineMargin:  30 * time.Second,
		MinIntentAmount: 1,
		MaxSolverFeeBps: 10000,
		KnownVenues:     venues,
	}
}

// Validate runs the fixed-order rule set against in, evaluated as of
// now. It returns the first violated rule as an *InvalidIntent, or nil
// if every rule passes.
func Validate(cfg *Config, in *intent.Intent, now time.Time) error {
	// (a) pair ∈ allowed_pairs
	if len(cfg.AllowedPairs) > 0 {
		if _, ok := cfg.AllowedPairs[in.Pair()]; !ok {
			return invalid("pair not allowed")
		}
	}

	// (b) deadline > now + configured margin
	deadline := time.Unix(in.ExecutionConstraints.Deadline, 0)
	if !deadline.After(now.Add(cfg.DeadlineMargin)) {
		return invalid("deadline too close or in the past")
	}

	// (c) input.amount >= min_intent_amount
	if in.Input.Amount < cfg.MinIntentAmount {
		return invalid("input amount below minimum")
	}

	// (d) output.min_amount > 0
	if in.Output.MinAmount == 0 {
		return invalid("output min_amount must be positive")
	}

	// (e) limit_price parses as a non-negative decimal
	limitPrice, err := decimal.NewFromString(in.Output.LimitPrice)
	if err != nil || limitPrice.IsNegative() {
		return invalid("limit_price is not a non-negative decimal")
	}

	// (f) max_solver_fee_bps <= 10000
	if in.ExecutionConstraints.MaxSolverFeeBps > cfg.MaxSolverFeeBps {
		return invalid("max_solver_fee_bps exceeds ceiling")
	}

	// (g) excluded_venues within known-venue universe, if provided
	if len(cfg.KnownVenues) > 0 {
		for _, venue := range in.ExecutionConstraints.ExcludedVenues {
			if _, ok := cfg.KnownVenues[venue]; !ok {
				return invalid("excluded_venues contains an unknown venue")
			}
		}
	}

	return nil
}
