// Copyright 2025 Atom Intents

package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atomintents/liquidity-engine/internal/ibc"
	"github.com/atomintents/liquidity-engine/internal/intent"
	"github.com/atomintents/liquidity-engine/internal/metrics"
	"github.com/atomintents/liquidity-engine/internal/types"
)

// Logger is the minimal logging surface the aggregator needs to report
// dropped solver quotes without failing the auction.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Config carries the aggregator's collaborators and tunables.
type Config struct {
	Solvers             []Solver
	Oracle              ibc.Oracle
	Reputation          ReputationSource
	Logger              Logger
	ConfidenceThreshold decimal.Decimal
	PerRequestTimeout   time.Duration
}

func (c *Config) setDefaults() {
	if c.ConfidenceThreshold.IsZero() {
		c.ConfidenceThreshold = decimal.NewFromFloat(0.02)
	}
	if c.PerRequestTimeout == 0 {
		c.PerRequestTimeout = 2 * time.Second
	}
}

func (c *Config) logf(format string, v ...interface{}) {
	if c.Logger != nil {
		c.Logger.Printf(format, v...)
	}
}

// quoteResult pairs a solver's successful Solution with its id, so the
// greedy selector can still break reputation/id ties after solving.
type quoteResult struct {
	solution types.Solution
	solverID string
}

// Match runs the full matching pipeline for a single intent: the
// oracle-bound limit check, concurrent solver fan-out, and greedy
// best-price-first selection. side determines which limit-price
// direction applies; every intent this engine accepts has the "give up
// to X, receive at least Y" shape, so side is conventionally
// types.SideSell. The SideBuy branch exists for API completeness and a
// caller that models the opposite convention.
func Match(ctx context.Context, cfg Config, in *intent.Intent, matchedAmount uint64, side types.Side, now time.Time) (types.OptimalFillPlan, error) {
	start := time.Now()
	plan, quoteCount, err := match(ctx, cfg, in, matchedAmount, side, now)
	outcome := "filled"
	if err != nil {
		outcome = "no_route"
	} else if plan.TotalInput < in.Input.Amount {
		outcome = "partial"
	}
	metrics.RecordAuction(outcome, time.Since(start), quoteCount)
	return plan, err
}

// match is Match's unexported body; it additionally returns the number of
// surviving solver quotes so Match can publish it alongside auction
// latency without threading a counter through every early return.
func match(ctx context.Context, cfg Config, in *intent.Intent, matchedAmount uint64, side types.Side, now time.Time) (types.OptimalFillPlan, int, error) {
	cfg.setDefaults()

	if matchedAmount >= in.Input.Amount {
		return types.FullyMatched(matchedAmount), 0, nil
	}
	remaining := in.Input.Amount - matchedAmount

	if in.ExecutionConstraints.Deadline <= now.Unix() {
		return types.OptimalFillPlan{}, 0, ErrIntentExpired
	}

	quote, err := cfg.Oracle.Price(ctx, in.Pair())
	if err != nil {
		return types.OptimalFillPlan{}, 0, fmt.Errorf("oracle price: %w", err)
	}
	if quote.Confidence.GreaterThan(cfg.ConfidenceThreshold) {
		return types.OptimalFillPlan{}, 0, &OraclePriceUncertainError{Confidence: quote.Confidence, Threshold: cfg.ConfidenceThreshold}
	}

	limitPrice, err := decimal.NewFromString(in.Output.LimitPrice)
	if err != nil {
		return types.OptimalFillPlan{}, 0, fmt.Errorf("parse limit price: %w", err)
	}

	switch side {
	case types.SideBuy:
		if quote.Price.GreaterThan(limitPrice) {
			return types.OptimalFillPlan{}, 0, &PriceExceedsLimitError{Oracle: quote.Price, Limit: limitPrice}
		}
	default:
		if quote.Price.LessThan(limitPrice) {
			return types.OptimalFillPlan{}, 0, &PriceBelowLimitError{Oracle: quote.Price, Limit: limitPrice}
		}
	}

	pair := in.Pair()
	var eligible []Solver
	for _, solver := range cfg.Solvers {
		for _, p := range solver.SupportedPairs() {
			if p == pair {
				eligible = append(eligible, solver)
				break
			}
		}
	}
	if len(eligible) > MaxQuotesPerAuction {
		return types.OptimalFillPlan{}, 0, &TooManyQuotesError{Count: len(eligible), Max: MaxQuotesPerAuction}
	}

	sctx := types.SolveContext{MatchedAmount: matchedAmount, Remaining: remaining, OraclePrice: quote.Price}
	quotes := fanOutSolve(ctx, cfg, eligible, in, sctx)
	quotes = dropStaleQuotes(quotes, now)
	if len(quotes) == 0 {
		return types.OptimalFillPlan{}, 0, ErrNoViableRoute
	}

	sortQuotes(quotes, cfg.Reputation)

	var plan types.OptimalFillPlan
	switch in.FillConfig.Strategy {
	case types.FillAllOrNothing:
		plan, err = allOrNothingSelect(quotes, matchedAmount, remaining)
		if err != nil {
			return types.OptimalFillPlan{}, len(quotes), err
		}
	default:
		// FillEager, FillMinimumThenEager, and FillSolverDiscretion all
		// accumulate fills greedily; the difference between them is only
		// in how small a resulting total_input is still acceptable, which
		// checkPartialFillAllowed below enforces via MinFillPct/MinFillAmount.
		plan = greedySelect(quotes, matchedAmount, remaining)
	}

	if plan.TotalInput < in.Input.Amount {
		if err := checkPartialFillAllowed(in, plan.TotalInput); err != nil {
			return types.OptimalFillPlan{}, len(quotes), err
		}
	}

	return plan, len(quotes), nil
}

// allOrNothingSelect implements FillAllOrNothing: a single quote must cover the entire
// remaining amount by itself, or nothing is selected at all and the
// caller falls through to the partial-fill check exactly as if zero
// quotes had been viable.
func allOrNothingSelect(quotes []quoteResult, matchedAmount, remaining uint64) (types.OptimalFillPlan, error) {
	for _, q := range quotes {
		if q.solution.Fill.InputAmount >= remaining {
			return types.OptimalFillPlan{
				Selected:   []types.FillPlanEntry{{Solution: q.solution, AmountTaken: remaining}},
				TotalInput: matchedAmount + remaining,
			}, nil
		}
	}
	return types.OptimalFillPlan{TotalInput: matchedAmount}, nil
}

// fanOutSolve submits one solve() call per eligible solver concurrently,
// each bounded by cfg.PerRequestTimeout, cancelling all outstanding calls
// once ctx's overall deadline fires. A solver error drops that solver's
// quote; it never fails the auction.
func fanOutSolve(ctx context.Context, cfg Config, solvers []Solver, in *intent.Intent, sctx types.SolveContext) []quoteResult {
	results := make([]*quoteResult, len(solvers))

	g, gctx := errgroup.WithContext(ctx)
	for i, solver := range solvers {
		i, solver := i, solver
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(gctx, cfg.PerRequestTimeout)
			defer cancel()

			solution, err := solver.Solve(reqCtx, in, sctx)
			if err != nil {
				cfg.logf("solver %s dropped from auction: %v", solver.ID(), err)
				return nil
			}
			results[i] = &quoteResult{solution: solution, solverID: solver.ID()}
			return nil
		})
	}
	// Fan-out failures never abort the auction, so the returned error is
	// deliberately ignored; each goroutine already reports its own
	// failure via cfg.logf and leaves its slot nil.
	_ = g.Wait()

	out := make([]quoteResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// dropStaleQuotes filters out solutions whose ValidUntil has already
// passed as of now. A quote that expired between solving and selection
// must not be executed at its stale price.
func dropStaleQuotes(quotes []quoteResult, now time.Time) []quoteResult {
	out := quotes[:0]
	for _, q := range quotes {
		if q.solution.ValidUntil != 0 && now.Unix() >= q.solution.ValidUntil {
			continue
		}
		out = append(out, q)
	}
	return out
}

// sortQuotes orders quotes by effective price descending, tie-broken by
// solver reputation descending then solver_id ascending, so selection
// order is deterministic for equal prices.
func sortQuotes(quotes []quoteResult, reputationSource ReputationSource) {
	sort.SliceStable(quotes, func(i, j int) bool {
		pi, pj := quotes[i].solution.Fill.Price, quotes[j].solution.Fill.Price
		if !pi.Equal(pj) {
			return pi.GreaterThan(pj)
		}
		si, sj := solverScore(reputationSource, quotes[i].solverID), solverScore(reputationSource, quotes[j].solverID)
		if si != sj {
			return si > sj
		}
		return quotes[i].solverID < quotes[j].solverID
	})
}

func solverScore(src ReputationSource, solverID string) uint64 {
	if src == nil {
		return 0
	}
	return src.Score(solverID)
}

// greedySelect iterates quotes in sorted order, taking min(remaining,
// quote input) from each until remaining is covered or quotes are
// exhausted.
func greedySelect(quotes []quoteResult, matchedAmount, remaining uint64) types.OptimalFillPlan {
	var selected []types.FillPlanEntry
	var taken uint64

	for _, q := range quotes {
		if taken >= remaining {
			break
		}
		take := remaining - taken
		if q.solution.Fill.InputAmount < take {
			take = q.solution.Fill.InputAmount
		}
		if take == 0 {
			continue
		}
		selected = append(selected, types.FillPlanEntry{Solution: q.solution, AmountTaken: take})
		taken += take
	}

	return types.OptimalFillPlan{Selected: selected, TotalInput: matchedAmount + taken}
}

// checkPartialFillAllowed enforces the partial-fill gate: a
// plan short of the full input amount is only acceptable if the intent
// permits partials and the shortfall still clears the configured floor.
func checkPartialFillAllowed(in *intent.Intent, totalInput uint64) error {
	if !in.FillConfig.AllowPartial {
		return ErrPartialFillNotAllowed
	}

	minByPct := decimal.NewFromInt(int64(in.Input.Amount)).Mul(in.FillConfig.MinFillPct).Ceil()
	minRequired := in.FillConfig.MinFillAmount
	if pctFloor := minByPct.BigInt().Uint64(); pctFloor > minRequired {
		minRequired = pctFloor
	}

	if totalInput < minRequired {
		return ErrPartialFillNotAllowed
	}
	return nil
}
