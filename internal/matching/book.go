// Copyright 2025 Atom Intents
//
// Internal intent crossing: before any solver sees an intent, the engine
// tries to match it directly against resting opposing intents on the same
// unordered pair. The book keeps one FIFO queue per (pair, input-denom)
// leg and matches with price-time priority, so crossing outcomes are
// deterministic for a given arrival order.
package matching

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/atomintents/liquidity-engine/internal/intent"
)

// BookEntry is a resting (partially or fully unfilled) intent available
// for a newly-submitted opposing intent to cross against.
type BookEntry struct {
	Intent    *intent.Intent
	Remaining uint64 // of Intent.Input.Amount, not yet crossed away
}

// CrossFill is one matched portion of an internal cross: amountIn of the
// aggressor's input denom is exchanged for amountOut of its output denom,
// against the resting counterparty identified by CounterpartyIntentID.
type CrossFill struct {
	CounterpartyIntentID string
	CounterpartyUser     string
	CounterpartyIntent   *intent.Intent
	AmountIn             uint64 // aggressor's input consumed (== counterparty's output delivered)
	AmountOut            uint64 // aggressor's output received (== counterparty's input consumed)
}

// canonicalKey orders two denoms so opposite-direction intents land in the
// same bucket regardless of which one arrived first.
func canonicalKey(a, b string) string {
	if a <= b {
		return a + "/" + b
	}
	return b + "/" + a
}

// Book holds resting intents grouped by unordered denom pair, split by
// which denom is the resting intent's input side. It is safe for
// concurrent use; a single mutex serializes cross attempts.
type Book struct {
	mu   sync.Mutex
	legs map[string]map[string][]*BookEntry // canonicalKey -> inputDenom -> FIFO queue
}

// NewBook creates an empty crossing book.
func NewBook() *Book {
	return &Book{legs: make(map[string]map[string][]*BookEntry)}
}

// Rest adds in to the book with the given remaining input amount, making
// it available for a future opposing intent to cross against.
func (b *Book) Rest(in *intent.Intent, remaining uint64) {
	if remaining == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := canonicalKey(in.Input.Denom, in.Output.Denom)
	byDenom, ok := b.legs[key]
	if !ok {
		byDenom = make(map[string][]*BookEntry)
		b.legs[key] = byDenom
	}
	byDenom[in.Input.Denom] = append(byDenom[in.Input.Denom], &BookEntry{Intent: in, Remaining: remaining})
}

// Remove drops every resting entry for intentID (e.g. on cancellation).
func (b *Book) Remove(intentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, byDenom := range b.legs {
		for denom, queue := range byDenom {
			out := queue[:0]
			for _, e := range queue {
				if e.Intent.ID != intentID {
					out = append(out, e)
				}
			}
			byDenom[denom] = out
		}
	}
}

// Depth returns the number of resting entries opposite in's input/output
// pair, for tests and diagnostics.
func (b *Book) Depth(inputDenom, outputDenom string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	byDenom := b.legs[canonicalKey(inputDenom, outputDenom)]
	return len(byDenom[outputDenom])
}

// Cross matches the aggressor intent `in` against resting counterparties
// on the opposite leg of its pair (intents whose input is `in`'s output
// and whose output is `in`'s input), in FIFO order, consuming a resting
// entry's price as the trade price (price-time priority: the earlier
// order sets the rate). A crossing exists between the aggressor and a
// resting counterparty C iff
//
//	in.LimitPrice (min acceptable Output-per-Input) <= 1 / C.LimitPrice
//
// i.e. the aggressor's floor rate does not exceed the reciprocal of C's
// own floor rate expressed in the aggressor's direction. The book is
// mutated in place: matched resting entries are reduced or removed.
// Returns the fills applied, in order, and leaves `in` out of the book;
// callers decide whether to Rest() any leftover themselves.
func (b *Book) Cross(in *intent.Intent, remaining uint64) ([]CrossFill, error) {
	if remaining == 0 {
		return nil, nil
	}

	inLimit, err := decimal.NewFromString(in.Output.LimitPrice)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := canonicalKey(in.Input.Denom, in.Output.Denom)
	byDenom, ok := b.legs[key]
	if !ok {
		return nil, nil
	}
	queue := byDenom[in.Output.Denom]
	if len(queue) == 0 {
		return nil, nil
	}

	var fills []CrossFill
	write := 0
	read := 0
	for ; read < len(queue) && remaining > 0; read++ {
		c := queue[read]
		queue[read] = nil

		if c.Intent.ID == in.ID || c.Remaining == 0 {
			continue
		}

		cLimit, err := decimal.NewFromString(c.Intent.Output.LimitPrice)
		if err != nil || cLimit.IsZero() {
			queue[write] = c
			write++
			continue
		}
		// c's floor rate, restated in the aggressor's direction, is the
		// reciprocal of c's own floor rate.
		cLimitInverse := decimal.NewFromInt(1).Div(cLimit)
		if inLimit.GreaterThan(cLimitInverse) {
			// Prices don't cross; c stays resting for a future aggressor.
			queue[write] = c
			write++
			continue
		}

		tradePrice := cLimitInverse // price-time priority: resting order sets the rate

		// c.Remaining is denominated in c's own input asset, which is the
		// aggressor's OUTPUT asset, not the aggressor's input. Convert it
		// to an aggressor-input ceiling before comparing against remaining.
		maxByCounterparty := decimal.NewFromInt(int64(c.Remaining)).Div(tradePrice).Floor().BigInt().Uint64()
		amountIn := remaining
		if maxByCounterparty < amountIn {
			amountIn = maxByCounterparty
		}
		if amountIn == 0 {
			queue[write] = c
			write++
			continue
		}
		amountOut := decimal.NewFromInt(int64(amountIn)).Mul(tradePrice).Floor().BigInt().Uint64()
		if amountOut == 0 {
			queue[write] = c
			write++
			continue
		}

		fills = append(fills, CrossFill{
			CounterpartyIntentID: c.Intent.ID,
			CounterpartyUser:     c.Intent.User,
			CounterpartyIntent:   c.Intent,
			AmountIn:             amountIn,
			AmountOut:            amountOut,
		})
		remaining -= amountIn
		c.Remaining -= amountOut

		if c.Remaining > 0 {
			queue[write] = c
			write++
		}
	}
	// Entries the scan never reached (remaining hit zero first) stay
	// resting untouched.
	if read < len(queue) {
		write += copy(queue[write:], queue[read:])
	}
	byDenom[in.Output.Denom] = queue[:write]

	return fills, nil
}
