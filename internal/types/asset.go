// Copyright 2025 Atom Intents
//
// Package types holds the pure data model shared by the intent engine:
// assets, trading pairs, fills, execution plans, and solver capabilities.
// Nothing in this package talks to storage, the network, or the chain.
package types

import "fmt"

// Asset is a (chain, denom, amount) tuple in base units. Equality is
// structural: two Assets are equal iff all three fields match.
type Asset struct {
	ChainID string `json:"chain_id"`
	Denom   string `json:"denom"`
	Amount  uint64 `json:"amount"`
}

// Equal reports structural equality.
func (a Asset) Equal(other Asset) bool {
	return a.ChainID == other.ChainID && a.Denom == other.Denom && a.Amount == other.Amount
}

func (a Asset) String() string {
	return fmt.Sprintf("%d%s@%s", a.Amount, a.Denom, a.ChainID)
}

// TradingPair is an ordered (base, quote) tuple. Two pairs are considered
// the same unordered market by Symmetric, but pair identity for indexing
// purposes is the ordered tuple.
type TradingPair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// Symbol renders the canonical "BASE/QUOTE" form.
func (p TradingPair) Symbol() string {
	return p.Base + "/" + p.Quote
}

// Symmetric reports whether two pairs describe the same unordered market,
// i.e. {base, quote} as a set are equal regardless of order.
func (p TradingPair) Symmetric(other TradingPair) bool {
	return (p.Base == other.Base && p.Quote == other.Quote) ||
		(p.Base == other.Quote && p.Quote == other.Base)
}

// Side is which direction of a trading pair an intent trades.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}
