// Copyright 2025 Atom Intents
//
// Package ibc declares the external interfaces the engine consumes from
// the chain runtime and its oracle/relayer collaborators: a cross-chain
// transfer primitive with asynchronous ack/timeout callbacks, and a
// price oracle. Concrete chain and network wiring lives outside this
// module; this package only shapes the contract the matching and
// settlement packages call through.
package ibc

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atomintents/liquidity-engine/internal/types"
)

// TransferRequest describes an outbound cross-chain asset transfer.
type TransferRequest struct {
	SourceChannel    string
	Denom            string
	Amount           uint64
	Receiver         string
	Memo             string
	TimeoutTimestamp int64
	SettlementID     string
}

// AckResult is delivered to a Transport's registered callback once a
// transfer resolves, whether by acknowledgement or timeout.
type AckResult struct {
	SettlementID string
	Success      bool
	// Reason is populated when Success is false (e.g. "timeout" for a
	// synthetic timeout ack, or the counterparty chain's error string).
	Reason string
}

// AckCallback is invoked exactly once per transfer, keyed by the
// originating settlement id.
type AckCallback func(result AckResult)

// Transport submits outbound cross-chain transfers. Implementations
// must guarantee at most one of (ack, timeout) fires per
// transfer, and that callbacks are safe to invoke concurrently.
type Transport interface {
	// Transfer submits req and registers cb to be called on resolution.
	// Transfer itself only reports submission failure; delivery success
	// or failure arrives later via cb.
	Transfer(ctx context.Context, req TransferRequest, cb AckCallback) error
}

// PriceQuote is the result of an Oracle.Price call.
type PriceQuote struct {
	Price      decimal.Decimal
	Confidence decimal.Decimal
	AsOf       time.Time
}

// Oracle provides pair pricing for the matching aggregator's oracle-bound
// limit check.
type Oracle interface {
	Price(ctx context.Context, pair types.TradingPair) (PriceQuote, error)
}
