// Copyright 2025 Atom Intents

package matching

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrIntentExpired is returned when an intent's deadline has already
	// passed as of the matching attempt.
	ErrIntentExpired = errors.New("intent expired")
	// ErrNoViableRoute is returned when every eligible solver either
	// returned an error or none support the intent's pair.
	ErrNoViableRoute = errors.New("no viable route")
	// ErrPartialFillNotAllowed is returned when the selected fill plan
	// covers less than the full amount and the intent forbids partials,
	// or doesn't clear the configured minimum fill.
	ErrPartialFillNotAllowed = errors.New("partial fill not allowed")
)

// OraclePriceUncertainError is returned when the oracle's confidence
// interval is wider than the configured threshold.
type OraclePriceUncertainError struct {
	Confidence decimal.Decimal
	Threshold  decimal.Decimal
}

func (e *OraclePriceUncertainError) Error() string {
	return fmt.Sprintf("oracle price uncertain: confidence %s exceeds threshold %s", e.Confidence, e.Threshold)
}

// PriceExceedsLimitError is returned for a buy-side intent whose oracle
// price exceeds its limit price.
type PriceExceedsLimitError struct {
	Oracle decimal.Decimal
	Limit  decimal.Decimal
}

func (e *PriceExceedsLimitError) Error() string {
	return fmt.Sprintf("oracle price %s exceeds limit %s", e.Oracle, e.Limit)
}

// PriceBelowLimitError is returned for a sell-side intent whose oracle
// price falls below its limit price.
type PriceBelowLimitError struct {
	Oracle decimal.Decimal
	Limit  decimal.Decimal
}

func (e *PriceBelowLimitError) Error() string {
	return fmt.Sprintf("oracle price %s is below limit %s", e.Oracle, e.Limit)
}

// TooManyQuotesError is returned when more than MaxQuotesPerAuction
// solvers are eligible for a single intent.
type TooManyQuotesError struct {
	Count int
	Max   int
}

func (e *TooManyQuotesError) Error() string {
	return fmt.Sprintf("too many quotes: %d exceeds max %d", e.Count, e.Max)
}
