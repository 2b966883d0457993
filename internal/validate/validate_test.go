package validate

import (
	"testing"
	"time"

	"github.com/atomintents/liquidity-engine/internal/intent"
	"github.com/atomintents/liquidity-engine/internal/types"
	"github.com/stretchr/testify/require"
)

func baseIntent(now time.Time) *intent.Intent {
	return &intent.Intent{
		ID:    "intent-1",
		User:  "user-1",
		Nonce: 1,
		Input: types.Asset{ChainID: "cosmoshub-4", Denom: "uatom", Amount: 1000},
		Output: intent.OutputSpec{
			ChainID:    "cosmoshub-4",
			Denom:      "uusdc",
			MinAmount:  500,
			LimitPrice: "9.5",
			Recipient:  "user-1",
		},
		ExecutionConstraints: types.ExecutionConstraints{
			Deadline:        now.Add(time.Hour).Unix(),
			MaxHops:         2,
			MaxSolverFeeBps: 50,
		},
	}
}

func baseConfig() *Config {
	return NewConfig(
		[]types.TradingPair{{Base: "uatom", Quote: "uusdc"}},
		[]string{"osmosis", "astroport"},
	)
}

func TestValidatePasses(t *testing.T) {
	now := time.Unix(1700000000, 0)
	require.NoError(t, Validate(baseConfig(), baseIntent(now), now))
}

func TestValidateRejectsDisallowedPair(t *testing.T) {
	now := time.Unix(1700000000, 0)
	in := baseIntent(now)
	in.Output.Denom = "unotallowed"
	err := Validate(baseConfig(), in, now)
	require.Error(t, err)
	require.Equal(t, "pair not allowed", err.(*InvalidIntent).Reason)
}

func TestValidateRejectsDeadlineTooClose(t *testing.T) {
	now := time.Unix(1700000000, 0)
	in := baseIntent(now)
	in.ExecutionConstraints.Deadline = now.Unix()
	err := Validate(baseConfig(), in, now)
	require.Error(t, err)
	require.Equal(t, "deadline too close or in the past", err.(*InvalidIntent).Reason)
}

func TestValidateRejectsDeadlineExactlyAtMargin(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cfg := baseConfig()
	in := baseIntent(now)
	in.ExecutionConstraints.Deadline = now.Add(cfg.DeadlineMargin).Unix()
	err := Validate(cfg, in, now)
	require.Error(t, err)
	require.Equal(t, "deadline too close or in the past", err.(*InvalidIntent).Reason)
}

func TestValidateRejectsAmountBelowMinimum(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cfg := baseConfig()
	cfg.MinIntentAmount = 2000
	in := baseIntent(now)
	err := Validate(cfg, in, now)
	require.Error(t, err)
	require.Equal(t, "input amount below minimum", err.(*InvalidIntent).Reason)
}

func TestValidateRejectsZeroOutputMinAmount(t *testing.T) {
	now := time.Unix(1700000000, 0)
	in := baseIntent(now)
	in.Output.MinAmount = 0
	err := Validate(baseConfig(), in, now)
	require.Error(t, err)
	require.Equal(t, "output min_amount must be positive", err.(*InvalidIntent).Reason)
}

func TestValidateRejectsMalformedLimitPrice(t *testing.T) {
	now := time.Unix(1700000000, 0)
	in := baseIntent(now)
	in.Output.LimitPrice = "not-a-number"
	err := Validate(baseConfig(), in, now)
	require.Error(t, err)
	require.Equal(t, "limit_price is not a non-negative decimal", err.(*InvalidIntent).Reason)
}

func TestValidateRejectsNegativeLimitPrice(t *testing.T) {
	now := time.Unix(1700000000, 0)
	in := baseIntent(now)
	in.Output.LimitPrice = "-1.0"
	err := Validate(baseConfig(), in, now)
	require.Error(t, err)
	require.Equal(t, "limit_price is not a non-negative decimal", err.(*InvalidIntent).Reason)
}

func TestValidateRejectsExcessiveSolverFee(t *testing.T) {
	now := time.Unix(1700000000, 0)
	in := baseIntent(now)
	in.ExecutionConstraints.MaxSolverFeeBps = 10001
	err := Validate(baseConfig(), in, now)
	require.Error(t, err)
	require.Equal(t, "max_solver_fee_bps exceeds ceiling", err.(*InvalidIntent).Reason)
}

func TestValidateAllowsMaxSolverFeeAtCeiling(t *testing.T) {
	now := time.Unix(1700000000, 0)
	in := baseIntent(now)
	in.ExecutionConstraints.MaxSolverFeeBps = 10000
	require.NoError(t, Validate(baseConfig(), in, now))
}

func TestValidateRejectsUnknownExcludedVenue(t *testing.T) {
	now := time.Unix(1700000000, 0)
	in := baseIntent(now)
	in.ExecutionConstraints.ExcludedVenues = []string{"osmosis", "not-a-real-venue"}
	err := Validate(baseConfig(), in, now)
	require.Error(t, err)
	require.Equal(t, "excluded_venues contains an unknown venue", err.(*InvalidIntent).Reason)
}

func TestValidateAllowsKnownExcludedVenue(t *testing.T) {
	now := time.Unix(1700000000, 0)
	in := baseIntent(now)
	in.ExecutionConstraints.ExcludedVenues = []string{"osmosis"}
	require.NoError(t, Validate(baseConfig(), in, now))
}

// TestValidateOrderMatters pins down that the pair check fires before the
// deadline check, so two intents that violate both rules in different ways
// still report the same, first-in-order reason.
func TestValidateOrderMatters(t *testing.T) {
	now := time.Unix(1700000000, 0)
	in := baseIntent(now)
	in.Output.Denom = "unotallowed"
	in.ExecutionConstraints.Deadline = now.Unix()
	err := Validate(baseConfig(), in, now)
	require.Error(t, err)
	require.Equal(t, "pair not allowed", err.(*InvalidIntent).Reason)
}
