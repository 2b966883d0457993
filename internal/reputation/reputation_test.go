package reputation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreDefaultsToMidpointWithNoHistory(t *testing.T) {
	require.Equal(t, uint64(defaultScore), Score(Record{}))
}

func TestScoreDeterministic(t *testing.T) {
	r := Record{
		TotalSettlements:      100,
		SuccessfulSettlements: 95,
		FailedSettlements:     5,
		TotalVolume:           5_000_000,
		AverageSettlementTime: 45,
		SlashingEvents:        1,
	}
	require.Equal(t, Score(r), Score(r))
}

func TestScorePerfectSolver(t *testing.T) {
	r := Record{
		TotalSettlements:      100,
		SuccessfulSettlements: 100,
		TotalVolume:           10_000_000,
		AverageSettlementTime: 10,
		SlashingEvents:        0,
	}
	require.Equal(t, uint64(10000), Score(r))
}

func TestScoreWorstSolver(t *testing.T) {
	r := Record{
		TotalSettlements:      100,
		SuccessfulSettlements: 0,
		TotalVolume:           0,
		AverageSettlementTime: 600,
		SlashingEvents:        50,
	}
	require.Equal(t, uint64(0), Score(r))
}

func TestSpeedPointsBoundaries(t *testing.T) {
	require.Equal(t, uint64(2000), speedPoints(60))
	require.Equal(t, uint64(0), speedPoints(300))
	// Midpoint of the linear region.
	require.Equal(t, uint64(1000), speedPoints(180))
}

func TestSlashPointsSaturatesAtTenEvents(t *testing.T) {
	require.Equal(t, uint64(0), slashPoints(10))
	require.Equal(t, uint64(0), slashPoints(50))
	require.Equal(t, uint64(1800), slashPoints(1))
}

func TestVolumePointsSaturatesAtCap(t *testing.T) {
	require.Equal(t, uint64(2000), volumePoints(10_000_000))
	require.Equal(t, uint64(2000), volumePoints(50_000_000))
	require.Equal(t, uint64(1000), volumePoints(5_000_000))
}

func TestFeeTierBoundaries(t *testing.T) {
	require.Equal(t, TierPremium, FeeTier(9000))
	require.Equal(t, TierPremium, FeeTier(10000))
	require.Equal(t, TierStandard, FeeTier(8999))
	require.Equal(t, TierStandard, FeeTier(7000))
	require.Equal(t, TierBasic, FeeTier(6999))
	require.Equal(t, TierBasic, FeeTier(5000))
	require.Equal(t, TierNew, FeeTier(4999))
	require.Equal(t, TierNew, FeeTier(0))
}
