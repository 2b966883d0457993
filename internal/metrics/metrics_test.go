package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGathererReturnsRegisteredFamilies(t *testing.T) {
	RecordSettlementTransition("user_locked")
	RecordSettlementTerminal("completed")
	RecordSlash(15_000_000)
	RecordAuction("filled", 50*time.Millisecond, 3)
	RecordReputationScore("solver-1", 8700)

	families, err := Gatherer().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["liquidity_engine_settlement_transitions_total"])
	require.True(t, names["liquidity_engine_settlement_terminal_total"])
	require.True(t, names["liquidity_engine_settlement_slash_amount"])
	require.True(t, names["liquidity_engine_matching_auction_duration_seconds"])
	require.True(t, names["liquidity_engine_reputation_score"])
}
