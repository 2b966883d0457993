// Copyright 2025 Atom Intents

package settlement

import "github.com/atomintents/liquidity-engine/internal/reputation"

// RegisteredSolver is a bonded actor eligible to receive settlement
// fan-out. Committed tracks bond currently held against open
// SolverLocked/Executing settlements; available bond for a new lock is
// BondAmount - Committed.
type RegisteredSolver struct {
	ID                string `json:"id"`
	Operator          string `json:"operator"`
	BondAmount        uint64 `json:"bond_amount"`
	Committed         uint64 `json:"committed"`
	Active            bool   `json:"active"`
	TotalSettlements  uint64 `json:"total_settlements"`
	FailedSettlements uint64 `json:"failed_settlements"`
	RegisteredAt      int64  `json:"registered_at"`
}

// Available returns the solver's uncommitted bond.
func (s *RegisteredSolver) Available() uint64 {
	if s.Committed >= s.BondAmount {
		return 0
	}
	return s.BondAmount - s.Committed
}

// ReputationRecord is the persisted form of a solver's reputation counters
// plus its derived score, stored at reputations/{solver_id}.
type ReputationRecord struct {
	SolverID              string `json:"solver_id"`
	TotalSettlements      uint64 `json:"total_settlements"`
	SuccessfulSettlements uint64 `json:"successful_settlements"`
	FailedSettlements     uint64 `json:"failed_settlements"`
	TotalVolume           uint64 `json:"total_volume"`
	AverageSettlementTime uint64 `json:"average_settlement_time_secs"`
	SlashingEvents        uint64 `json:"slashing_events"`
	ReputationScore       uint64 `json:"reputation_score"`
	LastUpdated           int64  `json:"last_updated"`
}

// reputationScore recomputes rec's derived score from its counters, via
// the standalone deterministic scorer.
func reputationScore(rec *ReputationRecord) uint64 {
	return reputation.Score(reputation.Record{
		TotalSettlements:      rec.TotalSettlements,
		SuccessfulSettlements: rec.SuccessfulSettlements,
		FailedSettlements:     rec.FailedSettlements,
		TotalVolume:           rec.TotalVolume,
		AverageSettlementTime: rec.AverageSettlementTime,
		SlashingEvents:        rec.SlashingEvents,
	})
}
