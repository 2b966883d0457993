// Copyright 2025 Atom Intents
//
// Package reputation implements the deterministic solver scoring
// function. Every computation here is integer-only and saturating; any
// two nodes scoring the same counters must produce the identical result,
// so floating point stays out of this path entirely.
package reputation

// Record is the subset of a SolverReputation the scorer needs.
type Record struct {
	TotalSettlements      uint64
	SuccessfulSettlements uint64
	FailedSettlements     uint64
	TotalVolume           uint64
	AverageSettlementTime uint64 // seconds
	SlashingEvents        uint64
}

// Tier is the fee-tier bucket a reputation score maps to.
type Tier int

const (
	TierNew Tier = iota
	TierBasic
	TierStandard
	TierPremium
)

func (t Tier) String() string {
	switch t {
	case TierPremium:
		return "premium"
	case TierStandard:
		return "standard"
	case TierBasic:
		return "basic"
	default:
		return "new"
	}
}

// defaultScore is returned for a solver with no settlement history yet.
const defaultScore = 5000

// Score computes the deterministic [0, 10000] reputation score for r: a
// weighted 40/20/20/20 split across success rate, volume, speed, and
// slash-free history.
func Score(r Record) uint64 {
	if r.TotalSettlements == 0 {
		return defaultScore
	}

	successPts := successRatePoints(r.SuccessfulSettlements, r.TotalSettlements)
	volumePts := volumePoints(r.TotalVolume)
	speedPts := speedPoints(r.AverageSettlementTime)
	slashPts := slashPoints(r.SlashingEvents)

	total := successPts + volumePts + speedPts + slashPts
	if total > 10000 {
		return 10000
	}
	return total
}

// successRatePoints is 40% of the total score, capped at 4000.
func successRatePoints(successful, total uint64) uint64 {
	pts := (successful * 4000) / total
	if pts > 4000 {
		return 4000
	}
	return pts
}

// volumePoints is 20% of the total score, saturating at a 10,000,000
// volume cap.
func volumePoints(totalVolume uint64) uint64 {
	capped := totalVolume
	if capped > 10_000_000 {
		capped = 10_000_000
	}
	return (capped * 2000) / 10_000_000
}

// speedPoints is 20% of the total score: full marks at or below 60
// seconds average settlement time, zero at or above 300 seconds, linear
// in between.
func speedPoints(avgTimeSecs uint64) uint64 {
	switch {
	case avgTimeSecs <= 60:
		return 2000
	case avgTimeSecs >= 300:
		return 0
	default:
		return 2000 - ((avgTimeSecs-60)*2000)/240
	}
}

// slashPoints is 20% of the total score, losing 200 points per slashing
// event up to a floor of zero at 10 or more events.
func slashPoints(slashingEvents uint64) uint64 {
	capped := slashingEvents
	if capped > 10 {
		capped = 10
	}
	return 2000 - capped*200
}

// FeeTier maps a reputation score to its fee tier. Boundaries are
// inclusive on the lower end: exactly 9000 is Premium, exactly 5000 is
// Basic.
func FeeTier(score uint64) Tier {
	switch {
	case score >= 9000:
		return TierPremium
	case score >= 7000:
		return TierStandard
	case score >= 5000:
		return TierBasic
	default:
		return TierNew
	}
}
