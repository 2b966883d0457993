// Copyright 2025 Atom Intents

package settlement

import "github.com/atomintents/liquidity-engine/internal/metrics"

// Slash transitions a settlement (from any active state, or from Failed)
// to Slashed{amount}, deducting the computed slash from the solver's
// bond, deactivating it if the remaining bond falls below the configured
// minimum, and recording a slashing event against its reputation.
//
// raw = max(base_slash_bps × user_input_value / 10000, repeat_multiplier^failures) × bond
// slash = clamp(raw, MinSlashAmount, bond)
//
// The repeat_multiplier^failures term is taken as zero while the solver
// has fewer than 3 prior failures; it only punishes repeat offenders.
func (s *Store) Slash(settlementID, opID string) (*Settlement, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.get(settlementID)
	if err != nil {
		return nil, 0, err
	}
	if opID != "" && st.LastOpID == opID && st.LastTransitionTo == Slashed {
		return st, st.Status.Amount, nil
	}

	solver, err := s.getSolver(st.SolverID)
	if err != nil {
		return nil, 0, err
	}

	amount := s.computeSlashAmount(st.UserInputAmount, solver)

	slashedSt, from, err := s.applyTransition(settlementID, Slashed, "", amount, opID)
	if err != nil {
		return nil, 0, err
	}
	if from == Slashed {
		return slashedSt, slashedSt.Status.Amount, nil
	}

	if from != Failed {
		// MarkFailed has already returned a Failed settlement's bond.
		if err := s.releaseBond(slashedSt); err != nil {
			return nil, 0, err
		}
		// Reload so the save below keeps the released commitment.
		if solver, err = s.getSolver(st.SolverID); err != nil {
			return nil, 0, err
		}
	}

	if solver.BondAmount >= amount {
		solver.BondAmount -= amount
	} else {
		solver.BondAmount = 0
	}
	if solver.BondAmount < s.cfg.MinSolverBond {
		solver.Active = false
	}
	if err := s.saveSolver(solver); err != nil {
		return nil, 0, err
	}

	rec, err := s.getReputation(st.SolverID)
	if err != nil {
		return nil, 0, err
	}
	rec.SlashingEvents++
	rec.ReputationScore = reputationScore(rec)
	if err := s.saveReputation(rec); err != nil {
		return nil, 0, err
	}
	metrics.RecordSlash(amount)
	metrics.RecordReputationScore(st.SolverID, rec.ReputationScore)

	s.finishTransition(settlementID, from, slashedSt, "", amount)
	return slashedSt, amount, nil
}

func (s *Store) computeSlashAmount(userInputValue uint64, solver *RegisteredSolver) uint64 {
	bpsTerm := saturatingMul(s.cfg.BaseSlashBps, userInputValue) / 10000

	var repeatTerm uint64
	if solver.FailedSettlements >= 3 {
		repeatTerm = saturatingPow(s.cfg.RepeatMultiplier, solver.FailedSettlements)
	}

	factor := bpsTerm
	if repeatTerm > factor {
		factor = repeatTerm
	}

	raw := saturatingMul(factor, solver.BondAmount)

	// The slash can never exceed the bond actually posted, even when the
	// configured floor is larger than that bond.
	lo := s.cfg.MinSlashAmount
	if lo > solver.BondAmount {
		lo = solver.BondAmount
	}
	return clamp(raw, lo, solver.BondAmount)
}
