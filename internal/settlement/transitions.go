// Copyright 2025 Atom Intents

package settlement

import (
	"fmt"

	"github.com/atomintents/liquidity-engine/internal/metrics"
)

// applyTransition is the single choke point every state change passes
// through: it checks idempotence, validates the edge against the legal
// transition graph, and writes the new status. Callers hold s.mu around
// it, so no concurrent caller can observe or create a torn or illegal
// state; they notify listeners afterwards through finishTransition.
func (s *Store) applyTransition(id string, to Kind, reason string, amount uint64, opID string) (*Settlement, Kind, error) {
	st, err := s.get(id)
	if err != nil {
		return nil, 0, err
	}

	if opID != "" && st.LastOpID == opID && st.LastTransitionTo == to {
		return st, st.Status.Kind, nil
	}

	from := st.Status.Kind
	if !isValidTransition(from, to) {
		return nil, from, &InvalidStateTransitionError{From: from, To: to}
	}

	st.Status = Status{Kind: to, Reason: reason, Amount: amount}
	st.LastOpID = opID
	st.LastTransitionTo = to
	if err := s.saveSettlement(st); err != nil {
		return nil, from, err
	}
	return st, from, nil
}

func (s *Store) finishTransition(id string, from Kind, st *Settlement, reason string, amount uint64) {
	s.logf("settlement %s: %s -> %s", id, from, st.Status.Kind)
	metrics.RecordSettlementTransition(st.Status.Kind.String())
	if st.Status.Terminal() {
		metrics.RecordSettlementTerminal(st.Status.Kind.String())
	}
	s.notifyListeners(id, from, st.Status.Kind, reason, amount)
}

// MarkUserLocked transitions Pending -> UserLocked, recording the escrow
// the orchestrator has already created for this settlement. The escrow
// itself is the escrow store's responsibility; this method only records
// the reference and validates the transition.
func (s *Store) MarkUserLocked(settlementID, escrowID, opID string) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, from, err := s.applyTransition(settlementID, UserLocked, "", 0, opID)
	if err != nil {
		return nil, err
	}
	if from == UserLocked {
		// idempotent replay, escrow already recorded
		return st, nil
	}
	st.EscrowID = escrowID
	if err := s.saveSettlement(st); err != nil {
		return nil, err
	}
	s.finishTransition(settlementID, from, st, "", 0)
	return st, nil
}

// MarkSolverLocked transitions UserLocked -> SolverLocked, requiring the
// solver to have bond_lock_multiplier × solver_output_amount of
// uncommitted bond available. If the bond cannot be committed, the
// settlement instead transitions to Failed{InsufficientBond} and the
// returned error describes the shortfall. Callers should treat this as
// "the settlement failed", not "the call errored without effect".
func (s *Store) MarkSolverLocked(settlementID, opID string) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.get(settlementID)
	if err != nil {
		return nil, err
	}
	if opID != "" && st.LastOpID == opID && st.LastTransitionTo == SolverLocked {
		return st, nil
	}

	solver, err := s.getSolver(st.SolverID)
	if err != nil {
		return nil, err
	}

	if !solver.Active {
		failSt, from, ferr := s.applyTransition(settlementID, Failed, "solver_inactive", 0, opID)
		if ferr != nil {
			return nil, ferr
		}
		s.finishTransition(settlementID, from, failSt, "solver_inactive", 0)
		return failSt, ErrSolverInactive
	}

	required := saturatingMul(st.SolverOutputAmount, s.cfg.BondLockMultiplierPct) / 100
	available := solver.Available()

	if available < required {
		failSt, from, ferr := s.applyTransition(settlementID, Failed, "insufficient_bond", 0, opID)
		if ferr != nil {
			return nil, ferr
		}
		s.finishTransition(settlementID, from, failSt, "insufficient_bond", 0)
		return failSt, &InsufficientBondError{Required: required, Available: available}
	}

	lockedSt, from, err := s.applyTransition(settlementID, SolverLocked, "", 0, opID)
	if err != nil {
		return nil, err
	}
	lockedSt.BondCommitted = required
	if err := s.saveSettlement(lockedSt); err != nil {
		return nil, err
	}
	solver.Committed = saturatingAdd(solver.Committed, required)
	if err := s.saveSolver(solver); err != nil {
		return nil, err
	}
	s.finishTransition(settlementID, from, lockedSt, "", 0)
	return lockedSt, nil
}

// releaseBond returns a settlement's committed bond to its solver. Safe to
// call on a settlement with no committed bond (no-op).
func (s *Store) releaseBond(st *Settlement) error {
	if st.BondCommitted == 0 {
		return nil
	}
	solver, err := s.getSolver(st.SolverID)
	if err != nil {
		return err
	}
	if solver.Committed >= st.BondCommitted {
		solver.Committed -= st.BondCommitted
	} else {
		solver.Committed = 0
	}
	return s.saveSolver(solver)
}

// MarkExecuting transitions SolverLocked -> Executing once the solver has
// submitted its execution plan.
func (s *Store) MarkExecuting(settlementID, opID string) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, from, err := s.applyTransition(settlementID, Executing, "", 0, opID)
	if err != nil {
		return nil, err
	}
	if from == Executing {
		return st, nil
	}
	s.finishTransition(settlementID, from, st, "", 0)
	return st, nil
}

// MarkCompleted transitions Executing -> Completed: the user's escrow has
// been released to the solver and the solver's output has been delivered
// to the recipient. It releases the solver's committed bond and folds the
// settlement into the solver's reputation counters.
func (s *Store) MarkCompleted(settlementID, opID string, settlementTimeSecs uint64) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, from, err := s.applyTransition(settlementID, Completed, "", 0, opID)
	if err != nil {
		return nil, err
	}
	if from == Completed {
		return st, nil
	}

	if err := s.releaseBond(st); err != nil {
		return nil, fmt.Errorf("release bond: %w", err)
	}
	if err := s.recordOutcome(st.SolverID, true, st.UserInputAmount, settlementTimeSecs); err != nil {
		return nil, fmt.Errorf("record reputation outcome: %w", err)
	}
	s.finishTransition(settlementID, from, st, "", 0)
	return st, nil
}

// MarkFailed transitions the current state to Failed{reason}. It releases
// any committed bond (the solver did not deliver, so its locked collateral
// returns to uncommitted) and records a failed outcome against the
// solver's reputation.
func (s *Store) MarkFailed(settlementID, reason, opID string) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, from, err := s.applyTransition(settlementID, Failed, reason, 0, opID)
	if err != nil {
		return nil, err
	}
	if from == Failed {
		return st, nil
	}

	if err := s.releaseBond(st); err != nil {
		return nil, fmt.Errorf("release bond: %w", err)
	}
	if err := s.recordOutcome(st.SolverID, false, 0, 0); err != nil {
		return nil, fmt.Errorf("record reputation outcome: %w", err)
	}
	s.finishTransition(settlementID, from, st, reason, 0)
	return st, nil
}

// recordOutcome updates both the solver registry's coarse counters and
// the richer ReputationRecord, recomputing the derived score.
func (s *Store) recordOutcome(solverID string, success bool, volume, settlementTimeSecs uint64) error {
	solver, err := s.getSolver(solverID)
	if err != nil {
		return err
	}
	solver.TotalSettlements++
	if !success {
		solver.FailedSettlements++
	}
	if err := s.saveSolver(solver); err != nil {
		return err
	}

	rec, err := s.getReputation(solverID)
	if err != nil {
		return err
	}
	rec.TotalSettlements++
	if success {
		rec.SuccessfulSettlements++
		rec.TotalVolume = saturatingAdd(rec.TotalVolume, volume)
		rec.AverageSettlementTime = runningAverage(rec.AverageSettlementTime, rec.SuccessfulSettlements, settlementTimeSecs)
	} else {
		rec.FailedSettlements++
	}
	rec.ReputationScore = reputationScore(rec)
	metrics.RecordReputationScore(solverID, rec.ReputationScore)
	return s.saveReputation(rec)
}

// runningAverage folds a new sample into a running mean over n
// observations (n includes the new sample).
func runningAverage(currentAvg, n, sample uint64) uint64 {
	if n == 0 {
		return sample
	}
	total := saturatingMul(currentAvg, n-1)
	total = saturatingAdd(total, sample)
	return total / n
}
