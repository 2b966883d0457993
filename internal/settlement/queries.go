// Copyright 2025 Atom Intents
//
// List-query surface for the settlement store: Solvers, TopSolvers and
// SolversByReputation here, BySolver in store.go. Every list query defaults to
// a limit of 30 and caps at 100; cursor pagination is intentionally not
// implemented for the reputation-sorted queries in this version.
package settlement

import (
	"encoding/json"
	"fmt"
	"sort"
)

const (
	defaultListLimit = 30
	maxListLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// Solvers lists registered solvers in key order, capped at limit
// (limit<=0 defaults to 30, limit>100 is capped at 100).
func (s *Store) Solvers(limit int) ([]*RegisteredSolver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit = clampLimit(limit)

	it, err := s.kv.Iterator([]byte(prefixSolvers))
	if err != nil {
		return nil, fmt.Errorf("iterate solvers: %w", err)
	}
	defer it.Close()

	var out []*RegisteredSolver
	for ; it.Valid() && len(out) < limit; it.Next() {
		var solver RegisteredSolver
		if err := json.Unmarshal(it.Value(), &solver); err != nil {
			return nil, fmt.Errorf("unmarshal solver: %w", err)
		}
		out = append(out, &solver)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate solvers: %w", err)
	}
	return out, nil
}

// allReputations loads every persisted ReputationRecord. Callers hold s.mu.
func (s *Store) allReputations() ([]*ReputationRecord, error) {
	it, err := s.kv.Iterator([]byte(prefixReputations))
	if err != nil {
		return nil, fmt.Errorf("iterate reputations: %w", err)
	}
	defer it.Close()

	var out []*ReputationRecord
	for ; it.Valid(); it.Next() {
		var rec ReputationRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal reputation: %w", err)
		}
		out = append(out, &rec)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate reputations: %w", err)
	}
	return out, nil
}

// sortByScoreThenID orders reputation records by score descending,
// solver_id ascending.
func sortByScoreThenID(recs []*ReputationRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].ReputationScore != recs[j].ReputationScore {
			return recs[i].ReputationScore > recs[j].ReputationScore
		}
		return recs[i].SolverID < recs[j].SolverID
	})
}

// TopSolvers returns the limit highest-reputation solvers, sorted by
// score descending then solver_id ascending.
func (s *Store) TopSolvers(limit int) ([]*ReputationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit = clampLimit(limit)
	recs, err := s.allReputations()
	if err != nil {
		return nil, err
	}
	sortByScoreThenID(recs)
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// SolversByReputation returns solvers whose reputation score is at least
// minScore, sorted the same way as TopSolvers and capped at limit.
func (s *Store) SolversByReputation(minScore uint64, limit int) ([]*ReputationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit = clampLimit(limit)
	all, err := s.allReputations()
	if err != nil {
		return nil, err
	}
	var recs []*ReputationRecord
	for _, r := range all {
		if r.ReputationScore >= minScore {
			recs = append(recs, r)
		}
	}
	sortByScoreThenID(recs)
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// AllInflight returns every settlement currently in an inflight state,
// used by the expiry sweeper and the migration guard.
func (s *Store) AllInflight() ([]*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.kv.Iterator([]byte(prefixSettlements))
	if err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}
	defer it.Close()

	var out []*Settlement
	for ; it.Valid(); it.Next() {
		var st Settlement
		if err := json.Unmarshal(it.Value(), &st); err != nil {
			return nil, fmt.Errorf("unmarshal settlement: %w", err)
		}
		if _, inflight := nonTerminalKinds[st.Status.Kind]; inflight {
			out = append(out, &st)
		}
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}
	return out, nil
}
