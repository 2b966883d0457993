// Copyright 2025 Atom Intents

package settlement

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/atomintents/liquidity-engine/internal/kv"
	"github.com/atomintents/liquidity-engine/internal/reputation"
)

// Settlement is the in-flight two-sided trade record matching one intent
// to one solver for a specific amount.
type Settlement struct {
	ID                 string `json:"id"`
	IntentID           string `json:"intent_id"`
	SolverID           string `json:"solver_id"`
	User               string `json:"user"`
	UserInputAmount    uint64 `json:"user_input_amount"`
	UserInputDenom     string `json:"user_input_denom"`
	SolverOutputAmount uint64 `json:"solver_output_amount"`
	SolverOutputDenom  string `json:"solver_output_denom"`
	Status             Status `json:"status"`
	CreatedAt          int64  `json:"created_at"`
	ExpiresAt          int64  `json:"expires_at"`
	EscrowID           string `json:"escrow_id,omitempty"`

	// BondCommitted is the amount of solver bond currently held against
	// this settlement, set when it enters SolverLocked and released back
	// to the solver when it reaches a terminal/Failed state.
	BondCommitted uint64 `json:"bond_committed,omitempty"`

	// LastOpID/LastTransitionTo back the idempotence contract: repeating
	// a transition with the same op-id and target is a no-op success.
	LastOpID         string `json:"last_op_id,omitempty"`
	LastTransitionTo Kind   `json:"last_transition_to,omitempty"`
}

// Listener is notified after every successful transition.
type Listener func(settlementID string, from, to Kind, reason string, amount uint64)

// Logger is the minimal logging surface the store needs.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Config carries the store's tunables. Zero fields fall back to the
// engine defaults (1.5x bond lock multiplier, repeat multiplier 2,
// minimum slash 10_000_000); callers override only what they need to.
type Config struct {
	KV     kv.KV
	Logger Logger

	// BondLockMultiplierPct is bond_lock_multiplier expressed as an
	// integer percentage (150 == 1.5x), since consensus-path arithmetic
	// must stay integer-only.
	BondLockMultiplierPct uint64
	// BaseSlashBps is base_slash_bps in the slash formula.
	BaseSlashBps uint64
	// RepeatMultiplier is repeat_multiplier, applied as an integer power
	// of prior failures once a solver has 3 or more.
	RepeatMultiplier uint64
	MinSlashAmount   uint64
	MinSolverBond    uint64
}

func (c *Config) setDefaults() {
	if c.BondLockMultiplierPct == 0 {
		c.BondLockMultiplierPct = 150
	}
	if c.BaseSlashBps == 0 {
		c.BaseSlashBps = 500
	}
	if c.RepeatMultiplier == 0 {
		c.RepeatMultiplier = 2
	}
	if c.MinSlashAmount == 0 {
		c.MinSlashAmount = 10_000_000
	}
	if c.MinSolverBond == 0 {
		c.MinSolverBond = 50_000_000
	}
}

const (
	prefixSolvers           = "solvers/"
	prefixSettlements       = "settlements/"
	prefixIntentSettlements = "intent_settlements/"
	prefixReputations       = "reputations/"
)

func solverKey(id string) []byte           { return []byte(prefixSolvers + id) }
func settlementKey(id string) []byte       { return []byte(prefixSettlements + id) }
func intentSettlementKey(id string) []byte { return []byte(prefixIntentSettlements + id) }
func reputationKey(id string) []byte       { return []byte(prefixReputations + id) }

// Store persists RegisteredSolvers, Settlements, and ReputationRecords, and
// drives the settlement state machine. A single mutex serializes every
// transition, so the legality check and the write that applies it cannot
// interleave with a concurrent actor's; no caller can race the machine
// into an illegal state.
type Store struct {
	kv     kv.KV
	logger Logger
	cfg    Config

	mu        sync.Mutex
	listeners []Listener
}

// NewStore creates a settlement Store over cfg.KV.
func NewStore(cfg Config) *Store {
	cfg.setDefaults()
	return &Store{kv: cfg.KV, logger: cfg.Logger, cfg: cfg}
}

// AddListener registers l to be called after every successful transition.
func (s *Store) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) notifyListeners(settlementID string, from, to Kind, reason string, amount uint64) {
	for _, l := range s.listeners {
		l(settlementID, from, to, reason, amount)
	}
}

func (s *Store) logf(format string, v ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, v...)
	}
}

// ---------- Solver registry ----------

// RegisterSolver records a new bonded solver. The posted bond must meet
// the configured minimum; an underfunded registration is rejected rather
// than admitted inactive.
func (s *Store) RegisterSolver(id, operator string, bondAmount uint64, registeredAt int64) (*RegisteredSolver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bondAmount < s.cfg.MinSolverBond {
		return nil, &InsufficientBondError{Required: s.cfg.MinSolverBond, Available: bondAmount}
	}
	if existing, err := s.kv.Get(solverKey(id)); err != nil {
		return nil, fmt.Errorf("check solver: %w", err)
	} else if existing != nil {
		return nil, &AlreadyExistsError{IntentID: "", SettlementID: id}
	}

	solver := &RegisteredSolver{
		ID:           id,
		Operator:     operator,
		BondAmount:   bondAmount,
		Active:       true,
		RegisteredAt: registeredAt,
	}
	if err := s.saveSolver(solver); err != nil {
		return nil, err
	}
	if err := s.saveReputation(&ReputationRecord{SolverID: id, ReputationScore: reputation.Score(reputation.Record{})}); err != nil {
		return nil, err
	}
	return solver, nil
}

func (s *Store) saveSolver(solver *RegisteredSolver) error {
	data, err := json.Marshal(solver)
	if err != nil {
		return fmt.Errorf("marshal solver: %w", err)
	}
	if err := s.kv.Set(solverKey(solver.ID), data); err != nil {
		return fmt.Errorf("persist solver: %w", err)
	}
	return nil
}

// GetSolver loads a solver by ID.
func (s *Store) GetSolver(id string) (*RegisteredSolver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSolver(id)
}

func (s *Store) getSolver(id string) (*RegisteredSolver, error) {
	data, err := s.kv.Get(solverKey(id))
	if err != nil {
		return nil, fmt.Errorf("load solver: %w", err)
	}
	if data == nil {
		return nil, &NotFoundError{Entity: "solver", ID: id}
	}
	var solver RegisteredSolver
	if err := json.Unmarshal(data, &solver); err != nil {
		return nil, fmt.Errorf("unmarshal solver: %w", err)
	}
	return &solver, nil
}

// UpdateBond sets a solver's total bond amount (e.g. after a top-up).
func (s *Store) UpdateBond(id string, newBondAmount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	solver, err := s.getSolver(id)
	if err != nil {
		return err
	}
	solver.BondAmount = newBondAmount
	if solver.BondAmount >= s.cfg.MinSolverBond {
		solver.Active = true
	} else {
		solver.Active = false
	}
	return s.saveSolver(solver)
}

// GetReputation loads a solver's reputation record.
func (s *Store) GetReputation(id string) (*ReputationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getReputation(id)
}

func (s *Store) getReputation(id string) (*ReputationRecord, error) {
	data, err := s.kv.Get(reputationKey(id))
	if err != nil {
		return nil, fmt.Errorf("load reputation: %w", err)
	}
	if data == nil {
		return nil, &NotFoundError{Entity: "reputation", ID: id}
	}
	var rec ReputationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal reputation: %w", err)
	}
	return &rec, nil
}

func (s *Store) saveReputation(rec *ReputationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal reputation: %w", err)
	}
	if err := s.kv.Set(reputationKey(rec.SolverID), data); err != nil {
		return fmt.Errorf("persist reputation: %w", err)
	}
	return nil
}

// ---------- Settlement CRUD ----------

// loadIntentIndex reads the persisted value at
// intent_settlements/{intent_id}: the ordered list of every settlement ID
// ever opened against that intent. Greedy selection can split one
// intent's residual across several solvers in the same auction, each
// needing its own in-flight Settlement record, so uniqueness is enforced
// per (intent_id, solver_id) rather than per intent_id alone: only one
// active settlement per solver per intent is ever allowed. ByIntent
// still exposes a single "the" settlement for callers that only care
// about one.
func (s *Store) loadIntentIndex(intentID string) ([]string, error) {
	data, err := s.kv.Get(intentSettlementKey(intentID))
	if err != nil {
		return nil, fmt.Errorf("load intent index: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("unmarshal intent index: %w", err)
	}
	return ids, nil
}

func (s *Store) saveIntentIndex(intentID string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal intent index: %w", err)
	}
	if err := s.kv.Set(intentSettlementKey(intentID), data); err != nil {
		return fmt.Errorf("persist intent index: %w", err)
	}
	return nil
}

func (s *Store) saveSettlement(st *Settlement) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal settlement: %w", err)
	}
	if err := s.kv.Set(settlementKey(st.ID), data); err != nil {
		return fmt.Errorf("persist settlement: %w", err)
	}
	return nil
}

// Get loads a settlement by ID.
func (s *Store) Get(id string) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *Store) get(id string) (*Settlement, error) {
	data, err := s.kv.Get(settlementKey(id))
	if err != nil {
		return nil, fmt.Errorf("load settlement: %w", err)
	}
	if data == nil {
		return nil, &NotFoundError{Entity: "settlement", ID: id}
	}
	var st Settlement
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal settlement: %w", err)
	}
	return &st, nil
}

// ByIntent returns the single active settlement for intentID if one
// exists, else the most recently opened settlement, else NotFoundError.
// Use ByIntentAll to see every settlement (e.g. a multi-solver fill)
// opened against the intent.
func (s *Store) ByIntent(intentID string) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byIntentPrimary(intentID)
}

func (s *Store) byIntentPrimary(intentID string) (*Settlement, error) {
	ids, err := s.loadIntentIndex(intentID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, &NotFoundError{Entity: "settlement", ID: intentID}
	}
	var mostRecent *Settlement
	for _, id := range ids {
		st, err := s.get(id)
		if err != nil {
			return nil, err
		}
		if !st.Status.Terminal() && st.Status.Kind != Failed {
			return st, nil
		}
		mostRecent = st
	}
	return mostRecent, nil
}

// ByIntentAll returns every settlement ever opened against intentID, in
// creation order.
func (s *Store) ByIntentAll(intentID string) ([]*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.loadIntentIndex(intentID)
	if err != nil {
		return nil, err
	}
	out := make([]*Settlement, 0, len(ids))
	for _, id := range ids {
		st, err := s.get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// BySolver returns settlements referencing solverID, in key order, capped
// at limit (limit<=0 defaults to 30, limit>100 is capped at 100).
func (s *Store) BySolver(solverID string, limit int) ([]*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.kv.Iterator([]byte(prefixSettlements))
	if err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}
	defer it.Close()

	limit = clampLimit(limit)
	var out []*Settlement
	for ; it.Valid(); it.Next() {
		var st Settlement
		if err := json.Unmarshal(it.Value(), &st); err != nil {
			return nil, fmt.Errorf("unmarshal settlement: %w", err)
		}
		if st.SolverID != solverID {
			continue
		}
		out = append(out, &st)
		if len(out) >= limit {
			break
		}
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}
	return out, nil
}

// Open creates a new Settlement in Pending for one (intent, solver,
// amount) selection. Two settlements against the same intent are only
// rejected as duplicates when they'd also share a solver_id; see
// loadIntentIndex.
func (s *Store) Open(id, intentID, solverID, user string, userInputAmount uint64, userInputDenom string, solverOutputAmount uint64, solverOutputDenom string, createdAt, expiresAt int64) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.loadIntentIndex(intentID)
	if err != nil {
		return nil, err
	}
	for _, existingID := range ids {
		prior, err := s.get(existingID)
		if err != nil {
			return nil, err
		}
		if prior.SolverID == solverID && !prior.Status.Terminal() && prior.Status.Kind != Failed {
			return nil, &AlreadyExistsError{IntentID: intentID, SettlementID: prior.ID}
		}
	}

	st := &Settlement{
		ID:                 id,
		IntentID:           intentID,
		SolverID:           solverID,
		User:               user,
		UserInputAmount:    userInputAmount,
		UserInputDenom:     userInputDenom,
		SolverOutputAmount: solverOutputAmount,
		SolverOutputDenom:  solverOutputDenom,
		Status:             Status{Kind: Pending},
		CreatedAt:          createdAt,
		ExpiresAt:          expiresAt,
	}
	if err := s.saveSettlement(st); err != nil {
		return nil, err
	}
	if err := s.saveIntentIndex(intentID, append(ids, id)); err != nil {
		return nil, err
	}
	s.logf("settlement %s opened for intent %s, solver %s", id, intentID, solverID)
	return st, nil
}
