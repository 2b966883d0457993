// Copyright 2025 Atom Intents

package orchestrator

import (
	"context"
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atomintents/liquidity-engine/internal/cancellation"
	"github.com/atomintents/liquidity-engine/internal/escrow"
	"github.com/atomintents/liquidity-engine/internal/ibc"
	"github.com/atomintents/liquidity-engine/internal/intent"
	"github.com/atomintents/liquidity-engine/internal/kv"
	"github.com/atomintents/liquidity-engine/internal/matching"
	"github.com/atomintents/liquidity-engine/internal/settlement"
	"github.com/atomintents/liquidity-engine/internal/signing"
	"github.com/atomintents/liquidity-engine/internal/types"
	"github.com/atomintents/liquidity-engine/internal/validate"
)

type fakeOracle struct {
	quote ibc.PriceQuote
	err   error
}

func (f fakeOracle) Price(context.Context, types.TradingPair) (ibc.PriceQuote, error) {
	return f.quote, f.err
}

var samplePair = types.TradingPair{Base: "uatom", Quote: "uusdc"}
var reversePair = types.TradingPair{Base: "uusdc", Quote: "uatom"}

// testValidator allows both orderings of the sample pair, since pair
// identity is the ordered (input-denom, output-denom) tuple and
// counterSignedIntent trades in the opposite direction from signedIntent.
func testValidator() *validate.Config {
	return validate.NewConfig([]types.TradingPair{samplePair, reversePair}, nil)
}

// signedIntent builds an intent whose User address-derives from key and
// signs it, ready to pass Orchestrator.SubmitIntent's verification step.
func signedIntent(t *testing.T, key []byte, id string, inputAmount uint64, minOut uint64, limitPrice string, deadline time.Time, allowPartial bool) *intent.Intent {
	t.Helper()
	addr, err := signing.AddressFromPrivateKey(key)
	require.NoError(t, err)

	in := &intent.Intent{
		ID:    id,
		User:  addr,
		Nonce: 1,
		Input: types.Asset{ChainID: "cosmoshub-4", Denom: "uatom", Amount: inputAmount},
		Output: intent.OutputSpec{
			ChainID:    "cosmoshub-4",
			Denom:      "uusdc",
			MinAmount:  minOut,
			LimitPrice: limitPrice,
			Recipient:  addr,
		},
		FillConfig: types.FillConfig{
			AllowPartial:  allowPartial,
			MinFillAmount: 1,
			MinFillPct:    decimal.NewFromFloat(0.1),
		},
		ExecutionConstraints: types.ExecutionConstraints{
			Deadline:        deadline.Unix(),
			MaxSolverFeeBps: 50,
		},
	}
	require.NoError(t, in.Sign(key))
	return in
}

// counterSignedIntent mirrors signedIntent but trades the opposite
// direction (gives uusdc, wants uatom), for internal-crossing fixtures.
func counterSignedIntent(t *testing.T, key []byte, id string, inputAmount uint64, minOut uint64, limitPrice string, deadline time.Time, allowPartial bool) *intent.Intent {
	t.Helper()
	addr, err := signing.AddressFromPrivateKey(key)
	require.NoError(t, err)

	in := &intent.Intent{
		ID:    id,
		User:  addr,
		Nonce: 1,
		Input: types.Asset{ChainID: "cosmoshub-4", Denom: "uusdc", Amount: inputAmount},
		Output: intent.OutputSpec{
			ChainID:    "cosmoshub-4",
			Denom:      "uatom",
			MinAmount:  minOut,
			LimitPrice: limitPrice,
			Recipient:  addr,
		},
		FillConfig: types.FillConfig{
			AllowPartial:  allowPartial,
			MinFillAmount: 1,
			MinFillPct:    decimal.NewFromFloat(0.1),
		},
		ExecutionConstraints: types.ExecutionConstraints{
			Deadline:        deadline.Unix(),
			MaxSolverFeeBps: 50,
		},
	}
	require.NoError(t, in.Sign(key))
	return in
}

func testKey(seed byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = seed + byte(i)
	}
	return key
}

func newTestOrchestrator(t *testing.T, oracle ibc.Oracle) (*Orchestrator, *settlement.Store, *escrow.Store) {
	t.Helper()
	settlements := settlement.NewStore(settlement.Config{KV: kv.NewAdapter(dbm.NewMemDB())})
	escrows := escrow.NewStore(escrow.Config{KV: kv.NewAdapter(dbm.NewMemDB())})

	o, err := NewOrchestrator(Config{
		Validator:     testValidator(),
		Cancellations: cancellation.NewRegistry(),
		Nonces:        cancellation.NewNonceSet(),
		Escrows:       escrows,
		Settlements:   settlements,
		Book:          matching.NewBook(),
		Matching: matching.Config{
			Oracle:              oracle,
			ConfidenceThreshold: decimal.NewFromFloat(0.02),
			PerRequestTimeout:   time.Second,
		},
		Now: func() time.Time { return time.Unix(1_000_000, 0) },
	})
	require.NoError(t, err)
	return o, settlements, escrows
}

// TestSubmitIntentFullInternalCross: two opposing intents at the same
// limit price cross each other completely through the book before the
// aggregator is ever consulted, each producing a Completed Settlement
// against the "internal" pseudo-solver.
func TestSubmitIntentFullInternalCross(t *testing.T) {
	deadline := time.Unix(1_000_000, 0).Add(time.Hour)
	// B still has to clear the aggregator's oracle checks on its own
	// submission, since it arrives with no counterparty yet to cross
	// against internally.
	oracle := fakeOracle{quote: ibc.PriceQuote{Price: decimal.NewFromFloat(10.0), Confidence: decimal.NewFromFloat(0.005)}}
	o, settlements, escrows := newTestOrchestrator(t, oracle)

	// B rests first: gives up to 1000 uusdc, wants at least 100 uatom,
	// limit 0.1 (uatom per uusdc), the mirror image of A's 10.0.
	b := counterSignedIntent(t, testKey(10), "intent-b", 1000, 100, "0.1", deadline, true)
	resB, err := o.SubmitIntent(context.Background(), b)
	require.NoError(t, err)
	require.Empty(t, resB.SettlementIDs, "B rests with nothing to cross against yet")
	require.Equal(t, uint64(1000), resB.Resting)

	// A arrives and crosses fully against B's resting order.
	a := signedIntent(t, testKey(20), "intent-a", 100, 1000, "10.0", deadline, false)
	resA, err := o.SubmitIntent(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, resA.SettlementIDs, 2, "both sides of a full internal cross get their own settlement")
	require.Zero(t, resA.Resting)

	stA, err := settlements.Get(resA.SettlementIDs[0])
	require.NoError(t, err)
	require.Equal(t, "internal", stA.SolverID)
	require.Equal(t, settlement.Completed, stA.Status.Kind)
	require.Equal(t, uint64(100), stA.UserInputAmount)

	stB, err := settlements.Get(resA.SettlementIDs[1])
	require.NoError(t, err)
	require.Equal(t, "internal", stB.SolverID)
	require.Equal(t, "intent-b", stB.IntentID)
	require.Equal(t, settlement.Completed, stB.Status.Kind)
	require.Equal(t, uint64(1000), stB.UserInputAmount)

	escrowA, err := escrows.Get("intent-a")
	require.NoError(t, err)
	require.Equal(t, escrow.StatusReleased, escrowA.Status)

	escrowB, err := escrows.Get("intent-b")
	require.NoError(t, err)
	require.Equal(t, escrow.StatusReleased, escrowB.Status)
}

// TestSubmitIntentOracleUncertainRejected: no internal counterparty
// exists, so the residual reaches the aggregator, which rejects the
// auction before any solver is queried because the oracle's confidence
// interval is too wide.
func TestSubmitIntentOracleUncertainRejected(t *testing.T) {
	deadline := time.Unix(1_000_000, 0).Add(time.Hour)
	oracle := fakeOracle{quote: ibc.PriceQuote{Price: decimal.NewFromFloat(10.0), Confidence: decimal.NewFromFloat(0.03)}}
	o, settlements, escrows := newTestOrchestrator(t, oracle)

	a := signedIntent(t, testKey(30), "intent-a", 100, 1000, "10.0", deadline, false)
	_, err := o.SubmitIntent(context.Background(), a)
	require.Error(t, err)

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "match", rejected.Stage)

	all, err := settlements.ByIntentAll("intent-a")
	require.NoError(t, err)
	require.Empty(t, all, "no settlement should exist once the oracle check fails")

	e, err := escrows.Get("intent-a")
	require.NoError(t, err)
	require.Equal(t, escrow.StatusRefunded, e.Status, "rejection unwinds the freshly locked escrow")
}

func TestSubmitIntentRejectsReplayedNonce(t *testing.T) {
	deadline := time.Unix(1_000_000, 0).Add(time.Hour)
	oracle := fakeOracle{quote: ibc.PriceQuote{Price: decimal.NewFromFloat(10.0), Confidence: decimal.NewFromFloat(0.001)}}
	o, _, _ := newTestOrchestrator(t, oracle)

	key := testKey(40)
	first := signedIntent(t, key, "intent-a", 100, 1000, "10.0", deadline, true)
	_, err := o.SubmitIntent(context.Background(), first)
	require.NoError(t, err)

	replay := signedIntent(t, key, "intent-a-2", 100, 1000, "10.0", deadline, true)
	replay.Nonce = first.Nonce
	replay.User = first.User
	require.NoError(t, replay.Sign(key))

	_, err = o.SubmitIntent(context.Background(), replay)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "nonce", rejected.Stage)
	require.ErrorIs(t, rejected.Err, ErrNonceReplayed)
}

func TestSubmitIntentRejectsTamperedSignature(t *testing.T) {
	deadline := time.Unix(1_000_000, 0).Add(time.Hour)
	o, _, _ := newTestOrchestrator(t, fakeOracle{})

	a := signedIntent(t, testKey(50), "intent-a", 100, 1000, "10.0", deadline, true)
	a.Input.Amount = 999 // tamper after signing

	_, err := o.SubmitIntent(context.Background(), a)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "verify", rejected.Stage)
}

// Cancellation is only permitted while the intent has no settlement in
// any state other than Failed; here intent-b's settlement has completed.
func TestCancelIntentRejectedOnceSettlementActive(t *testing.T) {
	deadline := time.Unix(1_000_000, 0).Add(time.Hour)
	o, _, _ := newTestOrchestrator(t, fakeOracle{})

	b := counterSignedIntent(t, testKey(60), "intent-b", 1000, 100, "0.1", deadline, true)
	_, err := o.SubmitIntent(context.Background(), b)
	require.NoError(t, err)
	a := signedIntent(t, testKey(61), "intent-a", 100, 1000, "10.0", deadline, false)
	resA, err := o.SubmitIntent(context.Background(), a)
	require.NoError(t, err)
	require.NotEmpty(t, resA.SettlementIDs)

	key := testKey(60)
	c := &intent.Cancellation{IntentID: "intent-b", User: b.User, CancelledAt: 1}
	require.NoError(t, c.Sign(key))

	err = o.CancelIntent(c)
	require.Error(t, err)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "cancel", rejected.Stage)
}

func TestCancelIntentAllowedBeforeAnySettlement(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, fakeOracle{})

	key := testKey(70)
	addr, err := signing.AddressFromPrivateKey(key)
	require.NoError(t, err)
	c := &intent.Cancellation{IntentID: "intent-never-submitted", User: addr, CancelledAt: 1}
	require.NoError(t, c.Sign(key))

	require.NoError(t, o.CancelIntent(c))
}

// TestSweepFailsExpiredSettlement: a settlement whose ExpiresAt has
// passed transitions to Failed{expired}; settlements that already
// reached a terminal state are left alone.
func TestSweepFailsExpiredSettlement(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	deadline := now.Add(time.Hour)
	oracle := fakeOracle{quote: ibc.PriceQuote{Price: decimal.NewFromFloat(10.0), Confidence: decimal.NewFromFloat(0.001)}}
	o, settlements, _ := newTestOrchestrator(t, oracle)

	solver := &stubSolver{id: "solver-1", pairs: []types.TradingPair{samplePair}, input: 100, output: 1000, price: decimal.NewFromFloat(10.0)}
	o.cfg.Matching.Solvers = []matching.Solver{solver}
	_, err := settlements.RegisterSolver("solver-1", "operator-1", 1_000_000_000, now.Unix())
	require.NoError(t, err)

	a := signedIntent(t, testKey(80), "intent-a", 100, 1000, "10.0", deadline, false)
	res, err := o.SubmitIntent(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, res.SettlementIDs, 1)

	st, err := settlements.Get(res.SettlementIDs[0])
	require.NoError(t, err)
	require.True(t, st.Status.Terminal(), "a local same-chain fill settles synchronously")

	// The completed settlement is terminal, so the sweeper leaves it
	// alone even well past its deadline.
	swept, err := o.Sweep(deadline.Add(2 * time.Hour))
	require.NoError(t, err)
	require.Zero(t, swept)

	// A settlement stuck in a non-terminal state past its deadline is
	// failed and counted.
	_, err = settlements.Open("stuck-settlement", "intent-stuck", "solver-1", "user-x",
		100, "uatom", 1000, "uusdc", now.Unix(), deadline.Unix())
	require.NoError(t, err)

	swept, err = o.Sweep(deadline.Add(2 * time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	stuck, err := settlements.Get("stuck-settlement")
	require.NoError(t, err)
	require.Equal(t, settlement.Failed, stuck.Status.Kind)
	require.Equal(t, "expired", stuck.Status.Reason)
}

// TestSweepSlashesCommittedSolver: a settlement that expires after the
// solver locked bond is failed and then slashed, since the solver
// committed collateral and let the trade lapse.
func TestSweepSlashesCommittedSolver(t *testing.T) {
	o, settlements, _ := newTestOrchestrator(t, fakeOracle{})

	_, err := settlements.RegisterSolver("solver-1", "operator-1", 1_000_000_000, 0)
	require.NoError(t, err)
	_, err = settlements.Open("settlement-1", "intent-1", "solver-1", "user-1", 100, "uatom", 1000, "uusdc", 0, 500)
	require.NoError(t, err)
	_, err = settlements.MarkUserLocked("settlement-1", "", "op-1")
	require.NoError(t, err)
	_, err = settlements.MarkSolverLocked("settlement-1", "op-2")
	require.NoError(t, err)

	swept, err := o.Sweep(time.Unix(1_000, 0))
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	st, err := settlements.Get("settlement-1")
	require.NoError(t, err)
	require.Equal(t, settlement.Slashed, st.Status.Kind)

	solver, err := settlements.GetSolver("solver-1")
	require.NoError(t, err)
	require.Less(t, solver.BondAmount, uint64(1_000_000_000))

	rec, err := settlements.GetReputation("solver-1")
	require.NoError(t, err)
	require.Equal(t, uint64(1), rec.SlashingEvents)
}

// TestMigrationGuardBlocksWhileSettlementsInflight exercises the guard
// at the orchestrator's passthrough.
func TestMigrationGuardBlocksWhileSettlementsInflight(t *testing.T) {
	o, settlements, _ := newTestOrchestrator(t, fakeOracle{})

	_, err := settlements.RegisterSolver("solver-1", "operator-1", 1_000_000_000, 0)
	require.NoError(t, err)
	_, err = settlements.Open("settlement-1", "intent-1", "solver-1", "user-1", 100, "uatom", 1000, "uusdc", 0, 1000)
	require.NoError(t, err)

	err = o.CheckMigrationGuard()
	var blocked *settlement.MigrationBlockedError
	require.ErrorAs(t, err, &blocked)

	_, err = settlements.MarkUserLocked("settlement-1", "escrow-x", "op-1")
	require.NoError(t, err)
	_, err = settlements.MarkSolverLocked("settlement-1", "op-2")
	require.NoError(t, err)
	_, err = settlements.MarkExecuting("settlement-1", "op-3")
	require.NoError(t, err)
	_, err = settlements.MarkCompleted("settlement-1", "op-4", 0)
	require.NoError(t, err)

	require.NoError(t, o.CheckMigrationGuard())
}

type stubSolver struct {
	id     string
	pairs  []types.TradingPair
	input  uint64
	output uint64
	price  decimal.Decimal
}

func (s *stubSolver) ID() string                             { return s.id }
func (s *stubSolver) SupportedPairs() []types.TradingPair    { return s.pairs }
func (s *stubSolver) Capabilities() types.SolverCapabilities { return types.SolverCapabilities{} }
func (s *stubSolver) Capacity(context.Context, types.TradingPair) (uint64, error) {
	return s.input, nil
}
func (s *stubSolver) HealthCheck(context.Context) bool { return true }
func (s *stubSolver) Solve(ctx context.Context, in *intent.Intent, sctx types.SolveContext) (types.Solution, error) {
	return types.Solution{
		SolverID: s.id,
		IntentID: in.ID,
		Fill:     types.ProposedFill{InputAmount: s.input, OutputAmount: s.output, Price: s.price},
	}, nil
}
