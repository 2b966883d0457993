// Copyright 2025 Atom Intents
//
// Package orchestrator is the engine's thin glue: it wires
// signature/nonce/cancellation checks, the validator, the internal
// crossing book, the solver aggregator, the escrow store, and the
// settlement state machine into the single entry point a transport layer
// (gRPC, a chain module, a CLI) would call. It contains no algorithm of
// its own; every hard decision (price bounds, greedy selection, slash
// math, reputation scoring) is delegated to the package that owns it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atomintents/liquidity-engine/internal/cancellation"
	"github.com/atomintents/liquidity-engine/internal/escrow"
	"github.com/atomintents/liquidity-engine/internal/ibc"
	"github.com/atomintents/liquidity-engine/internal/intent"
	"github.com/atomintents/liquidity-engine/internal/matching"
	"github.com/atomintents/liquidity-engine/internal/settlement"
	"github.com/atomintents/liquidity-engine/internal/types"
	"github.com/atomintents/liquidity-engine/internal/validate"
)

// Logger is the minimal logging surface the orchestrator needs.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Config carries every collaborator the orchestrator drives. None of the
// fields are optional except InternalSolverID, Logger, and Now.
type Config struct {
	Validator     *validate.Config
	Cancellations *cancellation.Registry
	Nonces        *cancellation.NonceSet
	Escrows       *escrow.Store
	Settlements   *settlement.Store
	Book          *matching.Book
	Matching      matching.Config
	Transport     ibc.Transport
	Logger        Logger

	// InternalSolverID is the pseudo-solver registered to carry
	// settlements created by internal crossing, since the settlement
	// state machine has no notion of a solver-less transition. Defaults
	// to "internal".
	InternalSolverID string

	// Now returns the current time; overridable for deterministic tests.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.InternalSolverID == "" {
		c.InternalSolverID = "internal"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

func (c *Config) logf(format string, v ...interface{}) {
	if c.Logger != nil {
		c.Logger.Printf(format, v...)
	}
}

// Orchestrator is the engine's single entry point for submitting intents,
// cancelling them, resolving cross-chain acknowledgements, and sweeping
// expired settlements.
type Orchestrator struct {
	cfg Config
}

// NewOrchestrator wires cfg into a ready Orchestrator, registering the
// internal pseudo-solver if it does not already exist.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	cfg.setDefaults()
	o := &Orchestrator{cfg: cfg}
	if err := o.ensureInternalSolver(); err != nil {
		return nil, fmt.Errorf("register internal solver: %w", err)
	}
	return o, nil
}

func (o *Orchestrator) ensureInternalSolver() error {
	_, err := o.cfg.Settlements.GetSolver(o.cfg.InternalSolverID)
	if err == nil {
		return nil
	}
	var notFound *settlement.NotFoundError
	if !errors.As(err, &notFound) {
		return err
	}
	// The internal solver never actually posts collateral; it exists so
	// internally-crossed fills can pass through the same bond-lock edge
	// every other settlement does. It is registered with a bond large
	// enough that MarkSolverLocked can never fail it for insufficient funds.
	_, err = o.cfg.Settlements.RegisterSolver(o.cfg.InternalSolverID, "internal", math.MaxUint64/2, o.cfg.Now().Unix())
	return err
}

// SubmitResult reports what happened to a submitted intent: which
// settlements it produced, and how much (if any) of its input is now
// resting in the crossing book awaiting a future counterparty.
type SubmitResult struct {
	IntentID      string
	SettlementIDs []string
	Resting       uint64
}

// SubmitIntent runs the full submission pipeline for a single intent:
// verify -> reject cancelled/replayed -> validate -> lock escrow -> cross
// internally -> match the residual against solvers -> drive every
// resulting settlement through its lifecycle -> rest whatever is left.
func (o *Orchestrator) SubmitIntent(ctx context.Context, in *intent.Intent) (*SubmitResult, error) {
	now := o.cfg.Now()

	if err := in.Verify(); err != nil {
		return nil, &RejectedError{Stage: "verify", Err: err}
	}
	if o.cfg.Cancellations.IsCancelled(in.ID) {
		return nil, &RejectedError{Stage: "cancellation", Err: ErrIntentCancelled}
	}
	if !o.cfg.Nonces.TryConsume(in.User, in.Nonce) {
		return nil, &RejectedError{Stage: "nonce", Err: ErrNonceReplayed}
	}
	if err := validate.Validate(o.cfg.Validator, in, now); err != nil {
		return nil, &RejectedError{Stage: "validate", Err: err}
	}

	// One escrow per intent, sized to the full input amount; it is
	// released in portions as the fill plan's settlements complete.
	escrowID := in.ID
	if _, err := o.cfg.Escrows.Lock(escrowID, in.User, in.Input, in.ID, in.ExecutionConstraints.Deadline); err != nil {
		return nil, &RejectedError{Stage: "escrow_lock", Err: err}
	}

	result := &SubmitResult{IntentID: in.ID}

	crossFills, err := o.cfg.Book.Cross(in, in.Input.Amount)
	if err != nil {
		return nil, &RejectedError{Stage: "cross", Err: err}
	}
	var matched uint64
	for _, cf := range crossFills {
		id, counterpartyID, err := o.settleInternalCross(in, cf, escrowID, now)
		if err != nil {
			return nil, &RejectedError{Stage: "internal_cross_settle", Err: err}
		}
		result.SettlementIDs = append(result.SettlementIDs, id)
		if counterpartyID != "" {
			result.SettlementIDs = append(result.SettlementIDs, counterpartyID)
		}
		matched += cf.AmountIn
	}

	plan, err := matching.Match(ctx, o.cfg.Matching, in, matched, types.SideSell, now)
	if err != nil {
		if restableMatchFailure(err) && in.FillConfig.AllowPartial {
			// No fill is available right now, but the intent tolerates a
			// partial outcome: whatever didn't cross internally rests for
			// a later round.
			if remaining := in.Input.Amount - matched; remaining > 0 {
				o.cfg.Book.Rest(in, remaining)
				result.Resting = remaining
			}
			return result, nil
		}
		// Fatal rejection: unwind whatever portion of the escrow the
		// internal crosses did not already disburse.
		if _, rerr := o.cfg.Escrows.ForceRefund(escrowID); rerr != nil {
			o.cfg.logf("intent %s: escrow refund after match failure: %v", in.ID, rerr)
		}
		return nil, &RejectedError{Stage: "match", Err: err}
	}

	for _, entry := range plan.Selected {
		id, err := o.settleExternalFill(ctx, in, entry, escrowID, now)
		if err != nil {
			return nil, &RejectedError{Stage: "settle", Err: err}
		}
		result.SettlementIDs = append(result.SettlementIDs, id)
	}

	if leftover := in.Input.Amount - plan.TotalInput; leftover > 0 {
		o.cfg.Book.Rest(in, leftover)
		result.Resting = leftover
	}

	return result, nil
}

// settleInternalCross drives a single internal-crossing fill through the
// settlement lifecycle synchronously: internal crosses never touch the
// IBC transport, so they complete in the same call that creates them.
// Both sides of a cross get their own Settlement against the internal
// pseudo-solver, so this opens and drives one for the aggressor (`in`)
// and a second, mirror-image one for the resting counterparty, before
// releasing either escrow.
func (o *Orchestrator) settleInternalCross(in *intent.Intent, cf matching.CrossFill, escrowID string, now time.Time) (string, string, error) {
	id := uuid.NewString()
	st, err := o.cfg.Settlements.Open(id, in.ID, o.cfg.InternalSolverID, in.User,
		cf.AmountIn, in.Input.Denom, cf.AmountOut, in.Output.Denom,
		now.Unix(), in.ExecutionConstraints.Deadline)
	if err != nil {
		return "", "", err
	}
	if err := o.driveToExecuting(st.ID, escrowID); err != nil {
		return "", "", err
	}

	var counterpartyID string
	if cf.CounterpartyIntentID != "" {
		var counterpartyDeadline int64
		if cf.CounterpartyIntent != nil {
			counterpartyDeadline = cf.CounterpartyIntent.ExecutionConstraints.Deadline
		}
		cid := uuid.NewString()
		cst, err := o.cfg.Settlements.Open(cid, cf.CounterpartyIntentID, o.cfg.InternalSolverID, cf.CounterpartyUser,
			cf.AmountOut, in.Output.Denom, cf.AmountIn, in.Input.Denom,
			now.Unix(), counterpartyDeadline)
		if err != nil {
			return "", "", err
		}
		if err := o.driveToExecuting(cst.ID, cf.CounterpartyIntentID); err != nil {
			return "", "", err
		}
		counterpartyID = cst.ID
	}

	if _, err := o.cfg.Escrows.Release(escrowID, cf.CounterpartyUser, cf.AmountIn); err != nil {
		return "", "", fmt.Errorf("release aggressor escrow: %w", err)
	}
	if cf.CounterpartyIntentID != "" {
		if _, err := o.cfg.Escrows.Release(cf.CounterpartyIntentID, in.User, cf.AmountOut); err != nil {
			return "", "", fmt.Errorf("release counterparty escrow: %w", err)
		}
	}

	if _, err := o.cfg.Settlements.MarkCompleted(st.ID, id+":complete", 0); err != nil {
		return "", "", err
	}
	if counterpartyID != "" {
		if _, err := o.cfg.Settlements.MarkCompleted(counterpartyID, counterpartyID+":complete", 0); err != nil {
			return "", "", err
		}
	}
	return st.ID, counterpartyID, nil
}

// settleExternalFill drives a single solver-sourced fill through the
// settlement lifecycle. Same-chain fills release the escrow and complete
// synchronously; cross-ecosystem fills hand off to the IBC transport and
// complete later via HandleIbcAck.
func (o *Orchestrator) settleExternalFill(ctx context.Context, in *intent.Intent, entry types.FillPlanEntry, escrowID string, now time.Time) (string, error) {
	solverID := entry.Solution.SolverID
	amountIn := entry.AmountTaken
	amountOut := proportionalOutput(entry.Solution.Fill, amountIn)

	id := uuid.NewString()
	st, err := o.cfg.Settlements.Open(id, in.ID, solverID, in.User,
		amountIn, in.Input.Denom, amountOut, in.Output.Denom,
		now.Unix(), in.ExecutionConstraints.Deadline)
	if err != nil {
		return "", err
	}
	if err := o.driveToExecuting(st.ID, escrowID); err != nil {
		return "", err
	}

	if !o.isCrossChain(in, entry) {
		if _, err := o.cfg.Escrows.Release(escrowID, solverID, amountIn); err != nil {
			return "", fmt.Errorf("release escrow: %w", err)
		}
		if _, err := o.cfg.Settlements.MarkCompleted(st.ID, id+":complete", 0); err != nil {
			return "", err
		}
		return st.ID, nil
	}

	req := ibc.TransferRequest{
		Denom:        in.Output.Denom,
		Amount:       amountOut,
		Receiver:     in.Output.Recipient,
		SettlementID: st.ID,
	}
	settlementID := st.ID
	if err := o.cfg.Transport.Transfer(ctx, req, func(res ibc.AckResult) {
		res.SettlementID = settlementID
		if err := o.HandleIbcAck(res); err != nil {
			o.cfg.logf("settlement %s: ack handling failed: %v", settlementID, err)
		}
	}); err != nil {
		o.cfg.logf("settlement %s: transfer submission failed: %v", settlementID, err)
		if _, ferr := o.cfg.Settlements.MarkFailed(settlementID, "transport_error", id+":transport_fail"); ferr != nil {
			return "", ferr
		}
		if _, rerr := o.cfg.Escrows.ForceRefund(escrowID); rerr != nil {
			return "", rerr
		}
		return "", fmt.Errorf("submit transfer: %w", err)
	}
	return st.ID, nil
}

// driveToExecuting walks a freshly-opened settlement through
// Pending -> UserLocked -> SolverLocked -> Executing. If the solver lock
// fails for insufficient bond, the settlement store has already moved the
// settlement to Failed; this unwinds the escrow to match.
func (o *Orchestrator) driveToExecuting(settlementID, escrowID string) error {
	if _, err := o.cfg.Settlements.MarkUserLocked(settlementID, escrowID, settlementID+":user_locked"); err != nil {
		return err
	}
	if _, err := o.cfg.Settlements.MarkSolverLocked(settlementID, settlementID+":solver_locked"); err != nil {
		var insufficient *settlement.InsufficientBondError
		if errors.As(err, &insufficient) {
			if _, rerr := o.cfg.Escrows.ForceRefund(escrowID); rerr != nil {
				return fmt.Errorf("refund after insufficient bond: %w", rerr)
			}
		}
		return err
	}
	if _, err := o.cfg.Settlements.MarkExecuting(settlementID, settlementID+":executing"); err != nil {
		return err
	}
	return nil
}

// restableMatchFailure reports whether a matching failure leaves the
// intent eligible to rest in the crossing book for a later attempt: the
// market sitting away from the intent's limit, no solver route existing
// right now, or the surviving quotes only covering a sub-floor partial.
// Oracle uncertainty, expiry, and quote-cap violations reject the intent
// outright instead.
func restableMatchFailure(err error) bool {
	var below *matching.PriceBelowLimitError
	var exceeds *matching.PriceExceedsLimitError
	return errors.Is(err, matching.ErrNoViableRoute) ||
		errors.Is(err, matching.ErrPartialFillNotAllowed) ||
		errors.As(err, &below) ||
		errors.As(err, &exceeds)
}

// isCrossChain reports whether a fill requires an asynchronous IBC leg:
// the intent's output chain differs from its input chain, or the
// solution's execution plan is ExecutionCrossEcosystem.
func (o *Orchestrator) isCrossChain(in *intent.Intent, entry types.FillPlanEntry) bool {
	if in.Output.ChainID != "" && in.Output.ChainID != in.Input.ChainID {
		return true
	}
	return entry.Solution.Execution.Kind == types.ExecutionCrossEcosystem
}

// proportionalOutput scales a quote's declared output down to match a
// partial AmountTaken; a quote may be only partially consumed when it is
// the last one needed to cover the remaining amount.
func proportionalOutput(fill types.ProposedFill, amountTaken uint64) uint64 {
	if fill.InputAmount == 0 || amountTaken >= fill.InputAmount {
		return fill.OutputAmount
	}
	ratio := decimal.NewFromInt(int64(amountTaken)).Div(decimal.NewFromInt(int64(fill.InputAmount)))
	return decimal.NewFromInt(int64(fill.OutputAmount)).Mul(ratio).Floor().BigInt().Uint64()
}
