// Copyright 2025 Atom Intents

package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/atomintents/liquidity-engine/internal/ibc"
	"github.com/atomintents/liquidity-engine/internal/intent"
	"github.com/atomintents/liquidity-engine/internal/settlement"
)

// CancelIntent verifies a signed cancellation and, if the intent has no
// settlement against it in any state other than Failed, registers the
// cancellation and drops any resting order from the crossing book.
func (o *Orchestrator) CancelIntent(c *intent.Cancellation) error {
	if err := c.Verify(); err != nil {
		return &RejectedError{Stage: "verify_cancellation", Err: err}
	}

	settlements, err := o.cfg.Settlements.ByIntentAll(c.IntentID)
	if err != nil {
		var notFound *settlement.NotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	for _, st := range settlements {
		if st.Status.Kind != settlement.Failed {
			return &RejectedError{Stage: "cancel", Err: fmt.Errorf("settlement %s exists for intent %s", st.ID, c.IntentID)}
		}
	}

	o.cfg.Cancellations.Register(c.IntentID)
	o.cfg.Book.Remove(c.IntentID)
	return nil
}

// HandleIbcAck resolves a cross-chain settlement once its transfer
// acknowledges or times out. On success the settlement completes and the
// escrow portion held for it is released to the solver; on failure the
// settlement fails and is slashed, and whatever escrow remains
// undisbursed for the intent is force-refunded rather than re-attempting
// the match for just this sub-fill.
func (o *Orchestrator) HandleIbcAck(res ibc.AckResult) error {
	st, err := o.cfg.Settlements.Get(res.SettlementID)
	if err != nil {
		return err
	}

	if res.Success {
		if _, err := o.cfg.Settlements.MarkCompleted(res.SettlementID, res.SettlementID+":ack", 0); err != nil {
			return err
		}
		if _, err := o.cfg.Escrows.Release(st.EscrowID, st.SolverID, st.UserInputAmount); err != nil {
			// The solver delivered the output but its escrow payout could
			// not be applied. Nothing downstream can repair this; surface
			// it as loudly as possible for operator intervention.
			alarm := &InvariantAlarmError{
				SettlementID: res.SettlementID,
				Detail:       fmt.Sprintf("solver output delivered but escrow %s release failed: %v", st.EscrowID, err),
			}
			o.cfg.logf("INVARIANT ALARM: %v", alarm)
			return alarm
		}
		return nil
	}

	if _, err := o.cfg.Settlements.MarkFailed(res.SettlementID, res.Reason, res.SettlementID+":ack"); err != nil {
		return err
	}
	if _, err := o.cfg.Escrows.ForceRefund(st.EscrowID); err != nil {
		return fmt.Errorf("refund escrow on ack failure: %w", err)
	}
	// The solver's bond was already locked and it failed to deliver:
	// this always qualifies for a slash.
	if _, _, err := o.cfg.Settlements.Slash(res.SettlementID, res.SettlementID+":slash"); err != nil {
		return fmt.Errorf("slash after ack failure: %w", err)
	}
	return nil
}

// Sweep fails every non-terminal settlement whose ExpiresAt has passed,
// force-refunds whatever escrow remains undisbursed for it, and slashes
// the solver when it had already locked bond (SolverLocked or Executing)
// by the time the deadline passed: a solver that committed and then let
// the trade expire is treated the same as one whose delivery failed. It
// returns the number of settlements swept.
func (o *Orchestrator) Sweep(now time.Time) (int, error) {
	inflight, err := o.cfg.Settlements.AllInflight()
	if err != nil {
		return 0, fmt.Errorf("list inflight settlements: %w", err)
	}

	swept := 0
	for _, st := range inflight {
		if st.ExpiresAt > now.Unix() {
			continue
		}
		if st.Status.Kind == settlement.Failed {
			continue // already failed; nothing further to sweep
		}
		solverWasCommitted := st.Status.Kind == settlement.SolverLocked || st.Status.Kind == settlement.Executing
		if _, err := o.cfg.Settlements.MarkFailed(st.ID, "expired", st.ID+":sweep"); err != nil {
			o.cfg.logf("sweep: settlement %s failed to transition: %v", st.ID, err)
			continue
		}
		if st.EscrowID != "" {
			if _, err := o.cfg.Escrows.ForceRefund(st.EscrowID); err != nil {
				o.cfg.logf("sweep: settlement %s escrow refund failed: %v", st.ID, err)
			}
		}
		if solverWasCommitted {
			if _, _, err := o.cfg.Settlements.Slash(st.ID, st.ID+":sweep_slash"); err != nil {
				o.cfg.logf("sweep: settlement %s slash failed: %v", st.ID, err)
			}
		}
		swept++
	}
	return swept, nil
}

// CheckMigrationGuard exposes the settlement store's migration guard
// through the orchestrator, so callers don't need to reach into the
// settlement package directly.
func (o *Orchestrator) CheckMigrationGuard() error {
	return o.cfg.Settlements.CheckMigrationGuard()
}
