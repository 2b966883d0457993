package escrow

import (
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/atomintents/liquidity-engine/internal/kv"
	"github.com/atomintents/liquidity-engine/internal/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(Config{KV: kv.NewAdapter(dbm.NewMemDB())})
}

func sampleAsset() types.Asset {
	return types.Asset{ChainID: "cosmoshub-4", Denom: "uatom", Amount: 1000}
}

func TestLockThenRelease(t *testing.T) {
	s := newTestStore(t)
	e, err := s.Lock("escrow-1", "user-1", sampleAsset(), "intent-1", 9999999999)
	require.NoError(t, err)
	require.Equal(t, StatusLocked, e.Status)

	released, err := s.Release("escrow-1", "solver-1", 1000)
	require.NoError(t, err)
	require.Equal(t, StatusReleased, released.Status)
	require.Equal(t, "solver-1", released.Recipient)
	require.Equal(t, uint64(0), released.Remaining)
}

func TestPartialReleaseStaysLockedUntilRemainingIsZero(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Lock("escrow-1", "user-1", sampleAsset(), "intent-1", 9999999999)
	require.NoError(t, err)

	partial, err := s.Release("escrow-1", "solver-1", 600)
	require.NoError(t, err)
	require.Equal(t, StatusLocked, partial.Status)
	require.Equal(t, uint64(400), partial.Remaining)

	complete, err := s.Release("escrow-1", "solver-2", 400)
	require.NoError(t, err)
	require.Equal(t, StatusReleased, complete.Status)
	require.Equal(t, uint64(0), complete.Remaining)
}

func TestReleaseRejectsAmountAboveRemaining(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Lock("escrow-1", "user-1", sampleAsset(), "intent-1", 9999999999)
	require.NoError(t, err)

	_, err = s.Release("escrow-1", "solver-1", 1001)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestLockDuplicateIntentRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Lock("escrow-1", "user-1", sampleAsset(), "intent-1", 9999999999)
	require.NoError(t, err)

	_, err = s.Lock("escrow-2", "user-1", sampleAsset(), "intent-1", 9999999999)
	require.Error(t, err)
	var alreadyExists *AlreadyExistsError
	require.ErrorAs(t, err, &alreadyExists)
	require.Equal(t, "escrow-1", alreadyExists.EscrowID)
}

func TestGetMissingEscrow(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("does-not-exist")
	require.Error(t, err)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestReleaseOnlyFromLocked(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Lock("escrow-1", "user-1", sampleAsset(), "intent-1", 9999999999)
	require.NoError(t, err)
	_, err = s.Release("escrow-1", "solver-1", 1000)
	require.NoError(t, err)

	_, err = s.Release("escrow-1", "solver-2", 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRefundBeforeExpiryRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Lock("escrow-1", "user-1", sampleAsset(), "intent-1", 9999999999)
	require.NoError(t, err)

	_, err = s.Refund("escrow-1", time.Now())
	require.Error(t, err)
	var notExpired *NotExpiredError
	require.ErrorAs(t, err, &notExpired)
}

func TestLocalRefundGoesStraightToRefunded(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Lock("escrow-1", "user-1", sampleAsset(), "intent-1", 1)
	require.NoError(t, err)

	refunded, err := s.Refund("escrow-1", time.Now())
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, refunded.Status)
}

func TestCrossChainRefundLifecycle(t *testing.T) {
	s := newTestStore(t)
	e, err := s.LockFromIbc(sampleAsset(), "intent-1", 1, "Celestia1ABC ", "celestia", "channel-0")
	require.NoError(t, err)
	require.Equal(t, IbcEscrowID("intent-1"), e.ID)
	require.Equal(t, "celestia1abc", e.Owner, "owner is the canonicalized source address")
	require.Equal(t, "Celestia1ABC ", e.OwnerSourceAddress, "original source address preserved for refunds")

	refunding, err := s.Refund(e.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, StatusRefunding, refunding.Status)

	failed, err := s.FailRefund(e.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRefundFailed, failed.Status)

	retried, err := s.RetryRefund(e.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRefunding, retried.Status)

	completed, err := s.CompleteRefund(e.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, completed.Status)
}

func TestRetryRefundRejectedForLocalEscrow(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Lock("escrow-1", "user-1", sampleAsset(), "intent-1", 1)
	require.NoError(t, err)
	_, err = s.Refund("escrow-1", time.Now())
	require.NoError(t, err)

	// Local escrows go straight to Refunded, never RefundFailed, so retry
	// is never legal: this pins the invalid-transition path down.
	_, err = s.RetryRefund("escrow-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestByUserListsAllOwnedEscrows(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Lock("escrow-1", "user-1", sampleAsset(), "intent-1", 9999999999)
	require.NoError(t, err)
	_, err = s.Lock("escrow-2", "user-1", sampleAsset(), "intent-2", 9999999999)
	require.NoError(t, err)
	_, err = s.Lock("escrow-3", "user-2", sampleAsset(), "intent-3", 9999999999)
	require.NoError(t, err)

	escrows, err := s.ByUser("user-1", "", 0)
	require.NoError(t, err)
	require.Len(t, escrows, 2)
}

func TestByUserPaginatesWithStartAfterAndLimit(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Lock("escrow-1", "user-1", sampleAsset(), "intent-1", 9999999999)
	require.NoError(t, err)
	_, err = s.Lock("escrow-2", "user-1", sampleAsset(), "intent-2", 9999999999)
	require.NoError(t, err)
	_, err = s.Lock("escrow-3", "user-1", sampleAsset(), "intent-3", 9999999999)
	require.NoError(t, err)

	page, err := s.ByUser("user-1", "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "escrow-1", page[0].ID)
	require.Equal(t, "escrow-2", page[1].ID)

	rest, err := s.ByUser("user-1", "escrow-2", 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "escrow-3", rest[0].ID)
}

func TestByIntentLookup(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Lock("escrow-1", "user-1", sampleAsset(), "intent-1", 9999999999)
	require.NoError(t, err)

	e, err := s.ByIntent("intent-1")
	require.NoError(t, err)
	require.Equal(t, "escrow-1", e.ID)
}
