// Copyright 2025 Atom Intents
//
// Package escrow implements per-intent fund custody: funds a user locks
// while a settlement is in flight, released to the counterparty on
// success or refunded on failure or timeout. Local escrows refund
// synchronously; cross-chain escrows refund through an IBC transfer whose
// acknowledgement drives the Refunding/Refunded/RefundFailed sub-cycle.
package escrow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atomintents/liquidity-engine/internal/kv"
	"github.com/atomintents/liquidity-engine/internal/types"
)

// Status is the discriminant of an Escrow's lifecycle state.
type Status int

const (
	StatusLocked Status = iota
	StatusReleased
	StatusRefunded
	StatusRefunding
	StatusRefundFailed
)

func (s Status) String() string {
	switch s {
	case StatusLocked:
		return "locked"
	case StatusReleased:
		return "released"
	case StatusRefunded:
		return "refunded"
	case StatusRefunding:
		return "refunding"
	case StatusRefundFailed:
		return "refund_failed"
	default:
		return "unknown"
	}
}

// Escrow is a single locked-funds record. CrossChain fields are populated
// only when the escrow was created via LockFromIbc. Remaining tracks how
// much of Asset.Amount is still held: a fill plan that splits one intent
// across several solvers releases this escrow in portions, one per
// settlement, rather than all at once.
type Escrow struct {
	ID        string      `json:"id"`
	Owner     string      `json:"owner"`
	Asset     types.Asset `json:"asset"`
	IntentID  string      `json:"intent_id"`
	ExpiresAt int64       `json:"expires_at"`
	Status    Status      `json:"status"`
	Remaining uint64      `json:"remaining"`
	Recipient string      `json:"recipient,omitempty"`

	OwnerChainID       string `json:"owner_chain_id,omitempty"`
	OwnerSourceAddress string `json:"owner_source_address,omitempty"`
	SourceChannel      string `json:"source_channel,omitempty"`
	SourceDenom        string `json:"source_denom,omitempty"`
}

// CrossChain reports whether this escrow was funded via IBC hooks rather
// than a local deposit.
func (e *Escrow) CrossChain() bool {
	return e.OwnerChainID != ""
}

// Expired reports whether the escrow's deadline has passed as of now.
func (e *Escrow) Expired(now time.Time) bool {
	return now.Unix() >= e.ExpiresAt
}

// Config carries the store's runtime dependencies.
type Config struct {
	KV     kv.KV
	Logger Logger
}

// Logger is the minimal logging surface the store needs; *log.Logger
// satisfies it directly.
type Logger interface {
	Printf(format string, v ...interface{})
}

const (
	prefixEscrows     = "escrows/"
	prefixUserEscrows = "user_escrows/"
	prefixByIntent    = "escrows_by_intent/"
)

func escrowKey(id string) []byte {
	return []byte(prefixEscrows + id)
}

func userEscrowKey(owner, id string) []byte {
	return []byte(prefixUserEscrows + owner + "/" + id)
}

func userEscrowPrefix(owner string) []byte {
	return []byte(prefixUserEscrows + owner + "/")
}

func byIntentKey(intentID string) []byte {
	return []byte(prefixByIntent + intentID)
}

// Store persists Escrows and two secondary indexes:
// user_escrows/{addr}/{id} and escrows_by_intent/{intent_id}.
type Store struct {
	kv     kv.KV
	logger Logger
}

// NewStore creates an escrow Store over cfg.KV.
func NewStore(cfg Config) *Store {
	return &Store{kv: cfg.KV, logger: cfg.Logger}
}

func (s *Store) logf(format string, v ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, v...)
	}
}

func (s *Store) save(e *Escrow) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal escrow: %w", err)
	}
	if err := s.kv.Set(escrowKey(e.ID), data); err != nil {
		return fmt.Errorf("persist escrow: %w", err)
	}
	if err := s.kv.Set(userEscrowKey(e.Owner, e.ID), []byte{1}); err != nil {
		return fmt.Errorf("persist user index: %w", err)
	}
	if err := s.kv.Set(byIntentKey(e.IntentID), []byte(e.ID)); err != nil {
		return fmt.Errorf("persist intent index: %w", err)
	}
	return nil
}

// Get loads an escrow by ID.
func (s *Store) Get(id string) (*Escrow, error) {
	data, err := s.kv.Get(escrowKey(id))
	if err != nil {
		return nil, fmt.Errorf("load escrow: %w", err)
	}
	if data == nil {
		return nil, &NotFoundError{ID: id}
	}
	var e Escrow
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal escrow: %w", err)
	}
	return &e, nil
}

// ByIntent returns the escrow associated with intentID, if any.
func (s *Store) ByIntent(intentID string) (*Escrow, error) {
	id, err := s.kv.Get(byIntentKey(intentID))
	if err != nil {
		return nil, fmt.Errorf("load intent index: %w", err)
	}
	if id == nil {
		return nil, &NotFoundError{ID: intentID}
	}
	return s.Get(string(id))
}

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

// ByUser returns escrows owned by owner, in key (id) order, starting
// strictly after startAfter (pass "" for the first page) and capped at
// limit (limit<=0 defaults to 30, limit>100 is capped at 100).
func (s *Store) ByUser(owner, startAfter string, limit int) ([]*Escrow, error) {
	limit = clampLimit(limit)

	it, err := s.kv.Iterator(userEscrowPrefix(owner))
	if err != nil {
		return nil, fmt.Errorf("iterate user escrows: %w", err)
	}
	defer it.Close()

	var out []*Escrow
	prefix := userEscrowPrefix(owner)
	for ; it.Valid() && len(out) < limit; it.Next() {
		id := string(it.Key()[len(prefix):])
		if startAfter != "" && id <= startAfter {
			continue
		}
		e, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate user escrows: %w", err)
	}
	return out, nil
}

// Lock creates a new Locked escrow funded locally (no cross-chain fields).
// It enforces the "at most one escrow per intent_id" invariant.
func (s *Store) Lock(id, owner string, asset types.Asset, intentID string, expiresAt int64) (*Escrow, error) {
	if existing, err := s.kv.Get(byIntentKey(intentID)); err != nil {
		return nil, fmt.Errorf("check intent index: %w", err)
	} else if existing != nil {
		return nil, &AlreadyExistsError{IntentID: intentID, EscrowID: string(existing)}
	}

	e := &Escrow{
		ID:        id,
		Owner:     owner,
		Asset:     asset,
		IntentID:  intentID,
		ExpiresAt: expiresAt,
		Status:    StatusLocked,
		Remaining: asset.Amount,
	}
	if err := s.save(e); err != nil {
		return nil, err
	}
	s.logf("escrow %s locked for intent %s, amount %s", id, intentID, asset.String())
	return e, nil
}

// IbcEscrowID derives the deterministic escrow id used for an IBC-funded
// intent, so a retried deposit for the same intent resolves to the same
// escrow instead of minting a second id.
func IbcEscrowID(intentID string) string {
	sum := sha256.Sum256([]byte("ibc_escrow/" + intentID))
	return hex.EncodeToString(sum[:16])
}

// canonicalAddress normalizes a remote-chain address for use as an escrow
// owner key. Bech32 addresses are case-insensitive in practice; storing
// the trimmed lowercase form keeps the user index stable across clients.
func canonicalAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// LockFromIbc creates a new Locked escrow that arrived via an IBC hooks
// deposit, recording the cross-chain fields needed to route a refund back
// to the source chain. The escrow id is derived from the intent id via
// IbcEscrowID, and the owner is the canonicalized source address.
func (s *Store) LockFromIbc(asset types.Asset, intentID string, expiresAt int64, sourceAddress, sourceChainID, sourceChannel string) (*Escrow, error) {
	if existing, err := s.kv.Get(byIntentKey(intentID)); err != nil {
		return nil, fmt.Errorf("check intent index: %w", err)
	} else if existing != nil {
		return nil, &AlreadyExistsError{IntentID: intentID, EscrowID: string(existing)}
	}

	id := IbcEscrowID(intentID)
	owner := canonicalAddress(sourceAddress)
	e := &Escrow{
		ID:                 id,
		Owner:              owner,
		Asset:              asset,
		IntentID:           intentID,
		ExpiresAt:          expiresAt,
		Status:             StatusLocked,
		Remaining:          asset.Amount,
		OwnerChainID:       sourceChainID,
		OwnerSourceAddress: sourceAddress,
		SourceChannel:      sourceChannel,
		SourceDenom:        asset.Denom,
	}
	if err := s.save(e); err != nil {
		return nil, err
	}
	s.logf("escrow %s locked from ibc for intent %s, source chain %s", id, intentID, sourceChainID)
	return e, nil
}

// Release pays amount of a Locked escrow's remaining balance to
// recipient. Only Locked escrows may be released. When amount covers
// everything still held, the escrow transitions to Released; otherwise
// it stays Locked with its Remaining reduced, so a fill plan that splits
// one intent across several solver settlements can release the same
// escrow once per settlement.
func (s *Store) Release(id, recipient string, amount uint64) (*Escrow, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusLocked {
		return nil, fmt.Errorf("%w: cannot release from %s", ErrInvalidTransition, e.Status)
	}
	if amount > e.Remaining {
		return nil, fmt.Errorf("%w: release of %d exceeds remaining %d", ErrInsufficientFunds, amount, e.Remaining)
	}
	e.Remaining -= amount
	e.Recipient = recipient
	if e.Remaining == 0 {
		e.Status = StatusReleased
	}
	if err := s.save(e); err != nil {
		return nil, err
	}
	s.logf("escrow %s released %d to %s (%d remaining)", id, amount, recipient, e.Remaining)
	return e, nil
}

// Refund transitions a Locked escrow towards its owner, and only once now
// has reached the escrow's ExpiresAt. Local escrows go straight to
// Refunded; cross-chain escrows move to Refunding, pending an IBC
// acknowledgement (see CompleteRefund/FailRefund).
func (s *Store) Refund(id string, now time.Time) (*Escrow, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusLocked {
		return nil, fmt.Errorf("%w: cannot refund from %s", ErrInvalidTransition, e.Status)
	}
	if !e.Expired(now) {
		return nil, &NotExpiredError{ID: id}
	}
	return s.doRefund(e)
}

// ForceRefund performs the same Locked -> Refunded/Refunding transition as
// Refund but skips the ExpiresAt gate. It exists for settlement recovery,
// which must be able to unwind a lock immediately when a settlement fails
// rather than wait for the escrow's own deadline. Only recovery logic
// should call this; user-facing timeout refunds go through Refund, which
// still enforces the deadline.
func (s *Store) ForceRefund(id string) (*Escrow, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusLocked {
		return nil, fmt.Errorf("%w: cannot refund from %s", ErrInvalidTransition, e.Status)
	}
	return s.doRefund(e)
}

func (s *Store) doRefund(e *Escrow) (*Escrow, error) {
	if e.CrossChain() {
		e.Status = StatusRefunding
	} else {
		e.Status = StatusRefunded
	}
	if err := s.save(e); err != nil {
		return nil, err
	}
	s.logf("escrow %s refund initiated, status now %s", e.ID, e.Status)
	return e, nil
}

// CompleteRefund marks a Refunding cross-chain escrow as Refunded once the
// IBC transfer is acknowledged.
func (s *Store) CompleteRefund(id string) (*Escrow, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusRefunding {
		return nil, fmt.Errorf("%w: cannot complete refund from %s", ErrInvalidTransition, e.Status)
	}
	e.Status = StatusRefunded
	if err := s.save(e); err != nil {
		return nil, err
	}
	s.logf("escrow %s refund completed", id)
	return e, nil
}

// FailRefund marks a Refunding cross-chain escrow as RefundFailed after an
// IBC timeout or error acknowledgement.
func (s *Store) FailRefund(id string) (*Escrow, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusRefunding {
		return nil, fmt.Errorf("%w: cannot fail refund from %s", ErrInvalidTransition, e.Status)
	}
	e.Status = StatusRefundFailed
	if err := s.save(e); err != nil {
		return nil, err
	}
	s.logf("escrow %s refund failed, awaiting retry", id)
	return e, nil
}

// RetryRefund re-attempts an IBC refund for an escrow stuck in
// RefundFailed, moving it back to Refunding.
func (s *Store) RetryRefund(id string) (*Escrow, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusRefundFailed {
		return nil, fmt.Errorf("%w: cannot retry refund from %s", ErrInvalidTransition, e.Status)
	}
	if !e.CrossChain() {
		return nil, ErrNotCrossChain
	}
	e.Status = StatusRefunding
	if err := s.save(e); err != nil {
		return nil, err
	}
	s.logf("escrow %s refund retried", id)
	return e, nil
}
