// Copyright 2025 Atom Intents
//
// Package intent defines the signed intent message, its cancellation
// message, and their canonical signing-bytes construction.
package intent

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/atomintents/liquidity-engine/internal/signing"
	"github.com/atomintents/liquidity-engine/internal/types"
)

// domain tags for signing-bytes construction. Kept as raw byte slices
// because the signing bytes are a byte-for-byte concatenation, not a
// serialized struct.
var (
	domainTagIntent       = []byte("INTENT:")
	domainTagCancellation = []byte("CANCEL:")
)

// OutputSpec describes the asset the user wants to receive.
type OutputSpec struct {
	ChainID    string `json:"chain_id"`
	Denom      string `json:"denom"`
	MinAmount  uint64 `json:"min_amount"`
	LimitPrice string `json:"limit_price"` // decimal-serialized string
	Recipient  string `json:"recipient"`
}

// Intent is the signed, declarative swap request a user submits.
//
// Invariants: address(PublicKey) == User; (User, Nonce) is
// never reused; Deadline is strictly greater than the current time at
// submission. Verify checks the first; the other two are checked by the
// nonce set (internal/cancellation) and the validator (internal/validate)
// at the orchestration layer.
type Intent struct {
	ID                   string                     `json:"id"`
	User                 string                     `json:"user"`
	Nonce                uint64                     `json:"nonce"`
	Input                types.Asset                `json:"input"`
	Output               OutputSpec                 `json:"output"`
	FillConfig           types.FillConfig           `json:"fill_config"`
	ExecutionConstraints types.ExecutionConstraints `json:"execution_constraints"`
	Signature            []byte                     `json:"signature"`
	PublicKey            []byte                     `json:"public_key"`
}

// Pair returns the trading pair this intent trades, base = input denom,
// quote = output denom.
func (in *Intent) Pair() types.TradingPair {
	return types.TradingPair{Base: in.Input.Denom, Quote: in.Output.Denom}
}

// SigningBytes builds the canonical message that must be signed and
// verified for this intent:
//
//	domain-tag || id || user || nonce(LE u64) || input || output || constraints || fill_config
//
// The bytes are returned unhashed; signing.Sign and
// signing.VerifySignature take their SHA-256 digest.
//
// "input"/"output"/"constraints"/"fill_config" are each serialized with
// encoding/json, which, because none of these types contain maps,
// produces a deterministic byte sequence driven purely by Go struct
// field order, giving us canonical bytes without a separate
// canonicalization pass.
func (in *Intent) SigningBytes() ([]byte, error) {
	var buf []byte
	buf = append(buf, domainTagIntent...)
	buf = append(buf, []byte(in.ID)...)
	buf = append(buf, []byte(in.User)...)

	nonceBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(nonceBytes, in.Nonce)
	buf = append(buf, nonceBytes...)

	inputBytes, err := json.Marshal(in.Input)
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}
	buf = append(buf, inputBytes...)

	outputBytes, err := json.Marshal(in.Output)
	if err != nil {
		return nil, fmt.Errorf("marshal output: %w", err)
	}
	buf = append(buf, outputBytes...)

	constraintsBytes, err := json.Marshal(in.ExecutionConstraints)
	if err != nil {
		return nil, fmt.Errorf("marshal constraints: %w", err)
	}
	buf = append(buf, constraintsBytes...)

	fillConfigBytes, err := json.Marshal(in.FillConfig)
	if err != nil {
		return nil, fmt.Errorf("marshal fill config: %w", err)
	}
	buf = append(buf, fillConfigBytes...)

	return buf, nil
}

// Sign computes SigningBytes and signs them with privateKey, populating
// Signature and PublicKey in place.
func (in *Intent) Sign(privateKey []byte) error {
	msg, err := in.SigningBytes()
	if err != nil {
		return err
	}
	sig, err := signing.Sign(msg, privateKey)
	if err != nil {
		return err
	}
	pub, err := signing.DerivePublicKey(privateKey)
	if err != nil {
		return err
	}
	in.Signature = sig
	in.PublicKey = pub
	return nil
}

// Verify checks the intent's signature against its own PublicKey and
// recomputed SigningBytes, and additionally that PublicKey address-derives
// to User. Any violation returns signing.ErrVerificationFailed.
func (in *Intent) Verify() error {
	msg, err := in.SigningBytes()
	if err != nil {
		return err
	}
	if err := signing.VerifySignature(msg, in.Signature, in.PublicKey); err != nil {
		return err
	}
	addr, err := signing.DeriveAddress(in.PublicKey)
	if err != nil {
		return signing.ErrVerificationFailed
	}
	if addr != in.User {
		return signing.ErrVerificationFailed
	}
	return nil
}

// Cancellation is a signed request to cancel an intent that has not yet
// entered a Settlement.
type Cancellation struct {
	IntentID    string `json:"intent_id"`
	User        string `json:"user"`
	CancelledAt uint64 `json:"cancelled_at"`
	Signature   []byte `json:"signature"`
	PublicKey   []byte `json:"public_key"`
}

// SigningBytes builds the canonical cancellation message:
//
//	"CANCEL:" || intent_id || ":" || user || ":" || cancelled_at(LE-u64)
//
// The bytes are returned unhashed; signing.Sign and
// signing.VerifySignature take their SHA-256 digest.
func (c *Cancellation) SigningBytes() []byte {
	var buf []byte
	buf = append(buf, domainTagCancellation...)
	buf = append(buf, []byte(c.IntentID)...)
	buf = append(buf, ':')
	buf = append(buf, []byte(c.User)...)
	buf = append(buf, ':')

	tsBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(tsBytes, c.CancelledAt)
	buf = append(buf, tsBytes...)
	return buf
}

// Sign signs the cancellation with privateKey.
func (c *Cancellation) Sign(privateKey []byte) error {
	msg := c.SigningBytes()
	sig, err := signing.Sign(msg, privateKey)
	if err != nil {
		return err
	}
	pub, err := signing.DerivePublicKey(privateKey)
	if err != nil {
		return err
	}
	c.Signature = sig
	c.PublicKey = pub
	return nil
}

// Verify checks the cancellation's signature and user binding.
func (c *Cancellation) Verify() error {
	msg := c.SigningBytes()
	if err := signing.VerifySignature(msg, c.Signature, c.PublicKey); err != nil {
		return err
	}
	addr, err := signing.DeriveAddress(c.PublicKey)
	if err != nil {
		return signing.ErrVerificationFailed
	}
	if addr != c.User {
		return signing.ErrVerificationFailed
	}
	return nil
}
