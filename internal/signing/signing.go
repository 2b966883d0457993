// Copyright 2025 Atom Intents
//
// Package signing wraps the secp256k1 ECDSA sign/verify primitives and
// the SHA-256/RIPEMD-160 address derivation used for intent and
// cancellation messages. It implements no elliptic-curve math of its
// own; all secp256k1 operations are delegated to
// github.com/ethereum/go-ethereum/crypto.
package signing

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // addresses are RIPEMD160(SHA256(pubkey))
)

// ErrVerificationFailed is returned whenever a signature fails to verify,
// whether due to tampering, a malformed key, or a key/address mismatch.
var ErrVerificationFailed = errors.New("signature verification failed")

// Digest hashes an arbitrary message with SHA-256, the digest both
// intent and cancellation signatures are computed over.
func Digest(message []byte) [32]byte {
	return sha256.Sum256(message)
}

// Sign produces a 64-byte (R || S) secp256k1 signature over the SHA-256
// digest of message. privateKey must be a 32-byte secp256k1 scalar.
func Sign(message []byte, privateKey []byte) ([]byte, error) {
	priv, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	digest := Digest(message)
	sig, err := crypto.Sign(digest[:], priv)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	// crypto.Sign returns a 65-byte signature (R || S || V); the recovery
	// byte is not part of the signed payload we persist or verify against.
	return sig[:64], nil
}

// DerivePublicKey returns the compressed SEC1 public key (33 bytes)
// corresponding to privateKey.
func DerivePublicKey(privateKey []byte) ([]byte, error) {
	priv, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return crypto.CompressPubkey(&priv.PublicKey), nil
}

// VerifySignature checks a 64-byte (R || S) secp256k1 signature over the
// SHA-256 digest of message, against a compressed SEC1 public key. It
// returns ErrVerificationFailed (never a raw library error) on any
// tamper, malformed key, or mismatch.
func VerifySignature(message, signature, compressedPubKey []byte) error {
	if len(signature) != 64 {
		return ErrVerificationFailed
	}
	pub, err := crypto.DecompressPubkey(compressedPubKey)
	if err != nil {
		return ErrVerificationFailed
	}
	digest := Digest(message)
	uncompressed := crypto.FromECDSAPub(pub)
	if !crypto.VerifySignature(uncompressed, digest[:], signature) {
		return ErrVerificationFailed
	}
	return nil
}

// DeriveAddress computes the chain-agnostic address for a compressed
// SEC1 public key as RIPEMD160(SHA256(pubkey)), hex-encoded.
func DeriveAddress(compressedPubKey []byte) (string, error) {
	sha := sha256.Sum256(compressedPubKey)
	h := ripemd160.New()
	if _, err := h.Write(sha[:]); err != nil {
		return "", fmt.Errorf("ripemd160: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// AddressFromPrivateKey is a convenience combining DerivePublicKey and
// DeriveAddress, used by tests and callers that only hold a private key.
func AddressFromPrivateKey(privateKey []byte) (string, error) {
	pub, err := DerivePublicKey(privateKey)
	if err != nil {
		return "", err
	}
	return DeriveAddress(pub)
}
