// Copyright 2025 Atom Intents
//
// Package kv defines the storage abstraction every stateful component in
// this engine (escrow, settlement, reputation) is built on: a minimal
// Get/Set/Delete surface plus an ascending prefix Iterator, backed by a
// CometBFT dbm.DB in production and by its MemDB in tests.
package kv

import (
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
)

// KV is the storage interface every component in this module depends on.
// Implementations must be safe for concurrent Get/Set/Delete; callers that
// need read-modify-write atomicity coordinate with their own locking.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Iterator returns an ascending iterator over all keys sharing prefix.
	// The returned Iterator must be closed by the caller.
	Iterator(prefix []byte) (Iterator, error)
}

// Iterator walks a key range in ascending order.
type Iterator interface {
	Valid() bool
	Next()
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// Adapter wraps a CometBFT dbm.DB and exposes it as KV.
type Adapter struct {
	db dbm.DB
}

// NewAdapter creates a KV backed by an already-open dbm.DB (GoLevelDB,
// MemDB, RocksDB). Selecting and opening the concrete engine is the
// caller's responsibility; that choice belongs to deployment, not to
// this module.
func NewAdapter(db dbm.DB) *Adapter {
	return &Adapter{db: db}
}

// Get implements KV.
func (a *Adapter) Get(key []byte) ([]byte, error) {
	v, err := a.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("kv get: %w", err)
	}
	return v, nil
}

// Set implements KV. Writes are durable (SetSync): settlement and escrow
// state must survive a crash between accepting a write and acknowledging
// the caller.
func (a *Adapter) Set(key, value []byte) error {
	if err := a.db.SetSync(key, value); err != nil {
		return fmt.Errorf("kv set: %w", err)
	}
	return nil
}

// Delete implements KV.
func (a *Adapter) Delete(key []byte) error {
	if err := a.db.DeleteSync(key); err != nil {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}

// Iterator implements KV.
func (a *Adapter) Iterator(prefix []byte) (Iterator, error) {
	end := prefixUpperBound(prefix)
	it, err := a.db.Iterator(prefix, end)
	if err != nil {
		return nil, fmt.Errorf("kv iterator: %w", err)
	}
	return &dbIterator{it: it}, nil
}

// prefixUpperBound returns the smallest key that is strictly greater than
// every key with the given prefix, i.e. prefix with its last byte
// incremented (carrying as needed). A nil result means "no upper bound"
// (prefix was all 0xFF bytes or empty), which cometbft-db treats as
// "iterate to the end of the keyspace".
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

type dbIterator struct {
	it dbm.Iterator
}

func (d *dbIterator) Valid() bool   { return d.it.Valid() }
func (d *dbIterator) Next()         { d.it.Next() }
func (d *dbIterator) Key() []byte   { return d.it.Key() }
func (d *dbIterator) Value() []byte { return d.it.Value() }
func (d *dbIterator) Error() error  { return d.it.Error() }
func (d *dbIterator) Close() error  { return d.it.Close() }
