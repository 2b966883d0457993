// Copyright 2025 Atom Intents

package cancellation

import "sync"

// NonceSet tracks, per user, which nonces have already been consumed by
// an accepted intent. TryConsume is the only mutating entry point and is
// atomic: concurrent callers racing on the same (user, nonce) pair will
// see exactly one success.
type NonceSet struct {
	mu     sync.Mutex
	nonces map[string]map[uint64]struct{}
}

// NewNonceSet creates an empty nonce set.
func NewNonceSet() *NonceSet {
	return &NonceSet{nonces: make(map[string]map[uint64]struct{})}
}

// TryConsume attempts to atomically reserve nonce for user. It returns
// true if the nonce had not yet been used (and is now consumed), or
// false if it was a replay the caller must reject.
func (s *NonceSet) TryConsume(user string, nonce uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	used, ok := s.nonces[user]
	if !ok {
		used = make(map[uint64]struct{})
		s.nonces[user] = used
	}
	if _, exists := used[nonce]; exists {
		return false
	}
	used[nonce] = struct{}{}
	return true
}

// IsConsumed reports whether nonce has already been consumed for user,
// without mutating state.
func (s *NonceSet) IsConsumed(user string, nonce uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	used, ok := s.nonces[user]
	if !ok {
		return false
	}
	_, exists := used[nonce]
	return exists
}
