// Copyright 2025 Atom Intents

package settlement

import (
	"encoding/json"
	"fmt"
)

// CheckMigrationGuard counts settlements in a non-terminal state and
// returns MigrationBlockedError if any exist; bulk migration must not
// proceed while settlements are inflight. It returns nil when migration
// may safely proceed.
func (s *Store) CheckMigrationGuard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.kv.Iterator([]byte(prefixSettlements))
	if err != nil {
		return fmt.Errorf("iterate settlements: %w", err)
	}
	defer it.Close()

	count := 0
	for ; it.Valid(); it.Next() {
		var st Settlement
		if err := json.Unmarshal(it.Value(), &st); err != nil {
			return fmt.Errorf("unmarshal settlement: %w", err)
		}
		if _, inflight := nonTerminalKinds[st.Status.Kind]; inflight {
			count++
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("iterate settlements: %w", err)
	}
	if count > 0 {
		return &MigrationBlockedError{InflightCount: count}
	}
	return nil
}
