package cancellation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNonceSetTryConsumeRejectsReplay(t *testing.T) {
	s := NewNonceSet()
	require.True(t, s.TryConsume("alice", 1))
	require.False(t, s.TryConsume("alice", 1))
	require.True(t, s.IsConsumed("alice", 1))
}

func TestNonceSetIndependentPerUser(t *testing.T) {
	s := NewNonceSet()
	require.True(t, s.TryConsume("alice", 1))
	require.True(t, s.TryConsume("bob", 1))
	require.False(t, s.IsConsumed("carol", 1))
}

func TestNonceSetConcurrentTryConsumeSingleWinner(t *testing.T) {
	s := NewNonceSet()
	const workers = 50
	var wg sync.WaitGroup
	wins := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			wins[idx] = s.TryConsume("alice", 7)
		}(i)
	}
	wg.Wait()

	winCount := 0
	for _, w := range wins {
		if w {
			winCount++
		}
	}
	require.Equal(t, 1, winCount)
}
