package memorystore

import "sync"

// MemoryPairStore holds the active trading pairs of the current refresh cycle.
// The set is only ever replaced as a whole.
type MemoryPairStore struct {
	mu    sync.RWMutex
	pairs []TradingPair
}

func NewPairStore() *MemoryPairStore {
	return &MemoryPairStore{
		pairs: make([]TradingPair, 0),
	}
}

// Replace swaps in a new pair set. The caller must not modify pairs afterwards.
func (s *MemoryPairStore) Replace(pairs []TradingPair) {
	cp := make([]TradingPair, len(pairs))
	copy(cp, pairs)

	s.mu.Lock()
	s.pairs = cp
	s.mu.Unlock()
}

// Snapshot returns a point-in-time copy in load order.
func (s *MemoryPairStore) Snapshot() []TradingPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TradingPair, len(s.pairs))
	copy(out, s.pairs)
	return out
}

func (s *MemoryPairStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pairs)
}
