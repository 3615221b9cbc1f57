package memorystore

import (
	"sort"
	"sync"
)

// MemoryPriceStore keeps one observation per symbol; the last write wins.
type MemoryPriceStore struct {
	mu   sync.RWMutex
	data map[string]PriceObservation
}

func NewPriceStore() *MemoryPriceStore {
	return &MemoryPriceStore{
		data: make(map[string]PriceObservation),
	}
}

// Set overwrites the entry for symbol. No history is kept.
func (s *MemoryPriceStore) Set(symbol string, obs PriceObservation) {
	obs.Symbol = symbol

	s.mu.Lock()
	s.data[symbol] = obs
	s.mu.Unlock()
}

func (s *MemoryPriceStore) Get(symbol string) (PriceObservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs, ok := s.data[symbol]
	return obs, ok
}

// Snapshot copies every entry, sorted by symbol. Entries are not cleared.
func (s *MemoryPriceStore) Snapshot() []PriceObservation {
	s.mu.RLock()
	out := make([]PriceObservation, 0, len(s.data))
	for _, obs := range s.data {
		out = append(out, obs)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len returns the number of symbols currently cached.
func (s *MemoryPriceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
