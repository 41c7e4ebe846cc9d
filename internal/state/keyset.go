// Package state tracks which crawl keys have already been accepted during a run.
package state

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// KeySet remembers unique request keys in an exact set. The Bloom filter is
// only a fast-path prefilter in front of the map: a negative test skips the
// map lookup, and every answer is decided by the exact set.
type KeySet struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
	fpRate float64
}

// NewKeySet creates a key set sized for roughly estimatedItems keys.
func NewKeySet(estimatedItems int) *KeySet {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	fpRate := 0.001

	return &KeySet{
		filter: bloom.NewWithEstimates(uint(estimatedItems), fpRate),
		exact:  make(map[string]struct{}),
		fpRate: fpRate,
	}
}

// Claim records key and reports whether it was new.
// A key can be claimed successfully only once per run.
func (s *KeySet) Claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filter.TestString(key) {
		if _, exists := s.exact[key]; exists {
			return false
		}
	}

	s.filter.AddString(key)
	s.exact[key] = struct{}{}
	return true
}

// Has reports whether key was claimed before.
func (s *KeySet) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Bloom says no: definitely unseen.
	if !s.filter.TestString(key) {
		return false
	}

	_, exists := s.exact[key]
	return exists
}

// Len returns the number of distinct keys claimed.
func (s *KeySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.exact)
}

// Keys returns every claimed key in no particular order.
func (s *KeySet) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.exact))
	for k := range s.exact {
		keys = append(keys, k)
	}
	return keys
}

// Reset forgets all keys.
func (s *KeySet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filter.ClearAll()
	s.exact = make(map[string]struct{})
}

// FalsePositiveRate returns the configured Bloom filter false positive rate.
func (s *KeySet) FalsePositiveRate() float64 {
	return s.fpRate
}
