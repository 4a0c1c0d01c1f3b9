package bloom

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Filter is a goroutine-safe in-process bloom filter over string keys.
// MayContain has no false negatives for keys added since the process
// started; a positive answer still needs an authoritative lookup.
type Filter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// New sizes the filter for capacity keys at the given false positive rate
func New(capacity uint, fpRate float64) *Filter {
	if capacity == 0 {
		capacity = 100000
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}
	return &Filter{filter: bloom.NewWithEstimates(capacity, fpRate)}
}

// Add records key
func (f *Filter) Add(key string) {
	f.mu.Lock()
	f.filter.AddString(key)
	f.mu.Unlock()
}

// MayContain reports whether key may have been added
func (f *Filter) MayContain(key string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(key)
}
