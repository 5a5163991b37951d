// Package keylock provides striped per-key mutual exclusion. Keys hashing to
// the same stripe share a mutex, so unrelated keys only contend on collisions.
//
// Stripes are not reentrant: a caller holding one stripe must not acquire
// another, since two keys may map to the same mutex.
package keylock

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultStripes is used when New is given a non-positive count.
const DefaultStripes = 256

type stripe struct {
	sync.Mutex
	_ [56]byte
}

// Striped is a fixed array of mutexes indexed by key hash.
type Striped struct {
	stripes []stripe
	mask    uint64
}

// New returns a Striped with n stripes rounded up to a power of two.
func New(n int) *Striped {
	if n <= 0 {
		n = DefaultStripes
	}
	size := 1
	for size < n {
		size <<= 1
	}
	return &Striped{stripes: make([]stripe, size), mask: uint64(size - 1)}
}

// Lock acquires the stripe for key and returns its unlock function.
func (s *Striped) Lock(key string) func() {
	m := &s.stripes[xxhash.Sum64String(key)&s.mask]
	m.Lock()
	return m.Unlock
}

// With runs fn while holding the stripe for key.
func (s *Striped) With(key string, fn func()) {
	unlock := s.Lock(key)
	defer unlock()
	fn()
}
