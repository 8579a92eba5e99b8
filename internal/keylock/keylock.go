// Package keylock provides per-entity mutual exclusion over a fixed set of
// striped mutexes. Keys hash to a stripe with xxhash, so unrelated keys may
// share a stripe: never hold two keys of the same Locker at once.
package keylock

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultStripes = 256

// Locker serializes work per key
type Locker struct {
	stripes []sync.Mutex
}

// New creates a Locker with n stripes (256 when n <= 0)
func New(n int) *Locker {
	if n <= 0 {
		n = defaultStripes
	}
	return &Locker{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its unlock function
func (l *Locker) Lock(key string) func() {
	m := &l.stripes[xxhash.Sum64String(key)%uint64(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
