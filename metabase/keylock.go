// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package metabase

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 256

// keyLocks linearizes operations per logical key without a lock per key:
// keys hash onto a fixed set of stripes. Two keys may share a stripe;
// that costs contention, never correctness.
type keyLocks struct {
	stripes []sync.Mutex
}

func newKeyLocks(n int) *keyLocks {
	return &keyLocks{stripes: make([]sync.Mutex, n)}
}

// Lock locks the stripe of the joined parts and returns the unlock.
func (locks *keyLocks) Lock(parts ...string) (unlock func()) {
	hash := fnv.New32a()
	for _, part := range parts {
		_, _ = hash.Write([]byte(part))
		_, _ = hash.Write([]byte{0})
	}
	stripe := &locks.stripes[hash.Sum32()%uint32(len(locks.stripes))]
	stripe.Lock()
	return stripe.Unlock
}
