package arpcache

import (
	"math/rand"
	"sync"
	"time"
)

var (
	defaultRandMu     sync.Mutex
	defaultRandSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// defaultRand returns a pseudorandom int in [0, n), used by InsertMac's
// random-eviction policy when the cache is full. Not cryptographic: this
// only needs to spread evictions across slots, not resist prediction.
func defaultRand(n int) int {
	defaultRandMu.Lock()
	defer defaultRandMu.Unlock()
	return defaultRandSource.Intn(n)
}
