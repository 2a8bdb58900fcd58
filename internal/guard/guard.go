// Package guard provides the in-flight set that keeps one process from
// cloning the same product twice at the same time.
//
// The guard is process-local. Two processes, or two machines, sharing one
// ledger are not protected; deployments run a single engine process.
package guard

import (
	"sort"
	"sync"
)

// InFlight is a mutex-protected set of product keys currently being worked on.
// The zero value is not usable; call New.
type InFlight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// New creates an empty in-flight set.
func New() *InFlight {
	return &InFlight{keys: make(map[string]struct{})}
}

// TryAcquire adds key and reports true iff it was not already held.
func (g *InFlight) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.keys[key]; held {
		return false
	}
	g.keys[key] = struct{}{}
	return true
}

// Release removes key. Releasing a key that is not held is a no-op.
func (g *InFlight) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
}

// Held reports whether key is currently acquired.
func (g *InFlight) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.keys[key]
	return held
}

// Snapshot returns the held keys in sorted order.
func (g *InFlight) Snapshot() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.keys))
	for k := range g.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
