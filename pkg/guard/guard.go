// Package guard serializes work per asset inside one process. It never blocks: a caller that cannot acquire an
// asset skips it and lets a later poll tick rediscover it.
package guard

import (
	"fmt"
	"sync"
)

type Guard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func New() *Guard {
	return &Guard{held: make(map[string]struct{})}
}

// TryAcquire marks assetID as in flight. It returns false if it already was.
func (g *Guard) TryAcquire(assetID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[assetID]; ok {
		return false
	}
	g.held[assetID] = struct{}{}
	return true
}

// Release frees assetID. Releasing an asset that is not held is a programming error.
func (g *Guard) Release(assetID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[assetID]; !ok {
		panic(fmt.Sprintf("guard: release of unheld asset %q", assetID))
	}
	delete(g.held, assetID)
}

// WithLock runs fn while holding assetID. If the asset is busy fn is not run and acquired is false. The asset is
// released on every exit path of fn, panics included.
func (g *Guard) WithLock(assetID string, fn func() error) (acquired bool, err error) {
	if !g.TryAcquire(assetID) {
		return false, nil
	}
	defer g.Release(assetID)
	return true, fn()
}

// Held returns the number of assets currently in flight.
func (g *Guard) Held() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}
