package executor

import "sync"

// inflight enforces at most one running attempt per matched pair. Attempts on
// distinct pairs proceed concurrently; a second opportunity for a pair whose
// attempt is still running is dropped, never queued.
type inflight struct {
	mu    sync.Mutex
	pairs map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{pairs: make(map[string]struct{})}
}

// tryAcquire claims the pair. False means an attempt is already running.
func (f *inflight) tryAcquire(pairKey string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pairs[pairKey]; ok {
		return false
	}
	f.pairs[pairKey] = struct{}{}
	return true
}

func (f *inflight) release(pairKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pairs, pairKey)
}
