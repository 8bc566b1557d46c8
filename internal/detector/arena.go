package detector

import (
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Arena holds at most one live opportunity per matched pair. A fresher
// computation replaces the pending one wholesale when its edge differs by
// more than the noise threshold; near-identical recomputations are swallowed
// so downstream never sees a flood of duplicates. Take marks the entry
// consumed rather than removing it: the consumed entry keeps suppressing
// unchanged recomputations of the same pair until the dedup TTL elapses or
// the edge moves materially, whichever comes first.
type Arena struct {
	mu        sync.Mutex
	byPair    map[string]*arenaEntry
	staleness time.Duration
	noise     float64
	ttl       time.Duration
}

type arenaEntry struct {
	opp   domain.Opportunity
	taken bool
}

func NewArena(staleness time.Duration, noise float64, ttl time.Duration) *Arena {
	if staleness <= 0 {
		staleness = 2 * time.Second
	}
	if noise <= 0 {
		noise = 0.005
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Arena{
		byPair:    make(map[string]*arenaEntry),
		staleness: staleness,
		noise:     noise,
		ttl:       ttl,
	}
}

// Offer installs o as the pair's pending opportunity. It reports whether the
// entry changed: true for a new pair, for an entry past the dedup TTL, or
// when the edge moved by more than the noise threshold. A within-noise offer
// is swallowed while the incumbent is either consumed or still fresh.
func (a *Arena) Offer(now time.Time, o domain.Opportunity) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, ok := a.byPair[o.Pair.Key()]
	if ok && !cur.opp.Stale(now, a.ttl) && math.Abs(cur.opp.NetEdge-o.NetEdge) <= a.noise {
		if cur.taken || !cur.opp.Stale(now, a.staleness) {
			return false
		}
	}
	a.byPair[o.Pair.Key()] = &arenaEntry{opp: o}
	return true
}

// Take returns the pending opportunity for the pair and marks it consumed. A
// stale unconsumed entry is dropped and reported as absent; a consumed entry
// is absent until replaced.
func (a *Arena) Take(now time.Time, pairKey string) (domain.Opportunity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.byPair[pairKey]
	if !ok || e.taken {
		return domain.Opportunity{}, false
	}
	if e.opp.Stale(now, a.staleness) {
		delete(a.byPair, pairKey)
		return domain.Opportunity{}, false
	}
	e.taken = true
	return e.opp, true
}

// Sweep drops stale unconsumed entries and consumed entries past the dedup
// TTL, returning how many were removed.
func (a *Arena) Sweep(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for key, e := range a.byPair {
		if (!e.taken && e.opp.Stale(now, a.staleness)) || e.opp.Stale(now, a.ttl) {
			delete(a.byPair, key)
			n++
		}
	}
	return n
}

// Len reports the number of tracked pairs, consumed entries included.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byPair)
}
