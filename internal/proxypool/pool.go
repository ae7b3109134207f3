package proxypool

import (
	"errors"
	"sync"

	"pearlgen/internal/shared/logger"
)

// ErrEmpty signals that no free, non-quarantined proxy exists right now.
// It is transient resource exhaustion, not a fatal condition; callers back
// off and retry the lease.
var ErrEmpty = errors.New("no free proxy available")

// ErrStarved signals that nothing is free and nothing is leased: every
// proxy is quarantined, so no Release can ever refill the pool and a
// retry cannot succeed.
var ErrStarved = errors.New("proxy pool fully quarantined")

// Pool hands out exclusive proxy leases to workers. A single mutex guards
// the free list, the leased set and the quarantined set together, so a
// lease and a quarantine can never race.
type Pool struct {
	mu          sync.Mutex
	free        []Proxy
	leased      map[string]bool
	failures    map[string]int
	quarantined map[string]bool
	threshold   int
}

// NewPool creates a pool over the given proxies. A proxy whose cumulative
// failure count reaches threshold is retired and never leased again.
func NewPool(proxies []Proxy, threshold int) *Pool {
	if threshold <= 0 {
		threshold = 3
	}
	p := &Pool{
		free:        make([]Proxy, 0, len(proxies)),
		leased:      make(map[string]bool),
		failures:    make(map[string]int),
		quarantined: make(map[string]bool),
		threshold:   threshold,
	}
	seen := make(map[string]bool, len(proxies))
	for _, px := range proxies {
		if seen[px.ID()] {
			continue
		}
		seen[px.ID()] = true
		p.free = append(p.free, px)
	}
	return p
}

// Lease hands out a free proxy. Non-blocking: with nothing free it returns
// ErrEmpty while leased proxies may still come back, or ErrStarved once
// none can. The two cases are told apart inside the same critical section
// as the failed lease, so a concurrent Release cannot make a transient
// empty pool look starved.
func (p *Pool) Lease() (Proxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		if len(p.leased) == 0 {
			return Proxy{}, ErrStarved
		}
		return Proxy{}, ErrEmpty
	}
	px := p.free[0]
	p.free = p.free[1:]
	p.leased[px.ID()] = true
	return px, nil
}

// Release returns a proxy to the pool. On failure its cumulative failure
// counter is incremented; once the counter reaches the threshold the proxy
// is quarantined and never handed out again.
func (p *Pool) Release(px Proxy, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := px.ID()
	if !p.leased[id] {
		// Releasing a proxy that was never leased is a caller bug.
		logger.WithComponent("ProxyPool").Warn().Str("proxy", id).Msg("Release called for a proxy that is not leased.")
		return
	}
	delete(p.leased, id)

	if !success {
		p.failures[id]++
		if p.failures[id] >= p.threshold {
			p.quarantined[id] = true
			logger.WithComponent("ProxyPool").Info().
				Str("proxy", id).
				Int("failures", p.failures[id]).
				Msg("Proxy quarantined after repeated failures.")
			return
		}
	}

	p.free = append(p.free, px)
}

// FreeCount reports how many proxies are currently leasable.
func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// LeasedCount reports how many proxies are currently leased out.
func (p *Pool) LeasedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leased)
}

// QuarantinedCount reports how many proxies have been retired.
func (p *Pool) QuarantinedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.quarantined)
}
