package identity

import (
	"errors"
	"sync"
)

// ErrExhausted is returned by Next once every identity has been handed out.
var ErrExhausted = errors.New("identity feed exhausted")

// Feed is a one-pass source of identities. Each identity is handed to
// exactly one caller; retries are the orchestrator's business and are
// modeled as new tasks, never re-queued here.
type Feed struct {
	mu    sync.Mutex
	queue []Identity
	pos   int
}

// NewFeed creates a feed over the given backlog. The slice is not copied;
// callers must not mutate it afterwards.
func NewFeed(identities []Identity) *Feed {
	return &Feed{queue: identities}
}

// Next hands out the next identity, or ErrExhausted.
func (f *Feed) Next() (Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pos >= len(f.queue) {
		return Identity{}, ErrExhausted
	}
	id := f.queue[f.pos]
	f.pos++
	return id, nil
}

// Remaining reports how many identities have not been handed out yet.
func (f *Feed) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue) - f.pos
}

// Size reports the total backlog length.
func (f *Feed) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}
