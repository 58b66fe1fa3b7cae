// Package board keeps a client-side view of the incident list and its
// aggregates up to date.
package board

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned once the refresher or board has been closed.
var ErrClosed = errors.New("board closed")

// Refresher runs keyed fetches with at most one fetch in flight per key.
//
// Every call takes a sequence number when it starts. Its result is applied only
// when no later-started call for the same key has been applied already, so a
// slow response never overwrites a newer one.
type Refresher struct {
	group singleflight.Group

	mu      sync.Mutex
	seq     map[string]uint64
	applied map[string]uint64
	closed  bool
}

// NewRefresher creates a new refresher.
func NewRefresher() *Refresher {
	return &Refresher{
		seq:     make(map[string]uint64),
		applied: make(map[string]uint64),
	}
}

// Do fetches key, joining a fetch that is already in flight, and passes the
// result to apply if it is still the newest. The fetch runs with the context of
// the call that started it. It reports whether apply was called.
func (r *Refresher) Do(ctx context.Context, key string, fetch func(context.Context) (any, error), apply func(any)) (bool, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false, ErrClosed
	}
	r.seq[key]++
	seq := r.seq[key]
	r.mu.Unlock()

	ch := r.group.DoChan(key, func() (any, error) {
		return fetch(ctx)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return false, res.Err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrClosed
	}
	if seq <= r.applied[key] {
		return false, nil
	}
	r.applied[key] = seq
	apply(res.Val)
	return true, nil
}

// Apply applies a value that arrived without a fetch, such as a pushed
// snapshot. It counts as the newest call for key, so fetches started before it
// are discarded when they complete. It reports whether apply was called.
func (r *Refresher) Apply(key string, apply func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	r.seq[key]++
	r.applied[key] = r.seq[key]
	apply()
	return true
}

// Close discards the results of fetches still in flight.
func (r *Refresher) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}
