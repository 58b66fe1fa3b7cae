package board

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bissquit/incident-impact/internal/client"
	"github.com/bissquit/incident-impact/internal/domain"
)

// Backend is what Live needs to decide whether to hold a stream open.
type Backend interface {
	Health(ctx context.Context) client.Health
	Authenticated() bool
	Watch(ctx context.Context, fn func([]domain.Incident), onEnd func(err error)) (func(), error)
}

// Live keeps at most one incident stream open and feeds it into a Board.
// A stream is held only while the backend is reachable and the user is signed in.
type Live struct {
	backend Backend
	board   *Board

	mu            sync.Mutex
	reachable     bool
	authenticated bool
	closed        bool
	unsubscribe   func()
	stream        uint64
}

// NewLive creates a new stream lifecycle for board.
func NewLive(backend Backend, board *Board) *Live {
	return &Live{backend: backend, board: board}
}

// Sync probes the backend and opens or closes the stream accordingly.
// A stream opened here lives until ctx is done or the stream is closed.
// A stream that ended on its own is opened again.
func (l *Live) Sync(ctx context.Context) error {
	reachable := l.backend.Health(ctx).Reachable()
	authenticated := l.backend.Authenticated()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.reachable = reachable
	l.authenticated = authenticated
	return l.reconcile(ctx)
}

// SetAuthenticated records a sign-in or sign-out. Signing out closes the stream.
func (l *Live) SetAuthenticated(ctx context.Context, authenticated bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.authenticated = authenticated
	return l.reconcile(ctx)
}

// Resubscribe replaces the current stream with a fresh one.
func (l *Live) Resubscribe(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cancel()
	return l.reconcile(ctx)
}

// Active reports whether a stream is open.
func (l *Live) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unsubscribe != nil
}

// Close closes the stream for good.
func (l *Live) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.cancel()
}

// reconcile must be called with l.mu held.
func (l *Live) reconcile(ctx context.Context) error {
	want := l.reachable && l.authenticated && !l.closed

	if !want {
		if l.unsubscribe != nil {
			slog.Debug("closing incident stream", "reachable", l.reachable, "authenticated", l.authenticated)
		}
		l.cancel()
		return nil
	}
	if l.unsubscribe != nil {
		return nil
	}

	l.stream++
	stream := l.stream
	unsubscribe, err := l.backend.Watch(ctx, l.board.Replace, func(err error) {
		l.ended(stream, err)
	})
	if err != nil {
		return fmt.Errorf("subscribe to incidents: %w", err)
	}
	l.unsubscribe = unsubscribe
	slog.Debug("incident stream opened")
	return nil
}

// ended forgets stream if it is still the current one.
func (l *Live) ended(stream uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if stream != l.stream || l.unsubscribe == nil {
		return
	}
	l.unsubscribe = nil
	slog.Debug("incident stream ended", "error", err)
}

func (l *Live) cancel() {
	if l.unsubscribe != nil {
		l.unsubscribe()
		l.unsubscribe = nil
	}
}
