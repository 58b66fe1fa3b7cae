// Package realtime pushes incident snapshots to subscribers after every change.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
)

const loadTimeout = 5 * time.Second

// Source loads the newest incidents, ordered by created_at descending.
type Source interface {
	Snapshot(ctx context.Context, limit int) ([]domain.Incident, error)
}

// Snapshot is the full incident list delivered to subscribers.
type Snapshot struct {
	Incidents   []domain.Incident `json:"incidents"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Config configures the hub.
type Config struct {
	SnapshotLimit int
	SendBuffer    int
}

// Hub loads a snapshot whenever incidents change and fans it out.
// Change signals that arrive while a load is pending are coalesced.
type Hub struct {
	source Source
	config Config
	now    func() time.Time

	signal chan struct{}
	stopCh chan struct{}
	stop   sync.Once
	wg     sync.WaitGroup

	mu     sync.Mutex
	subs   map[int]*Subscription
	nextID int
	last   *Snapshot
}

// NewHub creates a new hub.
func NewHub(source Source, cfg Config) *Hub {
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = 50
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 1
	}
	return &Hub{
		source: source,
		config: cfg,
		now:    time.Now,
		signal: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		subs:   make(map[int]*Subscription),
	}
}

// Start launches the publishing loop and schedules an initial load.
func (h *Hub) Start(ctx context.Context) {
	slog.Info("starting realtime hub",
		"snapshot_limit", h.config.SnapshotLimit,
		"send_buffer", h.config.SendBuffer,
	)

	h.wg.Add(1)
	go h.run(ctx)
	h.IncidentsChanged(ctx)
}

// Stop stops the loop and closes every subscription.
func (h *Hub) Stop() {
	h.stop.Do(func() {
		close(h.stopCh)
	})
	h.wg.Wait()

	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	slog.Info("realtime hub stopped")
}

// IncidentsChanged schedules a snapshot load. It never blocks.
// Implements incidents.ChangeNotifier.
func (h *Hub) IncidentsChanged(_ context.Context) {
	select {
	case h.signal <- struct{}{}:
	default:
	}
}

// Subscribe registers fn for every published snapshot and returns a func
// that cancels the subscription. The returned func is safe to call more than once.
func (h *Hub) Subscribe(fn func(Snapshot)) func() {
	return h.SubscribeUser("", fn).Unsubscribe
}

// SubscribeUser registers fn on behalf of a user. The latest snapshot, if any,
// is delivered right away. Calls to fn are serialised.
func (h *Hub) SubscribeUser(userID string, fn func(Snapshot)) *Subscription {
	s := &Subscription{
		hub:    h,
		userID: userID,
		fn:     fn,
		ch:     make(chan Snapshot, h.config.SendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	s.id = h.nextID
	h.nextID++
	h.subs[s.id] = s
	if h.last != nil {
		s.offer(*h.last)
	}
	h.mu.Unlock()

	subscribersGauge.Inc()
	go s.deliver()
	return s
}

// DisconnectUser closes every subscription held by userID.
func (h *Hub) DisconnectUser(userID string) int {
	if userID == "" {
		return 0
	}

	h.mu.Lock()
	var subs []*Subscription
	for _, s := range h.subs {
		if s.userID == userID {
			subs = append(subs, s)
		}
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	return len(subs)
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Latest returns the most recently published snapshot.
func (h *Hub) Latest() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return Snapshot{}, false
	}
	return *h.last, true
}

func (h *Hub) run(ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-h.signal:
			h.publish(ctx)
		}
	}
}

func (h *Hub) publish(ctx context.Context) {
	loadCtx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	incidents, err := h.source.Snapshot(loadCtx, h.config.SnapshotLimit)
	if err != nil {
		slog.Error("failed to load incident snapshot", "error", err)
		recordPublish("error")
		return
	}

	snap := Snapshot{Incidents: incidents, GeneratedAt: h.now().UTC()}

	// Offers never block, so they run under the lock to keep per-subscriber order.
	h.mu.Lock()
	h.last = &snap
	for _, s := range h.subs {
		s.offer(snap)
	}
	count := len(h.subs)
	h.mu.Unlock()

	recordPublish("success")
	slog.Debug("snapshot published", "incidents", len(incidents), "subscribers", count)
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	_, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	if ok {
		subscribersGauge.Dec()
	}
}

// Subscription is one registered snapshot consumer.
type Subscription struct {
	hub    *Hub
	id     int
	userID string
	fn     func(Snapshot)
	ch     chan Snapshot
	done   chan struct{}
	once   sync.Once
}

// Unsubscribe cancels the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.id)
		close(s.done)
	})
}

// Done is closed once the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// offer queues snap, replacing the oldest queued snapshot when the buffer is full.
func (s *Subscription) offer(snap Snapshot) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.ch <- snap:
		return
	default:
	}

	select {
	case <-s.ch:
		snapshotsDropped.Inc()
	default:
	}

	select {
	case s.ch <- snap:
	default:
		snapshotsDropped.Inc()
	}
}

func (s *Subscription) deliver() {
	for {
		select {
		case <-s.done:
			return
		case snap := <-s.ch:
			s.fn(snap)
		}
	}
}
