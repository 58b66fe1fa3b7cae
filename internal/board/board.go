package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/incident-impact/internal/client"
	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/bissquit/incident-impact/internal/impact"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const (
	incidentsKey      = "incidents"
	timelineKeyPrefix = "timeline:"
)

// API is the subset of the incident API the board reads and writes through.
type API interface {
	List(ctx context.Context, limit int) ([]domain.Incident, error)
	Timeline(ctx context.Context, incidentID string) ([]domain.TimelineEvent, error)
	AddNote(ctx context.Context, incidentID, note string) client.CommandResult
}

// Config configures the board.
type Config struct {
	HourlyRevenue     float64
	SnapshotLimit     int
	RecomputeSchedule string
}

// Board holds the current incident snapshot and the report computed from it.
type Board struct {
	api       API
	calc      *impact.Calculator
	config    Config
	now       func() time.Time
	refresher *Refresher
	scheduler *cron.Cron

	mu           sync.RWMutex
	incidents    []domain.Incident
	report       impact.Report
	loaded       bool
	disconnected bool
	timelines    map[string][]domain.TimelineEvent
	pending      map[string][]domain.TimelineEvent
	listeners    map[int]func()
	nextID       int
	closed       bool
}

// New creates a new board. Call Start to enable periodic recomputation.
func New(api API, calc *impact.Calculator, cfg Config) *Board {
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = 50
	}
	if cfg.RecomputeSchedule == "" {
		cfg.RecomputeSchedule = "@every 60s"
	}

	b := &Board{
		api:       api,
		calc:      calc,
		config:    cfg,
		now:       time.Now,
		refresher: NewRefresher(),
		scheduler: cron.New(),
		incidents: []domain.Incident{},
		timelines: make(map[string][]domain.TimelineEvent),
		pending:   make(map[string][]domain.TimelineEvent),
		listeners: make(map[int]func()),
	}
	b.report = calc.Snapshot(nil, cfg.HourlyRevenue, b.now())
	return b
}

// Start schedules the periodic recompute.
func (b *Board) Start() error {
	if _, err := b.scheduler.AddFunc(b.config.RecomputeSchedule, b.Recompute); err != nil {
		return fmt.Errorf("schedule recompute %q: %w", b.config.RecomputeSchedule, err)
	}
	b.scheduler.Start()

	slog.Debug("board started", "recompute_schedule", b.config.RecomputeSchedule)
	return nil
}

// Close stops the scheduler and discards in-flight fetches.
func (b *Board) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.refresher.Close()
	<-b.scheduler.Stop().Done()
}

// OnChange registers fn to run after every state change and returns a func
// that removes it.
func (b *Board) OnChange(fn func()) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Replace swaps the snapshot wholesale and recomputes every aggregate.
// Refreshes that started before the call are discarded when they complete.
func (b *Board) Replace(incidents []domain.Incident) {
	var changed bool
	b.refresher.Apply(incidentsKey, func() {
		changed = b.replace(incidents, false)
	})
	if changed {
		b.notify()
	}
}

// Recompute refreshes the report against the current clock.
func (b *Board) Recompute() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.report = b.calc.Snapshot(b.incidents, b.config.HourlyRevenue, b.now())
	b.mu.Unlock()

	b.notify()
}

// Refresh fetches the incident list. A failed fetch marks the board
// Disconnected and keeps the last loaded snapshot, or shows the built-in
// fixtures when nothing has been loaded yet. The next successful load clears
// the flag.
func (b *Board) Refresh(ctx context.Context) error {
	applied, err := b.refresher.Do(ctx, incidentsKey,
		func(ctx context.Context) (any, error) {
			return b.api.List(ctx, b.config.SnapshotLimit)
		},
		func(v any) { b.replace(v.([]domain.Incident), false) },
	)
	if err != nil {
		if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
			return err
		}
		if b.fallback() {
			slog.Warn("backend unavailable, showing example incidents", "error", err)
			b.notify()
		} else if b.markDisconnected() {
			slog.Warn("backend unavailable, showing last loaded incidents", "error", err)
			b.notify()
		}
		return fmt.Errorf("refresh incidents: %w", err)
	}

	if applied {
		b.notify()
	}
	return nil
}

// LoadTimeline fetches the confirmed timeline of an incident.
func (b *Board) LoadTimeline(ctx context.Context, incidentID string) error {
	applied, err := b.refresher.Do(ctx, timelineKeyPrefix+incidentID,
		func(ctx context.Context) (any, error) {
			return b.api.Timeline(ctx, incidentID)
		},
		func(v any) {
			b.mu.Lock()
			b.timelines[incidentID] = v.([]domain.TimelineEvent)
			b.mu.Unlock()
		},
	)
	if err != nil {
		return fmt.Errorf("load timeline: %w", err)
	}

	if applied {
		b.notify()
	}
	return nil
}

// AddNote shows the note on the timeline right away and sends it to the
// backend. The local event is rolled back if the command fails.
func (b *Board) AddNote(ctx context.Context, incidentID, userID, note string) client.CommandResult {
	event := domain.TimelineEvent{
		ID:          uuid.New().String(),
		IncidentID:  incidentID,
		Timestamp:   b.now().UTC(),
		EventType:   domain.TimelineEventNote,
		Title:       "Note Added",
		Description: note,
		UserID:      userID,
		Metadata:    map[string]string{"pending": "true"},
	}

	b.mu.Lock()
	b.pending[incidentID] = append(b.pending[incidentID], event)
	b.mu.Unlock()
	b.notify()

	result := b.api.AddNote(ctx, incidentID, note)

	b.mu.Lock()
	b.pending[incidentID] = removeEvent(b.pending[incidentID], event.ID)
	if len(b.pending[incidentID]) == 0 {
		delete(b.pending, incidentID)
	}
	if result.Success && result.Event != nil {
		b.timelines[incidentID] = append(b.timelines[incidentID], *result.Event)
	}
	b.mu.Unlock()
	b.notify()

	if !result.Success {
		slog.Warn("note rolled back", "incident_id", incidentID, "error", result.Error)
	}
	return result
}

// Incidents returns a copy of the current snapshot.
func (b *Board) Incidents() []domain.Incident {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]domain.Incident{}, b.incidents...)
}

// Report returns the report computed from the current snapshot.
func (b *Board) Report() impact.Report {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.report
}

// Disconnected reports whether the last refresh failed. The board then shows
// either the last loaded snapshot or, if nothing was ever loaded, the fixtures.
func (b *Board) Disconnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.disconnected
}

// Timeline returns the confirmed events of an incident followed by pending ones.
func (b *Board) Timeline(incidentID string) []domain.TimelineEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := make([]domain.TimelineEvent, 0, len(b.timelines[incidentID])+len(b.pending[incidentID]))
	events = append(events, b.timelines[incidentID]...)
	return append(events, b.pending[incidentID]...)
}

func (b *Board) replace(incidents []domain.Incident, fixtures bool) bool {
	snapshot := make([]domain.Incident, len(incidents))
	for i, inc := range incidents {
		inc.Normalize()
		snapshot[i] = inc
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || (fixtures && b.loaded) {
		return false
	}
	b.incidents = snapshot
	b.report = b.calc.Snapshot(snapshot, b.config.HourlyRevenue, b.now())
	b.loaded = !fixtures
	b.disconnected = fixtures
	return true
}

// markDisconnected sets the disconnected flag and reports whether it changed.
func (b *Board) markDisconnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.disconnected {
		return false
	}
	b.disconnected = true
	return true
}

// fallback loads fixtures if nothing real has been loaded yet.
func (b *Board) fallback() bool {
	return b.replace(client.Fixtures(), true)
}

func (b *Board) notify() {
	b.mu.RLock()
	listeners := make([]func(), 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}

func removeEvent(events []domain.TimelineEvent, id string) []domain.TimelineEvent {
	result := events[:0]
	for _, e := range events {
		if e.ID != id {
			result = append(result, e)
		}
	}
	return result
}
