package incidents

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/bissquit/incident-impact/internal/impact"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// fakeTx implements the parts of pgx.Tx the service uses.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(_ context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

// mockRepository implements Repository in memory.
type mockRepository struct {
	mu        sync.Mutex
	incidents map[string]*domain.Incident
	timeline  map[string][]domain.TimelineEvent
	clock     time.Time
	listErr   error
	timeErr   error
	txs       []*fakeTx
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		incidents: make(map[string]*domain.Incident),
		timeline:  make(map[string][]domain.TimelineEvent),
		clock:     time.Date(2024, 1, 13, 10, 0, 0, 0, time.UTC),
	}
}

func (m *mockRepository) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *mockRepository) CreateIncident(_ context.Context, incident *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	incident.ID = uuid.NewString()
	incident.CreatedAt = m.tick()
	incident.UpdatedAt = incident.CreatedAt
	stored := *incident
	m.incidents[incident.ID] = &stored
	return nil
}

func (m *mockRepository) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	out := *inc
	return &out, nil
}

func (m *mockRepository) ListIncidents(_ context.Context, filters IncidentFilters) ([]domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	result := make([]domain.Incident, 0, len(m.incidents))
	for _, inc := range m.incidents {
		if filters.Severity != nil && inc.Severity != *filters.Severity {
			continue
		}
		result = append(result, *inc)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filters.Limit > 0 && len(result) > filters.Limit {
		result = result[:filters.Limit]
	}
	return result, nil
}

func (m *mockRepository) UpdateIncident(_ context.Context, incident *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incidents[incident.ID]; !ok {
		return ErrIncidentNotFound
	}
	incident.UpdatedAt = m.tick()
	stored := *incident
	m.incidents[incident.ID] = &stored
	return nil
}

func (m *mockRepository) CreateTimelineEvent(_ context.Context, event *domain.TimelineEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timeErr != nil {
		return m.timeErr
	}
	event.ID = uuid.NewString()
	event.Timestamp = m.tick()
	m.timeline[event.IncidentID] = append(m.timeline[event.IncidentID], *event)
	return nil
}

func (m *mockRepository) ListTimelineEvents(_ context.Context, incidentID string) ([]domain.TimelineEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TimelineEvent{}, m.timeline[incidentID]...), nil
}

func (m *mockRepository) Ping(_ context.Context) error {
	return nil
}

func (m *mockRepository) BeginTx(_ context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *mockRepository) CreateIncidentTx(ctx context.Context, _ pgx.Tx, incident *domain.Incident) error {
	return m.CreateIncident(ctx, incident)
}

func (m *mockRepository) UpdateIncidentTx(ctx context.Context, _ pgx.Tx, incident *domain.Incident) error {
	return m.UpdateIncident(ctx, incident)
}

func (m *mockRepository) CreateTimelineEventTx(ctx context.Context, _ pgx.Tx, event *domain.TimelineEvent) error {
	return m.CreateTimelineEvent(ctx, event)
}

// staticMembers implements MemberDirectory.
type staticMembers map[string]domain.TeamMember

func (s staticMembers) GetMember(id string) (domain.TeamMember, bool) {
	m, ok := s[id]
	return m, ok
}

// countingNotifier implements ChangeNotifier.
type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNotifier) IncidentsChanged(_ context.Context) {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func newTestService() (*Service, *mockRepository, *countingNotifier) {
	repo := newMockRepository()
	notifier := &countingNotifier{}
	members := staticMembers{
		"dba": {ID: "dba", Name: "Database Admin", Role: domain.RoleResponder},
	}
	svc := NewService(repo, members, impact.DefaultSeverityTable(), notifier)
	svc.now = func() time.Time { return time.Date(2024, 1, 13, 18, 0, 0, 0, time.UTC) }
	return svc, repo, notifier
}
