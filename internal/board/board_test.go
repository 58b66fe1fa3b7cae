package board

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/incident-impact/internal/client"
	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/bissquit/incident-impact/internal/impact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 1, 13, 12, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu          sync.Mutex
	incidents   []domain.Incident
	listErr     error
	listStarted chan struct{}
	listGate    chan struct{}
	events      []domain.TimelineEvent
	noteGate    chan struct{}
	noteFail    string
}

func (f *fakeAPI) List(_ context.Context, _ int) ([]domain.Incident, error) {
	if f.listStarted != nil {
		f.listStarted <- struct{}{}
	}
	if f.listGate != nil {
		<-f.listGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return []domain.Incident{}, f.listErr
	}
	return append([]domain.Incident{}, f.incidents...), nil
}

func (f *fakeAPI) Timeline(_ context.Context, _ string) ([]domain.TimelineEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TimelineEvent{}, f.events...), nil
}

func (f *fakeAPI) AddNote(_ context.Context, incidentID, note string) client.CommandResult {
	if f.noteGate != nil {
		<-f.noteGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noteFail != "" {
		return client.CommandResult{Error: f.noteFail}
	}
	event := domain.TimelineEvent{
		ID:          "server-1",
		IncidentID:  incidentID,
		Timestamp:   testNow,
		EventType:   domain.TimelineEventNote,
		Title:       "Note Added",
		Description: note,
	}
	return client.CommandResult{Success: true, Event: &event}
}

func (f *fakeAPI) setList(incs []domain.Incident, err error) {
	f.mu.Lock()
	f.incidents = incs
	f.listErr = err
	f.mu.Unlock()
}

func newTestBoard(t *testing.T, api API) *Board {
	t.Helper()
	b := New(api, impact.New(impact.DefaultConfig(), nil), Config{HourlyRevenue: 10000})
	b.now = func() time.Time { return testNow }
	t.Cleanup(b.Close)
	return b
}

func activeCritical() domain.Incident {
	return domain.Incident{
		ID:        "1",
		Title:     "Database Connection Timeout",
		Severity:  domain.SeverityCritical,
		Status:    domain.StatusInvestigating,
		CreatedAt: testNow.Add(-2 * time.Hour),
	}
}

func TestBoard_ReplaceRecomputes(t *testing.T) {
	b := newTestBoard(t, &fakeAPI{})
	assert.Equal(t, int64(0), b.Report().Impact.Total)

	changes := 0
	unsubscribe := b.OnChange(func() { changes++ })
	defer unsubscribe()

	b.Replace([]domain.Incident{activeCritical()})

	report := b.Report()
	assert.Equal(t, int64(30000), report.Impact.Total)
	assert.Equal(t, 1, report.Stats.Total)
	assert.Len(t, b.Incidents(), 1)
	assert.Equal(t, 1, changes)

	b.Replace(nil)
	assert.Empty(t, b.Incidents())
	assert.Equal(t, int64(0), b.Report().Impact.Total)
	assert.Equal(t, 2, changes)
}

func TestBoard_RecomputeTracksClock(t *testing.T) {
	b := newTestBoard(t, &fakeAPI{})
	b.Replace([]domain.Incident{activeCritical()})
	require.Equal(t, int64(30000), b.Report().Impact.Total)

	b.now = func() time.Time { return testNow.Add(time.Hour) }
	b.Recompute()
	// 10000 * 1.5 * 3h
	assert.Equal(t, int64(45000), b.Report().Impact.Total)
}

func TestBoard_Refresh(t *testing.T) {
	api := &fakeAPI{}
	api.setList([]domain.Incident{activeCritical()}, nil)
	b := newTestBoard(t, api)

	require.NoError(t, b.Refresh(context.Background()))
	assert.False(t, b.Disconnected())
	require.Len(t, b.Incidents(), 1)
	assert.Equal(t, "1", b.Incidents()[0].ID)
}

func TestBoard_FallsBackToFixtures(t *testing.T) {
	api := &fakeAPI{}
	api.setList(nil, errors.New("connection refused"))
	b := newTestBoard(t, api)

	err := b.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, b.Disconnected())
	assert.Len(t, b.Incidents(), len(client.Fixtures()))
	assert.Positive(t, b.Report().Impact.Total)

	api.setList([]domain.Incident{activeCritical()}, nil)
	require.NoError(t, b.Refresh(context.Background()))
	assert.False(t, b.Disconnected())
	assert.Len(t, b.Incidents(), 1)
}

func TestBoard_FailedRefreshKeepsLoadedData(t *testing.T) {
	api := &fakeAPI{}
	api.setList([]domain.Incident{activeCritical()}, nil)
	b := newTestBoard(t, api)
	require.NoError(t, b.Refresh(context.Background()))
	require.False(t, b.Disconnected())

	var changes int
	b.OnChange(func() { changes++ })

	api.setList(nil, errors.New("connection refused"))
	require.Error(t, b.Refresh(context.Background()))

	assert.True(t, b.Disconnected())
	assert.Equal(t, 1, changes)
	require.Len(t, b.Incidents(), 1)
	assert.Equal(t, "1", b.Incidents()[0].ID)

	require.Error(t, b.Refresh(context.Background()))
	assert.Equal(t, 1, changes)

	api.setList([]domain.Incident{activeCritical()}, nil)
	require.NoError(t, b.Refresh(context.Background()))
	assert.False(t, b.Disconnected())
}

func TestBoard_PushedSnapshotWinsOverOlderRefresh(t *testing.T) {
	api := &fakeAPI{listStarted: make(chan struct{}, 1), listGate: make(chan struct{})}
	api.setList([]domain.Incident{activeCritical()}, nil)
	b := newTestBoard(t, api)

	done := make(chan error, 1)
	go func() { done <- b.Refresh(context.Background()) }()
	<-api.listStarted

	pushed := activeCritical()
	pushed.ID = "2"
	b.Replace([]domain.Incident{pushed})

	close(api.listGate)
	require.NoError(t, <-done)

	incs := b.Incidents()
	require.Len(t, incs, 1)
	assert.Equal(t, "2", incs[0].ID)
}

func TestBoard_AddNoteOptimistic(t *testing.T) {
	api := &fakeAPI{noteGate: make(chan struct{})}
	b := newTestBoard(t, api)

	done := make(chan client.CommandResult)
	go func() {
		done <- b.AddNote(context.Background(), "1", "u1", "checking replicas")
	}()

	require.Eventually(t, func() bool { return len(b.Timeline("1")) == 1 }, time.Second, 5*time.Millisecond)
	pending := b.Timeline("1")[0]
	assert.Equal(t, "checking replicas", pending.Description)
	assert.Equal(t, "true", pending.Metadata["pending"])

	close(api.noteGate)
	result := <-done
	require.True(t, result.Success)

	timeline := b.Timeline("1")
	require.Len(t, timeline, 1)
	assert.Equal(t, "server-1", timeline[0].ID)
}

func TestBoard_AddNoteRollsBack(t *testing.T) {
	api := &fakeAPI{noteGate: make(chan struct{}), noteFail: "incident not found"}
	b := newTestBoard(t, api)

	done := make(chan client.CommandResult)
	go func() {
		done <- b.AddNote(context.Background(), "1", "u1", "checking replicas")
	}()

	require.Eventually(t, func() bool { return len(b.Timeline("1")) == 1 }, time.Second, 5*time.Millisecond)
	close(api.noteGate)

	result := <-done
	assert.False(t, result.Success)
	assert.Equal(t, "incident not found", result.Error)
	assert.Empty(t, b.Timeline("1"))
}

func TestBoard_LoadTimeline(t *testing.T) {
	api := &fakeAPI{events: []domain.TimelineEvent{
		{ID: "e1", IncidentID: "1", EventType: domain.TimelineEventCreated, Title: "Incident Reported"},
	}}
	b := newTestBoard(t, api)

	require.NoError(t, b.LoadTimeline(context.Background(), "1"))
	timeline := b.Timeline("1")
	require.Len(t, timeline, 1)
	assert.Equal(t, "e1", timeline[0].ID)
	assert.Empty(t, b.Timeline("2"))
}

func TestBoard_Close(t *testing.T) {
	api := &fakeAPI{}
	api.setList([]domain.Incident{activeCritical()}, nil)
	b := New(api, impact.New(impact.DefaultConfig(), nil), Config{RecomputeSchedule: "@every 1s"})
	require.NoError(t, b.Start())

	b.Close()
	b.Close()

	assert.ErrorIs(t, b.Refresh(context.Background()), ErrClosed)
	b.Replace([]domain.Incident{activeCritical()})
	assert.Empty(t, b.Incidents())
}

func TestBoard_StartRejectsBadSchedule(t *testing.T) {
	b := New(&fakeAPI{}, impact.New(impact.DefaultConfig(), nil), Config{RecomputeSchedule: "whenever"})
	defer b.Close()

	assert.Error(t, b.Start())
}
