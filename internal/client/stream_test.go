package client

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/bissquit/incident-impact/internal/pkg/httputil"
	"github.com/bissquit/incident-impact/internal/realtime"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenValidator struct{}

func (tokenValidator) ValidateToken(_ context.Context, token string) (string, domain.Role, error) {
	if token != "valid" {
		return "", "", assert.AnError
	}
	return "viewer-1", domain.RoleViewer, nil
}

type memorySource struct {
	mu        sync.Mutex
	incidents []domain.Incident
}

func (m *memorySource) Snapshot(_ context.Context, _ int) ([]domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Incident{}, m.incidents...), nil
}

func (m *memorySource) set(incs ...domain.Incident) {
	m.mu.Lock()
	m.incidents = incs
	m.mu.Unlock()
}

func newStreamBackend(t *testing.T, source realtime.Source) (*realtime.Hub, *httptest.Server) {
	t.Helper()
	hub := realtime.NewHub(source, realtime.Config{})
	hub.Start(context.Background())
	t.Cleanup(hub.Stop)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(httputil.AuthMiddleware(tokenValidator{}))
		realtime.NewHandler(hub, realtime.HandlerConfig{}).RegisterRoutes(r)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func TestSubscribe(t *testing.T) {
	source := &memorySource{}
	source.set(Fixtures()...)
	hub, srv := newStreamBackend(t, source)

	c := New(Config{BaseURL: srv.URL, Token: "valid"})
	received := make(chan []domain.Incident, 10)
	unsubscribe, err := c.Subscribe(context.Background(), func(incs []domain.Incident) {
		received <- incs
	})
	require.NoError(t, err)
	defer unsubscribe()

	select {
	case incs := <-received:
		require.Len(t, incs, 3)
		assert.Equal(t, "Database Connection Timeout", incs[0].Title)
		assert.False(t, incs[0].CreatedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	source.set()
	hub.IncidentsChanged(context.Background())

	select {
	case incs := <-received:
		assert.Empty(t, incs)
	case <-time.After(2 * time.Second):
		t.Fatal("no update after change")
	}

	unsubscribe()
	unsubscribe()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribe_ContextCancelClosesStream(t *testing.T) {
	hub, srv := newStreamBackend(t, &memorySource{})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := New(Config{BaseURL: srv.URL, Token: "valid"}).Subscribe(ctx, func([]domain.Incident) {})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatch_ServerCloseEndsStream(t *testing.T) {
	hub, srv := newStreamBackend(t, &memorySource{})

	ended := make(chan error, 1)
	unsubscribe, err := New(Config{BaseURL: srv.URL, Token: "valid"}).Watch(context.Background(),
		func([]domain.Incident) {},
		func(err error) { ended <- err },
	)
	require.NoError(t, err)
	defer unsubscribe()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, hub.DisconnectUser("viewer-1"))

	select {
	case err := <-ended:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream end not reported")
	}
}

func TestWatch_UnsubscribeReportsCleanEnd(t *testing.T) {
	_, srv := newStreamBackend(t, &memorySource{})

	ended := make(chan error, 1)
	unsubscribe, err := New(Config{BaseURL: srv.URL, Token: "valid"}).Watch(context.Background(),
		func([]domain.Incident) {},
		func(err error) { ended <- err },
	)
	require.NoError(t, err)

	unsubscribe()

	select {
	case err := <-ended:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream end not reported")
	}
}

func TestSubscribe_Errors(t *testing.T) {
	_, srv := newStreamBackend(t, &memorySource{})

	_, err := New(Config{BaseURL: srv.URL}).Subscribe(context.Background(), func([]domain.Incident) {})
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = New(Config{BaseURL: srv.URL, Token: "forged"}).Subscribe(context.Background(), func([]domain.Incident) {})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.StatusCode)
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{base: "http://localhost:8080", want: "ws://localhost:8080/api/incidents/stream?access_token=t%2Bk"},
		{base: "https://impact.example.com/", want: "wss://impact.example.com/api/incidents/stream?access_token=t%2Bk"},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := New(Config{BaseURL: tt.base}).streamURL("t+k")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
