// Package client consumes the incident API over HTTP and WebSocket.
//
// Reads fail soft: they return an empty value alongside the error so that
// callers can keep rendering. Commands report failures in a CommandResult.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/bissquit/incident-impact/internal/impact"
	"golang.org/x/time/rate"
)

// Health states reported by the backend.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"

	DatabaseConnected    = "connected"
	DatabaseDisconnected = "disconnected"
)

// ErrNotAuthenticated is returned by calls that need a token when none is set.
var ErrNotAuthenticated = errors.New("not authenticated")

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Config configures the client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second; zero disables pacing
	Burst     int
	Token     string
}

// Health is the backend health report.
type Health struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Version   string    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Reachable reports whether the backend answered the health probe.
func (h Health) Reachable() bool {
	return h.Status == HealthHealthy || h.Status == HealthDegraded
}

// CreateRequest is the payload for creating an incident.
type CreateRequest struct {
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Severity         domain.Severity `json:"severity,omitempty"`
	AffectedServices []string        `json:"affected_services,omitempty"`
	ReportedBy       string          `json:"reported_by,omitempty"`
}

// UpdateRequest is a partial incident update.
type UpdateRequest struct {
	Status          *domain.Status `json:"status,omitempty"`
	AssignedTo      *string        `json:"assigned_to,omitempty"`
	ResolutionNotes *string        `json:"resolution_notes,omitempty"`
}

// CommandResult is the outcome of a collaborator command.
type CommandResult struct {
	Success bool                  `json:"success"`
	Error   string                `json:"error,omitempty"`
	Event   *domain.TimelineEvent `json:"event,omitempty"`
}

// Client talks to the incident API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time

	mu    sync.RWMutex
	token string
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		now:        time.Now,
		token:      cfg.Token,
	}
}

// SetToken replaces the bearer token used for authenticated calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Authenticated reports whether a bearer token is set.
func (c *Client) Authenticated() bool {
	return c.Token() != ""
}

// Health probes GET /health. Failures yield an unhealthy report, never an error.
func (c *Client) Health(ctx context.Context) Health {
	var w wireHealth
	if err := c.do(ctx, http.MethodGet, "/health", nil, &w); err != nil {
		slog.Debug("health check failed", "error", err)
		return Health{
			Status:    HealthUnhealthy,
			Database:  DatabaseDisconnected,
			Timestamp: c.now().UTC(),
		}
	}

	h := Health{Status: w.Status, Database: w.Database, Version: w.Version}
	h.Timestamp, _ = domain.ParseTimestampJSON(w.Timestamp)
	return h
}

// List fetches up to limit incidents, newest first.
func (c *Client) List(ctx context.Context, limit int) ([]domain.Incident, error) {
	path := "/api/incidents"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var ws []wireIncident
	if err := c.do(ctx, http.MethodGet, path, nil, &ws); err != nil {
		return []domain.Incident{}, fmt.Errorf("list incidents: %w", err)
	}
	return toIncidents(ws), nil
}

// BySeverity fetches incidents of one severity.
func (c *Client) BySeverity(ctx context.Context, severity domain.Severity) ([]domain.Incident, error) {
	var ws []wireIncident
	path := "/api/incidents/severity/" + url.PathEscape(string(severity))
	if err := c.do(ctx, http.MethodGet, path, nil, &ws); err != nil {
		return []domain.Incident{}, fmt.Errorf("list incidents by severity: %w", err)
	}
	return toIncidents(ws), nil
}

// Get fetches one incident.
func (c *Client) Get(ctx context.Context, id string) (*domain.Incident, error) {
	var w wireIncident
	if err := c.do(ctx, http.MethodGet, "/api/incidents/"+url.PathEscape(id), nil, &w); err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	inc := w.toDomain()
	return &inc, nil
}

// Timeline fetches the events recorded on an incident, oldest first.
func (c *Client) Timeline(ctx context.Context, id string) ([]domain.TimelineEvent, error) {
	var ws []wireEvent
	if err := c.do(ctx, http.MethodGet, "/api/incidents/"+url.PathEscape(id)+"/timeline", nil, &ws); err != nil {
		return []domain.TimelineEvent{}, fmt.Errorf("get timeline: %w", err)
	}
	events := make([]domain.TimelineEvent, 0, len(ws))
	for _, w := range ws {
		events = append(events, w.toDomain())
	}
	return events, nil
}

// Create reports a new incident.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*domain.Incident, error) {
	var w wireIncident
	if err := c.do(ctx, http.MethodPost, "/api/incidents", req, &w); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	inc := w.toDomain()
	return &inc, nil
}

// Update applies a partial update to an incident.
func (c *Client) Update(ctx context.Context, id string, req UpdateRequest) (*domain.Incident, error) {
	var w wireIncident
	if err := c.do(ctx, http.MethodPut, "/api/incidents/"+url.PathEscape(id), req, &w); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}
	inc := w.toDomain()
	return &inc, nil
}

// Report fetches the aggregated impact report. A non-positive hourlyRevenue
// uses the server default.
func (c *Client) Report(ctx context.Context, hourlyRevenue float64) (*impact.Report, error) {
	path := "/api/impact"
	if hourlyRevenue > 0 {
		path += "?hourly_revenue=" + strconv.FormatFloat(hourlyRevenue, 'f', -1, 64)
	}

	var report impact.Report
	if err := c.do(ctx, http.MethodGet, path, nil, &report); err != nil {
		return nil, fmt.Errorf("get impact report: %w", err)
	}
	return &report, nil
}

// Assign assigns an incident to a team member.
func (c *Client) Assign(ctx context.Context, incidentID, memberID string) CommandResult {
	return c.command(ctx, incidentID, "assign", map[string]string{"member_id": memberID})
}

// UpdateStatus moves an incident to a new status.
func (c *Client) UpdateStatus(ctx context.Context, incidentID string, status domain.Status, notes string) CommandResult {
	return c.command(ctx, incidentID, "status", map[string]string{"status": string(status), "notes": notes})
}

// AddNote appends a note to an incident timeline.
func (c *Client) AddNote(ctx context.Context, incidentID, note string) CommandResult {
	return c.command(ctx, incidentID, "notes", map[string]string{"note": note})
}

func (c *Client) command(ctx context.Context, incidentID, action string, body any) CommandResult {
	if !c.Authenticated() {
		return CommandResult{Error: ErrNotAuthenticated.Error()}
	}

	var w wireEvent
	path := "/api/incidents/" + url.PathEscape(incidentID) + "/" + action
	if err := c.do(ctx, http.MethodPost, path, body, &w); err != nil {
		return CommandResult{Error: err.Error()}
	}

	event := w.toDomain()
	return CommandResult{Success: true, Event: &event}
}

// SignIn authenticates and stores the access token for later calls.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.User, error) {
	var resp struct {
		User   *domain.User `json:"user"`
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/signin", body, &resp); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	c.SetToken(resp.Tokens.AccessToken)
	return resp.User, nil
}

// SignOut revokes the session server-side and forgets the token.
// The token is dropped even when the request fails.
func (c *Client) SignOut(ctx context.Context) error {
	if !c.Authenticated() {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/signout", map[string]string{}, nil)
	c.SetToken("")
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&envelope)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil && envelope.Error != nil && envelope.Error.Message != "" {
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
