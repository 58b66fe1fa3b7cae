package incidents

import (
	"context"

	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for incident storage.
type Repository interface {
	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filters IncidentFilters) ([]domain.Incident, error)
	UpdateIncident(ctx context.Context, incident *domain.Incident) error

	CreateTimelineEvent(ctx context.Context, event *domain.TimelineEvent) error
	ListTimelineEvents(ctx context.Context, incidentID string) ([]domain.TimelineEvent, error)

	Ping(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
	UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
	CreateTimelineEventTx(ctx context.Context, tx pgx.Tx, event *domain.TimelineEvent) error
}

// IncidentFilters holds filter options for listing incidents.
// Results are always ordered by created_at descending.
type IncidentFilters struct {
	Severity *domain.Severity
	Limit    int
}
