// Package postgres provides PostgreSQL implementation of the incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/bissquit/incident-impact/internal/incidents"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is an interface for database operations that both *pgxpool.Pool and pgx.Tx implement.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const incidentColumns = `
	id, title, description, severity, status, affected_services, reported_by,
	assigned_to, resolution_notes, impact_score, created_at, updated_at, resolved_at
`

func scanIncident(row pgx.Row) (domain.Incident, error) {
	var inc domain.Incident
	err := row.Scan(
		&inc.ID,
		&inc.Title,
		&inc.Description,
		&inc.Severity,
		&inc.Status,
		&inc.AffectedServices,
		&inc.ReportedBy,
		&inc.AssignedTo,
		&inc.ResolutionNotes,
		&inc.ImpactScore,
		&inc.CreatedAt,
		&inc.UpdatedAt,
		&inc.ResolvedAt,
	)
	return inc, err
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// CreateIncident creates a new incident in the database.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	return r.createIncident(ctx, r.db, incident)
}

// CreateIncidentTx creates a new incident within a transaction.
func (r *Repository) CreateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error {
	return r.createIncident(ctx, tx, incident)
}

func (r *Repository) createIncident(ctx context.Context, q querier, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (
			title, description, severity, status, affected_services, reported_by,
			assigned_to, resolution_notes, impact_score, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	err := q.QueryRow(ctx, query,
		incident.Title,
		incident.Description,
		incident.Severity,
		incident.Status,
		nonNil(incident.AffectedServices),
		incident.ReportedBy,
		incident.AssignedTo,
		incident.ResolutionNotes,
		incident.ImpactScore,
		incident.ResolvedAt,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

	inc, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return &inc, nil
}

// ListIncidents retrieves incidents ordered by created_at descending.
func (r *Repository) ListIncidents(ctx context.Context, filters incidents.IncidentFilters) ([]domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filters.Severity != nil {
		query += fmt.Sprintf(" AND severity = $%d", argNum)
		args = append(args, *filters.Severity)
		argNum++
	}

	query += " ORDER BY created_at DESC, id"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		result = append(result, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	return result, nil
}

// UpdateIncident updates the mutable fields of an incident.
func (r *Repository) UpdateIncident(ctx context.Context, incident *domain.Incident) error {
	return r.updateIncident(ctx, r.db, incident)
}

// UpdateIncidentTx updates an incident within a transaction.
func (r *Repository) UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error {
	return r.updateIncident(ctx, tx, incident)
}

func (r *Repository) updateIncident(ctx context.Context, q querier, incident *domain.Incident) error {
	query := `
		UPDATE incidents
		SET status = $2, assigned_to = $3, resolution_notes = $4, impact_score = $5,
		    resolved_at = CASE WHEN $6::timestamptz IS NULL THEN NULL ELSE GREATEST($6::timestamptz, created_at) END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at, resolved_at
	`
	err := q.QueryRow(ctx, query,
		incident.ID,
		incident.Status,
		incident.AssignedTo,
		incident.ResolutionNotes,
		incident.ImpactScore,
		incident.ResolvedAt,
	).Scan(&incident.UpdatedAt, &incident.ResolvedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incidents.ErrIncidentNotFound
		}
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

// CreateTimelineEvent appends a timeline event.
func (r *Repository) CreateTimelineEvent(ctx context.Context, event *domain.TimelineEvent) error {
	return r.createTimelineEvent(ctx, r.db, event)
}

// CreateTimelineEventTx appends a timeline event within a transaction.
func (r *Repository) CreateTimelineEventTx(ctx context.Context, tx pgx.Tx, event *domain.TimelineEvent) error {
	return r.createTimelineEvent(ctx, tx, event)
}

func (r *Repository) createTimelineEvent(ctx context.Context, q querier, event *domain.TimelineEvent) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	query := `
		INSERT INTO timeline_events (incident_id, event_type, title, description, user_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, timestamp
	`
	err := q.QueryRow(ctx, query,
		event.IncidentID,
		event.EventType,
		event.Title,
		event.Description,
		event.UserID,
		metadata,
	).Scan(&event.ID, &event.Timestamp)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return incidents.ErrIncidentNotFound
		}
		return fmt.Errorf("create timeline event: %w", err)
	}
	return nil
}

// ListTimelineEvents returns the timeline of an incident in chronological order.
func (r *Repository) ListTimelineEvents(ctx context.Context, incidentID string) ([]domain.TimelineEvent, error) {
	query := `
		SELECT id, incident_id, timestamp, event_type, title, description, user_id, metadata
		FROM timeline_events
		WHERE incident_id = $1
		ORDER BY timestamp ASC, id
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		var ev domain.TimelineEvent
		if err := rows.Scan(
			&ev.ID,
			&ev.IncidentID,
			&ev.Timestamp,
			&ev.EventType,
			&ev.Title,
			&ev.Description,
			&ev.UserID,
			&ev.Metadata,
		); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline events: %w", err)
	}

	return events, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
