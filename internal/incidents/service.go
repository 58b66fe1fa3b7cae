// Package incidents implements the incident store, its commands and the REST API over them.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/bissquit/incident-impact/internal/pkg/ctxlog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// List limits.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Service implements incident business logic.
type Service struct {
	repo     Repository
	members  MemberDirectory
	scores   ScoreTable
	notifier ChangeNotifier
	now      func() time.Time
}

// NewService creates a new incident service. notifier may be nil.
func NewService(repo Repository, members MemberDirectory, scores ScoreTable, notifier ChangeNotifier) *Service {
	return &Service{
		repo:     repo,
		members:  members,
		scores:   scores,
		notifier: notifier,
		now:      time.Now,
	}
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	Title            string
	Description      string
	Severity         string
	AffectedServices []string
	ReportedBy       string
}

// UpdateIncidentInput holds a partial incident update. Nil fields are left unchanged.
type UpdateIncidentInput struct {
	Status          *string
	AssignedTo      *string
	ResolutionNotes *string
}

// ClampLimit applies the default and maximum list sizes.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// ListIncidents returns the newest incidents.
func (s *Service) ListIncidents(ctx context.Context, limit int) ([]domain.Incident, error) {
	return s.repo.ListIncidents(ctx, IncidentFilters{Limit: ClampLimit(limit)})
}

// Snapshot returns up to limit newest incidents without clamping to MaxListLimit.
func (s *Service) Snapshot(ctx context.Context, limit int) ([]domain.Incident, error) {
	return s.repo.ListIncidents(ctx, IncidentFilters{Limit: limit})
}

// ListBySeverity returns all incidents of one severity.
func (s *Service) ListBySeverity(ctx context.Context, raw string) ([]domain.Incident, error) {
	severity := domain.ParseSeverity(raw)
	if !severity.IsValid() {
		return nil, ErrInvalidSeverity
	}
	return s.repo.ListIncidents(ctx, IncidentFilters{Severity: &severity})
}

// GetIncident returns one incident.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	if !isID(id) {
		return nil, ErrIncidentNotFound
	}
	return s.repo.GetIncident(ctx, id)
}

// ListTimeline returns the timeline of an incident in chronological order.
func (s *Service) ListTimeline(ctx context.Context, incidentID string) ([]domain.TimelineEvent, error) {
	if _, err := s.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	return s.repo.ListTimelineEvents(ctx, incidentID)
}

// CreateIncident stores a new incident in the reported state together with its creation event.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput, userID string) (*domain.Incident, error) {
	severity := domain.ParseSeverity(input.Severity)
	if severity == "" {
		severity = domain.SeverityMedium
	}
	if !severity.IsValid() {
		return nil, ErrInvalidSeverity
	}

	reportedBy := strings.TrimSpace(input.ReportedBy)
	if reportedBy == "" {
		reportedBy = userID
	}

	_, score := s.scores.Weights(severity)

	incident := &domain.Incident{
		Title:            strings.TrimSpace(input.Title),
		Description:      strings.TrimSpace(input.Description),
		Severity:         severity,
		Status:           domain.StatusReported,
		AffectedServices: input.AffectedServices,
		ReportedBy:       reportedBy,
		ImpactScore:      &score,
	}
	incident.Normalize()

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.CreateIncidentTx(ctx, tx, incident); err != nil {
			return fmt.Errorf("create incident: %w", err)
		}

		event := &domain.TimelineEvent{
			IncidentID:  incident.ID,
			EventType:   domain.TimelineEventCreated,
			Title:       "Incident Reported",
			Description: fmt.Sprintf("Incident created by %s", reportedBy),
			UserID:      reportedBy,
		}
		if err := s.repo.CreateTimelineEventTx(ctx, tx, event); err != nil {
			return fmt.Errorf("create timeline event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("incident created",
		"incident_id", incident.ID,
		"severity", incident.Severity,
	)
	s.changed(ctx)

	return incident, nil
}

// UpdateIncident applies a partial update. Moving to resolved stamps resolved_at,
// moving away from resolved clears it.
func (s *Service) UpdateIncident(ctx context.Context, id string, input UpdateIncidentInput) (*domain.Incident, error) {
	incident, err := s.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Status != nil {
		status := domain.ParseStatus(*input.Status)
		if !status.IsValid() {
			return nil, ErrInvalidStatus
		}
		s.applyStatus(incident, status)
	}

	if input.AssignedTo != nil {
		assignee := strings.TrimSpace(*input.AssignedTo)
		if assignee == "" {
			incident.AssignedTo = nil
		} else {
			incident.AssignedTo = &assignee
		}
	}

	if input.ResolutionNotes != nil {
		notes := *input.ResolutionNotes
		incident.ResolutionNotes = &notes
	}

	incident.Normalize()

	if err := s.repo.UpdateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}

	s.changed(ctx)
	return incident, nil
}

// Assign assigns an incident to a team member and records an assignment event.
func (s *Service) Assign(ctx context.Context, incidentID, memberID, userID string) (*domain.TimelineEvent, error) {
	member, ok := s.members.GetMember(memberID)
	if !ok {
		return nil, ErrUnknownMember
	}

	incident, err := s.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	incident.AssignedTo = &member.ID

	event := &domain.TimelineEvent{
		IncidentID:  incident.ID,
		EventType:   domain.TimelineEventAssignment,
		Title:       "Incident Assigned",
		Description: fmt.Sprintf("Assigned to %s", member.ID),
		UserID:      userID,
		Metadata:    map[string]string{"team_member_id": member.ID},
	}

	if err := s.updateWithEvent(ctx, incident, event); err != nil {
		return nil, err
	}
	return event, nil
}

// UpdateStatus changes the status of an incident and records a status change event.
// Non-empty notes replace the resolution notes.
func (s *Service) UpdateStatus(ctx context.Context, incidentID, rawStatus, notes, userID string) (*domain.TimelineEvent, error) {
	status := domain.ParseStatus(rawStatus)
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	incident, err := s.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	s.applyStatus(incident, status)

	notes = strings.TrimSpace(notes)
	if notes != "" {
		incident.ResolutionNotes = &notes
	}

	description := notes
	if description == "" {
		description = fmt.Sprintf("Status changed to %s", status)
	}

	metadata := map[string]string{"status": string(status)}
	if notes != "" {
		metadata["notes"] = notes
	}

	event := &domain.TimelineEvent{
		IncidentID:  incident.ID,
		EventType:   domain.TimelineEventStatusChange,
		Title:       fmt.Sprintf("Status Updated to %s", status),
		Description: description,
		UserID:      userID,
		Metadata:    metadata,
	}

	if err := s.updateWithEvent(ctx, incident, event); err != nil {
		return nil, err
	}
	return event, nil
}

// AddNote appends a note to the incident timeline.
func (s *Service) AddNote(ctx context.Context, incidentID, note, userID string) (*domain.TimelineEvent, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, ErrEmptyNote
	}

	if _, err := s.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}

	event := &domain.TimelineEvent{
		IncidentID:  incidentID,
		EventType:   domain.TimelineEventNote,
		Title:       "Note Added",
		Description: note,
		UserID:      userID,
		Metadata:    map[string]string{"note": note},
	}

	if err := s.repo.CreateTimelineEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create timeline event: %w", err)
	}

	s.changed(ctx)
	return event, nil
}

func (s *Service) applyStatus(incident *domain.Incident, status domain.Status) {
	incident.Status = status
	if status.IsResolved() {
		now := s.now().UTC()
		incident.ResolvedAt = &now
		return
	}
	incident.ResolvedAt = nil
}

func (s *Service) updateWithEvent(ctx context.Context, incident *domain.Incident, event *domain.TimelineEvent) error {
	incident.Normalize()

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.UpdateIncidentTx(ctx, tx, incident); err != nil {
			return fmt.Errorf("update incident: %w", err)
		}
		if err := s.repo.CreateTimelineEventTx(ctx, tx, event); err != nil {
			return fmt.Errorf("create timeline event: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	ctxlog.FromContext(ctx).Info("incident updated",
		"incident_id", incident.ID,
		"event_type", event.EventType,
	)
	s.changed(ctx)
	return nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Service) changed(ctx context.Context) {
	if s.notifier != nil {
		s.notifier.IncidentsChanged(ctx)
	}
}

func isID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
