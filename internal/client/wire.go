package client

import (
	"encoding/json"
	"math"
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
)

// wireIncident mirrors the incident JSON with loosely typed timestamps and score,
// so records written by other collaborators still decode.
type wireIncident struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Severity         string          `json:"severity"`
	Status           string          `json:"status"`
	AffectedServices []string        `json:"affected_services"`
	ReportedBy       string          `json:"reported_by"`
	AssignedTo       *string         `json:"assigned_to"`
	ResolutionNotes  *string         `json:"resolution_notes"`
	ImpactScore      *float64        `json:"impact_score"`
	CreatedAt        json.RawMessage `json:"created_at"`
	UpdatedAt        json.RawMessage `json:"updated_at"`
	ResolvedAt       json.RawMessage `json:"resolved_at"`
}

func (w wireIncident) toDomain() domain.Incident {
	inc := domain.Incident{
		ID:               w.ID,
		Title:            w.Title,
		Description:      w.Description,
		Severity:         domain.Severity(w.Severity),
		Status:           domain.Status(w.Status),
		AffectedServices: w.AffectedServices,
		ReportedBy:       w.ReportedBy,
		AssignedTo:       w.AssignedTo,
		ResolutionNotes:  w.ResolutionNotes,
	}

	if w.ImpactScore != nil && !math.IsNaN(*w.ImpactScore) && !math.IsInf(*w.ImpactScore, 0) {
		score := int(math.Round(*w.ImpactScore))
		inc.ImpactScore = &score
	}

	inc.CreatedAt, _ = domain.ParseTimestampJSON(w.CreatedAt)
	inc.UpdatedAt, _ = domain.ParseTimestampJSON(w.UpdatedAt)
	if t, ok := domain.ParseTimestampJSON(w.ResolvedAt); ok {
		inc.ResolvedAt = &t
	}

	inc.Normalize()
	return inc
}

func toIncidents(ws []wireIncident) []domain.Incident {
	result := make([]domain.Incident, 0, len(ws))
	for _, w := range ws {
		result = append(result, w.toDomain())
	}
	return result
}

type wireEvent struct {
	ID          string            `json:"id"`
	IncidentID  string            `json:"incident_id"`
	Timestamp   json.RawMessage   `json:"timestamp"`
	EventType   string            `json:"event_type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	UserID      string            `json:"user_id"`
	Metadata    map[string]string `json:"metadata"`
}

func (w wireEvent) toDomain() domain.TimelineEvent {
	ts, _ := domain.ParseTimestampJSON(w.Timestamp)
	return domain.TimelineEvent{
		ID:          w.ID,
		IncidentID:  w.IncidentID,
		Timestamp:   ts,
		EventType:   domain.TimelineEventType(w.EventType),
		Title:       w.Title,
		Description: w.Description,
		UserID:      w.UserID,
		Metadata:    w.Metadata,
	}
}

type wireHealth struct {
	Status    string          `json:"status"`
	Database  string          `json:"database"`
	Version   string          `json:"version"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type streamMessage struct {
	Type string `json:"type"`
	Data struct {
		Incidents   []wireIncident  `json:"incidents"`
		GeneratedAt json.RawMessage `json:"generated_at"`
	} `json:"data"`
}

// Fixtures returns the built-in example incidents shown when the backend is unreachable.
func Fixtures() []domain.Incident {
	ts := func(s string) time.Time {
		t, _ := domain.ParseTimestamp(s)
		return t
	}
	strp := func(s string) *string { return &s }
	intp := func(n int) *int { return &n }

	return []domain.Incident{
		{
			ID:               "1",
			Title:            "Database Connection Timeout",
			Description:      "Primary database experiencing intermittent connection timeouts affecting user authentication.",
			Severity:         domain.SeverityCritical,
			Status:           domain.StatusInvestigating,
			AffectedServices: []string{"auth-service", "user-profile", "payment-processing"},
			ReportedBy:       "system-monitor",
			AssignedTo:       strp("dba-team"),
			ImpactScore:      intp(95),
			CreatedAt:        ts("2024-01-13T10:30:00Z"),
			UpdatedAt:        ts("2024-01-13T11:15:00Z"),
		},
		{
			ID:               "2",
			Title:            "API Response Latency",
			Description:      "Increased response times in order processing API during peak hours.",
			Severity:         domain.SeverityHigh,
			Status:           domain.StatusIdentified,
			AffectedServices: []string{"order-api", "checkout-service"},
			ReportedBy:       "performance-monitor",
			AssignedTo:       strp("backend-team"),
			ImpactScore:      intp(75),
			CreatedAt:        ts("2024-01-13T09:00:00Z"),
			UpdatedAt:        ts("2024-01-13T10:45:00Z"),
		},
		{
			ID:               "3",
			Title:            "Frontend Dashboard Loading Issue",
			Description:      "Some users reporting slow loading of analytics dashboard.",
			Severity:         domain.SeverityMedium,
			Status:           domain.StatusMonitoring,
			AffectedServices: []string{"frontend-dashboard", "analytics-service"},
			ReportedBy:       "user-feedback",
			ImpactScore:      intp(50),
			CreatedAt:        ts("2024-01-12T14:20:00Z"),
			UpdatedAt:        ts("2024-01-13T08:30:00Z"),
		},
	}
}
