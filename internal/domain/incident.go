package domain

import (
	"strings"
	"time"
)

// Severity represents the urgency classification of an incident.
type Severity string

// Severity levels, most urgent first.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists the known severity levels, most urgent first.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

// IsValid checks if the severity is one of the known levels.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// ParseSeverity normalizes a raw severity value.
// Unknown values are kept as-is so that callers can decide how to tolerate them.
func ParseSeverity(raw string) Severity {
	return Severity(strings.ToLower(strings.TrimSpace(raw)))
}

// Status represents the lifecycle state of an incident.
type Status string

// Incident statuses.
const (
	StatusReported      Status = "reported"
	StatusInvestigating Status = "investigating"
	StatusIdentified    Status = "identified"
	StatusMonitoring    Status = "monitoring"
	StatusResolved      Status = "resolved"
)

// IsValid checks if the status is one of the known lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusReported, StatusInvestigating, StatusIdentified, StatusMonitoring, StatusResolved:
		return true
	}
	return false
}

// IsResolved reports whether the status is terminal for cost accrual.
func (s Status) IsResolved() bool {
	return s == StatusResolved
}

// ParseStatus normalizes a raw status value.
func ParseStatus(raw string) Status {
	return Status(strings.ToLower(strings.TrimSpace(raw)))
}

// Incident is a tracked operational disruption.
//
// CreatedAt is the zero time when the start of the incident is unknown.
// ImpactScore is nil when the score should be derived from the severity.
type Incident struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Severity         Severity   `json:"severity"`
	Status           Status     `json:"status"`
	AffectedServices []string   `json:"affected_services"`
	ReportedBy       string     `json:"reported_by"`
	AssignedTo       *string    `json:"assigned_to,omitempty"`
	ResolutionNotes  *string    `json:"resolution_notes,omitempty"`
	ImpactScore      *int       `json:"impact_score,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// IsActive reports whether the incident still accrues cost.
func (i *Incident) IsActive() bool {
	return !i.Status.IsResolved()
}

// Normalize enforces the record invariants in place:
// services are trimmed and de-duplicated, resolved_at is never before created_at
// and the impact score stays within 0..100.
func (i *Incident) Normalize() {
	i.Severity = ParseSeverity(string(i.Severity))
	i.Status = ParseStatus(string(i.Status))
	i.AffectedServices = UniqueServices(i.AffectedServices)

	if i.ResolvedAt != nil && !i.CreatedAt.IsZero() && i.ResolvedAt.Before(i.CreatedAt) {
		clamped := i.CreatedAt
		i.ResolvedAt = &clamped
	}

	if i.ImpactScore != nil {
		score := *i.ImpactScore
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		i.ImpactScore = &score
	}
}

// UniqueServices returns trimmed, non-empty service names in first-seen order.
func UniqueServices(services []string) []string {
	result := make([]string, 0, len(services))
	seen := make(map[string]struct{}, len(services))
	for _, s := range services {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		result = append(result, s)
	}
	return result
}
