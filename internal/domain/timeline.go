package domain

import "time"

// TimelineEventType represents the kind of action recorded on an incident.
type TimelineEventType string

// Timeline event types.
const (
	TimelineEventCreated      TimelineEventType = "created"
	TimelineEventAssignment   TimelineEventType = "assignment"
	TimelineEventStatusChange TimelineEventType = "status_change"
	TimelineEventNote         TimelineEventType = "note"
)

// TimelineEvent is an append-only record of an action taken on an incident.
type TimelineEvent struct {
	ID          string            `json:"id"`
	IncidentID  string            `json:"incident_id"`
	Timestamp   time.Time         `json:"timestamp"`
	EventType   TimelineEventType `json:"event_type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	UserID      string            `json:"user_id"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// MemberStatus represents the availability of a team member.
type MemberStatus string

// Member availability.
const (
	MemberStatusAvailable MemberStatus = "available"
	MemberStatusBusy      MemberStatus = "busy"
	MemberStatusOffline   MemberStatus = "offline"
)

// TeamMember is a responder that incidents can be assigned to.
type TeamMember struct {
	ID     string       `json:"id"`
	Email  string       `json:"email"`
	Name   string       `json:"name"`
	Role   Role         `json:"role"`
	Skills []string     `json:"skills"`
	Status MemberStatus `json:"status"`
}
