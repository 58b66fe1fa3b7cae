// Package team holds the responder roster incidents are assigned to.
package team

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/incident-impact/internal/domain"
)

// Roster errors.
var (
	ErrMemberNotFound = errors.New("team member not found")
	ErrInvalidMember  = errors.New("invalid team member")
)

// roleAliases maps legacy roster roles onto account roles.
var roleAliases = map[string]domain.Role{
	"engineer": domain.RoleResponder,
	"operator": domain.RoleResponder,
}

// Roster is an immutable, ordered set of team members.
type Roster struct {
	members []domain.TeamMember
	byID    map[string]int
	byEmail map[string]int
}

// NewRoster builds a roster. Member ids must be non-empty and unique.
func NewRoster(members []domain.TeamMember) (*Roster, error) {
	r := &Roster{
		members: make([]domain.TeamMember, 0, len(members)),
		byID:    make(map[string]int, len(members)),
		byEmail: make(map[string]int, len(members)),
	}

	for _, m := range members {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			return nil, fmt.Errorf("%w: empty id", ErrInvalidMember)
		}
		if _, dup := r.byID[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidMember, m.ID)
		}

		m.Role = ParseRole(string(m.Role))
		m.Status = ParseStatus(string(m.Status))
		m.Skills = append([]string{}, m.Skills...)

		idx := len(r.members)
		r.members = append(r.members, m)
		r.byID[m.ID] = idx
		if email := strings.ToLower(strings.TrimSpace(m.Email)); email != "" {
			r.byEmail[email] = idx
		}
	}

	return r, nil
}

// ParseRole maps a roster role onto an account role. Unknown roles become viewer.
func ParseRole(raw string) domain.Role {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if role, ok := roleAliases[raw]; ok {
		return role
	}
	if role := domain.Role(raw); role.IsValid() {
		return role
	}
	return domain.RoleViewer
}

// ParseStatus normalizes a member status. Unknown values become available.
func ParseStatus(raw string) domain.MemberStatus {
	switch s := domain.MemberStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case domain.MemberStatusAvailable, domain.MemberStatusBusy, domain.MemberStatusOffline:
		return s
	default:
		return domain.MemberStatusAvailable
	}
}

// List returns all members in roster order.
func (r *Roster) List() []domain.TeamMember {
	out := make([]domain.TeamMember, len(r.members))
	copy(out, r.members)
	return out
}

// ListByStatus returns the members with the given status.
func (r *Roster) ListByStatus(status domain.MemberStatus) []domain.TeamMember {
	out := make([]domain.TeamMember, 0)
	for _, m := range r.members {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out
}

// GetMember returns a member by id. Implements incidents.MemberDirectory.
func (r *Roster) GetMember(id string) (domain.TeamMember, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return domain.TeamMember{}, false
	}
	return r.members[idx], true
}

// GetMemberByEmail returns a member by email, case-insensitively.
func (r *Roster) GetMemberByEmail(email string) (domain.TeamMember, bool) {
	idx, ok := r.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return domain.TeamMember{}, false
	}
	return r.members[idx], true
}

// Len returns the number of members.
func (r *Roster) Len() int {
	return len(r.members)
}
