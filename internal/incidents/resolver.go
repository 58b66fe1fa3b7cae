package incidents

import (
	"context"

	"github.com/bissquit/incident-impact/internal/domain"
)

// MemberDirectory resolves team members that incidents can be assigned to.
type MemberDirectory interface {
	GetMember(id string) (domain.TeamMember, bool)
}

// ScoreTable provides the default impact score of a severity.
type ScoreTable interface {
	Weights(s domain.Severity) (multiplier float64, impactScore int)
}

// ChangeNotifier is told about every committed incident mutation.
type ChangeNotifier interface {
	IncidentsChanged(ctx context.Context)
}
