package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, ParseSeverity(" Critical "))
	assert.Equal(t, SeverityLow, ParseSeverity("LOW"))
	assert.Equal(t, Severity(""), ParseSeverity(""))

	unknown := ParseSeverity("Sev1")
	assert.Equal(t, Severity("sev1"), unknown)
	assert.False(t, unknown.IsValid())
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusResolved, ParseStatus("RESOLVED"))
	assert.True(t, ParseStatus("Monitoring").IsValid())
	assert.False(t, ParseStatus("closed").IsValid())
}

func TestIncident_Normalize(t *testing.T) {
	created := time.Date(2024, 1, 13, 10, 0, 0, 0, time.UTC)
	resolved := created.Add(-time.Hour)
	score := 140

	inc := &Incident{
		Severity:         "High",
		Status:           "Resolved",
		AffectedServices: []string{"api", " api", "", "db", "api"},
		CreatedAt:        created,
		ResolvedAt:       &resolved,
		ImpactScore:      &score,
	}
	inc.Normalize()

	assert.Equal(t, SeverityHigh, inc.Severity)
	assert.Equal(t, StatusResolved, inc.Status)
	assert.Equal(t, []string{"api", "db"}, inc.AffectedServices)
	require.NotNil(t, inc.ResolvedAt)
	assert.True(t, inc.ResolvedAt.Equal(created))
	require.NotNil(t, inc.ImpactScore)
	assert.Equal(t, 100, *inc.ImpactScore)
	assert.Equal(t, 140, score, "caller's value must not be mutated")
	assert.False(t, inc.IsActive())
}

func TestIncident_NormalizeNegativeScore(t *testing.T) {
	score := -3
	inc := &Incident{ImpactScore: &score}
	inc.Normalize()
	assert.Equal(t, 0, *inc.ImpactScore)
	assert.Empty(t, inc.AffectedServices)
}

func TestRole_HasPermission(t *testing.T) {
	assert.True(t, RoleAdmin.HasPermission(RoleResponder))
	assert.True(t, RoleResponder.HasPermission(RoleResponder))
	assert.False(t, RoleViewer.HasPermission(RoleResponder))
	assert.False(t, Role("guest").HasPermission(RoleViewer))
}
