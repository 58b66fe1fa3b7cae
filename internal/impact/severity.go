package impact

import "github.com/bissquit/incident-impact/internal/domain"

// Weights for severities missing from the table.
const (
	DefaultMultiplier  = 1.0
	DefaultImpactScore = 0
)

// SeverityWeight holds the cost multiplier and default impact score of one severity.
type SeverityWeight struct {
	Multiplier  float64 `koanf:"multiplier" json:"multiplier"`
	ImpactScore int     `koanf:"impact_score" json:"impact_score"`
}

// SeverityTable maps severities to their weights.
type SeverityTable map[domain.Severity]SeverityWeight

// DefaultSeverityTable returns the standard weight table.
func DefaultSeverityTable() SeverityTable {
	return SeverityTable{
		domain.SeverityCritical: {Multiplier: 1.5, ImpactScore: 100},
		domain.SeverityHigh:     {Multiplier: 1.2, ImpactScore: 75},
		domain.SeverityMedium:   {Multiplier: 1.0, ImpactScore: 50},
		domain.SeverityLow:      {Multiplier: 0.5, ImpactScore: 25},
	}
}

// Weights returns the multiplier and default impact score for a severity.
// Unknown or empty severities get DefaultMultiplier and DefaultImpactScore.
func (t SeverityTable) Weights(s domain.Severity) (float64, int) {
	w, ok := t[s]
	if !ok {
		return DefaultMultiplier, DefaultImpactScore
	}
	return w.Multiplier, w.ImpactScore
}

func (t SeverityTable) clone() SeverityTable {
	out := make(SeverityTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Severities enumerates the known severity levels, most urgent first.
func Severities() []domain.Severity {
	return domain.Severities()
}
