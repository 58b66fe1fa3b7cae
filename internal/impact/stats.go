package impact

import "github.com/bissquit/incident-impact/internal/domain"

// Stats summarises an incident list by severity and status.
type Stats struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Active   int `json:"active"`
	Resolved int `json:"resolved"`
}

// ComputeStats counts incidents. Severity buckets match exactly, so an unknown
// severity only contributes to Total.
func ComputeStats(incs []domain.Incident) Stats {
	var s Stats
	s.Total = len(incs)
	for _, inc := range incs {
		switch inc.Severity {
		case domain.SeverityCritical:
			s.Critical++
		case domain.SeverityHigh:
			s.High++
		case domain.SeverityMedium:
			s.Medium++
		case domain.SeverityLow:
			s.Low++
		}

		if inc.Status.IsResolved() {
			s.Resolved++
		} else {
			s.Active++
		}
	}
	return s
}
