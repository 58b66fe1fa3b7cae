package impact

import (
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
)

// Report is a complete evaluation of one incident snapshot.
type Report struct {
	GeneratedAt      time.Time                        `json:"generated_at"`
	HourlyRevenue    float64                          `json:"hourly_revenue"`
	Stats            Stats                            `json:"stats"`
	Impact           Impact                           `json:"impact"`
	Breakdown        map[domain.Severity]SeverityCost `json:"breakdown"`
	PotentialSavings int64                            `json:"potential_savings"`
	AnnualSavings    int64                            `json:"annual_savings"`
	Accruals         []Accrual                        `json:"accruals"`
	Analytics        Analytics                        `json:"analytics"`
}

// Snapshot evaluates every aggregate for the given incidents at now.
func (c *Calculator) Snapshot(incs []domain.Incident, hourlyRevenue float64, now time.Time) Report {
	total := c.TotalImpact(incs, hourlyRevenue, now)

	return Report{
		GeneratedAt:      now,
		HourlyRevenue:    hourlyRevenue,
		Stats:            ComputeStats(incs),
		Impact:           total,
		Breakdown:        c.SeverityBreakdown(incs, hourlyRevenue, now),
		PotentialSavings: c.PotentialSavings(total.Total),
		AnnualSavings:    c.AnnualSavings(total.Total),
		Accruals:         c.Accruals(incs, hourlyRevenue, now),
		Analytics:        c.Analyze(incs),
	}
}
