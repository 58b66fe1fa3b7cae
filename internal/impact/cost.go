package impact

import (
	"log/slog"
	"math"
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
)

// Impact is the portfolio-wide cost of active incidents.
type Impact struct {
	Total       int64 `json:"total"`
	PerMinute   int64 `json:"per_minute"`
	ActiveCount int   `json:"active_count"`
}

// SeverityCost aggregates active incidents of one severity.
type SeverityCost struct {
	Count int   `json:"count"`
	Cost  int64 `json:"cost"`
}

// Accrual is a live cost ticker for one active incident.
type Accrual struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Severity       domain.Severity `json:"severity"`
	Elapsed        time.Duration   `json:"-"`
	ElapsedMinutes int64           `json:"elapsed_minutes"`
	Cost           int64           `json:"cost"`
	PerMinute      int64           `json:"per_minute"`
	Progress       float64         `json:"progress"`
}

// validRevenue reports whether the hourly revenue is a positive finite number.
func validRevenue(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 0) && !math.IsNaN(rate)
}

// elapsed returns the accrual window of an incident.
// Resolved incidents stop accruing at resolved_at when it is known.
func elapsed(inc domain.Incident, now time.Time) time.Duration {
	if inc.CreatedAt.IsZero() {
		return 0
	}

	end := now
	if inc.Status.IsResolved() && inc.ResolvedAt != nil && inc.ResolvedAt.Before(now) {
		end = *inc.ResolvedAt
	}

	d := end.Sub(inc.CreatedAt)
	if d < 0 {
		return 0
	}
	return d
}

func (c *Calculator) rawCost(inc domain.Incident, hourlyRevenue float64, now time.Time) float64 {
	if !validRevenue(hourlyRevenue) {
		return 0
	}
	multiplier, _ := c.table.Weights(inc.Severity)
	return elapsed(inc, now).Minutes() / 60 * hourlyRevenue * multiplier
}

// IncidentCost returns the accrued cost of a single incident in whole currency units.
func (c *Calculator) IncidentCost(inc domain.Incident, hourlyRevenue float64, now time.Time) int64 {
	return int64(math.Round(c.rawCost(inc, hourlyRevenue, now)))
}

// TotalImpact sums the cost of all active incidents.
func (c *Calculator) TotalImpact(incs []domain.Incident, hourlyRevenue float64, now time.Time) Impact {
	if len(incs) == 0 || !validRevenue(hourlyRevenue) {
		return Impact{}
	}

	var total float64
	active := 0
	for _, inc := range incs {
		if !inc.IsActive() {
			continue
		}
		active++
		total += c.rawCost(inc, hourlyRevenue, now)
	}

	if active == 0 {
		return Impact{}
	}

	return Impact{
		Total:       int64(math.Round(total)),
		PerMinute:   int64(math.Round(hourlyRevenue / 60)),
		ActiveCount: active,
	}
}

// SeverityBreakdown buckets active incidents by severity.
// The result always contains every known severity. An empty severity counts as medium,
// unrecognised severities are skipped.
func (c *Calculator) SeverityBreakdown(incs []domain.Incident, hourlyRevenue float64, now time.Time) map[domain.Severity]SeverityCost {
	result := make(map[domain.Severity]SeverityCost, 4)
	for _, s := range domain.Severities() {
		result[s] = SeverityCost{}
	}

	for _, inc := range incs {
		if !inc.IsActive() {
			continue
		}

		severity := inc.Severity
		if severity == "" {
			severity = domain.SeverityMedium
		}

		bucket, ok := result[severity]
		if !ok {
			slog.Debug("skipping incident with unknown severity",
				"incident_id", inc.ID,
				"severity", inc.Severity,
			)
			continue
		}

		bucket.Count++
		bucket.Cost += c.IncidentCost(inc, hourlyRevenue, now)
		result[severity] = bucket
	}

	return result
}

// PotentialSavings estimates the cost avoidable with faster response.
func (c *Calculator) PotentialSavings(total int64) int64 {
	return int64(math.Round(float64(total) * c.cfg.SavingsRate))
}

// AnnualSavings projects PotentialSavings over a year.
func (c *Calculator) AnnualSavings(total int64) int64 {
	return int64(math.Round(float64(total) * c.cfg.AnnualizationFactor * c.cfg.SavingsRate))
}

// Accruals returns live cost tickers for the first active incidents in input order.
func (c *Calculator) Accruals(incs []domain.Incident, hourlyRevenue float64, now time.Time) []Accrual {
	result := make([]Accrual, 0, c.cfg.SimulationLimit)
	for _, inc := range incs {
		if len(result) >= c.cfg.SimulationLimit {
			break
		}
		if !inc.IsActive() {
			continue
		}

		d := elapsed(inc, now)
		multiplier, _ := c.table.Weights(inc.Severity)

		var perMinute int64
		if validRevenue(hourlyRevenue) {
			perMinute = int64(math.Round(hourlyRevenue * multiplier / 60))
		}

		progress := float64(d) / float64(c.cfg.ProgressScale) * 100
		if progress > 100 {
			progress = 100
		}

		result = append(result, Accrual{
			ID:             inc.ID,
			Title:          inc.Title,
			Severity:       inc.Severity,
			Elapsed:        d,
			ElapsedMinutes: int64(d / time.Minute),
			Cost:           c.IncidentCost(inc, hourlyRevenue, now),
			PerMinute:      perMinute,
			Progress:       progress,
		})
	}
	return result
}
