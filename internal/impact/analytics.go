package impact

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
)

// NotAvailable is rendered when a metric has no underlying data.
const NotAvailable = "N/A"

// Trend classifies the resolution rate.
type Trend string

// Trend values.
const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// ServiceCount is the number of incidents that affected a service.
type ServiceCount struct {
	Service string `json:"service"`
	Count   int    `json:"count"`
}

// Analytics bundles resolution performance metrics.
type Analytics struct {
	TotalIncidents         int                     `json:"total_incidents"`
	ResolvedIncidents      int                     `json:"resolved_incidents"`
	ResolutionRate         int                     `json:"resolution_rate"`
	AverageResolutionTime  string                  `json:"average_resolution_time"`
	AverageResolutionHours *float64                `json:"average_resolution_hours,omitempty"`
	TopServices            []ServiceCount          `json:"top_services"`
	Trend                  Trend                   `json:"trend"`
	SeverityDistribution   map[domain.Severity]int `json:"severity_distribution"`
}

// AverageResolutionTime averages resolved_at - created_at over resolved incidents
// with both instants known. The boolean is false when no incident qualifies.
func AverageResolutionTime(incs []domain.Incident) (time.Duration, bool) {
	var sum time.Duration
	n := 0
	for _, inc := range incs {
		if !inc.Status.IsResolved() || inc.ResolvedAt == nil || inc.CreatedAt.IsZero() {
			continue
		}
		d := inc.ResolvedAt.Sub(inc.CreatedAt)
		if d < 0 {
			d = 0
		}
		sum += d
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / time.Duration(n), true
}

// FormatResolutionTime renders an average resolution time in hours.
func FormatResolutionTime(d time.Duration, ok bool) string {
	if !ok {
		return NotAvailable
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

// ResolutionRate returns the share of resolved incidents as a whole percentage.
func ResolutionRate(incs []domain.Incident) int {
	if len(incs) == 0 {
		return 0
	}
	resolved := 0
	for _, inc := range incs {
		if inc.Status.IsResolved() {
			resolved++
		}
	}
	return int(math.Round(float64(resolved) / float64(len(incs)) * 100))
}

// TopAffectedServices counts services across incidents, each incident counting a
// service once. Results are sorted by descending count, ties by first appearance.
func TopAffectedServices(incs []domain.Incident, limit int) []ServiceCount {
	if limit <= 0 {
		limit = DefaultConfig().TopServicesLimit
	}

	counts := make([]ServiceCount, 0)
	index := make(map[string]int)
	for _, inc := range incs {
		for _, svc := range domain.UniqueServices(inc.AffectedServices) {
			i, ok := index[svc]
			if !ok {
				i = len(counts)
				index[svc] = i
				counts = append(counts, ServiceCount{Service: svc})
			}
			counts[i].Count++
		}
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})

	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

// WeeklyTrend classifies a resolution rate against the configured thresholds.
func (c *Calculator) WeeklyTrend(rate int) Trend {
	switch {
	case rate > c.cfg.ImprovingAbove:
		return TrendImproving
	case rate > c.cfg.StableAbove:
		return TrendStable
	default:
		return TrendDeclining
	}
}

// Analyze computes all resolution metrics for a snapshot.
func (c *Calculator) Analyze(incs []domain.Incident) Analytics {
	rate := ResolutionRate(incs)
	avg, ok := AverageResolutionTime(incs)
	stats := ComputeStats(incs)

	a := Analytics{
		TotalIncidents:        stats.Total,
		ResolvedIncidents:     stats.Resolved,
		ResolutionRate:        rate,
		AverageResolutionTime: FormatResolutionTime(avg, ok),
		TopServices:           TopAffectedServices(incs, c.cfg.TopServicesLimit),
		Trend:                 c.WeeklyTrend(rate),
		SeverityDistribution: map[domain.Severity]int{
			domain.SeverityCritical: stats.Critical,
			domain.SeverityHigh:     stats.High,
			domain.SeverityMedium:   stats.Medium,
			domain.SeverityLow:      stats.Low,
		},
	}
	if ok {
		hours := avg.Hours()
		a.AverageResolutionHours = &hours
	}
	return a
}
