// Package dashboard serves impact, statistics and analytics aggregates over the newest incidents.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/bissquit/incident-impact/internal/impact"
	"github.com/bissquit/incident-impact/internal/pkg/ctxlog"
	"github.com/bissquit/incident-impact/internal/pkg/metrics"
	"github.com/jellydator/ttlcache/v3"
)

// ErrUnavailable is returned when the store fails and no cached snapshot exists.
var ErrUnavailable = errors.New("incident data unavailable")

const snapshotKey = "snapshot"

// Source loads the newest incidents.
type Source interface {
	Snapshot(ctx context.Context, limit int) ([]domain.Incident, error)
}

// Config configures the dashboard service.
type Config struct {
	HourlyRevenue float64
	SnapshotLimit int
	CacheTTL      time.Duration
}

// Service evaluates aggregates over the newest incidents. When the store fails
// it falls back to the last snapshot it loaded, for as long as that is cached.
type Service struct {
	source Source
	calc   *impact.Calculator
	config Config
	cache  *ttlcache.Cache[string, []domain.Incident]
	now    func() time.Time
}

// NewService creates a new dashboard service.
func NewService(source Source, calc *impact.Calculator, cfg Config) *Service {
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = 50
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Service{
		source: source,
		calc:   calc,
		config: cfg,
		cache:  ttlcache.New(ttlcache.WithTTL[string, []domain.Incident](cfg.CacheTTL)),
		now:    time.Now,
	}
}

// HourlyRevenue returns the configured default revenue.
func (s *Service) HourlyRevenue() float64 {
	return s.config.HourlyRevenue
}

// Incidents returns the current snapshot and whether it came from the cache.
func (s *Service) Incidents(ctx context.Context) ([]domain.Incident, bool, error) {
	incs, err := s.source.Snapshot(ctx, s.config.SnapshotLimit)
	if err == nil {
		s.cache.Set(snapshotKey, incs, ttlcache.DefaultTTL)
		return incs, false, nil
	}

	item := s.cache.Get(snapshotKey)
	if item == nil {
		return nil, false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	ctxlog.FromContext(ctx).Warn("serving cached incident snapshot",
		"error", err,
		"expires_at", item.ExpiresAt(),
	)
	return item.Value(), true, nil
}

// Report evaluates every aggregate at the current time.
func (s *Service) Report(ctx context.Context, hourlyRevenue float64) (impact.Report, bool, error) {
	incs, stale, err := s.Incidents(ctx)
	if err != nil {
		return impact.Report{}, false, err
	}

	report := s.calc.Snapshot(incs, hourlyRevenue, s.now().UTC())
	recordReport(report)
	return report, stale, nil
}

// Stats counts the current snapshot.
func (s *Service) Stats(ctx context.Context) (impact.Stats, bool, error) {
	incs, stale, err := s.Incidents(ctx)
	if err != nil {
		return impact.Stats{}, false, err
	}
	return impact.ComputeStats(incs), stale, nil
}

// Analytics analyses the current snapshot.
func (s *Service) Analytics(ctx context.Context) (impact.Analytics, bool, error) {
	incs, stale, err := s.Incidents(ctx)
	if err != nil {
		return impact.Analytics{}, false, err
	}
	return s.calc.Analyze(incs), stale, nil
}

func recordReport(r impact.Report) {
	active := make(map[string]int, len(r.Breakdown))
	for _, sev := range impact.Severities() {
		active[string(sev)] = r.Breakdown[sev].Count
	}
	metrics.RecordImpact(active, r.Impact.Total, r.Impact.PerMinute)
}
