// Package impact computes the business cost and resolution analytics of incidents.
//
// Every function is pure over an incident snapshot, an hourly revenue figure and
// a caller-supplied clock value. Anomalies degrade to zero values instead of errors.
package impact

import (
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
)

// Config contains tunables of the aggregation engine.
type Config struct {
	SavingsRate         float64       `koanf:"savings_rate"`
	AnnualizationFactor float64       `koanf:"annualization_factor"`
	ImprovingAbove      int           `koanf:"improving_above"`
	StableAbove         int           `koanf:"stable_above"`
	ProgressScale       time.Duration `koanf:"progress_scale"`
	SimulationLimit     int           `koanf:"simulation_limit"`
	TopServicesLimit    int           `koanf:"top_services_limit"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		SavingsRate:         0.3,
		AnnualizationFactor: 12,
		ImprovingAbove:      70,
		StableAbove:         40,
		ProgressScale:       8 * time.Hour,
		SimulationLimit:     3,
		TopServicesLimit:    3,
	}
}

// Calculator evaluates incident snapshots against a fixed configuration.
type Calculator struct {
	cfg   Config
	table SeverityTable
}

// New creates a Calculator. The savings rate and trend thresholds are taken as
// given, so zero disables savings or moves a threshold to zero. Limits and
// scales that have no meaning at zero fall back to DefaultConfig, and a nil
// table falls back to DefaultSeverityTable.
func New(cfg Config, table SeverityTable) *Calculator {
	def := DefaultConfig()
	if cfg.SavingsRate < 0 {
		cfg.SavingsRate = 0
	}
	if cfg.AnnualizationFactor <= 0 {
		cfg.AnnualizationFactor = def.AnnualizationFactor
	}
	if cfg.ProgressScale <= 0 {
		cfg.ProgressScale = def.ProgressScale
	}
	if cfg.SimulationLimit <= 0 {
		cfg.SimulationLimit = def.SimulationLimit
	}
	if cfg.TopServicesLimit <= 0 {
		cfg.TopServicesLimit = def.TopServicesLimit
	}
	if table == nil {
		table = DefaultSeverityTable()
	}

	return &Calculator{
		cfg:   cfg,
		table: table.clone(),
	}
}

// Config returns the effective configuration.
func (c *Calculator) Config() Config {
	return c.cfg
}

// Weights returns the multiplier and default impact score for a severity.
func (c *Calculator) Weights(s domain.Severity) (float64, int) {
	return c.table.Weights(s)
}

// ImpactScore returns the incident's own score when present, else the severity default.
func (c *Calculator) ImpactScore(inc domain.Incident) int {
	if inc.ImpactScore != nil {
		return *inc.ImpactScore
	}
	_, score := c.table.Weights(inc.Severity)
	return score
}
