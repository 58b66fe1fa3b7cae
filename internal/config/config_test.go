package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/bissquit/incident-impact/internal/impact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-with-at-least-32-characters"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("IMPACT_JWT__SECRET_KEY", testSecret)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10000.0, cfg.Impact.HourlyRevenue)
	assert.Equal(t, 0.3, cfg.Impact.Engine.SavingsRate)
	assert.Equal(t, 8*time.Hour, cfg.Impact.Engine.ProgressScale)
	assert.Equal(t, 50, cfg.Realtime.SnapshotLimit)
	assert.Equal(t, "@every 60s", cfg.Realtime.RecomputeSchedule)
	assert.Len(t, cfg.Team.Members, 6)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Empty(t, cfg.Seed.Users)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
log:
  level: debug
jwt:
  secret_key: file-secret-key-with-at-least-32-characters
impact:
  hourly_revenue: 2500
  savings_rate: 0.25
  progress_scale: 4h
  severity:
    critical:
      multiplier: 2
      impact_score: 90
team:
  members:
    - id: oncall
      name: On Call
      role: responder
seed:
  enabled: true
`)

	t.Setenv("IMPACT_SERVER__PORT", "9100")
	t.Setenv("IMPACT_IMPACT__HOURLY_REVENUE", "5000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port, "env overrides file")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5000.0, cfg.Impact.HourlyRevenue)
	assert.Equal(t, 0.25, cfg.Impact.Engine.SavingsRate)
	assert.Equal(t, 4*time.Hour, cfg.Impact.Engine.ProgressScale)
	assert.Equal(t, 70, cfg.Impact.Engine.ImprovingAbove)

	critical := cfg.Impact.Severity[domain.SeverityCritical]
	assert.Equal(t, 2.0, critical.Multiplier)
	assert.Equal(t, 90, critical.ImpactScore)
	assert.Equal(t, 1.2, cfg.Impact.Severity[domain.SeverityHigh].Multiplier, "unspecified severities keep defaults")

	require.Len(t, cfg.Team.Members, 1)
	assert.Equal(t, "oncall", cfg.Team.Members[0].ID)

	assert.Len(t, cfg.Seed.Users, 3)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "short secret",
			mutate:  func(c *Config) { c.JWT.SecretKey = "short" },
			wantErr: "jwt.secret_key",
		},
		{
			name:    "non-positive revenue",
			mutate:  func(c *Config) { c.Impact.HourlyRevenue = 0 },
			wantErr: "impact.hourly_revenue",
		},
		{
			name:    "inverted trend thresholds",
			mutate:  func(c *Config) { c.Impact.Engine.StableAbove = 90 },
			wantErr: "impact.stable_above",
		},
		{
			name:    "zero annualization factor",
			mutate:  func(c *Config) { c.Impact.Engine.AnnualizationFactor = 0 },
			wantErr: "impact.annualization_factor",
		},
		{
			name:    "threshold above 100",
			mutate:  func(c *Config) { c.Impact.Engine.ImprovingAbove = 150 },
			wantErr: "impact trend thresholds",
		},
		{
			name:    "zero progress scale",
			mutate:  func(c *Config) { c.Impact.Engine.ProgressScale = 0 },
			wantErr: "impact.progress_scale",
		},
		{
			name: "duplicate member",
			mutate: func(c *Config) {
				c.Team.Members = []MemberConfig{{ID: "a"}, {ID: "a"}}
			},
			wantErr: "duplicate team member",
		},
		{
			name: "bad impact score",
			mutate: func(c *Config) {
				c.Impact.Severity[domain.SeverityLow] = impact.SeverityWeight{Multiplier: 0.5, ImpactScore: 120}
			},
			wantErr: "impact.severity.low.impact_score",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.JWT.SecretKey = testSecret
			cfg.applyListDefaults()
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ZeroSavingsAndThresholds(t *testing.T) {
	cfg := Default()
	cfg.JWT.SecretKey = testSecret
	cfg.applyListDefaults()
	cfg.Impact.Engine.SavingsRate = 0
	cfg.Impact.Engine.ImprovingAbove = 0
	cfg.Impact.Engine.StableAbove = 0

	require.NoError(t, cfg.Validate())

	calc := impact.New(cfg.Impact.Engine, cfg.Impact.Severity)
	assert.Zero(t, calc.Config().SavingsRate)
	assert.Zero(t, calc.PotentialSavings(10000))
	assert.Equal(t, impact.TrendImproving, calc.WeeklyTrend(1))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.metrics_port", envKey("IMPACT_SERVER__METRICS_PORT"))
	assert.Equal(t, "impact.severity.critical.multiplier", envKey("IMPACT_IMPACT__SEVERITY__CRITICAL__MULTIPLIER"))
}
