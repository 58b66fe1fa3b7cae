// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/incident-impact/internal/config"
	"github.com/bissquit/incident-impact/internal/dashboard"
	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/bissquit/incident-impact/internal/identity"
	"github.com/bissquit/incident-impact/internal/identity/jwt"
	identitypostgres "github.com/bissquit/incident-impact/internal/identity/postgres"
	"github.com/bissquit/incident-impact/internal/impact"
	"github.com/bissquit/incident-impact/internal/incidents"
	incidentspostgres "github.com/bissquit/incident-impact/internal/incidents/postgres"
	"github.com/bissquit/incident-impact/internal/pkg/ctxlog"
	"github.com/bissquit/incident-impact/internal/pkg/httputil"
	"github.com/bissquit/incident-impact/internal/pkg/metrics"
	"github.com/bissquit/incident-impact/internal/pkg/postgres"
	"github.com/bissquit/incident-impact/internal/realtime"
	"github.com/bissquit/incident-impact/internal/team"
	"github.com/bissquit/incident-impact/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

const (
	healthCheckTimeout = 2 * time.Second
	seedTimeout        = 30 * time.Second
	recomputeTimeout   = 10 * time.Second

	defaultRequestTimeout = 60 * time.Second
)

// Health statuses reported by GET /health.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	hub           *realtime.Hub
	scheduler     *cron.Cron
	stopAuthHook  func()
	now           func() time.Time
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.MigrateOnStart {
		schemaVersion, err := postgres.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath, postgres.Up, 0)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("database schema up to date", "version", schemaVersion)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
		now:           time.Now,
	}

	go app.collectDBMetrics(metricsCtx)

	router, err := app.setupRouter(metricsCtx)
	if err != nil {
		if app.hub != nil {
			app.hub.Stop()
		}
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()
	<-a.scheduler.Stop().Done()

	if a.stopAuthHook != nil {
		a.stopAuthHook()
	}

	// Closing subscriptions first lets stream handlers return before the server drains.
	a.hub.Stop()

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Hub returns the realtime hub. Used in tests to observe subscriptions.
func (a *App) Hub() *realtime.Hub {
	return a.hub
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.healthHandler)
	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Incident Impact API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	roster, err := team.NewRoster(teamMembers(a.config.Team.Members))
	if err != nil {
		return nil, fmt.Errorf("build team roster: %w", err)
	}
	calculator := impact.New(a.config.Impact.Engine, a.config.Impact.Severity)

	// The hub is the change notifier of the incident service, so it is created first.
	incidentsRepo := incidentspostgres.NewRepository(a.db)
	var incidentsService *incidents.Service
	a.hub = realtime.NewHub(snapshotSource(func(ctx context.Context, limit int) ([]domain.Incident, error) {
		return incidentsService.Snapshot(ctx, limit)
	}), realtime.Config{
		SnapshotLimit: a.config.Realtime.SnapshotLimit,
		SendBuffer:    a.config.Realtime.SendBuffer,
	})
	incidentsService = incidents.NewService(incidentsRepo, roster, calculator, a.hub)
	incidentsHandler := incidents.NewHandler(incidentsService)

	identityRepo := identitypostgres.NewRepository(a.db)
	jwtAuth := jwt.NewAuthenticator(jwt.Config{
		SecretKey:            a.config.JWT.SecretKey,
		AccessTokenDuration:  a.config.JWT.AccessTokenDuration,
		RefreshTokenDuration: a.config.JWT.RefreshTokenDuration,
	}, identityRepo)
	identityService := identity.NewService(identityRepo, jwtAuth)
	identityHandler := identity.NewHandler(identityService)

	a.stopAuthHook = identityService.OnAuthStateChanged(func(_ context.Context, change identity.AuthStateChange) {
		if change.Event == identity.AuthSignedOut {
			if n := a.hub.DisconnectUser(change.UserID); n > 0 {
				slog.Info("closed streams of signed out user", "user_id", change.UserID, "streams", n)
			}
		}
	})

	if a.config.Seed.Enabled {
		if err := a.seedUsers(ctx, identityService); err != nil {
			return nil, err
		}
	}

	dashboardService := dashboard.NewService(incidentsService, calculator, dashboard.Config{
		HourlyRevenue: a.config.Impact.HourlyRevenue,
		SnapshotLimit: a.config.Realtime.SnapshotLimit,
		CacheTTL:      a.config.Dashboard.CacheTTL,
	})
	dashboardHandler := dashboard.NewHandler(dashboardService)

	a.scheduler = cron.New()
	if _, err := a.scheduler.AddFunc(a.config.Realtime.RecomputeSchedule, func() {
		a.recomputeImpact(ctx, dashboardService)
	}); err != nil {
		return nil, fmt.Errorf("schedule impact recompute %q: %w", a.config.Realtime.RecomputeSchedule, err)
	}

	teamHandler := team.NewHandler(roster)
	streamHandler := realtime.NewHandler(a.hub, realtime.HandlerConfig{
		AllowedOrigins: a.config.CORS.AllowedOrigins,
		WriteTimeout:   a.config.Realtime.WriteTimeout,
		PingInterval:   a.config.Realtime.PingInterval,
	})

	a.hub.Start(ctx)
	a.scheduler.Start()

	authMiddleware := httputil.AuthMiddleware(identityService)
	requestTimeout := a.config.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/x-yaml")
			http.ServeFile(w, r, "api/openapi/openapi.yaml")
		})

		// Streams are long-lived and stay outside the request timeout.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			streamHandler.RegisterRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			incidentsHandler.RegisterPublicRoutes(r)
			dashboardHandler.RegisterRoutes(r)
			teamHandler.RegisterRoutes(r)
			identityHandler.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware)
				identityHandler.RegisterProtectedRoutes(r)

				r.Group(func(r chi.Router) {
					r.Use(httputil.RequireRole(domain.RoleResponder))
					incidentsHandler.RegisterResponderRoutes(r)
				})
			})
		})
	})

	return r, nil
}

func (a *App) seedUsers(ctx context.Context, svc *identity.Service) error {
	seedCtx, cancel := context.WithTimeout(ctx, seedTimeout)
	defer cancel()

	accounts := make([]identity.SeedAccount, 0, len(a.config.Seed.Users))
	for _, u := range a.config.Seed.Users {
		accounts = append(accounts, identity.SeedAccount{
			Email:       u.Email,
			Password:    u.Password,
			DisplayName: u.DisplayName,
			Role:        domain.Role(strings.ToLower(strings.TrimSpace(u.Role))),
		})
	}

	if err := svc.SeedUsers(seedCtx, accounts); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}
	return nil
}

// healthHandler reports liveness together with database reachability.
// A database outage yields "degraded" with 200 so that clients can tell it
// apart from an unreachable server.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    HealthHealthy,
		Database:  "connected",
		Version:   version.Version,
		Timestamp: a.now().UTC(),
	}

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Warn("health check: database unreachable", "error", err)
		resp.Status = HealthDegraded
		resp.Database = "disconnected"
	}

	httputil.Success(w, http.StatusOK, resp)
}

// recomputeImpact re-evaluates the impact report so that gauges and the
// last-good snapshot stay current between dashboard requests.
func (a *App) recomputeImpact(ctx context.Context, svc *dashboard.Service) {
	ctx, cancel := context.WithTimeout(ctx, recomputeTimeout)
	defer cancel()

	report, stale, err := svc.Report(ctx, svc.HourlyRevenue())
	if err != nil {
		a.logger.Warn("impact recompute failed", "error", err)
		return
	}
	a.logger.Debug("impact recomputed",
		"active", report.Impact.ActiveCount,
		"total", report.Impact.Total,
		"stale", stale,
	)
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Info())
}

// snapshotSource adapts a function to realtime.Source.
type snapshotSource func(ctx context.Context, limit int) ([]domain.Incident, error)

func (f snapshotSource) Snapshot(ctx context.Context, limit int) ([]domain.Incident, error) {
	return f(ctx, limit)
}

func teamMembers(cfg []config.MemberConfig) []domain.TeamMember {
	members := make([]domain.TeamMember, 0, len(cfg))
	for _, m := range cfg {
		members = append(members, domain.TeamMember{
			ID:     m.ID,
			Email:  m.Email,
			Name:   m.Name,
			Role:   team.ParseRole(m.Role),
			Skills: m.Skills,
			Status: team.ParseStatus(m.Status),
		})
	}
	return members
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
