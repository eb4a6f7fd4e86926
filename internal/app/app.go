// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wakekeeper/wakekeeper/internal/alarm"
	alarmpostgres "github.com/wakekeeper/wakekeeper/internal/alarm/postgres"
	"github.com/wakekeeper/wakekeeper/internal/config"
	"github.com/wakekeeper/wakekeeper/internal/notify"
	"github.com/wakekeeper/wakekeeper/internal/notify/webhook"
	"github.com/wakekeeper/wakekeeper/internal/pkg/ctxlog"
	"github.com/wakekeeper/wakekeeper/internal/pkg/httputil"
	"github.com/wakekeeper/wakekeeper/internal/pkg/metrics"
	"github.com/wakekeeper/wakekeeper/internal/pkg/postgres"
	"github.com/wakekeeper/wakekeeper/internal/version"
	"github.com/wakekeeper/wakekeeper/internal/ws"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	engine        *alarm.Engine
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
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

	if err := alarmpostgres.Migrate(cfg.Database.URL); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router := app.setupRouter()

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

// Run activates the engine and starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Initial activation: restore the schedule from the store before
	// serving traffic.
	a.engine.OnActivate(context.Background())

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application. Pending alarms keep
// their persisted deadlines and are restored on the next activation.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.metricsCancel()
	a.engine.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

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

// Router returns the HTTP handler. Used in tests.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Engine returns the alarm engine instance. Used in tests.
func (a *App) Engine() *alarm.Engine {
	return a.engine
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	repo := alarmpostgres.NewRepository(a.db)
	dispatcher := notify.NewDispatcher(
		a.alarmSender(),
		a.statusSender(),
	)

	hub := ws.NewHub()

	// The registrar closure runs after the engine exists; it stands in
	// for host-initiated periodic wakes.
	var engine *alarm.Engine
	registrar := alarm.NewTickerRegistrar(a.config.Engine.PeriodicInterval, func() {
		engine.OnPeriodicTrigger(context.Background())
	})

	engine = alarm.NewEngine(alarm.EngineConfig{
		Grace:               a.config.Engine.Grace,
		KeepAliveInterval:   a.config.Engine.KeepAliveInterval,
		PeriodicMinInterval: a.config.Engine.PeriodicInterval,
		Status: alarm.StatusConfig{
			MaxRepostAttempts: a.config.Status.MaxRepostAttempts,
			InitialBackoff:    a.config.Status.RepostInitialBackoff,
			MaxBackoff:        a.config.Status.RepostMaxBackoff,
		},
	}, repo, dispatcher, hub, registrar, alarm.RealClock())
	a.engine = engine

	handler := alarm.NewHandler(engine)

	r.Route("/api/v1", func(r chi.Router) {
		if a.config.Auth.Secret != "" {
			r.Use(httputil.AuthMiddleware(a.config.Auth.Secret))
		} else {
			a.logger.Warn("api authentication disabled: no auth secret configured")
		}
		r.Use(passiveActivityMiddleware(engine))

		handler.RegisterRoutes(r)
		r.Get("/events", hub.Handler(engine))
	})

	return r
}

// passiveActivityMiddleware lets any served request opportunistically
// re-arm the next-wake timer after an unexpected restart.
func passiveActivityMiddleware(engine *alarm.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			engine.OnPassiveActivity(r.Context())
			next.ServeHTTP(w, r)
		})
	}
}

func (a *App) alarmSender() notify.Sender {
	if a.config.Notify.WebhookURL == "" {
		return notify.NewLogSender(notify.ChannelAlarm)
	}
	return webhook.NewSender(webhook.Config{
		Channel: notify.ChannelAlarm,
		URL:     a.config.Notify.WebhookURL,
		Timeout: a.config.Notify.Timeout,
	})
}

func (a *App) statusSender() notify.Sender {
	if a.config.Notify.StatusWebhookURL == "" {
		return notify.NewLogSender(notify.ChannelStatus)
	}
	return webhook.NewSender(webhook.Config{
		Channel: notify.ChannelStatus,
		URL:     a.config.Notify.StatusWebhookURL,
		Timeout: a.config.Notify.Timeout,
	})
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
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

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
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

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
