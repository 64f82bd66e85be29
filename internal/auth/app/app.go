package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/transitra/transitra/internal/auth/domain"
	httpapi "github.com/transitra/transitra/internal/auth/http"
	"github.com/transitra/transitra/internal/auth/metrics"
	"github.com/transitra/transitra/internal/auth/service"
	"github.com/transitra/transitra/internal/auth/store"
	"github.com/transitra/transitra/internal/auth/store/drivers/sqlite"
	"github.com/transitra/transitra/pkg/cryptox"
	"github.com/transitra/transitra/pkg/httpx"
	"github.com/transitra/transitra/pkg/idx"
	"github.com/transitra/transitra/pkg/jwtx"
	"github.com/transitra/transitra/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db          store.Store
	issuer      *jwtx.Issuer
	external    *jwtx.ExternalVerifier // nil without an SSO key
	redisClient *redis.Client          // nil without AUTH_REDIS_URL
	registry    *prometheus.Registry
	metrics     *metrics.Metrics

	authService         *service.AuthService
	sessionService      *service.SessionService
	mfaService          *service.MFAService
	throttle            service.LoginThrottle
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "transitra-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initTokenEngine(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initMetrics()
	if err := app.initThrottle(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initServices()
	app.initHTTP()

	if err := app.seedBootstrapUser(context.Background()); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// seedBootstrapUser creates the configured initial admin account, but only
// into an empty user table. A populated database is never touched.
func (app *Application) seedBootstrapUser(ctx context.Context) error {
	if app.cfg.BootstrapEmail == "" || app.cfg.BootstrapPassword == "" {
		return nil
	}

	empty, err := app.db.Users().IsEmpty(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap check: %w", err)
	}
	if !empty {
		return nil
	}

	hash, err := cryptox.HashPassword(app.cfg.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("bootstrap password: %w", err)
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.New().String(),
		Username:     app.cfg.BootstrapEmail,
		Email:        app.cfg.BootstrapEmail,
		PasswordHash: &hash,
		Roles:        []string{domain.RoleAdmin},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := app.db.Users().CreateUser(ctx, user); err != nil {
		return fmt.Errorf("bootstrap user: %w", err)
	}
	app.logger.Info("bootstrap admin account created", "user_id", user.ID)
	return nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start(context.Background())

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)
	if app.cfg.AuthBypass {
		app.logger.Warn("authentication bypass is enabled; all requests share a development identity")
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initTokenEngine() error {
	issuer, err := jwtx.NewIssuer(jwtx.IssuerConfig{
		Issuer:        "transitra-auth",
		AccessSecret:  app.cfg.AccessSecret,
		RefreshSecret: app.cfg.RefreshSecret,
		AccessTTL:     app.cfg.AccessTTL,
		RefreshTTL:    app.cfg.RefreshTTL,
	})
	if err != nil {
		return err
	}
	app.issuer = issuer

	if app.cfg.SSOPublicKeyFile != "" {
		pemKey, err := os.ReadFile(app.cfg.SSOPublicKeyFile)
		if err != nil {
			return fmt.Errorf("failed to read SSO public key: %w", err)
		}
		verifier, err := jwtx.NewExternalVerifier(pemKey)
		if err != nil {
			return fmt.Errorf("failed to parse SSO public key: %w", err)
		}
		app.external = verifier
		app.logger.Info("sso token verification enabled")
	} else {
		app.logger.Info("no SSO public key configured; sso logins disabled")
	}

	return nil
}

func (app *Application) initMetrics() {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.New(app.registry)
}

func (app *Application) initThrottle() error {
	if app.cfg.RedisURL == "" {
		app.throttle = service.NewMemoryThrottle()
		return nil
	}

	opts, err := redis.ParseURL(app.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid AUTH_REDIS_URL: %w", err)
	}
	app.redisClient = redis.NewClient(opts)
	if err := app.redisClient.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	app.throttle = service.NewRedisThrottle(app.redisClient)
	app.logger.Info("login throttle backed by redis")
	return nil
}

func (app *Application) initServices() {
	app.sessionService = &service.SessionService{
		Store:       app.db,
		MaxSessions: app.cfg.MaxSessions,
		Metrics:     app.metrics,
	}

	app.authService = &service.AuthService{
		Store:    app.db,
		Issuer:   app.issuer,
		External: app.external,
		Sessions: app.sessionService,
		Throttle: app.throttle,
		Metrics:  app.metrics,
	}

	app.mfaService = &service.MFAService{
		Store:  app.db,
		Issuer: app.cfg.MFAIssuer,
	}

	app.housekeepingService = &service.HousekeepingService{
		Sessions: app.sessionService,
		Throttle: app.throttle,
		Interval: app.cfg.HousekeepingInterval,
	}
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.AuthService = app.authService
	router.SessionService = app.sessionService
	router.MFAService = app.mfaService
	router.MetricsGatherer = app.registry

	if app.cfg.AuthBypass {
		router.DevBypass = true
		router.DevBypassIdentity = httpx.Identity{
			ID:       "dev-user",
			Username: "dev-user",
			Email:    "dev@localhost",
			Roles:    []string{domain.RoleAdmin},
		}
	}

	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
