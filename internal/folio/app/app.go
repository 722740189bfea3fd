package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aussiebroadwan/folio/internal/folio/audit"
	"github.com/aussiebroadwan/folio/internal/folio/domain"
	httpapi "github.com/aussiebroadwan/folio/internal/folio/http"
	"github.com/aussiebroadwan/folio/internal/folio/mail"
	"github.com/aussiebroadwan/folio/internal/folio/obs"
	"github.com/aussiebroadwan/folio/internal/folio/service"
	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/pkg/cryptox"
	"github.com/aussiebroadwan/folio/pkg/httpx"
	"github.com/aussiebroadwan/folio/pkg/idx"
	"github.com/aussiebroadwan/folio/pkg/ratelimit"
	"github.com/aussiebroadwan/folio/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application owns every long-lived dependency of the service.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	redis    *redis.Client // nil unless FOLIO_REDIS_URL is set
	registry *prometheus.Registry
	metrics  *obs.Metrics

	hasher      *cryptox.Hasher
	sessions    *service.SessionManager
	invitations *service.InvitationManager
	accounts    *service.AccountService
	reaper      *service.Reaper
	audit       *audit.Writer

	loginLimiter  ratelimit.Limiter
	lookupLimiter ratelimit.Limiter

	server *http.Server
	router *httpapi.Router
}

// NewLogger builds the process logger from cfg. With LOG_FILE set, output
// goes to a size-rotated file.
func NewLogger(cfg Config) *slog.Logger {
	var out io.Writer
	if cfg.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			Compress:   true,
		}
	}
	return slogx.New(slogx.Config{
		Service: "folio",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  out,
	})
}

// New creates an Application with all dependencies initialized.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{cfg: cfg, logger: NewLogger(cfg)}

	pepper, err := cryptox.LoadOrCreatePepper(cfg.PepperFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}
	app.hasher = cryptox.NewHasher(pepper)

	if app.db, err = OpenStore(ctx, cfg, app.logger); err != nil {
		return nil, err
	}
	if err := app.initLimiters(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler exposes the fully wired router.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the server and blocks until a shutdown signal or server error.
func (app *Application) Run() error {
	// Clear out whatever expired while the service was down.
	app.reaper.Run(slogx.WithContext(context.Background(), app.logger))

	app.logger.Info("folio starting", "addr", app.cfg.Addr, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Shutdown drains in-flight requests, then closes the stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down folio...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("folio stopped")
	return nil
}

// initLimiters picks Redis when configured so replicas share counters,
// and falls back to per-process token buckets.
func (app *Application) initLimiters(ctx context.Context) error {
	login := ratelimit.Config{Attempts: app.cfg.LoginAttempts, Window: app.cfg.LoginWindow}
	lookup := ratelimit.Config{Attempts: 30, Window: time.Minute}

	if app.cfg.RedisURL == "" {
		app.loginLimiter = ratelimit.NewMemory(login)
		app.lookupLimiter = ratelimit.NewMemory(lookup)
		return nil
	}

	opts, err := redis.ParseURL(app.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid FOLIO_REDIS_URL: %w", err)
	}
	app.redis = redis.NewClient(opts)
	if err := app.redis.Ping(ctx).Err(); err != nil {
		// Limiters fail open, so an unreachable Redis is not fatal.
		app.logger.Warn("redis unreachable at startup", "error", err)
	}
	app.loginLimiter = ratelimit.NewRedis(app.redis, login, "folio:ratelimit:")
	app.lookupLimiter = ratelimit.NewRedis(app.redis, lookup, "folio:ratelimit:")
	return nil
}

func (app *Application) initServices() error {
	if app.cfg.MetricsEnabled {
		app.registry = prometheus.NewRegistry()
		app.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		app.metrics = obs.New(app.registry)
		app.metrics.SetBuildInfo(BuildVersion)
	}

	var mailer service.Mailer = mail.LogMailer{}
	if app.cfg.SMTPHost != "" {
		m, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     app.cfg.SMTPHost,
			Port:     app.cfg.SMTPPort,
			Username: app.cfg.SMTPUsername,
			Password: app.cfg.SMTPPassword,
			From:     app.cfg.SMTPFrom,
			SiteName: app.cfg.SiteName,
		})
		if err != nil {
			return err
		}
		mailer = m
	}

	ids := idx.NewGenerator(time.Now)

	app.reaper = &service.Reaper{
		Store:       app.db,
		MinInterval: app.cfg.ReapInterval,
		Probability: reapProbability(app.cfg.ReapProbability),
		OnReap: func(r service.ReapResult) {
			app.metrics.Reaped(r.Sessions, r.Invitations)
		},
	}
	app.sessions = &service.SessionManager{
		Store:  app.db,
		TTL:    app.cfg.SessionTTL,
		IDs:    ids,
		Reaper: app.reaper,
	}
	app.invitations = &service.InvitationManager{
		Store:     app.db,
		TTL:       app.cfg.InvitationTTL,
		IDs:       ids,
		Mailer:    mailer,
		AcceptURL: app.cfg.AcceptURL(),
	}
	app.accounts = &service.AccountService{
		Store:       app.db,
		Hasher:      app.hasher,
		Policy:      service.DefaultPasswordPolicy(),
		Sessions:    app.sessions,
		Invitations: app.invitations,
	}
	app.audit = &audit.Writer{
		Repo: app.db.Audit(),
		OnWrite: func(_ domain.AuditEntry, err error) {
			app.metrics.AuditWrite(err)
		},
	}
	return nil
}

// reapProbability maps FOLIO_REAP_PROBABILITY onto the Reaper, where zero
// already means "default". A configured 0 switches inline cleanup off.
func reapProbability(p float64) float64 {
	if p == 0 {
		return -1
	}
	return p
}

// headerConfig maps the CSP settings onto httpx.HeaderConfig.
func (app *Application) headerConfig() httpx.HeaderConfig {
	h := httpx.DefaultHeaderConfig()
	h.StyleSources = app.cfg.StyleSources
	h.FontSources = app.cfg.FontSources
	h.ImageSources = app.cfg.ImageSources
	h.DisabledDirectives = app.cfg.DisabledCSP
	h.HTTPS = app.cfg.HTTPS
	if app.cfg.HSTSMaxAge > 0 {
		h.HSTSMaxAge = app.cfg.HSTSMaxAge
	}
	if app.cfg.ReferrerPolicy != "" {
		h.ReferrerPolicy = app.cfg.ReferrerPolicy
	}
	return h
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.Accounts = app.accounts
	router.Sessions = app.sessions
	router.Invitations = app.invitations
	router.Audit = app.audit
	router.LoginLimiter = app.loginLimiter
	router.LookupLimiter = app.lookupLimiter
	router.Headers = app.headerConfig()
	router.SecureCookies = app.cfg.HTTPS
	router.Metrics = app.metrics
	if app.registry != nil {
		router.Gatherer = app.registry
	}
	router.UploadsDir = app.cfg.UploadsDir
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:              app.cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
