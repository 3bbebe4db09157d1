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
	"github.com/juntavecinos/notifier/internal/config"
	contentpostgres "github.com/juntavecinos/notifier/internal/content/postgres"
	"github.com/juntavecinos/notifier/internal/dedup"
	directorypostgres "github.com/juntavecinos/notifier/internal/directory/postgres"
	"github.com/juntavecinos/notifier/internal/domain"
	"github.com/juntavecinos/notifier/internal/identity/jwt"
	"github.com/juntavecinos/notifier/internal/inbound"
	"github.com/juntavecinos/notifier/internal/notifications"
	"github.com/juntavecinos/notifier/internal/notifications/email"
	"github.com/juntavecinos/notifier/internal/notifications/telegram"
	"github.com/juntavecinos/notifier/internal/notifications/whatsapp"
	"github.com/juntavecinos/notifier/internal/pkg/ctxlog"
	"github.com/juntavecinos/notifier/internal/pkg/httputil"
	"github.com/juntavecinos/notifier/internal/pkg/metrics"
	"github.com/juntavecinos/notifier/internal/pkg/postgres"
	"github.com/juntavecinos/notifier/internal/pkg/redis"
	"github.com/juntavecinos/notifier/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *goredis.Client
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
		ApplicationName: "junta-notifier",
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.Connect(connectCtx, redis.Config{
			Addr:            cfg.Redis.Addr,
			Password:        cfg.Redis.Password,
			DB:              cfg.Redis.DB,
			PoolSize:        cfg.Redis.PoolSize,
			DialTimeout:     cfg.Redis.DialTimeout,
			ReadTimeout:     cfg.Redis.ReadTimeout,
			WriteTimeout:    cfg.Redis.WriteTimeout,
			ConnectAttempts: cfg.Redis.ConnectAttempts,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		redis:         redisClient,
		metricsCancel: metricsCancel,
	}

	go app.collectPoolMetrics(metricsCtx)

	router, err := app.setupRouter()
	if err != nil {
		metricsCancel()
		_ = app.closeStores()
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
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application. In-flight dispatches finish
// before the stores are closed, bounded by ctx.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	for name, srv := range map[string]*http.Server{"server": a.server, "metrics server": a.metricsServer} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if err := a.closeStores(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	a.db.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			return fmt.Errorf("close redis: %w", err)
		}
	}
	return nil
}

func (a *App) collectPoolMetrics(ctx context.Context) {
	record := func() {
		metrics.RecordDBPoolMetrics(a.db)
		if a.redis != nil {
			metrics.RecordRedisPoolMetrics(a.redis)
		}
	}

	record()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			record()
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter() (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	notifyCfg := a.config.Notifications

	loc, err := time.LoadLocation(notifyCfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", notifyCfg.Timezone, err)
	}

	renderer, err := notifications.NewRenderer(loc)
	if err != nil {
		return nil, fmt.Errorf("create notification renderer: %w", err)
	}

	emailSender := email.NewSender(email.Config{
		Enabled:           notifyCfg.Email.Enabled,
		SMTPHost:          notifyCfg.Email.SMTPHost,
		SMTPPort:          notifyCfg.Email.SMTPPort,
		SMTPUser:          notifyCfg.Email.SMTPUser,
		SMTPPassword:      notifyCfg.Email.SMTPPassword,
		FromAddress:       notifyCfg.Email.FromAddress,
		BatchSize:         notifyCfg.Email.BatchSize,
		UnsubscribeURL:    notifyCfg.Email.UnsubscribeURL,
		UnsubscribeMailto: notifyCfg.Email.UnsubscribeMailto,
		Timeout:           notifyCfg.Email.Timeout,
	})

	telegramSender := telegram.NewSender(telegram.Config{
		Enabled:   notifyCfg.Telegram.Enabled,
		BotToken:  notifyCfg.Telegram.BotToken,
		RateLimit: notifyCfg.Telegram.RateLimit,
		Timeout:   notifyCfg.Telegram.Timeout,
	})

	whatsappSender := whatsapp.NewSender(whatsapp.Config{
		Enabled:       notifyCfg.WhatsApp.Enabled,
		PhoneNumberID: notifyCfg.WhatsApp.PhoneNumberID,
		AccessToken:   notifyCfg.WhatsApp.AccessToken,
		APIURL:        notifyCfg.WhatsApp.APIURL,
		Language:      notifyCfg.WhatsApp.Language,
		Templates:     notifyCfg.WhatsApp.Templates,
		Spacing:       notifyCfg.WhatsApp.Spacing,
		Timeout:       notifyCfg.WhatsApp.Timeout,
	})

	for _, s := range []notifications.Sender{emailSender, telegramSender, whatsappSender} {
		if !s.Configured() {
			slog.Warn("notification channel is not configured: requests for it will be rejected", "channel", s.Type())
		}
	}

	directoryRepo := directorypostgres.NewRepository(a.db)
	contentRepo := contentpostgres.NewRepository(a.db)

	dispatcher := notifications.NewDispatcher(
		notifications.NewResolver(directoryRepo),
		renderer,
		notifications.Links{
			BaseURL:         notifyCfg.BaseURL,
			SiteName:        notifyCfg.SiteName,
			PreferencesPath: notifyCfg.PreferencesPath,
		},
		emailSender, telegramSender, whatsappSender,
	)

	guard, err := a.dispatchGuard()
	if err != nil {
		return nil, err
	}

	notificationsService := notifications.NewService(contentRepo, dispatcher, guard)
	notificationsHandler := notifications.NewHandler(notificationsService)

	linker := inbound.NewLinker(directoryRepo)
	telegramWebhook := inbound.NewTelegramHandler(linker, telegramSender, inbound.TelegramConfig{
		Secret:     a.config.Webhooks.TelegramSecret,
		WebhookURL: a.config.Webhooks.TelegramURL,
	})
	whatsappWebhook := inbound.NewWhatsAppHandler(linker, whatsappSender, inbound.WhatsAppConfig{
		VerifyToken: a.config.Webhooks.WhatsAppVerifyToken,
		AppSecret:   a.config.Webhooks.WhatsAppAppSecret,
	})

	authenticator := jwt.NewAuthenticator(jwt.Config{
		SecretKey: a.config.JWT.SecretKey,
		Issuer:    a.config.JWT.Issuer,
		Audience:  a.config.JWT.Audience,
		Leeway:    a.config.JWT.Leeway,
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.config.Server.RequestTimeout))

			telegramWebhook.RegisterRoutes(r)
			whatsappWebhook.RegisterRoutes(r)
			notificationsHandler.RegisterPublicRoutes(r)
		})

		// A full dispatch may outlive the request timeout; the server write timeout bounds it.
		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(authenticator))
			r.Use(httputil.RequireRole(domain.RoleSecretaria))

			notificationsHandler.RegisterRoutes(r)
		})
	})

	return r, nil
}

func (a *App) dispatchGuard() (notifications.Guard, error) {
	cfg := a.config.Notifications.Dedup

	switch cfg.Backend {
	case config.DedupPostgres, "":
		return dedup.NewPostgres(a.db), nil
	case config.DedupRedis:
		if a.redis == nil {
			return nil, errors.New("dedup backend redis requires redis to be enabled")
		}
		return dedup.NewRedis(a.redis, cfg.Prefix, cfg.TTL), nil
	case config.DedupNone:
		slog.Warn("duplicate dispatch protection is disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", cfg.Backend)
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

	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Redis unavailable")
			return
		}
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
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
