// Package server is the composition root: it opens storage, builds the
// services and handlers, and maps routes to them.
//
// DEPENDENCY FLOW:
//
//	config → sqldb.DB ─┬→ AccountService ─→ AccountHandler
//	                   ├→ ScheduleService ─→ ScheduleHandler
//	                   └→ BookingService ──→ ReservationHandler
//	config → session.Store → session.Manager ─┐
//	sqldb.DB → auth.Resolver ─────────────────┴→ auth.Middleware
//
// Services see repository interfaces, handlers see services, and nothing
// but this package knows which concrete types are in play.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/reservations/internal/auth"
	"github.com/sakif/reservations/internal/config"
	"github.com/sakif/reservations/internal/handler"
	"github.com/sakif/reservations/internal/idgen"
	"github.com/sakif/reservations/internal/metrics"
	"github.com/sakif/reservations/internal/middleware"
	"github.com/sakif/reservations/internal/repository/sqldb"
	"github.com/sakif/reservations/internal/service"
	"github.com/sakif/reservations/internal/session"
)

// Server owns the HTTP router and the resources it must close on shutdown.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqldb.DB
	redis   *redis.Client // nil unless sessions live in Redis
	metrics *metrics.Metrics

	accounts  *service.AccountService
	schedules *service.ScheduleService
	booking   *service.BookingService
	sessions  *session.Manager
	authMW    *auth.Middleware
	pingers   map[string]handler.Pinger
}

// New opens the database (running migrations), makes sure the seed staff
// user exists and sets up every route.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := openDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		pingers: map[string]handler.Pinger{"database": db},
	}

	if err := s.wire(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sqldb.DB, error) {
	dsn := cfg.DSN
	if cfg.Driver == "sqlite" && dsn == "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = sqldb.SQLiteDSN(cfg.Path, cfg.BusyTimeout)
	}

	db, err := sqldb.Open(ctx, sqldb.Options{
		Driver:       cfg.Driver,
		DSN:          dsn,
		MaxOpenConns: cfg.MaxOpenConns,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func (s *Server) wire(ctx context.Context) error {
	source, err := idgen.SourceByName(s.config.IDs.Source)
	if err != nil {
		return err
	}
	ids := idgen.New(source, s.config.IDs.MaxAttempts)

	if s.config.Metrics.Enabled {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}

	store, err := s.sessionStore(ctx)
	if err != nil {
		return err
	}
	s.sessions = session.NewManager(store, session.ManagerConfig{
		CookieName: s.config.Session.CookieName,
		TTL:        s.config.Session.TTL,
		Secure:     s.config.Session.Secure,
	}, s.logger)
	s.authMW = auth.NewMiddleware(s.sessions, auth.NewResolver(s.db, s.logger), handler.WriteError, s.logger)

	seed := service.SeedUser{Email: s.config.Seed.Email, Nickname: s.config.Seed.Nickname}
	s.accounts = service.NewAccountService(s.db, ids, seed, s.logger)
	s.schedules = service.NewScheduleService(s.db, ids, s.logger)
	s.booking = service.NewBookingService(s.db, ids, s.metrics, s.logger)

	if err := s.accounts.EnsureSeed(ctx); err != nil {
		return fmt.Errorf("bootstrapping seed user: %w", err)
	}

	s.setupRoutes()
	return nil
}

func (s *Server) sessionStore(ctx context.Context) (session.Store, error) {
	switch s.config.Session.Backend {
	case "redis":
		s.redis = redis.NewClient(&redis.Options{
			Addr:     s.config.Redis.Addr,
			Password: s.config.Redis.Password,
			DB:       s.config.Redis.DB,
		})
		store := session.NewRedisStore(s.redis)
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", s.config.Redis.Addr, err)
		}
		s.pingers["redis"] = store
		return store, nil
	default:
		return session.NewCookieStore(s.config.Session.Secret)
	}
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
//
//	POST /initialize                           reset all data (config-gated)
//	GET  /api/session                          current user or null
//	POST /api/signup, /api/login               rate limited per IP
//	POST /api/logout
//	POST /api/schedules                        staff
//	GET  /api/schedules, /api/schedules/{id}
//	GET  /api/schedules/{id}/reservations.xlsx staff
//	POST /api/reservations                     login
//	GET  /healthz, /readyz, /metrics
//	GET  /*                                    single-page app
//
// Order of global middleware: request id, real ip, logging, panic recovery.
// Recoverer sits inside Logger so a recovered panic is logged as a 500.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	health := handler.NewHealthHandler(s.pingers, s.logger)
	s.router.Get("/healthz", health.HandleLive)
	s.router.Get("/readyz", health.HandleReady)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	accounts := handler.NewAccountHandler(s.accounts, s.sessions, s.config.Initialize.Enabled, s.logger)
	schedules := handler.NewScheduleHandler(s.schedules, s.logger)
	reservations := handler.NewReservationHandler(s.booking, s.logger)
	limiter := middleware.NewRateLimiter(s.config.RateLimit.PerMinute, s.config.RateLimit.Burst, handler.WriteError)

	s.router.Post("/initialize", accounts.HandleInitialize)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.authMW.Identify)

		r.Get("/session", accounts.HandleSession)
		r.With(limiter.Handler).Post("/signup", accounts.HandleSignup)
		r.With(limiter.Handler).Post("/login", accounts.HandleLogin)
		r.Post("/logout", accounts.HandleLogout)

		r.Get("/schedules", schedules.HandleList)
		r.Get("/schedules/{id}", schedules.HandleGet)
		r.Group(func(r chi.Router) {
			r.Use(s.authMW.RequireStaff)
			r.Post("/schedules", schedules.HandleCreate)
			r.Get("/schedules/{id}/reservations.xlsx", schedules.HandleExport)
		})

		r.With(s.authMW.RequireLogin).Post("/reservations", reservations.HandleCreate)
	})

	frontend, err := handler.NewFrontendHandler(s.config.HTTP.StaticDir, s.logger)
	if err != nil {
		s.logger.Warn("frontend disabled: no index.html",
			slog.String("dir", s.config.HTTP.StaticDir),
			slog.String("error", err.Error()),
		)
		return
	}
	s.router.Get("/*", frontend.HandleApp)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to the configured shutdown timeout and closes the database and Redis.
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("database", s.db.Dialect()),
			slog.String("sessions", s.config.Session.Backend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.HTTP.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

// Close releases the database and Redis connections without serving.
func (s *Server) Close() {
	s.close()
}

func (s *Server) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}
