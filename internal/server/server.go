package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/handler"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/server/middleware"
	"github.com/custportal/portal/internal/service"
	"github.com/custportal/portal/internal/store"
	"github.com/custportal/portal/internal/telemetry"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RateLimit       int   // requests per minute per IP; 0 disables
	LoginRateLimit  int   // login attempts per minute per IP; 0 disables
	MaxBodySize     int64 // bytes
	Version         string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		RateLimit:       600,
		LoginRateLimit:  10,
		MaxBodySize:     10 * 1024 * 1024, // 10MB
		Version:         "dev",
	}
}

// Server is the top-level HTTP server for the portal. It owns the Chi
// router, the store and the authentication stack.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *store.Store
	authSvc    *service.AuthService
	resolver   middleware.PrincipalResolver
	metrics    *telemetry.Metrics
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. metrics may be nil, which disables /metrics and
// request instrumentation.
func New(cfg Config, st *store.Store, authSvc *service.AuthService, resolver middleware.PrincipalResolver, metrics *telemetry.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		authSvc:  authSvc,
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}
	if s.metrics != nil {
		r.Use(middleware.Metrics(s.metrics))
	}

	// --- Health checks and docs (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.cfg.Version).ServeSpec)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	var (
		recorder      middleware.DecisionRecorder
		loginRecorder handler.LoginRecorder
	)
	if s.metrics != nil {
		recorder = s.metrics
		loginRecorder = s.metrics
	}
	guard := middleware.NewGuard(s.logger, recorder)

	authHandler := handler.NewAuthHandler(s.authSvc, s.store, s.logger, loginRecorder)
	userHandler := handler.NewUserHandler(s.store, s.authSvc, guard, s.logger)
	roleHandler := handler.NewRoleHandler(s.store, s.logger)
	resourceHandler := handler.NewResourceHandler(s.store, guard, s.logger)
	dashboardHandler := handler.NewDashboardHandler(s.store, guard, s.logger)

	// --- API routes ---
	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(middleware.RateLimit(s.cfg.RateLimit))
		}

		// Login is the only unauthenticated API endpoint.
		r.Group(func(r chi.Router) {
			if s.cfg.LoginRateLimit > 0 {
				r.Use(middleware.LoginRateLimit(s.cfg.LoginRateLimit))
			}
			r.Post("/auth/login", authHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.authSvc, s.resolver, s.logger))

			// Self-service
			r.Route("/auth", func(r chi.Router) {
				r.Post("/logout", authHandler.Logout)
				r.Get("/profile", authHandler.Profile)
				r.Put("/profile", authHandler.UpdateProfile)
				r.Put("/change-password", authHandler.ChangePassword)
				r.Get("/my-role-permissions", authHandler.MyRolePermissions)
			})

			// User management
			r.Route("/users", func(r chi.Router) {
				r.With(guard.Require(access.ModuleUsers, access.OpView)).Get("/", userHandler.List)
				r.With(guard.Require(access.ModuleUsers, access.OpAdd)).Post("/", userHandler.Create)
				r.With(guard.Require(access.ModuleUsers, access.OpView)).Get("/{id}", userHandler.Get)
				r.With(guard.Require(access.ModuleUsers, access.OpEdit)).Put("/{id}", userHandler.Update)
				r.With(guard.Require(access.ModuleUsers, access.OpDelete)).Delete("/{id}", userHandler.Delete)
				r.With(guard.Require(access.ModuleUsers, access.OpView)).Get("/{id}/permissions", userHandler.Permissions)
			})

			// Role management
			r.Route("/roles", func(r chi.Router) {
				r.With(guard.RequireAuthenticated()).Get("/active", roleHandler.Active)
				r.With(guard.Require(access.ModuleRoles, access.OpView)).Get("/", roleHandler.List)
				r.With(guard.Require(access.ModuleRoles, access.OpAdd)).Post("/", roleHandler.Create)
				r.With(guard.Require(access.ModuleRoles, access.OpView)).Get("/{id}", roleHandler.Get)
				r.With(guard.Require(access.ModuleRoles, access.OpEdit)).Put("/{id}", roleHandler.Update)
				r.With(guard.Require(access.ModuleRoles, access.OpDelete)).Delete("/{id}", roleHandler.Delete)
			})

			// Business records
			for _, res := range model.Resources() {
				g := resourceGuards(guard, res)
				r.Route("/"+res.Name, func(r chi.Router) {
					r.With(g.view).Get("/", resourceHandler.List(res))
					r.With(g.add).Post("/", resourceHandler.Create(res))
					if res.Feed {
						r.With(g.view).Get("/latest", resourceHandler.Latest(res))
					}
					r.With(g.view).Get("/{id}", resourceHandler.Get(res))
					r.With(g.edit).Put("/{id}", resourceHandler.Update(res))
					r.With(g.del).Delete("/{id}", resourceHandler.Delete(res))
				})
			}

			// Customer portal
			r.Route("/customer/{customerCode}", func(r chi.Router) {
				r.With(guard.RequireAny(handler.OverviewPermissions...)).
					Get("/overview", resourceHandler.CustomerOverview)
				r.Get("/{resource}", resourceHandler.CustomerList)
				r.Get("/{resource}/{id}", resourceHandler.CustomerGet)
			})

			// Dashboard
			r.With(guard.Require(access.ModuleDashboard, access.OpView)).
				Get("/dashboard/summary", dashboardHandler.Summary)

			// Admin
			r.Route("/admin", func(r chi.Router) {
				r.Use(guard.RequireAdmin())
				r.Get("/login-logs", dashboardHandler.LoginLogs)
			})
		})
	})

	s.router = r
}

type routeGuards struct {
	view, add, edit, del func(http.Handler) http.Handler
}

// resourceGuards picks the middleware for each CRUD route of res.
func resourceGuards(g *middleware.Guard, res model.Resource) routeGuards {
	if !res.Guarded() {
		admin := g.RequireAdmin()
		return routeGuards{view: g.RequireAuthenticated(), add: admin, edit: admin, del: admin}
	}
	return routeGuards{
		view: g.Require(res.Module, access.OpView),
		add:  g.Require(res.Module, access.OpAdd),
		edit: g.Require(res.Module, access.OpEdit),
		del:  g.Require(res.Module, access.OpDelete),
	}
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the database is
// reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{"database": "ok"}

	if err := s.store.Ping(r.Context()); err != nil {
		checks["database"] = "error: " + err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the database.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Warn("close database", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
