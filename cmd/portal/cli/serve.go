package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/server"
	"github.com/custportal/portal/internal/service"
	"github.com/custportal/portal/internal/session"
	"github.com/custportal/portal/internal/store"
	"github.com/custportal/portal/internal/telemetry"
)

// devJWTSecret signs tokens in --dev mode only.
const devJWTSecret = "portal-dev-secret-change-me"

func newServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the portal API server",
		Long:  "Start the HTTP server that exposes the customer portal API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(commandContext(cmd), dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging, fallback JWT secret)")

	v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	v.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(ctx context.Context, dev bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dev {
		cfg.Log.Level = "debug"
	}
	logger := newLogger(os.Stderr, cfg.Log)
	slog.SetDefault(logger)

	if cfg.Auth.JWTSecret == "" {
		if !dev {
			return errors.New("auth.jwt_secret is required (set PORTAL_AUTH_JWT_SECRET)")
		}
		logger.Warn("using the development JWT secret")
		cfg.Auth.JWTSecret = devJWTSecret
	}

	// 1. Database
	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	logger.Info("database connected", "driver", cfg.Database.Driver)

	// 2. Session revocation
	revoker, err := session.New(ctx, session.Config{
		RedisURL:   cfg.Session.RedisURL,
		MaxEntries: cfg.Session.MaxEntries,
		TokenTTL:   cfg.Auth.TokenTTL,
	})
	if err != nil {
		st.Close()
		return fmt.Errorf("init session store: %w", err)
	}
	defer revoker.Close()
	if cfg.Session.RedisURL == "" {
		logger.Info("token revocation kept in process; use session.redis_url when running several instances")
	}

	// 3. Authentication and access
	authSvc := service.NewAuthService(st, revoker, service.AuthOptions{
		JWTSecret:  cfg.Auth.JWTSecret,
		TokenTTL:   cfg.Auth.TokenTTL,
		BcryptCost: cfg.Auth.BcryptCost,
	})
	docs, err := access.NewDocumentCache(nil, 0)
	if err != nil {
		st.Close()
		return err
	}
	resolver := access.NewResolver(st.Directory(), docs)

	hasAdmin, err := st.HasAdmin(ctx)
	if err != nil {
		logger.Warn("failed to check for admin", "error", err)
	}
	if !hasAdmin {
		logger.Warn("no admin account found - run: portal user create --role admin")
	}

	// 4. Metrics
	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewMetrics()
		sampler := telemetry.NewSampler(metrics, storeStats(st), 0, logger)
		sampler.Start()
		defer sampler.Shutdown()
	}

	// 5. HTTP server
	srvCfg := server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimit:       cfg.Server.RateLimit,
		LoginRateLimit:  cfg.Auth.LoginRate,
		MaxBodySize:     cfg.Server.MaxBodyBytes,
		Version:         versionString(),
	}
	srv := server.New(srvCfg, st, authSvc, resolver, metrics, logger)

	fmt.Printf("→ Portal %s\n", versionString())
	fmt.Printf("→ Listening on http://%s\n", cfg.Server.Addr())
	fmt.Printf("→ OpenAPI:    http://%s/openapi.json\n", cfg.Server.Addr())
	fmt.Printf("→ Health:     http://%s/healthz\n", cfg.Server.Addr())
	if metrics != nil {
		fmt.Printf("→ Metrics:    http://%s/metrics\n", cfg.Server.Addr())
	}
	fmt.Println()

	return srv.ListenAndServe()
}

// storeStats gathers the totals exported as gauges.
func storeStats(st *store.Store) telemetry.StatsFunc {
	return func(ctx context.Context) (telemetry.Stats, error) {
		var s telemetry.Stats
		var err error
		if s.ActiveUsers, err = st.CountUsers(ctx, access.AllTenants(), model.StatusActive); err != nil {
			return s, err
		}
		if s.InactiveUsers, err = st.CountUsers(ctx, access.AllTenants(), model.StatusInactive); err != nil {
			return s, err
		}
		roles, err := st.ListRoles(ctx, true)
		if err != nil {
			return s, err
		}
		s.ActiveRoles = len(roles)

		db := st.DBStats()
		s.DBOpenConns = db.OpenConnections
		s.DBInUse = db.InUse
		return s, nil
	}
}
