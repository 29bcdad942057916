package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datanex/staycohort/internal/cohort"
	"github.com/datanex/staycohort/internal/shared/auth"
	"github.com/datanex/staycohort/internal/shared/config"
	"github.com/datanex/staycohort/internal/shared/database"
	"github.com/datanex/staycohort/internal/shared/events"
	"github.com/datanex/staycohort/internal/shared/metrics"
	secmiddleware "github.com/datanex/staycohort/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	DB     *database.DB
	Bus    *events.Bus
	Logger *zap.Logger
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve stored cohort runs over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, &App{Config: cfg, Logger: log})
		},
	}
}

func serve(ctx context.Context, app *App) error {
	cfg, log := app.Config, app.Logger

	// Results database (optional - the API is not mounted without it)
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			log.Warn("database not available, running without the runs API", zap.Error(err))
		} else {
			app.DB = db
			defer db.Close()
			if err := database.Migrate(ctx, db.Pool, log); err != nil {
				log.Warn("migration failed", zap.Error(err))
			}
		}
	}

	// Event bus (optional - only reported on /ready)
	if cfg.KurrentDB.Enabled {
		bus, err := events.NewBus(cfg.KurrentDB)
		if err != nil {
			log.Warn("KurrentDB not available", zap.Error(err))
		} else {
			app.Bus = bus
			defer bus.Close()
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newRouter(app),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("env", cfg.Server.Env),
			zap.Bool("database", app.DB != nil),
			zap.Bool("kurrentdb", app.Bus != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func newRouter(app *App) http.Handler {
	cfg := app.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(secmiddleware.RequestLogger(app.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(secmiddleware.NewIPRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst).Middleware)
		if cfg.IsProduction() {
			r.Use(auth.Middleware(cfg.Auth))
			r.Use(auth.RequireRoles(auth.RoleAnalyst, auth.RoleAdmin))
		}

		if app.DB != nil {
			handler := cohort.NewHandler(cohort.NewRepository(app.DB.Pool), cfg.Engine.NationalCode)
			r.Mount("/", handler.Routes())
		} else {
			r.HandleFunc("/*", storeUnavailable)
		}
	})

	return r
}

func storeUnavailable(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "results database not configured",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		// Check database
		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		// Check KurrentDB
		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
