package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/sitegrade/api"
	"github.com/use-agent/sitegrade/config"
)

// shutdownGrace is how long in-flight requests get to finish on shutdown.
const shutdownGrace = 5 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve exposes the analysis API:

  POST /api/v1/analyze        analyze a URL
  GET  /api/v1/quota          the caller's daily allowance
  GET  /api/v1/analyses       the caller's stored analyses (needs SQLite)
  GET  /api/v1/analyses/:id   one stored analysis (needs SQLite)
  GET  /api/v1/health         browser utilisation
  GET  /metrics               Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().IntP("port", "p", 0, "Listen port (overrides SITEGRADE_PORT)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log, os.Stdout)
	slog.Info("sitegrade starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"renderMode", cfg.Render.Mode,
		"maxContexts", cfg.Browser.MaxContexts,
	)

	// ── 3. Wire components ──────────────────────────────────────────
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// ── 4. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(cfg, api.Deps{
		Service:   a.service,
		Browser:   a.browserStats(),
		Analyses:  a.analysisReader(),
		Gatherer:  a.registry,
		StartTime: time.Now(),
	})

	// ── 5. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── 6. Graceful shutdown ────────────────────────────────────────
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// a.Close() runs via defer and kills Chrome.
	slog.Info("sitegrade stopped")
	return nil
}
