package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/codeguard/internal/logging"
	"github.com/dshills/codeguard/internal/mcp"
	"github.com/dshills/codeguard/internal/metrics"
	"github.com/dshills/codeguard/internal/scanner"
	"github.com/dshills/codeguard/internal/storage"
)

func newServeCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus /metrics on this address (e.g. :9090)")
	return cmd
}

func runServe(parent context.Context, metricsAddr string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	logger := logging.New("serve")

	// Log startup info to stderr (stdout reserved for MCP protocol)
	logger.Info().
		Str("version", version).
		Str("build_mode", storage.BuildMode).
		Str("driver", storage.DriverName).
		Bool("vector_extension", storage.VectorExtensionAvailable).
		Msg("codeguard MCP server starting")

	m := metrics.New()
	ctrl, err := scanner.NewFromConfig(cfg, m)
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.Close() }()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", metricsAddr).Msg("metrics listener failed")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		logger.Info().Str("addr", metricsAddr).Msg("serving metrics")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := mcp.NewServer(ctrl, version)
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("received signal, shutting down gracefully")
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("scans still running at shutdown")
	}
	logger.Info().Msg("server stopped")
	return nil
}
