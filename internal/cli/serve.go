package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainproof/verify/internal/config"
	"github.com/chainproof/verify/internal/observability/metrics"
	"github.com/chainproof/verify/internal/server"
)

func newServeCmd() *cobra.Command {
	var metricsPort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the verification HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(metricsPort)
		},
	}

	cmd.Flags().IntVar(&metricsPort, "metrics-port", 9090, "port for the Prometheus /metrics listener (0 disables it)")

	return cmd
}

func runServe(metricsPort int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	metrics.Init(true, "verifyd")

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting verification server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if metricsPort > 0 {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, metricsPort)
		metricsServer := &http.Server{Addr: metricsAddr, Handler: srv.MetricsHandler()}
		go func() {
			logger.Info("starting metrics server", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
