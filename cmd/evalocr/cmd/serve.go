package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/config"
	"github.com/MeKo-Tech/evalocr/internal/server"
	"github.com/MeKo-Tech/evalocr/internal/version"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for the OCR API",
		Long: `Start an HTTP server that provides REST and WebSocket endpoints for OCR.

The server provides the following endpoints:
  POST /recognize        - Recognize an uploaded image (multipart, JSON or raw body)
  POST /recognize/batch  - Recognize several base64 images
  POST /validate         - Validate an image without recognition
  GET  /ws/recognize     - Recognize over WebSocket with progress events
  GET  /strategies       - List strategies and profiles
  GET  /diagnostics      - Capability report
  GET  /health           - Health check endpoint
  GET  /metrics          - Prometheus metrics

Examples:
  evalocr serve
  evalocr serve --port 8080
  evalocr serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, p, err := a.pipelineFor(cmd, applyServerFlags)
			if err != nil {
				return err
			}
			sc := cfg.Server

			srv, err := server.NewServer(server.Config{
				Host:          sc.Host,
				Port:          sc.Port,
				CORSOrigin:    sc.CORSOrigin,
				MaxUploadMB:   int64(sc.MaxUploadMB),
				TimeoutSec:    sc.TimeoutSec,
				MaxConcurrent: sc.MaxConcurrent,
				BatchWorkers:  cfg.Batch.Workers,
				Version:       version.Version,
				Logger:        a.logger,
				RateLimit: server.RateLimitConfig{
					Enabled:           sc.RateLimit.Enabled,
					RequestsPerMinute: sc.RateLimit.RequestsPerMinute,
					RequestsPerHour:   sc.RateLimit.RequestsPerHour,
					MaxRequestsPerDay: sc.RateLimit.MaxRequestsPerDay,
					MaxDataPerDay:     sc.RateLimit.MaxDataPerDay,
				},
			}, p)
			if err != nil {
				return fmt.Errorf("failed to initialize server: %w", err)
			}

			timeout := time.Duration(sc.TimeoutSec) * time.Second
			httpServer := &http.Server{
				Addr:              net.JoinHostPort(sc.Host, strconv.Itoa(sc.Port)),
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       timeout,
				// Responses wait for the recognition itself.
				WriteTimeout: timeout + cfg.Recognition.Timeout,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("Starting OCR server",
					"host", sc.Host, "port", sc.Port,
					"profile", cfg.Recognition.Profile,
					"asset_source", cfg.Assets.Source,
					"rate_limit", sc.RateLimit.Enabled,
				)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err, ok := <-errCh:
				if ok {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
				a.logger.Info("Received shutdown signal")
			}

			shutdownTimeout := time.Duration(sc.ShutdownTimeout) * time.Second
			a.logger.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("HTTP server shutdown error", "error", err)
				return err
			}
			a.logger.Info("Graceful shutdown completed", "active_engines", p.ActiveEngines())
			return nil
		},
	}

	addRecognitionFlags(cmd)
	cmd.Flags().StringP("host", "H", "", "server host (default from config)")
	cmd.Flags().IntP("port", "p", 0, "server port (default from config)")
	cmd.Flags().String("cors-origin", "", "CORS allowed origin")
	cmd.Flags().Int("max-upload-size", 0, "maximum upload size in MB")
	cmd.Flags().Int("request-timeout", 0, "time to wait for a free recognition slot and to read a request, in seconds")
	cmd.Flags().Int("shutdown-timeout", 0, "shutdown timeout in seconds")
	cmd.Flags().Int("max-concurrent", 0, "maximum concurrent recognitions")
	// Rate limiting flags
	cmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	cmd.Flags().Int("requests-per-minute", 0, "maximum requests per minute per client")
	cmd.Flags().Int("requests-per-hour", 0, "maximum requests per hour per client")
	cmd.Flags().Int("max-requests-per-day", 0, "maximum requests per day per client")
	cmd.Flags().Int64("max-data-per-day", 0, "maximum data processed per day per client (bytes)")
	return cmd
}

func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	sc := &cfg.Server
	if flags.Changed("host") {
		sc.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		sc.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("cors-origin") {
		sc.CORSOrigin, _ = flags.GetString("cors-origin")
	}
	if flags.Changed("max-upload-size") {
		sc.MaxUploadMB, _ = flags.GetInt("max-upload-size")
	}
	if flags.Changed("request-timeout") {
		sc.TimeoutSec, _ = flags.GetInt("request-timeout")
	}
	if flags.Changed("shutdown-timeout") {
		sc.ShutdownTimeout, _ = flags.GetInt("shutdown-timeout")
	}
	if flags.Changed("max-concurrent") {
		sc.MaxConcurrent, _ = flags.GetInt("max-concurrent")
	}
	if flags.Changed("rate-limit-enabled") {
		sc.RateLimit.Enabled, _ = flags.GetBool("rate-limit-enabled")
	}
	if flags.Changed("requests-per-minute") {
		sc.RateLimit.RequestsPerMinute, _ = flags.GetInt("requests-per-minute")
	}
	if flags.Changed("requests-per-hour") {
		sc.RateLimit.RequestsPerHour, _ = flags.GetInt("requests-per-hour")
	}
	if flags.Changed("max-requests-per-day") {
		sc.RateLimit.MaxRequestsPerDay, _ = flags.GetInt("max-requests-per-day")
	}
	if flags.Changed("max-data-per-day") {
		sc.RateLimit.MaxDataPerDay, _ = flags.GetInt64("max-data-per-day")
	}
}
