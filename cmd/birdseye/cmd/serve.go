package cmd

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

	"github.com/MeKo-Tech/birdseye/internal/config"
	"github.com/MeKo-Tech/birdseye/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server for lane tracking sessions",
		Long: `Start an HTTP server that tracks lanes for remote cameras. Every client
creates a session and posts its frames in order; the session carries the
selected lane from one frame to the next.

The server provides the following endpoints:
  POST   /v1/sessions              - Create a tracking session
  GET    /v1/sessions/{id}         - Session state and statistics
  DELETE /v1/sessions/{id}         - Close a session
  POST   /v1/sessions/{id}/reset   - Forget the tracked lane
  POST   /v1/sessions/{id}/frames  - Process one frame (multipart field "frame")
  GET    /v1/sessions/{id}/stream  - WebSocket frame stream
  GET    /health                   - Health check endpoint
  GET    /version                  - Build and pipeline information
  GET    /metrics                  - Prometheus metrics

Examples:
  birdseye serve
  birdseye serve --port 8080
  birdseye serve --host 0.0.0.0 --port 3000 --session-ttl 300`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			srv, err := server.NewServer(serverConfig(cfg))
			if err != nil {
				return fmt.Errorf("failed to initialize server: %w", err)
			}

			sc := cfg.Server
			httpServer := &http.Server{
				Addr:              fmt.Sprintf("%s:%d", sc.Host, sc.Port),
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			return serveUntilSignal(cmd.Context(), httpServer, srv, time.Duration(sc.ShutdownTimeout)*time.Second)
		},
	}

	f := cmd.Flags()
	f.StringP("host", "H", "localhost", "server host")
	f.IntP("port", "p", 8080, "server port")
	f.String("cors-origin", "*", "comma-separated CORS allowed origins")
	f.Int("max-upload-size", 20, "maximum frame upload size in MB")
	f.Int("timeout", 30, "per-frame processing timeout in seconds")
	f.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	f.Int("session-ttl", 600, "close sessions idle for this many seconds (0 = never)")
	f.Int("max-sessions", 64, "maximum number of open sessions (0 = unlimited)")
	f.Int("reset-after-misses", 0, "forget the tracked lane after this many consecutive misses (0 = never)")
	f.Bool("reuse-last", false, "reuse the last transform for frames without a lane")
	addPipelineFlags(cmd)
	return cmd
}

// serverConfig maps the loaded configuration onto the server settings.
func serverConfig(cfg *config.Config) server.Config {
	sc := cfg.Server
	return server.Config{
		Host:           sc.Host,
		Port:           sc.Port,
		CORSOrigin:     sc.CORSOrigin,
		MaxUploadMB:    int64(sc.MaxUploadMB),
		TimeoutSec:     sc.TimeoutSec,
		SessionTTL:     time.Duration(sc.SessionTTLSec) * time.Second,
		MaxSessions:    sc.MaxSessions,
		PipelineConfig: cfg.ToPipelineConfig(),
	}
}

// serveUntilSignal runs httpServer until SIGINT/SIGTERM, a listener error or
// ctx cancellation, then shuts it down gracefully.
func serveUntilSignal(ctx context.Context, httpServer *http.Server, srv *server.Server, shutdownTimeout time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting birdseye server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			serveErr <- err
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled, initiating shutdown")
	}

	slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server shutdown completed")
	}

	if err := srv.Close(); err != nil {
		slog.Error("Server cleanup error", "error", err)
	}
	slog.Info("Graceful shutdown completed")

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	default:
		return nil
	}
}
