package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/casebot-go/internal/logging"
	"github.com/54b3r/casebot-go/internal/server"
)

// NewServeCmd constructs the `casebot serve` command, which starts the HTTP
// server in front of the question pipeline.
func NewServeCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the casebot HTTP server",
		Long: `Start the casebot HTTP server.

Endpoints:
  POST /api/ask     answer as JSON
  POST /api/chat    answer as Server-Sent Events
  GET  /api/search  retrieved records only
  GET  /api/health  liveness
  GET  /api/ready   embedder, index and generation backend checks
  GET  /metrics     Prometheus metrics

Examples:
  casebot serve
  casebot serve --port 9090
  GENERATION_BACKEND=selfhosted casebot serve --host 0.0.0.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)
			log.Info("serve starting", slog.String("generation_backend", os.Getenv("GENERATION_BACKEND")))

			handlers, flush := setupTracing(log)
			defer flush()

			a, err := buildApp(ctx, log, prometheus.DefaultRegisterer, handlers...)
			if err != nil {
				return presentError(ctx, err)
			}
			defer a.Close(log)

			rateLimit, rateBurst, err := rateFromEnv()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("host") {
				host = envOr("CASEBOT_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				if port, err = envPort(port); err != nil {
					return err
				}
			}

			// Warm the embedder and index in the background so a dimension
			// mismatch is logged before the first question arrives.
			go func() {
				if err := a.retriever.Check(ctx); err != nil {
					log.Warn("startup check failed; queries will retry", slog.Any("error", err))
					return
				}
				log.Info("startup check passed", slog.Int("dimensions", a.embedder.Dimensions()))
			}()

			srv, err := server.New(a.pipeline, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				RateLimit: rateLimit,
				RateBurst: rateBurst,
				Pingers: []server.Pinger{
					server.NewEmbedderPinger(a.embedder.Load),
					server.NewIndexPinger(a.index),
					server.NewGenerationPinger(a.generator),
				},
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env CASEBOT_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env CASEBOT_PORT)")

	return cmd
}

// envOr returns the named env var or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envPort reads CASEBOT_PORT, keeping fallback when unset.
func envPort(fallback int) (int, error) {
	v := os.Getenv("CASEBOT_PORT")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 65535 {
		return 0, fmt.Errorf("serve: CASEBOT_PORT=%q is not a valid port", v)
	}
	return n, nil
}

// rateFromEnv reads CASEBOT_RATE_LIMIT and CASEBOT_RATE_BURST. Zero values
// let the server apply its defaults.
func rateFromEnv() (float64, int, error) {
	var (
		limit float64
		burst int
		err   error
	)
	if v := os.Getenv("CASEBOT_RATE_LIMIT"); v != "" {
		if limit, err = strconv.ParseFloat(v, 64); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("serve: CASEBOT_RATE_LIMIT=%q is not a non-negative number", v)
		}
	}
	if v := os.Getenv("CASEBOT_RATE_BURST"); v != "" {
		if burst, err = strconv.Atoi(v); err != nil || burst < 0 {
			return 0, 0, fmt.Errorf("serve: CASEBOT_RATE_BURST=%q is not a non-negative integer", v)
		}
	}
	return limit, burst, nil
}
