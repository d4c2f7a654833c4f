package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skypro1111/form-relay-service/internal/config"
	"github.com/skypro1111/form-relay-service/internal/metrics"
	"github.com/skypro1111/form-relay-service/internal/relay"
	"github.com/skypro1111/form-relay-service/internal/server"
	"github.com/skypro1111/form-relay-service/internal/storage"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the relay listener",
		Long: `Start the site HTTP server and the UDP relay listener and run until
SIGINT or SIGTERM.

Example:
  formrelay serve
  formrelay serve --config configs/config.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	logger, closeLog := initLogger(cfg.Logging, cmd.ErrOrStderr())
	defer closeLog()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", opts.ConfigPath),
	)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.HTTP.ListenAddress()),
		slog.String("base_dir", cfg.HTTP.BaseDir),
		slog.String("relay_address", cfg.Relay.ListenAddress()),
		slog.Int("relay_buffer_size", cfg.Relay.BufferSize),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("storage_path", cfg.Storage.Path),
		slog.Bool("metrics_enabled", cfg.Metrics.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics()

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		logger.Error("Failed to open store", slog.String("error", err.Error()))
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing store", slog.String("error", err.Error()))
		}
	}()

	listener := relay.NewListener(&cfg.Relay, logger.With(slog.String("component", "relay")), store, appMetrics)
	if err := listener.Start(); err != nil {
		logger.Error("Failed to start relay listener",
			slog.String("address", cfg.Relay.ListenAddress()),
			slog.String("error", err.Error()),
		)
		return WrapExitError(ExitCommandError, "failed to start relay listener", err)
	}

	sender := relay.NewSender(&cfg.Relay)
	httpServer := server.NewHTTPServer(&cfg.HTTP, logger.With(slog.String("component", "http")), sender, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server",
			slog.String("address", cfg.HTTP.ListenAddress()),
			slog.String("error", err.Error()),
		)
		listener.Stop()
		return WrapExitError(ExitCommandError, "failed to start HTTP server", err)
	}

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = server.NewMetricsServer(&cfg.Metrics, logger.With(slog.String("component", "metrics")), appMetrics)
		if err := metricsServer.Start(); err != nil {
			// Metrics are auxiliary; the form pipeline keeps running.
			logger.Error("Failed to start metrics server",
				slog.String("address", cfg.Metrics.ListenAddress()),
				slog.String("error", err.Error()),
			)
			metricsServer = nil
		}
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Service started successfully, waiting for signals...")
	fmt.Fprintf(cmd.OutOrStdout(), "Serving http://%s, relay on udp://%s\n", httpServer.Addr(), listener.Addr())

	<-ctx.Done()
	logger.Info("Starting graceful shutdown...", slog.String("cause", context.Cause(ctx).Error()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.GetShutdownTimeout())
	defer cancel()

	// Stop accepting posts before closing the relay socket.
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping metrics server", slog.String("error", err.Error()))
		}
	}

	if err := listener.Stop(); err != nil {
		logger.Error("Error stopping relay listener", slog.String("error", err.Error()))
	}

	stats := listener.Statistics()
	logger.Info("Final relay statistics",
		slog.Uint64("datagrams_received", stats.DatagramsReceived),
		slog.Uint64("datagrams_persisted", stats.DatagramsPersisted),
		slog.Uint64("decode_errors", stats.DecodeErrors),
		slog.Uint64("store_errors", stats.StoreErrors),
	)

	logger.Info("Service stopped")
	return nil
}
