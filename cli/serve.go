package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/flowgraph/graphengine/config"
	"github.com/flowgraph/graphengine/execsvc"
	"github.com/flowgraph/graphengine/runconfig"
	"github.com/flowgraph/graphengine/schedulerun"
	"github.com/flowgraph/graphengine/server"
	"github.com/flowgraph/graphengine/store"
	"github.com/flowgraph/graphengine/telemetry"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the graph engine HTTP server and schedule daemon",
		RunE:  runServe,
	}

	cmd.Flags().String("config", "", "Path to graphengine.yaml (default: discovered)")
	cmd.Flags().String("listen-addr", "", "Listen address, e.g. :8080")
	cmd.Flags().String("store-dsn", "", "Store DSN: file::memory: or a modernc.org/sqlite path")
	cmd.Flags().String("cors-origin", "", "Allowed CORS origin")
	cmd.Flags().String("otlp-endpoint", "", "OTLP HTTP collector endpoint (traces+metrics); telemetry is disabled if empty")
	cmd.Flags().Duration("schedule-poll-interval", 5*time.Second, "How often the schedule daemon polls for due runs")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	explicitConfig, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(explicitConfig)
	if err != nil {
		return exitError(exitRuntime, "loading config: %v", err)
	}
	applyServeFlagOverrides(cmd, &cfg)

	logger := slog.Default()

	repo, err := openRepository(cfg.StoreDSN)
	if err != nil {
		return exitError(exitRuntime, "opening store: %v", err)
	}

	svc := execsvc.New(repo)

	var executor server.Executor = svc
	var daemonExecutor schedulerun.Executor = svc
	var shutdownTelemetry func(context.Context) error

	if cfg.OTLPEndpoint != "" {
		tp, mp, shutdown, err := setupTelemetryProviders(cmd.Context(), cfg.OTLPEndpoint)
		if err != nil {
			return exitError(exitRuntime, "setting up telemetry: %v", err)
		}
		shutdownTelemetry = shutdown

		in, err := telemetry.New(tp.Tracer("graphengine"), mp.Meter("graphengine"))
		if err != nil {
			return exitError(exitRuntime, "setting up instrumenter: %v", err)
		}
		in.Wire(svc)
		instrumented := &instrumentedExecutor{in: in, svc: svc}
		executor = instrumented
		daemonExecutor = instrumented
	}

	srv := server.NewServer(server.ServerConfig{
		Store:         repo,
		ScheduleStore: repo,
		Service:       executor,
		CORSOrigin:    cfg.CORSOrigin,
		Logger:        logger,
	})

	pollInterval, _ := cmd.Flags().GetDuration("schedule-poll-interval")
	daemon, err := schedulerun.New(schedulerun.Config{
		Service:      daemonExecutor,
		Store:        repo,
		PollInterval: pollInterval,
		Logger:       logger,
	})
	if err != nil {
		return exitError(exitRuntime, "starting schedule daemon: %v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := daemon.Start(ctx); err != nil {
		return exitError(exitRuntime, "starting schedule daemon: %v", err)
	}
	defer daemon.Stop(context.Background())

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("graph engine listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return exitError(exitRuntime, "http server: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return exitError(exitRuntime, "http server shutdown: %v", err)
	}
	if shutdownTelemetry != nil {
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown", "error", err)
		}
	}
	return nil
}

func applyServeFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("listen-addr"); v != "" {
		cfg.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("store-dsn"); v != "" {
		cfg.StoreDSN = v
	}
	if v, _ := cmd.Flags().GetString("cors-origin"); v != "" {
		cfg.CORSOrigin = v
	}
	if v, _ := cmd.Flags().GetString("otlp-endpoint"); v != "" {
		cfg.OTLPEndpoint = v
	}
}

// openRepository opens a memory-backed or SQLite-backed store depending on
// the DSN: "file::memory:" (the default) and the bare word "memory" both
// mean in-process storage with no persistence; anything else is handed to
// the SQLite driver as-is.
func openRepository(dsn string) (store.Repository, error) {
	if dsn == "" || dsn == "memory" || strings.HasPrefix(dsn, "file::memory:") {
		return store.NewMemoryRepository(), nil
	}
	return store.NewSQLiteRepository(store.SQLiteConfig{DSN: dsn})
}

// setupTelemetryProviders builds the OTLP HTTP trace/metric exporters and
// SDK providers. Construction lives here, in the binary, not in the
// telemetry package itself, so that package stays usable (and importable)
// without ever reaching for a collector.
func setupTelemetryProviders(ctx context.Context, endpoint string) (*sdktrace.TracerProvider, *sdkmetric.MeterProvider, func(context.Context) error, error) {
	traceExporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tp)

	metricExporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if mErr := mp.Shutdown(ctx); mErr != nil && err == nil {
			err = mErr
		}
		return err
	}
	return tp, mp, shutdown, nil
}

// instrumentedExecutor adapts an *execsvc.Service plus a telemetry
// instrumenter to the server.Executor / schedulerun.Executor interfaces,
// so both the HTTP layer and the schedule daemon get identical spans and
// metrics around every Execute call.
type instrumentedExecutor struct {
	in  *telemetry.Instrumenter
	svc *execsvc.Service
}

func (e *instrumentedExecutor) Execute(ctx context.Context, graphID string, cfg runconfig.Config) (execsvc.Result, error) {
	return e.in.Execute(ctx, e.svc, graphID, cfg)
}
