package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/troupelab/troupe/internal/application/ensemble"
	"github.com/troupelab/troupe/internal/config"
	"github.com/troupelab/troupe/internal/graph"
	"github.com/troupelab/troupe/pkg/adapters/metrics/prometheus"
	"github.com/troupelab/troupe/pkg/adapters/plugins"
	"github.com/troupelab/troupe/pkg/adapters/specfile"
	"github.com/troupelab/troupe/pkg/adapters/telemetry"
	telemetryredis "github.com/troupelab/troupe/pkg/adapters/telemetry/redis"
	"github.com/troupelab/troupe/pkg/api/http"
	"github.com/troupelab/troupe/pkg/api/websocket"
	"github.com/troupelab/troupe/pkg/ports"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting troupe supervisor",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	// Parse the ensemble spec file
	doc, err := specfile.Load(cfg.SpecPath)
	if err != nil {
		logger.Fatal("failed to load spec file",
			zap.String("path", cfg.SpecPath),
			zap.Error(err))
	}
	ensembleID := doc.Ensemble
	if ensembleID == "" {
		ensembleID = "default"
	}

	// Telemetry sinks: the broadcaster feeds the websocket stream, Redis adds
	// durable delivery when configured.
	broadcaster := telemetry.NewBroadcaster()
	sinks := []ports.TelemetrySink{broadcaster}

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		sinks = append(sinks, telemetryredis.NewStreamsSink(redisClient, 10000, logger))
	}
	sink := telemetry.NewFanout(sinks...)

	metricsCollector := prometheus.NewCollector()

	// Plugin providers
	registry := plugins.NewRegistry()
	registry.Register("noop", plugins.NoopProvider(logger))
	loader := plugins.NewLoader(registry, cfg.Plugins.VerifyArtifacts, logger)

	supervisor := ensemble.New(
		ensembleID,
		loader,
		sink,
		metricsCollector,
		logger,
		ensemble.Options{
			MaxRestarts:   cfg.Supervision.MaxRestarts,
			RestartWindow: cfg.Supervision.RestartWindow,
			Roots: graph.Roots{
				Static:  cfg.Plugins.StaticRoot,
				Dynamic: cfg.Plugins.DynamicRoot,
			},
			QueueCapacity:  cfg.Pool.QueueCapacity,
			SampleEvery:    cfg.Pool.SampleEvery,
			BacklogFactor:  cfg.Pool.BacklogFactor,
			ShrinkFraction: cfg.Pool.ShrinkFraction,
		},
	)

	ctx := context.Background()
	conns, perfs := doc.Records()
	if err := supervisor.Start(ctx, conns, perfs); err != nil {
		logger.Fatal("failed to start ensemble", zap.Error(err))
	}

	// Initialize API server
	httpServer := http.NewServer(&http.Config{
		Port:       cfg.HTTPPort,
		Supervisor: supervisor,
		Logger:     logger,
	})

	wsHandler := websocket.NewHandler(broadcaster, logger)
	httpServer.SetupWebSocket(wsHandler)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Host loop: when the supervisor escalates, re-read the spec file and
	// rebuild the ensemble under a new generation.
	hostCtx, stopHost := context.WithCancel(ctx)
	defer stopHost()
	go hostLoop(hostCtx, cfg, supervisor, logger)

	logger.Info("troupe supervisor started",
		zap.String("ensemble_id", ensembleID),
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("performers", len(perfs)))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
	stopHost()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := supervisor.Stop(shutdownCtx); err != nil {
		logger.Error("ensemble stop error", zap.Error(err))
	}

	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		logger.Error("supervisor shutdown error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("troupe supervisor shut down complete")
}

// hostLoop rebuilds the ensemble whenever the supervisor raises the
// restart-required signal.
func hostLoop(ctx context.Context, cfg *config.Config, supervisor *ensemble.Supervisor, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-supervisor.Fatal():
			logger.Warn("ensemble restart required",
				zap.String("ensemble_id", sig.EnsembleID),
				zap.Uint64("generation", sig.Generation),
				zap.String("dead_worker", sig.WorkerAddress),
				zap.String("reason", sig.Reason))

			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.Supervision.RebuildDelay):
			}

			doc, err := specfile.Load(cfg.SpecPath)
			if err != nil {
				logger.Error("spec reload failed, rebuilding with previous spec",
					zap.Error(err))
				if err := supervisor.Restart(ctx, sig.Reason); err != nil {
					logger.Error("ensemble rebuild failed", zap.Error(err))
				}
				continue
			}

			conns, perfs := doc.Records()
			if err := supervisor.Rebuild(ctx, conns, perfs, sig.Reason); err != nil {
				logger.Error("ensemble rebuild failed", zap.Error(err))
				continue
			}

			logger.Info("ensemble rebuilt",
				zap.String("ensemble_id", sig.EnsembleID),
				zap.Uint64("generation", supervisor.Generation()))
		}
	}
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
