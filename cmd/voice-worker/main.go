// main package for the voice-clone-worker
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-worker/internal/checkpoints"
	"github.com/book-expert/voice-clone-worker/internal/config"
	"github.com/book-expert/voice-clone-worker/internal/core"
	"github.com/book-expert/voice-clone-worker/internal/handler"
	"github.com/book-expert/voice-clone-worker/internal/objectstore"
	"github.com/book-expert/voice-clone-worker/internal/observability"
	"github.com/book-expert/voice-clone-worker/internal/publish"
	"github.com/book-expert/voice-clone-worker/internal/reference"
	"github.com/book-expert/voice-clone-worker/internal/retention"
	"github.com/book-expert/voice-clone-worker/internal/synth"
	"github.com/book-expert/voice-clone-worker/internal/voice"
	"github.com/book-expert/voice-clone-worker/internal/worker"
	"github.com/book-expert/voice-clone-worker/internal/workspace"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const natsClientName = "voice-clone-worker"

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "voice-clone-worker-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	env, err := config.LoadEnv()
	if err != nil {
		bootstrapLog.Error("Failed to load environment: %v", err)

		return err
	}

	// 3. Initialize the final logger based on the loaded configuration
	log, err := setupLogger(cfg.Paths.BaseLogsDir, "voice-clone-worker.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return err
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	layout := workspace.New(cfg.Paths.WorkDir)

	// 4. Make checkpoints and the workspace ready before taking jobs
	err = prepareWorkspace(ctx, cfg, layout, log)
	if err != nil {
		return err
	}

	model := voice.NewHTTPClient(cfg.Model.ServiceURL, cfg.ModelTimeout())

	err = model.HealthCheck(ctx)
	if err != nil {
		log.Error("Voice model is not reachable: %v", err)

		return err
	}

	// 5. Metrics and retention run beside the worker
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics := observability.NewMetrics(registry)

	startBackground(ctx, cfg, layout, registry, metrics, model, log)

	// 6. Connect to NATS and serve jobs
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(natsClientName))
	if err != nil {
		log.Error("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)

		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsConnection.Close()

	jobHandler, err := buildHandler(cfg, env, layout, natsConnection, model, metrics, log)
	if err != nil {
		return err
	}

	natsWorker, err := worker.NewNatsWorker(
		natsConnection, cfg.NATS.JobSubject, cfg.NATS.QueueGroup, cfg.JobTimeout(), jobHandler, log,
		worker.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	log.System("Voice clone worker initialized. Listening for jobs on subject: %s", cfg.NATS.JobSubject)

	err = natsWorker.Run(ctx)
	if err != nil {
		log.Error("Worker stopped with error: %v", err)

		return err
	}

	log.System("Voice clone worker stopped.")

	return nil
}

func prepareWorkspace(ctx context.Context, cfg *config.Config, layout workspace.Layout, log *logger.Logger) error {
	linkPath := cfg.Checkpoints.LinkPath
	if linkPath == "" {
		linkPath = layout.CheckpointsDir()
	}

	volume, err := checkpoints.MapSharedVolume(cfg.Checkpoints.VolumeCandidates, cfg.Checkpoints.VolumeSubdir, linkPath)
	if err != nil {
		log.Warn("Mapping the shared volume failed: %v", err)
	} else if volume != "" {
		log.Info("Checkpoints linked to shared volume %s", volume)
	}

	provisioner := checkpoints.NewProvisioner(nil, log, os.Stderr)

	err = provisioner.Ensure(ctx, cfg.Checkpoints.ArchiveURL, layout.Root, workspace.RequiredCheckpointDirs())
	if err != nil {
		log.Error("Failed to download checkpoints: %v", err)

		return fmt.Errorf("failed to provision checkpoints: %w", err)
	}

	err = layout.Ensure()
	if err != nil {
		log.Error("Failed to create workspace directories: %v", err)

		return fmt.Errorf("failed to prepare workspace: %w", err)
	}

	return nil
}

func startBackground(
	ctx context.Context,
	cfg *config.Config,
	layout workspace.Layout,
	registry *prometheus.Registry,
	metrics *observability.Metrics,
	model *voice.HTTPClient,
	log *logger.Logger,
) {
	if cfg.Worker.MetricsAddr != "" {
		server := observability.NewServer(cfg.Worker.MetricsAddr, registry, model.HealthCheck, log)

		go func() {
			serveErr := server.Run(ctx)
			if serveErr != nil {
				log.Error("Metrics server stopped: %v", serveErr)
			}
		}()
	}

	sweeper := retention.NewSweeper(layout.ScratchDirs(), cfg.RetentionMaxAge(), cfg.RetentionInterval(), metrics, log)
	go sweeper.Run(ctx)
}

func buildHandler(
	cfg *config.Config,
	env *config.Env,
	layout workspace.Layout,
	natsConnection *nats.Conn,
	model voice.Model,
	metrics *observability.Metrics,
	log *logger.Logger,
) (*handler.Handler, error) {
	var store core.ObjectStore

	if cfg.NATS.ReferenceBucket != "" {
		jetstreamContext, err := natsConnection.JetStream()
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}

		natsStore, err := objectstore.New(jetstreamContext, cfg.NATS.ReferenceBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to open reference bucket %s: %w", cfg.NATS.ReferenceBucket, err)
		}

		store = natsStore
	}

	publisher, err := publish.New(env.Bucket(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create result publisher: %w", err)
	}

	resolver := reference.NewResolver(nil, layout, store, log)
	pipeline := synth.NewPipeline(model, layout, log)

	return handler.New(env.JobDefaults(), resolver, pipeline, publisher, metrics, log), nil
}

func main() {
	err := run()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
