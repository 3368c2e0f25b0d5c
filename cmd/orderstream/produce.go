package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orderstream/internal/metrics"
	"orderstream/internal/order"
	"orderstream/internal/pacer"
	"orderstream/internal/produce"
	"orderstream/internal/tracing"
)

var produceCmd = &cobra.Command{
	Use:   "produce",
	Short: "Produce paced synthetic order events",
	Long: `Produce runs the paced send loop: one synthetic order per schedule
deadline, asynchronous delivery confirmation, and backpressure retries when
the local send buffer fills up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProducer(cmd, "")
	},
}

var produceInvalidCmd = &cobra.Command{
	Use:   "produce-invalid",
	Short: "Produce intentionally corrupted order events",
	Long: `Produce-invalid emits orders with a named corruption applied
(missing or non-positive price/quantity fields), tagged with invalid_mode
for downstream observability.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("invalid-mode")
		return runProducer(cmd, mode)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{produceCmd, produceInvalidCmd} {
		cmd.Flags().String("bootstrap-servers", "localhost:9092,localhost:9094", "Comma-separated broker addresses")
		cmd.Flags().String("topic", "orders", "Topic to produce to")
		cmd.Flags().Float64("events-per-second", 10.0, "Target event rate, must be > 0")
		cmd.Flags().Int64("max-events", 0, "Stop after this many events, 0 means run forever")
		cmd.Flags().Int("duration-seconds", 0, "Stop after this many seconds, 0 means no duration limit")
		cmd.Flags().Int("report-every-seconds", 5, "How often to log a metrics snapshot")
	}
	produceInvalidCmd.Flags().String("invalid-mode", "random", "Corruption strategy, one of the named modes or random")
}

func runProducer(cmd *cobra.Command, invalidMode string) error {
	bootstrapServers, _ := cmd.Flags().GetString("bootstrap-servers")
	topic, _ := cmd.Flags().GetString("topic")
	eventsPerSecond, _ := cmd.Flags().GetFloat64("events-per-second")
	maxEvents, _ := cmd.Flags().GetInt64("max-events")
	durationSeconds, _ := cmd.Flags().GetInt("duration-seconds")
	reportEverySeconds, _ := cmd.Flags().GetInt("report-every-seconds")

	// Configuration errors are fatal before any network activity.
	if eventsPerSecond <= 0 {
		return pacer.ErrNonPositiveRate
	}
	runCfg := produce.Config{
		Topic:           topic,
		EventsPerSecond: eventsPerSecond,
		MaxEvents:       maxEvents,
		Duration:        time.Duration(durationSeconds) * time.Second,
		ReportEvery:     time.Duration(reportEverySeconds) * time.Second,
	}
	if invalidMode != "" {
		mode, err := order.ParseInvalidMode(invalidMode)
		if err != nil {
			return err
		}
		runCfg.InvalidMode = mode
	}

	cfg, err := loadAmbientConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	registry := metrics.NewRegistry()
	registry.SetSystemInfo("producer", time.Now().Format(time.RFC3339))

	tracer, cleanup, err := newTracer(cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer func() {
			if err := cleanup(context.Background()); err != nil {
				logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	client, err := produce.NewClient(bootstrapServers, topic, cfg.MaxBufferedRecords)
	if err != nil {
		return err
	}
	defer client.Close()

	stats := &metrics.ProducerStats{}
	publisher, err := produce.NewPublisher(client, topic, cfg.MaxBufferedRecords, stats, registry, logger)
	if err != nil {
		return err
	}

	seed := cfg.GeneratorSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	runner, err := produce.NewRunner(runCfg, order.NewGenerator(seed), publisher, stats, logger, tracer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runPipeline(ctx, cfg, registry, logger, runner.Run)
}

// runPipeline runs the given loop with the metrics server alongside it and
// stops the server once the loop finishes.
func runPipeline(ctx context.Context, cfg ambientConfig, registry *metrics.Registry, logger *zap.Logger, loop func(context.Context) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := metrics.NewServer(cfg.Metrics, registry, logger)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return loop(gctx)
	})

	return g.Wait()
}

func newTracer(cfg ambientConfig) (*tracing.Tracer, func(context.Context) error, error) {
	if !cfg.TracingEnabled {
		return nil, nil, nil
	}
	tracer, cleanup, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	return tracer, cleanup, nil
}
