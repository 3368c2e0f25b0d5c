package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderstream/internal/consume"
	"orderstream/internal/metrics"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Track the order stream with manual offset commits",
	Long: `Consume polls the topic, decodes and validates records, measures
end-to-end latency against the embedded origination timestamp, and commits
offsets manually so records are acknowledged only after processing.`,
	RunE: runConsumer,
}

func init() {
	consumeCmd.Flags().String("bootstrap-servers", "localhost:9092,localhost:9094", "Comma-separated broker addresses")
	consumeCmd.Flags().String("topic", "orders", "Topic to consume from")
	consumeCmd.Flags().String("group-id", "order-tracker", "Consumer group")
	consumeCmd.Flags().Int("commit-every", 100, "Commit offsets after this many processed records")
	consumeCmd.Flags().Int("report-every-seconds", 5, "How often to log a metrics snapshot")
}

func runConsumer(cmd *cobra.Command, args []string) error {
	bootstrapServers, _ := cmd.Flags().GetString("bootstrap-servers")
	topic, _ := cmd.Flags().GetString("topic")
	groupID, _ := cmd.Flags().GetString("group-id")
	commitEvery, _ := cmd.Flags().GetInt("commit-every")
	reportEverySeconds, _ := cmd.Flags().GetInt("report-every-seconds")

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
	registry.SetSystemInfo("consumer", time.Now().Format(time.RFC3339))

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

	client, err := consume.NewClient(bootstrapServers, topic, groupID)
	if err != nil {
		return err
	}

	loop, err := consume.NewLoop(
		consume.Config{
			Topic:       topic,
			GroupID:     groupID,
			CommitEvery: commitEvery,
			ReportEvery: time.Duration(reportEverySeconds) * time.Second,
		},
		client,
		&metrics.ConsumerStats{},
		registry,
		logger,
		tracer,
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runPipeline(ctx, cfg, registry, logger, loop.Run)
}
