package consume

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"orderstream/internal/metrics"
	"orderstream/internal/order"
	"orderstream/internal/tracing"
	"orderstream/internal/validator"
)

const (
	// pollTimeout bounds each poll so the stop signal is observed at
	// bounded intervals even on an idle topic.
	pollTimeout = time.Second

	// finalCommitTimeout bounds the best-effort commit during shutdown.
	finalCommitTimeout = 5 * time.Second
)

// Config holds the run parameters of one consumer process.
type Config struct {
	Topic   string
	GroupID string
	// CommitEvery issues a synchronous offset commit after this many
	// successfully processed records. Zero disables periodic commits;
	// the final shutdown commit still happens.
	CommitEvery int
	ReportEvery time.Duration
}

// Loop polls the topic, decodes and validates records, accumulates
// end-to-end latency, and commits offsets manually on a fixed cadence plus
// once at shutdown. Decode failures and broker poll errors are counted and
// logged, never fatal; only record processing advances the commit counter.
type Loop struct {
	cfg      Config
	client   Client
	stats    *metrics.ConsumerStats
	registry *metrics.Registry
	logger   *zap.Logger
	tracer   *tracing.Tracer

	// pending holds processed-but-uncommitted records so a commit never
	// acknowledges more than was actually processed.
	pending         []*kgo.Record
	sinceLastCommit int

	now func() time.Time
}

// NewLoop wires a consumption loop.
func NewLoop(cfg Config, client Client, stats *metrics.ConsumerStats, registry *metrics.Registry, logger *zap.Logger, tracer *tracing.Tracer) (*Loop, error) {
	if cfg.CommitEvery < 0 {
		return nil, fmt.Errorf("commit-every must not be negative, got %d", cfg.CommitEvery)
	}
	if err := validator.Validate("consumer loop", client, stats, registry, logger); err != nil {
		return nil, fmt.Errorf("failed to validate loop deps: %w", err)
	}

	return &Loop{
		cfg:      cfg,
		client:   client,
		stats:    stats,
		registry: registry,
		logger:   logger.Named("consumer"),
		tracer:   tracer,
		now:      time.Now,
	}, nil
}

// Run polls until the context is canceled, then drains: one final
// synchronous commit (best effort) before closing the subscription and
// reporting the summary.
func (l *Loop) Run(ctx context.Context) error {
	start := l.now()
	reporter := metrics.NewReporter(l.cfg.ReportEvery, start)

	l.logger.Info("consumer started",
		zap.String("topic", l.cfg.Topic),
		zap.String("group_id", l.cfg.GroupID),
		zap.Int("commit_every", l.cfg.CommitEvery),
	)

	for ctx.Err() == nil {
		pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
		fetches := l.client.PollFetches(pollCtx)
		cancel()

		if fetches.IsClientClosed() {
			break
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			// Context errors are just the bounded poll expiring.
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return
			}
			l.stats.RecordError()
			l.registry.RecordPollError(l.cfg.Topic)
			l.logger.Error("fetch error",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Error(err),
			)
		})

		fetches.EachRecord(func(rec *kgo.Record) {
			l.process(ctx, rec)
		})

		if reporter.Due(l.now()) {
			l.report(start, false)
		}
	}

	l.finalCommit(ctx)
	l.client.Close()
	l.report(start, true)

	return nil
}

// process decodes one record and updates the stats. A decode failure is
// terminal for the record only: it is counted and the loop moves on without
// committing anything new.
func (l *Loop) process(ctx context.Context, rec *kgo.Record) {
	if l.tracer != nil {
		spanCtx, span := l.tracer.StartSpan(ctx, "order.process")
		span.SetAttributes(l.tracer.ConsumeAttributes(l.cfg.Topic, l.cfg.GroupID, rec.Partition, rec.Offset)...)
		defer span.End()
		ctx = spanCtx
	}

	r, err := order.Decode(rec.Value)
	if err != nil {
		l.stats.RecordError()
		l.registry.RecordDecodeError(l.cfg.Topic)
		l.logger.Warn("invalid record",
			zap.Int64("offset", rec.Offset),
			zap.Int32("partition", rec.Partition),
			zap.Error(err),
		)
		if l.tracer != nil {
			l.tracer.RecordError(ctx, err)
		}
		return
	}

	var latency time.Duration
	ms, hasLatency := r.EventTimeMS()
	if hasLatency {
		latency = time.Duration(l.now().UnixMilli()-ms) * time.Millisecond
	}
	l.stats.RecordProcessed(latency, hasLatency)
	l.registry.RecordProcessed(l.cfg.Topic, latency, hasLatency)

	l.logger.Debug("event",
		zap.Int64("offset", rec.Offset),
		zap.Int32("partition", rec.Partition),
		zap.String("order_id", r.OrderID()),
		zap.String("item", r.Item()),
		zap.Int("quantity", r.Quantity()),
	)

	l.pending = append(l.pending, rec)
	l.sinceLastCommit++
	if l.cfg.CommitEvery > 0 && l.sinceLastCommit >= l.cfg.CommitEvery {
		l.commit(ctx)
	}
}

// commit synchronously acknowledges every processed-but-uncommitted record.
// On failure the pending set is kept, so the next commit covers it again.
func (l *Loop) commit(ctx context.Context) {
	err := l.client.CommitRecords(ctx, l.pending...)
	l.registry.RecordCommit(l.cfg.Topic, err)
	if err != nil {
		l.logger.Error("offset commit failed", zap.Error(err))
		return
	}
	l.pending = l.pending[:0]
	l.sinceLastCommit = 0
}

// finalCommit runs once during shutdown regardless of where the counter
// stands. Failures here are swallowed: shutdown proceeds either way and any
// uncommitted records are simply redelivered on restart.
func (l *Loop) finalCommit(ctx context.Context) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalCommitTimeout)
	defer cancel()

	err := l.client.CommitRecords(commitCtx, l.pending...)
	l.registry.RecordCommit(l.cfg.Topic, err)
	if err != nil {
		l.logger.Warn("final commit failed", zap.Error(err))
		return
	}
	l.pending = l.pending[:0]
	l.sinceLastCommit = 0
}

func (l *Loop) report(start time.Time, final bool) {
	snap := l.stats.Snapshot(l.now().Sub(start))
	fields := []zap.Field{
		zap.Int64("processed", snap.Processed),
		zap.Int64("errors", snap.Errors),
		zap.Float64("throughput_eps", snap.ThroughputEPS()),
		zap.Float64("avg_end_to_end_latency_ms", snap.AvgLatencyMS()),
	}
	msg := "metrics snapshot"
	if final {
		msg = "run summary"
		fields = append(fields, zap.Float64("elapsed_s", snap.Elapsed.Seconds()))
	}
	l.logger.Info(msg, fields...)
}
