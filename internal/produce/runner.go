package produce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"orderstream/internal/metrics"
	"orderstream/internal/order"
	"orderstream/internal/pacer"
	"orderstream/internal/tracing"
	"orderstream/internal/validator"
)

// drainTimeout bounds the final wait for in-flight deliveries at shutdown.
const drainTimeout = 10 * time.Second

// Config holds the run parameters of one producer process.
type Config struct {
	Topic           string
	EventsPerSecond float64
	// MaxEvents stops the run after this many accepted submissions;
	// zero means unbounded.
	MaxEvents int64
	// Duration stops the run after this much wall-clock time; zero means
	// unbounded.
	Duration    time.Duration
	ReportEvery time.Duration
	// InvalidMode, when set, turns the runner into the corrupting variant.
	InvalidMode order.InvalidMode
}

// Runner drives the paced send loop: one event per deadline, backpressure
// retries in between, periodic snapshot reports, and a bounded drain plus
// summary once the context is canceled or a run limit is hit.
type Runner struct {
	cfg       Config
	generator *order.Generator
	publisher *Publisher
	stats     *metrics.ProducerStats
	logger    *zap.Logger
	tracer    *tracing.Tracer

	// sleep is a seam for tests; the default is pacer.Sleep.
	sleep func(ctx context.Context, d time.Duration)
}

// NewRunner validates the configuration, including the rate, before any
// network activity happens.
func NewRunner(cfg Config, generator *order.Generator, publisher *Publisher, stats *metrics.ProducerStats, logger *zap.Logger, tracer *tracing.Tracer) (*Runner, error) {
	if cfg.EventsPerSecond <= 0 {
		return nil, pacer.ErrNonPositiveRate
	}
	if cfg.InvalidMode != "" {
		if _, err := order.ParseInvalidMode(string(cfg.InvalidMode)); err != nil {
			return nil, err
		}
	}
	if err := validator.Validate("producer runner", generator, publisher, stats, logger); err != nil {
		return nil, fmt.Errorf("failed to validate runner deps: %w", err)
	}

	return &Runner{
		cfg:       cfg,
		generator: generator,
		publisher: publisher,
		stats:     stats,
		logger:    logger.Named("producer"),
		tracer:    tracer,
		sleep:     pacer.Sleep,
	}, nil
}

// Run executes the send loop until the context is canceled or a run limit
// is reached, then drains and reports the final summary. Cancellation is
// cooperative: the loop observes it once per iteration and between sleeps.
func (r *Runner) Run(ctx context.Context) error {
	start := time.Now()
	schedule, err := pacer.New(r.cfg.EventsPerSecond, start)
	if err != nil {
		return err
	}
	reporter := metrics.NewReporter(r.cfg.ReportEvery, start)

	r.logger.Info("producer started",
		zap.String("topic", r.cfg.Topic),
		zap.Float64("events_per_second", r.cfg.EventsPerSecond),
		zap.Int64("max_events", r.cfg.MaxEvents),
		zap.Duration("duration", r.cfg.Duration),
	)

	var (
		produced int64
		key      []byte
		payload  []byte
	)

	for ctx.Err() == nil {
		if r.cfg.Duration > 0 && time.Since(start) >= r.cfg.Duration {
			break
		}
		if r.cfg.MaxEvents > 0 && produced >= r.cfg.MaxEvents {
			break
		}

		// A backpressured event carries over; it is encoded exactly once.
		if payload == nil {
			key, payload, err = r.nextPayload()
			if err != nil {
				r.logger.Error("failed to build event", zap.Error(err))
				continue
			}
		}

		if err := r.publish(ctx, key, payload); err != nil {
			if errors.Is(err, ErrBufferFull) {
				// Retry the same event without advancing the schedule.
				r.publisher.WaitBuffer(ctx)
				continue
			}
			return err
		}

		produced++
		key, payload = nil, nil

		// No sleep after the last event: a run of N events spans
		// (N-1)/rate, not N/rate.
		if r.cfg.MaxEvents > 0 && produced >= r.cfg.MaxEvents {
			break
		}

		r.sleep(ctx, schedule.Advance(time.Now()))

		if reporter.Due(time.Now()) {
			r.report(start, "metrics snapshot")
		}
	}

	if err := r.publisher.Drain(ctx, drainTimeout); err != nil {
		// Best effort at shutdown; the summary still reflects what acked.
		r.logger.Warn("final flush incomplete", zap.Error(err))
	}
	r.summarize(start)

	return nil
}

func (r *Runner) publish(ctx context.Context, key, payload []byte) error {
	if r.tracer == nil {
		return r.publisher.Publish(ctx, key, payload)
	}

	spanCtx, span := r.tracer.StartSpan(ctx, "order.publish")
	defer span.End()
	span.SetAttributes(r.tracer.PublishAttributes(r.cfg.Topic, string(key))...)

	err := r.publisher.Publish(spanCtx, key, payload)
	if err != nil && !errors.Is(err, ErrBufferFull) {
		r.tracer.RecordError(spanCtx, err)
	}
	return err
}

// nextPayload builds and encodes one event, valid or corrupted depending on
// the configured mode, and returns the message key alongside the payload.
func (r *Runner) nextPayload() (key, payload []byte, err error) {
	if r.cfg.InvalidMode == "" {
		o := r.generator.Order()
		payload, err = order.Encode(o)
		if err != nil {
			return nil, nil, err
		}
		return []byte(o.OrderID), payload, nil
	}

	rec, applied := r.generator.InvalidOrder(r.cfg.InvalidMode)
	payload, err = order.EncodeRecord(rec)
	if err != nil {
		return nil, nil, err
	}
	r.logger.Debug("corrupted event", zap.String("invalid_mode", string(applied)))
	return []byte(rec.OrderID()), payload, nil
}

func (r *Runner) report(start time.Time, msg string) {
	snap := r.stats.Snapshot(time.Since(start))
	r.logger.Info(msg,
		zap.Int64("sent_ok", snap.SentOK),
		zap.Int64("sent_error", snap.SentError),
		zap.Float64("throughput_eps", snap.ThroughputEPS()),
		zap.Float64("avg_ack_ms", snap.AvgAckMS()),
	)
}

func (r *Runner) summarize(start time.Time) {
	snap := r.stats.Snapshot(time.Since(start))
	r.logger.Info("run summary",
		zap.Int64("sent_ok", snap.SentOK),
		zap.Int64("sent_error", snap.SentError),
		zap.Float64("throughput_eps", snap.ThroughputEPS()),
		zap.Float64("avg_ack_ms", snap.AvgAckMS()),
		zap.Float64("elapsed_s", snap.Elapsed.Seconds()),
	)
}
