package produce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"orderstream/internal/metrics"
	"orderstream/internal/validator"
)

// ErrBufferFull reports local send-buffer exhaustion. It is a recoverable
// condition distinct from any broker-side failure: the caller retries the
// same event after letting pending completions drain.
var ErrBufferFull = errors.New("local send buffer is full")

// backpressurePoll bounds the wait that frees buffer capacity between
// retries of a backpressured event.
const backpressurePoll = 100 * time.Millisecond

// Publisher hands encoded events to the broker client and attaches the
// delivery promise that feeds the stats. It never blocks on a full buffer
// and it never drops an event because of one.
type Publisher struct {
	client      Client
	topic       string
	maxBuffered int64
	stats       *metrics.ProducerStats
	registry    *metrics.Registry
	logger      *zap.Logger
	now         func() time.Time
}

// NewPublisher wires a publisher. maxBuffered must match the client's
// configured buffer capacity; the publisher uses it to detect exhaustion
// before submitting.
func NewPublisher(client Client, topic string, maxBuffered int, stats *metrics.ProducerStats, registry *metrics.Registry, logger *zap.Logger) (*Publisher, error) {
	p := Publisher{
		client:      client,
		topic:       topic,
		maxBuffered: int64(maxBuffered),
		stats:       stats,
		registry:    registry,
		logger:      logger.Named("publisher"),
		now:         time.Now,
	}

	if maxBuffered <= 0 {
		return nil, fmt.Errorf("max buffered records must be positive, got %d", maxBuffered)
	}
	if err := validator.Validate("publisher", client, stats, registry, logger); err != nil {
		return nil, fmt.Errorf("failed to validate publisher deps: %w", err)
	}

	return &p, nil
}

// Publish submits one already-encoded event keyed by its identifier. When
// the local buffer is at capacity it returns ErrBufferFull without
// submitting; the event is not counted and the caller retries it as is.
//
// The buffered-count check is race-free because the main send loop is the
// only submitter; delivery promises only shrink the buffer.
func (p *Publisher) Publish(ctx context.Context, key, value []byte) error {
	if p.client.BufferedProduceRecords() >= p.maxBuffered {
		p.registry.RecordBufferRetry(p.topic)
		return ErrBufferFull
	}

	submitted := p.now()
	rec := &kgo.Record{Key: key, Value: value}
	p.client.TryProduce(ctx, rec, func(r *kgo.Record, err error) {
		latency := p.now().Sub(submitted)
		p.stats.RecordAck(latency, err)
		p.registry.RecordAck(p.topic, latency, err)
		if err != nil {
			// Terminal for this event: counted, logged, not retried.
			p.logger.Error("delivery failed",
				zap.String("key", string(r.Key)),
				zap.Error(err),
			)
		}
	})

	return nil
}

// WaitBuffer blocks briefly while the client works down its buffer so a
// backpressured event can be retried. Bounded, so a stop signal is still
// observed promptly.
func (p *Publisher) WaitBuffer(ctx context.Context) {
	waitCtx, cancel := context.WithTimeout(ctx, backpressurePoll)
	defer cancel()
	// Deadline expiry is the expected outcome under sustained pressure.
	_ = p.client.Flush(waitCtx)
}

// Drain waits up to timeout for all in-flight deliveries to resolve. Called
// once at shutdown before the final summary.
func (p *Publisher) Drain(ctx context.Context, timeout time.Duration) error {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := p.client.Flush(drainCtx); err != nil {
		return fmt.Errorf("failed to flush in-flight deliveries: %w", err)
	}
	return nil
}
