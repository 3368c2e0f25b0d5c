package produce

import (
	"context"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Client is the slice of the broker client the publisher needs. The real
// implementation is *kgo.Client; tests substitute a fake.
type Client interface {
	// TryProduce buffers a record without ever blocking and later resolves
	// the promise from a client-internal goroutine.
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))

	// BufferedProduceRecords reports how many records sit in the local
	// send buffer awaiting delivery.
	BufferedProduceRecords() int64

	// Flush waits for buffered records to be delivered, bounded by ctx.
	Flush(ctx context.Context) error

	Close()
}

// NewClient connects a producer client. Records are keyed, so the sticky key
// partitioner keeps an order on a consistent partition.
func NewClient(bootstrapServers, topic string, maxBuffered int) (*kgo.Client, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(bootstrapServers, ",")...),
		kgo.DefaultProduceTopic(topic),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
		kgo.MaxBufferedRecords(maxBuffered),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer client: %w", err)
	}
	return cl, nil
}
