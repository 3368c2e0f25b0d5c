package consume

import (
	"context"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Client is the slice of the broker client the loop needs. The real
// implementation is *kgo.Client; tests substitute a fake.
type Client interface {
	// PollFetches returns buffered records, waiting at most until ctx
	// expires. Broker-level errors ride along inside the fetches.
	PollFetches(ctx context.Context) kgo.Fetches

	// CommitRecords synchronously commits the offsets of the given
	// records, acknowledging everything processed so far.
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error

	Close()
}

// NewClient joins the consumer group with auto-commit disabled: an offset
// is never acknowledged before its record has been fully processed, which
// is where the at-least-once guarantee comes from. First-time groups start
// from the earliest offset.
func NewClient(bootstrapServers, topic, groupID string) (*kgo.Client, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(bootstrapServers, ",")...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer client: %w", err)
	}
	return cl, nil
}
