package consume

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"orderstream/internal/metrics"
	"orderstream/internal/order"
)

// fakeConsumerClient serves scripted fetch batches and records every commit.
// Once the batches run out it cancels the run context, standing in for the
// stop signal.
type fakeConsumerClient struct {
	batches    []kgo.Fetches
	cancel     context.CancelFunc
	commits    [][]*kgo.Record
	commitErrs []error
	closed     bool
}

func (f *fakeConsumerClient) PollFetches(context.Context) kgo.Fetches {
	if len(f.batches) == 0 {
		if f.cancel != nil {
			f.cancel()
		}
		return kgo.Fetches{}
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b
}

func (f *fakeConsumerClient) CommitRecords(_ context.Context, rs ...*kgo.Record) error {
	f.commits = append(f.commits, rs)
	if len(f.commitErrs) >= len(f.commits) {
		return f.commitErrs[len(f.commits)-1]
	}
	return nil
}

func (f *fakeConsumerClient) Close() { f.closed = true }

func fetchesOf(recs ...*kgo.Record) kgo.Fetches {
	return kgo.Fetches{{
		Topics: []kgo.FetchTopic{{
			Topic: "orders",
			Partitions: []kgo.FetchPartition{{
				Partition: 0,
				Records:   recs,
			}},
		}},
	}}
}

func fetchError(err error) kgo.Fetches {
	return kgo.Fetches{{
		Topics: []kgo.FetchTopic{{
			Topic: "orders",
			Partitions: []kgo.FetchPartition{{
				Partition: 1,
				Err:       err,
			}},
		}},
	}}
}

func orderRecord(t *testing.T, offset int64, eventTime time.Time) *kgo.Record {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"order_id":      "order-" + string(rune('a'+offset)),
		"item":          "yogurt",
		"quantity":      2,
		"event_time_ms": eventTime.UnixMilli(),
	})
	require.NoError(t, err)
	return &kgo.Record{Value: payload, Offset: offset, Partition: 0}
}

func newTestLoop(t *testing.T, cfg Config, client Client, stats *metrics.ConsumerStats) *Loop {
	t.Helper()
	l, err := NewLoop(cfg, client, stats, metrics.NewRegistry(), zap.NewNop(), nil)
	require.NoError(t, err)
	return l
}

func runLoop(t *testing.T, l *Loop, client *fakeConsumerClient) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.cancel = cancel

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopCommitCadencePlusFinalCommit(t *testing.T) {
	now := time.Now()
	recs := make([]*kgo.Record, 7)
	for i := range recs {
		recs[i] = orderRecord(t, int64(i), now)
	}

	client := &fakeConsumerClient{batches: []kgo.Fetches{fetchesOf(recs...)}}
	var stats metrics.ConsumerStats
	l := newTestLoop(t, Config{Topic: "orders", GroupID: "g", CommitEvery: 3}, client, &stats)

	runLoop(t, l, client)

	// floor(7/3) periodic commits after records 3 and 6, plus the final
	// shutdown commit covering the remainder.
	require.Len(t, client.commits, 3)
	assert.Len(t, client.commits[0], 3)
	assert.Len(t, client.commits[1], 3)
	assert.Len(t, client.commits[2], 1)

	assert.Equal(t, int64(7), stats.Snapshot(time.Second).Processed)
	assert.True(t, client.closed)
}

func TestLoopFinalCommitRunsEvenWithoutPeriodicCommits(t *testing.T) {
	now := time.Now()
	client := &fakeConsumerClient{batches: []kgo.Fetches{
		fetchesOf(orderRecord(t, 0, now), orderRecord(t, 1, now)),
	}}
	var stats metrics.ConsumerStats
	l := newTestLoop(t, Config{Topic: "orders", GroupID: "g", CommitEvery: 100}, client, &stats)

	runLoop(t, l, client)

	require.Len(t, client.commits, 1)
	assert.Len(t, client.commits[0], 2)
}

func TestLoopCountsMalformedRecordsAndContinues(t *testing.T) {
	now := time.Now()
	bad := &kgo.Record{Value: []byte("not json"), Offset: 1, Partition: 0}

	client := &fakeConsumerClient{batches: []kgo.Fetches{
		fetchesOf(orderRecord(t, 0, now), bad, orderRecord(t, 2, now)),
	}}
	var stats metrics.ConsumerStats
	l := newTestLoop(t, Config{Topic: "orders", GroupID: "g", CommitEvery: 10}, client, &stats)

	runLoop(t, l, client)

	snap := stats.Snapshot(time.Second)
	assert.Equal(t, int64(2), snap.Processed)
	assert.Equal(t, int64(1), snap.Errors)

	// Only processed records are ever committed.
	require.Len(t, client.commits, 1)
	assert.Len(t, client.commits[0], 2)
}

func TestLoopMissingEventTimeLeavesLatencyUntouched(t *testing.T) {
	payload, err := json.Marshal(map[string]any{"order_id": "x", "item": "bread", "quantity": 1})
	require.NoError(t, err)
	noTime := &kgo.Record{Value: payload, Offset: 0, Partition: 0}

	mistyped, err := json.Marshal(map[string]any{"order_id": "y", "event_time_ms": "midnight"})
	require.NoError(t, err)
	badTime := &kgo.Record{Value: mistyped, Offset: 1, Partition: 0}

	client := &fakeConsumerClient{batches: []kgo.Fetches{fetchesOf(noTime, badTime)}}
	var stats metrics.ConsumerStats
	l := newTestLoop(t, Config{Topic: "orders", GroupID: "g", CommitEvery: 10}, client, &stats)

	runLoop(t, l, client)

	snap := stats.Snapshot(time.Second)
	assert.Equal(t, int64(2), snap.Processed)
	assert.Equal(t, int64(0), snap.Errors)
	assert.Equal(t, 0.0, snap.LatencyTotalMS)
}

func TestLoopAccumulatesEndToEndLatency(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client := &fakeConsumerClient{batches: []kgo.Fetches{
		fetchesOf(orderRecord(t, 0, fixed.Add(-100*time.Millisecond))),
	}}
	var stats metrics.ConsumerStats
	l := newTestLoop(t, Config{Topic: "orders", GroupID: "g", CommitEvery: 10}, client, &stats)
	l.now = func() time.Time { return fixed }

	runLoop(t, l, client)

	snap := stats.Snapshot(time.Second)
	assert.Equal(t, int64(1), snap.Processed)
	assert.InDelta(t, 100.0, snap.LatencyTotalMS, 0.001)
}

func TestLoopCountsBrokerPollErrors(t *testing.T) {
	client := &fakeConsumerClient{batches: []kgo.Fetches{
		fetchError(errors.New("leader not available")),
		fetchesOf(orderRecord(t, 0, time.Now())),
	}}
	var stats metrics.ConsumerStats
	l := newTestLoop(t, Config{Topic: "orders", GroupID: "g", CommitEvery: 10}, client, &stats)

	runLoop(t, l, client)

	snap := stats.Snapshot(time.Second)
	assert.Equal(t, int64(1), snap.Errors)
	assert.Equal(t, int64(1), snap.Processed)
}

func TestLoopIgnoresPollContextExpiry(t *testing.T) {
	client := &fakeConsumerClient{batches: []kgo.Fetches{
		fetchError(context.DeadlineExceeded),
	}}
	var stats metrics.ConsumerStats
	l := newTestLoop(t, Config{Topic: "orders", GroupID: "g", CommitEvery: 10}, client, &stats)

	runLoop(t, l, client)

	assert.Equal(t, int64(0), stats.Snapshot(time.Second).Errors)
}

func TestLoopRetainsPendingAfterCommitFailure(t *testing.T) {
	now := time.Now()
	recs := make([]*kgo.Record, 4)
	for i := range recs {
		recs[i] = orderRecord(t, int64(i), now)
	}

	client := &fakeConsumerClient{
		batches:    []kgo.Fetches{fetchesOf(recs...)},
		commitErrs: []error{errors.New("rebalance in progress")},
	}
	var stats metrics.ConsumerStats
	l := newTestLoop(t, Config{Topic: "orders", GroupID: "g", CommitEvery: 3}, client, &stats)

	runLoop(t, l, client)

	// First commit fails after record 3; record 4 triggers a retry that
	// covers all four, and the final commit has nothing left.
	require.Len(t, client.commits, 3)
	assert.Len(t, client.commits[0], 3)
	assert.Len(t, client.commits[1], 4)
	assert.Len(t, client.commits[2], 0)
}

func TestLoopSwallowsFinalCommitFailure(t *testing.T) {
	client := &fakeConsumerClient{
		batches:    []kgo.Fetches{fetchesOf(orderRecord(t, 0, time.Now()))},
		commitErrs: []error{errors.New("broker gone")},
	}
	var stats metrics.ConsumerStats
	l := newTestLoop(t, Config{Topic: "orders", GroupID: "g", CommitEvery: 10}, client, &stats)

	// Run must still return cleanly and close the client.
	runLoop(t, l, client)
	assert.True(t, client.closed)
}

func TestLoopRejectsNegativeCommitEvery(t *testing.T) {
	var stats metrics.ConsumerStats
	_, err := NewLoop(Config{CommitEvery: -1}, &fakeConsumerClient{}, &stats, metrics.NewRegistry(), zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestDecodeFailureDoesNotCommitRecord(t *testing.T) {
	bad := &kgo.Record{Value: []byte("{"), Offset: 0, Partition: 0}
	client := &fakeConsumerClient{batches: []kgo.Fetches{fetchesOf(bad)}}
	var stats metrics.ConsumerStats
	l := newTestLoop(t, Config{Topic: "orders", GroupID: "g", CommitEvery: 1}, client, &stats)

	runLoop(t, l, client)

	// Only the final empty commit happens; the malformed record is never
	// acknowledged by a periodic commit.
	require.Len(t, client.commits, 1)
	assert.Len(t, client.commits[0], 0)
}

// Corrupted but well-formed payloads from the invalid producer decode fine
// and count as processed; the invalid_mode tag is not interpreted here.
func TestLoopProcessesCorruptedOrders(t *testing.T) {
	g := order.NewGenerator(3)
	rec, _ := g.InvalidOrder(order.MissingQuantity)
	payload, err := order.EncodeRecord(rec)
	require.NoError(t, err)

	client := &fakeConsumerClient{batches: []kgo.Fetches{
		fetchesOf(&kgo.Record{Value: payload, Offset: 0, Partition: 0}),
	}}
	var stats metrics.ConsumerStats
	l := newTestLoop(t, Config{Topic: "orders", GroupID: "g", CommitEvery: 10}, client, &stats)

	runLoop(t, l, client)

	snap := stats.Snapshot(time.Second)
	assert.Equal(t, int64(1), snap.Processed)
	assert.Equal(t, int64(0), snap.Errors)
}
