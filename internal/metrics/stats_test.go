package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProducerStatsCountsAcks(t *testing.T) {
	var s ProducerStats

	s.RecordAck(10*time.Millisecond, nil)
	s.RecordAck(30*time.Millisecond, nil)
	s.RecordAck(0, errors.New("broker rejected"))

	snap := s.Snapshot(2 * time.Second)
	assert.Equal(t, int64(2), snap.SentOK)
	assert.Equal(t, int64(1), snap.SentError)
	assert.InDelta(t, 40.0, snap.AckLatencyTotalMS, 0.001)
	assert.InDelta(t, 20.0, snap.AvgAckMS(), 0.001)
	assert.InDelta(t, 1.0, snap.ThroughputEPS(), 0.001)
}

func TestProducerStatsClampsNegativeLatency(t *testing.T) {
	var s ProducerStats
	s.RecordAck(-5*time.Millisecond, nil)

	snap := s.Snapshot(time.Second)
	assert.Equal(t, int64(1), snap.SentOK)
	assert.Equal(t, 0.0, snap.AckLatencyTotalMS)
}

func TestProducerStatsFailureAccumulatesNoLatency(t *testing.T) {
	var s ProducerStats
	s.RecordAck(50*time.Millisecond, errors.New("timed out"))

	snap := s.Snapshot(time.Second)
	assert.Equal(t, int64(0), snap.SentOK)
	assert.Equal(t, int64(1), snap.SentError)
	assert.Equal(t, 0.0, snap.AckLatencyTotalMS)
}

func TestProducerSnapshotAvgIsZeroWithoutSuccesses(t *testing.T) {
	var s ProducerStats
	assert.Equal(t, 0.0, s.Snapshot(time.Second).AvgAckMS())
}

func TestSnapshotFloorsElapsed(t *testing.T) {
	var s ProducerStats
	snap := s.Snapshot(0)
	assert.Equal(t, minElapsed, snap.Elapsed)

	var c ConsumerStats
	csnap := c.Snapshot(-time.Second)
	assert.Equal(t, minElapsed, csnap.Elapsed)
}

func TestConsumerStatsAccumulatesLatencyOnlyWhenPresent(t *testing.T) {
	var s ConsumerStats

	s.RecordProcessed(100*time.Millisecond, true)
	s.RecordProcessed(0, false)
	s.RecordProcessed(50*time.Millisecond, true)

	snap := s.Snapshot(time.Second)
	assert.Equal(t, int64(3), snap.Processed)
	assert.InDelta(t, 150.0, snap.LatencyTotalMS, 0.001)
	assert.InDelta(t, 50.0, snap.AvgLatencyMS(), 0.001)
}

func TestConsumerStatsCountsErrors(t *testing.T) {
	var s ConsumerStats
	s.RecordError()
	s.RecordError()

	snap := s.Snapshot(time.Second)
	assert.Equal(t, int64(2), snap.Errors)
	assert.Equal(t, int64(0), snap.Processed)
	assert.Equal(t, 0.0, snap.AvgLatencyMS())
}

func TestReporterEmitsOncePerInterval(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewReporter(5*time.Second, start)

	assert.False(t, r.Due(start.Add(4*time.Second)))
	assert.True(t, r.Due(start.Add(5*time.Second)))
	// The cadence restarts from the emission, not from the missed checks.
	assert.False(t, r.Due(start.Add(6*time.Second)))
	assert.True(t, r.Due(start.Add(10*time.Second)))
}

func TestReporterDelayedCheckNeverDuplicates(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewReporter(5*time.Second, start)

	// A slow iteration checks in late; one report, not three.
	assert.True(t, r.Due(start.Add(16*time.Second)))
	assert.False(t, r.Due(start.Add(16*time.Second)))
}

func TestReporterDisabledWithNonPositiveInterval(t *testing.T) {
	start := time.Now()
	r := NewReporter(0, start)
	assert.False(t, r.Due(start.Add(time.Hour)))
}

func TestRegistryRecordsWithoutPanic(t *testing.T) {
	r := NewRegistry()

	r.SetSystemInfo("producer", "2025-06-01T12:00:00Z")
	r.RecordAck("orders", 5*time.Millisecond, nil)
	r.RecordAck("orders", 0, errors.New("boom"))
	r.RecordBufferRetry("orders")
	r.RecordProcessed("orders", 20*time.Millisecond, true)
	r.RecordProcessed("orders", 0, false)
	r.RecordDecodeError("orders")
	r.RecordPollError("orders")
	r.RecordCommit("orders", nil)
	r.RecordCommit("orders", errors.New("boom"))

	assert.NotNil(t, r.Handler())
}
