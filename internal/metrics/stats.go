package metrics

import (
	"sync/atomic"
	"time"
)

// minElapsed floors the elapsed time used for throughput so a report at
// startup never divides by zero.
const minElapsed = time.Millisecond

// ProducerStats accumulates delivery outcomes. Counters are monotonic and
// incremented only from the delivery promise, which the broker client runs
// on its own goroutines, so every field uses atomics. Ack latency is stored
// in microseconds to keep sub-millisecond round trips from vanishing.
type ProducerStats struct {
	sentOK       atomic.Int64
	sentError    atomic.Int64
	ackLatencyUS atomic.Int64
}

// RecordAck records one resolved delivery. Latency accumulates only for
// successes and is clamped non-negative.
func (s *ProducerStats) RecordAck(latency time.Duration, err error) {
	if err != nil {
		s.sentError.Add(1)
		return
	}
	if latency < 0 {
		latency = 0
	}
	s.sentOK.Add(1)
	s.ackLatencyUS.Add(latency.Microseconds())
}

// Snapshot reads the counters without resetting them.
func (s *ProducerStats) Snapshot(elapsed time.Duration) ProducerSnapshot {
	return ProducerSnapshot{
		SentOK:            s.sentOK.Load(),
		SentError:         s.sentError.Load(),
		AckLatencyTotalMS: float64(s.ackLatencyUS.Load()) / 1000,
		Elapsed:           maxDuration(elapsed, minElapsed),
	}
}

// ProducerSnapshot is a point-in-time read of ProducerStats.
type ProducerSnapshot struct {
	SentOK            int64
	SentError         int64
	AckLatencyTotalMS float64
	Elapsed           time.Duration
}

// ThroughputEPS is acked events per elapsed second.
func (s ProducerSnapshot) ThroughputEPS() float64 {
	return float64(s.SentOK) / s.Elapsed.Seconds()
}

// AvgAckMS is the mean acknowledgment round trip, zero before the first ack.
func (s ProducerSnapshot) AvgAckMS() float64 {
	if s.SentOK == 0 {
		return 0
	}
	return s.AckLatencyTotalMS / float64(s.SentOK)
}

// ConsumerStats accumulates processing outcomes on the tracker side. The
// consumption loop is the single writer, but atomics keep the discipline
// identical to the producer side and safe for snapshot readers elsewhere.
type ConsumerStats struct {
	processed    atomic.Int64
	errors       atomic.Int64
	e2eLatencyUS atomic.Int64
}

// RecordProcessed counts one decoded record. When the record carried a
// well-typed origination timestamp the caller passes the wall-clock delta;
// a negative hasLatency=false delta leaves the total untouched.
func (s *ConsumerStats) RecordProcessed(latency time.Duration, hasLatency bool) {
	s.processed.Add(1)
	if hasLatency {
		s.e2eLatencyUS.Add(latency.Microseconds())
	}
}

// RecordError counts one decode, validation, or broker poll failure.
func (s *ConsumerStats) RecordError() {
	s.errors.Add(1)
}

// Processed returns the current processed count; the commit policy keys
// off it.
func (s *ConsumerStats) Processed() int64 {
	return s.processed.Load()
}

// Snapshot reads the counters without resetting them.
func (s *ConsumerStats) Snapshot(elapsed time.Duration) ConsumerSnapshot {
	return ConsumerSnapshot{
		Processed:      s.processed.Load(),
		Errors:         s.errors.Load(),
		LatencyTotalMS: float64(s.e2eLatencyUS.Load()) / 1000,
		Elapsed:        maxDuration(elapsed, minElapsed),
	}
}

// ConsumerSnapshot is a point-in-time read of ConsumerStats.
type ConsumerSnapshot struct {
	Processed      int64
	Errors         int64
	LatencyTotalMS float64
	Elapsed        time.Duration
}

// ThroughputEPS is processed events per elapsed second.
func (s ConsumerSnapshot) ThroughputEPS() float64 {
	return float64(s.Processed) / s.Elapsed.Seconds()
}

// AvgLatencyMS is the mean end-to-end latency, zero before the first record.
func (s ConsumerSnapshot) AvgLatencyMS() float64 {
	if s.Processed == 0 {
		return 0
	}
	return s.LatencyTotalMS / float64(s.Processed)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
