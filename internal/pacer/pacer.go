// Package pacer converts a target event rate into a schedule of absolute
// send deadlines with drift correction.
package pacer

import (
	"context"
	"errors"
	"time"
)

// ErrNonPositiveRate rejects a rate that cannot form a schedule. It is a
// configuration error surfaced before any broker connection is made.
var ErrNonPositiveRate = errors.New("events per second must be greater than 0")

// Pacer owns a single "next deadline" timestamp. After every accepted send
// the deadline advances by one fixed interval; a deadline that has already
// passed is reset to now instead of issuing a burst of catch-up sends, so
// the system holds a steady target rate rather than strict event-count
// fidelity. Skipped attempts (local backpressure) must not call Advance.
type Pacer struct {
	interval time.Duration
	next     time.Time
}

// New validates the rate and anchors the schedule at start.
func New(eventsPerSecond float64, start time.Time) (*Pacer, error) {
	if eventsPerSecond <= 0 {
		return nil, ErrNonPositiveRate
	}
	return &Pacer{
		interval: time.Duration(float64(time.Second) / eventsPerSecond),
		next:     start,
	}, nil
}

// Advance moves the deadline one interval forward and reports how long the
// caller should pause before its next attempt. Zero means send immediately;
// in that case the deadline has been reset to now.
func (p *Pacer) Advance(now time.Time) time.Duration {
	p.next = p.next.Add(p.interval)
	sleepFor := p.next.Sub(now)
	if sleepFor <= 0 {
		p.next = now
		return 0
	}
	return sleepFor
}

// Interval is the fixed per-event spacing, 1/rate.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Sleep pauses for d or until the context is canceled. It is the loop's
// cooperative blocking point between sends.
func Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
