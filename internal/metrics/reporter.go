package metrics

import "time"

// Reporter gates the periodic snapshot line. The check runs inline in the
// main loop, not on a timer goroutine: a slow iteration can delay a report
// but never duplicate one, because the last-report timestamp moves only at
// the point of emission.
type Reporter struct {
	every time.Duration
	last  time.Time
}

// NewReporter anchors the cadence at start. A non-positive interval
// disables periodic reports entirely.
func NewReporter(every time.Duration, start time.Time) *Reporter {
	return &Reporter{every: every, last: start}
}

// Due reports whether a snapshot should be emitted now, and if so marks
// this moment as the last emission.
func (r *Reporter) Due(now time.Time) bool {
	if r.every <= 0 {
		return false
	}
	if now.Sub(r.last) < r.every {
		return false
	}
	r.last = now
	return true
}
