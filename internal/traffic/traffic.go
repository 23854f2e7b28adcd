// Package traffic keeps sliding windows of refresh outcomes and rejected manual
// refresh requests. The status server derives its degraded state from them.
package traffic

import (
	"sync"
	"time"
)

// DefaultRetention bounds how far back any window can look.
const DefaultRetention = 30 * time.Minute

// Tracker maintains sliding windows of outcome timestamps.
type Tracker struct {
	retention time.Duration
	now       func() time.Time

	mu           sync.Mutex
	successTimes []time.Time
	failureTimes []time.Time
	deniedTimes  []time.Time
}

type Option func(*Tracker)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithRetention sets how long timestamps are kept.
func WithRetention(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.retention = d
		}
	}
}

func New(opts ...Option) *Tracker {
	t := &Tracker{retention: DefaultRetention, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordSuccess records a refresh that produced weather.
func (t *Tracker) RecordSuccess() {
	t.record(&t.successTimes)
}

// RecordFailure records a refresh that ended in an error.
func (t *Tracker) RecordFailure() {
	t.record(&t.failureTimes)
}

// RecordDenied records a manual refresh rejected by the rate limiter.
func (t *Tracker) RecordDenied() {
	t.record(&t.deniedTimes)
}

func (t *Tracker) record(slice *[]time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// FailureRate returns (failures, total) within the window. Denials are not outcomes.
func (t *Tracker) FailureRate(window time.Duration) (failures, total int) {
	if t == nil {
		return 0, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	failures = countSince(t.failureTimes, cutoff)
	return failures, failures + countSince(t.successTimes, cutoff)
}

// DenialCount returns the number of rejected manual refreshes within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.now().Add(-window))
}

// LastFailureStreak counts consecutive failures since the most recent success.
func (t *Tracker) LastFailureStreak() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.successTimes) == 0 {
		return len(t.failureTimes)
	}
	return countAfter(t.failureTimes, t.successTimes[len(t.successTimes)-1])
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.failureTimes = nil
	t.deniedTimes = nil
}

// countSince counts timestamps that are not before cutoff.
func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

func countAfter(times []time.Time, mark time.Time) int {
	n := 0
	for _, ts := range times {
		if ts.After(mark) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.failureTimes)
	prune(&t.deniedTimes)
}
