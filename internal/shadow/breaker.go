package shadow

import "time"

// breakerState is the circuit breaker's position.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// String returns a log-friendly name for the breaker state.
func (s breakerState) String() string {
	switch s {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// breaker guards connect attempts against prolonged outages.
//
// Closed admits attempts freely. Reaching the consecutive-failure threshold
// opens the breaker, which suppresses attempts for the cool-down period;
// the session's cool-down timer then moves it to half-open, admitting
// exactly one probe. The probe's outcome closes or reopens the breaker.
//
// Not safe for concurrent use on its own: transitions are driven solely by
// connect attempt outcomes under the session's mutex.
type breaker struct {
	threshold int
	coolDown  time.Duration

	state        breakerState
	failures     int
	firstFailure time.Time
	lastSuccess  time.Time
	openedAt     time.Time
}

func newBreaker(threshold int, coolDown time.Duration) *breaker {
	return &breaker{threshold: threshold, coolDown: coolDown}
}

// allow reports whether a connect attempt may proceed.
func (b *breaker) allow() bool {
	return b.state != breakerOpen
}

// recordFailure registers a failed connect attempt and reports whether the
// breaker transitioned to open as a result. A half-open probe failure
// reopens immediately regardless of the counter.
func (b *breaker) recordFailure(now time.Time) (opened bool) {
	if b.failures == 0 {
		b.firstFailure = now
	}
	b.failures++

	switch b.state {
	case breakerHalfOpen:
		b.state = breakerOpen
		b.openedAt = now
		return true
	case breakerClosed:
		if b.failures >= b.threshold {
			b.state = breakerOpen
			b.openedAt = now
			return true
		}
	}
	return false
}

// recordSuccess closes the breaker and resets all counters.
func (b *breaker) recordSuccess(now time.Time) {
	b.state = breakerClosed
	b.failures = 0
	b.firstFailure = time.Time{}
	b.lastSuccess = now
}

// halfOpen transitions from open to half-open after the cool-down.
// No-op in any other state.
func (b *breaker) halfOpen() {
	if b.state == breakerOpen {
		b.state = breakerHalfOpen
	}
}

// retryAt estimates when the next automatic attempt will run: the end of
// the current cool-down window.
func (b *breaker) retryAt(now time.Time) time.Time {
	if b.state == breakerOpen {
		return b.openedAt.Add(b.coolDown)
	}
	return now
}
