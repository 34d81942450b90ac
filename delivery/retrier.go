package delivery

import "time"

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Delivered means the inbox accepted the activity (2xx).
	Delivered Decision = iota

	// Retry means the delivery should be retried later.
	Retry

	// Fail means the delivery has permanently failed and should move to
	// the dead letter queue.
	Fail
)

// Result holds the outcome of a single delivery attempt.
type Result struct {
	StatusCode int
	Error      string
	LatencyMs  int
}

// Retrier decides what to do after a delivery attempt.
type Retrier struct {
	schedule []time.Duration
}

// NewRetrier creates a retrier with the given backoff schedule.
func NewRetrier(schedule []time.Duration) *Retrier {
	return &Retrier{schedule: schedule}
}

// Decide determines what to do with a delivery after an attempt.
//
// Decision matrix:
//   - 2xx → Delivered
//   - 410 → Fail immediately (the instance is gone)
//   - 408, 429 → Retry (timeout / rate limited)
//   - 400–499 (other) → Fail immediately (client error won't self-correct)
//   - 500–599 → Retry if attempts < max, else Fail
//   - 0 (connection/timeout error) → Retry if attempts < max, else Fail
func (r *Retrier) Decide(res Result, d *Delivery) Decision {
	code := res.StatusCode

	// 2xx → success
	if code >= 200 && code < 300 {
		return Delivered
	}

	// 408 Request Timeout, 429 Too Many Requests → retry (if within limits)
	if code == 408 || code == 429 {
		return r.retryOrFail(d)
	}

	// 410 Gone and other client errors → permanent
	if code >= 400 && code < 500 {
		return Fail
	}

	// 500–599 or 0 (network error) → retry if possible
	return r.retryOrFail(d)
}

// retryOrFail returns Retry if the delivery has attempts remaining,
// otherwise Fail.
func (r *Retrier) retryOrFail(d *Delivery) Decision {
	if d.AttemptCount < d.MaxAttempts {
		return Retry
	}
	return Fail
}

// ComputeNextAttempt returns the time at which the next attempt should be made.
func (r *Retrier) ComputeNextAttempt(attemptCount int) time.Time {
	idx := attemptCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.schedule) {
		idx = len(r.schedule) - 1
	}
	return time.Now().UTC().Add(r.schedule[idx])
}
