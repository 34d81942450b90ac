package delivery_test

import (
	"testing"
	"time"

	"github.com/fedibits/relay/delivery"
)

func decide(t *testing.T, code, attempts, max int) delivery.Decision {
	t.Helper()
	r := delivery.NewRetrier([]time.Duration{time.Second})
	return r.Decide(
		delivery.Result{StatusCode: code},
		&delivery.Delivery{AttemptCount: attempts, MaxAttempts: max},
	)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		attempts int
		max      int
		want     delivery.Decision
	}{
		{"200 delivered", 200, 1, 3, delivery.Delivered},
		{"202 delivered", 202, 1, 3, delivery.Delivered},
		{"400 permanent", 400, 1, 3, delivery.Fail},
		{"403 permanent", 403, 1, 3, delivery.Fail},
		{"404 permanent", 404, 1, 3, delivery.Fail},
		{"410 gone permanent", 410, 1, 3, delivery.Fail},
		{"408 retries", 408, 1, 3, delivery.Retry},
		{"429 retries", 429, 1, 3, delivery.Retry},
		{"429 exhausted", 429, 3, 3, delivery.Fail},
		{"500 retries", 500, 1, 3, delivery.Retry},
		{"503 retries", 503, 2, 3, delivery.Retry},
		{"500 exhausted", 500, 3, 3, delivery.Fail},
		{"network error retries", 0, 1, 3, delivery.Retry},
		{"network error exhausted", 0, 3, 3, delivery.Fail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decide(t, tt.code, tt.attempts, tt.max); got != tt.want {
				t.Fatalf("Decide(code=%d, attempts=%d/%d) = %v, want %v",
					tt.code, tt.attempts, tt.max, got, tt.want)
			}
		})
	}
}

func TestComputeNextAttempt(t *testing.T) {
	schedule := []time.Duration{time.Second, time.Minute, time.Hour}
	r := delivery.NewRetrier(schedule)

	before := time.Now().UTC()

	// First retry uses the first interval.
	next := r.ComputeNextAttempt(1)
	if next.Before(before.Add(time.Second)) || next.After(before.Add(2*time.Second)) {
		t.Fatalf("unexpected first retry time: %v", next)
	}

	// Attempts beyond the schedule clamp to the last interval.
	next = r.ComputeNextAttempt(10)
	if next.Before(before.Add(time.Hour)) {
		t.Fatalf("expected clamping to the last interval, got %v", next)
	}
}
