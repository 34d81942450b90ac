package relay

import (
	"time"

	"github.com/fedibits/relay/protocol"
)

// Config holds the configuration for a Relay instance.
type Config struct {
	// Domain is the public hostname the relay is served under. The relay's
	// service actor, inbox and collection IRIs are derived from it.
	Domain string

	// Protocol selects the subscription and forwarding variant.
	Protocol protocol.Protocol

	// UserAgent is sent on all outbound HTTP requests.
	UserAgent string

	// Concurrency is the number of delivery worker goroutines.
	Concurrency int

	// PollInterval is how often the delivery engine checks for pending deliveries.
	PollInterval time.Duration

	// BatchSize is the maximum number of deliveries dequeued per poll cycle.
	BatchSize int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// MaxRetries is the global default for maximum delivery attempts.
	MaxRetries int

	// RetrySchedule defines the backoff intervals between retry attempts.
	RetrySchedule []time.Duration

	// InboxRateLimit caps deliveries per second to a single remote host.
	// 0 means unlimited.
	InboxRateLimit int

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries on shutdown.
	ShutdownTimeout time.Duration
}

// DefaultRetrySchedule defines the default exponential backoff intervals.
var DefaultRetrySchedule = []time.Duration{
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
	15 * time.Minute,
	2 * time.Hour,
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Protocol:        protocol.Direct,
		UserAgent:       "fedibits-relay",
		Concurrency:     10,
		PollInterval:    1 * time.Second,
		BatchSize:       50,
		RequestTimeout:  30 * time.Second,
		MaxRetries:      5,
		RetrySchedule:   DefaultRetrySchedule,
		InboxRateLimit:  0,
		ShutdownTimeout: 30 * time.Second,
	}
}
