// Package delivery implements the outbound side of the relay: persisted
// delivery records, a polling worker pool, per-attempt retry decisions, and
// the signed HTTP POST to remote inboxes.
package delivery

import (
	"encoding/json"
	"time"

	"github.com/fedibits/relay/id"
	"github.com/fedibits/relay/internal/entity"
)

// State represents the current state of a delivery.
type State string

const (
	// StatePending indicates the delivery is awaiting attempt.
	StatePending State = "pending"

	// StateDelivered indicates the activity was accepted by the inbox.
	StateDelivered State = "delivered"

	// StateFailed indicates the delivery permanently failed and was moved
	// to the DLQ.
	StateFailed State = "failed"
)

// DefaultMaxAttempts is the attempt budget for deliveries created outside
// the engine's configuration, such as DLQ replays.
const DefaultMaxAttempts = 5

// Delivery represents one activity en route to one remote inbox. The
// enveloped activity travels with the record, so an attempt needs no
// further lookups.
type Delivery struct {
	entity.Entity

	// ID is the unique TypeID for this delivery.
	ID id.ID `json:"id"`

	// Inbox is the target inbox URL.
	Inbox string `json:"inbox"`

	// Activity is the enveloped activity JSON to POST.
	Activity json.RawMessage `json:"activity"`

	// State is the current delivery state.
	State State `json:"state"`

	// AttemptCount is the number of delivery attempts made so far.
	AttemptCount int `json:"attempt_count"`

	// MaxAttempts is the maximum number of attempts before moving to DLQ.
	MaxAttempts int `json:"max_attempts"`

	// NextAttemptAt is when the next delivery attempt should occur.
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// LastError is the error message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// LastStatusCode is the HTTP status code from the most recent attempt.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// LastLatencyMs is the latency in milliseconds of the most recent attempt.
	LastLatencyMs int `json:"last_latency_ms,omitempty"`

	// CompletedAt is when the delivery was completed (delivered or failed).
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListOpts configures filtering and pagination for delivery listing.
type ListOpts struct {
	Offset int
	Limit  int
	State  *State
}
