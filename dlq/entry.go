// Package dlq holds permanently failed deliveries for inspection and replay.
package dlq

import (
	"encoding/json"
	"time"

	"github.com/fedibits/relay/id"
	"github.com/fedibits/relay/internal/entity"
)

// Entry represents a permanently failed delivery in the dead letter queue.
type Entry struct {
	entity.Entity

	// ID is the unique TypeID for this DLQ entry.
	ID id.ID `json:"id"`

	// DeliveryID references the failed delivery.
	DeliveryID id.ID `json:"delivery_id"`

	// Inbox is the target inbox URL at the time of failure.
	Inbox string `json:"inbox"`

	// Activity is the enveloped activity that failed to deliver.
	Activity json.RawMessage `json:"activity"`

	// Error is the error message from the final attempt.
	Error string `json:"error"`

	// AttemptCount is the total number of attempts made.
	AttemptCount int `json:"attempt_count"`

	// LastStatusCode is the HTTP status code from the final attempt.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// ReplayedAt is set when the entry has been replayed.
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`

	// FailedAt is when the delivery permanently failed.
	FailedAt time.Time `json:"failed_at"`
}

// ListOpts configures filtering and pagination for DLQ listing.
type ListOpts struct {
	Offset int
	Limit  int
	Inbox  string
	From   *time.Time
	To     *time.Time
}
