package relay

import "errors"

// Sentinel errors returned by Relay operations.
var (
	// ErrNoStore is returned when a Relay is created without a store.
	ErrNoStore = errors.New("relay: store is required")

	// ErrNoDomain is returned when a Relay is created without a domain.
	ErrNoDomain = errors.New("relay: domain is required")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("relay: store is closed")

	// ErrDeliveryNotFound is returned when a delivery cannot be found.
	ErrDeliveryNotFound = errors.New("relay: delivery not found")

	// ErrDLQNotFound is returned when a DLQ entry cannot be found.
	ErrDLQNotFound = errors.New("relay: dlq entry not found")
)
