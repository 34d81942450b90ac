// Package store defines the composite Store interface for all relay
// persistence.
//
// Each subsystem defines its own store interface, and the aggregate Store
// composes them all. Backends implement the whole aggregate.
package store

import (
	"context"

	"github.com/fedibits/relay/delivery"
	"github.com/fedibits/relay/dlq"
	"github.com/fedibits/relay/follower"
)

// Store is the aggregate persistence interface.
type Store interface {
	follower.Store
	delivery.Store
	dlq.Store

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
