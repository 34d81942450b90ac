package follower

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when no record exists for an actor.
var ErrNotFound = errors.New("follower: not found")

// Store defines the persistence contract for follower state.
//
// The follower index is maintained alongside the records, not derived
// lazily. Index membership is protocol-dependent: the direct protocol adds
// an actor on subscription, the reciprocal protocol only once the
// subscriber's Accept arrives. Index mutations must be linearizable per
// actor key; implementations use their backend's native set primitive
// (in-memory mutex, Redis set commands) rather than a read-modify-write of
// the whole index.
type Store interface {
	// GetFollower returns the record for an actor, or ErrNotFound.
	GetFollower(ctx context.Context, actorID string) (*Record, error)

	// PutFollower creates or overwrites the record for its actor.
	PutFollower(ctx context.Context, rec *Record) error

	// DeleteFollower removes the record for an actor. Deleting an absent
	// record is not an error.
	DeleteFollower(ctx context.Context, actorID string) error

	// ListFollowerIDs returns the follower index in insertion order.
	ListFollowerIDs(ctx context.Context) ([]string, error)

	// AddFollowerID appends an actor to the index. Idempotent.
	AddFollowerID(ctx context.Context, actorID string) error

	// RemoveFollowerID removes an actor from the index. Removing an absent
	// actor is not an error.
	RemoveFollowerID(ctx context.Context, actorID string) error
}
