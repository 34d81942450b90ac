// Package follower owns the relay's subscriber state: the persisted
// per-follower records, the follower index, and the read views derived from
// them.
package follower

import (
	"encoding/json"

	"github.com/fedibits/relay/apub"
	"github.com/fedibits/relay/internal/entity"
)

// State is the subscription state of a follower.
type State string

const (
	// StatePending indicates the handshake is incomplete: the relay has sent
	// its reciprocal Follow and is waiting for the subscriber's Accept.
	// Only the reciprocal protocol produces this state.
	StatePending State = "pending"

	// StateAccepted indicates a completed subscription; the follower is a
	// valid fan-out target.
	StateAccepted State = "accepted"
)

// Record is the persisted per-follower state, keyed by actor IRI. Actor is
// a snapshot of the actor document taken at subscription time; it is never
// refreshed afterwards.
type Record struct {
	entity.Entity

	// ActorID is the follower's actor IRI.
	ActorID string `json:"actor_id"`

	// Actor is the serialized actor document captured at subscription time.
	Actor json.RawMessage `json:"actor"`

	// State is the current subscription state.
	State State `json:"state"`
}

// Follower is the read view of a Record with the stored actor document
// resolved into a live object. It is derived, never persisted.
type Follower struct {
	ActorID string      `json:"actor_id"`
	Actor   *apub.Actor `json:"actor"`
	State   State       `json:"state"`
}

// resolve turns a Record into a Follower. Fails when the stored document no
// longer parses; callers skip such records rather than failing a listing.
func resolve(rec *Record) (*Follower, error) {
	actor, err := apub.ParseActor(rec.Actor)
	if err != nil {
		return nil, err
	}
	return &Follower{
		ActorID: rec.ActorID,
		Actor:   actor,
		State:   rec.State,
	}, nil
}
