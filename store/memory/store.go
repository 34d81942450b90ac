// Package memory provides an in-memory Store implementation for unit testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	relay "github.com/fedibits/relay"
	"github.com/fedibits/relay/delivery"
	"github.com/fedibits/relay/dlq"
	"github.com/fedibits/relay/follower"
	"github.com/fedibits/relay/id"
	"github.com/fedibits/relay/internal/entity"
	relaystore "github.com/fedibits/relay/store"
)

// compile-time interface check.
var _ relaystore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store for testing.
type Store struct {
	mu sync.RWMutex

	followers  map[string]*follower.Record // keyed by actor IRI
	index      []string                    // follower index, insertion order
	indexed    map[string]bool             // membership check for the index
	deliveries map[string]*delivery.Delivery
	locked     map[string]bool // simulates atomic dequeue claims
	dlqEntries map[string]*dlq.Entry

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		followers:  make(map[string]*follower.Record),
		indexed:    make(map[string]bool),
		deliveries: make(map[string]*delivery.Delivery),
		locked:     make(map[string]bool),
		dlqEntries: make(map[string]*dlq.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return relay.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// follower.Store
// ──────────────────────────────────────────────────

// GetFollower returns the record for an actor.
func (s *Store) GetFollower(_ context.Context, actorID string) (*follower.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.followers[actorID]
	if !ok {
		return nil, follower.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// PutFollower creates or overwrites the record for its actor.
func (s *Store) PutFollower(_ context.Context, rec *follower.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.followers[rec.ActorID] = &cp
	return nil
}

// DeleteFollower removes the record for an actor.
func (s *Store) DeleteFollower(_ context.Context, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.followers, actorID)
	return nil
}

// ListFollowerIDs returns the follower index in insertion order.
func (s *Store) ListFollowerIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.index))
	copy(out, s.index)
	return out, nil
}

// AddFollowerID appends an actor to the index. Idempotent.
func (s *Store) AddFollowerID(_ context.Context, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexed[actorID] {
		return nil
	}
	s.indexed[actorID] = true
	s.index = append(s.index, actorID)
	return nil
}

// RemoveFollowerID removes an actor from the index.
func (s *Store) RemoveFollowerID(_ context.Context, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.indexed[actorID] {
		return nil
	}
	delete(s.indexed, actorID)
	for i, idx := range s.index {
		if idx == actorID {
			s.index = append(s.index[:i], s.index[i+1:]...)
			break
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// Enqueue creates a pending delivery.
func (s *Store) Enqueue(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deliveries[d.ID.String()] = d
	return nil
}

// EnqueueBatch creates multiple deliveries atomically.
func (s *Store) EnqueueBatch(_ context.Context, ds []*delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range ds {
		s.deliveries[d.ID.String()] = d
	}
	return nil
}

// copyDelivery returns a shallow copy of the delivery.
func copyDelivery(d *delivery.Delivery) *delivery.Delivery {
	cp := *d
	return &cp
}

// Dequeue fetches pending deliveries ready for attempt (concurrent-safe).
// Returns copies so callers can mutate without holding a lock.
func (s *Store) Dequeue(_ context.Context, limit int) ([]*delivery.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	candidates := make([]*delivery.Delivery, 0, len(s.deliveries))

	for _, d := range s.deliveries {
		if d.State != delivery.StatePending {
			continue
		}
		if d.NextAttemptAt.After(now) {
			continue
		}
		if s.locked[d.ID.String()] {
			continue
		}
		candidates = append(candidates, d)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NextAttemptAt.Before(candidates[j].NextAttemptAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	result := make([]*delivery.Delivery, 0, len(candidates))
	for _, d := range candidates {
		s.locked[d.ID.String()] = true
		result = append(result, copyDelivery(d))
	}

	return result, nil
}

// UpdateDelivery modifies a delivery and releases its dequeue claim.
func (s *Store) UpdateDelivery(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[d.ID.String()]; !ok {
		return relay.ErrDeliveryNotFound
	}
	d.UpdatedAt = time.Now().UTC()
	s.deliveries[d.ID.String()] = copyDelivery(d)
	delete(s.locked, d.ID.String())
	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(_ context.Context, delID id.ID) (*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[delID.String()]
	if !ok {
		return nil, relay.ErrDeliveryNotFound
	}
	return copyDelivery(d), nil
}

// CountPending returns the number of deliveries awaiting attempt. Claimed
// deliveries are excluded, matching the redis backend where a dequeue
// removes the ID from the pending set.
func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, d := range s.deliveries {
		if d.State == delivery.StatePending && !s.locked[d.ID.String()] {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// Push moves a permanently failed delivery into the DLQ.
func (s *Store) Push(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dlqEntries[entry.ID.String()] = entry
	return nil
}

// ListDLQ returns DLQ entries, newest first, optionally filtered.
func (s *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*dlq.Entry, 0, len(s.dlqEntries))
	for _, e := range s.dlqEntries {
		if opts.Inbox != "" && e.Inbox != opts.Inbox {
			continue
		}
		if opts.From != nil && e.FailedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && e.FailedAt.After(*opts.To) {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FailedAt.After(entries[j].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDLQ returns a DLQ entry by ID.
func (s *Store) GetDLQ(_ context.Context, dlqID id.ID) (*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return nil, relay.ErrDLQNotFound
	}
	return e, nil
}

// Replay re-enqueues a DLQ entry's activity as a fresh delivery.
func (s *Store) Replay(_ context.Context, dlqID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return relay.ErrDLQNotFound
	}

	// A replay gets a fresh attempt budget, independent of how quickly the
	// original delivery failed.
	now := time.Now().UTC()
	d := &delivery.Delivery{
		Entity:        entity.New(),
		ID:            id.NewDeliveryID(),
		Inbox:         e.Inbox,
		Activity:      e.Activity,
		State:         delivery.StatePending,
		MaxAttempts:   delivery.DefaultMaxAttempts,
		NextAttemptAt: now,
	}
	s.deliveries[d.ID.String()] = d
	e.ReplayedAt = &now
	return nil
}

// Purge deletes DLQ entries older than a threshold.
func (s *Store) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, e := range s.dlqEntries {
		if e.FailedAt.Before(before) {
			delete(s.dlqEntries, key)
			n++
		}
	}
	return n, nil
}

// CountDLQ returns the total number of DLQ entries.
func (s *Store) CountDLQ(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.dlqEntries)), nil
}
