package follower

import (
	"context"
	"errors"
	"iter"
	"log/slog"
)

// Service provides read views over follower state.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a follower service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// All returns a lazy, restartable sequence over the follower index. Records
// whose stored actor document fails to parse are skipped, as are records
// deleted between reading the index and resolving them. Store read failures
// surface as the second sequence value and end the iteration.
func (svc *Service) All(ctx context.Context) iter.Seq2[*Follower, error] {
	return func(yield func(*Follower, error) bool) {
		ids, err := svc.store.ListFollowerIDs(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		for _, actorID := range ids {
			rec, err := svc.store.GetFollower(ctx, actorID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue // deleted concurrently
				}
				yield(nil, err)
				return
			}

			f, err := resolve(rec)
			if err != nil {
				svc.logger.DebugContext(ctx, "skipping unparsable follower record",
					"actor_id", actorID, "error", err)
				continue
			}

			if !yield(f, nil) {
				return
			}
		}
	}
}

// Accepted returns the sequence of followers eligible for fan-out.
func (svc *Service) Accepted(ctx context.Context) iter.Seq2[*Follower, error] {
	return func(yield func(*Follower, error) bool) {
		for f, err := range svc.All(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			if f.State != StateAccepted {
				continue
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// Get returns the follower for an actor. Both a missing record and a record
// whose stored document fails to parse yield (nil, nil).
func (svc *Service) Get(ctx context.Context, actorID string) (*Follower, error) {
	rec, err := svc.store.GetFollower(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	f, err := resolve(rec)
	if err != nil {
		svc.logger.DebugContext(ctx, "unparsable follower record",
			"actor_id", actorID, "error", err)
		return nil, nil
	}
	return f, nil
}

// CountAccepted returns the number of fan-out eligible followers.
func (svc *Service) CountAccepted(ctx context.Context) (int, error) {
	n := 0
	for _, err := range svc.Accepted(ctx) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}
