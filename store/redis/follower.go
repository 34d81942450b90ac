package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fedibits/relay/follower"
	"github.com/fedibits/relay/internal/entity"
)

// followerModel is the JSON representation stored in Redis.
type followerModel struct {
	ActorID   string          `json:"actor_id"`
	Actor     json.RawMessage `json:"actor,omitempty"`
	State     string          `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toFollowerModel(rec *follower.Record) *followerModel {
	return &followerModel{
		ActorID:   rec.ActorID,
		Actor:     rec.Actor,
		State:     string(rec.State),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func fromFollowerModel(m *followerModel) *follower.Record {
	return &follower.Record{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ActorID: m.ActorID,
		Actor:   m.Actor,
		State:   follower.State(m.State),
	}
}

func (s *Store) GetFollower(ctx context.Context, actorID string) (*follower.Record, error) {
	var m followerModel
	if err := s.getEntity(ctx, entityKey(prefixFollower, actorID), &m); err != nil {
		if isRedisNil(err) {
			return nil, follower.ErrNotFound
		}
		return nil, fmt.Errorf("relay/redis: get follower: %w", err)
	}
	return fromFollowerModel(&m), nil
}

func (s *Store) PutFollower(ctx context.Context, rec *follower.Record) error {
	m := toFollowerModel(rec)
	if err := s.setEntity(ctx, entityKey(prefixFollower, m.ActorID), m); err != nil {
		return fmt.Errorf("relay/redis: put follower: %w", err)
	}
	return nil
}

func (s *Store) DeleteFollower(ctx context.Context, actorID string) error {
	if err := s.rdb.Del(ctx, entityKey(prefixFollower, actorID)).Err(); err != nil {
		return fmt.Errorf("relay/redis: delete follower: %w", err)
	}
	return nil
}

// ListFollowerIDs returns the follower index ordered by insertion time.
func (s *Store) ListFollowerIDs(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.ZRange(ctx, zFollowerAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("relay/redis: list follower ids: %w", err)
	}
	return ids, nil
}

// AddFollowerID adds an actor to the index. ZAddNX keeps the original
// insertion score, so repeated adds are idempotent and order-preserving.
func (s *Store) AddFollowerID(ctx context.Context, actorID string) error {
	err := s.rdb.ZAddNX(ctx, zFollowerAll, goredis.Z{
		Score:  scoreFromTime(now()),
		Member: actorID,
	}).Err()
	if err != nil {
		return fmt.Errorf("relay/redis: add follower id: %w", err)
	}
	return nil
}

func (s *Store) RemoveFollowerID(ctx context.Context, actorID string) error {
	if err := s.rdb.ZRem(ctx, zFollowerAll, actorID).Err(); err != nil {
		return fmt.Errorf("relay/redis: remove follower id: %w", err)
	}
	return nil
}
