package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	relay "github.com/fedibits/relay"
	"github.com/fedibits/relay/delivery"
	"github.com/fedibits/relay/id"
	"github.com/fedibits/relay/internal/entity"
)

// deliveryModel is the JSON representation stored in Redis.
type deliveryModel struct {
	ID             string          `json:"id"`
	Inbox          string          `json:"inbox"`
	Activity       json.RawMessage `json:"activity"`
	State          string          `json:"state"`
	AttemptCount   int             `json:"attempt_count"`
	MaxAttempts    int             `json:"max_attempts"`
	NextAttemptAt  time.Time       `json:"next_attempt_at"`
	LastError      string          `json:"last_error"`
	LastStatusCode int             `json:"last_status_code"`
	LastLatencyMs  int             `json:"last_latency_ms"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:             d.ID.String(),
		Inbox:          d.Inbox,
		Activity:       d.Activity,
		State:          string(d.State),
		AttemptCount:   d.AttemptCount,
		MaxAttempts:    d.MaxAttempts,
		NextAttemptAt:  d.NextAttemptAt,
		LastError:      d.LastError,
		LastStatusCode: d.LastStatusCode,
		LastLatencyMs:  d.LastLatencyMs,
		CompletedAt:    d.CompletedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             delID,
		Inbox:          m.Inbox,
		Activity:       m.Activity,
		State:          delivery.State(m.State),
		AttemptCount:   m.AttemptCount,
		MaxAttempts:    m.MaxAttempts,
		NextAttemptAt:  m.NextAttemptAt,
		LastError:      m.LastError,
		LastStatusCode: m.LastStatusCode,
		LastLatencyMs:  m.LastLatencyMs,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// dequeueScript atomically claims pending deliveries from the sorted set.
// KEYS[1] = relay:z:del:pending
// ARGV[1] = current unix timestamp (score threshold)
// ARGV[2] = limit
var dequeueScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #ids == 0 then return {} end
for i, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
end
return ids
`)

func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	key := entityKey(prefixDelivery, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("relay/redis: enqueue delivery: %w", err)
	}

	err := s.rdb.ZAdd(ctx, zDeliveryPend, goredis.Z{
		Score:  scoreFromTime(m.NextAttemptAt),
		Member: m.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("relay/redis: enqueue delivery index: %w", err)
	}
	return nil
}

func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, d := range ds {
		m := toDeliveryModel(d)
		key := entityKey(prefixDelivery, m.ID)

		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("relay/redis: enqueue batch marshal: %w", err)
		}
		pipe.Set(ctx, key, raw, 0)
		pipe.ZAdd(ctx, zDeliveryPend, goredis.Z{Score: scoreFromTime(m.NextAttemptAt), Member: m.ID})
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("relay/redis: enqueue batch: %w", err)
	}
	return nil
}

// Dequeue atomically claims pending deliveries whose NextAttemptAt has
// passed. Claiming removes the ID from the pending sorted set; a retry
// decision re-adds it through UpdateDelivery.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	nowScore := fmt.Sprintf("%f", scoreFromTime(now()))
	result, err := dequeueScript.Run(ctx, s.rdb, []string{zDeliveryPend}, nowScore, limit).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("relay/redis: dequeue script: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	deliveries := make([]*delivery.Delivery, 0, len(result))
	for _, entryID := range result {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, fmt.Errorf("relay/redis: dequeue get: %w", err)
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = now()
	key := entityKey(prefixDelivery, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("relay/redis: update delivery: %w", err)
	}

	// If state is back to pending, re-add to the pending sorted set. A lost
	// re-add would strand the delivery as pending but unqueued.
	if d.State == delivery.StatePending {
		err := s.rdb.ZAdd(ctx, zDeliveryPend, goredis.Z{Score: scoreFromTime(m.NextAttemptAt), Member: m.ID}).Err()
		if err != nil {
			return fmt.Errorf("relay/redis: update delivery index: %w", err)
		}
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, relay.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("relay/redis: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDeliveryPend).Result()
	if err != nil {
		return 0, fmt.Errorf("relay/redis: count pending: %w", err)
	}
	return count, nil
}
