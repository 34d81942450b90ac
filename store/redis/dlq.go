package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	relay "github.com/fedibits/relay"
	"github.com/fedibits/relay/delivery"
	"github.com/fedibits/relay/dlq"
	"github.com/fedibits/relay/id"
	"github.com/fedibits/relay/internal/entity"
)

// dlqEntryModel is the JSON representation stored in Redis.
type dlqEntryModel struct {
	ID             string          `json:"id"`
	DeliveryID     string          `json:"delivery_id"`
	Inbox          string          `json:"inbox"`
	Activity       json.RawMessage `json:"activity"`
	Error          string          `json:"error"`
	AttemptCount   int             `json:"attempt_count"`
	LastStatusCode int             `json:"last_status_code"`
	ReplayedAt     *time.Time      `json:"replayed_at,omitempty"`
	FailedAt       time.Time       `json:"failed_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toDLQEntryModel(e *dlq.Entry) *dlqEntryModel {
	return &dlqEntryModel{
		ID:             e.ID.String(),
		DeliveryID:     e.DeliveryID.String(),
		Inbox:          e.Inbox,
		Activity:       e.Activity,
		Error:          e.Error,
		AttemptCount:   e.AttemptCount,
		LastStatusCode: e.LastStatusCode,
		ReplayedAt:     e.ReplayedAt,
		FailedAt:       e.FailedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromDLQEntryModel(m *dlqEntryModel) (*dlq.Entry, error) {
	dlqID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse DLQ ID %q: %w", m.ID, err)
	}
	delID, err := id.ParseDeliveryID(m.DeliveryID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.DeliveryID, err)
	}
	return &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             dlqID,
		DeliveryID:     delID,
		Inbox:          m.Inbox,
		Activity:       m.Activity,
		Error:          m.Error,
		AttemptCount:   m.AttemptCount,
		LastStatusCode: m.LastStatusCode,
		ReplayedAt:     m.ReplayedAt,
		FailedAt:       m.FailedAt,
	}, nil
}

func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m := toDLQEntryModel(entry)
	key := entityKey(prefixDLQ, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("relay/redis: push dlq: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zDLQAll, goredis.Z{Score: scoreFromTime(m.FailedAt), Member: m.ID})
	if m.Inbox != "" {
		pipe.ZAdd(ctx, zDLQInbox+m.Inbox, goredis.Z{Score: scoreFromTime(m.FailedAt), Member: m.ID})
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("relay/redis: push dlq indexes: %w", err)
	}
	return nil
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	zKey := zDLQAll
	if opts.Inbox != "" {
		zKey = zDLQInbox + opts.Inbox
	}

	minScore := math.Inf(-1)
	maxScore := math.Inf(1)
	if opts.From != nil {
		minScore = scoreFromTime(*opts.From)
	}
	if opts.To != nil {
		maxScore = scoreFromTime(*opts.To)
	}

	ids, err := s.zRangeByScoreIDs(ctx, zKey, minScore, maxScore)
	if err != nil {
		return nil, fmt.Errorf("relay/redis: list dlq: %w", err)
	}

	result := make([]*dlq.Entry, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, ids[i]), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		entry, err := fromDLQEntryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	var m dlqEntryModel
	if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, relay.ErrDLQNotFound
		}
		return nil, fmt.Errorf("relay/redis: get dlq: %w", err)
	}
	return fromDLQEntryModel(&m)
}

func (s *Store) Replay(ctx context.Context, dlqID id.ID) error {
	entry, err := s.GetDLQ(ctx, dlqID)
	if err != nil {
		return err
	}

	// Re-enqueue a fresh delivery for the same inbox and activity, with a
	// fresh attempt budget.
	d := &delivery.Delivery{
		ID:            id.NewDeliveryID(),
		Inbox:         entry.Inbox,
		Activity:      entry.Activity,
		State:         delivery.StatePending,
		MaxAttempts:   delivery.DefaultMaxAttempts,
		NextAttemptAt: now(),
	}
	d.CreatedAt = now()
	d.UpdatedAt = d.CreatedAt

	if enqueueErr := s.Enqueue(ctx, d); enqueueErr != nil {
		return enqueueErr
	}

	replayedAt := now()
	m := toDLQEntryModel(entry)
	m.ReplayedAt = &replayedAt
	m.UpdatedAt = replayedAt
	if err := s.setEntity(ctx, entityKey(prefixDLQ, m.ID), m); err != nil {
		return fmt.Errorf("relay/redis: mark replayed: %w", err)
	}
	return nil
}

func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	maxScore := scoreFromTime(before)
	ids, err := s.zRangeByScoreIDs(ctx, zDLQAll, math.Inf(-1), maxScore)
	if err != nil {
		return 0, fmt.Errorf("relay/redis: purge list: %w", err)
	}

	var count int64
	for _, entryID := range ids {
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return count, err
		}

		if err := s.deleteDLQEntry(ctx, entryID, m.Inbox); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDLQAll).Result()
	if err != nil {
		return 0, fmt.Errorf("relay/redis: count dlq: %w", err)
	}
	return count, nil
}

// deleteDLQEntry removes a DLQ entry and its index entries.
func (s *Store) deleteDLQEntry(ctx context.Context, entryID, inbox string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, entityKey(prefixDLQ, entryID))
	pipe.ZRem(ctx, zDLQAll, entryID)
	if inbox != "" {
		pipe.ZRem(ctx, zDLQInbox+inbox, entryID)
	}
	_, err := pipe.Exec(ctx)
	return err
}
