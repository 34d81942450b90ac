// Package forward computes the fan-out set for an eligible content activity
// and enqueues one outbound delivery per subscriber inbox.
package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fedibits/relay/apub"
	"github.com/fedibits/relay/delivery"
	"github.com/fedibits/relay/follower"
	"github.com/fedibits/relay/id"
	"github.com/fedibits/relay/internal/entity"
	"github.com/fedibits/relay/observability"
	"github.com/fedibits/relay/protocol"
)

// Queue is the slice of the delivery store the engine needs.
type Queue interface {
	EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) error
}

// Config holds forwarding engine configuration.
type Config struct {
	Protocol    protocol.Protocol
	RelayActor  *apub.Actor
	MaxAttempts int
	// NewActivityID mints an IRI for activities the relay creates
	// (the Announce envelope of the reciprocal variant).
	NewActivityID func() string
	Metrics       *observability.Metrics
}

// Engine fans an inbound activity out to every accepted follower.
type Engine struct {
	followers *follower.Service
	queue     Queue
	config    Config
	logger    *slog.Logger
}

// NewEngine creates a forwarding engine.
func NewEngine(followers *follower.Service, queue Queue, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		followers: followers,
		queue:     queue,
		config:    cfg,
		logger:    logger,
	}
}

// Forward computes the fan-out set for a content activity and enqueues one
// delivery per target inbox. The originating actor never receives its own
// activity back, and duplicate inboxes (instances sharing one shared inbox)
// are collapsed. Enqueue is the commit point: the caller responds success
// once Forward returns, without waiting for any delivery to complete.
func (e *Engine) Forward(ctx context.Context, act *apub.Activity, raw json.RawMessage) error {
	originID := act.ActorID()

	// The origin's snapshotted inbox is excluded even when another record
	// resolves to the same URL via a shared inbox.
	var originInbox string
	if originID != "" {
		origin, err := e.followers.Get(ctx, originID)
		if err != nil {
			return fmt.Errorf("forward: look up origin: %w", err)
		}
		if origin != nil {
			originInbox = origin.Actor.InboxURL()
		}
	}

	seen := make(map[string]struct{})
	var inboxes []string
	for f, err := range e.followers.Accepted(ctx) {
		if err != nil {
			return fmt.Errorf("forward: list followers: %w", err)
		}
		if f.ActorID == originID {
			continue
		}
		inbox := f.Actor.InboxURL()
		if inbox == "" || inbox == originInbox {
			continue
		}
		if _, dup := seen[inbox]; dup {
			continue
		}
		seen[inbox] = struct{}{}
		inboxes = append(inboxes, inbox)
	}

	if e.config.Metrics != nil {
		e.config.Metrics.FanoutTargets.Observe(float64(len(inboxes)))
	}

	if len(inboxes) == 0 {
		e.logger.DebugContext(ctx, "no fan-out targets", "activity", act.ID)
		return nil
	}

	envelope, err := e.config.Protocol.Envelope(e.config.RelayActor, raw, e.config.NewActivityID())
	if err != nil {
		return fmt.Errorf("forward: %w", err)
	}

	now := time.Now().UTC()
	deliveries := make([]*delivery.Delivery, 0, len(inboxes))
	for _, inbox := range inboxes {
		deliveries = append(deliveries, &delivery.Delivery{
			Entity:        entity.New(),
			ID:            id.NewDeliveryID(),
			Inbox:         inbox,
			Activity:      envelope,
			State:         delivery.StatePending,
			MaxAttempts:   e.config.MaxAttempts,
			NextAttemptAt: now,
		})
	}

	if err := e.queue.EnqueueBatch(ctx, deliveries); err != nil {
		return fmt.Errorf("forward: enqueue deliveries: %w", err)
	}

	if e.config.Metrics != nil {
		e.config.Metrics.PendingDeliveries.Add(float64(len(deliveries)))
	}

	e.logger.DebugContext(ctx, "activity forwarded",
		"activity", act.ID,
		"type", act.Type,
		"targets", len(deliveries),
	)

	return nil
}
