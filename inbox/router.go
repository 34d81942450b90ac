// Package inbox classifies activities delivered to the relay's shared inbox
// and drives the follower subscription state machine.
//
// The router only ever sees activities whose origin has already been
// verified by the HTTP layer; it does not re-check authenticity. It does,
// however, require that the purported actor of a Follow, Accept or Undo
// resolve to a live actor before any state changes.
package inbox

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/fedibits/relay/apub"
	"github.com/fedibits/relay/delivery"
	"github.com/fedibits/relay/follower"
	"github.com/fedibits/relay/observability"
	"github.com/fedibits/relay/protocol"
)

// SubscriptionHandler decides whether a subscription request from the given
// actor is approved. It may perform I/O (e.g. a domain blocklist lookup).
// An error aborts Follow processing before any persistence; returning false
// drops the request silently.
type SubscriptionHandler func(ctx context.Context, actor *apub.Actor) (bool, error)

// AcceptAll approves every subscription request.
func AcceptAll(context.Context, *apub.Actor) (bool, error) { return true, nil }

// Resolver resolves actor references to live actor documents.
type Resolver interface {
	Resolve(ctx context.Context, ref json.RawMessage) (*apub.Actor, error)
}

// Forwarder dispatches an eligible content activity to the fan-out engine.
type Forwarder interface {
	Forward(ctx context.Context, act *apub.Activity, raw json.RawMessage) error
}

// Queue enqueues the handshake activities the relay sends back to
// subscribers (Accept, and the reciprocal Follow).
type Queue interface {
	Enqueue(ctx context.Context, d *delivery.Delivery) error
}

// Config wires a Router.
type Config struct {
	Protocol   protocol.Protocol
	RelayActor *apub.Actor
	Followers  follower.Store
	Resolver   Resolver
	Handler    SubscriptionHandler
	Forwarder  Forwarder
	Queue      Queue
	// MaxAttempts applies to the handshake deliveries the router enqueues.
	MaxAttempts int
	// NewActivityID mints IRIs for activities the relay creates.
	NewActivityID func() string
	Metrics       *observability.Metrics
}

// Router inspects verified inbox activities and dispatches them.
type Router struct {
	config Config
	logger *slog.Logger
}

// NewRouter creates an activity router.
func NewRouter(cfg Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Handler == nil {
		cfg.Handler = AcceptAll
	}
	return &Router{
		config: cfg,
		logger: logger,
	}
}

// Route classifies a verified activity and dispatches it. Malformed
// payloads and unknown activity types are dropped without error: a relay
// must not leak validation detail to arbitrary federated senders. Errors
// are returned only for handler and infrastructure failures, which the HTTP
// layer maps to a 5xx response.
func (r *Router) Route(ctx context.Context, raw json.RawMessage) error {
	act, err := apub.ParseActivity(raw)
	if err != nil {
		r.logger.DebugContext(ctx, "dropping malformed activity", "error", err)
		return nil
	}

	if r.config.Metrics != nil {
		r.config.Metrics.RecordActivity(act.Type)
	}

	switch act.Type {
	case apub.TypeFollow:
		return r.handleFollow(ctx, act, raw)
	case apub.TypeAccept:
		return r.handleAccept(ctx, act)
	case apub.TypeUndo:
		return r.handleUndo(ctx, act)
	default:
		if r.config.Protocol.Forwards(act.Type) {
			return r.config.Forwarder.Forward(ctx, act, raw)
		}
		r.logger.DebugContext(ctx, "dropping activity of unhandled type",
			"type", act.Type, "id", act.ID)
		return nil
	}
}
