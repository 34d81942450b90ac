package relay

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fedibits/relay/apub"
	"github.com/fedibits/relay/delivery"
	"github.com/fedibits/relay/dlq"
	"github.com/fedibits/relay/follower"
	"github.com/fedibits/relay/forward"
	"github.com/fedibits/relay/inbox"
	"github.com/fedibits/relay/signature"
	"github.com/fedibits/relay/store"
)

// wireServices initializes the internal services after options have been applied.
func (r *Relay) wireServices() error {
	actorID := fmt.Sprintf("https://%s/actor", r.config.Domain)

	pubPEM, err := signature.EncodePublicKeyPEM(&r.privateKey.PublicKey)
	if err != nil {
		return fmt.Errorf("relay: encode public key: %w", err)
	}

	r.actor = &apub.Actor{
		Context:           apub.RawContext,
		ID:                actorID,
		Type:              "Service",
		PreferredUsername: "relay",
		Name:              "Activity Relay",
		Inbox:             fmt.Sprintf("https://%s/inbox", r.config.Domain),
		Outbox:            fmt.Sprintf("https://%s/outbox", r.config.Domain),
		Followers:         fmt.Sprintf("https://%s/followers", r.config.Domain),
		Following:         fmt.Sprintf("https://%s/following", r.config.Domain),
		Endpoints: &apub.Endpoints{
			SharedInbox: fmt.Sprintf("https://%s/inbox", r.config.Domain),
		},
		PublicKey: &apub.PublicKey{
			ID:           actorID + "#main-key",
			Owner:        actorID,
			PublicKeyPem: string(pubPEM),
		},
	}

	r.signer, err = signature.NewSigner(r.actor.PublicKey.ID, r.privateKey)
	if err != nil {
		return fmt.Errorf("relay: create signer: %w", err)
	}

	newActivityID := func() string {
		return fmt.Sprintf("https://%s/activities/%s", r.config.Domain, uuid.NewString())
	}

	r.followerSvc = follower.NewService(r.store, r.logger)

	r.dlqSvc = dlq.NewService(r.store, r.logger)

	r.forwarder = forward.NewEngine(r.followerSvc, r.store, forward.Config{
		Protocol:      r.config.Protocol,
		RelayActor:    r.actor,
		MaxAttempts:   r.config.MaxRetries,
		NewActivityID: newActivityID,
		Metrics:       r.metrics,
	}, r.logger)

	r.router = inbox.NewRouter(inbox.Config{
		Protocol:      r.config.Protocol,
		RelayActor:    r.actor,
		Followers:     r.store,
		Resolver:      r.resolver,
		Handler:       r.handler,
		Forwarder:     r.forwarder,
		Queue:         r.store,
		MaxAttempts:   r.config.MaxRetries,
		NewActivityID: newActivityID,
		Metrics:       r.metrics,
	}, r.logger)

	r.engine = delivery.NewEngine(r.store, r.dlqSvc, delivery.EngineConfig{
		Concurrency:    r.config.Concurrency,
		PollInterval:   r.config.PollInterval,
		BatchSize:      r.config.BatchSize,
		RequestTimeout: r.config.RequestTimeout,
		RetrySchedule:  r.config.RetrySchedule,
		InboxRateLimit: r.config.InboxRateLimit,
		Signer:         r.signer,
		UserAgent:      r.config.UserAgent,
		Metrics:        r.metrics,
		Tracer:         r.tracer,
	}, r.logger)

	return nil
}

// Start begins the delivery engine.
func (r *Relay) Start(ctx context.Context) {
	r.engine.Start(ctx)
}

// Stop gracefully shuts down the delivery engine.
func (r *Relay) Stop(ctx context.Context) {
	r.engine.Stop(ctx)
}

// Receive processes one activity delivered to the relay's shared inbox.
// The caller is responsible for verifying the HTTP signature before
// handing the body over.
func (r *Relay) Receive(ctx context.Context, raw []byte) error {
	return r.router.Route(ctx, raw)
}

// Actor returns the relay's service actor document.
func (r *Relay) Actor() *apub.Actor {
	return r.actor
}

// Protocol returns the configured subscription variant.
func (r *Relay) Protocol() string {
	return string(r.config.Protocol)
}

// Domain returns the public hostname the relay is served under.
func (r *Relay) Domain() string {
	return r.config.Domain
}

// Followers returns the follower query service.
func (r *Relay) Followers() *follower.Service {
	return r.followerSvc
}

// ListFollowers collects every known follower, pending and accepted, in
// subscription order.
func (r *Relay) ListFollowers(ctx context.Context) ([]*follower.Follower, error) {
	var out []*follower.Follower
	for f, err := range r.followerSvc.All(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// GetFollower returns the follower with the given actor IRI, or nil when
// unknown.
func (r *Relay) GetFollower(ctx context.Context, actorID string) (*follower.Follower, error) {
	return r.followerSvc.Get(ctx, actorID)
}

// Resolver returns the actor resolver, for signature verification at the
// HTTP layer.
func (r *Relay) Resolver() *apub.Resolver {
	return r.resolver
}

// Store returns the underlying store.
func (r *Relay) Store() store.Store {
	return r.store
}

// DLQ returns the DLQ service.
func (r *Relay) DLQ() *dlq.Service {
	return r.dlqSvc
}
