package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fedibits/relay/apub"
	"github.com/fedibits/relay/delivery"
	"github.com/fedibits/relay/follower"
	"github.com/fedibits/relay/id"
	"github.com/fedibits/relay/internal/entity"
	"github.com/fedibits/relay/protocol"
)

// handleFollow runs the subscription request path:
//
//	validate → duplicate check → resolve actor → SubscriptionHandler →
//	persist record + index → enqueue replies.
//
// Validation failures drop the activity silently. A handler error aborts
// before any persistence.
func (r *Router) handleFollow(ctx context.Context, act *apub.Activity, raw json.RawMessage) error {
	actorID := act.ActorID()
	if act.ID == "" || actorID == "" {
		r.logger.DebugContext(ctx, "dropping follow without id or actor")
		return nil
	}
	if actorID == r.config.RelayActor.ID {
		r.logger.DebugContext(ctx, "dropping follow from the relay itself")
		return nil
	}

	// The object must be the relay actor; the public-audience collection is
	// treated as addressed to the relay.
	objectID := act.ObjectID()
	if objectID != r.config.RelayActor.ID && objectID != apub.PublicCollection {
		r.logger.DebugContext(ctx, "dropping follow of foreign object",
			"actor", actorID, "object", objectID)
		return nil
	}

	existing, err := r.getRecord(ctx, actorID)
	if err != nil {
		return err
	}

	// Duplicate-follow suppression: the reciprocal variant ignores a repeat
	// Follow while the handshake is pending, without consulting the
	// handler. A repeat Follow from an already accepted follower still goes
	// through the full path (re-approval), matching relay behavior in the
	// wild.
	if r.config.Protocol == protocol.Reciprocal &&
		existing != nil && existing.State == follower.StatePending {
		r.logger.DebugContext(ctx, "ignoring duplicate follow from pending actor",
			"actor", actorID)
		return nil
	}

	actor, err := r.config.Resolver.Resolve(ctx, act.Actor)
	if err != nil {
		r.logger.WarnContext(ctx, "dropping follow from unresolvable actor",
			"actor", actorID, "error", err)
		return nil
	}

	ok, err := r.config.Handler(ctx, actor)
	if err != nil {
		return fmt.Errorf("inbox: subscription handler: %w", err)
	}
	if !ok {
		r.logger.InfoContext(ctx, "subscription rejected", "actor", actor.ID)
		return nil
	}

	doc, err := json.Marshal(actor)
	if err != nil {
		return fmt.Errorf("inbox: snapshot actor %s: %w", actor.ID, err)
	}

	state := r.config.Protocol.InitialState()
	rec := &follower.Record{
		Entity:  entity.New(),
		ActorID: actor.ID,
		Actor:   doc,
		State:   state,
	}
	if err := r.config.Followers.PutFollower(ctx, rec); err != nil {
		return fmt.Errorf("inbox: persist follower %s: %w", actor.ID, err)
	}
	if err := r.config.Followers.AddFollowerID(ctx, actor.ID); err != nil {
		return fmt.Errorf("inbox: index follower %s: %w", actor.ID, err)
	}
	if r.config.Metrics != nil && state == follower.StateAccepted && existing == nil {
		r.config.Metrics.FollowersGauge.Inc()
	}

	replies := r.config.Protocol.SubscribeReplies(
		r.config.RelayActor, raw, actor, r.config.NewActivityID)
	if err := r.enqueueReplies(ctx, actor, replies); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "subscription created",
		"actor", actor.ID, "state", string(state))
	return nil
}

// handleAccept completes the reciprocal handshake: the subscriber accepted
// the relay's own Follow, so the pending record becomes a fan-out target.
// The direct variant never expects an Accept and drops it.
func (r *Router) handleAccept(ctx context.Context, act *apub.Activity) error {
	if r.config.Protocol != protocol.Reciprocal {
		r.logger.DebugContext(ctx, "dropping accept on direct protocol", "id", act.ID)
		return nil
	}

	actorID := act.ActorID()
	if actorID == "" {
		r.logger.DebugContext(ctx, "dropping accept without actor")
		return nil
	}

	// The wrapped object should be the relay's reciprocal Follow. Objects
	// arrive embedded or as a bare IRI; when fields are present they must
	// match.
	obj, err := act.ObjectActivity()
	if err != nil {
		r.logger.DebugContext(ctx, "dropping accept without object", "actor", actorID)
		return nil
	}
	if obj.Type != "" && obj.Type != apub.TypeFollow {
		r.logger.DebugContext(ctx, "dropping accept of non-follow object",
			"actor", actorID, "object_type", obj.Type)
		return nil
	}
	if oa := obj.ActorID(); oa != "" && oa != r.config.RelayActor.ID {
		r.logger.DebugContext(ctx, "dropping accept of foreign follow",
			"actor", actorID, "follow_actor", oa)
		return nil
	}

	rec, err := r.getRecord(ctx, actorID)
	if err != nil {
		return err
	}
	if rec == nil || rec.State != follower.StatePending {
		r.logger.DebugContext(ctx, "dropping accept without pending record",
			"actor", actorID)
		return nil
	}

	if _, err := r.config.Resolver.Resolve(ctx, act.Actor); err != nil {
		r.logger.WarnContext(ctx, "dropping accept from unresolvable actor",
			"actor", actorID, "error", err)
		return nil
	}

	rec.State = follower.StateAccepted
	rec.UpdatedAt = time.Now().UTC()
	if err := r.config.Followers.PutFollower(ctx, rec); err != nil {
		return fmt.Errorf("inbox: accept follower %s: %w", actorID, err)
	}
	// Normally indexed at Follow time; AddFollowerID is idempotent and
	// restores the entry if the earlier index write was lost.
	if err := r.config.Followers.AddFollowerID(ctx, actorID); err != nil {
		return fmt.Errorf("inbox: index follower %s: %w", actorID, err)
	}
	if r.config.Metrics != nil {
		r.config.Metrics.FollowersGauge.Inc()
	}

	r.logger.InfoContext(ctx, "subscription accepted", "actor", actorID)
	return nil
}

// handleUndo processes an unsubscribe: an Undo wrapping a prior Follow from
// an actor with a record in either state deletes that record.
func (r *Router) handleUndo(ctx context.Context, act *apub.Activity) error {
	actorID := act.ActorID()
	if actorID == "" {
		r.logger.DebugContext(ctx, "dropping undo without actor")
		return nil
	}

	obj, err := act.ObjectActivity()
	if err != nil {
		r.logger.DebugContext(ctx, "dropping undo without object", "actor", actorID)
		return nil
	}
	if obj.Type != "" && obj.Type != apub.TypeFollow {
		r.logger.DebugContext(ctx, "dropping undo of non-follow object",
			"actor", actorID, "object_type", obj.Type)
		return nil
	}
	// The wrapped Follow must belong to the actor undoing it.
	if oa := obj.ActorID(); oa != "" && oa != actorID {
		r.logger.DebugContext(ctx, "dropping undo of foreign follow",
			"actor", actorID, "follow_actor", oa)
		return nil
	}

	rec, err := r.getRecord(ctx, actorID)
	if err != nil {
		return err
	}
	if rec == nil {
		r.logger.DebugContext(ctx, "dropping undo from unknown actor", "actor", actorID)
		return nil
	}

	if _, err := r.config.Resolver.Resolve(ctx, act.Actor); err != nil {
		r.logger.WarnContext(ctx, "dropping undo from unresolvable actor",
			"actor", actorID, "error", err)
		return nil
	}

	if err := r.config.Followers.DeleteFollower(ctx, actorID); err != nil {
		return fmt.Errorf("inbox: delete follower %s: %w", actorID, err)
	}
	if err := r.config.Followers.RemoveFollowerID(ctx, actorID); err != nil {
		return fmt.Errorf("inbox: unindex follower %s: %w", actorID, err)
	}
	if r.config.Metrics != nil && rec.State == follower.StateAccepted {
		r.config.Metrics.FollowersGauge.Dec()
	}

	r.logger.InfoContext(ctx, "subscription removed", "actor", actorID)
	return nil
}

// getRecord reads a follower record, mapping absence to nil.
func (r *Router) getRecord(ctx context.Context, actorID string) (*follower.Record, error) {
	rec, err := r.config.Followers.GetFollower(ctx, actorID)
	if err != nil {
		if errors.Is(err, follower.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("inbox: read follower %s: %w", actorID, err)
	}
	return rec, nil
}

// enqueueReplies serializes handshake activities and enqueues one delivery
// each to the subscriber's own inbox. Handshake traffic goes to the
// personal inbox, not the shared one.
func (r *Router) enqueueReplies(ctx context.Context, actor *apub.Actor, replies []*apub.Activity) error {
	inbox := actor.Inbox
	if inbox == "" {
		inbox = actor.InboxURL()
	}
	if inbox == "" {
		r.logger.WarnContext(ctx, "subscriber advertises no inbox; skipping replies",
			"actor", actor.ID)
		return nil
	}

	now := time.Now().UTC()
	for _, reply := range replies {
		payload, err := json.Marshal(reply)
		if err != nil {
			return fmt.Errorf("inbox: marshal %s reply: %w", reply.Type, err)
		}
		d := &delivery.Delivery{
			Entity:        entity.New(),
			ID:            id.NewDeliveryID(),
			Inbox:         inbox,
			Activity:      payload,
			State:         delivery.StatePending,
			MaxAttempts:   r.config.MaxAttempts,
			NextAttemptAt: now,
		}
		if err := r.config.Queue.Enqueue(ctx, d); err != nil {
			return fmt.Errorf("inbox: enqueue %s reply: %w", reply.Type, err)
		}
	}
	if r.config.Metrics != nil {
		r.config.Metrics.PendingDeliveries.Add(float64(len(replies)))
	}
	return nil
}
