package forward_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/fedibits/relay/apub"
	"github.com/fedibits/relay/delivery"
	"github.com/fedibits/relay/follower"
	"github.com/fedibits/relay/forward"
	"github.com/fedibits/relay/internal/entity"
	"github.com/fedibits/relay/protocol"
	"github.com/fedibits/relay/store/memory"
)

var relayActor = &apub.Actor{
	ID:        "https://relay.example/actor",
	Followers: "https://relay.example/followers",
}

// batchRecorder records batches handed to EnqueueBatch.
type batchRecorder struct {
	batches [][]*delivery.Delivery
}

func (b *batchRecorder) EnqueueBatch(_ context.Context, ds []*delivery.Delivery) error {
	b.batches = append(b.batches, ds)
	return nil
}

func (b *batchRecorder) all() []*delivery.Delivery {
	var out []*delivery.Delivery
	for _, batch := range b.batches {
		out = append(out, batch...)
	}
	return out
}

func setup(t *testing.T, proto protocol.Protocol) (*memory.Store, *batchRecorder, *forward.Engine) {
	t.Helper()

	st := memory.New()
	q := &batchRecorder{}
	eng := forward.NewEngine(follower.NewService(st, nil), q, forward.Config{
		Protocol:    proto,
		RelayActor:  relayActor,
		MaxAttempts: 3,
		NewActivityID: func() string {
			return "https://relay.example/activities/announce-1"
		},
	}, nil)
	return st, q, eng
}

func addFollower(t *testing.T, st *memory.Store, actorID, inbox string, state follower.State) {
	t.Helper()
	ctx := context.Background()

	doc, err := json.Marshal(&apub.Actor{ID: actorID, Inbox: inbox})
	if err != nil {
		t.Fatal(err)
	}
	rec := &follower.Record{
		Entity:  entity.New(),
		ActorID: actorID,
		Actor:   doc,
		State:   state,
	}
	if err := st.PutFollower(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := st.AddFollowerID(ctx, actorID); err != nil {
		t.Fatal(err)
	}
}

func createActivity(actorID string) (*apub.Activity, json.RawMessage) {
	raw := json.RawMessage(fmt.Sprintf(`{
		"id": "https://remote.example/activities/1", "type": "Create",
		"actor": %q, "object": {"type": "Note"}
	}`, actorID))
	act, err := apub.ParseActivity(raw)
	if err != nil {
		panic(err)
	}
	return act, raw
}

func TestForwardExcludesOrigin(t *testing.T) {
	st, q, eng := setup(t, protocol.Direct)

	addFollower(t, st, "https://a.example/actor", "https://a.example/inbox", follower.StateAccepted)
	addFollower(t, st, "https://b.example/actor", "https://b.example/inbox", follower.StateAccepted)

	act, raw := createActivity("https://a.example/actor")
	if err := eng.Forward(context.Background(), act, raw); err != nil {
		t.Fatal(err)
	}

	ds := q.all()
	if len(ds) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(ds))
	}
	if ds[0].Inbox != "https://b.example/inbox" {
		t.Fatalf("origin must be excluded, got delivery to %q", ds[0].Inbox)
	}
	if string(ds[0].Activity) != string(raw) {
		t.Fatal("direct variant must forward the raw activity")
	}
}

func TestForwardExcludesSharedInboxOfOrigin(t *testing.T) {
	st, q, eng := setup(t, protocol.Direct)

	// Two actors on the same instance share one inbox URL.
	addFollower(t, st, "https://a.example/actor", "https://a.example/inbox", follower.StateAccepted)
	addFollower(t, st, "https://a.example/other", "https://a.example/inbox", follower.StateAccepted)
	addFollower(t, st, "https://b.example/actor", "https://b.example/inbox", follower.StateAccepted)

	act, raw := createActivity("https://a.example/actor")
	if err := eng.Forward(context.Background(), act, raw); err != nil {
		t.Fatal(err)
	}

	ds := q.all()
	if len(ds) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(ds))
	}
	if ds[0].Inbox != "https://b.example/inbox" {
		t.Fatalf("origin instance must not receive its own activity, got %q", ds[0].Inbox)
	}
}

func TestForwardDeduplicatesInboxes(t *testing.T) {
	st, q, eng := setup(t, protocol.Direct)

	addFollower(t, st, "https://b.example/actor", "https://b.example/inbox", follower.StateAccepted)
	addFollower(t, st, "https://b.example/other", "https://b.example/inbox", follower.StateAccepted)

	act, raw := createActivity("https://external.example/actor")
	if err := eng.Forward(context.Background(), act, raw); err != nil {
		t.Fatal(err)
	}

	if ds := q.all(); len(ds) != 1 {
		t.Fatalf("shared inbox must receive exactly one delivery, got %d", len(ds))
	}
}

func TestForwardSkipsPendingFollowers(t *testing.T) {
	st, q, eng := setup(t, protocol.Reciprocal)

	addFollower(t, st, "https://a.example/actor", "https://a.example/inbox", follower.StateAccepted)
	addFollower(t, st, "https://p.example/actor", "https://p.example/inbox", follower.StatePending)

	act, raw := createActivity("https://external.example/actor")
	if err := eng.Forward(context.Background(), act, raw); err != nil {
		t.Fatal(err)
	}

	ds := q.all()
	if len(ds) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(ds))
	}
	if ds[0].Inbox != "https://a.example/inbox" {
		t.Fatalf("pending follower must not receive deliveries, got %q", ds[0].Inbox)
	}
}

func TestForwardZeroTargetsNoBatch(t *testing.T) {
	st, q, eng := setup(t, protocol.Direct)

	// Only the origin is subscribed.
	addFollower(t, st, "https://a.example/actor", "https://a.example/inbox", follower.StateAccepted)

	act, raw := createActivity("https://a.example/actor")
	if err := eng.Forward(context.Background(), act, raw); err != nil {
		t.Fatal(err)
	}

	if len(q.batches) != 0 {
		t.Fatal("empty fan-out must not touch the queue")
	}
}

func TestForwardReciprocalWrapsAnnounce(t *testing.T) {
	st, q, eng := setup(t, protocol.Reciprocal)

	addFollower(t, st, "https://a.example/actor", "https://a.example/inbox", follower.StateAccepted)

	act, raw := createActivity("https://external.example/actor")
	if err := eng.Forward(context.Background(), act, raw); err != nil {
		t.Fatal(err)
	}

	ds := q.all()
	if len(ds) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(ds))
	}
	env, err := apub.ParseActivity(ds[0].Activity)
	if err != nil {
		t.Fatal(err)
	}
	if env.Type != apub.TypeAnnounce {
		t.Fatalf("reciprocal envelope must be an Announce, got %q", env.Type)
	}
	if got := env.ActorID(); got != relayActor.ID {
		t.Fatalf("announce must be attributed to the relay, got %q", got)
	}
	if got := env.ObjectID(); got != act.ID {
		t.Fatalf("announce must wrap the original activity, got %q", got)
	}
}

func TestForwardSameEnvelopeForAllTargets(t *testing.T) {
	st, q, eng := setup(t, protocol.Reciprocal)

	addFollower(t, st, "https://a.example/actor", "https://a.example/inbox", follower.StateAccepted)
	addFollower(t, st, "https://b.example/actor", "https://b.example/inbox", follower.StateAccepted)

	act, raw := createActivity("https://external.example/actor")
	if err := eng.Forward(context.Background(), act, raw); err != nil {
		t.Fatal(err)
	}

	ds := q.all()
	if len(ds) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(ds))
	}
	if string(ds[0].Activity) != string(ds[1].Activity) {
		t.Fatal("the envelope must be built once and shared by all targets")
	}
}
