package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/fedibits/relay/apub"
	"github.com/fedibits/relay/follower"
	"github.com/fedibits/relay/protocol"
)

var relayActor = &apub.Actor{
	ID:        "https://relay.example/actor",
	Followers: "https://relay.example/followers",
}

var subscriber = &apub.Actor{
	ID:    "https://remote.example/actor",
	Inbox: "https://remote.example/actor/inbox",
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "https://relay.example/activities/" + string(rune('0'+n))
	}
}

func TestParse(t *testing.T) {
	for _, s := range []string{"direct", "reciprocal"} {
		if _, err := protocol.Parse(s); err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
	}
	if _, err := protocol.Parse("litepub"); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestInitialState(t *testing.T) {
	if got := protocol.Direct.InitialState(); got != follower.StateAccepted {
		t.Fatalf("direct initial state: %q", got)
	}
	if got := protocol.Reciprocal.InitialState(); got != follower.StatePending {
		t.Fatalf("reciprocal initial state: %q", got)
	}
}

func TestForwards(t *testing.T) {
	for _, typ := range []string{apub.TypeCreate, apub.TypeUpdate, apub.TypeDelete, apub.TypeMove} {
		if !protocol.Direct.Forwards(typ) {
			t.Fatalf("direct should forward %s", typ)
		}
		if !protocol.Reciprocal.Forwards(typ) {
			t.Fatalf("reciprocal should forward %s", typ)
		}
	}

	if protocol.Direct.Forwards(apub.TypeAnnounce) {
		t.Fatal("direct must not forward Announce")
	}
	if !protocol.Reciprocal.Forwards(apub.TypeAnnounce) {
		t.Fatal("reciprocal should forward Announce")
	}

	for _, typ := range []string{apub.TypeFollow, apub.TypeAccept, apub.TypeUndo, "Like"} {
		if protocol.Direct.Forwards(typ) || protocol.Reciprocal.Forwards(typ) {
			t.Fatalf("%s must not be a forwarding trigger", typ)
		}
	}
}

func TestEnvelopeDirectPassthrough(t *testing.T) {
	raw := json.RawMessage(`{"id":"https://remote.example/activities/1","type":"Create"}`)
	out, err := protocol.Direct.Envelope(relayActor, raw, "unused")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(raw) {
		t.Fatal("direct envelope must pass the activity through unmodified")
	}
}

func TestEnvelopeReciprocalAnnounce(t *testing.T) {
	raw := json.RawMessage(`{"id":"https://remote.example/activities/1","type":"Create"}`)
	out, err := protocol.Reciprocal.Envelope(relayActor, raw, "https://relay.example/activities/a")
	if err != nil {
		t.Fatal(err)
	}

	act, err := apub.ParseActivity(out)
	if err != nil {
		t.Fatal(err)
	}
	if act.Type != apub.TypeAnnounce {
		t.Fatalf("expected Announce, got %q", act.Type)
	}
	if got := act.ActorID(); got != relayActor.ID {
		t.Fatalf("announce must be attributed to the relay, got %q", got)
	}
	if got := act.ObjectID(); got != "https://remote.example/activities/1" {
		t.Fatalf("unexpected wrapped object: %q", got)
	}

	hasFollowers := false
	hasPublic := false
	for _, to := range act.To {
		if to == relayActor.Followers {
			hasFollowers = true
		}
		if to == apub.PublicCollection {
			hasPublic = true
		}
	}
	if !hasFollowers || !hasPublic {
		t.Fatalf("announce addressing incomplete: %v", act.To)
	}
}

func TestSubscribeRepliesDirect(t *testing.T) {
	followRaw := json.RawMessage(`{"id":"https://remote.example/activities/1","type":"Follow"}`)
	replies := protocol.Direct.SubscribeReplies(relayActor, followRaw, subscriber, sequentialIDs())

	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if replies[0].Type != apub.TypeAccept {
		t.Fatalf("expected Accept, got %q", replies[0].Type)
	}
	if got := replies[0].ObjectID(); got != "https://remote.example/activities/1" {
		t.Fatalf("accept must wrap the original follow, got %q", got)
	}
}

func TestSubscribeRepliesReciprocal(t *testing.T) {
	followRaw := json.RawMessage(`{"id":"https://remote.example/activities/1","type":"Follow"}`)
	replies := protocol.Reciprocal.SubscribeReplies(relayActor, followRaw, subscriber, sequentialIDs())

	if len(replies) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(replies))
	}
	if replies[0].Type != apub.TypeAccept {
		t.Fatalf("first reply should be Accept, got %q", replies[0].Type)
	}
	if replies[1].Type != apub.TypeFollow {
		t.Fatalf("second reply should be Follow, got %q", replies[1].Type)
	}
	if got := replies[1].ObjectID(); got != subscriber.ID {
		t.Fatalf("reciprocal follow must target the subscriber, got %q", got)
	}
	if replies[0].ID == replies[1].ID {
		t.Fatal("replies must carry distinct IDs")
	}
}
