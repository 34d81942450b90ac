// Package protocol encodes the two relay wire-protocol variants as a closed
// set of tagged values.
//
// The direct (Mastodon-style) variant approves a subscription in a single
// round trip and forwards activities unmodified. The reciprocal
// (LitePub-style) variant additionally sends the relay's own Follow back to
// the subscriber, holds the record in a pending state until that Follow is
// accepted, and wraps every forwarded activity in an Announce attributed to
// the relay. Variant-specific behavior is expressed as methods on the
// Protocol value, selected once at relay construction.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/fedibits/relay/apub"
	"github.com/fedibits/relay/follower"
)

// Protocol selects a relay wire-protocol variant.
type Protocol string

const (
	// Direct is the Mastodon-style variant: single round-trip subscription,
	// unwrapped forwarding.
	Direct Protocol = "direct"

	// Reciprocal is the LitePub-style variant: bidirectional-follow
	// subscription with a pending phase, Announce-wrapped forwarding.
	Reciprocal Protocol = "reciprocal"
)

// Parse converts a configuration string into a Protocol.
func Parse(s string) (Protocol, error) {
	switch Protocol(s) {
	case Direct, Reciprocal:
		return Protocol(s), nil
	default:
		return "", fmt.Errorf("protocol: unknown variant %q", s)
	}
}

// InitialState is the follower state an approved Follow produces. The
// direct variant skips the pending phase entirely.
func (p Protocol) InitialState() follower.State {
	if p == Reciprocal {
		return follower.StatePending
	}
	return follower.StateAccepted
}

// Forwards reports whether the variant treats an activity of the given type
// as a forwarding trigger. Both variants forward the four content types;
// only the reciprocal variant additionally forwards bare Announce
// activities from subscribers.
func (p Protocol) Forwards(activityType string) bool {
	switch activityType {
	case apub.TypeCreate, apub.TypeUpdate, apub.TypeDelete, apub.TypeMove:
		return true
	case apub.TypeAnnounce:
		return p == Reciprocal
	default:
		return false
	}
}

// Envelope wraps a content activity for fan-out. The direct variant
// forwards the raw activity unmodified; the reciprocal variant wraps it in
// an Announce attributed to the relay actor, addressed to the relay's
// followers collection and the public audience.
func (p Protocol) Envelope(relayActor *apub.Actor, raw json.RawMessage, announceID string) (json.RawMessage, error) {
	if p != Reciprocal {
		return raw, nil
	}

	announce := apub.NewAnnounce(announceID, relayActor.ID, raw,
		relayActor.Followers, apub.PublicCollection)
	out, err := json.Marshal(announce)
	if err != nil {
		return nil, fmt.Errorf("protocol: envelope: %w", err)
	}
	return out, nil
}

// SubscribeReplies builds the activities the relay sends back to a
// subscriber whose Follow was approved. Both variants reply with an Accept
// of the Follow; the reciprocal variant additionally sends the relay's own
// Follow to establish the reverse relationship. newID mints an IRI for each
// activity the relay creates.
func (p Protocol) SubscribeReplies(relayActor *apub.Actor, followRaw json.RawMessage, subscriber *apub.Actor, newID func() string) []*apub.Activity {
	replies := []*apub.Activity{
		apub.NewAccept(newID(), relayActor.ID, followRaw, subscriber.ID),
	}

	if p == Reciprocal {
		replies = append(replies,
			apub.NewFollow(newID(), relayActor.ID, subscriber.ID, subscriber.ID))
	}
	return replies
}
