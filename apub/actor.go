package apub

import (
	"encoding/json"
	"fmt"
)

// PublicKey is the signing key advertised on an actor document.
type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// Endpoints holds the optional actor endpoints object. The relay only cares
// about sharedInbox, which collapses fan-out targets per instance.
type Endpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

// Actor is an Activity-Streams actor document. The relay stores a snapshot
// of the whole document at subscription time and reads these fields from it.
type Actor struct {
	Context           json.RawMessage `json:"@context,omitempty"`
	ID                string          `json:"id"`
	Type              string          `json:"type,omitempty"`
	PreferredUsername string          `json:"preferredUsername,omitempty"`
	Name              string          `json:"name,omitempty"`
	Summary           string          `json:"summary,omitempty"`
	Inbox             string          `json:"inbox,omitempty"`
	Outbox            string          `json:"outbox,omitempty"`
	Followers         string          `json:"followers,omitempty"`
	Following         string          `json:"following,omitempty"`
	Endpoints         *Endpoints      `json:"endpoints,omitempty"`
	PublicKey         *PublicKey      `json:"publicKey,omitempty"`
}

// ParseActor decodes an actor document. An actor without an id is rejected;
// everything else is tolerated since remote implementations vary.
func ParseActor(raw []byte) (*Actor, error) {
	var a Actor
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("apub: parse actor: %w", err)
	}
	if a.ID == "" {
		return nil, fmt.Errorf("apub: parse actor: missing id")
	}
	return &a, nil
}

// InboxURL returns the delivery target for this actor, preferring the
// shared inbox when advertised.
func (a *Actor) InboxURL() string {
	if a.Endpoints != nil && a.Endpoints.SharedInbox != "" {
		return a.Endpoints.SharedInbox
	}
	return a.Inbox
}
