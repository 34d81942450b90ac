// Package apub holds the minimal slice of the Activity-Streams vocabulary
// the relay speaks: loosely typed activities, actor documents, and remote
// actor resolution.
//
// Activities arriving at a relay inbox come from many implementations and
// carry fields in several shapes (bare IRI strings, inline objects, single
// values where arrays are allowed). The types here preserve the raw JSON of
// polymorphic fields and expose accessors that normalize them.
package apub

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Media types used on the wire.
const (
	// MediaType is the canonical ActivityPub content type.
	MediaType = "application/activity+json"

	// MediaTypeLD is the JSON-LD content type some implementations send.
	MediaTypeLD = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
)

// ContextActivityStreams is the Activity-Streams JSON-LD context IRI.
const ContextActivityStreams = "https://www.w3.org/ns/activitystreams"

// PublicCollection is the special public-audience IRI. A Follow whose object
// is this collection is treated as addressed to the relay itself.
const PublicCollection = "https://www.w3.org/ns/activitystreams#Public"

// Activity type names the relay classifies on.
const (
	TypeFollow   = "Follow"
	TypeAccept   = "Accept"
	TypeReject   = "Reject"
	TypeUndo     = "Undo"
	TypeCreate   = "Create"
	TypeUpdate   = "Update"
	TypeDelete   = "Delete"
	TypeMove     = "Move"
	TypeAnnounce = "Announce"
)

// StringList is a JSON field that may be a single string or an array of
// strings. Both shapes appear in addressing fields ("to", "cc") in the wild.
type StringList []string

// UnmarshalJSON accepts either a string or an array of strings.
func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*l = nil
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}

	var ss []string
	if err := json.Unmarshal(data, &ss); err != nil {
		return err
	}
	*l = StringList(ss)
	return nil
}

// Activity is a loosely typed Activity-Streams activity. Actor and Object
// keep their raw JSON because either may be a bare IRI or an inline object.
type Activity struct {
	Context json.RawMessage `json:"@context,omitempty"`
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type,omitempty"`
	Actor   json.RawMessage `json:"actor,omitempty"`
	Object  json.RawMessage `json:"object,omitempty"`
	To      StringList      `json:"to,omitempty"`
	Cc      StringList      `json:"cc,omitempty"`
}

// ParseActivity decodes a raw inbox payload into an Activity.
// It fails only on malformed JSON or a missing type; field-level validation
// is left to the caller, which knows which fields each type requires.
func ParseActivity(raw []byte) (*Activity, error) {
	var act Activity
	if err := json.Unmarshal(raw, &act); err != nil {
		return nil, fmt.Errorf("apub: parse activity: %w", err)
	}
	if act.Type == "" {
		return nil, fmt.Errorf("apub: parse activity: missing type")
	}
	return &act, nil
}

// ActorID returns the IRI of the activity's actor, whether the actor field
// holds a bare IRI or an inline object. Empty if absent or malformed.
func (a *Activity) ActorID() string {
	return refID(a.Actor)
}

// ObjectID returns the IRI of the activity's object, whether the object
// field holds a bare IRI or an inline object. Empty if absent or malformed.
func (a *Activity) ObjectID() string {
	return refID(a.Object)
}

// ObjectActivity decodes the object field as an embedded activity. When the
// object is a bare IRI, the result carries only the ID; callers that need
// the wrapped activity's type or actor must tolerate their absence.
func (a *Activity) ObjectActivity() (*Activity, error) {
	data := bytes.TrimSpace(a.Object)
	if len(data) == 0 {
		return nil, fmt.Errorf("apub: activity %s has no object", a.ID)
	}

	if data[0] == '"' {
		var iri string
		if err := json.Unmarshal(data, &iri); err != nil {
			return nil, fmt.Errorf("apub: activity %s object: %w", a.ID, err)
		}
		return &Activity{ID: iri}, nil
	}

	var obj Activity
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("apub: activity %s object: %w", a.ID, err)
	}
	return &obj, nil
}

// refID extracts the IRI from a raw reference that is either a JSON string
// or an object with an "id" member.
func refID(raw json.RawMessage) string {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 {
		return ""
	}

	if data[0] == '"' {
		var iri string
		if err := json.Unmarshal(data, &iri); err != nil {
			return ""
		}
		return iri
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return ""
	}
	return obj.ID
}

// rawIRI wraps an IRI string as a raw JSON value.
func rawIRI(iri string) json.RawMessage {
	b, _ := json.Marshal(iri)
	return b
}

// RawContext is the Activity-Streams @context as a raw JSON value, ready to
// assign to the Context field of an Activity or Actor.
var RawContext = json.RawMessage(`"` + ContextActivityStreams + `"`)

// NewAccept builds an Accept activity attributed to actorID wrapping the
// given raw object (typically the Follow being accepted).
func NewAccept(activityID, actorID string, object json.RawMessage, to ...string) *Activity {
	return &Activity{
		Context: RawContext,
		ID:      activityID,
		Type:    TypeAccept,
		Actor:   rawIRI(actorID),
		Object:  object,
		To:      StringList(to),
	}
}

// NewFollow builds a Follow activity from actorID to objectID.
func NewFollow(activityID, actorID, objectID string, to ...string) *Activity {
	return &Activity{
		Context: RawContext,
		ID:      activityID,
		Type:    TypeFollow,
		Actor:   rawIRI(actorID),
		Object:  rawIRI(objectID),
		To:      StringList(to),
	}
}

// NewAnnounce builds an Announce activity attributed to actorID wrapping the
// given raw object (the activity being rebroadcast).
func NewAnnounce(activityID, actorID string, object json.RawMessage, to ...string) *Activity {
	return &Activity{
		Context: RawContext,
		ID:      activityID,
		Type:    TypeAnnounce,
		Actor:   rawIRI(actorID),
		Object:  object,
		To:      StringList(to),
	}
}
