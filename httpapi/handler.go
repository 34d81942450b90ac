// Package httpapi exposes the relay's federated HTTP surface: the service
// actor document, the shared inbox, the follower collections and WebFinger.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	relay "github.com/fedibits/relay"
	"github.com/fedibits/relay/apub"
)

// maxBodyBytes caps inbox POST bodies. Activities are small; anything
// larger is junk or abuse.
const maxBodyBytes = 1 << 20

// Verifier authenticates an inbound request and returns the actor IRI the
// signature belongs to.
type Verifier interface {
	Verify(r *http.Request) (string, error)
}

// Config wires a Handler.
type Config struct {
	Relay *relay.Relay

	// Verifier authenticates inbox POSTs. Nil disables verification,
	// which is only acceptable behind a trusted proxy or in tests.
	Verifier Verifier

	Logger *slog.Logger
}

type handler struct {
	relay    *relay.Relay
	verifier Verifier
	logger   *slog.Logger
}

// New builds the relay's HTTP handler.
func New(cfg Config) http.Handler {
	h := &handler{
		relay:    cfg.Relay,
		verifier: cfg.Verifier,
		logger:   cfg.Logger,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/actor", h.getActor)
	r.Post("/inbox", h.postInbox)
	r.Get("/followers", h.getFollowers)
	r.Get("/following", h.getFollowing)
	r.Get("/.well-known/webfinger", h.getWebfinger)
	return r
}

// writeJSON writes v as an ActivityPub JSON document.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", apub.MediaType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handler) getActor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.relay.Actor())
}

func (h *handler) postInbox(w http.ResponseWriter, r *http.Request) {
	if h.verifier != nil {
		actorIRI, err := h.verifier.Verify(r)
		if err != nil {
			h.logger.DebugContext(r.Context(), "inbox signature rejected", "error", err)
			http.Error(w, "signature verification failed", http.StatusUnauthorized)
			return
		}
		h.logger.DebugContext(r.Context(), "inbox request verified", "actor", actorIRI)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if err := h.relay.Receive(r.Context(), body); err != nil {
		h.logger.ErrorContext(r.Context(), "inbox processing failed", "error", err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// orderedCollection is the wire shape of the follower collections.
type orderedCollection struct {
	Context      string   `json:"@context"`
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	TotalItems   int      `json:"totalItems"`
	OrderedItems []string `json:"orderedItems"`
}

func (h *handler) collection(r *http.Request, collectionID string) (*orderedCollection, error) {
	ids := make([]string, 0)
	for f, err := range h.relay.Followers().Accepted(r.Context()) {
		if err != nil {
			return nil, err
		}
		ids = append(ids, f.ActorID)
	}
	return &orderedCollection{
		Context:      apub.ContextActivityStreams,
		ID:           collectionID,
		Type:         "OrderedCollection",
		TotalItems:   len(ids),
		OrderedItems: ids,
	}, nil
}

func (h *handler) getFollowers(w http.ResponseWriter, r *http.Request) {
	col, err := h.collection(r, h.relay.Actor().Followers)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list followers failed", "error", err)
		http.Error(w, "list followers", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

// getFollowing mirrors the followers collection: the relay follows back
// exactly the instances it has accepted.
func (h *handler) getFollowing(w http.ResponseWriter, r *http.Request) {
	col, err := h.collection(r, h.relay.Actor().Following)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list following failed", "error", err)
		http.Error(w, "list following", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

// webfingerResponse is a JRD document pointing at the relay actor.
type webfingerResponse struct {
	Subject string          `json:"subject"`
	Links   []webfingerLink `json:"links"`
}

type webfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

func (h *handler) getWebfinger(w http.ResponseWriter, r *http.Request) {
	actor := h.relay.Actor()
	subject := fmt.Sprintf("acct:%s@%s", actor.PreferredUsername, h.relay.Domain())
	if got := r.URL.Query().Get("resource"); got != subject && got != actor.ID {
		http.Error(w, "unknown resource", http.StatusNotFound)
		return
	}

	resp := webfingerResponse{
		Subject: subject,
		Links: []webfingerLink{
			{
				Rel:  "self",
				Type: apub.MediaType,
				Href: actor.ID,
			},
		},
	}
	w.Header().Set("Content-Type", "application/jrd+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
