package apub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-resty/resty/v2"
)

// ErrUnresolvable is returned when an actor reference cannot be resolved to
// a live actor document. Callers treat this as a validation failure, not an
// infrastructure error.
var ErrUnresolvable = errors.New("apub: actor not resolvable")

const (
	defaultFetchTimeout = 10 * time.Second
	fetchAttempts       = 3
	fetchRetryDelay     = 500 * time.Millisecond
)

// Resolver resolves actor references (bare IRIs or inline objects) to full
// actor documents, fetching remote documents as needed.
type Resolver struct {
	client *resty.Client
	logger *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithFetchTimeout sets the per-request HTTP timeout for remote fetches.
func WithFetchTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.client.SetTimeout(d)
	}
}

// WithUserAgent sets the User-Agent header sent on remote fetches.
func WithUserAgent(ua string) ResolverOption {
	return func(r *Resolver) {
		r.client.SetHeader("User-Agent", ua)
	}
}

// WithResolverLogger sets the structured logger for the Resolver.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates an actor resolver backed by an HTTP client.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client: resty.New().
			SetTimeout(defaultFetchTimeout).
			SetHeader("Accept", MediaType).
			SetHeader("User-Agent", "fedibits-relay"),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve resolves a raw actor reference. An inline object that already
// carries id and inbox is used as-is; otherwise the reference is fetched.
func (r *Resolver) Resolve(ctx context.Context, ref json.RawMessage) (*Actor, error) {
	if len(ref) == 0 {
		return nil, ErrUnresolvable
	}

	// Inline fast path: many implementations embed the full actor.
	if actor, err := ParseActor(ref); err == nil && actor.Inbox != "" {
		return actor, nil
	}

	iri := refID(ref)
	if iri == "" {
		return nil, ErrUnresolvable
	}
	return r.ResolveID(ctx, iri)
}

// ResolveID fetches the actor document at the given IRI. Transient failures
// (network errors and 5xx responses) are retried with bounded backoff;
// definitive misses map to ErrUnresolvable.
func (r *Resolver) ResolveID(ctx context.Context, iri string) (*Actor, error) {
	var body []byte

	err := retry.Do(
		func() error {
			resp, err := r.client.R().SetContext(ctx).Get(iri)
			if err != nil {
				return err
			}
			if resp.StatusCode() >= 500 {
				return fmt.Errorf("apub: fetch %s: status %d", iri, resp.StatusCode())
			}
			if resp.IsError() {
				return retry.Unrecoverable(fmt.Errorf("%w: %s: status %d", ErrUnresolvable, iri, resp.StatusCode()))
			}
			body = resp.Body()
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(fetchAttempts),
		retry.Delay(fetchRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if errors.Is(err, ErrUnresolvable) {
			return nil, err
		}
		r.logger.DebugContext(ctx, "actor fetch failed", "iri", iri, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvable, iri, err)
	}

	actor, err := ParseActor(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvable, iri, err)
	}
	if actor.ID != iri {
		// A document claiming a different id than the one it was fetched
		// from cannot be trusted as that actor.
		return nil, fmt.Errorf("%w: %s: document id is %s", ErrUnresolvable, iri, actor.ID)
	}
	return actor, nil
}
