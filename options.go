package relay

import (
	"crypto/rsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/fedibits/relay/apub"
	"github.com/fedibits/relay/delivery"
	"github.com/fedibits/relay/dlq"
	"github.com/fedibits/relay/follower"
	"github.com/fedibits/relay/forward"
	"github.com/fedibits/relay/inbox"
	"github.com/fedibits/relay/observability"
	"github.com/fedibits/relay/protocol"
	"github.com/fedibits/relay/signature"
	"github.com/fedibits/relay/store"
)

// Relay is the root ActivityPub relay engine.
type Relay struct {
	config      Config
	store       store.Store
	privateKey  *rsa.PrivateKey
	actor       *apub.Actor
	signer      *signature.Signer
	resolver    *apub.Resolver
	handler     inbox.SubscriptionHandler
	followerSvc *follower.Service
	forwarder   *forward.Engine
	router      *inbox.Router
	engine      *delivery.Engine
	dlqSvc      *dlq.Service
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	logger      *slog.Logger
}

// Option configures a Relay instance.
type Option func(*Relay) error

// New creates a new Relay with the given options.
func New(opts ...Option) (*Relay, error) {
	r := &Relay{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.store == nil {
		return nil, ErrNoStore
	}
	if r.config.Domain == "" {
		return nil, ErrNoDomain
	}
	if r.privateKey == nil {
		key, err := signature.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("relay: generate key: %w", err)
		}
		r.privateKey = key
	}
	if r.resolver == nil {
		r.resolver = apub.NewResolver(apub.WithUserAgent(r.config.UserAgent))
	}
	if err := r.wireServices(); err != nil {
		return nil, err
	}
	return r, nil
}

// WithStore sets the persistence backend for the Relay instance.
func WithStore(s store.Store) Option {
	return func(r *Relay) error {
		r.store = s
		return nil
	}
}

// WithDomain sets the public hostname the relay is served under.
func WithDomain(domain string) Option {
	return func(r *Relay) error {
		r.config.Domain = domain
		return nil
	}
}

// WithProtocol selects the subscription and forwarding variant.
func WithProtocol(p protocol.Protocol) Option {
	return func(r *Relay) error {
		r.config.Protocol = p
		return nil
	}
}

// WithLogger sets the structured logger for the Relay instance.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) error {
		r.logger = logger
		return nil
	}
}

// WithPrivateKey sets the RSA key the relay signs outbound requests with.
// If no key is provided a fresh one is generated, which changes the relay's
// public key on every restart; persistent deployments should always set one.
func WithPrivateKey(key *rsa.PrivateKey) Option {
	return func(r *Relay) error {
		r.privateKey = key
		return nil
	}
}

// WithPrivateKeyPEM sets the relay's signing key from PEM-encoded data.
func WithPrivateKeyPEM(data []byte) Option {
	return func(r *Relay) error {
		key, err := signature.DecodePrivateKeyPEM(data)
		if err != nil {
			return fmt.Errorf("relay: decode private key: %w", err)
		}
		r.privateKey = key
		return nil
	}
}

// WithSubscriptionHandler sets the callback that approves or denies
// subscription requests. Defaults to accepting every request.
func WithSubscriptionHandler(h inbox.SubscriptionHandler) Option {
	return func(r *Relay) error {
		r.handler = h
		return nil
	}
}

// WithResolver sets the actor resolver used for inbox processing and
// signature verification.
func WithResolver(res *apub.Resolver) Option {
	return func(r *Relay) error {
		r.resolver = res
		return nil
	}
}

// WithUserAgent sets the User-Agent header for all outbound requests.
func WithUserAgent(ua string) Option {
	return func(r *Relay) error {
		r.config.UserAgent = ua
		return nil
	}
}

// WithConcurrency sets the number of delivery worker goroutines.
func WithConcurrency(n int) Option {
	return func(r *Relay) error {
		r.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the delivery engine checks for pending deliveries.
func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of deliveries dequeued per poll cycle.
func WithBatchSize(n int) Option {
	return func(r *Relay) error {
		r.config.BatchSize = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.RequestTimeout = d
		return nil
	}
}

// WithMaxRetries sets the global default for maximum delivery attempts.
func WithMaxRetries(n int) Option {
	return func(r *Relay) error {
		r.config.MaxRetries = n
		return nil
	}
}

// WithRetrySchedule sets the backoff intervals between retry attempts.
func WithRetrySchedule(schedule []time.Duration) Option {
	return func(r *Relay) error {
		r.config.RetrySchedule = schedule
		return nil
	}
}

// WithInboxRateLimit caps deliveries per second to a single remote host.
func WithInboxRateLimit(perSecond int) Option {
	return func(r *Relay) error {
		r.config.InboxRateLimit = perSecond
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight deliveries on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.ShutdownTimeout = d
		return nil
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Relay) error {
		r.metrics = m
		return nil
	}
}

// WithTracer sets the delivery tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Relay) error {
		r.tracer = t
		return nil
	}
}
