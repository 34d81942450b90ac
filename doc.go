// Package relay provides a composable ActivityPub relay engine for Go.
//
// Relay is a library, not a service. Import it into your application to get
// a federated activity relay: instances subscribe with a Follow activity,
// and every eligible activity an accepted subscriber posts to the relay's
// shared inbox is fanned out to all other subscribers.
//
// Key features:
//   - Direct (Mastodon-style) and Reciprocal (LitePub-style) subscription variants
//   - Composable store pattern with Redis and in-memory backends
//   - HTTP signatures on every outbound request
//   - Exponential backoff retries with dead letter queue
//   - Per-host delivery rate limiting
//
// Quick start:
//
//	r, err := relay.New(
//	    relay.WithStore(memoryStore),
//	    relay.WithDomain("relay.example.org"),
//	    relay.WithProtocol(protocol.Direct),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r.Start(ctx)
//	defer r.Stop(ctx)
//
//	// Hand verified inbox payloads to the engine.
//	if err := r.Receive(ctx, body); err != nil {
//	    // infrastructure failure; the sender should retry
//	}
package relay
