package signature

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-fed/httpsig"

	"github.com/fedibits/relay/apub"
)

// KeyResolver fetches the actor document that advertises a signing key.
// *apub.Resolver satisfies it.
type KeyResolver interface {
	ResolveID(ctx context.Context, iri string) (*apub.Actor, error)
}

// Verifier verifies inbound HTTP signatures against the signing actor's
// advertised public key.
type Verifier struct {
	resolver KeyResolver
}

// NewVerifier creates a verifier that resolves signer keys through the
// given resolver.
func NewVerifier(resolver KeyResolver) *Verifier {
	return &Verifier{resolver: resolver}
}

// Verify checks the request's Signature header and returns the IRI of the
// actor whose key produced it. The keyId is mapped to an actor by stripping
// the fragment, the pattern every major implementation follows.
func (v *Verifier) Verify(req *http.Request) (string, error) {
	hv, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("signature: read signature: %w", err)
	}

	keyID := hv.KeyId()
	actorIRI := strings.SplitN(keyID, "#", 2)[0]
	if actorIRI == "" {
		return "", fmt.Errorf("signature: empty keyId")
	}

	actor, err := v.resolver.ResolveID(req.Context(), actorIRI)
	if err != nil {
		return "", fmt.Errorf("signature: resolve key owner %s: %w", actorIRI, err)
	}
	if actor.PublicKey == nil || actor.PublicKey.PublicKeyPem == "" {
		return "", fmt.Errorf("signature: actor %s advertises no public key", actorIRI)
	}

	pub, err := DecodePublicKeyPEM([]byte(actor.PublicKey.PublicKeyPem))
	if err != nil {
		return "", fmt.Errorf("signature: actor %s: %w", actorIRI, err)
	}

	if err := hv.Verify(pub, httpsig.RSA_SHA256); err != nil {
		return "", fmt.Errorf("signature: verify %s: %w", keyID, err)
	}
	return actor.ID, nil
}
