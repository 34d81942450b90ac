package signature_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/fedibits/relay/apub"
	"github.com/fedibits/relay/signature"
)

func TestPrivateKeyPEMRoundTrip(t *testing.T) {
	key, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	pem := signature.EncodePrivateKeyPEM(key)
	decoded, err := signature.DecodePrivateKeyPEM(pem)
	if err != nil {
		t.Fatal(err)
	}
	if !key.Equal(decoded) {
		t.Fatal("decoded key differs from original")
	}
}

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	key, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	pem, err := signature.EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := signature.DecodePublicKeyPEM(pem)
	if err != nil {
		t.Fatal(err)
	}
	if !key.PublicKey.Equal(decoded) {
		t.Fatal("decoded key differs from original")
	}
}

func TestDecodePrivateKeyPEMRejectsGarbage(t *testing.T) {
	if _, err := signature.DecodePrivateKeyPEM([]byte("not pem")); err == nil {
		t.Fatal("expected error")
	}
}

// stubKeyResolver serves a fixed actor document.
type stubKeyResolver struct {
	actor *apub.Actor
}

func (s *stubKeyResolver) ResolveID(_ context.Context, iri string) (*apub.Actor, error) {
	if iri != s.actor.ID {
		return nil, apub.ErrUnresolvable
	}
	return s.actor, nil
}

func TestSignVerifyRoundTrip(t *testing.T) {
	const actorID = "https://relay.example/actor"

	key, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	pubPEM, err := signature.EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}

	signer, err := signature.NewSigner(actorID+"#main-key", key)
	if err != nil {
		t.Fatal(err)
	}

	body := []byte(`{"type":"Create"}`)
	req := httptest.NewRequest("POST", "https://remote.example/inbox", bytes.NewReader(body))
	if err := signer.Sign(req, body); err != nil {
		t.Fatal(err)
	}

	verifier := signature.NewVerifier(&stubKeyResolver{actor: &apub.Actor{
		ID: actorID,
		PublicKey: &apub.PublicKey{
			ID:           actorID + "#main-key",
			Owner:        actorID,
			PublicKeyPem: string(pubPEM),
		},
	}})

	got, err := verifier.Verify(req)
	if err != nil {
		t.Fatal(err)
	}
	if got != actorID {
		t.Fatalf("expected %q, got %q", actorID, got)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	const actorID = "https://relay.example/actor"

	signingKey, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	otherKey, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	otherPEM, err := signature.EncodePublicKeyPEM(&otherKey.PublicKey)
	if err != nil {
		t.Fatal(err)
	}

	signer, err := signature.NewSigner(actorID+"#main-key", signingKey)
	if err != nil {
		t.Fatal(err)
	}

	body := []byte(`{"type":"Create"}`)
	req := httptest.NewRequest("POST", "https://remote.example/inbox", bytes.NewReader(body))
	if err := signer.Sign(req, body); err != nil {
		t.Fatal(err)
	}

	// The actor advertises a different key than the one that signed.
	verifier := signature.NewVerifier(&stubKeyResolver{actor: &apub.Actor{
		ID: actorID,
		PublicKey: &apub.PublicKey{
			ID:           actorID + "#main-key",
			Owner:        actorID,
			PublicKeyPem: string(otherPEM),
		},
	}})

	if _, err := verifier.Verify(req); err == nil {
		t.Fatal("expected verification failure")
	}
}

func TestVerifyRejectsUnsignedRequest(t *testing.T) {
	verifier := signature.NewVerifier(&stubKeyResolver{actor: &apub.Actor{ID: "https://x.example"}})
	req := httptest.NewRequest("POST", "https://remote.example/inbox", nil)

	if _, err := verifier.Verify(req); err == nil {
		t.Fatal("expected error for unsigned request")
	}
}
