package signature

import (
	"crypto/rsa"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-fed/httpsig"
)

// signedHeaders are the headers covered by outbound signatures. Mastodon
// and Pleroma both require at least (request-target), host, date and digest
// on inbox POSTs.
var signedHeaders = []string{httpsig.RequestTarget, "host", "date", "digest"}

// Signer signs outbound federated requests with the relay actor's key.
type Signer struct {
	keyID string
	key   *rsa.PrivateKey

	mu sync.Mutex // httpsig signers are not safe for concurrent use
	hs httpsig.Signer
}

// NewSigner creates a request signer. keyID is the fragment IRI advertised
// in the relay actor's publicKey (e.g. "https://relay.example/actor#main-key").
func NewSigner(keyID string, key *rsa.PrivateKey) (*Signer, error) {
	hs, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		signedHeaders,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("signature: new signer: %w", err)
	}

	return &Signer{
		keyID: keyID,
		key:   key,
		hs:    hs,
	}, nil
}

// Sign adds Date, Host, Digest and Signature headers to the request. The
// body must match what will be sent on the wire.
func (s *Signer) Sign(req *http.Request, body []byte) error {
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.URL.Host)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hs.SignRequest(s.key, s.keyID, req, body); err != nil {
		return fmt.Errorf("signature: sign request: %w", err)
	}
	return nil
}

// KeyID returns the key IRI this signer signs with.
func (s *Signer) KeyID() string { return s.keyID }
