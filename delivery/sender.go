package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fedibits/relay/apub"
	"github.com/fedibits/relay/signature"
)

const maxResponseBody = 1024 // 1KB cap on response body reads

// Sender performs the HTTP POST of an activity to a remote inbox.
type Sender struct {
	client    *http.Client
	signer    *signature.Signer
	userAgent string
}

// NewSender creates a sender with the given HTTP timeout. A nil signer
// sends unsigned requests; most federated servers will reject those, so it
// is only useful in tests.
func NewSender(timeout time.Duration, signer *signature.Signer, userAgent string) *Sender {
	if userAgent == "" {
		userAgent = "fedibits-relay"
	}
	return &Sender{
		client:    &http.Client{Timeout: timeout},
		signer:    signer,
		userAgent: userAgent,
	}
}

// Send posts a delivery's activity to its inbox and returns the result.
func (s *Sender) Send(ctx context.Context, d *Delivery) Result {
	body := []byte(d.Activity)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Inbox, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	req.Header.Set("Content-Type", apub.MediaType)
	req.Header.Set("Accept", apub.MediaType)
	req.Header.Set("User-Agent", s.userAgent)

	if s.signer != nil {
		if err := s.signer.Sign(req, body); err != nil {
			return Result{Error: fmt.Sprintf("sign request: %v", err)}
		}
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	// Drain a capped amount so the connection can be reused; inbox
	// responses carry nothing the relay needs.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	return Result{
		StatusCode: resp.StatusCode,
		LatencyMs:  int(latency),
	}
}
