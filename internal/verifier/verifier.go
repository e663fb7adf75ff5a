// Package verifier validates third-party identity assertions. The remote
// verifier receives an assertion plus the audience it was issued for and
// answers with the verified email address.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Verifier validates an identity assertion against a claimed audience.
type Verifier interface {
	Verify(ctx context.Context, assertion, audience string) (email string, err error)
}

// HTTPVerifier talks to a Persona-style verification endpoint.
type HTTPVerifier struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPVerifier creates a verifier against url. Every call is bounded
// by timeout; a timed-out call surfaces as a plain verification error,
// retries are the caller's business.
func NewHTTPVerifier(url string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

type verifyRequest struct {
	Assertion string `json:"assertion"`
	Audience  string `json:"audience"`
}

type verifyResponse struct {
	Status string `json:"status"`
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, assertion, audience string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	payload, err := json.Marshal(verifyRequest{Assertion: assertion, Audience: audience})
	if err != nil {
		return "", fmt.Errorf("failed to encode verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("verifier request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read verifier response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("verifier returned status %d", resp.StatusCode)
	}

	var result verifyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode verifier response: %w", err)
	}
	if result.Status != "okay" || result.Email == "" {
		return "", fmt.Errorf("assertion rejected: %s", result.Reason)
	}
	return result.Email, nil
}
