// Package turnstile verifies Cloudflare Turnstile tokens server side.
package turnstile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/defense-intake/pkg/logging"
)

// DefaultVerifyURL is Cloudflare's siteverify endpoint.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

var (
	// ErrMissingToken is returned when the client sent no token.
	ErrMissingToken = errors.New("turnstile: token missing")
	// ErrVerificationFailed is returned when siteverify rejects the token.
	ErrVerificationFailed = errors.New("turnstile: verification failed")
)

// VerifyError carries the error codes reported by siteverify.
type VerifyError struct {
	Codes []string
}

func (e *VerifyError) Error() string {
	if len(e.Codes) == 0 {
		return ErrVerificationFailed.Error()
	}
	return fmt.Sprintf("%s: %s", ErrVerificationFailed, strings.Join(e.Codes, ","))
}

func (e *VerifyError) Unwrap() error { return ErrVerificationFailed }

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname"`
	Action     string   `json:"action"`
}

// Verifier calls siteverify with the site's secret key.
type Verifier struct {
	secret    string
	verifyURL string
	http      *http.Client
	logger    *logging.Logger
}

// NewVerifier returns nil when secret is empty so callers can skip verification.
func NewVerifier(secret, verifyURL string, client *http.Client, logger *logging.Logger) *Verifier {
	if secret == "" {
		return nil
	}
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Verifier{secret: secret, verifyURL: verifyURL, http: client, logger: logger}
}

// Verify checks token, optionally bound to the caller's IP.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("turnstile: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.http.Do(req)
	if err != nil {
		return fmt.Errorf("turnstile: siteverify request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("turnstile: siteverify returned status %d", resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("turnstile: decode siteverify response: %w", err)
	}
	if !out.Success {
		v.logger.Warn("turnstile: token rejected", "codes", out.ErrorCodes)
		return &VerifyError{Codes: out.ErrorCodes}
	}
	return nil
}
