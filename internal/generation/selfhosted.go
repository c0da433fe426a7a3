package generation

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/logging"
	"github.com/54b3r/casebot-go/internal/version"
)

// BackendSelfHosted names the self-hosted HTTP backend.
const BackendSelfHosted = "selfhosted"

// Self-hosted defaults.
const (
	DefaultSelfHostedURL     = "http://localhost:11434/api/generate"
	DefaultSelfHostedModel   = "llama3:8b"
	DefaultSelfHostedTimeout = 1000 * time.Second
	DefaultMaxAttempts       = 5
	DefaultInitialBackoff    = 500 * time.Millisecond
)

// maxErrorBody bounds how much of an error response is kept for the message.
const maxErrorBody = 512

// SelfHostedConfig configures a SelfHosted client. Zero values take defaults.
type SelfHostedConfig struct {
	// URL is the full /api/generate endpoint, possibly behind a tunnel.
	URL string
	// Model is the model name passed in every request.
	Model string
	// Timeout bounds a whole call, retries and streaming included.
	Timeout time.Duration
	// InsecureTLS skips certificate verification, for tunnels with
	// self-signed certificates.
	InsecureTLS bool
	// MaxAttempts is the total number of attempts on 5xx responses.
	MaxAttempts int
	// InitialBackoff is the first wait between attempts. Each wait doubles.
	InitialBackoff time.Duration
	// HTTPClient overrides the client built from InsecureTLS.
	HTTPClient *http.Client
	// Metrics counts retries. May be nil.
	Metrics *Metrics
}

// SelfHosted talks to an Ollama-compatible /api/generate endpoint.
type SelfHosted struct {
	cfg  SelfHostedConfig
	http *http.Client
}

// generateRequest is the /api/generate request body.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// NewSelfHosted validates cfg and returns a client.
func NewSelfHosted(cfg *SelfHostedConfig) (*SelfHosted, error) {
	c := *cfg
	if c.URL == "" {
		c.URL = DefaultSelfHostedURL
	}
	if c.Model == "" {
		c.Model = DefaultSelfHostedModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultSelfHostedTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}

	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.Errorf(apperr.KindConfiguration, "generation.NewSelfHosted",
			"SELFHOSTED_URL %q is not an http(s) URL", c.URL)
	}

	hc := c.HTTPClient
	if hc == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if c.InsecureTLS {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via SELFHOSTED_INSECURE_TLS
		}
		hc = &http.Client{Transport: tr}
	}
	return &SelfHosted{cfg: c, http: hc}, nil
}

// Backend implements Client.
func (c *SelfHosted) Backend() string { return BackendSelfHosted }

// Generate sends a non-streaming request and returns the whole answer.
func (c *SelfHosted) Generate(ctx context.Context, req Request) (*Response, error) {
	const op = "generation.selfhosted.Generate"
	resp := newResponse()
	if err := checkBackend(op, req, BackendSelfHosted); err != nil {
		return resp, err
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp.advance(StateSent)
	hr, err := c.send(ctx, op, req, false, resp)
	if err != nil {
		return resp, resp.fail(classify(parent, ctx, op, err))
	}
	defer hr.Body.Close()

	var body Chunk
	if err := json.NewDecoder(hr.Body).Decode(&body); err != nil {
		if ctx.Err() == nil {
			err = apperr.Errorf(apperr.KindBackend, op, "decoding response: %w", err)
		}
		return resp, resp.fail(classify(parent, ctx, op, err))
	}
	if body.Error != "" {
		return resp, resp.fail(apperr.Errorf(apperr.KindBackend, op, "backend error: %s", body.Error))
	}
	resp.Text = body.Response
	if !body.Done {
		return resp, resp.fail(apperr.Errorf(apperr.KindIncompleteStream, op, "response not marked done"))
	}

	resp.advance(StateCompleted)
	resp.advance(StateDone)
	return resp, nil
}

// Stream sends a streaming request and forwards each chunk to onChunk until
// one arrives with done set. A body that ends first is an incomplete stream.
func (c *SelfHosted) Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error) {
	const op = "generation.selfhosted.Stream"
	resp := newResponse()
	if err := checkBackend(op, req, BackendSelfHosted); err != nil {
		return resp, err
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp.advance(StateSent)
	hr, err := c.send(ctx, op, req, true, resp)
	if err != nil {
		return resp, resp.fail(classify(parent, ctx, op, err))
	}

	var text strings.Builder
	defer func() { resp.Text = text.String() }()

	for chunk, err := range Chunks(hr.Body) {
		if err != nil {
			switch {
			case errors.Is(err, errMalformedChunk):
				err = apperr.New(apperr.KindBackend, op, err)
			case ctx.Err() == nil:
				err = apperr.New(apperr.KindIncompleteStream, op, err)
			}
			return resp, resp.fail(classify(parent, ctx, op, err))
		}
		if chunk.Error != "" {
			return resp, resp.fail(apperr.Errorf(apperr.KindBackend, op, "backend error: %s", chunk.Error))
		}
		if resp.State == StateSent {
			resp.advance(StateStreaming)
		}
		if chunk.Response != "" {
			text.WriteString(chunk.Response)
			if onChunk != nil {
				if err := onChunk(chunk.Response); err != nil {
					return resp, resp.fail(classify(parent, ctx, op, err))
				}
			}
		}
		if chunk.Done {
			resp.advance(StateDone)
			return resp, nil
		}
	}

	return resp, resp.fail(apperr.Errorf(apperr.KindIncompleteStream, op,
		"stream ended after %d bytes without a done marker", text.Len()))
}

// Ping lists the backend's models via /api/tags next to the generate endpoint.
func (c *SelfHosted) Ping(ctx context.Context) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("generation: parse url: %w", err)
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/api/generate") + "/api/tags"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("generation: build ping request: %w", err)
	}
	c.setHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("generation: ping %s: %w", u.Host, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("generation: ping %s: HTTP %d", u.Host, resp.StatusCode)
	}
	return nil
}

// send posts the request, retrying 500/502/503/504 responses with doubling
// waits. Retries happen only here, before any part of the body is consumed.
// The returned response has a 2xx status and an open body.
func (c *SelfHosted) send(ctx context.Context, op string, req Request, stream bool, resp *Response) (*http.Response, error) {
	payload, err := json.Marshal(generateRequest{Model: c.cfg.Model, Prompt: req.text(), Stream: stream})
	if err != nil {
		return nil, fmt.Errorf("generation: marshal request: %w", err)
	}

	log := logging.FromContext(ctx)
	var out *http.Response
	attempt := func() error {
		resp.Attempts++
		hr, err := c.post(ctx, payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		if hr.StatusCode >= 200 && hr.StatusCode < 300 {
			out = hr
			return nil
		}

		serr := &statusError{code: hr.StatusCode, body: readErrorBody(hr)}
		switch {
		case hr.StatusCode == http.StatusTooManyRequests:
			wait := parseRetryAfter(hr.Header.Get("Retry-After"), time.Now())
			return backoff.Permanent(apperr.RateLimited(op, wait, serr))
		case retryableStatus(hr.StatusCode):
			return serr
		default:
			return backoff.Permanent(apperr.New(apperr.KindBackend, op, serr))
		}
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("generation: retrying self-hosted request",
			slog.Int("attempt", resp.Attempts),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
		c.cfg.Metrics.retry(BackendSelfHosted)
	}

	if err := backoff.RetryNotify(attempt, backoff.WithContext(c.policy(), ctx), notify); err != nil {
		var serr *statusError
		if errors.As(err, &serr) && apperr.KindOf(err) == apperr.KindUnknown {
			return nil, apperr.Errorf(apperr.KindTransientBackend, op,
				"gave up after %d attempts: %w", resp.Attempts, err)
		}
		return nil, err
	}
	return out, nil
}

// policy is exponential backoff without jitter, capped at MaxAttempts total.
func (c *SelfHosted) policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(c.cfg.MaxAttempts-1))
}

func (c *SelfHosted) post(ctx context.Context, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("generation: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation: POST %s: %w", req.URL.Host, err)
	}
	return resp, nil
}

// setHeaders adds the headers every request carries. The ngrok header skips
// the tunnel's browser interstitial.
func (c *SelfHosted) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("ngrok-skip-browser-warning", "true")
}

// readErrorBody drains and closes an error response, keeping a short prefix.
func readErrorBody(resp *http.Response) string {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	return strings.TrimSpace(string(b))
}
