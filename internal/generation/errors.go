package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/54b3r/casebot-go/internal/apperr"
)

// statusError is a non-2xx response from the self-hosted backend.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("HTTP %d", e.code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

// retryableStatus reports whether code is worth another attempt.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// parseRetryAfter reads a Retry-After header in either delay-seconds or
// HTTP-date form. It returns 0 when absent or unparseable.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// classify tags err for the caller. parent is the caller's context and ctx
// the timeout-bounded child the call ran under. Errors that already carry a
// kind pass through.
func classify(parent, ctx context.Context, op string, err error) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	if perr := parent.Err(); perr != nil {
		if errors.Is(perr, context.DeadlineExceeded) {
			return apperr.New(apperr.KindTimeout, op, err)
		}
		return apperr.New(apperr.KindCanceled, op, err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.New(apperr.KindTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return apperr.New(apperr.KindCanceled, op, err)
	}
	if isRateLimit(err) {
		return apperr.RateLimited(op, 0, err)
	}
	return apperr.New(apperr.KindBackend, op, err)
}

// status429 matches a 429 status in provider error text ("status code: 429",
// "Error 429:", "HTTP/1.1 429", "429 Too Many Requests") but not a 429 that
// is merely part of an id or a byte count.
var status429 = regexp.MustCompile(`(?i)\b(?:status(?:\s+code)?|error|code|http(?:/\d(?:\.\d)?)?)[:\s]+429\b|\b429 too many requests\b`)

// isRateLimit detects quota errors from hosted providers, which surface them
// as typed API errors or as wrapped text.
func isRateLimit(err error) bool {
	var gerr genai.APIError
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}
	var gptr *genai.APIError
	if errors.As(err, &gptr) && gptr != nil && gptr.Code == http.StatusTooManyRequests {
		return true
	}
	msg := err.Error()
	return status429.MatchString(msg) ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "rate limit")
}
