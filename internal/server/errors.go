package server

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/logging"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindIndexUnavailable, apperr.KindBackend,
		apperr.KindTransientBackend, apperr.KindIncompleteStream:
		return http.StatusBadGateway
	case apperr.KindModelUnavailable, apperr.KindConfiguration:
		return http.StatusServiceUnavailable
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindCanceled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// bodyFor builds the presentation payload for err. Internal details stay in
// the logs; unknown errors get a generic message.
func bodyFor(err error) errorBody {
	kind := apperr.KindOf(err)
	if kind == apperr.KindUnknown {
		return errorBody{Kind: string(kind), Message: "Something went wrong while answering the question."}
	}
	return errorBody{Kind: string(kind), Message: apperr.Message(err)}
}

// writeError writes err as a JSON error response with the mapped status.
// Rate-limited errors carry a Retry-After header in whole seconds.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if kind == apperr.KindRateLimited {
		w.Header().Set("Retry-After", retryAfterSeconds(apperr.RetryAfterOf(err)))
	}

	log := logging.FromContext(r.Context())
	log.Warn("request failed",
		slog.Int("status", status),
		slog.String("kind", string(kind)),
		slog.Any("error", err),
	)
	writeJSON(w, r, status, errorResponse{Error: bodyFor(err)})
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// retryAfterSeconds renders d as a Retry-After value, never below one second.
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
