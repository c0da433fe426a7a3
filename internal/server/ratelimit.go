package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained questions per second per client
	// address when no explicit limit is configured.
	defaultRateLimit = 10
	// defaultRateBurst is the per-client burst when none is configured.
	defaultRateBurst = 20
	// maxTrackedClients caps the number of client buckets held at once.
	maxTrackedClients = 10_000
	// clientIdleTTL is how long an idle client's bucket is remembered.
	clientIdleTTL = 5 * time.Minute
)

// throttledMessage is shown to a client that exceeded its own budget.
const throttledMessage = "Too many questions from this address. Please wait a moment and try again."

// clientLimiter throttles the query endpoints per client address with a
// token bucket, ahead of any embedding or generation call. Buckets live in
// an expirable LRU: idle clients age out after clientIdleTTL and the table
// never grows past maxTrackedClients.
type clientLimiter struct {
	buckets *expirable.LRU[string, *rate.Limiter]
	rps     rate.Limit
	burst   int
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{
		buckets: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, clientIdleTTL),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// bucket returns the limiter for addr, creating it on first sight. A Get
// refreshes the entry's position but not its TTL, so it is re-added to
// keep an active client from expiring mid-conversation.
func (cl *clientLimiter) bucket(addr string) *rate.Limiter {
	lim, ok := cl.buckets.Get(addr)
	if !ok {
		lim = rate.NewLimiter(cl.rps, cl.burst)
	}
	cl.buckets.Add(addr, lim)
	return lim
}

// admit reports whether addr may proceed now. When it may not, wait is the
// time until the next token becomes available.
func (cl *clientLimiter) admit(addr string) (ok bool, wait time.Duration) {
	res := cl.bucket(addr).Reserve()
	if !res.OK() {
		return false, time.Second
	}
	if d := res.Delay(); d > 0 {
		res.Cancel()
		return false, d
	}
	return true, 0
}

// middleware rejects over-budget requests with 429, a Retry-After header
// and the usual JSON error body before next is invoked.
func (cl *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := clientIP(r)
		ok, wait := cl.admit(addr)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("client throttled",
			slog.String("client", addr),
			slog.Duration("retry_after", wait),
		)
		w.Header().Set("Retry-After", retryAfterSeconds(wait))
		writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Error: errorBody{
			Kind:    string(apperr.KindRateLimited),
			Message: throttledMessage,
		}})
	})
}

// clientIP is the host part of RemoteAddr. X-Forwarded-For is not trusted;
// a reverse proxy in front of the server must rewrite RemoteAddr itself.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
