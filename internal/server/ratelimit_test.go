package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

// reached counts the requests that got past the limiter.
type reached struct{ n int }

func (h *reached) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.n++
	w.WriteHeader(http.StatusOK)
}

func searchFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/search?q=excessive+force", nil)
	req.RemoteAddr = addr
	return req
}

func TestClientLimiter_BurstThenThrottle(t *testing.T) {
	t.Parallel()

	next := &reached{}
	h := newClientLimiter(0.001, 3).middleware(next)

	codes := make([]int, 0, 5)
	for range 5 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, searchFrom("10.0.0.1:9999"))
		codes = append(codes, w.Code)
	}

	want := []int{200, 200, 200, 429, 429}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("request codes: got %v, want %v", codes, want)
		}
	}
	if next.n != 3 {
		t.Errorf("downstream reached %d times, want 3", next.n)
	}
}

func TestClientLimiter_RejectionBody(t *testing.T) {
	t.Parallel()

	h := newClientLimiter(0.5, 1).middleware(&reached{})
	h.ServeHTTP(httptest.NewRecorder(), searchFrom("10.0.0.2:1234"))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, searchFrom("10.0.0.2:1234"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	// One token every two seconds: the wait is just under 2s, rounded up.
	secs, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || secs < 1 || secs > 2 {
		t.Errorf("Retry-After: got %q, want 1 or 2", w.Header().Get("Retry-After"))
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}

	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode 429 body: %v", err)
	}
	if body.Error.Kind != "rate_limited" || body.Error.Message != throttledMessage {
		t.Errorf("body: got %+v", body.Error)
	}
}

func TestClientLimiter_ClientsAreIsolated(t *testing.T) {
	t.Parallel()

	h := newClientLimiter(0.001, 1).middleware(&reached{})
	for range 4 {
		h.ServeHTTP(httptest.NewRecorder(), searchFrom("192.168.1.1:1111"))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, searchFrom("192.168.1.2:2222"))
	if w.Code != http.StatusOK {
		t.Errorf("second client: expected 200, got %d", w.Code)
	}

	// Same host on another port shares the bucket.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, searchFrom("192.168.1.1:3333"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("first client, new port: expected 429, got %d", w.Code)
	}
}

func TestClientLimiter_BucketIsReused(t *testing.T) {
	t.Parallel()

	cl := newClientLimiter(1, 1)
	a := cl.bucket("10.0.0.3")
	if cl.bucket("10.0.0.3") != a {
		t.Error("expected the same bucket for a repeat client")
	}
	if cl.bucket("10.0.0.4") == a {
		t.Error("expected a fresh bucket for a new client")
	}
	if n := cl.buckets.Len(); n != 2 {
		t.Errorf("tracked clients: got %d, want 2", n)
	}
}

func TestClientLimiter_ZeroBurstRejectsEverything(t *testing.T) {
	t.Parallel()

	cl := newClientLimiter(1, 0)
	ok, wait := cl.admit("10.0.0.5")
	if ok {
		t.Fatal("expected a zero-burst limiter to reject")
	}
	if wait <= 0 {
		t.Errorf("expected a positive wait, got %v", wait)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"127.0.0.1:54321":   "127.0.0.1",
		"[::1]:8080":        "::1",
		"[2001:db8::7]:443": "2001:db8::7",
		"unix-socket":       "unix-socket",
	}
	for addr, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if got := clientIP(req); got != want {
			t.Errorf("clientIP(%q) = %q, want %q", addr, got, want)
		}
	}
}
