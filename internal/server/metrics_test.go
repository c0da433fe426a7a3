package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/54b3r/casebot-go/internal/pipeline"
)

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	s, _ := newRoutedServer(t, &fakeQuerier{})

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	// Generate one request so the counter family exists.
	warm, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	_ = warm.Body.Close()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "casebot_http_requests_total") {
		t.Error("casebot_http_requests_total not exposed on /metrics")
	}
}

func Test_Metrics_RequestCounterUsesRoutePattern(t *testing.T) {
	t.Parallel()
	s, reg := newRoutedServer(t, &fakeQuerier{})

	for range 2 {
		s.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() != "casebot_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels[labelHandler] == "GET /api/health" && labels["code"] == "200" {
				if m.GetCounter().GetValue() != 2 {
					t.Errorf("want counter=2, got %v", m.GetCounter().GetValue())
				}
				found = true
			}
		}
	}
	if !found {
		t.Error(`casebot_http_requests_total{handler="GET /api/health",code="200"} not found in gathered metrics`)
	}
}

func Test_Metrics_UnmatchedAndErrorCodes(t *testing.T) {
	t.Parallel()
	s, _ := newRoutedServer(t, &fakeQuerier{})

	s.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	s.Handler().ServeHTTP(httptest.NewRecorder(), postJSON("/api/ask", `{}`))

	if got := testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched 404: want 1, got %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues("POST", "POST /api/ask", "400")); got != 1 {
		t.Errorf("ask 400: want 1, got %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.httpInFlight); got != 0 {
		t.Errorf("in-flight after completion: want 0, got %v", got)
	}
}

func Test_Metrics_InFlightDuringStream(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	observed := make(chan float64, 1)
	var s *Server
	q := &fakeQuerier{ask: func(context.Context, string) (*pipeline.Result, error) {
		observed <- testutil.ToFloat64(s.metrics.httpInFlight)
		<-release
		return &pipeline.Result{Answer: "ok"}, nil
	}}
	s, _ = newRoutedServer(t, q)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Handler().ServeHTTP(httptest.NewRecorder(), postJSON("/api/ask", `{"question":"q"}`))
	}()

	if got := <-observed; got != 1 {
		t.Errorf("in-flight while answering: want 1, got %v", got)
	}
	close(release)
	<-done
	if got := testutil.ToFloat64(s.metrics.httpInFlight); got != 0 {
		t.Errorf("in-flight after answer: want 0, got %v", got)
	}
}
