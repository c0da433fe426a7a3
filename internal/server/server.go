// Package server implements the HTTP server that exposes the question
// pipeline via a JSON/SSE API, plus health, readiness and metrics endpoints.
// The server is started by the `casebot serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/logging"
	"github.com/54b3r/casebot-go/internal/pipeline"
	"github.com/54b3r/casebot-go/internal/rag"
)

// maxBodyBytes bounds the JSON request body of the query endpoints.
const maxBodyBytes = 64 << 10

// New constructs a Server from the provided querier and config.
func New(q Querier, cfg *Config) (*Server, error) {
	if q == nil {
		return nil, fmt.Errorf("server: querier must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 20 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Sessions == nil {
		cfg.Sessions = pipeline.NewSessions()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		querier:  q,
		sessions: cfg.Sessions,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(newClientLimiter(cfg.RateLimit, cfg.RateBurst)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the mux and wraps it in the middleware chain. Only the
// query endpoints are rate limited; health and metrics endpoints never are.
func (s *Server) routes(rl *clientLimiter) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", rl.middleware(http.HandlerFunc(s.handleAsk)))
	mux.Handle("POST /api/chat", rl.middleware(http.HandlerFunc(s.handleChat)))
	mux.Handle("GET /api/search", rl.middleware(http.HandlerFunc(s.handleSearch)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	return requestLogger(s.log, s.metrics.instrument(mux))
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("casebot server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("casebot server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// decodeAsk reads and validates an askRequest. An empty question is
// rejected here so streaming clients get a plain 400 rather than an SSE error.
func decodeAsk(w http.ResponseWriter, r *http.Request) (askRequest, error) {
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return req, apperr.New(apperr.KindInvalidInput, "server.decode", err)
	}
	if strings.TrimSpace(req.Question) == "" {
		return req, apperr.Errorf(apperr.KindInvalidInput, "server.decode", "question is required")
	}
	if req.TopK < 0 {
		return req, apperr.Errorf(apperr.KindInvalidInput, "server.decode", "topK must not be negative")
	}
	return req, nil
}

// withSession scopes ctx to the request's session and tags the logger.
func (s *Server) withSession(r *http.Request, sessionID string) (context.Context, func()) {
	ctx := r.Context()
	if sessionID == "" {
		return s.sessions.Begin(ctx, "")
	}
	ctx = logging.With(ctx, slog.String("session_id", sessionID))
	ctx, end := s.sessions.Begin(ctx, sessionID)
	logging.FromContext(ctx).Debug("session query started", slog.Int("active_sessions", s.sessions.Active()))
	return ctx, end
}

// handleAsk handles POST /api/ask: the whole answer in one JSON response.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAsk(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, end := s.withSession(r, req.SessionID)
	defer end()

	res, err := s.querier.Ask(ctx, req.Question, pipeline.Options{TopK: req.TopK})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := askResponse{
		Answer:        res.Answer,
		Records:       recordViews(res.Records, res.Context.LowConfidence),
		LowConfidence: res.Context.AllLowConfidence,
		Dropped:       res.Context.Dropped,
	}
	if res.Response != nil {
		resp.State = string(res.Response.State)
		resp.Attempts = res.Response.Attempts
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleChat handles POST /api/chat requests. It streams the answer using
// Server-Sent Events (SSE): one "records" event, data frames per chunk, then
// "done" or "error".
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAsk(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, end := s.withSession(r, req.SessionID)
	defer end()

	// Set SSE headers so the client receives a streaming response.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sw := &sseWriter{w: w, flusher: flusher}

	onRecords := func(res *pipeline.Result) error {
		return sw.event("records", recordsEvent{
			Records:       recordViews(res.Records, res.Context.LowConfidence),
			LowConfidence: res.Context.AllLowConfidence,
			Dropped:       res.Context.Dropped,
		})
	}
	onChunk := func(chunk string) error {
		_, err := sw.Write([]byte(chunk))
		return err
	}

	if _, err := s.querier.AskStream(ctx, req.Question, pipeline.Options{TopK: req.TopK}, onRecords, onChunk); err != nil {
		logging.FromContext(ctx).Warn("chat stream failed",
			slog.String("kind", string(apperr.KindOf(err))),
			slog.Any("error", err),
		)
		_ = sw.event("error", bodyFor(err))
		return
	}

	// Signal stream completion.
	_, _ = fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
}

// handleSearch handles GET /api/search?q=&topK=: retrieval only.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	topK := 0
	if v := r.URL.Query().Get("topK"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, apperr.Errorf(apperr.KindInvalidInput, "server.search", "topK=%q is not a non-negative integer", v))
			return
		}
		topK = n
	}

	records, err := s.querier.Search(r.Context(), q, pipeline.Options{TopK: topK})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, searchResponse{Records: recordViews(records, nil)})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// recordViews converts records to their wire shape. low is parallel to the
// records that made it into the prompt context and may be shorter.
func recordViews(records []rag.Record, low []bool) []recordView {
	out := make([]recordView, len(records))
	for i, rec := range records {
		out[i] = recordView{
			ID:            rec.ID,
			Score:         rec.Score,
			Case:          rec.Metadata.Case,
			Date:          rec.Metadata.Date,
			Tags:          rec.Metadata.Tags,
			Excerpt:       rec.Metadata.Excerpt,
			LinkURL:       rec.Metadata.LinkURL,
			LinkText:      rec.Metadata.LinkText,
			LowConfidence: i < len(low) && low[i],
		}
	}
	return out
}

// sseWriter wraps an http.ResponseWriter to emit Server-Sent Event frames.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter

	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher
}

// Write formats p as one SSE data frame and flushes to the client. Each
// line of p gets its own "data: " prefix so multi-line chunks never break
// the frame boundary; clients rejoin them with "\n".
func (s *sseWriter) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	var buf strings.Builder
	for line := range strings.SplitSeq(string(p), "\n") {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	if _, err = fmt.Fprint(s.w, buf.String()); err != nil {
		return 0, err
	}
	s.flusher.Flush()
	return len(p), nil
}

// event writes a named event whose data is v encoded as JSON.
func (s *sseWriter) event(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("server: encoding %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
