package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/casebot-go/internal/generation"
	"github.com/54b3r/casebot-go/internal/pipeline"
	"github.com/54b3r/casebot-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// outlast the generation timeout or long streamed answers are cut off.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the list of dependency checks run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on the query
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// Sessions tracks in-flight queries per session id. If nil, a fresh
	// registry is created.
	Sessions *pipeline.Sessions
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Querier is the question-answering surface the handlers call.
// *pipeline.Pipeline satisfies it; tests inject a fake.
type Querier interface {
	// Ask answers question in one piece.
	Ask(ctx context.Context, question string, opts pipeline.Options) (*pipeline.Result, error)
	// AskStream answers question incrementally.
	AskStream(ctx context.Context, question string, opts pipeline.Options,
		onRecords func(*pipeline.Result) error, onChunk generation.ChunkFunc) (*pipeline.Result, error)
	// Search retrieves records without generating an answer.
	Search(ctx context.Context, question string, opts pipeline.Options) ([]rag.Record, error)
}

// Server is the HTTP server in front of the question pipeline.
type Server struct {
	// querier answers the questions.
	querier Querier
	// sessions cancels a session's previous query when a new one arrives.
	sessions *pipeline.Sessions
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the list of dependency checks for GET /api/ready.
	pingers []Pinger
	// metrics holds the HTTP collectors.
	metrics *serverMetrics
}

// askRequest is the JSON body for POST /api/ask and POST /api/chat.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// SessionID groups queries from one client; a new query cancels the
	// previous one still running in the same session.
	SessionID string `json:"sessionId,omitempty"`
	// TopK overrides the number of records retrieved.
	TopK int `json:"topK,omitempty"`
}

// askResponse is the JSON response for POST /api/ask.
type askResponse struct {
	Answer  string       `json:"answer"`
	Records []recordView `json:"records"`
	// LowConfidence is true when every retrieved record scored below the
	// confidence threshold and the answer was asked to hedge.
	LowConfidence bool `json:"lowConfidence"`
	// Dropped counts records cut from the context by the token budget.
	Dropped  int    `json:"dropped"`
	State    string `json:"state,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

// recordsEvent is the payload of the SSE "records" event.
type recordsEvent struct {
	Records       []recordView `json:"records"`
	LowConfidence bool         `json:"lowConfidence"`
	Dropped       int          `json:"dropped"`
}

// searchResponse is the JSON response for GET /api/search.
type searchResponse struct {
	Records []recordView `json:"records"`
}

// recordView is the wire shape of one retrieved case record.
type recordView struct {
	ID            string   `json:"id"`
	Score         float32  `json:"score"`
	Case          string   `json:"case"`
	Date          string   `json:"date"`
	Tags          []string `json:"tags,omitempty"`
	Excerpt       string   `json:"excerpt,omitempty"`
	LinkURL       string   `json:"linkUrl,omitempty"`
	LinkText      string   `json:"linkText,omitempty"`
	LowConfidence bool     `json:"lowConfidence,omitempty"`
}

// errorBody is the JSON shape of every error response and SSE error event.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// errorResponse wraps errorBody for plain JSON endpoints.
type errorResponse struct {
	Error errorBody `json:"error"`
}
