package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/embedder"
	"github.com/54b3r/casebot-go/internal/generation"
	"github.com/54b3r/casebot-go/internal/logging"
	"github.com/54b3r/casebot-go/internal/pipeline"
	"github.com/54b3r/casebot-go/internal/prompt"
	"github.com/54b3r/casebot-go/internal/rag"
	"github.com/54b3r/casebot-go/internal/tracing"
)

// retrieval bundles the process-scoped retrieval handles. The embedder and
// index connect lazily on the first question.
type retrieval struct {
	embedder  *embedder.Lazy
	index     *rag.LazyIndex
	retriever *rag.DefaultRetriever
	formatter *prompt.Formatter
}

// app is retrieval plus generation, wired into a pipeline.
type app struct {
	retrieval
	generator   generation.Client
	genSettings generation.Settings
	pipeline    *pipeline.Pipeline
}

// Close releases the index connection if one was opened.
func (r *retrieval) Close(log *slog.Logger) {
	if err := r.index.Close(); err != nil {
		log.Warn("index close failed", slog.Any("error", err))
	}
}

// buildRetrieval resolves embedding, index and context settings from the
// environment. Configuration errors surface here, before any query runs.
// A nil reg disables metrics.
func buildRetrieval(log *slog.Logger, reg prometheus.Registerer) (*retrieval, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}

	var em *embedder.Metrics
	if reg != nil {
		em = embedder.NewMetrics(reg)
	}
	emb, embSettings, err := embedder.NewLazyFromEnv(em)
	if err != nil {
		return nil, err
	}

	idxSettings, err := rag.SettingsFromEnv()
	if err != nil {
		return nil, err
	}
	idx := rag.NewLazyIndexFromSettings(idxSettings)

	retriever, err := rag.NewRetriever(emb, idx, idxSettings.TopK, idxSettings.MaxTopK)
	if err != nil {
		return nil, err
	}

	opts, err := prompt.OptionsFromEnv()
	if err != nil {
		return nil, err
	}

	log.Debug("retrieval configured",
		slog.String("embedding_provider", embSettings.Backend),
		slog.String("embedding_model", embSettings.Model),
		slog.String("index", idx.Name()),
		slog.Int("top_k", idxSettings.TopK),
	)
	return &retrieval{
		embedder:  emb,
		index:     idx,
		retriever: retriever,
		formatter: prompt.NewFormatter(opts),
	}, nil
}

// buildApp wires retrieval, the generation client and the pipeline.
func buildApp(ctx context.Context, log *slog.Logger, reg prometheus.Registerer, handlers ...callbacks.Handler) (*app, error) {
	r, err := buildRetrieval(log, reg)
	if err != nil {
		return nil, err
	}

	var (
		gm *generation.Metrics
		qm *pipeline.Metrics
	)
	if reg != nil {
		gm = generation.NewMetrics(reg)
		qm = pipeline.NewMetrics(reg)
	}

	gen, genSettings, err := generation.NewFromEnv(ctx, gm, handlers...)
	if err != nil {
		r.Close(log)
		return nil, err
	}

	p, err := pipeline.New(pipeline.Config{
		Retriever: r.retriever,
		Formatter: r.formatter,
		Generator: gen,
		Metrics:   qm,
	})
	if err != nil {
		r.Close(log)
		return nil, err
	}

	log.Info("pipeline ready",
		slog.String("generation_backend", gen.Backend()),
		slog.Duration("generation_timeout", genSettings.Timeout),
		slog.String("index", r.index.Name()),
	)
	return &app{retrieval: *r, generator: gen, genSettings: genSettings, pipeline: p}, nil
}

// setupTracing returns the Langfuse handler when configured, and a flush
// func that is always safe to call.
func setupTracing(log *slog.Logger) ([]callbacks.Handler, func()) {
	handler, flush, ok := tracing.Setup()
	if !ok {
		log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
		return nil, func() {}
	}
	log.Info("langfuse tracing enabled")
	return []callbacks.Handler{handler}, flush
}

// printRecords writes one line per record plus its link. low is parallel to
// the records that made it into the context and may be shorter.
func printRecords(w io.Writer, records []rag.Record, low []bool) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No matching case records.")
		return
	}
	for i, r := range records {
		marker := ""
		if i < len(low) && low[i] {
			marker = " [LOW CONFIDENCE]"
		}
		fmt.Fprintf(w, "[%d] %s (%s) score=%.3f%s\n", i+1, r.Metadata.Case, r.Metadata.Date, r.Score, marker)
		if len(r.Metadata.Tags) > 0 {
			fmt.Fprintf(w, "    tags: %s\n", strings.Join(r.Metadata.Tags, ", "))
		}
		if r.Metadata.LinkURL != "" {
			fmt.Fprintf(w, "    %s\n", r.Metadata.LinkURL)
		}
	}
}

// presentError logs err in full and returns the single sentence shown to the
// user, tagged with its kind so scripts can branch on it.
func presentError(ctx context.Context, err error) error {
	kind := apperr.KindOf(err)
	logging.FromContext(ctx).Error("command failed",
		slog.String("kind", string(kind)),
		slog.Any("error", err),
	)
	if kind == apperr.KindUnknown {
		return err
	}
	return fmt.Errorf("%s (%s)", apperr.Message(err), kind)
}
