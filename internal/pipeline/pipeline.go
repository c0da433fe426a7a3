// Package pipeline answers one question end to end: retrieve case records,
// render them into a bounded context, assemble the prompt and generate the
// answer. A Pipeline holds only shared, read-only handles and is safe for
// concurrent use; everything else lives for one query.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/generation"
	"github.com/54b3r/casebot-go/internal/logging"
	"github.com/54b3r/casebot-go/internal/prompt"
	"github.com/54b3r/casebot-go/internal/rag"
)

// MaxQuestionRunes bounds the length of a question.
const MaxQuestionRunes = 2000

// Config wires a Pipeline. Formatter and Assembler default when nil.
type Config struct {
	Retriever rag.Retriever
	Formatter *prompt.Formatter
	Assembler *prompt.Assembler
	Generator generation.Client
	Metrics   *Metrics
}

// Pipeline runs the question → answer flow.
type Pipeline struct {
	retriever rag.Retriever
	formatter *prompt.Formatter
	assembler *prompt.Assembler
	generator generation.Client
	metrics   *Metrics
}

// Options tunes one query.
type Options struct {
	// TopK is the number of records to retrieve; 0 uses the retriever default.
	TopK int
}

// Result is everything produced for one question. On failure the fields
// filled so far are kept so callers can still show the retrieved records.
type Result struct {
	Question string
	Records  []rag.Record
	Context  prompt.Context
	Prompt   prompt.Prompt
	Answer   string
	Response *generation.Response
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	const op = "pipeline.New"
	if cfg.Retriever == nil {
		return nil, apperr.Errorf(apperr.KindConfiguration, op, "retriever is required")
	}
	if cfg.Generator == nil {
		return nil, apperr.Errorf(apperr.KindConfiguration, op, "generation client is required")
	}
	if cfg.Formatter == nil {
		cfg.Formatter = prompt.NewFormatter(prompt.FormatOptions{})
	}
	if cfg.Assembler == nil {
		cfg.Assembler = prompt.NewAssembler("")
	}
	return &Pipeline{
		retriever: cfg.Retriever,
		formatter: cfg.Formatter,
		assembler: cfg.Assembler,
		generator: cfg.Generator,
		metrics:   cfg.Metrics,
	}, nil
}

// Search retrieves records without generating an answer.
func (p *Pipeline) Search(ctx context.Context, question string, opts Options) ([]rag.Record, error) {
	q, err := normalizeQuestion(question)
	if err != nil {
		return nil, err
	}
	return p.retriever.Retrieve(ctx, q, opts.TopK)
}

// Prepare retrieves, formats and assembles, stopping short of generation.
// Zero matches are not an error: the context segment is simply empty.
func (p *Pipeline) Prepare(ctx context.Context, question string, opts Options) (*Result, error) {
	q, err := normalizeQuestion(question)
	if err != nil {
		return &Result{Question: question}, err
	}
	res := &Result{Question: q}

	records, err := p.retriever.Retrieve(ctx, q, opts.TopK)
	if err != nil {
		return res, err
	}
	res.Records = records
	res.Context = p.formatter.Format(records)
	res.Prompt = p.assembler.Assemble(res.Context, q)
	p.metrics.retrieved(res.Context)
	return res, nil
}

// Ask answers question in one piece.
func (p *Pipeline) Ask(ctx context.Context, question string, opts Options) (*Result, error) {
	start := time.Now()
	res, err := p.ask(ctx, question, opts)
	p.finish(ctx, "batch", res, start, err)
	return res, err
}

func (p *Pipeline) ask(ctx context.Context, question string, opts Options) (*Result, error) {
	res, err := p.Prepare(ctx, question, opts)
	if err != nil {
		return res, err
	}
	resp, err := p.generator.Generate(ctx, generation.Request{Prompt: res.Prompt})
	res.Response = resp
	if resp != nil {
		res.Answer = resp.Text
	}
	return res, err
}

// AskStream answers question incrementally. onRecords, when non-nil, is
// called once with the prepared result before generation starts so callers
// can show the retrieved records early. onChunk receives each fragment.
func (p *Pipeline) AskStream(ctx context.Context, question string, opts Options,
	onRecords func(*Result) error, onChunk generation.ChunkFunc,
) (*Result, error) {
	start := time.Now()
	p.metrics.streamStarted()
	defer p.metrics.streamEnded()

	res, err := p.askStream(ctx, question, opts, onRecords, onChunk)
	p.finish(ctx, "stream", res, start, err)
	return res, err
}

func (p *Pipeline) askStream(ctx context.Context, question string, opts Options,
	onRecords func(*Result) error, onChunk generation.ChunkFunc,
) (*Result, error) {
	res, err := p.Prepare(ctx, question, opts)
	if err != nil {
		return res, err
	}
	if onRecords != nil {
		if err := onRecords(res); err != nil {
			return res, err
		}
	}
	resp, err := p.generator.Stream(ctx, generation.Request{Prompt: res.Prompt}, onChunk)
	res.Response = resp
	if resp != nil {
		res.Answer = resp.Text
	}
	return res, err
}

// finish logs and records the outcome of one query.
func (p *Pipeline) finish(ctx context.Context, mode string, res *Result, start time.Time, err error) {
	elapsed := time.Since(start)
	p.metrics.query(mode, elapsed, err)

	log := logging.FromContext(ctx)
	attrs := []any{
		slog.String("mode", mode),
		slog.Int("records", len(res.Records)),
		slog.Int("dropped", res.Context.Dropped),
		slog.Bool("all_low_confidence", res.Context.AllLowConfidence),
		slog.Duration("elapsed", elapsed),
	}
	if res.Response != nil {
		attrs = append(attrs,
			slog.String("state", string(res.Response.State)),
			slog.Int("attempts", res.Response.Attempts),
		)
	}
	if err != nil {
		attrs = append(attrs, slog.String("kind", string(apperr.KindOf(err))), slog.String("error", err.Error()))
		log.Warn("pipeline: question failed", attrs...)
		return
	}
	log.Info("pipeline: question answered", attrs...)
}

// normalizeQuestion trims q and rejects empty or oversized questions before
// any backend is called.
func normalizeQuestion(q string) (string, error) {
	const op = "pipeline.question"
	q = strings.TrimSpace(q)
	if q == "" {
		return "", apperr.Errorf(apperr.KindInvalidInput, op, "question is empty")
	}
	if n := utf8.RuneCountInString(q); n > MaxQuestionRunes {
		return "", apperr.Errorf(apperr.KindInvalidInput, op, "question is %d characters, limit is %d", n, MaxQuestionRunes)
	}
	return q, nil
}
