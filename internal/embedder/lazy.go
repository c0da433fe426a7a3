package embedder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/lazy"
	"github.com/54b3r/casebot-go/internal/logging"
	"github.com/54b3r/casebot-go/internal/rag"
)

// Lazy defers constructing and warming the embedding model until first use.
// The model is loaded at most once per process on success; a failed load is
// reported as ModelUnavailable and retried by the next caller.
type Lazy struct {
	v *lazy.Value[warmed]
}

// warmed is a loaded embedder plus the vector size observed while warming it.
type warmed struct {
	emb  rag.Embedder
	dims int
}

// NewLazy returns a Lazy embedder that calls build on first use and then
// embeds a sample text to confirm the model is loaded.
func NewLazy(build func(ctx context.Context) (rag.Embedder, error)) *Lazy {
	return &Lazy{v: lazy.New(func(ctx context.Context) (warmed, error) {
		emb, err := build(ctx)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindUnknown {
				err = apperr.New(apperr.KindModelUnavailable, "embedder.load", err)
			}
			return warmed{}, err
		}
		vecs, err := emb.Embed(ctx, []string{"warm-up"})
		if err != nil {
			return warmed{}, fmt.Errorf("embedder: warm-up failed: %w", err)
		}
		if len(vecs) != 1 || len(vecs[0]) == 0 {
			return warmed{}, apperr.Errorf(apperr.KindModelUnavailable, "embedder.load", "warm-up returned no vector")
		}
		logging.FromContext(ctx).Info("embedder: model loaded", slog.Int("dimensions", len(vecs[0])))
		return warmed{emb: emb, dims: len(vecs[0])}, nil
	})}
}

// Embed implements rag.Embedder.
func (l *Lazy) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	w, err := l.v.Get(ctx)
	if err != nil {
		return nil, err
	}
	return w.emb.Embed(ctx, texts)
}

// Load forces the model to load now. Safe to call repeatedly.
func (l *Lazy) Load(ctx context.Context) error {
	_, err := l.v.Get(ctx)
	return err
}

// Dimensions returns the vector size once the model is loaded, or 0.
func (l *Lazy) Dimensions() int {
	w, ok := l.v.Peek()
	if !ok {
		return 0
	}
	return w.dims
}

// Loaded reports whether the model has been loaded.
func (l *Lazy) Loaded() bool { return l.v.Ready() }
