package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/budget"
	"github.com/54b3r/casebot-go/internal/logging"
)

// DefaultHostedTimeout bounds a hosted call.
const DefaultHostedTimeout = 200 * time.Second

// Hosted adapts an eino chat model. The system instruction travels as a
// system message and the context and question as the user message.
type Hosted struct {
	model    model.BaseChatModel
	backend  string
	timeout  time.Duration
	handlers []callbacks.Handler
}

// HostedOption configures a Hosted client.
type HostedOption func(*Hosted)

// WithCallbacks attaches eino callback handlers, e.g. Langfuse tracing, to
// every call.
func WithCallbacks(handlers ...callbacks.Handler) HostedOption {
	return func(h *Hosted) { h.handlers = append(h.handlers, handlers...) }
}

// NewHosted wraps m. A non-positive timeout selects DefaultHostedTimeout.
func NewHosted(m model.BaseChatModel, backend string, timeout time.Duration, opts ...HostedOption) *Hosted {
	if timeout <= 0 {
		timeout = DefaultHostedTimeout
	}
	h := &Hosted{model: m, backend: backend, timeout: timeout}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Backend implements Client.
func (h *Hosted) Backend() string { return h.backend }

// Ping implements Client. Hosted models are checked when constructed, so
// there is nothing to check per request.
func (h *Hosted) Ping(context.Context) error { return nil }

// Generate implements Client.
func (h *Hosted) Generate(ctx context.Context, req Request) (*Response, error) {
	op := "generation." + h.backend + ".Generate"
	resp := newResponse()
	if err := checkBackend(op, req, h.backend); err != nil {
		return resp, err
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(h.withCallbacks(ctx), h.timeout)
	defer cancel()

	resp.advance(StateSent)
	resp.Attempts = 1
	msg, err := h.model.Generate(ctx, h.buildMessages(ctx, req))
	if err != nil {
		return resp, resp.fail(classify(parent, ctx, op, err))
	}
	if msg == nil {
		return resp, resp.fail(apperr.Errorf(apperr.KindBackend, op, "model returned no message"))
	}
	resp.Text = msg.Content
	resp.advance(StateCompleted)
	resp.advance(StateDone)
	return resp, nil
}

// Stream implements Client. The end of the eino stream (io.EOF) is the
// completion marker.
func (h *Hosted) Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error) {
	op := "generation." + h.backend + ".Stream"
	resp := newResponse()
	if err := checkBackend(op, req, h.backend); err != nil {
		return resp, err
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(h.withCallbacks(ctx), h.timeout)
	defer cancel()

	resp.advance(StateSent)
	resp.Attempts = 1
	sr, err := h.model.Stream(ctx, h.buildMessages(ctx, req))
	if err != nil {
		return resp, resp.fail(classify(parent, ctx, op, err))
	}
	defer sr.Close()

	var text strings.Builder
	defer func() { resp.Text = text.String() }()

	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			if resp.State == StateSent {
				resp.advance(StateStreaming)
			}
			resp.advance(StateDone)
			return resp, nil
		}
		if err != nil {
			if resp.State == StateStreaming && ctx.Err() == nil && apperr.KindOf(err) == apperr.KindUnknown && !isRateLimit(err) {
				err = apperr.New(apperr.KindIncompleteStream, op, err)
			}
			return resp, resp.fail(classify(parent, ctx, op, err))
		}
		if resp.State == StateSent {
			resp.advance(StateStreaming)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		text.WriteString(msg.Content)
		if onChunk != nil {
			if err := onChunk(msg.Content); err != nil {
				return resp, resp.fail(classify(parent, ctx, op, err))
			}
		}
	}
}

// withCallbacks installs the configured handlers for one model call.
func (h *Hosted) withCallbacks(ctx context.Context) context.Context {
	if len(h.handlers) == 0 {
		return ctx
	}
	return callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "casebot." + h.backend,
		Type:      h.backend,
		Component: components.ComponentOfChatModel,
	}, h.handlers...)
}

// messages builds the chat history for req: a system instruction (when
// present) and one user message.
func messages(req Request) []*schema.Message {
	if req.Raw != "" {
		return []*schema.Message{schema.UserMessage(req.Raw)}
	}
	var msgs []*schema.Message
	if req.Prompt.Instruction != "" {
		msgs = append(msgs, schema.SystemMessage(req.Prompt.Instruction))
	}
	return append(msgs, schema.UserMessage(req.Prompt.RenderUser()))
}

// buildMessages renders req and logs its estimated prompt size.
func (h *Hosted) buildMessages(ctx context.Context, req Request) []*schema.Message {
	msgs := messages(req)
	logging.FromContext(ctx).Debug("generation: sending prompt",
		slog.String("backend", h.backend),
		slog.Int("estimated_tokens", budget.EstimateMessages(msgs)),
	)
	return msgs
}
