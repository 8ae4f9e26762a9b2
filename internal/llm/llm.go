// Package llm is the C5 routed chat client: a single Complete/Stream
// surface over a handful of provider variants, selected by model name
// (spec §4.5). Providers are a tagged-variant enum, not
// polymorphism-by-registered-name: every variant's request/response
// shaping lives in this package, switched on Kind.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind is the finite set of provider variants a model name routes to.
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindLocal     Kind = "local"
	KindGeneric   Kind = "generic"
)

// Route picks a provider Kind from a model name (spec §4.5 routing
// rule): `:` → local runtime, `claude-` prefix → Anthropic, `gpt-`
// prefix → OpenAI, else the configured default.
func Route(model string, defaultKind Kind) Kind {
	switch {
	case strings.Contains(model, ":"):
		return KindLocal
	case strings.HasPrefix(model, "claude-"):
		return KindAnthropic
	case strings.HasPrefix(model, "gpt-"):
		return KindOpenAI
	default:
		return defaultKind
	}
}

// Message is one chat turn.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Usage reports token accounting for one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is the result of a non-streaming Complete call (spec §4.5).
type Response struct {
	Content      string
	Model        string
	Provider     Kind
	Usage        Usage
	FinishReason string
	Elapsed      time.Duration
}

// Delta is one streamed content fragment.
type Delta struct {
	Content string
	Done    bool
	Err     error
}

// Options configures one call; Model overrides the client's default
// when non-empty.
type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string
	// Retry enables Complete's retry-with-backoff policy; the zero
	// value (false) makes a single attempt.
	Retry bool
}

// backend is implemented once per provider Kind.
type backend interface {
	complete(ctx context.Context, messages []Message, opts Options) (Response, error)
	stream(ctx context.Context, messages []Message, opts Options) (<-chan Delta, error)
}

// Config configures the routed client; one set of credentials per
// variant that's actually reachable (spec §6.1 llm_provider/model
// defaults plus per-provider keys).
type Config struct {
	DefaultKind  Kind
	DefaultModel string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	LocalBaseURL     string
	GenericAPIKey    string
	GenericBaseURL   string
}

// Client is the routed C5 LLM client.
type Client struct {
	cfg      Config
	backends map[Kind]backend
}

// New constructs a Client with one backend instance per configured
// provider variant.
func New(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		backends: map[Kind]backend{
			KindOpenAI:    newOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL),
			KindAnthropic: newAnthropicBackend(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL),
			KindLocal:     newLocalBackend(cfg.LocalBaseURL),
			KindGeneric:   newGenericBackend(cfg.GenericAPIKey, cfg.GenericBaseURL),
		},
	}
}

func (c *Client) resolve(opts Options) (backend, Kind, string) {
	model := opts.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}
	kind := Route(model, c.cfg.DefaultKind)
	return c.backends[kind], kind, model
}

// Complete performs one chat completion. When opts.Retry is true it
// makes up to 3 attempts, about 1s then 2s apart (see
// retryWithBackoff); otherwise it makes a single attempt.
func (c *Client) Complete(ctx context.Context, messages []Message, opts Options) (Response, error) {
	b, kind, model := c.resolve(opts)
	if b == nil {
		return Response{}, fmt.Errorf("llm: no backend for provider %q", kind)
	}
	opts.Model = model
	start := time.Now()

	var resp Response
	var err error
	run := func() error {
		resp, err = b.complete(ctx, messages, opts)
		return err
	}

	if opts.Retry {
		err = retryWithBackoff(ctx, run)
	} else {
		err = run()
	}
	if err != nil {
		return Response{}, err
	}
	resp.Elapsed = time.Since(start)
	resp.Provider = kind
	resp.Model = model
	return resp, nil
}

// Stream performs a streaming chat completion, yielding content deltas
// on the returned channel until Done (spec §4.5 "lazy sequence of
// content deltas").
func (c *Client) Stream(ctx context.Context, messages []Message, opts Options) (<-chan Delta, error) {
	b, _, model := c.resolve(opts)
	if b == nil {
		return nil, fmt.Errorf("llm: no backend for provider %q", opts.Model)
	}
	opts.Model = model
	return b.stream(ctx, messages, opts)
}
