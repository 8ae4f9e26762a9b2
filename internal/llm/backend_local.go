package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	ollamaapi "github.com/ollama/ollama/api"
)

// localBackend routes to a local runtime (Ollama-style), selected when
// the model name contains `:` (spec §4.5).
type localBackend struct {
	client *ollamaapi.Client
}

func newLocalBackend(baseURL string) backend {
	if baseURL == "" {
		return &localBackend{client: nil}
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return &localBackend{client: nil}
	}
	return &localBackend{client: ollamaapi.NewClient(u, http.DefaultClient)}
}

func toOllamaMessages(messages []Message) []ollamaapi.Message {
	out := make([]ollamaapi.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, ollamaapi.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func (b *localBackend) complete(ctx context.Context, messages []Message, opts Options) (Response, error) {
	if b.client == nil {
		return Response{}, fmt.Errorf("local backend: no base URL configured")
	}
	streamFlag := false
	req := &ollamaapi.ChatRequest{
		Model:    opts.Model,
		Messages: toOllamaMessages(messages),
		Stream:   &streamFlag,
		Options:  map[string]interface{}{},
	}
	if opts.Temperature > 0 {
		req.Options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		req.Options["num_predict"] = opts.MaxTokens
	}

	var content string
	var promptTokens, evalCount int
	err := b.client.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
		content = resp.Message.Content
		if resp.EvalCount > 0 {
			promptTokens = resp.PromptEvalCount
			evalCount = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("local complete: %w", err)
	}
	return Response{
		Content: content,
		Usage: Usage{
			InputTokens:  promptTokens,
			OutputTokens: evalCount - promptTokens,
			TotalTokens:  evalCount,
		},
	}, nil
}

func (b *localBackend) stream(ctx context.Context, messages []Message, opts Options) (<-chan Delta, error) {
	if b.client == nil {
		return nil, fmt.Errorf("local backend: no base URL configured")
	}
	streamFlag := true
	req := &ollamaapi.ChatRequest{
		Model:    opts.Model,
		Messages: toOllamaMessages(messages),
		Stream:   &streamFlag,
		Options:  map[string]interface{}{},
	}
	out := make(chan Delta)
	go func() {
		defer close(out)
		err := b.client.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
			if resp.Message.Content != "" {
				out <- Delta{Content: resp.Message.Content}
			}
			if resp.Done {
				out <- Delta{Done: true}
			}
			return nil
		})
		if err != nil {
			out <- Delta{Done: true, Err: fmt.Errorf("local stream: %w", err)}
		}
	}()
	return out, nil
}
