package llm

import (
	"context"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicBackend struct {
	sdk anthropic.Client
}

func newAnthropicBackend(apiKey, baseURL string) backend {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &anthropicBackend{sdk: anthropic.NewClient(opts...)}
}

func splitSystem(messages []Message) (string, []anthropic.MessageParam) {
	var system string
	var converted []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "assistant":
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, converted
}

func (b *anthropicBackend) complete(ctx context.Context, messages []Message, opts Options) (Response, error) {
	system, converted := splitSystem(messages)
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  converted,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	resp, err := b.sdk.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic complete: %w", err)
	}
	var content string
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += text.Text
		}
	}
	return Response{
		Content:      content,
		FinishReason: string(resp.StopReason),
		Usage: Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

func (b *anthropicBackend) stream(ctx context.Context, messages []Message, opts Options) (<-chan Delta, error) {
	system, converted := splitSystem(messages)
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  converted,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	out := make(chan Delta)
	stream := b.sdk.Messages.NewStreaming(ctx, params)
	go func() {
		defer close(out)
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if textDelta, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && textDelta.Text != "" {
					out <- Delta{Content: textDelta.Text}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- Delta{Done: true, Err: fmt.Errorf("anthropic stream: %w", err)}
			return
		}
		out <- Delta{Done: true}
	}()
	return out, nil
}
