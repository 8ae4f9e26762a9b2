package llm

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

type openAIBackend struct {
	client *openai.Client
}

func newOpenAIBackend(apiKey, baseURL string) backend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openAIBackend{client: openai.NewClientWithConfig(cfg)}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (b *openAIBackend) complete(ctx context.Context, messages []Message, opts Options) (Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}
	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("openai complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai complete: no choices returned")
	}
	choice := resp.Choices[0]
	return Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

func (b *openAIBackend) stream(ctx context.Context, messages []Message, opts Options) (<-chan Delta, error) {
	req := openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
	}
	stream, err := b.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}
	out := make(chan Delta)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			chunk, err := stream.Recv()
			if err == io.EOF {
				out <- Delta{Done: true}
				return
			}
			if err != nil {
				out <- Delta{Done: true, Err: fmt.Errorf("openai stream recv: %w", err)}
				return
			}
			if len(chunk.Choices) > 0 {
				out <- Delta{Content: chunk.Choices[0].Delta.Content}
			}
		}
	}()
	return out, nil
}
