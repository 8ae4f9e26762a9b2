package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config configures the OpenAI-compatible embedder (spec §4.3, §6.1
// embedding_provider/embedding_model/embedding_batch_size).
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dims      int
	BatchSize int
	// RatePerSecond bounds outbound embedding requests; 0 disables
	// limiting.
	RatePerSecond float64
}

type openAIEmbedder struct {
	client    *openai.Client
	model     string
	dims      int
	batchSize int
	limiter   *rate.Limiter
}

// New constructs the C3 embedder over an OpenAI-compatible endpoint.
func New(cfg Config) Embedder {
	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &openAIEmbedder{
		client:    openai.NewClientWithConfig(oaCfg),
		model:     cfg.Model,
		dims:      cfg.Dims,
		batchSize: batchSize,
		limiter:   limiter,
	}
}

func (e *openAIEmbedder) wait(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

func (e *openAIEmbedder) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		out[d.Index] = normalize(d.Embedding)
	}
	return out, nil
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedRequest(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed: empty response")
	}
	return vecs[0], nil
}

// EmbedBatch splits texts into batchSize-sized requests and runs them
// concurrently, preserving input order (spec §4.3 "Batch size is a
// configuration knob").
func (e *openAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += e.batchSize {
		start := start
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := e.embedRequest(ctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *openAIEmbedder) Dims() int       { return e.dims }
func (e *openAIEmbedder) ModelID() string { return e.model }
