// Package enricher generates contextual metadata (title, summary,
// keywords) for transcript chunks, following Anthropic-style
// contextual retrieval: the generated text is later embedded alongside
// the raw chunk text so retrieval can match on topic as well as
// wording (spec §4.8).
package enricher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vidknora/vidknora/internal/config"
	"github.com/vidknora/vidknora/internal/llm"
	"github.com/vidknora/vidknora/internal/logger"
	"github.com/vidknora/vidknora/internal/types"
)

// Enrichment is the metadata an Enricher produces for one chunk.
type Enrichment struct {
	Title    string
	Summary  string
	Keywords []string
}

// Enricher fills in title/summary/keywords for chunks via an LLM,
// degrading to a heuristic fallback when the LLM is disabled or every
// retry attempt fails.
type Enricher struct {
	client       *llm.Client
	cfg          config.EnrichmentConfig
	model        string
	videoContext string
}

// New constructs an Enricher. videoContext, when non-empty, is
// prepended to every enrichment prompt to ground the LLM in the
// video's title/description.
func New(client *llm.Client, cfg config.EnrichmentConfig, model, videoContext string) *Enricher {
	return &Enricher{client: client, cfg: cfg, model: model, videoContext: videoContext}
}

const enrichmentSystemPrompt = `You are an expert at analyzing transcript segments and extracting key information. Your task is to generate concise metadata for a chunk of transcript text.

Return your response as valid JSON with these exact fields:
{
  "title": "A short phrase (3-7 words) capturing the main topic",
  "summary": "A concise 1-3 sentence summary of what is discussed",
  "keywords": ["3-7 key topics, entities, or concepts mentioned"]
}

Guidelines:
- Title should be specific and descriptive
- Summary should capture the essence and key points
- Keywords should be searchable terms someone might use to find this content
- Return ONLY valid JSON, no additional text`

type enrichmentJSON struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

func (e *Enricher) prompt(chunk types.Chunk) []llm.Message {
	minutes := int(chunk.StartTS) / 60
	seconds := int(chunk.StartTS) % 60
	timestamp := fmt.Sprintf("%02d:%02d", minutes, seconds)

	context := ""
	if e.videoContext != "" {
		context = "\n\nVideo context: " + e.videoContext
	}

	user := fmt.Sprintf("Analyze this transcript segment (from %s):%s\n\nTranscript:\n%s\n\nReturn JSON with title, summary, and keywords.",
		timestamp, context, chunk.Text)

	return []llm.Message{
		{Role: "system", Content: enrichmentSystemPrompt},
		{Role: "user", Content: user},
	}
}

// EnrichChunk enriches one chunk, retrying the LLM call up to
// cfg.MaxRetries times with exponential backoff before degrading to
// the heuristic fallback.
func (e *Enricher) EnrichChunk(ctx context.Context, chunk types.Chunk) Enrichment {
	if !e.cfg.Enabled || e.client == nil {
		return fallbackEnrichment(chunk)
	}

	retries := e.cfg.MaxRetries
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		resp, err := e.client.Complete(ctx, e.prompt(chunk), llm.Options{
			Model:       e.model,
			Temperature: 0.3,
			MaxTokens:   500,
			Retry:       false,
		})
		if err == nil {
			var parsed enrichmentJSON
			if perr := llm.ParseJSONFence(resp.Content, &parsed); perr == nil && parsed.Title != "" && parsed.Summary != "" {
				return Enrichment{Title: parsed.Title, Summary: parsed.Summary, Keywords: parsed.Keywords}
			}
			lastErr = fmt.Errorf("parse enrichment response: unusable fields")
		} else {
			lastErr = err
		}

		if attempt < retries-1 {
			select {
			case <-ctx.Done():
				return fallbackEnrichment(chunk)
			case <-time.After(time.Duration(1<<attempt) * time.Second):
			}
		}
	}

	logger.GetLogger(ctx).Warnf("enrichment failed for chunk %d, using fallback: %v", chunk.ChunkIndex, lastErr)
	return fallbackEnrichment(chunk)
}

// EnrichBatch enriches chunks sequentially, throttled so no more than
// BatchSize requests leave in any one-second window (spec §4.8's
// "small delay every batch_size chunks", generalized to a token
// bucket rather than a fixed sleep).
func (e *Enricher) EnrichBatch(ctx context.Context, chunks []types.Chunk) []Enrichment {
	out := make([]Enrichment, len(chunks))
	batchSize := e.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(chunks)
	}
	limiter := rate.NewLimiter(rate.Limit(batchSize), batchSize)

	for i, chunk := range chunks {
		if err := limiter.Wait(ctx); err != nil {
			return out
		}
		out[i] = e.EnrichChunk(ctx, chunk)
	}
	return out
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "from": {}, "as": {}, "is": {}, "was": {},
	"are": {}, "were": {}, "be": {}, "this": {}, "that": {}, "these": {}, "those": {}, "i": {},
	"you": {}, "he": {}, "she": {}, "it": {}, "we": {}, "they": {}, "what": {}, "which": {},
	"who": {}, "when": {}, "where": {}, "why": {}, "how": {},
}

// fallbackEnrichment builds a best-effort title/summary/keywords set
// from the chunk text alone, used when the LLM is disabled or
// unreachable (spec §4.8 `_create_fallback_enrichment`).
func fallbackEnrichment(chunk types.Chunk) Enrichment {
	sentences := strings.Split(chunk.Text, ". ")

	title := chunk.Text
	if len(sentences) > 0 {
		title = sentences[0]
	}
	if len(title) > 50 {
		title = title[:50] + "..."
	}

	summaryCount := len(sentences)
	if summaryCount > 3 {
		summaryCount = 3
	}
	summary := strings.Join(sentences[:summaryCount], ". ")
	if !strings.HasSuffix(summary, ".") {
		summary += "."
	}
	if len(summary) > 300 {
		summary = summary[:300]
	}

	freq := map[string]int{}
	for _, word := range strings.Fields(strings.ToLower(chunk.Text)) {
		cleaned := cleanWord(word)
		if cleaned == "" {
			continue
		}
		if _, stop := stopwords[cleaned]; stop {
			continue
		}
		if len(cleaned) <= 3 {
			continue
		}
		freq[cleaned]++
	}

	keywords := make([]string, 0, len(freq))
	for w := range freq {
		keywords = append(keywords, w)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if freq[keywords[i]] != freq[keywords[j]] {
			return freq[keywords[i]] > freq[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > 5 {
		keywords = keywords[:5]
	}

	return Enrichment{Title: title, Summary: summary, Keywords: keywords}
}

func cleanWord(word string) string {
	var b strings.Builder
	for _, r := range word {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
