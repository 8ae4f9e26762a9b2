// Package memory implements C15: per-turn fact extraction, multi-factor
// fact selection for prompt injection, and post-session consolidation
// of a conversation's extracted facts (spec §4.15).
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vidknora/vidknora/internal/llm"
	"github.com/vidknora/vidknora/internal/logger"
	"github.com/vidknora/vidknora/internal/repository"
	"github.com/vidknora/vidknora/internal/types"
)

const (
	extractionTemperature = 0.2
	extractionMaxTokens   = 500
	maxResponseChars      = 2000
	defaultImportance     = 1.0
)

var keySanitizer = strings.NewReplacer(" ", "_", "-", "_")

type extractedFact struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Extractor pulls small key/value facts out of a Q&A turn so later
// turns can recall them without re-reading the whole transcript of the
// conversation (spec §4.15).
type Extractor struct {
	client *llm.Client
	model  string
	facts  repository.FactRepository
}

// NewExtractor constructs an Extractor. client may be nil, in which
// case Extract is a no-op.
func NewExtractor(client *llm.Client, model string, facts repository.FactRepository) *Extractor {
	return &Extractor{client: client, model: model, facts: facts}
}

// Extract pulls facts from one user/assistant turn, deduplicates them
// against facts already stored for the conversation, persists the
// survivors and returns them. Any failure along the way degrades to an
// empty result rather than an error, so a flaky extraction call never
// blocks the chat response it rides along with.
func (e *Extractor) Extract(ctx context.Context, conversationID string, messageCount int, userQuery, assistantResponse string) []*types.ConversationFact {
	if e.client == nil {
		return nil
	}

	resp, err := e.client.Complete(ctx, buildExtractionPrompt(userQuery, assistantResponse), llm.Options{
		Model:       e.model,
		Temperature: extractionTemperature,
		MaxTokens:   extractionMaxTokens,
		Retry:       false,
	})
	if err != nil {
		logger.GetLogger(ctx).Warnf("memory: fact extraction call failed: %v", err)
		return nil
	}

	parsed, err := parseFactsResponse(resp.Content)
	if err != nil {
		logger.GetLogger(ctx).Warnf("memory: fact extraction parse failed: %v", err)
		return nil
	}
	if len(parsed) == 0 {
		return nil
	}

	sourceTurn := (messageCount + 1) / 2
	facts := make([]*types.ConversationFact, 0, len(parsed))
	for _, f := range parsed {
		facts = append(facts, &types.ConversationFact{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Key:            f.Key,
			Value:          f.Value,
			SourceTurn:     sourceTurn,
			Importance:     defaultImportance,
			Category:       types.FactCategoryTopic,
		})
	}

	facts, err = e.deduplicate(ctx, conversationID, facts)
	if err != nil {
		logger.GetLogger(ctx).Warnf("memory: fact dedup failed: %v", err)
		return nil
	}

	for _, f := range facts {
		if err := e.facts.Create(ctx, f); err != nil {
			logger.GetLogger(ctx).Warnf("memory: persisting fact %q failed: %v", f.Key, err)
		}
	}
	return facts
}

func buildExtractionPrompt(userQuery, assistantResponse string) []llm.Message {
	if len(assistantResponse) > maxResponseChars {
		assistantResponse = assistantResponse[:maxResponseChars] + "..."
	}

	content := fmt.Sprintf(`Extract key facts from this Q&A pair as simple key-value pairs.

Q: %s
A: %s

Return JSON array of facts:
[
  {"key": "instructor", "value": "Dr. Andrew Ng"},
  {"key": "topic", "value": "machine learning"},
  {"key": "framework", "value": "TensorFlow"}
]

Extract ONLY:
- Names (people, organizations, places)
- Key concepts or topics
- Tools, frameworks, or technologies
- Important dates, numbers, or findings

Use short, descriptive keys (lowercase, underscore-separated).
Return empty array if no facts.
`, userQuery, assistantResponse)

	return []llm.Message{
		{Role: "system", Content: "You are a fact extraction assistant."},
		{Role: "user", Content: content},
	}
}

func parseFactsResponse(raw string) ([]extractedFact, error) {
	var parsed []extractedFact
	if err := llm.ParseJSONFence(raw, &parsed); err != nil {
		return nil, err
	}

	out := make([]extractedFact, 0, len(parsed))
	for _, f := range parsed {
		if f.Key == "" || f.Value == "" {
			continue
		}
		f.Key = keySanitizer.Replace(strings.ToLower(f.Key))
		out = append(out, f)
	}
	return out, nil
}

// deduplicate drops any candidate whose key already exists for the
// conversation, keeping the stored fact rather than overwriting it
// (spec §4.15 "skip duplicate keys").
func (e *Extractor) deduplicate(ctx context.Context, conversationID string, candidates []*types.ConversationFact) ([]*types.ConversationFact, error) {
	existing, err := e.facts.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing)+len(candidates))
	for _, f := range existing {
		seen[f.Key] = true
	}

	out := make([]*types.ConversationFact, 0, len(candidates))
	for _, f := range candidates {
		if seen[f.Key] {
			logger.GetLogger(ctx).Debugf("memory: skipping duplicate fact key %q", f.Key)
			continue
		}
		seen[f.Key] = true
		out = append(out, f)
	}
	return out, nil
}
