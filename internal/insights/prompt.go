package insights

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vidknora/vidknora/internal/llm"
	"github.com/vidknora/vidknora/internal/logger"
	"github.com/vidknora/vidknora/internal/types"
)

// extractTopics asks the LLM to name targetTopics topics covering
// sample, retrying once with a strictness reminder if the first
// response doesn't parse, and falling back to keyword-frequency
// topics if no LLM client is configured or both attempts fail (spec
// §4.16). The bool return reports whether the LLM path was used.
func (s *Service) extractTopics(ctx context.Context, rootLabel string, sample []*types.Chunk, targetTopics int) ([]topicNode, bool) {
	if s.llmClient == nil {
		return fallbackTopicsFromKeywords(sample, targetTopics), false
	}

	prompt := buildPrompt(rootLabel, sample, targetTopics)
	resp, err := s.llmClient.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.Options{
		Model:       s.llmModel,
		Temperature: extractionTemperature,
		MaxTokens:   extractionMaxTokens,
		Retry:       true,
	})
	if err == nil {
		if topics, perr := parseTopicsResponse(resp.Content); perr == nil && len(topics) > 0 {
			return topics, true
		}
	} else {
		logger.GetLogger(ctx).Warnf("insights: topic extraction call failed: %v", err)
	}

	strict := prompt + "\n\nReturn ONLY the JSON array described above. Do not include any prose before or after it."
	resp, err = s.llmClient.Complete(ctx, []llm.Message{{Role: "user", Content: strict}}, llm.Options{
		Model:       s.llmModel,
		Temperature: extractionTemperature,
		MaxTokens:   extractionMaxTokens,
		Retry:       false,
	})
	if err == nil {
		if topics, perr := parseTopicsResponse(resp.Content); perr == nil && len(topics) > 0 {
			return topics, true
		}
	}

	logger.GetLogger(ctx).Warnf("insights: topic extraction produced no usable JSON after retry, using keyword fallback")
	return fallbackTopicsFromKeywords(sample, targetTopics), false
}

func buildPrompt(rootLabel string, sample []*types.Chunk, targetTopics int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing transcript excerpts from %q to build a topic map.\n\n", rootLabel)
	b.WriteString("Identify between 5 and 10 distinct topics that organize the content below. ")
	fmt.Fprintf(&b, "Aim for roughly %d topics unless the material clearly calls for more or fewer.\n\n", targetTopics)
	b.WriteString("Excerpts:\n")
	for i, c := range sample {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, truncate(c.Text, 400))
	}
	b.WriteString("\nRespond with a JSON array only, no surrounding prose, matching this shape:\n")
	b.WriteString(`[{"id": "topic-1", "label": "short topic name", "description": "one sentence", "keywords": ["k1", "k2", "k3"]}]`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- 5 to 10 topics, each with a distinct focus (no near-duplicates)\n")
	b.WriteString("- label under 6 words, description under 25 words\n")
	b.WriteString("- keywords: 3 to 6 lowercase terms that would help match excerpts to this topic\n")
	b.WriteString("- ids are short kebab-case slugs, unique within the array\n")
	return b.String()
}

type topicsResponse struct {
	Topics []topicNode `json:"topics"`
}

func parseTopicsResponse(raw string) ([]topicNode, error) {
	var direct []topicNode
	if err := llm.ParseJSONFence(raw, &direct); err == nil && len(direct) > 0 {
		return normalizeTopics(direct), nil
	}

	var wrapped topicsResponse
	if err := llm.ParseJSONFence(raw, &wrapped); err == nil && len(wrapped.Topics) > 0 {
		return normalizeTopics(wrapped.Topics), nil
	}

	return nil, fmt.Errorf("insights: could not parse topics from LLM response")
}

func normalizeTopics(topics []topicNode) []topicNode {
	seen := map[string]bool{}
	out := make([]topicNode, 0, len(topics))
	for i, t := range topics {
		if t.Label == "" {
			continue
		}
		if t.ID == "" {
			t.ID = fmt.Sprintf("topic-%d", i+1)
		}
		for seen[t.ID] {
			t.ID = t.ID + "-dup"
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}

// fallbackTopicsFromKeywords builds deterministic topics from the
// most frequent content tokens across sample when no LLM is available
// or the LLM output can't be parsed (spec §4.16 "fallback to
// keyword-frequency topics").
func fallbackTopicsFromKeywords(sample []*types.Chunk, targetTopics int) []topicNode {
	freq := map[string]int{}
	for _, c := range sample {
		for _, tok := range contentTokens(c.Text) {
			freq[tok]++
		}
	}
	type kv struct {
		token string
		count int
	}
	kvs := make([]kv, 0, len(freq))
	for tok, n := range freq {
		kvs = append(kvs, kv{tok, n})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].count != kvs[j].count {
			return kvs[i].count > kvs[j].count
		}
		return kvs[i].token < kvs[j].token
	})

	n := targetTopics
	if n > len(kvs) {
		n = len(kvs)
	}
	if n == 0 {
		return []topicNode{{ID: "topic-1", Label: "General discussion", Description: "Content that didn't cluster into a more specific topic.", Keywords: nil}}
	}

	topics := make([]topicNode, 0, n)
	keywordsPerTopic := 4
	for i := 0; i < n; i++ {
		start := i * keywordsPerTopic
		if start >= len(kvs) {
			break
		}
		end := start + keywordsPerTopic
		if end > len(kvs) {
			end = len(kvs)
		}
		var keywords []string
		for _, kv := range kvs[start:end] {
			keywords = append(keywords, kv.token)
		}
		label := capitalize(keywords[0])
		topics = append(topics, topicNode{
			ID:          fmt.Sprintf("topic-%d", i+1),
			Label:       label,
			Description: fmt.Sprintf("Content frequently mentioning %s.", strings.Join(keywords, ", ")),
			Keywords:    keywords,
		})
	}
	return topics
}
