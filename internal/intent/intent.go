// Package intent classifies a chat query as COVERAGE, PRECISION, or
// HYBRID so the retriever knows whether to fetch video summaries,
// relevant chunks, or both (spec §4.13).
package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/vidknora/vidknora/internal/llm"
	"github.com/vidknora/vidknora/internal/logger"
	"github.com/vidknora/vidknora/internal/types"
)

// confidenceThreshold is the minimum LLM-reported confidence accepted
// before falling back to regex heuristics (spec §4.13).
const confidenceThreshold = 0.7

// Classification is the result of a classify call.
type Classification struct {
	Intent     types.Intent
	Confidence float64
	Reasoning  string
}

// Turn is one prior conversation message, used for follow-up
// inheritance and LLM context.
type Turn struct {
	Role    string
	Content string
}

var (
	coveragePatterns = compileAll(
		`\bsummar(y|ize|ise|izing|ising)\b`,
		`\boverview\b`,
		`\bmain points?\b`,
		`\bkey (points?|takeaways?|themes?|topics?|ideas?)\b`,
		`\bwhat (are|is) (this|these|the) (videos?|transcripts?) about\b`,
		`\bgist\b`,
		`\bhighlights?\b`,
		`\btl;?dr\b`,
		`\bin (short|brief|summary)\b`,
		`\ball (the )?(videos?|sources?|transcripts?)\b`,
		`\bacross (all|the|these)\b`,
		`\beach (video|source|transcript)\b`,
		`\bevery (video|source|transcript)\b`,
		`\bcompare\b.*\b(videos?|sources?|speakers?)\b`,
	)
	precisionPatterns = compileAll(
		`\bwhat did .+ say about\b`,
		`\bwhen did\b`,
		`\bwhere did\b`,
		`\bwho said\b`,
		`\bhow (does|did|do)\b`,
		`\bfind (the|a)?\b`,
		`\bspecific(ally)?\b`,
		`\bexact(ly)?\b`,
		`\bquote\b`,
		`\bclip\b`,
		`\bmoment\b`,
		`\btimestamp\b`,
		`\bpart where\b`,
		`\bsection (about|on|where)\b`,
		`\bwhy (do|did|does|is|are|was|were)\b`,
	)
	hybridPatterns = compileAll(
		`\bsummar(y|ize|ise)\b.*\b(quote|example|evidence)\b`,
		`\b(quote|example|evidence)\b.*\bsummar(y|ize|ise)\b`,
		`\boverview\b.*\b(with|including)\b.*\b(example|quote|evidence)\b`,
		`\bcompare\b.*\b(with|and)\b.*\b(example|quote|evidence)\b`,
	)
	followUpPatterns = compileAll(
		`^tell me more\b`,
		`^expand on that\b`,
		`^go on\b`,
		`^continue\b`,
		`^more detail\b`,
		`^elaborate\b`,
		`^what else\b`,
	)
	switchToCoveragePatterns = compileAll(
		`\bnow (give me|provide) (an )?overview\b`,
		`\bnow summarize\b`,
		`\bswitch to summary\b`,
		`\bgive me the (big picture|overview)\b`,
	)
	switchToPrecisionPatterns = compileAll(
		`\bnow (find|show) (me )?(the )?specific\b`,
		`\bnow tell me exactly\b`,
		`\bget specific\b`,
		`\bwhat specifically\b`,
	)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}

func countMatches(res []*regexp.Regexp, s string) int {
	n := 0
	for _, re := range res {
		if re.MatchString(s) {
			n++
		}
	}
	return n
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Classifier routes a query to COVERAGE/PRECISION/HYBRID, preferring
// LLM classification with conversation-context awareness and falling
// back to regex heuristics when the LLM is unavailable or
// under-confident (spec §4.13).
type Classifier struct {
	client *llm.Client
	model  string
}

// New constructs a Classifier. client may be nil, in which case
// Classify always uses the regex fallback.
func New(client *llm.Client, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

// Classify determines query intent, consulting recentMessages for
// follow-up inheritance and explicit intent-switch phrasing before
// trying the LLM and finally the regex fallback (spec §4.13).
func (c *Classifier) Classify(ctx context.Context, query string, mode types.QueryMode, numVideos int, recentMessages []Turn, facts []string) Classification {
	trimmed := strings.ToLower(strings.TrimSpace(query))

	if len(recentMessages) > 0 && anyMatch(followUpPatterns, trimmed) {
		if prev, ok := c.inferPreviousIntent(recentMessages); ok {
			return Classification{Intent: prev, Confidence: 0.75, Reasoning: "Follow-up query, continuing previous intent"}
		}
	}

	if switched, ok := c.checkIntentSwitch(trimmed); ok {
		return switched
	}

	if c.client != nil {
		if result, ok := c.classifyWithLLM(ctx, query, mode, numVideos, recentMessages, facts); ok && result.Confidence >= confidenceThreshold {
			return result
		}
		logger.GetLogger(ctx).Infof("intent: LLM classification unavailable or under-confident, using regex fallback")
	}

	return classifyWithRegex(query, mode, numVideos)
}

func (c *Classifier) inferPreviousIntent(recentMessages []Turn) (types.Intent, bool) {
	for i := len(recentMessages) - 1; i >= 0; i-- {
		msg := recentMessages[i]
		if msg.Role != "user" {
			continue
		}
		result := classifyWithRegex(msg.Content, types.ModeOther, 1)
		if result.Confidence >= 0.6 {
			return result.Intent, true
		}
	}
	return "", false
}

func (c *Classifier) checkIntentSwitch(queryLower string) (Classification, bool) {
	if anyMatch(switchToCoveragePatterns, queryLower) {
		return Classification{Intent: types.IntentCoverage, Confidence: 0.85, Reasoning: "Explicit switch to coverage/overview mode"}, true
	}
	if anyMatch(switchToPrecisionPatterns, queryLower) {
		return Classification{Intent: types.IntentPrecision, Confidence: 0.85, Reasoning: "Explicit switch to precision/specific mode"}, true
	}
	return Classification{}, false
}

type llmIntentJSON struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (c *Classifier) classifyWithLLM(ctx context.Context, query string, mode types.QueryMode, numVideos int, recentMessages []Turn, facts []string) (Classification, bool) {
	prompt := buildLLMPrompt(query, mode, numVideos, recentMessages, facts)

	resp, err := c.client.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.Options{
		Model:       c.model,
		Temperature: 0.2,
		MaxTokens:   150,
		Retry:       true,
	})
	if err != nil {
		logger.GetLogger(ctx).Warnf("intent: LLM classification failed: %v", err)
		return Classification{}, false
	}

	var parsed llmIntentJSON
	if err := llm.ParseJSONFence(resp.Content, &parsed); err != nil {
		logger.GetLogger(ctx).Warnf("intent: failed to parse LLM response: %v", err)
		return Classification{Intent: types.IntentPrecision, Confidence: 0.3, Reasoning: "Failed to parse LLM response"}, true
	}

	intent := types.Intent(strings.ToUpper(parsed.Intent))
	switch intent {
	case types.IntentCoverage, types.IntentPrecision, types.IntentHybrid:
	default:
		intent = types.IntentPrecision
	}
	return Classification{Intent: intent, Confidence: parsed.Confidence, Reasoning: parsed.Reasoning}, true
}

func buildLLMPrompt(query string, mode types.QueryMode, numVideos int, recentMessages []Turn, facts []string) string {
	var ctxParts []string
	if len(recentMessages) > 0 {
		ctxParts = append(ctxParts, "Recent conversation:")
		start := 0
		if len(recentMessages) > 3 {
			start = len(recentMessages) - 3
		}
		for _, msg := range recentMessages[start:] {
			content := msg.Content
			if len(content) > 200 {
				content = content[:200]
			}
			ctxParts = append(ctxParts, fmt.Sprintf("- %s: %s...", capitalize(msg.Role), content))
		}
	}
	if len(facts) > 0 {
		ctxParts = append(ctxParts, "\nExtracted facts (for long conversations):")
		n := len(facts)
		if n > 5 {
			n = 5
		}
		for _, f := range facts[:n] {
			ctxParts = append(ctxParts, "- "+f)
		}
	}
	conversationContext := "No prior context."
	if len(ctxParts) > 0 {
		conversationContext = strings.Join(ctxParts, "\n")
	}

	return fmt.Sprintf(`Classify the user's query as COVERAGE, PRECISION, or HYBRID.

COVERAGE: User wants an overview, summary, or comparison across ALL videos.
Examples: "summarize these videos", "what are the main themes?", "compare the speakers"

PRECISION: User wants specific information, quotes, or details from relevant videos only.
Examples: "why do schools kill creativity?", "what did Ken Robinson say about mistakes?"

HYBRID: User wants both overview AND specific evidence/examples.
Examples: "summarize and give me key quotes", "what themes are covered with examples?"

## Conversation Context
%s

## Current Query
Query: %q
Number of videos: %d
Mode: %s

## Instructions
- Consider the conversation context when classifying
- "Tell me more" or "expand on that" -> Use previous query's intent
- "Now summarize" or "give me an overview" -> COVERAGE (regardless of previous)
- "Why" questions seeking specific explanations -> PRECISION (not COVERAGE)
- If query is ambiguous and no context helps, use lower confidence

Output JSON only:
{"intent": "COVERAGE" or "PRECISION" or "HYBRID", "confidence": 0.0-1.0, "reasoning": "brief explanation"}`,
		conversationContext, query, numVideos, mode)
}

// classifyWithRegex is the LLM-free fallback: pattern match counts
// with mode as a final tiebreaker (spec §4.13).
func classifyWithRegex(query string, mode types.QueryMode, numVideos int) Classification {
	lower := strings.ToLower(query)

	coverageMatches := countMatches(coveragePatterns, lower)
	precisionMatches := countMatches(precisionPatterns, lower)
	hybridMatches := countMatches(hybridPatterns, lower)

	if hybridMatches > 0 {
		return Classification{
			Intent:     types.IntentHybrid,
			Confidence: minFloat(0.85, 0.6+float64(hybridMatches)*0.15),
			Reasoning:  fmt.Sprintf("Hybrid patterns matched (%d)", hybridMatches),
		}
	}

	if coverageMatches > 0 && precisionMatches == 0 {
		return Classification{
			Intent:     types.IntentCoverage,
			Confidence: minFloat(0.85, 0.5+float64(coverageMatches)*0.15),
			Reasoning:  fmt.Sprintf("Coverage patterns matched (%d)", coverageMatches),
		}
	}

	if precisionMatches > 0 && coverageMatches == 0 {
		return Classification{
			Intent:     types.IntentPrecision,
			Confidence: minFloat(0.85, 0.5+float64(precisionMatches)*0.15),
			Reasoning:  fmt.Sprintf("Precision patterns matched (%d)", precisionMatches),
		}
	}

	if coverageMatches > 0 && precisionMatches > 0 {
		return Classification{
			Intent:     types.IntentHybrid,
			Confidence: 0.6,
			Reasoning:  fmt.Sprintf("Mixed signals (coverage=%d, precision=%d)", coverageMatches, precisionMatches),
		}
	}

	modePrefersCoverage := mode == types.ModeSummarize || mode == types.ModeCompareSources
	modePrefersPrecision := mode == types.ModeDeepDive || mode == types.ModeExtractActions

	if modePrefersCoverage && numVideos > 1 {
		return Classification{Intent: types.IntentCoverage, Confidence: 0.5, Reasoning: fmt.Sprintf("Mode fallback (%s with %d videos)", mode, numVideos)}
	}
	if modePrefersPrecision {
		return Classification{Intent: types.IntentPrecision, Confidence: 0.5, Reasoning: fmt.Sprintf("Mode fallback (%s)", mode)}
	}

	return Classification{Intent: types.IntentPrecision, Confidence: 0.4, Reasoning: "Default to precision (no clear signals)"}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
