package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/vidknora/vidknora/internal/types"
)

func TestParseFactsResponsePlainJSON(t *testing.T) {
	facts, err := parseFactsResponse(`[{"key": "Instructor Name", "value": "Andrew Ng"}, {"key": "topic", "value": "ML"}]`)
	if err != nil {
		t.Fatalf("parseFactsResponse: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(facts))
	}
	if facts[0].Key != "instructor_name" {
		t.Errorf("expected normalized key, got %q", facts[0].Key)
	}
}

func TestParseFactsResponseFencedJSON(t *testing.T) {
	facts, err := parseFactsResponse("```json\n[{\"key\": \"topic\", \"value\": \"ML\"}]\n```")
	if err != nil {
		t.Fatalf("parseFactsResponse: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(facts))
	}
}

func TestParseFactsResponseDropsIncompleteEntries(t *testing.T) {
	facts, err := parseFactsResponse(`[{"key": "topic"}, {"value": "no key"}, {"key": "", "value": ""}]`)
	if err != nil {
		t.Fatalf("parseFactsResponse: %v", err)
	}
	if len(facts) != 0 {
		t.Errorf("expected all incomplete entries dropped, got %d", len(facts))
	}
}

func TestParseFactsResponseInvalidJSONReturnsError(t *testing.T) {
	if _, err := parseFactsResponse("not json at all"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseFactsResponseEmptyArray(t *testing.T) {
	facts, err := parseFactsResponse("[]")
	if err != nil {
		t.Fatalf("parseFactsResponse: %v", err)
	}
	if len(facts) != 0 {
		t.Errorf("expected empty slice, got %d", len(facts))
	}
}

func TestKeySanitizerNormalizesSeparators(t *testing.T) {
	got := keySanitizer.Replace(strings.ToLower("Framework-Used Today"))
	if got != "framework_used_today" {
		t.Errorf("unexpected normalized key: %q", got)
	}
}

func TestBuildExtractionPromptTruncatesLongResponses(t *testing.T) {
	longResponse := strings.Repeat("x", maxResponseChars+500)
	messages := buildExtractionPrompt("question", longResponse)
	if len(messages) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(messages))
	}
	if strings.Contains(messages[1].Content, strings.Repeat("x", maxResponseChars+1)) {
		t.Error("expected assistant response to be truncated")
	}
	if !strings.Contains(messages[1].Content, "...") {
		t.Error("expected truncation marker")
	}
}

func TestExtractorDeduplicateSkipsExistingKeys(t *testing.T) {
	ctx := context.Background()
	repo := newFakeFactRepo(&types.ConversationFact{ID: "existing", ConversationID: "c1", Key: "topic", Value: "ML"})
	e := NewExtractor(nil, "", repo)

	candidates := []*types.ConversationFact{
		{ID: "new1", ConversationID: "c1", Key: "topic", Value: "different value"},
		{ID: "new2", ConversationID: "c1", Key: "instructor", Value: "Andrew Ng"},
	}
	out, err := e.deduplicate(ctx, "c1", candidates)
	if err != nil {
		t.Fatalf("deduplicate: %v", err)
	}
	if len(out) != 1 || out[0].Key != "instructor" {
		t.Errorf("expected only the non-duplicate key to survive, got %+v", out)
	}
}

func TestExtractorDeduplicateSkipsWithinBatchDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := newFakeFactRepo()
	e := NewExtractor(nil, "", repo)

	candidates := []*types.ConversationFact{
		{ID: "a", ConversationID: "c1", Key: "topic", Value: "ML"},
		{ID: "b", ConversationID: "c1", Key: "topic", Value: "AI"},
	}
	out, err := e.deduplicate(ctx, "c1", candidates)
	if err != nil {
		t.Fatalf("deduplicate: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("expected within-batch duplicate key to be skipped, got %d", len(out))
	}
}

func TestExtractNilClientIsNoop(t *testing.T) {
	e := NewExtractor(nil, "", newFakeFactRepo())
	out := e.Extract(context.Background(), "c1", 2, "q", "a")
	if out != nil {
		t.Errorf("expected nil result with no LLM client configured, got %v", out)
	}
}
