package intent

import (
	"context"
	"testing"

	"github.com/vidknora/vidknora/internal/types"
)

func TestClassifyRegexCoverage(t *testing.T) {
	c := New(nil, "")
	result := c.Classify(context.Background(), "can you summarize the key themes across all videos?", types.ModeOther, 3, nil, nil)
	if result.Intent != types.IntentCoverage {
		t.Errorf("expected COVERAGE, got %v (%s)", result.Intent, result.Reasoning)
	}
}

func TestClassifyRegexPrecision(t *testing.T) {
	c := New(nil, "")
	result := c.Classify(context.Background(), "what did the speaker say about creativity specifically?", types.ModeOther, 1, nil, nil)
	if result.Intent != types.IntentPrecision {
		t.Errorf("expected PRECISION, got %v (%s)", result.Intent, result.Reasoning)
	}
}

func TestClassifyRegexHybrid(t *testing.T) {
	c := New(nil, "")
	result := c.Classify(context.Background(), "summarize this with some quotes as evidence", types.ModeOther, 2, nil, nil)
	if result.Intent != types.IntentHybrid {
		t.Errorf("expected HYBRID, got %v (%s)", result.Intent, result.Reasoning)
	}
}

func TestClassifyFollowUpInheritsPreviousIntent(t *testing.T) {
	c := New(nil, "")
	recent := []Turn{
		{Role: "user", Content: "give me the key themes across all videos"},
		{Role: "assistant", Content: "..."},
	}
	result := c.Classify(context.Background(), "tell me more", types.ModeOther, 2, recent, nil)
	if result.Intent != types.IntentCoverage {
		t.Errorf("expected inherited COVERAGE, got %v (%s)", result.Intent, result.Reasoning)
	}
}

func TestClassifyExplicitSwitchToPrecision(t *testing.T) {
	c := New(nil, "")
	result := c.Classify(context.Background(), "now find me the specific part where he talks about failure", types.ModeOther, 1, nil, nil)
	if result.Intent != types.IntentPrecision {
		t.Errorf("expected PRECISION switch, got %v", result.Intent)
	}
	if result.Confidence != 0.85 {
		t.Errorf("expected confidence 0.85, got %v", result.Confidence)
	}
}

func TestClassifyModeFallbackDefaultsToPrecision(t *testing.T) {
	c := New(nil, "")
	result := c.Classify(context.Background(), "hmm okay", types.ModeOther, 1, nil, nil)
	if result.Intent != types.IntentPrecision {
		t.Errorf("expected default PRECISION, got %v", result.Intent)
	}
	if result.Confidence != 0.4 {
		t.Errorf("expected default confidence 0.4, got %v", result.Confidence)
	}
}

func TestClassifyModeFallbackPrefersCoverageForMultiVideoSummarize(t *testing.T) {
	c := New(nil, "")
	result := c.Classify(context.Background(), "hmm okay", types.ModeSummarize, 3, nil, nil)
	if result.Intent != types.IntentCoverage {
		t.Errorf("expected COVERAGE mode fallback, got %v", result.Intent)
	}
}
