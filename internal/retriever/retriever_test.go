package retriever

import (
	"testing"

	"github.com/vidknora/vidknora/internal/types"
	"github.com/vidknora/vidknora/internal/vectorstore"
)

func TestDiversityFactorScalesWithVideoCount(t *testing.T) {
	base := diversityFactor(2, types.ModeSummarize)
	if base != 0.5 {
		t.Errorf("expected base 0.5, got %v", base)
	}
	scaled := diversityFactor(5, types.ModeSummarize)
	if scaled != 0.6 {
		t.Errorf("expected 0.5+2*0.05=0.6, got %v", scaled)
	}
	capped := diversityFactor(20, types.ModeSummarize)
	if capped != maxDiversity {
		t.Errorf("expected cap at %v, got %v", maxDiversity, capped)
	}
}

func TestChunkLimitForScalesAndCaps(t *testing.T) {
	if got := chunkLimitFor(2, types.ModeDeepDive); got != 4 {
		t.Errorf("expected base 4, got %d", got)
	}
	if got := chunkLimitFor(6, types.ModeDeepDive); got != 7 {
		t.Errorf("expected 4+3=7, got %d", got)
	}
	if got := chunkLimitFor(100, types.ModeSummarize); got != maxChunkLimit {
		t.Errorf("expected cap at %d, got %d", maxChunkLimit, got)
	}
}

func TestChunkLimitForUnknownModeDefaults(t *testing.T) {
	if got := chunkLimitFor(1, types.ModeOther); got != defaultChunkLimit {
		t.Errorf("expected default %d, got %d", defaultChunkLimit, got)
	}
}

func TestDeduplicateChunksKeepsOnePerBucket(t *testing.T) {
	chunks := []vectorstore.Result{
		{ID: 1, Payload: vectorstore.Payload{VideoID: "v1", StartTS: 5}},
		{ID: 2, Payload: vectorstore.Payload{VideoID: "v1", StartTS: 12}},
		{ID: 3, Payload: vectorstore.Payload{VideoID: "v1", StartTS: 45}},
		{ID: 4, Payload: vectorstore.Payload{VideoID: "v2", StartTS: 5}},
	}
	out := deduplicateChunks(chunks, 30)
	if len(out) != 3 {
		t.Fatalf("expected 3 deduped results, got %d", len(out))
	}
	ids := map[uint64]bool{}
	for _, r := range out {
		ids[r.ID] = true
	}
	if !ids[1] || ids[2] || !ids[3] || !ids[4] {
		t.Errorf("unexpected dedup survivors: %v", ids)
	}
}

func TestFilterByScoreThreshold(t *testing.T) {
	results := []vectorstore.Result{{Score: 0.9}, {Score: 0.5}, {Score: 0.1}}
	out := filterByScore(results, 0.5)
	if len(out) != 2 {
		t.Errorf("expected 2 results >= 0.5, got %d", len(out))
	}
}

func TestBuildChunkContextEmptyIsFallbackMessage(t *testing.T) {
	got := buildChunkContext(nil, nil, 0.3)
	if got != "No relevant content found in the selected transcripts." {
		t.Errorf("unexpected empty-context message: %q", got)
	}
}

func TestBuildChunkContextPrependsWeakNote(t *testing.T) {
	chunks := []vectorstore.Result{
		{Score: 0.1, Payload: vectorstore.Payload{VideoID: "v1", Text: "hello"}},
	}
	got := buildChunkContext(chunks, map[string]string{"v1": "Talk"}, 0.3)
	if len(got) < len("NOTE:") || got[:5] != "NOTE:" {
		t.Errorf("expected weak-context NOTE prefix, got %q", got)
	}
}

func TestFormatTimeRangeWithoutHours(t *testing.T) {
	got := formatTimeRange(65, 130)
	if got != "01:05 - 02:10" {
		t.Errorf("expected 01:05 - 02:10, got %q", got)
	}
}

func TestFormatTimeRangeWithHours(t *testing.T) {
	got := formatTimeRange(3661, 3725)
	if got != "01:01:01 - 01:02:05" {
		t.Errorf("expected hour-qualified range, got %q", got)
	}
}
