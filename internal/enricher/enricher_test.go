package enricher

import (
	"context"
	"testing"

	"github.com/vidknora/vidknora/internal/config"
	"github.com/vidknora/vidknora/internal/types"
)

func TestFallbackEnrichmentShortTitle(t *testing.T) {
	chunk := types.Chunk{Text: "Short text."}
	e := fallbackEnrichment(chunk)
	if e.Title == "" {
		t.Error("expected non-empty fallback title")
	}
	if e.Summary == "" {
		t.Error("expected non-empty fallback summary")
	}
}

func TestFallbackEnrichmentTruncatesLongTitle(t *testing.T) {
	long := "This is a very long first sentence that definitely exceeds fifty characters in length for sure"
	chunk := types.Chunk{Text: long + ". Second sentence here."}
	e := fallbackEnrichment(chunk)
	if len(e.Title) > 53 {
		t.Errorf("expected truncated title, got length %d: %q", len(e.Title), e.Title)
	}
}

func TestFallbackEnrichmentExtractsKeywords(t *testing.T) {
	chunk := types.Chunk{Text: "database database database indexing indexing performance performance performance performance"}
	e := fallbackEnrichment(chunk)
	if len(e.Keywords) == 0 {
		t.Fatal("expected keywords extracted")
	}
	if e.Keywords[0] != "performance" {
		t.Errorf("expected most frequent word first, got %q", e.Keywords[0])
	}
}

func TestFallbackEnrichmentSkipsStopwordsAndShortWords(t *testing.T) {
	chunk := types.Chunk{Text: "the a an and or but database indexing"}
	e := fallbackEnrichment(chunk)
	for _, k := range e.Keywords {
		if _, isStop := stopwords[k]; isStop {
			t.Errorf("expected stopword excluded, found %q", k)
		}
		if len(k) <= 3 {
			t.Errorf("expected short words excluded, found %q", k)
		}
	}
}

func TestEnrichChunkDisabledUsesFallback(t *testing.T) {
	e := New(nil, config.EnrichmentConfig{Enabled: false}, "", "")
	chunk := types.Chunk{Text: "Some transcript content about databases."}
	got := e.EnrichChunk(context.Background(), chunk)
	if got.Title == "" {
		t.Error("expected fallback title when enrichment disabled")
	}
}

func TestEnrichBatchDisabledReturnsAllFallbacks(t *testing.T) {
	e := New(nil, config.EnrichmentConfig{Enabled: false, BatchSize: 2}, "", "")
	chunks := []types.Chunk{
		{Text: "First chunk about topic one."},
		{Text: "Second chunk about topic two."},
		{Text: "Third chunk about topic three."},
	}
	out := e.EnrichBatch(context.Background(), chunks)
	if len(out) != 3 {
		t.Fatalf("expected 3 enrichments, got %d", len(out))
	}
}
