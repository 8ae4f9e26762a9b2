package chunker

import (
	"strings"
	"testing"

	"github.com/vidknora/vidknora/internal/config"
	"github.com/vidknora/vidknora/internal/types"
)

func testConfig() config.ChunkerConfig {
	return config.ChunkerConfig{
		TargetTokens:       20,
		MinTokens:          5,
		MaxTokens:          40,
		OverlapTokens:      5,
		MaxDurationSeconds: 60,
	}
}

func seg(start, end float64, text string) types.Segment {
	return types.Segment{Start: start, End: end, Text: text}
}

func TestChunkEmptyInput(t *testing.T) {
	c := New(testConfig())
	if got := c.Chunk(nil, nil); got != nil {
		t.Errorf("expected nil for empty segments, got %v", got)
	}
}

func TestChunkRespectsMaxTokens(t *testing.T) {
	c := New(config.ChunkerConfig{TargetTokens: 1000, MinTokens: 1, MaxTokens: 10, OverlapTokens: 0, MaxDurationSeconds: 1000})
	segs := []types.Segment{
		seg(0, 1, strings.Repeat("word ", 20)),
		seg(1, 2, strings.Repeat("word ", 20)),
	}
	chunks := c.Chunk(segs, nil)
	for _, ch := range chunks {
		if ch.TokenCount > int(float64(10)*1.2)+1 {
			t.Errorf("chunk exceeds max tokens: %d", ch.TokenCount)
		}
	}
}

func TestChunkSplitsOnMaxDuration(t *testing.T) {
	c := New(config.ChunkerConfig{TargetTokens: 1000, MinTokens: 1, MaxTokens: 10000, OverlapTokens: 0, MaxDurationSeconds: 5})
	segs := []types.Segment{
		seg(0, 1, "one"),
		seg(1, 2, "two"),
		seg(10, 11, "three"),
		seg(11, 12, "four"),
	}
	chunks := c.Chunk(segs, nil)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks split by duration, got %d", len(chunks))
	}
}

func TestChunkGroupsByChapter(t *testing.T) {
	c := New(testConfig())
	segs := []types.Segment{
		seg(0, 10, "intro segment with enough words to count as real content here"),
		seg(60, 70, "second chapter segment with enough words to count as real content too"),
	}
	chapters := []types.Chapter{
		{Title: "Intro", StartTime: 0, EndTime: 30},
		{Title: "Body", StartTime: 30, EndTime: 120},
	}
	chunks := c.Chunk(segs, chapters)
	if len(chunks) != 2 {
		t.Fatalf("expected one chunk per chapter, got %d", len(chunks))
	}
	if chunks[0].ChapterTitle == nil || *chunks[0].ChapterTitle != "Intro" {
		t.Errorf("expected first chunk chapter Intro, got %v", chunks[0].ChapterTitle)
	}
	if chunks[1].ChapterTitle == nil || *chunks[1].ChapterTitle != "Body" {
		t.Errorf("expected second chunk chapter Body, got %v", chunks[1].ChapterTitle)
	}
}

func TestChunkAddsOverlapExceptFirst(t *testing.T) {
	c := New(config.ChunkerConfig{TargetTokens: 5, MinTokens: 1, MaxTokens: 8, OverlapTokens: 5, MaxDurationSeconds: 1000})
	segs := []types.Segment{
		seg(0, 1, "This is sentence one."),
		seg(1, 2, "This is sentence two."),
		seg(2, 3, "This is sentence three."),
		seg(3, 4, "This is sentence four."),
	}
	chunks := c.Chunk(segs, nil)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		if !strings.Contains(chunks[i].Text, "sentence") {
			t.Errorf("chunk %d missing overlap content: %q", i, chunks[i].Text)
		}
	}
}

func TestChunkMergesUndersizedFinalChunk(t *testing.T) {
	c := New(config.ChunkerConfig{TargetTokens: 3, MinTokens: 10, MaxTokens: 100, OverlapTokens: 0, MaxDurationSeconds: 1000})
	segs := []types.Segment{
		seg(0, 1, strings.Repeat("word ", 20)),
		seg(1, 2, "tiny tail"),
	}
	chunks := c.Chunk(segs, nil)
	if len(chunks) != 1 {
		t.Fatalf("expected undersized tail merged into previous chunk, got %d chunks", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "tiny tail") {
		t.Errorf("expected merged chunk to contain tail text, got %q", chunks[0].Text)
	}
}

func TestCountTokensEmptyString(t *testing.T) {
	if got := CountTokens(""); got != 0 {
		t.Errorf("expected 0 tokens for empty string, got %d", got)
	}
}

func TestIsSentenceBoundary(t *testing.T) {
	if !isSentenceBoundary("Hello world.") {
		t.Error("expected sentence boundary detected")
	}
	if isSentenceBoundary("Hello world") {
		t.Error("expected no sentence boundary")
	}
}
