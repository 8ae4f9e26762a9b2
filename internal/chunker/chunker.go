// Package chunker turns a flat list of transcript segments into
// token-bounded, overlap-linked chunks (spec §4.7). It groups segments
// by chapter first (when chapter metadata is available), then within
// each group greedily accumulates segments until a hard limit (max
// tokens, max duration) or a good breaking point (sentence end, speaker
// change) past the target token count is reached.
package chunker

import (
	"regexp"
	"strings"

	"github.com/vidknora/vidknora/internal/config"
	"github.com/vidknora/vidknora/internal/types"
)

var sentenceBoundaryRe = regexp.MustCompile(`[.!?]\s*$`)

// Chunker turns transcript segments into types.Chunk values per a
// fixed token/duration policy.
type Chunker struct {
	cfg config.ChunkerConfig
}

// New constructs a Chunker from the process-wide chunking config.
func New(cfg config.ChunkerConfig) *Chunker {
	return &Chunker{cfg: cfg}
}

// CountTokens estimates token count with the words*1.3 heuristic (no
// model-specific BPE tokenizer is available without an API round
// trip; see DESIGN.md C7).
func CountTokens(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	words := len(strings.Fields(text))
	return int(float64(words) * 1.3)
}

func isSentenceBoundary(text string) bool {
	return sentenceBoundaryRe.MatchString(text)
}

// splitIntoSentences splits on '.', '!', '?' followed by whitespace
// and a capital letter, or end of string; used only to trim overlap
// text to whole sentences.
func splitIntoSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			j := i + 1
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\n') {
				j++
			}
			if j >= len(runes) || (j > i+1 && runes[j] >= 'A' && runes[j] <= 'Z') {
				sentences = append(sentences, strings.TrimSpace(string(runes[start:i+1])))
				start = j
				i = j - 1
			}
		}
	}
	if start < len(runes) {
		tail := strings.TrimSpace(string(runes[start:]))
		if tail != "" {
			sentences = append(sentences, tail)
		}
	}
	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}

// groupSegmentsByChapter buckets segments into one slice per chapter
// by membership in [start_time, end_time); segments outside every
// chapter window are dropped from chapter grouping, and the whole
// transcript falls back to a single group when no chapter claims any
// segment or no chapters are given.
func groupSegmentsByChapter(segments []types.Segment, chapters []types.Chapter) [][]types.Segment {
	if len(chapters) == 0 {
		return [][]types.Segment{segments}
	}

	var grouped [][]types.Segment
	for _, ch := range chapters {
		end := ch.EndTime
		if end <= 0 {
			end = 1e18
		}
		var group []types.Segment
		for _, seg := range segments {
			if seg.Start >= ch.StartTime && seg.Start < end {
				group = append(group, seg)
			}
		}
		if len(group) > 0 {
			grouped = append(grouped, group)
		}
	}
	if len(grouped) == 0 {
		return [][]types.Segment{segments}
	}
	return grouped
}

// Chunk splits segments into chunks, grouping by chapter first and
// adding overlap between consecutive chunks across the whole
// transcript (spec §4.7 `chunk_transcript`).
func (c *Chunker) Chunk(segments []types.Segment, chapters []types.Chapter) []types.Chunk {
	if len(segments) == 0 {
		return nil
	}

	groups := groupSegmentsByChapter(segments, chapters)

	var all []types.Chunk
	nextIndex := 0
	for groupIdx, group := range groups {
		var chapterTitle *string
		var chapterIndex *int
		if groupIdx < len(chapters) {
			title := chapters[groupIdx].Title
			chapterTitle = &title
			idx := groupIdx
			chapterIndex = &idx
		}

		chunks := c.chunkSegmentGroup(group, nextIndex, chapterTitle, chapterIndex)
		all = append(all, chunks...)
		nextIndex += len(chunks)
	}

	return c.addOverlap(all)
}

func (c *Chunker) chunkSegmentGroup(segments []types.Segment, startIndex int, chapterTitle *string, chapterIndex *int) []types.Chunk {
	var chunks []types.Chunk
	var current []types.Segment
	currentTokens := 0
	chunkIdx := startIndex

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		segTokens := CountTokens(text)

		wouldExceedTokens := currentTokens+segTokens > c.cfg.MaxTokens

		wouldExceedDuration := false
		if len(current) > 0 {
			duration := seg.End - current[0].Start
			wouldExceedDuration = c.cfg.MaxDurationSeconds > 0 && duration > c.cfg.MaxDurationSeconds
		}

		speakerChanged := false
		if len(current) > 0 && seg.Speaker != nil && current[len(current)-1].Speaker != nil {
			speakerChanged = *seg.Speaker != *current[len(current)-1].Speaker
		}

		shouldChunk := false
		if wouldExceedTokens || wouldExceedDuration {
			shouldChunk = true
		} else if currentTokens >= c.cfg.TargetTokens && (speakerChanged || isSentenceBoundary(text)) {
			shouldChunk = true
		}

		if shouldChunk && len(current) > 0 {
			if currentTokens >= c.cfg.MinTokens {
				chunks = append(chunks, buildChunk(current, chunkIdx, chapterTitle, chapterIndex))
				chunkIdx++
				current = nil
				currentTokens = 0
			}
		}

		current = append(current, seg)
		currentTokens += segTokens
	}

	if len(current) > 0 {
		if currentTokens >= c.cfg.MinTokens {
			chunks = append(chunks, buildChunk(current, chunkIdx, chapterTitle, chapterIndex))
		} else if len(chunks) > 0 {
			chunks = mergeSmallFinalChunk(chunks, current)
		} else {
			// Not enough segments anywhere in this group to reach
			// min_tokens: keep them as a single undersized chunk
			// rather than dropping the only content for a chapter.
			chunks = append(chunks, buildChunk(current, chunkIdx, chapterTitle, chapterIndex))
		}
	}

	return chunks
}

func buildChunk(segments []types.Segment, chunkIndex int, chapterTitle *string, chapterIndex *int) types.Chunk {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimSpace(seg.Text))
	}
	text := b.String()

	speakerSet := map[string]struct{}{}
	var speakers []string
	for _, seg := range segments {
		if seg.Speaker != nil && *seg.Speaker != "" {
			if _, ok := speakerSet[*seg.Speaker]; !ok {
				speakerSet[*seg.Speaker] = struct{}{}
				speakers = append(speakers, *seg.Speaker)
			}
		}
	}

	chunk := types.Chunk{
		ChunkIndex:   chunkIndex,
		Text:         text,
		TokenCount:   CountTokens(text),
		StartTS:      segments[0].Start,
		EndTS:        segments[len(segments)-1].End,
		ChapterTitle: chapterTitle,
		ChapterIndex: chapterIndex,
	}
	if len(speakers) > 0 {
		chunk.Speakers = speakers
	}
	return chunk
}

// mergeSmallFinalChunk folds leftover segments (too few tokens to
// stand on their own) into the previous chunk rather than dropping
// them or emitting a chunk under min_tokens.
func mergeSmallFinalChunk(chunks []types.Chunk, remaining []types.Segment) []types.Chunk {
	if len(chunks) == 0 || len(remaining) == 0 {
		return chunks
	}
	last := chunks[len(chunks)-1]

	var b strings.Builder
	for _, seg := range remaining {
		b.WriteString(" ")
		b.WriteString(strings.TrimSpace(seg.Text))
	}
	combinedText := last.Text + b.String()

	speakerSet := map[string]struct{}{}
	var speakers []string
	for _, s := range last.Speakers {
		if _, ok := speakerSet[s]; !ok {
			speakerSet[s] = struct{}{}
			speakers = append(speakers, s)
		}
	}
	for _, seg := range remaining {
		if seg.Speaker != nil && *seg.Speaker != "" {
			if _, ok := speakerSet[*seg.Speaker]; !ok {
				speakerSet[*seg.Speaker] = struct{}{}
				speakers = append(speakers, *seg.Speaker)
			}
		}
	}

	last.Text = combinedText
	last.TokenCount = CountTokens(combinedText)
	last.EndTS = remaining[len(remaining)-1].End
	if len(speakers) > 0 {
		last.Speakers = speakers
	}
	chunks[len(chunks)-1] = last
	return chunks
}

// addOverlap prepends the tail of each chunk's text to the next
// chunk, so a reader of chunk i+1 sees the sentence(s) that led into
// it (spec §4.7 `_add_overlap`); the first chunk is left untouched
// and timestamps are never adjusted to match.
func (c *Chunker) addOverlap(chunks []types.Chunk) []types.Chunk {
	if len(chunks) <= 1 {
		return chunks
	}

	out := make([]types.Chunk, len(chunks))
	out[0] = chunks[0]

	for i := 1; i < len(chunks); i++ {
		overlap := extractOverlapText(chunks[i-1].Text, c.cfg.OverlapTokens)
		text := chunks[i].Text
		if overlap != "" {
			text = overlap + " " + text
		}
		next := chunks[i]
		next.Text = text
		next.TokenCount = CountTokens(text)
		out[i] = next
	}
	return out
}

// extractOverlapText returns whole sentences from the tail of text
// totalling no more than targetTokens.
func extractOverlapText(text string, targetTokens int) string {
	sentences := splitIntoSentences(text)
	var picked []string
	tokens := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		st := CountTokens(sentences[i])
		if tokens+st > targetTokens {
			break
		}
		picked = append([]string{sentences[i]}, picked...)
		tokens += st
	}
	return strings.Join(picked, " ")
}
