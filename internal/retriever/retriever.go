// Package retriever implements the C14 two-level retriever: it routes
// a classified query intent to a video-summary read, a diversity
// vector search, or both, then assembles the formatted context string
// an LLM turn is grounded on (spec §4.14).
package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/vidknora/vidknora/internal/config"
	"github.com/vidknora/vidknora/internal/rerank"
	"github.com/vidknora/vidknora/internal/repository"
	"github.com/vidknora/vidknora/internal/types"
	"github.com/vidknora/vidknora/internal/vectorstore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const mmrPrefetchLimit = 100

var baseChunkLimits = map[types.QueryMode]int{
	types.ModeSummarize:     6,
	types.ModeCompareSources: 8,
	types.ModeDeepDive:      4,
	types.ModeTimeline:      6,
	types.ModeExtractActions: 5,
	types.ModeQuizMe:        6,
}

var modeDiversity = map[types.QueryMode]float64{
	types.ModeSummarize:     0.5,
	types.ModeCompareSources: 0.6,
	types.ModeDeepDive:      0.3,
	types.ModeTimeline:      0.5,
	types.ModeExtractActions: 0.4,
	types.ModeQuizMe:        0.5,
}

const (
	defaultDiversity  = 0.4
	maxDiversity      = 0.7
	defaultChunkLimit = 4
	maxChunkLimit     = 12
)

// VideoSummary is one coverage-path source.
type VideoSummary struct {
	VideoID     string
	Title       string
	ChannelName string
	Summary     string
	KeyTopics   []string
}

// Result is what a retrieval call hands back to the query pipeline.
type Result struct {
	Chunks                []vectorstore.Result
	VideoSummaries        []VideoSummary
	RetrievalType         types.RetrievalType
	Context               string
	VideosMissingSummaries int
	Stats                 map[string]any
}

// Retriever is the C14 operation set.
type Retriever struct {
	videos  repository.VideoRepository
	index   *vectorstore.Index
	rerank  rerank.Reranker
	cfg     config.RetrievalConfig
	tracer  trace.Tracer
}

// New constructs a Retriever. rerankClient may be nil, in which case
// reranking is skipped regardless of cfg.EnableReranking.
func New(videos repository.VideoRepository, index *vectorstore.Index, rerankClient rerank.Reranker, cfg config.RetrievalConfig) *Retriever {
	return &Retriever{videos: videos, index: index, rerank: rerankClient, cfg: cfg, tracer: otel.Tracer("internal/retriever")}
}

// Retrieve routes to the coverage, precision, or hybrid path per
// intent, and assembles the resulting context string (spec §4.14).
// userID scopes both the coverage video lookup and the
// precision/hybrid vector search.
func (r *Retriever) Retrieve(ctx context.Context, query string, qEmbedding []float32, intent types.Intent, videoIDs []string, userID string, mode types.QueryMode) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "retrieve", trace.WithAttributes(
		attribute.String("intent", string(intent)),
		attribute.String("mode", string(mode)),
		attribute.Int("num_videos", len(videoIDs)),
	))
	defer span.End()

	switch intent {
	case types.IntentCoverage:
		return r.coverage(ctx, videoIDs, userID)
	case types.IntentPrecision:
		return r.precision(ctx, query, qEmbedding, videoIDs, userID, mode)
	default:
		return r.hybrid(ctx, query, qEmbedding, videoIDs, userID, mode)
	}
}

func (r *Retriever) coverage(ctx context.Context, videoIDs []string, userID string) (Result, error) {
	videos, err := r.videos.ListByIDs(ctx, userID, videoIDs, 50)
	if err != nil {
		return Result{}, fmt.Errorf("coverage: list videos: %w", err)
	}

	var summaries []VideoSummary
	var parts []string
	missing := 0

	for i, v := range videos {
		if v.Summary == "" {
			missing++
			continue
		}
		summaries = append(summaries, VideoSummary{
			VideoID:     v.ID,
			Title:       v.Title,
			ChannelName: v.Metadata.Channel,
			Summary:     v.Summary,
			KeyTopics:   v.KeyTopics,
		})

		topics := ""
		if len(v.KeyTopics) > 0 {
			top := v.KeyTopics
			if len(top) > 5 {
				top = top[:5]
			}
			topics = "\nKey Topics: " + strings.Join(top, ", ")
		}
		channel := v.Metadata.Channel
		if channel == "" {
			channel = "Unknown"
		}
		parts = append(parts, fmt.Sprintf("[Source %d] %q\nChannel: %s%s\n---\n%s\n", i+1, v.Title, channel, topics, v.Summary))
	}

	var context string
	if len(parts) == 0 {
		context = "No video summaries available. Please process videos first."
	} else {
		context = strings.Join(parts, "\n---\n")
		if missing > 0 {
			context = fmt.Sprintf("NOTE: %d video(s) don't have summaries yet.\n\n%s", missing, context)
		}
	}

	return Result{
		VideoSummaries:        summaries,
		RetrievalType:         types.RetrievalTypeSummaries,
		Context:               context,
		VideosMissingSummaries: missing,
		Stats: map[string]any{
			"videos_requested": len(videoIDs),
			"summaries_found":  len(summaries),
			"summaries_missing": missing,
		},
	}, nil
}

func (r *Retriever) precision(ctx context.Context, query string, qEmbedding []float32, videoIDs []string, userID string, mode types.QueryMode) (Result, error) {
	numVideos := len(videoIDs)
	diversity := diversityFactor(numVideos, mode)
	chunkLimit := chunkLimitFor(numVideos, mode)

	chunks, stats, err := r.searchAndFilter(ctx, query, qEmbedding, videoIDs, userID, diversity, chunkLimit)
	if err != nil {
		return Result{}, err
	}

	titles, err := r.videoTitles(ctx, userID, chunks)
	if err != nil {
		return Result{}, err
	}
	context := buildChunkContext(chunks, titles, r.cfg.WeakContextThreshold)

	stats["diversity"] = diversity
	stats["chunk_limit"] = chunkLimit
	stats["unique_videos"] = countUniqueVideos(chunks)

	return Result{
		Chunks:        chunks,
		RetrievalType: types.RetrievalTypeChunks,
		Context:       context,
		Stats:         stats,
	}, nil
}

func (r *Retriever) hybrid(ctx context.Context, query string, qEmbedding []float32, videoIDs []string, userID string, mode types.QueryMode) (Result, error) {
	numVideos := len(videoIDs)
	coverageResult, err := r.coverage(ctx, videoIDs, userID)
	if err != nil {
		return Result{}, err
	}

	diversity := diversityFactor(numVideos, mode)
	chunkLimit := chunkLimitFor(numVideos, mode) / 2
	if chunkLimit < 3 {
		chunkLimit = 3
	}

	chunks, stats, err := r.searchAndFilter(ctx, query, qEmbedding, videoIDs, userID, diversity, chunkLimit)
	if err != nil {
		return Result{}, err
	}
	titles, err := r.videoTitles(ctx, userID, chunks)
	if err != nil {
		return Result{}, err
	}
	chunkContext := buildChunkContext(chunks, titles, r.cfg.WeakContextThreshold)

	combined := fmt.Sprintf("## Video Summaries (Overview)\n\n%s\n\n## Supporting Evidence (Specific Quotes)\n\n%s",
		coverageResult.Context, chunkContext)

	stats["summaries_found"] = len(coverageResult.VideoSummaries)
	stats["chunks_found"] = len(chunks)
	stats["hybrid_mode"] = true

	return Result{
		Chunks:                chunks,
		VideoSummaries:        coverageResult.VideoSummaries,
		RetrievalType:         types.RetrievalTypeHybrid,
		Context:               combined,
		VideosMissingSummaries: coverageResult.VideosMissingSummaries,
		Stats:                 stats,
	}, nil
}

// searchAndFilter runs the shared diversity-search → threshold-filter
// → rerank → 30-second-bucket dedup pipeline used by both precision
// and hybrid (spec §4.14).
func (r *Retriever) searchAndFilter(ctx context.Context, query string, qEmbedding []float32, videoIDs []string, userID string, diversity float64, chunkLimit int) ([]vectorstore.Result, map[string]any, error) {
	filter := vectorstore.Filter{UserID: userID, VideoIDs: videoIDs}
	candidates, err := r.index.SearchWithDiversity(ctx, qEmbedding, filter, r.cfg.TopK, diversity, mmrPrefetchLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("diversity search: %w", err)
	}

	filtered := filterByScore(candidates, float32(r.cfg.MinRelevanceScore))
	usedFallback := false
	if len(filtered) == 0 {
		filtered = filterByScore(candidates, float32(r.cfg.FallbackRelevanceScore))
		usedFallback = true
	}

	if r.cfg.EnableReranking && r.rerank != nil && len(filtered) > 0 {
		filtered, err = r.applyRerank(ctx, query, filtered)
		if err != nil {
			return nil, nil, fmt.Errorf("rerank: %w", err)
		}
	}

	deduped := deduplicateChunks(filtered, 30)
	if len(deduped) > chunkLimit {
		deduped = deduped[:chunkLimit]
	}

	stats := map[string]any{
		"candidates":    len(candidates),
		"filtered":      len(filtered),
		"deduped":       len(deduped),
		"used":          len(deduped),
		"used_fallback": usedFallback,
	}
	return deduped, stats, nil
}

// applyRerank reassigns scores via the cross-encoder and re-sorts,
// keeping the original relevance order if reranking degrades to
// identity (spec §4.4).
func (r *Retriever) applyRerank(ctx context.Context, query string, results []vectorstore.Result) ([]vectorstore.Result, error) {
	candidates := make([]rerank.Candidate, len(results))
	byID := make(map[string]vectorstore.Result, len(results))
	for i, res := range results {
		id := fmt.Sprintf("%d", res.ID)
		text := res.Payload.Text
		if res.Payload.Title != "" {
			text = res.Payload.Title + ". " + text
		}
		if res.Payload.Summary != "" {
			text += "\n" + res.Payload.Summary
		}
		candidates[i] = rerank.Candidate{ID: id, Text: text, Score: float64(res.Score)}
		byID[id] = res
	}

	k := r.cfg.RerankingTopK
	if k <= 0 || k > len(candidates) {
		k = len(candidates)
	}
	reranked, err := r.rerank.Rerank(ctx, query, candidates, k)
	if err != nil {
		return results, nil
	}

	out := make([]vectorstore.Result, 0, len(reranked))
	for _, c := range reranked {
		res, ok := byID[c.ID]
		if !ok {
			continue
		}
		res.Score = float32(c.Score)
		out = append(out, res)
	}
	return out, nil
}

// videoTitles resolves the display title for each video a chunk
// result belongs to, for the `[Source i] from "<title>"` context line
// (spec §4.14) — the vector payload itself only carries video_id.
func (r *Retriever) videoTitles(ctx context.Context, userID string, chunks []vectorstore.Result) (map[string]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	ids := countUniqueVideoIDs(chunks)
	videos, err := r.videos.ListByIDs(ctx, userID, ids, len(ids))
	if err != nil {
		return nil, fmt.Errorf("lookup video titles: %w", err)
	}
	titles := make(map[string]string, len(videos))
	for _, v := range videos {
		titles[v.ID] = v.Title
	}
	return titles, nil
}

func countUniqueVideoIDs(results []vectorstore.Result) []string {
	seen := map[string]bool{}
	var ids []string
	for _, r := range results {
		if !seen[r.Payload.VideoID] {
			seen[r.Payload.VideoID] = true
			ids = append(ids, r.Payload.VideoID)
		}
	}
	return ids
}

func filterByScore(results []vectorstore.Result, threshold float32) []vectorstore.Result {
	out := make([]vectorstore.Result, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			out = append(out, r)
		}
	}
	return out
}

// deduplicateChunks keeps at most one chunk per (video_id,
// ⌊start_ts/bucketSeconds⌋) bucket, preserving input (score) order
// (spec §4.14, §8 property 8).
func deduplicateChunks(results []vectorstore.Result, bucketSeconds int) []vectorstore.Result {
	type key struct {
		videoID string
		bucket  int
	}
	seen := make(map[key]bool, len(results))
	out := make([]vectorstore.Result, 0, len(results))
	for _, r := range results {
		k := key{videoID: r.Payload.VideoID, bucket: int(r.Payload.StartTS) / bucketSeconds}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

func countUniqueVideos(results []vectorstore.Result) int {
	seen := map[string]bool{}
	for _, r := range results {
		seen[r.Payload.VideoID] = true
	}
	return len(seen)
}

func diversityFactor(numVideos int, mode types.QueryMode) float64 {
	base, ok := modeDiversity[mode]
	if !ok {
		base = defaultDiversity
	}
	if numVideos > 3 {
		base = min64(base+float64(numVideos-3)*0.05, maxDiversity)
	}
	return base
}

func chunkLimitFor(numVideos int, mode types.QueryMode) int {
	base, ok := baseChunkLimits[mode]
	if !ok {
		base = defaultChunkLimit
	}
	if numVideos > 3 {
		limit := base + (numVideos - 3)
		if limit > maxChunkLimit {
			limit = maxChunkLimit
		}
		return limit
	}
	return base
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// buildChunkContext formats chunks into the `[Source i]` layout with
// timestamps, speaker, topic, and relevance, prepending a low-relevance
// NOTE when the best hit is still weak (spec §4.14).
func buildChunkContext(chunks []vectorstore.Result, titles map[string]string, weakThreshold float64) string {
	if len(chunks) == 0 {
		return "No relevant content found in the selected transcripts."
	}

	parts := make([]string, 0, len(chunks))
	var maxScore float32
	for i, c := range chunks {
		if c.Score > maxScore {
			maxScore = c.Score
		}
		videoTitle := titles[c.Payload.VideoID]
		if videoTitle == "" {
			videoTitle = "Unknown Video"
		}
		speaker := "Unknown"
		if len(c.Payload.Speakers) > 0 {
			speaker = c.Payload.Speakers[0]
		}
		topic := c.Payload.ChapterTitle
		if topic == "" {
			topic = c.Payload.Title
		}
		if topic == "" {
			topic = "General"
		}
		timestamp := formatTimeRange(c.Payload.StartTS, c.Payload.EndTS)
		parts = append(parts, fmt.Sprintf(
			"[Source %d] from %q\nSpeaker: %s\nTopic: %s\nTime: %s\nRelevance: %.0f%%\n---\n%s\n",
			i+1, videoTitle, speaker, topic, timestamp, float64(c.Score)*100, c.Payload.Text,
		))
	}

	context := strings.Join(parts, "\n---\n")
	if float64(maxScore) < weakThreshold {
		context = fmt.Sprintf("NOTE: Retrieved context has low relevance (max %.0f%%). The response may be speculative.\n\n%s",
			float64(maxScore)*100, context)
	}
	return context
}

func formatTimeRange(startTS, endTS float64) string {
	startH, startM, startS := splitHMS(startTS)
	endH, endM, endS := splitHMS(endTS)
	if startH > 0 || endH > 0 {
		return fmt.Sprintf("%02d:%02d:%02d - %02d:%02d:%02d", startH, startM, startS, endH, endM, endS)
	}
	return fmt.Sprintf("%02d:%02d - %02d:%02d", startM, startS, endM, endS)
}

func splitHMS(seconds float64) (h, m, s int) {
	total := int(seconds)
	h = total / 3600
	m = (total % 3600) / 60
	s = total % 60
	return
}
