package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/vidknora/vidknora/internal/apperrors"
	"github.com/vidknora/vidknora/internal/caption"
	"github.com/vidknora/vidknora/internal/logger"
	"github.com/vidknora/vidknora/internal/types"
	"github.com/vidknora/vidknora/internal/vectorstore"
)

// Stage backoff intervals mirror the original Celery tasks' retry
// countdowns (spec §4.10). Tests that exercise a real retry override
// these package vars to avoid sleeping wall-clock minutes.
var (
	downloadRetryInterval   = 60 * time.Second
	transcribeRetryInterval = 120 * time.Second
	upsertRetryInterval     = 60 * time.Second
)

// runTranscriptionStage tries the caption fast path first (1-4s, no
// audio download or Whisper needed) and falls back to audio download
// + Whisper transcription when no usable captions exist (spec §4.6,
// §4.10 "caption-first optimization").
func (o *Orchestrator) runTranscriptionStage(ctx context.Context, video *types.Video, user *types.User) (transcript types.Transcript, source types.TranscriptSource, err error) {
	ctx, end := o.startSpan(ctx, "transcribe", video)
	defer func() { end(err) }()

	capTranscript, capErr := o.deps.Captions.GetCaptions(ctx, video.SourceURL, o.deps.PreferredCaptionLangs)
	if capErr == nil && capTranscript != nil && len(capTranscript.Segments) > 0 {
		transcript = convertCaptionTranscript(*capTranscript)
		o.setProgress(ctx, video, types.VideoStatusTranscribing, progressDownloading, "")
		if perr := o.persistTranscript(ctx, video, transcript); perr != nil {
			return types.Transcript{}, "", perr
		}
		return transcript, types.TranscriptSourceCaptions, nil
	}
	logger.GetLogger(ctx).Infof("no usable captions for video=%s, falling back to whisper", video.ID)

	if o.deps.Transcriber == nil {
		return types.Transcript{}, "", fmt.Errorf("no captions available and no whisper transcriber configured")
	}

	if o.deps.Quota != nil {
		if qerr := o.deps.Quota.Check(ctx, user, types.QuotaVideos, 1); qerr != nil {
			return types.Transcript{}, "", qerr
		}
	}

	o.setProgress(ctx, video, types.VideoStatusDownloading, progressDownloading, "")

	var audioPath string
	var audioMB float64
	derr := withRetry(ctx, o.deps.RetryPolicy.DownloadMaxRetries, downloadRetryInterval, func() error {
		p, mb, e := o.deps.Captions.DownloadAudio(ctx, video.SourceURL, o.deps.AudioScratchDir, nil)
		if e != nil {
			// Every failure mode here (invalid URL, unavailable or
			// region-locked video, all client profiles exhausted) is
			// a source problem, not a transport blip, so it never
			// retries (spec §4.10).
			return apperrors.Input("download audio failed", e)
		}
		audioPath, audioMB = p, mb
		return nil
	})
	if derr != nil {
		return types.Transcript{}, "", fmt.Errorf("download audio: %w", derr)
	}
	video.AudioPath = audioPath
	video.AudioMB = audioMB

	if o.deps.Quota != nil {
		if qerr := o.deps.Quota.TrackVideoIngestion(ctx, user, video.Metadata.Duration, audioMB); qerr != nil {
			logger.GetLogger(ctx).Warnf("track video ingestion: %v", qerr)
		}
	}

	if cerr := o.checkpoint(ctx, video, "after_download"); cerr != nil {
		return types.Transcript{}, "", cerr
	}

	o.setProgress(ctx, video, types.VideoStatusTranscribing, progressTranscribing, "")

	heartbeat := caption.StartHeartbeat(ctx, o.deps.HeartbeatETA, func(ctx context.Context, simulatedProgress float64) {
		o.setProgress(ctx, video, types.VideoStatusTranscribing, int(simulatedProgress), "")
	})

	var whisperResult caption.Transcript
	terr := withRetry(ctx, o.deps.RetryPolicy.StageMaxRetries, transcribeRetryInterval, func() error {
		r, e := o.deps.Transcriber.Transcribe(audioPath, nil)
		if e != nil {
			return apperrors.Transient("transcribe audio failed", e)
		}
		whisperResult = r
		return nil
	})
	heartbeat.Stop()
	if terr != nil {
		return types.Transcript{}, "", fmt.Errorf("transcribe audio: %w", terr)
	}

	if o.deps.AudioScratchDir != "" {
		_ = os.Remove(audioPath)
	}

	transcript = convertCaptionTranscript(whisperResult)
	if perr := o.persistTranscript(ctx, video, transcript); perr != nil {
		return types.Transcript{}, "", perr
	}
	return transcript, types.TranscriptSourceWhisper, nil
}

func convertCaptionTranscript(t caption.Transcript) types.Transcript {
	segments := make([]types.Segment, len(t.Segments))
	hasSpeakers := false
	for i, s := range t.Segments {
		segments[i] = types.Segment{Start: s.Start, End: s.End, Text: s.Text, Speaker: s.Speaker}
		if s.Speaker != nil {
			hasSpeakers = true
		}
	}
	return types.Transcript{
		FullText:         t.FullText,
		Segments:         segments,
		Language:         t.Language,
		WordCount:        t.WordCount,
		Duration:         t.Duration,
		HasSpeakerLabels: hasSpeakers,
	}
}

func (o *Orchestrator) persistTranscript(ctx context.Context, video *types.Video, transcript types.Transcript) error {
	transcript.VideoID = video.ID
	if o.deps.DB != nil {
		if err := o.deps.DB.WithContext(ctx).Save(&transcript).Error; err != nil {
			return fmt.Errorf("save transcript: %w", err)
		}
	}

	if o.deps.Storage != nil {
		data, err := json.Marshal(transcript)
		if err != nil {
			return fmt.Errorf("marshal transcript: %w", err)
		}
		path, err := o.deps.Storage.PutTranscript(ctx, video.UserID, video.ID, bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return fmt.Errorf("store transcript: %w", err)
		}
		video.TranscriptPath = path
	}
	video.TranscriptionLanguage = transcript.Language
	return nil
}

// runChunkEnrichStage chunks the transcript and enriches each chunk
// with title/summary/keywords, persisting chunk rows (spec §4.7,
// §4.8).
func (o *Orchestrator) runChunkEnrichStage(ctx context.Context, video *types.Video, transcript types.Transcript) (chunks []types.Chunk, err error) {
	ctx, end := o.startSpan(ctx, "chunk_enrich", video)
	defer func() { end(err) }()

	chapters := video.Metadata.Chapters
	rawChunks := o.deps.Chunker.Chunk(transcript.Segments, chapters)
	if len(rawChunks) == 0 {
		return nil, fmt.Errorf("chunking produced no chunks")
	}

	for i := range rawChunks {
		rawChunks[i].VideoID = video.ID
		rawChunks[i].UserID = video.UserID
	}

	if o.deps.Enricher != nil {
		enrichments := o.deps.Enricher.EnrichBatch(ctx, rawChunks)
		for i := range rawChunks {
			if i >= len(enrichments) {
				break
			}
			e := enrichments[i]
			title, summary := e.Title, e.Summary
			rawChunks[i].Title = &title
			rawChunks[i].Summary = &summary
			rawChunks[i].Keywords = e.Keywords
		}
	}
	for i := range rawChunks {
		rawChunks[i].BuildEmbeddingText()
	}

	video.Summary, video.KeyTopics = buildVideoSummary(rawChunks)

	if o.deps.DB != nil {
		for i := range rawChunks {
			if err := o.deps.DB.WithContext(ctx).Save(&rawChunks[i]).Error; err != nil {
				return nil, fmt.Errorf("save chunk %d: %w", i, err)
			}
		}
	}

	return rawChunks, nil
}

// buildVideoSummary derives the video-level summary and key topics
// used by the coverage retrieval path (spec §4.14) from the
// already-computed per-chunk enrichments, rather than a separate LLM
// call: the chunk summaries strung together read as a coherent
// overview, and keyword frequency across chunks stands in for topics.
func buildVideoSummary(chunks []types.Chunk) (summary string, keyTopics []string) {
	var parts []string
	freq := map[string]int{}
	var order []string
	for _, c := range chunks {
		if c.Summary != nil && *c.Summary != "" {
			parts = append(parts, *c.Summary)
		}
		for _, kw := range c.Keywords {
			if freq[kw] == 0 {
				order = append(order, kw)
			}
			freq[kw]++
		}
	}
	summary = strings.Join(parts, " ")

	sort.SliceStable(order, func(i, j int) bool { return freq[order[i]] > freq[order[j]] })
	if len(order) > 8 {
		order = order[:8]
	}
	return summary, order
}

// runEmbedIndexStage embeds every chunk's EmbeddingText and upserts
// the resulting vectors into the index (spec §4.3, §4.2's point-id
// determinism via vectorstore.PointID).
func (o *Orchestrator) runEmbedIndexStage(ctx context.Context, video *types.Video, chunks []types.Chunk) (indexed int, err error) {
	ctx, end := o.startSpan(ctx, "embed_index", video)
	defer func() { end(err) }()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.EmbeddingText
	}

	vectors, eerr := o.deps.Embedder.EmbedBatch(ctx, texts)
	if eerr != nil {
		return 0, fmt.Errorf("embed chunks: %w", eerr)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: got %d for %d chunks", len(vectors), len(chunks))
	}

	if err := o.deps.VectorIndex.EnsureCollection(ctx, o.deps.Embedder.Dims()); err != nil {
		return 0, fmt.Errorf("ensure collection: %w", err)
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		payload := vectorstore.Payload{
			UserID:     video.UserID,
			VideoID:    video.ID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			StartTS:    c.StartTS,
			EndTS:      c.EndTS,
		}
		if c.Title != nil {
			payload.Title = *c.Title
		}
		if c.Summary != nil {
			payload.Summary = *c.Summary
		}
		if c.ChapterTitle != nil {
			payload.ChapterTitle = *c.ChapterTitle
		}
		payload.Keywords = c.Keywords
		payload.Speakers = c.Speakers
		points[i] = vectorstore.Point{
			ID:      vectorstore.PointID(video.ID, c.ChunkIndex),
			Vector:  vectors[i],
			Payload: payload,
		}
	}

	uerr := withRetry(ctx, o.deps.RetryPolicy.StageMaxRetries, upsertRetryInterval, func() error {
		if e := o.deps.VectorIndex.Upsert(ctx, points); e != nil {
			return apperrors.Transient("vector upsert failed", e)
		}
		return nil
	})
	if uerr != nil {
		return 0, fmt.Errorf("upsert vectors: %w", uerr)
	}

	if o.deps.DB != nil {
		ids := make([]string, len(chunks))
		for i, c := range chunks {
			ids[i] = c.ID
		}
		if err := o.deps.DB.WithContext(ctx).Model(&types.Chunk{}).
			Where("id IN ?", ids).Update("is_indexed", true).Error; err != nil {
			logger.GetLogger(ctx).Warnf("mark chunks indexed: %v", err)
		}
	}

	if o.deps.Quota != nil {
		userQuota, uerr := o.loadUser(ctx, video.UserID)
		if uerr == nil {
			if terr := o.deps.Quota.TrackEmbeddingTokens(ctx, userQuota, int64(len(chunks))); terr != nil {
				logger.GetLogger(ctx).Warnf("track embedding tokens: %v", terr)
			}
		}
	}

	return len(points), nil
}
