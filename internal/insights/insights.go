// Package insights implements C16: a cached 5-layer topic tree
// (root -> topic -> subtopic -> point -> moment) built from the
// transcript chunks of a conversation's selected videos (spec §4.16).
//
// Generation runs in four stages: sample a bounded, diverse subset of
// chunks, ask an LLM to name topics over that sample (falling back to
// keyword-frequency topics if the LLM is unavailable or its output
// doesn't parse), assign every chunk to its best-matching topic by
// embedding similarity, then recursively cluster each topic's
// evidence chunks into subtopics, points and leaf "moments". The
// result is cached per conversation, keyed on the selected video set
// and extractionPromptVersion, so a conversation's insight graph is
// computed once and reused until the video selection changes or the
// prompt version is bumped.
package insights

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vidknora/vidknora/internal/embedding"
	"github.com/vidknora/vidknora/internal/llm"
	"github.com/vidknora/vidknora/internal/logger"
	"github.com/vidknora/vidknora/internal/repository"
	"github.com/vidknora/vidknora/internal/types"
	"github.com/vidknora/vidknora/internal/vectorstore"
)

const (
	// extractionPromptVersion is bumped whenever buildPrompt's wording
	// changes meaningfully enough that a cached graph should no longer
	// be served as-is.
	extractionPromptVersion = 4

	defaultMaxChunksAnalyzed    = 50
	defaultTargetTopics         = 7
	defaultMaxChunksPerTopic    = 15
	defaultMaxSubtopicsPerTopic = 3
	defaultMaxPointsPerSubtopic = 2
	defaultMaxMomentsPerPoint   = 2

	mainMinSimilarity = 0.25
	mainMinMargin     = 0.04
	relaxedMinSimilarity = 0.18
	relaxedMinMargin     = 0.02
	relaxedAssignedFloor = 8

	extractionTemperature = 0.3
	extractionMaxTokens   = 1500
	labelingMaxTokens     = 400
)

// NodeType is the layer a Node occupies in the topic tree.
type NodeType string

const (
	NodeRoot     NodeType = "root"
	NodeTopic    NodeType = "topic"
	NodeSubtopic NodeType = "subtopic"
	NodePoint    NodeType = "point"
	NodeMoment   NodeType = "moment"
)

// Node is one vertex of the rendered mind-map layout.
type Node struct {
	ID          string   `json:"id"`
	Type        NodeType `json:"type"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	ChunkID     string   `json:"chunk_id,omitempty"`
	VideoID     string   `json:"video_id,omitempty"`
	Timestamp   string   `json:"timestamp,omitempty"`
}

// Edge connects a parent node to a child node.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the full rendered topic tree.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// TopicChunk is one piece of evidence backing a topic-tree node.
type TopicChunk struct {
	ChunkID    string  `json:"chunk_id"`
	VideoID    string  `json:"video_id"`
	VideoTitle string  `json:"video_title"`
	Text       string  `json:"text"`
	Timestamp  string  `json:"timestamp"`
	StartTS    float64 `json:"start_ts"`
	EndTS      float64 `json:"end_ts"`
	Similarity float64 `json:"similarity"`
}

// topicNode is the LLM (or fallback) topic-extraction output, before
// chunk assignment and sub-clustering.
type topicNode struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Result is what one generation pass produces, before it is persisted
// as a types.ConversationInsight.
type Result struct {
	Graph               Graph
	TopicChunks         map[string][]TopicChunk
	TopicsCount         int
	TotalChunksAnalyzed int
	GenerationTime      time.Duration
}

// Service is the C16 insight-graph generator.
type Service struct {
	llmClient       *llm.Client
	llmModel        string
	embedder        embedding.Embedder
	vectors         *vectorstore.Index
	videos          repository.VideoRepository
	chunks          repository.ChunkRepository
	insights        repository.InsightRepository
	enableLLMLabels bool
}

// New constructs a Service. vectors may be nil, in which case every
// chunk is re-embedded rather than reusing the vector index's stored
// vectors. llmClient may be nil, in which case topic extraction always
// falls back to keyword-frequency topics and relabeling is skipped.
func New(
	llmClient *llm.Client,
	llmModel string,
	embedder embedding.Embedder,
	vectors *vectorstore.Index,
	videos repository.VideoRepository,
	chunks repository.ChunkRepository,
	insightRepo repository.InsightRepository,
	enableLLMLabels bool,
) *Service {
	return &Service{
		llmClient:       llmClient,
		llmModel:        llmModel,
		embedder:        embedder,
		vectors:         vectors,
		videos:          videos,
		chunks:          chunks,
		insights:        insightRepo,
		enableLLMLabels: enableLLMLabels,
	}
}

// GetOrGenerateInsights returns the cached insight graph for a
// conversation's current video selection if one exists and still
// matches, else generates, persists and returns a fresh one (spec
// §4.16 "cached, not regenerated on every request").
func (s *Service) GetOrGenerateInsights(ctx context.Context, conversationID, userID string, videoIDs []string, forceRegenerate bool, rootLabel string) (*types.ConversationInsight, error) {
	canonical := canonicalizeVideoIDs(videoIDs)
	if len(canonical) == 0 {
		return nil, fmt.Errorf("insights: no videos selected")
	}

	if !forceRegenerate {
		cached, err := s.insights.Latest(ctx, conversationID, userID)
		if err != nil {
			return nil, fmt.Errorf("load cached insight: %w", err)
		}
		if cached != nil &&
			cached.ExtractionPromptVersion == extractionPromptVersion &&
			sameVideoSet(cached.VideoIDs, canonical) {
			return cached, nil
		}
	}

	result, err := s.ExtractTopicsFromVideos(ctx, userID, canonical, rootLabel, defaultTargetTopics, defaultMaxChunksAnalyzed)
	if err != nil {
		return nil, err
	}

	graphData, err := toJSONMap(result.Graph)
	if err != nil {
		return nil, fmt.Errorf("marshal graph: %w", err)
	}
	topicChunkData, err := toJSONMap(result.TopicChunks)
	if err != nil {
		return nil, fmt.Errorf("marshal topic chunks: %w", err)
	}

	insight := &types.ConversationInsight{
		ID:                      uuid.NewString(),
		ConversationID:          conversationID,
		UserID:                  userID,
		VideoIDs:                canonical,
		LLMModel:                s.llmModel,
		ExtractionPromptVersion: extractionPromptVersion,
		GraphData:               graphData,
		TopicChunks:             topicChunkData,
		TopicsCount:             result.TopicsCount,
		TotalChunksAnalyzed:     result.TotalChunksAnalyzed,
		GenerationTimeSeconds:   result.GenerationTime.Seconds(),
	}
	if err := s.insights.Create(ctx, insight); err != nil {
		return nil, fmt.Errorf("persist insight: %w", err)
	}
	return insight, nil
}

// GetTopicChunks returns the cached evidence chunks for one node of a
// conversation's most recently generated insight graph.
func (s *Service) GetTopicChunks(ctx context.Context, conversationID, userID, nodeID string) ([]TopicChunk, error) {
	cached, err := s.insights.Latest(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if cached == nil {
		return nil, fmt.Errorf("insights: no cached graph for conversation %s", conversationID)
	}
	var byNode map[string][]TopicChunk
	if err := fromJSONMap(cached.TopicChunks, &byNode); err != nil {
		return nil, fmt.Errorf("unmarshal cached topic chunks: %w", err)
	}
	return byNode[nodeID], nil
}

// ExtractTopicsFromVideos runs one full generation pass: fetch and
// validate videos, sample and analyze their chunks, extract topics,
// assign evidence, cluster into subtopics/points/moments and lay out
// the resulting tree (spec §4.16).
func (s *Service) ExtractTopicsFromVideos(ctx context.Context, userID string, videoIDs []string, rootLabel string, targetTopics, maxChunksAnalyzed int) (Result, error) {
	start := time.Now()
	log := logger.GetLogger(ctx)

	if targetTopics <= 0 {
		targetTopics = defaultTargetTopics
	}
	if maxChunksAnalyzed <= 0 {
		maxChunksAnalyzed = defaultMaxChunksAnalyzed
	}

	videos, err := s.videos.ListByIDs(ctx, userID, videoIDs, len(videoIDs)*2+10)
	if err != nil {
		return Result{}, fmt.Errorf("load videos: %w", err)
	}
	videoByID := map[string]*types.Video{}
	completed := 0
	for _, v := range videos {
		if v.Status != types.VideoStatusCompleted {
			continue
		}
		videoByID[v.ID] = v
		completed++
	}
	if completed != len(videoIDs) {
		return Result{}, fmt.Errorf("insights: one or more videos not found or not completed processing")
	}

	allChunks, err := s.chunks.ListByVideos(ctx, userID, videoIDs)
	if err != nil {
		return Result{}, fmt.Errorf("load chunks: %w", err)
	}
	if len(allChunks) == 0 {
		return Result{}, fmt.Errorf("insights: no chunks found for selected videos")
	}

	sample := sampleChunksForExtraction(allChunks, maxChunksAnalyzed)

	topics, usedLLM := s.extractTopics(ctx, rootLabel, sample, targetTopics)
	log.Infof("insights: extracted %d topics (llm=%v) from %d sampled chunks of %d total", len(topics), usedLLM, len(sample), len(allChunks))

	vectors, err := s.resolveVectors(ctx, userID, allChunks)
	if err != nil {
		return Result{}, fmt.Errorf("resolve chunk vectors: %w", err)
	}

	assignments, err := s.mapTopicsToChunks(ctx, topics, allChunks, vectors, defaultMaxChunksPerTopic)
	if err != nil {
		return Result{}, fmt.Errorf("map topics to chunks: %w", err)
	}

	graph, topicChunks := s.buildGraph(ctx, rootLabel, topics, assignments, allChunks, vectors, videoByID)

	return Result{
		Graph:               graph,
		TopicChunks:         topicChunks,
		TopicsCount:         len(topics),
		TotalChunksAnalyzed: len(sample),
		GenerationTime:      time.Since(start),
	}, nil
}

func sameVideoSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	ca, cb := canonicalizeVideoIDs(a), canonicalizeVideoIDs(b)
	for i := range ca {
		if ca[i] != cb[i] {
			return false
		}
	}
	return true
}

func canonicalizeVideoIDs(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
