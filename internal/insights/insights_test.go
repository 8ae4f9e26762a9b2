package insights

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vidknora/vidknora/internal/types"
)

type fakeVideoRepo struct {
	videos map[string]*types.Video
}

func (f *fakeVideoRepo) Create(ctx context.Context, v *types.Video) error { return nil }
func (f *fakeVideoRepo) Get(ctx context.Context, userID, videoID string) (*types.Video, error) {
	return f.videos[videoID], nil
}
func (f *fakeVideoRepo) GetForUpdate(ctx context.Context, videoID string) (*types.Video, error) {
	return f.videos[videoID], nil
}
func (f *fakeVideoRepo) Update(ctx context.Context, v *types.Video) error { return nil }
func (f *fakeVideoRepo) ListByStatusOlderThan(ctx context.Context, statuses []types.VideoStatus, olderThan time.Time) ([]*types.Video, error) {
	return nil, nil
}
func (f *fakeVideoRepo) ListByUser(ctx context.Context, userID string, includeDeleted bool) ([]*types.Video, error) {
	return nil, nil
}
func (f *fakeVideoRepo) ListByIDs(ctx context.Context, userID string, videoIDs []string, limit int) ([]*types.Video, error) {
	var out []*types.Video
	for _, id := range videoIDs {
		if v, ok := f.videos[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}
func (f *fakeVideoRepo) Delete(ctx context.Context, videoID string) error { return nil }

type fakeChunkRepo struct {
	chunks []*types.Chunk
}

func (f *fakeChunkRepo) CreateBatch(ctx context.Context, chunks []*types.Chunk) error { return nil }
func (f *fakeChunkRepo) ListByVideo(ctx context.Context, videoID string) ([]*types.Chunk, error) {
	var out []*types.Chunk
	for _, c := range f.chunks {
		if c.VideoID == videoID {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeChunkRepo) ListByVideos(ctx context.Context, userID string, videoIDs []string) ([]*types.Chunk, error) {
	wanted := map[string]bool{}
	for _, id := range videoIDs {
		wanted[id] = true
	}
	var out []*types.Chunk
	for _, c := range f.chunks {
		if wanted[c.VideoID] {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeChunkRepo) CountByVideo(ctx context.Context, videoID string) (int, error) { return 0, nil }
func (f *fakeChunkRepo) DeleteByVideo(ctx context.Context, videoID string) (int64, int, error) {
	return 0, 0, nil
}
func (f *fakeChunkRepo) DeleteForSoftDeletedVideos(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeChunkRepo) TotalTextBytes(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}
func (f *fakeChunkRepo) CountIndexed(ctx context.Context, userID string) (int, error) { return 0, nil }

type fakeInsightRepo struct {
	created []*types.ConversationInsight
	latest  *types.ConversationInsight
}

func (f *fakeInsightRepo) Latest(ctx context.Context, conversationID, userID string) (*types.ConversationInsight, error) {
	return f.latest, nil
}
func (f *fakeInsightRepo) Create(ctx context.Context, insight *types.ConversationInsight) error {
	f.created = append(f.created, insight)
	f.latest = insight
	return nil
}
func (f *fakeInsightRepo) Update(ctx context.Context, insight *types.ConversationInsight) error {
	f.latest = insight
	return nil
}

// fakeEmbedder derives a deterministic small vector from which content
// tokens a text contains, so distinct topics really do separate in
// cosine-similarity space instead of collapsing to one fixed vector.
type fakeEmbedder struct{}

var vocab = []string{"kubernetes", "container", "orchestration", "recipe", "kitchen", "baking"}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := make([]float32, len(vocab))
	for i, tok := range vocab {
		if strings.Contains(lower, tok) {
			vec[i] = 1
		}
	}
	return normalizeVector(vec), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dims() int       { return len(vocab) }
func (f *fakeEmbedder) ModelID() string { return "fake" }

func buildTestChunks() []*types.Chunk {
	texts := []string{
		"Kubernetes orchestration makes scaling containers easy across a cluster.",
		"Running a container workload inside Kubernetes requires defining a pod spec.",
		"Container orchestration with Kubernetes handles rolling updates automatically.",
		"This baking recipe starts with creaming butter and sugar in the kitchen.",
		"A good kitchen recipe for bread needs patient kneading and a slow rise.",
		"Baking bread in the kitchen fills the whole house with a warm smell.",
	}
	chunks := make([]*types.Chunk, 0, len(texts))
	for i, text := range texts {
		videoID := "video-1"
		if i >= 3 {
			videoID = "video-2"
		}
		chunks = append(chunks, &types.Chunk{
			ID:         "chunk-" + string(rune('a'+i)),
			VideoID:    videoID,
			UserID:     "user-1",
			ChunkIndex: i,
			Text:       text,
			StartTS:    float64(i * 30),
			EndTS:      float64(i*30 + 25),
		})
	}
	return chunks
}

func newTestService(videos map[string]*types.Video, chunks []*types.Chunk) (*Service, *fakeInsightRepo) {
	insightRepo := &fakeInsightRepo{}
	svc := New(
		nil, "",
		&fakeEmbedder{},
		nil,
		&fakeVideoRepo{videos: videos},
		&fakeChunkRepo{chunks: chunks},
		insightRepo,
		false,
	)
	return svc, insightRepo
}

func completedVideos(ids ...string) map[string]*types.Video {
	out := map[string]*types.Video{}
	for _, id := range ids {
		out[id] = &types.Video{ID: id, Title: "Video " + id, Status: types.VideoStatusCompleted}
	}
	return out
}

func TestExtractTopicsFromVideosSeparatesDistinctTopics(t *testing.T) {
	chunks := buildTestChunks()
	svc, _ := newTestService(completedVideos("video-1", "video-2"), chunks)

	result, err := svc.ExtractTopicsFromVideos(context.Background(), "user-1", []string{"video-1", "video-2"}, "Test videos", 4, 50)
	if err != nil {
		t.Fatalf("extract topics: %v", err)
	}
	if len(result.Graph.Nodes) == 0 || result.Graph.Nodes[0].Type != NodeRoot {
		t.Fatalf("expected a root node, got %+v", result.Graph.Nodes)
	}
	if result.TopicsCount == 0 {
		t.Fatalf("expected at least one topic, got 0")
	}

	var topicNodes int
	for _, n := range result.Graph.Nodes {
		if n.Type == NodeTopic {
			topicNodes++
		}
	}
	if topicNodes == 0 {
		t.Fatalf("expected topic nodes with assigned evidence in the graph, found none")
	}
}

func TestExtractTopicsFromVideosRejectsIncompleteVideo(t *testing.T) {
	chunks := buildTestChunks()
	videos := completedVideos("video-1")
	videos["video-2"] = &types.Video{ID: "video-2", Title: "Video 2", Status: types.VideoStatusTranscribing}
	svc, _ := newTestService(videos, chunks)

	_, err := svc.ExtractTopicsFromVideos(context.Background(), "user-1", []string{"video-1", "video-2"}, "Test videos", 4, 50)
	if err == nil {
		t.Fatalf("expected an error when a selected video isn't completed")
	}
}

func TestExtractTopicsFromVideosRejectsEmptyChunks(t *testing.T) {
	svc, _ := newTestService(completedVideos("video-1"), nil)

	_, err := svc.ExtractTopicsFromVideos(context.Background(), "user-1", []string{"video-1"}, "Test videos", 4, 50)
	if err == nil {
		t.Fatalf("expected an error when the selected videos have no chunks")
	}
}

func TestGetOrGenerateInsightsCachesByVideoSet(t *testing.T) {
	chunks := buildTestChunks()
	svc, repo := newTestService(completedVideos("video-1", "video-2"), chunks)
	ctx := context.Background()

	first, err := svc.GetOrGenerateInsights(ctx, "conv-1", "user-1", []string{"video-1", "video-2"}, false, "Test videos")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one generation on first call, got %d", len(repo.created))
	}

	second, err := svc.GetOrGenerateInsights(ctx, "conv-1", "user-1", []string{"video-2", "video-1"}, false, "Test videos")
	if err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the cached insight to be reused for the same (reordered) video set")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected no regeneration on cache hit, got %d total generations", len(repo.created))
	}

	third, err := svc.GetOrGenerateInsights(ctx, "conv-1", "user-1", []string{"video-1", "video-2"}, true, "Test videos")
	if err != nil {
		t.Fatalf("forced regeneration: %v", err)
	}
	if third.ID == first.ID {
		t.Fatalf("expected forceRegenerate to produce a new insight row")
	}
	if len(repo.created) != 2 {
		t.Fatalf("expected a second generation after forceRegenerate, got %d", len(repo.created))
	}
}

func TestSampleChunksForExtractionRespectsCap(t *testing.T) {
	chunks := buildTestChunks()
	sample := sampleChunksForExtraction(chunks, 3)
	if len(sample) != 3 {
		t.Fatalf("expected sample capped at 3, got %d", len(sample))
	}
}

func TestSampleChunksForExtractionReturnsAllWhenUnderCap(t *testing.T) {
	chunks := buildTestChunks()
	sample := sampleChunksForExtraction(chunks, 100)
	if len(sample) != len(chunks) {
		t.Fatalf("expected all %d chunks, got %d", len(chunks), len(sample))
	}
}

func TestFallbackTopicsFromKeywordsIsDeterministic(t *testing.T) {
	chunks := buildTestChunks()
	a := fallbackTopicsFromKeywords(chunks, 4)
	b := fallbackTopicsFromKeywords(chunks, 4)
	if len(a) != len(b) {
		t.Fatalf("expected deterministic topic count, got %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Label != b[i].Label {
			t.Fatalf("expected deterministic topics, got divergent results at index %d", i)
		}
	}
}

func TestAgglomerativeClustersRespectsMaxK(t *testing.T) {
	vecs := [][]float32{{1, 0}, {0.9, 0.1}, {0, 1}, {0.1, 0.9}, {1, 0}}
	clusters := agglomerativeClusters(vecs, 2)
	if len(clusters) > 2 {
		t.Fatalf("expected at most 2 clusters, got %d", len(clusters))
	}
	total := 0
	for _, c := range clusters {
		total += len(c)
	}
	if total != len(vecs) {
		t.Fatalf("expected every vector assigned to exactly one cluster, got %d of %d", total, len(vecs))
	}
}

func TestAgglomerativeClustersSingletonWhenUnderCap(t *testing.T) {
	vecs := [][]float32{{1, 0}, {0, 1}}
	clusters := agglomerativeClusters(vecs, 3)
	if len(clusters) != 2 {
		t.Fatalf("expected one cluster per vector when n <= maxK, got %d", len(clusters))
	}
}

func TestLayoutPositionsRootBeforeChildren(t *testing.T) {
	nodes := []Node{
		{ID: "root", Type: NodeRoot},
		{ID: "t1", Type: NodeTopic},
		{ID: "t2", Type: NodeTopic},
	}
	edges := []Edge{{Source: "root", Target: "t1"}, {Source: "root", Target: "t2"}}
	layout(nodes, edges)
	if nodes[0].X >= nodes[1].X {
		t.Fatalf("expected root's X to precede its children's, got root.X=%f child.X=%f", nodes[0].X, nodes[1].X)
	}
	if nodes[1].Y == nodes[2].Y {
		t.Fatalf("expected distinct Y for sibling leaves, got equal Y=%f", nodes[1].Y)
	}
}
