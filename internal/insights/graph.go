package insights

import (
	"context"
	"fmt"
	"sort"

	"github.com/vidknora/vidknora/internal/llm"
	"github.com/vidknora/vidknora/internal/logger"
	"github.com/vidknora/vidknora/internal/types"
)

const rootID = "root"

// buildGraph turns the topic -> chunk assignments into the full
// rendered tree: each topic clusters its evidence into 1-3 subtopics,
// each subtopic into 1-3 points, each point into up to
// defaultMaxMomentsPerPoint leaf "moment" chunks nearest its centroid
// (spec §4.16 clustering + layout).
func (s *Service) buildGraph(ctx context.Context, rootLabel string, topics []topicNode, assignments map[string][]scoredChunk, allChunks []*types.Chunk, vectors chunkVectors, videoByID map[string]*types.Video) (Graph, map[string][]TopicChunk) {
	nodes := []Node{{ID: rootID, Type: NodeRoot, Label: rootLabel}}
	var edges []Edge
	topicChunks := map[string][]TopicChunk{}

	for _, t := range topics {
		scored := assignments[t.ID]
		if len(scored) == 0 {
			continue
		}
		nodes = append(nodes, Node{ID: t.ID, Type: NodeTopic, Label: t.Label, Description: t.Description, Keywords: t.Keywords})
		edges = append(edges, Edge{Source: rootID, Target: t.ID})
		topicChunks[t.ID] = toTopicChunks(scored, videoByID)

		subClusters := agglomerativeClusters(vecsOf(scored, vectors), defaultMaxSubtopicsPerTopic)
		for si, subIdx := range subClusters {
			subChunks := selectChunks(scored, subIdx)
			subID := fmt.Sprintf("%s-sub-%d", t.ID, si+1)
			subLabel, subDesc := s.labelCluster(ctx, subChunks, videoByID)
			nodes = append(nodes, Node{ID: subID, Type: NodeSubtopic, Label: subLabel, Description: subDesc})
			edges = append(edges, Edge{Source: t.ID, Target: subID})
			topicChunks[subID] = toTopicChunks(subChunks, videoByID)

			pointClusters := agglomerativeClusters(vecsOf(subChunks, vectors), defaultMaxPointsPerSubtopic)
			for pi, pointIdx := range pointClusters {
				pointChunks := selectChunks(subChunks, pointIdx)
				pointID := fmt.Sprintf("%s-pt-%d", subID, pi+1)
				pointLabel, pointDesc := s.labelCluster(ctx, pointChunks, videoByID)
				nodes = append(nodes, Node{ID: pointID, Type: NodePoint, Label: pointLabel, Description: pointDesc})
				edges = append(edges, Edge{Source: subID, Target: pointID})
				topicChunks[pointID] = toTopicChunks(pointChunks, videoByID)

				moments := nearestToCentroid(pointChunks, vectors, defaultMaxMomentsPerPoint)
				for mi, mc := range moments {
					v := videoByID[mc.chunk.VideoID]
					title := ""
					if v != nil {
						title = v.Title
					}
					momentID := fmt.Sprintf("%s-mo-%d", pointID, mi+1)
					nodes = append(nodes, Node{
						ID:        momentID,
						Type:      NodeMoment,
						Label:     truncate(mc.chunk.Text, 60),
						ChunkID:   mc.chunk.ID,
						VideoID:   mc.chunk.VideoID,
						Timestamp: formatTimestamp(mc.chunk.StartTS, mc.chunk.EndTS),
						Description: title,
					})
					edges = append(edges, Edge{Source: pointID, Target: momentID})
				}
			}
		}
	}

	layout(nodes, edges)
	return Graph{Nodes: nodes, Edges: edges}, topicChunks
}

func toTopicChunks(scored []scoredChunk, videoByID map[string]*types.Video) []TopicChunk {
	out := make([]TopicChunk, 0, len(scored))
	for _, sc := range scored {
		v := videoByID[sc.chunk.VideoID]
		title := ""
		if v != nil {
			title = v.Title
		}
		out = append(out, TopicChunk{
			ChunkID:    sc.chunk.ID,
			VideoID:    sc.chunk.VideoID,
			VideoTitle: title,
			Text:       sc.chunk.Text,
			Timestamp:  formatTimestamp(sc.chunk.StartTS, sc.chunk.EndTS),
			StartTS:    sc.chunk.StartTS,
			EndTS:      sc.chunk.EndTS,
			Similarity: sc.score,
		})
	}
	return out
}

func vecsOf(scored []scoredChunk, vectors chunkVectors) [][]float32 {
	out := make([][]float32, len(scored))
	for i, sc := range scored {
		out[i] = vectors[sc.chunk.ID]
	}
	return out
}

func selectChunks(scored []scoredChunk, indices []int) []scoredChunk {
	out := make([]scoredChunk, 0, len(indices))
	for _, i := range indices {
		out = append(out, scored[i])
	}
	return out
}

// agglomerativeClusters runs average-linkage agglomerative clustering
// over vecs, merging the two closest clusters repeatedly until between
// 1 and maxK clusters remain (fewer if there aren't enough distinct
// items to fill maxK), returning each cluster as a list of indices
// into vecs. Items with no vector are kept, never dropped:
// averageLinkage scores a pair of clusters with no vectored item on
// both sides at -1, so such items are merged only once no pair scoring
// above -1 remains.
func agglomerativeClusters(vecs [][]float32, maxK int) [][]int {
	n := len(vecs)
	if n == 0 {
		return nil
	}
	if n <= maxK {
		clusters := make([][]int, n)
		for i := range vecs {
			clusters[i] = []int{i}
		}
		return clusters
	}

	clusters := make([][]int, n)
	for i := range vecs {
		clusters[i] = []int{i}
	}

	for len(clusters) > maxK {
		bestI, bestJ := -1, -1
		bestSim := -2.0
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				sim := averageLinkage(clusters[i], clusters[j], vecs)
				if sim > bestSim {
					bestSim = sim
					bestI, bestJ = i, j
				}
			}
		}
		if bestI < 0 {
			break
		}
		merged := append(append([]int{}, clusters[bestI]...), clusters[bestJ]...)
		next := make([][]int, 0, len(clusters)-1)
		for k, c := range clusters {
			if k == bestI || k == bestJ {
				continue
			}
			next = append(next, c)
		}
		next = append(next, merged)
		clusters = next
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i][0] < clusters[j][0] })
	return clusters
}

func averageLinkage(a, b []int, vecs [][]float32) float64 {
	var total float64
	var count int
	for _, i := range a {
		for _, j := range b {
			if len(vecs[i]) == 0 || len(vecs[j]) == 0 {
				continue
			}
			total += cosineSimilarity(vecs[i], vecs[j])
			count++
		}
	}
	if count == 0 {
		return -1
	}
	return total / float64(count)
}

// nearestToCentroid picks up to n chunks closest to the centroid of
// pointChunks' vectors, the "moment" leaves of the tree.
func nearestToCentroid(pointChunks []scoredChunk, vectors chunkVectors, n int) []scoredChunk {
	if len(pointChunks) <= n {
		return pointChunks
	}
	var vecs [][]float32
	for _, sc := range pointChunks {
		if v := vectors[sc.chunk.ID]; len(v) > 0 {
			vecs = append(vecs, v)
		}
	}
	c := centroid(vecs)
	if c == nil {
		return pointChunks[:n]
	}
	type distScored struct {
		sc   scoredChunk
		dist float64
	}
	ds := make([]distScored, 0, len(pointChunks))
	for _, sc := range pointChunks {
		v := vectors[sc.chunk.ID]
		sim := cosineSimilarity(v, c)
		ds = append(ds, distScored{sc, 1 - sim})
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i].dist < ds[j].dist })
	out := make([]scoredChunk, n)
	for i := 0; i < n; i++ {
		out[i] = ds[i].sc
	}
	return out
}

// labelCluster names a subtopic/point node. With LLM labeling enabled
// it asks for a short title+summary in one call; otherwise (and on
// any failure) it falls back deterministically to the medoid chunk's
// own title/summary or a truncated excerpt of its text (spec §4.16
// "deterministic fallback", Open Question resolution: EnableLLMLabels
// gates this path off entirely in tests).
func (s *Service) labelCluster(ctx context.Context, chunks []scoredChunk, videoByID map[string]*types.Video) (label, description string) {
	medoid := medoidChunk(chunks)
	if medoid == nil {
		return "Untitled", ""
	}

	if s.enableLLMLabels && s.llmClient != nil {
		if label, desc, ok := s.relabelWithLLM(ctx, chunks); ok {
			return label, desc
		}
	}

	if medoid.Title != nil && *medoid.Title != "" {
		desc := ""
		if medoid.Summary != nil {
			desc = *medoid.Summary
		}
		return *medoid.Title, desc
	}
	return truncate(medoid.Text, 50), ""
}

func medoidChunk(chunks []scoredChunk) *types.Chunk {
	if len(chunks) == 0 {
		return nil
	}
	best := chunks[0]
	for _, sc := range chunks {
		if sc.score > best.score {
			best = sc
		}
	}
	return best.chunk
}

type clusterLabelResponse struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

func (s *Service) relabelWithLLM(ctx context.Context, chunks []scoredChunk) (string, string, bool) {
	var excerpt string
	for i, sc := range chunks {
		if i >= 3 {
			break
		}
		excerpt += truncate(sc.chunk.Text, 200) + "\n"
	}
	prompt := fmt.Sprintf(
		"Give a short label (under 6 words) and one-sentence description for this cluster of transcript excerpts:\n\n%s\nRespond as JSON: {\"label\": \"...\", \"description\": \"...\"}",
		excerpt,
	)
	resp, err := s.llmClient.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.Options{
		Model:       s.llmModel,
		Temperature: 0.3,
		MaxTokens:   labelingMaxTokens,
		Retry:       false,
	})
	if err != nil {
		logger.GetLogger(ctx).Warnf("insights: cluster relabeling call failed: %v", err)
		return "", "", false
	}
	var parsed clusterLabelResponse
	if err := llm.ParseJSONFence(resp.Content, &parsed); err != nil || parsed.Label == "" {
		return "", "", false
	}
	return parsed.Label, parsed.Description, true
}
