package insights

import (
	"context"
	"sort"

	"github.com/vidknora/vidknora/internal/types"
)

// chunkVectors maps a chunk's ID to its embedding.
type chunkVectors map[string][]float32

// resolveVectors returns an embedding per chunk, reusing vectors
// already stored in the vector index where available and only
// embedding the rest, so re-analyzing a conversation's videos doesn't
// re-embed chunks the ingest pipeline already vectorized (spec §4.16
// "reuses precomputed vectors where available").
func (s *Service) resolveVectors(ctx context.Context, userID string, chunks []*types.Chunk) (chunkVectors, error) {
	out := make(chunkVectors, len(chunks))

	if s.vectors != nil {
		byVideo := map[string][]int{}
		for _, c := range chunks {
			byVideo[c.VideoID] = append(byVideo[c.VideoID], c.ChunkIndex)
		}
		stored, err := s.vectors.FetchVectors(ctx, userID, byVideo)
		if err == nil {
			for _, c := range chunks {
				key := [2]interface{}{c.VideoID, c.ChunkIndex}
				if v, ok := stored[key]; ok && len(v) > 0 {
					out[c.ID] = v
				}
			}
		}
	}

	if s.embedder == nil {
		return out, nil
	}

	var missingText []string
	var missingChunks []*types.Chunk
	for _, c := range chunks {
		if _, ok := out[c.ID]; ok {
			continue
		}
		text := c.EmbeddingText
		if text == "" {
			text = c.Text
		}
		missingText = append(missingText, text)
		missingChunks = append(missingChunks, c)
	}
	if len(missingChunks) == 0 {
		return out, nil
	}

	vecs, err := s.embedder.EmbedBatch(ctx, missingText)
	if err != nil {
		return nil, err
	}
	for i, c := range missingChunks {
		if i < len(vecs) {
			out[c.ID] = normalizeVector(vecs[i])
		}
	}
	return out, nil
}

type scoredChunk struct {
	chunk *types.Chunk
	score float64
}

// mapTopicsToChunks assigns each chunk to its best-matching topic by
// cosine similarity between the topic's embedded description+keywords
// and the chunk's vector, using an adaptive percentile threshold plus
// a margin over the second-best topic so ambiguous chunks go unassigned
// rather than to a barely-better topic. If any topic holds fewer than
// relaxedAssignedFloor chunks after the main pass, a second, relaxed
// pass assigns the still-unassigned chunks to their best topic
// (spec §4.16).
func (s *Service) mapTopicsToChunks(ctx context.Context, topics []topicNode, chunks []*types.Chunk, vectors chunkVectors, maxPerTopic int) (map[string][]scoredChunk, error) {
	if len(topics) == 0 {
		return map[string][]scoredChunk{}, nil
	}

	topicVecs := make(map[string][]float32, len(topics))
	for _, t := range topics {
		text := t.Label + ". " + t.Description
		if len(t.Keywords) > 0 {
			text += " Keywords: " + joinComma(t.Keywords)
		}
		if s.embedder != nil {
			v, err := s.embedder.Embed(ctx, text)
			if err == nil {
				topicVecs[t.ID] = normalizeVector(v)
				continue
			}
		}
		topicVecs[t.ID] = nil
	}

	assignments := map[string][]scoredChunk{}
	assignedChunk := map[string]bool{}

	assignPass := func(minSimilarity, minMargin float64, onlyUnassigned bool) {
		for _, c := range chunks {
			if onlyUnassigned && assignedChunk[c.ID] {
				continue
			}
			vec := vectors[c.ID]
			type scored struct {
				topicID string
				sim     float64
			}
			var scores []scored
			for _, t := range topics {
				var sim float64
				if tv := topicVecs[t.ID]; len(tv) > 0 && len(vec) > 0 {
					sim = cosineSimilarity(tv, vec)
				} else {
					sim = chunkTopicScore(t, c)
				}
				scores = append(scores, scored{t.ID, sim})
			}
			sort.Slice(scores, func(i, j int) bool { return scores[i].sim > scores[j].sim })
			if len(scores) == 0 {
				continue
			}
			best := scores[0]
			margin := 1.0
			if len(scores) > 1 {
				margin = best.sim - scores[1].sim
			}
			if best.sim >= minSimilarity && margin >= minMargin {
				assignments[best.topicID] = append(assignments[best.topicID], scoredChunk{chunk: c, score: best.sim})
				assignedChunk[c.ID] = true
			}
		}
	}

	mainThreshold := adaptiveThreshold(topics, chunks, vectors, topicVecs, mainMinSimilarity, 0.40)
	assignPass(mainThreshold, mainMinMargin, false)

	underRepresented := false
	for _, t := range topics {
		if len(assignments[t.ID]) < relaxedAssignedFloor {
			underRepresented = true
			break
		}
	}
	if underRepresented {
		relaxedThreshold := adaptiveThreshold(topics, chunks, vectors, topicVecs, relaxedMinSimilarity, 0.20)
		assignPass(relaxedThreshold, relaxedMinMargin, true)
	}

	for id, scs := range assignments {
		sort.Slice(scs, func(i, j int) bool { return scs[i].score > scs[j].score })
		if len(scs) > maxPerTopic {
			scs = scs[:maxPerTopic]
		}
		assignments[id] = scs
	}
	return assignments, nil
}

// adaptiveThreshold computes max(floor, pth percentile of every
// chunk's best-topic similarity), so the bar for inclusion scales with
// how well this particular video set actually matches the extracted
// topics instead of a single fixed cutoff.
func adaptiveThreshold(topics []topicNode, chunks []*types.Chunk, vectors chunkVectors, topicVecs map[string][]float32, floor, p float64) float64 {
	var best []float64
	for _, c := range chunks {
		vec := vectors[c.ID]
		bestSim := 0.0
		for _, t := range topics {
			var sim float64
			if tv := topicVecs[t.ID]; len(tv) > 0 && len(vec) > 0 {
				sim = cosineSimilarity(tv, vec)
			} else {
				sim = chunkTopicScore(t, c)
			}
			if sim > bestSim {
				bestSim = sim
			}
		}
		best = append(best, bestSim)
	}
	sort.Float64s(best)
	pct := percentile(best, p)
	if pct > floor {
		return pct
	}
	return floor
}

// chunkTopicScore is the token-overlap fallback scorer used when
// either the topic or the chunk has no embedding available.
func chunkTopicScore(t topicNode, c *types.Chunk) float64 {
	chunkToks := map[string]bool{}
	for _, tok := range contentTokens(c.Text) {
		chunkToks[tok] = true
	}
	if len(chunkToks) == 0 {
		return 0
	}
	var topicToks []string
	topicToks = append(topicToks, normalizeTokens(t.Label)...)
	for _, k := range t.Keywords {
		topicToks = append(topicToks, normalizeTokens(k)...)
	}
	if len(topicToks) == 0 {
		return 0
	}
	hits := 0
	for _, tok := range topicToks {
		if chunkToks[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(topicToks))
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
