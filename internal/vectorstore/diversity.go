package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/qdrant/go-client/qdrant"
)

// candidate is a scored point carrying its vector, used internally by
// Maximal Marginal Relevance selection; Result (the public search
// return type) intentionally omits vectors to keep call sites cheap.
type candidate struct {
	Result
	vector []float32
}

// SearchWithDiversity prefetches prefetchLimit candidates by raw
// cosine score, then greedily re-ranks the top topK by Maximal
// Marginal Relevance: each pick trades off its own relevance against
// similarity to results already chosen, so near-duplicate chunks
// don't crowd out distinct ones (spec §4.14). diversity is in [0,1];
// 0 behaves like plain Search, higher values favor spread over raw
// score.
func (idx *Index) SearchWithDiversity(ctx context.Context, vec []float32, filter Filter, topK int, diversity float64, prefetchLimit int) ([]Result, error) {
	candidates, err := idx.searchCandidates(ctx, vec, filter, prefetchLimit)
	if err != nil {
		return nil, fmt.Errorf("diversity search: %w", err)
	}
	if len(candidates) <= topK {
		return stripVectors(candidates), nil
	}
	return mmrSelect(candidates, topK, diversity), nil
}

// SearchWithVideoGuarantee runs one search per video id (so every
// selected video contributes at least perVideoK hits when it has any
// matching content) then tops the pool up to totalK with the overall
// best-scoring remaining hits (spec §4.14 "per-video guaranteed
// coverage" — used so a query about one heavily-discussed video
// doesn't crowd out the others entirely).
func (idx *Index) SearchWithVideoGuarantee(ctx context.Context, vec []float32, userID string, videoIDs []string, perVideoK, totalK int) ([]Result, error) {
	seen := make(map[uint64]bool)
	var all []Result

	for _, videoID := range videoIDs {
		res, err := idx.Search(ctx, vec, Filter{UserID: userID, VideoIDs: []string{videoID}}, perVideoK)
		if err != nil {
			return nil, fmt.Errorf("per-video search for %s: %w", videoID, err)
		}
		for _, r := range res {
			if !seen[r.ID] {
				seen[r.ID] = true
				all = append(all, r)
			}
		}
	}

	if len(all) < totalK {
		extra, err := idx.Search(ctx, vec, Filter{UserID: userID, VideoIDs: videoIDs}, totalK)
		if err != nil {
			return nil, fmt.Errorf("top-up search: %w", err)
		}
		for _, r := range extra {
			if !seen[r.ID] {
				seen[r.ID] = true
				all = append(all, r)
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > totalK {
		all = all[:totalK]
	}
	return all, nil
}

// searchCandidates is Search plus the raw vector data each point was
// stored with, needed only by MMR's pairwise similarity computation.
func (idx *Index) searchCandidates(ctx context.Context, vec []float32, filter Filter, limit int) ([]candidate, error) {
	qlimit := uint64(limit)
	resp, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: idx.collection,
		Query:          qdrant.NewQuery(vec...),
		Filter:         buildFilter(filter),
		Limit:          &qlimit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]candidate, len(resp))
	for i, p := range resp {
		out[i] = candidate{
			Result: Result{
				ID:      p.Id.GetNum(),
				Score:   p.Score,
				Payload: valueToPayload(p.Payload),
			},
			vector: p.Vectors.GetVector().GetData(),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func stripVectors(candidates []candidate) []Result {
	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = c.Result
	}
	return out
}

// mmrSelect greedily picks k candidates maximizing
// (1-diversity)*relevance - diversity*max_similarity_to_selected.
func mmrSelect(candidates []candidate, k int, diversity float64) []Result {
	remaining := make([]candidate, len(candidates))
	copy(remaining, candidates)

	selected := make([]candidate, 0, k)
	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)
		for i, c := range remaining {
			mmrScore := (1-diversity)*float64(c.Score) - diversity*maxSimilarityTo(c, selected)
			if mmrScore > bestScore {
				bestScore = mmrScore
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return stripVectors(selected)
}

func maxSimilarityTo(c candidate, selected []candidate) float64 {
	if len(c.vector) == 0 || len(selected) == 0 {
		return 0
	}
	max := 0.0
	for _, s := range selected {
		if sim := cosineSimilarity(c.vector, s.vector); sim > max {
			max = sim
		}
	}
	return max
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
