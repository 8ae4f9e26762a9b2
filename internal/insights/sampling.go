package insights

import (
	"sort"

	"github.com/vidknora/vidknora/internal/types"
)

// sampleChunksForExtraction bounds the chunk set handed to topic
// extraction to maxChunks, picking evenly across chapters first and
// filling any remaining budget with the chunks most distinct in
// keyword content from what's already picked, so a long video's
// evenly-distributed sample still covers it (spec §4.16 "chunk
// sampling"). The result is ordered by video ID then chunk index, and
// the selection is deterministic for a fixed chunk set.
func sampleChunksForExtraction(chunks []*types.Chunk, maxChunks int) []*types.Chunk {
	if len(chunks) <= maxChunks {
		return chunks
	}

	groups := groupByChapter(chunks)
	picked := evenlySpaced(groups, maxChunks)

	if len(picked) < maxChunks {
		pickedSet := map[string]bool{}
		for _, c := range picked {
			pickedSet[c.ID] = true
		}
		var remaining []*types.Chunk
		for _, c := range chunks {
			if !pickedSet[c.ID] {
				remaining = append(remaining, c)
			}
		}
		picked = append(picked, pickByKeywordDiversity(remaining, maxChunks-len(picked), picked)...)
	}

	sort.SliceStable(picked, func(i, j int) bool {
		if picked[i].VideoID != picked[j].VideoID {
			return picked[i].VideoID < picked[j].VideoID
		}
		return picked[i].ChunkIndex < picked[j].ChunkIndex
	})
	return picked
}

// groupByChapter buckets chunks by (VideoID, ChapterIndex), falling
// back to one bucket per video when a chunk carries no chapter.
func groupByChapter(chunks []*types.Chunk) [][]*types.Chunk {
	type key struct {
		videoID string
		chapter int
	}
	order := []key{}
	byKey := map[key][]*types.Chunk{}
	for _, c := range chunks {
		chapter := -1
		if c.ChapterIndex != nil {
			chapter = *c.ChapterIndex
		}
		k := key{videoID: c.VideoID, chapter: chapter}
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], c)
	}
	groups := make([][]*types.Chunk, 0, len(order))
	for _, k := range order {
		groups = append(groups, byKey[k])
	}
	return groups
}

// evenlySpaced takes a roughly equal share of budget from each group,
// picking evenly-spaced indices within the group so a chapter's
// beginning, middle and end are all represented rather than just its
// first N chunks.
func evenlySpaced(groups [][]*types.Chunk, budget int) []*types.Chunk {
	if len(groups) == 0 || budget <= 0 {
		return nil
	}
	perGroup := budget / len(groups)
	if perGroup < 1 {
		perGroup = 1
	}

	var picked []*types.Chunk
	for _, g := range groups {
		n := perGroup
		if n > len(g) {
			n = len(g)
		}
		if n == 1 {
			picked = append(picked, g[len(g)/2])
			continue
		}
		step := float64(len(g)-1) / float64(n-1)
		for i := 0; i < n; i++ {
			idx := int(float64(i) * step)
			picked = append(picked, g[idx])
		}
		if len(picked) >= budget {
			break
		}
	}
	if len(picked) > budget {
		picked = picked[:budget]
	}
	return picked
}

// pickByKeywordDiversity greedily adds chunks from remaining whose
// content tokens overlap least with tokens already covered by picked,
// so the fill-in pass favors chunks discussing something new.
func pickByKeywordDiversity(remaining []*types.Chunk, n int, picked []*types.Chunk) []*types.Chunk {
	if n <= 0 || len(remaining) == 0 {
		return nil
	}
	covered := map[string]bool{}
	for _, c := range picked {
		for _, tok := range contentTokens(c.Text) {
			covered[tok] = true
		}
	}

	var out []*types.Chunk
	pool := append([]*types.Chunk(nil), remaining...)
	for len(out) < n && len(pool) > 0 {
		bestIdx, bestNovelty := 0, -1
		for i, c := range pool {
			toks := contentTokens(c.Text)
			novelty := 0
			for _, tok := range toks {
				if !covered[tok] {
					novelty++
				}
			}
			if novelty > bestNovelty {
				bestNovelty = novelty
				bestIdx = i
			}
		}
		chosen := pool[bestIdx]
		out = append(out, chosen)
		for _, tok := range contentTokens(chosen.Text) {
			covered[tok] = true
		}
		pool = append(pool[:bestIdx], pool[bestIdx+1:]...)
	}
	return out
}
