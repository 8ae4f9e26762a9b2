package memory

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/vidknora/vidknora/internal/cleanup"
	"github.com/vidknora/vidknora/internal/logger"
	"github.com/vidknora/vidknora/internal/repository"
	"github.com/vidknora/vidknora/internal/types"
)

// Consolidation thresholds (spec §4.15): once a conversation holds
// more than maxFactsPerConversation facts the lowest-scoring
// non-identity ones are pruned, and stale, unused facts lose
// decayPenalty importance every pass but are not decayed below
// minImportanceThreshold.
const (
	minImportanceThreshold  = 0.3
	staleThresholdDays      = 7
	decayPenalty            = 0.1
	maxFactsPerConversation = 50
	similarityThreshold     = 0.85
)

var (
	trailingNumber = regexp.MustCompile(`_\d+|\d+$`)
	commonSuffix   = regexp.MustCompile(`_(name|value|type|id)$`)
)

// Consolidator runs post-session fact maintenance: merging duplicates,
// decaying stale unused facts, and pruning back to a soft
// per-conversation cap (spec §4.15).
type Consolidator struct {
	facts         repository.FactRepository
	conversations repository.ConversationRepository
}

// NewConsolidator constructs a Consolidator.
func NewConsolidator(facts repository.FactRepository, conversations repository.ConversationRepository) *Consolidator {
	return &Consolidator{facts: facts, conversations: conversations}
}

// ConsolidateConversation runs dedup, decay and pruning for one
// conversation's facts. dryRun computes counts without writing.
func (c *Consolidator) ConsolidateConversation(ctx context.Context, conversationID string, dryRun bool) (cleanup.ConsolidationStats, error) {
	facts, err := c.facts.ListByConversation(ctx, conversationID)
	if err != nil {
		return cleanup.ConsolidationStats{}, err
	}
	if len(facts) == 0 {
		return cleanup.ConsolidationStats{}, nil
	}

	merged, err := c.deduplicate(ctx, facts, dryRun)
	if err != nil {
		return cleanup.ConsolidationStats{}, err
	}

	if !dryRun {
		facts, err = c.facts.ListByConversation(ctx, conversationID)
		if err != nil {
			return cleanup.ConsolidationStats{}, err
		}
	}

	decayed, err := c.applyDecay(ctx, facts, dryRun)
	if err != nil {
		return cleanup.ConsolidationStats{}, err
	}

	pruned, err := c.pruneFacts(ctx, facts, dryRun)
	if err != nil {
		return cleanup.ConsolidationStats{}, err
	}

	return cleanup.ConsolidationStats{Merged: merged, Decayed: decayed, Pruned: pruned}, nil
}

// ConsolidateAllStale runs ConsolidateConversation over every
// conversation that hasn't had a new message since staleSince ago.
// Satisfies cleanup.MemoryConsolidator for the scheduled maintenance
// job (spec §4.12.4, §4.15).
func (c *Consolidator) ConsolidateAllStale(ctx context.Context, staleSince time.Duration, dryRun bool) (cleanup.ConsolidationStats, error) {
	idleBefore := time.Now().Add(-staleSince)
	conversations, err := c.conversations.ListIdleSince(ctx, idleBefore)
	if err != nil {
		return cleanup.ConsolidationStats{}, err
	}

	var total cleanup.ConsolidationStats
	for _, conv := range conversations {
		stats, cerr := c.ConsolidateConversation(ctx, conv.ID, dryRun)
		if cerr != nil {
			logger.GetLogger(ctx).Warnf("memory: consolidating conversation %s failed: %v", conv.ID, cerr)
			continue
		}
		total.Conversations++
		total.Merged += stats.Merged
		total.Decayed += stats.Decayed
		total.Pruned += stats.Pruned
	}
	return total, nil
}

// normalizeKeyForGrouping strips numeric segments and common suffixes
// so keys like "frequency_333_khz", "topic_1" and "instructor_name"
// group as "frequency_khz", "topic" and "instructor" for dedup.
func normalizeKeyForGrouping(key string) string {
	k := trailingNumber.ReplaceAllString(key, "")
	k = commonSuffix.ReplaceAllString(k, "")
	return strings.ToLower(k)
}

// valuesAreSimilar reports whether two fact values are close enough to
// treat as duplicates: exact match, substring containment, or a
// Jaccard word-overlap above similarityThreshold.
func valuesAreSimilar(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}

	wordsA := uniqueWords(a)
	wordsB := uniqueWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return false
	}
	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	if union == 0 {
		return false
	}
	return float64(intersection)/float64(union) >= similarityThreshold
}

func uniqueWords(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(s) {
		out[w] = true
	}
	return out
}

// deduplicate groups facts by normalized key, keeps the
// highest-importance/earliest-turn fact in each group and merges (by
// deletion) any group member whose value is similar enough to the
// keeper's, carrying the loser's access stats forward first.
func (c *Consolidator) deduplicate(ctx context.Context, facts []*types.ConversationFact, dryRun bool) (int, error) {
	groups := map[string][]*types.ConversationFact{}
	var order []string
	for _, f := range facts {
		base := normalizeKeyForGrouping(f.Key)
		if _, ok := groups[base]; !ok {
			order = append(order, base)
		}
		groups[base] = append(groups[base], f)
	}

	merged := 0
	for _, base := range order {
		group := groups[base]
		if len(group) <= 1 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Importance != group[j].Importance {
				return group[i].Importance > group[j].Importance
			}
			return group[i].SourceTurn < group[j].SourceTurn
		})

		keeper := group[0]
		for _, dup := range group[1:] {
			if !valuesAreSimilar(keeper.Value, dup.Value) {
				continue
			}
			if dryRun {
				merged++
				continue
			}
			if dup.AccessCount > keeper.AccessCount {
				keeper.AccessCount = dup.AccessCount
			}
			if !dup.LastAccessed.IsZero() && (keeper.LastAccessed.IsZero() || dup.LastAccessed.After(keeper.LastAccessed)) {
				keeper.LastAccessed = dup.LastAccessed
			}
			if err := c.facts.Update(ctx, keeper); err != nil {
				return merged, err
			}
			if err := c.facts.Delete(ctx, dup.ID); err != nil {
				return merged, err
			}
			merged++
		}
	}
	return merged, nil
}

// applyDecay reduces the importance of non-identity facts that
// haven't been touched (accessed, or created if never accessed)
// within staleThresholdDays, floored at minImportanceThreshold.
func (c *Consolidator) applyDecay(ctx context.Context, facts []*types.ConversationFact, dryRun bool) (int, error) {
	decayed := 0
	staleThreshold := time.Now().AddDate(0, 0, -staleThresholdDays)

	for _, f := range facts {
		if f.Category == types.FactCategoryIdentity {
			continue
		}
		reference := f.LastAccessed
		if reference.IsZero() {
			reference = f.CreatedAt
		}
		if !reference.Before(staleThreshold) {
			continue
		}
		if f.Importance <= minImportanceThreshold {
			continue
		}

		newImportance := f.Importance - decayPenalty
		if newImportance < minImportanceThreshold {
			newImportance = minImportanceThreshold
		}
		if newImportance >= f.Importance {
			continue
		}

		if !dryRun {
			f.Importance = newImportance
			if err := c.facts.Update(ctx, f); err != nil {
				return decayed, err
			}
		}
		decayed++
	}
	return decayed, nil
}

type pruneCandidate struct {
	fact  *types.ConversationFact
	score float64
}

// pruneFacts removes the lowest-scoring non-identity facts once a
// conversation holds more than maxFactsPerConversation, favoring
// facts that are important, used, or recently accessed for survival.
func (c *Consolidator) pruneFacts(ctx context.Context, facts []*types.ConversationFact, dryRun bool) (int, error) {
	if len(facts) <= maxFactsPerConversation {
		return 0, nil
	}
	excess := len(facts) - maxFactsPerConversation

	var candidates []pruneCandidate
	now := time.Now()
	for _, f := range facts {
		if f.Category == types.FactCategoryIdentity {
			continue
		}
		score := f.Importance
		if f.AccessCount > 0 {
			score += 0.2
		}
		if !f.LastAccessed.IsZero() && now.Sub(f.LastAccessed) < 24*time.Hour {
			score += 0.3
		}
		candidates = append(candidates, pruneCandidate{fact: f, score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score < candidates[j].score })

	if excess > len(candidates) {
		excess = len(candidates)
	}

	pruned := 0
	for _, cand := range candidates[:excess] {
		if !dryRun {
			if err := c.facts.Delete(ctx, cand.fact.ID); err != nil {
				return pruned, err
			}
		}
		pruned++
	}
	return pruned, nil
}
