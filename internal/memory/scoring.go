package memory

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/vidknora/vidknora/internal/types"
)

// Composite-score weights (spec §4.15): importance dominates, recency
// and category priority share the remainder, with source-turn
// priority as a smaller tiebreaker favoring identity-establishing
// early turns.
const (
	weightImportance = 0.40
	weightRecency    = 0.25
	weightCategory   = 0.20
	weightSourceTurn = 0.15

	// decayRate is the per-hour multiplicative decay applied to an
	// untouched fact's recency score; ~88% remains after 24h.
	decayRate = 0.995

	// DefaultFactLimit bounds how many facts get injected into a
	// system prompt absent a caller-supplied limit.
	DefaultFactLimit = 15
)

var categoryOrder = []types.FactCategory{
	types.FactCategoryIdentity,
	types.FactCategoryTopic,
	types.FactCategoryPreference,
	types.FactCategorySession,
	types.FactCategoryEphemeral,
}

// Scored pairs a fact with its composite memory score.
type Scored struct {
	Fact  *types.ConversationFact
	Score float64
}

// RecencyScore decays exponentially from the fact's last-touched time
// (last access if any, else creation) and adds a reinforcement bonus
// for facts accessed repeatedly, so frequently-used facts fade slower
// than ones touched once and forgotten.
func RecencyScore(createdAt, lastAccessed time.Time, accessCount int, now time.Time) float64 {
	reference := createdAt
	if !lastAccessed.IsZero() {
		reference = lastAccessed
	}
	hoursElapsed := now.Sub(reference).Hours()
	baseDecay := math.Pow(decayRate, hoursElapsed)
	reinforcement := math.Min(0.3, float64(accessCount)*0.05)
	return math.Min(1.0, baseDecay+reinforcement)
}

// SourceTurnPriority favors facts extracted during a conversation's
// first few turns, where identity-establishing information tends to
// land, decaying linearly for turns past the first twenty.
func SourceTurnPriority(sourceTurn, maxTurn int) float64 {
	if maxTurn <= 1 {
		return 1.0
	}
	switch {
	case sourceTurn <= 3:
		return 1.0
	case sourceTurn <= 10:
		return 0.8
	case sourceTurn <= 20:
		return 0.6
	default:
		return math.Max(0.2, 1.0-float64(sourceTurn)/float64(maxTurn))
	}
}

// CompositeScore weights importance, recency, category priority and
// source-turn priority into one ranking score (spec §4.15).
func CompositeScore(fact *types.ConversationFact, maxTurn int, now time.Time) float64 {
	importance := fact.Importance
	if importance == 0 {
		importance = 0.5
	}
	recency := RecencyScore(fact.CreatedAt, fact.LastAccessed, fact.AccessCount, now)
	category := fact.Category.Priority()
	sourcePriority := SourceTurnPriority(fact.SourceTurn, maxTurn)

	return importance*weightImportance +
		recency*weightRecency +
		category*weightCategory +
		sourcePriority*weightSourceTurn
}

// SelectMultifactor scores every fact and returns the top limit by
// composite score descending (limit <= 0 returns every fact scored).
func SelectMultifactor(facts []*types.ConversationFact, limit int, now time.Time) []Scored {
	if len(facts) == 0 {
		return nil
	}
	maxTurn := 0
	for _, f := range facts {
		if f.SourceTurn > maxTurn {
			maxTurn = f.SourceTurn
		}
	}

	scored := make([]Scored, len(facts))
	for i, f := range facts {
		scored[i] = Scored{Fact: f, Score: CompositeScore(f, maxTurn, now)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// FormatForPrompt renders scored facts grouped by category, identity
// first, for injection into a chat system prompt.
func FormatForPrompt(scored []Scored) string {
	if len(scored) == 0 {
		return ""
	}
	byCategory := map[types.FactCategory][]Scored{}
	for _, s := range scored {
		cat := s.Fact.Category
		if cat == "" {
			cat = types.FactCategoryTopic
		}
		byCategory[cat] = append(byCategory[cat], s)
	}

	var lines []string
	for _, cat := range categoryOrder {
		group, ok := byCategory[cat]
		if !ok {
			continue
		}
		items := make([]string, len(group))
		for i, s := range group {
			items[i] = fmt.Sprintf("%s=%s(T%d)", s.Fact.Key, s.Fact.Value, s.Fact.SourceTurn)
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", cat, strings.Join(items, ", ")))
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\n**Known Facts**:\n" + strings.Join(lines, "\n")
}
