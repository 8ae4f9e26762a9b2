package memory

import (
	"math"
	"testing"
	"time"

	"github.com/vidknora/vidknora/internal/types"
)

func TestRecencyScoreDecaysOverTime(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	fresh := RecencyScore(now, time.Time{}, 0, now)
	if fresh != 1.0 {
		t.Errorf("expected score 1.0 at zero elapsed time, got %v", fresh)
	}

	aged := RecencyScore(now.Add(-48*time.Hour), time.Time{}, 0, now)
	if aged >= fresh {
		t.Errorf("expected aged fact to score lower than fresh, got aged=%v fresh=%v", aged, fresh)
	}
}

func TestRecencyScoreReinforcementCapsAtPointThree(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	old := now.Add(-1000 * time.Hour)

	score := RecencyScore(old, old, 100, now)
	baseDecay := math.Pow(decayRate, 1000)
	if score > baseDecay+0.3+1e-9 {
		t.Errorf("reinforcement exceeded cap: got %v", score)
	}
}

func TestRecencyScorePrefersLastAccessedOverCreated(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	createdLongAgo := now.Add(-1000 * time.Hour)
	accessedRecently := now.Add(-1 * time.Hour)

	withAccess := RecencyScore(createdLongAgo, accessedRecently, 0, now)
	withoutAccess := RecencyScore(createdLongAgo, time.Time{}, 0, now)
	if withAccess <= withoutAccess {
		t.Errorf("expected recent access to outscore no access: %v vs %v", withAccess, withoutAccess)
	}
}

func TestSourceTurnPriorityTiers(t *testing.T) {
	cases := []struct {
		turn, maxTurn int
		want          float64
	}{
		{1, 50, 1.0},
		{3, 50, 1.0},
		{7, 50, 0.8},
		{15, 50, 0.6},
		{2, 1, 1.0},
	}
	for _, c := range cases {
		if got := SourceTurnPriority(c.turn, c.maxTurn); got != c.want {
			t.Errorf("SourceTurnPriority(%d,%d) = %v, want %v", c.turn, c.maxTurn, got, c.want)
		}
	}
}

func TestSourceTurnPriorityLinearDecayFloorsAtPointTwo(t *testing.T) {
	got := SourceTurnPriority(990, 1000)
	if got < 0.2 {
		t.Errorf("expected floor of 0.2, got %v", got)
	}
}

func TestCompositeScoreWeightsSumToImportanceDominant(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	identity := &types.ConversationFact{
		Importance: 1.0,
		Category:   types.FactCategoryIdentity,
		SourceTurn: 1,
		CreatedAt:  now,
	}
	ephemeral := &types.ConversationFact{
		Importance: 0.2,
		Category:   types.FactCategoryEphemeral,
		SourceTurn: 40,
		CreatedAt:  now,
	}
	if CompositeScore(identity, 40, now) <= CompositeScore(ephemeral, 40, now) {
		t.Errorf("expected identity fact to outscore ephemeral fact")
	}
}

func TestSelectMultifactorOrdersDescendingAndLimits(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	facts := []*types.ConversationFact{
		{Key: "a", Importance: 0.2, Category: types.FactCategoryEphemeral, SourceTurn: 30, CreatedAt: now},
		{Key: "b", Importance: 1.0, Category: types.FactCategoryIdentity, SourceTurn: 1, CreatedAt: now},
		{Key: "c", Importance: 0.5, Category: types.FactCategoryTopic, SourceTurn: 5, CreatedAt: now},
	}

	scored := SelectMultifactor(facts, 2, now)
	if len(scored) != 2 {
		t.Fatalf("expected 2 facts after limiting, got %d", len(scored))
	}
	if scored[0].Fact.Key != "b" {
		t.Errorf("expected identity fact b to rank first, got %q", scored[0].Fact.Key)
	}
	if scored[0].Score < scored[1].Score {
		t.Errorf("expected descending score order")
	}
}

func TestSelectMultifactorEmptyInput(t *testing.T) {
	if got := SelectMultifactor(nil, 10, time.Now()); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestFormatForPromptGroupsByCategoryIdentityFirst(t *testing.T) {
	scored := []Scored{
		{Fact: &types.ConversationFact{Key: "topic", Value: "ml", Category: types.FactCategoryTopic, SourceTurn: 2}},
		{Fact: &types.ConversationFact{Key: "name", Value: "Ada", Category: types.FactCategoryIdentity, SourceTurn: 1}},
	}
	out := FormatForPrompt(scored)
	identityIdx := indexOf(out, "[identity]")
	topicIdx := indexOf(out, "[topic]")
	if identityIdx < 0 || topicIdx < 0 || identityIdx > topicIdx {
		t.Errorf("expected identity section before topic section, got %q", out)
	}
}

func TestFormatForPromptEmpty(t *testing.T) {
	if got := FormatForPrompt(nil); got != "" {
		t.Errorf("expected empty string for no facts, got %q", got)
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
