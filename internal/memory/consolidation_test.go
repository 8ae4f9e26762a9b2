package memory

import (
	"context"
	"testing"
	"time"

	"github.com/vidknora/vidknora/internal/types"
)

type fakeFactRepo struct {
	facts map[string]*types.ConversationFact
}

func newFakeFactRepo(facts ...*types.ConversationFact) *fakeFactRepo {
	r := &fakeFactRepo{facts: map[string]*types.ConversationFact{}}
	for _, f := range facts {
		r.facts[f.ID] = f
	}
	return r
}

func (r *fakeFactRepo) Create(ctx context.Context, f *types.ConversationFact) error {
	r.facts[f.ID] = f
	return nil
}

func (r *fakeFactRepo) ListByConversation(ctx context.Context, conversationID string) ([]*types.ConversationFact, error) {
	var out []*types.ConversationFact
	for _, f := range r.facts {
		if f.ConversationID == conversationID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeFactRepo) Update(ctx context.Context, f *types.ConversationFact) error {
	r.facts[f.ID] = f
	return nil
}

func (r *fakeFactRepo) Delete(ctx context.Context, id string) error {
	delete(r.facts, id)
	return nil
}

func (r *fakeFactRepo) MarkAccessed(ctx context.Context, ids []string, at time.Time) error {
	for _, id := range ids {
		if f, ok := r.facts[id]; ok {
			f.LastAccessed = at
			f.AccessCount++
		}
	}
	return nil
}

type fakeConversationRepo struct {
	conversations map[string]*types.Conversation
}

func (r *fakeConversationRepo) Get(ctx context.Context, id string) (*types.Conversation, error) {
	return r.conversations[id], nil
}
func (r *fakeConversationRepo) Update(ctx context.Context, c *types.Conversation) error {
	r.conversations[c.ID] = c
	return nil
}
func (r *fakeConversationRepo) AppendMessage(ctx context.Context, m *types.Message) error { return nil }
func (r *fakeConversationRepo) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*types.Message, error) {
	return nil, nil
}
func (r *fakeConversationRepo) ListIdleSince(ctx context.Context, idleSince time.Time) ([]*types.Conversation, error) {
	var out []*types.Conversation
	for _, c := range r.conversations {
		if c.UpdatedAt.Before(idleSince) {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestNormalizeKeyForGrouping(t *testing.T) {
	cases := map[string]string{
		"frequency_333_khz": "frequency_khz",
		"instructor_name":   "instructor",
		"topic_1":           "topic",
	}
	for in, want := range cases {
		if got := normalizeKeyForGrouping(in); got != want {
			t.Errorf("normalizeKeyForGrouping(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValuesAreSimilarExactAndSubstring(t *testing.T) {
	if !valuesAreSimilar("TensorFlow", "tensorflow") {
		t.Error("expected case-insensitive exact match to be similar")
	}
	if !valuesAreSimilar("Dr. Andrew Ng", "Andrew Ng") {
		t.Error("expected substring containment to be similar")
	}
	if valuesAreSimilar("TensorFlow", "PyTorch") {
		t.Error("expected unrelated values to be dissimilar")
	}
}

func TestDeduplicateMergesSimilarValuesKeepingEarlierHigherImportance(t *testing.T) {
	ctx := context.Background()
	keeper := &types.ConversationFact{ID: "1", ConversationID: "c1", Key: "instructor_name", Value: "Andrew Ng", Importance: 1.0, SourceTurn: 1}
	dup := &types.ConversationFact{ID: "2", ConversationID: "c1", Key: "instructor", Value: "Dr. Andrew Ng", Importance: 1.0, SourceTurn: 3, AccessCount: 2}
	repo := newFakeFactRepo(keeper, dup)
	c := NewConsolidator(repo, nil)

	merged, err := c.deduplicate(ctx, []*types.ConversationFact{keeper, dup}, false)
	if err != nil {
		t.Fatalf("deduplicate: %v", err)
	}
	if merged != 1 {
		t.Fatalf("expected 1 merge, got %d", merged)
	}
	if _, ok := repo.facts["2"]; ok {
		t.Error("expected duplicate fact to be deleted")
	}
	if repo.facts["1"].AccessCount != 2 {
		t.Errorf("expected keeper to inherit duplicate's access count, got %d", repo.facts["1"].AccessCount)
	}
}

func TestDeduplicateDryRunMakesNoChanges(t *testing.T) {
	ctx := context.Background()
	keeper := &types.ConversationFact{ID: "1", ConversationID: "c1", Key: "topic", Value: "ML", Importance: 1.0, SourceTurn: 1}
	dup := &types.ConversationFact{ID: "2", ConversationID: "c1", Key: "topic_2", Value: "ML", Importance: 0.9, SourceTurn: 2}
	repo := newFakeFactRepo(keeper, dup)
	c := NewConsolidator(repo, nil)

	merged, err := c.deduplicate(ctx, []*types.ConversationFact{keeper, dup}, true)
	if err != nil {
		t.Fatalf("deduplicate: %v", err)
	}
	if merged != 1 {
		t.Fatalf("expected 1 counted merge in dry run, got %d", merged)
	}
	if len(repo.facts) != 2 {
		t.Errorf("expected dry run to leave both facts in place, got %d", len(repo.facts))
	}
}

func TestApplyDecaySkipsIdentityAndRecentFacts(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	stale := &types.ConversationFact{ID: "1", Category: types.FactCategoryTopic, Importance: 0.8, CreatedAt: now.AddDate(0, 0, -30)}
	identity := &types.ConversationFact{ID: "2", Category: types.FactCategoryIdentity, Importance: 0.8, CreatedAt: now.AddDate(0, 0, -30)}
	fresh := &types.ConversationFact{ID: "3", Category: types.FactCategoryTopic, Importance: 0.8, CreatedAt: now}
	repo := newFakeFactRepo(stale, identity, fresh)
	c := NewConsolidator(repo, nil)

	decayed, err := c.applyDecay(ctx, []*types.ConversationFact{stale, identity, fresh}, false)
	if err != nil {
		t.Fatalf("applyDecay: %v", err)
	}
	if decayed != 1 {
		t.Fatalf("expected exactly 1 fact decayed, got %d", decayed)
	}
	if repo.facts["1"].Importance >= 0.8 {
		t.Errorf("expected stale fact's importance to drop, got %v", repo.facts["1"].Importance)
	}
	if repo.facts["2"].Importance != 0.8 {
		t.Errorf("expected identity fact to never decay, got %v", repo.facts["2"].Importance)
	}
}

func TestApplyDecayFloorsAtMinImportance(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	barelyAbove := &types.ConversationFact{ID: "1", Category: types.FactCategoryTopic, Importance: 0.32, CreatedAt: now.AddDate(0, 0, -30)}
	repo := newFakeFactRepo(barelyAbove)
	c := NewConsolidator(repo, nil)

	if _, err := c.applyDecay(ctx, []*types.ConversationFact{barelyAbove}, false); err != nil {
		t.Fatalf("applyDecay: %v", err)
	}
	if repo.facts["1"].Importance != minImportanceThreshold {
		t.Errorf("expected floor at %v, got %v", minImportanceThreshold, repo.facts["1"].Importance)
	}
}

func TestPruneFactsNoopBelowCap(t *testing.T) {
	ctx := context.Background()
	facts := []*types.ConversationFact{{ID: "1", Importance: 0.1}}
	c := NewConsolidator(newFakeFactRepo(facts...), nil)
	pruned, err := c.pruneFacts(ctx, facts, false)
	if err != nil {
		t.Fatalf("pruneFacts: %v", err)
	}
	if pruned != 0 {
		t.Errorf("expected no pruning below cap, got %d", pruned)
	}
}

func TestPruneFactsRemovesLowestScoringOverCap(t *testing.T) {
	ctx := context.Background()
	var facts []*types.ConversationFact
	repo := newFakeFactRepo()
	for i := 0; i < maxFactsPerConversation+5; i++ {
		f := &types.ConversationFact{ID: string(rune('a' + i)), ConversationID: "c1", Importance: 0.5}
		facts = append(facts, f)
		repo.facts[f.ID] = f
	}
	// One very low importance fact should be among the first pruned.
	facts[0].Importance = 0.05
	repo.facts[facts[0].ID] = facts[0]

	c := NewConsolidator(repo, nil)
	pruned, err := c.pruneFacts(ctx, facts, false)
	if err != nil {
		t.Fatalf("pruneFacts: %v", err)
	}
	if pruned != 5 {
		t.Fatalf("expected 5 pruned to return to cap, got %d", pruned)
	}
	if _, ok := repo.facts[facts[0].ID]; ok {
		t.Error("expected lowest-importance fact to be pruned")
	}
	if len(repo.facts) != maxFactsPerConversation {
		t.Errorf("expected %d facts remaining, got %d", maxFactsPerConversation, len(repo.facts))
	}
}

func TestPruneFactsNeverRemovesIdentity(t *testing.T) {
	ctx := context.Background()
	var facts []*types.ConversationFact
	repo := newFakeFactRepo()
	for i := 0; i < maxFactsPerConversation+3; i++ {
		cat := types.FactCategoryTopic
		importance := 0.5
		if i < 10 {
			cat = types.FactCategoryIdentity
			importance = 0.01
		}
		f := &types.ConversationFact{ID: string(rune('a' + i)), ConversationID: "c1", Importance: importance, Category: cat}
		facts = append(facts, f)
		repo.facts[f.ID] = f
	}

	c := NewConsolidator(repo, nil)
	if _, err := c.pruneFacts(ctx, facts, false); err != nil {
		t.Fatalf("pruneFacts: %v", err)
	}
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		if _, ok := repo.facts[id]; !ok {
			t.Errorf("expected identity fact %s to survive pruning", id)
		}
	}
}

func TestConsolidateConversationEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	c := NewConsolidator(newFakeFactRepo(), nil)
	stats, err := c.ConsolidateConversation(ctx, "missing", false)
	if err != nil {
		t.Fatalf("ConsolidateConversation: %v", err)
	}
	if stats.Merged != 0 || stats.Decayed != 0 || stats.Pruned != 0 {
		t.Errorf("expected zero stats for empty conversation, got %+v", stats)
	}
}

func TestConsolidateAllStaleOnlyProcessesIdleConversations(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	idle := &types.Conversation{ID: "idle", UpdatedAt: now.Add(-48 * time.Hour)}
	active := &types.Conversation{ID: "active", UpdatedAt: now}
	convRepo := &fakeConversationRepo{conversations: map[string]*types.Conversation{
		"idle": idle, "active": active,
	}}
	factRepo := newFakeFactRepo(
		&types.ConversationFact{ID: "f1", ConversationID: "idle", Importance: 0.5},
		&types.ConversationFact{ID: "f2", ConversationID: "active", Importance: 0.5},
	)

	c := NewConsolidator(factRepo, convRepo)
	stats, err := c.ConsolidateAllStale(ctx, 24*time.Hour, false)
	if err != nil {
		t.Fatalf("ConsolidateAllStale: %v", err)
	}
	if stats.Conversations != 1 {
		t.Errorf("expected exactly 1 stale conversation processed, got %d", stats.Conversations)
	}
}
