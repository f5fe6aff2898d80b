package memory

import (
	"context"
	"testing"
)

// stubEmbedder returns a fixed vector for any text, so hybrid search is
// exercised deterministically without an HTTP round trip.
type stubEmbedder struct {
	vec []float32
}

func (e stubEmbedder) TryEmbed(_ context.Context, _ string) []float32 {
	return e.vec
}

func openTestStore(t *testing.T, embedder Embedder) *Store {
	t.Helper()
	s, err := OpenInMemory(8, embedder)
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetOrCreateConversationIsIdempotent(t *testing.T) {
	s := openTestStore(t, nil)

	id1, err := s.GetOrCreateConversation("telegram", "u1")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := s.GetOrCreateConversation("telegram", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("expected same conversation id, got %d and %d", id1, id2)
	}
}

func TestSaveAndLoadMessagesOrdered(t *testing.T) {
	s := openTestStore(t, nil)
	convID, _ := s.GetOrCreateConversation("telegram", "u1")

	if _, err := s.SaveMessage(convID, "system", "sys", "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveMessage(convID, "user", "hello", "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveMessage(convID, "assistant", "hi", "", ""); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.LoadMessages(convID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}
	wantRoles := []string{"system", "user", "assistant"}
	for i, want := range wantRoles {
		if msgs[i].Role != want {
			t.Errorf("msgs[%d].Role = %q, want %q", i, msgs[i].Role, want)
		}
	}
	for i := range msgs {
		if msgs[i].CreatedAt.IsZero() {
			t.Errorf("msgs[%d].CreatedAt is zero, want populated from the created_at column", i)
		}
	}
}

func TestClearConversationRemovesEverything(t *testing.T) {
	s := openTestStore(t, stubEmbedder{vec: []float32{1, 0, 0, 0, 0, 0, 0, 0}})
	convID, _ := s.GetOrCreateConversation("telegram", "u1")
	s.SaveMessage(convID, "user", "hello", "", "")

	if err := s.ClearConversation("telegram", "u1"); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.LoadMessages(convID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages after clear, got %d", len(msgs))
	}

	newID, _ := s.GetOrCreateConversation("telegram", "u1")
	if newID == convID {
		t.Errorf("expected a fresh conversation id after clear")
	}
}

func TestRememberUpsertsAndRecallsLatestValue(t *testing.T) {
	s := openTestStore(t, stubEmbedder{vec: []float32{1, 0, 0, 0, 0, 0, 0, 0}})
	ctx := context.Background()

	if err := s.Remember(ctx, "fact", "capital_of_france", "v1", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Remember(ctx, "fact", "capital_of_france", "v2", ""); err != nil {
		t.Fatal(err)
	}

	val, ok, err := s.Recall("fact", "capital_of_france")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || val != "v2" {
		t.Errorf("Recall = (%q, %v), want (\"v2\", true)", val, ok)
	}

	entries, err := s.ListKnowledge("fact")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one row for (fact, capital_of_france), got %d", len(entries))
	}
}

func TestSearchKnowledgeHybrid(t *testing.T) {
	s := openTestStore(t, stubEmbedder{vec: []float32{1, 0, 0, 0, 0, 0, 0, 0}})
	ctx := context.Background()

	if err := s.Remember(ctx, "fact", "capital_of_france", "Paris is the capital of France", ""); err != nil {
		t.Fatal(err)
	}

	entries, err := s.SearchKnowledge(ctx, "French capital", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one result")
	}
	if entries[0].Key != "capital_of_france" {
		t.Errorf("entries[0].Key = %q, want capital_of_france", entries[0].Key)
	}
}

func TestSearchKnowledgeRespectsLimit(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		key := "k" + string(rune('a'+i))
		s.Remember(ctx, "cat", key, "apple banana cherry value "+key, "")
	}

	entries, err := s.SearchKnowledge(ctx, "apple", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) > 3 {
		t.Errorf("len(entries) = %d, want <= 3", len(entries))
	}
}

func TestForgetKnowledge(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()
	s.Remember(ctx, "fact", "k", "v", "")

	removed, err := s.Forget("fact", "k")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Error("expected Forget to report a row removed")
	}

	_, ok, err := s.Recall("fact", "k")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected Recall to miss after Forget")
	}
}

func TestSearchEmptyQueryReturnsNothing(t *testing.T) {
	s := openTestStore(t, nil)
	entries, err := s.SearchKnowledge(context.Background(), "", 5)
	if err != nil {
		t.Fatal(err)
	}
	if entries != nil {
		t.Errorf("expected nil result for empty query, got %v", entries)
	}
}
