package graph

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/reflective-journal-kernel/internal/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{Path: filepath.Join(t.TempDir(), "graph.json")}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	logger := zaptest.NewLogger(t)

	s, err := NewStore(Config{Path: path}, logger)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	user := schema.NewUserNode("Alex", 1990)
	belief := schema.NewBeliefNode("I need to be perfect", 0.8, -0.6, true)
	event := schema.NewEventNode("missed a deadline", "office")

	for _, n := range []schema.Node{user, belief, event} {
		if err := s.AddNode(n); err != nil {
			t.Fatalf("Failed to add node: %v", err)
		}
	}
	if err := s.AddEdge(schema.NewEdge(user.ID, belief.ID, schema.EdgeTypeHasBelief)); err != nil {
		t.Fatalf("Failed to add edge: %v", err)
	}
	if err := s.AddEdge(schema.NewEdge(event.ID, belief.ID, schema.EdgeTypeReinforces)); err != nil {
		t.Fatalf("Failed to add edge: %v", err)
	}
	s.Close()

	reloaded, err := NewStore(Config{Path: path}, logger)
	if err != nil {
		t.Fatalf("Failed to reload store: %v", err)
	}
	defer reloaded.Close()

	if reloaded.NodeCount() != 3 {
		t.Errorf("Expected 3 nodes after reload, got %d", reloaded.NodeCount())
	}
	if reloaded.EdgeCount() != 2 {
		t.Errorf("Expected 2 edges after reload, got %d", reloaded.EdgeCount())
	}
	got := reloaded.GetNode(belief.ID)
	if got == nil || got.Text != "I need to be perfect" {
		t.Errorf("Expected belief text to survive the round trip, got %+v", got)
	}
	if u := reloaded.UserNode(); u == nil || u.Name != "Alex" {
		t.Errorf("Expected user node to survive the round trip, got %+v", u)
	}
}

func TestAddEdgeRejectsDanglingEndpoints(t *testing.T) {
	s := newTestStore(t)

	n := schema.NewTopicNode("work", nil)
	if err := s.AddNode(n); err != nil {
		t.Fatalf("Failed to add node: %v", err)
	}

	err := s.AddEdge(schema.NewEdge(n.ID, "nope", schema.EdgeTypeMentions))
	if !errors.Is(err, ErrDanglingEdge) {
		t.Errorf("Expected ErrDanglingEdge for missing target, got %v", err)
	}
	err = s.AddEdge(schema.NewEdge("nope", n.ID, schema.EdgeTypeMentions))
	if !errors.Is(err, ErrDanglingEdge) {
		t.Errorf("Expected ErrDanglingEdge for missing source, got %v", err)
	}
	if s.EdgeCount() != 0 {
		t.Errorf("Expected no edges stored, got %d", s.EdgeCount())
	}
}

func TestFindNodesByTextSubstring(t *testing.T) {
	s := newTestStore(t)

	belief := schema.NewBeliefNode("I always Fail under pressure", 0.5, -0.5, false)
	emotion := schema.NewEmotionNode("failure dread", 7)
	person := schema.NewPersonNode("Sam")
	user := schema.NewUserNode("", 0) // no text-bearing field

	for _, n := range []schema.Node{belief, emotion, person, user} {
		if err := s.AddNode(n); err != nil {
			t.Fatalf("Failed to add node: %v", err)
		}
	}

	hits := s.FindNodesByText("fail")
	if len(hits) != 2 {
		t.Fatalf("Expected 2 case-insensitive hits, got %d", len(hits))
	}

	// A node with no text-bearing field never matches, even on "".
	for _, n := range s.FindNodesByText("") {
		if n.ID == user.ID {
			t.Error("Expected textless node to be excluded from text search")
		}
	}
}

func TestFindNodesByTypeInsertionOrder(t *testing.T) {
	s := newTestStore(t)

	first := schema.NewTopicNode("sleep", nil)
	second := schema.NewTopicNode("running", nil)
	other := schema.NewPersonNode("Kim")
	for _, n := range []schema.Node{first, other, second} {
		if err := s.AddNode(n); err != nil {
			t.Fatalf("Failed to add node: %v", err)
		}
	}

	topics := s.FindNodesByType(schema.NodeTypeTopic)
	if len(topics) != 2 {
		t.Fatalf("Expected 2 topics, got %d", len(topics))
	}
	if topics[0].ID != first.ID || topics[1].ID != second.ID {
		t.Error("Expected topics in insertion order")
	}
}

func TestFindNodesByProperty(t *testing.T) {
	s := newTestStore(t)

	core := schema.NewBeliefNode("I am unlovable", 0.9, -0.9, true)
	minor := schema.NewBeliefNode("mondays are bad", 0.4, -0.2, false)
	for _, n := range []schema.Node{core, minor} {
		if err := s.AddNode(n); err != nil {
			t.Fatalf("Failed to add node: %v", err)
		}
	}

	hits := s.FindNodesByProperty("is_core", true)
	if len(hits) != 1 || hits[0].ID != core.ID {
		t.Errorf("Expected only the core belief, got %d hits", len(hits))
	}
}

func TestNeighborsDirections(t *testing.T) {
	s := newTestStore(t)

	event := schema.NewEventNode("argument with Sam", "")
	emotion := schema.NewEmotionNode("anger", 8)
	belief := schema.NewBeliefNode("people leave", 0.7, -0.8, true)
	for _, n := range []schema.Node{event, emotion, belief} {
		if err := s.AddNode(n); err != nil {
			t.Fatalf("Failed to add node: %v", err)
		}
	}
	if err := s.AddEdge(schema.NewEdge(event.ID, emotion.ID, schema.EdgeTypeTriggered)); err != nil {
		t.Fatalf("Failed to add edge: %v", err)
	}
	if err := s.AddEdge(schema.NewEdge(event.ID, belief.ID, schema.EdgeTypeReinforces)); err != nil {
		t.Fatalf("Failed to add edge: %v", err)
	}

	if out := s.Neighbors(event.ID, DirectionOutgoing); len(out) != 2 {
		t.Errorf("Expected 2 outgoing neighbors, got %d", len(out))
	}
	in := s.Neighbors(emotion.ID, DirectionIncoming)
	if len(in) != 1 || in[0].Node.ID != event.ID {
		t.Errorf("Expected the event as sole incoming neighbor, got %d", len(in))
	}
	if both := s.Neighbors(event.ID, DirectionBoth); len(both) != 2 {
		t.Errorf("Expected 2 neighbors in both directions, got %d", len(both))
	}
	if none := s.Neighbors("nope", DirectionBoth); len(none) != 0 {
		t.Errorf("Expected no neighbors for unknown id, got %d", len(none))
	}
}

func TestCorruptFileQuarantined(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("Failed to seed corrupt file: %v", err)
	}

	s, err := NewStore(Config{Path: path}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Expected corrupt file to yield an empty store, got error: %v", err)
	}
	defer s.Close()

	if s.NodeCount() != 0 {
		t.Errorf("Expected empty store, got %d nodes", s.NodeCount())
	}
	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Errorf("Expected corrupt file moved aside: %v", err)
	}
}

func TestSearchAnchorsFallsBackToSubstring(t *testing.T) {
	s := newTestStore(t)

	belief := schema.NewBeliefNode("deadlines make me freeze", 0.6, -0.7, false)
	if err := s.AddNode(belief); err != nil {
		t.Fatalf("Failed to add node: %v", err)
	}

	anchors := s.SearchAnchors("deadlines", 3)
	if len(anchors) == 0 {
		t.Fatal("Expected at least one anchor")
	}
	if anchors[0] != belief.ID {
		t.Errorf("Expected belief as anchor, got '%s'", anchors[0])
	}

	if got := s.SearchAnchors("zzzzz-nothing", 3); len(got) != 0 {
		t.Errorf("Expected no anchors for nonsense query, got %d", len(got))
	}
}
