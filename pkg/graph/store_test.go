package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(NewMemoryEngine(), nil)
}

func addNode(t *testing.T, s *Store, id NodeID, nodeType, label string) *Node {
	t.Helper()
	node, err := s.AddNode(context.Background(), &NodeInput{ID: id, Type: nodeType, Label: label})
	require.NoError(t, err)
	return node
}

func TestAddNodeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	props := map[string]any{"lang": "go", "stars": int64(42)}
	created, err := s.AddNode(ctx, &NodeInput{
		ID:         "concept:go",
		Type:       "concept",
		Label:      "Go",
		Content:    "A programming language.",
		Properties: props,
	})
	require.NoError(t, err)
	assert.Equal(t, "Concept", created.Type)

	got, err := s.GetNode("concept:go")
	require.NoError(t, err)
	assert.Equal(t, NormalizeNodeType("concept"), got.Type)
	assert.Equal(t, "Go", got.Label)
	assert.Equal(t, props, got.Properties)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestAddNodeUpsertMergesProperties(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddNode(ctx, &NodeInput{
		ID: "task:1", Type: "Task", Label: "First",
		Properties: map[string]any{"status": "open", "owner": "ann"},
	})
	require.NoError(t, err)

	updated, err := s.AddNode(ctx, &NodeInput{
		ID: "task:1", Type: "Task",
		Properties: map[string]any{"status": "done"},
	})
	require.NoError(t, err)

	assert.Equal(t, "First", updated.Label, "empty label must not clobber")
	assert.Equal(t, "done", updated.Properties["status"])
	assert.Equal(t, "ann", updated.Properties["owner"], "merge, not replace")

	count, err := s.Engine().NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAddNodeValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddNode(ctx, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.AddNode(ctx, &NodeInput{Type: "Task"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.AddNode(ctx, &NodeInput{ID: "task:1"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateNode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addNode(t, s, "note:1", "Note", "Original")

	_, err := s.UpdateNode(ctx, "note:missing", &NodeInput{Label: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateNode(ctx, "note:1", &NodeInput{
		Properties: map[string]any{"pinned": true, "draft": "yes"},
	})
	require.NoError(t, err)

	// nil value removes the key
	got, err := s.UpdateNode(ctx, "note:1", &NodeInput{
		Label:      "Renamed",
		Properties: map[string]any{"draft": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Label)
	assert.Equal(t, true, got.Properties["pinned"])
	assert.NotContains(t, got.Properties, "draft")
}

func TestGetNodesFilterAndPagination(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		addNode(t, s, NodeID(fmt.Sprintf("task:%d", i)), "Task", "t")
	}
	addNode(t, s, "note:1", "Note", "n")

	tasks, err := s.GetNodes(NodeFilter{Type: "task"})
	require.NoError(t, err)
	assert.Len(t, tasks, 5)

	page, err := s.GetNodes(NodeFilter{Type: "Task", Offset: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, NodeID("task:2"), page[0].ID)
	assert.Equal(t, NodeID("task:3"), page[1].ID)

	all, err := s.GetNodes(NodeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestEdgeUniqueTriple(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addNode(t, s, "person:a", "Person", "A")
	addNode(t, s, "person:b", "Person", "B")

	first, err := s.AddEdge(ctx, &EdgeInput{
		Source: "person:a", Target: "person:b", Type: "X",
		Properties: map[string]any{"p": int64(1)},
	})
	require.NoError(t, err)

	second, err := s.AddEdge(ctx, &EdgeInput{
		Source: "person:a", Target: "person:b", Type: "X",
		Properties: map[string]any{"p": int64(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "duplicate triple updates, not duplicates")

	edges, err := s.GetEdges(EdgeFilter{Source: "person:a"})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, int64(1), edges[0].Properties["p"])

	// Same endpoints, different type: a distinct edge.
	_, err = s.AddEdge(ctx, &EdgeInput{Source: "person:a", Target: "person:b", Type: "Y"})
	require.NoError(t, err)
	count, err := s.Engine().EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestAddEdgeMissingEndpoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addNode(t, s, "person:a", "Person", "A")

	_, err := s.AddEdge(ctx, &EdgeInput{Source: "person:a", Target: "person:ghost", Type: "KNOWS"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.AddEdge(ctx, &EdgeInput{Source: "person:ghost", Target: "person:a", Type: "KNOWS"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteNodeCascades(t *testing.T) {
	s := newTestStore(t)
	addNode(t, s, "n:a", "Note", "a")
	addNode(t, s, "n:b", "Note", "b")
	addNode(t, s, "n:c", "Note", "c")

	mustEdge(t, s, "n:a", "n:b", "RELATES_TO")
	mustEdge(t, s, "n:b", "n:c", "RELATES_TO")
	mustEdge(t, s, "n:c", "n:a", "RELATES_TO")

	require.NoError(t, s.DeleteNode("n:a"))

	_, err := s.GetNode("n:a")
	assert.ErrorIs(t, err, ErrNotFound)

	edges, err := s.Engine().AllEdges()
	require.NoError(t, err)
	for _, e := range edges {
		assert.NotEqual(t, NodeID("n:a"), e.Source)
		assert.NotEqual(t, NodeID("n:a"), e.Target)
	}
	assert.Len(t, edges, 1) // only b->c survives
}

func TestFindNodesByProperties(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.AddNode(ctx, &NodeInput{
		ID: "person:ann", Type: "Person", Label: "Ann",
		Properties: map[string]any{"city": "Oslo", "age": int64(30)},
	})
	require.NoError(t, err)
	_, err = s.AddNode(ctx, &NodeInput{
		ID: "person:bo", Type: "Person", Label: "Bo",
		Properties: map[string]any{"city": "Oslo", "age": int64(25)},
	})
	require.NoError(t, err)

	oslo, err := s.FindNodesByProperties(map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	assert.Len(t, oslo, 2)

	// Numeric comparison coerces across int widths.
	thirty, err := s.FindNodesByProperties(map[string]any{"city": "Oslo", "age": 30})
	require.NoError(t, err)
	require.Len(t, thirty, 1)
	assert.Equal(t, NodeID("person:ann"), thirty[0].ID)

	none, err := s.FindNodesByProperties(map[string]any{"city": "Bergen"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetNodeNeighbors(t *testing.T) {
	s := newTestStore(t)
	addNode(t, s, "p:a", "Person", "A")
	addNode(t, s, "p:b", "Person", "B")
	addNode(t, s, "p:c", "Person", "C")

	mustEdge(t, s, "p:a", "p:b", "KNOWS")
	mustEdge(t, s, "p:c", "p:a", "KNOWS")
	mustEdge(t, s, "p:a", "p:c", "WORKS_ON")

	out, err := s.GetNodeNeighbors("p:a", DirectionOut)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	in, err := s.GetNodeNeighbors("p:a", DirectionIn)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, NodeID("p:c"), in[0].ID)

	knows, err := s.GetNodeNeighbors("p:a", DirectionBoth, "knows")
	require.NoError(t, err)
	assert.Len(t, knows, 2, "edge type filter normalizes")

	_, err = s.GetNodeNeighbors("p:ghost", DirectionBoth)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBulkAddCollectsFailures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result := s.BulkAddNodes(ctx, []*NodeInput{
		{ID: "a:1", Type: "Note"},
		{ID: "", Type: "Note"}, // invalid
		{ID: "a:2", Type: "Note"},
	})
	assert.Equal(t, 2, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "#1", result.Failed[0].Ref)

	edgeResult := s.BulkAddEdges(ctx, []*EdgeInput{
		{Source: "a:1", Target: "a:2", Type: "RELATES_TO"},
		{Source: "a:1", Target: "a:ghost", Type: "RELATES_TO"}, // missing endpoint
	})
	assert.Equal(t, 1, edgeResult.Succeeded)
	assert.Len(t, edgeResult.Failed, 1)
}

func TestMergeDuplicateNodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddNode(ctx, &NodeInput{
		ID: "c:keep", Type: "Concept", Label: "Keep",
		Properties: map[string]any{"a": "keep"},
	})
	require.NoError(t, err)
	_, err = s.AddNode(ctx, &NodeInput{
		ID: "c:dup", Type: "Concept", Label: "Dup",
		Properties: map[string]any{"a": "dup", "b": "only-dup"},
	})
	require.NoError(t, err)
	addNode(t, s, "c:other", "Concept", "Other")

	mustEdge(t, s, "c:dup", "c:other", "RELATES_TO")
	mustEdge(t, s, "c:other", "c:dup", "REFERENCES")

	result, err := s.MergeDuplicateNodes(ctx, []NodeID{"c:keep", "c:dup"}, "c:keep", MergeUnion)
	require.NoError(t, err)
	assert.Empty(t, result.Failed)

	_, err = s.GetNode("c:dup")
	assert.ErrorIs(t, err, ErrNotFound)

	kept, err := s.GetNode("c:keep")
	require.NoError(t, err)
	assert.Equal(t, "keep", kept.Properties["a"], "kept node wins collisions under union")
	assert.Equal(t, "only-dup", kept.Properties["b"])

	// Edges redirected to the kept node.
	out, err := s.Engine().GetOutgoingEdges("c:keep")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, NodeID("c:other"), out[0].Target)

	in, err := s.Engine().GetIncomingEdges("c:keep")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, NodeID("c:other"), in[0].Source)
}

func TestMergeDuplicateNodesValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addNode(t, s, "c:a", "Concept", "A")
	addNode(t, s, "c:b", "Concept", "B")

	_, err := s.MergeDuplicateNodes(ctx, []NodeID{"c:a"}, "c:a", MergeUnion)
	assert.ErrorIs(t, err, ErrValidation, "fewer than two nodes")

	_, err = s.MergeDuplicateNodes(ctx, []NodeID{"c:a", "c:b"}, "c:missing", MergeUnion)
	assert.ErrorIs(t, err, ErrValidation, "keep id not in set")
}

// failingVectorizer always errors, standing in for a downed provider.
type failingVectorizer struct{}

func (failingVectorizer) Vectorize(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider unavailable")
}

func TestEmbeddingFailureNeverFailsWrite(t *testing.T) {
	engine := NewMemoryEngine()
	s := NewStore(engine, failingVectorizer{})

	node, err := s.AddNode(context.Background(), &NodeInput{
		ID: "doc:1", Type: "Document", Label: "Doc", Content: "some text",
	})
	require.NoError(t, err, "provider failure must not fail the write")
	require.NotNil(t, node)

	vec, err := engine.Embedding("doc:1")
	require.NoError(t, err)
	assert.Empty(t, vec, "degraded node stores no embedding")
}

func mustEdge(t *testing.T, s *Store, source, target NodeID, edgeType string) *Edge {
	t.Helper()
	edge, err := s.AddEdge(context.Background(), &EdgeInput{Source: source, Target: target, Type: edgeType})
	require.NoError(t, err)
	return edge
}
