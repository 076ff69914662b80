package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBadgerStore(t *testing.T) (*BadgerEngine, *Store) {
	t.Helper()
	engine, err := NewBadgerEngine(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine, NewStore(engine, nil)
}

func TestBadgerNodeRoundTrip(t *testing.T) {
	_, s := newBadgerStore(t)
	ctx := context.Background()

	_, err := s.AddNode(ctx, &NodeInput{
		ID: "concept:go", Type: "concept", Label: "Go",
		Properties: map[string]any{"lang": "go"},
	})
	require.NoError(t, err)

	got, err := s.GetNode("concept:go")
	require.NoError(t, err)
	assert.Equal(t, "Concept", got.Type)
	assert.Equal(t, "go", got.Properties["lang"])

	byType, err := s.GetNodes(NodeFilter{Type: "Concept"})
	require.NoError(t, err)
	assert.Len(t, byType, 1)
}

func TestBadgerEdgeTripleUpsert(t *testing.T) {
	_, s := newBadgerStore(t)
	ctx := context.Background()
	addNode(t, s, "p:a", "Person", "A")
	addNode(t, s, "p:b", "Person", "B")

	first, err := s.AddEdge(ctx, &EdgeInput{Source: "p:a", Target: "p:b", Type: "KNOWS"})
	require.NoError(t, err)
	second, err := s.AddEdge(ctx, &EdgeInput{
		Source: "p:a", Target: "p:b", Type: "KNOWS",
		Properties: map[string]any{"since": "2020"},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	count, err := s.Engine().EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBadgerCascadeDelete(t *testing.T) {
	_, s := newBadgerStore(t)
	addNode(t, s, "n:a", "Note", "a")
	addNode(t, s, "n:b", "Note", "b")
	mustEdge(t, s, "n:a", "n:b", "RELATES_TO")
	mustEdge(t, s, "n:b", "n:a", "REFERENCES")

	require.NoError(t, s.DeleteNode("n:a"))

	edges, err := s.Engine().AllEdges()
	require.NoError(t, err)
	assert.Empty(t, edges)

	_, err = s.Engine().GetOutgoingEdges("n:b")
	require.NoError(t, err)
}

func TestBadgerEmbeddingKeyspace(t *testing.T) {
	engine, s := newBadgerStore(t)
	addNode(t, s, "d:a", "Document", "Doc")

	vec := []float32{0.25, -1.5, 3}
	require.NoError(t, engine.SetEmbedding("d:a", vec))

	got, err := engine.Embedding("d:a")
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	seen := 0
	require.NoError(t, engine.ForEachEmbedding(func(id NodeID, v []float32) error {
		seen++
		assert.Equal(t, NodeID("d:a"), id)
		return nil
	}))
	assert.Equal(t, 1, seen)

	assert.ErrorIs(t, engine.SetEmbedding("d:ghost", vec), ErrNotFound)
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	engine, err := NewBadgerEngine(BadgerOptions{DataDir: dir})
	require.NoError(t, err)
	s := NewStore(engine, nil)

	addNode(t, s, "n:a", "Note", "a")
	addNode(t, s, "n:b", "Note", "b")
	edge := mustEdge(t, s, "n:a", "n:b", "RELATES_TO")
	require.NoError(t, engine.Close())

	reopened, err := NewBadgerEngine(BadgerOptions{DataDir: dir})
	require.NoError(t, err)
	defer reopened.Close()

	node, err := reopened.GetNode("n:a")
	require.NoError(t, err)
	assert.Equal(t, "a", node.Label)

	got, err := reopened.GetEdge(edge.ID)
	require.NoError(t, err)
	assert.Equal(t, NodeID("n:b"), got.Target)

	// The edge id sequence continues instead of restarting.
	next := reopened.NextEdgeID()
	assert.NotEqual(t, edge.ID, next)
}

func TestBadgerClosedEngine(t *testing.T) {
	engine, err := NewBadgerEngine(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	_, err = engine.GetNode("n:a")
	assert.ErrorIs(t, err, ErrStorageClosed)
}
