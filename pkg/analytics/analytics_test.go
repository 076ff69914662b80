package analytics

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/munindb/pkg/graph"
)

// buildGraph loads a snapshot of the edge list given as "a->b" strings.
// Node ids get a "n:" prefix.
func buildGraph(t *testing.T, edges ...string) *Graph {
	t.Helper()
	s := graph.NewStore(graph.NewMemoryEngine(), nil)
	ctx := context.Background()

	seen := make(map[string]bool)
	addNode := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		_, err := s.AddNode(ctx, &graph.NodeInput{
			ID: graph.NodeID("n:" + name), Type: "Note", Label: name,
		})
		require.NoError(t, err)
	}

	for _, spec := range edges {
		var from, to string
		_, err := fmt.Sscanf(spec, "%1s->%1s", &from, &to)
		require.NoError(t, err, "edge spec %q", spec)
		addNode(from)
		addNode(to)
		_, err = s.AddEdge(ctx, &graph.EdgeInput{
			Source: graph.NodeID("n:" + from),
			Target: graph.NodeID("n:" + to),
			Type:   "RELATES_TO",
		})
		require.NoError(t, err)
	}

	g, err := Load(s.Engine())
	require.NoError(t, err)
	return g
}

func id(name string) graph.NodeID { return graph.NodeID("n:" + name) }

func TestShortestPathOnCycle(t *testing.T) {
	// 4-cycle A-B-C-D-A: opposite corners are two hops apart, so the
	// returned path has three nodes.
	g := buildGraph(t, "a->b", "b->c", "c->d", "d->a")

	path, err := g.ShortestPath(id("a"), id("c"), 0)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, id("a"), path[0])
	assert.Equal(t, id("c"), path[2])
}

func TestShortestPathRespectsMaxDepth(t *testing.T) {
	g := buildGraph(t, "a->b", "b->c", "c->d")

	path, err := g.ShortestPath(id("a"), id("d"), 2)
	require.NoError(t, err)
	assert.Nil(t, path, "d is three hops away")

	path, err = g.ShortestPath(id("a"), id("d"), 3)
	require.NoError(t, err)
	assert.Len(t, path, 4)
}

func TestShortestPathEdgeCases(t *testing.T) {
	g := buildGraph(t, "a->b", "c->d")

	path, err := g.ShortestPath(id("a"), id("a"), 0)
	require.NoError(t, err)
	assert.Equal(t, []graph.NodeID{id("a")}, path)

	path, err = g.ShortestPath(id("a"), id("d"), 0)
	require.NoError(t, err)
	assert.Nil(t, path, "disconnected components")

	_, err = g.ShortestPath(id("a"), id("z"), 0)
	assert.ErrorIs(t, err, graph.ErrNotFound)

	_, err = g.ShortestPath(id("a"), id("b"), -1)
	assert.ErrorIs(t, err, graph.ErrValidation)
}

func TestShortestPathUndirectedView(t *testing.T) {
	// Only c->a exists, but the undirected view still connects a to c.
	g := buildGraph(t, "c->a")

	path, err := g.ShortestPath(id("a"), id("c"), 0)
	require.NoError(t, err)
	assert.Len(t, path, 2)
}

func TestAllPaths(t *testing.T) {
	// Diamond: a->b->d and a->c->d.
	g := buildGraph(t, "a->b", "b->d", "a->c", "c->d")

	paths, err := g.AllPaths(id("a"), id("d"), 4)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
	for _, p := range paths {
		assert.Equal(t, id("a"), p[0])
		assert.Equal(t, id("d"), p[len(p)-1])
	}

	bounded, err := g.AllPaths(id("a"), id("d"), 1)
	require.NoError(t, err)
	assert.Empty(t, bounded)

	_, err = g.AllPaths(id("a"), id("d"), 0)
	assert.ErrorIs(t, err, graph.ErrValidation)
}

func TestConnectedComponents(t *testing.T) {
	g := buildGraph(t, "a->b", "b->c", "d->e", "f->f")

	components := g.ConnectedComponents()
	require.Len(t, components, 3)
	assert.Equal(t, []graph.NodeID{id("a"), id("b"), id("c")}, components[0])
	assert.Equal(t, []graph.NodeID{id("d"), id("e")}, components[1])
	assert.Equal(t, []graph.NodeID{id("f")}, components[2])
}

func TestDegreeCentrality(t *testing.T) {
	// Star: a -> b, c, d. n=4, so a scores 3/3 and the leaves 1/3.
	g := buildGraph(t, "a->b", "a->c", "a->d")

	scores := g.DegreeCentrality()
	assert.InDelta(t, 1.0, scores[id("a")], 1e-9)
	assert.InDelta(t, 1.0/3.0, scores[id("b")], 1e-9)

	empty := buildGraph(t)
	assert.Empty(t, empty.DegreeCentrality())
}

func TestBetweennessCentrality(t *testing.T) {
	// Path a-b-c: every a<->c shortest path routes through b.
	g := buildGraph(t, "a->b", "b->c")

	raw := g.BetweennessCentrality(false)
	assert.InDelta(t, 1.0, raw[id("b")], 1e-9)
	assert.InDelta(t, 0.0, raw[id("a")], 1e-9)

	normalized := g.BetweennessCentrality(true)
	assert.InDelta(t, 1.0, normalized[id("b")], 1e-9, "n=3: one possible pair")
}

func TestBetweennessIgnoresSelfLoops(t *testing.T) {
	g := buildGraph(t, "a->b", "b->c", "b->b")

	scores := g.BetweennessCentrality(false)
	assert.InDelta(t, 1.0, scores[id("b")], 1e-9)
}

func TestClusteringCoefficient(t *testing.T) {
	// Triangle plus a pendant: a,b,c fully connected, d hangs off a.
	g := buildGraph(t, "a->b", "b->c", "c->a", "a->d")

	scores := g.ClusteringCoefficient()
	assert.InDelta(t, 1.0/3.0, scores[id("a")], 1e-9, "one of three neighbor pairs linked")
	assert.InDelta(t, 1.0, scores[id("b")], 1e-9)
	assert.Equal(t, 0.0, scores[id("d")], "fewer than two neighbors")

	for nodeID, score := range scores {
		assert.GreaterOrEqual(t, score, 0.0, "node %s", nodeID)
		assert.LessOrEqual(t, score, 1.0, "node %s", nodeID)
	}
}

func TestPageRankSumsToOne(t *testing.T) {
	graphs := []*Graph{
		buildGraph(t, "a->b", "b->c", "c->a"),
		buildGraph(t, "a->b", "a->c", "a->d"), // dangling leaves
		buildGraph(t, "a->b", "c->d"),         // disconnected
		buildGraph(t, "a->a"),                 // self-loop
	}
	for i, g := range graphs {
		scores, err := g.PageRank(DefaultPageRankOptions())
		require.NoError(t, err)

		sum := 0.0
		for _, score := range scores {
			sum += score
		}
		assert.InDelta(t, 1.0, sum, 1e-3, "graph %d", i)
	}
}

func TestPageRankRanksHubs(t *testing.T) {
	// b receives from everyone; it must outrank its sources.
	g := buildGraph(t, "a->b", "c->b", "d->b")

	scores, err := g.PageRank(DefaultPageRankOptions())
	require.NoError(t, err)
	assert.Greater(t, scores[id("b")], scores[id("a")])
}

func TestPageRankValidation(t *testing.T) {
	g := buildGraph(t, "a->b")

	_, err := g.PageRank(PageRankOptions{Damping: 1.5, MaxIterations: 10})
	assert.ErrorIs(t, err, graph.ErrValidation)

	_, err = g.PageRank(PageRankOptions{Damping: 0.85, MaxIterations: 0})
	assert.ErrorIs(t, err, graph.ErrValidation)
}

func TestEmptyGraph(t *testing.T) {
	g := buildGraph(t)

	assert.Equal(t, 0, g.NodeCount())
	assert.Empty(t, g.ConnectedComponents())
	assert.Empty(t, g.DegreeCentrality())
	assert.Empty(t, g.ClusteringCoefficient())

	scores, err := g.PageRank(DefaultPageRankOptions())
	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.Empty(t, g.BetweennessCentrality(true))
}
