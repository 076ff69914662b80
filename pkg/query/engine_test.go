package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/munindb/pkg/graph"
)

func newTestEngine(t *testing.T) (*Engine, *graph.Store) {
	t.Helper()
	store := graph.NewStore(graph.NewMemoryEngine(), nil)
	return NewEngine(store), store
}

func seedPeople(t *testing.T, store *graph.Store) {
	t.Helper()
	ctx := context.Background()
	_, err := store.AddNode(ctx, &graph.NodeInput{
		ID: "person:ann", Type: "Person", Label: "Ann",
		Properties: map[string]any{"name": "Ann"},
	})
	require.NoError(t, err)
	_, err = store.AddNode(ctx, &graph.NodeInput{
		ID: "person:bo", Type: "Person", Label: "Bo",
		Properties: map[string]any{"name": "Bo"},
	})
	require.NoError(t, err)
	_, err = store.AddEdge(ctx, &graph.EdgeInput{
		Source: "person:ann", Target: "person:bo", Type: "KNOWS",
	})
	require.NoError(t, err)
}

func TestMatchKnowsScenario(t *testing.T) {
	engine, store := newTestEngine(t)
	seedPeople(t, store)

	result, err := engine.Execute(context.Background(),
		`MATCH (a:Person)-[:KNOWS]->(b:Person) RETURN a.name AS from, b.name AS to`)
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, Row{"from": "Ann", "to": "Bo"}, result.Rows[0])
}

func TestMatchWhereFilters(t *testing.T) {
	engine, store := newTestEngine(t)
	seedPeople(t, store)

	result, err := engine.Execute(context.Background(),
		`MATCH (p:Person) WHERE p.name = "Ann" RETURN p.name`)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Ann", result.Rows[0]["p.name"])

	result, err = engine.Execute(context.Background(),
		`MATCH (p:Person) WHERE NOT p.name = "Ann" RETURN p.name`)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Bo", result.Rows[0]["p.name"])

	result, err = engine.Execute(context.Background(),
		`MATCH (p:Person) WHERE p.name STARTS WITH "An" RETURN p.name`)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
}

func TestMatchOrderLimitDistinct(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	for i, city := range []string{"Oslo", "Bergen", "Oslo", "Tromso"} {
		_, err := store.AddNode(ctx, &graph.NodeInput{
			ID:         graph.NodeID(fmt.Sprintf("person:%d", i)),
			Type:       "Person",
			Properties: map[string]any{"city": city},
		})
		require.NoError(t, err)
	}

	result, err := engine.Execute(ctx,
		`MATCH (p:Person) RETURN DISTINCT p.city AS city ORDER BY city`)
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, "Bergen", result.Rows[0]["city"])
	assert.Equal(t, "Oslo", result.Rows[1]["city"])
	assert.Equal(t, "Tromso", result.Rows[2]["city"])

	result, err = engine.Execute(ctx,
		`MATCH (p:Person) RETURN DISTINCT p.city AS city ORDER BY city DESC LIMIT 2`)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "Tromso", result.Rows[0]["city"])
	assert.Equal(t, "Oslo", result.Rows[1]["city"])
}

func TestMatchByIDProperty(t *testing.T) {
	engine, store := newTestEngine(t)
	seedPeople(t, store)

	result, err := engine.Execute(context.Background(),
		`MATCH (p:Person {id: "person:ann"}) RETURN p`)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	node, ok := result.Rows[0]["p"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "person:ann", node["id"])
	assert.Equal(t, "Ann", node["label"])
}

// A second edge hop parses but does not constrain the match: only the
// first edge pattern is traversed.
func TestMatchOnlyFirstEdgeTraversed(t *testing.T) {
	engine, store := newTestEngine(t)
	seedPeople(t, store)

	result, err := engine.Execute(context.Background(),
		`MATCH (a:Person)-[:KNOWS]->(b:Person)-[:WORKS_ON]->(c:Project) RETURN a.name`)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1, "no Project exists, yet the row survives")
}

func TestMatchEdgeTypeNormalized(t *testing.T) {
	engine, store := newTestEngine(t)
	seedPeople(t, store)

	result, err := engine.Execute(context.Background(),
		`MATCH (a:Person)-[:knows]->(b) RETURN b.name`)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Bo", result.Rows[0]["b.name"])
}

func TestCreateNodesAndEdge(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Execute(ctx,
		`CREATE (p:Person {id: "person:cy", label: "Cy"})-[:KNOWS]->(q:Person {id: "person:di", label: "Di"})`)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NodesCreated)
	assert.Equal(t, 1, result.EdgesCreated)

	node, err := store.GetNode("person:cy")
	require.NoError(t, err)
	assert.Equal(t, "Cy", node.Label)

	edges, err := store.GetEdges(graph.EdgeFilter{Source: "person:cy"})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "KNOWS", edges[0].Type)
}

func TestCreateMintsIDWhenAbsent(t *testing.T) {
	engine, store := newTestEngine(t)

	_, err := engine.Execute(context.Background(), `CREATE (n:Concept {label: "Fresh"})`)
	require.NoError(t, err)

	nodes, err := store.GetNodes(graph.NodeFilter{Type: "Concept"})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.True(t, graph.WellFormedID(nodes[0].ID, "Concept"), "minted id %s", nodes[0].ID)
}

func TestCreateUpsertsByID(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Execute(ctx, `CREATE (n:Concept {id: "concept:x", label: "First"})`)
	require.NoError(t, err)
	_, err = engine.Execute(ctx, `CREATE (n:Concept {id: "concept:x", tag: "second"})`)
	require.NoError(t, err)

	count, err := store.Engine().NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	node, err := store.GetNode("concept:x")
	require.NoError(t, err)
	assert.Equal(t, "First", node.Label)
	assert.Equal(t, "second", node.Properties["tag"])
}

func TestUpdateSet(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	_, err := store.AddNode(ctx, &graph.NodeInput{
		ID: "task:1", Type: "Task", Properties: map[string]any{"status": "open"},
	})
	require.NoError(t, err)
	_, err = store.AddNode(ctx, &graph.NodeInput{
		ID: "task:2", Type: "Task", Properties: map[string]any{"status": "open"},
	})
	require.NoError(t, err)

	result, err := engine.Execute(ctx, `UPDATE n SET status = "done" WHERE n.id = "task:1"`)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NodesUpdated)

	node, err := store.GetNode("task:1")
	require.NoError(t, err)
	assert.Equal(t, "done", node.Properties["status"])

	untouched, err := store.GetNode("task:2")
	require.NoError(t, err)
	assert.Equal(t, "open", untouched.Properties["status"])
}

func TestDeleteByVariable(t *testing.T) {
	engine, store := newTestEngine(t)
	seedPeople(t, store)

	result, err := engine.Execute(context.Background(),
		`DELETE n WHERE n.name = "Bo"`)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NodesDeleted)

	_, err = store.GetNode("person:bo")
	assert.ErrorIs(t, err, graph.ErrNotFound)

	// Cascade removed the KNOWS edge.
	edges, err := store.Engine().AllEdges()
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestExecuteParseError(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.Execute(context.Background(), "NONSENSE")
	assert.ErrorIs(t, err, graph.ErrValidation)
}
