package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/orneryd/munindb/pkg/graph"
)

// Result is the outcome of one executed query. MATCH fills Rows; the
// mutation statements fill the counters.
type Result struct {
	Rows []Row `json:"rows,omitempty"`

	NodesCreated int `json:"nodes_created,omitempty"`
	EdgesCreated int `json:"edges_created,omitempty"`
	NodesUpdated int `json:"nodes_updated,omitempty"`
	NodesDeleted int `json:"nodes_deleted,omitempty"`
}

// Engine parses and executes queries against a store.
type Engine struct {
	store   *graph.Store
	matcher *Matcher
}

// NewEngine creates a query engine over a store.
func NewEngine(store *graph.Store) *Engine {
	return &Engine{store: store, matcher: NewMatcher(store)}
}

// Execute parses and runs one query. Parse failures and invalid mutations
// wrap graph.ErrValidation; mutations on missing records wrap
// graph.ErrNotFound.
func (e *Engine) Execute(ctx context.Context, text string) (*Result, error) {
	parsed, err := Parse(text)
	if err != nil {
		return nil, err
	}

	switch q := parsed.(type) {
	case *MatchQuery:
		return e.execMatch(q)
	case *CreateQuery:
		return e.execCreate(ctx, q)
	case *UpdateQuery:
		return e.execUpdate(ctx, q)
	case *DeleteQuery:
		return e.execDelete(q)
	default:
		return nil, fmt.Errorf("%w: unsupported query type %T", graph.ErrValidation, parsed)
	}
}

func (e *Engine) execMatch(q *MatchQuery) (*Result, error) {
	bindings, err := e.matcher.Match(q.Pattern)
	if err != nil {
		return nil, err
	}

	filtered := bindings[:0]
	for _, b := range bindings {
		if evalConditions(q.Where, b) {
			filtered = append(filtered, b)
		}
	}
	return &Result{Rows: project(q, filtered)}, nil
}

// execCreate creates one node per pattern node and one edge per edge
// pattern between consecutive nodes. A node pattern with an id property
// upserts by that id, so re-running a script converges instead of
// duplicating; without one a fresh "<type-prefix>:<uuid>" id is minted.
func (e *Engine) execCreate(ctx context.Context, q *CreateQuery) (*Result, error) {
	result := &Result{}

	created := make([]*graph.Node, 0, len(q.Pattern.Nodes))
	for _, np := range q.Pattern.Nodes {
		if np.Label == "" {
			return nil, fmt.Errorf("%w: CREATE node pattern requires a label", graph.ErrValidation)
		}
		node, err := e.store.AddNode(ctx, createInput(np))
		if err != nil {
			return nil, err
		}
		created = append(created, node)
		result.NodesCreated++
	}

	for i, ep := range q.Pattern.Edges {
		if ep.Type == "" {
			return nil, fmt.Errorf("%w: CREATE edge pattern requires a type", graph.ErrValidation)
		}
		_, err := e.store.AddEdge(ctx, &graph.EdgeInput{
			Source: created[i].ID,
			Target: created[i+1].ID,
			Type:   ep.Type,
		})
		if err != nil {
			return nil, err
		}
		result.EdgesCreated++
	}
	return result, nil
}

// createInput translates a pattern node into a store payload. The id,
// label and content keys address node fields; everything else lands in the
// open property map.
func createInput(np NodePattern) *graph.NodeInput {
	in := &graph.NodeInput{Type: np.Label, Properties: make(map[string]any)}
	for key, value := range np.Properties {
		switch key {
		case "id":
			in.ID = graph.NodeID(fmt.Sprint(value))
		case "label":
			in.Label = fmt.Sprint(value)
		case "content":
			in.Content = fmt.Sprint(value)
		default:
			in.Properties[key] = value
		}
	}
	if in.ID == "" {
		in.ID = graph.NodeID(graph.TypePrefix(np.Label) + ":" + uuid.NewString())
	}
	return in
}

// execUpdate patches every node the variable binds to. The variable ranges
// over all nodes; the WHERE conditions select which of them to touch.
func (e *Engine) execUpdate(ctx context.Context, q *UpdateQuery) (*Result, error) {
	if len(q.Set) == 0 {
		return nil, fmt.Errorf("%w: UPDATE requires at least one SET assignment", graph.ErrValidation)
	}

	nodes, err := e.matchVariable(q.Variable, q.Where)
	if err != nil {
		return nil, err
	}

	patch := &graph.NodeInput{Properties: make(map[string]any)}
	for key, value := range q.Set {
		switch key {
		case "label":
			patch.Label = fmt.Sprint(value)
		case "content":
			patch.Content = fmt.Sprint(value)
		default:
			patch.Properties[key] = value
		}
	}

	result := &Result{}
	for _, node := range nodes {
		if _, err := e.store.UpdateNode(ctx, node.ID, patch); err != nil {
			return nil, err
		}
		result.NodesUpdated++
	}
	return result, nil
}

// execDelete removes every node each variable binds to; conditions apply
// to the variable they name. Edge cleanup cascades in the store.
func (e *Engine) execDelete(q *DeleteQuery) (*Result, error) {
	result := &Result{}
	for _, variable := range q.Variables {
		nodes, err := e.matchVariable(variable, q.Where)
		if err != nil {
			return nil, err
		}
		for _, node := range nodes {
			if err := e.store.DeleteNode(node.ID); err != nil {
				return nil, err
			}
			result.NodesDeleted++
		}
	}
	return result, nil
}

// matchVariable binds a bare variable against every stored node and keeps
// those satisfying the conditions that name it.
func (e *Engine) matchVariable(variable string, conds []Condition) ([]*graph.Node, error) {
	var own []Condition
	for _, cond := range conds {
		if cond.Variable == variable {
			own = append(own, cond)
		}
	}

	nodes, err := e.store.Engine().AllNodes()
	if err != nil {
		return nil, err
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	matched := nodes[:0]
	for _, node := range nodes {
		b := newBinding()
		b.Nodes[variable] = node
		if evalConditions(own, b) {
			matched = append(matched, node)
		}
	}
	return matched, nil
}
