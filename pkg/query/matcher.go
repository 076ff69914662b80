package query

import (
	"errors"
	"fmt"
	"sort"

	"github.com/orneryd/munindb/pkg/graph"
)

// Binding assigns pattern variables to matched records. Anonymous pattern
// fragments constrain matching but leave no entry here.
type Binding struct {
	Nodes map[string]*graph.Node
	Edges map[string]*graph.Edge
}

func newBinding() Binding {
	return Binding{
		Nodes: make(map[string]*graph.Node),
		Edges: make(map[string]*graph.Edge),
	}
}

func (b Binding) clone() Binding {
	nb := newBinding()
	for k, v := range b.Nodes {
		nb.Nodes[k] = v
	}
	for k, v := range b.Edges {
		nb.Edges[k] = v
	}
	return nb
}

// Matcher resolves patterns against the store: an indexed type/property
// lookup seeds candidates for the first node pattern, then each candidate
// extends along the first edge pattern through outgoing edges filtered by
// edge type and the second node's constraints.
//
// Only the first edge pattern is traversed; further hops in the pattern
// text parse but do not constrain the result.
type Matcher struct {
	store *graph.Store
}

// NewMatcher creates a matcher over a store.
func NewMatcher(store *graph.Store) *Matcher {
	return &Matcher{store: store}
}

// Match returns every binding of the pattern's variables to stored records.
// Bindings order by the first node's id, then by edge id, for deterministic
// output.
func (m *Matcher) Match(pattern Pattern) ([]Binding, error) {
	if len(pattern.Nodes) == 0 {
		return nil, fmt.Errorf("%w: pattern has no node to match", graph.ErrValidation)
	}

	first := pattern.Nodes[0]
	candidates, err := m.candidates(first)
	if err != nil {
		return nil, err
	}

	var bindings []Binding
	for _, node := range candidates {
		b := newBinding()
		if first.Variable != "" {
			b.Nodes[first.Variable] = node
		}
		if len(pattern.Edges) == 0 {
			bindings = append(bindings, b)
			continue
		}

		extended, err := m.expand(b, node, pattern.Edges[0], pattern.Nodes[1])
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, extended...)
	}
	return bindings, nil
}

// candidates resolves the first node pattern: a direct id lookup when the
// pattern carries an id property, the type index when it carries a label,
// a full scan otherwise. Remaining pattern properties filter afterwards.
func (m *Matcher) candidates(np NodePattern) ([]*graph.Node, error) {
	if id, ok := np.Properties["id"].(string); ok {
		node, err := m.store.GetNode(graph.NodeID(id))
		if errors.Is(err, graph.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if nodeMatches(node, np) {
			return []*graph.Node{node}, nil
		}
		return nil, nil
	}

	var nodes []*graph.Node
	var err error
	if np.Label != "" {
		nodes, err = m.store.GetNodes(graph.NodeFilter{Type: np.Label})
	} else {
		nodes, err = m.store.Engine().AllNodes()
		if err == nil {
			sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
		}
	}
	if err != nil {
		return nil, err
	}

	matched := nodes[:0]
	for _, node := range nodes {
		if nodeMatches(node, np) {
			matched = append(matched, node)
		}
	}
	return matched, nil
}

// expand extends a binding along one edge pattern: outgoing edges of source
// filtered by edge type, targets filtered by the second node pattern.
func (m *Matcher) expand(b Binding, source *graph.Node, ep EdgePattern, target NodePattern) ([]Binding, error) {
	edges, err := m.store.Engine().GetOutgoingEdges(source.ID)
	if err != nil {
		return nil, err
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	wantType := ""
	if ep.Type != "" {
		wantType = graph.NormalizeEdgeType(ep.Type)
	}

	var bindings []Binding
	for _, edge := range edges {
		if wantType != "" && edge.Type != wantType {
			continue
		}
		node, err := m.store.GetNode(edge.Target)
		if errors.Is(err, graph.ErrNotFound) {
			continue // dangling edge; reported by the integrity check
		}
		if err != nil {
			return nil, err
		}
		if !nodeMatches(node, target) {
			continue
		}

		nb := b.clone()
		if ep.Variable != "" {
			nb.Edges[ep.Variable] = edge
		}
		if target.Variable != "" {
			nb.Nodes[target.Variable] = node
		}
		bindings = append(bindings, nb)
	}
	return bindings, nil
}

// nodeMatches checks a node against a pattern's label and properties.
func nodeMatches(node *graph.Node, np NodePattern) bool {
	if np.Label != "" && node.Type != graph.NormalizeNodeType(np.Label) {
		return false
	}
	for key, want := range np.Properties {
		got, ok := nodeProperty(node, key)
		if !ok || !graph.ValueEquals(got, want) {
			return false
		}
	}
	return true
}

// nodeProperty resolves a property name against a node: the id, type,
// label and content fields are addressable by name, everything else reads
// from the open property map.
func nodeProperty(node *graph.Node, key string) (any, bool) {
	switch key {
	case "id":
		return string(node.ID), true
	case "type":
		return node.Type, true
	case "label":
		return node.Label, true
	case "content":
		return node.Content, true
	}
	v, ok := node.Properties[key]
	return v, ok
}

// edgeProperty resolves a property name against an edge.
func edgeProperty(edge *graph.Edge, key string) (any, bool) {
	switch key {
	case "id":
		return string(edge.ID), true
	case "type":
		return edge.Type, true
	case "source":
		return string(edge.Source), true
	case "target":
		return string(edge.Target), true
	}
	v, ok := edge.Properties[key]
	return v, ok
}
