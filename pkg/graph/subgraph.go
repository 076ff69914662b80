// Subgraph extraction and export.
//
// ExtractSubgraph walks breadth-first from a set of root ids to a depth
// bound and returns the induced node/edge set. The result exports in three
// interchangeable forms, each regenerable from the structured dump alone:
//
//   - structured dump: the Subgraph itself, JSON-serializable
//   - query script: CREATE statements that recreate the subgraph
//   - node-link document: a minimal generic-graph interchange format

package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Subgraph is the structured dump of an extracted region of the graph.
type Subgraph struct {
	Roots []NodeID `json:"roots"`
	Depth int      `json:"depth"`
	Nodes []*Node  `json:"nodes"`
	Edges []*Edge  `json:"edges"`
}

// SubgraphOptions controls extraction.
type SubgraphOptions struct {
	// Depth bounds the BFS (number of edge hops from the roots). Required,
	// must be >= 0.
	Depth int
	// Types restricts traversal to nodes of the given types. Roots are
	// always included regardless.
	Types []string
}

// ExtractSubgraph walks breadth-first from roots up to opts.Depth hops,
// following edges in both directions, and returns the induced subgraph:
// the visited nodes plus every edge whose endpoints were both visited.
func (s *Store) ExtractSubgraph(roots []NodeID, opts SubgraphOptions) (*Subgraph, error) {
	if len(roots) == 0 {
		return nil, validationErr("at least one root id is required")
	}
	if opts.Depth < 0 {
		return nil, validationErr("depth must be >= 0, got %d", opts.Depth)
	}

	typeFilter := make(map[string]struct{}, len(opts.Types))
	for _, t := range opts.Types {
		typeFilter[NormalizeNodeType(t)] = struct{}{}
	}

	visited := make(map[NodeID]*Node)
	frontier := make([]NodeID, 0, len(roots))
	for _, root := range roots {
		node, err := s.engine.GetNode(root)
		if err != nil {
			return nil, fmt.Errorf("root %s: %w", root, err)
		}
		if _, dup := visited[root]; dup {
			continue
		}
		visited[root] = node
		frontier = append(frontier, root)
	}

	for depth := 0; depth < opts.Depth && len(frontier) > 0; depth++ {
		var next []NodeID
		for _, id := range frontier {
			neighbors, err := s.GetNodeNeighbors(id, DirectionBoth)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if _, seen := visited[n.ID]; seen {
					continue
				}
				if len(typeFilter) > 0 {
					if _, ok := typeFilter[n.Type]; !ok {
						continue
					}
				}
				visited[n.ID] = n
				next = append(next, n.ID)
			}
		}
		frontier = next
	}

	sub := &Subgraph{Roots: roots, Depth: opts.Depth}
	for _, n := range visited {
		sub.Nodes = append(sub.Nodes, n)
	}
	sort.Slice(sub.Nodes, func(i, j int) bool { return sub.Nodes[i].ID < sub.Nodes[j].ID })

	edges, err := s.engine.AllEdges()
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if _, ok := visited[e.Source]; !ok {
			continue
		}
		if _, ok := visited[e.Target]; !ok {
			continue
		}
		sub.Edges = append(sub.Edges, e)
	}
	sort.Slice(sub.Edges, func(i, j int) bool { return sub.Edges[i].ID < sub.Edges[j].ID })
	return sub, nil
}

// ExportJSON renders the structured dump as indented JSON.
func (g *Subgraph) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

// ExportScript renders the subgraph as a script of CREATE statements in the
// engine's query language, one statement per line. Node creation is an
// upsert by id, so the edge statements - which repeat each endpoint as a
// minimal (type, id) pattern - re-match the nodes created earlier in the
// script instead of duplicating them. Replaying the script against an
// empty store recreates the subgraph; edge ids are reassigned from the
// sequence.
func (g *Subgraph) ExportScript() string {
	types := make(map[NodeID]string, len(g.Nodes))
	var b strings.Builder

	for i, n := range g.Nodes {
		types[n.ID] = n.Type
		props := map[string]any{"id": string(n.ID)}
		if n.Label != "" {
			props["label"] = n.Label
		}
		if n.Content != "" {
			props["content"] = n.Content
		}
		for k, v := range n.Properties {
			props[k] = v
		}
		fmt.Fprintf(&b, "CREATE (n%d:%s %s)\n", i, n.Type, formatScriptProps(props))
	}

	for _, e := range g.Edges {
		src := fmt.Sprintf("(:%s {id: %s})", types[e.Source], quoteScriptString(string(e.Source)))
		dst := fmt.Sprintf("(:%s {id: %s})", types[e.Target], quoteScriptString(string(e.Target)))
		if len(e.Properties) > 0 {
			fmt.Fprintf(&b, "CREATE %s-[:%s %s]->%s\n", src, e.Type, formatScriptProps(e.Properties), dst)
		} else {
			fmt.Fprintf(&b, "CREATE %s-[:%s]->%s\n", src, e.Type, dst)
		}
	}
	return b.String()
}

// GraphDoc is a minimal generic node-link interchange document.
type GraphDoc struct {
	Nodes []GraphDocNode `json:"nodes"`
	Links []GraphDocLink `json:"links"`
}

// GraphDocNode carries the interchange fields of one node.
type GraphDocNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// GraphDocLink carries the interchange fields of one edge.
type GraphDocLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// ExportGraphDoc renders the subgraph in the node-link interchange format.
func (g *Subgraph) ExportGraphDoc() *GraphDoc {
	doc := &GraphDoc{
		Nodes: make([]GraphDocNode, 0, len(g.Nodes)),
		Links: make([]GraphDocLink, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		doc.Nodes = append(doc.Nodes, GraphDocNode{
			ID:    string(n.ID),
			Label: n.Label,
			Type:  n.Type,
		})
	}
	for _, e := range g.Edges {
		doc.Links = append(doc.Links, GraphDocLink{
			Source: string(e.Source),
			Target: string(e.Target),
			Type:   e.Type,
		})
	}
	return doc
}

// formatScriptProps renders a property map in query-language literal syntax
// with deterministic key order.
func formatScriptProps(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(formatScriptValue(props[k]))
	}
	b.WriteByte('}')
	return b.String()
}

// formatScriptValue renders one property value as a query-language literal.
// Nested maps and lists fall back to JSON-quoted strings so the script
// stays parseable by the single-level property grammar.
func formatScriptValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return quoteScriptString(x)
	case bool:
		return fmt.Sprintf("%t", x)
	case int, int32, int64:
		return fmt.Sprintf("%d", x)
	case float32, float64:
		return fmt.Sprintf("%v", x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return quoteScriptString(fmt.Sprintf("%v", x))
		}
		return quoteScriptString(string(data))
	}
}

func quoteScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
