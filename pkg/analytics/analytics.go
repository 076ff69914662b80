// Package analytics implements graph algorithms over a store snapshot.
//
// Every algorithm reads a snapshot of nodes and edges taken at Load time
// and never mutates the store. Directionality follows each algorithm's
// literature definition:
//
//   - shortest path, all paths, connected components, betweenness and
//     clustering coefficient treat the graph as undirected (both edge
//     directions count as adjacency)
//   - PageRank and degree centrality respect edge direction
//
// The asymmetry is intentional; mixing conventions produces numbers that
// match no published definition.
//
// Algorithms never error on a well-formed empty graph - they return empty
// maps and slices. Invalid parameters (negative depth, bad damping) return
// a graph.ErrValidation-wrapped error.
package analytics

import (
	"fmt"
	"math"
	"sort"

	"github.com/orneryd/munindb/pkg/graph"
)

// Graph is an immutable adjacency snapshot used by all algorithms.
type Graph struct {
	nodes []graph.NodeID
	index map[graph.NodeID]int

	out [][]int // directed successor lists (multi-edges kept)
	in  [][]int // directed predecessor lists

	// undirected neighbor lists: deduplicated, self-loops excluded
	undirected [][]int
}

// Load snapshots the adjacency of a storage engine.
func Load(engine graph.Engine) (*Graph, error) {
	nodes, err := engine.AllNodes()
	if err != nil {
		return nil, err
	}
	edges, err := engine.AllEdges()
	if err != nil {
		return nil, err
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	g := &Graph{
		nodes: make([]graph.NodeID, len(nodes)),
		index: make(map[graph.NodeID]int, len(nodes)),
	}
	for i, n := range nodes {
		g.nodes[i] = n.ID
		g.index[n.ID] = i
	}
	g.out = make([][]int, len(nodes))
	g.in = make([][]int, len(nodes))
	g.undirected = make([][]int, len(nodes))

	undirectedSeen := make(map[[2]int]struct{})
	for _, e := range edges {
		s, ok := g.index[e.Source]
		if !ok {
			continue // dangling edge; reported by the integrity check
		}
		t, ok := g.index[e.Target]
		if !ok {
			continue
		}
		g.out[s] = append(g.out[s], t)
		g.in[t] = append(g.in[t], s)

		if s == t {
			continue
		}
		lo, hi := s, t
		if lo > hi {
			lo, hi = hi, lo
		}
		if _, dup := undirectedSeen[[2]int{lo, hi}]; dup {
			continue
		}
		undirectedSeen[[2]int{lo, hi}] = struct{}{}
		g.undirected[s] = append(g.undirected[s], t)
		g.undirected[t] = append(g.undirected[t], s)
	}
	return g, nil
}

// NodeCount returns the number of nodes in the snapshot.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// ShortestPath finds a shortest path between start and end over the
// undirected view using breadth-first search. maxDepth bounds the search
// in edge hops; 0 means unbounded. Returns the node-id path including both
// endpoints, or nil when no path exists within the bound. Ties break by
// neighbor enumeration order.
func (g *Graph) ShortestPath(start, end graph.NodeID, maxDepth int) ([]graph.NodeID, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("%w: max depth must be >= 0, got %d", graph.ErrValidation, maxDepth)
	}
	s, ok := g.index[start]
	if !ok {
		return nil, fmt.Errorf("start node %s: %w", start, graph.ErrNotFound)
	}
	t, ok := g.index[end]
	if !ok {
		return nil, fmt.Errorf("end node %s: %w", end, graph.ErrNotFound)
	}
	if s == t {
		return []graph.NodeID{start}, nil
	}

	prev := make([]int, len(g.nodes))
	depth := make([]int, len(g.nodes))
	for i := range prev {
		prev[i] = -1
		depth[i] = -1
	}
	depth[s] = 0

	queue := []int{s}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if maxDepth > 0 && depth[cur] >= maxDepth {
			continue
		}
		for _, nb := range g.undirected[cur] {
			if depth[nb] >= 0 {
				continue
			}
			depth[nb] = depth[cur] + 1
			prev[nb] = cur
			if nb == t {
				return g.rebuildPath(prev, t), nil
			}
			queue = append(queue, nb)
		}
	}
	return nil, nil
}

func (g *Graph) rebuildPath(prev []int, end int) []graph.NodeID {
	var rev []int
	for cur := end; cur != -1; cur = prev[cur] {
		rev = append(rev, cur)
	}
	path := make([]graph.NodeID, len(rev))
	for i, idx := range rev {
		path[len(rev)-1-i] = g.nodes[idx]
	}
	return path
}

// AllPaths enumerates every simple path (no repeated node) between start
// and end over the undirected view, bounded by maxDepth edges. Order
// follows traversal order and is not otherwise guaranteed.
func (g *Graph) AllPaths(start, end graph.NodeID, maxDepth int) ([][]graph.NodeID, error) {
	if maxDepth <= 0 {
		return nil, fmt.Errorf("%w: max depth must be > 0, got %d", graph.ErrValidation, maxDepth)
	}
	s, ok := g.index[start]
	if !ok {
		return nil, fmt.Errorf("start node %s: %w", start, graph.ErrNotFound)
	}
	t, ok := g.index[end]
	if !ok {
		return nil, fmt.Errorf("end node %s: %w", end, graph.ErrNotFound)
	}

	var paths [][]graph.NodeID
	onPath := make([]bool, len(g.nodes))
	var current []int

	var dfs func(cur int)
	dfs = func(cur int) {
		current = append(current, cur)
		onPath[cur] = true
		defer func() {
			current = current[:len(current)-1]
			onPath[cur] = false
		}()

		if cur == t {
			path := make([]graph.NodeID, len(current))
			for i, idx := range current {
				path[i] = g.nodes[idx]
			}
			paths = append(paths, path)
			return
		}
		if len(current)-1 >= maxDepth {
			return
		}
		for _, nb := range g.undirected[cur] {
			if !onPath[nb] {
				dfs(nb)
			}
		}
	}
	dfs(s)
	return paths, nil
}

// ConnectedComponents partitions the nodes of the undirected view into
// components via repeated breadth-first search. Each component's ids are
// sorted; components order by their smallest member.
func (g *Graph) ConnectedComponents() [][]graph.NodeID {
	visited := make([]bool, len(g.nodes))
	var components [][]graph.NodeID

	for i := range g.nodes {
		if visited[i] {
			continue
		}
		var component []graph.NodeID
		queue := []int{i}
		visited[i] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, g.nodes[cur])
			for _, nb := range g.undirected[cur] {
				if !visited[nb] {
					visited[nb] = true
					queue = append(queue, nb)
				}
			}
		}
		sort.Slice(component, func(a, b int) bool { return component[a] < component[b] })
		components = append(components, component)
	}
	return components
}

// DegreeCentrality returns (in-degree + out-degree) / (n - 1) per node,
// counting directed edges (self-loops contribute to both degrees). Returns
// an empty map when the graph has one node or fewer.
func (g *Graph) DegreeCentrality() map[graph.NodeID]float64 {
	n := len(g.nodes)
	scores := make(map[graph.NodeID]float64)
	if n <= 1 {
		return scores
	}
	denom := float64(n - 1)
	for i, id := range g.nodes {
		scores[id] = float64(len(g.in[i])+len(g.out[i])) / denom
	}
	return scores
}

// BetweennessCentrality computes Brandes' betweenness centrality over the
// undirected view, self-loops excluded. When normalized and n > 2, scores
// divide by (n-1)(n-2)/2, the number of node pairs that could route
// through a vertex.
func (g *Graph) BetweennessCentrality(normalized bool) map[graph.NodeID]float64 {
	n := len(g.nodes)
	betweenness := make([]float64, n)

	sigma := make([]float64, n)
	dist := make([]int, n)
	delta := make([]float64, n)
	pred := make([][]int, n)

	for s := 0; s < n; s++ {
		var stack []int
		for i := 0; i < n; i++ {
			sigma[i] = 0
			dist[i] = -1
			delta[i] = 0
			pred[i] = pred[i][:0]
		}
		sigma[s] = 1
		dist[s] = 0

		queue := []int{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range g.undirected[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					pred[w] = append(pred[w], v)
				}
			}
		}

		// Dependency accumulation in reverse BFS order.
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range pred[w] {
				delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
			}
			if w != s {
				betweenness[w] += delta[w]
			}
		}
	}

	// Each undirected shortest path was counted from both endpoints.
	for i := range betweenness {
		betweenness[i] /= 2
	}
	if normalized && n > 2 {
		norm := 2.0 / (float64(n-1) * float64(n-2))
		for i := range betweenness {
			betweenness[i] *= norm
		}
	}

	scores := make(map[graph.NodeID]float64, n)
	for i, id := range g.nodes {
		scores[id] = betweenness[i]
	}
	return scores
}

// ClusteringCoefficient returns, per node, the fraction of its undirected
// neighbor pairs that are themselves connected: edges-among-neighbors
// divided by k*(k-1)/2. Nodes with fewer than two neighbors score 0.0.
func (g *Graph) ClusteringCoefficient() map[graph.NodeID]float64 {
	scores := make(map[graph.NodeID]float64, len(g.nodes))

	neighborSets := make([]map[int]struct{}, len(g.nodes))
	for i, nbs := range g.undirected {
		set := make(map[int]struct{}, len(nbs))
		for _, nb := range nbs {
			set[nb] = struct{}{}
		}
		neighborSets[i] = set
	}

	for i, id := range g.nodes {
		nbs := g.undirected[i]
		k := len(nbs)
		if k < 2 {
			scores[id] = 0.0
			continue
		}
		links := 0
		for a := 0; a < k; a++ {
			for b := a + 1; b < k; b++ {
				if _, ok := neighborSets[nbs[a]][nbs[b]]; ok {
					links++
				}
			}
		}
		scores[id] = float64(links) / (float64(k) * float64(k-1) / 2)
	}
	return scores
}

// PageRankOptions tunes the PageRank power iteration.
type PageRankOptions struct {
	Damping       float64 // typically 0.85
	MaxIterations int     // hard iteration cap
	Tolerance     float64 // L1 convergence threshold
}

// DefaultPageRankOptions returns the conventional parameters.
func DefaultPageRankOptions() PageRankOptions {
	return PageRankOptions{Damping: 0.85, MaxIterations: 100, Tolerance: 1e-6}
}

// PageRank runs power iteration over the directed adjacency:
//
//	score(v) = (1-d)/n + d * sum(score(u)/outdeg(u)) over in-neighbors u
//
// Scores initialize uniformly at 1/n and iterate until MaxIterations or
// until the L1 delta across all scores drops below Tolerance. Mass from
// dangling nodes (out-degree zero) redistributes uniformly so the scores
// always sum to 1.
func (g *Graph) PageRank(opts PageRankOptions) (map[graph.NodeID]float64, error) {
	if opts.Damping < 0 || opts.Damping > 1 {
		return nil, fmt.Errorf("%w: damping must be in [0, 1], got %v", graph.ErrValidation, opts.Damping)
	}
	if opts.MaxIterations <= 0 {
		return nil, fmt.Errorf("%w: max iterations must be > 0, got %d", graph.ErrValidation, opts.MaxIterations)
	}

	n := len(g.nodes)
	scores := make(map[graph.NodeID]float64, n)
	if n == 0 {
		return scores, nil
	}

	rank := make([]float64, n)
	next := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}

	base := (1 - opts.Damping) / float64(n)
	for iter := 0; iter < opts.MaxIterations; iter++ {
		dangling := 0.0
		for i := range rank {
			if len(g.out[i]) == 0 {
				dangling += rank[i]
			}
		}
		danglingShare := opts.Damping * dangling / float64(n)

		for v := 0; v < n; v++ {
			sum := 0.0
			for _, u := range g.in[v] {
				sum += rank[u] / float64(len(g.out[u]))
			}
			next[v] = base + danglingShare + opts.Damping*sum
		}

		diff := 0.0
		for i := range rank {
			diff += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		if opts.Tolerance > 0 && diff < opts.Tolerance {
			break
		}
	}

	for i, id := range g.nodes {
		scores[id] = rank[i]
	}
	return scores, nil
}
