package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"time"
)

// Vectorizer turns a node's indexable text into an embedding vector.
//
// The store calls it best-effort during node writes: a nil vector or an
// error means "no embedding" and never fails the triggering write. The
// vector package provides the production implementation; tests typically
// pass nil or a stub.
type Vectorizer interface {
	Vectorize(ctx context.Context, text string) ([]float32, error)
}

// embeddingSink is the capability engines expose for embedding writes. Both
// MemoryEngine and BadgerEngine satisfy it; the store never looks past this
// boundary at which backend it is talking to.
type embeddingSink interface {
	SetEmbedding(id NodeID, vec []float32) error
}

// NodeInput is the payload for AddNode/BulkAddNodes.
type NodeInput struct {
	ID         NodeID
	Type       string
	Label      string
	Content    string
	Properties map[string]any
}

// EdgeInput is the payload for AddEdge/BulkAddEdges.
type EdgeInput struct {
	Source     NodeID
	Target     NodeID
	Type       string
	Properties map[string]any
}

// BulkFailure records one failed item of a bulk operation.
type BulkFailure struct {
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

// BulkResult reports the outcome of a bulk operation. Bulk operations never
// abort on a bad item; failures are collected here instead.
type BulkResult struct {
	Succeeded int           `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// MergeStrategy selects how MergeDuplicateNodes combines properties.
type MergeStrategy string

const (
	// MergeUnion merges all property maps; the kept node's values win on
	// key collisions.
	MergeUnion MergeStrategy = "union"
	// MergeKeep discards merged nodes' properties entirely.
	MergeKeep MergeStrategy = "keep"
	// MergePreferNewer resolves collisions by the owning node's UpdatedAt.
	MergePreferNewer MergeStrategy = "prefer-newer"
)

// StoreOptions tunes store behavior.
type StoreOptions struct {
	// StandaloneTypes are node types allowed to have no edges; the
	// integrity check does not count them as orphaned.
	StandaloneTypes []string
}

// Store is the property-graph store: upsert semantics, referential
// integrity, cascade deletes and best-effort embedding maintenance layered
// over an Engine.
//
// All operations are synchronous per call. Concurrent callers are safe; the
// engine is the sole arbiter of shared state and racing upserts on the same
// id or triple converge last-write-wins.
type Store struct {
	engine     Engine
	vectorizer Vectorizer
	standalone map[string]struct{}
}

// NewStore creates a store over an engine. vectorizer may be nil, in which
// case nodes are stored without embeddings.
func NewStore(engine Engine, vectorizer Vectorizer, opts ...StoreOptions) *Store {
	s := &Store{
		engine:     engine,
		vectorizer: vectorizer,
		standalone: make(map[string]struct{}),
	}
	for _, o := range opts {
		for _, t := range o.StandaloneTypes {
			s.standalone[NormalizeNodeType(t)] = struct{}{}
		}
	}
	return s
}

// Engine returns the underlying storage engine. Analytics and the
// similarity index read through it; invariant-preserving mutations go
// through the store.
func (s *Store) Engine() Engine { return s.engine }

// AddNode creates or updates a node (upsert by id).
//
// The type is normalized before storage. On update the incoming properties
// merge into the existing map; Label and Content replace the stored values
// when non-empty. Embedding generation runs synchronously when the node's
// indexable text changed, and is best-effort: a provider failure logs and
// leaves the node without an embedding.
func (s *Store) AddNode(ctx context.Context, in *NodeInput) (*Node, error) {
	if in == nil {
		return nil, validationErr("nil node input")
	}
	if in.ID == "" {
		return nil, validationErr("node id is required")
	}
	if in.Type == "" {
		return nil, validationErr("node type is required")
	}

	now := time.Now().UTC()
	normalized := NormalizeNodeType(in.Type)

	existing, err := s.engine.GetNode(in.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		node := &Node{
			ID:         in.ID,
			Type:       normalized,
			Label:      in.Label,
			Content:    in.Content,
			Properties: copyProperties(in.Properties),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.engine.CreateNode(node); err != nil {
			// A concurrent writer may have won the race; converge to update.
			if errors.Is(err, ErrValidation) {
				return s.AddNode(ctx, in)
			}
			return nil, err
		}
		s.embedNode(ctx, node)
		return s.engine.GetNode(in.ID)

	case err != nil:
		return nil, err

	default:
		prevText := existing.IndexableText()
		existing.Type = normalized
		if in.Label != "" {
			existing.Label = in.Label
		}
		if in.Content != "" {
			existing.Content = in.Content
		}
		for k, v := range in.Properties {
			existing.Properties[k] = v
		}
		existing.UpdatedAt = now
		if err := s.engine.UpdateNode(existing); err != nil {
			return nil, err
		}
		if existing.IndexableText() != prevText {
			s.embedNode(ctx, existing)
		}
		return s.engine.GetNode(in.ID)
	}
}

// BulkAddNodes upserts a batch of nodes, collecting per-item failures.
func (s *Store) BulkAddNodes(ctx context.Context, inputs []*NodeInput) *BulkResult {
	result := &BulkResult{}
	for i, in := range inputs {
		ref := fmt.Sprintf("#%d", i)
		if in != nil && in.ID != "" {
			ref = string(in.ID)
		}
		if _, err := s.AddNode(ctx, in); err != nil {
			result.Failed = append(result.Failed, BulkFailure{Ref: ref, Reason: err.Error()})
			continue
		}
		result.Succeeded++
	}
	return result
}

// UpdateNode patches an existing node. Returns ErrNotFound when absent.
//
// The patch merges into the stored property map; it does not replace it.
// Setting a property to nil removes it. Label and Content replace when
// non-empty.
func (s *Store) UpdateNode(ctx context.Context, id NodeID, patch *NodeInput) (*Node, error) {
	if patch == nil {
		return nil, validationErr("nil patch")
	}
	node, err := s.engine.GetNode(id)
	if err != nil {
		return nil, err
	}

	prevText := node.IndexableText()
	if patch.Type != "" {
		node.Type = NormalizeNodeType(patch.Type)
	}
	if patch.Label != "" {
		node.Label = patch.Label
	}
	if patch.Content != "" {
		node.Content = patch.Content
	}
	for k, v := range patch.Properties {
		if v == nil {
			delete(node.Properties, k)
			continue
		}
		node.Properties[k] = v
	}
	node.UpdatedAt = time.Now().UTC()

	if err := s.engine.UpdateNode(node); err != nil {
		return nil, err
	}
	if node.IndexableText() != prevText {
		s.embedNode(ctx, node)
	}
	return s.engine.GetNode(id)
}

// GetNode retrieves a node by id.
func (s *Store) GetNode(id NodeID) (*Node, error) {
	return s.engine.GetNode(id)
}

// GetNodes lists nodes matching a filter with stable id-ordered pagination.
func (s *Store) GetNodes(filter NodeFilter) ([]*Node, error) {
	var nodes []*Node
	var err error
	if filter.Type != "" {
		nodes, err = s.engine.GetNodesByType(NormalizeNodeType(filter.Type))
	} else {
		nodes, err = s.engine.AllNodes()
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	if filter.Offset > 0 {
		if filter.Offset >= len(nodes) {
			return []*Node{}, nil
		}
		nodes = nodes[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(nodes) {
		nodes = nodes[:filter.Limit]
	}
	return nodes, nil
}

// DeleteNode removes a node, cascading deletion of all edges referencing it.
func (s *Store) DeleteNode(id NodeID) error {
	return s.engine.DeleteNode(id)
}

// AddEdge creates or updates an edge (upsert on the (source, target, type)
// triple). Both endpoints must exist; otherwise ErrNotFound is returned.
// A duplicate triple updates the existing edge's properties instead of
// creating a second row.
func (s *Store) AddEdge(ctx context.Context, in *EdgeInput) (*Edge, error) {
	if in == nil {
		return nil, validationErr("nil edge input")
	}
	if in.Source == "" || in.Target == "" {
		return nil, validationErr("edge source and target are required")
	}
	if in.Type == "" {
		return nil, validationErr("edge type is required")
	}

	normalized := NormalizeEdgeType(in.Type)

	if _, err := s.engine.GetNode(in.Source); err != nil {
		return nil, fmt.Errorf("edge source %s: %w", in.Source, err)
	}
	if _, err := s.engine.GetNode(in.Target); err != nil {
		return nil, fmt.Errorf("edge target %s: %w", in.Target, err)
	}

	existing, err := s.engine.GetEdgeByTriple(in.Source, in.Target, normalized)
	switch {
	case errors.Is(err, ErrNotFound):
		edge := &Edge{
			ID:         s.engine.NextEdgeID(),
			Source:     in.Source,
			Target:     in.Target,
			Type:       normalized,
			Properties: copyProperties(in.Properties),
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.engine.CreateEdge(edge); err != nil {
			if errors.Is(err, ErrValidation) {
				// Lost a race on the triple; converge to update.
				return s.AddEdge(ctx, in)
			}
			return nil, err
		}
		return edge, nil

	case err != nil:
		return nil, err

	default:
		for k, v := range in.Properties {
			existing.Properties[k] = v
		}
		if err := s.engine.UpdateEdge(existing); err != nil {
			return nil, err
		}
		return existing, nil
	}
}

// BulkAddEdges upserts a batch of edges, collecting per-item failures.
func (s *Store) BulkAddEdges(ctx context.Context, inputs []*EdgeInput) *BulkResult {
	result := &BulkResult{}
	for i, in := range inputs {
		ref := fmt.Sprintf("#%d", i)
		if in != nil {
			ref = fmt.Sprintf("%s-[%s]->%s", in.Source, in.Type, in.Target)
		}
		if _, err := s.AddEdge(ctx, in); err != nil {
			result.Failed = append(result.Failed, BulkFailure{Ref: ref, Reason: err.Error()})
			continue
		}
		result.Succeeded++
	}
	return result
}

// GetEdges lists edges matching a filter.
func (s *Store) GetEdges(filter EdgeFilter) ([]*Edge, error) {
	var edges []*Edge
	var err error

	switch {
	case filter.Source != "":
		edges, err = s.engine.GetOutgoingEdges(filter.Source)
	case filter.Target != "":
		edges, err = s.engine.GetIncomingEdges(filter.Target)
	default:
		edges, err = s.engine.AllEdges()
	}
	if err != nil {
		return nil, err
	}

	normalized := ""
	if filter.Type != "" {
		normalized = NormalizeEdgeType(filter.Type)
	}

	out := edges[:0]
	for _, e := range edges {
		if filter.Source != "" && e.Source != filter.Source {
			continue
		}
		if filter.Target != "" && e.Target != filter.Target {
			continue
		}
		if normalized != "" && e.Type != normalized {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteEdge removes an edge by id.
func (s *Store) DeleteEdge(id EdgeID) error {
	return s.engine.DeleteEdge(id)
}

// FindNodesByProperties returns nodes whose properties contain every
// key/value pair of the match map (exact-match semantics).
func (s *Store) FindNodesByProperties(match map[string]any) ([]*Node, error) {
	nodes, err := s.engine.AllNodes()
	if err != nil {
		return nil, err
	}

	var out []*Node
	for _, n := range nodes {
		ok := true
		for k, want := range match {
			got, exists := n.Properties[k]
			if !exists || !ValueEquals(got, want) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetNodeNeighbors returns the distinct nodes adjacent to id in the given
// direction, optionally restricted to a set of edge types.
func (s *Store) GetNodeNeighbors(id NodeID, direction Direction, edgeTypes ...string) ([]*Node, error) {
	if _, err := s.engine.GetNode(id); err != nil {
		return nil, err
	}

	typeSet := make(map[string]struct{}, len(edgeTypes))
	for _, t := range edgeTypes {
		typeSet[NormalizeEdgeType(t)] = struct{}{}
	}

	var edges []*Edge
	if direction == DirectionOut || direction == DirectionBoth {
		out, err := s.engine.GetOutgoingEdges(id)
		if err != nil {
			return nil, err
		}
		edges = append(edges, out...)
	}
	if direction == DirectionIn || direction == DirectionBoth {
		in, err := s.engine.GetIncomingEdges(id)
		if err != nil {
			return nil, err
		}
		edges = append(edges, in...)
	}

	seen := make(map[NodeID]struct{})
	var neighbors []*Node
	for _, e := range edges {
		if len(typeSet) > 0 {
			if _, ok := typeSet[e.Type]; !ok {
				continue
			}
		}
		other := e.Target
		if other == id {
			other = e.Source
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		node, err := s.engine.GetNode(other)
		if errors.Is(err, ErrNotFound) {
			continue // dangling edge; reported by the integrity check
		}
		if err != nil {
			return nil, err
		}
		neighbors = append(neighbors, node)
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].ID < neighbors[j].ID })
	return neighbors, nil
}

// MergeDuplicateNodes merges a set of duplicate nodes into one kept node.
//
// Properties combine per the strategy, every edge touching a merged node is
// redirected to the kept node (edge triple collisions de-duplicate by
// merging properties), and the merged nodes are deleted. The whole merge is
// one logical unit of work from the caller's perspective; per-edge failures
// surface in the returned BulkResult.
func (s *Store) MergeDuplicateNodes(ctx context.Context, ids []NodeID, keep NodeID, strategy MergeStrategy) (*BulkResult, error) {
	if len(ids) < 2 {
		return nil, validationErr("merge requires at least two nodes, got %d", len(ids))
	}
	inSet := false
	for _, id := range ids {
		if id == keep {
			inSet = true
			break
		}
	}
	if !inSet {
		return nil, validationErr("keep id %s is not in the merge set", keep)
	}
	switch strategy {
	case MergeUnion, MergeKeep, MergePreferNewer:
	default:
		return nil, validationErr("unknown merge strategy %q", strategy)
	}

	keepNode, err := s.engine.GetNode(keep)
	if err != nil {
		return nil, fmt.Errorf("keep node %s: %w", keep, err)
	}

	merged := make([]*Node, 0, len(ids)-1)
	for _, id := range ids {
		if id == keep {
			continue
		}
		node, err := s.engine.GetNode(id)
		if err != nil {
			return nil, fmt.Errorf("merge node %s: %w", id, err)
		}
		merged = append(merged, node)
	}

	// Combine properties.
	switch strategy {
	case MergeUnion:
		for _, node := range merged {
			for k, v := range node.Properties {
				if _, exists := keepNode.Properties[k]; !exists {
					keepNode.Properties[k] = v
				}
			}
		}
	case MergePreferNewer:
		// Apply oldest first so the newest writer of each key wins.
		ordered := append([]*Node{keepNode}, merged...)
		sort.Slice(ordered, func(i, j int) bool {
			return ordered[i].UpdatedAt.Before(ordered[j].UpdatedAt)
		})
		props := make(map[string]any)
		for _, node := range ordered {
			for k, v := range node.Properties {
				props[k] = v
			}
		}
		keepNode.Properties = props
	case MergeKeep:
		// Nothing to combine.
	}
	keepNode.UpdatedAt = time.Now().UTC()
	if err := s.engine.UpdateNode(keepNode); err != nil {
		return nil, err
	}

	// Collect edges to redirect before the cascade removes them.
	type redirected struct {
		in  EdgeInput
		ref string
	}
	var redirects []redirected
	for _, node := range merged {
		outgoing, err := s.engine.GetOutgoingEdges(node.ID)
		if err != nil {
			return nil, err
		}
		incoming, err := s.engine.GetIncomingEdges(node.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range outgoing {
			target := e.Target
			if target == node.ID || containsID(ids, target) && target != keep {
				target = keep
			}
			redirects = append(redirects, redirected{
				in:  EdgeInput{Source: keep, Target: target, Type: e.Type, Properties: e.Properties},
				ref: string(e.ID),
			})
		}
		for _, e := range incoming {
			if containsID(ids, e.Source) && e.Source != keep {
				continue // already captured as that node's outgoing edge
			}
			redirects = append(redirects, redirected{
				in:  EdgeInput{Source: e.Source, Target: keep, Type: e.Type, Properties: e.Properties},
				ref: string(e.ID),
			})
		}
	}

	// Delete merged nodes (cascades their old edges), then re-create the
	// redirected edges; AddEdge de-duplicates triple collisions.
	for _, node := range merged {
		if err := s.engine.DeleteNode(node.ID); err != nil {
			return nil, err
		}
	}

	result := &BulkResult{}
	for _, r := range redirects {
		if _, err := s.AddEdge(ctx, &r.in); err != nil {
			result.Failed = append(result.Failed, BulkFailure{Ref: r.ref, Reason: err.Error()})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// embedNode generates and stores an embedding for a node, best-effort.
// Provider failures and missing capabilities log and degrade to "no
// embedding"; they never fail the triggering write.
func (s *Store) embedNode(ctx context.Context, node *Node) {
	if s.vectorizer == nil {
		return
	}
	sink, ok := s.engine.(embeddingSink)
	if !ok {
		return
	}

	vec, err := s.vectorizer.Vectorize(ctx, node.IndexableText())
	if err != nil {
		slog.Warn("embedding generation failed", "node", node.ID, "error", err)
		vec = nil
	}
	if err := sink.SetEmbedding(node.ID, vec); err != nil {
		slog.Warn("embedding store failed", "node", node.ID, "error", err)
	}
}

func containsID(ids []NodeID, id NodeID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// ValueEquals compares two property values with numeric coercion, so that
// int64(3) written through the memory engine matches float64(3) read back
// from the JSON-backed persistent engine.
func ValueEquals(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
