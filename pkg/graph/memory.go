package graph

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// MemoryEngine is a thread-safe in-memory storage engine.
//
// Use cases:
//   - Unit testing (no disk I/O, fast cleanup)
//   - Small datasets that fit entirely in RAM
//   - Development and prototyping
//
// Embeddings are held inline on the node record, which makes MemoryEngine
// the "native vector column" style backend: SetEmbedding writes straight to
// the stored node and ForEachEmbedding iterates node records.
//
// Performance characteristics:
//   - Node lookup by id: O(1)
//   - Node lookup by type: O(k) for k nodes of that type
//   - Outgoing/incoming edges: O(degree)
//
// All public methods are safe for concurrent use.
type MemoryEngine struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge

	// Indexes for efficient lookups
	nodesByType map[string]map[NodeID]struct{}
	outgoing    map[NodeID]map[EdgeID]struct{}
	incoming    map[NodeID]map[EdgeID]struct{}
	byTriple    map[string]EdgeID

	edgeSeq atomic.Int64
	closed  bool
}

// NewMemoryEngine creates an empty in-memory engine ready for concurrent use.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		nodes:       make(map[NodeID]*Node),
		edges:       make(map[EdgeID]*Edge),
		nodesByType: make(map[string]map[NodeID]struct{}),
		outgoing:    make(map[NodeID]map[EdgeID]struct{}),
		incoming:    make(map[NodeID]map[EdgeID]struct{}),
		byTriple:    make(map[string]EdgeID),
	}
}

// typeKey normalizes a type for case-insensitive index lookups.
func typeKey(t string) string {
	return strings.ToLower(t)
}

// CreateNode stores a new node. The node is copied to prevent external
// mutation after storage. Returns ErrValidation wrapping the reason if a
// node with the same id already exists; the Store layer converts raw
// conflicts into updates before they reach this point.
func (m *MemoryEngine) CreateNode(node *Node) error {
	if node == nil {
		return validationErr("nil node")
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	if _, exists := m.nodes[node.ID]; exists {
		return validationErr("node %s already exists", node.ID)
	}

	stored := copyNode(node)
	m.nodes[node.ID] = stored
	m.indexNodeLocked(stored)
	return nil
}

// GetNode retrieves a node by id. Returns a copy; mutating the result does
// not affect stored state.
func (m *MemoryEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	node, ok := m.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyNode(node), nil
}

// UpdateNode replaces a stored node wholesale. Property merging is the
// Store's responsibility; the engine stores exactly what it is given.
func (m *MemoryEngine) UpdateNode(node *Node) error {
	if node == nil {
		return validationErr("nil node")
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	existing, ok := m.nodes[node.ID]
	if !ok {
		return ErrNotFound
	}

	m.unindexNodeLocked(existing)
	stored := copyNode(node)
	m.nodes[node.ID] = stored
	m.indexNodeLocked(stored)
	return nil
}

// DeleteNode removes a node and all edges referencing it in either
// direction.
func (m *MemoryEngine) DeleteNode(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	node, ok := m.nodes[id]
	if !ok {
		return ErrNotFound
	}

	// Cascade: collect referencing edges first, then remove.
	var doomed []EdgeID
	for eid := range m.outgoing[id] {
		doomed = append(doomed, eid)
	}
	for eid := range m.incoming[id] {
		doomed = append(doomed, eid)
	}
	for _, eid := range doomed {
		m.deleteEdgeLocked(eid)
	}

	m.unindexNodeLocked(node)
	delete(m.nodes, id)
	delete(m.outgoing, id)
	delete(m.incoming, id)
	return nil
}

// CreateEdge stores a new edge. Both endpoints must exist and the
// (source, target, type) triple must be free; the Store layer resolves
// triple collisions by updating instead.
func (m *MemoryEngine) CreateEdge(edge *Edge) error {
	if edge == nil {
		return validationErr("nil edge")
	}
	if edge.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	if _, ok := m.nodes[edge.Source]; !ok {
		return fmt.Errorf("%w: source %s", ErrInvalidEdge, edge.Source)
	}
	if _, ok := m.nodes[edge.Target]; !ok {
		return fmt.Errorf("%w: target %s", ErrInvalidEdge, edge.Target)
	}
	if _, exists := m.edges[edge.ID]; exists {
		return validationErr("edge %s already exists", edge.ID)
	}
	if _, exists := m.byTriple[edge.TripleKey()]; exists {
		return validationErr("edge triple %s already exists", edge.TripleKey())
	}

	stored := copyEdge(edge)
	m.edges[edge.ID] = stored
	m.indexEdgeLocked(stored)
	return nil
}

// GetEdge retrieves an edge by id.
func (m *MemoryEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	edge, ok := m.edges[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEdge(edge), nil
}

// UpdateEdge replaces a stored edge wholesale.
func (m *MemoryEngine) UpdateEdge(edge *Edge) error {
	if edge == nil {
		return validationErr("nil edge")
	}
	if edge.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	existing, ok := m.edges[edge.ID]
	if !ok {
		return ErrNotFound
	}

	m.unindexEdgeLocked(existing)
	stored := copyEdge(edge)
	m.edges[edge.ID] = stored
	m.indexEdgeLocked(stored)
	return nil
}

// DeleteEdge removes an edge by id.
func (m *MemoryEngine) DeleteEdge(id EdgeID) error {
	if id == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	if _, ok := m.edges[id]; !ok {
		return ErrNotFound
	}
	m.deleteEdgeLocked(id)
	return nil
}

// GetNodesByType returns all nodes whose type matches (case-insensitive).
func (m *MemoryEngine) GetNodesByType(nodeType string) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	ids := m.nodesByType[typeKey(nodeType)]
	out := make([]*Node, 0, len(ids))
	for id := range ids {
		out = append(out, copyNode(m.nodes[id]))
	}
	return out, nil
}

// GetOutgoingEdges returns edges whose source is the given node.
func (m *MemoryEngine) GetOutgoingEdges(id NodeID) ([]*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	out := make([]*Edge, 0, len(m.outgoing[id]))
	for eid := range m.outgoing[id] {
		out = append(out, copyEdge(m.edges[eid]))
	}
	return out, nil
}

// GetIncomingEdges returns edges whose target is the given node.
func (m *MemoryEngine) GetIncomingEdges(id NodeID) ([]*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	out := make([]*Edge, 0, len(m.incoming[id]))
	for eid := range m.incoming[id] {
		out = append(out, copyEdge(m.edges[eid]))
	}
	return out, nil
}

// GetEdgeByTriple returns the edge with the given (source, target, type)
// triple, or ErrNotFound.
func (m *MemoryEngine) GetEdgeByTriple(source, target NodeID, edgeType string) (*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	key := string(source) + "|" + string(target) + "|" + edgeType
	eid, ok := m.byTriple[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEdge(m.edges[eid]), nil
}

// AllNodes returns a copy of every node.
func (m *MemoryEngine) AllNodes() ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	out := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, copyNode(n))
	}
	return out, nil
}

// AllEdges returns a copy of every edge.
func (m *MemoryEngine) AllEdges() ([]*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	out := make([]*Edge, 0, len(m.edges))
	for _, e := range m.edges {
		out = append(out, copyEdge(e))
	}
	return out, nil
}

// NodeCount returns the number of stored nodes.
func (m *MemoryEngine) NodeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrStorageClosed
	}
	return int64(len(m.nodes)), nil
}

// EdgeCount returns the number of stored edges.
func (m *MemoryEngine) EdgeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrStorageClosed
	}
	return int64(len(m.edges)), nil
}

// NextEdgeID reserves the next value of the edge id sequence.
func (m *MemoryEngine) NextEdgeID() EdgeID {
	return EdgeID(fmt.Sprintf("e:%d", m.edgeSeq.Add(1)))
}

// Close marks the engine closed. Subsequent operations return
// ErrStorageClosed.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetEmbedding stores a vector inline on the node record. A nil vector
// clears the embedding. Implements vector.Backend.
func (m *MemoryEngine) SetEmbedding(id NodeID, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	node, ok := m.nodes[id]
	if !ok {
		return ErrNotFound
	}
	if vec == nil {
		node.Embedding = nil
		return nil
	}
	node.Embedding = make([]float32, len(vec))
	copy(node.Embedding, vec)
	return nil
}

// Embedding returns the stored vector for a node, or nil when the node has
// no embedding. Implements vector.Backend.
func (m *MemoryEngine) Embedding(id NodeID) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	node, ok := m.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	if node.Embedding == nil {
		return nil, nil
	}
	out := make([]float32, len(node.Embedding))
	copy(out, node.Embedding)
	return out, nil
}

// ForEachEmbedding calls fn for every node that has an embedding.
// Implements vector.Backend.
func (m *MemoryEngine) ForEachEmbedding(fn func(id NodeID, vec []float32) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrStorageClosed
	}
	for id, node := range m.nodes {
		if len(node.Embedding) == 0 {
			continue
		}
		if err := fn(id, node.Embedding); err != nil {
			return err
		}
	}
	return nil
}

// indexNodeLocked adds a node to the type index. Caller holds mu.
func (m *MemoryEngine) indexNodeLocked(n *Node) {
	key := typeKey(n.Type)
	if m.nodesByType[key] == nil {
		m.nodesByType[key] = make(map[NodeID]struct{})
	}
	m.nodesByType[key][n.ID] = struct{}{}
}

// unindexNodeLocked removes a node from the type index. Caller holds mu.
func (m *MemoryEngine) unindexNodeLocked(n *Node) {
	key := typeKey(n.Type)
	if set := m.nodesByType[key]; set != nil {
		delete(set, n.ID)
		if len(set) == 0 {
			delete(m.nodesByType, key)
		}
	}
}

// indexEdgeLocked adds an edge to the adjacency and triple indexes.
func (m *MemoryEngine) indexEdgeLocked(e *Edge) {
	if m.outgoing[e.Source] == nil {
		m.outgoing[e.Source] = make(map[EdgeID]struct{})
	}
	m.outgoing[e.Source][e.ID] = struct{}{}

	if m.incoming[e.Target] == nil {
		m.incoming[e.Target] = make(map[EdgeID]struct{})
	}
	m.incoming[e.Target][e.ID] = struct{}{}

	m.byTriple[e.TripleKey()] = e.ID
}

// unindexEdgeLocked removes an edge from the adjacency and triple indexes.
func (m *MemoryEngine) unindexEdgeLocked(e *Edge) {
	if set := m.outgoing[e.Source]; set != nil {
		delete(set, e.ID)
	}
	if set := m.incoming[e.Target]; set != nil {
		delete(set, e.ID)
	}
	if m.byTriple[e.TripleKey()] == e.ID {
		delete(m.byTriple, e.TripleKey())
	}
}

// deleteEdgeLocked removes an edge and its index entries. Caller holds mu.
func (m *MemoryEngine) deleteEdgeLocked(id EdgeID) {
	edge, ok := m.edges[id]
	if !ok {
		return
	}
	m.unindexEdgeLocked(edge)
	delete(m.edges, id)
}
