// Package graph provides the property-graph store for MuninDB.
//
// The store owns node/edge persistence, uniqueness and referential
// invariants, bulk mutation, integrity checks, subgraph extraction and
// duplicate-node merging. Query execution, analytics and vector search all
// read and write through this package and never bypass its invariants.
//
// Design principles:
//   - Labeled property graph (typed nodes, typed directed edges)
//   - Upsert semantics: AddNode by id, AddEdge by (source, target, type)
//   - Testability through dependency injection (Engine interface)
//   - Thread-safe implementations
//
// Example usage:
//
//	engine := graph.NewMemoryEngine()
//	defer engine.Close()
//
//	store := graph.NewStore(engine, nil)
//
//	node, _ := store.AddNode(ctx, &graph.NodeInput{
//		ID:    "person:alice",
//		Type:  "Person",
//		Label: "Alice",
//		Properties: map[string]any{
//			"name": "Alice",
//		},
//	})
//
//	store.AddEdge(ctx, &graph.EdgeInput{
//		Source: "person:alice",
//		Target: "person:bob",
//		Type:   "KNOWS",
//	})
package graph

import (
	"errors"
	"fmt"
	"time"
)

// Common errors. Callers should test with errors.Is; everything returned by
// the store wraps one of these sentinels.
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidEdge   = errors.New("invalid edge: source or target node not found")
	ErrStorageClosed = errors.New("storage closed")
)

// NodeID is a strongly-typed unique identifier for graph nodes.
//
// By convention a node id is "<lowercase-type-prefix>:<identifier>", e.g.
// "memory:core:identity" or "session:4f1c...". The prefix matches the node's
// normalized type in lowercase for the id to be considered well-formed; ids
// that do not follow the convention are still stored.
type NodeID string

// EdgeID is a strongly-typed identifier for graph edges. Edge ids are
// store-assigned from a sequence ("e:1", "e:2", ...).
type EdgeID string

// Node represents a typed, labeled entity in the graph.
//
// Fields:
//   - ID: globally unique, immutable
//   - Type: canonical PascalCase label (normalized before storage)
//   - Label: display name
//   - Content: optional free text; together with Type and Label it forms the
//     node's indexable text used for embedding generation
//   - Properties: open string-keyed map of JSON-like values
//   - Embedding: fixed-dimension vector, nil when no embedding exists
//
// A nil Embedding means "no embedding" - the store never substitutes a
// zero-filled placeholder.
type Node struct {
	ID         NodeID         `json:"id"`
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Content    string         `json:"content,omitempty"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Embedding  []float32      `json:"-"`
}

// IndexableText returns the text a node's embedding is generated from.
// Changing any component re-triggers embedding generation on write.
func (n *Node) IndexableText() string {
	text := n.Type
	if n.Label != "" {
		text += " " + n.Label
	}
	if n.Content != "" {
		text += " " + n.Content
	}
	return text
}

// Edge represents a typed, directed relationship between two nodes.
//
// The triple (Source, Target, Type) is unique: inserting a duplicate updates
// the existing edge's properties instead of creating a second row. Deleting
// either endpoint cascades deletion of the edge.
type Edge struct {
	ID         EdgeID         `json:"id"`
	Source     NodeID         `json:"source_id"`
	Target     NodeID         `json:"target_id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
}

// TripleKey returns the uniqueness key for an edge.
func (e *Edge) TripleKey() string {
	return string(e.Source) + "|" + string(e.Target) + "|" + e.Type
}

// Direction selects which edges count as neighbors during traversal.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// NodeFilter narrows GetNodes results. Zero values match everything.
type NodeFilter struct {
	Type   string // canonical or variant form; normalized before matching
	Limit  int    // 0 = no limit
	Offset int
}

// EdgeFilter narrows GetEdges results. Zero values match everything.
type EdgeFilter struct {
	Source NodeID
	Target NodeID
	Type   string
}

// Engine defines the storage backend contract for the property graph.
//
// Implementations must be safe for concurrent use; each method is atomic
// within its own scope. The store layer (Store) builds upsert semantics,
// cascade deletes and embedding maintenance on top of this interface.
//
// Implementations:
//   - MemoryEngine: in-memory maps with RWMutex, embeddings held inline
//   - BadgerEngine: persistent badger-backed storage, embeddings in a side
//     keyspace
type Engine interface {
	// Node operations
	CreateNode(node *Node) error
	GetNode(id NodeID) (*Node, error)
	UpdateNode(node *Node) error
	DeleteNode(id NodeID) error

	// Edge operations
	CreateEdge(edge *Edge) error
	GetEdge(id EdgeID) (*Edge, error)
	UpdateEdge(edge *Edge) error
	DeleteEdge(id EdgeID) error

	// Lookups
	GetNodesByType(nodeType string) ([]*Node, error)
	GetOutgoingEdges(id NodeID) ([]*Edge, error)
	GetIncomingEdges(id NodeID) ([]*Edge, error)
	GetEdgeByTriple(source, target NodeID, edgeType string) (*Edge, error)
	AllNodes() ([]*Node, error)
	AllEdges() ([]*Edge, error)

	// Stats
	NodeCount() (int64, error)
	EdgeCount() (int64, error)

	// NextEdgeID reserves the next value of the edge id sequence.
	NextEdgeID() EdgeID

	// Lifecycle
	Close() error
}

// copyProperties returns a shallow-copied property map, never nil.
func copyProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// copyNode returns a copy safe to hand to callers. Properties are copied one
// level deep; nested values are shared, which matches the JSON round-trip
// behavior of the persistent engine.
func copyNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.Properties = copyProperties(n.Properties)
	if n.Embedding != nil {
		out.Embedding = make([]float32, len(n.Embedding))
		copy(out.Embedding, n.Embedding)
	}
	return &out
}

// copyEdge returns a copy safe to hand to callers.
func copyEdge(e *Edge) *Edge {
	if e == nil {
		return nil
	}
	out := *e
	out.Properties = copyProperties(e.Properties)
	return &out
}

// validationErr wraps ErrValidation with a reason.
func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
