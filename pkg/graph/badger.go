// BadgerEngine provides persistent disk-based storage using BadgerDB.
// It implements the Engine interface plus the vector.Backend capability
// with embeddings stored in a side keyspace, keyed by node id.

package graph

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for BadgerDB storage organization.
// Single-byte prefixes keep keys short and scans cheap.
const (
	prefixNode      = byte(0x01) // node id -> JSON(Node)
	prefixEdge      = byte(0x02) // edge id -> JSON(Edge)
	prefixTypeIndex = byte(0x03) // type + 0x00 + node id -> empty
	prefixOutgoing  = byte(0x04) // node id + 0x00 + edge id -> empty
	prefixIncoming  = byte(0x05) // node id + 0x00 + edge id -> empty
	prefixTriple    = byte(0x06) // source|target|type -> edge id
	prefixEmbedding = byte(0x07) // node id -> packed float32 vector
	prefixMeta      = byte(0x08) // meta keys (edge id sequence)
)

// BadgerEngine is a persistent storage engine backed by BadgerDB.
//
// Key structure:
//   - Nodes:      0x01 + nodeID -> JSON(Node)
//   - Edges:      0x02 + edgeID -> JSON(Edge)
//   - Type index: 0x03 + lowercase(type) + 0x00 + nodeID -> empty
//   - Outgoing:   0x04 + nodeID + 0x00 + edgeID -> empty
//   - Incoming:   0x05 + nodeID + 0x00 + edgeID -> empty
//   - Triples:    0x06 + source|target|type -> edgeID
//   - Embeddings: 0x07 + nodeID -> little-endian packed []float32
//
// Embeddings live outside the node record so that node reads stay small and
// vector scans touch only the 0x07 keyspace. That makes BadgerEngine the
// "side vector index" style backend.
//
// Example:
//
//	engine, err := graph.NewBadgerEngine(graph.BadgerOptions{DataDir: "./data"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
type BadgerEngine struct {
	db      *badger.DB
	edgeSeq atomic.Int64

	mu     sync.RWMutex // protects closed
	closed bool
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for data files. Required unless InMemory.
	DataDir string

	// InMemory runs BadgerDB without touching disk. Useful for tests.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but more durable.
	SyncWrites bool
}

// NewBadgerEngine opens (or creates) a persistent engine.
func NewBadgerEngine(opts BadgerOptions) (*BadgerEngine, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	e := &BadgerEngine{db: db}
	if err := e.loadEdgeSeq(); err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("badger engine opened", "dir", opts.DataDir, "in_memory", opts.InMemory)
	return e, nil
}

func nodeKey(id NodeID) []byte {
	return append([]byte{prefixNode}, id...)
}

func edgeKey(id EdgeID) []byte {
	return append([]byte{prefixEdge}, id...)
}

// typeIndexKey builds "0x03 + lowercase(type) + 0x00 + nodeID".
func typeIndexKey(nodeType string, id NodeID) []byte {
	key := append([]byte{prefixTypeIndex}, strings.ToLower(nodeType)...)
	key = append(key, 0x00)
	return append(key, id...)
}

func typeIndexPrefix(nodeType string) []byte {
	key := append([]byte{prefixTypeIndex}, strings.ToLower(nodeType)...)
	return append(key, 0x00)
}

// adjacencyKey builds "prefix + nodeID + 0x00 + edgeID".
func adjacencyKey(prefix byte, nodeID NodeID, edgeID EdgeID) []byte {
	key := append([]byte{prefix}, nodeID...)
	key = append(key, 0x00)
	return append(key, edgeID...)
}

func adjacencyPrefix(prefix byte, nodeID NodeID) []byte {
	key := append([]byte{prefix}, nodeID...)
	return append(key, 0x00)
}

func tripleKey(source, target NodeID, edgeType string) []byte {
	key := append([]byte{prefixTriple}, source...)
	key = append(key, '|')
	key = append(key, target...)
	key = append(key, '|')
	return append(key, edgeType...)
}

func embeddingKey(id NodeID) []byte {
	return append([]byte{prefixEmbedding}, id...)
}

var edgeSeqKey = append([]byte{prefixMeta}, "edge_seq"...)

// loadEdgeSeq restores the edge id sequence from the meta keyspace.
func (b *BadgerEngine) loadEdgeSeq() error {
	return b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(edgeSeqKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 8 {
				b.edgeSeq.Store(int64(binary.LittleEndian.Uint64(val)))
			}
			return nil
		})
	})
}

// NextEdgeID reserves the next value of the edge id sequence and persists
// the high-water mark.
func (b *BadgerEngine) NextEdgeID() EdgeID {
	n := b.edgeSeq.Add(1)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(n))
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(edgeSeqKey, buf)
	}); err != nil {
		slog.Warn("persist edge sequence failed", "error", err)
	}
	return EdgeID(fmt.Sprintf("e:%d", n))
}

func (b *BadgerEngine) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

// CreateNode stores a new node.
func (b *BadgerEngine) CreateNode(node *Node) error {
	if node == nil {
		return validationErr("nil node")
	}
	if node.ID == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("marshal node: %w", err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(nodeKey(node.ID)); err == nil {
			return validationErr("node %s already exists", node.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(nodeKey(node.ID), data); err != nil {
			return err
		}
		return txn.Set(typeIndexKey(node.Type, node.ID), nil)
	})
}

// GetNode retrieves a node by id.
func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var node *Node
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			node = &Node{}
			return json.Unmarshal(val, node)
		})
	})
	if err != nil {
		return nil, err
	}
	if node.Properties == nil {
		node.Properties = map[string]any{}
	}
	return node, nil
}

// UpdateNode replaces a stored node wholesale.
func (b *BadgerEngine) UpdateNode(node *Node) error {
	if node == nil {
		return validationErr("nil node")
	}
	if node.ID == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("marshal node: %w", err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		existing, err := readNode(txn, node.ID)
		if err != nil {
			return err
		}
		if existing.Type != node.Type {
			if err := txn.Delete(typeIndexKey(existing.Type, node.ID)); err != nil {
				return err
			}
		}
		if err := txn.Set(nodeKey(node.ID), data); err != nil {
			return err
		}
		return txn.Set(typeIndexKey(node.Type, node.ID), nil)
	})
}

// DeleteNode removes a node, its embedding and all referencing edges.
func (b *BadgerEngine) DeleteNode(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		node, err := readNode(txn, id)
		if err != nil {
			return err
		}

		// Cascade both directions.
		for _, dir := range []byte{prefixOutgoing, prefixIncoming} {
			edgeIDs, err := scanAdjacency(txn, dir, id)
			if err != nil {
				return err
			}
			for _, eid := range edgeIDs {
				if err := deleteEdgeInTxn(txn, eid); err != nil && !errors.Is(err, ErrNotFound) {
					return err
				}
			}
		}

		if err := txn.Delete(typeIndexKey(node.Type, id)); err != nil {
			return err
		}
		if err := txn.Delete(embeddingKey(id)); err != nil {
			return err
		}
		return txn.Delete(nodeKey(id))
	})
}

// CreateEdge stores a new edge with adjacency and triple index entries.
func (b *BadgerEngine) CreateEdge(edge *Edge) error {
	if edge == nil {
		return validationErr("nil edge")
	}
	if edge.ID == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(edge)
	if err != nil {
		return fmt.Errorf("marshal edge: %w", err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(nodeKey(edge.Source)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: source %s", ErrInvalidEdge, edge.Source)
		} else if err != nil {
			return err
		}
		if _, err := txn.Get(nodeKey(edge.Target)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: target %s", ErrInvalidEdge, edge.Target)
		} else if err != nil {
			return err
		}
		if _, err := txn.Get(tripleKey(edge.Source, edge.Target, edge.Type)); err == nil {
			return validationErr("edge triple %s already exists", edge.TripleKey())
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(edgeKey(edge.ID), data); err != nil {
			return err
		}
		if err := txn.Set(adjacencyKey(prefixOutgoing, edge.Source, edge.ID), nil); err != nil {
			return err
		}
		if err := txn.Set(adjacencyKey(prefixIncoming, edge.Target, edge.ID), nil); err != nil {
			return err
		}
		return txn.Set(tripleKey(edge.Source, edge.Target, edge.Type), []byte(edge.ID))
	})
}

// GetEdge retrieves an edge by id.
func (b *BadgerEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var edge *Edge
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		edge, err = readEdge(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// UpdateEdge replaces a stored edge wholesale. The triple must stay the
// same; upserts that change endpoints go through delete + create.
func (b *BadgerEngine) UpdateEdge(edge *Edge) error {
	if edge == nil {
		return validationErr("nil edge")
	}
	if edge.ID == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(edge)
	if err != nil {
		return fmt.Errorf("marshal edge: %w", err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		existing, err := readEdge(txn, edge.ID)
		if err != nil {
			return err
		}
		if existing.TripleKey() != edge.TripleKey() {
			if err := txn.Delete(tripleKey(existing.Source, existing.Target, existing.Type)); err != nil {
				return err
			}
			if err := txn.Delete(adjacencyKey(prefixOutgoing, existing.Source, existing.ID)); err != nil {
				return err
			}
			if err := txn.Delete(adjacencyKey(prefixIncoming, existing.Target, existing.ID)); err != nil {
				return err
			}
			if err := txn.Set(adjacencyKey(prefixOutgoing, edge.Source, edge.ID), nil); err != nil {
				return err
			}
			if err := txn.Set(adjacencyKey(prefixIncoming, edge.Target, edge.ID), nil); err != nil {
				return err
			}
			if err := txn.Set(tripleKey(edge.Source, edge.Target, edge.Type), []byte(edge.ID)); err != nil {
				return err
			}
		}
		return txn.Set(edgeKey(edge.ID), data)
	})
}

// DeleteEdge removes an edge and its index entries.
func (b *BadgerEngine) DeleteEdge(id EdgeID) error {
	if id == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return deleteEdgeInTxn(txn, id)
	})
}

// GetNodesByType returns all nodes of a type via the type index.
func (b *BadgerEngine) GetNodesByType(nodeType string) ([]*Node, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var nodes []*Node
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := typeIndexPrefix(nodeType)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id := NodeID(it.Item().Key()[len(prefix):])
			node, err := readNode(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue // stale index entry
			}
			if err != nil {
				return err
			}
			nodes = append(nodes, node)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// GetOutgoingEdges returns edges whose source is the given node.
func (b *BadgerEngine) GetOutgoingEdges(id NodeID) ([]*Edge, error) {
	return b.edgesByAdjacency(prefixOutgoing, id)
}

// GetIncomingEdges returns edges whose target is the given node.
func (b *BadgerEngine) GetIncomingEdges(id NodeID) ([]*Edge, error) {
	return b.edgesByAdjacency(prefixIncoming, id)
}

func (b *BadgerEngine) edgesByAdjacency(prefix byte, id NodeID) ([]*Edge, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var edges []*Edge
	err := b.db.View(func(txn *badger.Txn) error {
		edgeIDs, err := scanAdjacency(txn, prefix, id)
		if err != nil {
			return err
		}
		for _, eid := range edgeIDs {
			edge, err := readEdge(txn, eid)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			edges = append(edges, edge)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// GetEdgeByTriple returns the edge with the given triple, or ErrNotFound.
func (b *BadgerEngine) GetEdgeByTriple(source, target NodeID, edgeType string) (*Edge, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var edge *Edge
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tripleKey(source, target, edgeType))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var eid EdgeID
		if err := item.Value(func(val []byte) error {
			eid = EdgeID(val)
			return nil
		}); err != nil {
			return err
		}
		edge, err = readEdge(txn, eid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// AllNodes returns every stored node.
func (b *BadgerEngine) AllNodes() ([]*Node, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var nodes []*Node
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte{prefixNode}})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var node Node
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &node)
			}); err != nil {
				return err
			}
			if node.Properties == nil {
				node.Properties = map[string]any{}
			}
			n := node
			nodes = append(nodes, &n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// AllEdges returns every stored edge.
func (b *BadgerEngine) AllEdges() ([]*Edge, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var edges []*Edge
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte{prefixEdge}})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var edge Edge
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &edge)
			}); err != nil {
				return err
			}
			if edge.Properties == nil {
				edge.Properties = map[string]any{}
			}
			e := edge
			edges = append(edges, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// NodeCount returns the number of stored nodes.
func (b *BadgerEngine) NodeCount() (int64, error) {
	return b.countPrefix(prefixNode)
}

// EdgeCount returns the number of stored edges.
func (b *BadgerEngine) EdgeCount() (int64, error) {
	return b.countPrefix(prefixEdge)
}

func (b *BadgerEngine) countPrefix(prefix byte) (int64, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}

	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         []byte{prefix},
			PrefetchValues: false,
		})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close releases the underlying BadgerDB.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// SetEmbedding writes a packed vector to the embedding keyspace. A nil
// vector deletes the entry. Implements vector.Backend.
func (b *BadgerEngine) SetEmbedding(id NodeID, vec []float32) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(nodeKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		if vec == nil {
			err := txn.Delete(embeddingKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return txn.Set(embeddingKey(id), packVector(vec))
	})
}

// Embedding returns the stored vector for a node, or nil when absent.
// Implements vector.Backend.
func (b *BadgerEngine) Embedding(id NodeID) ([]float32, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var vec []float32
	err := b.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(nodeKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		item, err := txn.Get(embeddingKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			vec = unpackVector(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// ForEachEmbedding iterates the embedding keyspace. Implements
// vector.Backend.
func (b *BadgerEngine) ForEachEmbedding(fn func(id NodeID, vec []float32) error) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte{prefixEmbedding}})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id := NodeID(it.Item().Key()[1:])
			var vec []float32
			if err := it.Item().Value(func(val []byte) error {
				vec = unpackVector(val)
				return nil
			}); err != nil {
				return err
			}
			if err := fn(id, vec); err != nil {
				return err
			}
		}
		return nil
	})
}

// readNode fetches and decodes a node inside a transaction.
func readNode(txn *badger.Txn, id NodeID) (*Node, error) {
	item, err := txn.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	node := &Node{}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, node)
	}); err != nil {
		return nil, err
	}
	if node.Properties == nil {
		node.Properties = map[string]any{}
	}
	return node, nil
}

// readEdge fetches and decodes an edge inside a transaction.
func readEdge(txn *badger.Txn, id EdgeID) (*Edge, error) {
	item, err := txn.Get(edgeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	edge := &Edge{}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, edge)
	}); err != nil {
		return nil, err
	}
	if edge.Properties == nil {
		edge.Properties = map[string]any{}
	}
	return edge, nil
}

// scanAdjacency returns edge ids from an adjacency index keyspace.
func scanAdjacency(txn *badger.Txn, prefix byte, id NodeID) ([]EdgeID, error) {
	keyPrefix := adjacencyPrefix(prefix, id)
	it := txn.NewIterator(badger.IteratorOptions{
		Prefix:         keyPrefix,
		PrefetchValues: false,
	})
	defer it.Close()

	var out []EdgeID
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		out = append(out, EdgeID(bytes.Clone(key[len(keyPrefix):])))
	}
	return out, nil
}

// deleteEdgeInTxn removes an edge and its index entries.
func deleteEdgeInTxn(txn *badger.Txn, id EdgeID) error {
	edge, err := readEdge(txn, id)
	if err != nil {
		return err
	}
	if err := txn.Delete(adjacencyKey(prefixOutgoing, edge.Source, id)); err != nil {
		return err
	}
	if err := txn.Delete(adjacencyKey(prefixIncoming, edge.Target, id)); err != nil {
		return err
	}
	if err := txn.Delete(tripleKey(edge.Source, edge.Target, edge.Type)); err != nil {
		return err
	}
	return txn.Delete(edgeKey(id))
}

// packVector encodes a float32 slice as little-endian bytes.
func packVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// unpackVector decodes little-endian bytes back into a float32 slice.
func unpackVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
