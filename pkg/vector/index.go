// Similarity search over stored embeddings.

package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/orneryd/munindb/pkg/graph"
)

// Backend is the vector capability a storage engine exposes. The memory
// engine keeps vectors inline on node records ("native column" style); the
// badger engine keeps them in a side keyspace ("side index" style). Nothing
// outside this interface may branch on which one it is talking to - the
// search contract (ordering, threshold, limit) is identical over both.
type Backend interface {
	SetEmbedding(id graph.NodeID, vec []float32) error
	Embedding(id graph.NodeID) ([]float32, error)
	ForEachEmbedding(fn func(id graph.NodeID, vec []float32) error) error
}

// Result is one similarity search hit.
type Result struct {
	ID    graph.NodeID `json:"id"`
	Score float64      `json:"score"`
}

// SearchOptions tunes a similarity search.
type SearchOptions struct {
	// Limit caps the number of results. <= 0 means no cap.
	Limit int
	// Threshold drops results scoring below it. Zero keeps everything
	// with non-negative similarity; negative thresholds admit opposed
	// vectors too.
	Threshold float64
	// Exclude removes one node (typically the reference node itself)
	// from the results.
	Exclude graph.NodeID
}

// Index answers top-k cosine-similarity queries over the embeddings held
// by a Backend. Nodes without an embedding are invisible to the index;
// there is no zero-vector placeholder to filter out.
type Index struct {
	backend Backend
}

// NewIndex creates a similarity index over a backend. Both storage engines
// satisfy Backend, so the usual call is NewIndex(engine).
func NewIndex(backend Backend) *Index {
	return &Index{backend: backend}
}

// SearchVector ranks all embedded nodes by cosine similarity to the query
// vector, descending, applying the threshold, exclusion and limit from
// opts. Ties break by node id for deterministic output.
func (idx *Index) SearchVector(query []float32, opts SearchOptions) ([]Result, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	var results []Result
	err := idx.backend.ForEachEmbedding(func(id graph.NodeID, vec []float32) error {
		if opts.Exclude != "" && id == opts.Exclude {
			return nil
		}
		score := CosineSimilarity(query, vec)
		if score < opts.Threshold {
			return nil
		}
		results = append(results, Result{ID: id, Score: score})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// SearchNode ranks embedded nodes by similarity to a reference node's
// stored vector. The reference node is excluded from its own results
// unless opts.Exclude is already set to a different id. A reference node
// without an embedding returns graph.ErrNotFound.
func (idx *Index) SearchNode(id graph.NodeID, opts SearchOptions) ([]Result, error) {
	vec, err := idx.backend.Embedding(id)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("node %s has no embedding: %w", id, graph.ErrNotFound)
	}
	if opts.Exclude == "" {
		opts.Exclude = id
	}
	return idx.SearchVector(vec, opts)
}

// Reindex regenerates embeddings for every node in the store whose
// indexable text is non-empty, using the given vectorizer. Failures are
// collected per node and do not stop the pass.
func Reindex(ctx context.Context, store *graph.Store, vectorizer graph.Vectorizer, backend Backend) (*graph.BulkResult, error) {
	nodes, err := store.Engine().AllNodes()
	if err != nil {
		return nil, err
	}

	result := &graph.BulkResult{}
	for _, node := range nodes {
		vec, err := vectorizer.Vectorize(ctx, node.IndexableText())
		if err != nil {
			result.Failed = append(result.Failed, graph.BulkFailure{Ref: string(node.ID), Reason: err.Error()})
			continue
		}
		if err := backend.SetEmbedding(node.ID, vec); err != nil {
			if errors.Is(err, graph.ErrNotFound) {
				continue // node deleted mid-pass
			}
			result.Failed = append(result.Failed, graph.BulkFailure{Ref: string(node.ID), Reason: err.Error()})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}
