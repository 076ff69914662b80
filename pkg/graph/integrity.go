// Integrity checking for the property graph.
//
// Checks are non-fatal: anomalies are reported as data, never raised as
// errors. Orphaned nodes, dangling edges and duplicate triples flip the
// Healthy flag; self-loops and missing embeddings are informational.

package graph

import (
	"sort"
)

// Integrity check names, used as keys of IntegrityReport.Issues.
const (
	CheckOrphanedNodes     = "orphaned_nodes"
	CheckDanglingEdges     = "dangling_edges"
	CheckDuplicateEdges    = "duplicate_edges"
	CheckSelfLoops         = "self_loops"
	CheckMissingEmbeddings = "missing_embeddings"
)

// IntegrityIssue describes one offending record.
type IntegrityIssue struct {
	NodeID NodeID `json:"node_id,omitempty"`
	EdgeID EdgeID `json:"edge_id,omitempty"`
	Detail string `json:"detail"`
}

// IntegrityReport is the result of CheckIntegrity.
//
// Healthy is false if any orphaned node, dangling edge or duplicate edge
// triple was found. Self-loops and missing embeddings are reported but do
// not flip the flag.
type IntegrityReport struct {
	Issues  map[string][]IntegrityIssue `json:"issues"`
	Total   int                         `json:"total"`
	Healthy bool                        `json:"healthy"`
}

// embeddingSource is the read capability used by the missing-embeddings
// check. Both engines satisfy it.
type embeddingSource interface {
	Embedding(id NodeID) ([]float32, error)
}

// CheckIntegrity scans the whole graph for structural anomalies.
//
// Checks:
//   - orphaned nodes: no edges in either direction, excluding configured
//     standalone types
//   - dangling edges: an endpoint no longer exists
//   - duplicate edges: more than one edge sharing a (source, target, type)
//     triple
//   - self-loops: source == target
//   - missing embeddings: node has indexable text but no stored vector
func (s *Store) CheckIntegrity() (*IntegrityReport, error) {
	report := &IntegrityReport{
		Issues: map[string][]IntegrityIssue{
			CheckOrphanedNodes:     {},
			CheckDanglingEdges:     {},
			CheckDuplicateEdges:    {},
			CheckSelfLoops:         {},
			CheckMissingEmbeddings: {},
		},
	}

	nodes, err := s.engine.AllNodes()
	if err != nil {
		return nil, err
	}
	edges, err := s.engine.AllEdges()
	if err != nil {
		return nil, err
	}

	nodeSet := make(map[NodeID]*Node, len(nodes))
	for _, n := range nodes {
		nodeSet[n.ID] = n
	}

	connected := make(map[NodeID]struct{})
	triples := make(map[string][]EdgeID)
	for _, e := range edges {
		connected[e.Source] = struct{}{}
		connected[e.Target] = struct{}{}
		triples[e.TripleKey()] = append(triples[e.TripleKey()], e.ID)

		if _, ok := nodeSet[e.Source]; !ok {
			report.Issues[CheckDanglingEdges] = append(report.Issues[CheckDanglingEdges], IntegrityIssue{
				EdgeID: e.ID,
				Detail: "source node " + string(e.Source) + " does not exist",
			})
		}
		if _, ok := nodeSet[e.Target]; !ok {
			report.Issues[CheckDanglingEdges] = append(report.Issues[CheckDanglingEdges], IntegrityIssue{
				EdgeID: e.ID,
				Detail: "target node " + string(e.Target) + " does not exist",
			})
		}
		if e.Source == e.Target {
			report.Issues[CheckSelfLoops] = append(report.Issues[CheckSelfLoops], IntegrityIssue{
				EdgeID: e.ID,
				Detail: "self-loop on " + string(e.Source),
			})
		}
	}

	for key, ids := range triples {
		if len(ids) < 2 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids[1:] {
			report.Issues[CheckDuplicateEdges] = append(report.Issues[CheckDuplicateEdges], IntegrityIssue{
				EdgeID: id,
				Detail: "duplicate of triple " + key,
			})
		}
	}

	embeddings, _ := s.engine.(embeddingSource)

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	for _, n := range nodes {
		if _, hasEdges := connected[n.ID]; !hasEdges {
			if _, standalone := s.standalone[n.Type]; !standalone {
				report.Issues[CheckOrphanedNodes] = append(report.Issues[CheckOrphanedNodes], IntegrityIssue{
					NodeID: n.ID,
					Detail: "node has no edges",
				})
			}
		}

		if embeddings != nil && n.IndexableText() != "" {
			vec, err := embeddings.Embedding(n.ID)
			if err == nil && len(vec) == 0 {
				report.Issues[CheckMissingEmbeddings] = append(report.Issues[CheckMissingEmbeddings], IntegrityIssue{
					NodeID: n.ID,
					Detail: "node has indexable text but no embedding",
				})
			}
		}
	}

	for _, issues := range report.Issues {
		report.Total += len(issues)
	}
	report.Healthy = len(report.Issues[CheckOrphanedNodes]) == 0 &&
		len(report.Issues[CheckDanglingEdges]) == 0 &&
		len(report.Issues[CheckDuplicateEdges]) == 0
	return report, nil
}
