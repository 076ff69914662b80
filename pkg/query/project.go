package query

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/orneryd/munindb/pkg/graph"
)

// Row is one projected result row, keyed by alias or projection expression.
type Row map[string]any

// project builds output rows from filtered bindings and applies DISTINCT,
// ORDER BY and LIMIT in that order.
func project(q *MatchQuery, bindings []Binding) []Row {
	rows := make([]Row, 0, len(bindings))
	kept := make([]Binding, 0, len(bindings))

	for _, b := range bindings {
		rows = append(rows, projectRow(q.Return, b))
		kept = append(kept, b)
	}

	if q.Distinct {
		rows, kept = distinctRows(rows, kept)
	}
	if q.OrderBy != nil {
		orderRows(rows, kept, q.OrderBy)
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows
}

func projectRow(items []ReturnItem, b Binding) Row {
	row := make(Row)
	for _, item := range items {
		switch {
		case item.Star:
			for name, node := range b.Nodes {
				row[name] = nodeValue(node)
			}
			for name, edge := range b.Edges {
				row[name] = edgeValue(edge)
			}
		case item.Property != "":
			key := item.Alias
			if key == "" {
				key = item.Variable + "." + item.Property
			}
			value, _ := resolveProperty(b, item.Variable, item.Property)
			row[key] = value
		default:
			key := item.Alias
			if key == "" {
				key = item.Variable
			}
			if node, ok := b.Nodes[item.Variable]; ok {
				row[key] = nodeValue(node)
			} else if edge, ok := b.Edges[item.Variable]; ok {
				row[key] = edgeValue(edge)
			} else {
				row[key] = nil
			}
		}
	}
	return row
}

// nodeValue is the row representation of a whole-node projection.
func nodeValue(node *graph.Node) map[string]any {
	return map[string]any{
		"id":         string(node.ID),
		"type":       node.Type,
		"label":      node.Label,
		"content":    node.Content,
		"properties": node.Properties,
	}
}

func edgeValue(edge *graph.Edge) map[string]any {
	return map[string]any{
		"id":         string(edge.ID),
		"source":     string(edge.Source),
		"target":     string(edge.Target),
		"type":       edge.Type,
		"properties": edge.Properties,
	}
}

// distinctRows deduplicates rows by structural equality, keeping the first
// occurrence. JSON encoding gives a canonical key: map keys serialize
// sorted, so two structurally equal rows encode identically.
func distinctRows(rows []Row, bindings []Binding) ([]Row, []Binding) {
	seen := make(map[string]struct{}, len(rows))
	outRows := rows[:0]
	outBindings := bindings[:0]
	for i, row := range rows {
		key, err := json.Marshal(row)
		if err != nil {
			key = []byte(fmt.Sprint(row))
		}
		if _, dup := seen[string(key)]; dup {
			continue
		}
		seen[string(key)] = struct{}{}
		outRows = append(outRows, row)
		outBindings = append(outBindings, bindings[i])
	}
	return outRows, outBindings
}

// orderRows sorts rows lexicographically on the ORDER BY field. The field
// resolves against the row first (aliases and projected expressions), then
// against the binding for var.prop accesses that were not projected.
func orderRows(rows []Row, bindings []Binding, order *OrderBy) {
	keys := make([]string, len(rows))
	for i := range rows {
		keys[i] = sortKey(rows[i], bindings[i], order.Field)
	}
	sort.Stable(keyedRows{rows, bindings, keys, order.Descending})
}

func sortKey(row Row, b Binding, field string) string {
	if v, ok := row[field]; ok {
		return stringify(v)
	}
	variable, property := splitField(field)
	if property != "" {
		if v, bound := resolveProperty(b, variable, property); bound {
			return stringify(v)
		}
	}
	return ""
}

func splitField(field string) (string, string) {
	for i := 0; i < len(field); i++ {
		if field[i] == '.' {
			return field[:i], field[i+1:]
		}
	}
	return field, ""
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// keyedRows sorts rows, bindings and their sort keys in lockstep.
type keyedRows struct {
	rows     []Row
	bindings []Binding
	keys     []string
	desc     bool
}

func (k keyedRows) Len() int { return len(k.rows) }
func (k keyedRows) Swap(i, j int) {
	k.rows[i], k.rows[j] = k.rows[j], k.rows[i]
	k.bindings[i], k.bindings[j] = k.bindings[j], k.bindings[i]
	k.keys[i], k.keys[j] = k.keys[j], k.keys[i]
}
func (k keyedRows) Less(i, j int) bool {
	if k.desc {
		return k.keys[i] > k.keys[j]
	}
	return k.keys[i] < k.keys[j]
}
