package query

import (
	"fmt"
	"strings"

	"github.com/orneryd/munindb/pkg/graph"
)

// evalConditions reports whether a binding satisfies every WHERE condition.
// A condition on an unbound variable never holds, negated or not: the row
// is structurally outside the predicate's domain.
func evalConditions(conds []Condition, b Binding) bool {
	for _, cond := range conds {
		if !evalCondition(cond, b) {
			return false
		}
	}
	return true
}

func evalCondition(cond Condition, b Binding) bool {
	value, bound := resolveProperty(b, cond.Variable, cond.Property)
	if !bound {
		return false
	}

	var result bool
	switch cond.Operator {
	case OpEquals:
		result = graph.ValueEquals(value, cond.Value)
	case OpStartsWith:
		prefix, ok := cond.Value.(string)
		if !ok {
			prefix = fmt.Sprint(cond.Value)
		}
		s, ok := value.(string)
		result = ok && strings.HasPrefix(s, prefix)
	default:
		return false
	}

	if cond.Negated {
		return !result
	}
	return result
}

// resolveProperty looks a var.prop access up in a binding, checking node
// bindings first, then edge bindings. The second return is false when the
// variable itself is unbound; a bound variable with a missing property
// resolves to (nil, true).
func resolveProperty(b Binding, variable, property string) (any, bool) {
	if node, ok := b.Nodes[variable]; ok {
		v, _ := nodeProperty(node, property)
		return v, true
	}
	if edge, ok := b.Edges[variable]; ok {
		v, _ := edgeProperty(edge, property)
		return v, true
	}
	return nil, false
}
