// Package query implements the pattern-matching query language: a parser,
// a pattern matcher, a filter evaluator and a result projector, orchestrated
// by an Engine.
//
// The language is a deliberately small openCypher-flavored subset:
//
//	MATCH (a:Person)-[:KNOWS]->(b:Person) WHERE a.name = "Ann"
//	    RETURN a.name AS from, b.name AS to ORDER BY to LIMIT 10
//	CREATE (n:Concept {id: "concept:go", label: "Go"})
//	UPDATE n SET status = "done" WHERE n.id = "task:1"
//	DELETE n WHERE n.type = "Scratch"
//
// Known limitation: a MATCH pattern may declare several edge hops, but only
// the first edge pattern is traversed during execution. The *min..max hop
// range is parsed and carried on the AST without being executed.
package query

// Query is the closed set of parsed statements. The concrete types are
// MatchQuery, CreateQuery, UpdateQuery and DeleteQuery; executors dispatch
// with an exhaustive type switch.
type Query interface {
	queryNode()
}

// NodePattern is one `(var:Label {k: v})` fragment. Every part except the
// parentheses is optional.
type NodePattern struct {
	Variable   string
	Label      string
	Properties map[string]any
}

// EdgePattern is one `-[var:TYPE*min..max]->` fragment between two node
// patterns. Hops carries the parsed range; execution ignores it.
type EdgePattern struct {
	Variable string
	Type     string
	MinHops  int
	MaxHops  int
}

// Pattern is an alternating node/edge chain: Edges[i] connects Nodes[i] to
// Nodes[i+1], always left to right.
type Pattern struct {
	Nodes []NodePattern
	Edges []EdgePattern
}

// Condition operators.
const (
	OpEquals     = "="
	OpStartsWith = "STARTS WITH"
)

// Condition is one WHERE predicate on a bound variable's property. Multiple
// conditions are implicitly ANDed; negation is per condition.
type Condition struct {
	Variable string
	Property string
	Operator string
	Value    any
	Negated  bool
}

// ReturnItem is one projection: a variable, a `var.prop` access, or `*`,
// optionally aliased.
type ReturnItem struct {
	Variable string
	Property string
	Star     bool
	Alias    string
}

// OrderBy sorts result rows lexicographically on one field (an alias, a
// variable or a var.prop access).
type OrderBy struct {
	Field      string
	Descending bool
}

// MatchQuery is a parsed MATCH ... RETURN statement.
type MatchQuery struct {
	Pattern  Pattern
	Where    []Condition
	Return   []ReturnItem
	Distinct bool
	OrderBy  *OrderBy
	Limit    int // 0 means no limit
}

// CreateQuery creates the nodes of its pattern (upsert by id when an id
// property is given, otherwise a fresh id is minted) and, when an edge
// pattern is present, an edge between the first two nodes.
type CreateQuery struct {
	Pattern Pattern
}

// UpdateQuery patches properties on every node the variable binds to,
// filtered by the WHERE conditions.
type UpdateQuery struct {
	Variable string
	Set      map[string]any
	Where    []Condition
}

// DeleteQuery deletes every node each variable binds to, filtered by the
// WHERE conditions. Edge cleanup cascades through the store.
type DeleteQuery struct {
	Variables []string
	Where     []Condition
}

func (*MatchQuery) queryNode()  {}
func (*CreateQuery) queryNode() {}
func (*UpdateQuery) queryNode() {}
func (*DeleteQuery) queryNode() {}
