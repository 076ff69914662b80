package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/orneryd/munindb/pkg/graph"
)

// Parse turns query text into an AST. Malformed text returns an error
// wrapping graph.ErrValidation.
func Parse(text string) (Query, error) {
	p := &parser{input: text}
	p.skipSpace()

	var q Query
	var err error
	switch strings.ToUpper(p.peekWord()) {
	case "MATCH":
		q, err = p.parseMatch()
	case "CREATE":
		q, err = p.parseCreate()
	case "UPDATE":
		q, err = p.parseUpdate()
	case "DELETE":
		q, err = p.parseDelete()
	case "":
		return nil, fmt.Errorf("%w: empty query", graph.ErrValidation)
	default:
		return nil, fmt.Errorf("%w: unknown statement %q", graph.ErrValidation, p.peekWord())
	}
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected trailing input %q", p.rest())
	}
	return q, nil
}

// parser is a single-pass string scanner. No token stream; each production
// consumes directly from the input.
type parser struct {
	input string
	pos   int
}

func (p *parser) parseMatch() (*MatchQuery, error) {
	p.keyword("MATCH")

	q := &MatchQuery{}
	pattern, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	q.Pattern = *pattern

	if p.keyword("WHERE") {
		q.Where, err = p.parseConditions()
		if err != nil {
			return nil, err
		}
	}

	if !p.keyword("RETURN") {
		return nil, p.errorf("expected RETURN")
	}
	q.Distinct = p.keyword("DISTINCT")
	q.Return, err = p.parseReturnItems()
	if err != nil {
		return nil, err
	}

	if p.keyword("ORDER") {
		if !p.keyword("BY") {
			return nil, p.errorf("expected BY after ORDER")
		}
		q.OrderBy, err = p.parseOrderBy()
		if err != nil {
			return nil, err
		}
	}

	if p.keyword("LIMIT") {
		n, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, p.errorf("LIMIT must be >= 0")
		}
		q.Limit = n
	}
	return q, nil
}

func (p *parser) parseCreate() (*CreateQuery, error) {
	p.keyword("CREATE")
	pattern, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	if len(pattern.Nodes) == 0 {
		return nil, p.errorf("CREATE requires at least one node pattern")
	}
	return &CreateQuery{Pattern: *pattern}, nil
}

func (p *parser) parseUpdate() (*UpdateQuery, error) {
	p.keyword("UPDATE")

	q := &UpdateQuery{Set: make(map[string]any)}
	variable, err := p.identifier()
	if err != nil {
		return nil, err
	}
	q.Variable = variable

	if !p.keyword("SET") {
		return nil, p.errorf("expected SET")
	}
	for {
		key, err := p.identifier()
		if err != nil {
			return nil, err
		}
		if err := p.expect('='); err != nil {
			return nil, err
		}
		value, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		q.Set[key] = value
		if !p.punct(',') {
			break
		}
	}

	if p.keyword("WHERE") {
		q.Where, err = p.parseConditions()
		if err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (p *parser) parseDelete() (*DeleteQuery, error) {
	p.keyword("DELETE")

	q := &DeleteQuery{}
	for {
		variable, err := p.identifier()
		if err != nil {
			return nil, err
		}
		q.Variables = append(q.Variables, variable)
		if !p.punct(',') {
			break
		}
	}

	if p.keyword("WHERE") {
		var err error
		q.Where, err = p.parseConditions()
		if err != nil {
			return nil, err
		}
	}
	return q, nil
}

// parsePattern reads a node pattern followed by zero or more edge+node
// continuations: (a:X)-[:R]->(b:Y)-[:S]->(c).
func (p *parser) parsePattern() (*Pattern, error) {
	pattern := &Pattern{}

	node, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	pattern.Nodes = append(pattern.Nodes, *node)

	for {
		p.skipSpace()
		if p.peekChar() != '-' {
			break
		}
		edge, err := p.parseEdgePattern()
		if err != nil {
			return nil, err
		}
		next, err := p.parseNodePattern()
		if err != nil {
			return nil, err
		}
		pattern.Edges = append(pattern.Edges, *edge)
		pattern.Nodes = append(pattern.Nodes, *next)
	}
	return pattern, nil
}

func (p *parser) parseNodePattern() (*NodePattern, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	node := &NodePattern{}

	p.skipSpace()
	if isIdentStart(p.peekChar()) {
		word, err := p.identifier()
		if err != nil {
			return nil, err
		}
		node.Variable = word
	}
	p.skipSpace()
	if p.peekChar() == ':' {
		p.pos++
		label, err := p.identifier()
		if err != nil {
			return nil, err
		}
		node.Label = label
	}
	p.skipSpace()
	if p.peekChar() == '{' {
		props, err := p.parseProperties()
		if err != nil {
			return nil, err
		}
		node.Properties = props
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return node, nil
}

// parseEdgePattern reads -[var:TYPE*min..max]->. Only the rightward
// direction exists in the grammar.
func (p *parser) parseEdgePattern() (*EdgePattern, error) {
	if err := p.expect('-'); err != nil {
		return nil, err
	}
	if err := p.expect('['); err != nil {
		return nil, err
	}
	edge := &EdgePattern{}

	p.skipSpace()
	if isIdentStart(p.peekChar()) {
		first, err := p.identifier()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peekChar() == ':' {
			p.pos++
			edge.Variable = first
			edge.Type, err = p.identifier()
			if err != nil {
				return nil, err
			}
		} else {
			edge.Type = first
		}
	} else if p.peekChar() == ':' {
		p.pos++
		var err error
		edge.Type, err = p.identifier()
		if err != nil {
			return nil, err
		}
	}

	p.skipSpace()
	if p.peekChar() == '*' {
		p.pos++
		if min, ok := p.tryInt(); ok {
			edge.MinHops = min
		}
		p.skipSpace()
		if strings.HasPrefix(p.rest(), "..") {
			p.pos += 2
			if max, ok := p.tryInt(); ok {
				edge.MaxHops = max
			}
		} else {
			edge.MaxHops = edge.MinHops
		}
	}

	if err := p.expect(']'); err != nil {
		return nil, err
	}
	if err := p.expect('-'); err != nil {
		return nil, err
	}
	if err := p.expect('>'); err != nil {
		return nil, err
	}
	return edge, nil
}

func (p *parser) parseProperties() (map[string]any, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	props := make(map[string]any)

	p.skipSpace()
	if p.peekChar() == '}' {
		p.pos++
		return props, nil
	}
	for {
		key, err := p.propertyKey()
		if err != nil {
			return nil, err
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		value, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		props[key] = value
		if !p.punct(',') {
			break
		}
	}
	if err := p.expect('}'); err != nil {
		return nil, err
	}
	return props, nil
}

func (p *parser) propertyKey() (string, error) {
	p.skipSpace()
	if p.peekChar() == '"' || p.peekChar() == '\'' {
		return p.quotedString()
	}
	return p.identifier()
}

// parseConditions reads one or more predicates. AND between them is
// accepted but optional: bare juxtaposition of conditions is the implicit
// conjunction.
func (p *parser) parseConditions() ([]Condition, error) {
	var conds []Condition
	for {
		cond := Condition{Negated: p.keyword("NOT")}

		variable, err := p.identifier()
		if err != nil {
			return nil, err
		}
		cond.Variable = variable
		if err := p.expect('.'); err != nil {
			return nil, err
		}
		cond.Property, err = p.identifier()
		if err != nil {
			return nil, err
		}

		p.skipSpace()
		switch {
		case p.peekChar() == '=':
			p.pos++
			cond.Operator = OpEquals
			cond.Value, err = p.parseLiteral()
			if err != nil {
				return nil, err
			}
		case p.keyword("STARTS"):
			if !p.keyword("WITH") {
				return nil, p.errorf("expected WITH after STARTS")
			}
			cond.Operator = OpStartsWith
			cond.Value, err = p.parseLiteral()
			if err != nil {
				return nil, err
			}
		default:
			return nil, p.errorf("expected = or STARTS WITH")
		}
		conds = append(conds, cond)

		if p.keyword("AND") {
			continue
		}
		if !p.conditionAhead() {
			break
		}
	}
	return conds, nil
}

// conditionAhead reports whether the next tokens look like another
// condition (NOT, or an identifier followed by a dot) rather than a clause
// keyword or end of input.
func (p *parser) conditionAhead() bool {
	save := p.pos
	defer func() { p.pos = save }()

	p.skipSpace()
	word := p.peekWord()
	if word == "" {
		return false
	}
	switch strings.ToUpper(word) {
	case "RETURN", "ORDER", "LIMIT", "SET", "DELETE":
		return false
	case "NOT":
		return true
	}
	p.pos += len(word)
	return p.peekChar() == '.'
}

func (p *parser) parseReturnItems() ([]ReturnItem, error) {
	var items []ReturnItem
	for {
		p.skipSpace()
		item := ReturnItem{}
		if p.peekChar() == '*' {
			p.pos++
			item.Star = true
		} else {
			variable, err := p.identifier()
			if err != nil {
				return nil, err
			}
			item.Variable = variable
			if p.peekChar() == '.' {
				p.pos++
				item.Property, err = p.identifier()
				if err != nil {
					return nil, err
				}
			}
		}
		if p.keyword("AS") {
			alias, err := p.identifier()
			if err != nil {
				return nil, err
			}
			item.Alias = alias
		}
		items = append(items, item)
		if !p.punct(',') {
			break
		}
	}
	return items, nil
}

func (p *parser) parseOrderBy() (*OrderBy, error) {
	field, err := p.identifier()
	if err != nil {
		return nil, err
	}
	if p.peekChar() == '.' {
		p.pos++
		prop, err := p.identifier()
		if err != nil {
			return nil, err
		}
		field = field + "." + prop
	}

	order := &OrderBy{Field: field}
	if p.keyword("DESC") {
		order.Descending = true
	} else {
		p.keyword("ASC")
	}
	return order, nil
}

// parseLiteral reads a quoted string or a bare token and coerces it:
// true/false to bool, all digits to int64, digits with one dot to float64,
// anything else stays a string.
func (p *parser) parseLiteral() (any, error) {
	p.skipSpace()
	if p.peekChar() == '"' || p.peekChar() == '\'' {
		s, err := p.quotedString()
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	start := p.pos
	for p.pos < len(p.input) && !isDelimiter(p.input[p.pos]) {
		p.pos++
	}
	raw := p.input[start:p.pos]
	if raw == "" {
		return nil, p.errorf("expected a literal")
	}
	return coerceLiteral(raw), nil
}

func coerceLiteral(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if strings.Count(raw, ".") == 1 {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}

func (p *parser) quotedString() (string, error) {
	quote := p.input[p.pos]
	p.pos++

	var sb strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '\\' && p.pos+1 < len(p.input) {
			p.pos++
			sb.WriteByte(p.input[p.pos])
			p.pos++
			continue
		}
		if c == quote {
			p.pos++
			return sb.String(), nil
		}
		sb.WriteByte(c)
		p.pos++
	}
	return "", p.errorf("unterminated string")
}

func (p *parser) parseInt() (int, error) {
	p.skipSpace()
	n, ok := p.tryInt()
	if !ok {
		return 0, p.errorf("expected an integer")
	}
	return n, nil
}

func (p *parser) tryInt() (int, bool) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, false
	}
	n, err := strconv.Atoi(p.input[start:p.pos])
	if err != nil {
		p.pos = start
		return 0, false
	}
	return n, true
}

func (p *parser) identifier() (string, error) {
	p.skipSpace()
	if !isIdentStart(p.peekChar()) {
		return "", p.errorf("expected an identifier")
	}
	start := p.pos
	for p.pos < len(p.input) && isIdentChar(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos], nil
}

// keyword consumes the next word when it matches kw case-insensitively.
func (p *parser) keyword(kw string) bool {
	save := p.pos
	p.skipSpace()
	word := p.peekWord()
	if !strings.EqualFold(word, kw) {
		p.pos = save
		return false
	}
	p.pos += len(word)
	return true
}

// punct consumes the next rune when it equals c.
func (p *parser) punct(c byte) bool {
	p.skipSpace()
	if p.peekChar() != c {
		return false
	}
	p.pos++
	return true
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peekChar() != c {
		return p.errorf("expected %q", string(c))
	}
	p.pos++
	return nil
}

func (p *parser) peekWord() string {
	start := p.pos
	end := start
	for end < len(p.input) && isIdentChar(p.input[end]) {
		end++
	}
	return p.input[start:end]
}

func (p *parser) peekChar() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) eof() bool { return p.pos >= len(p.input) }

func (p *parser) rest() string {
	r := p.input[p.pos:]
	if len(r) > 24 {
		r = r[:24] + "..."
	}
	return r
}

func (p *parser) errorf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %s at position %d", graph.ErrValidation, msg, p.pos)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ',', '}', ')', ']':
		return true
	}
	return false
}
