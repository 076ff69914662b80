// Type normalization for MuninDB.
//
// Node types are stored in canonical PascalCase ("Memory", "CodeModule") and
// edge types in canonical UPPER_SNAKE_CASE ("RELATES_TO"). Normalization is
// a two-step process:
//
//  1. Look the input up in a table of known historical variants. Early
//     exports used inconsistent casing ("memory", "MEMORY", "relates-to"),
//     and the table maps those to their canonical form directly.
//  2. Fall back to a deterministic case conversion for unknown strings.
//
// The model is schema-flexible: unknown types pass through after conversion
// rather than being rejected. Both functions are idempotent -
// NormalizeNodeType(NormalizeNodeType(x)) == NormalizeNodeType(x).

package graph

import (
	"strings"
	"unicode"
)

// nodeTypeVariants maps historical node-type spellings to canonical form.
var nodeTypeVariants = map[string]string{
	"memory":        "Memory",
	"MEMORY":        "Memory",
	"concept":       "Concept",
	"CONCEPT":       "Concept",
	"task":          "Task",
	"TASK":          "Task",
	"person":        "Person",
	"session":       "Session",
	"document":      "Document",
	"doc":           "Document",
	"event":         "Event",
	"entity":        "Entity",
	"code_module":   "CodeModule",
	"code-module":   "CodeModule",
	"knowledge":     "Knowledge",
	"conversation":  "Conversation",
	"observation":   "Observation",
	"relationship":  "Relationship",
	"tool":          "Tool",
	"project":       "Project",
	"note":          "Note",
	"misc":          "Misc",
	"miscellaneous": "Misc",
}

// edgeTypeVariants maps historical edge-type spellings to canonical form.
var edgeTypeVariants = map[string]string{
	"relates_to":    "RELATES_TO",
	"relates-to":    "RELATES_TO",
	"relatesto":     "RELATES_TO",
	"references":    "REFERENCES",
	"refers_to":     "REFERENCES",
	"contains":      "CONTAINS",
	"part_of":       "PART_OF",
	"partof":        "PART_OF",
	"depends_on":    "DEPENDS_ON",
	"knows":         "KNOWS",
	"created_by":    "CREATED_BY",
	"derived_from":  "DERIVED_FROM",
	"similar_to":    "SIMILAR_TO",
	"instance_of":   "INSTANCE_OF",
	"follows":       "FOLLOWS",
	"precedes":      "PRECEDES",
	"mentions":      "MENTIONS",
	"supersedes":    "SUPERSEDES",
	"discusses":     "DISCUSSES",
	"assigned_to":   "ASSIGNED_TO",
	"generated_by":  "GENERATED_BY",
	"works_on":      "WORKS_ON",
	"belongs_to":    "BELONGS_TO",
	"connected_to":  "CONNECTED_TO",
	"interacts":     "INTERACTS_WITH",
	"interact_with": "INTERACTS_WITH",
}

// NormalizeNodeType maps a node type to its canonical PascalCase form.
//
// Known variants resolve through the table; anything else goes through a
// deterministic conversion that splits on underscores, hyphens, spaces and
// case boundaries, then capitalizes each word.
//
// Example:
//
//	NormalizeNodeType("memory")       // "Memory"
//	NormalizeNodeType("code_module")  // "CodeModule"
//	NormalizeNodeType("APIGateway")   // "ApiGateway"
//	NormalizeNodeType("Memory")       // "Memory" (idempotent)
func NormalizeNodeType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if canonical, ok := nodeTypeVariants[t]; ok {
		return canonical
	}
	if canonical, ok := nodeTypeVariants[strings.ToLower(t)]; ok {
		return canonical
	}
	return toPascalCase(t)
}

// NormalizeEdgeType maps an edge type to its canonical UPPER_SNAKE_CASE form.
//
// Example:
//
//	NormalizeEdgeType("relates-to")  // "RELATES_TO"
//	NormalizeEdgeType("KnowsWell")   // "KNOWS_WELL"
//	NormalizeEdgeType("RELATES_TO")  // "RELATES_TO" (idempotent)
func NormalizeEdgeType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if canonical, ok := edgeTypeVariants[strings.ToLower(t)]; ok {
		return canonical
	}
	return toUpperSnakeCase(t)
}

// TypePrefix returns the lowercase id prefix for a node type, used by the
// "<type-prefix>:<identifier>" id convention.
//
// Example:
//
//	TypePrefix("CodeModule")  // "codemodule"
func TypePrefix(nodeType string) string {
	return strings.ToLower(NormalizeNodeType(nodeType))
}

// splitTypeWords splits an identifier into words on underscores, hyphens,
// whitespace, and lower-to-upper case boundaries. Runs of uppercase letters
// collapse into a single word ("HTTPServer" -> ["http", "server"]).
func splitTypeWords(s string) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, strings.ToLower(current.String()))
			current.Reset()
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r):
			// Word boundary when previous rune is lowercase or a digit, or
			// when this starts a new word after an all-caps run (HTTPServer).
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					flush()
				}
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return words
}

// toPascalCase converts an arbitrary string to PascalCase.
func toPascalCase(s string) string {
	words := splitTypeWords(s)
	var b strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	return b.String()
}

// toUpperSnakeCase converts an arbitrary string to UPPER_SNAKE_CASE.
func toUpperSnakeCase(s string) string {
	words := splitTypeWords(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w)
	}
	return strings.Join(words, "_")
}

// WellFormedID reports whether a node id follows the
// "<lowercase-type-prefix>:<identifier>" convention for its node type.
func WellFormedID(id NodeID, nodeType string) bool {
	s := string(id)
	idx := strings.Index(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return false
	}
	return s[:idx] == TypePrefix(nodeType)
}
