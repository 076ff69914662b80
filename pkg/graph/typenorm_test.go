package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNodeType(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"memory", "Memory"},
		{"MEMORY", "Memory"},
		{"Memory", "Memory"},
		{"code_module", "CodeModule"},
		{"code-module", "CodeModule"},
		{"doc", "Document"},
		{"miscellaneous", "Misc"},
		{"HTTPServer", "HttpServer"},
		{"my custom type", "MyCustomType"},
		{"snake_case_thing", "SnakeCaseThing"},
		{"  person  ", "Person"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeNodeType(tt.input), "input %q", tt.input)
	}
}

func TestNormalizeEdgeType(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"relates_to", "RELATES_TO"},
		{"relates-to", "RELATES_TO"},
		{"relatesto", "RELATES_TO"},
		{"RELATES_TO", "RELATES_TO"},
		{"knows", "KNOWS"},
		{"KnowsWell", "KNOWS_WELL"},
		{"interacts", "INTERACTS_WITH"},
		{"refers_to", "REFERENCES"},
		{"custom edge", "CUSTOM_EDGE"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeEdgeType(tt.input), "input %q", tt.input)
	}
}

// Normalization must be a fixed point after one application, for known
// variants and for strings hitting the conversion fallback.
func TestNormalizationIdempotent(t *testing.T) {
	inputs := []string{
		"memory", "Memory", "MEMORY", "code_module", "CodeModule",
		"HTTPServer", "weird-Mixed_case THING", "x", "X9y", "",
		"relates_to", "RELATES_TO", "KnowsWell", "interacts",
	}
	for _, in := range inputs {
		once := NormalizeNodeType(in)
		assert.Equal(t, once, NormalizeNodeType(once), "node type %q", in)

		once = NormalizeEdgeType(in)
		assert.Equal(t, once, NormalizeEdgeType(once), "edge type %q", in)
	}
}

func TestTypePrefix(t *testing.T) {
	assert.Equal(t, "memory", TypePrefix("MEMORY"))
	assert.Equal(t, "codemodule", TypePrefix("code_module"))
	assert.Equal(t, "person", TypePrefix("Person"))
}

func TestWellFormedID(t *testing.T) {
	assert.True(t, WellFormedID("memory:core:identity", "Memory"))
	assert.True(t, WellFormedID("person:ann", "person"))
	assert.False(t, WellFormedID("concept:go", "Memory"))
	assert.False(t, WellFormedID("noseparator", "Memory"))
	assert.False(t, WellFormedID("memory:", "Memory"))
	assert.False(t, WellFormedID(":oops", "Memory"))
}
