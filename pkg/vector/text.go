// Text preparation for embedding generation.

package vector

import (
	"context"
	"strings"
	"unicode/utf8"
)

// DefaultByteLimit caps the text sent to an embedding provider. Most
// providers reject requests past a few tens of kilobytes; 8 KiB of prose is
// comfortably past the point of diminishing returns for a single vector.
const DefaultByteLimit = 8192

// TruncationMarker is appended whenever text is cut at the byte limit, so
// truncated and untruncated inputs of the same prefix embed differently and
// the stored text documents what happened.
const TruncationMarker = " [truncated]"

// TruncateUTF8 shortens text to at most limit bytes, cutting on a UTF-8
// rune boundary and appending TruncationMarker. Text at or under the limit
// is returned unchanged. The marker's bytes are budgeted inside the limit,
// so the result never exceeds it.
//
// Example:
//
//	vector.TruncateUTF8("héllo wörld", 9) // "héllo" + marker handling
func TruncateUTF8(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}

	cut := limit - len(TruncationMarker)
	if cut < 0 {
		cut = 0
	}
	// Back up to the start of a rune so a multi-byte character is never
	// split.
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + TruncationMarker
}

// NodeEmbedder adapts an Embedder to the store's Vectorizer contract:
//
//   - empty or whitespace-only text maps to "no embedding" without calling
//     the provider
//   - oversized text is truncated on a UTF-8 boundary before embedding
//   - provider errors pass through for the store to log and degrade
type NodeEmbedder struct {
	embedder  Embedder
	byteLimit int
}

// NewNodeEmbedder wraps an embedder for node text. byteLimit <= 0 uses
// DefaultByteLimit.
func NewNodeEmbedder(embedder Embedder, byteLimit int) *NodeEmbedder {
	if byteLimit <= 0 {
		byteLimit = DefaultByteLimit
	}
	return &NodeEmbedder{embedder: embedder, byteLimit: byteLimit}
}

// Vectorize implements graph.Vectorizer.
func (n *NodeEmbedder) Vectorize(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	vec, err := n.embedder.EmbedText(ctx, TruncateUTF8(text, n.byteLimit))
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, nil
	}
	return vec, nil
}
