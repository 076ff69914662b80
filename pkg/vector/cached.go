// Embedding generation with LRU caching.
//
// CachedEmbedder wraps any Embedder with an in-memory LRU cache so repeated
// texts are embedded once. The cache key is a blake2b-256 digest of the
// input text: collision-resistant, so distinct texts never share an entry,
// and stable across process restarts should entries ever be persisted.

package vector

import (
	"container/list"
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
)

// CachedEmbedder wraps an Embedder with LRU caching.
//
// Thread-safe: all methods can be called from multiple goroutines.
//
// Example:
//
//	base := vector.NewOllama(nil)
//	cached := vector.NewCachedEmbedder(base, 10000)
//
//	vec, _ := cached.EmbedText(ctx, "hello world")
//	vec2, _ := cached.EmbedText(ctx, "hello world") // cache hit
type CachedEmbedder struct {
	base Embedder

	mu      sync.Mutex
	cache   map[string]*list.Element
	lru     *list.List
	maxSize int

	hits   atomic.Uint64
	misses atomic.Uint64
}

type cacheEntry struct {
	key       string
	embedding []float32
}

// NewCachedEmbedder wraps an embedder with an LRU cache of maxSize entries.
// maxSize <= 0 defaults to 1024.
func NewCachedEmbedder(base Embedder, maxSize int) *CachedEmbedder {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &CachedEmbedder{
		base:    base,
		cache:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

// cacheKey hashes text to a fixed-size key.
func cacheKey(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EmbedText returns the cached embedding when available, otherwise embeds
// through the wrapped provider and caches the result.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)

	if vec, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)

	vec, err := c.base.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	c.insert(key, vec)
	return vec, nil
}

// EmbedBatch embeds texts, serving cached entries and batching only the
// misses through the wrapped provider.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		key := cacheKey(text)
		if vec, ok := c.lookup(key); ok {
			c.hits.Add(1)
			results[i] = vec
			continue
		}
		c.misses.Add(1)
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		embedded, err := c.base.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, err
		}
		for j, vec := range embedded {
			i := missingIdx[j]
			results[i] = vec
			c.insert(cacheKey(texts[i]), vec)
		}
	}
	return results, nil
}

// Dimensions returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.base.Dimensions()
}

// Stats returns cumulative cache hit and miss counts.
func (c *CachedEmbedder) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CachedEmbedder) lookup(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*cacheEntry).embedding, true
}

func (c *CachedEmbedder) insert(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).embedding = vec
		return
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, embedding: vec})
	c.cache[key] = elem

	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.lru.Remove(oldest)
		delete(c.cache, oldest.Value.(*cacheEntry).key)
	}
}
