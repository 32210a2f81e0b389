package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/internal/query"
)

// DefaultResultCacheSize is the number of search pages kept when no size is
// configured.
const DefaultResultCacheSize = 1000

// ResultCache keeps recent search pages keyed by the engine request they
// were answered from. The Indexer purges it whenever it rewrites the index.
// A nil *ResultCache caches nothing.
type ResultCache struct {
	pages *lru.Cache[string, *domain.ProductVariantsConnection]

	// generation counts purges. A page is only stored under the generation
	// its search started in, so a search that overlaps a purge is dropped.
	mu         sync.Mutex
	generation uint64
}

type cacheKey struct {
	hash       string
	generation uint64
}

// NewResultCache returns a cache holding up to size pages.
func NewResultCache(size int) *ResultCache {
	if size <= 0 {
		size = DefaultResultCacheSize
	}
	pages, _ := lru.New[string, *domain.ProductVariantsConnection](size)
	return &ResultCache{pages: pages}
}

// key must be taken before the engine is queried.
func (c *ResultCache) key(index string, req *query.Request) (cacheKey, bool) {
	if c == nil {
		return cacheKey{}, false
	}
	body, err := json.Marshal(req)
	if err != nil {
		return cacheKey{}, false
	}
	sum := sha256.Sum256(append([]byte(index+"\x00"), body...))

	c.mu.Lock()
	defer c.mu.Unlock()
	return cacheKey{hash: hex.EncodeToString(sum[:]), generation: c.generation}, true
}

func (c *ResultCache) get(key cacheKey) (*domain.ProductVariantsConnection, bool) {
	if c == nil {
		return nil, false
	}
	return c.pages.Get(key.hash)
}

// add stores conn unless the cache was purged since key was taken.
func (c *ResultCache) add(key cacheKey, conn *domain.ProductVariantsConnection) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if key.generation != c.generation {
		return false
	}
	c.pages.Add(key.hash, conn)
	return true
}

// Purge drops every cached page and every page still being computed.
func (c *ResultCache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.pages.Purge()
}

// Len reports the number of cached pages.
func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	return c.pages.Len()
}
