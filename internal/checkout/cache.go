package checkout

import (
	"sync"
	"time"

	"github.com/cswank/store/internal/provider"
)

// DefaultCacheTTL is how long a fetched provider product is reused.
const DefaultCacheTTL = 5 * time.Minute

type cached struct {
	product *provider.Product
	expires time.Time
}

// Cache holds provider products between the cart page load that prewarms
// them and the checkout that needs them. It is safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]cached
}

// NewCache returns an empty cache. A non-positive ttl uses DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{ttl: ttl, now: time.Now, items: make(map[string]cached)}
}

// Get returns the product for id if it has not expired.
func (c *Cache) Get(id string) (*provider.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[id]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		delete(c.items, id)
		return nil, false
	}
	return entry.product, true
}

// Put stores p under id.
func (c *Cache) Put(id string, p *provider.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[id] = cached{product: p, expires: c.now().Add(c.ttl)}
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
