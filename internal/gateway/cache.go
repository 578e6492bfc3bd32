package gateway

import (
	"crypto/sha1"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// cacheEntry is one stored GET response.
type cacheEntry struct {
	body        []byte
	contentType string
	etag        string
	expiresAt   time.Time
}

// MemoryCache is a bounded TTL map of responses.
type MemoryCache struct {
	entries map[string]*cacheEntry
	mutex   sync.RWMutex

	MaxEntries int

	now  func() time.Time
	done chan struct{}
	once sync.Once
}

// NewMemoryCache starts the expiry loop.
func NewMemoryCache(maxEntries int) *MemoryCache {
	c := &MemoryCache{
		entries:    make(map[string]*cacheEntry),
		MaxEntries: maxEntries,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	go c.cleanup(time.Minute)
	return c
}

// Close stops the expiry loop.
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *MemoryCache) get(key string) *cacheEntry {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return nil
	}
	return e
}

func (c *MemoryCache) set(key string, e *cacheEntry) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.entries) >= c.MaxEntries {
		c.evictExpired()
		if len(c.entries) >= c.MaxEntries {
			c.evictOldest()
		}
	}
	c.entries[key] = e
}

// Purge drops every entry whose key path starts with prefix.
func (c *MemoryCache) Purge(prefix string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key := range c.entries {
		if _, path, _ := strings.Cut(key, " "); strings.HasPrefix(path, prefix) {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryCache) evictExpired() {
	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryCache) evictOldest() {
	var oldest string
	var at time.Time
	for key, e := range c.entries {
		if oldest == "" || e.expiresAt.Before(at) {
			oldest, at = key, e.expiresAt
		}
	}
	if oldest != "" {
		delete(c.entries, oldest)
	}
}

func (c *MemoryCache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.evictExpired()
			c.mutex.Unlock()
		case <-c.done:
			return
		}
	}
}

// cacheRule matches a path exactly, or by prefix when it ends in '/'.
type cacheRule struct {
	path string
	ttl  time.Duration
}

func (r cacheRule) matches(path string) bool {
	if strings.HasSuffix(r.path, "/") {
		return strings.HasPrefix(path, r.path)
	}
	return path == r.path
}

// CacheMiddleware serves repeated GETs from a MemoryCache. Keys include the
// caller so per-user fields never leak between users.
type CacheMiddleware struct {
	cache *MemoryCache
	rules []cacheRule
}

// NewCacheMiddleware caches the round catalogue and leaderboards briefly and
// the bank list for longer.
func NewCacheMiddleware(cache *MemoryCache) *CacheMiddleware {
	return &CacheMiddleware{
		cache: cache,
		rules: []cacheRule{
			{path: "/api/games", ttl: 10 * time.Second},
			{path: "/api/games/history", ttl: time.Minute},
			{path: "/api/leaderboard/", ttl: time.Minute},
			{path: "/api/wallet/banks", ttl: time.Hour},
		},
	}
}

func (cm *CacheMiddleware) ttlFor(path string) (time.Duration, bool) {
	for _, rule := range cm.rules {
		if rule.matches(path) {
			return rule.ttl, true
		}
	}
	return 0, false
}

// Middleware must run after authentication.
func (cm *CacheMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		ttl, ok := cm.ttlFor(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := UserIDFrom(r.Context()) + " " + r.URL.RequestURI()
		if e := cm.cache.get(key); e != nil {
			if r.Header.Get("If-None-Match") == e.etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("Content-Type", e.contentType)
			w.Header().Set("ETag", e.etag)
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			w.Write(e.body)
			return
		}

		rec := &cacheRecorder{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Cache", "MISS")
		next.ServeHTTP(rec, r)

		if rec.status == http.StatusOK && len(rec.body) > 0 {
			cm.cache.set(key, &cacheEntry{
				body:        rec.body,
				contentType: w.Header().Get("Content-Type"),
				etag:        fmt.Sprintf(`"%x"`, sha1.Sum(rec.body)),
				expiresAt:   cm.cache.now().Add(ttl),
			})
		}
	})
}

// cacheRecorder tees the response body.
type cacheRecorder struct {
	http.ResponseWriter
	status int
	body   []byte
}

func (rec *cacheRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *cacheRecorder) Write(data []byte) (int, error) {
	rec.body = append(rec.body, data...)
	return rec.ResponseWriter.Write(data)
}
