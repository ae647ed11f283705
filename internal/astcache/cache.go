package astcache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key identifies a cached parse result.
type Key struct {
	Project  string
	Path     string // project-relative
	Language string
}

func (k Key) String() string {
	return k.Project + "\x00" + k.Language + "\x00" + k.Path
}

// Stats is a snapshot of cache counters. Hit, miss, and eviction counts are
// monotonic over the process lifetime.
type Stats struct {
	EntryCount      int    `json:"entryCount"`
	AggregateWeight int64  `json:"aggregateWeight"`
	HitCount        uint64 `json:"hitCount"`
	MissCount       uint64 `json:"missCount"`
	EvictionCount   uint64 `json:"evictionCount"`
}

// entryOverhead approximates the native tree's memory beyond the source
// buffer when computing an entry's weight.
const entryOverhead = 4 * 1024

type entry struct {
	key        Key
	res        *ParseResult
	weight     int64
	lastAccess time.Time
	elem       *list.Element
}

// TreeCache is a bounded store of parse results keyed by (project, path,
// language). Entries are evicted in least-recently-used order once the
// aggregate weight exceeds the budget, and lazily once their TTL since last
// access elapses. The lock guards only map and list manipulation; parsing
// happens outside it, with concurrent misses on the same key collapsed into
// a single parse.
type TreeCache struct {
	executor *Executor
	logger   *slog.Logger
	group    singleflight.Group

	mu        sync.Mutex
	enabled   bool
	entries   map[Key]*entry
	lru       *list.List // front = most recently used
	weight    int64
	maxWeight int64
	ttl       time.Duration
	hits      uint64
	misses    uint64
	evictions uint64
}

// NewTreeCache creates a TreeCache with the given weight budget in bytes and
// per-entry TTL. A zero ttl disables expiry.
func NewTreeCache(executor *Executor, maxWeight int64, ttl time.Duration, logger *slog.Logger) *TreeCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeCache{
		executor:  executor,
		logger:    logger,
		enabled:   true,
		entries:   make(map[Key]*entry),
		lru:       list.New(),
		maxWeight: maxWeight,
		ttl:       ttl,
	}
}

// SetEnabled toggles caching. While disabled every lookup parses from
// scratch and nothing is stored.
func (c *TreeCache) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	if !enabled {
		c.clearLocked()
	}
}

// SetLimits replaces the weight budget and TTL, evicting immediately if the
// new budget is already exceeded.
func (c *TreeCache) SetLimits(maxWeight int64, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxWeight = maxWeight
	c.ttl = ttl
	c.evictOverBudgetLocked()
}

// GetOrParse returns the cached ParseResult for key when its identity still
// matches the supplied source, and parses (incrementally when edits are
// supplied and a previous tree exists) otherwise. The returned result is
// retained for the caller, who must call Release.
func (c *TreeCache) GetOrParse(ctx context.Context, key Key, source []byte, edits []Edit) (*ParseResult, error) {
	id := IdentityOf(source)

	if !c.cachingEnabled() {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return c.executor.Parse(ctx, source, key.Language)
	}

	if res := c.lookup(key, id, true); res != nil {
		return res, nil
	}

	// Collapse concurrent misses on the same key into one parse. The
	// flight stores the result in the cache; each caller then retains its
	// own reference via a fresh lookup. The loop covers the narrow window
	// where the stored entry is evicted before the lookup lands.
	for attempt := 0; attempt < 3; attempt++ {
		_, err, _ := c.group.Do(key.String(), func() (any, error) {
			return nil, c.parseAndStore(ctx, key, source, id, edits)
		})
		if err != nil {
			return nil, err
		}
		if res := c.lookup(key, id, false); res != nil {
			return res, nil
		}
	}

	// Eviction kept racing the lookups; parse for this caller alone.
	return c.executor.Parse(ctx, source, key.Language)
}

func (c *TreeCache) cachingEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// lookup returns a retained result on identity match, nil otherwise.
// Expired entries are removed lazily here.
func (c *TreeCache) lookup(key Key, id SourceIdentity, recordStats bool) *ParseResult {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.ttl > 0 && now.Sub(e.lastAccess) > c.ttl {
		c.removeLocked(e)
		c.evictions++
		ok = false
	}
	if !ok || e.res.Identity != id {
		if recordStats {
			c.misses++
		}
		return nil
	}

	e.lastAccess = now
	c.lru.MoveToFront(e.elem)
	if recordStats {
		c.hits++
	}
	e.res.Retain()
	return e.res
}

// parseAndStore runs inside the single flight for a key. On parser failure
// the previous entry, if any, is left untouched.
func (c *TreeCache) parseAndStore(ctx context.Context, key Key, source []byte, id SourceIdentity, edits []Edit) error {
	var prev *ParseResult
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.res.Identity == id {
			// A concurrent flight already stored a fresh result.
			c.mu.Unlock()
			return nil
		}
		prev = e.res
		prev.Retain()
	}
	c.mu.Unlock()

	var res *ParseResult
	var err error
	if prev != nil && len(edits) > 0 {
		res, err = c.executor.Reparse(ctx, prev, edits, source)
	} else {
		res, err = c.executor.Parse(ctx, source, key.Language)
	}
	if prev != nil {
		prev.Release()
	}
	if err != nil {
		return err
	}

	c.store(key, res)
	return nil
}

// store inserts or replaces the entry for key. The cache takes over the
// result's initial reference.
func (c *TreeCache) store(key Key, res *ParseResult) {
	weight := int64(len(res.Source)) + entryOverhead
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		res.Release()
		return
	}

	if e, ok := c.entries[key]; ok {
		old := e.res
		c.weight += weight - e.weight
		e.res = res
		e.weight = weight
		e.lastAccess = now
		c.lru.MoveToFront(e.elem)
		old.Release()
	} else {
		e := &entry{key: key, res: res, weight: weight, lastAccess: now}
		e.elem = c.lru.PushFront(e)
		c.entries[key] = e
		c.weight += weight
	}

	c.evictOverBudgetLocked()
}

func (c *TreeCache) evictOverBudgetLocked() {
	for c.maxWeight > 0 && c.weight > c.maxWeight {
		back := c.lru.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		c.logger.Debug("evicting cache entry over weight budget",
			"project", e.key.Project, "path", e.key.Path, "weight", e.weight)
		c.removeLocked(e)
		c.evictions++
	}
}

func (c *TreeCache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.lru.Remove(e.elem)
	c.weight -= e.weight
	e.res.Release()
}

// Sweep proactively removes entries whose TTL has elapsed.
func (c *TreeCache) Sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl <= 0 {
		return
	}
	for _, e := range c.entries {
		if now.Sub(e.lastAccess) > c.ttl {
			c.removeLocked(e)
			c.evictions++
		}
	}
}

// Invalidate removes the entry for key. The removal is immediately visible
// to subsequent lookups.
func (c *TreeCache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
}

// InvalidatePath removes the entries for a project-relative path across all
// languages.
func (c *TreeCache) InvalidatePath(project, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if key.Project == project && key.Path == path {
			c.removeLocked(e)
		}
	}
}

// InvalidateProject removes every entry under a project.
func (c *TreeCache) InvalidateProject(project string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if key.Project == project {
			c.removeLocked(e)
		}
	}
}

// Clear removes everything.
func (c *TreeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *TreeCache) clearLocked() {
	for _, e := range c.entries {
		c.removeLocked(e)
	}
}

// StatsSnapshot returns current cache counters.
func (c *TreeCache) StatsSnapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		EntryCount:      len(c.entries),
		AggregateWeight: c.weight,
		HitCount:        c.hits,
		MissCount:       c.misses,
		EvictionCount:   c.evictions,
	}
}
