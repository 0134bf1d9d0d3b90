// Package cache is the console's query cache. Entries are keyed by resource
// type and server-side filters, refetched when stale, shared between
// concurrent readers, and invalidated per resource type after writes.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"grimm.is/rampart/internal/clock"
	"grimm.is/rampart/internal/events"
	"grimm.is/rampart/internal/logging"
	"grimm.is/rampart/internal/metrics"
)

// Defaults.
const (
	DefaultStaleTime = 5 * time.Minute
	DefaultGCTime    = 10 * time.Minute
)

// Options configure a Cache.
type Options struct {
	StaleTime time.Duration
	GCTime    time.Duration
	Clock     clock.Clock
	Logger    *logging.Logger
	Metrics   *metrics.Registry
	Hub       *events.Hub
}

type entry struct {
	data      any
	dataGen   uint64 // generation the stored data was fetched in
	hasData   bool
	err       error
	fetchedAt time.Time
	stale     bool
	loading   int // fetches in flight
	gen       uint64
	observers int
	idleSince time.Time
}

// Status is what a view needs to render an entry.
type Status struct {
	Loading   bool
	Stale     bool
	HasData   bool
	Err       error
	FetchedAt time.Time
	Observers int
}

// Cache holds query results.
type Cache struct {
	staleTime time.Duration
	gcTime    time.Duration
	clock     clock.Clock
	logger    *logging.Logger
	metrics   *metrics.Registry
	hub       *events.Hub

	mu        sync.Mutex
	entries   map[Key]*entry
	mutations map[string]struct{}
	epoch     uint64 // bumped by Reset

	group singleflight.Group
}

// New creates a cache.
func New(opts Options) *Cache {
	c := &Cache{
		staleTime: opts.StaleTime,
		gcTime:    opts.GCTime,
		clock:     clock.OrReal(opts.Clock),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		hub:       opts.Hub,
		entries:   make(map[Key]*entry),
		mutations: make(map[string]struct{}),
	}
	if c.staleTime <= 0 {
		c.staleTime = DefaultStaleTime
	}
	if c.gcTime <= 0 {
		c.gcTime = DefaultGCTime
	}
	if c.logger == nil {
		c.logger = logging.WithComponent("cache")
	}
	return c
}

// entryLocked returns the entry for key, creating it. Must hold c.mu.
func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{idleSince: c.clock.Now()}
		c.entries[key] = e
		c.metrics.SetCacheEntries(len(c.entries))
	}
	return e
}

func (c *Cache) freshLocked(e *entry) bool {
	return e.hasData && !e.stale && c.clock.Since(e.fetchedAt) < c.staleTime
}

// Query returns the cached value for key when fresh, otherwise calls fetch.
// Concurrent callers for the same key share one fetch. The fetch runs
// detached from ctx: a caller whose ctx ends stops waiting, and the result
// is still stored for the next reader.
func Query[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	c.mu.Lock()
	e := c.entryLocked(key)
	if c.freshLocked(e) {
		v, ok := e.data.(T)
		c.mu.Unlock()
		if ok {
			c.metrics.RecordCache(metrics.CacheHit, key.Resource)
			return v, nil
		}
		c.mu.Lock()
	}
	gen, epoch := e.gen, c.epoch
	c.mu.Unlock()

	c.metrics.RecordCache(metrics.CacheMiss, key.Resource)

	// Epoch and generation are part of the flight key so a read issued after
	// a Reset or an invalidation never joins a fetch that started before it.
	flight := key.String() + "#" + strconv.FormatUint(epoch, 10) + "." + strconv.FormatUint(gen, 10)
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flight, func() (any, error) {
		c.begin(key, e)
		v, err := fetch(fetchCtx)
		c.finish(key, e, gen, v, err)
		return v, err
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.RecordCache(metrics.CacheShared, key.Resource)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache: %s holds %T", key, res.Val)
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Cache) begin(key Key, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.loading++
}

// finish stores a fetch result. Results for an entry that was collected or
// replaced meanwhile are dropped, as are results older than the stored data.
// Results for an entry invalidated meanwhile are stored but stay stale.
func (c *Cache) finish(key Key, e *entry, gen uint64, v any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.loading--
	if cur, ok := c.entries[key]; !ok || cur != e {
		c.logger.Debug("dropping result for collected entry", "key", key.String())
		return
	}

	if e.hasData && gen < e.dataGen {
		return
	}
	if err != nil {
		e.err = err
		return
	}
	e.data = v
	e.dataGen = gen
	e.hasData = true
	e.err = nil
	e.fetchedAt = c.clock.Now()
	e.stale = e.gen != gen
}

// Refresh is Query for a key that must be refetched now, as by a poller.
// Only key is marked stale; other entries of the resource are untouched.
func Refresh[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error)) (T, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.stale = true
	e.gen++
	c.mu.Unlock()
	return Query(ctx, c, key, fetch)
}

// Peek returns the last stored value for key without fetching.
func Peek[T any](c *Cache, key Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	e, ok := c.entries[key]
	if !ok || !e.hasData {
		return zero, false
	}
	v, ok := e.data.(T)
	return v, ok
}

// Invalidate marks every entry of resource stale and returns how many there
// were. Entries are kept so views can show old data while refetching.
func (c *Cache) Invalidate(resource string) int {
	c.mu.Lock()
	n := 0
	for k, e := range c.entries {
		if k.Resource != resource {
			continue
		}
		e.stale = true
		e.gen++
		n++
	}
	c.mu.Unlock()

	c.metrics.RecordCache(metrics.CacheInvalid, resource)
	c.hub.EmitCacheInvalidated(resource, n)
	c.logger.Debug("invalidated", "resource", resource, "entries", n)
	return n
}

// Reset drops every entry, as on logout.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[Key]*entry)
	c.epoch++
	c.mu.Unlock()
	c.metrics.SetCacheEntries(0)
}

// Observe registers interest in key. The entry is not collected while
// observed. Calling the returned release more than once has no effect.
func (c *Cache) Observe(key Key) (release func()) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.observers++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			e.observers--
			if e.observers == 0 {
				e.idleSince = c.clock.Now()
			}
		})
	}
}

// Observed reports whether anyone observes key.
func (c *Cache) Observed(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.observers > 0
}

// GC removes entries that are unobserved, idle and not loading for at least
// the GC time. It returns the number removed.
func (c *Cache) GC() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	n := 0
	for k, e := range c.entries {
		if e.observers > 0 || e.loading > 0 {
			continue
		}
		last := e.idleSince
		if e.fetchedAt.After(last) {
			last = e.fetchedAt
		}
		if now.Sub(last) >= c.gcTime {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		c.metrics.SetCacheEntries(len(c.entries))
		c.logger.Debug("collected entries", "count", n)
	}
	return n
}

// RunGC calls GC every interval until ctx ends.
func (c *Cache) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.GC()
		}
	}
}

// Status reports the state of key.
func (c *Cache) Status(key Key) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Status{}
	}
	return Status{
		Loading:   e.loading > 0,
		Stale:     e.hasData && !c.freshLocked(e),
		HasData:   e.hasData,
		Err:       e.err,
		FetchedAt: e.fetchedAt,
		Observers: e.observers,
	}
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// BeginMutation marks formKey as submitting. It returns false when a
// submission for formKey is already in flight.
func (c *Cache) BeginMutation(formKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.mutations[formKey]; busy {
		return false
	}
	c.mutations[formKey] = struct{}{}
	return true
}

// EndMutation clears the submitting mark for formKey.
func (c *Cache) EndMutation(formKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.mutations, formKey)
}

// Mutating reports whether formKey is submitting.
func (c *Cache) Mutating(formKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.mutations[formKey]
	return busy
}
