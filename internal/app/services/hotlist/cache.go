package hotlist

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/infogenie/backend/internal/app/domain/hotlist"
	"github.com/infogenie/backend/pkg/logger"
)

type cacheEntry struct {
	snapshot hotlist.Snapshot
	ttl      time.Duration
}

// Cache holds per-feed snapshots in memory. Entries past their TTL are
// treated as absent on read and reclaimed by Sweep.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached snapshot for key if it is still fresh.
func (c *Cache) Get(key string) (hotlist.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return hotlist.Snapshot{}, false
	}
	if c.now().Sub(entry.snapshot.FetchedAt) >= entry.ttl {
		return hotlist.Snapshot{}, false
	}
	return entry.snapshot, true
}

// Put stores a snapshot with its freshness window.
func (c *Cache) Put(snapshot hotlist.Snapshot, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[snapshot.Key] = cacheEntry{snapshot: snapshot, ttl: ttl}
}

// Sweep drops entries stale for longer than keepFactor TTLs and returns how
// many were removed. Recently expired entries are kept so a subsequent fetch
// failure still leaves the key cheap to repopulate.
func (c *Cache) Sweep(keepFactor int) int {
	if keepFactor < 1 {
		keepFactor = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.snapshot.FetchedAt) >= entry.ttl*time.Duration(keepFactor) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries, fresh or expired.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweeper runs Cache.Sweep on a cron schedule as a managed service.
type Sweeper struct {
	cache      *Cache
	schedule   string
	keepFactor int
	log        *logger.Logger
	cron       *cron.Cron
}

func NewSweeper(cache *Cache, schedule string, keepFactor int, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("hotlist-sweeper")
	}
	return &Sweeper{
		cache:      cache,
		schedule:   schedule,
		keepFactor: keepFactor,
		log:        log,
	}
}

func (s *Sweeper) Name() string { return "hotlist-sweeper" }

func (s *Sweeper) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		if removed := s.cache.Sweep(s.keepFactor); removed > 0 {
			s.log.With("removed", removed).Info("swept stale hotlist entries")
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	s.cron = c
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
