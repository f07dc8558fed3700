package hotlist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/infogenie/backend/internal/app/domain/hotlist"
	"github.com/infogenie/backend/internal/app/metrics"
	"github.com/infogenie/backend/internal/config"
	"github.com/infogenie/backend/pkg/logger"
)

// ErrUnknownFeed is returned for feed keys outside the configured set.
var ErrUnknownFeed = fmt.Errorf("unknown feed")

// FeedData is the service-level view of a feed returned to handlers.
type FeedData struct {
	Key       string            `json:"key"`
	Items     []json.RawMessage `json:"items"`
	FromCache bool              `json:"from_cache"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Service serves hot-list feeds from cache, falling back to mirror fetches.
type Service struct {
	feeds   map[string]hotlist.Feed
	cache   *Cache
	fetcher Fetcher
	log     *logger.Logger
	now     func() time.Time
}

// New builds the service from the configured feed set. A nil fetcher gets
// the default mirror fetcher.
func New(feeds []config.Feed, cache *Cache, fetcher Fetcher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("hotlist")
	}
	if cache == nil {
		cache = NewCache()
	}
	if fetcher == nil {
		fetcher = NewMirrorFetcher(log)
	}

	byKey := make(map[string]hotlist.Feed, len(feeds))
	for _, f := range feeds {
		byKey[f.Key] = hotlist.Feed{
			Key:     f.Key,
			Mirrors: f.Mirrors,
			TTL:     f.TTL,
			Limit:   f.Limit,
		}
	}
	return &Service{
		feeds:   byKey,
		cache:   cache,
		fetcher: fetcher,
		log:     log,
		now:     time.Now,
	}
}

// Keys lists the configured feed keys.
func (s *Service) Keys() []string {
	keys := make([]string, 0, len(s.feeds))
	for k := range s.feeds {
		keys = append(keys, k)
	}
	return keys
}

// GetOrFetch returns the feed's items, serving a fresh cached snapshot when
// one exists and refreshing from mirrors otherwise. A failed refresh leaves
// the cache untouched.
func (s *Service) GetOrFetch(ctx context.Context, key string) (FeedData, error) {
	feed, ok := s.feeds[key]
	if !ok {
		return FeedData{}, fmt.Errorf("%w: %s", ErrUnknownFeed, key)
	}

	if snap, hit := s.cache.Get(key); hit {
		metrics.RecordCacheLookup(key, "hit")
		return FeedData{
			Key:       key,
			Items:     snap.Items,
			FromCache: true,
			UpdatedAt: snap.FetchedAt,
		}, nil
	}
	metrics.RecordCacheLookup(key, "miss")

	items, err := s.fetcher.Fetch(ctx, key, feed.Mirrors, feed.Limit)
	if err != nil {
		return FeedData{}, err
	}

	snap := hotlist.Snapshot{
		Key:       key,
		Items:     items,
		FetchedAt: s.now(),
	}
	s.cache.Put(snap, feed.TTL)

	return FeedData{
		Key:       key,
		Items:     snap.Items,
		FromCache: false,
		UpdatedAt: snap.FetchedAt,
	}, nil
}
