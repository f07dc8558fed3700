package hotlist

import (
	"encoding/json"
	"time"
)

// Feed is a configured aggregation feed: redundant mirrors serving the same
// logical dataset, tried in declared order.
type Feed struct {
	Key     string
	Mirrors []string
	TTL     time.Duration
	Limit   int
}

// Snapshot is one fetched-and-normalized payload for a feed.
type Snapshot struct {
	Key       string
	Items     []json.RawMessage
	FetchedAt time.Time
}
