package hotlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/infogenie/backend/internal/app/metrics"
	"github.com/infogenie/backend/pkg/logger"
)

// ErrAllMirrorsFailed is returned when every mirror of a feed fails.
var ErrAllMirrorsFailed = errors.New("all mirrors failed")

const (
	mirrorTimeout  = 10 * time.Second
	maxMirrorBody  = 4 << 20
	fetchUserAgent = "infogenie-backend/1.0"
)

// Fetcher retrieves a feed's items from upstream.
type Fetcher interface {
	Fetch(ctx context.Context, feedKey string, mirrors []string, limit int) ([]json.RawMessage, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, feedKey string, mirrors []string, limit int) ([]json.RawMessage, error)

func (f FetcherFunc) Fetch(ctx context.Context, feedKey string, mirrors []string, limit int) ([]json.RawMessage, error) {
	return f(ctx, feedKey, mirrors, limit)
}

// MirrorFetcher tries each mirror in order and returns the first usable
// response. Mirror order expresses preference; there is no racing.
type MirrorFetcher struct {
	client *http.Client
	log    *logger.Logger
}

func NewMirrorFetcher(log *logger.Logger) *MirrorFetcher {
	if log == nil {
		log = logger.NewDefault("hotlist-fetcher")
	}
	return &MirrorFetcher{
		client: &http.Client{Timeout: mirrorTimeout},
		log:    log,
	}
}

func (f *MirrorFetcher) Fetch(ctx context.Context, feedKey string, mirrors []string, limit int) ([]json.RawMessage, error) {
	var lastErr error
	for _, mirror := range mirrors {
		items, err := f.fetchOne(ctx, mirror, limit)
		if err != nil {
			metrics.RecordMirrorFetch(feedKey, "error")
			f.log.With("feed", feedKey).With("mirror", mirror).WithError(err).
				Warn("mirror fetch failed")
			lastErr = err
			continue
		}
		metrics.RecordMirrorFetch(feedKey, "ok")
		return items, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no mirrors configured")
	}
	return nil, fmt.Errorf("%w: %v", ErrAllMirrorsFailed, lastErr)
}

func (f *MirrorFetcher) fetchOne(ctx context.Context, url string, limit int) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMirrorBody))
	if err != nil {
		return nil, err
	}
	return normalizeItems(body, limit)
}

// normalizeItems accepts either a bare JSON array or an envelope with the
// array under "data", and caps the result at limit items.
func normalizeItems(body []byte, limit int) ([]json.RawMessage, error) {
	parsed := gjson.ParseBytes(body)

	list := parsed
	if parsed.IsObject() {
		list = parsed.Get("data")
	}
	if !list.IsArray() {
		return nil, errors.New("response has no item array")
	}

	raw := list.Array()
	if limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}

	items := make([]json.RawMessage, 0, len(raw))
	for _, r := range raw {
		items = append(items, json.RawMessage(r.Raw))
	}
	return items, nil
}
