package downloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/bluele/gcache"
)

const DefaultCacheSize = 64

// Caches downloaded files in memory, with a per request TTL. Least
// recently used entries are evicted once the cache is full.
type MemoryDownloader struct {
	cache gcache.Cache
}

func NewMemoryDownloader() *MemoryDownloader {
	return newMemoryDownloader(DefaultCacheSize, gcache.NewRealClock())
}

func newMemoryDownloader(size int, clock gcache.Clock) *MemoryDownloader {
	return &MemoryDownloader{
		cache: gcache.New(size).LRU().Clock(clock).Build(),
	}
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if options.Cache {
		value, err := d.cache.Get(url)
		if err == nil {
			return value.([]byte), nil
		}
		if !errors.Is(err, gcache.KeyNotFoundError) {
			return nil, fmt.Errorf("reading cache: %w", err)
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache && options.CacheTTL > 0 {
		err = d.cache.SetWithExpire(url, body, options.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("writing cache: %w", err)
		}
	}

	return body, nil
}

// Drops all cached files.
func (d *MemoryDownloader) Purge() {
	d.cache.Purge()
}

// Number of unexpired cached files. Expiry is checked through the
// cache's own clock.
func (d *MemoryDownloader) Len() int {
	n := 0
	for _, key := range d.cache.Keys(false) {
		if _, err := d.cache.GetIFPresent(key); err == nil {
			n++
		}
	}
	return n
}

var _ Downloader = (*MemoryDownloader)(nil)
