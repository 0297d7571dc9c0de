package downloader

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	body      []byte
	fetchedAt time.Time
}

// MemoryDownloader caches downloaded files in memory, keyed by URL.
// An entry is served until its TTL runs out, after which the next Get
// refetches. Schedule archives change rarely, so callers can set long
// TTLs without much risk of staleness.
type MemoryDownloader struct {
	TimeNow func() time.Time

	mutex sync.Mutex
	cache map[string]cacheEntry
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		TimeNow: time.Now,
		cache:   map[string]cacheEntry{},
	}
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if options.Cache {
		d.mutex.Lock()
		defer d.mutex.Unlock()

		if entry, ok := d.cache[url]; ok {
			if d.TimeNow().Sub(entry.fetchedAt) < options.CacheTTL {
				return entry.body, nil
			}
			delete(d.cache, url)
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		d.cache[url] = cacheEntry{
			body:      body,
			fetchedAt: d.TimeNow(),
		}
	}

	return body, nil
}
