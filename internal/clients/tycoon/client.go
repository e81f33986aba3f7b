// Package tycoon provides the EVE Tycoon market-stats client with a
// persistent TTL quote cache.
package tycoon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aristath/refinery/internal/clientdata"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Quote is the market statistics for one (region, item) pair as returned by
// the /v1/market/stats endpoint. Immutable once fetched.
type Quote struct {
	BuyVolume          int64   `json:"buyVolume" msgpack:"bv"`
	SellVolume         int64   `json:"sellVolume" msgpack:"sv"`
	BuyOrders          int64   `json:"buyOrders" msgpack:"bo"`
	SellOrders         int64   `json:"sellOrders" msgpack:"so"`
	BuyOutliers        int64   `json:"buyOutliers" msgpack:"bout"`
	SellOutliers       int64   `json:"sellOutliers" msgpack:"sout"`
	BuyThreshold       float64 `json:"buyThreshold" msgpack:"bt"`
	SellThreshold      float64 `json:"sellThreshold" msgpack:"st"`
	BuyAvgFivePercent  float64 `json:"buyAvgFivePercent" msgpack:"b5"`
	SellAvgFivePercent float64 `json:"sellAvgFivePercent" msgpack:"s5"`
	MaxBuy             float64 `json:"maxBuy" msgpack:"mb"`
	MinSell            float64 `json:"minSell" msgpack:"ms"`
}

// cachedQuote is one in-memory cache slot. A nil Quote together with a nil
// ExpiresAt records a failed fetch; it is always stale and gets retried on the
// next access.
type cachedQuote struct {
	Quote     *Quote
	ExpiresAt *time.Time
}

func (c cachedQuote) fresh(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.After(now)
}

// Client for the EVE Tycoon market-stats API.
//
// Quotes live in an in-memory map for the process lifetime, warmed from the
// persistent store at startup and flushed back on Save (shutdown, scheduled,
// or on demand), not write-through. The map is guarded by a mutex so
// concurrent HTTP handlers are safe; the check-fetch-store sequence is not a
// critical section per key, so two racing callers may both fetch. Quotes are
// idempotent reads, duplicate work is harmless.
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository

	mu    sync.Mutex
	cache map[string]cachedQuote
}

// NewClient creates a new EVE Tycoon client.
// cacheRepo is optional - if nil, quotes are cached in memory only.
// A failed or corrupt warm-up load is not fatal; the cache starts empty.
func NewClient(baseURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	c := &Client{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		log:       log.With().Str("client", "evetycoon").Logger(),
		cacheRepo: cacheRepo,
		cache:     make(map[string]cachedQuote),
	}
	c.warmUp()
	return c
}

// warmUp loads persisted entries into the in-memory cache.
func (c *Client) warmUp() {
	if c.cacheRepo == nil {
		return
	}

	entries, err := c.cacheRepo.LoadAll()
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to load quote cache, starting empty")
		return
	}

	loaded := 0
	for _, e := range entries {
		slot := cachedQuote{ExpiresAt: e.ExpiresAt}
		if len(e.Data) > 0 {
			var q Quote
			if err := msgpack.Unmarshal(e.Data, &q); err != nil {
				// Corrupt blob: remove it so it cannot resurface, the
				// quote will be refetched on demand
				c.log.Warn().Err(err).Str("key", e.Key).Msg("Dropping corrupt cache entry")
				if delErr := c.cacheRepo.Delete(e.Key); delErr != nil {
					c.log.Warn().Err(delErr).Str("key", e.Key).Msg("Failed to remove corrupt cache entry")
				}
				continue
			}
			slot.Quote = &q
		}
		c.cache[e.Key] = slot
		loaded++
	}

	c.log.Info().Int("entries", loaded).Msg("Quote cache warmed up")
}

// statsKey builds the cache key for a (region, item) pair. The full request
// URL doubles as the key so distinct quote sources never collide.
func (c *Client) statsKey(typeID, regionID int) string {
	return fmt.Sprintf("%s/v1/market/stats/%d/%d", c.baseURL, regionID, typeID)
}

// MarketStats returns the market statistics for an item in a region.
//
// A fresh cached quote is returned without I/O. Otherwise the quote is
// fetched; on success it is cached until the response's Expires header plus a
// grace day (or a day from now without the header). On any fetch failure a
// negative entry is cached (always stale, so the next access retries) and
// nil is returned. A nil quote means "unpriceable", never an error: callers
// must exclude the item rather than abort.
func (c *Client) MarketStats(typeID, regionID int) *Quote {
	key := c.statsKey(typeID, regionID)

	c.mu.Lock()
	slot, known := c.cache[key]
	c.mu.Unlock()
	if known && slot.fresh(time.Now()) {
		c.log.Debug().Str("key", key).Msg("Quote cache hit")
		return slot.Quote
	}

	// A key the in-memory map has never seen may still sit fresh in the
	// durable store, for example when the startup warm-up failed.
	if !known {
		if quote, expiresAt, ok := c.lookupPersisted(key); ok {
			c.mu.Lock()
			c.cache[key] = cachedQuote{Quote: quote, ExpiresAt: expiresAt}
			c.mu.Unlock()
			return quote
		}
	}

	quote, expiresAt := c.fetch(key)

	c.mu.Lock()
	c.cache[key] = cachedQuote{Quote: quote, ExpiresAt: expiresAt}
	c.mu.Unlock()

	return quote
}

// lookupPersisted consults the durable store for a fresh entry. Stale rows,
// negative entries and undecodable blobs all report false and fall through to
// a fetch.
func (c *Client) lookupPersisted(key string) (*Quote, *time.Time, bool) {
	if c.cacheRepo == nil {
		return nil, nil, false
	}

	e, err := c.cacheRepo.GetIfFresh(key)
	if err != nil || e == nil || len(e.Data) == 0 {
		return nil, nil, false
	}

	var q Quote
	if err := msgpack.Unmarshal(e.Data, &q); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Skipping corrupt cache entry")
		return nil, nil, false
	}

	c.log.Debug().Str("key", key).Msg("Quote recovered from durable store")
	return &q, e.ExpiresAt, true
}

// fetch performs the HTTP request. Returns (nil, nil) on any failure.
func (c *Client) fetch(url string) (*Quote, *time.Time) {
	c.log.Debug().Str("url", url).Msg("Fetching quote")

	resp, err := c.client.Get(url)
	if err != nil {
		c.log.Warn().Err(err).Str("url", url).Msg("Quote fetch failed")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("Quote fetch returned non-OK status")
		return nil, nil
	}

	var quote Quote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		c.log.Warn().Err(err).Str("url", url).Msg("Failed to parse quote response")
		return nil, nil
	}

	expiresAt := expiryFromHeader(resp.Header.Get("Expires"))
	return &quote, &expiresAt
}

// expiryFromHeader computes the cache expiry for a successful response: the
// remote refresh hint plus a grace day when present, one day from now
// otherwise.
func expiryFromHeader(expires string) time.Time {
	if expires != "" {
		if t, err := http.ParseTime(expires); err == nil {
			return t.Add(clientdata.ExpiryGrace)
		}
	}
	return time.Now().Add(clientdata.TTLMarketQuote)
}

// Save flushes the in-memory cache to the persistent store in one
// transaction. Called at shutdown, by the maintenance schedule, and on
// demand via the API.
func (c *Client) Save() error {
	if c.cacheRepo == nil {
		return nil
	}

	c.mu.Lock()
	entries := make([]clientdata.Entry, 0, len(c.cache))
	for key, slot := range c.cache {
		entry := clientdata.Entry{Key: key, ExpiresAt: slot.ExpiresAt}
		if slot.Quote != nil {
			data, err := msgpack.Marshal(slot.Quote)
			if err != nil {
				c.mu.Unlock()
				return fmt.Errorf("failed to encode quote %s: %w", key, err)
			}
			entry.Data = data
		}
		entries = append(entries, entry)
	}
	c.mu.Unlock()

	if err := c.cacheRepo.StoreAll(entries); err != nil {
		return fmt.Errorf("failed to persist quote cache: %w", err)
	}

	c.log.Info().Int("entries", len(entries)).Msg("Quote cache saved")
	return nil
}

// Clear drops every cached quote, in memory and on disk.
func (c *Client) Clear() error {
	c.mu.Lock()
	c.cache = make(map[string]cachedQuote)
	c.mu.Unlock()

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Clear(); err != nil {
			return err
		}
	}

	c.log.Info().Msg("Quote cache cleared")
	return nil
}

// CacheSize returns the number of in-memory cache entries.
func (c *Client) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}
