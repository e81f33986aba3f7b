package tycoon

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/refinery/internal/clientdata"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

const quoteBody = `{
	"buyVolume": 5000, "sellVolume": 8000,
	"buyOrders": 12, "sellOrders": 30,
	"buyOutliers": 1, "sellOutliers": 2,
	"buyThreshold": 4.1, "sellThreshold": 6.2,
	"buyAvgFivePercent": 5.5, "sellAvgFivePercent": 6.0,
	"maxBuy": 5.8, "minSell": 5.9
}`

func newCacheRepo(t *testing.T) *clientdata.Repository {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(clientdata.Schema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return clientdata.NewRepository(db)
}

func TestMarketStatsFetchAndCacheHit(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/v1/market/stats/10000002/34", r.URL.Path)
		_, _ = w.Write([]byte(quoteBody))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, zerolog.Nop())

	q := client.MarketStats(34, 10000002)
	require.NotNil(t, q)
	assert.EqualValues(t, 12, q.BuyOrders)
	assert.InDelta(t, 5.5, q.BuyAvgFivePercent, 1e-12)
	assert.Equal(t, 1, requests)

	// Second request before expiry: no network call, identical quote
	q2 := client.MarketStats(34, 10000002)
	require.NotNil(t, q2)
	assert.Equal(t, q, q2)
	assert.Equal(t, 1, requests)
}

func TestMarketStatsFailureCachesNegativeEntryAndRetries(t *testing.T) {
	requests := 0
	fail := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if fail {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(quoteBody))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, zerolog.Nop())

	// Failure yields a nil quote, not an abort
	q := client.MarketStats(34, 10000002)
	assert.Nil(t, q)
	assert.Equal(t, 1, requests)
	assert.Equal(t, 1, client.CacheSize())

	// The negative entry has no expiry, so the next access retries
	fail = false
	q = client.MarketStats(34, 10000002)
	require.NotNil(t, q)
	assert.Equal(t, 2, requests)
}

func TestMarketStatsExpiresHeaderGetsGrace(t *testing.T) {
	remoteExpiry := time.Now().Add(2 * time.Hour).UTC()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Expires", remoteExpiry.Format(http.TimeFormat))
		_, _ = w.Write([]byte(quoteBody))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, zerolog.Nop())
	require.NotNil(t, client.MarketStats(34, 10000002))

	key := client.statsKey(34, 10000002)
	client.mu.Lock()
	slot := client.cache[key]
	client.mu.Unlock()

	require.NotNil(t, slot.ExpiresAt)
	want := remoteExpiry.Add(clientdata.ExpiryGrace)
	assert.WithinDuration(t, want, *slot.ExpiresAt, 2*time.Second)
}

func TestExpiryWithoutHeaderDefaultsToOneDay(t *testing.T) {
	got := expiryFromHeader("")
	assert.WithinDuration(t, time.Now().Add(clientdata.TTLMarketQuote), got, 2*time.Second)

	// Garbage header falls back to the default too
	got = expiryFromHeader("not a date")
	assert.WithinDuration(t, time.Now().Add(clientdata.TTLMarketQuote), got, 2*time.Second)
}

func TestSaveAndWarmUpRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(quoteBody))
	}))
	defer srv.Close()

	repo := newCacheRepo(t)

	client := NewClient(srv.URL, repo, zerolog.Nop())
	require.NotNil(t, client.MarketStats(34, 10000002))
	require.NoError(t, client.Save())

	// A second client against the same store serves the quote without I/O
	srv.Close()
	reloaded := NewClient(srv.URL, repo, zerolog.Nop())
	assert.Equal(t, 1, reloaded.CacheSize())

	q := reloaded.MarketStats(34, 10000002)
	require.NotNil(t, q)
	assert.EqualValues(t, 5000, q.BuyVolume)
	assert.InDelta(t, 5.9, q.MinSell, 1e-12)
}

func TestWarmUpDropsCorruptEntries(t *testing.T) {
	repo := newCacheRepo(t)

	expires := time.Now().Add(time.Hour)
	require.NoError(t, repo.StoreAll([]clientdata.Entry{{
		Key:       "corrupt",
		Data:      []byte("definitely not msgpack"),
		ExpiresAt: &expires,
	}}))

	client := NewClient("http://unused", repo, zerolog.Nop())
	assert.Zero(t, client.CacheSize())

	// The undecodable blob is purged from the store as well
	n, err := repo.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestMarketStatsRecoveredFromStoreWithoutFetch(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write([]byte(quoteBody))
	}))
	defer srv.Close()

	repo := newCacheRepo(t)
	client := NewClient(srv.URL, repo, zerolog.Nop())

	// Another process flushed this quote after our warm-up ran
	blob, err := msgpack.Marshal(&Quote{BuyAvgFivePercent: 7.25, BuyVolume: 42})
	require.NoError(t, err)
	expires := time.Now().Add(time.Hour)
	require.NoError(t, repo.StoreAll([]clientdata.Entry{{
		Key:       client.statsKey(34, 10000002),
		Data:      blob,
		ExpiresAt: &expires,
	}}))

	q := client.MarketStats(34, 10000002)
	require.NotNil(t, q)
	assert.InDelta(t, 7.25, q.BuyAvgFivePercent, 1e-12)
	assert.EqualValues(t, 42, q.BuyVolume)
	assert.Zero(t, requests)

	// The recovered quote now lives in memory
	assert.Equal(t, 1, client.CacheSize())
}

func TestClearDropsMemoryAndStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(quoteBody))
	}))
	defer srv.Close()

	repo := newCacheRepo(t)
	client := NewClient(srv.URL, repo, zerolog.Nop())

	require.NotNil(t, client.MarketStats(34, 10000002))
	require.NoError(t, client.Save())
	require.NoError(t, client.Clear())

	assert.Zero(t, client.CacheSize())
	n, err := repo.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestMarketStatsDistinctRegions(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = fmt.Fprint(w, quoteBody)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, zerolog.Nop())

	require.NotNil(t, client.MarketStats(34, 10000002))
	require.NotNil(t, client.MarketStats(34, 10000043))
	assert.Equal(t, 2, requests)
	assert.Equal(t, 2, client.CacheSize())
}
