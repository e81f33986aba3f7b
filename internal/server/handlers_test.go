package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/refinery/internal/clientdata"
	"github.com/aristath/refinery/internal/clients/tycoon"
	"github.com/aristath/refinery/internal/config"
	"github.com/aristath/refinery/internal/database"
	"github.com/aristath/refinery/internal/modules/market"
	"github.com/aristath/refinery/internal/modules/reference"
	"github.com/aristath/refinery/internal/modules/scanner"
	"github.com/aristath/refinery/internal/modules/sourcing"
)

const quoteBody = `{
	"buyVolume": 5000, "sellVolume": 8000,
	"buyOrders": 12, "sellOrders": 30,
	"buyAvgFivePercent": %g, "sellAvgFivePercent": 6.0,
	"maxBuy": 5.8, "minSell": 5.9
}`

// newTestServer wires a full server over a fake upstream market API that
// serves quotes at the given prices, keyed by type id. Items without an
// entry get an upstream failure and stay unpriceable.
func newTestServer(t *testing.T, prices map[int]float64) *Server {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// path: /v1/market/stats/{region}/{type}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		typeID := 0
		fmt.Sscanf(parts[len(parts)-1], "%d", &typeID)
		price, ok := prices[typeID]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, quoteBody, price)
	}))
	t.Cleanup(upstream.Close)

	dir := t.TempDir()
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(dir, "quotes.db"),
		Profile: database.ProfileCache,
		Name:    "quotes",
	})
	require.NoError(t, err)
	t.Cleanup(func() { cacheDB.Close() })
	require.NoError(t, cacheDB.Migrate(clientdata.Schema))

	repo := clientdata.NewRepository(cacheDB.Conn())
	client := tycoon.NewClient(upstream.URL, repo, zerolog.Nop())

	idx := reference.NewIndex([]reference.Item{
		{TypeID: 34, Name: "Tritanium", Volume: 0.01, PortionSize: 1},
		{TypeID: 35, Name: "Pyerite", Volume: 0.01, PortionSize: 1},
		{TypeID: 1230, Name: "Veldspar", Volume: 0.1, PortionSize: 100},
	}, zerolog.Nop())
	graph := reference.NewGraph(map[int][]reference.RawYield{
		1230: {{MaterialID: 34, Quantity: 415}},
	}, idx)

	cfg := &config.Config{
		DataDir:                dir,
		Port:                   0,
		HomeRegion:             config.TheForge,
		ReprocessingEfficiency: 0.5,
		TransportCostPerM3:     450,
	}

	mkt := market.NewService(client, cfg.HomeRegion, zerolog.Nop())
	return New(Config{
		Log:       zerolog.Nop(),
		Config:    cfg,
		CacheDB:   cacheDB,
		QuoteRepo: repo,
		Index:     idx,
		Graph:     graph,
		Market:    mkt,
		Scanner:   scanner.NewService(idx, graph, mkt, zerolog.Nop()),
		Sourcing:  sourcing.NewService(idx, graph, mkt, zerolog.Nop()),
		Tycoon:    client,
	})
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleItemLookupByName(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/items?name=Veldspar", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var item itemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, 1230, item.TypeID)
	assert.InDelta(t, 100, item.PortionSize, 1e-12)
}

func TestHandleItemLookupUnknown(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/items?name=Nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/items", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleItemYields(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/items/1230/yields", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var yields []yieldResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &yields))
	require.Len(t, yields, 1)
	assert.Equal(t, 34, yields[0].MaterialID)
	assert.Equal(t, "Tritanium", yields[0].Name)
	assert.InDelta(t, 4.15, yields[0].Fraction, 1e-12)
}

func TestHandleQuote(t *testing.T) {
	srv := newTestServer(t, map[int]float64{34: 5.5})

	rec := doRequest(t, srv, http.MethodGet, "/api/quotes/34", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var quote tycoon.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	assert.InDelta(t, 5.5, quote.BuyAvgFivePercent, 1e-12)
}

func TestHandleQuoteUnpriceable(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/quotes/34", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleQuoteBadRegion(t *testing.T) {
	srv := newTestServer(t, map[int]float64{34: 5.5})

	rec := doRequest(t, srv, http.MethodGet, "/api/quotes/34?region=Atlantis", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleScan(t *testing.T) {
	// Veldspar at 1 reprocesses into 4.15 * 0.5 * 20 = 41.5 per unit
	srv := newTestServer(t, map[int]float64{34: 20, 1230: 1})

	rec := doRequest(t, srv, http.MethodPost, "/api/scan", map[string]interface{}{
		"items":     "Tritanium\nUnknownium\n",
		"costPerM3": 0,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Opportunities, 1)
	assert.Equal(t, "Veldspar", resp.Opportunities[0].Name)
	assert.NotEmpty(t, resp.Lines)
	require.Len(t, resp.Diagnostics, 1)
	assert.Equal(t, "Unknownium", resp.Diagnostics[0].Line)
}

func TestHandleScanByResourceIDs(t *testing.T) {
	srv := newTestServer(t, map[int]float64{34: 20, 1230: 1})

	rec := doRequest(t, srv, http.MethodPost, "/api/scan", map[string]interface{}{
		"resourceIds": []int{34, 99999},
		"costPerM3":   0,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Opportunities, 1)
	assert.Equal(t, "Veldspar", resp.Opportunities[0].Name)
	require.Len(t, resp.Diagnostics, 1)
	assert.Equal(t, "99999", resp.Diagnostics[0].Line)
}

func TestHandleScanBadValuation(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/scan", map[string]interface{}{
		"valuation": "psychic",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleOptimize(t *testing.T) {
	srv := newTestServer(t, map[int]float64{34: 20, 1230: 1})

	rec := doRequest(t, srv, http.MethodPost, "/api/optimize", map[string]interface{}{
		"demand":     []map[string]interface{}{{"name": "Tritanium", "quantity": 100}},
		"efficiency": 1,
		"costPerM3":  0,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var plan sourcing.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	require.Len(t, plan.Purchases, 1)
	assert.Equal(t, 1230, plan.Purchases[0].TypeID)
}

func TestHandleOptimizeInfeasible(t *testing.T) {
	// nothing has a price, so no demand can be covered
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/optimize", map[string]interface{}{
		"demand": []map[string]interface{}{{"name": "Pyerite", "quantity": 10}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleOptimizeUnknownItem(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/optimize", map[string]interface{}{
		"demand": []map[string]interface{}{{"name": "Nope", "quantity": 10}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCacheLifecycle(t *testing.T) {
	srv := newTestServer(t, map[int]float64{34: 5.5})

	// prime the cache
	rec := doRequest(t, srv, http.MethodGet, "/api/quotes/34", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/cache/save", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats["quotes_in_memory"])
	assert.EqualValues(t, 1, stats["quotes_persisted"])

	rec = doRequest(t, srv, http.MethodPost, "/api/cache/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 0, stats["quotes_in_memory"])
	assert.EqualValues(t, 0, stats["quotes_persisted"])
}

func TestHandleSystemStatus(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status["status"])
	assert.Contains(t, status, "cpu_percent")
	assert.Contains(t, status, "ram_percent")
}
