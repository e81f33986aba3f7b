package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/refinery/internal/modules/market"
	"github.com/aristath/refinery/internal/modules/reference"
	"github.com/aristath/refinery/internal/modules/scanner"
	"github.com/aristath/refinery/internal/modules/sourcing"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "refinery",
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// resolveRegion turns a request's region value into a region id. Accepts a
// numeric id or a configured region name; empty means the home region.
func (s *Server) resolveRegion(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	if id, err := strconv.Atoi(value); err == nil {
		return id, nil
	}
	return s.cfg.RegionByName(value)
}

type itemResponse struct {
	TypeID      int     `json:"typeId"`
	Name        string  `json:"name"`
	Volume      float64 `json:"volume"`
	PortionSize float64 `json:"portionSize"`
}

func itemToResponse(item reference.Item) itemResponse {
	return itemResponse{
		TypeID:      item.TypeID,
		Name:        item.Name,
		Volume:      item.Volume,
		PortionSize: item.PortionSize,
	}
}

// handleItemLookup handles GET /api/items?name=
func (s *Server) handleItemLookup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "name query parameter is required", http.StatusBadRequest)
		return
	}

	typeID, ok := s.index.ItemID(name)
	if !ok {
		http.Error(w, "unknown item", http.StatusNotFound)
		return
	}
	item, _ := s.index.Item(typeID)
	s.writeJSON(w, http.StatusOK, itemToResponse(item))
}

// handleItem handles GET /api/items/{typeID}
func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	typeID, err := strconv.Atoi(chi.URLParam(r, "typeID"))
	if err != nil {
		http.Error(w, "invalid type id", http.StatusBadRequest)
		return
	}

	item, ok := s.index.Item(typeID)
	if !ok {
		http.Error(w, "unknown item", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, itemToResponse(item))
}

type yieldResponse struct {
	MaterialID int     `json:"materialId"`
	Name       string  `json:"name"`
	Fraction   float64 `json:"fraction"`
}

// handleItemYields handles GET /api/items/{typeID}/yields
func (s *Server) handleItemYields(w http.ResponseWriter, r *http.Request) {
	typeID, err := strconv.Atoi(chi.URLParam(r, "typeID"))
	if err != nil {
		http.Error(w, "invalid type id", http.StatusBadRequest)
		return
	}

	edges := s.graph.YieldsOf(typeID)
	yields := make([]yieldResponse, 0, len(edges))
	for _, edge := range edges {
		name, _ := s.index.ItemName(edge.MaterialID)
		yields = append(yields, yieldResponse{
			MaterialID: edge.MaterialID,
			Name:       name,
			Fraction:   edge.Fraction,
		})
	}
	s.writeJSON(w, http.StatusOK, yields)
}

// handleQuote handles GET /api/quotes/{typeID}?region=
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	typeID, err := strconv.Atoi(chi.URLParam(r, "typeID"))
	if err != nil {
		http.Error(w, "invalid type id", http.StatusBadRequest)
		return
	}
	regionID, err := s.resolveRegion(r.URL.Query().Get("region"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	quote := s.market.Quote(typeID, regionID)
	if quote == nil {
		http.Error(w, "no market data", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, quote)
}

type scanRequest struct {
	// Items is free-form item list text, one name per line. Parenthesized
	// fragments and blank lines are ignored.
	Items string `json:"items"`
	// ResourceIDs are material ids given directly, merged with the ids
	// resolved from Items.
	ResourceIDs []int    `json:"resourceIds"`
	Region      string   `json:"region"`
	Efficiency *float64 `json:"efficiency"`
	CostPerM3  *float64 `json:"costPerM3"`
	Valuation  string   `json:"valuation"`
	Mode       string   `json:"mode"`
}

type scanResponse struct {
	*scanner.Report
	Lines       []string               `json:"lines"`
	Diagnostics []reference.Diagnostic `json:"diagnostics,omitempty"`
}

// scanParams translates a request into scanner params, applying configured
// defaults for efficiency and transport cost.
func (s *Server) scanParams(req scanRequest) (scanner.Params, []reference.Diagnostic, error) {
	var p scanner.Params

	regionID, err := s.resolveRegion(req.Region)
	if err != nil {
		return p, nil, err
	}
	valuation, err := market.ParseValuation(req.Valuation)
	if err != nil {
		return p, nil, err
	}
	mode, err := scanner.ParseMode(req.Mode)
	if err != nil {
		return p, nil, err
	}

	resources, diagnostics := reference.ParseItemList(req.Items, s.index)
	for _, id := range req.ResourceIDs {
		if _, ok := s.index.Item(id); !ok {
			diagnostics = append(diagnostics, reference.Diagnostic{
				Line:   strconv.Itoa(id),
				Reason: "unknown type id",
			})
			continue
		}
		resources = append(resources, id)
	}

	p = scanner.Params{
		Resources:  resources,
		RegionID:   regionID,
		Efficiency: s.cfg.ReprocessingEfficiency,
		CostPerM3:  s.cfg.TransportCostPerM3,
		Valuation:  valuation,
		Mode:       mode,
	}
	if req.Efficiency != nil {
		p.Efficiency = *req.Efficiency
	}
	if req.CostPerM3 != nil {
		p.CostPerM3 = *req.CostPerM3
	}
	return p, diagnostics, nil
}

// handleScan handles POST /api/scan
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	params, diagnostics, err := s.scanParams(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report := s.scanner.Scan(params)
	s.writeJSON(w, http.StatusOK, scanResponse{
		Report:      report,
		Lines:       report.Lines(),
		Diagnostics: diagnostics,
	})
}

type demandLine struct {
	TypeID   int     `json:"typeId"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

type optimizeRequest struct {
	Demand     []demandLine `json:"demand"`
	Region     string       `json:"region"`
	Efficiency *float64     `json:"efficiency"`
	CostPerM3  *float64     `json:"costPerM3"`
}

// handleOptimize handles POST /api/optimize
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	regionID, err := s.resolveRegion(req.Region)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	demand := make(sourcing.Demand, len(req.Demand))
	for _, line := range req.Demand {
		typeID := line.TypeID
		if typeID == 0 {
			typeID, err = s.index.MustItemID(line.Name)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		demand[typeID] += line.Quantity
	}

	params := sourcing.Params{
		Demand:     demand,
		RegionID:   regionID,
		Efficiency: s.cfg.ReprocessingEfficiency,
		CostPerM3:  s.cfg.TransportCostPerM3,
	}
	if req.Efficiency != nil {
		params.Efficiency = *req.Efficiency
	}
	if req.CostPerM3 != nil {
		params.CostPerM3 = *req.CostPerM3
	}

	plan, err := s.sourcing.Optimize(params)
	if err != nil {
		switch {
		case errors.Is(err, sourcing.ErrInfeasible), errors.Is(err, sourcing.ErrUnbounded):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			s.log.Error().Err(err).Msg("Optimization failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, plan)
}

// handleCacheStats handles GET /api/cache/stats
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cacheDB.GetStats()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read cache database stats")
		http.Error(w, "failed to read cache stats", http.StatusInternalServerError)
		return
	}
	persisted, err := s.quoteRepo.Count()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to count persisted quotes")
		http.Error(w, "failed to read cache stats", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"quotes_in_memory": s.tycoon.CacheSize(),
		"quotes_persisted": persisted,
		"database":         stats,
	})
}

// handleCacheSave handles POST /api/cache/save
func (s *Server) handleCacheSave(w http.ResponseWriter, r *http.Request) {
	if err := s.tycoon.Save(); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist quote cache")
		http.Error(w, "failed to persist cache", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"saved": s.tycoon.CacheSize(),
	})
}

// handleCacheClear handles POST /api/cache/clear
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.tycoon.Clear(); err != nil {
		s.log.Error().Err(err).Msg("Failed to clear quote cache")
		http.Error(w, "failed to clear cache", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}
