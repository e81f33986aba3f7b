package sourcing

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/refinery/internal/modules/market"
	"github.com/aristath/refinery/internal/modules/reference"
)

// valueTolerance drops solver noise: variable values at or below it are
// treated as zero when assembling the plan.
const valueTolerance = 1e-9

// Params describes one optimization request.
type Params struct {
	// Demand maps material ids to required quantities.
	Demand Demand
	// RegionID is the market region to price items in. Zero means the
	// configured home region.
	RegionID int
	// Efficiency is the reprocessing yield fraction applied to conversions.
	Efficiency float64
	// CostPerM3 is the transport cost charged per cubic meter bought.
	CostPerM3 float64
}

// Purchase is one line of a sourcing plan: how much of an item to buy and how
// much of that to feed through reprocessing.
type Purchase struct {
	TypeID  int     `json:"typeId"`
	Name    string  `json:"name"`
	Buy     float64 `json:"buy"`
	Convert float64 `json:"convert"`
}

// Plan is the optimizer's answer: the cheapest mix of direct purchases and
// reprocessing inputs that covers the demand.
type Plan struct {
	Purchases []Purchase `json:"purchases"`
	TotalCost float64    `json:"totalCost"`
}

// Service builds and solves sourcing models against live market prices.
type Service struct {
	index  *reference.Index
	graph  *reference.Graph
	market *market.Service
	log    zerolog.Logger
}

func NewService(index *reference.Index, graph *reference.Graph, mkt *market.Service, log zerolog.Logger) *Service {
	return &Service{
		index:  index,
		graph:  graph,
		market: mkt,
		log:    log.With().Str("component", "sourcing").Logger(),
	}
}

// Optimize computes the cost-minimal sourcing plan for the demanded
// materials. Prices use the plain 5%-band buy average without liquidity
// gating; items without a positive band price are excluded from the model,
// so a demand only they could cover surfaces as ErrInfeasible.
func (s *Service) Optimize(p Params) (*Plan, error) {
	for id, qty := range p.Demand {
		if qty < 0 {
			return nil, fmt.Errorf("negative demand for %s: %v", s.itemName(id), qty)
		}
	}
	if p.Efficiency <= 0 || p.Efficiency > 1 {
		return nil, fmt.Errorf("efficiency must be in (0, 1], got %v", p.Efficiency)
	}

	prices := s.prefetchPrices(p)

	m := buildModel(p.Demand, s.graph, s.index, prices, p.Efficiency, p.CostPerM3)
	if len(m.demanded) == 0 {
		return &Plan{}, nil
	}
	if missing := m.uncoverableMaterials(); len(missing) != 0 {
		names := make([]string, len(missing))
		for i, id := range missing {
			names[i] = s.itemName(id)
		}
		return nil, fmt.Errorf("no priced source for %v: %w", names, ErrInfeasible)
	}

	s.log.Debug().
		Int("variables", m.numVars).
		Int("constraints", len(m.rows)).
		Msg("solving sourcing model")

	values, cost, err := solve(m)
	if err != nil {
		return nil, err
	}
	return s.assemblePlan(m, values, cost), nil
}

// prefetchPrices walks every item the model could reference and resolves its
// quote once up front, so model assembly reads from the warmed cache instead
// of interleaving network fetches with matrix construction.
func (s *Service) prefetchPrices(p Params) map[int]float64 {
	demanded := make(map[int]bool)
	referenced := make(map[int]bool)
	for id, qty := range p.Demand {
		if qty > 0 {
			demanded[id] = true
			referenced[id] = true
		}
	}
	for _, sourceID := range s.graph.Sources() {
		for _, edge := range s.graph.YieldsOf(sourceID) {
			if demanded[edge.MaterialID] && edge.MaterialID != sourceID {
				referenced[sourceID] = true
				break
			}
		}
	}

	prices := make(map[int]float64, len(referenced))
	for id := range referenced {
		q := s.market.Quote(id, p.RegionID)
		if q == nil || q.BuyAvgFivePercent <= 0 {
			continue
		}
		prices[id] = q.BuyAvgFivePercent
	}
	return prices
}

// itemName resolves a type id for messages and plan lines, falling back to
// the numeric id for unknown types.
func (s *Service) itemName(typeID int) string {
	if name, ok := s.index.ItemName(typeID); ok {
		return name
	}
	return fmt.Sprintf("type %d", typeID)
}

func (s *Service) assemblePlan(m *model, values []float64, cost float64) *Plan {
	converted := make(map[int]float64)
	for key, idx := range m.convIdx {
		if values[idx] > valueTolerance {
			converted[key.source] += values[idx]
		}
	}

	plan := &Plan{TotalCost: cost}
	for typeID, idx := range m.buyIdx {
		buy := values[idx]
		conv := converted[typeID]
		if buy <= valueTolerance && conv <= valueTolerance {
			continue
		}
		plan.Purchases = append(plan.Purchases, Purchase{
			TypeID:  typeID,
			Name:    s.itemName(typeID),
			Buy:     buy,
			Convert: conv,
		})
	}
	sort.Slice(plan.Purchases, func(i, j int) bool {
		return plan.Purchases[i].TypeID < plan.Purchases[j].TypeID
	})
	return plan
}
