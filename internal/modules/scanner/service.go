package scanner

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/refinery/internal/modules/market"
	"github.com/aristath/refinery/internal/modules/reference"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Mode controls which reprocessing outputs count toward an item's value.
type Mode int

const (
	// ModeAuto restricts to the requested resources, or considers all
	// materials when the resource list is empty.
	ModeAuto Mode = iota
	// ModeRestricted only values outputs in the requested resource set.
	ModeRestricted
	// ModeAllMaterials values every reprocessing output.
	ModeAllMaterials
)

// ParseMode maps a mode name from a request to a Mode. The empty string
// means ModeAuto.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "", "auto":
		return ModeAuto, nil
	case "restricted":
		return ModeRestricted, nil
	case "all", "all_materials":
		return ModeAllMaterials, nil
	default:
		return ModeAuto, fmt.Errorf("unknown scan mode %q", name)
	}
}

// Params configures one scan.
type Params struct {
	// Resources are the material ids the caller cares about. Ignored in
	// ModeAllMaterials.
	Resources []int
	// RegionID selects the quote region; 0 means the home region.
	RegionID int
	// Efficiency is the reprocessing yield factor in [0, 1].
	Efficiency float64
	// CostPerM3 is the transport cost per cubic meter hauled.
	CostPerM3 float64
	// Valuation picks the pricing strategy for both inputs and outputs.
	Valuation market.Valuation
	// Mode resolves the restricted-vs-all-materials ambiguity explicitly.
	Mode Mode
	// Progress, when set, is called after each scanned item.
	Progress func(done, total int)
}

// Service scans every reprocessable item for buy-and-reprocess profit.
type Service struct {
	index  *reference.Index
	graph  *reference.Graph
	market *market.Service
	log    zerolog.Logger
}

// NewService creates a scanner service.
func NewService(index *reference.Index, graph *reference.Graph, mkt *market.Service, log zerolog.Logger) *Service {
	return &Service{
		index:  index,
		graph:  graph,
		market: mkt,
		log:    log.With().Str("component", "scanner").Logger(),
	}
}

// Scan walks every item with reprocessing yields and reports the ones whose
// haul-adjusted reprocessed value strictly exceeds their direct price.
func (s *Service) Scan(p Params) *Report {
	allMaterials := p.Mode == ModeAllMaterials ||
		(p.Mode == ModeAuto && len(p.Resources) == 0)

	wanted := make(map[int]bool, len(p.Resources))
	for _, id := range p.Resources {
		wanted[id] = true
	}

	// Sorted for deterministic progress and logs
	sources := s.graph.Sources()
	sort.Ints(sources)

	s.log.Info().
		Int("items", len(sources)).
		Int("resources", len(p.Resources)).
		Bool("all_materials", allMaterials).
		Str("valuation", p.Valuation.String()).
		Msg("Starting profit scan")

	var opportunities []Opportunity
	for done, itemID := range sources {
		if opp := s.evaluate(itemID, wanted, allMaterials, p); opp != nil {
			opportunities = append(opportunities, *opp)
		}
		if p.Progress != nil {
			p.Progress(done+1, len(sources))
		}
	}

	sort.Slice(opportunities, func(i, j int) bool {
		if opportunities[i].Profit != opportunities[j].Profit {
			return opportunities[i].Profit < opportunities[j].Profit
		}
		return opportunities[i].Name < opportunities[j].Name
	})

	s.log.Info().Int("profitable", len(opportunities)).Msg("Profit scan complete")

	return &Report{
		ID:            uuid.New().String(),
		GeneratedAt:   time.Now(),
		Opportunities: opportunities,
	}
}

// evaluate prices one candidate item, returning nil when it is unpriceable
// or not profitable.
func (s *Service) evaluate(itemID int, wanted map[int]bool, allMaterials bool, p Params) *Opportunity {
	edges := s.graph.YieldsOf(itemID)

	var reprocessedValue, reprocessedVolume float64
	for _, edge := range edges {
		if !allMaterials && !wanted[edge.MaterialID] {
			continue
		}
		price := s.market.Price(edge.MaterialID, p.RegionID, p.Valuation)
		reprocessedValue += price * edge.Fraction * p.Efficiency
		reprocessedVolume += s.index.Volume(edge.MaterialID) * edge.Fraction
	}

	// Nothing priceable came out of the batch
	if reprocessedValue == 0 {
		return nil
	}

	directPrice := s.market.Price(itemID, p.RegionID, p.Valuation)
	if directPrice == 0 {
		return nil
	}

	// Net the two haul legs: skipping the raw item saves its haul, hauling
	// the outputs costs theirs.
	adjusted := reprocessedValue -
		p.CostPerM3*s.index.Volume(itemID) +
		p.CostPerM3*reprocessedVolume

	// Strict inequality: break-even is not an opportunity
	if adjusted <= directPrice {
		return nil
	}

	name, _ := s.index.ItemName(itemID)
	return &Opportunity{
		TypeID: itemID,
		Name:   name,
		Profit: adjusted - directPrice,
	}
}
