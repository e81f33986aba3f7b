// Package sourcing computes cost-minimal plans for acquiring a demanded set
// of materials, mixing direct purchases with buy-and-reprocess conversions,
// via a linear program.
package sourcing

import (
	"sort"

	"github.com/aristath/refinery/internal/modules/reference"
)

// Demand maps material ids to required quantities. Zero entries are ignored;
// negative entries are rejected by the service.
type Demand map[int]float64

// rowKind distinguishes the two inequality directions in the model.
type rowKind int

const (
	rowGE rowKind = iota // Σ coeff·x ≥ rhs (demand coverage)
	rowLE                // Σ coeff·x ≤ rhs (conversion limit)
)

// row is one sparse constraint row over the model's variables.
type row struct {
	coeffs map[int]float64
	rhs    float64
	kind   rowKind
}

// convKey identifies a conversion variable: source item converted toward a
// demanded material.
type convKey struct {
	source   int
	material int
}

// model is the assembled linear program prior to standard-form conversion.
// Variables are non-negative throughout: a buy quantity per considered item
// and a convert quantity per (source, demanded material) edge.
type model struct {
	buyIdx   map[int]int     // item id -> variable index
	convIdx  map[convKey]int // conversion edge -> variable index
	numVars  int
	costs    []float64 // objective coefficients, len numVars
	rows     []row
	demanded []int // demanded material ids with positive quantity, sorted
}

// buildModel assembles the LP. prices holds the unit price of every
// priceable item; items absent from it are excluded from the model entirely,
// so an unpriceable demanded material with no priced converter leaves its
// demand row without variables and the solver reports infeasibility instead
// of pricing it at zero.
func buildModel(
	demand Demand,
	graph *reference.Graph,
	index *reference.Index,
	prices map[int]float64,
	efficiency float64,
	costPerM3 float64,
) *model {
	m := &model{
		buyIdx:  make(map[int]int),
		convIdx: make(map[convKey]int),
	}

	for id, qty := range demand {
		if qty > 0 {
			m.demanded = append(m.demanded, id)
		}
	}
	sort.Ints(m.demanded)
	if len(m.demanded) == 0 {
		return m
	}

	demandedSet := make(map[int]bool, len(m.demanded))
	for _, id := range m.demanded {
		demandedSet[id] = true
	}

	// Buy variables for priced demanded materials
	for _, id := range m.demanded {
		if _, ok := prices[id]; ok {
			m.addBuyVar(id, prices[id], index, costPerM3)
		}
	}

	// Buy and convert variables for priced items with at least one yield
	// edge toward a demanded material. Sorted for deterministic variable
	// order. Self-edges are skipped: a conversion does not consume the
	// direct contribution of its own buy variable, so a self-edge would
	// double count.
	sources := graph.Sources()
	sort.Ints(sources)
	for _, sourceID := range sources {
		if _, ok := prices[sourceID]; !ok {
			continue
		}
		for _, edge := range graph.YieldsOf(sourceID) {
			if !demandedSet[edge.MaterialID] || edge.MaterialID == sourceID {
				continue
			}
			m.addBuyVar(sourceID, prices[sourceID], index, costPerM3)
			m.convIdx[convKey{sourceID, edge.MaterialID}] = m.numVars
			m.costs = append(m.costs, 0)
			m.numVars++
		}
	}

	// Demand coverage: own buy plus converted yields must reach the
	// required quantity
	for _, materialID := range m.demanded {
		r := row{coeffs: make(map[int]float64), rhs: demand[materialID], kind: rowGE}
		if idx, ok := m.buyIdx[materialID]; ok {
			r.coeffs[idx] = 1
		}
		for key, idx := range m.convIdx {
			if key.material != materialID {
				continue
			}
			for _, edge := range graph.YieldsOf(key.source) {
				if edge.MaterialID == materialID {
					r.coeffs[idx] = edge.Fraction * efficiency
				}
			}
		}
		m.rows = append(m.rows, r)
	}

	// Conversion limit: cannot convert more of an item than was bought
	for _, sourceID := range sortedConvSources(m.convIdx) {
		r := row{coeffs: make(map[int]float64), rhs: 0, kind: rowLE}
		for key, idx := range m.convIdx {
			if key.source == sourceID {
				r.coeffs[idx] = 1
			}
		}
		r.coeffs[m.buyIdx[sourceID]] = -1
		m.rows = append(m.rows, r)
	}

	return m
}

// addBuyVar registers a buy variable for an item if not present. The
// objective charges the unit price plus the transport cost of hauling the
// item's volume.
func (m *model) addBuyVar(typeID int, price float64, index *reference.Index, costPerM3 float64) {
	if _, ok := m.buyIdx[typeID]; ok {
		return
	}
	m.buyIdx[typeID] = m.numVars
	m.costs = append(m.costs, price+costPerM3*index.Volume(typeID))
	m.numVars++
}

// uncoverableMaterials returns demanded materials whose demand row has no
// variables. Such a row can never be covered; the solver would agree, but the
// check lets the caller name the missing material.
func (m *model) uncoverableMaterials() []int {
	var missing []int
	for i, materialID := range m.demanded {
		if len(m.rows[i].coeffs) == 0 {
			missing = append(missing, materialID)
		}
	}
	return missing
}

func sortedConvSources(convIdx map[convKey]int) []int {
	seen := make(map[int]bool)
	var sources []int
	for key := range convIdx {
		if !seen[key.source] {
			seen[key.source] = true
			sources = append(sources, key.source)
		}
	}
	sort.Ints(sources)
	return sources
}
