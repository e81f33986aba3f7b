package reference

// Graph is the reprocessing yield graph: item id to its normalized yield
// edges. Fractions are the dump's units-per-batch divided by the source
// item's portion size, nothing else: no volume weighting, no implicit
// normalization. Built once; read-only afterwards.
type Graph struct {
	edges map[int][]YieldEdge
}

// NewGraph normalizes a raw yield table against the index's portion sizes.
// Edges whose target material is unknown to the catalog are retained; the
// optimizer may reference materials never explicitly requested.
func NewGraph(table map[int][]RawYield, idx *Index) *Graph {
	edges := make(map[int][]YieldEdge, len(table))

	for sourceID, raws := range table {
		portion := idx.PortionSize(sourceID)
		list := make([]YieldEdge, 0, len(raws))
		for _, raw := range raws {
			list = append(list, YieldEdge{
				MaterialID: raw.MaterialID,
				Fraction:   raw.Quantity / portion,
			})
		}
		edges[sourceID] = list
	}

	return &Graph{edges: edges}
}

// YieldsOf returns the normalized yield edges of an item, nil when the item
// has no reprocessing output.
func (g *Graph) YieldsOf(typeID int) []YieldEdge {
	return g.edges[typeID]
}

// Sources returns every item id with at least one yield edge.
func (g *Graph) Sources() []int {
	ids := make([]int, 0, len(g.edges))
	for id := range g.edges {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of items with yield edges.
func (g *Graph) Len() int {
	return len(g.edges)
}
