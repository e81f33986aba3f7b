// Package reference provides the static item universe: the item catalog,
// name/id lookups, and the reprocessing yield graph. All data is loaded once at
// startup from the static data dump and is immutable afterwards.
package reference

// Item is one market-traded item type from the static data dump.
type Item struct {
	TypeID      int
	Name        string
	Volume      float64 // unit volume in m3
	PortionSize float64 // reprocessing batch size, the denominator for yields
}

// RawYield is one row of the yield table as published by the dump:
// reprocessing one batch of the source item produces Quantity units of the
// material. Fractions per unit are derived by the Graph.
type RawYield struct {
	MaterialID int
	Quantity   float64
}

// YieldEdge is a normalized edge of the yield graph: one unit of the source
// item reprocesses into Fraction units of the material (before applying any
// efficiency factor).
type YieldEdge struct {
	MaterialID int
	Fraction   float64
}

// Provider supplies the reference data. The dump loader is the production
// implementation; tests supply fixtures.
type Provider interface {
	Catalog() ([]Item, error)
	YieldTable() (map[int][]RawYield, error)
}
