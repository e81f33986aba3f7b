package reference

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphFractionIsQuantityOverPortionSize(t *testing.T) {
	idx := NewIndex(testCatalog(), zerolog.Nop())
	table := map[int][]RawYield{
		1230: {
			{MaterialID: 34, Quantity: 415},
			{MaterialID: 35, Quantity: 104},
		},
	}

	g := NewGraph(table, idx)

	edges := g.YieldsOf(1230)
	require.Len(t, edges, 2)
	assert.Equal(t, 34, edges[0].MaterialID)
	assert.InDelta(t, 4.15, edges[0].Fraction, 1e-12) // 415 / portion size 100
	assert.InDelta(t, 1.04, edges[1].Fraction, 1e-12)
}

func TestGraphRetainsEdgesToUnknownMaterials(t *testing.T) {
	idx := NewIndex(testCatalog(), zerolog.Nop())
	table := map[int][]RawYield{
		1230: {{MaterialID: 424242, Quantity: 50}},
	}

	g := NewGraph(table, idx)

	edges := g.YieldsOf(1230)
	require.Len(t, edges, 1)
	assert.Equal(t, 424242, edges[0].MaterialID)
}

func TestGraphNoYields(t *testing.T) {
	idx := NewIndex(testCatalog(), zerolog.Nop())
	g := NewGraph(map[int][]RawYield{}, idx)

	assert.Nil(t, g.YieldsOf(34))
	assert.Zero(t, g.Len())
	assert.Empty(t, g.Sources())
}

func TestGraphSources(t *testing.T) {
	idx := NewIndex(testCatalog(), zerolog.Nop())
	table := map[int][]RawYield{
		1230: {{MaterialID: 34, Quantity: 415}},
		35:   {{MaterialID: 34, Quantity: 1}},
	}

	g := NewGraph(table, idx)

	assert.Equal(t, 2, g.Len())
	assert.ElementsMatch(t, []int{1230, 35}, g.Sources())
}
