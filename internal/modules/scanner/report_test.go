package scanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReport(profits ...float64) *Report {
	r := &Report{
		ID:          "test",
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	for i, p := range profits {
		r.Opportunities = append(r.Opportunities, Opportunity{
			TypeID: 1000 + i,
			Name:   "Item",
			Profit: p,
		})
	}
	return r
}

func TestEmptyReportRendersNoLines(t *testing.T) {
	assert.Nil(t, testReport().Lines())
}

func TestBucketBoundaries(t *testing.T) {
	// 9,999 falls in [0,10000); 10,000 falls in [10000,20000)
	lines := testReport(9999, 10000).Lines()
	require.Len(t, lines, 5)

	assert.Equal(t, "+ Reprocess 2026-03-01", lines[0])
	assert.Contains(t, lines[1], "0-")
	assert.Contains(t, lines[1], "9999")
	assert.Equal(t, "-- Item", lines[2])
	assert.Contains(t, lines[3], "10000-")
	assert.Contains(t, lines[3], "19999")
	assert.Equal(t, "-- Item", lines[4])
}

func TestSingleBucketEmitsOneHeader(t *testing.T) {
	lines := testReport(100, 200, 300).Lines()
	require.Len(t, lines, 5)

	headers := 0
	for _, l := range lines {
		if len(l) > 2 && l[:2] == "++" {
			headers++
		}
	}
	assert.Equal(t, 1, headers)
}

func TestLabelWidth(t *testing.T) {
	// ln(100000) ~ 11.5 -> width 5
	assert.Equal(t, 5, labelWidth(100000))
	// Tiny profits never produce a zero or negative width
	assert.Equal(t, 1, labelWidth(0.5))
	assert.Equal(t, 1, labelWidth(1))
}
