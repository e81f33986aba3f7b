package market

import (
	"testing"

	"github.com/aristath/refinery/internal/clients/tycoon"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// fakeSource serves canned quotes keyed by (type, region).
type fakeSource struct {
	quotes map[[2]int]*tycoon.Quote
	calls  [][2]int
}

func (f *fakeSource) MarketStats(typeID, regionID int) *tycoon.Quote {
	f.calls = append(f.calls, [2]int{typeID, regionID})
	return f.quotes[[2]int{typeID, regionID}]
}

func TestQuoteDefaultsToHomeRegion(t *testing.T) {
	src := &fakeSource{quotes: map[[2]int]*tycoon.Quote{
		{34, 10000002}: liquidQuote(),
	}}
	svc := NewService(src, 10000002, zerolog.Nop())

	q := svc.Quote(34, 0)
	assert.NotNil(t, q)
	assert.Equal(t, [2]int{34, 10000002}, src.calls[0])
}

func TestQuoteExplicitRegion(t *testing.T) {
	src := &fakeSource{quotes: map[[2]int]*tycoon.Quote{}}
	svc := NewService(src, 10000002, zerolog.Nop())

	q := svc.Quote(34, 10000043)
	assert.Nil(t, q)
	assert.Equal(t, [2]int{34, 10000043}, src.calls[0])
}

func TestPriceAppliesValuation(t *testing.T) {
	src := &fakeSource{quotes: map[[2]int]*tycoon.Quote{
		{34, 10000002}: liquidQuote(),
	}}
	svc := NewService(src, 10000002, zerolog.Nop())

	assert.InDelta(t, 6.0, svc.Price(34, 0, SellBand), 1e-12)
	// Unpriceable item: zero, not an error
	assert.Zero(t, svc.Price(99, 0, SellBand))
}
