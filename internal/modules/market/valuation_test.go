package market

import (
	"testing"

	"github.com/aristath/refinery/internal/clients/tycoon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liquidQuote() *tycoon.Quote {
	return &tycoon.Quote{
		BuyVolume:          5000,
		SellVolume:         8000,
		BuyOrders:          12,
		SellOrders:         30,
		BuyAvgFivePercent:  5.5,
		SellAvgFivePercent: 6.0,
		MaxBuy:             5.8,
		MinSell:            5.9,
	}
}

var allValuations = []Valuation{BuyBand, SellBand, MaxBuy, MinSell}

func TestLiquidityGateZeroesAllVariants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*tycoon.Quote)
	}{
		{"no buy orders", func(q *tycoon.Quote) { q.BuyOrders = 0 }},
		{"no sell orders", func(q *tycoon.Quote) { q.SellOrders = 0 }},
		{"thin buy volume", func(q *tycoon.Quote) { q.BuyVolume = 99 }},
		{"thin sell volume", func(q *tycoon.Quote) { q.SellVolume = 99 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := liquidQuote()
			tt.mutate(q)
			for _, v := range allValuations {
				assert.Zero(t, v.Price(q), "variant %s", v)
			}
		})
	}
}

func TestVolumeExactlyAtThresholdPasses(t *testing.T) {
	q := liquidQuote()
	q.BuyVolume = 100
	q.SellVolume = 100

	assert.InDelta(t, 5.5, BuyBand.Price(q), 1e-12)
}

func TestVariantFieldSelection(t *testing.T) {
	q := liquidQuote()

	assert.InDelta(t, 5.5, BuyBand.Price(q), 1e-12)
	assert.InDelta(t, 6.0, SellBand.Price(q), 1e-12)
	assert.InDelta(t, 5.8, MaxBuy.Price(q), 1e-12)
	assert.InDelta(t, 5.9, MinSell.Price(q), 1e-12)
}

func TestNilQuotePricesAtZero(t *testing.T) {
	for _, v := range allValuations {
		assert.Zero(t, v.Price(nil))
	}
}

func TestParseValuation(t *testing.T) {
	v, err := ParseValuation("sell_band")
	require.NoError(t, err)
	assert.Equal(t, SellBand, v)

	v, err = ParseValuation("")
	require.NoError(t, err)
	assert.Equal(t, BuyBand, v)

	_, err = ParseValuation("median")
	require.Error(t, err)
}

func TestValuationString(t *testing.T) {
	assert.Equal(t, "buy_band", BuyBand.String())
	assert.Equal(t, "min_sell", MinSell.String())
}
