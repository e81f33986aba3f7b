// Package market turns raw market quotes into usable unit prices.
package market

import (
	"fmt"

	"github.com/aristath/refinery/internal/clients/tycoon"
)

// Valuation selects which field of a quote becomes the unit price.
// All variants share the same liquidity gate.
type Valuation int

const (
	// BuyBand prices at the 5%-band buy average.
	BuyBand Valuation = iota
	// SellBand prices at the 5%-band sell average.
	SellBand
	// MaxBuy prices at the highest standing buy order.
	MaxBuy
	// MinSell prices at the lowest standing sell order.
	MinSell
)

// minLiquidityVolume is the order-book depth below which a quote is unusable.
const minLiquidityVolume = 100

var valuationNames = map[Valuation]string{
	BuyBand:  "buy_band",
	SellBand: "sell_band",
	MaxBuy:   "max_buy",
	MinSell:  "min_sell",
}

func (v Valuation) String() string {
	if name, ok := valuationNames[v]; ok {
		return name
	}
	return fmt.Sprintf("valuation(%d)", int(v))
}

// ParseValuation resolves an API string to a valuation variant.
// An empty string defaults to BuyBand.
func ParseValuation(s string) (Valuation, error) {
	switch s {
	case "", "buy_band":
		return BuyBand, nil
	case "sell_band":
		return SellBand, nil
	case "max_buy":
		return MaxBuy, nil
	case "min_sell":
		return MinSell, nil
	default:
		return BuyBand, fmt.Errorf("unknown valuation %q", s)
	}
}

// liquid reports whether the order book is deep enough for the quoted price
// to mean anything.
func liquid(q *tycoon.Quote) bool {
	if q.BuyOrders == 0 || q.SellOrders == 0 {
		return false
	}
	if q.BuyVolume < minLiquidityVolume || q.SellVolume < minLiquidityVolume {
		return false
	}
	return true
}

// Price maps a quote to a unit price. Absent and illiquid quotes price at
// zero; downstream logic treats zero as "unpriceable" and excludes the item
// rather than reading it as a bargain.
func (v Valuation) Price(q *tycoon.Quote) float64 {
	if q == nil || !liquid(q) {
		return 0
	}

	switch v {
	case BuyBand:
		return q.BuyAvgFivePercent
	case SellBand:
		return q.SellAvgFivePercent
	case MaxBuy:
		return q.MaxBuy
	case MinSell:
		return q.MinSell
	}
	return 0
}
