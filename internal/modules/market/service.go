package market

import (
	"github.com/aristath/refinery/internal/clients/tycoon"
	"github.com/rs/zerolog"
)

// QuoteSource is what the service needs from the tycoon client.
type QuoteSource interface {
	MarketStats(typeID, regionID int) *tycoon.Quote
}

// Service resolves item prices through the cached quote source.
type Service struct {
	source     QuoteSource
	homeRegion int
	log        zerolog.Logger
}

// NewService creates a market service. homeRegion is used whenever a caller
// passes region 0.
func NewService(source QuoteSource, homeRegion int, log zerolog.Logger) *Service {
	return &Service{
		source:     source,
		homeRegion: homeRegion,
		log:        log.With().Str("component", "market").Logger(),
	}
}

// Quote returns the cached-or-fetched quote for an item, nil when the item is
// unpriceable. Region 0 defaults to the home region.
func (s *Service) Quote(typeID, regionID int) *tycoon.Quote {
	if regionID == 0 {
		regionID = s.homeRegion
	}
	return s.source.MarketStats(typeID, regionID)
}

// Price returns the gated unit price of an item under a valuation variant.
func (s *Service) Price(typeID, regionID int, v Valuation) float64 {
	return v.Price(s.Quote(typeID, regionID))
}
