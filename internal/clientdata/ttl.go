package clientdata

import "time"

// TTL constants for cached market data.
const (
	// TTLMarketQuote is the default lifetime of a market quote when the
	// remote response carries no refresh hint.
	TTLMarketQuote = 24 * time.Hour

	// ExpiryGrace is added on top of the remote Expires hint. Quotes drift
	// slowly enough that serving them an extra day is preferable to
	// refetching thousands of items.
	ExpiryGrace = 24 * time.Hour
)
